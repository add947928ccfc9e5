package bus

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net"
	"time"

	"github.com/google/uuid"

	"drift/internal/events"
	"drift/internal/logging"
)

// filterHandshakeWindow bounds how long a new subscriber gets to declare a
// filter. Subscribers that send nothing within the window receive the
// unfiltered stream, which keeps bare socket clients working.
const filterHandshakeWindow = 250 * time.Millisecond

func (b *Bus) acceptEgress() {
	defer b.wg.Done()
	for {
		conn, err := b.egressLn.Accept()
		if err != nil {
			if b.closingDown() {
				return
			}
			b.logger.Warn("egress accept failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "bus_accept_failed"))
			continue
		}

		b.wg.Add(1)
		go b.handleEgressConn(conn)
	}
}

// handleEgressConn performs the filter handshake, atomically replays
// recent matching history and registers the subscriber, then streams live
// events. Registration and replay share one critical section so no event
// published in between is duplicated or lost.
func (b *Bus) handleEgressConn(conn net.Conn) {
	defer b.wg.Done()

	filter := b.readFilter(conn)
	sub := &subscriber{
		id:     uuid.NewString(),
		conn:   conn,
		filter: filter,
		queue:  make(chan events.Event, b.queueCap),
	}

	b.mu.Lock()
	for _, ev := range b.rings.collect(filter, b.replayCap) {
		sub.enqueue(ev)
	}
	b.subscribers = append(b.subscribers, sub)
	b.mu.Unlock()

	b.logger.Debug("subscriber connected",
		logging.String(logging.FieldSubscriber, sub.id),
		logging.String("filter_types", filter.Types),
		logging.String("filter_project", filter.Project))

	b.writeLoop(sub)

	b.removeSubscriber(sub)
	_ = conn.Close()
	b.logger.Debug("subscriber disconnected",
		logging.String(logging.FieldSubscriber, sub.id))
}

// readFilter reads the optional single-line JSON filter declaration. Any
// read error, timeout, or parse failure yields the empty filter.
func (b *Bus) readFilter(conn net.Conn) Filter {
	var filter Filter
	if err := conn.SetReadDeadline(time.Now().Add(filterHandshakeWindow)); err != nil {
		return filter
	}
	reader := bufio.NewReaderSize(conn, 4096)
	line, err := reader.ReadBytes('\n')
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil {
		return filter
	}
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return filter
	}
	if err := json.Unmarshal(line, &filter); err != nil {
		b.logger.Debug("ignoring unparseable subscriber filter", logging.Error(err))
		return Filter{}
	}
	return filter
}

func (b *Bus) removeSubscriber(sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, candidate := range b.subscribers {
		if candidate == sub {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}
