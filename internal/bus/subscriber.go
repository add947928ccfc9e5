package bus

import (
	"net"
	"time"

	"drift/internal/events"
)

const subscriberWriteTimeout = time.Second

// subscriber is one connected egress consumer: a connection, an optional
// filter declared at connect time, and a bounded outgoing queue.
type subscriber struct {
	id     string
	conn   net.Conn
	filter Filter
	queue  chan events.Event
}

// enqueue adds ev to the outgoing queue without ever blocking. When the
// queue is full the oldest queued event is discarded first. The return
// value reports whether anything was dropped. All enqueues happen under
// the bus mutex, so the drop-then-retry sequence is not racing other
// producers, only the draining writer.
func (s *subscriber) enqueue(ev events.Event) (dropped bool) {
	select {
	case s.queue <- ev:
		return false
	default:
	}
	select {
	case <-s.queue:
		dropped = true
	default:
	}
	select {
	case s.queue <- ev:
	default:
		dropped = true
	}
	return dropped
}

// writeLoop drains the queue onto the socket until the bus shuts down or
// the subscriber disconnects.
func (b *Bus) writeLoop(sub *subscriber) {
	for {
		select {
		case <-b.ctx.Done():
			return
		case ev := <-sub.queue:
			line, err := events.Encode(ev)
			if err != nil {
				continue
			}
			_ = sub.conn.SetWriteDeadline(time.Now().Add(subscriberWriteTimeout))
			if _, err := sub.conn.Write(line); err != nil {
				return
			}
		}
	}
}
