// Package bus implements the daemon's notification fan-out: an ingress
// unix socket accepting line-delimited JSON events from any local writer,
// per-project bounded ring buffers, and an egress unix socket broadcasting
// prioritized events to subscribers with bounded replay on connect.
//
// The bus never blocks a publisher: slow subscribers lose their oldest
// queued events, malformed ingress lines are counted and dropped, and a
// disconnecting subscriber is pruned without affecting the rest.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"drift/internal/config"
	"drift/internal/events"
	"drift/internal/logging"
)

// Bus owns the two notification sockets. Inbound events are forwarded to
// the coordinator channel supplied at construction; outbound events arrive
// via Publish, which only the coordinator calls.
type Bus struct {
	ingressPath string
	egressPath  string
	queueCap    int
	replayCap   int

	out    chan<- events.Event
	logger *slog.Logger

	ingressLn net.Listener
	egressLn  net.Listener

	mu          sync.Mutex
	subscribers []*subscriber
	rings       *ringSet
	conns       map[net.Conn]struct{}

	malformed atomic.Uint64
	dropped   atomic.Uint64

	stateMu sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Stats is a point-in-time view of bus counters for status reporting.
type Stats struct {
	Subscribers     int
	BufferedEvents  int
	MalformedEvents uint64
	DroppedEvents   uint64
}

// New builds a bus from configuration. Events accepted on the ingress
// socket are delivered to out in arrival order.
func New(cfg *config.Config, out chan<- events.Event, logger *slog.Logger) *Bus {
	layout := cfg.Layout()
	return &Bus{
		ingressPath: layout.EmitSocket(),
		egressPath:  layout.SubscribeSocket(),
		queueCap:    cfg.Events.SubscriberQueue,
		replayCap:   cfg.Events.ReplayOnSubscribe,
		out:         out,
		logger:      logging.NewComponentLogger(logger, "bus"),
		rings:       newRingSet(cfg.Events.BufferSize),
		conns:       make(map[net.Conn]struct{}),
	}
}

// Start binds both sockets and begins accepting connections. A bind
// failure on either socket is returned as an error; both endpoints are
// load-bearing, so the caller treats this as fatal.
func (b *Bus) Start(ctx context.Context) error {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	if b.running {
		return errors.New("bus already started")
	}

	ingressLn, err := bindSocket(b.ingressPath)
	if err != nil {
		return fmt.Errorf("bind ingress socket: %w", err)
	}
	egressLn, err := bindSocket(b.egressPath)
	if err != nil {
		ingressLn.Close()
		_ = os.Remove(b.ingressPath)
		return fmt.Errorf("bind egress socket: %w", err)
	}

	b.ingressLn = ingressLn
	b.egressLn = egressLn
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.running = true

	b.wg.Add(2)
	go b.acceptIngress()
	go b.acceptEgress()

	b.logger.Info("event bus listening",
		logging.String("ingress", b.ingressPath),
		logging.String("egress", b.egressPath))
	return nil
}

// Stop closes the listeners and every live connection, then waits for all
// connection goroutines to drain.
func (b *Bus) Stop() {
	b.stateMu.Lock()
	if !b.running {
		b.stateMu.Unlock()
		return
	}
	b.running = false
	b.cancel()
	b.stateMu.Unlock()

	if b.ingressLn != nil {
		_ = b.ingressLn.Close()
	}
	if b.egressLn != nil {
		_ = b.egressLn.Close()
	}

	b.mu.Lock()
	for conn := range b.conns {
		_ = conn.Close()
	}
	for _, sub := range b.subscribers {
		_ = sub.conn.Close()
	}
	b.mu.Unlock()

	b.wg.Wait()

	_ = os.Remove(b.ingressPath)
	_ = os.Remove(b.egressPath)
	b.logger.Info("event bus stopped")
}

// Publish stores ev in its project's ring buffer and fans it out to every
// matching subscriber. It never blocks: full subscriber queues lose their
// oldest entry instead.
func (b *Bus) Publish(ev events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rings.append(ev)
	for _, sub := range b.subscribers {
		if !sub.filter.Matches(ev) {
			continue
		}
		if sub.enqueue(ev) {
			b.dropped.Add(1)
		}
	}
}

// History returns a copy of every project's buffered events in publish
// order, used when persisting daemon state.
func (b *Bus) History() map[string][]events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rings.history()
}

// Stats returns current counters.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	subscribers := len(b.subscribers)
	buffered := b.rings.size()
	b.mu.Unlock()
	return Stats{
		Subscribers:     subscribers,
		BufferedEvents:  buffered,
		MalformedEvents: b.malformed.Load(),
		DroppedEvents:   b.dropped.Load(),
	}
}

func bindSocket(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	return listener, nil
}

func (b *Bus) closingDown() bool {
	select {
	case <-b.ctx.Done():
		return true
	default:
		return false
	}
}
