// Package tracker maintains the daemon's view of the compositor: it owns
// the streaming event connection, folds raw workspace and window events
// into project facts, and feeds those facts to the coordinator over one
// bounded channel. Losing the compositor is not fatal; the tracker
// reconnects with backoff while the rest of the daemon keeps running.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"drift/internal/compositor"
	"drift/internal/logging"
)

const (
	reconnectBase = time.Second
	reconnectCap  = 30 * time.Second
)

// EventSource is the consumed surface of the compositor event stream.
type EventSource interface {
	Next() (compositor.Event, error)
	Close() error
}

// OpenFunc opens an event source. The default dials the session
// compositor; tests substitute scripted sources.
type OpenFunc func() (EventSource, error)

// Tracker is the compositor-stream worker.
type Tracker struct {
	facts  chan<- Fact
	known  func() map[string]struct{}
	open   OpenFunc
	logger *slog.Logger

	model *model

	streamMu sync.Mutex
	stream   EventSource

	stateMu sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds a tracker delivering facts to the coordinator channel. known
// supplies the current project names; a nil open dials the real
// compositor.
func New(facts chan<- Fact, known func() map[string]struct{}, open OpenFunc, logger *slog.Logger) *Tracker {
	if open == nil {
		open = func() (EventSource, error) { return compositor.OpenStream() }
	}
	return &Tracker{
		facts:  facts,
		known:  known,
		open:   open,
		logger: logging.NewComponentLogger(logger, "tracker"),
		model:  newModel(),
	}
}

// Start launches the stream worker.
func (t *Tracker) Start(ctx context.Context) error {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	if t.running {
		return errors.New("tracker already started")
	}
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.running = true
	t.wg.Add(1)
	go t.run()
	return nil
}

// Stop cancels the worker, closing any live stream to unblock its read.
func (t *Tracker) Stop() {
	t.stateMu.Lock()
	if !t.running {
		t.stateMu.Unlock()
		return
	}
	t.running = false
	t.cancel()
	t.stateMu.Unlock()

	t.streamMu.Lock()
	if t.stream != nil {
		_ = t.stream.Close()
	}
	t.streamMu.Unlock()

	t.wg.Wait()
}

func (t *Tracker) run() {
	defer t.wg.Done()

	attempt := 0
	for {
		if t.closingDown() {
			return
		}

		stream, err := t.open()
		if err != nil {
			attempt++
			delay := reconnectDelay(attempt)
			t.logger.Warn("compositor unavailable",
				logging.Error(err),
				logging.Duration("retry_in", delay))
			if !t.sleep(delay) {
				return
			}
			continue
		}

		attempt = 0
		t.setStream(stream)
		t.send(ConnectionChanged{Connected: true})
		t.logger.Info("compositor stream connected")

		err = t.consume(stream)
		t.setStream(nil)
		_ = stream.Close()
		if t.closingDown() {
			return
		}
		t.logger.Warn("compositor stream lost", logging.Error(err))
		t.send(ConnectionChanged{Connected: false})
	}
}

func (t *Tracker) consume(stream EventSource) error {
	for {
		ev, err := stream.Next()
		if err != nil {
			return err
		}
		for _, fact := range t.model.apply(ev, t.known, time.Now()) {
			if !t.send(fact) {
				return nil
			}
		}
	}
}

// send delivers one fact, blocking until the coordinator takes it or
// shutdown begins.
func (t *Tracker) send(fact Fact) bool {
	select {
	case t.facts <- fact:
		return true
	case <-t.ctx.Done():
		return false
	}
}

func (t *Tracker) setStream(stream EventSource) {
	t.streamMu.Lock()
	t.stream = stream
	t.streamMu.Unlock()
}

func (t *Tracker) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-t.ctx.Done():
		return false
	}
}

func (t *Tracker) closingDown() bool {
	select {
	case <-t.ctx.Done():
		return true
	default:
		return false
	}
}

func reconnectDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return reconnectBase
	}
	delay := float64(reconnectBase) * math.Pow(2, float64(attempt-1))
	if delay > float64(reconnectCap) {
		return reconnectCap
	}
	return time.Duration(delay)
}
