package tracker

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"drift/internal/compositor"
	"drift/internal/logging"
)

// scriptedStream feeds canned events to the tracker; Close makes Next
// return io.EOF, matching a dropped compositor connection.
type scriptedStream struct {
	events chan compositor.Event
	done   chan struct{}
	once   sync.Once
}

func newScriptedStream() *scriptedStream {
	return &scriptedStream{
		events: make(chan compositor.Event, 16),
		done:   make(chan struct{}),
	}
}

func (s *scriptedStream) Next() (compositor.Event, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case <-s.done:
		return compositor.Event{}, io.EOF
	}
}

func (s *scriptedStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func nextFact(t *testing.T, facts <-chan Fact) Fact {
	t.Helper()
	select {
	case fact := <-facts:
		return fact
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a fact")
		return nil
	}
}

func TestTrackerReconnectsAndKeepsModelState(t *testing.T) {
	first := newScriptedStream()
	second := newScriptedStream()
	streams := make(chan *scriptedStream, 2)
	streams <- first
	streams <- second

	var opens atomic.Int32
	open := func() (EventSource, error) {
		opens.Add(1)
		select {
		case s := <-streams:
			return s, nil
		default:
			return nil, errors.New("compositor gone")
		}
	}

	facts := make(chan Fact, 32)
	tr := New(facts, knownSet("myapp"), open, logging.NewNop())
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("start tracker: %v", err)
	}
	t.Cleanup(tr.Stop)

	if fact := nextFact(t, facts); fact != (ConnectionChanged{Connected: true}) {
		t.Fatalf("fact = %#v, want connection up", fact)
	}

	first.events <- wsChanged(compositor.Workspace{ID: 1, Name: "myapp", Output: "DP-1"})
	fact := nextFact(t, facts)
	table, ok := fact.(ProjectWorkspacesChanged)
	if !ok {
		t.Fatalf("fact = %#v, want ProjectWorkspacesChanged", fact)
	}
	if len(table.Created) != 1 || table.Created[0] != "myapp" {
		t.Fatalf("created = %v, want [myapp]", table.Created)
	}

	first.Close()
	if fact := nextFact(t, facts); fact != (ConnectionChanged{Connected: false}) {
		t.Fatalf("fact = %#v, want connection down", fact)
	}
	if fact := nextFact(t, facts); fact != (ConnectionChanged{Connected: true}) {
		t.Fatalf("fact = %#v, want reconnect", fact)
	}
	if got := opens.Load(); got != 2 {
		t.Fatalf("open calls = %d, want 2", got)
	}

	// The model survives the reconnect: an empty workspace set on the new
	// stream reports myapp's workspace as destroyed, not a fresh start.
	second.events <- wsChanged()
	fact = nextFact(t, facts)
	table, ok = fact.(ProjectWorkspacesChanged)
	if !ok {
		t.Fatalf("fact = %#v, want ProjectWorkspacesChanged", fact)
	}
	if len(table.Destroyed) != 1 || table.Destroyed[0] != "myapp" {
		t.Fatalf("destroyed = %v, want [myapp]", table.Destroyed)
	}

	tr.Stop()
}

func TestTrackerBacksOffAfterFailedOpen(t *testing.T) {
	stream := newScriptedStream()
	var opens atomic.Int32
	open := func() (EventSource, error) {
		if opens.Add(1) == 1 {
			return nil, errors.New("socket missing")
		}
		return stream, nil
	}

	facts := make(chan Fact, 8)
	tr := New(facts, knownSet(), open, logging.NewNop())
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("start tracker: %v", err)
	}
	t.Cleanup(tr.Stop)

	start := time.Now()
	select {
	case fact := <-facts:
		if fact != (ConnectionChanged{Connected: true}) {
			t.Fatalf("fact = %#v, want connection up", fact)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("tracker never recovered from the failed open")
	}
	if elapsed := time.Since(start); elapsed < reconnectBase {
		t.Fatalf("reconnected after %v, want at least %v of backoff", elapsed, reconnectBase)
	}
}

func TestReconnectDelaySchedule(t *testing.T) {
	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, expected := range want {
		if got := reconnectDelay(i + 1); got != expected {
			t.Fatalf("reconnectDelay(%d) = %v, want %v", i+1, got, expected)
		}
	}
}
