package bus

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"drift/internal/config"
	"drift/internal/events"
	"drift/internal/logging"
	"drift/internal/testsupport"
)

func startTestBus(t *testing.T, cfg *config.Config) (*Bus, chan events.Event) {
	t.Helper()

	out := make(chan events.Event, 32)
	b := New(cfg, out, logging.NewNop())
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start bus: %v", err)
	}
	t.Cleanup(b.Stop)
	return b, out
}

func dialSubscriber(t *testing.T, cfg *config.Config, filter string) (net.Conn, *bufio.Reader) {
	t.Helper()

	conn, err := net.Dial("unix", cfg.Layout().SubscribeSocket())
	if err != nil {
		t.Fatalf("dial subscribe socket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	if filter != "" {
		if _, err := conn.Write([]byte(filter + "\n")); err != nil {
			t.Fatalf("write filter: %v", err)
		}
	}
	return conn, bufio.NewReader(conn)
}

func readEventLine(t *testing.T, conn net.Conn, reader *bufio.Reader) events.Event {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read event line: %v", err)
	}
	var ev events.Event
	if err := json.Unmarshal(line, &ev); err != nil {
		t.Fatalf("decode event line %q: %v", line, err)
	}
	return ev
}

func TestBusForwardsIngressAndCountsMalformed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	b, out := startTestBus(t, cfg)

	conn, err := net.Dial("unix", cfg.Layout().EmitSocket())
	if err != nil {
		t.Fatalf("dial emit socket: %v", err)
	}
	defer conn.Close()

	lines := "" +
		`{"type":"build.finished","project":"demo","level":"success","title":"built"}` + "\n" +
		"not json\n" +
		"\n" +
		`{"level":"info"}` + "\n"
	if _, err := conn.Write([]byte(lines)); err != nil {
		t.Fatalf("write ingress lines: %v", err)
	}

	select {
	case ev := <-out:
		if ev.Type != "build.finished" || ev.Project != "demo" {
			t.Fatalf("unexpected event forwarded: %+v", ev)
		}
		if ev.Level != events.LevelSuccess {
			t.Fatalf("level = %q, want success", ev.Level)
		}
		if ev.Timestamp == "" {
			t.Fatal("expected parse to stamp a timestamp")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for forwarded event")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && b.Stats().MalformedEvents < 2 {
		time.Sleep(10 * time.Millisecond)
	}
	if got := b.Stats().MalformedEvents; got != 2 {
		t.Fatalf("malformed events = %d, want 2", got)
	}

	select {
	case ev := <-out:
		t.Fatalf("unexpected extra event forwarded: %+v", ev)
	default:
	}
}

func TestBusReplayThenLiveWithoutDuplicates(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithEventBuffers(10, 5))
	b, _ := startTestBus(t, cfg)

	for i := 1; i <= 3; i++ {
		b.Publish(tickEvent("demo", i))
	}

	conn, reader := dialSubscriber(t, cfg, `{"project":"demo"}`)

	var got []string
	for i := 0; i < 3; i++ {
		got = append(got, readEventLine(t, conn, reader).Title)
	}

	// Receiving replay proves registration finished, so this publish is live.
	b.Publish(tickEvent("demo", 4))
	got = append(got, readEventLine(t, conn, reader).Title)

	want := []string{"tick 1", "tick 2", "tick 3", "tick 4"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delivery order = %v, want %v", got, want)
		}
	}

	if stats := b.Stats(); stats.Subscribers != 1 {
		t.Fatalf("subscribers = %d, want 1", stats.Subscribers)
	}
}

func TestBusReplayIsBoundedAndRecent(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithEventBuffers(10, 2))
	b, _ := startTestBus(t, cfg)

	for i := 1; i <= 5; i++ {
		b.Publish(tickEvent("demo", i))
	}

	conn, reader := dialSubscriber(t, cfg, "")
	first := readEventLine(t, conn, reader)
	second := readEventLine(t, conn, reader)
	if first.Title != "tick 4" || second.Title != "tick 5" {
		t.Fatalf("replay = %q, %q; want the two most recent oldest first", first.Title, second.Title)
	}
}

func TestBusRoutesByFilter(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	b, _ := startTestBus(t, cfg)

	// The warmup event matches both filters; replaying it on connect proves
	// each subscriber is registered before the live publishes below.
	warmup := events.Event{Type: "service.started", Project: "beta", Title: "warmup"}
	b.Publish(warmup)

	connA, readerA := dialSubscriber(t, cfg, `{"types":"service.*"}`)
	if ev := readEventLine(t, connA, readerA); ev.Title != "warmup" {
		t.Fatalf("subscriber A replay = %+v, want warmup", ev)
	}
	connB, readerB := dialSubscriber(t, cfg, `{"project":"beta"}`)
	if ev := readEventLine(t, connB, readerB); ev.Title != "warmup" {
		t.Fatalf("subscriber B replay = %+v, want warmup", ev)
	}

	b.Publish(events.Event{Type: "service.crashed", Project: "alpha", Title: "for A"})
	b.Publish(events.Event{Type: "workspace.activated", Project: "beta", Title: "for B"})
	b.Publish(events.Event{Type: "service.started", Project: "beta", Title: "for both"})

	if ev := readEventLine(t, connA, readerA); ev.Title != "for A" {
		t.Fatalf("subscriber A got %+v, want the alpha crash", ev)
	}
	if ev := readEventLine(t, connA, readerA); ev.Title != "for both" {
		t.Fatalf("subscriber A got %+v, want the shared event next", ev)
	}
	if ev := readEventLine(t, connB, readerB); ev.Title != "for B" {
		t.Fatalf("subscriber B got %+v, want the beta activation", ev)
	}
	if ev := readEventLine(t, connB, readerB); ev.Title != "for both" {
		t.Fatalf("subscriber B got %+v, want the shared event next", ev)
	}
}

func TestBusStopRemovesSockets(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	b, _ := startTestBus(t, cfg)

	b.Stop()

	layout := cfg.Layout()
	for _, path := range []string{layout.EmitSocket(), layout.SubscribeSocket()} {
		if _, err := net.Dial("unix", path); err == nil {
			t.Fatalf("socket %s still accepting after stop", path)
		}
	}
}

func TestSubscriberEnqueueDropsOldest(t *testing.T) {
	sub := &subscriber{queue: make(chan events.Event, 2)}

	if dropped := sub.enqueue(tickEvent("demo", 1)); dropped {
		t.Fatal("first enqueue should not drop")
	}
	if dropped := sub.enqueue(tickEvent("demo", 2)); dropped {
		t.Fatal("second enqueue should not drop")
	}
	if dropped := sub.enqueue(tickEvent("demo", 3)); !dropped {
		t.Fatal("third enqueue should report a drop")
	}

	first := <-sub.queue
	second := <-sub.queue
	if first.Title != "tick 2" || second.Title != "tick 3" {
		t.Fatalf("queue after overflow = %q, %q; want ticks 2 and 3", first.Title, second.Title)
	}
}
