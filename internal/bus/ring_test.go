package bus

import (
	"fmt"
	"testing"

	"drift/internal/events"
)

func tickEvent(project string, n int) events.Event {
	return events.Event{
		Type:    "test.tick",
		Project: project,
		Source:  "test",
		Title:   fmt.Sprintf("tick %d", n),
	}
}

func TestRingEvictsOldestAtCapacity(t *testing.T) {
	set := newRingSet(20)
	for i := 0; i < 25; i++ {
		set.append(tickEvent("demo", i))
	}

	if got := set.size(); got != 20 {
		t.Fatalf("size = %d, want 20", got)
	}
	history := set.history()["demo"]
	if len(history) != 20 {
		t.Fatalf("history length = %d, want 20", len(history))
	}
	for i, ev := range history {
		if want := fmt.Sprintf("tick %d", i+5); ev.Title != want {
			t.Fatalf("history[%d].Title = %q, want %q", i, ev.Title, want)
		}
	}
}

func TestRingSetKeepsProjectsIndependent(t *testing.T) {
	set := newRingSet(2)
	set.append(tickEvent("one", 1))
	set.append(tickEvent("two", 2))
	set.append(tickEvent("one", 3))
	set.append(tickEvent("one", 4))

	history := set.history()
	one := history["one"]
	if len(one) != 2 || one[0].Title != "tick 3" || one[1].Title != "tick 4" {
		t.Fatalf("project one history = %+v, want ticks 3 and 4", one)
	}
	two := history["two"]
	if len(two) != 1 || two[0].Title != "tick 2" {
		t.Fatalf("project two history = %+v, want tick 2", two)
	}
	if got := set.size(); got != 3 {
		t.Fatalf("size = %d, want 3", got)
	}
}

func TestCollectMergesProjectsInPublishOrder(t *testing.T) {
	set := newRingSet(10)
	set.append(tickEvent("one", 1))
	set.append(tickEvent("two", 2))
	set.append(tickEvent("one", 3))
	set.append(tickEvent("two", 4))

	collected := set.collect(Filter{}, 10)
	if len(collected) != 4 {
		t.Fatalf("collected %d events, want 4", len(collected))
	}
	for i, ev := range collected {
		if want := fmt.Sprintf("tick %d", i+1); ev.Title != want {
			t.Fatalf("collected[%d].Title = %q, want %q", i, ev.Title, want)
		}
	}
}

func TestCollectHonorsFilterAndLimit(t *testing.T) {
	set := newRingSet(10)
	for i := 1; i <= 5; i++ {
		set.append(tickEvent("one", i))
	}
	set.append(events.Event{Type: "service.crashed", Project: "two", Title: "crash"})

	byProject := set.collect(Filter{Project: "one"}, 10)
	if len(byProject) != 5 {
		t.Fatalf("project filter returned %d events, want 5", len(byProject))
	}

	limited := set.collect(Filter{Project: "one"}, 2)
	if len(limited) != 2 {
		t.Fatalf("limited collect returned %d events, want 2", len(limited))
	}
	if limited[0].Title != "tick 4" || limited[1].Title != "tick 5" {
		t.Fatalf("limited collect = %+v, want the two most recent oldest first", limited)
	}

	byType := set.collect(Filter{Types: "service.*"}, 10)
	if len(byType) != 1 || byType[0].Title != "crash" {
		t.Fatalf("type filter = %+v, want only the crash event", byType)
	}
}

func TestHistoryReturnsCopies(t *testing.T) {
	set := newRingSet(4)
	set.append(tickEvent("demo", 1))

	first := set.history()
	first["demo"][0].Title = "mutated"

	second := set.history()
	if second["demo"][0].Title != "tick 1" {
		t.Fatalf("history shares backing storage with callers")
	}
}
