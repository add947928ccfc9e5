package bus

import (
	"sort"

	"drift/internal/events"
)

// ringSet holds one fixed-capacity ring buffer per project plus a global
// sequence counter so replay can merge events from several projects in
// publish order.
type ringSet struct {
	capacity int
	seq      uint64
	rings    map[string]*ring
}

type entry struct {
	seq uint64
	ev  events.Event
}

type ring struct {
	entries []entry
	head    int
	count   int
}

func newRingSet(capacity int) *ringSet {
	return &ringSet{capacity: capacity, rings: make(map[string]*ring)}
}

func (s *ringSet) append(ev events.Event) {
	r, ok := s.rings[ev.Project]
	if !ok {
		r = &ring{entries: make([]entry, s.capacity)}
		s.rings[ev.Project] = r
	}
	s.seq++
	r.append(entry{seq: s.seq, ev: ev})
}

// append inserts at the logical tail, evicting the oldest entry when full.
func (r *ring) append(e entry) {
	if r.count < len(r.entries) {
		r.entries[(r.head+r.count)%len(r.entries)] = e
		r.count++
		return
	}
	r.entries[r.head] = e
	r.head = (r.head + 1) % len(r.entries)
}

// snapshot returns the entries oldest first.
func (r *ring) snapshot() []entry {
	out := make([]entry, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.entries[(r.head+i)%len(r.entries)])
	}
	return out
}

// collect gathers up to limit matching events across rings, oldest first.
func (s *ringSet) collect(filter Filter, limit int) []events.Event {
	var matched []entry
	for project, r := range s.rings {
		if filter.Project != "" && filter.Project != project {
			continue
		}
		for _, e := range r.snapshot() {
			if filter.MatchesType(e.ev.Type) {
				matched = append(matched, e)
			}
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	out := make([]events.Event, 0, len(matched))
	for _, e := range matched {
		out = append(out, e.ev)
	}
	return out
}

// history copies every ring, keyed by project, oldest first.
func (s *ringSet) history() map[string][]events.Event {
	out := make(map[string][]events.Event, len(s.rings))
	for project, r := range s.rings {
		evs := make([]events.Event, 0, r.count)
		for _, e := range r.snapshot() {
			evs = append(evs, e.ev)
		}
		out[project] = evs
	}
	return out
}

// size is the total buffered event count across projects.
func (s *ringSet) size() int {
	total := 0
	for _, r := range s.rings {
		total += r.count
	}
	return total
}
