package bus

import (
	"strings"

	"drift/internal/events"
)

// Filter narrows the events a subscriber receives. The zero value matches
// everything. Types is a glob with at most one '*'; Project is an exact
// project name.
type Filter struct {
	Types   string `json:"types,omitempty"`
	Project string `json:"project,omitempty"`
}

// Matches reports whether the event passes both the type and project
// constraints.
func (f Filter) Matches(ev events.Event) bool {
	if f.Project != "" && f.Project != ev.Project {
		return false
	}
	return f.MatchesType(ev.Type)
}

// MatchesType applies the type glob alone.
func (f Filter) MatchesType(eventType string) bool {
	return matchTypeGlob(f.Types, eventType)
}

// matchTypeGlob matches value against pattern where a single '*' spans any
// run of characters. Patterns with more than one '*' fall back to literal
// comparison and so match nothing but themselves.
func matchTypeGlob(pattern, value string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	parts := strings.Split(pattern, "*")
	if len(parts) == 2 {
		prefix, suffix := parts[0], parts[1]
		if len(value) < len(prefix)+len(suffix) {
			return false
		}
		return strings.HasPrefix(value, prefix) && strings.HasSuffix(value, suffix)
	}
	return pattern == value
}
