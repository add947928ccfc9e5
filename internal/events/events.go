// Package events defines the notification wire format shared by the daemon,
// the CLI, and every local producer: one JSON object per line, carrying a
// dot-namespaced type, the owning project, and optional severity and
// payload fields.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Severity levels. Unknown levels are tolerated on the wire and classify as
// silent.
const (
	LevelInfo    = "info"
	LevelWarn    = "warn"
	LevelError   = "error"
	LevelSuccess = "success"
)

// Priority tiers attached at coordination time, ordered from most to least
// urgent.
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"
	PrioritySilent   = "silent"
)

// Event types emitted by the daemon itself. Producers are free to use their
// own dot-namespaced types.
const (
	TypeWorkspaceActivated   = "workspace.activated"
	TypeWorkspaceDeactivated = "workspace.deactivated"
	TypeWorkspaceCreated     = "workspace.created"
	TypeWorkspaceDestroyed   = "workspace.destroyed"
	TypeWindowUrgent         = "window.urgent"
	TypeServiceStarted       = "service.started"
	TypeServiceStopped       = "service.stopped"
	TypeServiceCrashed       = "service.crashed"
	TypeServiceRestarted     = "service.restarted"
	TypeServiceFailed        = "service.failed"
	TypeProjectOpened        = "project.opened"
	TypeProjectClosed        = "project.closed"
)

// ErrMalformed marks ingress lines that cannot become an Event. The bus
// counts and drops them.
var ErrMalformed = errors.New("malformed event")

// Event is one notification. Events are immutable once created; Priority is
// attached exactly once, before broadcast.
type Event struct {
	Type      string         `json:"type"`
	Project   string         `json:"project"`
	Source    string         `json:"source,omitempty"`
	Timestamp string         `json:"ts"`
	Level     string         `json:"level,omitempty"`
	Title     string         `json:"title,omitempty"`
	Body      string         `json:"body,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
	Priority  string         `json:"priority,omitempty"`
}

// Stamp returns the current time in the wire timestamp format.
func Stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Parse decodes one ingress line. Missing type or project is ErrMalformed;
// a missing level defaults to info and a missing timestamp to now.
func Parse(line []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	ev.Type = strings.TrimSpace(ev.Type)
	ev.Project = strings.TrimSpace(ev.Project)
	if ev.Type == "" {
		return Event{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if ev.Project == "" {
		return Event{}, fmt.Errorf("%w: missing project", ErrMalformed)
	}
	if ev.Level == "" {
		ev.Level = LevelInfo
	}
	if ev.Timestamp == "" {
		ev.Timestamp = Stamp(time.Now())
	}
	return ev, nil
}

// Encode renders the event as a single JSON line including the trailing
// newline.
func Encode(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return append(data, '\n'), nil
}
