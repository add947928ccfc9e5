package bus

import "drift/internal/events"

// Classify maps an event's level and the activity of its project onto a
// notification priority. Events for the active project rank one step above
// the same level on an inactive project; unknown levels stay silent.
func Classify(projectActive bool, level string) string {
	switch level {
	case events.LevelError:
		if projectActive {
			return events.PriorityCritical
		}
		return events.PriorityHigh
	case events.LevelWarn:
		if projectActive {
			return events.PriorityHigh
		}
		return events.PriorityMedium
	case events.LevelInfo:
		if projectActive {
			return events.PriorityMedium
		}
		return events.PriorityLow
	case events.LevelSuccess:
		if projectActive {
			return events.PriorityMedium
		}
		return events.PriorityLow
	default:
		return events.PrioritySilent
	}
}
