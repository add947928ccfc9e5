package supervisor

import (
	"time"

	"drift/internal/project"
)

// Action is the supervisor's response to a terminated service.
type Action int

const (
	// ActionStop leaves the service down.
	ActionStop Action = iota
	// ActionRestart schedules a relaunch after the backoff delay.
	ActionRestart
	// ActionGiveUp marks the service failed permanently.
	ActionGiveUp
)

// Decide evaluates the restart policy for one exit. signalled reports a
// signal death, attempts the consecutive fast-failure count including
// this one.
func Decide(policy project.RestartPolicy, exitCode int, signalled bool, attempts, maxRestarts int) Action {
	switch policy {
	case project.RestartAlways:
	case project.RestartOnFailure:
		if exitCode == 0 && !signalled {
			return ActionStop
		}
	default:
		return ActionStop
	}
	if attempts >= maxRestarts {
		return ActionGiveUp
	}
	return ActionRestart
}

// Delay returns the backoff before restart attempt number attempt
// (1-based): base, then doubling, capped.
func Delay(base, limit time.Duration, attempt int) time.Duration {
	if attempt <= 1 {
		return base
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= limit {
			return limit
		}
	}
	return delay
}
