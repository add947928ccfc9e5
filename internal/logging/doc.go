// Package logging wraps log/slog with the handlers and attribute helpers
// used across the daemon and CLI: a console handler for human-readable
// output, a JSON handler for machine consumption, standardized field keys,
// and component-scoped child loggers.
package logging
