// Package logs provides file tailing and offset helpers shared by the CLI
// commands that view daemon and service logs.
//
// It reads log files with bounded memory usage, supports negative offsets
// for "last N lines" requests, and powers follow-mode updates for
// `drift logs --follow`. Callers supply context deadlines so polling stops
// cleanly when the CLI exits.
package logs
