// Package daemon assembles the drift background process: the event bus,
// the process supervisor, and the compositor tracker, coordinated by a
// single goroutine that owns all shared daemon state. The package also
// enforces single-instance execution and carries the project open/close
// orchestration exposed over the control socket.
package daemon
