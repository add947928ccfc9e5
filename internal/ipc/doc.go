// Package ipc exposes the daemon's control surface over JSON-RPC on a
// Unix socket and ships the matching client used by the CLI.
//
// The control socket is separate from the notification sockets: it carries
// request/response operations (status, open, close, restart, stop) while
// event delivery stays on the bus. The client dials with a short timeout so
// CLI commands fail fast when the daemon is offline.
package ipc
