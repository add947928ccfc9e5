// Package compositor is the niri IPC adapter: newline-delimited JSON over
// the unix socket named by $NIRI_SOCKET. It exposes only the commands,
// queries, and stream events the daemon consumes. Requests on a client
// connection are strictly serialized; the event stream uses its own
// dedicated connection because it is read-only after the subscribe
// handshake.
package compositor
