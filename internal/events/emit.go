package events

import (
	"fmt"
	"net"
	"time"
)

const (
	emitDialTimeout  = 2 * time.Second
	emitWriteTimeout = time.Second
)

// Emit connects to the daemon's ingress socket and writes one event line.
// Each call uses a fresh connection; producers are expected to be
// occasional writers, not streams.
func Emit(socketPath string, ev Event) error {
	line, err := Encode(ev)
	if err != nil {
		return err
	}

	conn, err := net.DialTimeout("unix", socketPath, emitDialTimeout)
	if err != nil {
		return fmt.Errorf("connect to event socket: %w", err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(emitWriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := conn.Write(line); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}
