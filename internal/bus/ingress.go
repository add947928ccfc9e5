package bus

import (
	"bufio"
	"bytes"
	"net"

	"drift/internal/events"
	"drift/internal/logging"
)

// Ingress lines are capped well above any reasonable event size; longer
// lines are malformed by definition.
const maxEventLine = 256 * 1024

func (b *Bus) acceptIngress() {
	defer b.wg.Done()
	for {
		conn, err := b.ingressLn.Accept()
		if err != nil {
			if b.closingDown() {
				return
			}
			b.logger.Warn("ingress accept failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "bus_accept_failed"))
			continue
		}

		b.mu.Lock()
		b.conns[conn] = struct{}{}
		b.mu.Unlock()

		b.wg.Add(1)
		go b.handleIngressConn(conn)
	}
}

// handleIngressConn reads newline-delimited events until the writer hangs
// up. Each producer gets its own goroutine, so a stalled writer never
// starves the rest.
func (b *Bus) handleIngressConn(conn net.Conn) {
	defer func() {
		b.mu.Lock()
		delete(b.conns, conn)
		b.mu.Unlock()
		_ = conn.Close()
		b.wg.Done()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		ev, err := events.Parse(line)
		if err != nil {
			b.malformed.Add(1)
			b.logger.Debug("dropped malformed event",
				logging.Error(err),
				logging.Uint64("malformed_total", b.malformed.Load()))
			continue
		}

		select {
		case b.out <- ev:
		case <-b.ctx.Done():
			return
		}
	}
}
