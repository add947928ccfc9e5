package compositor

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Stream is the dedicated event-feed connection. After the subscribe
// handshake the compositor pushes one event per line and nothing is ever
// written again, so reads block indefinitely until Close.
type Stream struct {
	conn   net.Conn
	reader *bufio.Reader
}

// OpenStream dials the session compositor and subscribes to the event feed.
func OpenStream() (*Stream, error) {
	path, err := SocketPath()
	if err != nil {
		return nil, err
	}
	return OpenStreamPath(path)
}

// OpenStreamPath dials the socket at path and subscribes to the event feed.
func OpenStreamPath(path string) (*Stream, error) {
	conn, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial compositor: %w", err)
	}
	stream, err := NewStream(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return stream, nil
}

// NewStream performs the subscribe handshake on an established connection,
// which the stream then owns.
func NewStream(conn net.Conn) (*Stream, error) {
	reader := bufio.NewReaderSize(conn, 64*1024)

	if err := conn.SetDeadline(time.Now().Add(requestTimeout)); err != nil {
		return nil, fmt.Errorf("set handshake deadline: %w", err)
	}
	if _, err := conn.Write([]byte("\"EventStream\"\n")); err != nil {
		return nil, fmt.Errorf("subscribe to event stream: %w", err)
	}
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read subscribe reply: %w", err)
	}
	var rep struct {
		Ok  json.RawMessage `json:"Ok"`
		Err string          `json:"Err"`
	}
	if err := json.Unmarshal(line, &rep); err != nil {
		return nil, fmt.Errorf("decode subscribe reply: %w", err)
	}
	if rep.Err != "" {
		return nil, fmt.Errorf("compositor error: %s", rep.Err)
	}
	if err := expectHandled(rep.Ok); err != nil {
		return nil, err
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return nil, fmt.Errorf("clear handshake deadline: %w", err)
	}
	return &Stream{conn: conn, reader: reader}, nil
}

// Next blocks until the next consumed event arrives; events outside the
// consumed surface are skipped.
func (s *Stream) Next() (Event, error) {
	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			return Event{}, err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return Event{}, fmt.Errorf("decode compositor event: %w", err)
		}
		if ev == (Event{}) {
			continue
		}
		return ev, nil
	}
}

// Close closes the stream connection, unblocking any pending Next.
func (s *Stream) Close() error {
	return s.conn.Close()
}
