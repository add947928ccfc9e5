package compositor

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"
)

const (
	dialTimeout    = 2 * time.Second
	requestTimeout = 5 * time.Second
)

// ErrNotAvailable indicates the compositor socket cannot be located, which
// normally means the daemon is running outside a compositor session.
var ErrNotAvailable = errors.New("compositor socket not available")

// SocketPath returns the compositor IPC socket path from the environment.
func SocketPath() (string, error) {
	path := os.Getenv("NIRI_SOCKET")
	if path == "" {
		return "", fmt.Errorf("%w: NIRI_SOCKET is not set", ErrNotAvailable)
	}
	return path, nil
}

// Client issues commands and queries over one dedicated connection. The
// compositor processes a connection's requests strictly in order, so every
// request holds the client mutex until its reply arrives.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// Dial connects a request client to the session compositor.
func Dial() (*Client, error) {
	path, err := SocketPath()
	if err != nil {
		return nil, err
	}
	return DialPath(path)
}

// DialPath connects a request client to the socket at path.
func DialPath(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial compositor: %w", err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an established connection, which the client then owns.
func NewClient(conn net.Conn) *Client {
	reader := bufio.NewReaderSize(conn, 64*1024)
	return &Client{conn: conn, reader: reader}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Workspaces lists all workspaces across outputs.
func (c *Client) Workspaces() ([]Workspace, error) {
	raw, err := c.roundTrip("Workspaces")
	if err != nil {
		return nil, err
	}
	var body struct {
		Workspaces []Workspace `json:"Workspaces"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode workspaces reply: %w", err)
	}
	return body.Workspaces, nil
}

// Windows lists all windows.
func (c *Client) Windows() ([]Window, error) {
	raw, err := c.roundTrip("Windows")
	if err != nil {
		return nil, err
	}
	var body struct {
		Windows []Window `json:"Windows"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode windows reply: %w", err)
	}
	return body.Windows, nil
}

// FocusedWindow returns the focused window, or nil when none has focus.
func (c *Client) FocusedWindow() (*Window, error) {
	raw, err := c.roundTrip("FocusedWindow")
	if err != nil {
		return nil, err
	}
	var body struct {
		FocusedWindow *Window `json:"FocusedWindow"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode focused window reply: %w", err)
	}
	return body.FocusedWindow, nil
}

// FocusedOutput returns the output holding keyboard focus, or nil.
func (c *Client) FocusedOutput() (*Output, error) {
	raw, err := c.roundTrip("FocusedOutput")
	if err != nil {
		return nil, err
	}
	var body struct {
		FocusedOutput *Output `json:"FocusedOutput"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode focused output reply: %w", err)
	}
	return body.FocusedOutput, nil
}

// FindWorkspaceByName returns the workspace with the given name, or nil.
func (c *Client) FindWorkspaceByName(name string) (*Workspace, error) {
	workspaces, err := c.Workspaces()
	if err != nil {
		return nil, err
	}
	for _, ws := range workspaces {
		if ws.Name == name {
			return &ws, nil
		}
	}
	return nil, nil
}

type workspaceReference struct {
	Name string `json:"Name"`
}

// FocusWorkspace focuses the workspace with the given name.
func (c *Client) FocusWorkspace(name string) error {
	return c.action("FocusWorkspace", struct {
		Reference workspaceReference `json:"reference"`
	}{Reference: workspaceReference{Name: name}})
}

// SetWorkspaceName names the currently focused workspace.
func (c *Client) SetWorkspaceName(name string) error {
	return c.action("SetWorkspaceName", struct {
		Name      string `json:"name"`
		Workspace any    `json:"workspace"`
	}{Name: name})
}

// UnsetWorkspaceName removes the name from the named workspace, returning
// it to the anonymous pool.
func (c *Client) UnsetWorkspaceName(name string) error {
	return c.action("UnsetWorkspaceName", struct {
		Reference workspaceReference `json:"reference"`
	}{Reference: workspaceReference{Name: name}})
}

// FocusWorkspaceDown moves focus one workspace down on the current output.
func (c *Client) FocusWorkspaceDown() error {
	return c.action("FocusWorkspaceDown", struct{}{})
}

// CreateNamedWorkspace walks focus past the last workspace, which makes
// the compositor materialize a fresh empty one, then names it. The walk
// and the rename ride the same serialized connection, so no other request
// from this client can interleave.
func (c *Client) CreateNamedWorkspace(name string) error {
	workspaces, err := c.Workspaces()
	if err != nil {
		return err
	}
	for range workspaces {
		if err := c.FocusWorkspaceDown(); err != nil {
			return err
		}
	}
	return c.SetWorkspaceName(name)
}

// Spawn asks the compositor to launch a command in the session.
func (c *Client) Spawn(command []string) error {
	return c.action("Spawn", struct {
		Command []string `json:"command"`
	}{Command: command})
}

// CloseWindow requests a close on the given window.
func (c *Client) CloseWindow(id uint64) error {
	return c.action("CloseWindow", struct {
		ID uint64 `json:"id"`
	}{ID: id})
}

// SetWindowUrgent raises the urgency hint on the given window.
func (c *Client) SetWindowUrgent(id uint64) error {
	return c.action("SetWindowUrgent", struct {
		ID uint64 `json:"id"`
	}{ID: id})
}

func (c *Client) action(name string, args any) error {
	raw, err := c.roundTrip(map[string]any{"Action": map[string]any{name: args}})
	if err != nil {
		return err
	}
	return expectHandled(raw)
}

// roundTrip writes one request line and reads its reply line, serialized
// against every other request on this client.
func (c *Client) roundTrip(request any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encode compositor request: %w", err)
	}
	payload = append(payload, '\n')

	deadline := time.Now().Add(requestTimeout)
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set compositor deadline: %w", err)
	}
	if _, err := c.conn.Write(payload); err != nil {
		return nil, fmt.Errorf("write compositor request: %w", err)
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read compositor reply: %w", err)
	}

	var rep struct {
		Ok  json.RawMessage `json:"Ok"`
		Err string          `json:"Err"`
	}
	if err := json.Unmarshal(line, &rep); err != nil {
		return nil, fmt.Errorf("decode compositor reply: %w", err)
	}
	if rep.Err != "" {
		return nil, fmt.Errorf("compositor error: %s", rep.Err)
	}
	return rep.Ok, nil
}

func expectHandled(raw json.RawMessage) error {
	var tag string
	if err := json.Unmarshal(raw, &tag); err == nil && tag == "Handled" {
		return nil
	}
	return fmt.Errorf("unexpected compositor response: %s", truncateForError(raw))
}

func truncateForError(raw []byte) string {
	const limit = 200
	if len(raw) <= limit {
		return string(raw)
	}
	return string(raw[:limit]) + "..."
}
