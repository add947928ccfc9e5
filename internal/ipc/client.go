package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon control socket.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the control server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Drift.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to shut down its components.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Drift.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// OpenProject opens a project workspace.
func (c *Client) OpenProject(name string) (*OpenProjectResponse, error) {
	var resp OpenProjectResponse
	if err := c.client.Call("Drift.OpenProject", OpenProjectRequest{Name: name}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CloseProject closes a project workspace.
func (c *Client) CloseProject(name string) (*CloseProjectResponse, error) {
	var resp CloseProjectResponse
	if err := c.client.Call("Drift.CloseProject", CloseProjectRequest{Name: name}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RestartService restarts one supervised service.
func (c *Client) RestartService(projectName, service string) (*RestartServiceResponse, error) {
	var resp RestartServiceResponse
	req := RestartServiceRequest{Project: projectName, Service: service}
	if err := c.client.Call("Drift.RestartService", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
