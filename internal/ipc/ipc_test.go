package ipc_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"drift/internal/compositor"
	"drift/internal/daemon"
	"drift/internal/ipc"
	"drift/internal/logging"
	"drift/internal/project"
	"drift/internal/testsupport"
	"drift/internal/tracker"
)

// stubCompositor answers workspace lookups from a fixed list and accepts
// every mutation.
type stubCompositor struct {
	workspaces []compositor.Workspace
}

func (s *stubCompositor) Workspaces() ([]compositor.Workspace, error) { return s.workspaces, nil }
func (s *stubCompositor) Windows() ([]compositor.Window, error)       { return nil, nil }

func (s *stubCompositor) FindWorkspaceByName(name string) (*compositor.Workspace, error) {
	for _, ws := range s.workspaces {
		if ws.Name == name {
			found := ws
			return &found, nil
		}
	}
	return nil, nil
}

func (s *stubCompositor) FocusWorkspace(string) error       { return nil }
func (s *stubCompositor) CreateNamedWorkspace(string) error { return nil }
func (s *stubCompositor) UnsetWorkspaceName(string) error   { return nil }
func (s *stubCompositor) Spawn([]string) error              { return nil }
func (s *stubCompositor) CloseWindow(uint64) error          { return nil }
func (s *stubCompositor) Close() error                      { return nil }

func TestControlRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteProjectFile(t, cfg, "myapp", "")
	registry, err := project.LoadRegistry(cfg.Layout())
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}

	stub := &stubCompositor{
		workspaces: []compositor.Workspace{{ID: 7, Name: "myapp", Output: "DP-1"}},
	}
	d, err := daemon.New(cfg, registry, logging.NewNop(),
		daemon.WithCompositorDialer(func() (daemon.CompositorClient, error) { return stub, nil }),
		daemon.WithTrackerSource(func() (tracker.EventSource, error) { return nil, errors.New("compositor offline") }),
	)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)

	socket := cfg.Layout().ControlSocket()
	srv, err := ipc.NewServer(ctx, socket, d, logging.NewNop())
	if err != nil {
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	time.Sleep(50 * time.Millisecond)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running {
		t.Fatal("expected daemon to be running")
	}
	if status.PID != os.Getpid() || status.RunID != d.RunID() {
		t.Fatalf("status identity = %+v", status)
	}
	if status.StartedAt == "" {
		t.Fatal("status missing start time")
	}

	openResp, err := client.OpenProject("myapp")
	if err != nil {
		t.Fatalf("OpenProject failed: %v", err)
	}
	if !openResp.Result.Focused {
		t.Fatalf("expected hot open to focus, got %+v", openResp.Result)
	}

	if _, err := client.OpenProject("ghost"); err == nil {
		t.Fatal("open of unknown project should fail")
	}
	if _, err := client.OpenProject(""); err == nil {
		t.Fatal("open without a name should fail")
	}

	closeResp, err := client.CloseProject("myapp")
	if err != nil {
		t.Fatalf("CloseProject failed: %v", err)
	}
	if closeResp.Result.Project != "myapp" {
		t.Fatalf("close result = %+v", closeResp.Result)
	}

	if _, err := client.RestartService("myapp", "absent"); err == nil {
		t.Fatal("restart of unknown service should fail")
	}

	stopResp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stopResp.Stopped {
		t.Fatal("expected stop response to be true")
	}

	status2, err := client.Status()
	if err != nil {
		t.Fatalf("Status after stop failed: %v", err)
	}
	if status2.Running {
		t.Fatal("expected daemon to be stopped")
	}
}
