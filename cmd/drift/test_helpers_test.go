package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"drift/internal/compositor"
	"drift/internal/config"
	"drift/internal/daemon"
	"drift/internal/ipc"
	"drift/internal/logging"
	"drift/internal/project"
	"drift/internal/testsupport"
	"drift/internal/tracker"
)

// fakeCompositor answers orchestration requests from seeded workspace and
// window lists and records every mutating call.
type fakeCompositor struct {
	mu         sync.Mutex
	workspaces []compositor.Workspace
	windows    []compositor.Window

	spawned [][]string
	created []string
}

func (f *fakeCompositor) seed(workspaces []compositor.Workspace, windows []compositor.Window) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workspaces = workspaces
	f.windows = windows
}

func (f *fakeCompositor) Workspaces() ([]compositor.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]compositor.Workspace, len(f.workspaces))
	copy(out, f.workspaces)
	return out, nil
}

func (f *fakeCompositor) Windows() ([]compositor.Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]compositor.Window, len(f.windows))
	copy(out, f.windows)
	return out, nil
}

func (f *fakeCompositor) FindWorkspaceByName(name string) (*compositor.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ws := range f.workspaces {
		if ws.Name == name {
			found := ws
			return &found, nil
		}
	}
	return nil, nil
}

func (f *fakeCompositor) FocusWorkspace(name string) error { return nil }

func (f *fakeCompositor) CreateNamedWorkspace(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, name)
	return nil
}

func (f *fakeCompositor) UnsetWorkspaceName(name string) error { return nil }

func (f *fakeCompositor) Spawn(command []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spawned = append(f.spawned, command)
	return nil
}

func (f *fakeCompositor) CloseWindow(id uint64) error { return nil }

func (f *fakeCompositor) Close() error { return nil }

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	server     *ipc.Server
	fake       *fakeCompositor
	configPath string
	cancel     context.CancelFunc
}

// setupCLITestEnv runs a real daemon and control server on temp
// directories, with the compositor faked and the niri event stream
// unavailable. projectTOML is appended to a minimal "myapp" definition.
func setupCLITestEnv(t *testing.T, projectTOML string) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.Daemon.PersistIntervalSeconds = 1
	testsupport.WriteProjectFile(t, cfg, "myapp", projectTOML)

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	registry, err := project.LoadRegistry(cfg.Layout())
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}

	fake := &fakeCompositor{}
	d, err := daemon.New(cfg, registry, logging.NewNop(),
		daemon.WithCompositorDialer(func() (daemon.CompositorClient, error) { return fake, nil }),
		daemon.WithTrackerSource(func() (tracker.EventSource, error) {
			return nil, errors.New("compositor offline")
		}),
	)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}

	srv, err := ipc.NewServer(ctx, cfg.Layout().ControlSocket(), d, logging.NewNop())
	if err != nil {
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		daemon:     d,
		server:     srv,
		fake:       fake,
		configPath: configPath,
		cancel:     cancel,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Stop()
	})

	return env
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nconfig_dir = %q\nstate_dir = %q\nruntime_dir = %q\n\n[daemon]\npersist_interval_seconds = 1\n",
		cfg.Paths.ConfigDir,
		cfg.Paths.StateDir,
		cfg.Paths.RuntimeDir,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
