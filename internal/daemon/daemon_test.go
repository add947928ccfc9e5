package daemon

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"drift/internal/config"
	"drift/internal/logging"
	"drift/internal/project"
	"drift/internal/testsupport"
	"drift/internal/tracker"
)

// offlineStream fails every open; the tracker keeps retrying in the
// background without affecting the rest of the daemon.
func offlineStream() (tracker.EventSource, error) {
	return nil, errors.New("compositor offline")
}

func buildDaemon(t *testing.T, cfg *config.Config, opts ...Option) *Daemon {
	t.Helper()

	registry, err := project.LoadRegistry(cfg.Layout())
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	base := []Option{WithTrackerSource(offlineStream)}
	d, err := New(cfg, registry, logging.NewNop(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	return d
}

func deadlineLoop(t *testing.T, what string, ok func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ok() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	first := buildDaemon(t, cfg)
	if err := first.Start(ctx); err != nil {
		t.Fatalf("start first daemon: %v", err)
	}
	t.Cleanup(first.Stop)

	data, err := os.ReadFile(cfg.Layout().DaemonPID())
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("pid file = %q", data)
	}

	second := buildDaemon(t, cfg)
	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("second daemon acquired the instance lock")
	}

	first.Stop()
	if _, err := os.Stat(cfg.Layout().DaemonPID()); !os.IsNotExist(err) {
		t.Fatalf("pid file still present after stop: %v", err)
	}

	third := buildDaemon(t, cfg)
	if err := third.Start(ctx); err != nil {
		t.Fatalf("start after release: %v", err)
	}
	third.Stop()
}

func TestStatusReportsRuntime(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := buildDaemon(t, cfg)

	if st := d.Status(context.Background()); st.Running {
		t.Fatal("idle daemon reports running")
	}

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(d.Stop)

	st := d.Status(context.Background())
	if !st.Running {
		t.Fatal("started daemon reports not running")
	}
	if st.PID != os.Getpid() {
		t.Fatalf("status pid = %d", st.PID)
	}
	if st.RunID != d.RunID() {
		t.Fatalf("status run id = %q, want %q", st.RunID, d.RunID())
	}
	if st.StartedAt.IsZero() {
		t.Fatal("status missing start time")
	}
	if st.Services == nil {
		t.Fatal("status missing services map")
	}
}

func TestStartWritesInitialStateDocument(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := buildDaemon(t, cfg)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(d.Stop)

	deadlineLoop(t, "daemon state document", func() bool {
		st, err := LoadState(cfg.Layout())
		if err != nil {
			t.Fatalf("load state: %v", err)
		}
		return st != nil && st.PID == os.Getpid() && st.RunID == d.RunID()
	})
}
