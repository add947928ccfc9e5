package daemon

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"drift/internal/compositor"
	"drift/internal/events"
	"drift/internal/supervisor"
	"drift/internal/testsupport"
	"drift/internal/workspace"
)

// fakeCompositor records every request the orchestration makes. Lookup
// methods answer from the seeded workspace and window lists.
type fakeCompositor struct {
	mu         sync.Mutex
	workspaces []compositor.Workspace
	windows    []compositor.Window

	spawned [][]string
	focused []string
	created []string
	unset   []string
	closed  []uint64
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

func (f *fakeCompositor) FocusWorkspace(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.focused = append(f.focused, name)
	return nil
}

func (f *fakeCompositor) CreateNamedWorkspace(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, name)
	return nil
}

func (f *fakeCompositor) UnsetWorkspaceName(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unset = append(f.unset, name)
	return nil
}

func (f *fakeCompositor) Spawn(command []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spawned = append(f.spawned, command)
	return nil
}

func (f *fakeCompositor) CloseWindow(id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, id)
	return nil
}

func (f *fakeCompositor) Close() error { return nil }

func startDaemonWithFake(t *testing.T, projectTOML string, fake *fakeCompositor) (*Daemon, string) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	repo := testsupport.WriteProjectFile(t, cfg, "myapp", projectTOML)

	d := buildDaemon(t, cfg, WithCompositorDialer(func() (CompositorClient, error) {
		return fake, nil
	}))
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	t.Cleanup(d.Stop)
	return d, repo
}

func awaitSupervised(t *testing.T, d *Daemon, projectName, service string, want supervisor.Status) {
	t.Helper()
	deadlineLoop(t, "service "+service+" to reach "+string(want), func() bool {
		for _, st := range d.sup.States(projectName) {
			if st.Name == service && st.Status == want {
				return true
			}
		}
		return false
	})
}

func awaitBusEvent(t *testing.T, d *Daemon, projectName, typ string) events.Event {
	t.Helper()
	var found events.Event
	deadlineLoop(t, typ+" on the bus", func() bool {
		for _, ev := range d.bus.History()[projectName] {
			if ev.Type == typ {
				found = ev
				return true
			}
		}
		return false
	})
	return found
}

func TestOpenFocusesExistingWorkspace(t *testing.T) {
	fake := &fakeCompositor{
		workspaces: []compositor.Workspace{{ID: 7, Name: "myapp", Output: "DP-1"}},
	}
	d, _ := startDaemonWithFake(t, "", fake)

	res, err := d.OpenProject(context.Background(), "myapp")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !res.Focused || res.Windows != 0 || res.Services != 0 {
		t.Fatalf("result = %+v", res)
	}
	if len(fake.spawned) != 0 || len(fake.created) != 0 {
		t.Fatalf("hot open spawned %v created %v", fake.spawned, fake.created)
	}
	if len(fake.focused) != 1 || fake.focused[0] != "myapp" {
		t.Fatalf("focused = %v", fake.focused)
	}

	session, err := workspace.LoadSession(d.layout)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if session == nil || len(session.Projects) != 1 || session.Projects[0] != "myapp" {
		t.Fatalf("session = %+v", session)
	}
}

func TestOpenUnknownProjectFails(t *testing.T) {
	d, _ := startDaemonWithFake(t, "", &fakeCompositor{})

	if _, err := d.OpenProject(context.Background(), "nope"); err == nil {
		t.Fatal("open of unregistered project should fail")
	}
}

func TestOpenCreatesWorkspaceSpawnsAndSupervises(t *testing.T) {
	extra := `[[windows]]
name = "editor"
command = "nvim ."

[[services.processes]]
name = "web"
command = "sleep 30"
restart = "never"
`
	fake := &fakeCompositor{}
	d, repo := startDaemonWithFake(t, extra, fake)

	res, err := d.OpenProject(context.Background(), "myapp")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if res.Focused || res.Windows != 1 || res.Services != 1 || res.Agents != 0 {
		t.Fatalf("result = %+v", res)
	}
	if len(fake.created) != 1 || fake.created[0] != "myapp" {
		t.Fatalf("created = %v", fake.created)
	}

	if len(fake.spawned) != 1 {
		t.Fatalf("spawned = %v", fake.spawned)
	}
	argv := fake.spawned[0]
	if argv[0] != d.cfg.Defaults.Terminal {
		t.Fatalf("terminal = %q", argv[0])
	}
	if argv[1] != "--title=drift:myapp/editor" {
		t.Fatalf("title arg = %q", argv[1])
	}
	if argv[2] != "-e" || argv[3] != "sh" || argv[4] != "-c" {
		t.Fatalf("argv = %v", argv)
	}
	script := argv[5]
	if !strings.Contains(script, "export DRIFT_PROJECT='myapp'") {
		t.Fatalf("script missing project export:\n%s", script)
	}
	if !strings.Contains(script, "export DRIFT_NOTIFY_SOCK='"+d.layout.EmitSocket()+"'") {
		t.Fatalf("script missing notify socket export:\n%s", script)
	}
	if !strings.Contains(script, "\ncd "+repo+"\n") {
		t.Fatalf("script missing cd:\n%s", script)
	}
	if !strings.HasSuffix(script, "exec nvim .") {
		t.Fatalf("script tail = %q", script)
	}

	awaitSupervised(t, d, "myapp", "web", supervisor.StatusRunning)
	awaitBusEvent(t, d, "myapp", events.TypeProjectOpened)
	awaitBusEvent(t, d, "myapp", events.TypeServiceStarted)
}

func TestOpenSpawnsDefaultShellWindow(t *testing.T) {
	fake := &fakeCompositor{}
	d, _ := startDaemonWithFake(t, "", fake)

	res, err := d.OpenProject(context.Background(), "myapp")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if res.Windows != 1 {
		t.Fatalf("result = %+v", res)
	}
	if len(fake.spawned) != 1 {
		t.Fatalf("spawned = %v", fake.spawned)
	}
	argv := fake.spawned[0]
	if argv[1] != "--title=drift:myapp" {
		t.Fatalf("title arg = %q", argv[1])
	}
	if !strings.HasSuffix(argv[5], "exec $SHELL") {
		t.Fatalf("script tail = %q", argv[5])
	}
}

func TestOpenSpawnsScratchpadEditor(t *testing.T) {
	extra := `[scratchpad]
file = "notes.md"
`
	fake := &fakeCompositor{}
	d, _ := startDaemonWithFake(t, extra, fake)

	res, err := d.OpenProject(context.Background(), "myapp")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if res.Windows != 2 {
		t.Fatalf("result = %+v", res)
	}

	// Default window plus the scratchpad terminal.
	if len(fake.spawned) != 2 {
		t.Fatalf("spawned = %v", fake.spawned)
	}
	pad := fake.spawned[1]
	if pad[1] != "--title=drift:myapp/scratchpad" {
		t.Fatalf("title arg = %q", pad[1])
	}
	if !strings.HasSuffix(pad[5], "exec "+d.cfg.Defaults.Editor+" 'notes.md'") {
		t.Fatalf("scratchpad script = %q", pad[5])
	}
}

func TestOpenRunsInteractiveAgentInTerminal(t *testing.T) {
	extra := `[[services.processes]]
name = "pair"
agent = "claude"
agent_mode = "interactive"
`
	fake := &fakeCompositor{}
	d, _ := startDaemonWithFake(t, extra, fake)

	res, err := d.OpenProject(context.Background(), "myapp")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if res.Agents != 1 || res.Services != 0 {
		t.Fatalf("result = %+v", res)
	}

	// Default window plus the agent terminal.
	if len(fake.spawned) != 2 {
		t.Fatalf("spawned = %v", fake.spawned)
	}
	agent := fake.spawned[1]
	if agent[1] != "--title=drift:myapp/pair" {
		t.Fatalf("title arg = %q", agent[1])
	}
	if !strings.Contains(agent[5], "exec claude") {
		t.Fatalf("agent script = %q", agent[5])
	}
	if len(d.sup.States("myapp")) != 0 {
		t.Fatal("interactive agent must not be supervised")
	}
}

func TestCloseProjectTearsDown(t *testing.T) {
	fake := &fakeCompositor{
		workspaces: []compositor.Workspace{
			{ID: 7, Name: "myapp", Output: "DP-1"},
			{ID: 9, Name: "other"},
		},
		windows: []compositor.Window{
			{ID: 41, Title: "editor", AppID: "ghostty", WorkspaceID: 7},
			{ID: 52, Title: "elsewhere", WorkspaceID: 9},
		},
	}
	d, repo := startDaemonWithFake(t, "", fake)

	spec := supervisor.Spec{
		Project: "myapp",
		Name:    "web",
		Command: "sleep 30",
		Dir:     repo,
	}
	if err := d.sup.Start(spec); err != nil {
		t.Fatalf("start service: %v", err)
	}
	awaitSupervised(t, d, "myapp", "web", supervisor.StatusRunning)
	if err := workspace.AddSessionProject(d.layout, "myapp"); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	res, err := d.CloseProject(context.Background(), "myapp")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if res.ServicesStopped != 1 {
		t.Fatalf("services stopped = %d", res.ServicesStopped)
	}
	if res.WindowsClosed != 1 || len(fake.closed) != 1 || fake.closed[0] != 41 {
		t.Fatalf("windows closed = %+v / %v", res, fake.closed)
	}
	if len(fake.unset) != 1 || fake.unset[0] != "myapp" {
		t.Fatalf("unset = %v", fake.unset)
	}
	if !res.SnapshotSaved {
		t.Fatal("snapshot not saved")
	}

	snap, err := workspace.LoadSnapshot(d.layout, "myapp")
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if snap == nil || len(snap.Workspaces) != 1 || snap.Workspaces[0].ID != 7 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if len(snap.Windows) != 1 || snap.Windows[0].ID != 41 {
		t.Fatalf("snapshot windows = %+v", snap.Windows)
	}

	if states := d.sup.States("myapp"); len(states) != 0 {
		t.Fatalf("services survived close: %+v", states)
	}

	session, err := workspace.LoadSession(d.layout)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if session != nil {
		for _, name := range session.Projects {
			if name == "myapp" {
				t.Fatalf("session still lists myapp: %+v", session)
			}
		}
	}

	awaitBusEvent(t, d, "myapp", events.TypeProjectClosed)
}

func TestCloseWithoutOwnedWorkspace(t *testing.T) {
	fake := &fakeCompositor{}
	d, _ := startDaemonWithFake(t, "", fake)

	// Close is by workspace, not registry: an unregistered name is fine.
	res, err := d.CloseProject(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if res.WindowsClosed != 0 || res.SnapshotSaved || len(fake.unset) != 0 {
		t.Fatalf("result = %+v unset=%v", res, fake.unset)
	}
}

func TestOpenSerializesWithClose(t *testing.T) {
	fake := &fakeCompositor{
		workspaces: []compositor.Workspace{{ID: 7, Name: "myapp", Output: "DP-1"}},
	}
	d, _ := startDaemonWithFake(t, "", fake)

	// Both grab the orchestration lock; neither errors and the session
	// file survives concurrent updates.
	var wg sync.WaitGroup
	wg.Add(2)
	ctx := context.Background()
	go func() {
		defer wg.Done()
		if _, err := d.OpenProject(ctx, "myapp"); err != nil {
			t.Errorf("open: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if _, err := d.CloseProject(ctx, "myapp"); err != nil {
			t.Errorf("close: %v", err)
		}
	}()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("orchestration deadlocked")
	}
}
