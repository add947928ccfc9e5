package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"drift/internal/bus"
	"drift/internal/config"
	"drift/internal/events"
	"drift/internal/fileutil"
	"drift/internal/logging"
	"drift/internal/paths"
	"drift/internal/supervisor"
	"drift/internal/tracker"
	"drift/internal/workspace"
)

// Coordinator is the daemon's single state owner. It drains the bus
// ingress, supervisor transitions, and tracker facts from bounded
// channels, processing each message to completion before the next, so an
// activation fact is fully applied before any later event is classified
// against the active project. No other goroutine reads or writes its
// state; queries go through a request channel.
type Coordinator struct {
	cfg    *config.Config
	layout paths.Layout
	bus    *bus.Bus
	sup    *supervisor.Supervisor
	logger *slog.Logger

	ingress     <-chan events.Event
	transitions <-chan supervisor.Transition
	facts       <-chan tracker.Fact
	queries     chan snapshotRequest

	runID     string
	startedAt time.Time

	// Owned by the run goroutine.
	activeProject string
	connected     bool
	table         []tracker.ProjectWorkspace
	dirty         bool

	stateMu sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Snapshot is a read-only copy of coordinator state, served over the
// query channel for the control RPC and project close.
type Snapshot struct {
	ActiveProject       string
	CompositorConnected bool
	Workspaces          []tracker.ProjectWorkspace
}

type snapshotRequest struct {
	reply chan Snapshot
}

// ServicesDocument is the per-project services.json record.
type ServicesDocument struct {
	Project   string                    `json:"project"`
	Services  []supervisor.ServiceState `json:"services"`
	UpdatedAt string                    `json:"updated_at"`
}

// NewCoordinator wires the coordinator to its three inbound channels.
func NewCoordinator(
	cfg *config.Config,
	b *bus.Bus,
	sup *supervisor.Supervisor,
	ingress <-chan events.Event,
	transitions <-chan supervisor.Transition,
	facts <-chan tracker.Fact,
	runID string,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		cfg:         cfg,
		layout:      cfg.Layout(),
		bus:         b,
		sup:         sup,
		logger:      logging.NewComponentLogger(logger, "coordinator"),
		ingress:     ingress,
		transitions: transitions,
		facts:       facts,
		queries:     make(chan snapshotRequest),
		runID:       runID,
		startedAt:   time.Now(),
	}
}

// Start launches the coordination loop.
func (c *Coordinator) Start(ctx context.Context) error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.running {
		return errors.New("coordinator already started")
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.running = true
	c.wg.Add(1)
	go c.run()
	return nil
}

// Stop ends the loop, applies whatever is still queued, and writes the
// final state document.
func (c *Coordinator) Stop() {
	c.stateMu.Lock()
	if !c.running {
		c.stateMu.Unlock()
		return
	}
	c.running = false
	c.cancel()
	c.stateMu.Unlock()

	c.wg.Wait()
	c.drainPending()
	c.persistState()
}

func (c *Coordinator) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.Daemon.PersistInterval())
	defer ticker.Stop()

	c.persistState()

	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.ingress:
			c.handleEvent(ev)
		case tr := <-c.transitions:
			c.handleTransition(tr)
		case fact := <-c.facts:
			c.handleFact(fact)
		case req := <-c.queries:
			req.reply <- c.snapshot()
		case <-ticker.C:
			if c.dirty {
				c.persistState()
			}
		}
	}
}

// drainPending empties the buffered channels after the loop has exited so
// shutdown-time transitions still reach services.json and the bus.
func (c *Coordinator) drainPending() {
	for {
		select {
		case ev := <-c.ingress:
			c.handleEvent(ev)
		case tr := <-c.transitions:
			c.handleTransition(tr)
		case fact := <-c.facts:
			c.handleFact(fact)
		default:
			return
		}
	}
}

// Snapshot returns a copy of coordinator state. It is safe from any
// goroutine; the copy is taken by the coordinator itself between
// messages.
func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	req := snapshotRequest{reply: make(chan Snapshot, 1)}
	select {
	case c.queries <- req:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-c.ctx.Done():
		return Snapshot{}, errors.New("coordinator stopped")
	}
	select {
	case snap := <-req.reply:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (c *Coordinator) snapshot() Snapshot {
	table := make([]tracker.ProjectWorkspace, len(c.table))
	copy(table, c.table)
	return Snapshot{
		ActiveProject:       c.activeProject,
		CompositorConnected: c.connected,
		Workspaces:          table,
	}
}

// handleEvent attaches a priority using the current active project and
// hands the event to the bus.
func (c *Coordinator) handleEvent(ev events.Event) {
	active := ev.Project != "" && ev.Project == c.activeProject
	ev.Priority = bus.Classify(active, ev.Level)
	c.bus.Publish(ev)
	c.dirty = true
}

func (c *Coordinator) handleTransition(tr supervisor.Transition) {
	c.persistServices(tr.Project)
	if ev, ok := serviceEvent(tr); ok {
		c.handleEvent(ev)
	}
}

// serviceEvent maps a lifecycle transition onto at most one bus event.
// Starting and backoff are internal; a stop that follows an exit is
// suppressed because the exit was already announced.
func serviceEvent(tr supervisor.Transition) (events.Event, bool) {
	ev := events.Event{
		Project:   tr.Project,
		Source:    "supervisor",
		Timestamp: events.Stamp(tr.Time),
		Meta:      map[string]any{"service": tr.Service},
	}

	switch tr.Status {
	case supervisor.StatusRunning:
		ev.Level = events.LevelInfo
		if tr.Restarts > 0 {
			ev.Type = events.TypeServiceRestarted
			ev.Title = fmt.Sprintf("%s restarted", tr.Service)
		} else {
			ev.Type = events.TypeServiceStarted
			ev.Title = fmt.Sprintf("%s started", tr.Service)
		}
	case supervisor.StatusExited:
		if tr.ExitCode == 0 {
			ev.Type = events.TypeServiceStopped
			ev.Level = events.LevelInfo
			ev.Title = fmt.Sprintf("%s finished", tr.Service)
		} else {
			ev.Type = events.TypeServiceCrashed
			ev.Level = events.LevelError
			ev.Title = fmt.Sprintf("%s crashed", tr.Service)
			ev.Body = fmt.Sprintf("exit code %d", tr.ExitCode)
			ev.Meta["exit_code"] = tr.ExitCode
		}
	case supervisor.StatusCrashed:
		ev.Type = events.TypeServiceCrashed
		ev.Level = events.LevelError
		ev.Title = fmt.Sprintf("%s crashed", tr.Service)
		ev.Body = fmt.Sprintf("exit code %d", tr.ExitCode)
		ev.Meta["exit_code"] = tr.ExitCode
	case supervisor.StatusStopped:
		if tr.Prev == supervisor.StatusExited || tr.Prev == supervisor.StatusCrashed {
			return events.Event{}, false
		}
		ev.Type = events.TypeServiceStopped
		ev.Level = events.LevelInfo
		ev.Title = fmt.Sprintf("%s stopped", tr.Service)
	case supervisor.StatusFailed:
		ev.Type = events.TypeServiceFailed
		ev.Level = events.LevelError
		ev.Title = fmt.Sprintf("%s gave up", tr.Service)
		ev.Body = fmt.Sprintf("still failing after %d restarts", tr.Restarts)
	default:
		return events.Event{}, false
	}
	return ev, true
}

func (c *Coordinator) handleFact(fact tracker.Fact) {
	switch f := fact.(type) {
	case tracker.ConnectionChanged:
		c.connected = f.Connected
		c.dirty = true
		if !f.Connected && c.activeProject != "" {
			// Stale until reconnect; deliberately not cleared.
			c.logger.Warn("compositor gone, keeping last known active project",
				logging.String(logging.FieldProject, c.activeProject))
		}
	case tracker.ActiveProjectChanged:
		c.activeProject = f.To
		if f.FocusChange {
			if f.From != "" {
				c.handleEvent(compositorEvent(events.TypeWorkspaceDeactivated, f.From, events.LevelInfo, "", ""))
			}
			if f.To != "" {
				c.handleEvent(compositorEvent(events.TypeWorkspaceActivated, f.To, events.LevelInfo, "", ""))
			}
		}
		c.persistState()
	case tracker.ProjectWorkspacesChanged:
		c.table = f.Table
		for _, name := range f.Created {
			c.handleEvent(compositorEvent(events.TypeWorkspaceCreated, name, events.LevelInfo, "", ""))
		}
		for _, name := range f.Destroyed {
			c.handleEvent(compositorEvent(events.TypeWorkspaceDestroyed, name, events.LevelInfo, "", ""))
		}
		c.persistState()
	case tracker.SnapshotReady:
		if err := workspace.WriteSnapshot(c.layout, f.Snapshot); err != nil {
			c.logger.Error("workspace snapshot not saved",
				logging.String(logging.FieldProject, f.Snapshot.Project),
				logging.Error(err))
		}
	case tracker.WindowUrgent:
		c.handleEvent(compositorEvent(events.TypeWindowUrgent, f.Project, events.LevelWarn,
			"Window needs attention", f.Title))
	}
}

func compositorEvent(typ, project, level, title, body string) events.Event {
	return events.Event{
		Type:      typ,
		Project:   project,
		Source:    "daemon",
		Timestamp: events.Stamp(time.Now()),
		Level:     level,
		Title:     title,
		Body:      body,
	}
}

// persistState writes daemon.json. Failure keeps the dirty flag so the
// next tick retries; the previous document stays valid because the write
// is atomic.
func (c *Coordinator) persistState() {
	st := PersistedState{
		PID:                 os.Getpid(),
		RunID:               c.runID,
		StartedAt:           events.Stamp(c.startedAt),
		CompositorConnected: c.connected,
		Workspaces:          workspaceRows(c.table),
		RecentEvents:        c.bus.History(),
		SavedAt:             events.Stamp(time.Now()),
	}
	if c.activeProject != "" {
		name := c.activeProject
		st.ActiveProject = &name
	}
	if err := WriteState(c.layout, st); err != nil {
		c.logger.Error("daemon state not persisted", logging.Error(err))
		return
	}
	c.dirty = false
}

func (c *Coordinator) persistServices(project string) {
	doc := ServicesDocument{
		Project:   project,
		Services:  c.sup.States(project),
		UpdatedAt: events.Stamp(time.Now()),
	}
	if err := c.layout.EnsureProjectDirs(project); err != nil {
		c.logger.Error("service state not persisted", logging.Error(err))
		return
	}
	if err := fileutil.WriteJSONAtomic(c.layout.ServicesState(project), doc); err != nil {
		c.logger.Error("service state not persisted",
			logging.String(logging.FieldProject, project),
			logging.Error(err))
	}
}
