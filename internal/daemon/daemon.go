package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"drift/internal/bus"
	"drift/internal/compositor"
	"drift/internal/config"
	"drift/internal/events"
	"drift/internal/logging"
	"drift/internal/paths"
	"drift/internal/project"
	"drift/internal/supervisor"
	"drift/internal/tracker"
)

// Channel capacities between the workers and the coordinator. Producers
// block when the coordinator falls behind; none of these are drop points.
const (
	ingressBuffer    = 256
	transitionBuffer = 64
	factBuffer       = 256
)

// Daemon owns the long-running components and enforces single-instance
// execution through a lock file.
type Daemon struct {
	cfg      *config.Config
	layout   paths.Layout
	logger   *slog.Logger
	registry *project.Registry

	lock  *flock.Flock
	runID string

	ingress     chan events.Event
	transitions chan supervisor.Transition
	facts       chan tracker.Fact

	bus   *bus.Bus
	sup   *supervisor.Supervisor
	track *tracker.Tracker
	coord *Coordinator

	dialCompositor func() (CompositorClient, error)
	trackerOpen    tracker.OpenFunc

	// Serializes open/close orchestration and the session file writes
	// they make.
	opMu sync.Mutex

	running atomic.Bool
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
}

// Option adjusts daemon construction; used by tests to substitute the
// compositor.
type Option func(*Daemon)

// WithCompositorDialer replaces the request-connection dialer.
func WithCompositorDialer(dial func() (CompositorClient, error)) Option {
	return func(d *Daemon) { d.dialCompositor = dial }
}

// WithTrackerSource replaces the event-stream opener.
func WithTrackerSource(open tracker.OpenFunc) Option {
	return func(d *Daemon) { d.trackerOpen = open }
}

// New wires up the daemon's components without starting anything.
func New(cfg *config.Config, registry *project.Registry, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || registry == nil {
		return nil, errors.New("daemon requires config and registry")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	layout := cfg.Layout()

	d := &Daemon{
		cfg:         cfg,
		layout:      layout,
		logger:      logging.NewComponentLogger(logger, "daemon"),
		registry:    registry,
		lock:        flock.New(layout.DaemonLock()),
		runID:       uuid.NewString(),
		ingress:     make(chan events.Event, ingressBuffer),
		transitions: make(chan supervisor.Transition, transitionBuffer),
		facts:       make(chan tracker.Fact, factBuffer),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.dialCompositor == nil {
		d.dialCompositor = func() (CompositorClient, error) { return compositor.Dial() }
	}

	d.bus = bus.New(cfg, d.ingress, logger)
	d.sup = supervisor.New(cfg.Supervisor, layout, d.transitions, logger)
	d.track = tracker.New(d.facts, d.knownProjects, d.trackerOpen, logger)
	d.coord = NewCoordinator(cfg, d.bus, d.sup, d.ingress, d.transitions, d.facts, d.runID, logger)
	return d, nil
}

// RunID identifies this daemon process lifetime in logs and state.
func (d *Daemon) RunID() string { return d.runID }

// Done is closed once Stop has finished. The daemon process waits on it
// so a stop request over the control socket ends the process, not just
// the workers.
func (d *Daemon) Done() <-chan struct{} { return d.done }

// Start acquires the instance lock and brings up the bus, coordinator,
// and tracker. A bus bind failure is fatal; a missing compositor is not,
// the tracker keeps retrying in the background.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	locked, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !locked {
		return errors.New("another drift daemon is already running")
	}

	if err := d.layout.EnsureBaseDirs(); err != nil {
		_ = d.lock.Unlock()
		return err
	}
	if err := d.writePIDFile(); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	if err := d.bus.Start(d.ctx); err != nil {
		d.releaseInstance()
		return err
	}
	if err := d.coord.Start(d.ctx); err != nil {
		d.bus.Stop()
		d.releaseInstance()
		return err
	}
	if err := d.track.Start(d.ctx); err != nil {
		d.coord.Stop()
		d.bus.Stop()
		d.releaseInstance()
		return err
	}

	d.running.Store(true)
	d.logger.Info("drift daemon started",
		logging.Int("pid", os.Getpid()),
		logging.String("run_id", d.runID),
		logging.Int("projects", d.registry.Len()))
	return nil
}

// Stop tears the daemon down in dependency order: no new compositor
// facts, then services (their final transitions still reach the
// coordinator), then the coordinator's final persist, then the bus
// sockets.
func (d *Daemon) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}

	d.track.Stop()
	d.sup.Close()
	d.coord.Stop()
	d.bus.Stop()

	if d.cancel != nil {
		d.cancel()
	}
	d.releaseInstance()
	d.logger.Info("drift daemon stopped")
	close(d.done)
}

// Close is Stop for defer call sites.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

func (d *Daemon) releaseInstance() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("daemon lock not released", logging.Error(err))
	}
	_ = os.Remove(d.layout.DaemonPID())
}

func (d *Daemon) writePIDFile() error {
	value := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(d.layout.DaemonPID(), []byte(value), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

func (d *Daemon) knownProjects() map[string]struct{} {
	return d.registry.Names()
}

// deliver feeds an orchestration-produced event into the coordinator so
// it is classified and broadcast like any other event.
func (d *Daemon) deliver(ev events.Event) {
	if d.ctx == nil {
		return
	}
	select {
	case d.ingress <- ev:
	case <-d.ctx.Done():
	}
}

func daemonEvent(typ, projectName, title string) events.Event {
	return events.Event{
		Type:      typ,
		Project:   projectName,
		Source:    "daemon",
		Timestamp: events.Stamp(time.Now()),
		Level:     events.LevelInfo,
		Title:     title,
	}
}
