// Package supervisor runs and restarts project service processes. Every
// child is spawned through the shell as its own session leader, so the
// leader pid doubles as the process-group id and one negative-pid signal
// reaches the whole subtree. Lifecycle transitions are reported to the
// coordinator over a channel; the supervisor itself never touches daemon
// state.
package supervisor

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"drift/internal/config"
	"drift/internal/events"
	"drift/internal/logging"
	"drift/internal/paths"
	"drift/internal/project"
)

// Status is a service lifecycle state.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusExited   Status = "exited"
	StatusCrashed  Status = "crashed"
	StatusBackoff  Status = "backoff"
	StatusStopped  Status = "stopped"
	// StatusFailed is terminal: the restart budget is exhausted and the
	// service will not be relaunched.
	StatusFailed Status = "failed-permanently"
)

// Terminal reports whether the status describes a service with no live
// process and no pending relaunch. Exited and crashed never rest: the
// restart policy resolves them to stopped, backoff, or failed within the
// same transition batch.
func (s Status) Terminal() bool {
	return s == StatusStopped || s == StatusFailed
}

// Spec is everything needed to spawn (and respawn) one supervised
// process. The launch command is fully resolved by the caller, including
// agent command construction.
type Spec struct {
	Project     string
	Name        string
	Command     string
	Dir         string
	Env         []string
	Restart     project.RestartPolicy
	StopCommand string
	IsAgent     bool
}

// Transition reports one status change to the coordinator.
type Transition struct {
	Project       string
	Service       string
	Status        Status
	Prev          Status
	PID           int
	ExitCode      int // meaningful for exited and crashed
	Restarts      int
	NextRestartAt time.Time // set for backoff
	Time          time.Time
	IsAgent       bool
}

// ServiceState is one row of the per-project supervisor state record.
type ServiceState struct {
	Name          string  `json:"name"`
	PID           int     `json:"pid,omitempty"`
	Status        Status  `json:"status"`
	Restarts      int     `json:"restart_count"`
	LastExitCode  *int    `json:"last_exit_code"`
	NextRestartAt *string `json:"next_restart_at"`
	StartedAt     string  `json:"started_at,omitempty"`
	IsAgent       bool    `json:"is_agent,omitempty"`
}

// managed is the supervisor's record of one service. All fields are
// guarded by the supervisor mutex; the exited channel is replaced on each
// spawn and closed by that process's watcher.
type managed struct {
	spec        Spec
	status      Status
	pid         int
	restarts    int // total relaunches, for display
	attempts    int // consecutive fast failures, drives backoff
	lastExit    *int
	startedAt   time.Time
	nextRestart time.Time
	backoff     *time.Timer
	exited      chan struct{}
	stopping    bool
}

// Supervisor owns every supervised child process.
type Supervisor struct {
	cfg         config.Supervisor
	layout      paths.Layout
	logger      *slog.Logger
	transitions chan<- Transition

	mu       sync.Mutex
	projects map[string]map[string]*managed
	closed   bool

	done chan struct{}
	wg   sync.WaitGroup
}

// New builds a supervisor reporting transitions on the given channel.
func New(cfg config.Supervisor, layout paths.Layout, transitions chan<- Transition, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		cfg:         cfg,
		layout:      layout,
		logger:      logging.NewComponentLogger(logger, "supervisor"),
		transitions: transitions,
		projects:    make(map[string]map[string]*managed),
		done:        make(chan struct{}),
	}
}

// Start launches one service. A spawn failure is returned to the caller
// and also recorded as an immediate crash so the restart policy applies
// to it. Starting a service that is already live is an error.
func (s *Supervisor) Start(spec Spec) error {
	if err := s.layout.EnsureProjectDirs(spec.Project); err != nil {
		return fmt.Errorf("prepare state dirs for %s: %w", spec.Project, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("supervisor closed")
	}
	services, ok := s.projects[spec.Project]
	if !ok {
		services = make(map[string]*managed)
		s.projects[spec.Project] = services
	}
	if existing, ok := services[spec.Name]; ok && !existing.status.Terminal() {
		s.mu.Unlock()
		return fmt.Errorf("service %s/%s already supervised (%s)", spec.Project, spec.Name, existing.status)
	}

	m := &managed{spec: spec, status: StatusStarting}
	services[spec.Name] = m
	batch := []Transition{s.transition(m, StatusStarting)}
	batch = append(batch, s.launch(m)...)
	s.mu.Unlock()

	s.emit(batch)
	for _, tr := range batch {
		if tr.Status == StatusCrashed {
			return fmt.Errorf("spawn service %s/%s: exited before start", spec.Project, spec.Name)
		}
	}
	return nil
}

// launch spawns the managed service's process and returns the resulting
// transitions. Callers hold the mutex.
func (s *Supervisor) launch(m *managed) []Transition {
	proc, err := spawn(m.spec, s.layout.ServiceLog(m.spec.Project, m.spec.Name))
	if err != nil {
		s.logger.Error("spawn failed",
			logging.String(logging.FieldProject, m.spec.Project),
			logging.String(logging.FieldService, m.spec.Name),
			logging.Error(err))
		code := -1
		m.lastExit = &code
		m.pid = 0
		m.startedAt = time.Time{}
		batch := []Transition{s.transition(m, StatusCrashed)}
		return append(batch, s.resolveExit(m, -1, true)...)
	}

	m.pid = proc.pid
	m.startedAt = time.Now()
	m.nextRestart = time.Time{}
	m.exited = make(chan struct{})
	exited := m.exited

	s.wg.Add(1)
	go s.watch(m, proc, exited)

	s.logger.Info("service running",
		logging.String(logging.FieldProject, m.spec.Project),
		logging.String(logging.FieldService, m.spec.Name),
		logging.Int("pid", m.pid))
	return []Transition{s.transition(m, StatusRunning)}
}

// watch blocks until the child exits, then records the exit and applies
// the restart policy.
func (s *Supervisor) watch(m *managed, proc *process, exited chan struct{}) {
	defer s.wg.Done()

	code, signalled := proc.wait()

	s.mu.Lock()
	m.pid = 0
	m.lastExit = &code
	close(exited)

	var batch []Transition
	if m.stopping || s.closed {
		batch = append(batch, s.transition(m, StatusStopped))
	} else {
		if signalled {
			batch = append(batch, s.transition(m, StatusCrashed))
		} else {
			batch = append(batch, s.transition(m, StatusExited))
		}
		batch = append(batch, s.resolveExit(m, code, signalled)...)
	}
	s.mu.Unlock()

	s.emit(batch)
}

// resolveExit applies the restart policy after a termination already
// reported as exited or crashed. Callers hold the mutex. Only runs
// shorter than the stability threshold count against the restart budget;
// a run that stayed up past it resets the counter.
func (s *Supervisor) resolveExit(m *managed, code int, signalled bool) []Transition {
	fast := m.startedAt.IsZero() || time.Since(m.startedAt) < s.cfg.StabilityThreshold()
	if fast {
		m.attempts++
	} else {
		m.attempts = 0
	}

	switch Decide(m.spec.Restart, code, signalled, m.attempts, s.cfg.MaxRestarts) {
	case ActionRestart:
		delay := Delay(s.cfg.BackoffBase(), s.cfg.BackoffCap(), m.attempts)
		m.nextRestart = time.Now().Add(delay)
		m.backoff = time.AfterFunc(delay, func() { s.relaunch(m) })
		return []Transition{s.transition(m, StatusBackoff)}
	case ActionGiveUp:
		s.logger.Error("service failed permanently",
			logging.String(logging.FieldProject, m.spec.Project),
			logging.String(logging.FieldService, m.spec.Name),
			logging.Int("attempts", m.attempts))
		return []Transition{s.transition(m, StatusFailed)}
	default:
		return []Transition{s.transition(m, StatusStopped)}
	}
}

// relaunch fires when a backoff timer expires.
func (s *Supervisor) relaunch(m *managed) {
	s.mu.Lock()
	if s.closed || m.stopping || m.status != StatusBackoff {
		s.mu.Unlock()
		return
	}
	m.restarts++
	batch := []Transition{s.transition(m, StatusStarting)}
	batch = append(batch, s.launch(m)...)
	s.mu.Unlock()

	s.emit(batch)
}

// Stop terminates one service: the configured stop command if set, else
// SIGTERM to the process group, escalating to SIGKILL after the stop
// timeout. Blocks until the service is down.
func (s *Supervisor) Stop(projectName, name string) error {
	s.mu.Lock()
	m, err := s.lookup(projectName, name)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	batch := s.beginStop(m)
	pid := m.pid
	exited := m.exited
	stopping := m.stopping
	s.mu.Unlock()

	s.emit(batch)
	if !stopping {
		return nil
	}

	s.shutdownProcess(m.spec, pid, exited)
	return nil
}

// beginStop marks a service as stopping and handles the no-process cases
// inline. Callers hold the mutex; the returned transitions are emitted
// after unlock. m.stopping is true afterwards only when a live process
// still needs the signal sequence.
func (s *Supervisor) beginStop(m *managed) []Transition {
	if m.status.Terminal() {
		return nil
	}
	if m.status == StatusBackoff {
		if m.backoff != nil {
			m.backoff.Stop()
		}
		m.nextRestart = time.Time{}
		return []Transition{s.transition(m, StatusStopped)}
	}
	m.stopping = true
	return nil
}

// shutdownProcess runs the graceful-then-forced termination sequence and
// waits for the watcher to observe the exit.
func (s *Supervisor) shutdownProcess(spec Spec, pid int, exited chan struct{}) {
	if pid == 0 {
		return
	}

	if spec.StopCommand != "" {
		if err := runStopCommand(spec, s.cfg.StopTimeout()); err != nil {
			s.logger.Warn("stop command failed",
				logging.String(logging.FieldProject, spec.Project),
				logging.String(logging.FieldService, spec.Name),
				logging.Error(err))
		}
	} else {
		terminateGroup(pid)
	}

	select {
	case <-exited:
		return
	case <-time.After(s.cfg.StopTimeout()):
	}

	s.logger.Warn("service ignored termination, killing group",
		logging.String(logging.FieldProject, spec.Project),
		logging.String(logging.FieldService, spec.Name),
		logging.Int("pid", pid))
	killGroup(pid)
	<-exited
}

// StopAll stops every service under a project concurrently. The total
// wait is bounded by the per-service stop sequence.
func (s *Supervisor) StopAll(projectName string) {
	s.mu.Lock()
	var names []string
	for name := range s.projects[projectName] {
		names = append(names, name)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_ = s.Stop(projectName, name)
		}(name)
	}
	wg.Wait()
}

// Restart stops a service and relaunches it from its recorded spec.
func (s *Supervisor) Restart(projectName, name string) error {
	s.mu.Lock()
	m, err := s.lookup(projectName, name)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	spec := m.spec
	s.mu.Unlock()

	if err := s.Stop(projectName, name); err != nil {
		return err
	}
	return s.Start(spec)
}

// Drop removes a project's service records entirely; callers stop the
// services first. Used at project close so a reopened project starts from
// a clean slate.
func (s *Supervisor) Drop(projectName string) {
	s.mu.Lock()
	delete(s.projects, projectName)
	s.mu.Unlock()
}

// States returns the project's service records sorted by name.
func (s *Supervisor) States(projectName string) []ServiceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statesLocked(projectName)
}

// Projects returns every project with supervised services.
func (s *Supervisor) Projects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.projects))
	for name := range s.projects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Supervisor) statesLocked(projectName string) []ServiceState {
	services := s.projects[projectName]
	states := make([]ServiceState, 0, len(services))
	for _, m := range services {
		state := ServiceState{
			Name:         m.spec.Name,
			PID:          m.pid,
			Status:       m.status,
			Restarts:     m.restarts,
			LastExitCode: m.lastExit,
			IsAgent:      m.spec.IsAgent,
		}
		if !m.startedAt.IsZero() && m.status == StatusRunning {
			state.StartedAt = events.Stamp(m.startedAt)
		}
		if !m.nextRestart.IsZero() && m.status == StatusBackoff {
			stamp := events.Stamp(m.nextRestart)
			state.NextRestartAt = &stamp
		}
		states = append(states, state)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Name < states[j].Name })
	return states
}

// Close stops every service and waits for the watchers. Transitions
// queued during shutdown are delivered best-effort.
func (s *Supervisor) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	projects := make([]string, 0, len(s.projects))
	for name := range s.projects {
		projects = append(projects, name)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, name := range projects {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			s.StopAll(name)
		}(name)
	}
	wg.Wait()

	close(s.done)
	s.wg.Wait()
}

func (s *Supervisor) lookup(projectName, name string) (*managed, error) {
	m, ok := s.projects[projectName][name]
	if !ok {
		return nil, fmt.Errorf("service %s/%s not supervised", projectName, name)
	}
	return m, nil
}

// transition records a status change, appends the supervisor log line,
// and returns the message for the coordinator. Callers hold the mutex.
func (s *Supervisor) transition(m *managed, next Status) Transition {
	prev := m.status
	m.status = next
	tr := Transition{
		Project:  m.spec.Project,
		Service:  m.spec.Name,
		Status:   next,
		Prev:     prev,
		PID:      m.pid,
		Restarts: m.restarts,
		Time:     time.Now(),
		IsAgent:  m.spec.IsAgent,
	}
	if m.lastExit != nil {
		tr.ExitCode = *m.lastExit
	}
	if next == StatusBackoff {
		tr.NextRestartAt = m.nextRestart
	}
	s.appendLog(tr)
	return tr
}

// appendLog writes one line to the project's supervisor log. Failures are
// ignored; the log is advisory.
func (s *Supervisor) appendLog(tr Transition) {
	path := s.layout.SupervisorLog(tr.Project)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer file.Close()

	line := fmt.Sprintf("%s %s: %s", events.Stamp(tr.Time), tr.Service, tr.Status)
	switch tr.Status {
	case StatusRunning:
		line += fmt.Sprintf(" (pid %d)", tr.PID)
	case StatusExited, StatusCrashed:
		line += fmt.Sprintf(" (exit %d)", tr.ExitCode)
	case StatusBackoff:
		line += fmt.Sprintf(" (retry at %s)", events.Stamp(tr.NextRestartAt))
	}
	fmt.Fprintln(file, line)
}

// emit delivers transitions in order, giving up at supervisor close so a
// vanished coordinator cannot wedge watcher goroutines.
func (s *Supervisor) emit(batch []Transition) {
	for _, tr := range batch {
		select {
		case s.transitions <- tr:
		case <-s.done:
			return
		}
	}
}
