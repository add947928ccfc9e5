package daemon

import (
	"context"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"drift/internal/bus"
	"drift/internal/supervisor"
	"drift/internal/tracker"
)

// Status is the daemon's runtime report served over the control socket.
type Status struct {
	Running             bool
	PID                 int
	RunID               string
	StartedAt           time.Time
	ActiveProject       string
	CompositorConnected bool
	Workspaces          []tracker.ProjectWorkspace
	Services            map[string][]supervisor.ServiceState
	Bus                 bus.Stats
	CPUPercent          float64
	MemoryRSS           uint64
}

// Status collects a consistent view across the components. The
// coordinator snapshot is taken through its query channel, so it never
// observes a half-applied message.
func (d *Daemon) Status(ctx context.Context) Status {
	st := Status{
		Running:   d.running.Load(),
		PID:       os.Getpid(),
		RunID:     d.runID,
		StartedAt: d.coord.startedAt,
	}

	if st.Running {
		if snap, err := d.coord.Snapshot(ctx); err == nil {
			st.ActiveProject = snap.ActiveProject
			st.CompositorConnected = snap.CompositorConnected
			st.Workspaces = snap.Workspaces
		}
		st.Services = make(map[string][]supervisor.ServiceState)
		for _, name := range d.sup.Projects() {
			st.Services[name] = d.sup.States(name)
		}
		st.Bus = d.bus.Stats()
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			st.CPUPercent = cpu
		}
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			st.MemoryRSS = mem.RSS
		}
	}
	return st
}
