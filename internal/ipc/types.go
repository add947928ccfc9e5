package ipc

import (
	"drift/internal/daemon"
	"drift/internal/supervisor"
)

// StopRequest asks the daemon to shut down its components.
type StopRequest struct{}

// StopResponse confirms shutdown began.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// ServiceInfo is one supervised service row as reported over IPC.
type ServiceInfo = supervisor.ServiceState

// OpenResult mirrors the daemon's open report for IPC callers.
type OpenResult = daemon.OpenResult

// CloseResult mirrors the daemon's close report for IPC callers.
type CloseResult = daemon.CloseResult

// WorkspaceInfo is one workspace-to-project assignment.
type WorkspaceInfo struct {
	WorkspaceID   uint64 `json:"workspace_id"`
	WorkspaceName string `json:"workspace_name"`
	Project       string `json:"project"`
	Output        string `json:"output,omitempty"`
	IsActive      bool   `json:"is_active"`
	IsFocused     bool   `json:"is_focused"`
	WindowCount   int    `json:"window_count"`
}

// BusInfo summarizes notification bus counters.
type BusInfo struct {
	Subscribers     int    `json:"subscribers"`
	BufferedEvents  int    `json:"buffered_events"`
	MalformedEvents uint64 `json:"malformed_events"`
	DroppedEvents   uint64 `json:"dropped_events"`
}

// StatusResponse is the combined daemon status report.
type StatusResponse struct {
	Running             bool                     `json:"running"`
	PID                 int                      `json:"pid"`
	RunID               string                   `json:"run_id"`
	StartedAt           string                   `json:"started_at"`
	ActiveProject       string                   `json:"active_project"`
	CompositorConnected bool                     `json:"compositor_connected"`
	Workspaces          []WorkspaceInfo          `json:"workspaces"`
	Services            map[string][]ServiceInfo `json:"services"`
	Bus                 BusInfo                  `json:"bus"`
	CPUPercent          float64                  `json:"cpu_percent"`
	MemoryRSS           uint64                   `json:"memory_rss"`
}

// OpenProjectRequest opens a project workspace.
type OpenProjectRequest struct {
	Name string `json:"name"`
}

// OpenProjectResponse reports what opening did.
type OpenProjectResponse struct {
	Result OpenResult `json:"result"`
}

// CloseProjectRequest closes a project workspace.
type CloseProjectRequest struct {
	Name string `json:"name"`
}

// CloseProjectResponse reports what closing did.
type CloseProjectResponse struct {
	Result CloseResult `json:"result"`
}

// RestartServiceRequest restarts one supervised service in place.
type RestartServiceRequest struct {
	Project string `json:"project"`
	Service string `json:"service"`
}

// RestartServiceResponse confirms the restart was initiated.
type RestartServiceResponse struct {
	Restarted bool `json:"restarted"`
}
