package tracker

import "drift/internal/workspace"

// Fact is one derived update the tracker hands to the coordinator; the
// concrete types below are the full set.
type Fact interface{ fact() }

// ConnectionChanged reports the compositor stream coming up or going down.
// While down, compositor-derived state is stale but retained.
type ConnectionChanged struct {
	Connected bool
}

// ActiveProjectChanged reports the active project switching. Empty strings
// mean no project. FocusChange distinguishes a user focus move, which is
// announced on the bus, from a recomputation after the workspace table
// changed shape, which is not.
type ActiveProjectChanged struct {
	From        string
	To          string
	FocusChange bool
}

// ProjectWorkspacesChanged carries the current workspace table plus the
// projects whose workspaces appeared or vanished since the last table.
type ProjectWorkspacesChanged struct {
	Created   []string
	Destroyed []string
	Table     []ProjectWorkspace
}

// ProjectWorkspace is one row of the workspace-to-project table.
type ProjectWorkspace struct {
	WorkspaceID   uint64
	WorkspaceName string
	Project       string
	Output        string
	IsActive      bool
	IsFocused     bool
	WindowCount   int
}

// SnapshotReady carries a freshly built snapshot of a project whose
// workspace just lost focus; the coordinator persists it.
type SnapshotReady struct {
	Snapshot workspace.Snapshot
}

// WindowUrgent reports a window raising its urgency hint on a project
// workspace.
type WindowUrgent struct {
	Project string
	Title   string
}

func (ConnectionChanged) fact()        {}
func (ActiveProjectChanged) fact()     {}
func (ProjectWorkspacesChanged) fact() {}
func (SnapshotReady) fact()            {}
func (WindowUrgent) fact()             {}
