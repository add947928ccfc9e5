package daemon

import (
	"errors"
	"fmt"
	"os"

	"drift/internal/events"
	"drift/internal/fileutil"
	"drift/internal/paths"
	"drift/internal/tracker"
)

// PersistedState is the daemon.json document: a point-in-time export of
// coordinator state plus each project's buffered event history. The CLI
// reads it for status and event history, live or post-mortem.
type PersistedState struct {
	PID                 int                       `json:"pid"`
	RunID               string                    `json:"run_id,omitempty"`
	StartedAt           string                    `json:"started_at,omitempty"`
	ActiveProject       *string                   `json:"active_project"`
	CompositorConnected bool                      `json:"compositor_connected"`
	Workspaces          []WorkspaceRow            `json:"workspace_projects"`
	RecentEvents        map[string][]events.Event `json:"recent_events"`
	SavedAt             string                    `json:"saved_at,omitempty"`
}

// WorkspaceRow is one persisted workspace-to-project assignment.
type WorkspaceRow struct {
	WorkspaceID   uint64 `json:"workspace_id"`
	WorkspaceName string `json:"workspace_name"`
	Project       string `json:"project"`
	Output        string `json:"output,omitempty"`
	IsActive      bool   `json:"is_active"`
	IsFocused     bool   `json:"is_focused"`
	WindowCount   int    `json:"window_count"`
}

func workspaceRows(table []tracker.ProjectWorkspace) []WorkspaceRow {
	rows := make([]WorkspaceRow, 0, len(table))
	for _, pw := range table {
		rows = append(rows, WorkspaceRow{
			WorkspaceID:   pw.WorkspaceID,
			WorkspaceName: pw.WorkspaceName,
			Project:       pw.Project,
			Output:        pw.Output,
			IsActive:      pw.IsActive,
			IsFocused:     pw.IsFocused,
			WindowCount:   pw.WindowCount,
		})
	}
	return rows
}

// WriteState persists the daemon state document atomically.
func WriteState(layout paths.Layout, st PersistedState) error {
	if err := fileutil.WriteJSONAtomic(layout.DaemonState(), st); err != nil {
		return fmt.Errorf("write daemon state: %w", err)
	}
	return nil
}

// LoadState reads the daemon state document; a missing file returns nil.
func LoadState(layout paths.Layout) (*PersistedState, error) {
	var st PersistedState
	if err := fileutil.ReadJSON(layout.DaemonState(), &st); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("load daemon state: %w", err)
	}
	return &st, nil
}
