// Package workspace builds and persists per-project workspace snapshots
// and the session record consulted on cold restores.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"drift/internal/compositor"
	"drift/internal/events"
	"drift/internal/fileutil"
	"drift/internal/paths"
)

// Snapshot records one project's windows and workspace placement at save
// time. It is written whenever the project's workspace loses focus and on
// explicit save, and read when deciding how to restore a project.
type Snapshot struct {
	Project    string              `json:"project"`
	SavedAt    string              `json:"saved_at"`
	Windows    []SnapshotWindow    `json:"windows"`
	Workspaces []SnapshotWorkspace `json:"workspaces"`
}

// SnapshotWindow is one saved window.
type SnapshotWindow struct {
	ID          uint64 `json:"id"`
	App         string `json:"app"`
	Title       string `json:"title"`
	WorkspaceID uint64 `json:"workspace"`
}

// SnapshotWorkspace is one saved workspace-to-output assignment.
type SnapshotWorkspace struct {
	ID     uint64 `json:"id"`
	Name   string `json:"name"`
	Output string `json:"output"`
}

// BuildSnapshot derives a project's snapshot from compositor primitives:
// the workspaces named after the project and every window assigned to one
// of them.
func BuildSnapshot(project string, now time.Time, workspaces []compositor.Workspace, windows []compositor.Window) Snapshot {
	snap := Snapshot{
		Project: project,
		SavedAt: events.Stamp(now),
	}

	owned := make(map[uint64]struct{})
	for _, ws := range workspaces {
		if ws.Name != project {
			continue
		}
		owned[ws.ID] = struct{}{}
		snap.Workspaces = append(snap.Workspaces, SnapshotWorkspace{
			ID:     ws.ID,
			Name:   ws.Name,
			Output: ws.Output,
		})
	}
	for _, win := range windows {
		if _, ok := owned[win.WorkspaceID]; !ok {
			continue
		}
		snap.Windows = append(snap.Windows, SnapshotWindow{
			ID:          win.ID,
			App:         win.AppID,
			Title:       win.Title,
			WorkspaceID: win.WorkspaceID,
		})
	}

	sort.Slice(snap.Workspaces, func(i, j int) bool { return snap.Workspaces[i].ID < snap.Workspaces[j].ID })
	sort.Slice(snap.Windows, func(i, j int) bool { return snap.Windows[i].ID < snap.Windows[j].ID })
	return snap
}

// WriteSnapshot persists the snapshot atomically under the project's state
// directory.
func WriteSnapshot(layout paths.Layout, snap Snapshot) error {
	if err := layout.EnsureProjectDirs(snap.Project); err != nil {
		return err
	}
	if err := fileutil.WriteJSONAtomic(layout.WorkspaceSnapshot(snap.Project), snap); err != nil {
		return fmt.Errorf("write workspace snapshot for %s: %w", snap.Project, err)
	}
	return nil
}

// LoadSnapshot reads a project's snapshot; a missing file returns nil.
func LoadSnapshot(layout paths.Layout, project string) (*Snapshot, error) {
	var snap Snapshot
	if err := fileutil.ReadJSON(layout.WorkspaceSnapshot(project), &snap); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("load workspace snapshot for %s: %w", project, err)
	}
	return &snap, nil
}
