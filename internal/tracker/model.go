package tracker

import (
	"sort"
	"time"

	"drift/internal/compositor"
	"drift/internal/workspace"
)

// model is the tracker's view of compositor primitives. Only the consume
// loop touches it; apply folds one stream event into the model and returns
// the facts the coordinator must observe, in order.
type model struct {
	workspaces       map[uint64]compositor.Workspace
	windows          map[uint64]compositor.Window
	workspaceProject map[uint64]string
	focusedWorkspace uint64
	activeProject    string
	lastTable        []ProjectWorkspace
}

func newModel() *model {
	return &model{
		workspaces:       make(map[uint64]compositor.Workspace),
		windows:          make(map[uint64]compositor.Window),
		workspaceProject: make(map[uint64]string),
	}
}

func (m *model) apply(ev compositor.Event, known func() map[string]struct{}, now time.Time) []Fact {
	switch {
	case ev.WorkspacesChanged != nil:
		return m.applyWorkspaces(ev.WorkspacesChanged.Workspaces, known())
	case ev.WorkspaceActivated != nil:
		return m.applyWorkspaceActivated(ev.WorkspaceActivated.ID, ev.WorkspaceActivated.Focused, now)
	case ev.WindowsChanged != nil:
		m.windows = make(map[uint64]compositor.Window, len(ev.WindowsChanged.Windows))
		for _, win := range ev.WindowsChanged.Windows {
			m.windows[win.ID] = win
		}
		return m.tableFacts(nil, nil)
	case ev.WindowOpenedOrChanged != nil:
		win := ev.WindowOpenedOrChanged.Window
		m.windows[win.ID] = win
		return m.tableFacts(nil, nil)
	case ev.WindowClosed != nil:
		delete(m.windows, ev.WindowClosed.ID)
		return m.tableFacts(nil, nil)
	case ev.WindowFocusChanged != nil:
		for id, win := range m.windows {
			win.IsFocused = id == ev.WindowFocusChanged.ID
			m.windows[id] = win
		}
		return nil
	case ev.WindowUrgencyChanged != nil:
		return m.applyUrgency(ev.WindowUrgencyChanged.ID, ev.WindowUrgencyChanged.Urgent)
	default:
		return nil
	}
}

// applyWorkspaces replaces the workspace set, diffs the project mapping,
// and recomputes the active project from whichever workspace now holds
// focus.
func (m *model) applyWorkspaces(workspaces []compositor.Workspace, known map[string]struct{}) []Fact {
	old := projectSet(m.workspaceProject)

	m.workspaces = make(map[uint64]compositor.Workspace, len(workspaces))
	m.focusedWorkspace = 0
	for _, ws := range workspaces {
		m.workspaces[ws.ID] = ws
		if ws.IsFocused {
			m.focusedWorkspace = ws.ID
		}
	}

	m.workspaceProject = make(map[uint64]string)
	for id, ws := range m.workspaces {
		if ws.Name == "" {
			continue
		}
		if _, ok := known[ws.Name]; ok {
			m.workspaceProject[id] = ws.Name
		}
	}

	current := projectSet(m.workspaceProject)
	var created, destroyed []string
	for project := range current {
		if _, ok := old[project]; !ok {
			created = append(created, project)
		}
	}
	for project := range old {
		if _, ok := current[project]; !ok {
			destroyed = append(destroyed, project)
		}
	}
	sort.Strings(created)
	sort.Strings(destroyed)

	facts := m.tableFacts(created, destroyed)
	if active := m.workspaceProject[m.focusedWorkspace]; active != m.activeProject {
		facts = append(facts, ActiveProjectChanged{From: m.activeProject, To: active})
		m.activeProject = active
	}
	return facts
}

// applyWorkspaceActivated mirrors the compositor's activation rules: one
// active workspace per output, at most one focused workspace globally. A
// focus move away from a project workspace yields a snapshot of that
// project first.
func (m *model) applyWorkspaceActivated(id uint64, focused bool, now time.Time) []Fact {
	var facts []Fact

	if focused && m.focusedWorkspace != 0 && m.focusedWorkspace != id {
		if project, ok := m.workspaceProject[m.focusedWorkspace]; ok {
			facts = append(facts, SnapshotReady{
				Snapshot: workspace.BuildSnapshot(project, now, m.workspaceList(), m.windowList()),
			})
		}
	}

	if ws, ok := m.workspaces[id]; ok {
		for wsID, other := range m.workspaces {
			if other.Output == ws.Output {
				other.IsActive = wsID == id
			}
			if focused {
				other.IsFocused = wsID == id
			}
			m.workspaces[wsID] = other
		}
	}

	if focused {
		m.focusedWorkspace = id
		if active := m.workspaceProject[id]; active != m.activeProject {
			facts = append(facts, ActiveProjectChanged{From: m.activeProject, To: active, FocusChange: true})
			m.activeProject = active
		}
	}

	return append(facts, m.tableFacts(nil, nil)...)
}

func (m *model) applyUrgency(id uint64, urgent bool) []Fact {
	win, ok := m.windows[id]
	if !ok {
		return nil
	}
	win.IsUrgent = urgent
	m.windows[id] = win
	if !urgent {
		return nil
	}
	project, ok := m.workspaceProject[win.WorkspaceID]
	if !ok {
		return nil
	}
	return []Fact{WindowUrgent{Project: project, Title: win.Title}}
}

// tableFacts recomputes the workspace table and reports it when it differs
// from the last one emitted.
func (m *model) tableFacts(created, destroyed []string) []Fact {
	table := m.buildTable()
	if len(created) == 0 && len(destroyed) == 0 && tablesEqual(table, m.lastTable) {
		return nil
	}
	m.lastTable = table
	return []Fact{ProjectWorkspacesChanged{Created: created, Destroyed: destroyed, Table: table}}
}

func (m *model) buildTable() []ProjectWorkspace {
	table := make([]ProjectWorkspace, 0, len(m.workspaceProject))
	for wsID, project := range m.workspaceProject {
		ws := m.workspaces[wsID]
		count := 0
		for _, win := range m.windows {
			if win.WorkspaceID == wsID {
				count++
			}
		}
		table = append(table, ProjectWorkspace{
			WorkspaceID:   ws.ID,
			WorkspaceName: ws.Name,
			Project:       project,
			Output:        ws.Output,
			IsActive:      ws.IsActive,
			IsFocused:     ws.IsFocused,
			WindowCount:   count,
		})
	}
	sort.Slice(table, func(i, j int) bool { return table[i].WorkspaceID < table[j].WorkspaceID })
	return table
}

func (m *model) workspaceList() []compositor.Workspace {
	list := make([]compositor.Workspace, 0, len(m.workspaces))
	for _, ws := range m.workspaces {
		list = append(list, ws)
	}
	return list
}

func (m *model) windowList() []compositor.Window {
	list := make([]compositor.Window, 0, len(m.windows))
	for _, win := range m.windows {
		list = append(list, win)
	}
	return list
}

func projectSet(mapping map[uint64]string) map[string]struct{} {
	set := make(map[string]struct{}, len(mapping))
	for _, project := range mapping {
		set[project] = struct{}{}
	}
	return set
}

func tablesEqual(a, b []ProjectWorkspace) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
