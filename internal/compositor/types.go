package compositor

// Workspace is a compositor workspace, reduced to the fields the daemon
// consumes. An empty Name means the workspace is unnamed.
type Workspace struct {
	ID        uint64 `json:"id"`
	Index     uint8  `json:"idx"`
	Name      string `json:"name"`
	Output    string `json:"output"`
	IsActive  bool   `json:"is_active"`
	IsFocused bool   `json:"is_focused"`
	IsUrgent  bool   `json:"is_urgent"`
}

// Window is a compositor window. WorkspaceID zero means the window is not
// assigned to any workspace; the compositor never issues id zero.
type Window struct {
	ID          uint64 `json:"id"`
	Title       string `json:"title"`
	AppID       string `json:"app_id"`
	PID         int32  `json:"pid"`
	WorkspaceID uint64 `json:"workspace_id"`
	IsFocused   bool   `json:"is_focused"`
	IsUrgent    bool   `json:"is_urgent"`
}

// Output is a connected monitor.
type Output struct {
	Name  string `json:"name"`
	Make  string `json:"make"`
	Model string `json:"model"`
}

// Event is one message from the compositor event stream. Exactly one field
// is non-nil, matching the upstream externally-tagged encoding; messages
// the daemon does not consume decode with every field nil and are skipped.
type Event struct {
	WorkspacesChanged     *WorkspacesChangedEvent     `json:"WorkspacesChanged,omitempty"`
	WorkspaceActivated    *WorkspaceActivatedEvent    `json:"WorkspaceActivated,omitempty"`
	WindowsChanged        *WindowsChangedEvent        `json:"WindowsChanged,omitempty"`
	WindowOpenedOrChanged *WindowOpenedOrChangedEvent `json:"WindowOpenedOrChanged,omitempty"`
	WindowClosed          *WindowClosedEvent          `json:"WindowClosed,omitempty"`
	WindowFocusChanged    *WindowFocusChangedEvent    `json:"WindowFocusChanged,omitempty"`
	WindowUrgencyChanged  *WindowUrgencyChangedEvent  `json:"WindowUrgencyChanged,omitempty"`
}

// WorkspacesChangedEvent replaces the full workspace set.
type WorkspacesChangedEvent struct {
	Workspaces []Workspace `json:"workspaces"`
}

// WorkspaceActivatedEvent reports a workspace becoming active on its
// output; Focused additionally moves keyboard focus there.
type WorkspaceActivatedEvent struct {
	ID      uint64 `json:"id"`
	Focused bool   `json:"focused"`
}

// WindowsChangedEvent replaces the full window set.
type WindowsChangedEvent struct {
	Windows []Window `json:"windows"`
}

// WindowOpenedOrChangedEvent upserts one window.
type WindowOpenedOrChangedEvent struct {
	Window Window `json:"window"`
}

// WindowClosedEvent removes one window.
type WindowClosedEvent struct {
	ID uint64 `json:"id"`
}

// WindowFocusChangedEvent moves focus; ID zero means no window is focused.
type WindowFocusChangedEvent struct {
	ID uint64 `json:"id"`
}

// WindowUrgencyChangedEvent flips a window's urgency hint.
type WindowUrgencyChangedEvent struct {
	ID     uint64 `json:"id"`
	Urgent bool   `json:"urgent"`
}
