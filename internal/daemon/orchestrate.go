package daemon

import (
	"context"
	"fmt"
	"os"
	"time"

	"drift/internal/compositor"
	"drift/internal/events"
	"drift/internal/logging"
	"drift/internal/project"
	"drift/internal/supervisor"
	"drift/internal/workspace"
)

// CompositorClient is the slice of the compositor request surface that
// project orchestration uses. *compositor.Client satisfies it; tests
// substitute scripted fakes.
type CompositorClient interface {
	Workspaces() ([]compositor.Workspace, error)
	Windows() ([]compositor.Window, error)
	FindWorkspaceByName(name string) (*compositor.Workspace, error)
	FocusWorkspace(name string) error
	CreateNamedWorkspace(name string) error
	UnsetWorkspaceName(name string) error
	Spawn(command []string) error
	CloseWindow(id uint64) error
	Close() error
}

var _ CompositorClient = (*compositor.Client)(nil)

// OpenResult reports what opening a project did.
type OpenResult struct {
	Project  string `json:"project"`
	Focused  bool   `json:"focused"`
	Windows  int    `json:"windows"`
	Services int    `json:"services"`
	Agents   int    `json:"agents"`
}

// CloseResult reports what closing a project did.
type CloseResult struct {
	Project         string `json:"project"`
	ServicesStopped int    `json:"services_stopped"`
	WindowsClosed   int    `json:"windows_closed"`
	SnapshotSaved   bool   `json:"snapshot_saved"`
}

// OpenProject brings a project's workspace up. When the named workspace
// already exists it is only refocused; otherwise a fresh workspace is
// created, declared windows are spawned in terminals, interactive agents
// get their own terminals, and everything else goes to the supervisor.
func (d *Daemon) OpenProject(ctx context.Context, name string) (OpenResult, error) {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	proj, err := d.registry.Get(name)
	if err != nil {
		return OpenResult{}, err
	}

	client, err := d.dialCompositor()
	if err != nil {
		return OpenResult{}, fmt.Errorf("compositor: %w", err)
	}
	defer client.Close()

	res := OpenResult{Project: name}

	existing, err := client.FindWorkspaceByName(name)
	if err != nil {
		return res, err
	}
	if existing != nil {
		if err := client.FocusWorkspace(name); err != nil {
			return res, err
		}
		res.Focused = true
		d.recordSessionAdd(name)
		return res, nil
	}

	if err := client.CreateNamedWorkspace(name); err != nil {
		return res, fmt.Errorf("create workspace %s: %w", name, err)
	}

	repo, err := proj.RepoPath()
	if err != nil {
		return res, err
	}
	env, err := project.BuildEnv(proj, repo, d.layout)
	if err != nil {
		return res, err
	}
	exports := project.FormatEnvExports(env)
	terminal := d.cfg.Defaults.Terminal

	if len(proj.Windows) == 0 {
		if err := client.Spawn(terminalCommand(terminal, name, "", exports, repo, "")); err != nil {
			return res, fmt.Errorf("spawn default window: %w", err)
		}
		res.Windows = 1
	}
	for _, win := range proj.Windows {
		if err := client.Spawn(terminalCommand(terminal, name, win.Name, exports, repo, win.Command)); err != nil {
			return res, fmt.Errorf("spawn window %s: %w", win.Name, err)
		}
		res.Windows++
	}

	if proj.Scratchpad != nil {
		cmd := proj.Scratchpad.Command(d.cfg.Defaults.Editor)
		if err := client.Spawn(terminalCommand(terminal, name, "scratchpad", exports, repo, cmd)); err != nil {
			return res, fmt.Errorf("spawn scratchpad: %w", err)
		}
		res.Windows++
	}

	for _, svc := range proj.Services.Processes {
		if svc.Interactive() {
			cmd := project.LaunchCommand(svc, name)
			if err := client.Spawn(terminalCommand(terminal, name, svc.Name, exports, repo, cmd)); err != nil {
				return res, fmt.Errorf("spawn agent %s: %w", svc.Name, err)
			}
			res.Agents++
			continue
		}

		spec := supervisor.Spec{
			Project:     name,
			Name:        svc.Name,
			Command:     project.LaunchCommand(svc, name),
			Dir:         project.ServiceDir(repo, svc),
			Env:         append(os.Environ(), project.EnvPairs(env)...),
			Restart:     svc.Restart,
			StopCommand: svc.StopCommand,
			IsAgent:     svc.IsAgent(),
		}
		if err := d.sup.Start(spec); err != nil {
			// Recorded as a crash by the supervisor; the project still
			// opens.
			d.logger.Error("service not started",
				logging.String(logging.FieldProject, name),
				logging.String(logging.FieldService, svc.Name),
				logging.Error(err))
			continue
		}
		res.Services++
	}

	d.recordSessionAdd(name)
	d.deliver(daemonEvent(events.TypeProjectOpened, name, fmt.Sprintf("Opened project '%s'", name)))
	return res, nil
}

// CloseProject tears a project's workspace down: snapshot first, then
// services, then windows, then the workspace name. It works for any
// project with a named workspace, registered or not.
func (d *Daemon) CloseProject(ctx context.Context, name string) (CloseResult, error) {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	res := CloseResult{Project: name}

	client, err := d.dialCompositor()
	if err != nil {
		return res, fmt.Errorf("compositor: %w", err)
	}
	defer client.Close()

	workspaces, err := client.Workspaces()
	if err != nil {
		return res, err
	}
	windows, err := client.Windows()
	if err != nil {
		return res, err
	}

	snap := workspace.BuildSnapshot(name, time.Now(), workspaces, windows)
	if len(snap.Workspaces) > 0 {
		if err := workspace.WriteSnapshot(d.layout, snap); err != nil {
			d.logger.Warn("workspace snapshot not saved",
				logging.String(logging.FieldProject, name),
				logging.Error(err))
		} else {
			res.SnapshotSaved = true
		}
	}

	for _, st := range d.sup.States(name) {
		if !st.Status.Terminal() {
			res.ServicesStopped++
		}
	}
	d.sup.StopAll(name)
	d.sup.Drop(name)

	owned := make(map[uint64]struct{})
	for _, ws := range workspaces {
		if ws.Name == name {
			owned[ws.ID] = struct{}{}
		}
	}
	for _, win := range windows {
		if _, ok := owned[win.WorkspaceID]; !ok {
			continue
		}
		if err := client.CloseWindow(win.ID); err != nil {
			d.logger.Warn("window not closed",
				logging.Int64("window", int64(win.ID)),
				logging.Error(err))
			continue
		}
		res.WindowsClosed++
	}

	// Unnaming returns the workspace to the dynamic pool, where the
	// compositor removes it once empty.
	if len(owned) > 0 {
		if err := client.UnsetWorkspaceName(name); err != nil {
			d.logger.Warn("workspace name not cleared",
				logging.String(logging.FieldProject, name),
				logging.Error(err))
		}
	}

	d.recordSessionRemove(name)
	d.deliver(daemonEvent(events.TypeProjectClosed, name, fmt.Sprintf("Closed project '%s'", name)))
	return res, nil
}

// RestartService restarts one supervised service in place.
func (d *Daemon) RestartService(ctx context.Context, projectName, service string) error {
	return d.sup.Restart(projectName, service)
}

func (d *Daemon) recordSessionAdd(name string) {
	if err := workspace.AddSessionProject(d.layout, name); err != nil {
		d.logger.Warn("session not updated", logging.Error(err))
	}
}

func (d *Daemon) recordSessionRemove(name string) {
	if err := workspace.RemoveSessionProject(d.layout, name); err != nil {
		d.logger.Warn("session not updated", logging.Error(err))
	}
}

// terminalCommand builds the compositor spawn argv for one terminal
// window: title it after the project, then run the exports, cd, and the
// command (or an interactive shell) inside sh.
func terminalCommand(terminal, projectName, windowName, exports, repoPath, command string) []string {
	title := "drift:" + projectName
	if windowName != "" {
		title += "/" + windowName
	}
	script := exports + "\ncd " + repoPath + "\n"
	if command != "" {
		script += "exec " + command
	} else {
		script += "exec $SHELL"
	}
	return []string{terminal, "--title=" + title, "-e", "sh", "-c", script}
}
