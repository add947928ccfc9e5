// Package paths resolves the daemon's filesystem layout from its base
// directories: configuration under the config dir, durable state under the
// state dir, and sockets under the runtime dir.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout derives every file and directory the daemon and CLI touch.
type Layout struct {
	ConfigDir  string
	StateDir   string
	RuntimeDir string
}

// DefaultConfigDir returns $XDG_CONFIG_HOME/drift, falling back to
// ~/.config/drift.
func DefaultConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "drift")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "drift", "config")
	}
	return filepath.Join(home, ".config", "drift")
}

// DefaultStateDir returns $XDG_STATE_HOME/drift, falling back to
// ~/.local/state/drift.
func DefaultStateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "drift")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "drift", "state")
	}
	return filepath.Join(home, ".local", "state", "drift")
}

// DefaultRuntimeDir returns $XDG_RUNTIME_DIR/drift, falling back to a
// per-user directory under the system temp dir.
func DefaultRuntimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "drift")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("drift-%d", os.Getuid()))
}

func (l Layout) GlobalConfig() string { return filepath.Join(l.ConfigDir, "config.toml") }

func (l Layout) ProjectsDir() string { return filepath.Join(l.ConfigDir, "projects") }

func (l Layout) ProjectFile(name string) string {
	return filepath.Join(l.ProjectsDir(), name+".toml")
}

func (l Layout) DaemonLog() string { return filepath.Join(l.StateDir, "daemon.log") }

func (l Layout) DaemonPID() string { return filepath.Join(l.StateDir, "daemon.pid") }

func (l Layout) DaemonLock() string { return filepath.Join(l.StateDir, "daemon.lock") }

func (l Layout) DaemonState() string { return filepath.Join(l.StateDir, "daemon.json") }

func (l Layout) SessionFile() string { return filepath.Join(l.StateDir, "session.json") }

// StateProjectsDir is the parent of every per-project state directory.
func (l Layout) StateProjectsDir() string { return filepath.Join(l.StateDir, "projects") }

// ProjectStateDir is the per-project state directory holding supervisor
// state, snapshots, and service logs.
func (l Layout) ProjectStateDir(project string) string {
	return filepath.Join(l.StateProjectsDir(), project)
}

func (l Layout) ServicesState(project string) string {
	return filepath.Join(l.ProjectStateDir(project), "services.json")
}

func (l Layout) WorkspaceSnapshot(project string) string {
	return filepath.Join(l.ProjectStateDir(project), "workspace.json")
}

func (l Layout) SupervisorLog(project string) string {
	return filepath.Join(l.ProjectStateDir(project), "supervisor.log")
}

func (l Layout) ServiceLogDir(project string) string {
	return filepath.Join(l.ProjectStateDir(project), "logs")
}

func (l Layout) ServiceLog(project, service string) string {
	return filepath.Join(l.ServiceLogDir(project), service+".log")
}

func (l Layout) EmitSocket() string { return filepath.Join(l.RuntimeDir, "emit.sock") }

func (l Layout) SubscribeSocket() string { return filepath.Join(l.RuntimeDir, "subscribe.sock") }

func (l Layout) ControlSocket() string { return filepath.Join(l.RuntimeDir, "control.sock") }

// EnsureBaseDirs creates the three base directories. The runtime dir is
// user-private since it holds the daemon's sockets.
func (l Layout) EnsureBaseDirs() error {
	for _, dir := range []string{l.ConfigDir, l.ProjectsDir(), l.StateDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	if err := os.MkdirAll(l.RuntimeDir, 0o700); err != nil {
		return fmt.Errorf("create directory %s: %w", l.RuntimeDir, err)
	}
	return nil
}

// EnsureProjectDirs creates the per-project state tree.
func (l Layout) EnsureProjectDirs(project string) error {
	if err := os.MkdirAll(l.ServiceLogDir(project), 0o755); err != nil {
		return fmt.Errorf("create project state for %s: %w", project, err)
	}
	return nil
}
