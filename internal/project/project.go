// Package project loads project definitions: one TOML file per project
// under <config>/projects declaring the repository, environment, supervised
// services, and workspace windows. The daemon loads the set once at startup
// and treats it as immutable for the session.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"drift/internal/config"
	"drift/internal/paths"
)

// RestartPolicy governs whether a terminated service is relaunched.
type RestartPolicy string

const (
	RestartNever     RestartPolicy = "never"
	RestartOnFailure RestartPolicy = "on-failure"
	RestartAlways    RestartPolicy = "always"
)

func (p RestartPolicy) Valid() bool {
	switch p {
	case RestartNever, RestartOnFailure, RestartAlways:
		return true
	}
	return false
}

// Agent interaction modes and permission levels.
const (
	AgentModeOneshot     = "oneshot"
	AgentModeInteractive = "interactive"

	AgentPermissionsFull = "full"
	AgentPermissionsSafe = "safe"
)

// Project is one project definition.
type Project struct {
	Meta       Meta        `toml:"project"`
	Env        Env         `toml:"env"`
	Services   Services    `toml:"services"`
	Windows    []Window    `toml:"windows"`
	Scratchpad *Scratchpad `toml:"scratchpad"`
}

// Meta identifies the project.
type Meta struct {
	Name   string `toml:"name"`
	Repo   string `toml:"repo"`
	Folder string `toml:"folder,omitempty"`
	Icon   string `toml:"icon,omitempty"`
}

// Env declares the environment handed to services and windows: an optional
// dotenv-style file resolved against the repo, then inline overrides.
type Env struct {
	EnvFile string            `toml:"env_file,omitempty"`
	Vars    map[string]string `toml:"vars,omitempty"`
}

// Services wraps the supervised process list.
type Services struct {
	Processes []Service `toml:"processes"`
}

// Service declares one supervised process. The agent fields select a
// launch command built at spawn time; agents are otherwise
// lifecycle-identical to plain services.
type Service struct {
	Name        string        `toml:"name"`
	Command     string        `toml:"command,omitempty"`
	Cwd         string        `toml:"cwd,omitempty"`
	Restart     RestartPolicy `toml:"restart,omitempty"`
	StopCommand string        `toml:"stop_command,omitempty"`

	Agent            string `toml:"agent,omitempty"`
	Prompt           string `toml:"prompt,omitempty"`
	AgentMode        string `toml:"agent_mode,omitempty"`
	AgentModel       string `toml:"agent_model,omitempty"`
	AgentPermissions string `toml:"agent_permissions,omitempty"`
}

// IsAgent reports whether the service launches an AI agent rather than a
// plain command.
func (s Service) IsAgent() bool { return s.Agent != "" }

// Interactive reports whether the service is an interactive agent; those
// are opened as terminal windows instead of headless supervised processes.
func (s Service) Interactive() bool {
	return s.IsAgent() && s.AgentMode == AgentModeInteractive
}

// Window declares a terminal window opened on the project workspace.
type Window struct {
	Name    string `toml:"name,omitempty"`
	Command string `toml:"command,omitempty"`
}

// Scratchpad names a notes file opened in the editor alongside the windows.
type Scratchpad struct {
	File string `toml:"file"`
}

// Command returns the shell command opening the scratchpad file in the
// given editor. The file is quoted; relative paths resolve against the
// repo because scratchpad windows start there.
func (s *Scratchpad) Command(editor string) string {
	return editor + " " + shellQuote(s.File)
}

// Load reads and validates one project definition file.
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project file: %w", err)
	}

	var p Project
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project %s: %w", path, err)
	}
	return &p, nil
}

// LoadByName loads the definition for one named project.
func LoadByName(layout paths.Layout, name string) (*Project, error) {
	return Load(layout.ProjectFile(name))
}

func (p *Project) applyDefaults() {
	for i := range p.Services.Processes {
		svc := &p.Services.Processes[i]
		if svc.Cwd == "" {
			svc.Cwd = "."
		}
		if svc.Restart == "" {
			svc.Restart = RestartNever
		}
		if svc.AgentMode == "" {
			svc.AgentMode = AgentModeOneshot
		}
		if svc.AgentPermissions == "" {
			svc.AgentPermissions = AgentPermissionsFull
		}
	}
}

// Validate checks the definition for the mistakes that would otherwise
// surface as confusing spawn failures later.
func (p *Project) Validate() error {
	if strings.TrimSpace(p.Meta.Name) == "" {
		return fmt.Errorf("project name is required")
	}
	if strings.ContainsAny(p.Meta.Name, "/\\") {
		return fmt.Errorf("project name %q must not contain path separators", p.Meta.Name)
	}
	if strings.TrimSpace(p.Meta.Repo) == "" {
		return fmt.Errorf("project %s: repo is required", p.Meta.Name)
	}

	seen := make(map[string]struct{}, len(p.Services.Processes))
	for _, svc := range p.Services.Processes {
		if strings.TrimSpace(svc.Name) == "" {
			return fmt.Errorf("project %s: service name is required", p.Meta.Name)
		}
		if strings.ContainsAny(svc.Name, "/\\") {
			return fmt.Errorf("service name %q must not contain path separators", svc.Name)
		}
		if _, dup := seen[svc.Name]; dup {
			return fmt.Errorf("duplicate service name %q", svc.Name)
		}
		seen[svc.Name] = struct{}{}

		if svc.Command == "" && !svc.IsAgent() {
			return fmt.Errorf("service %q: command is required for non-agent services", svc.Name)
		}
		if !svc.Restart.Valid() {
			return fmt.Errorf("service %q: unknown restart policy %q", svc.Name, svc.Restart)
		}
		if svc.AgentMode != AgentModeOneshot && svc.AgentMode != AgentModeInteractive {
			return fmt.Errorf("service %q: unknown agent mode %q", svc.Name, svc.AgentMode)
		}
		if svc.AgentPermissions != AgentPermissionsFull && svc.AgentPermissions != AgentPermissionsSafe {
			return fmt.Errorf("service %q: unknown agent permissions %q", svc.Name, svc.AgentPermissions)
		}
	}
	return nil
}

// RepoPath resolves the configured repository path, expanding a leading
// tilde.
func (p *Project) RepoPath() (string, error) {
	resolved, err := config.ExpandPath(p.Meta.Repo)
	if err != nil {
		return "", fmt.Errorf("resolve repo path for %s: %w", p.Meta.Name, err)
	}
	return resolved, nil
}

// ServiceDir resolves a service working directory against the repository
// root; "." and the empty string mean the root itself.
func ServiceDir(repo string, svc Service) string {
	if svc.Cwd == "" || svc.Cwd == "." {
		return repo
	}
	if filepath.IsAbs(svc.Cwd) {
		return filepath.Clean(svc.Cwd)
	}
	return filepath.Join(repo, svc.Cwd)
}
