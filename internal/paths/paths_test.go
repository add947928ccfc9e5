package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultDirsHonorXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	t.Setenv("XDG_STATE_HOME", "/xdg/state")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")

	if got := DefaultConfigDir(); got != "/xdg/config/drift" {
		t.Fatalf("config dir = %q", got)
	}
	if got := DefaultStateDir(); got != "/xdg/state/drift" {
		t.Fatalf("state dir = %q", got)
	}
	if got := DefaultRuntimeDir(); got != "/run/user/1000/drift" {
		t.Fatalf("runtime dir = %q", got)
	}
}

func TestDefaultDirsFallBackToHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_STATE_HOME", "")
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}

	if got := DefaultConfigDir(); got != filepath.Join(home, ".config", "drift") {
		t.Fatalf("config dir = %q", got)
	}
	if got := DefaultStateDir(); got != filepath.Join(home, ".local", "state", "drift") {
		t.Fatalf("state dir = %q", got)
	}
}

func TestLayoutDerivation(t *testing.T) {
	l := Layout{ConfigDir: "/c", StateDir: "/s", RuntimeDir: "/r"}

	cases := []struct {
		got  string
		want string
	}{
		{l.GlobalConfig(), "/c/config.toml"},
		{l.ProjectFile("myapp"), "/c/projects/myapp.toml"},
		{l.DaemonState(), "/s/daemon.json"},
		{l.SessionFile(), "/s/session.json"},
		{l.ServicesState("myapp"), "/s/projects/myapp/services.json"},
		{l.WorkspaceSnapshot("myapp"), "/s/projects/myapp/workspace.json"},
		{l.SupervisorLog("myapp"), "/s/projects/myapp/supervisor.log"},
		{l.ServiceLog("myapp", "web"), "/s/projects/myapp/logs/web.log"},
		{l.EmitSocket(), "/r/emit.sock"},
		{l.SubscribeSocket(), "/r/subscribe.sock"},
		{l.ControlSocket(), "/r/control.sock"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("derived %q, want %q", tc.got, tc.want)
		}
	}
}

func TestEnsureBaseDirsModes(t *testing.T) {
	base := t.TempDir()
	l := Layout{
		ConfigDir:  filepath.Join(base, "config"),
		StateDir:   filepath.Join(base, "state"),
		RuntimeDir: filepath.Join(base, "run"),
	}

	if err := l.EnsureBaseDirs(); err != nil {
		t.Fatalf("ensure base dirs: %v", err)
	}
	for _, dir := range []string{l.ConfigDir, l.ProjectsDir(), l.StateDir, l.RuntimeDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("missing dir %s: %v", dir, err)
		}
	}

	// Sockets live under the runtime dir, so it is user-private.
	info, err := os.Stat(l.RuntimeDir)
	if err != nil {
		t.Fatalf("stat runtime dir: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o700 {
		t.Fatalf("runtime dir mode = %o, want 700", perm)
	}

	if err := l.EnsureProjectDirs("myapp"); err != nil {
		t.Fatalf("ensure project dirs: %v", err)
	}
	if _, err := os.Stat(l.ServiceLogDir("myapp")); err != nil {
		t.Fatalf("missing service log dir: %v", err)
	}
}
