package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"drift/internal/config"
)

// WriteProjectFile drops a minimal project definition into the config's
// projects directory and returns the repo path it points at. Extra TOML
// sections are appended verbatim.
func WriteProjectFile(t testing.TB, cfg *config.Config, name string, extra string) string {
	t.Helper()

	repo := filepath.Join(BaseDir(cfg), "repos", name)
	if err := os.MkdirAll(repo, 0o755); err != nil {
		t.Fatalf("create repo dir %s: %v", repo, err)
	}

	body := fmt.Sprintf("[project]\nname = %q\nrepo = %q\n", name, repo)
	if extra != "" {
		body += "\n" + extra
	}

	path := cfg.Layout().ProjectFile(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return repo
}
