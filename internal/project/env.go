package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"drift/internal/paths"
)

// BuildEnv assembles the environment exported to a project's services and
// windows: the drift identity variables, then the project's env file (if it
// exists in the repo), then inline overrides. Later sources win.
func BuildEnv(p *Project, repo string, layout paths.Layout) (map[string]string, error) {
	env := map[string]string{
		"DRIFT_PROJECT":     p.Meta.Name,
		"DRIFT_REPO":        repo,
		"DRIFT_FOLDER":      p.Meta.Folder,
		"DRIFT_NOTIFY_SOCK": layout.EmitSocket(),
	}

	if p.Env.EnvFile != "" {
		path := p.Env.EnvFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(repo, path)
		}
		data, err := os.ReadFile(path)
		if err == nil {
			mergeEnvFile(env, string(data))
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read env file %s: %w", path, err)
		}
	}

	for key, value := range p.Env.Vars {
		env[key] = value
	}
	return env, nil
}

// mergeEnvFile folds dotenv-style KEY=VALUE lines into env, skipping
// blanks and comments.
func mergeEnvFile(env map[string]string, contents string) {
	for _, line := range strings.Split(contents, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		key, value, found := strings.Cut(trimmed, "=")
		if !found {
			continue
		}
		env[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
}

// EnvPairs renders an environment map as sorted KEY=VALUE pairs for
// exec.Cmd.Env.
func EnvPairs(env map[string]string) []string {
	pairs := make([]string, 0, len(env))
	for key, value := range env {
		pairs = append(pairs, key+"="+value)
	}
	sort.Strings(pairs)
	return pairs
}

// FormatEnvExports renders an environment map as newline-joined shell
// export statements, sorted by key, for the script run inside spawned
// terminal windows.
func FormatEnvExports(env map[string]string) string {
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		value := strings.ReplaceAll(env[key], "'", `'"'"'`)
		lines = append(lines, fmt.Sprintf("export %s='%s'", key, value))
	}
	return strings.Join(lines, "\n")
}
