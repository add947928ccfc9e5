package project

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"drift/internal/paths"
)

// ErrUnknownProject reports a lookup for a project with no definition file.
var ErrUnknownProject = errors.New("unknown project")

// Registry is the loaded set of project definitions, ordered by
// (folder, name) for display.
type Registry struct {
	ordered []*Project
	byName  map[string]*Project
}

// LoadRegistry reads every projects/*.toml under the layout's config dir.
// A missing projects directory yields an empty registry; a malformed
// definition file fails the whole load so the daemon never runs with a
// silently truncated project set.
func LoadRegistry(layout paths.Layout) (*Registry, error) {
	entries, err := os.ReadDir(layout.ProjectsDir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Registry{byName: make(map[string]*Project)}, nil
		}
		return nil, fmt.Errorf("read projects directory: %w", err)
	}

	reg := &Registry{byName: make(map[string]*Project, len(entries))}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".toml" {
			continue
		}
		p, err := Load(filepath.Join(layout.ProjectsDir(), entry.Name()))
		if err != nil {
			return nil, err
		}
		if _, dup := reg.byName[p.Meta.Name]; dup {
			return nil, fmt.Errorf("project name %q declared twice (second file %s)", p.Meta.Name, entry.Name())
		}
		reg.byName[p.Meta.Name] = p
		reg.ordered = append(reg.ordered, p)
	}

	sort.Slice(reg.ordered, func(i, j int) bool {
		a, b := reg.ordered[i], reg.ordered[j]
		if a.Meta.Folder != b.Meta.Folder {
			return a.Meta.Folder < b.Meta.Folder
		}
		return a.Meta.Name < b.Meta.Name
	})
	return reg, nil
}

// Get returns the named project.
func (r *Registry) Get(name string) (*Project, error) {
	p, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProject, name)
	}
	return p, nil
}

// All returns the projects in display order.
func (r *Registry) All() []*Project {
	return r.ordered
}

// Len reports the number of loaded projects.
func (r *Registry) Len() int { return len(r.ordered) }

// Names returns the set of project names, used to match workspace names
// against projects.
func (r *Registry) Names() map[string]struct{} {
	names := make(map[string]struct{}, len(r.byName))
	for name := range r.byName {
		names[name] = struct{}{}
	}
	return names
}

// DisplayName renders a project for listings, prefixing the folder when
// one is set.
func DisplayName(p *Project) string {
	if p.Meta.Folder == "" {
		return p.Meta.Name
	}
	return strings.Join([]string{p.Meta.Folder, p.Meta.Name}, "/")
}
