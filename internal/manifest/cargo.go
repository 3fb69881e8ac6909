package manifest

import (
	"fmt"
	"sort"

	"github.com/pelletier/go-toml"

	cratespro "github.com/crates-pro/crates-pro"
)

// crateManifest is the subset of a Cargo.toml this system cares about.
type crateManifest struct {
	Name        string
	Version     string
	Description string
	License     string
	Deps        []cratespro.Dependency

	hasLibTarget bool
	hasBinTarget bool
}

// errWorkspaceOnly marks a manifest with no [package] table. Workspace roots
// are skipped, their members are picked up individually.
var errWorkspaceOnly = fmt.Errorf("manifest: workspace-only, no [package].name")

// parseManifest parses one Cargo.toml.
//
// Dependency entries are either a bare version string or a table with a
// "version" key; git, path and feature fields do not contribute edges. The
// declared literal is kept verbatim, it is the depends_on target key.
func parseManifest(content string) (*crateManifest, error) {
	tree, err := toml.Load(content)
	if err != nil {
		return nil, fmt.Errorf("manifest: parsing toml: %w", err)
	}
	name, ok := tree.GetPath([]string{"package", "name"}).(string)
	if !ok || name == "" {
		return nil, errWorkspaceOnly
	}
	m := &crateManifest{Name: name}
	m.Version, _ = tree.GetPath([]string{"package", "version"}).(string)
	m.Description, _ = tree.GetPath([]string{"package", "description"}).(string)
	m.License, _ = tree.GetPath([]string{"package", "license"}).(string)

	m.hasLibTarget = tree.Get("lib") != nil
	if bins, ok := tree.Get("bin").([]*toml.Tree); ok && len(bins) > 0 {
		m.hasBinTarget = true
	}

	deps, ok := tree.Get("dependencies").(*toml.Tree)
	if !ok {
		return m, nil
	}
	names := deps.Keys()
	sort.Strings(names)
	for _, dep := range names {
		switch v := deps.Get(dep).(type) {
		case string:
			m.Deps = append(m.Deps, cratespro.Dependency{Name: dep, Version: v})
		case *toml.Tree:
			if ver, ok := v.Get("version").(string); ok {
				m.Deps = append(m.Deps, cratespro.Dependency{Name: dep, Version: ver})
			}
		}
	}
	return m, nil
}

// classify decides Library vs Application.
//
// Explicit [lib]/[[bin]] targets win. Otherwise a src/lib.rs with no
// src/main.rs means Library. Everything ambiguous is an Application.
func classify(m *crateManifest, libRS, mainRS bool) cratespro.ProgramKind {
	if m.hasLibTarget || m.hasBinTarget {
		if m.hasLibTarget && !m.hasBinTarget {
			return cratespro.Library
		}
		return cratespro.Application
	}
	if libRS && !mainRS {
		return cratespro.Library
	}
	return cratespro.Application
}
