package graph

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	cratespro "github.com/crates-pro/crates-pro"
)

// Snapshot accumulates the columnar export rows written since process start.
// On checkpoint it is flushed to one CSV file per node and edge kind so a
// cold restart can rebuild the graph offline.
type Snapshot struct {
	mu sync.Mutex

	programs     []*cratespro.Program
	libraries    []*cratespro.Program
	applications []*cratespro.Program

	versions      []*cratespro.Version
	libVersions   []*cratespro.Version
	appVersions   []*cratespro.Version
	hasLibType    []cratespro.HasType
	hasAppType    []cratespro.HasType
	libHasVersion []cratespro.HasVersion
	appHasVersion []cratespro.HasVersion
	libHasDepVer  []cratespro.HasDepVersion
	appHasDepVer  []cratespro.HasDepVersion
	dependsOn     []cratespro.DependsOn
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot { return &Snapshot{} }

// AddProgram records a program node, its classified bucket, and the has_type
// edge.
func (s *Snapshot) AddProgram(p *cratespro.Program) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.programs = append(s.programs, p)
	edge := cratespro.HasType{SrcID: p.ID, DstID: p.ID}
	if p.Kind == cratespro.Library {
		s.libraries = append(s.libraries, p)
		s.hasLibType = append(s.hasLibType, edge)
	} else {
		s.applications = append(s.applications, p)
		s.hasAppType = append(s.hasAppType, edge)
	}
}

// AddVersion records a version node and its edges.
func (s *Snapshot) AddVersion(v *cratespro.Version, deps []cratespro.Dependency) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions = append(s.versions, v)
	hasVersion := cratespro.HasVersion{SrcID: v.ProgramID, DstID: v.Key}
	selfBridge := cratespro.HasDepVersion{SrcID: v.Key, DstID: v.Key}
	if v.Kind == cratespro.Library {
		s.libVersions = append(s.libVersions, v)
		s.libHasVersion = append(s.libHasVersion, hasVersion)
		s.libHasDepVer = append(s.libHasDepVer, selfBridge)
	} else {
		s.appVersions = append(s.appVersions, v)
		s.appHasVersion = append(s.appHasVersion, hasVersion)
		s.appHasDepVer = append(s.appHasDepVer, selfBridge)
	}
	for _, d := range deps {
		s.dependsOn = append(s.dependsOn, cratespro.DependsOn{
			SrcID: v.Key,
			DstID: cratespro.VersionKey(d.Name, d.Version),
		})
	}
}

// WriteCSV flushes every node and edge file under dir, creating it if
// needed. Files are rewritten whole; the snapshot is the source of truth for
// the export, not the graph store.
func (s *Snapshot) WriteCSV(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("graph: creating export dir: %w", err)
	}

	programRow := func(p *cratespro.Program) []string {
		return []string{p.ID, p.Name, p.Description, p.Namespace, p.MaxVersion, p.GithubURL, p.MegaURL, p.DocURL}
	}
	versionRow := func(v *cratespro.Version) []string {
		return []string{v.ProgramID, v.Name, v.Version, v.Documentation}
	}

	if err := writeFile(dir, "program.csv", s.programs, programRow); err != nil {
		return err
	}
	if err := writeFile(dir, "library.csv", s.libraries, programRow); err != nil {
		return err
	}
	if err := writeFile(dir, "application.csv", s.applications, programRow); err != nil {
		return err
	}
	if err := writeFile(dir, "library_version.csv", s.libVersions, versionRow); err != nil {
		return err
	}
	if err := writeFile(dir, "application_version.csv", s.appVersions, versionRow); err != nil {
		return err
	}
	if err := writeFile(dir, "version.csv", s.versions, func(v *cratespro.Version) []string {
		return []string{v.Key}
	}); err != nil {
		return err
	}

	edges := []struct {
		Name string
		Rows [][2]string
	}{
		{"has_lib_type.csv", typeEdges(s.hasLibType)},
		{"has_app_type.csv", typeEdges(s.hasAppType)},
		{"lib_has_version.csv", versionEdges(s.libHasVersion)},
		{"app_has_version.csv", versionEdges(s.appHasVersion)},
		{"lib_has_dep_version.csv", bridgeEdges(s.libHasDepVer)},
		{"app_has_dep_version.csv", bridgeEdges(s.appHasDepVer)},
		{"depends_on.csv", dependsOnEdges(s.dependsOn)},
	}
	for _, e := range edges {
		if err := writeFile(dir, e.Name, e.Rows, func(r [2]string) []string {
			return []string{r[0], r[1]}
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeFile[T any](dir, name string, rows []T, record func(T) []string) error {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("graph: creating %s: %w", name, err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	for _, row := range rows {
		if err := w.Write(record(row)); err != nil {
			return fmt.Errorf("graph: writing %s: %w", name, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("graph: flushing %s: %w", name, err)
	}
	return f.Close()
}

func typeEdges(in []cratespro.HasType) [][2]string {
	out := make([][2]string, len(in))
	for i, e := range in {
		out[i] = [2]string{e.SrcID, e.DstID}
	}
	return out
}

func versionEdges(in []cratespro.HasVersion) [][2]string {
	out := make([][2]string, len(in))
	for i, e := range in {
		out[i] = [2]string{e.SrcID, e.DstID}
	}
	return out
}

func bridgeEdges(in []cratespro.HasDepVersion) [][2]string {
	out := make([][2]string, len(in))
	for i, e := range in {
		out[i] = [2]string{e.SrcID, e.DstID}
	}
	return out
}

func dependsOnEdges(in []cratespro.DependsOn) [][2]string {
	out := make([][2]string, len(in))
	for i, e := range in {
		out[i] = [2]string{e.SrcID, e.DstID}
	}
	return out
}
