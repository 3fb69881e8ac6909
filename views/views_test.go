package views

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/quay/zlog"

	cratespro "github.com/crates-pro/crates-pro"
	"github.com/crates-pro/crates-pro/datastore"
)

// mapQuerier is an in-memory graph read capability.
type mapQuerier struct {
	deps       map[string][]string
	dependents map[string][]string
}

func (m *mapQuerier) DirectDependencies(_ context.Context, key string) ([]string, error) {
	return m.deps[key], nil
}

func (m *mapQuerier) DirectDependents(_ context.Context, key string) ([]string, error) {
	return m.dependents[key], nil
}

// memStore is an in-memory views.Store.
type memStore struct {
	programs   map[string]*cratespro.Program
	versions   map[string][]datastore.VersionRow
	licenses   map[string]string
	advisories map[string][]cratespro.Advisory

	crateInfos map[string]*cratespro.CrateInfo
	pages      map[string]*cratespro.VersionPage
	depLists   map[string]*cratespro.DependencyList
	depdLists  map[string]*cratespro.DependentList
	trees      map[string]*cratespro.DependencyTreeNode

	crateInfoPuts int
}

func newMemStore() *memStore {
	return &memStore{
		programs:   map[string]*cratespro.Program{},
		versions:   map[string][]datastore.VersionRow{},
		licenses:   map[string]string{},
		advisories: map[string][]cratespro.Advisory{},
		crateInfos: map[string]*cratespro.CrateInfo{},
		pages:      map[string]*cratespro.VersionPage{},
		depLists:   map[string]*cratespro.DependencyList{},
		depdLists:  map[string]*cratespro.DependentList{},
		trees:      map[string]*cratespro.DependencyTreeNode{},
	}
}

func k(parts ...string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += "|" + p
	}
	return out
}

func (m *memStore) UpsertProgram(_ context.Context, p *cratespro.Program, license string) error {
	m.programs[k(p.Namespace, p.Name)] = p
	m.licenses[k(p.Namespace, p.Name)] = license
	return nil
}

func (m *memStore) UpsertVersion(_ context.Context, v *cratespro.Version, _ []cratespro.Dependency) error {
	m.versions[v.Name] = append(m.versions[v.Name], datastore.VersionRow{
		Key: v.Key, ProgramID: v.ProgramID, Name: v.Name, Version: v.Version, Kind: v.Kind,
	})
	return nil
}

func (m *memStore) ProgramByName(_ context.Context, namespace, name string) (*cratespro.Program, error) {
	p, ok := m.programs[k(namespace, name)]
	if !ok {
		return nil, datastore.ErrNotFound
	}
	return p, nil
}

func (m *memStore) VersionsOf(_ context.Context, name string) ([]datastore.VersionRow, error) {
	return m.versions[name], nil
}

func (m *memStore) LicenseFor(_ context.Context, namespace, name string) (string, error) {
	return m.licenses[k(namespace, name)], nil
}

func (m *memStore) AllPrograms(_ context.Context) ([]*cratespro.Program, error) {
	var out []*cratespro.Program
	for _, p := range m.programs {
		out = append(out, p)
	}
	return out, nil
}

func (m *memStore) MarkRepoInvalid(context.Context, string, string) error { return nil }

func (m *memStore) UpsertSyncStatus(context.Context, *cratespro.RepoSyncEvent) error { return nil }

func (m *memStore) UpsertAdvisories(_ context.Context, in []cratespro.Advisory) error {
	for _, a := range in {
		m.advisories[a.CrateName] = append(m.advisories[a.CrateName], a)
	}
	return nil
}

func (m *memStore) AdvisoriesForCrate(_ context.Context, name string) ([]cratespro.Advisory, error) {
	return m.advisories[name], nil
}

func (m *memStore) AllAdvisories(_ context.Context) ([]cratespro.Advisory, error) {
	var out []cratespro.Advisory
	for _, as := range m.advisories {
		out = append(out, as...)
	}
	return out, nil
}

func (m *memStore) GetCrateInfo(_ context.Context, ns, name, version string) (*cratespro.CrateInfo, error) {
	v, ok := m.crateInfos[k(ns, name, version)]
	if !ok {
		return nil, datastore.ErrNotFound
	}
	return v, nil
}

func (m *memStore) PutCrateInfo(_ context.Context, info *cratespro.CrateInfo) error {
	m.crateInfoPuts++
	m.crateInfos[k(info.Namespace, info.Name, info.Version)] = info
	return nil
}

func (m *memStore) GetVersionPage(_ context.Context, ns, name string) (*cratespro.VersionPage, error) {
	v, ok := m.pages[k(ns, name)]
	if !ok {
		return nil, datastore.ErrNotFound
	}
	return v, nil
}

func (m *memStore) PutVersionPage(_ context.Context, page *cratespro.VersionPage) error {
	m.pages[k(page.Namespace, page.Name)] = page
	return nil
}

func (m *memStore) GetDependencyList(_ context.Context, ns, name, version string) (*cratespro.DependencyList, error) {
	v, ok := m.depLists[k(ns, name, version)]
	if !ok {
		return nil, datastore.ErrNotFound
	}
	return v, nil
}

func (m *memStore) PutDependencyList(_ context.Context, ns, name, version string, list *cratespro.DependencyList) error {
	m.depLists[k(ns, name, version)] = list
	return nil
}

func (m *memStore) GetDependentList(_ context.Context, ns, name, version string) (*cratespro.DependentList, error) {
	v, ok := m.depdLists[k(ns, name, version)]
	if !ok {
		return nil, datastore.ErrNotFound
	}
	return v, nil
}

func (m *memStore) PutDependentList(_ context.Context, ns, name, version string, list *cratespro.DependentList) error {
	m.depdLists[k(ns, name, version)] = list
	return nil
}

func (m *memStore) GetDependencyTree(_ context.Context, ns, name, version string) (*cratespro.DependencyTreeNode, error) {
	v, ok := m.trees[k(ns, name, version)]
	if !ok {
		return nil, datastore.ErrNotFound
	}
	return v, nil
}

func (m *memStore) PutDependencyTree(_ context.Context, ns, name, version string, tree *cratespro.DependencyTreeNode) error {
	m.trees[k(ns, name, version)] = tree
	return nil
}

func TestSortVersionsDesc(t *testing.T) {
	got := []string{"0.9.0", "1.10.0", "garbage", "1.2.0"}
	sortVersionsDesc(got)
	want := []string{"1.10.0", "1.2.0", "0.9.0", "garbage"}
	if !cmp.Equal(got, want) {
		t.Error(cmp.Diff(got, want))
	}
}

func TestCrateInfoComputeOnMiss(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	db := newMemStore()
	db.programs[k("alice/foo", "foo")] = &cratespro.Program{
		Name: "foo", Namespace: "alice/foo", Description: "test crate",
	}
	db.licenses[k("alice/foo", "foo")] = "MIT"
	db.versions["foo"] = []datastore.VersionRow{
		{Key: "foo/0.1.0", Name: "foo", Version: "0.1.0", CreatedAt: time.Unix(1700000000, 0)},
		{Key: "foo/0.2.0", Name: "foo", Version: "0.2.0", CreatedAt: time.Unix(1700001000, 0)},
	}
	db.advisories["bar"] = []cratespro.Advisory{
		{ID: "RUSTSEC-0001", CrateName: "bar", Patched: ">= 2.0.0"},
	}
	g := &mapQuerier{
		deps:       map[string][]string{"foo/0.2.0": {"bar/1"}},
		dependents: map[string][]string{"foo/0.2.0": {"app/1"}},
	}
	svc := New(g, db, nil)

	info, err := svc.CrateInfo(ctx, "alice/foo", "foo", "0.2.0")
	if err != nil {
		t.Fatal(err)
	}
	if info.License != "MIT" || info.Description != "test crate" {
		t.Errorf("bad metadata: %+v", info)
	}
	if !cmp.Equal(info.Versions, []string{"0.2.0", "0.1.0"}) {
		t.Errorf("versions not sorted descending: %v", info.Versions)
	}
	if info.MaxVersion != "0.2.0" {
		t.Errorf("max version: %q", info.MaxVersion)
	}
	if info.DepsCount.Direct != 1 || info.DepsCount.Indirect != 0 {
		t.Errorf("dep counts: %+v", info.DepsCount)
	}
	if info.DependentsCnt.Direct != 1 {
		t.Errorf("dependent count: %+v", info.DependentsCnt)
	}
	// bar/1 is in the closure and unpatched at version "1".
	if len(info.DepCVEs) != 1 || info.DepCVEs[0].ID != "RUSTSEC-0001" {
		t.Errorf("dep cves: %+v", info.DepCVEs)
	}

	// Second read is a hit: no recompute, same content.
	again, err := svc.CrateInfo(ctx, "alice/foo", "foo", "0.2.0")
	if err != nil {
		t.Fatal(err)
	}
	if db.crateInfoPuts != 1 {
		t.Errorf("got %d writes, want 1", db.crateInfoPuts)
	}
	if !cmp.Equal(info, again) {
		t.Error(cmp.Diff(info, again))
	}
}

func TestDependentListCaps(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	db := newMemStore()
	g := &mapQuerier{dependents: map[string][]string{}}
	// 700 direct dependents: the initial frontier exceeds the traversal
	// cap, so there are no indirect entries at all.
	for i := 0; i < 700; i++ {
		g.dependents["hot/1"] = append(g.dependents["hot/1"], fmt.Sprintf("user-%d/1", i))
	}
	svc := New(g, db, nil)

	list, err := svc.DependentList(ctx, "alice/hot", "hot", "1")
	if err != nil {
		t.Fatal(err)
	}
	if list.DirectCount != 700 {
		t.Errorf("direct count: %d, want 700", list.DirectCount)
	}
	if list.IndirectCount != 0 {
		t.Errorf("indirect count: %d, want 0", list.IndirectCount)
	}
	if len(list.Data) != DependentListCap {
		t.Errorf("entries: %d, want %d", len(list.Data), DependentListCap)
	}
	for _, e := range list.Data {
		if e.Relation != cratespro.RelationDirect {
			t.Errorf("unexpected relation %q", e.Relation)
		}
	}
}

func TestDependencyListRelations(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	db := newMemStore()
	g := &mapQuerier{deps: map[string][]string{
		"a/1": {"b/1"},
		"b/1": {"c/1"},
	}}
	svc := New(g, db, nil)

	list, err := svc.DependencyList(ctx, "ns/a", "a", "1")
	if err != nil {
		t.Fatal(err)
	}
	if list.DirectCount != 1 || list.IndirectCount != 1 {
		t.Errorf("counts: %+v", list)
	}
	relations := map[string]string{}
	counts := map[string]int{}
	for _, e := range list.Data {
		relations[e.CrateName] = e.Relation
		counts[e.CrateName] = e.Dependencies
	}
	if relations["b"] != cratespro.RelationDirect || relations["c"] != cratespro.RelationIndirect {
		t.Errorf("relations: %v", relations)
	}
	if counts["b"] != 1 || counts["c"] != 0 {
		t.Errorf("per-node dependency counts: %v", counts)
	}
}

func TestDependencyTreeView(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	db := newMemStore()
	db.advisories["b"] = []cratespro.Advisory{{ID: "RUSTSEC-0002", CrateName: "b", Patched: ""}}
	g := &mapQuerier{deps: map[string][]string{
		"a/1": {"b/1"},
		"b/1": {"a/1"},
	}}
	svc := New(g, db, nil)

	tree, err := svc.DependencyTree(ctx, "ns/a", "a", "1")
	if err != nil {
		t.Fatal(err)
	}
	if tree.NameAndVersion != "a/1" || len(tree.Children) != 1 {
		t.Fatalf("tree shape: %+v", tree)
	}
	child := tree.Children[0]
	if child.NameAndVersion != "b/1" || len(child.Children) != 0 {
		t.Errorf("cycle not broken: %+v", child)
	}
	// Empty patched expression affects everything.
	if child.CveCount != 1 {
		t.Errorf("child cve count: %d, want 1", child.CveCount)
	}
}

func TestVersionPageSorted(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	db := newMemStore()
	db.versions["foo"] = []datastore.VersionRow{
		{Key: "foo/0.1.0", Name: "foo", Version: "0.1.0"},
		{Key: "foo/1.0.0", Name: "foo", Version: "1.0.0"},
		{Key: "foo/0.2.0", Name: "foo", Version: "0.2.0"},
	}
	g := &mapQuerier{dependents: map[string][]string{"foo/1.0.0": {"x/1", "y/1"}}}
	svc := New(g, db, nil)

	page, err := svc.VersionPage(ctx, "alice/foo", "foo")
	if err != nil {
		t.Fatal(err)
	}
	var order []string
	for _, e := range page.Versions {
		order = append(order, e.Version)
	}
	if !cmp.Equal(order, []string{"1.0.0", "0.2.0", "0.1.0"}) {
		t.Errorf("order: %v", order)
	}
	if page.Versions[0].DependentCount != 2 {
		t.Errorf("dependent count: %d, want 2", page.Versions[0].DependentCount)
	}
}
