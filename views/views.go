// Package views computes and caches the derived read views: crate front
// page, version page, dependency and dependent lists, and the dependency
// tree.
//
// Every view is read-through with write-back: a miss computes from the graph
// and the relational mirror, persists the result, and returns it. Two
// requesters racing on the same miss both compute; the store's primary-key
// upsert makes that benign because view inputs are monotone between writes.
package views

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/quay/zlog"
	"github.com/redis/go-redis/v9"

	cratespro "github.com/crates-pro/crates-pro"
	"github.com/crates-pro/crates-pro/datastore"
	"github.com/crates-pro/crates-pro/graph"
	"github.com/crates-pro/crates-pro/rangematch"
)

// DependentListCap bounds the entries in the dependent list view. The
// front-page summary keeps the uncapped direct count.
const DependentListCap = 50

// blobTTL is the redis expiry for front-page JSON blobs.
const blobTTL = 7 * 24 * time.Hour

// Store is the relational capability the view layer needs.
type Store interface {
	datastore.MirrorStore
	datastore.VulnerabilityStore
	datastore.ViewStore
}

// Service serves the derived views.
type Service struct {
	graph graph.Querier
	db    Store
	// redis holds the short-lived front-page blobs; nil disables that tier.
	redis *redis.Client
}

// New returns a Service. redis may be nil.
func New(g graph.Querier, db Store, rdb *redis.Client) *Service {
	return &Service{graph: g, db: db, redis: rdb}
}

// CveCounter returns a graph.CveCounter backed by the advisory store.
func (s *Service) CveCounter() graph.CveCounter {
	return func(ctx context.Context, name, version string) (int, error) {
		advisories, err := s.affecting(ctx, name, version)
		if err != nil {
			return 0, err
		}
		return len(advisories), nil
	}
}

// affecting returns the advisories whose patched expression does not cover
// version.
func (s *Service) affecting(ctx context.Context, name, version string) ([]cratespro.Advisory, error) {
	advisories, err := s.db.AdvisoriesForCrate(ctx, name)
	if err != nil {
		return nil, err
	}
	var out []cratespro.Advisory
	for _, a := range advisories {
		expr, err := rangematch.Parse(a.Patched)
		if err != nil {
			zlog.Warn(ctx).
				Str("advisory", a.ID).
				Err(err).
				Msg("dropping unparseable patched clauses")
		}
		if expr.Affected(version) {
			out = append(out, a)
		}
	}
	return out, nil
}

// CrateInfo returns the front-page view, computing and persisting it on
// miss.
func (s *Service) CrateInfo(ctx context.Context, namespace, name, version string) (*cratespro.CrateInfo, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "views/Service.CrateInfo")
	if info := s.blobGet(ctx, namespace, name, version); info != nil {
		return info, nil
	}
	info, err := s.db.GetCrateInfo(ctx, namespace, name, version)
	switch {
	case err == nil:
		s.blobPut(ctx, info)
		return info, nil
	case !errors.Is(err, datastore.ErrNotFound):
		return nil, err
	}

	info, err = s.computeCrateInfo(ctx, namespace, name, version)
	if err != nil {
		return nil, err
	}
	if err := s.db.PutCrateInfo(ctx, info); err != nil {
		return nil, err
	}
	s.blobPut(ctx, info)
	return info, nil
}

func (s *Service) computeCrateInfo(ctx context.Context, namespace, name, version string) (*cratespro.CrateInfo, error) {
	program, err := s.db.ProgramByName(ctx, namespace, name)
	switch {
	case errors.Is(err, datastore.ErrNotFound):
		program = &cratespro.Program{Name: name, Namespace: namespace}
	case err != nil:
		return nil, err
	}
	rows, err := s.db.VersionsOf(ctx, name)
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(rows))
	for _, r := range rows {
		versions = append(versions, r.Version)
	}
	sortVersionsDesc(versions)

	key := cratespro.VersionKey(name, version)
	direct, err := s.graph.DirectDependencies(ctx, key)
	if err != nil {
		return nil, err
	}
	all, _, err := graph.AllDependencies(ctx, s.graph, key)
	if err != nil {
		return nil, err
	}
	dependents, err := s.graph.DirectDependents(ctx, key)
	if err != nil {
		return nil, err
	}
	license, err := s.db.LicenseFor(ctx, namespace, name)
	if err != nil {
		return nil, err
	}
	cves, err := s.affecting(ctx, name, version)
	if err != nil {
		return nil, err
	}
	depCVEs, err := s.closureAdvisories(ctx, all)
	if err != nil {
		return nil, err
	}

	return &cratespro.CrateInfo{
		Namespace:   namespace,
		Name:        name,
		Version:     version,
		Description: program.Description,
		License:     license,
		GithubURL:   program.GithubURL,
		DocURL:      program.DocURL,
		MaxVersion:  maxVersion(versions),
		Versions:    versions,
		DepsCount: cratespro.DependencyCount{
			Direct:   len(direct),
			Indirect: len(all) - len(direct),
		},
		DependentsCnt: cratespro.DependentCount{Direct: len(dependents)},
		CVEs:          orEmpty(cves),
		DepCVEs:       orEmpty(depCVEs),
	}, nil
}

// closureAdvisories evaluates advisories against every key of a dependency
// closure.
func (s *Service) closureAdvisories(ctx context.Context, keys []string) ([]cratespro.Advisory, error) {
	seen := make(map[string]struct{})
	var out []cratespro.Advisory
	for _, key := range keys {
		name, version, ok := cratespro.SplitVersionKey(key)
		if !ok {
			continue
		}
		advisories, err := s.affecting(ctx, name, version)
		if err != nil {
			return nil, err
		}
		for _, a := range advisories {
			if _, dup := seen[a.ID]; dup {
				continue
			}
			seen[a.ID] = struct{}{}
			out = append(out, a)
		}
	}
	return out, nil
}

// VersionPage returns the release listing for a crate.
func (s *Service) VersionPage(ctx context.Context, namespace, name string) (*cratespro.VersionPage, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "views/Service.VersionPage")
	page, err := s.db.GetVersionPage(ctx, namespace, name)
	switch {
	case err == nil:
		return page, nil
	case !errors.Is(err, datastore.ErrNotFound):
		return nil, err
	}

	program, err := s.db.ProgramByName(ctx, namespace, name)
	switch {
	case errors.Is(err, datastore.ErrNotFound):
		program = &cratespro.Program{Name: name, Namespace: namespace}
	case err != nil:
		return nil, err
	}
	rows, err := s.db.VersionsOf(ctx, name)
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(rows))
	byVersion := make(map[string]datastore.VersionRow, len(rows))
	for _, r := range rows {
		versions = append(versions, r.Version)
		byVersion[r.Version] = r
	}
	sortVersionsDesc(versions)

	page = &cratespro.VersionPage{Namespace: namespace, Name: name}
	for _, v := range versions {
		row := byVersion[v]
		dependents, err := s.graph.DirectDependents(ctx, row.Key)
		if err != nil {
			return nil, err
		}
		page.Versions = append(page.Versions, cratespro.VersionPageEntry{
			Version:        v,
			UpdatedAt:      row.CreatedAt,
			Downloads:      program.Downloads,
			DependentCount: len(dependents),
		})
	}
	if err := s.db.PutVersionPage(ctx, page); err != nil {
		return nil, err
	}
	return page, nil
}

// DependencyList returns the direct+indirect dependency view.
func (s *Service) DependencyList(ctx context.Context, namespace, name, version string) (*cratespro.DependencyList, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "views/Service.DependencyList")
	list, err := s.db.GetDependencyList(ctx, namespace, name, version)
	switch {
	case err == nil:
		return list, nil
	case !errors.Is(err, datastore.ErrNotFound):
		return nil, err
	}

	key := cratespro.VersionKey(name, version)
	direct, err := s.graph.DirectDependencies(ctx, key)
	if err != nil {
		return nil, err
	}
	all, _, err := graph.AllDependencies(ctx, s.graph, key)
	if err != nil {
		return nil, err
	}
	isDirect := make(map[string]struct{}, len(direct))
	for _, d := range direct {
		isDirect[d] = struct{}{}
	}

	list = &cratespro.DependencyList{
		DirectCount:   len(direct),
		IndirectCount: len(all) - len(direct),
		Data:          []cratespro.DependencyEntry{},
	}
	for _, dep := range all {
		depName, depVersion, ok := cratespro.SplitVersionKey(dep)
		if !ok {
			continue
		}
		relation := cratespro.RelationIndirect
		if _, ok := isDirect[dep]; ok {
			relation = cratespro.RelationDirect
		}
		own, err := s.graph.DirectDependencies(ctx, dep)
		if err != nil {
			return nil, err
		}
		list.Data = append(list.Data, cratespro.DependencyEntry{
			CrateName:    depName,
			Version:      depVersion,
			Relation:     relation,
			Dependencies: len(own),
		})
	}
	if err := s.db.PutDependencyList(ctx, namespace, name, version, list); err != nil {
		return nil, err
	}
	return list, nil
}

// DependentList returns the reverse view: up to DependentListCap direct and
// as many indirect entries, with uncapped counts alongside.
func (s *Service) DependentList(ctx context.Context, namespace, name, version string) (*cratespro.DependentList, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "views/Service.DependentList")
	list, err := s.db.GetDependentList(ctx, namespace, name, version)
	switch {
	case err == nil:
		return list, nil
	case !errors.Is(err, datastore.ErrNotFound):
		return nil, err
	}

	key := cratespro.VersionKey(name, version)
	direct, err := s.graph.DirectDependents(ctx, key)
	if err != nil {
		return nil, err
	}
	all, _, err := graph.AllDependents(ctx, s.graph, key)
	if err != nil {
		return nil, err
	}
	isDirect := make(map[string]struct{}, len(direct))
	for _, d := range direct {
		isDirect[d] = struct{}{}
	}
	var indirect []string
	for _, k := range all {
		if _, ok := isDirect[k]; !ok {
			indirect = append(indirect, k)
		}
	}

	list = &cratespro.DependentList{
		DirectCount:   len(direct),
		IndirectCount: len(indirect),
		Data:          []cratespro.DependentEntry{},
	}
	appendEntries := func(keys []string, relation string) {
		for i, k := range keys {
			if i == DependentListCap {
				break
			}
			n, v, ok := cratespro.SplitVersionKey(k)
			if !ok {
				continue
			}
			list.Data = append(list.Data, cratespro.DependentEntry{
				CrateName: n,
				Version:   v,
				Relation:  relation,
			})
		}
	}
	appendEntries(direct, cratespro.RelationDirect)
	appendEntries(indirect, cratespro.RelationIndirect)

	if err := s.db.PutDependentList(ctx, namespace, name, version, list); err != nil {
		return nil, err
	}
	return list, nil
}

// DependencyTree returns the recursive tree view.
func (s *Service) DependencyTree(ctx context.Context, namespace, name, version string) (*cratespro.DependencyTreeNode, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "views/Service.DependencyTree")
	tree, err := s.db.GetDependencyTree(ctx, namespace, name, version)
	switch {
	case err == nil:
		return tree, nil
	case !errors.Is(err, datastore.ErrNotFound):
		return nil, err
	}
	tree, err = graph.DependencyTree(ctx, s.graph, s.CveCounter(), cratespro.VersionKey(name, version))
	if err != nil {
		return nil, err
	}
	if err := s.db.PutDependencyTree(ctx, namespace, name, version, tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// blobGet reads the redis front-page blob tier. Any failure is a miss.
func (s *Service) blobGet(ctx context.Context, namespace, name, version string) *cratespro.CrateInfo {
	if s.redis == nil {
		return nil
	}
	raw, err := s.redis.Get(ctx, blobKey(namespace, name, version)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zlog.Warn(ctx).Err(err).Msg("redis read failed")
		}
		return nil
	}
	var info cratespro.CrateInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil
	}
	return &info
}

// blobPut writes the redis front-page blob with a one-week expiry. Failures
// only cost the cache tier.
func (s *Service) blobPut(ctx context.Context, info *cratespro.CrateInfo) {
	if s.redis == nil {
		return
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return
	}
	key := blobKey(info.Namespace, info.Name, info.Version)
	if err := s.redis.Set(ctx, key, raw, blobTTL).Err(); err != nil {
		zlog.Warn(ctx).Err(err).Msg("redis write failed")
	}
}

func blobKey(namespace, name, version string) string {
	return fmt.Sprintf("crates_info:%s:%s:%s", namespace, name, version)
}

func orEmpty(in []cratespro.Advisory) []cratespro.Advisory {
	if in == nil {
		return []cratespro.Advisory{}
	}
	return in
}
