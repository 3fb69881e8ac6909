package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	cratespro "github.com/crates-pro/crates-pro"
	"github.com/crates-pro/crates-pro/datastore"
)

// The derived views are stored one row per key with the rendered view as a
// jsonb column. Reads hand the blob straight back to the API layer; a
// refresh is a primary-key upsert where the last writer wins.

func (s *Store) getView(ctx context.Context, method, table string, key []any, out any) error {
	var query string
	switch len(key) {
	case 2:
		query = fmt.Sprintf(`SELECT content FROM %s WHERE namespace = $1 AND name = $2;`, table)
	case 3:
		query = fmt.Sprintf(`SELECT content FROM %s WHERE namespace = $1 AND name = $2 AND version = $3;`, table)
	default:
		panic("programmer error: view keys are 2 or 3 columns")
	}
	start := time.Now()
	defer observe(method, start)
	var raw []byte
	err := s.pool.QueryRow(ctx, query, key...).Scan(&raw)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return datastore.ErrNotFound
	case err != nil:
		return fmt.Errorf("%s failed: %w", method, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s decode failed: %w", method, err)
	}
	return nil
}

func (s *Store) putView(ctx context.Context, method, table string, key []any, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s encode failed: %w", method, err)
	}
	var query string
	switch len(key) {
	case 2:
		query = fmt.Sprintf(`
		INSERT INTO %s (namespace, name, content, refreshed_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (namespace, name) DO UPDATE
		SET content = EXCLUDED.content, refreshed_at = NOW();`, table)
	case 3:
		query = fmt.Sprintf(`
		INSERT INTO %s (namespace, name, version, content, refreshed_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (namespace, name, version) DO UPDATE
		SET content = EXCLUDED.content, refreshed_at = NOW();`, table)
	default:
		panic("programmer error: view keys are 2 or 3 columns")
	}
	start := time.Now()
	defer observe(method, start)
	args := append(key, raw)
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("%s failed: %w", method, err)
	}
	return nil
}

// GetCrateInfo implements datastore.ViewStore.
func (s *Store) GetCrateInfo(ctx context.Context, namespace, name, version string) (*cratespro.CrateInfo, error) {
	var info cratespro.CrateInfo
	if err := s.getView(ctx, "get_crate_info", "crate_info_views", []any{namespace, name, version}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// PutCrateInfo implements datastore.ViewStore.
func (s *Store) PutCrateInfo(ctx context.Context, info *cratespro.CrateInfo) error {
	return s.putView(ctx, "put_crate_info", "crate_info_views",
		[]any{info.Namespace, info.Name, info.Version}, info)
}

// GetVersionPage implements datastore.ViewStore.
func (s *Store) GetVersionPage(ctx context.Context, namespace, name string) (*cratespro.VersionPage, error) {
	var page cratespro.VersionPage
	if err := s.getView(ctx, "get_version_page", "version_page_views", []any{namespace, name}, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// PutVersionPage implements datastore.ViewStore.
func (s *Store) PutVersionPage(ctx context.Context, page *cratespro.VersionPage) error {
	return s.putView(ctx, "put_version_page", "version_page_views",
		[]any{page.Namespace, page.Name}, page)
}

// GetDependencyList implements datastore.ViewStore.
func (s *Store) GetDependencyList(ctx context.Context, namespace, name, version string) (*cratespro.DependencyList, error) {
	var list cratespro.DependencyList
	if err := s.getView(ctx, "get_dependency_list", "dependency_list_views", []any{namespace, name, version}, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// PutDependencyList implements datastore.ViewStore.
func (s *Store) PutDependencyList(ctx context.Context, namespace, name, version string, list *cratespro.DependencyList) error {
	return s.putView(ctx, "put_dependency_list", "dependency_list_views",
		[]any{namespace, name, version}, list)
}

// GetDependentList implements datastore.ViewStore.
func (s *Store) GetDependentList(ctx context.Context, namespace, name, version string) (*cratespro.DependentList, error) {
	var list cratespro.DependentList
	if err := s.getView(ctx, "get_dependent_list", "dependent_list_views", []any{namespace, name, version}, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// PutDependentList implements datastore.ViewStore.
func (s *Store) PutDependentList(ctx context.Context, namespace, name, version string, list *cratespro.DependentList) error {
	return s.putView(ctx, "put_dependent_list", "dependent_list_views",
		[]any{namespace, name, version}, list)
}

// GetDependencyTree implements datastore.ViewStore.
func (s *Store) GetDependencyTree(ctx context.Context, namespace, name, version string) (*cratespro.DependencyTreeNode, error) {
	var tree cratespro.DependencyTreeNode
	if err := s.getView(ctx, "get_dependency_tree", "dependency_tree_views", []any{namespace, name, version}, &tree); err != nil {
		return nil, err
	}
	return &tree, nil
}

// PutDependencyTree implements datastore.ViewStore.
func (s *Store) PutDependencyTree(ctx context.Context, namespace, name, version string, tree *cratespro.DependencyTreeNode) error {
	return s.putView(ctx, "put_dependency_tree", "dependency_tree_views",
		[]any{namespace, name, version}, tree)
}
