package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/quay/zlog"

	cratespro "github.com/crates-pro/crates-pro"
	"github.com/crates-pro/crates-pro/datastore"
)

// UpsertProgram implements datastore.MirrorStore.
func (s *Store) UpsertProgram(ctx context.Context, p *cratespro.Program, license string) error {
	const insertProgram = `
	INSERT INTO programs (id, name, description, namespace, max_version,
		github_url, mega_url, doc_url, program_type, downloads, in_cratesio)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (namespace, name) DO NOTHING;
	`
	const insertLicense = `
	INSERT INTO licenses (program_id, namespace, name, license)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT DO NOTHING;
	`
	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/Store.UpsertProgram")

	start := time.Now()
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertProgram,
			p.ID, p.Name, p.Description, p.Namespace, p.MaxVersion,
			p.GithubURL, p.MegaURL, p.DocURL, string(p.Kind), p.Downloads, p.InCratesio,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, insertLicense, p.ID, p.Namespace, p.Name, license)
		return err
	})
	observe("upsert_program", start)
	if err != nil {
		return fmt.Errorf("UpsertProgram failed: %w", err)
	}
	zlog.Debug(ctx).Str("name", p.Name).Msg("program mirrored")
	return nil
}

// UpsertVersion implements datastore.MirrorStore.
func (s *Store) UpsertVersion(ctx context.Context, v *cratespro.Version, deps []cratespro.Dependency) error {
	const insertVersion = `
	INSERT INTO program_versions (name_and_version, id, name, version, documentation, version_type)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (name_and_version) DO NOTHING;
	`
	const insertDep = `
	INSERT INTO program_dependencies (name_and_version, dependency_name, dependency_version)
	VALUES ($1, $2, $3)
	ON CONFLICT (name_and_version, dependency_name, dependency_version) DO NOTHING;
	`
	start := time.Now()
	var batch pgx.Batch
	batch.Queue(insertVersion, v.Key, v.ProgramID, v.Name, v.Version, v.Documentation, string(v.Kind))
	for _, d := range deps {
		batch.Queue(insertDep, v.Key, d.Name, d.Version)
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, &batch).Close()
	})
	observe("upsert_version", start)
	if err != nil {
		return fmt.Errorf("UpsertVersion failed: %w", err)
	}
	return nil
}

// ProgramByName implements datastore.MirrorStore.
func (s *Store) ProgramByName(ctx context.Context, namespace, name string) (*cratespro.Program, error) {
	const query = `
	SELECT id, name, description, namespace, max_version, github_url,
		mega_url, doc_url, program_type, downloads, in_cratesio
	FROM programs
	WHERE namespace = $1 AND name = $2;
	`
	start := time.Now()
	defer observe("program_by_name", start)
	var p cratespro.Program
	var kind string
	err := s.pool.QueryRow(ctx, query, namespace, name).Scan(
		&p.ID, &p.Name, &p.Description, &p.Namespace, &p.MaxVersion,
		&p.GithubURL, &p.MegaURL, &p.DocURL, &kind, &p.Downloads, &p.InCratesio,
	)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, datastore.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("ProgramByName failed: %w", err)
	}
	p.Kind = cratespro.ProgramKind(kind)
	return &p, nil
}

// AllPrograms implements datastore.MirrorStore.
func (s *Store) AllPrograms(ctx context.Context) ([]*cratespro.Program, error) {
	const query = `
	SELECT id, name, description, namespace, max_version, github_url,
		mega_url, doc_url, program_type, downloads, in_cratesio
	FROM programs;
	`
	start := time.Now()
	defer observe("all_programs", start)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("AllPrograms failed: %w", err)
	}
	defer rows.Close()
	var out []*cratespro.Program
	for rows.Next() {
		var p cratespro.Program
		var kind string
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Description, &p.Namespace, &p.MaxVersion,
			&p.GithubURL, &p.MegaURL, &p.DocURL, &kind, &p.Downloads, &p.InCratesio,
		); err != nil {
			return nil, fmt.Errorf("AllPrograms scan failed: %w", err)
		}
		p.Kind = cratespro.ProgramKind(kind)
		out = append(out, &p)
	}
	return out, rows.Err()
}

// VersionsOf implements datastore.MirrorStore.
func (s *Store) VersionsOf(ctx context.Context, name string) ([]datastore.VersionRow, error) {
	const query = `
	SELECT name_and_version, id, name, version, version_type, created_at
	FROM program_versions
	WHERE name = $1;
	`
	start := time.Now()
	defer observe("versions_of", start)
	rows, err := s.pool.Query(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("VersionsOf failed: %w", err)
	}
	defer rows.Close()
	var out []datastore.VersionRow
	for rows.Next() {
		var r datastore.VersionRow
		var kind string
		if err := rows.Scan(&r.Key, &r.ProgramID, &r.Name, &r.Version, &kind, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("VersionsOf scan failed: %w", err)
		}
		r.Kind = cratespro.ProgramKind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}

// LicenseFor implements datastore.MirrorStore.
func (s *Store) LicenseFor(ctx context.Context, namespace, name string) (string, error) {
	const query = `SELECT license FROM licenses WHERE namespace = $1 AND name = $2;`
	start := time.Now()
	defer observe("license_for", start)
	var license *string
	err := s.pool.QueryRow(ctx, query, namespace, name).Scan(&license)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("LicenseFor failed: %w", err)
	case license == nil:
		return "", nil
	}
	return *license, nil
}

// MarkRepoInvalid implements datastore.MirrorStore.
func (s *Store) MarkRepoInvalid(ctx context.Context, namespace, name string) error {
	const query = `UPDATE programs SET repo_invalid = TRUE WHERE namespace = $1 AND name = $2;`
	start := time.Now()
	defer observe("mark_repo_invalid", start)
	if _, err := s.pool.Exec(ctx, query, namespace, name); err != nil {
		return fmt.Errorf("MarkRepoInvalid failed: %w", err)
	}
	return nil
}

// UpsertSyncStatus implements datastore.MirrorStore.
func (s *Store) UpsertSyncStatus(ctx context.Context, ev *cratespro.RepoSyncEvent) error {
	const query = `
	INSERT INTO repo_sync_status (id, crate_name, github_url, mega_url, crate_type, status, err_message, version)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO UPDATE
	SET status = EXCLUDED.status, err_message = EXCLUDED.err_message;
	`
	start := time.Now()
	defer observe("upsert_sync_status", start)
	if _, err := s.pool.Exec(ctx, query,
		ev.ID, ev.CrateName, ev.GithubURL, ev.MegaURL,
		string(ev.CrateType), string(ev.Status), ev.ErrMessage, ev.Version,
	); err != nil {
		return fmt.Errorf("UpsertSyncStatus failed: %w", err)
	}
	return nil
}
