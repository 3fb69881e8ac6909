package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v8"
	_ "github.com/doug-martin/goqu/v8/dialect/postgres"
	"github.com/jackc/pgx/v5"

	cratespro "github.com/crates-pro/crates-pro"
)

var psql = goqu.Dialect("postgres")

// UpsertAdvisories implements datastore.VulnerabilityStore.
func (s *Store) UpsertAdvisories(ctx context.Context, advisories []cratespro.Advisory) error {
	const insert = `
	INSERT INTO vulnerabilities (id, crate_name, patched, aliases, description)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO NOTHING;
	`
	start := time.Now()
	var batch pgx.Batch
	for _, a := range advisories {
		aliases := a.Aliases
		if aliases == nil {
			aliases = []string{}
		}
		batch.Queue(insert, a.ID, a.CrateName, a.Patched, aliases, a.Description)
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, &batch).Close()
	})
	observe("upsert_advisories", start)
	if err != nil {
		return fmt.Errorf("UpsertAdvisories failed: %w", err)
	}
	return nil
}

// AdvisoriesForCrate implements datastore.VulnerabilityStore.
func (s *Store) AdvisoriesForCrate(ctx context.Context, name string) ([]cratespro.Advisory, error) {
	sql, args, err := psql.From("vulnerabilities").
		Select("id", "crate_name", "patched", "aliases", "description").
		Where(goqu.C("crate_name").Eq(name)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("AdvisoriesForCrate query build failed: %w", err)
	}
	start := time.Now()
	defer observe("advisories_for_crate", start)
	return s.queryAdvisories(ctx, sql, args...)
}

// AllAdvisories implements datastore.VulnerabilityStore.
func (s *Store) AllAdvisories(ctx context.Context) ([]cratespro.Advisory, error) {
	sql, _, err := psql.From("vulnerabilities").
		Select("id", "crate_name", "patched", "aliases", "description").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("AllAdvisories query build failed: %w", err)
	}
	start := time.Now()
	defer observe("all_advisories", start)
	return s.queryAdvisories(ctx, sql)
}

func (s *Store) queryAdvisories(ctx context.Context, sql string, args ...any) ([]cratespro.Advisory, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("advisory query failed: %w", err)
	}
	defer rows.Close()
	var out []cratespro.Advisory
	for rows.Next() {
		var a cratespro.Advisory
		var desc *string
		if err := rows.Scan(&a.ID, &a.CrateName, &a.Patched, &a.Aliases, &desc); err != nil {
			return nil, fmt.Errorf("advisory scan failed: %w", err)
		}
		if desc != nil {
			a.Description = *desc
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
