package postgres

import (
	"context"
	"fmt"
	"time"

	cratespro "github.com/crates-pro/crates-pro"
)

// StoreResult implements datastore.AnalysisStore.
func (s *Store) StoreResult(ctx context.Context, res *cratespro.ScanResult) error {
	const query = `
	INSERT INTO analysis_results (id, tool, blob, failed)
	VALUES ($1, $2, $3, FALSE)
	ON CONFLICT (id, tool) DO UPDATE
	SET blob = EXCLUDED.blob, failed = FALSE, created_at = NOW();
	`
	start := time.Now()
	defer observe("store_result", start)
	if _, err := s.pool.Exec(ctx, query, res.ID, res.Tool, res.Blob); err != nil {
		return fmt.Errorf("StoreResult failed: %w", err)
	}
	return nil
}

// MarkScanFailed implements datastore.AnalysisStore.
func (s *Store) MarkScanFailed(ctx context.Context, id, tool string) error {
	const query = `
	INSERT INTO analysis_results (id, tool, blob, failed)
	VALUES ($1, $2, '', TRUE)
	ON CONFLICT (id, tool) DO NOTHING;
	`
	start := time.Now()
	defer observe("mark_scan_failed", start)
	if _, err := s.pool.Exec(ctx, query, id, tool); err != nil {
		return fmt.Errorf("MarkScanFailed failed: %w", err)
	}
	return nil
}

// HasResult implements datastore.AnalysisStore.
func (s *Store) HasResult(ctx context.Context, id, tool string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM analysis_results WHERE id = $1 AND tool = $2);`
	start := time.Now()
	defer observe("has_result", start)
	var ok bool
	if err := s.pool.QueryRow(ctx, query, id, tool).Scan(&ok); err != nil {
		return false, fmt.Errorf("HasResult failed: %w", err)
	}
	return ok, nil
}
