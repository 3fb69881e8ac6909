package postgres

import (
	"context"
	"fmt"
	"time"
)

// RecordUploadedCrate implements datastore.UploadStore.
func (s *Store) RecordUploadedCrate(ctx context.Context, email, filename string, uploadedAt time.Time) error {
	const query = `
	INSERT INTO uploaded_crates (email, filename, uploaded_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (email, filename, uploaded_at) DO NOTHING;
	`
	start := time.Now()
	defer observe("record_uploaded_crate", start)
	if _, err := s.pool.Exec(ctx, query, email, filename, uploadedAt); err != nil {
		return fmt.Errorf("RecordUploadedCrate failed: %w", err)
	}
	return nil
}

// RecordUploadedURL implements datastore.UploadStore.
func (s *Store) RecordUploadedURL(ctx context.Context, email, url string, uploadedAt time.Time) error {
	const query = `
	INSERT INTO uploaded_urls (email, url, uploaded_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (email, url, uploaded_at) DO NOTHING;
	`
	start := time.Now()
	defer observe("record_uploaded_url", start)
	if _, err := s.pool.Exec(ctx, query, email, url, uploadedAt); err != nil {
		return fmt.Errorf("RecordUploadedURL failed: %w", err)
	}
	return nil
}

// UploadsByEmail implements datastore.UploadStore.
func (s *Store) UploadsByEmail(ctx context.Context, email string) ([]string, error) {
	const query = `
	SELECT filename FROM uploaded_crates WHERE email = $1
	UNION ALL
	SELECT url FROM uploaded_urls WHERE email = $1;
	`
	start := time.Now()
	defer observe("uploads_by_email", start)
	rows, err := s.pool.Query(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("UploadsByEmail failed: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("UploadsByEmail scan failed: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// UpsertCrateUser implements datastore.UploadStore.
func (s *Store) UpsertCrateUser(ctx context.Context, email, name string) error {
	const query = `
	INSERT INTO crate_users (email, name)
	VALUES ($1, $2)
	ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name;
	`
	start := time.Now()
	defer observe("upsert_crate_user", start)
	if _, err := s.pool.Exec(ctx, query, email, name); err != nil {
		return fmt.Errorf("UpsertCrateUser failed: %w", err)
	}
	return nil
}
