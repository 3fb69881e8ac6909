// Package postgres implements the datastore interfaces over a pooled
// postgres connection.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/crates-pro/crates-pro/datastore"
)

var (
	queryCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cratespro",
			Subsystem: "datastore",
			Name:      "query_total",
			Help:      "Total number of database queries issued per store method.",
		},
		[]string{"query"},
	)
	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cratespro",
			Subsystem: "datastore",
			Name:      "query_duration_seconds",
			Help:      "The duration of database queries issued per store method.",
		},
		[]string{"query"},
	)
)

// observe records one query under the method's label.
func observe(name string, start time.Time) {
	queryCounter.WithLabelValues(name).Add(1)
	queryDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

var _ datastore.Store = (*Store)(nil)

// Store is the pgx-backed implementation of datastore.Store.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an existing pool. Callers own migration; see InitPostgres
// for the whole connect-and-migrate path.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect initializes a pgxpool from the connection string.
func Connect(ctx context.Context, connString, applicationName string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ConnString: %w", err)
	}
	cfg.MaxConns = 30
	const appnameKey = `application_name`
	params := cfg.ConnConfig.RuntimeParams
	if _, ok := params[appnameKey]; !ok {
		params[appnameKey] = applicationName
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create ConnPool: %w", err)
	}
	return pool, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }
