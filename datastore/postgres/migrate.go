package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/quay/zlog"
	"github.com/remind101/migrate"

	"github.com/crates-pro/crates-pro/datastore/postgres/migrations"
)

// InitPostgres connects, applies migrations, and returns a ready Store.
func InitPostgres(ctx context.Context, connString string) (*Store, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/InitPostgres")
	pool, err := Connect(ctx, connString, "cratespro")
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("pgx", connString)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("opening migration connection: %w", err)
	}
	defer db.Close()
	migrator := migrate.NewPostgresMigrator(db)
	migrator.Table = migrations.MigrationTable
	if err := migrator.Exec(migrate.Up, migrations.Migrations...); err != nil {
		pool.Close()
		return nil, fmt.Errorf("applying migrations: %w", err)
	}
	zlog.Info(ctx).Msg("relational store ready")
	return NewStore(pool), nil
}
