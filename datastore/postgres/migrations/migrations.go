// Package migrations contains the relational schema migrations.
//
// It's expected that github.com/remind101/migrate will be used to apply
// these, but it's possible to do this manually if the user needs something
// specific.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"path"

	"github.com/remind101/migrate"
)

// MigrationTable is the canonical name of the migration metadata table.
const MigrationTable = "cratespro_migrations"

// Migrations are applied in lexical file order.
var Migrations []migrate.Migration

//go:embed *.sql
var sys embed.FS

func init() {
	ents, err := fs.ReadDir(sys, ".")
	if err != nil {
		panic(fmt.Errorf("programmer error: unable to read embed: %w", err))
	}
	id := 1
	for _, ent := range ents {
		if path.Ext(ent.Name()) != ".sql" || !ent.Type().IsRegular() {
			continue
		}
		name := ent.Name()
		Migrations = append(Migrations, migrate.Migration{
			ID: id,
			Up: func(tx *sql.Tx) error {
				f, err := sys.Open(name)
				if err != nil {
					return err
				}
				defer f.Close()
				b, err := io.ReadAll(f)
				if err != nil {
					return err
				}
				if _, err := tx.Exec(string(b)); err != nil {
					return fmt.Errorf("migration %s: %w", name, err)
				}
				return nil
			},
		})
		id++
	}
}
