package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// migrationsTable keeps the ledger's schema version apart from any other
// migrate user of the same database file.
const migrationsTable = "gosplice_schema_migrations"

//go:embed migrations/*.sql
var migrationFiles embed.FS

// RunMigrations brings the ledger schema up to the newest embedded version.
func (s *PersistentStore) RunMigrations() error {
	return migrateUp(s.db, migrationFiles, "migrations", migrationsTable)
}

// SchemaVersion reports the applied ledger migration and whether it was left dirty.
func (s *PersistentStore) SchemaVersion() (uint, bool, error) {
	return schemaVersion(s.db, migrationsTable)
}

// migrateUp applies every *.up.sql under dir in fsys, recording progress in table.
// The migrate instance is not closed: that would close db as well.
func migrateUp(db *sql.DB, fsys fs.FS, dir, table string) error {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations from %s: %w", dir, err)
	}

	// The migrate sqlite driver accepts the modernc connection
	driver, err := sqlite.WithInstance(db, &sqlite.Config{MigrationsTable: table})
	if err != nil {
		return fmt.Errorf("failed to prepare %s: %w", table, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

func schemaVersion(db *sql.DB, table string) (uint, bool, error) {
	var (
		version uint
		dirty   bool
	)

	err := db.QueryRow("SELECT version, dirty FROM " + table + " LIMIT 1").Scan(&version, &dirty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, dirty, nil
}
