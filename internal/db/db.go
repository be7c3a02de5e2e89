package db

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Open opens (or creates) a SQLite database and applies pending migrations.
// Migrations are versioned .sql files under internal/db/migrations following
// the pattern:
//
//	0001_name.up.sql / 0001_name.down.sql
//
// Every connection starts write transactions with BEGIN IMMEDIATE, so two
// writers never interleave inside a transaction. Use RollbackLast to revert
// the last applied migration.
func Open(path string) (*sqlx.DB, error) {
	if path == "" {
		path = "lending.db"
	}
	memory := isMemory(path)

	d, err := sqlx.Open("sqlite3", dsn(path, memory))
	if err != nil {
		return nil, err
	}
	if memory {
		// Each new connection to a private in-memory database is a fresh, empty database.
		d.SetMaxOpenConns(1)
	}
	if err := d.Ping(); err != nil {
		_ = d.Close()
		return nil, err
	}
	if err := applyMigrations(d); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// RollbackLast rolls back the most recently applied migration.
func RollbackLast(d *sqlx.DB) error {
	if d == nil {
		return errors.New("nil db")
	}
	m, err := newMigrator(d)
	if err != nil {
		return err
	}
	if _, _, err := m.Version(); errors.Is(err, migrate.ErrNilVersion) {
		return nil // nothing to rollback
	} else if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Version returns the current schema version and whether it is dirty.
func Version(d *sqlx.DB) (uint, bool, error) {
	m, err := newMigrator(d)
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func applyMigrations(d *sqlx.DB) error {
	m, err := newMigrator(d)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// newMigrator binds golang-migrate to the embedded migrations and the open DB.
// The migrator is deliberately not closed: closing it would close d.
func newMigrator(d *sqlx.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(d.DB, &migratesqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	return migrate.NewWithInstance("iofs", src, "sqlite3", driver)
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// dsn appends the connection parameters go-sqlite3 understands.
func dsn(path string, memory bool) string {
	params := []string{"_foreign_keys=1", "_busy_timeout=5000", "_txlock=immediate"}
	if !memory {
		params = append(params, "_journal_mode=WAL")
	}
	if path == ":memory:" {
		path = "file::memory:"
	} else if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(params, "&")
}
