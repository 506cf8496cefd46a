// Package db stores exported coverage reports and the raw pose log in
// sqlite, with schema managed by embedded golang-migrate migrations.
package db

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/missionmap/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationsFS returns the embedded migration files, rooted so that the
// .sql files live under "migrations".
func MigrationsFS() fs.FS {
	return migrationsFS
}

type DB struct {
	*sql.DB
	path string
	base monitoring.Logf
	logf monitoring.Logf
}

// OpenDB opens the database at path without touching the schema.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// ":memory:" databases exist per connection.
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	db := &DB{DB: sqlDB, path: path}
	db.SetLogger(nil)
	return db, nil
}

// NewDB opens the database at path and migrates it to the latest schema.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(MigrationsFS()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// SetLogger replaces the diagnostic logger.
func (db *DB) SetLogger(logf monitoring.Logf) {
	db.base = monitoring.OrDefault(logf)
	db.logf = monitoring.WithPrefix(db.base, "db")
}

// Path returns the path the database was opened with.
func (db *DB) Path() string { return db.path }
