package memory

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/httpfs"
)

// migrationLogger adapts the package logger to the migrate.Logger interface.
type migrationLogger struct{}

// Printf implements the migrate.Logger interface.
func (m *migrationLogger) Printf(format string, v ...any) {
	// Trim trailing newlines from the format.
	format = strings.TrimRight(format, "\n")
	log.Infof(format, v...)
}

// Verbose returns true when verbose logging is enabled.
func (m *migrationLogger) Verbose() bool {
	return true
}

// applyMigrations executes the embedded migration files against the given
// database, bringing the schema up to the latest version. Running against an
// already-migrated database is a no-op.
func applyMigrations(db *sql.DB) error {
	driver, err := msqlite.WithInstance(db, &msqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Create a new migration source using the embedded file system.
	migrateFileServer, err := httpfs.New(http.FS(sqlSchemas), "migrations")
	if err != nil {
		return err
	}

	// Create the migration instance with our driver and source.
	sqlMigrate, err := migrate.NewWithInstance(
		"migrations", migrateFileServer, "lethe", driver,
	)
	if err != nil {
		return err
	}

	// If the migration version is dirty, we should not proceed with
	// further migrations, as this indicates that a previous migration did
	// not complete successfully and requires manual intervention.
	version, dirty, err := sqlMigrate.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("unable to determine current migration "+
			"version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in a dirty state at version "+
			"%v, manual intervention required", version)
	}

	// Apply our local logger to the migration instance.
	sqlMigrate.Log = &migrationLogger{}

	if err := sqlMigrate.Up(); err != nil &&
		!errors.Is(err, migrate.ErrNoChange) {

		return err
	}

	return nil
}
