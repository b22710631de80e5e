// Package storage persists learned patterns and review suggestions in SQLite.
// The schema is managed by golang-migrate from migrations embedded in the binary.
package storage

import (
	"context"
	"database/sql"
	"embed"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryPath opens a private in-memory database, used by tests and dry runs
const MemoryPath = ":memory:"

const timeLayout = time.RFC3339Nano

// Store is the SQLite-backed pattern store and suggestion sink
type Store struct {
	db     *sql.DB
	logger logger.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the database at path and applies pending migrations
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path != MemoryPath {
		dsn = fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "open "+path, err)
	}

	// One connection keeps writers serialised and an in-memory database alive
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.StorageError(errors.CodeQueryFailed, "ping "+path, err)
	}

	store := &Store{
		db:     db,
		logger: logger.GetGlobalLogger().WithComponent("storage"),
		now:    time.Now,
	}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return errors.StorageError(errors.CodeMigrationFailed, "load migrations", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return errors.StorageError(errors.CodeMigrationFailed, "create migration driver", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return errors.StorageError(errors.CodeMigrationFailed, "create migrator", err)
	}

	// m.Close would close the shared *sql.DB, so only the source is released.
	defer func() { _ = source.Close() }()

	if err := m.Up(); err != nil {
		if stderrors.Is(err, migrate.ErrNoChange) {
			s.logger.Debug("No new database migrations to apply")
			return nil
		}
		return errors.StorageError(errors.CodeMigrationFailed, "apply migrations", err)
	}

	version, _, _ := m.Version()
	s.logger.WithField("version", version).Info("Database migrations applied")
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isNoRows(err error) bool {
	return stderrors.Is(err, sql.ErrNoRows)
}
