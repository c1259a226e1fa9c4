package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore provides access to a local SQLite database. It is the
// single-node deployment option; the schema mirrors the Postgres one.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLite opens a new connection to the SQLite database.
func NewSQLite(ctx context.Context, databasePath string, logger *slog.Logger) (*SQLiteStore, error) {
	path := strings.TrimSpace(databasePath)
	if path == "" {
		return nil, fmt.Errorf("sqlite database path is empty")
	}
	// Busy timeout and WAL mode are recommended for SQLite concurrency.
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn = fmt.Sprintf("%s%s_pragma=busy_timeout=10000&_pragma=journal_mode=WAL&_pragma=foreign_keys=ON", dsn, sep)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store_sqlite"),
	}, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// Ping ensures the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RunMigrations applies the SQLite schema from the embedded filesystem.
func (s *SQLiteStore) RunMigrations(ctx context.Context, filesystem fs.FS) error {
	entries, err := fs.ReadDir(filesystem, "sqlite")
	if err != nil {
		return fmt.Errorf("read sqlite migrations: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		sqlContent, err := fs.ReadFile(filesystem, "sqlite/"+entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(sqlContent)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}
