package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// New creates a new SQLite storage backend
func New(path string) (*SQLiteStorage, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: SQLite allows one writer, and the claim path
	// issues raw BEGIN IMMEDIATE statements that must not interleave
	// across pooled connections.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// beginImmediate acquires a dedicated connection and starts an IMMEDIATE
// transaction on it. IMMEDIATE takes the write lock up front, which is what
// makes the claim operation atomic across concurrent workers: two claimants
// serialize on the lock and the second one sees the first one's update.
//
// database/sql's BeginTx always uses DEFERRED mode with this driver, so we
// issue the raw statement ourselves. The returned release func rolls back
// unless commit succeeded.
func (s *SQLiteStorage) beginImmediate(ctx context.Context) (*sql.Conn, func(), error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to begin immediate transaction: %w", err)
	}

	release := func() {
		// No-op after a successful COMMIT: rolling back outside a
		// transaction just returns an error we ignore. Background context
		// so rollback still runs when ctx is canceled.
		_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		conn.Close()
	}

	return conn, release, nil
}

// commitImmediate commits an IMMEDIATE transaction started by beginImmediate.
func commitImmediate(ctx context.Context, conn *sql.Conn) error {
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isUniqueConstraintError checks if an error is a unique constraint violation
func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// scanNullTime converts a nullable column into a *time.Time
func scanNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
