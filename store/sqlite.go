// SQLite-backed artifact storage.
//
// Information Hiding:
// - SQLite connection management hidden behind the Artifacts interface
// - Schema and migration details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SqliteArtifacts implements Artifacts using a SQLite database file.
// Each artifact row also tracks access time and count.
type SqliteArtifacts struct {
	db *sql.DB
}

// OpenSqliteArtifacts opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqliteArtifacts(path string) (*SqliteArtifacts, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	a := &SqliteArtifacts{db: db}
	if err := a.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return a, nil
}

// NewSqliteArtifactsInMemory creates an in-memory database (useful for testing).
func NewSqliteArtifactsInMemory() (*SqliteArtifacts, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}

	a := &SqliteArtifacts{db: db}
	if err := a.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return a, nil
}

// Close closes the database connection.
func (a *SqliteArtifacts) Close() error {
	return a.db.Close()
}

func (a *SqliteArtifacts) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS artifacts (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			byte_size INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			accessed_at INTEGER NOT NULL,
			access_count INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_artifacts_created
		ON artifacts(created_at);
	`
	if _, err := a.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Save stores value under key, overwriting any existing value.
func (a *SqliteArtifacts) Save(ctx context.Context, key, value string) error {
	now := time.Now().Unix()
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO artifacts (key, value, byte_size, created_at, accessed_at, access_count)
		VALUES (?, ?, ?, ?, ?, 0)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			byte_size = excluded.byte_size,
			accessed_at = excluded.accessed_at`,
		key, value, len(value), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save artifact %q: %w", key, err)
	}
	return nil
}

// Get returns the value for key, or defaultValue if the key is absent.
// Updates access tracking on hit.
func (a *SqliteArtifacts) Get(ctx context.Context, key, defaultValue string) (string, error) {
	var value string
	err := a.db.QueryRowContext(ctx,
		"SELECT value FROM artifacts WHERE key = ?", key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return defaultValue, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get artifact %q: %w", key, err)
	}

	if _, err := a.db.ExecContext(ctx,
		"UPDATE artifacts SET accessed_at = ?, access_count = access_count + 1 WHERE key = ?",
		time.Now().Unix(), key,
	); err != nil {
		// Access tracking is best effort; the read already succeeded.
		fmt.Fprintf(os.Stderr, "store: failed to update access tracking for %q: %v\n", key, err)
	}
	return value, nil
}

// List returns all keys starting with prefix.
func (a *SqliteArtifacts) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := a.db.QueryContext(ctx,
		"SELECT key FROM artifacts WHERE key LIKE ? || '%' ORDER BY key",
		prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts with prefix %q: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan artifact key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate artifact keys: %w", err)
	}
	return keys, nil
}

var _ Artifacts = (*SqliteArtifacts)(nil)
