package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// NewSQLiteStores opens (or creates) a SQLite database at path and applies the schema.
// The special path ":memory:" yields a private in-process database.
func NewSQLiteStores(ctx context.Context, path string) (StoreSet, error) {
	if strings.TrimSpace(path) == "" {
		return StoreSet{}, fmt.Errorf("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return StoreSet{}, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers; one connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil && path != ":memory:" {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("enable wal: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return StoreSet{}, err
	}
	return newSQLStores(db, false), nil
}
