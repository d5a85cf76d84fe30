package storage

import (
	"context"
	"fmt"
	"strings"
)

// Open builds a StoreSet for the named driver: memory, sqlite, postgres or redis.
func Open(ctx context.Context, driver, dsn string) (StoreSet, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "memory":
		return NewMemoryStores(), nil
	case "sqlite":
		return NewSQLiteStores(ctx, dsn)
	case "postgres", "postgresql":
		return NewPostgresStoresFromDSN(dsn, nil)
	case "redis":
		return NewRedisStoresFromURL(ctx, dsn)
	default:
		return StoreSet{}, fmt.Errorf("unknown storage driver %q", driver)
	}
}
