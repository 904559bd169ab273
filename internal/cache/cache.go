// Package cache provides a small read-through cache used for hot, rarely
// changing reads such as the tier catalog.
package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	DefaultExpiration      = 5 * time.Minute
	DefaultCleanupInterval = 10 * time.Minute
)

// Cache is the minimal interface services depend on.
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, bool)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
	Delete(ctx context.Context, key string)
	DeleteByPrefix(ctx context.Context, prefix string)
}

// TierKey is the cache key for a tier looked up by code.
func TierKey(code string) string {
	return fmt.Sprintf("tier:code:%s", code)
}

// TierListKey is the cache key for the full published tier catalog.
func TierListKey() string {
	return "tier:list"
}
