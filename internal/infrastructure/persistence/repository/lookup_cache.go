package repository

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LookupCache memoizes lookup-name to surrogate-id resolution.
// Status and type tables are seeded once and rarely change.
type LookupCache interface {
	Get(key string) (int64, bool)
	Add(key string, id int64) bool
}

// NewLookupCache returns an expiring LRU cache, or nil when size <= 0
func NewLookupCache(size int, ttl time.Duration) LookupCache {
	if size <= 0 {
		return nil
	}
	return expirable.NewLRU[string, int64](size, nil, ttl)
}
