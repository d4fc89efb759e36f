package paging

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyops/kennel/internal/core/kv"
)

const totalsNamespace = "paging.total"

// TotalTTL bounds how long a cached total is offered as an estimate.
const TotalTTL = 7 * 24 * time.Hour

// TotalStore persists the first real total of unfiltered views per
// collection. Failures are logged and ignored.
type TotalStore struct {
	cache *kv.TypedKV[int]
	log   zerolog.Logger
}

// NewTotalStore wraps a KV store.
func NewTotalStore(store kv.KV, log zerolog.Logger) *TotalStore {
	return &TotalStore{cache: kv.Scoped[int](store, totalsNamespace).WithTTL(TotalTTL), log: log}
}

// Load returns the cached total for collection.
func (t *TotalStore) Load(ctx context.Context, collection string) (int, bool) {
	n, ok, err := t.cache.Lookup(ctx, collection)
	if err != nil {
		t.log.Warn().Err(err).Str("collection", collection).Msg("total cache read failed")
		return 0, false
	}
	return n, ok
}

// Store records total for collection.
func (t *TotalStore) Store(ctx context.Context, collection string, total int) {
	if err := t.cache.Set(ctx, collection, total); err != nil {
		t.log.Warn().Err(err).Str("collection", collection).Msg("total cache write failed")
	}
}
