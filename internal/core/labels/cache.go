package labels

import (
	"context"
	"time"

	"github.com/colonyops/kennel/pkg/kv"
)

// Provenance records where a cache entry came from.
type Provenance string

const (
	ProvenanceLocal  Provenance = "local"
	ProvenanceRemote Provenance = "remote"
)

// Entry maps one dictionary id to its label within a table.
type Entry struct {
	Table      string     `json:"table"`
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Label      string     `json:"label"`
	Provenance Provenance `json:"provenance"`
	InsertedAt time.Time  `json:"inserted_at"`
}

// Cache is the local dictionary scope the resolver consults first. Upserts
// must be idempotent so concurrent duplicate writes are harmless.
type Cache interface {
	// Count returns how many entries the table holds locally.
	Count(ctx context.Context, table string) (int, error)
	ByID(ctx context.Context, table, id string) (Entry, bool, error)
	ByLabel(ctx context.Context, table, label string) (Entry, bool, error)
	// LabelCount returns how many ids of the table share label.
	LabelCount(ctx context.Context, table, label string) (int, error)
	Upsert(ctx context.Context, entries ...Entry) error
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	entries *kv.Store[string, Entry]
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: kv.New[string, Entry]()}
}

func cacheKey(table, id string) string { return table + "\x00" + id }

// Count implements Cache.
func (c *MemoryCache) Count(_ context.Context, table string) (int, error) {
	n := 0
	c.entries.Range(func(_ string, e Entry) bool {
		if e.Table == table {
			n++
		}
		return true
	})
	return n, nil
}

// ByID implements Cache.
func (c *MemoryCache) ByID(_ context.Context, table, id string) (Entry, bool, error) {
	e, ok := c.entries.Get(cacheKey(table, id))
	return e, ok, nil
}

// ByLabel implements Cache.
func (c *MemoryCache) ByLabel(_ context.Context, table, label string) (Entry, bool, error) {
	var (
		found Entry
		ok    bool
	)
	c.entries.Range(func(_ string, e Entry) bool {
		if e.Table == table && e.Label == label {
			found, ok = e, true
			return false
		}
		return true
	})
	return found, ok, nil
}

// LabelCount implements Cache.
func (c *MemoryCache) LabelCount(_ context.Context, table, label string) (int, error) {
	n := 0
	c.entries.Range(func(_ string, e Entry) bool {
		if e.Table == table && e.Label == label {
			n++
		}
		return true
	})
	return n, nil
}

// Upsert implements Cache.
func (c *MemoryCache) Upsert(_ context.Context, entries ...Entry) error {
	for _, e := range entries {
		c.entries.Upsert(cacheKey(e.Table, e.ID), func(old Entry, exists bool) Entry {
			if exists && !old.InsertedAt.IsZero() {
				e.InsertedAt = old.InsertedAt
			}
			return e
		})
	}
	return nil
}
