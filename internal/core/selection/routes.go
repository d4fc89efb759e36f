package selection

import (
	"context"

	"github.com/colonyops/kennel/internal/core/kv"
	"github.com/colonyops/kennel/internal/core/labels"
)

const routesNamespace = "selection.route"

// RouteStore keeps route records in a KV store.
type RouteStore struct {
	cache *kv.TypedKV[string]
}

var _ RouteRecorder = (*RouteStore)(nil)

// NewRouteStore wraps a KV store.
func NewRouteStore(store kv.KV) *RouteStore {
	return &RouteStore{cache: kv.Scoped[string](store, routesNamespace)}
}

func routeKey(collection, slug string) string {
	return collection + "/" + labels.Normalize(slug)
}

func (s *RouteStore) RecordRoute(ctx context.Context, collection, slug, id string) error {
	return s.cache.Set(ctx, routeKey(collection, slug), id)
}

func (s *RouteStore) LookupRoute(ctx context.Context, collection, slug string) (string, bool, error) {
	return s.cache.Lookup(ctx, routeKey(collection, slug))
}
