package kv

import (
	"context"
	"time"
)

// TypedKV stores values of one type under a key namespace.
type TypedKV[T any] struct {
	store KV
	ns    string
	ttl   time.Duration
}

// Scoped returns a TypedKV[T] whose keys are stored as "namespace:key".
func Scoped[T any](store KV, namespace string) *TypedKV[T] {
	return &TypedKV[T]{store: store, ns: namespace}
}

// WithTTL returns a copy of t whose Set calls expire after ttl.
func (t *TypedKV[T]) WithTTL(ttl time.Duration) *TypedKV[T] {
	c := *t
	c.ttl = ttl
	return &c
}

func (t *TypedKV[T]) key(k string) string { return t.ns + ":" + k }

// Get decodes the value stored under key.
func (t *TypedKV[T]) Get(ctx context.Context, key string) (T, error) {
	var v T
	err := t.store.Get(ctx, t.key(key), &v)
	return v, err
}

// Lookup is Get with a missing key reported as ok=false instead of an error.
func (t *TypedKV[T]) Lookup(ctx context.Context, key string) (T, bool, error) {
	v, err := t.Get(ctx, key)
	if IsNotFound(err) {
		return v, false, nil
	}
	return v, err == nil, err
}

// Set stores value, expiring it after the scope TTL when one is set.
func (t *TypedKV[T]) Set(ctx context.Context, key string, value T) error {
	if t.ttl > 0 {
		return t.store.SetTTL(ctx, t.key(key), value, t.ttl)
	}
	return t.store.Set(ctx, t.key(key), value)
}

// SetTTL stores value with an explicit expiry.
func (t *TypedKV[T]) SetTTL(ctx context.Context, key string, value T, ttl time.Duration) error {
	return t.store.SetTTL(ctx, t.key(key), value, ttl)
}

func (t *TypedKV[T]) Delete(ctx context.Context, key string) error {
	return t.store.Delete(ctx, t.key(key))
}

func (t *TypedKV[T]) Has(ctx context.Context, key string) (bool, error) {
	return t.store.Has(ctx, t.key(key))
}
