package kv

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/colonyops/kennel/pkg/kv"
)

// Memory is a process-local KV used by the in-memory provider and in tests.
type Memory struct {
	entries *kv.Store[string, Entry]
	now     func() time.Time
}

var _ KV = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: kv.New[string, Entry](), now: time.Now}
}

func (m *Memory) Get(ctx context.Context, key string, dest any) error {
	e, err := m.GetRaw(ctx, key)
	if err != nil {
		return fmt.Errorf("kv get %q: %w", key, err)
	}
	if err := json.Unmarshal(e.Value, dest); err != nil {
		return fmt.Errorf("kv get %q unmarshal: %w", key, err)
	}
	return nil
}

func (m *Memory) Set(ctx context.Context, key string, value any) error {
	return m.set(key, value, nil)
}

func (m *Memory) SetTTL(ctx context.Context, key string, value any, ttl time.Duration) error {
	exp := m.now().Add(ttl)
	return m.set(key, value, &exp)
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.entries.Delete(key)
	return nil
}

func (m *Memory) Has(ctx context.Context, key string) (bool, error) {
	_, err := m.GetRaw(ctx, key)
	if IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// ListKeys returns all non-expired keys in sorted order.
func (m *Memory) ListKeys(_ context.Context) ([]string, error) {
	var keys []string
	m.entries.Range(func(k string, e Entry) bool {
		if !m.expired(e) {
			keys = append(keys, k)
		}
		return true
	})
	slices.Sort(keys)
	return keys, nil
}

func (m *Memory) GetRaw(_ context.Context, key string) (Entry, error) {
	e, ok := m.entries.Get(key)
	if !ok {
		return Entry{}, sql.ErrNoRows
	}
	if m.expired(e) {
		m.entries.Delete(key)
		return Entry{}, sql.ErrNoRows
	}
	return e, nil
}

func (m *Memory) set(key string, value any, exp *time.Time) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv set %q marshal: %w", key, err)
	}
	now := m.now()
	m.entries.Upsert(key, func(old Entry, exists bool) Entry {
		created := now
		if exists {
			created = old.CreatedAt
		}
		return Entry{Key: key, Value: data, ExpiresAt: exp, CreatedAt: created, UpdatedAt: now}
	})
	return nil
}

func (m *Memory) expired(e Entry) bool {
	return e.ExpiresAt != nil && e.ExpiresAt.Before(m.now())
}
