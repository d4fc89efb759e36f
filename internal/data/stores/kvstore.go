package stores

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/colonyops/kennel/internal/core/kv"
	"github.com/colonyops/kennel/internal/data/db"
)

// KVStore keeps route records and cached totals in the kv_store table.
// Times are stored as unix nanoseconds.
type KVStore struct {
	db  *db.DB
	now func() time.Time
}

var _ kv.KV = (*KVStore)(nil)

func NewKVStore(database *db.DB) *KVStore {
	return &KVStore{db: database, now: time.Now}
}

const selectEntry = `SELECT key, value, expires_at, created_at, updated_at FROM kv_store WHERE key = ?`

func (s *KVStore) Get(ctx context.Context, key string, dest any) error {
	e, err := s.GetRaw(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(e.Value, dest); err != nil {
		return fmt.Errorf("kv get %q: decode: %w", key, err)
	}
	return nil
}

func (s *KVStore) Set(ctx context.Context, key string, value any) error {
	return s.write(ctx, key, value, nil)
}

func (s *KVStore) SetTTL(ctx context.Context, key string, value any, ttl time.Duration) error {
	exp := s.now().Add(ttl).UnixNano()
	return s.write(ctx, key, value, &exp)
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.Conn().ExecContext(ctx, s.db.Rebind(`DELETE FROM kv_store WHERE key = ?`), key)
	if err != nil {
		return fmt.Errorf("kv delete %q: %w", key, err)
	}
	return nil
}

func (s *KVStore) Has(ctx context.Context, key string) (bool, error) {
	switch _, err := s.GetRaw(ctx, key); {
	case err == nil:
		return true, nil
	case kv.IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// ListKeys returns the live keys in sorted order.
func (s *KVStore) ListKeys(ctx context.Context) ([]string, error) {
	q := s.db.Rebind(`SELECT key FROM kv_store WHERE expires_at IS NULL OR expires_at >= ? ORDER BY key`)
	rows, err := s.db.Conn().QueryContext(ctx, q, s.now().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("kv list keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("kv list keys: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// GetRaw returns the entry with its metadata. A missing or expired key
// yields an error wrapping sql.ErrNoRows; expired rows are removed on read.
func (s *KVStore) GetRaw(ctx context.Context, key string) (kv.Entry, error) {
	var (
		e         kv.Entry
		value     string
		expiresAt sql.NullInt64
		created   int64
		updated   int64
	)
	err := s.db.Conn().QueryRowContext(ctx, s.db.Rebind(selectEntry), key).
		Scan(&e.Key, &value, &expiresAt, &created, &updated)
	if err != nil {
		return kv.Entry{}, fmt.Errorf("kv get %q: %w", key, err)
	}

	if expiresAt.Valid {
		if expiresAt.Int64 < s.now().UnixNano() {
			_ = s.Delete(ctx, key)
			return kv.Entry{}, fmt.Errorf("kv get %q: expired: %w", key, sql.ErrNoRows)
		}
		t := time.Unix(0, expiresAt.Int64)
		e.ExpiresAt = &t
	}
	e.Value = json.RawMessage(value)
	e.CreatedAt = time.Unix(0, created)
	e.UpdatedAt = time.Unix(0, updated)
	return e, nil
}

// SweepExpired deletes every entry past its expiry.
func (s *KVStore) SweepExpired(ctx context.Context) error {
	q := s.db.Rebind(`DELETE FROM kv_store WHERE expires_at IS NOT NULL AND expires_at < ?`)
	sweep := func() error {
		_, err := s.db.Conn().ExecContext(ctx, q, s.now().UnixNano())
		return err
	}
	if err := retryBusy(ctx, sweep); err != nil {
		return fmt.Errorf("kv sweep expired: %w", err)
	}
	return nil
}

// write upserts key. created_at survives overwrites.
func (s *KVStore) write(ctx context.Context, key string, value any, expiresAt *int64) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv set %q: encode: %w", key, err)
	}

	exp := sql.NullInt64{}
	if expiresAt != nil {
		exp = sql.NullInt64{Int64: *expiresAt, Valid: true}
	}
	now := s.now().UnixNano()
	q := s.db.Rebind(`INSERT INTO kv_store (key, value, expires_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at, updated_at = excluded.updated_at`)

	upsert := func() error {
		_, err := s.db.Conn().ExecContext(ctx, q, key, string(data), exp, now, now)
		return err
	}
	if err := retryBusy(ctx, upsert); err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}
	return nil
}
