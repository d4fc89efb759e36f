package stores

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/colonyops/kennel/internal/core/labels"
	"github.com/colonyops/kennel/internal/data/db"
)

// LabelStore implements labels.Cache over the dictionary_labels table.
// Upserts keep the first inserted_at so repeated warm-ups stay idempotent.
type LabelStore struct {
	db *db.DB
}

var _ labels.Cache = (*LabelStore)(nil)

// NewLabelStore creates a new SQL-backed label cache.
func NewLabelStore(db *db.DB) *LabelStore {
	return &LabelStore{db: db}
}

// Count implements labels.Cache.
func (s *LabelStore) Count(ctx context.Context, table string) (int, error) {
	var n int
	err := s.db.Conn().QueryRowContext(ctx,
		s.db.Rebind("SELECT COUNT(*) FROM dictionary_labels WHERE table_name = ?"), table).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count labels of %s: %w", table, err)
	}
	return n, nil
}

// ByID implements labels.Cache.
func (s *LabelStore) ByID(ctx context.Context, table, id string) (labels.Entry, bool, error) {
	return s.one(ctx, "id", table, id)
}

// ByLabel implements labels.Cache.
func (s *LabelStore) ByLabel(ctx context.Context, table, label string) (labels.Entry, bool, error) {
	return s.one(ctx, "label", table, label)
}

// LabelCount implements labels.Cache.
func (s *LabelStore) LabelCount(ctx context.Context, table, label string) (int, error) {
	var n int
	err := s.db.Conn().QueryRowContext(ctx,
		s.db.Rebind("SELECT COUNT(*) FROM dictionary_labels WHERE table_name = ? AND label = ?"), table, label).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count label %s/%s: %w", table, label, err)
	}
	return n, nil
}

// Entries returns every cached entry of a table ordered by label.
func (s *LabelStore) Entries(ctx context.Context, table string) ([]labels.Entry, error) {
	rows, err := s.db.Conn().QueryContext(ctx, s.db.Rebind(`
		SELECT table_name, id, name, label, provenance, inserted_at
		FROM dictionary_labels
		WHERE table_name = ?
		ORDER BY label, id`), table)
	if err != nil {
		return nil, fmt.Errorf("failed to list labels of %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var out []labels.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Upsert implements labels.Cache.
func (s *LabelStore) Upsert(ctx context.Context, entries ...labels.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	query := s.db.Rebind(`
		INSERT INTO dictionary_labels (table_name, id, name, label, provenance, inserted_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (table_name, id) DO UPDATE SET
			name       = excluded.name,
			label      = excluded.label,
			provenance = excluded.provenance`)

	upsert := func(tx *sql.Tx) error {
		for _, e := range entries {
			inserted := e.InsertedAt
			if inserted.IsZero() {
				inserted = time.Now()
			}
			provenance := e.Provenance
			if provenance == "" {
				provenance = labels.ProvenanceLocal
			}
			if _, err := tx.ExecContext(ctx, query,
				e.Table, e.ID, e.Name, e.Label, string(provenance), inserted.UnixNano(),
			); err != nil {
				return fmt.Errorf("failed to upsert label %s/%s: %w", e.Table, e.ID, err)
			}
		}
		return nil
	}
	return retryBusy(ctx, func() error { return s.db.WithTx(ctx, upsert) })
}

func (s *LabelStore) one(ctx context.Context, column, table, value string) (labels.Entry, bool, error) {
	row := s.db.Conn().QueryRowContext(ctx, s.db.Rebind(`
		SELECT table_name, id, name, label, provenance, inserted_at
		FROM dictionary_labels
		WHERE table_name = ? AND `+column+` = ?
		ORDER BY id LIMIT 1`), table, value)

	e, err := scanEntry(row)
	if IsNotFoundError(err) {
		return labels.Entry{}, false, nil
	}
	if err != nil {
		return labels.Entry{}, false, err
	}
	return e, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (labels.Entry, error) {
	var (
		e          labels.Entry
		provenance string
		inserted   int64
	)
	if err := row.Scan(&e.Table, &e.ID, &e.Name, &e.Label, &provenance, &inserted); err != nil {
		if IsNotFoundError(err) {
			return labels.Entry{}, err
		}
		return labels.Entry{}, fmt.Errorf("failed to scan label: %w", err)
	}
	e.Provenance = labels.Provenance(provenance)
	e.InsertedAt = time.Unix(0, inserted)
	return e, nil
}
