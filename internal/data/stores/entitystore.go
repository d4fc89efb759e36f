package stores

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/colonyops/kennel/internal/core/entity"
	"github.com/colonyops/kennel/internal/core/labels"
	"github.com/colonyops/kennel/internal/core/validate"
	"github.com/colonyops/kennel/internal/data/db"
)

// EntityStore implements entity.Provider over the records table.
type EntityStore struct {
	db  *db.DB
	now func() time.Time
}

var _ entity.Provider = (*EntityStore)(nil)

// NewEntityStore creates a new SQL-backed entity store.
func NewEntityStore(db *db.DB) *EntityStore {
	return &EntityStore{db: db, now: time.Now}
}

// Put creates or updates records of a collection.
func (s *EntityStore) Put(ctx context.Context, collection string, records ...entity.Record) error {
	if len(records) == 0 {
		return nil
	}

	query := s.db.Rebind(`
		INSERT INTO records (collection, id, name, slug, fields, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			name       = excluded.name,
			slug       = excluded.slug,
			fields     = excluded.fields,
			updated_at = excluded.updated_at`)

	put := func(tx *sql.Tx) error {
		now := s.now().UnixNano()
		for _, rec := range records {
			if rec.ID == "" {
				return fmt.Errorf("put %s: record %q has no id", collection, rec.Name)
			}
			fields, err := marshalFields(rec.Fields)
			if err != nil {
				return fmt.Errorf("put %s/%s: %w", collection, rec.ID, err)
			}
			if _, err := tx.ExecContext(ctx, query,
				collection, rec.ID, rec.Name, rec.Slug, fields, now, now,
			); err != nil {
				return fmt.Errorf("put %s/%s: %w", collection, rec.ID, err)
			}
		}
		return nil
	}
	return retryBusy(ctx, func() error { return s.db.WithTx(ctx, put) })
}

// Delete removes a record. Returns entity.ErrNotFound if it does not exist.
func (s *EntityStore) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.Conn().ExecContext(ctx,
		s.db.Rebind("DELETE FROM records WHERE collection = ? AND id = ?"), collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entity.ErrNotFound
	}
	return nil
}

// Count returns the number of records in a collection.
func (s *EntityStore) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.db.Conn().QueryRowContext(ctx,
		s.db.Rebind("SELECT COUNT(*) FROM records WHERE collection = ?"), collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", collection, err)
	}
	return n, nil
}

// List returns every record of a collection ordered by name.
func (s *EntityStore) List(ctx context.Context, collection string) ([]entity.Record, error) {
	rows, err := s.db.Conn().QueryContext(ctx, s.db.Rebind(`
		SELECT id, name, slug, fields FROM records
		WHERE collection = ?
		ORDER BY name, id`), collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	return scanRecords(rows)
}

// Collections returns the distinct collection names present in the store.
func (s *EntityStore) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.Conn().QueryContext(ctx, "SELECT DISTINCT collection FROM records ORDER BY collection")
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetPage implements entity.Provider. The sort field is the primary key and
// the tie-breaker the secondary; the record id is always appended so offsets
// stay stable across pages.
func (s *EntityStore) GetPage(ctx context.Context, req entity.PageRequest) (entity.Page, error) {
	where, args, err := s.where(req)
	if err != nil {
		return entity.Page{}, err
	}

	var total int
	countQuery := s.db.Rebind("SELECT COUNT(*) FROM records WHERE " + where)
	if err := s.db.Conn().QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return entity.Page{}, fmt.Errorf("failed to count %s: %w", req.Collection, err)
	}

	order, err := s.orderBy(req.Sort)
	if err != nil {
		return entity.Page{}, err
	}

	size := req.PageSize
	if size <= 0 {
		size = 50
	}

	pageQuery := s.db.Rebind(
		"SELECT id, name, slug, fields FROM records WHERE " + where +
			" ORDER BY " + order + " LIMIT ? OFFSET ?")
	rows, err := s.db.Conn().QueryContext(ctx, pageQuery, append(args, size, max(req.Cursor.Offset, 0))...)
	if err != nil {
		return entity.Page{}, fmt.Errorf("failed to page %s: %w", req.Collection, err)
	}

	recs, err := scanRecords(rows)
	if err != nil {
		return entity.Page{}, err
	}
	return entity.Page{Entities: recs, TotalCount: total}, nil
}

// FindByID implements entity.Provider.
func (s *EntityStore) FindByID(ctx context.Context, collection, id string) (*entity.Record, error) {
	rows, err := s.db.Conn().QueryContext(ctx, s.db.Rebind(`
		SELECT id, name, slug, fields FROM records
		WHERE collection = ? AND id = ?`), collection, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s/%s: %w", collection, id, err)
	}
	recs, err := scanRecords(rows)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

// FindDictionaryValue implements entity.DictionarySource. Dictionary tables
// are stored as collections; labels match the slug column first and the
// normalized name second.
func (s *EntityStore) FindDictionaryValue(ctx context.Context, table string, m entity.Matcher) (*entity.Record, error) {
	if m.ID != "" {
		return s.FindByID(ctx, table, m.ID)
	}
	if m.Label == "" {
		return nil, nil
	}

	rows, err := s.db.Conn().QueryContext(ctx, s.db.Rebind(`
		SELECT id, name, slug, fields FROM records
		WHERE collection = ? AND slug = ?
		ORDER BY id LIMIT 1`), table, m.Label)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s label %q: %w", table, m.Label, err)
	}
	recs, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) > 0 {
		return &recs[0], nil
	}

	all, err := s.List(ctx, table)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if labels.Normalize(all[i].Name) == m.Label {
			return &all[i], nil
		}
	}
	return nil, nil
}

func (s *EntityStore) where(req entity.PageRequest) (string, []any, error) {
	clauses := []string{"collection = ?"}
	args := []any{req.Collection}

	for _, key := range slices.Sorted(maps.Keys(req.Filters)) {
		col, err := s.textColumn(key)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, col+" = ?")
		args = append(args, req.Filters[key])
	}

	if q := strings.TrimSpace(req.Search); q != "" {
		clauses = append(clauses, "LOWER(name) LIKE ?")
		args = append(args, "%"+strings.ToLower(q)+"%")
	}

	return strings.Join(clauses, " AND "), args, nil
}

func (s *EntityStore) orderBy(sort entity.Sort) (string, error) {
	dir := "ASC"
	if sort.Direction == entity.Desc {
		dir = "DESC"
	}

	var parts []string
	if sort.Field != "" {
		col, err := s.sortColumn(sort.Field)
		if err != nil {
			return "", err
		}
		parts = append(parts, col+" "+dir)
	}
	if sort.TieBreaker != "" && sort.TieBreaker != sort.Field {
		col, err := s.sortColumn(sort.TieBreaker)
		if err != nil {
			return "", err
		}
		parts = append(parts, col+" ASC")
	}
	if sort.Field != "id" && sort.TieBreaker != "id" {
		parts = append(parts, "id ASC")
	}
	return strings.Join(parts, ", "), nil
}

func (s *EntityStore) sortColumn(field string) (string, error) {
	switch field {
	case "id", "name", "slug":
		return field, nil
	}
	if err := validate.Identifier(field); err != nil {
		return "", fmt.Errorf("sort field: %w", err)
	}
	return s.db.JSONField("fields", field), nil
}

func (s *EntityStore) textColumn(field string) (string, error) {
	switch field {
	case "id", "name", "slug":
		return field, nil
	}
	if err := validate.Identifier(field); err != nil {
		return "", fmt.Errorf("filter field: %w", err)
	}
	return s.db.JSONText("fields", field), nil
}

func marshalFields(fields map[string]any) (string, error) {
	if len(fields) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to marshal fields: %w", err)
	}
	return string(data), nil
}

func scanRecords(rows *sql.Rows) ([]entity.Record, error) {
	defer func() { _ = rows.Close() }()

	var out []entity.Record
	for rows.Next() {
		var (
			rec    entity.Record
			fields string
		)
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Slug, &fields); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if fields != "" && fields != "{}" {
			if err := json.Unmarshal([]byte(fields), &rec.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields of %s: %w", rec.ID, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
