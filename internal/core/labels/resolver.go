package labels

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/colonyops/kennel/internal/core/entity"
	"github.com/colonyops/kennel/internal/metrics"
)

// Ref identifies the dictionary a filter field points at.
type Ref struct {
	Table     string
	IDField   string
	NameField string
}

func (r Ref) idOf(rec entity.Record) string {
	if r.IDField == "" {
		return rec.ID
	}
	return rec.Field(r.IDField)
}

func (r Ref) nameOf(rec entity.Record) string {
	if r.NameField == "" {
		return rec.Name
	}
	return rec.Field(r.NameField)
}

// Resolver maps dictionary ids to labels and back. It answers from the local
// cache, and only falls back to the remote source when the local scope of a
// table is empty: a populated scope without a match means the value does not
// exist. Concurrent lookups of the same value share one resolution.
type Resolver struct {
	cache     Cache
	remote    entity.DictionarySource
	maxLength int
	log       zerolog.Logger
	now       func() time.Time
	flight    singleflight.Group
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxLength overrides the label length limit.
func WithMaxLength(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxLength = n
		}
	}
}

// WithClock overrides the clock used to stamp cache entries.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a resolver. remote may be nil.
func NewResolver(cache Cache, remote entity.DictionarySource, log zerolog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		cache:     cache,
		remote:    remote,
		maxLength: DefaultMaxLength,
		log:       log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Normalize applies the resolver's label rules.
func (r *Resolver) Normalize(s string) string {
	return NormalizeN(s, r.maxLength)
}

// LabelFor returns the label written to addresses for id. The id itself is
// returned when it is unknown, or when its label is empty or shared with
// another id of the table, so the value survives a parse.
func (r *Resolver) LabelFor(ctx context.Context, ref Ref, id string) (string, error) {
	if ref.Table == "" || id == "" {
		return id, nil
	}
	v, err, _ := r.flight.Do("id\x00"+ref.Table+"\x00"+id, func() (any, error) {
		return r.labelFor(ctx, ref, id)
	})
	return v.(string), err
}

func (r *Resolver) labelFor(ctx context.Context, ref Ref, id string) (string, error) {
	if e, ok, err := r.cache.ByID(ctx, ref.Table, id); err != nil {
		r.log.Warn().Err(err).Str("table", ref.Table).Str("id", id).Msg("label cache read failed")
	} else if ok {
		r.count(ref.Table, "local")
		if !r.distinct(ctx, e) {
			return id, nil
		}
		return e.Label, nil
	}

	rec, err := r.remoteLookup(ctx, ref, entity.Matcher{ID: id})
	if err != nil {
		return id, err
	}
	if rec == nil {
		r.count(ref.Table, "miss")
		return id, nil
	}
	e := Entry{Table: ref.Table, ID: id, Label: r.Normalize(ref.nameOf(*rec))}
	if !r.distinct(ctx, e) {
		return id, nil
	}
	return e.Label, nil
}

// distinct reports whether e's label identifies e alone within its table.
// Cache read errors count as distinct.
func (r *Resolver) distinct(ctx context.Context, e Entry) bool {
	if e.Label == "" {
		return false
	}
	n, err := r.cache.LabelCount(ctx, e.Table, e.Label)
	if err != nil {
		r.log.Warn().Err(err).Str("table", e.Table).Str("label", e.Label).Msg("label cache count failed")
		return true
	}
	return n <= 1
}

// IDFor returns the id whose label matches label. ok is false when no
// dictionary value matches anywhere; the caller is expected to treat the raw
// token as the id. Tokens naming a known id whose label cannot identify it
// resolve to that id.
func (r *Resolver) IDFor(ctx context.Context, ref Ref, label string) (id string, ok bool, err error) {
	if ref.Table == "" || label == "" {
		return "", false, nil
	}
	type result struct {
		id string
		ok bool
	}
	v, err, _ := r.flight.Do("label\x00"+ref.Table+"\x00"+label, func() (any, error) {
		id, ok, err := r.idFor(ctx, ref, label)
		return result{id, ok}, err
	})
	res := v.(result)
	return res.id, res.ok, err
}

func (r *Resolver) idFor(ctx context.Context, ref Ref, label string) (string, bool, error) {
	if e, ok, err := r.cache.ByID(ctx, ref.Table, label); err == nil && ok && !r.distinct(ctx, e) {
		r.count(ref.Table, "local")
		return e.ID, true, nil
	}

	normalized := r.Normalize(label)
	if normalized == "" {
		return "", false, nil
	}

	if e, found, err := r.cache.ByLabel(ctx, ref.Table, normalized); err != nil {
		r.log.Warn().Err(err).Str("table", ref.Table).Str("label", normalized).Msg("label cache read failed")
	} else if found {
		r.count(ref.Table, "local")
		return e.ID, true, nil
	}

	rec, err := r.remoteLookup(ctx, ref, entity.Matcher{Label: normalized})
	if err != nil {
		return "", false, err
	}
	if rec == nil {
		r.count(ref.Table, "miss")
		return "", false, nil
	}
	return ref.idOf(*rec), true, nil
}

// remoteLookup consults the remote source only when the table has no local
// records at all. Hits are written back to the cache on a best-effort basis.
func (r *Resolver) remoteLookup(ctx context.Context, ref Ref, m entity.Matcher) (*entity.Record, error) {
	n, err := r.cache.Count(ctx, ref.Table)
	if err != nil {
		r.log.Warn().Err(err).Str("table", ref.Table).Msg("label cache count failed")
		n = 0
	}
	if n > 0 || r.remote == nil {
		return nil, nil
	}

	rec, err := r.remote.FindDictionaryValue(ctx, ref.Table, m)
	if err != nil {
		return nil, entity.NewFetchError("find dictionary value", ref.Table, err)
	}
	if rec == nil {
		return nil, nil
	}
	r.count(ref.Table, "remote")

	entry := Entry{
		Table:      ref.Table,
		ID:         ref.idOf(*rec),
		Name:       ref.nameOf(*rec),
		Label:      r.Normalize(ref.nameOf(*rec)),
		Provenance: ProvenanceRemote,
		InsertedAt: r.now(),
	}
	if err := r.cache.Upsert(ctx, entry); err != nil {
		metrics.CacheWriteFailures.Inc()
		r.log.Warn().Err(err).Str("table", ref.Table).Str("id", entry.ID).Msg("label cache write failed")
	}
	return rec, nil
}

// Warm records local dictionary values so later lookups never leave the
// process.
func (r *Resolver) Warm(ctx context.Context, ref Ref, records []entity.Record) error {
	if len(records) == 0 {
		return nil
	}
	now := r.now()
	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		name := ref.nameOf(rec)
		entries = append(entries, Entry{
			Table:      ref.Table,
			ID:         ref.idOf(rec),
			Name:       name,
			Label:      r.Normalize(name),
			Provenance: ProvenanceLocal,
			InsertedAt: now,
		})
	}
	if err := r.cache.Upsert(ctx, entries...); err != nil {
		return fmt.Errorf("warm %s: %w", ref.Table, err)
	}
	return nil
}

func (r *Resolver) count(table, source string) {
	metrics.LabelResolutions.WithLabelValues(table, source).Inc()
}
