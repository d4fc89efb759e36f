// Package memory is an in-process entity.Provider used by tests and the
// --memory demo mode.
package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/colonyops/kennel/internal/core/entity"
	"github.com/colonyops/kennel/internal/core/labels"
)

// Provider holds records per collection. The zero value is not usable; call
// New.
type Provider struct {
	mu          sync.RWMutex
	collections map[string]map[string]entity.Record
	latency     time.Duration
	err         error
	pageCalls   int
}

var _ entity.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithLatency delays every call, honouring context cancellation.
func WithLatency(d time.Duration) Option {
	return func(p *Provider) { p.latency = d }
}

// New returns an empty provider.
func New(opts ...Option) *Provider {
	p := &Provider{collections: map[string]map[string]entity.Record{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Put creates or replaces records by id.
func (p *Provider) Put(_ context.Context, collection string, records ...entity.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.collections[collection]
	if !ok {
		c = map[string]entity.Record{}
		p.collections[collection] = c
	}
	for _, r := range records {
		c[r.ID] = r
	}
	return nil
}

// List returns every record of a collection ordered by name.
func (p *Provider) List(_ context.Context, collection string) ([]entity.Record, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := slices.Collect(maps.Values(p.collections[collection]))
	slices.SortFunc(out, func(a, b entity.Record) int {
		return cmp.Or(strings.Compare(a.Name, b.Name), strings.Compare(a.ID, b.ID))
	})
	return out, nil
}

// SetError makes every subsequent call fail with err until cleared with nil.
func (p *Provider) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// PageCalls returns how many GetPage calls were served or failed.
func (p *Provider) PageCalls() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pageCalls
}

// GetPage implements entity.Provider.
func (p *Provider) GetPage(ctx context.Context, req entity.PageRequest) (entity.Page, error) {
	p.mu.Lock()
	p.pageCalls++
	p.mu.Unlock()

	if err := p.wait(ctx); err != nil {
		return entity.Page{}, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(req.Search))
	var matched []entity.Record
	for _, r := range p.collections[req.Collection] {
		if matches(r, req.Filters, search) {
			matched = append(matched, r)
		}
	}
	slices.SortFunc(matched, Compare(req.Sort))

	size := req.PageSize
	if size <= 0 {
		size = 50
	}
	start := min(max(req.Cursor.Offset, 0), len(matched))
	end := min(start+size, len(matched))

	return entity.Page{
		Entities:   slices.Clone(matched[start:end]),
		TotalCount: len(matched),
	}, nil
}

// FindByID implements entity.Provider.
func (p *Provider) FindByID(ctx context.Context, collection, id string) (*entity.Record, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	r, ok := p.collections[collection][id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// FindDictionaryValue implements entity.DictionarySource.
func (p *Provider) FindDictionaryValue(ctx context.Context, table string, m entity.Matcher) (*entity.Record, error) {
	if m.ID != "" {
		return p.FindByID(ctx, table, m.ID)
	}
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, r := range p.collections[table] {
		if m.Label != "" && (r.Slug == m.Label || labels.Normalize(r.Name) == m.Label) {
			return &r, nil
		}
	}
	return nil, nil
}

func (p *Provider) wait(ctx context.Context) error {
	p.mu.RLock()
	latency, err := p.latency, p.err
	p.mu.RUnlock()

	if latency > 0 {
		t := time.NewTimer(latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return err
}

func matches(r entity.Record, filters map[string]string, search string) bool {
	for k, v := range filters {
		if r.Field(k) != v {
			return false
		}
	}
	return search == "" || strings.Contains(strings.ToLower(r.Name), search)
}

// Compare returns a comparison function implementing s: the sort field in its
// direction, then the tie-breaker ascending, then the id.
func Compare(s entity.Sort) func(a, b entity.Record) int {
	return func(a, b entity.Record) int {
		c := 0
		if s.Field != "" {
			c = compareField(a, b, s.Field)
			if s.Direction == entity.Desc {
				c = -c
			}
		}
		if c == 0 && s.TieBreaker != "" && s.TieBreaker != s.Field {
			c = compareField(a, b, s.TieBreaker)
		}
		return cmp.Or(c, strings.Compare(a.ID, b.ID))
	}
}

func compareField(a, b entity.Record, field string) int {
	if x, ok := number(a.Fields[field]); ok {
		if y, ok := number(b.Fields[field]); ok {
			return cmp.Compare(x, y)
		}
	}
	return strings.Compare(a.Field(field), b.Field(field))
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}
