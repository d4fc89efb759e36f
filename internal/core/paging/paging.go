// Package paging accumulates pages of entities under the active query and
// decides when more should be loaded.
package paging

import (
	"context"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/colonyops/kennel/internal/core/entity"
	"github.com/colonyops/kennel/internal/core/query"
	"github.com/colonyops/kennel/internal/metrics"
)

const (
	// DefaultPageSize is the number of entities requested per page.
	DefaultPageSize = 50
	// DefaultThreshold is the distance from the bottom, in pixels or cells,
	// under which more entities are requested.
	DefaultThreshold = 100
)

// Fetcher loads one page.
type Fetcher interface {
	GetPage(ctx context.Context, req entity.PageRequest) (entity.Page, error)
}

// Cursor is a snapshot of the loaded result set.
type Cursor struct {
	Entities []entity.Record
	// Total is the provider's count. It is authoritative only when TotalReal
	// is set; before that it may be a cached estimate or a placeholder.
	Total      int
	TotalReal  bool
	HasMore    bool
	Loading    bool
	Err        error
	Generation uint64
}

// Request is a page fetch started by Begin.
type Request struct {
	Generation uint64
	Page       entity.PageRequest
}

// Manager owns the cursor for one list. The generation counter increments on
// every query change; results carrying an older generation are discarded.
type Manager struct {
	fetcher  Fetcher
	totals   *TotalStore
	pageSize int
	log      zerolog.Logger

	mu         sync.Mutex
	collection string
	state      query.State
	signature  string
	gen        uint64
	loaded     []entity.Record
	index      map[string]struct{}
	next       int
	total      int
	totalReal  bool
	hasMore    bool
	inFlight   bool
	err        error
}

// Option configures a Manager.
type Option func(*Manager)

// WithPageSize overrides DefaultPageSize.
func WithPageSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.pageSize = n
		}
	}
}

// WithTotals enables total-count continuity across reloads of unfiltered
// views.
func WithTotals(t *TotalStore) Option {
	return func(m *Manager) { m.totals = t }
}

// NewManager creates a manager with no active query.
func NewManager(fetcher Fetcher, log zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		fetcher:  fetcher,
		pageSize: DefaultPageSize,
		log:      log,
		index:    map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetQuery activates a query. It returns false and changes nothing when the
// collection and state match the active query; otherwise the generation is
// bumped, the cursor is reset and any in-flight fetch becomes stale.
func (m *Manager) SetQuery(ctx context.Context, collection string, state query.State) bool {
	sig := state.Signature()

	m.mu.Lock()
	if m.gen > 0 && collection == m.collection && sig == m.signature {
		m.mu.Unlock()
		return false
	}
	m.gen++
	m.collection = collection
	m.state = state.Clone()
	m.signature = sig
	m.loaded = nil
	m.index = map[string]struct{}{}
	m.next = 0
	m.total = 0
	m.totalReal = false
	m.hasMore = true
	m.inFlight = false
	m.err = nil
	gen := m.gen
	m.mu.Unlock()

	if m.totals != nil && state.Unfiltered() {
		if n, ok := m.totals.Load(ctx, collection); ok {
			m.mu.Lock()
			if m.gen == gen && !m.totalReal {
				m.total = n
			}
			m.mu.Unlock()
		}
	}

	m.log.Debug().
		Str("collection", collection).
		Uint64("generation", gen).
		Msg("query changed, cursor reset")
	return true
}

// Begin starts the next page fetch. ok is false while a fetch is in flight,
// when everything is loaded, when no query is active, or while a fetch error
// is pending a Retry.
func (m *Manager) Begin() (Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen == 0 || m.inFlight || !m.hasMore || m.err != nil {
		return Request{}, false
	}
	m.inFlight = true
	return Request{
		Generation: m.gen,
		Page:       m.state.PageRequest(m.collection, m.next, m.pageSize),
	}, true
}

// Apply records the outcome of a fetch started by Begin. It returns false when
// the result belongs to a superseded generation and was discarded.
func (m *Manager) Apply(ctx context.Context, req Request, page entity.Page, err error) bool {
	m.mu.Lock()
	if req.Generation != m.gen {
		m.mu.Unlock()
		metrics.PageFetches.WithLabelValues(req.Page.Collection, "stale").Inc()
		m.log.Debug().
			Str("collection", req.Page.Collection).
			Uint64("generation", req.Generation).
			Uint64("current", m.gen).
			Msg("discarding stale page")
		return false
	}
	m.inFlight = false

	if err != nil {
		if !entity.IsFetchError(err) {
			err = entity.NewFetchError("get page", req.Page.Collection, err)
		}
		m.err = err
		m.mu.Unlock()
		metrics.PageFetches.WithLabelValues(req.Page.Collection, "error").Inc()
		m.log.Warn().Err(err).Str("collection", req.Page.Collection).Msg("page fetch failed")
		return true
	}

	m.next += len(page.Entities)
	becameReal := m.appendLocked(page.Entities, page.TotalCount)
	if len(page.Entities) == 0 {
		// an empty page ends the list whatever the total claims
		m.hasMore = false
	}
	persist := becameReal && m.state.Unfiltered()
	collection, total := m.collection, m.total
	m.mu.Unlock()

	metrics.PageFetches.WithLabelValues(req.Page.Collection, "ok").Inc()
	if persist && m.totals != nil {
		m.totals.Store(ctx, collection, total)
	}
	return true
}

// AppendPage merges entities into the cursor. The first occurrence of an id
// keeps its position.
func (m *Manager) AppendPage(entities []entity.Record, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLocked(entities, total)
}

// appendLocked reports whether a real total was observed for the first time.
func (m *Manager) appendLocked(entities []entity.Record, total int) bool {
	for _, e := range entities {
		if _, dup := m.index[e.ID]; dup {
			continue
		}
		m.index[e.ID] = struct{}{}
		m.loaded = append(m.loaded, e)
	}

	becameReal := false
	if total > len(m.loaded) && !m.totalReal {
		m.totalReal = true
		becameReal = true
	}
	if m.totalReal || total > m.total {
		m.total = total
	}
	if m.totalReal && m.total < len(m.loaded) {
		m.total = len(m.loaded)
	}
	m.hasMore = len(m.loaded) < total
	return becameReal
}

// RequestMore fetches the next page. It is a no-op while a fetch is in flight
// or when nothing more can be loaded.
func (m *Manager) RequestMore(ctx context.Context) error {
	req, ok := m.Begin()
	if !ok {
		return nil
	}
	page, err := m.fetcher.GetPage(ctx, req.Page)
	m.Apply(ctx, req, page, err)
	return err
}

// Retry clears a fetch error and requests the next page again.
func (m *Manager) Retry(ctx context.Context) error {
	m.mu.Lock()
	m.err = nil
	m.mu.Unlock()
	return m.RequestMore(ctx)
}

// ClearError drops a pending fetch error without fetching.
func (m *Manager) ClearError() {
	m.mu.Lock()
	m.err = nil
	m.mu.Unlock()
}

// Snapshot returns a copy of the cursor.
func (m *Manager) Snapshot() Cursor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Cursor{
		Entities:   slices.Clone(m.loaded),
		Total:      m.total,
		TotalReal:  m.totalReal,
		HasMore:    m.hasMore,
		Loading:    m.inFlight,
		Err:        m.err,
		Generation: m.gen,
	}
}

// Generation returns the current generation.
func (m *Manager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

// Len returns the number of loaded entities.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loaded)
}

// NearBottom reports whether the viewport bottom is within threshold of the
// scrollable extent. An unmeasured container is never near the bottom.
func NearBottom(offset, container, extent, threshold int) bool {
	if container <= 0 {
		return false
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return extent-(offset+container) < threshold
}
