// Package browser coordinates the query, paging, viewport and selection
// components behind a single event-driven engine. The engine performs no I/O
// of its own: every transition returns an Update whose Commands the host
// executes (on goroutines, as tea.Cmds, or synchronously through Run).
package browser

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/colonyops/kennel/internal/core/config"
	"github.com/colonyops/kennel/internal/core/entity"
	"github.com/colonyops/kennel/internal/core/kv"
	"github.com/colonyops/kennel/internal/core/labels"
	"github.com/colonyops/kennel/internal/core/logging"
	"github.com/colonyops/kennel/internal/core/paging"
	"github.com/colonyops/kennel/internal/core/query"
	"github.com/colonyops/kennel/internal/core/render"
	"github.com/colonyops/kennel/internal/core/selection"
	"github.com/colonyops/kennel/internal/core/viewport"
)

// ErrUnknownCollection is returned for addresses naming no configured
// collection.
var ErrUnknownCollection = errors.New("unknown collection")

// Deps are the collaborators of an Engine. The caller owns their lifecycle.
type Deps struct {
	Provider entity.Provider
	Config   *config.Config
	// Resolver translates address labels. Nil builds one over an in-memory
	// cache that falls back to Provider.
	Resolver query.LabelResolver
	// KV persists route records and unfiltered totals. Nil disables both.
	KV        kv.KV
	Renderers *render.Registry
	Log       zerolog.Logger
	// Threshold overrides Tuning.ScrollThreshold, in the measurement unit.
	Threshold    int
	HistoryLimit int
}

// Measurement is the host's view of the list container. Width is in the
// breakpoint unit; ContainerSize and ScrollOffset share the unit of the view
// item sizes.
type Measurement struct {
	Width         int
	ContainerSize int
	ScrollOffset  int
}

type navMode int

const (
	navPush navMode = iota
	navReplace
	navTraverse
)

// Engine is the browsing state of one address bar. It is not safe for
// concurrent use; hosts drive it from their event loop. Fetch and Lookup may
// run on other goroutines.
type Engine struct {
	provider  entity.Provider
	cfg       *config.Config
	resolver  query.LabelResolver
	renderers *render.Registry
	pager     *paging.Manager
	machine   *selection.Machine
	search    *query.SearchDebouncer
	history   *History
	syncs     map[string]*query.Synchronizer
	threshold int
	log       zerolog.Logger

	route      selection.Route
	collection config.Collection
	sync       *query.Synchronizer
	state      query.State
	viewID     string
	warnings   []string
	resolveErr error
	measure    Measurement

	lookupID string
	lookedUp *entity.Record
	warned   map[string]bool
}

// New creates an engine with no active address.
func New(deps Deps) (*Engine, error) {
	if deps.Provider == nil {
		return nil, errors.New("browser: provider required")
	}
	if deps.Config == nil {
		return nil, errors.New("browser: config required")
	}
	cfg := deps.Config
	log := deps.Log

	resolver := deps.Resolver
	if resolver == nil {
		resolver = labels.NewResolver(labels.NewMemoryCache(), deps.Provider, log,
			labels.WithMaxLength(cfg.Tuning.MaxLabelLength))
	}
	renderers := deps.Renderers
	if renderers == nil {
		renderers = render.NewRegistry()
	}

	pagerOpts := []paging.Option{paging.WithPageSize(cfg.Tuning.PageSize)}
	var routes selection.RouteRecorder
	if deps.KV != nil {
		pagerOpts = append(pagerOpts, paging.WithTotals(paging.NewTotalStore(deps.KV, log)))
		routes = selection.NewRouteStore(deps.KV)
	}

	search := query.NewSearchDebouncer()
	search.InsertDelay = cfg.Tuning.InsertDebounce
	search.DeleteDelay = cfg.Tuning.DeleteDebounce
	search.MinLen = cfg.Tuning.MinSearchLength

	threshold := deps.Threshold
	if threshold <= 0 {
		threshold = cfg.Tuning.ScrollThreshold
	}

	return &Engine{
		provider:  deps.Provider,
		cfg:       cfg,
		resolver:  resolver,
		renderers: renderers,
		pager:     paging.NewManager(deps.Provider, log, pagerOpts...),
		machine:   selection.NewMachine(cfg.Breakpoints, cfg.DrawerModes, cfg.Selection.Policy(), routes, log),
		search:    search,
		history:   NewHistory(deps.HistoryLimit),
		syncs:     map[string]*query.Synchronizer{},
		threshold: threshold,
		log:       log,
		warned:    map[string]bool{},
	}, nil
}

// Open loads addr as the initial address. It replaces the current history
// entry instead of pushing one.
func (e *Engine) Open(ctx context.Context, addr string) (Update, error) {
	return e.navigate(ctx, addr, navReplace)
}

// Navigate pushes addr.
func (e *Engine) Navigate(ctx context.Context, addr string) (Update, error) {
	return e.navigate(ctx, addr, navPush)
}

// Back re-derives all state from the previous history entry.
func (e *Engine) Back(ctx context.Context) (Update, error) {
	addr, ok := e.history.Back()
	if !ok {
		return Update{}, nil
	}
	return e.navigate(ctx, addr, navTraverse)
}

// Forward re-derives all state from the next history entry.
func (e *Engine) Forward(ctx context.Context) (Update, error) {
	addr, ok := e.history.Forward()
	if !ok {
		return Update{}, nil
	}
	return e.navigate(ctx, addr, navTraverse)
}

func (e *Engine) navigate(ctx context.Context, addr string, mode navMode) (Update, error) {
	route, err := selection.ParseRoute(addr)
	if err != nil {
		return Update{}, err
	}
	col, ok := e.cfg.Collection(route.Collection)
	if !ok {
		return Update{}, fmt.Errorf("%w %q", ErrUnknownCollection, route.Collection)
	}
	sync := e.synchronizer(col)
	ctx = logging.WithCollection(ctx, col.ID)

	parsed, err := sync.Parse(ctx, route.Query)
	if err != nil {
		return Update{}, err
	}
	if parsed.ResolveErr != nil {
		e.log.Warn().Err(parsed.ResolveErr).Str("collection", col.ID).Msg("address labels passed through unresolved")
	}

	if parsed.Rewritten {
		values, err := sync.Serialize(ctx, parsed.State, parsed.View)
		if err != nil {
			e.log.Warn().Err(err).Str("collection", col.ID).Msg("serialize rewritten address")
		}
		route = route.WithQuery(values)
		if mode == navTraverse {
			mode = navReplace
		}
	}

	e.route = route
	e.collection = col
	e.sync = sync
	e.state = parsed.State
	e.viewID = parsed.View
	e.warnings = parsed.Warnings
	e.resolveErr = parsed.ResolveErr
	e.search.Seed(parsed.State.Search)
	e.checkRenderer()

	var u Update
	e.record(&u, mode)
	if e.pager.SetQuery(ctx, col.ID, parsed.State) {
		e.measure.ScrollOffset = 0
	}
	u.merge(e.syncSelection(ctx))
	u.merge(e.fill())
	return u, nil
}

func (e *Engine) record(u *Update, mode navMode) {
	addr := e.route.String()
	switch mode {
	case navPush:
		e.history.Push(addr)
		u.add(Command{Kind: PushAddress, Address: addr})
	default:
		if mode == navReplace {
			e.history.Replace(addr)
		}
		u.add(Command{Kind: ReplaceAddress, Address: addr})
	}
}

func (e *Engine) synchronizer(col config.Collection) *query.Synchronizer {
	if s, ok := e.syncs[col.ID]; ok {
		return s
	}
	s := col.Synchronizer(e.resolver, e.log)
	e.syncs[col.ID] = s
	return s
}

func (e *Engine) checkRenderer() {
	name := e.View().Renderer
	if e.renderers.Has(name) {
		return
	}
	msg := fmt.Sprintf("unknown renderer %q; using %s", name, render.Fallback)
	e.warnings = append(e.warnings, msg)
	if !e.warned[name] {
		e.warned[name] = true
		e.log.Warn().Str("collection", e.collection.ID).Str("renderer", name).Msg("unknown renderer")
	}
}

func (e *Engine) listKey() string {
	return e.collection.ID + "|" + e.state.Signature()
}

// syncSelection re-derives the selection from the route and the loaded
// entities.
func (e *Engine) syncSelection(ctx context.Context) Update {
	var u Update
	if e.sync == nil {
		return u
	}
	cur := e.pager.Snapshot()
	out := e.machine.Sync(ctx, e.route, e.listKey(), cur.Entities)

	if out.Rewrite != nil && !out.Rewrite.Equal(e.route) {
		e.route = *out.Rewrite
		addr := e.route.String()
		e.history.Replace(addr)
		u.add(Command{Kind: ReplaceAddress, Address: addr})
	}

	if !out.NeedsLookup {
		return u
	}
	switch {
	case e.lookedUp != nil && e.lookedUp.ID == out.SelectedID:
		e.machine.Resolve(e.lookedUp)
	case e.lookupID != out.SelectedID:
		e.lookupID = out.SelectedID
		e.lookedUp = nil
		u.add(Command{Kind: LookupEntity, Collection: e.collection.ID, EntityID: out.SelectedID})
	}
	return u
}

// fill starts the next page fetch when nothing is loaded yet or the viewport
// is near the bottom of the loaded rows.
func (e *Engine) fill() Update {
	if e.sync == nil {
		return Update{}
	}
	cur := e.pager.Snapshot()
	if len(cur.Entities) > 0 && !e.nearBottom(cur) {
		return Update{}
	}
	return e.begin()
}

func (e *Engine) begin() Update {
	req, ok := e.pager.Begin()
	if !ok {
		return Update{}
	}
	return Update{Commands: []Command{{Kind: FetchMore, Fetch: req}}}
}

func (e *Engine) nearBottom(cur paging.Cursor) bool {
	w := e.window(cur)
	return paging.NearBottom(e.measure.ScrollOffset, e.measure.ContainerSize, w.TotalSize, e.threshold)
}

// Fetch runs a FetchMore request against the provider. It is safe to call
// from any goroutine.
func (e *Engine) Fetch(ctx context.Context, req paging.Request) (entity.Page, error) {
	ctx = logging.WithGeneration(logging.WithCollection(ctx, req.Page.Collection), req.Generation)
	return e.provider.GetPage(ctx, req.Page)
}

// Lookup runs a LookupEntity command against the provider. It is safe to
// call from any goroutine.
func (e *Engine) Lookup(ctx context.Context, c Command) (*entity.Record, error) {
	return e.provider.FindByID(logging.WithCollection(ctx, c.Collection), c.Collection, c.EntityID)
}

// ApplyPage records the outcome of a FetchMore command. Stale generations
// are discarded.
func (e *Engine) ApplyPage(ctx context.Context, req paging.Request, page entity.Page, err error) Update {
	if !e.pager.Apply(ctx, req, page, err) {
		return Update{}
	}
	u := e.syncSelection(ctx)
	u.merge(e.fill())
	return u
}

// ApplyLookup records the outcome of a LookupEntity command. A missing
// entity clears the selection and its route segment.
func (e *Engine) ApplyLookup(id string, rec *entity.Record, err error) Update {
	if id == "" || id != e.lookupID {
		return Update{}
	}
	if err != nil {
		e.lookupID = ""
		e.log.Warn().Err(err).Str("collection", e.collection.ID).Str("id", id).Msg("entity lookup failed")
		return Update{}
	}
	if rec == nil {
		e.lookedUp = nil
		e.machine.Resolve(nil)
		e.route = e.route.WithSegment("")
		addr := e.route.String()
		e.history.Replace(addr)
		return Update{Commands: []Command{{Kind: ReplaceAddress, Address: addr}}}
	}
	r := *rec
	e.lookedUp = &r
	e.machine.Resolve(&r)
	return Update{}
}

// Measure records a new container measurement. Width changes move the
// drawer mode only; the selection persists.
func (e *Engine) Measure(m Measurement) Update {
	m.ScrollOffset = max(m.ScrollOffset, 0)
	e.measure = m
	e.machine.SetWidth(m.Width)
	return e.fill()
}

// Scroll moves the viewport and fetches more when it nears the bottom.
func (e *Engine) Scroll(offset int) Update {
	w := e.window(e.pager.Snapshot())
	e.measure.ScrollOffset = min(max(offset, 0), viewport.MaxOffset(w.TotalSize, e.measure.ContainerSize))
	return e.fill()
}

// ScrollBy moves the viewport by delta.
func (e *Engine) ScrollBy(delta int) Update {
	return e.Scroll(e.measure.ScrollOffset + delta)
}

// EnsureVisible scrolls the smallest distance that shows the entity at
// index.
func (e *Engine) EnsureVisible(index int) Update {
	l := e.Layout()
	row := viewport.RowForEntity(index, l.Columns, l.Grid)
	offset := viewport.ScrollIntoView(e.measure.ScrollOffset, e.measure.ContainerSize, e.itemSize(), row)
	if offset == e.measure.ScrollOffset {
		return e.fill()
	}
	return e.Scroll(offset)
}

// RequestMore fetches the next page regardless of the scroll position.
func (e *Engine) RequestMore() Update { return e.begin() }

// Retry clears a pending fetch error and fetches again.
func (e *Engine) Retry() Update {
	e.pager.ClearError()
	return e.begin()
}

// SetFilter sets or clears (empty value) a filter, clearing dependent
// filters, and pushes the resulting address.
func (e *Engine) SetFilter(ctx context.Context, fieldID, value string) (Update, error) {
	if e.sync == nil {
		return Update{}, errors.New("no active address")
	}
	f, ok := e.sync.Field(fieldID)
	if !ok {
		return Update{}, fmt.Errorf("unknown filter %q", fieldID)
	}
	if value != "" && !query.Enabled(f, e.state) {
		return Update{}, fmt.Errorf("filter %q is disabled until %q is set", fieldID, f.DisabledUntil)
	}
	next := query.SetFilter(e.state, e.sync.Fields(), fieldID, value)
	return e.apply(ctx, next, e.viewID, navPush)
}

// SetSort applies the sort option with the given id.
func (e *Engine) SetSort(ctx context.Context, sortID string) (Update, error) {
	if e.sync == nil {
		return Update{}, errors.New("no active address")
	}
	next := e.state.Clone()
	next.Sort = e.sync.SortByID(sortID)
	return e.apply(ctx, next, e.viewID, navPush)
}

// SetView switches the active view.
func (e *Engine) SetView(ctx context.Context, viewID string) (Update, error) {
	if e.sync == nil {
		return Update{}, errors.New("no active address")
	}
	return e.apply(ctx, e.state, viewID, navPush)
}

// SearchInput registers a keystroke in the search prompt. The host schedules
// FireSearch after the returned delay.
func (e *Engine) SearchInput(text string) Update {
	p, ok := e.search.Input(text)
	if !ok {
		return Update{}
	}
	return Update{Commands: []Command{{Kind: ScheduleSearch, Search: p}}}
}

// FireSearch dispatches a scheduled search when it is still the latest
// input. The address is replaced rather than pushed.
func (e *Engine) FireSearch(ctx context.Context, id uint64) (Update, error) {
	text, ok := e.search.Fire(id)
	if !ok || e.sync == nil {
		return Update{}, nil
	}
	next := e.state.Clone()
	next.Search = text
	return e.apply(ctx, next, e.viewID, navReplace)
}

func (e *Engine) apply(ctx context.Context, state query.State, view string, mode navMode) (Update, error) {
	values, err := e.sync.Serialize(ctx, state, view)
	if err != nil {
		e.log.Warn().Err(err).Str("collection", e.collection.ID).Msg("labels unavailable, writing ids")
	}
	return e.navigate(ctx, e.route.WithQuery(values).String(), mode)
}

// Select opens the loaded entity with the given id.
func (e *Engine) Select(ctx context.Context, id string) (Update, error) {
	cur := e.pager.Snapshot()
	i := slices.IndexFunc(cur.Entities, func(r entity.Record) bool { return r.ID == id })
	if i < 0 {
		return Update{}, fmt.Errorf("select %q: %w", id, entity.ErrNotFound)
	}
	route := e.machine.Select(ctx, e.route, cur.Entities[i])
	return e.navigate(ctx, route.String(), navPush)
}

// SelectIndex opens the loaded entity at index.
func (e *Engine) SelectIndex(ctx context.Context, index int) (Update, error) {
	cur := e.pager.Snapshot()
	if index < 0 || index >= len(cur.Entities) {
		return Update{}, fmt.Errorf("select index %d: out of range", index)
	}
	return e.Select(ctx, cur.Entities[index].ID)
}

// Expand shows the selected entity fullscreen.
func (e *Engine) Expand(ctx context.Context) (Update, error) {
	route := e.machine.Expand(e.route)
	if route.Equal(e.route) {
		return Update{}, nil
	}
	return e.navigate(ctx, route.String(), navPush)
}

// CloseSelection closes the drawer or fullscreen entity.
func (e *Engine) CloseSelection(ctx context.Context) (Update, error) {
	if e.route.Segment == "" {
		return Update{}, nil
	}
	return e.navigate(ctx, e.machine.Close(e.route).String(), navPush)
}

// Run executes u and every follow-up command synchronously. Scheduled
// searches fire immediately. Fetch errors are recorded on the cursor and do
// not stop the run.
func (e *Engine) Run(ctx context.Context, u Update) error {
	queue := slices.Clone(u.Commands)
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		c := queue[0]
		queue = queue[1:]

		var next Update
		switch c.Kind {
		case FetchMore:
			page, err := e.Fetch(ctx, c.Fetch)
			next = e.ApplyPage(ctx, c.Fetch, page, err)
		case LookupEntity:
			rec, err := e.Lookup(ctx, c)
			next = e.ApplyLookup(c.EntityID, rec, err)
		case ScheduleSearch:
			var err error
			if next, err = e.FireSearch(ctx, c.Search.ID); err != nil {
				return err
			}
		}
		queue = append(queue, next.Commands...)
	}
	return nil
}

// Address returns the current address.
func (e *Engine) Address() string {
	if e.sync == nil {
		return ""
	}
	return e.route.String()
}

// Route returns the current parsed address.
func (e *Engine) Route() selection.Route { return e.route }

// State returns the active query state.
func (e *Engine) State() query.State { return e.state.Clone() }

// Collection returns the active collection.
func (e *Engine) Collection() config.Collection { return e.collection }

// Collections returns every configured collection.
func (e *Engine) Collections() []config.Collection { return e.cfg.Collections }

// Synchronizer returns the synchronizer of the active collection, nil
// before the first address.
func (e *Engine) Synchronizer() *query.Synchronizer { return e.sync }

// Cursor returns the loaded result set.
func (e *Engine) Cursor() paging.Cursor { return e.pager.Snapshot() }

// View returns the active view configuration.
func (e *Engine) View() config.ViewConfig { return e.collection.View(e.viewID) }

// Renderer returns the renderer of the active view.
func (e *Engine) Renderer() render.Renderer { return e.renderers.Lookup(e.View().Renderer) }

// Layout returns the layout of the active view at the measured width.
func (e *Engine) Layout() viewport.Layout {
	return viewport.SelectLayout(e.View().View, e.measure.Width, e.cfg.Breakpoints)
}

// Window returns the rows to mount for the current measurement.
func (e *Engine) Window() viewport.Window { return e.window(e.pager.Snapshot()) }

func (e *Engine) window(cur paging.Cursor) viewport.Window {
	v := e.View()
	l := e.Layout()
	return viewport.ComputeWindow(viewport.Params{
		ScrollOffset:  e.measure.ScrollOffset,
		ContainerSize: e.measure.ContainerSize,
		EntityCount:   len(cur.Entities),
		ItemSize:      e.itemSize(),
		Overscan:      v.Overscan,
		Columns:       l.Columns,
		Grid:          l.Grid,
		HasMore:       cur.HasMore,
	})
}

func (e *Engine) itemSize() int {
	if n := e.View().ItemSize; n > 0 {
		return n
	}
	return e.Renderer().Height()
}

// Measurement returns the last measurement.
func (e *Engine) Measurement() Measurement { return e.measure }

// Display returns how the selection is presented.
func (e *Engine) Display() selection.Display { return e.machine.Display() }

// Selected returns the selected id and its record when known.
func (e *Engine) Selected() (string, *entity.Record) {
	id := e.machine.SelectedID()
	if rec, ok := e.machine.Selected(); ok {
		return id, &rec
	}
	return id, nil
}

// Warnings returns the warnings of the last address parse.
func (e *Engine) Warnings() []string { return slices.Clone(e.warnings) }

// ResolveErr returns the label resolution failure of the last parse.
func (e *Engine) ResolveErr() error { return e.resolveErr }

// History returns the address history.
func (e *Engine) History() *History { return e.history }
