package query

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/colonyops/kennel/internal/core/entity"
	"github.com/colonyops/kennel/internal/core/labels"
)

// maxParallelLookups bounds concurrent label lookups per parse.
const maxParallelLookups = 8

// LabelResolver translates dictionary ids and labels.
type LabelResolver interface {
	LabelFor(ctx context.Context, ref labels.Ref, id string) (string, error)
	IDFor(ctx context.Context, ref labels.Ref, label string) (string, bool, error)
}

// Options tunes a Synchronizer.
type Options struct {
	SearchSlug  string
	TieBreaker  string
	Views       []string
	DefaultView string
}

// Parsed is the result of reading an address.
type Parsed struct {
	State State
	View  string
	// Rewritten is set when legacy parameters were migrated and the host
	// should replace the address with the serialized form.
	Rewritten bool
	Warnings  []string
	// ResolveErr joins dictionary fetch failures. Affected values were passed
	// through unresolved.
	ResolveErr error
}

// Synchronizer maps address parameters to query state and back.
type Synchronizer struct {
	collection string
	fields     []FieldConfig
	bySlug     map[string]int
	byID       map[string]int
	sorts      []SortOption
	resolver   LabelResolver
	opts       Options
	log        zerolog.Logger

	warnMu sync.Mutex
	warned map[string]bool
}

// NewSynchronizer indexes the field configuration. Slug collisions are
// configuration errors: they are logged once and the first field keeps the
// slug.
func NewSynchronizer(collection string, fields []FieldConfig, sorts []SortOption, resolver LabelResolver, log zerolog.Logger, opts Options) *Synchronizer {
	if opts.SearchSlug == "" {
		opts.SearchSlug = DefaultSearchSlug
	}
	if opts.TieBreaker == "" {
		opts.TieBreaker = DefaultTieBreaker
	}
	if opts.DefaultView == "" && len(opts.Views) > 0 {
		opts.DefaultView = opts.Views[0]
	}

	s := &Synchronizer{
		collection: collection,
		fields:     fields,
		bySlug:     make(map[string]int, len(fields)),
		byID:       make(map[string]int, len(fields)),
		sorts:      sorts,
		resolver:   resolver,
		opts:       opts,
		log:        log,
		warned:     map[string]bool{},
	}

	for i, f := range fields {
		if _, ok := s.byID[f.ID]; !ok {
			s.byID[f.ID] = i
		}
		if f.Slug == "" {
			continue
		}
		if _, ok := s.bySlug[f.Slug]; ok {
			continue
		}
		s.bySlug[f.Slug] = i
	}
	for _, key := range SlugCollisions(fields) {
		s.warnOnce("collision:"+key, fmt.Sprintf("filter parameter %q is claimed by more than one field", key))
	}
	return s
}

// Fields returns the configured filter fields.
func (s *Synchronizer) Fields() []FieldConfig { return s.fields }

// Sorts returns the configured sort options.
func (s *Synchronizer) Sorts() []SortOption { return s.sorts }

// SearchSlug returns the main search parameter name.
func (s *Synchronizer) SearchSlug() string { return s.opts.SearchSlug }

// DefaultView returns the view used when the address names none.
func (s *Synchronizer) DefaultView() string { return s.opts.DefaultView }

// Field returns the field with the given id.
func (s *Synchronizer) Field(id string) (FieldConfig, bool) {
	i, ok := s.byID[id]
	if !ok {
		return FieldConfig{}, false
	}
	return s.fields[i], true
}

// FieldByKey returns the field an address parameter names.
func (s *Synchronizer) FieldByKey(key string) (FieldConfig, bool) { return s.lookup(key) }

// lookup matches a parameter name by slug first, then raw field id.
func (s *Synchronizer) lookup(key string) (FieldConfig, bool) {
	if i, ok := s.bySlug[key]; ok {
		return s.fields[i], true
	}
	if i, ok := s.byID[key]; ok {
		return s.fields[i], true
	}
	return FieldConfig{}, false
}

type pendingValue struct {
	field FieldConfig
	token string
}

// Parse reads address parameters into query state. Dictionary-backed values
// are resolved concurrently; unresolvable tokens are passed through as ids.
func (s *Synchronizer) Parse(ctx context.Context, values url.Values) (Parsed, error) {
	out := Parsed{}

	out.View = s.resolveView(values.Get(ParamView), &out)
	sortID, rewritten := s.migrateLegacySort(values)
	out.Rewritten = rewritten
	out.State.Sort = s.resolveSort(sortID, &out)
	out.State.Search = strings.TrimSpace(values.Get(s.opts.SearchSlug))

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	// slug keys before raw ids so a slug always wins a duplicate
	slices.SortFunc(keys, func(a, b string) int {
		_, aSlug := s.bySlug[a]
		_, bSlug := s.bySlug[b]
		switch {
		case aSlug && !bSlug:
			return -1
		case bSlug && !aSlug:
			return 1
		}
		return strings.Compare(a, b)
	})

	raw := map[string]pendingValue{}
	for _, key := range keys {
		if isReserved(key) || key == s.opts.SearchSlug {
			continue
		}
		token := strings.TrimSpace(values.Get(key))
		field, ok := s.lookup(key)
		if !ok {
			out.warn(s.log, fmt.Sprintf("dropping unknown parameter %q", key))
			continue
		}
		if token == "" {
			continue
		}
		if _, dup := raw[field.ID]; dup {
			out.warn(s.log, fmt.Sprintf("parameter %q duplicates filter %q", key, field.ID))
			continue
		}
		raw[field.ID] = pendingValue{field: field, token: token}
	}

	for _, f := range s.fields {
		if _, ok := raw[f.ID]; ok || !f.Required {
			continue
		}
		if f.Default != "" {
			raw[f.ID] = pendingValue{field: f, token: f.Default}
			continue
		}
		s.warnOnce("required:"+f.ID, fmt.Sprintf("required filter %q has no value and no default", f.ID))
	}

	present := State{Filters: map[string]string{}}
	for id := range raw {
		present.Filters[id] = "set"
	}
	for id, pv := range raw {
		if !Enabled(pv.field, present) {
			out.warn(s.log, fmt.Sprintf("ignoring %q until %q is set", id, pv.field.DisabledUntil))
			delete(raw, id)
		}
	}

	filters, err := s.resolveIDs(ctx, raw)
	if err != nil && ctx.Err() != nil {
		return Parsed{}, ctx.Err()
	}
	out.ResolveErr = err
	out.State.Filters = filters
	return out, nil
}

func (s *Synchronizer) resolveIDs(ctx context.Context, raw map[string]pendingValue) (map[string]string, error) {
	ids := slices.Sorted(maps.Keys(raw))

	resolved := make([]string, len(ids))
	errs := make([]error, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLookups)
	for i, id := range ids {
		pv := raw[id]
		if !pv.field.IsDictionary() || s.resolver == nil {
			resolved[i] = pv.token
			continue
		}
		g.Go(func() error {
			got, ok, err := s.resolver.IDFor(gctx, pv.field.Ref(), pv.token)
			switch {
			case err != nil:
				errs[i] = fmt.Errorf("resolve %s=%q: %w", pv.field.Key(), pv.token, err)
				resolved[i] = pv.token
			case !ok:
				// last-resort passthrough keeps stale links usable
				resolved[i] = pv.token
			default:
				resolved[i] = got
			}
			return nil
		})
	}
	_ = g.Wait()

	filters := make(map[string]string, len(ids))
	for i, id := range ids {
		filters[id] = resolved[i]
	}
	return filters, errors.Join(errs...)
}

// Serialize writes query state back into address parameters. Only the view
// and sort that differ from their defaults are written.
func (s *Synchronizer) Serialize(ctx context.Context, state State, view string) (url.Values, error) {
	out := url.Values{}
	if view != "" && view != s.opts.DefaultView {
		out.Set(ParamView, view)
	}
	if opt, ok := s.SortOptionFor(state.Sort); ok {
		if def, hasDef := s.defaultSort(); !hasDef || def.ID != opt.ID {
			out.Set(ParamSort, opt.ID)
		}
	}
	if state.Search != "" {
		out.Set(s.opts.SearchSlug, state.Search)
	}

	type item struct {
		field FieldConfig
		id    string
	}
	var items []item
	for _, f := range s.fields {
		if v, ok := state.Filters[f.ID]; ok && v != "" {
			items = append(items, item{field: f, id: v})
		}
	}
	for id := range state.Filters {
		if _, ok := s.byID[id]; !ok {
			s.warnOnce("serialize:"+id, fmt.Sprintf("filter %q is not configured; not written to the address", id))
		}
	}

	labelsOut := make([]string, len(items))
	errs := make([]error, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLookups)
	for i, it := range items {
		if !it.field.IsDictionary() || s.resolver == nil {
			labelsOut[i] = it.id
			continue
		}
		g.Go(func() error {
			label, err := s.resolver.LabelFor(gctx, it.field.Ref(), it.id)
			if err != nil {
				errs[i] = fmt.Errorf("label for %s=%q: %w", it.field.ID, it.id, err)
			}
			if label == "" {
				label = it.id
			}
			labelsOut[i] = label
			return nil
		})
	}
	_ = g.Wait()

	for i, it := range items {
		out.Set(it.field.Key(), labelsOut[i])
	}
	return out, errors.Join(errs...)
}

// SortOptionFor returns the option matching a resolved sort.
func (s *Synchronizer) SortOptionFor(sort entity.Sort) (SortOption, bool) {
	for _, o := range s.sorts {
		if o.Field == sort.Field && normDir(o.Direction) == normDir(sort.Direction) {
			return o, true
		}
	}
	return SortOption{}, false
}

// SortByID resolves a sort option id the same way Parse does.
func (s *Synchronizer) SortByID(id string) entity.Sort {
	var p Parsed
	return s.resolveSort(id, &p)
}

func (s *Synchronizer) defaultSort() (SortOption, bool) {
	for _, o := range s.sorts {
		if o.Default {
			return o, true
		}
	}
	if len(s.sorts) > 0 {
		return s.sorts[0], true
	}
	return SortOption{}, false
}

// resolveSort picks the named option, else the default-flagged one, else the
// first. The result always carries a tie-breaker.
func (s *Synchronizer) resolveSort(id string, out *Parsed) entity.Sort {
	opt, ok := SortOption{}, false
	if id != "" {
		for _, o := range s.sorts {
			if o.ID == id {
				opt, ok = o, true
				break
			}
		}
		if !ok {
			out.warn(s.log, fmt.Sprintf("unknown sort %q; using default", id))
		}
	}
	if !ok {
		opt, ok = s.defaultSort()
	}

	sort := entity.Sort{Field: "name", Direction: entity.Asc}
	if ok {
		sort = entity.Sort{Field: opt.Field, Direction: normDir(opt.Direction), TieBreaker: opt.TieBreaker}
	}
	if sort.TieBreaker == "" {
		sort.TieBreaker = s.opts.TieBreaker
	}
	return sort
}

// migrateLegacySort maps sortBy/sortDir/sortParam onto a sort option id.
func (s *Synchronizer) migrateLegacySort(values url.Values) (string, bool) {
	id := values.Get(ParamSort)
	legacy := values.Has(ParamLegacySortBy) || values.Has(ParamLegacySortDir) || values.Has(ParamLegacySortParam)
	if !legacy {
		return id, false
	}
	if id != "" {
		return id, true
	}
	if p := values.Get(ParamLegacySortParam); p != "" {
		return p, true
	}

	field := values.Get(ParamLegacySortBy)
	dir := entity.ParseDirection(values.Get(ParamLegacySortDir))
	var fallback string
	for _, o := range s.sorts {
		if o.Field != field {
			continue
		}
		if normDir(o.Direction) == dir {
			return o.ID, true
		}
		if fallback == "" {
			fallback = o.ID
		}
	}
	return fallback, true
}

func (s *Synchronizer) resolveView(view string, out *Parsed) string {
	if view == "" {
		return s.opts.DefaultView
	}
	if len(s.opts.Views) > 0 && !slices.Contains(s.opts.Views, view) {
		out.warn(s.log, fmt.Sprintf("unknown view %q; using %q", view, s.opts.DefaultView))
		return s.opts.DefaultView
	}
	return view
}

func (s *Synchronizer) warnOnce(key, msg string) {
	s.warnMu.Lock()
	defer s.warnMu.Unlock()
	if s.warned[key] {
		return
	}
	s.warned[key] = true
	s.log.Warn().Str("collection", s.collection).Msg(msg)
}

func (p *Parsed) warn(log zerolog.Logger, msg string) {
	p.Warnings = append(p.Warnings, msg)
	log.Warn().Msg(msg)
}

func normDir(d entity.Direction) entity.Direction {
	return entity.ParseDirection(string(d))
}
