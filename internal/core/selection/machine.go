// Package selection derives which entity is open and how it is presented
// from the route, the loaded entities and the viewport width.
package selection

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/colonyops/kennel/internal/core/entity"
	"github.com/colonyops/kennel/internal/core/labels"
	"github.com/colonyops/kennel/internal/core/viewport"
)

// RouteRecorder persists slug→id route records for direct links that point
// at entities that are not loaded.
type RouteRecorder interface {
	RecordRoute(ctx context.Context, collection, slug, id string) error
	LookupRoute(ctx context.Context, collection, slug string) (string, bool, error)
}

// Policy toggles the product rules of the machine.
type Policy struct {
	// FallbackToFirst selects the first loaded entity, and rewrites the
	// route, when a slug matches nothing.
	FallbackToFirst bool
	// AutoSelect opens the first entity once per list when the drawer is
	// permanent and the route names none.
	AutoSelect bool
}

// DefaultPolicy enables both rules.
func DefaultPolicy() Policy {
	return Policy{FallbackToFirst: true, AutoSelect: true}
}

// Outcome is the result of a route sync.
type Outcome struct {
	// SelectedID is empty when nothing is selected.
	SelectedID string
	// Entity is the selected record when it is loaded.
	Entity *entity.Record
	// NeedsLookup is set when SelectedID is not among the loaded entities
	// and the host should fetch it by id.
	NeedsLookup bool
	// Pending is set when the route names a slug that cannot be resolved
	// until entities load.
	Pending bool
	Display Display
	// Rewrite, when set, replaces the current address.
	Rewrite *Route
}

// Machine is the selection and display-mode state machine. It is not safe for
// concurrent use; hosts drive it from their event loop.
type Machine struct {
	bps    viewport.Breakpoints
	modes  Modes
	policy Policy
	routes RouteRecorder
	log    zerolog.Logger

	width      int
	mode       Mode
	selectedID string
	selected   *entity.Record
	fullscreen bool
	seenLists  map[string]bool
}

// NewMachine creates a machine at width 0 (xs). routes may be nil.
func NewMachine(bps viewport.Breakpoints, modes Modes, policy Policy, routes RouteRecorder, log zerolog.Logger) *Machine {
	if modes == nil {
		modes = DefaultModes()
	}
	m := &Machine{
		bps:       bps,
		modes:     modes,
		policy:    policy,
		routes:    routes,
		log:       log,
		seenLists: map[string]bool{},
	}
	m.mode = modes.At(bps.Of(0))
	return m
}

// SetWidth updates the viewport width. Only the mode changes; the selection
// persists.
func (m *Machine) SetWidth(width int) Display {
	m.width = width
	m.mode = m.modes.At(m.bps.Of(width))
	return m.Display()
}

// Mode returns the drawer mode for the current width.
func (m *Machine) Mode() Mode { return m.mode }

// Width returns the last measured width.
func (m *Machine) Width() int { return m.width }

// SelectedID returns the selected id, empty when nothing is selected.
func (m *Machine) SelectedID() string { return m.selectedID }

// Selected returns the selected record when it is known.
func (m *Machine) Selected() (entity.Record, bool) {
	if m.selected == nil {
		return entity.Record{}, false
	}
	return *m.selected, true
}

// Display derives the presentation of the current selection.
func (m *Machine) Display() Display {
	switch {
	case m.selectedID == "":
		return Display{Kind: NoSelection}
	case m.fullscreen || m.mode == ModeFullscreen:
		return Display{Kind: Fullscreen}
	}
	return Display{Kind: DrawerOpen, Mode: m.mode}
}

// Sync re-derives the selection from route. listKey identifies the list
// (collection plus query signature) for the once-per-list auto-select rule.
func (m *Machine) Sync(ctx context.Context, route Route, listKey string, entities []entity.Record) Outcome {
	firstLoad := len(entities) > 0 && !m.seenLists[listKey]
	if len(entities) > 0 {
		m.seenLists[listKey] = true
	}

	if route.Segment == "" {
		m.clear()
		if firstLoad && m.policy.AutoSelect && m.mode.Permanent() {
			first := entities[0]
			m.set(first.ID, &first, false)
			rw := route.WithSegment(SegmentFor(first))
			m.log.Debug().Str("collection", route.Collection).Str("id", first.ID).Msg("auto-selected first entity")
			return m.outcome(&rw)
		}
		return m.outcome(nil)
	}

	seg := route.Segment
	if IsOpaqueID(seg) {
		m.set(seg, find(entities, func(e entity.Record) bool { return e.ID == seg }), route.Fullscreen)
		return m.outcome(nil)
	}

	// exact id or slug anywhere in the list beats a name match
	e := find(entities, func(e entity.Record) bool { return e.ID == seg || (e.Slug != "" && e.Slug == seg) })
	if e == nil {
		e = find(entities, func(e entity.Record) bool { return MatchesSlug(e, seg) })
	}
	if e != nil {
		m.set(e.ID, e, route.Fullscreen)
		return m.outcome(nil)
	}

	if id, ok := m.lookupRoute(ctx, route.Collection, seg); ok {
		m.set(id, find(entities, func(e entity.Record) bool { return e.ID == id }), route.Fullscreen)
		return m.outcome(nil)
	}

	if len(entities) == 0 {
		m.clear()
		out := m.outcome(nil)
		out.Pending = true
		return out
	}

	if !m.policy.FallbackToFirst {
		m.clear()
		m.log.Debug().Str("collection", route.Collection).Str("segment", seg).Msg("route segment matches no loaded entity")
		return m.outcome(nil)
	}

	first := entities[0]
	m.set(first.ID, &first, route.Fullscreen)
	rw := route.WithSegment(SegmentFor(first))
	rw.Fullscreen = route.Fullscreen
	m.log.Debug().
		Str("collection", route.Collection).
		Str("segment", seg).
		Str("id", first.ID).
		Msg("route segment unmatched, falling back to first entity")
	return m.outcome(&rw)
}

// Resolve attaches a record fetched by id after a NeedsLookup outcome. A nil
// record (not found) clears the selection.
func (m *Machine) Resolve(rec *entity.Record) Display {
	switch {
	case rec == nil:
		m.clear()
	case rec.ID == m.selectedID:
		r := *rec
		m.selected = &r
	}
	return m.Display()
}

// Select records an explicit selection and returns the route to push. A
// slug→id route record is persisted on a best-effort basis.
func (m *Machine) Select(ctx context.Context, route Route, e entity.Record) Route {
	m.set(e.ID, &e, false)
	if m.routes != nil && e.Slug != "" {
		if err := m.routes.RecordRoute(ctx, route.Collection, e.Slug, e.ID); err != nil {
			m.log.Warn().Err(err).Str("collection", route.Collection).Str("slug", e.Slug).Msg("route record write failed")
		}
	}
	return route.WithSegment(SegmentFor(e))
}

// Expand switches the selection to fullscreen and returns the route to push.
// Without a selection the route is returned unchanged.
func (m *Machine) Expand(route Route) Route {
	if m.selectedID == "" || route.Segment == "" {
		return route
	}
	m.fullscreen = true
	out := route.WithSegment(route.Segment)
	out.Fullscreen = true
	return out
}

// Close clears the selection and returns the route to push.
func (m *Machine) Close(route Route) Route {
	m.clear()
	return route.WithSegment("")
}

func (m *Machine) set(id string, rec *entity.Record, fullscreen bool) {
	m.selectedID = id
	m.selected = rec
	m.fullscreen = fullscreen
}

func (m *Machine) clear() {
	m.selectedID = ""
	m.selected = nil
	m.fullscreen = false
}

func (m *Machine) outcome(rewrite *Route) Outcome {
	return Outcome{
		SelectedID:  m.selectedID,
		Entity:      m.selected,
		NeedsLookup: m.selectedID != "" && m.selected == nil,
		Display:     m.Display(),
		Rewrite:     rewrite,
	}
}

func (m *Machine) lookupRoute(ctx context.Context, collection, seg string) (string, bool) {
	if m.routes == nil {
		return "", false
	}
	id, ok, err := m.routes.LookupRoute(ctx, collection, seg)
	if err != nil {
		m.log.Warn().Err(err).Str("collection", collection).Str("slug", seg).Msg("route record read failed")
		return "", false
	}
	return id, ok
}

// IsOpaqueID reports whether a route segment is shaped like an entity id
// rather than a slug.
func IsOpaqueID(seg string) bool {
	_, err := uuid.Parse(seg)
	return err == nil
}

// MatchesSlug reports whether seg names e by slug or normalized name.
func MatchesSlug(e entity.Record, seg string) bool {
	if e.Slug != "" && e.Slug == seg {
		return true
	}
	return labels.Normalize(seg) != "" && labels.Equal(e.Name, seg)
}

// SegmentFor returns the route segment that opens e.
func SegmentFor(e entity.Record) string {
	if e.Slug != "" {
		return e.Slug
	}
	return e.ID
}

func find(entities []entity.Record, match func(entity.Record) bool) *entity.Record {
	for i := range entities {
		if match(entities[i]) {
			e := entities[i]
			return &e
		}
	}
	return nil
}
