package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/kennel/internal/core/config"
	"github.com/colonyops/kennel/internal/core/entity"
	"github.com/colonyops/kennel/internal/core/kv"
	"github.com/colonyops/kennel/internal/core/render"
	"github.com/colonyops/kennel/internal/core/selection"
	"github.com/colonyops/kennel/internal/data/memory"
)

func petID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("pets/"+name)).String()
}

var (
	bellaID = petID("Bella")
	rexID   = petID("Rex")
)

func newProvider(t *testing.T) *memory.Provider {
	t.Helper()
	ctx := context.Background()
	p := memory.New()
	require.NoError(t, p.Put(ctx, "pet_types",
		entity.Record{ID: "t-dog", Name: "Dogs"},
		entity.Record{ID: "t-cat", Name: "Cats"},
	))
	require.NoError(t, p.Put(ctx, "pets",
		entity.Record{ID: bellaID, Name: "Bella", Slug: "bella", Fields: map[string]any{"pet_type_id": "t-dog"}},
		entity.Record{ID: petID("Doggo"), Name: "Doggo", Slug: "doggo", Fields: map[string]any{"pet_type_id": "t-dog"}},
		entity.Record{ID: petID("Milo"), Name: "Milo", Slug: "milo", Fields: map[string]any{"pet_type_id": "t-cat"}},
		entity.Record{ID: rexID, Name: "Rex", Slug: "rex", Fields: map[string]any{"pet_type_id": "t-dog"}},
	))
	return p
}

func newEngine(t *testing.T, p entity.Provider, mutate ...func(*config.Config)) *Engine {
	t.Helper()
	cfg := config.DefaultConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}
	e, err := New(Deps{Provider: p, Config: &cfg, KV: kv.NewMemory(), Log: zerolog.Nop(), Threshold: 5})
	require.NoError(t, err)
	return e
}

func open(t *testing.T, e *Engine, addr string) Update {
	t.Helper()
	u, err := e.Open(context.Background(), addr)
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background(), u))
	return u
}

func names(recs []entity.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Name)
	}
	return out
}

func commandOf(t *testing.T, u Update, kind CommandKind) Command {
	t.Helper()
	for _, c := range u.Commands {
		if c.Kind == kind {
			return c
		}
	}
	t.Fatalf("no %s command in %+v", kind, u.Commands)
	return Command{}
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{})
	require.Error(t, err)

	cfg := config.DefaultConfig()
	_, err = New(Deps{Config: &cfg})
	require.Error(t, err)
}

func TestEngine_LoadsPagesWhileScrolling(t *testing.T) {
	ctx := context.Background()
	p := memory.New()
	for i := range 150 {
		name := fmt.Sprintf("Pet %03d", i)
		require.NoError(t, p.Put(ctx, "pets", entity.Record{ID: petID(name), Name: name}))
	}
	e := newEngine(t, p)
	e.Measure(Measurement{Width: 500})

	open(t, e, "/pets")
	cur := e.Cursor()
	require.Len(t, cur.Entities, 50, "an unmeasured container loads only the first page")
	assert.True(t, cur.HasMore)
	assert.Equal(t, 150, cur.Total)
	assert.True(t, cur.TotalReal)

	u := e.Measure(Measurement{Width: 500, ContainerSize: 10})
	assert.Empty(t, u.Commands)

	w := e.Window()
	require.True(t, w.Measured)
	assert.Equal(t, 51, w.TotalRows, "loading row reserves space")
	assert.Equal(t, 0, w.Rows[0].Index)

	u = e.Scroll(40)
	require.True(t, u.Has(FetchMore))
	assert.Equal(t, 50, commandOf(t, u, FetchMore).Fetch.Page.Cursor.Offset)
	require.NoError(t, e.Run(ctx, u))
	assert.Len(t, e.Cursor().Entities, 100)

	require.NoError(t, e.Run(ctx, e.Scroll(1000)))
	cur = e.Cursor()
	assert.Len(t, cur.Entities, 150)
	assert.False(t, cur.HasMore)

	assert.Empty(t, e.Scroll(1000).Commands, "nothing left to load")
	assert.Equal(t, 140, e.Measurement().ScrollOffset)
}

func TestEngine_ParsesAddressScenario(t *testing.T) {
	e := newEngine(t, newProvider(t))
	e.Measure(Measurement{Width: 500, ContainerSize: 20})

	u := open(t, e, "/pets?type=dogs&sort=name-desc")
	addr, ok := u.Address()
	require.True(t, ok)
	assert.Equal(t, "/pets?sort=name-desc&type=dogs", addr)

	st := e.State()
	assert.Equal(t, map[string]string{"pet_type_id": "t-dog"}, st.Filters)
	assert.Equal(t, entity.Sort{Field: "name", Direction: entity.Desc, TieBreaker: "id"}, st.Sort)
	assert.Equal(t, []string{"Rex", "Doggo", "Bella"}, names(e.Cursor().Entities))
	assert.Equal(t, "list", e.View().ID)
}

func TestEngine_LegacySortIsRewritten(t *testing.T) {
	e := newEngine(t, newProvider(t))

	u := open(t, e, "/pets?sortBy=name&sortDir=desc")
	assert.True(t, u.Has(ReplaceAddress))
	assert.Equal(t, "/pets?sort=name-desc", e.Address())
	assert.Equal(t, entity.Desc, e.State().Sort.Direction)
}

func TestEngine_AutoSelectAndWidthChange(t *testing.T) {
	e := newEngine(t, newProvider(t))
	e.Measure(Measurement{Width: 1600, ContainerSize: 20})

	open(t, e, "/pets")
	assert.Equal(t, "/pets/bella", e.Address())
	id, rec := e.Selected()
	assert.Equal(t, bellaID, id)
	require.NotNil(t, rec)
	assert.Equal(t, selection.Display{Kind: selection.DrawerOpen, Mode: selection.ModeSideTransparent}, e.Display())

	e.Measure(Measurement{Width: 500, ContainerSize: 20})
	assert.Equal(t, selection.Display{Kind: selection.DrawerOpen, Mode: selection.ModeOverlay}, e.Display())
	id, _ = e.Selected()
	assert.Equal(t, bellaID, id)
}

func TestEngine_UnmatchedSlugFallsBackToFirst(t *testing.T) {
	e := newEngine(t, newProvider(t))
	e.Measure(Measurement{Width: 500, ContainerSize: 20})

	open(t, e, "/pets/ghost")
	assert.Equal(t, "/pets/bella", e.Address())
	id, _ := e.Selected()
	assert.Equal(t, bellaID, id)
}

func TestEngine_FallbackDisabled(t *testing.T) {
	off := false
	e := newEngine(t, newProvider(t), func(c *config.Config) {
		c.Selection.FallbackToFirst = &off
	})
	e.Measure(Measurement{Width: 500, ContainerSize: 20})

	open(t, e, "/pets/ghost")
	assert.Equal(t, "/pets/ghost", e.Address())
	id, _ := e.Selected()
	assert.Empty(t, id)
}

func TestEngine_SelectBackForward(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, newProvider(t))
	e.Measure(Measurement{Width: 500, ContainerSize: 20})
	open(t, e, "/pets")

	u, err := e.Select(ctx, rexID)
	require.NoError(t, err)
	addr, _ := u.Address()
	assert.Equal(t, "/pets/rex", addr)
	assert.True(t, u.Has(PushAddress))
	assert.Equal(t, selection.DrawerOpen, e.Display().Kind)

	u, err = e.Expand(ctx)
	require.NoError(t, err)
	require.NoError(t, e.Run(ctx, u))
	assert.Equal(t, "/pets/rex/fullscreen", e.Address())
	assert.Equal(t, selection.Fullscreen, e.Display().Kind)

	u, err = e.Back(ctx)
	require.NoError(t, err)
	require.NoError(t, e.Run(ctx, u))
	assert.Equal(t, "/pets/rex", e.Address())
	assert.Equal(t, selection.DrawerOpen, e.Display().Kind)

	u, err = e.Back(ctx)
	require.NoError(t, err)
	require.NoError(t, e.Run(ctx, u))
	assert.Equal(t, "/pets", e.Address())
	assert.Equal(t, selection.NoSelection, e.Display().Kind)
	assert.False(t, e.History().CanBack())

	u, err = e.Forward(ctx)
	require.NoError(t, err)
	require.NoError(t, e.Run(ctx, u))
	id, _ := e.Selected()
	assert.Equal(t, rexID, id)

	u, err = e.CloseSelection(ctx)
	require.NoError(t, err)
	addr, _ = u.Address()
	assert.Equal(t, "/pets", addr)
	assert.False(t, e.History().CanForward())
}

func TestEngine_SelectUnknown(t *testing.T) {
	e := newEngine(t, newProvider(t))
	open(t, e, "/pets")

	_, err := e.Select(context.Background(), "missing")
	require.ErrorIs(t, err, entity.ErrNotFound)
}

func TestEngine_DiscardsStalePages(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, newProvider(t))

	first, err := e.Open(ctx, "/pets")
	require.NoError(t, err)
	stale := commandOf(t, first, FetchMore)

	second, err := e.SetFilter(ctx, "pet_type_id", "t-dog")
	require.NoError(t, err)
	assert.Equal(t, "/pets?type=dogs", e.Address())

	page, err := e.Fetch(ctx, stale.Fetch)
	require.NoError(t, err)
	assert.Empty(t, e.ApplyPage(ctx, stale.Fetch, page, nil).Commands)
	assert.Empty(t, e.Cursor().Entities)

	require.NoError(t, e.Run(ctx, second))
	assert.Equal(t, []string{"Bella", "Doggo", "Rex"}, names(e.Cursor().Entities))
}

func TestEngine_SetFilterErrors(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, newProvider(t))

	_, err := e.SetFilter(ctx, "pet_type_id", "t-dog")
	require.Error(t, err, "no active address")

	open(t, e, "/kennels")
	_, err = e.SetFilter(ctx, "nope", "x")
	require.Error(t, err)

	_, err = e.SetFilter(ctx, "city_id", "c-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled until")
}

func TestEngine_LooksUpUnloadedEntity(t *testing.T) {
	e := newEngine(t, newProvider(t), func(c *config.Config) { c.Tuning.PageSize = 2 })
	e.Measure(Measurement{Width: 500})

	u := open(t, e, "/pets/"+rexID)
	lookups := 0
	for _, c := range u.Commands {
		if c.Kind == LookupEntity {
			lookups++
		}
	}
	assert.Equal(t, 1, lookups)
	assert.Equal(t, []string{"Bella", "Doggo"}, names(e.Cursor().Entities))

	id, rec := e.Selected()
	assert.Equal(t, rexID, id)
	require.NotNil(t, rec)
	assert.Equal(t, "Rex", rec.Name)
}

func TestEngine_MissingEntityClearsSegment(t *testing.T) {
	e := newEngine(t, newProvider(t))
	e.Measure(Measurement{Width: 500})

	open(t, e, "/pets/"+uuid.NewString())
	assert.Equal(t, "/pets", e.Address())
	id, _ := e.Selected()
	assert.Empty(t, id)
}

func TestEngine_FetchErrorAndRetry(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)
	p.SetError(errors.New("connection reset"))
	e := newEngine(t, p)

	open(t, e, "/pets")
	cur := e.Cursor()
	require.Error(t, cur.Err)
	assert.True(t, entity.IsFetchError(cur.Err))
	assert.Empty(t, e.RequestMore().Commands, "errors block loading until retried")

	p.SetError(nil)
	u := e.Retry()
	require.True(t, u.Has(FetchMore))
	require.NoError(t, e.Run(ctx, u))
	cur = e.Cursor()
	assert.NoError(t, cur.Err)
	assert.Len(t, cur.Entities, 4)
}

func TestEngine_DebouncedSearch(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, newProvider(t))
	open(t, e, "/pets")

	assert.Empty(t, e.SearchInput("d").Commands, "below the minimum length")
	first := commandOf(t, e.SearchInput("do"), ScheduleSearch)
	second := commandOf(t, e.SearchInput("dog"), ScheduleSearch)
	assert.Equal(t, config.DefaultConfig().Tuning.InsertDebounce, second.Search.Delay)

	u, err := e.FireSearch(ctx, first.Search.ID)
	require.NoError(t, err)
	assert.Empty(t, u.Commands, "superseded input never fires")

	u, err = e.FireSearch(ctx, second.Search.ID)
	require.NoError(t, err)
	assert.True(t, u.Has(ReplaceAddress))
	require.NoError(t, e.Run(ctx, u))
	assert.Equal(t, "/pets?search=dog", e.Address())
	assert.Equal(t, []string{"Doggo"}, names(e.Cursor().Entities))
	assert.Equal(t, 1, e.History().Len())

	del := commandOf(t, e.SearchInput("do"), ScheduleSearch)
	assert.Equal(t, config.DefaultConfig().Tuning.DeleteDebounce, del.Search.Delay)
}

func TestEngine_SortAndView(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, newProvider(t))
	open(t, e, "/pets")

	u, err := e.SetSort(ctx, "name-desc")
	require.NoError(t, err)
	require.NoError(t, e.Run(ctx, u))
	assert.Equal(t, "/pets?sort=name-desc", e.Address())
	assert.Equal(t, "Rex", e.Cursor().Entities[0].Name)

	u, err = e.SetView(ctx, "cards")
	require.NoError(t, err)
	require.NoError(t, e.Run(ctx, u))
	assert.Equal(t, "/pets?sort=name-desc&view=cards", e.Address())
	assert.Equal(t, render.Card, e.Renderer().Name())
	assert.True(t, e.Layout().Grid)
}

func TestEngine_UnknownRendererWarns(t *testing.T) {
	e := newEngine(t, newProvider(t), func(c *config.Config) {
		c.Collections[1].Views[0].Renderer = "polaroid"
	})
	open(t, e, "/pets")

	assert.Equal(t, render.Fallback, e.Renderer().Name())
	require.NotEmpty(t, e.Warnings())
	assert.Contains(t, e.Warnings()[0], `unknown renderer "polaroid"`)
}

func TestEngine_UnknownCollection(t *testing.T) {
	e := newEngine(t, newProvider(t))
	_, err := e.Open(context.Background(), "/birds")
	require.ErrorIs(t, err, ErrUnknownCollection)
	assert.Empty(t, e.Address())
}

func TestEngine_PendingSearchSurvivesNavigation(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, newProvider(t))
	open(t, e, "/pets")

	pending := commandOf(t, e.SearchInput("dog"), ScheduleSearch)

	u, err := e.Select(ctx, bellaID)
	require.NoError(t, err)
	require.NoError(t, e.Run(ctx, u))
	assert.Equal(t, "/pets/bella", e.Address())

	u, err = e.FireSearch(ctx, pending.Search.ID)
	require.NoError(t, err)
	assert.True(t, u.Has(ReplaceAddress))
	require.NoError(t, e.Run(ctx, u))
	assert.Equal(t, "dog", e.State().Search)
	assert.Contains(t, e.Address(), "search=dog")
	assert.Equal(t, []string{"Doggo"}, names(e.Cursor().Entities))
}
