package tui

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/kennel/internal/browser"
	"github.com/colonyops/kennel/internal/core/config"
	"github.com/colonyops/kennel/internal/core/entity"
	"github.com/colonyops/kennel/internal/core/selection"
	"github.com/colonyops/kennel/internal/data/memory"
	"github.com/colonyops/kennel/pkg/tuitest"
)

// flakyProvider fails page fetches while failing is set.
type flakyProvider struct {
	*memory.Provider
	failing atomic.Bool
}

func (p *flakyProvider) GetPage(ctx context.Context, req entity.PageRequest) (entity.Page, error) {
	if p.failing.Load() {
		return entity.Page{}, errors.New("connection refused")
	}
	return p.Provider.GetPage(ctx, req)
}

func newProvider(t *testing.T) *flakyProvider {
	t.Helper()
	ctx := context.Background()
	p := memory.New()
	require.NoError(t, p.Put(ctx, "pet_types",
		entity.Record{ID: "t-dog", Name: "Dogs"},
		entity.Record{ID: "t-cat", Name: "Cats"},
	))
	require.NoError(t, p.Put(ctx, "pets",
		entity.Record{ID: "p-bella", Name: "Bella", Slug: "bella", Fields: map[string]any{"pet_type_id": "t-dog", "color": "brown"}},
		entity.Record{ID: "p-doggo", Name: "Doggo", Slug: "doggo", Fields: map[string]any{"pet_type_id": "t-dog", "color": "black"}},
		entity.Record{ID: "p-milo", Name: "Milo", Slug: "milo", Fields: map[string]any{"pet_type_id": "t-cat", "color": "white"}},
		entity.Record{ID: "p-rex", Name: "Rex", Slug: "rex", Fields: map[string]any{"pet_type_id": "t-dog", "color": "grey"}},
	))
	return &flakyProvider{Provider: p}
}

type harness struct {
	t      *testing.T
	m      Model
	engine *browser.Engine
}

// newHarness starts a model of width x height cells on addr and drains the
// initial load.
func newHarness(t *testing.T, p entity.Provider, addr string, width, height int) *harness {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Tuning.Throttle = 0
	cfg.Tuning.InsertDebounce = time.Millisecond
	cfg.Tuning.DeleteDebounce = time.Millisecond

	engine, err := browser.New(browser.Deps{Provider: p, Config: &cfg, Log: zerolog.Nop(), Threshold: Threshold(&cfg)})
	require.NoError(t, err)

	m, err := New(context.Background(), engine, &cfg, Options{Address: addr, Width: width, Height: height, Log: zerolog.Nop()})
	require.NoError(t, err)

	h := &harness{t: t, m: m, engine: engine}
	h.drain(m.Init())
	return h
}

func (h *harness) update(msg tea.Msg) tea.Cmd {
	next, cmd := h.m.Update(msg)
	h.m = next.(Model)
	return cmd
}

func (h *harness) drain(cmd tea.Cmd) {
	tuitest.Drain(cmd, h.update, 200)
}

func (h *harness) send(msgs ...tea.Msg) {
	for _, msg := range msgs {
		h.drain(h.update(msg))
	}
}

func (h *harness) view() string { return tuitest.StripANSI(h.m.render()) }

func TestModel_LoadsAndRenders(t *testing.T) {
	h := newHarness(t, newProvider(t), "/pets", 50, 12)

	assert.Equal(t, "/pets", h.m.Address())
	view := h.view()
	assert.Contains(t, view, "Pets")
	assert.Contains(t, view, "4/4")
	for _, name := range []string{"Bella", "Doggo", "Milo", "Rex"} {
		assert.Contains(t, view, name)
	}
}

func TestModel_DefaultsToFirstCollection(t *testing.T) {
	h := newHarness(t, newProvider(t), "", 50, 12)
	assert.Equal(t, "/breeds", h.m.Address())
	assert.Contains(t, h.view(), "no results")
}

func TestModel_OpenAndCloseOverlay(t *testing.T) {
	h := newHarness(t, newProvider(t), "/pets", 50, 12)

	h.send(tuitest.KeyDown(), tuitest.KeyEnter())
	assert.Equal(t, "/pets/doggo", h.m.Address())
	assert.Equal(t, selection.Display{Kind: selection.DrawerOpen, Mode: selection.ModeOverlay}, h.engine.Display())

	view := h.view()
	assert.Contains(t, view, "color: black")
	assert.NotContains(t, view, "Milo", "overlay replaces the list")

	h.send(tuitest.KeyEsc())
	assert.Equal(t, "/pets", h.m.Address())
	assert.Contains(t, h.view(), "Milo")

	h.send(tuitest.KeyPress('['))
	assert.Equal(t, "/pets/doggo", h.m.Address())
	h.send(tuitest.KeyPress(']'))
	assert.Equal(t, "/pets", h.m.Address())
}

func TestModel_WideTerminalAutoSelects(t *testing.T) {
	h := newHarness(t, newProvider(t), "/pets", 100, 12)

	assert.Equal(t, "/pets/bella", h.m.Address())
	view := h.view()
	assert.Contains(t, view, "color: brown")
	assert.Contains(t, view, "Rex", "side drawer keeps the list visible")

	h.send(tuitest.WindowSize(50, 12))
	assert.Equal(t, selection.ModeOverlay, h.engine.Display().Mode)
	assert.Equal(t, "/pets/bella", h.m.Address(), "selection survives width changes")
}

func TestModel_DebouncedSearch(t *testing.T) {
	h := newHarness(t, newProvider(t), "/pets", 50, 12)

	h.send(tuitest.KeyPress('/'))
	var cmds []tea.Cmd
	for _, msg := range tuitest.KeyPresses("dog") {
		cmds = append(cmds, h.update(msg))
	}
	assert.Contains(t, h.view(), "/ dog")
	h.drain(tea.Batch(cmds...))

	assert.Equal(t, "/pets?search=dog", h.m.Address())
	assert.Equal(t, 1, h.engine.History().Len(), "searches replace the address")
	view := h.view()
	assert.Contains(t, view, "Doggo")
	assert.NotContains(t, view, "Milo")

	h.send(tuitest.KeyEnter())
	assert.Equal(t, stateNormal, h.m.state)
}

func TestModel_SortAndViewKeys(t *testing.T) {
	h := newHarness(t, newProvider(t), "/pets", 50, 20)

	h.send(tuitest.KeyPress('s'))
	assert.Equal(t, "/pets?sort=name-desc", h.m.Address())
	assert.Equal(t, "Rex", h.engine.Cursor().Entities[0].Name)

	h.send(tuitest.KeyPress('v'))
	assert.Equal(t, "/pets?sort=name-desc&view=cards", h.m.Address())
	assert.True(t, h.engine.Layout().Grid)
	assert.Contains(t, h.view(), "Rex")

	h.send(tuitest.KeyPress('x'))
	assert.Equal(t, "/pets", h.m.Address())
}

func TestModel_SwitchCollection(t *testing.T) {
	h := newHarness(t, newProvider(t), "/pets", 50, 12)
	h.send(tuitest.Key(tea.KeyTab))
	assert.Equal(t, "/kennels", h.m.Address())
}

func TestModel_EditAddress(t *testing.T) {
	h := newHarness(t, newProvider(t), "/pets", 50, 12)

	h.send(tuitest.KeyPress('o'))
	assert.Equal(t, stateEditingAddress, h.m.state)
	h.send(tuitest.KeyPresses("/rex")...)
	h.send(tuitest.KeyEnter())
	assert.Equal(t, "/pets/rex", h.m.Address())

	h.send(tuitest.KeyPress('o'))
	h.m.address.SetValue("/nowhere")
	h.send(tuitest.KeyEnter())
	assert.Equal(t, "/pets/rex", h.m.Address())
	assert.Contains(t, h.view(), "unknown collection")
}

func TestModel_FetchErrorAndRetry(t *testing.T) {
	p := newProvider(t)
	p.failing.Store(true)
	h := newHarness(t, p, "/pets", 50, 12)

	require.Error(t, h.engine.Cursor().Err)
	assert.Contains(t, h.view(), "press r to retry")

	p.failing.Store(false)
	h.send(tuitest.KeyPress('r'))
	assert.NoError(t, h.engine.Cursor().Err)
	assert.Contains(t, h.view(), "Bella")
}

func TestModel_CursorScrollsWindow(t *testing.T) {
	ctx := context.Background()
	p := memory.New()
	recs := make([]entity.Record, 0, 120)
	for i := range 120 {
		recs = append(recs, entity.Record{ID: string(rune('a'+i/26)) + string(rune('a'+i%26)), Name: "pet " + string(rune('a'+i/26)) + string(rune('a'+i%26))})
	}
	require.NoError(t, p.Put(ctx, "pets", recs...))

	h := newHarness(t, p, "/pets", 50, 13)
	assert.Len(t, h.engine.Cursor().Entities, 50)

	for range 60 {
		h.send(tuitest.KeyDown())
	}
	assert.Equal(t, 60, h.m.cursor)
	assert.Greater(t, h.engine.Measurement().ScrollOffset, 0)
	assert.GreaterOrEqual(t, len(h.engine.Cursor().Entities), 100, "scrolling near the end loads the next page")
	assert.Contains(t, h.view(), "pet ci")
}

func TestModel_ViewOptionsAndWheel(t *testing.T) {
	ctx := context.Background()
	p := memory.New()
	recs := make([]entity.Record, 0, 40)
	for i := range 40 {
		recs = append(recs, entity.Record{ID: fmt.Sprintf("p-%02d", i), Name: fmt.Sprintf("pet %02d", i)})
	}
	require.NoError(t, p.Put(ctx, "pets", recs...))
	h := newHarness(t, p, "/pets", 50, 13)

	v := h.m.View()
	assert.True(t, v.AltScreen)
	assert.Equal(t, tea.MouseModeCellMotion, v.MouseMode)

	h.send(tea.MouseWheelMsg{Button: tea.MouseWheelDown})
	assert.Equal(t, 3, h.engine.Measurement().ScrollOffset)
	h.send(tea.MouseWheelMsg{Button: tea.MouseWheelUp})
	assert.Equal(t, 0, h.engine.Measurement().ScrollOffset)
}

func TestModel_HelpAndQuit(t *testing.T) {
	h := newHarness(t, newProvider(t), "/pets", 50, 30)

	h.send(tuitest.KeyPress('?'))
	assert.Contains(t, h.view(), "Keys")
	h.send(tuitest.KeyPress('j'))
	assert.Equal(t, stateNormal, h.m.state)

	cmd := h.update(tuitest.KeyPress('q'))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestThreshold(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Equal(t, 5, Threshold(&cfg))
	cfg.Tuning.ScrollThreshold = 1
	assert.Equal(t, 1, Threshold(&cfg))
}
