package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/kennel/internal/core/selection"
	"github.com/colonyops/kennel/internal/core/viewport"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	dataDir := t.TempDir()
	cfg, err := Load("", dataDir)
	require.NoError(t, err)

	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, RemoteNone, cfg.Remote.Kind)
	assert.Equal(t, 700*time.Millisecond, cfg.Tuning.InsertDebounce)
	assert.Equal(t, 500*time.Millisecond, cfg.Tuning.DeleteDebounce)
	assert.Equal(t, 100, cfg.Tuning.ScrollThreshold)
	assert.Equal(t, 50*time.Millisecond, cfg.Tuning.Throttle)
	assert.Equal(t, viewport.DefaultBreakpoints(), cfg.Breakpoints)
	assert.Equal(t, selection.DefaultPolicy(), cfg.Selection.Policy())

	ids := make([]string, 0, len(cfg.Collections))
	for _, c := range cfg.Collections {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"breeds", "pets", "kennels", "contacts"}, ids)

	pets, ok := cfg.Collection("pets")
	require.True(t, ok)
	assert.Equal(t, "search", pets.SearchSlug)
	assert.Equal(t, "list", pets.DefaultView)
	assert.Equal(t, []string{"pet_types", "breeds", "kennels"}, pets.DictionaryTables())

	assert.Equal(t, filepath.Join(dataDir, "kennel.db"), cfg.DatabaseFile())
	assert.Empty(t, cfg.Warnings())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), t.TempDir())
	require.NoError(t, err)
	assert.Len(t, cfg.Collections, 4)
}

func TestLoad_FileOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: postgres
  dsn: postgres://kennel@localhost/kennel
tuning:
  insert_debounce: 300ms
  page_size: 25
drawer_modes:
  xs: fullscreen
selection:
  fallback_to_first: false
collections:
  - id: cats
    views:
      - id: grid
        type: grid
        item_size: 4
        columns: {xs: 1, lg: 6}
    filters:
      - id: coat
        slug: coat
    sorts:
      - id: name-asc
        field: name
`)

	cfg, err := Load(path, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 2, cfg.Database.MaxOpenConns, "unset values keep defaults")
	assert.Equal(t, 300*time.Millisecond, cfg.Tuning.InsertDebounce)
	assert.Equal(t, 500*time.Millisecond, cfg.Tuning.DeleteDebounce)
	assert.Equal(t, 25, cfg.Tuning.PageSize)

	assert.Equal(t, selection.ModeFullscreen, cfg.DrawerModes[viewport.XS])
	assert.Equal(t, selection.ModeSide, cfg.DrawerModes[viewport.MD], "unlisted breakpoints keep defaults")
	assert.False(t, cfg.Selection.Policy().FallbackToFirst)
	assert.True(t, cfg.Selection.Policy().AutoSelect)

	require.Len(t, cfg.Collections, 1, "file collections replace the built-ins")
	cats := cfg.Collections[0]
	assert.Equal(t, "cats", cats.Title)
	assert.Equal(t, "grid", cats.DefaultView)
	v := cats.View("grid")
	assert.Equal(t, "card", v.Renderer)
	assert.Equal(t, 6, v.Columns.At(viewport.XL))
	assert.Equal(t, 1, v.Columns.At(viewport.MD))
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "collections: [")
	_, err := Load(path, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config file")
}

func TestLoad_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: mysql\n")
	_, err := Load(path, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
}

func TestCollection_View(t *testing.T) {
	col := DefaultCollections()[1]
	col.DefaultView = "cards"

	assert.Equal(t, "list", col.View("list").ID)
	assert.Equal(t, "cards", col.View("nope").ID, "unknown ids use the default view")
	assert.Equal(t, []string{"list", "cards"}, col.ViewIDs())

	empty := Collection{}
	assert.Equal(t, "list", empty.View("").ID)
}

func TestWarnings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Collections[0].Views[0].Renderer = "carousel"
	cfg.Collections[1].Filters[3].Required = true
	cfg.Collections[2].Sorts = nil

	w := cfg.Warnings()
	require.Len(t, w, 3)
	assert.Equal(t, "Views", w[0].Category)
	assert.Equal(t, "breeds/cards", w[0].Item)
	assert.Equal(t, "Filters", w[1].Category)
	assert.Equal(t, "Sorts", w[2].Category)
}
