package kennel

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/kennel/internal/core/config"
	"github.com/colonyops/kennel/internal/core/entity"
	"github.com/colonyops/kennel/internal/core/query"
	"github.com/colonyops/kennel/internal/data/db"
	"github.com/colonyops/kennel/internal/seed"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	return &cfg
}

func TestOpen_MemoryServesDemoData(t *testing.T) {
	ctx := context.Background()
	app, err := Open(ctx, testConfig(t), Options{Memory: true, DemoCount: 30}, zerolog.Nop())
	require.NoError(t, err)
	defer func() { _ = app.Close() }()

	assert.Nil(t, app.DB)
	assert.Nil(t, app.Sweeper())

	page, err := app.Provider.GetPage(ctx, entity.PageRequest{Collection: "pets", PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 30, page.TotalCount)

	pets, err := app.Records(ctx, "pets")
	require.NoError(t, err)
	assert.Len(t, pets, 30)

	id, ok, err := app.Resolver.IDFor(ctx, query.FieldConfig{ReferencedTable: "pet_types"}.Ref(), "dogs")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, seed.StableID("pet_types", "Dogs"), id)
}

func TestOpen_SQLiteEngineRoundTrip(t *testing.T) {
	ctx := context.Background()
	app, err := Open(ctx, testConfig(t), Options{}, zerolog.Nop())
	require.NoError(t, err)
	defer func() { _ = app.Close() }()

	require.NotNil(t, app.DB)
	assert.NotNil(t, app.Sweeper())

	seeder, err := app.Seeder()
	require.NoError(t, err)
	sum, err := seeder.Apply(ctx, seed.Demo(12, 7))
	require.NoError(t, err)
	assert.Equal(t, 12, sum.Records["pets"])

	engine, err := app.Engine(5)
	require.NoError(t, err)
	u, err := engine.Open(ctx, "/pets?type=dogs")
	require.NoError(t, err)
	require.NoError(t, engine.Run(ctx, u))

	assert.Equal(t, "/pets?type=dogs", engine.Address())
	dogs := seed.StableID("pet_types", "Dogs")
	for _, p := range engine.Cursor().Entities {
		assert.Equal(t, dogs, p.Field("pet_type_id"))
	}
}

func TestOpen_RecoversCorruptDatabase(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(cfg.DataDir, db.FileName)
	require.NoError(t, os.WriteFile(path, []byte("this is certainly not a sqlite file, only text padding it out"), 0o644))

	app, err := Open(context.Background(), cfg, Options{}, zerolog.Nop())
	require.NoError(t, err)
	defer func() { _ = app.Close() }()

	matches, err := filepath.Glob(path + ".corrupt.*")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestOpen_EndpointIsReadOnly(t *testing.T) {
	app, err := Open(context.Background(), testConfig(t), Options{Endpoint: "http://127.0.0.1:1"}, zerolog.Nop())
	require.NoError(t, err)

	_, err = app.Seeder()
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = app.Records(context.Background(), "pets")
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.NoError(t, app.Close())
}

func TestOpen_InvalidEndpoint(t *testing.T) {
	_, err := Open(context.Background(), testConfig(t), Options{Endpoint: "ftp://example.com"}, zerolog.Nop())
	assert.Error(t, err)
}

type fakeDictionary struct {
	rec *entity.Record
	err error
}

func (f fakeDictionary) FindDictionaryValue(context.Context, string, entity.Matcher) (*entity.Record, error) {
	return f.rec, f.err
}

func TestDictionaries(t *testing.T) {
	ctx := context.Background()
	dogs := &entity.Record{ID: "t-dog", Name: "Dogs"}
	boom := errors.New("unreachable")

	tests := []struct {
		name    string
		sources []entity.DictionarySource
		want    *entity.Record
		wantErr bool
	}{
		{name: "first hit wins", sources: []entity.DictionarySource{fakeDictionary{rec: dogs}, fakeDictionary{err: boom}}, want: dogs},
		{name: "falls through misses", sources: []entity.DictionarySource{fakeDictionary{}, nil, fakeDictionary{rec: dogs}}, want: dogs},
		{name: "error hidden by later hit", sources: []entity.DictionarySource{fakeDictionary{err: boom}, fakeDictionary{rec: dogs}}, want: dogs},
		{name: "miss everywhere", sources: []entity.DictionarySource{fakeDictionary{}}},
		{name: "error without hit", sources: []entity.DictionarySource{fakeDictionary{err: boom}, fakeDictionary{}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Dictionaries(tt.sources...).FindDictionaryValue(ctx, "pet_types", entity.Matcher{Label: "dogs"})
			if tt.wantErr {
				assert.ErrorIs(t, err, boom)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec)
		})
	}
}
