// Package kennel assembles the provider, label resolver and caches that the
// commands and the terminal browser share.
package kennel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyops/kennel/internal/browser"
	"github.com/colonyops/kennel/internal/core/config"
	"github.com/colonyops/kennel/internal/core/entity"
	"github.com/colonyops/kennel/internal/core/kv"
	"github.com/colonyops/kennel/internal/core/labels"
	"github.com/colonyops/kennel/internal/core/logging"
	"github.com/colonyops/kennel/internal/core/render"
	"github.com/colonyops/kennel/internal/data/bucket"
	"github.com/colonyops/kennel/internal/data/db"
	"github.com/colonyops/kennel/internal/data/memory"
	"github.com/colonyops/kennel/internal/data/remote"
	"github.com/colonyops/kennel/internal/data/stores"
	"github.com/colonyops/kennel/internal/data/sweep"
	"github.com/colonyops/kennel/internal/seed"
)

// Options selects where entities come from.
type Options struct {
	// Memory serves generated demo data from memory.
	Memory bool
	// DemoCount is the number of demo pets in memory mode.
	DemoCount int
	// Endpoint reads entities from a running kennel server.
	Endpoint string
}

// App is the central entry point for kennel operations. Commands and the TUI
// consume App instead of cherry-picking raw dependencies.
type App struct {
	Config    *config.Config
	Provider  entity.Provider
	Resolver  *labels.Resolver
	KV        kv.KV
	Renderers *render.Registry
	Log       zerolog.Logger

	// DB is nil unless entities live in the local database.
	DB *db.DB

	sink        seed.Sink
	sweeper     sweep.Sweeper
	bucket      *bucket.Source
	stopSweeper context.CancelFunc
}

// Open builds an App. The caller must Close it.
func Open(ctx context.Context, cfg *config.Config, opts Options, log zerolog.Logger) (*App, error) {
	app := &App{Config: cfg, Renderers: render.NewRegistry(), Log: log}

	var cache labels.Cache
	switch {
	case opts.Endpoint != "":
		client, err := remote.New(opts.Endpoint, cfg.Remote.Timeout)
		if err != nil {
			return nil, err
		}
		app.Provider = client
		app.KV = kv.NewMemory()
		cache = labels.NewMemoryCache()

	case opts.Memory:
		mem := memory.New()
		app.Provider = mem
		app.sink = mem
		app.KV = kv.NewMemory()
		cache = labels.NewMemoryCache()

	default:
		database, err := app.openDB()
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		entities := stores.NewEntityStore(database)
		kvStore := stores.NewKVStore(database)
		app.DB = database
		app.Provider = entities
		app.sink = entities
		app.KV = kvStore
		app.sweeper = kvStore
		cache = stores.NewLabelStore(database)
	}

	fallback, err := app.fallback(ctx)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Resolver = labels.NewResolver(cache, Dictionaries(app.Provider, fallback), app.component("labels"),
		labels.WithMaxLength(cfg.Tuning.MaxLabelLength))

	if opts.Memory {
		count := opts.DemoCount
		if count <= 0 {
			count = seed.DefaultPetCount
		}
		seeder, err := app.Seeder()
		if err == nil {
			_, err = seeder.Apply(ctx, seed.Demo(count, 1))
		}
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("generate demo data: %w", err)
		}
	}
	return app, nil
}

// openDB opens the configured database. A corrupt sqlite file is moved aside
// and replaced by an empty one; seeding or a remote fallback refills it.
func (a *App) openDB() (*db.DB, error) {
	opts := db.OpenOptions{
		Driver:       db.Dialect(a.Config.Database.Driver),
		DSN:          a.Config.Database.DSN,
		MaxOpenConns: a.Config.Database.MaxOpenConns,
		MaxIdleConns: a.Config.Database.MaxIdleConns,
		BusyTimeout:  a.Config.Database.BusyTimeout,
		Log:          a.component("db"),
	}
	database, err := db.Open(a.Config.DataDir, opts)
	if err == nil || opts.Driver == db.Postgres || !stores.IsCorruptionError(err) {
		return database, err
	}

	a.Log.Warn().Err(err).Str("data_dir", a.Config.DataDir).Msg("database is corrupt, starting from an empty one")
	if err := stores.RecoverFromCorruption(a.Config.DataDir); err != nil {
		return nil, err
	}
	return db.Open(a.Config.DataDir, opts)
}

// fallback returns the configured source for dictionary values missing from
// the provider, nil when none is configured.
func (a *App) fallback(ctx context.Context) (entity.DictionarySource, error) {
	switch a.Config.Remote.Kind {
	case config.RemoteHTTP:
		client, err := remote.New(a.Config.Remote.URL, a.Config.Remote.Timeout)
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.RemoteS3:
		src, err := a.Bucket(ctx)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	return nil, nil
}

// Bucket returns the dictionary bucket, connecting on first use.
func (a *App) Bucket(ctx context.Context) (*bucket.Source, error) {
	if a.bucket != nil {
		return a.bucket, nil
	}
	b := a.Config.Remote.Bucket
	src, err := bucket.New(ctx, bucket.Config{
		Bucket:          b.Name,
		Prefix:          b.Prefix,
		Region:          b.Region,
		Endpoint:        b.Endpoint,
		PathStyle:       b.PathStyle,
		AccessKeyID:     b.AccessKeyID,
		SecretAccessKey: b.SecretAccessKey,
	}, a.component("bucket"))
	if err != nil {
		return nil, fmt.Errorf("open dictionary bucket: %w", err)
	}
	a.bucket = src
	return src, nil
}

// ErrReadOnly is returned for local operations on an app that reads from a
// server.
var ErrReadOnly = errors.New("entities are served by a remote kennel server")

// Seeder returns a seeder writing to the local store.
func (a *App) Seeder() (*seed.Seeder, error) {
	if a.sink == nil {
		return nil, ErrReadOnly
	}
	return seed.New(a.sink, a.Resolver, a.Config.Collections, a.component("seed")), nil
}

// Lister lists every stored record of a collection.
type Lister interface {
	List(ctx context.Context, collection string) ([]entity.Record, error)
}

// Records returns every local record of collection.
func (a *App) Records(ctx context.Context, collection string) ([]entity.Record, error) {
	l, ok := a.Provider.(Lister)
	if !ok {
		return nil, ErrReadOnly
	}
	return l.List(ctx, collection)
}

func (a *App) component(name string) zerolog.Logger {
	return logging.Component(a.Log, name)
}

// Sweeper returns the store whose expired entries should be swept, nil when
// the KV is in memory.
func (a *App) Sweeper() sweep.Sweeper { return a.sweeper }

// StartSweeper sweeps expired KV entries in the background until Close.
func (a *App) StartSweeper(interval time.Duration) {
	if a.sweeper == nil || a.stopSweeper != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.stopSweeper = cancel
	go sweep.Start(ctx, a.sweeper, interval, a.component("sweep"))
}

// Engine creates a browsing engine over the app's provider. threshold is in
// the host's measurement unit; zero uses the configured value.
func (a *App) Engine(threshold int) (*browser.Engine, error) {
	return browser.New(browser.Deps{
		Provider:  a.Provider,
		Config:    a.Config,
		Resolver:  a.Resolver,
		KV:        a.KV,
		Renderers: a.Renderers,
		Log:       a.component("browser"),
		Threshold: threshold,
	})
}

// Close stops the sweeper and releases the database connection.
func (a *App) Close() error {
	if a.stopSweeper != nil {
		a.stopSweeper()
		a.stopSweeper = nil
	}
	if a.DB == nil {
		return nil
	}
	err := a.DB.Close()
	a.DB = nil
	return err
}

// dictionaries asks each source in order until one finds the value.
type dictionaries []entity.DictionarySource

// Dictionaries chains sources, skipping nil ones.
func Dictionaries(sources ...entity.DictionarySource) entity.DictionarySource {
	var out dictionaries
	for _, s := range sources {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// FindDictionaryValue returns the first match. Errors are returned only when
// no source found the value.
func (d dictionaries) FindDictionaryValue(ctx context.Context, table string, m entity.Matcher) (*entity.Record, error) {
	var errs []error
	for _, s := range d {
		rec, err := s.FindDictionaryValue(ctx, table, m)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if rec != nil {
			return rec, nil
		}
	}
	return nil, errors.Join(errs...)
}
