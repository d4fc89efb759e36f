// Package config handles configuration loading and validation for kennel.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/colonyops/kennel/internal/core/query"
	"github.com/colonyops/kennel/internal/core/selection"
	"github.com/colonyops/kennel/internal/core/viewport"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Remote dictionary sources.
const (
	RemoteNone = "none"
	RemoteHTTP = "http"
	RemoteS3   = "s3"
)

// Config holds the application configuration.
type Config struct {
	Database    DatabaseConfig       `yaml:"database"`
	Remote      RemoteConfig         `yaml:"remote"`
	Server      ServerConfig         `yaml:"server"`
	Tuning      Tuning               `yaml:"tuning"`
	Breakpoints viewport.Breakpoints `yaml:"breakpoints"`
	DrawerModes selection.Modes      `yaml:"drawer_modes"`
	Selection   SelectionConfig      `yaml:"selection"`
	TUI         TUIConfig            `yaml:"tui"`
	Collections []Collection         `yaml:"collections"`
	DataDir     string               `yaml:"-"` // set by caller, not from config file
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"` // postgres only; sqlite lives in the data dir
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	BusyTimeout  int    `yaml:"busy_timeout"` // milliseconds, sqlite only
}

// RemoteConfig selects the fallback source for dictionary values missing
// from the local store.
type RemoteConfig struct {
	Kind    string        `yaml:"kind"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
	Bucket  BucketConfig  `yaml:"bucket"`
}

// BucketConfig locates published dictionaries in an S3 compatible bucket.
type BucketConfig struct {
	Name      string `yaml:"name"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
	// Static credentials; empty uses the default AWS credential chain.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// ServerConfig configures `kennel serve`.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Tuning holds the engine timing and size constants.
type Tuning struct {
	InsertDebounce  time.Duration `yaml:"insert_debounce"`
	DeleteDebounce  time.Duration `yaml:"delete_debounce"`
	MinSearchLength int           `yaml:"min_search_length"`
	ScrollThreshold int           `yaml:"scroll_threshold"`
	Throttle        time.Duration `yaml:"throttle"`
	PageSize        int           `yaml:"page_size"`
	MaxLabelLength  int           `yaml:"max_label_length"`
}

// SelectionConfig toggles selection policies. Unset values default to true.
type SelectionConfig struct {
	FallbackToFirst *bool `yaml:"fallback_to_first"`
	AutoSelect      *bool `yaml:"auto_select"`
}

// Policy converts the config into selection rules.
func (s SelectionConfig) Policy() selection.Policy {
	return selection.Policy{
		FallbackToFirst: s.FallbackToFirst == nil || *s.FallbackToFirst,
		AutoSelect:      s.AutoSelect == nil || *s.AutoSelect,
	}
}

// TUIConfig maps terminal cells onto the pixel units used by breakpoints and
// scroll thresholds.
type TUIConfig struct {
	CellWidth  int    `yaml:"cell_width"`
	CellHeight int    `yaml:"cell_height"`
	Theme      string `yaml:"theme"`
}

// ViewConfig is a layout of a collection plus the renderer drawing its items.
type ViewConfig struct {
	viewport.View `yaml:",inline"`
	Renderer      string `yaml:"renderer"`
}

// Collection configures one browsable entity collection.
type Collection struct {
	ID          string              `yaml:"id"`
	Title       string              `yaml:"title"`
	SearchSlug  string              `yaml:"search_slug"`
	DefaultView string              `yaml:"default_view"`
	Views       []ViewConfig        `yaml:"views"`
	Filters     []query.FieldConfig `yaml:"filters"`
	Sorts       []query.SortOption  `yaml:"sorts"`
	// Fields lists the record fields shown by renderers.
	Fields []string `yaml:"fields"`
}

// View returns the view with the given id, falling back to the default view.
func (c Collection) View(id string) ViewConfig {
	for _, v := range c.Views {
		if v.ID == id {
			return v
		}
	}
	for _, v := range c.Views {
		if v.ID == c.DefaultView {
			return v
		}
	}
	if len(c.Views) > 0 {
		return c.Views[0]
	}
	return ViewConfig{View: viewport.View{ID: "list", Type: viewport.TypeList, ItemSize: 1}, Renderer: "row"}
}

// ViewIDs returns the view ids in declaration order.
func (c Collection) ViewIDs() []string {
	ids := make([]string, 0, len(c.Views))
	for _, v := range c.Views {
		ids = append(ids, v.ID)
	}
	return ids
}

// DictionaryTables returns the tables referenced by the collection filters.
func (c Collection) DictionaryTables() []string {
	var tables []string
	seen := map[string]bool{}
	for _, f := range c.Filters {
		if f.ReferencedTable != "" && !seen[f.ReferencedTable] {
			seen[f.ReferencedTable] = true
			tables = append(tables, f.ReferencedTable)
		}
	}
	return tables
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Database: DatabaseConfig{
			Driver:       DriverSQLite,
			MaxOpenConns: 2,
			MaxIdleConns: 2,
			BusyTimeout:  5000,
		},
		Remote: RemoteConfig{
			Kind:    RemoteNone,
			Timeout: 10 * time.Second,
		},
		Server: ServerConfig{Addr: "127.0.0.1:7420"},
		Tuning: Tuning{
			InsertDebounce:  query.DefaultInsertDelay,
			DeleteDebounce:  query.DefaultDeleteDelay,
			MinSearchLength: query.DefaultMinSearchLen,
			ScrollThreshold: 100,
			Throttle:        viewport.DefaultThrottle,
			PageSize:        50,
			MaxLabelLength:  64,
		},
		Breakpoints: viewport.DefaultBreakpoints(),
		DrawerModes: selection.DefaultModes(),
		TUI: TUIConfig{
			CellWidth:  10,
			CellHeight: 20,
			Theme:      "tokyo-night",
		},
		Collections: DefaultCollections(),
	}
}

// Load reads configuration from the given path and sets the data directory.
// If configPath is empty or doesn't exist, returns defaults with the provided dataDir.
func Load(configPath, dataDir string) (*Config, error) {
	cfg, err := Read(configPath, dataDir)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Read is Load without validation.
func Read(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			// collections from the file replace the built-ins wholesale
			cfg.Collections = nil
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}

			// Re-set dataDir since Unmarshal may have cleared it
			cfg.DataDir = dataDir
		}
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	d := DefaultConfig()

	if c.Database.Driver == "" {
		c.Database.Driver = d.Database.Driver
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = d.Database.MaxOpenConns
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = d.Database.MaxIdleConns
	}
	if c.Database.BusyTimeout == 0 {
		c.Database.BusyTimeout = d.Database.BusyTimeout
	}
	if c.Remote.Kind == "" {
		c.Remote.Kind = d.Remote.Kind
	}
	if c.Remote.Timeout == 0 {
		c.Remote.Timeout = d.Remote.Timeout
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}

	t := &c.Tuning
	if t.InsertDebounce == 0 {
		t.InsertDebounce = d.Tuning.InsertDebounce
	}
	if t.DeleteDebounce == 0 {
		t.DeleteDebounce = d.Tuning.DeleteDebounce
	}
	if t.MinSearchLength == 0 {
		t.MinSearchLength = d.Tuning.MinSearchLength
	}
	if t.ScrollThreshold == 0 {
		t.ScrollThreshold = d.Tuning.ScrollThreshold
	}
	if t.Throttle == 0 {
		t.Throttle = d.Tuning.Throttle
	}
	if t.PageSize == 0 {
		t.PageSize = d.Tuning.PageSize
	}
	if t.MaxLabelLength == 0 {
		t.MaxLabelLength = d.Tuning.MaxLabelLength
	}

	if c.Breakpoints == (viewport.Breakpoints{}) {
		c.Breakpoints = d.Breakpoints
	}
	if len(c.DrawerModes) == 0 {
		c.DrawerModes = d.DrawerModes
	}
	if c.TUI.CellWidth == 0 {
		c.TUI.CellWidth = d.TUI.CellWidth
	}
	if c.TUI.CellHeight == 0 {
		c.TUI.CellHeight = d.TUI.CellHeight
	}
	if c.TUI.Theme == "" {
		c.TUI.Theme = d.TUI.Theme
	}
	if len(c.Collections) == 0 {
		c.Collections = d.Collections
	}

	for i := range c.Collections {
		col := &c.Collections[i]
		if col.SearchSlug == "" {
			col.SearchSlug = query.DefaultSearchSlug
		}
		if col.Title == "" {
			col.Title = col.ID
		}
		if col.DefaultView == "" && len(col.Views) > 0 {
			col.DefaultView = col.Views[0].ID
		}
		for j := range col.Views {
			v := &col.Views[j]
			if v.Type == "" {
				v.Type = viewport.TypeList
			}
			if v.Renderer == "" {
				v.Renderer = "row"
				if viewport.IsGridType(v.Type) {
					v.Renderer = "card"
				}
			}
		}
	}
}

// Synchronizer builds the address synchronizer of the collection.
func (c Collection) Synchronizer(resolver query.LabelResolver, log zerolog.Logger) *query.Synchronizer {
	return query.NewSynchronizer(c.ID, c.Filters, c.Sorts, resolver, log, query.Options{
		SearchSlug:  c.SearchSlug,
		Views:       c.ViewIDs(),
		DefaultView: c.DefaultView,
	})
}

// Collection returns the collection with the given id.
func (c *Config) Collection(id string) (Collection, bool) {
	for _, col := range c.Collections {
		if col.ID == id {
			return col, true
		}
	}
	return Collection{}, false
}

// DatabaseFile returns the path of the sqlite database.
func (c *Config) DatabaseFile() string {
	return filepath.Join(c.DataDir, "kennel.db")
}

// LogFile returns the default log file path.
func (c *Config) LogFile() string {
	return filepath.Join(c.DataDir, "kennel.log")
}
