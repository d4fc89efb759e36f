package config

import (
	"fmt"
	"os"
	"slices"

	"github.com/hay-kot/criterio"

	"github.com/colonyops/kennel/internal/core/entity"
	"github.com/colonyops/kennel/internal/core/query"
	"github.com/colonyops/kennel/internal/core/selection"
	"github.com/colonyops/kennel/internal/core/validate"
	"github.com/colonyops/kennel/internal/core/viewport"
)

// knownRenderers are the renderer names shipped with kennel.
var knownRenderers = []string{"card", "row", "compact"}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("data_dir", c.DataDir, validate.Required),
		c.validateDatabase(),
		c.validateRemote(),
		c.validateTuning(),
		c.validateLayout(),
		c.validateCollections(),
	)
}

// ValidateDeep runs Validate plus checks that touch the filesystem.
func (c *Config) ValidateDeep(configPath string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	return criterio.ValidateStruct(
		validateConfigFile(configPath),
		criterio.Run("data_dir", c.DataDir, isDirectoryOrNotExist),
	)
}

func (c *Config) validateDatabase() error {
	var errs criterio.FieldErrorsBuilder
	if err := validate.OneOf(c.Database.Driver, DriverSQLite, DriverPostgres); err != nil {
		errs = errs.Append("database.driver", err)
	}
	if c.Database.Driver == DriverPostgres && c.Database.DSN == "" {
		errs = errs.Append("database.dsn", fmt.Errorf("is required for the postgres driver"))
	}
	if c.Database.MaxOpenConns < 1 {
		errs = errs.Append("database.max_open_conns", fmt.Errorf("must be at least 1"))
	}
	if c.Database.MaxIdleConns < 0 || c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		errs = errs.Append("database.max_idle_conns", fmt.Errorf("must be between 0 and max_open_conns"))
	}
	if c.Database.BusyTimeout < 0 {
		errs = errs.Append("database.busy_timeout", fmt.Errorf("must not be negative"))
	}
	return errs.ToError()
}

func (c *Config) validateRemote() error {
	var errs criterio.FieldErrorsBuilder
	if err := validate.OneOf(c.Remote.Kind, RemoteNone, RemoteHTTP, RemoteS3); err != nil {
		errs = errs.Append("remote.kind", err)
	}
	switch c.Remote.Kind {
	case RemoteHTTP:
		if c.Remote.URL == "" {
			errs = errs.Append("remote.url", fmt.Errorf("is required for the http remote"))
		}
	case RemoteS3:
		if c.Remote.Bucket.Name == "" {
			errs = errs.Append("remote.bucket.name", fmt.Errorf("is required for the s3 remote"))
		}
		if (c.Remote.Bucket.AccessKeyID == "") != (c.Remote.Bucket.SecretAccessKey == "") {
			errs = errs.Append("remote.bucket", fmt.Errorf("access_key_id and secret_access_key must be set together"))
		}
	}
	if c.Remote.Timeout < 0 {
		errs = errs.Append("remote.timeout", fmt.Errorf("must not be negative"))
	}
	return errs.ToError()
}

func (c *Config) validateTuning() error {
	t := c.Tuning
	var errs criterio.FieldErrorsBuilder
	positive := []struct {
		field string
		ok    bool
	}{
		{"tuning.insert_debounce", t.InsertDebounce > 0},
		{"tuning.delete_debounce", t.DeleteDebounce > 0},
		{"tuning.min_search_length", t.MinSearchLength > 0},
		{"tuning.scroll_threshold", t.ScrollThreshold > 0},
		{"tuning.throttle", t.Throttle > 0},
		{"tuning.page_size", t.PageSize > 0},
		{"tuning.max_label_length", t.MaxLabelLength > 0},
	}
	for _, p := range positive {
		if !p.ok {
			errs = errs.Append(p.field, fmt.Errorf("must be positive"))
		}
	}
	return errs.ToError()
}

func (c *Config) validateLayout() error {
	var errs criterio.FieldErrorsBuilder
	if err := c.Breakpoints.Validate(); err != nil {
		errs = errs.Append("breakpoints", err)
	}
	for bp, mode := range c.DrawerModes {
		field := fmt.Sprintf("drawer_modes.%s", bp)
		if _, err := viewport.ParseBreakpoint(string(bp)); err != nil {
			errs = errs.Append(field, err)
		}
		if _, err := selection.ParseMode(string(mode)); err != nil {
			errs = errs.Append(field, err)
		}
	}
	if c.TUI.CellWidth < 1 {
		errs = errs.Append("tui.cell_width", fmt.Errorf("must be at least 1"))
	}
	if c.TUI.CellHeight < 1 {
		errs = errs.Append("tui.cell_height", fmt.Errorf("must be at least 1"))
	}
	return errs.ToError()
}

func (c *Config) validateCollections() error {
	if len(c.Collections) == 0 {
		return criterio.NewFieldErrors("collections", fmt.Errorf("at least one collection is required"))
	}

	var errs criterio.FieldErrorsBuilder
	seen := map[string]bool{}
	for i, col := range c.Collections {
		field := fmt.Sprintf("collections[%d]", i)
		if err := validate.Identifier(col.ID); err != nil {
			errs = errs.Append(field+".id", err)
		} else if seen[col.ID] {
			errs = errs.Append(field+".id", fmt.Errorf("duplicate collection %q", col.ID))
		}
		seen[col.ID] = true

		errs = appendAll(errs, col.validateViews(field))
		errs = appendAll(errs, col.validateFilters(field))
		errs = appendAll(errs, col.validateSorts(field))
	}
	return errs.ToError()
}

func (col Collection) validateViews(field string) []fieldErr {
	var out []fieldErr
	if len(col.Views) == 0 {
		return []fieldErr{{field + ".views", fmt.Errorf("at least one view is required")}}
	}
	ids := map[string]bool{}
	for j, v := range col.Views {
		vf := fmt.Sprintf("%s.views[%d]", field, j)
		if err := validate.Identifier(v.ID); err != nil {
			out = append(out, fieldErr{vf + ".id", err})
		} else if ids[v.ID] {
			out = append(out, fieldErr{vf + ".id", fmt.Errorf("duplicate view %q", v.ID)})
		}
		ids[v.ID] = true

		if err := validate.OneOf(v.Type, viewport.TypeList, viewport.TypeGrid, viewport.TypeGallery, viewport.TypeCards, viewport.TypeTable); err != nil {
			out = append(out, fieldErr{vf + ".type", err})
		}
		if v.ItemSize < 0 {
			out = append(out, fieldErr{vf + ".item_size", fmt.Errorf("must not be negative")})
		}
		if v.Overscan < 0 {
			out = append(out, fieldErr{vf + ".overscan", fmt.Errorf("must not be negative")})
		}
	}
	if col.DefaultView != "" && !ids[col.DefaultView] {
		out = append(out, fieldErr{field + ".default_view", fmt.Errorf("unknown view %q", col.DefaultView)})
	}
	return out
}

func (col Collection) validateFilters(field string) []fieldErr {
	var out []fieldErr
	ids := map[string]bool{}
	for _, f := range col.Filters {
		ids[f.ID] = true
	}

	seenIDs := map[string]bool{}
	for j, f := range col.Filters {
		ff := fmt.Sprintf("%s.filters[%d]", field, j)
		if err := validate.Identifier(f.ID); err != nil {
			out = append(out, fieldErr{ff + ".id", err})
		} else if seenIDs[f.ID] {
			out = append(out, fieldErr{ff + ".id", fmt.Errorf("duplicate filter %q", f.ID)})
		}
		seenIDs[f.ID] = true

		if col.SearchSlug != "" && (f.Slug == col.SearchSlug || f.ID == col.SearchSlug) {
			out = append(out, fieldErr{ff + ".slug", fmt.Errorf("%q is the search parameter", col.SearchSlug)})
		}
		if f.Slug == query.ParamView || f.Slug == query.ParamSort || f.ID == query.ParamView || f.ID == query.ParamSort {
			out = append(out, fieldErr{ff + ".slug", fmt.Errorf("view and sort are reserved parameters")})
		}
		for _, dep := range f.DependsOn {
			if !ids[dep] || dep == f.ID {
				out = append(out, fieldErr{ff + ".depends_on", fmt.Errorf("unknown filter %q", dep)})
			}
		}
		if f.DisabledUntil != "" && (!ids[f.DisabledUntil] || f.DisabledUntil == f.ID) {
			out = append(out, fieldErr{ff + ".disabled_until", fmt.Errorf("unknown filter %q", f.DisabledUntil)})
		}
		if f.ReferencedTable == "" && (f.ReferencedIDField != "" || f.ReferencedNameField != "") {
			out = append(out, fieldErr{ff + ".referenced_table", fmt.Errorf("is required when referenced fields are set")})
		}
	}

	collisions := query.SlugCollisions(col.Filters)
	for j, f := range col.Filters {
		if slices.Contains(collisions, f.Key()) {
			out = append(out, fieldErr{fmt.Sprintf("%s.filters[%d].slug", field, j), fmt.Errorf("parameter %q is claimed by more than one filter", f.Key())})
		}
	}
	return out
}

func (col Collection) validateSorts(field string) []fieldErr {
	var out []fieldErr
	ids := map[string]bool{}
	defaults := 0
	for j, s := range col.Sorts {
		sf := fmt.Sprintf("%s.sorts[%d]", field, j)
		if err := validate.Identifier(s.ID); err != nil {
			out = append(out, fieldErr{sf + ".id", err})
		} else if ids[s.ID] {
			out = append(out, fieldErr{sf + ".id", fmt.Errorf("duplicate sort %q", s.ID)})
		}
		ids[s.ID] = true
		if s.Field == "" {
			out = append(out, fieldErr{sf + ".field", fmt.Errorf("is required")})
		}
		if s.Direction != "" && s.Direction != entity.Asc && s.Direction != entity.Desc {
			out = append(out, fieldErr{sf + ".direction", fmt.Errorf("must be asc or desc")})
		}
		if s.Default {
			defaults++
		}
	}
	if defaults > 1 {
		out = append(out, fieldErr{field + ".sorts", fmt.Errorf("only one sort may be the default")})
	}
	return out
}

// Warnings returns non-fatal configuration issues.
func (c *Config) Warnings() []ValidationWarning {
	var warnings []ValidationWarning
	for _, col := range c.Collections {
		for _, v := range col.Views {
			if !slices.Contains(knownRenderers, v.Renderer) {
				warnings = append(warnings, ValidationWarning{
					Category: "Views",
					Item:     col.ID + "/" + v.ID,
					Message:  fmt.Sprintf("unknown renderer %q, the fallback renderer is used", v.Renderer),
				})
			}
		}
		for _, f := range col.Filters {
			if f.Required && f.Default == "" {
				warnings = append(warnings, ValidationWarning{
					Category: "Filters",
					Item:     col.ID + "/" + f.ID,
					Message:  "required filter has no default",
				})
			}
		}
		if len(col.Sorts) == 0 {
			warnings = append(warnings, ValidationWarning{
				Category: "Sorts",
				Item:     col.ID,
				Message:  "no sorts configured, results are ordered by name",
			})
		}
	}
	return warnings
}

type fieldErr struct {
	field string
	err   error
}

func appendAll(b criterio.FieldErrorsBuilder, errs []fieldErr) criterio.FieldErrorsBuilder {
	for _, e := range errs {
		b = b.Append(e.field, e.err)
	}
	return b
}

func validateConfigFile(configPath string) error {
	if configPath == "" {
		return nil
	}

	info, err := os.Stat(configPath)
	if os.IsNotExist(err) {
		return nil // not found is fine, using defaults
	}
	if err != nil {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("cannot access: %w", err))
	}
	if info.IsDir() {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
	}
	return nil
}

// isDirectoryOrNotExist validates that a path is a directory or doesn't exist.
func isDirectoryOrNotExist(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil // will be created
	}
	if err != nil {
		return fmt.Errorf("cannot access: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("exists but is not a directory")
	}
	return nil
}
