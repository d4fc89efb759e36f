// Package query keeps filter, sort and search state synchronized with the
// address bar.
package query

import (
	"maps"
	"slices"
	"strings"

	"github.com/colonyops/kennel/internal/core/entity"
	"github.com/colonyops/kennel/internal/core/labels"
)

// Reserved address parameters that never become filters.
const (
	ParamView = "view"
	ParamSort = "sort"

	// Legacy sort parameters are read once and rewritten away.
	ParamLegacySortBy    = "sortBy"
	ParamLegacySortDir   = "sortDir"
	ParamLegacySortParam = "sortParam"

	// DefaultSearchSlug is the conventional main search parameter.
	DefaultSearchSlug = "search"
	// DefaultTieBreaker is the secondary sort key used when a sort option
	// does not name one.
	DefaultTieBreaker = "id"
)

func isReserved(key string) bool {
	switch key {
	case ParamView, ParamSort, ParamLegacySortBy, ParamLegacySortDir, ParamLegacySortParam:
		return true
	}
	return false
}

// FieldConfig describes one filterable field.
type FieldConfig struct {
	ID                  string   `yaml:"id"`
	Slug                string   `yaml:"slug"`
	Label               string   `yaml:"label"`
	ReferencedTable     string   `yaml:"referenced_table"`
	ReferencedIDField   string   `yaml:"referenced_id_field"`
	ReferencedNameField string   `yaml:"referenced_name_field"`
	DependsOn           []string `yaml:"depends_on"`
	DisabledUntil       string   `yaml:"disabled_until"`
	Required            bool     `yaml:"required"`
	Default             string   `yaml:"default"`
}

// Key returns the address parameter name for the field.
func (f FieldConfig) Key() string {
	if f.Slug != "" {
		return f.Slug
	}
	return f.ID
}

// Ref returns the dictionary reference of the field.
func (f FieldConfig) Ref() labels.Ref {
	return labels.Ref{
		Table:     f.ReferencedTable,
		IDField:   f.ReferencedIDField,
		NameField: f.ReferencedNameField,
	}
}

// IsDictionary reports whether values are dictionary ids.
func (f FieldConfig) IsDictionary() bool { return f.ReferencedTable != "" }

// SortOption is one selectable ordering.
type SortOption struct {
	ID         string           `yaml:"id"`
	Label      string           `yaml:"label"`
	Field      string           `yaml:"field"`
	Direction  entity.Direction `yaml:"direction"`
	TieBreaker string           `yaml:"tie_breaker"`
	Default    bool             `yaml:"default"`
}

// State is the filter/sort/search state of a list.
type State struct {
	Filters map[string]string `json:"filters"`
	Sort    entity.Sort       `json:"sort"`
	Search  string            `json:"search,omitempty"`
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	out.Filters = maps.Clone(s.Filters)
	if out.Filters == nil {
		out.Filters = map[string]string{}
	}
	return out
}

// Signature identifies the result set a state selects. Two states with the
// same signature page through the same ordered entities.
func (s State) Signature() string {
	var b strings.Builder
	keys := slices.Sorted(maps.Keys(s.Filters))
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(s.Filters[k])
		b.WriteByte('&')
	}
	b.WriteString("|sort=")
	b.WriteString(s.Sort.Field)
	b.WriteByte(':')
	b.WriteString(string(s.Sort.Direction))
	b.WriteByte(':')
	b.WriteString(s.Sort.TieBreaker)
	b.WriteString("|q=")
	b.WriteString(s.Search)
	return b.String()
}

// Equal reports whether two states select the same results.
func (s State) Equal(o State) bool { return s.Signature() == o.Signature() }

// Unfiltered reports whether the state has neither filters nor search.
func (s State) Unfiltered() bool { return len(s.Filters) == 0 && s.Search == "" }

// PageRequest builds the provider request for the page starting at offset.
func (s State) PageRequest(collection string, offset, pageSize int) entity.PageRequest {
	return entity.PageRequest{
		Collection: collection,
		Filters:    maps.Clone(s.Filters),
		Sort:       s.Sort,
		Search:     s.Search,
		Cursor:     entity.Cursor{Offset: offset},
		PageSize:   pageSize,
	}
}

// Enabled reports whether a field accepts a value under the current state.
func Enabled(f FieldConfig, s State) bool {
	return f.DisabledUntil == "" || s.Filters[f.DisabledUntil] != ""
}

// SetFilter sets (or clears, when value is empty) a filter and clears every
// field that depends on it, transitively.
func SetFilter(s State, fields []FieldConfig, fieldID, value string) State {
	out := s.Clone()
	if out.Filters[fieldID] == value {
		return out
	}
	if value == "" {
		delete(out.Filters, fieldID)
	} else {
		out.Filters[fieldID] = value
	}

	queue := []string{fieldID}
	seen := map[string]bool{fieldID: true}
	for len(queue) > 0 {
		changed := queue[0]
		queue = queue[1:]
		for _, f := range fields {
			if seen[f.ID] {
				continue
			}
			if slices.Contains(f.DependsOn, changed) || f.DisabledUntil == changed {
				delete(out.Filters, f.ID)
				seen[f.ID] = true
				queue = append(queue, f.ID)
			}
		}
	}
	return out
}

// SlugCollisions returns the parameter names claimed by more than one field.
func SlugCollisions(fields []FieldConfig) []string {
	owner := map[string]string{}
	var dup []string
	for _, f := range fields {
		for _, key := range []string{f.Slug, f.ID} {
			if key == "" {
				continue
			}
			if prev, ok := owner[key]; ok && prev != f.ID {
				if !slices.Contains(dup, key) {
					dup = append(dup, key)
				}
				continue
			}
			owner[key] = f.ID
		}
	}
	return dup
}
