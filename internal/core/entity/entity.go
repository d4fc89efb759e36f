// Package entity defines the records the browsing engine pages through and the
// data-provider contract it consumes.
package entity

import (
	"context"
	"fmt"
	"strings"
)

// Record is a single browsable entity. Fields holds arbitrary domain values
// keyed by field id.
type Record struct {
	ID     string         `json:"id"     yaml:"id"`
	Name   string         `json:"name"   yaml:"name"`
	Slug   string         `json:"slug,omitempty"   yaml:"slug,omitempty"`
	Fields map[string]any `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Field returns the string form of a field value. The reserved names id, name
// and slug map to the record columns.
func (r Record) Field(name string) string {
	switch name {
	case "id":
		return r.ID
	case "name":
		return r.Name
	case "slug":
		return r.Slug
	}
	v, ok := r.Fields[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection parses "asc"/"desc" (case-insensitive). Anything else is Asc.
func ParseDirection(s string) Direction {
	if strings.EqualFold(s, string(Desc)) {
		return Desc
	}
	return Asc
}

// Sort orders a page request. TieBreaker is always applied as the secondary key.
type Sort struct {
	Field      string    `json:"field"`
	Direction  Direction `json:"direction"`
	TieBreaker string    `json:"tie_breaker"`
}

// Cursor marks how much of an ordered result set has been loaded.
type Cursor struct {
	Offset int `json:"offset"`
}

// PageRequest describes one page fetch.
type PageRequest struct {
	Collection string            `json:"collection"`
	Filters    map[string]string `json:"filters,omitempty"`
	Sort       Sort              `json:"sort"`
	Search     string            `json:"search,omitempty"`
	Cursor     Cursor            `json:"cursor"`
	PageSize   int               `json:"page_size"`
}

// Page is one page of results. TotalCount may be provisional.
type Page struct {
	Entities   []Record `json:"entities"`
	TotalCount int      `json:"total_count"`
}

// Matcher selects a dictionary value either by id or by normalized label.
type Matcher struct {
	ID    string `json:"id,omitempty"`
	Label string `json:"label,omitempty"`
}

// DictionarySource looks up single dictionary values.
type DictionarySource interface {
	// FindDictionaryValue returns the matching record or nil when absent.
	FindDictionaryValue(ctx context.Context, table string, m Matcher) (*Record, error)
}

// Provider is the data-provider contract the engine requires. Implementations
// may answer from a local cache and refine TotalCount over time.
type Provider interface {
	DictionarySource
	GetPage(ctx context.Context, req PageRequest) (Page, error)
	// FindByID returns the record or nil when it does not exist.
	FindByID(ctx context.Context, collection, id string) (*Record, error)
}
