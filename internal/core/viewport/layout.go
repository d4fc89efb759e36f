package viewport

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// View types with grid semantics. Every other type renders a single column.
const (
	TypeList    = "list"
	TypeGrid    = "grid"
	TypeGallery = "gallery"
	TypeCards   = "cards"
	TypeTable   = "table"
)

// IsGridType reports whether a view type lays entities out in columns.
func IsGridType(viewType string) bool {
	switch viewType {
	case TypeGrid, TypeGallery, TypeCards:
		return true
	}
	return false
}

// Columns is either a fixed column count or a per-breakpoint table. In YAML it
// accepts a scalar (`columns: 3`) or a mapping (`columns: {xs: 1, md: 3}`).
type Columns struct {
	Fixed        int
	ByBreakpoint map[Breakpoint]int
}

// FixedColumns returns a scalar column override.
func FixedColumns(n int) Columns { return Columns{Fixed: n} }

// IsZero reports whether no columns were configured.
func (c Columns) IsZero() bool { return c.Fixed == 0 && len(c.ByBreakpoint) == 0 }

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Columns) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var n int
		if err := node.Decode(&n); err != nil {
			return fmt.Errorf("columns: %w", err)
		}
		*c = Columns{Fixed: n}
		return nil
	case yaml.MappingNode:
		raw := map[string]int{}
		if err := node.Decode(&raw); err != nil {
			return fmt.Errorf("columns: %w", err)
		}
		table := make(map[Breakpoint]int, len(raw))
		for k, v := range raw {
			bp, err := ParseBreakpoint(k)
			if err != nil {
				return fmt.Errorf("columns: %w", err)
			}
			table[bp] = v
		}
		*c = Columns{ByBreakpoint: table}
		return nil
	}
	return fmt.Errorf("columns: expected a number or a breakpoint mapping")
}

// MarshalYAML implements yaml.Marshaler.
func (c Columns) MarshalYAML() (any, error) {
	if len(c.ByBreakpoint) == 0 {
		return c.Fixed, nil
	}
	out := make(map[string]int, len(c.ByBreakpoint))
	for k, v := range c.ByBreakpoint {
		out[string(k)] = v
	}
	return out, nil
}

// DefaultGridColumns is the responsive table used by grid views without one.
var DefaultGridColumns = map[Breakpoint]int{XS: 1, SM: 2, MD: 3, LG: 4, XL: 4}

// At resolves the column count for a breakpoint. Missing table entries
// inherit from the nearest narrower breakpoint.
func (c Columns) At(bp Breakpoint) int {
	if c.Fixed > 0 {
		return c.Fixed
	}
	table := c.ByBreakpoint
	if len(table) == 0 {
		table = DefaultGridColumns
	}
	n := 1
	for _, b := range Ordered {
		if v, ok := table[b]; ok && v > 0 {
			n = v
		}
		if b == bp {
			break
		}
	}
	return n
}

// View configures how one layout of a collection renders.
type View struct {
	ID       string  `yaml:"id"`
	Type     string  `yaml:"type"`
	ItemSize int     `yaml:"item_size"`
	Columns  Columns `yaml:"columns"`
	Overscan int     `yaml:"overscan"`
	Dividers bool    `yaml:"dividers"`
}

// Layout is the resolved layout strategy for one width.
type Layout struct {
	Columns    int
	Grid       bool
	Dividers   bool
	List       bool
	Breakpoint Breakpoint
}

// SelectLayout picks the column count and list semantics for a view at width.
// It is a pure function of its inputs.
func SelectLayout(v View, width int, bp Breakpoints) Layout {
	b := bp.Of(width)
	if !IsGridType(v.Type) {
		return Layout{Columns: 1, Dividers: v.Dividers, List: true, Breakpoint: b}
	}
	cols := v.Columns.At(b)
	if cols < 1 {
		cols = 1
	}
	return Layout{Columns: cols, Grid: true, Breakpoint: b}
}
