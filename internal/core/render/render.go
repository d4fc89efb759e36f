// Package render holds the closed set of entity renderers selectable by name
// from configuration.
package render

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/colonyops/kennel/internal/core/entity"
	"github.com/colonyops/kennel/internal/core/styles"
)

// Renderer names.
const (
	Card     = "card"
	Row      = "row"
	Compact  = "compact"
	Fallback = "fallback"
)

// Item is one entity to draw.
type Item struct {
	Entity   entity.Record
	Selected bool
	Index    int
	Width    int
	// Fields lists the record fields to show, in order. Empty shows every
	// field sorted by name.
	Fields []string
	// Activate opens the entity. Hosts call it when the item is chosen.
	Activate func()
}

// Renderer draws a single item into exactly Height lines of Width cells.
type Renderer interface {
	Name() string
	Height() int
	Render(item Item) string
}

// Registry maps configured names to renderers.
type Registry struct {
	byName   map[string]Renderer
	fallback Renderer
}

// NewRegistry returns the built-in renderers.
func NewRegistry() *Registry {
	r := &Registry{byName: map[string]Renderer{}, fallback: fallbackRenderer{}}
	for _, rn := range []Renderer{cardRenderer{}, rowRenderer{}, compactRenderer{}} {
		r.byName[rn.Name()] = rn
	}
	return r
}

// Lookup returns the named renderer, or the fallback renderer for unknown
// names.
func (r *Registry) Lookup(name string) Renderer {
	if rn, ok := r.byName[name]; ok {
		return rn
	}
	return r.fallback
}

// Has reports whether name is a registered renderer.
func (r *Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Names returns the registered renderer names, sorted.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.byName))
}

type cardRenderer struct{}

func (cardRenderer) Name() string { return Card }
func (cardRenderer) Height() int  { return 4 }

func (cardRenderer) Render(it Item) string {
	inner := max(it.Width-2, 1)
	title := styles.TextPrimaryBoldStyle.Render(fit(it.Entity.Name, inner))
	detail := styles.TextMutedStyle.Render(fit(summary(it.Entity, it.Fields), inner))

	st := styles.CardStyle
	if it.Selected {
		st = styles.CardSelectedStyle
	}
	return st.Width(inner).Render(title + "\n" + detail)
}

type rowRenderer struct{}

func (rowRenderer) Name() string { return Row }
func (rowRenderer) Height() int  { return 1 }

func (rowRenderer) Render(it Item) string {
	indicator := "  "
	nameStyle := styles.TextForegroundStyle
	if it.Selected {
		indicator = styles.TextPrimaryStyle.Render("┃ ")
		nameStyle = styles.SelectedRowStyle
	}

	avail := max(it.Width-2, 1)
	nameWidth := min(max(avail/3, 12), avail)
	name := nameStyle.Render(fit(it.Entity.Name, nameWidth))
	rest := ""
	if avail > nameWidth+1 {
		rest = " " + styles.TextMutedStyle.Render(fit(summary(it.Entity, it.Fields), avail-nameWidth-1))
	}
	return indicator + name + rest
}

type compactRenderer struct{}

func (compactRenderer) Name() string { return Compact }
func (compactRenderer) Height() int  { return 1 }

func (compactRenderer) Render(it Item) string {
	st := styles.TextForegroundStyle
	prefix := " "
	if it.Selected {
		st = styles.SelectedRowStyle
		prefix = styles.TextPrimaryStyle.Render("›")
	}
	return prefix + st.Render(fit(it.Entity.Name, max(it.Width-1, 1)))
}

// fallbackRenderer draws unknown renderer names as plain id/name rows.
type fallbackRenderer struct{}

func (fallbackRenderer) Name() string { return Fallback }
func (fallbackRenderer) Height() int  { return 1 }

func (fallbackRenderer) Render(it Item) string {
	text := fmt.Sprintf("%s  %s", it.Entity.ID, it.Entity.Name)
	if it.Selected {
		text = "> " + text
	} else {
		text = "  " + text
	}
	return fit(text, max(it.Width, 1))
}

// summary renders the displayed fields as "key: value" pairs.
func summary(e entity.Record, fields []string) string {
	if len(fields) == 0 {
		fields = slices.Sorted(maps.Keys(e.Fields))
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if v := e.Field(f); v != "" {
			parts = append(parts, f+": "+v)
		}
	}
	return strings.Join(parts, " · ")
}

// fit truncates s to width cells and pads it with spaces to exactly width.
func fit(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = ansi.Truncate(s, width, "…")
	if w := ansi.StringWidth(s); w < width {
		s += strings.Repeat(" ", width-w)
	}
	return s
}
