package render

import (
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"

	"github.com/colonyops/kennel/internal/core/entity"
)

var rex = entity.Record{
	ID:     "3f0c1f2e",
	Name:   "Rex the Great",
	Fields: map[string]any{"breed": "Golden Retriever", "age": 4},
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()

	assert.Equal(t, []string{Card, Compact, Row}, r.Names())
	assert.Equal(t, Card, r.Lookup("card").Name())
	assert.True(t, r.Has("row"))
	assert.False(t, r.Has("carousel"))
	assert.Equal(t, Fallback, r.Lookup("carousel").Name(), "unknown names resolve to the fallback")
	assert.Equal(t, Fallback, r.Lookup("").Name())
}

func TestRenderers_Dimensions(t *testing.T) {
	r := NewRegistry()

	for _, name := range []string{Card, Row, Compact, "unknown"} {
		t.Run(name, func(t *testing.T) {
			rn := r.Lookup(name)
			for _, selected := range []bool{false, true} {
				out := rn.Render(Item{Entity: rex, Selected: selected, Width: 40})
				lines := strings.Split(out, "\n")
				assert.Len(t, lines, rn.Height())
				for _, l := range lines {
					assert.LessOrEqual(t, ansi.StringWidth(l), 40)
				}
			}
		})
	}
}

func TestRow_ShowsFields(t *testing.T) {
	out := ansi.Strip(NewRegistry().Lookup(Row).Render(Item{Entity: rex, Width: 80, Fields: []string{"breed"}}))
	assert.Contains(t, out, "Rex the Great")
	assert.Contains(t, out, "breed: Golden Retriever")
	assert.NotContains(t, out, "age")
}

func TestFallback_ShowsID(t *testing.T) {
	out := NewRegistry().Lookup("nope").Render(Item{Entity: rex, Width: 60, Selected: true})
	assert.True(t, strings.HasPrefix(out, "> 3f0c1f2e  Rex the Great"))
}

func TestSummary_SortedWhenUnspecified(t *testing.T) {
	assert.Equal(t, "age: 4 · breed: Golden Retriever", summary(rex, nil))
}

func TestFit(t *testing.T) {
	assert.Equal(t, "abc  ", fit("abc", 5))
	assert.Equal(t, "abcd…", fit("abcdefgh", 5))
	assert.Empty(t, fit("abc", 0))
}
