package tui

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	tea "charm.land/bubbletea/v2"
	lipgloss "charm.land/lipgloss/v2"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"

	"github.com/colonyops/kennel/internal/core/entity"
	"github.com/colonyops/kennel/internal/core/render"
	"github.com/colonyops/kennel/internal/core/selection"
	"github.com/colonyops/kennel/internal/core/styles"
)

// drawerRatio is the share of the width taken by a side drawer.
const drawerRatio = 0.4

// View implements tea.Model.
func (m Model) View() tea.View {
	v := tea.NewView(m.render())
	v.AltScreen = true
	v.MouseMode = tea.MouseModeCellMotion
	return v
}

func (m Model) render() string {
	if m.width <= 0 || m.height <= 0 {
		return ""
	}
	if m.state == stateShowingHelp {
		return m.renderHelp()
	}

	parts := []string{m.renderAddressBar(), m.renderHeader()}
	if err := m.engine.Cursor().Err; err != nil {
		parts = append(parts, styles.BannerErrorStyle.Render(runewidth.Truncate(
			fmt.Sprintf("press r to retry: %v", err), m.width, "…")))
	}
	parts = append(parts, m.renderBody(), m.renderFooter())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderAddressBar() string {
	if m.state == stateEditingAddress {
		return m.address.View()
	}
	return styles.AddressBarStyle.Render(runewidth.Truncate(m.addr, m.width, "…"))
}

func (m Model) renderHeader() string {
	col := m.engine.Collection()
	cur := m.engine.Cursor()

	title := col.Title
	if title == "" {
		title = col.ID
	}
	count := fmt.Sprintf("%d", len(cur.Entities))
	switch {
	case cur.TotalReal || (!cur.HasMore && !cur.Loading):
		count += fmt.Sprintf("/%d", cur.Total)
	case cur.Total > 0:
		count += fmt.Sprintf("/~%d", cur.Total)
	}
	if cur.Loading {
		count += " loading"
	}

	sort := ""
	if sync := m.engine.Synchronizer(); sync != nil {
		if opt, ok := sync.SortOptionFor(m.engine.State().Sort); ok {
			sort = opt.Label
			if sort == "" {
				sort = opt.ID
			}
		}
	}

	line := styles.TextPrimaryBoldStyle.Render(title) + " " +
		styles.TextMutedStyle.Render(fmt.Sprintf("%s · sort %s · view %s", count, sort, m.engine.View().ID))
	if w := m.engine.Warnings(); len(w) > 0 {
		line += " " + styles.TextWarningStyle.Render("! "+w[len(w)-1])
	}
	return ansi.Truncate(line, m.width, "")
}

func (m Model) renderBody() string {
	height := m.listHeight()
	d := m.display()
	id, rec := m.engine.Selected()

	if d.Kind == selection.Fullscreen || (d.Kind == selection.DrawerOpen && d.Mode == selection.ModeFullscreen) {
		return m.renderDetail(id, rec, m.width, height)
	}
	if d.Kind == selection.DrawerOpen && d.Mode == selection.ModeOverlay {
		return m.renderDetail(id, rec, m.width, height)
	}
	if d.Kind == selection.DrawerOpen && d.Mode.Permanent() {
		drawerWidth := max(int(float64(m.width)*drawerRatio), 20)
		listWidth := max(m.width-drawerWidth, 1)
		list := m.renderList(listWidth, height)
		detail := styles.DrawerStyle.Render(m.renderDetail(id, rec, drawerWidth-2, height))
		return lipgloss.JoinHorizontal(lipgloss.Top, list, detail)
	}
	return m.renderList(m.width, height)
}

// renderList draws the mounted rows of the window and keeps the lines
// between the scroll offset and the container end.
func (m Model) renderList(width, height int) string {
	w := m.engine.Window()
	cur := m.engine.Cursor()
	if len(cur.Entities) == 0 && !cur.Loading {
		return pad(styles.TextMutedStyle.Render("no results"), height)
	}
	if w.Empty() {
		return pad("", height)
	}

	r := m.engine.Renderer()
	fields := m.engine.Collection().Fields
	selected := m.selectedIndex()
	l := m.engine.Layout()
	cols := max(l.Columns, 1)

	first := w.Rows[0].Offset
	var lines []string
	for _, row := range w.Rows {
		var block string
		if row.Loading {
			block = styles.TextMutedStyle.Render("loading…")
		} else {
			cells := make([]string, 0, row.End-row.Start)
			for i := row.Start; i < row.End; i++ {
				cells = append(cells, r.Render(render.Item{
					Entity:   cur.Entities[i],
					Selected: i == m.cursor || i == selected,
					Index:    i,
					Width:    max(width/cols, 1),
					Fields:   fields,
				}))
			}
			block = lipgloss.JoinHorizontal(lipgloss.Top, cells...)
		}
		rowLines := strings.Split(block, "\n")
		for len(rowLines) < row.Size {
			rowLines = append(rowLines, "")
		}
		lines = append(lines, rowLines[:row.Size]...)
		if l.Dividers && !row.Loading && row.Size > r.Height() {
			lines[len(lines)-1] = styles.DividerStyle.Render(strings.Repeat("─", width))
		}
	}

	start := min(max(m.engine.Measurement().ScrollOffset-first, 0), len(lines))
	end := min(start+height, len(lines))
	visible := lines[start:end]
	for i, line := range visible {
		visible[i] = ansi.Truncate(line, width, "")
	}
	return lipgloss.NewStyle().Width(width).Render(pad(strings.Join(visible, "\n"), height))
}

func (m Model) renderDetail(id string, rec *entity.Record, width, height int) string {
	if rec == nil {
		return pad(styles.TextMutedStyle.Render("loading "+id+"…"), height)
	}
	lines := []string{styles.DrawerTitleStyle.Render(runewidth.Truncate(rec.Name, width, "…"))}
	lines = append(lines, styles.TextMutedStyle.Render(runewidth.Truncate(rec.ID, width, "…")), "")
	for _, k := range slices.Sorted(maps.Keys(rec.Fields)) {
		value := runewidth.Truncate(rec.Field(k), max(width-runewidth.StringWidth(k)-2, 1), "…")
		lines = append(lines, styles.TextMutedStyle.Render(k+": ")+styles.TextForegroundStyle.Render(value))
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	return lipgloss.NewStyle().Width(width).Render(pad(strings.Join(lines, "\n"), height))
}

func (m Model) renderFooter() string {
	switch m.state {
	case stateSearching:
		return m.search.View()
	}
	if m.flash != "" {
		return styles.TextErrorStyle.Render(runewidth.Truncate(m.flash, m.width, "…"))
	}
	parts := make([]string, 0, len(m.keys.shortHelp()))
	for _, b := range m.keys.shortHelp() {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return styles.HelpStyle.Render(runewidth.Truncate(strings.Join(parts, " · "), m.width, "…"))
}

func (m Model) renderHelp() string {
	lines := []string{styles.TextPrimaryBoldStyle.Render("Keys"), ""}
	for _, b := range m.keys.fullHelp() {
		h := b.Help()
		lines = append(lines, fmt.Sprintf("  %-8s %s", h.Key, h.Desc))
	}
	lines = append(lines, "", styles.HelpStyle.Render("press any key to close"))
	return pad(strings.Join(lines, "\n"), m.height)
}

// pad extends s with empty lines to exactly height lines.
func pad(s string, height int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}
