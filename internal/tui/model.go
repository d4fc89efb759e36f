// Package tui is the interactive terminal host of the browsing engine. It
// translates terminal events into engine transitions and executes the
// commands the engine returns as tea.Cmds.
package tui

import (
	"context"
	"slices"
	"time"

	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"github.com/rs/zerolog"

	"github.com/colonyops/kennel/internal/browser"
	"github.com/colonyops/kennel/internal/core/config"
	"github.com/colonyops/kennel/internal/core/entity"
	"github.com/colonyops/kennel/internal/core/paging"
	"github.com/colonyops/kennel/internal/core/query"
	"github.com/colonyops/kennel/internal/core/selection"
	"github.com/colonyops/kennel/internal/core/viewport"
)

// UIState is the input focus of the model.
type UIState int

const (
	stateNormal UIState = iota
	stateSearching
	stateEditingAddress
	stateShowingHelp
)

// chromeLines is the number of lines taken by the address bar, the header
// and the footer.
const chromeLines = 3

// DefaultFetchTimeout bounds a single page or entity fetch.
const DefaultFetchTimeout = 15 * time.Second

// Options configures the TUI.
type Options struct {
	// Address is opened on start. Empty opens the first collection.
	Address string
	// Width and Height are the initial terminal size in cells, used until
	// the first resize event arrives.
	Width        int
	Height       int
	FetchTimeout time.Duration
	Log          zerolog.Logger
}

type pageLoadedMsg struct {
	req  paging.Request
	page entity.Page
	err  error
}

type entityLoadedMsg struct {
	id  string
	rec *entity.Record
	err error
}

// searchDebounceMsg fires once the debounce window of a search input passed.
type searchDebounceMsg struct {
	id uint64
}

// throttleFlushMsg emits trailing scroll and resize events.
type throttleFlushMsg struct{}

// Model is the bubbletea model of the browser.
type Model struct {
	ctx     context.Context
	engine  *browser.Engine
	tui     config.TUIConfig
	keys    keyMap
	timeout time.Duration
	log     zerolog.Logger

	state   UIState
	search  textinput.Model
	address textinput.Model

	width  int
	height int
	// cursor is the highlighted entity index.
	cursor int
	addr   string
	flash  string

	scrollThrottle  *viewport.Throttle[int]
	measureThrottle *viewport.Throttle[browser.Measurement]
	now             func() time.Time

	pending tea.Cmd
}

// New opens opts.Address on engine and returns the model. The data load
// starts when the program calls Init.
func New(ctx context.Context, engine *browser.Engine, cfg *config.Config, opts Options) (Model, error) {
	timeout := opts.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}

	inputStyles := textinput.DefaultStyles(true)
	inputStyles.Cursor.Blink = false

	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = "search"
	search.CharLimit = 128
	search.SetStyles(inputStyles)

	address := textinput.New()
	address.Prompt = "→ "
	address.SetStyles(inputStyles)

	m := Model{
		ctx:             ctx,
		engine:          engine,
		tui:             cfg.TUI,
		keys:            defaultKeyMap(),
		timeout:         timeout,
		log:             opts.Log,
		search:          search,
		address:         address,
		width:           opts.Width,
		height:          opts.Height,
		scrollThrottle:  viewport.NewThrottle[int](cfg.Tuning.Throttle),
		measureThrottle: viewport.NewThrottle[browser.Measurement](cfg.Tuning.Throttle),
		now:             time.Now,
	}

	addr := opts.Address
	if addr == "" && len(cfg.Collections) > 0 {
		addr = "/" + cfg.Collections[0].ID
	}

	first := engine.Measure(m.measurement())
	u, err := engine.Open(ctx, addr)
	if err != nil {
		return Model{}, err
	}
	first.Commands = append(first.Commands, u.Commands...)
	m.search.SetValue(engine.State().Search)
	m.pending = m.run(first)
	return m, nil
}

// Threshold converts the configured scroll threshold into terminal lines.
func Threshold(cfg *config.Config) int {
	return max(cfg.Tuning.ScrollThreshold/max(cfg.TUI.CellHeight, 1), 1)
}

// Address returns the address shown in the address bar.
func (m Model) Address() string { return m.addr }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.pending
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		ms := m.measurement()
		if v, ok := m.measureThrottle.Push(m.now(), ms); ok {
			return m, m.run(m.engine.Measure(v))
		}
		return m, m.flushLater(m.measureThrottle.Remaining(m.now()))

	case tea.MouseWheelMsg:
		switch msg.Mouse().Button {
		case tea.MouseWheelDown:
			return m.scrollTo(m.engine.Measurement().ScrollOffset + 3)
		case tea.MouseWheelUp:
			return m.scrollTo(m.engine.Measurement().ScrollOffset - 3)
		}
		return m, nil

	case throttleFlushMsg:
		var cmds []tea.Cmd
		if v, ok := m.measureThrottle.Flush(m.now()); ok {
			cmds = append(cmds, m.run(m.engine.Measure(v)))
		}
		if v, ok := m.scrollThrottle.Flush(m.now()); ok {
			cmds = append(cmds, m.run(m.engine.Scroll(v)))
		}
		if m.measureThrottle.Pending() || m.scrollThrottle.Pending() {
			cmds = append(cmds, m.flushLater(max(m.measureThrottle.Remaining(m.now()), m.scrollThrottle.Remaining(m.now()))))
		}
		return m, tea.Batch(cmds...)

	case pageLoadedMsg:
		u := m.engine.ApplyPage(m.ctx, msg.req, msg.page, msg.err)
		m.clampCursor()
		return m, m.run(u)

	case entityLoadedMsg:
		return m, m.run(m.engine.ApplyLookup(msg.id, msg.rec, msg.err))

	case searchDebounceMsg:
		u, err := m.engine.FireSearch(m.ctx, msg.id)
		if err != nil {
			m.flash = err.Error()
			return m, nil
		}
		if len(u.Commands) > 0 {
			m.cursor = 0
		}
		return m, m.run(u)

	case tea.KeyPressMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	switch m.state {
	case stateSearching:
		return m.handleSearchKey(msg)
	case stateEditingAddress:
		return m.handleAddressKey(msg)
	case stateShowingHelp:
		m.state = stateNormal
		return m, nil
	}
	return m.handleNormalKey(msg)
}

func (m Model) handleSearchKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		m.state = stateNormal
		m.search.Blur()
		return m, nil
	}

	before := m.search.Value()
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	if m.search.Value() == before {
		return m, cmd
	}
	return m, tea.Batch(cmd, m.run(m.engine.SearchInput(m.search.Value())))
}

func (m Model) handleAddressKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.state = stateNormal
		m.address.Blur()
		return m, nil
	case "enter":
		m.state = stateNormal
		m.address.Blur()
		return m.navigate(m.engine.Navigate(m.ctx, m.address.Value()))
	}
	var cmd tea.Cmd
	m.address, cmd = m.address.Update(msg)
	return m, cmd
}

func (m Model) handleNormalKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	m.flash = ""
	l := m.engine.Layout()
	step := 1
	if l.Grid {
		step = l.Columns
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.state = stateShowingHelp
		return m, nil
	case key.Matches(msg, m.keys.Down):
		return m.moveCursor(step)
	case key.Matches(msg, m.keys.Up):
		return m.moveCursor(-step)
	case key.Matches(msg, m.keys.Right) && l.Grid:
		return m.moveCursor(1)
	case key.Matches(msg, m.keys.Left) && l.Grid:
		return m.moveCursor(-1)
	case key.Matches(msg, m.keys.PageDown):
		return m.moveCursor(step * max(m.listHeight()/m.itemSize(), 1))
	case key.Matches(msg, m.keys.PageUp):
		return m.moveCursor(-step * max(m.listHeight()/m.itemSize(), 1))
	case key.Matches(msg, m.keys.Open):
		cur := m.engine.Cursor()
		if m.cursor >= len(cur.Entities) {
			return m, nil
		}
		return m.navigate(m.engine.Select(m.ctx, cur.Entities[m.cursor].ID))
	case key.Matches(msg, m.keys.Expand):
		return m.navigate(m.engine.Expand(m.ctx))
	case key.Matches(msg, m.keys.Close):
		return m.navigate(m.engine.CloseSelection(m.ctx))
	case key.Matches(msg, m.keys.Back):
		return m.navigate(m.engine.Back(m.ctx))
	case key.Matches(msg, m.keys.Forward):
		return m.navigate(m.engine.Forward(m.ctx))
	case key.Matches(msg, m.keys.Search):
		m.state = stateSearching
		return m, m.search.Focus()
	case key.Matches(msg, m.keys.Address):
		m.state = stateEditingAddress
		m.address.SetValue(m.addr)
		m.address.CursorEnd()
		return m, m.address.Focus()
	case key.Matches(msg, m.keys.Sort):
		return m.navigate(m.engine.SetSort(m.ctx, m.nextSort()))
	case key.Matches(msg, m.keys.View):
		return m.navigate(m.engine.SetView(m.ctx, m.nextView()))
	case key.Matches(msg, m.keys.Collection):
		return m.navigate(m.engine.Navigate(m.ctx, "/"+m.nextCollection()))
	case key.Matches(msg, m.keys.Clear):
		return m.navigate(m.engine.Navigate(m.ctx, "/"+m.engine.Collection().ID))
	case key.Matches(msg, m.keys.More):
		return m, m.run(m.engine.RequestMore())
	case key.Matches(msg, m.keys.Retry):
		return m, m.run(m.engine.Retry())
	}
	return m, nil
}

// navigate runs the outcome of an engine transition that may fail.
func (m Model) navigate(u browser.Update, err error) (tea.Model, tea.Cmd) {
	if err != nil {
		m.flash = err.Error()
		return m, nil
	}
	if _, ok := u.Address(); ok {
		m.clampCursor()
	}
	m.search.SetValue(m.engine.State().Search)
	return m, m.run(u)
}

func (m Model) moveCursor(delta int) (tea.Model, tea.Cmd) {
	n := len(m.engine.Cursor().Entities)
	if n == 0 {
		return m, nil
	}
	m.cursor = min(max(m.cursor+delta, 0), n-1)
	return m, m.run(m.engine.EnsureVisible(m.cursor))
}

func (m Model) scrollTo(offset int) (tea.Model, tea.Cmd) {
	if v, ok := m.scrollThrottle.Push(m.now(), offset); ok {
		return m, m.run(m.engine.Scroll(v))
	}
	return m, m.flushLater(m.scrollThrottle.Remaining(m.now()))
}

func (m *Model) clampCursor() {
	n := len(m.engine.Cursor().Entities)
	if m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
}

func (m Model) flushLater(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return throttleFlushMsg{} })
}

// run converts engine commands into tea commands. Address commands update
// the address bar immediately.
func (m *Model) run(u browser.Update) tea.Cmd {
	var cmds []tea.Cmd
	engine, ctx, timeout := m.engine, m.ctx, m.timeout

	for _, c := range u.Commands {
		switch c.Kind {
		case browser.FetchMore:
			req := c.Fetch
			cmds = append(cmds, func() tea.Msg {
				fctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				page, err := engine.Fetch(fctx, req)
				return pageLoadedMsg{req: req, page: page, err: err}
			})
		case browser.LookupEntity:
			c := c
			cmds = append(cmds, func() tea.Msg {
				fctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				rec, err := engine.Lookup(fctx, c)
				return entityLoadedMsg{id: c.EntityID, rec: rec, err: err}
			})
		case browser.ScheduleSearch:
			id := c.Search.ID
			cmds = append(cmds, tea.Tick(c.Search.Delay, func(time.Time) tea.Msg {
				return searchDebounceMsg{id: id}
			}))
		case browser.PushAddress, browser.ReplaceAddress:
			m.addr = c.Address
		}
	}
	return tea.Batch(cmds...)
}

// measurement maps the terminal size onto engine units: the width in
// breakpoint pixels, the list container in lines.
func (m Model) measurement() browser.Measurement {
	return browser.Measurement{
		Width:         m.width * max(m.tui.CellWidth, 1),
		ContainerSize: m.listHeight(),
		ScrollOffset:  m.engine.Measurement().ScrollOffset,
	}
}

func (m Model) listHeight() int {
	h := m.height - chromeLines
	if m.engine.Cursor().Err != nil {
		h--
	}
	return max(h, 0)
}

func (m Model) itemSize() int {
	if n := m.engine.View().ItemSize; n > 0 {
		return n
	}
	return max(m.engine.Renderer().Height(), 1)
}

func (m Model) nextSort() string {
	sync := m.engine.Synchronizer()
	sorts := sync.Sorts()
	if len(sorts) == 0 {
		return ""
	}
	current, _ := sync.SortOptionFor(m.engine.State().Sort)
	i := slices.IndexFunc(sorts, func(o query.SortOption) bool { return o.ID == current.ID })
	return sorts[(i+1)%len(sorts)].ID
}

func (m Model) nextView() string {
	ids := m.engine.Collection().ViewIDs()
	if len(ids) == 0 {
		return ""
	}
	i := slices.Index(ids, m.engine.View().ID)
	return ids[(i+1)%len(ids)]
}

func (m Model) nextCollection() string {
	cols := m.engine.Collections()
	i := slices.IndexFunc(cols, func(c config.Collection) bool { return c.ID == m.engine.Collection().ID })
	return cols[(i+1)%len(cols)].ID
}

func (m Model) selectedIndex() int {
	id, _ := m.engine.Selected()
	if id == "" {
		return -1
	}
	return slices.IndexFunc(m.engine.Cursor().Entities, func(r entity.Record) bool { return r.ID == id })
}

func (m Model) display() selection.Display { return m.engine.Display() }
