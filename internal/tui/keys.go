package tui

import "charm.land/bubbles/v2/key"

type keyMap struct {
	Up         key.Binding
	Down       key.Binding
	Left       key.Binding
	Right      key.Binding
	PageDown   key.Binding
	PageUp     key.Binding
	Open       key.Binding
	Expand     key.Binding
	Close      key.Binding
	Search     key.Binding
	Address    key.Binding
	Back       key.Binding
	Forward    key.Binding
	Sort       key.Binding
	View       key.Binding
	Collection key.Binding
	Clear      key.Binding
	More       key.Binding
	Retry      key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:         key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "up")),
		Down:       key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "down")),
		Left:       key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("h/←", "left")),
		Right:      key.NewBinding(key.WithKeys("l", "right"), key.WithHelp("l/→", "right")),
		PageDown:   key.NewBinding(key.WithKeys("pgdown", "ctrl+d"), key.WithHelp("pgdn", "page down")),
		PageUp:     key.NewBinding(key.WithKeys("pgup", "ctrl+u"), key.WithHelp("pgup", "page up")),
		Open:       key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		Expand:     key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "fullscreen")),
		Close:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "close")),
		Search:     key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		Address:    key.NewBinding(key.WithKeys("o", "ctrl+l"), key.WithHelp("o", "address")),
		Back:       key.NewBinding(key.WithKeys("["), key.WithHelp("[", "back")),
		Forward:    key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "forward")),
		Sort:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sort")),
		View:       key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "view")),
		Collection: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "collection")),
		Clear:      key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "clear filters")),
		More:       key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "load more")),
		Retry:      key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "retry")),
		Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// shortHelp lists the bindings shown in the footer.
func (k keyMap) shortHelp() []key.Binding {
	return []key.Binding{k.Open, k.Search, k.Address, k.Sort, k.View, k.Collection, k.Back, k.Help, k.Quit}
}

func (k keyMap) fullHelp() []key.Binding {
	return []key.Binding{
		k.Up, k.Down, k.Left, k.Right, k.PageDown, k.PageUp, k.Open, k.Expand, k.Close,
		k.Search, k.Address, k.Back, k.Forward, k.Sort, k.View, k.Collection, k.Clear,
		k.More, k.Retry, k.Quit,
	}
}
