// Package styles provides the shared lipgloss v2 styles for the terminal
// browser and CLI output.
package styles

import (
	"image/color"
	"sort"

	lipgloss "charm.land/lipgloss/v2"
)

// Palette defines a minimal semantic theme palette.
type Palette struct {
	Primary    color.Color
	Foreground color.Color
	Muted      color.Color
	Surface    color.Color
	Success    color.Color
	Warning    color.Color
	Error      color.Color
}

// DefaultTheme is the name of the default theme.
const DefaultTheme = "tokyo-night"

var themes = map[string]Palette{
	"tokyo-night": {
		Primary:    lipgloss.Color("#7aa2f7"),
		Foreground: lipgloss.Color("#c0caf5"),
		Muted:      lipgloss.Color("#565f89"),
		Surface:    lipgloss.Color("#3b4261"),
		Success:    lipgloss.Color("#9ece6a"),
		Warning:    lipgloss.Color("#e0af68"),
		Error:      lipgloss.Color("#f7768e"),
	},
	"gruvbox": {
		Primary:    lipgloss.Color("#83a598"),
		Foreground: lipgloss.Color("#ebdbb2"),
		Muted:      lipgloss.Color("#665c54"),
		Surface:    lipgloss.Color("#3c3836"),
		Success:    lipgloss.Color("#b8bb26"),
		Warning:    lipgloss.Color("#fabd2f"),
		Error:      lipgloss.Color("#fb4934"),
	},
}

// ThemeNames returns sorted names of all built-in themes.
func ThemeNames() []string {
	names := make([]string, 0, len(themes))
	for name := range themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPalette returns the palette for a theme name.
func GetPalette(name string) (Palette, bool) {
	p, ok := themes[name]
	return p, ok
}

// CurrentPalette is the palette the styles were last built from.
var CurrentPalette Palette

var (
	TextForegroundStyle  lipgloss.Style
	TextMutedStyle       lipgloss.Style
	TextPrimaryStyle     lipgloss.Style
	TextPrimaryBoldStyle lipgloss.Style
	TextSuccessStyle     lipgloss.Style
	TextWarningStyle     lipgloss.Style
	TextErrorStyle       lipgloss.Style

	SelectedRowStyle  lipgloss.Style
	DividerStyle      lipgloss.Style
	CardStyle         lipgloss.Style
	CardSelectedStyle lipgloss.Style
	DrawerStyle       lipgloss.Style
	DrawerTitleStyle  lipgloss.Style
	BannerErrorStyle  lipgloss.Style
	AddressBarStyle   lipgloss.Style
	HelpStyle         lipgloss.Style
)

// SetTheme rebuilds every style from p.
func SetTheme(p Palette) {
	CurrentPalette = p

	TextForegroundStyle = lipgloss.NewStyle().Foreground(p.Foreground)
	TextMutedStyle = lipgloss.NewStyle().Foreground(p.Muted)
	TextPrimaryStyle = lipgloss.NewStyle().Foreground(p.Primary)
	TextPrimaryBoldStyle = lipgloss.NewStyle().Foreground(p.Primary).Bold(true)
	TextSuccessStyle = lipgloss.NewStyle().Foreground(p.Success)
	TextWarningStyle = lipgloss.NewStyle().Foreground(p.Warning)
	TextErrorStyle = lipgloss.NewStyle().Foreground(p.Error)

	SelectedRowStyle = lipgloss.NewStyle().Foreground(p.Foreground).Bold(true)
	DividerStyle = lipgloss.NewStyle().Foreground(p.Surface)
	CardStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(p.Surface)
	CardSelectedStyle = CardStyle.BorderForeground(p.Primary)
	DrawerStyle = lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, false, true).
		BorderForeground(p.Surface).
		PaddingLeft(1)
	DrawerTitleStyle = lipgloss.NewStyle().Foreground(p.Primary).Bold(true)
	BannerErrorStyle = lipgloss.NewStyle().Foreground(p.Error).Bold(true)
	AddressBarStyle = lipgloss.NewStyle().Foreground(p.Muted)
	HelpStyle = lipgloss.NewStyle().Foreground(p.Muted)
}

func init() {
	SetTheme(themes[DefaultTheme])
}
