package selection

import (
	"fmt"

	"github.com/colonyops/kennel/internal/core/viewport"
)

// Mode is how a selected entity is presented at a breakpoint.
type Mode string

const (
	ModeOverlay         Mode = "overlay"
	ModeSide            Mode = "side"
	ModeSideTransparent Mode = "side-transparent"
	ModeFullscreen      Mode = "fullscreen"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeOverlay, ModeSide, ModeSideTransparent, ModeFullscreen:
		return m, nil
	}
	return "", fmt.Errorf("unknown drawer mode %q", s)
}

// Permanent reports whether the drawer stays open next to the list.
func (m Mode) Permanent() bool {
	return m == ModeSide || m == ModeSideTransparent
}

// Modes maps breakpoints to modes. Missing breakpoints inherit from the next
// narrower one.
type Modes map[viewport.Breakpoint]Mode

// DefaultModes is overlay on small screens, a side drawer on medium and
// large ones and a transparent side drawer on extra large screens.
func DefaultModes() Modes {
	return Modes{
		viewport.XS: ModeOverlay,
		viewport.SM: ModeOverlay,
		viewport.MD: ModeSide,
		viewport.LG: ModeSide,
		viewport.XL: ModeSideTransparent,
	}
}

// At returns the mode for bp.
func (m Modes) At(bp viewport.Breakpoint) Mode {
	mode := ModeOverlay
	for _, b := range viewport.Ordered {
		if v, ok := m[b]; ok && v != "" {
			mode = v
		}
		if b == bp {
			break
		}
	}
	return mode
}

// Kind is the coarse selection state.
type Kind int

const (
	NoSelection Kind = iota
	DrawerOpen
	Fullscreen
)

func (k Kind) String() string {
	switch k {
	case DrawerOpen:
		return "drawer"
	case Fullscreen:
		return "fullscreen"
	}
	return "none"
}

// Display is the presentation derived from selection, route and width.
type Display struct {
	Kind Kind
	// Mode is set when Kind is DrawerOpen.
	Mode Mode
}

func (d Display) String() string {
	if d.Kind == DrawerOpen {
		return fmt.Sprintf("drawer(%s)", d.Mode)
	}
	return d.Kind.String()
}
