// Package viewport computes which rows of a large collection must be mounted
// for a given scroll position, and which layout a view uses at a given width.
package viewport

import "fmt"

// Breakpoint names a viewport width class.
type Breakpoint string

const (
	XS Breakpoint = "xs"
	SM Breakpoint = "sm"
	MD Breakpoint = "md"
	LG Breakpoint = "lg"
	XL Breakpoint = "xl"
)

// Ordered lists the breakpoints from narrowest to widest.
var Ordered = []Breakpoint{XS, SM, MD, LG, XL}

// ParseBreakpoint validates a breakpoint name.
func ParseBreakpoint(s string) (Breakpoint, error) {
	for _, bp := range Ordered {
		if string(bp) == s {
			return bp, nil
		}
	}
	return "", fmt.Errorf("unknown breakpoint %q", s)
}

// Breakpoints holds the minimum width of each class above xs.
type Breakpoints struct {
	SM int `yaml:"sm"`
	MD int `yaml:"md"`
	LG int `yaml:"lg"`
	XL int `yaml:"xl"`
}

// DefaultBreakpoints returns the standard width thresholds.
func DefaultBreakpoints() Breakpoints {
	return Breakpoints{SM: 600, MD: 900, LG: 1200, XL: 1536}
}

// Of returns the breakpoint for width.
func (b Breakpoints) Of(width int) Breakpoint {
	switch {
	case width >= b.XL:
		return XL
	case width >= b.LG:
		return LG
	case width >= b.MD:
		return MD
	case width >= b.SM:
		return SM
	default:
		return XS
	}
}

// Validate checks the thresholds are strictly increasing.
func (b Breakpoints) Validate() error {
	if b.SM <= 0 || b.MD <= b.SM || b.LG <= b.MD || b.XL <= b.LG {
		return fmt.Errorf("breakpoints must be positive and strictly increasing (sm < md < lg < xl)")
	}
	return nil
}
