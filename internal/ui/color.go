// Package ui renders the wall-mode instance grid overlay (spec.md §4.6
// / SPEC_FULL.md §2.1): its own top-level SDL2 window drawing one tile
// per tracked instance, colored by its scheduler group and labeled with
// its state, over the GL surface's read-back frame when one has been
// set with Grid.SetBackground (spec.md §4.4). Color parsing and font rendering are adapted
// from the menu-label drawing code this package's layout descends
// from.
package ui

import (
	"fmt"
	"image/color"
	"strconv"
)

// ParseColor parses a "#RGB", "#RGBA", "#RRGGBB", or "#RRGGBBAA" hex
// string into an NRGBA color, adapted verbatim in logic from
// ctxmenu.go's parseColor.
func ParseColor(s string) (*color.NRGBA, error) {
	if len(s) == 0 {
		return nil, fmt.Errorf("ui: empty color")
	}
	if s[0] == '#' {
		s = s[1:]
	}
	switch len(s) {
	case 3:
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2], 'f', 'f'})
	case 4:
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2], s[3], s[3]})
	case 6:
		s += "ff"
	case 8:
	default:
		return nil, fmt.Errorf("ui: invalid color %q", s)
	}
	r, err := strconv.ParseUint(s[0:2], 16, 8)
	if err != nil {
		return nil, fmt.Errorf("ui: invalid color %q", s)
	}
	g, err := strconv.ParseUint(s[2:4], 16, 8)
	if err != nil {
		return nil, fmt.Errorf("ui: invalid color %q", s)
	}
	b, err := strconv.ParseUint(s[4:6], 16, 8)
	if err != nil {
		return nil, fmt.Errorf("ui: invalid color %q", s)
	}
	a, err := strconv.ParseUint(s[6:8], 16, 8)
	if err != nil {
		return nil, fmt.Errorf("ui: invalid color %q", s)
	}
	return &color.NRGBA{R: uint8(r), G: uint8(g), B: uint8(b), A: uint8(a)}, nil
}
