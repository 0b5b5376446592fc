package server

import (
	"fmt"

	"github.com/tesselslate/waywall-sub001/internal/remote"
)

// Seat is the singleton described in spec.md §3 "Seat": one logical seat
// (spec.md §1 non-goals rule out multi-seat), holding keyboard focus,
// pointer-entered surface, modifier state, and key-repeat config.
type Seat struct {
	remote *remote.Client

	keyboardFocus       *Surface
	keyboardFocusClient *Client
	pointerEntered      *Surface
	pointerEnteredClient *Client

	modsDepressed, modsLatched, modsLocked, group uint32

	repeatRate, repeatDelay int32
}

func NewSeat(rc *remote.Client) *Seat {
	return &Seat{remote: rc, repeatRate: 25, repeatDelay: 600}
}

// SetRepeatInfo updates key-repeat rate/delay, normally re-sourced from
// config on reload (spec.md §4.3 "Policy").
func (s *Seat) SetRepeatInfo(rate, delay int32) {
	s.repeatRate, s.repeatDelay = rate, delay
}

func (s *Seat) RepeatInfo() (rate, delay int32) { return s.repeatRate, s.repeatDelay }

// KeyboardFocus returns the client owning the keyboard-focused surface,
// or nil.
func (s *Seat) KeyboardFocus() *Client { return s.keyboardFocusClient }

func (s *Seat) PointerFocusClient() *Client { return s.pointerEnteredClient }

// FocusKeyboard asserts the invariant from spec.md §3 "Seat": enter/leave
// must be strictly paired and no two surfaces hold keyboard focus at
// once. Callers (internal/input) must have already sent any pending
// leave to the old focus before calling this.
func (s *Seat) FocusKeyboard(c *Client, surf *Surface) error {
	if s.keyboardFocus != nil && s.keyboardFocus != surf {
		return fmt.Errorf("seat: keyboard focus change requested without prior leave")
	}
	s.keyboardFocus = surf
	s.keyboardFocusClient = c
	return nil
}

// ClearKeyboardFocus drops keyboard focus, e.g. when the focused
// client's surface is destroyed (spec.md §7 "focused surface destroyed
// mid-event" is a panic-worthy invariant violation if reached any other
// way; disconnect is the one sanctioned path).
func (s *Seat) ClearKeyboardFocus() {
	s.keyboardFocus = nil
	s.keyboardFocusClient = nil
}

func (s *Seat) SetPointerEntered(c *Client, surf *Surface) {
	s.pointerEntered = surf
	s.pointerEnteredClient = c
}

func (s *Seat) ClearPointerFocus() {
	s.pointerEntered = nil
	s.pointerEnteredClient = nil
}

func (s *Seat) PointerEntered() *Surface { return s.pointerEntered }
