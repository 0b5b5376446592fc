// Package input implements the input router of spec.md §4.3: it receives
// remote pointer/keyboard events, maintains logical focus against
// per-surface view rectangles, applies the remap table, and synthesizes
// guest-side events.
package input

import (
	"image"

	"github.com/tesselslate/waywall-sub001/internal/config"
	"github.com/tesselslate/waywall-sub001/internal/logging"
)

// FocusTarget is anything the router can direct events at: a guest
// surface identified by its id plus the methods needed to emit events.
// Kept as an interface so internal/input does not import internal/server
// (the dependency runs the other way: server owns input's lifecycle).
type FocusTarget interface {
	SurfaceID() uint32
	ViewRect() image.Rectangle
	SendPointerEnter(serial uint32, surfaceX, surfaceY float64)
	SendPointerLeave(serial uint32)
	SendPointerMotion(timeMs uint32, surfaceX, surfaceY float64)
	SendPointerButton(serial, timeMs, button, state uint32)
	SendPointerAxis(timeMs, axis uint32, value float64)
	SendPointerFrame()
	SendKey(serial, timeMs, keycode, state uint32)
	SendModifiers(serial, depressed, latched, locked, group uint32)
}

// SerialSource hands out ever-increasing serials for synthetic events.
type SerialSource interface {
	NextSerial() uint32
}

// Router tracks logical pointer position, the currently entered/focused
// surface, and pressed-keycode state, and applies the remap table before
// forwarding to the guest seat (spec.md §4.3).
type Router struct {
	serials SerialSource
	log     *logging.Logger

	targets []FocusTarget // candidate view rectangles, in z-order (topmost first)

	pos     image.Point
	entered FocusTarget

	pressedSrc map[uint32]uint32 // source keycode -> destination keycode actually sent, per entered surface
	mods       [4]uint32         // depressed, latched, locked, group

	remaps []config.RemapEntry
}

func NewRouter(serials SerialSource) *Router {
	return &Router{
		serials:    serials,
		log:        logging.New("input"),
		pressedSrc: make(map[uint32]uint32),
	}
}

// SetTargets replaces the candidate focus surfaces; hitTest tries them in
// the given order and the first match wins. cmd/waywall supplies
// Server.FocusTargets whenever a surface maps, unmaps or is destroyed.
func (r *Router) SetTargets(targets []FocusTarget) {
	r.targets = targets
}

// SetRemaps installs a new remap table, e.g. on config reload.
func (r *Router) SetRemaps(remaps []config.RemapEntry) {
	r.remaps = remaps
}

// hitTest returns the topmost target whose view rectangle contains p.
func (r *Router) hitTest(p image.Point) FocusTarget {
	for _, t := range r.targets {
		if p.In(t.ViewRect()) {
			return t
		}
	}
	return nil
}

// PointerMotion updates the logical pointer position and performs the
// enter/leave transition described in spec.md §4.3 "Policy": leaving the
// current surface's rectangle sends leave to the old target and enter to
// the new one with surface-local coordinates, flushing pending key
// up-events first (spec.md §4.3 "Cancellation").
func (r *Router) PointerMotion(timeMs uint32, newPos image.Point) {
	r.pos = newPos
	target := r.hitTest(newPos)

	if target != r.entered {
		r.transferFocus(target)
	}
	if r.entered != nil {
		rect := r.entered.ViewRect()
		lx := float64(newPos.X - rect.Min.X)
		ly := float64(newPos.Y - rect.Min.Y)
		r.entered.SendPointerMotion(timeMs, lx, ly)
	}
}

// transferFocus flushes pending key up-events to the old surface, sends
// leave, then enter to the new target (spec.md §4.3, §5 "A focus change
// always flushes pending up-events before the new enter").
func (r *Router) transferFocus(target FocusTarget) {
	if r.entered != nil {
		r.flushPressedKeys(r.entered)
		r.entered.SendPointerLeave(r.serials.NextSerial())
	}
	r.entered = target
	if target != nil {
		rect := target.ViewRect()
		lx := float64(r.pos.X - rect.Min.X)
		ly := float64(r.pos.Y - rect.Min.Y)
		target.SendPointerEnter(r.serials.NextSerial(), lx, ly)
	}
}

// flushPressedKeys sends a synthetic up for every currently-pressed
// source key, in map iteration order (order across distinct keys is
// unconstrained by spec.md §8 property 5; only "before the leave"
// matters).
func (r *Router) flushPressedKeys(target FocusTarget) {
	for srcKey, dstKey := range r.pressedSrc {
		target.SendKey(r.serials.NextSerial(), 0, dstKey, 0 /* released */)
		delete(r.pressedSrc, srcKey)
	}
}

// KeyEvent resolves keycode against the remap table and forwards to the
// currently focused surface, or consumes it if the remap binds to an
// action handled by the surrounding system (spec.md §4.3 "Policy").
func (r *Router) KeyEvent(timeMs, keycode, state uint32, pressed bool) {
	entry, ok := r.resolveRemap(keycode)
	if !ok {
		// No matching remap: forward unchanged.
		r.forwardKey(timeMs, keycode, keycode, state, pressed)
		return
	}
	if !entry.HasDst {
		// Binding to an internal action: consumed, not forwarded.
		return
	}
	r.forwardKey(timeMs, keycode, entry.DstKeycode, state, pressed)
}

func (r *Router) forwardKey(timeMs, srcKey, dstKey, state uint32, pressed bool) {
	if r.entered == nil {
		return
	}
	if pressed {
		r.pressedSrc[srcKey] = dstKey
	} else {
		delete(r.pressedSrc, srcKey)
	}
	r.entered.SendKey(r.serials.NextSerial(), timeMs, dstKey, state)
}

// ButtonEvent follows the same remap logic as KeyEvent (spec.md §4.3
// "A button event follows the same remap logic").
func (r *Router) ButtonEvent(timeMs, button, state uint32, pressed bool) {
	entry, ok := r.resolveRemap(button)
	if !ok {
		r.forwardButton(timeMs, button, state)
		return
	}
	if !entry.HasDst {
		return
	}
	r.forwardButton(timeMs, entry.DstKeycode, state)
}

func (r *Router) forwardButton(timeMs, button, state uint32) {
	if r.entered == nil {
		return
	}
	r.entered.SendPointerButton(r.serials.NextSerial(), timeMs, button, state)
}

// resolveRemap looks up code against the active modifier mask, with
// wildcard-modifier remaps matching any modifier set (spec.md §4.3).
func (r *Router) resolveRemap(code uint32) (config.RemapEntry, bool) {
	depressed := r.mods[0]
	for _, e := range r.remaps {
		if e.SrcKeycode != code {
			continue
		}
		if e.WildcardMods || e.SrcModifiers == depressed {
			return e, true
		}
	}
	return config.RemapEntry{}, false
}

// Modifiers updates the tracked modifier mask and forwards unchanged to
// the focused surface (remaps only apply to keys/buttons, not the
// modifier state itself).
func (r *Router) Modifiers(depressed, latched, locked, group uint32) {
	r.mods = [4]uint32{depressed, latched, locked, group}
	if r.entered != nil {
		r.entered.SendModifiers(r.serials.NextSerial(), depressed, latched, locked, group)
	}
}

// AxisEvent and FrameEvent are simple passthroughs; axis values are not
// remapped by spec.md §4.3.
func (r *Router) AxisEvent(timeMs, axis uint32, value float64) {
	if r.entered != nil {
		r.entered.SendPointerAxis(timeMs, axis, value)
	}
}

func (r *Router) FrameEvent() {
	if r.entered != nil {
		r.entered.SendPointerFrame()
	}
}
