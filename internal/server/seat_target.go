package server

import (
	"image"

	"github.com/tesselslate/waywall-sub001/internal/wire"
)

// wl_pointer/wl_keyboard event opcodes (stable, from wayland.xml).
const (
	evPointerEnter  = 0
	evPointerLeave  = 1
	evPointerMotion = 2
	evPointerButton = 3
	evPointerAxis   = 4
	evPointerFrame  = 5

	evKeyboardEnter     = 1
	evKeyboardLeave     = 2
	evKeyboardKey       = 3
	evKeyboardModifiers = 4
)

// SeatFocusTarget adapts a guest Surface into internal/input.FocusTarget,
// translating synthesized enter/leave/motion/button/key/modifiers events
// into wire events on the surface's owning client connection (spec.md
// §4.3). internal/input never imports internal/server, so this adapter
// is what closes the loop back from the router to the guest.
type SeatFocusTarget struct {
	Surf *Surface
}

func (t *SeatFocusTarget) SurfaceID() uint32         { return t.Surf.SurfaceID() }
func (t *SeatFocusTarget) ViewRect() image.Rectangle { return t.Surf.ViewRect() }

func (t *SeatFocusTarget) send(objID uint32, opcode uint16, w *wire.ArgWriter) {
	if objID == 0 {
		return // client never bound wl_pointer/wl_keyboard
	}
	t.Surf.client.send(objID, opcode, w)
}

func (t *SeatFocusTarget) SendPointerEnter(serial uint32, surfaceX, surfaceY float64) {
	w := (&wire.ArgWriter{}).PutUint32(serial).PutUint32(t.Surf.id).PutFixed(surfaceX).PutFixed(surfaceY)
	t.send(t.Surf.client.pointerID, evPointerEnter, w)
}

func (t *SeatFocusTarget) SendPointerLeave(serial uint32) {
	w := (&wire.ArgWriter{}).PutUint32(serial).PutUint32(t.Surf.id)
	t.send(t.Surf.client.pointerID, evPointerLeave, w)
}

func (t *SeatFocusTarget) SendPointerMotion(timeMs uint32, surfaceX, surfaceY float64) {
	w := (&wire.ArgWriter{}).PutUint32(timeMs).PutFixed(surfaceX).PutFixed(surfaceY)
	t.send(t.Surf.client.pointerID, evPointerMotion, w)
}

func (t *SeatFocusTarget) SendPointerButton(serial, timeMs, button, state uint32) {
	w := (&wire.ArgWriter{}).PutUint32(serial).PutUint32(timeMs).PutUint32(button).PutUint32(state)
	t.send(t.Surf.client.pointerID, evPointerButton, w)
}

func (t *SeatFocusTarget) SendPointerAxis(timeMs, axis uint32, value float64) {
	w := (&wire.ArgWriter{}).PutUint32(timeMs).PutUint32(axis).PutFixed(value)
	t.send(t.Surf.client.pointerID, evPointerAxis, w)
}

func (t *SeatFocusTarget) SendPointerFrame() {
	t.send(t.Surf.client.pointerID, evPointerFrame, &wire.ArgWriter{})
}

func (t *SeatFocusTarget) SendKey(serial, timeMs, keycode, state uint32) {
	w := (&wire.ArgWriter{}).PutUint32(serial).PutUint32(timeMs).PutUint32(keycode).PutUint32(state)
	t.send(t.Surf.client.keyboardID, evKeyboardKey, w)
}

func (t *SeatFocusTarget) SendModifiers(serial, depressed, latched, locked, group uint32) {
	w := (&wire.ArgWriter{}).PutUint32(serial).PutUint32(depressed).PutUint32(latched).PutUint32(locked).PutUint32(group)
	t.send(t.Surf.client.keyboardID, evKeyboardModifiers, w)
}
