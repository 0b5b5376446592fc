package input

import (
	"image"
	"testing"

	"github.com/tesselslate/waywall-sub001/internal/config"
)

type fakeSerials struct{ n uint32 }

func (f *fakeSerials) NextSerial() uint32 { f.n++; return f.n }

type fakeTarget struct {
	id   uint32
	rect image.Rectangle

	entered bool
	left    bool
	keys    []uint32
	mods    []uint32
}

func (t *fakeTarget) SurfaceID() uint32            { return t.id }
func (t *fakeTarget) ViewRect() image.Rectangle    { return t.rect }
func (t *fakeTarget) SendPointerEnter(s uint32, x, y float64) { t.entered = true }
func (t *fakeTarget) SendPointerLeave(s uint32)               { t.left = true }
func (t *fakeTarget) SendPointerMotion(ms uint32, x, y float64) {}
func (t *fakeTarget) SendPointerButton(s, ms, b, st uint32)     {}
func (t *fakeTarget) SendPointerAxis(ms, axis uint32, v float64) {}
func (t *fakeTarget) SendPointerFrame()                          {}
func (t *fakeTarget) SendKey(s, ms, keycode, state uint32) {
	t.keys = append(t.keys, keycode)
}
func (t *fakeTarget) SendModifiers(s, d, l, lo, g uint32) { t.mods = append(t.mods, d) }

func TestPointerEnterLeavePairing(t *testing.T) {
	a := &fakeTarget{id: 1, rect: image.Rect(0, 0, 100, 100)}
	b := &fakeTarget{id: 2, rect: image.Rect(100, 0, 200, 100)}

	r := NewRouter(&fakeSerials{})
	r.SetTargets([]FocusTarget{a, b})

	r.PointerMotion(0, image.Pt(50, 50))
	if !a.entered || a.left {
		t.Fatalf("expected enter on a, got entered=%v left=%v", a.entered, a.left)
	}

	r.PointerMotion(0, image.Pt(150, 50))
	if !a.left {
		t.Fatalf("expected leave on a before enter on b")
	}
	if !b.entered {
		t.Fatalf("expected enter on b")
	}
}

func TestFocusChangeFlushesPressedKeys(t *testing.T) {
	a := &fakeTarget{id: 1, rect: image.Rect(0, 0, 100, 100)}
	b := &fakeTarget{id: 2, rect: image.Rect(100, 0, 200, 100)}

	r := NewRouter(&fakeSerials{})
	r.SetTargets([]FocusTarget{a, b})
	r.PointerMotion(0, image.Pt(50, 50))

	const keycodeW = 17
	r.KeyEvent(0, keycodeW, 1, true)
	if len(a.keys) != 1 || a.keys[0] != keycodeW {
		t.Fatalf("expected key-down forwarded to a, got %v", a.keys)
	}

	r.PointerMotion(0, image.Pt(150, 50))
	if len(a.keys) != 2 || a.keys[1] != keycodeW {
		t.Fatalf("expected synthetic key-up on a before leave, got %v", a.keys)
	}
	if !a.left {
		t.Fatalf("expected leave on a")
	}
	if !b.entered {
		t.Fatalf("expected enter on b")
	}
}

func TestRemapWildcardModifier(t *testing.T) {
	a := &fakeTarget{id: 1, rect: image.Rect(0, 0, 100, 100)}
	r := NewRouter(&fakeSerials{})
	r.SetTargets([]FocusTarget{a})
	r.SetRemaps([]config.RemapEntry{
		{SrcKeycode: 30, WildcardMods: true, DstKeycode: 99, HasDst: true},
	})
	r.PointerMotion(0, image.Pt(10, 10))

	r.KeyEvent(0, 30, 1, true)
	if len(a.keys) != 1 || a.keys[0] != 99 {
		t.Fatalf("expected remapped keycode 99, got %v", a.keys)
	}
}

func TestRemapConsumedBindingNotForwarded(t *testing.T) {
	a := &fakeTarget{id: 1, rect: image.Rect(0, 0, 100, 100)}
	r := NewRouter(&fakeSerials{})
	r.SetTargets([]FocusTarget{a})
	r.SetRemaps([]config.RemapEntry{
		{SrcKeycode: 1, WildcardMods: true, HasDst: false},
	})
	r.PointerMotion(0, image.Pt(10, 10))

	r.KeyEvent(0, 1, 1, true)
	if len(a.keys) != 0 {
		t.Fatalf("expected consumed binding to not forward, got %v", a.keys)
	}
}
