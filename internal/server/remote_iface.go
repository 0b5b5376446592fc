package server

import "github.com/rajveermalviya/go-wayland/wayland/client"

// remoteBuffer and remoteSurface narrow *client.Buffer/*client.Surface down
// to the methods Surface and Buffer actually call, so the five-step commit
// pipeline (spec.md §4.1) can be exercised in tests against a fake without
// a live host connection. liveBuffer/liveSurface are the only production
// implementations and wrap the real generated proxies.
type remoteBuffer interface {
	Destroy() error
}

type remoteCallback interface {
	SetDoneHandler(fn func(client.CallbackDoneEvent))
}

type remoteSurface interface {
	Attach(buf remoteBuffer, x, y int32) error
	Damage(x, y, width, height int32) error
	DamageBuffer(x, y, width, height int32) error
	Frame() (remoteCallback, error)
	Commit() error
	Destroy() error
	SetBufferScale(scale int32) error
	SetBufferTransform(transform int32) error
}

type liveBuffer struct{ b *client.Buffer }

func (l *liveBuffer) Destroy() error { return l.b.Destroy() }

type liveSurface struct{ s *client.Surface }

// Raw returns the underlying generated proxy, for façade call sites (e.g.
// wl_subcompositor.get_subsurface) whose arguments are concrete external
// types rather than this package's abstraction.
func (l *liveSurface) Raw() *client.Surface { return l.s }

func (l *liveSurface) Attach(buf remoteBuffer, x, y int32) error {
	var cb *client.Buffer
	if lb, ok := buf.(*liveBuffer); ok && lb != nil {
		cb = lb.b
	}
	return l.s.Attach(cb, x, y)
}

func (l *liveSurface) Damage(x, y, width, height int32) error {
	return l.s.Damage(x, y, width, height)
}

func (l *liveSurface) DamageBuffer(x, y, width, height int32) error {
	return l.s.DamageBuffer(x, y, width, height)
}

func (l *liveSurface) Frame() (remoteCallback, error) { return l.s.Frame() }

func (l *liveSurface) Commit() error { return l.s.Commit() }

func (l *liveSurface) Destroy() error { return l.s.Destroy() }

func (l *liveSurface) SetBufferScale(scale int32) error { return l.s.SetBufferScale(scale) }

func (l *liveSurface) SetBufferTransform(t int32) error { return l.s.SetBufferTransform(t) }
