package server

import (
	"fmt"
	"image"

	"github.com/rajveermalviya/go-wayland/wayland/client"

	"github.com/tesselslate/waywall-sub001/internal/pool"
)

// BufferKind distinguishes the three buffer variants of spec.md §3.
type BufferKind int

const (
	BufferSHM BufferKind = iota
	BufferDmabuf
	BufferInternal
)

// Buffer wraps a guest wl_buffer (or an internally-synthesized one) and its
// remote twin. Reference-counted by every pending/current surface state
// that points at it (spec.md §3 "Buffer" invariant).
type Buffer struct {
	Kind BufferKind

	remote remoteBuffer // owning reference to the remote wl_buffer
	dims   image.Point

	refcount       int
	destroyed      bool
	releasePending bool

	// poolSlot is set only for BufferInternal buffers, so free can
	// deref the shared pool slot.
	poolSlot *pool.Slot
	poolRef  *pool.Pool

	// onGuestRelease, when non-nil, is invoked exactly once per attach
	// cycle when the host signals release and the guest still holds the
	// handle (spec.md §5 "Buffer release -> guest release").
	onGuestRelease func()
}

// NewSHMBuffer wraps a pool-backed guest buffer once its remote twin has
// been created (validated, per spec.md §4.2 "buffers ... are tagged
// invalid until validate()-d").
func NewSHMBuffer(remote *client.Buffer, dims image.Point) *Buffer {
	b := &Buffer{Kind: BufferSHM, remote: &liveBuffer{b: remote}, dims: dims}
	remote.SetReleaseHandler(func(client.BufferReleaseEvent) {
		b.handleRemoteRelease()
	})
	return b
}

// NewDmabufBuffer wraps a dmabuf-backed guest buffer.
func NewDmabufBuffer(remote *client.Buffer, dims image.Point) *Buffer {
	b := &Buffer{Kind: BufferDmabuf, remote: &liveBuffer{b: remote}, dims: dims}
	remote.SetReleaseHandler(func(client.BufferReleaseEvent) {
		b.handleRemoteRelease()
	})
	return b
}

// NewInternalBuffer wraps a pool-owned solid-color or decoded-image
// buffer. The pool slot is derefed when the buffer is freed, not on release (internal
// buffers are never guest-owned).
func NewInternalBuffer(remote *client.Buffer, dims image.Point, p *pool.Pool, slot *pool.Slot) *Buffer {
	return &Buffer{Kind: BufferInternal, remote: &liveBuffer{b: remote}, dims: dims, poolRef: p, poolSlot: slot}
}

func (b *Buffer) handleRemoteRelease() {
	b.releasePending = false
	// Invariant: a buffer whose remote twin signaled release is not
	// re-sent before the guest re-attaches it. We only clear state here;
	// re-attachment is driven by the next commit, which creates a fresh
	// attach on the remote surface.
	if b.onGuestRelease != nil && !b.destroyed {
		cb := b.onGuestRelease
		b.onGuestRelease = nil
		cb()
	}
}

// Remote returns the remote wl_buffer twin for attach/damage translation.
func (b *Buffer) Remote() remoteBuffer { return b.remote }

// Dims reports the buffer's opaque dimensions.
func (b *Buffer) Dims() image.Point { return b.dims }

// Ref increments the reference count. Called once per pending/current
// surface state referencing this buffer.
func (b *Buffer) Ref() {
	b.refcount++
}

// Unref decrements the reference count and destroys the buffer's remote
// twin once it reaches zero and the guest handle is gone (spec.md §3
// "Buffer" lifecycle). Destroying twice, or unreffing below zero, is a
// core invariant violation and panics (spec.md §7 "Propagation policy").
func (b *Buffer) Unref() {
	if b.refcount <= 0 {
		panic("server: buffer refcount underflow")
	}
	b.refcount--
	if b.refcount == 0 && b.destroyed {
		b.free()
	}
}

// MarkDestroyed records that the guest has destroyed its wl_buffer
// handle. The remote twin is only freed once refcount also reaches zero.
func (b *Buffer) MarkDestroyed() {
	if b.destroyed {
		panic("server: double destroy of buffer")
	}
	b.destroyed = true
	if b.refcount == 0 {
		b.free()
	}
}

func (b *Buffer) free() {
	if b.remote != nil {
		if err := b.remote.Destroy(); err != nil {
			// Destroying an already-gone remote object is a protocol
			// bug in this core, not a guest error; surface it loudly.
			panic(fmt.Sprintf("server: destroy remote buffer: %v", err))
		}
		b.remote = nil
	}
	if b.poolRef != nil && b.poolSlot != nil {
		b.poolRef.Deref(b.poolSlot)
		b.poolSlot = nil
	}
}
