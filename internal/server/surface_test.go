package server

import (
	"image"
	"testing"

	"github.com/rajveermalviya/go-wayland/wayland/client"

	"github.com/tesselslate/waywall-sub001/internal/logging"
)

// fakeRemoteBuffer/fakeRemoteCallback/fakeRemoteSurface stand in for the
// liveBuffer/liveSurface adapters and the *client.Callback that
// liveSurface.Frame returns, so the five-step commit
// pipeline (spec.md §4.1) can run without a live host connection.
type fakeRemoteBuffer struct {
	destroyed bool
}

func (f *fakeRemoteBuffer) Destroy() error {
	f.destroyed = true
	return nil
}

type fakeRemoteCallback struct {
	done func(client.CallbackDoneEvent)
}

func (f *fakeRemoteCallback) SetDoneHandler(fn func(client.CallbackDoneEvent)) {
	f.done = fn
}

type fakeRemoteSurface struct {
	attached         remoteBuffer
	attachX, attachY int32
	damages          []image.Rectangle
	bufferDamages    []image.Rectangle
	frames           []*fakeRemoteCallback
	commits          int
	destroyed        bool
	bufferScale      int32
	bufferTransform  int32
}

func (f *fakeRemoteSurface) Attach(buf remoteBuffer, x, y int32) error {
	f.attached = buf
	f.attachX, f.attachY = x, y
	return nil
}

func (f *fakeRemoteSurface) Damage(x, y, w, h int32) error {
	f.damages = append(f.damages, image.Rect(int(x), int(y), int(x+w), int(y+h)))
	return nil
}

func (f *fakeRemoteSurface) DamageBuffer(x, y, w, h int32) error {
	f.bufferDamages = append(f.bufferDamages, image.Rect(int(x), int(y), int(x+w), int(y+h)))
	return nil
}

func (f *fakeRemoteSurface) Frame() (remoteCallback, error) {
	cb := &fakeRemoteCallback{}
	f.frames = append(f.frames, cb)
	return cb, nil
}

func (f *fakeRemoteSurface) Commit() error { f.commits++; return nil }

func (f *fakeRemoteSurface) Destroy() error { f.destroyed = true; return nil }

func (f *fakeRemoteSurface) SetBufferScale(scale int32) error {
	f.bufferScale = scale
	return nil
}

func (f *fakeRemoteSurface) SetBufferTransform(t int32) error {
	f.bufferTransform = t
	return nil
}

func newTestSurface(id uint32, version uint32) (*Surface, *fakeRemoteSurface) {
	remote := &fakeRemoteSurface{}
	s := &Surface{
		id:      id,
		remote:  remote,
		version: version,
		pending: freshState(),
		current: freshState(),
		log:     logging.New("surface"),
	}
	return s, remote
}

func newTestBuffer() (*Buffer, *fakeRemoteBuffer) {
	remote := &fakeRemoteBuffer{}
	b := &Buffer{Kind: BufferSHM, remote: remote, dims: image.Pt(4, 4)}
	return b, remote
}

func TestSurfaceCommitRunsAllFiveSteps(t *testing.T) {
	s, remote := newTestSurface(1, 5)
	buf, _ := newTestBuffer()

	if err := s.AttachBuffer(buf, 0, 0); err != nil {
		t.Fatalf("AttachBuffer: %v", err)
	}
	s.Damage(image.Rect(0, 0, 2, 2))
	s.DamageBuffer(image.Rect(1, 1, 3, 3))

	var fired uint32
	s.AddFrameCallback(42, func(ts uint32) { fired = ts })

	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if remote.attached != buf.Remote() {
		t.Errorf("attach step: remote got %v, want buffer's remote twin", remote.attached)
	}
	if len(remote.damages) != 1 || remote.damages[0] != image.Rect(0, 0, 2, 2) {
		t.Errorf("damage step: got %v", remote.damages)
	}
	if len(remote.bufferDamages) != 1 || remote.bufferDamages[0] != image.Rect(1, 1, 3, 3) {
		t.Errorf("damage_buffer step: got %v", remote.bufferDamages)
	}
	if len(remote.frames) != 1 {
		t.Fatalf("frame step: expected one remote frame request, got %d", len(remote.frames))
	}
	if remote.commits != 1 {
		t.Errorf("commit step: got %d commits, want 1", remote.commits)
	}

	remote.frames[0].done(client.CallbackDoneEvent{CallbackData: 9001})
	if fired != 9001 {
		t.Errorf("frame callback did not fire with host timestamp, got %d", fired)
	}

	if !s.Mapped() {
		t.Error("surface should be mapped after committing a non-nil buffer")
	}
}

func TestSurfaceCommitMapUnmapTransitions(t *testing.T) {
	s, _ := newTestSurface(1, 5)
	buf, _ := newTestBuffer()

	var events []SurfaceEvent
	s.Observe(func(ev SurfaceEvent) { events = append(events, ev) })

	if err := s.AttachBuffer(buf, 0, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Commit(); err != nil {
		t.Fatal(err)
	}
	if !s.Mapped() {
		t.Fatal("expected mapped after attaching a buffer")
	}

	if err := s.AttachBuffer(nil, 0, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Commit(); err != nil {
		t.Fatal(err)
	}
	if s.Mapped() {
		t.Fatal("expected unmapped after attaching nil")
	}

	want := []SurfaceEvent{EventCommit, EventMapped, EventCommit, EventUnmapped}
	if len(events) != len(want) {
		t.Fatalf("got events %v, want %v", events, want)
	}
	for i, ev := range want {
		if events[i] != ev {
			t.Errorf("event %d: got %v, want %v", i, events[i], ev)
		}
	}
}

func TestSurfaceAttachNonZeroOffsetIsProtocolErrorSinceV5(t *testing.T) {
	s, _ := newTestSurface(1, 5)
	buf, _ := newTestBuffer()

	err := s.AttachBuffer(buf, 3, 0)
	if err == nil {
		t.Fatal("expected a protocol error for nonzero offset at version >= 5")
	}
	perr, ok := err.(*ProtocolError)
	if !ok {
		t.Fatalf("expected *ProtocolError, got %T: %v", err, err)
	}
	if perr.Code != ErrInvalidOffset {
		t.Errorf("got code %v, want ErrInvalidOffset", perr.Code)
	}
	if buf.refcount != 0 {
		t.Errorf("rejected attach must not have taken a reference, got refcount %d", buf.refcount)
	}
}

func TestSurfaceAttachNonZeroOffsetTerminatesClientBeforeV5(t *testing.T) {
	s, _ := newTestSurface(1, 4)
	buf, _ := newTestBuffer()

	err := s.AttachBuffer(buf, 3, 0)
	if err == nil {
		t.Fatal("expected an error for nonzero offset below version 5")
	}
	if _, ok := err.(*ProtocolError); ok {
		t.Errorf("below version 5 the error must be a plain one that terminates the client, got *ProtocolError: %v", err)
	}
}

func TestSurfaceDestroyReleasesPendingAndCurrentBuffers(t *testing.T) {
	s, remote := newTestSurface(1, 5)
	buf, bufRemote := newTestBuffer()

	if err := s.AttachBuffer(buf, 0, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Commit(); err != nil {
		t.Fatal(err)
	}
	if buf.refcount != 1 {
		t.Fatalf("expected refcount 1 after commit, got %d", buf.refcount)
	}

	buf2, _ := newTestBuffer()
	if err := s.AttachBuffer(buf2, 0, 0); err != nil {
		t.Fatal(err)
	}
	// buf2 is pending, buf is current: Destroy must unref both.
	if err := s.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if !remote.destroyed {
		t.Error("expected remote surface to be destroyed")
	}
	buf.MarkDestroyed()
	if !bufRemote.destroyed {
		t.Error("current buffer should have reached refcount 0 and freed its remote twin")
	}
}
