package server

import (
	"image"
	"testing"
)

func TestBufferRefUnrefBalance(t *testing.T) {
	b, remote := newTestBuffer()

	b.Ref()
	b.Ref()
	b.Unref()
	if remote.destroyed {
		t.Fatal("remote twin must not be destroyed while refcount > 0")
	}
	b.Unref()
	if remote.destroyed {
		t.Fatal("remote twin must not be destroyed on refcount 0 unless also MarkDestroyed")
	}
}

func TestBufferUnrefUnderflowPanics(t *testing.T) {
	b, _ := newTestBuffer()

	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic on refcount underflow")
		}
	}()
	b.Unref()
}

func TestBufferDoubleDestroyPanics(t *testing.T) {
	b, _ := newTestBuffer()
	b.MarkDestroyed()

	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic on double destroy")
		}
	}()
	b.MarkDestroyed()
}

func TestBufferMarkDestroyedFreesOnlyAtRefcountZero(t *testing.T) {
	b, remote := newTestBuffer()
	b.Ref()

	b.MarkDestroyed()
	if remote.destroyed {
		t.Fatal("destroyed guest handle with an outstanding ref must not free the remote twin yet")
	}

	b.Unref()
	if !remote.destroyed {
		t.Fatal("dropping the last ref on an already-destroyed buffer must free the remote twin")
	}
}

func TestBufferUnrefFreesRemoteWhenAlreadyDestroyed(t *testing.T) {
	b, remote := newTestBuffer()
	b.Ref()
	b.MarkDestroyed()
	b.Unref()

	if !remote.destroyed {
		t.Fatal("expected remote twin freed once the last ref drops past a prior MarkDestroyed")
	}
}

func TestBufferHandleRemoteReleaseFiresOnGuestReleaseOnce(t *testing.T) {
	b, _ := newTestBuffer()
	b.releasePending = true

	calls := 0
	b.onGuestRelease = func() { calls++ }

	b.handleRemoteRelease()
	if calls != 1 {
		t.Fatalf("expected onGuestRelease to fire exactly once, got %d", calls)
	}
	if b.releasePending {
		t.Error("handleRemoteRelease must clear releasePending")
	}
	if b.onGuestRelease != nil {
		t.Error("onGuestRelease must be cleared after firing, so a later release doesn't refire it")
	}

	// A second remote release with no new callback installed must not panic
	// or refire the old one.
	b.handleRemoteRelease()
	if calls != 1 {
		t.Fatalf("onGuestRelease refired on a second release, got %d calls", calls)
	}
}

func TestBufferDimsAndKind(t *testing.T) {
	b := &Buffer{Kind: BufferDmabuf, remote: &fakeRemoteBuffer{}, dims: image.Pt(1920, 1080)}
	if b.Kind != BufferDmabuf {
		t.Errorf("got kind %v, want BufferDmabuf", b.Kind)
	}
	if got := b.Dims(); got != image.Pt(1920, 1080) {
		t.Errorf("got dims %v, want (1920,1080)", got)
	}
	if b.Remote() == nil {
		t.Error("Remote() must return the wrapped remote twin")
	}
}
