package server

import (
	"fmt"
	"image"

	"github.com/rajveermalviya/go-wayland/wayland/client"

	"github.com/tesselslate/waywall-sub001/internal/logging"
)

// Role identifies the single protocol role a Surface may take on
// (spec.md §3 "Surface" invariant: at most one role, ever).
type Role int

const (
	RoleNone Role = iota
	RoleXdgToplevel
	RoleXdgPopup
	RoleSubsurface
	RolePointerCursor
	RoleX11
)

// presence bits for the pending state block (spec.md §3).
type presence uint8

const (
	presBuffer presence = 1 << iota
	presDamage
	presBufferDamage
)

// frameCallback is one guest wl_callback awaiting the remote's next
// frame.done (spec.md §4.1 step 4).
type frameCallback struct {
	id uint32
	fn func(timestampMs uint32)
}

// state is one pending or current surface state block (spec.md §3).
type state struct {
	present       presence
	buffer        *Buffer
	bufferX       int32
	bufferY       int32
	damage        []image.Rectangle
	bufferDamage  []image.Rectangle
	frameCallbacks []frameCallback
}

func freshState() state {
	return state{}
}

// offsetSince is the wl_surface request version at which a nonzero
// attach offset becomes a protocol error rather than a silent client
// kill (spec.md §4.1 step 1).
const offsetSince = 5

// Surface is one guest wl_surface plus its commit pipeline (spec.md §4.1).
type Surface struct {
	id     uint32
	client *Client
	remote remoteSurface
	log    *logging.Logger

	version uint32
	role    Role

	pending state
	current state

	mapped    bool
	destroyed bool

	// roleObject is opaque to this package; xdg_toplevel/popup wrappers
	// stash themselves here so transition notifications can be routed
	// back to the role-specific resource (spec.md §4.1 "role-specific
	// events").
	roleObject any

	// title/appID are set by xdg_toplevel.set_title/set_app_id and feed
	// instance identification (spec.md §4.7: "X11 window title / WM_CLASS
	// / the pid's cwd" heuristics).
	title string
	appID string

	windowGeometry image.Rectangle

	// viewRect is the on-screen rectangle this surface currently occupies,
	// assigned by the (out-of-scope, spec.md §1) layout consumer; input
	// routing hit-tests against it (spec.md §4.3).
	viewRect image.Rectangle

	observers []func(SurfaceEvent)
}

// SurfaceEvent is the minimal observer notification set (spec.md §9
// design notes: "observer list keyed by surface handle").
type SurfaceEvent int

const (
	EventCommit SurfaceEvent = iota
	EventMapped
	EventUnmapped
	EventDestroyed
)

// NewSurface wraps a freshly created remote twin. version is the guest's
// negotiated wl_surface protocol version.
func NewSurface(id uint32, c *Client, remote *client.Surface, version uint32) *Surface {
	s := &Surface{
		id:      id,
		client:  c,
		remote:  &liveSurface{s: remote},
		version: version,
		pending: freshState(),
		current: freshState(),
		log:     logging.New("surface"),
	}
	return s
}

// Observe registers a subscriber for commit/map/destroy notifications.
func (s *Surface) Observe(fn func(SurfaceEvent)) {
	s.observers = append(s.observers, fn)
}

func (s *Surface) notify(ev SurfaceEvent) {
	for _, fn := range s.observers {
		fn(ev)
	}
}

// SetRole assigns a role, enforcing spec.md §3's invariant: once
// assigned, a *different* role cannot replace it while that role's
// resource is alive. Re-assigning the *same* role (e.g. a second
// xdg_surface.get_toplevel on an already-toplevel surface) succeeds.
func (s *Surface) SetRole(r Role) error {
	if s.role != RoleNone && s.role != r {
		return fmt.Errorf("surface %d: role already assigned (%v), cannot become %v", s.id, s.role, r)
	}
	s.role = r
	return nil
}

func (s *Surface) Role() Role { return s.role }

// AttachBuffer stages a buffer attach for the next commit. A non-zero
// offset is a client bug: on protocol version >= offsetSince we post
// invalid_offset; otherwise a plain error is returned, on which the
// caller terminates the client (spec.md §4.1 step 1).
func (s *Surface) AttachBuffer(buf *Buffer, x, y int32) error {
	if x != 0 || y != 0 {
		if s.version >= offsetSince {
			return &ProtocolError{Code: ErrInvalidOffset, Message: "wl_surface.attach with non-zero offset"}
		}
		return fmt.Errorf("surface %d: wl_surface.attach with non-zero offset (%d,%d)", s.id, x, y)
	}
	if buf != nil {
		buf.Ref()
	}
	if s.pending.buffer != nil {
		s.pending.buffer.Unref()
	}
	s.pending.buffer = buf
	s.pending.bufferX = x
	s.pending.bufferY = y
	s.pending.present |= presBuffer
	return nil
}

// Damage stages a surface-local damage rectangle.
func (s *Surface) Damage(r image.Rectangle) {
	s.pending.damage = append(s.pending.damage, r)
	s.pending.present |= presDamage
}

// DamageBuffer stages a buffer-local damage rectangle.
func (s *Surface) DamageBuffer(r image.Rectangle) {
	s.pending.bufferDamage = append(s.pending.bufferDamage, r)
	s.pending.present |= presBufferDamage
}

// AddFrameCallback enqueues a guest frame callback to fire on the remote
// surface's next frame.done (spec.md §4.1 step 4).
func (s *Surface) AddFrameCallback(id uint32, fn func(timestampMs uint32)) {
	s.pending.frameCallbacks = append(s.pending.frameCallbacks, frameCallback{id: id, fn: fn})
}

// SetBufferScale validates and forwards buffer scale. Non-positive scale
// is a protocol error (spec.md §4.1 "Error conditions").
func (s *Surface) SetBufferScale(scale int32) error {
	if scale <= 0 {
		return &ProtocolError{Code: ErrInvalidScale, Message: "wl_surface.set_buffer_scale with non-positive scale"}
	}
	return s.remote.SetBufferScale(scale)
}

// SetBufferTransform ignores unknown transforms with a warning, matching
// an NVIDIA userspace driver quirk called out in spec.md §4.1.
func (s *Surface) SetBufferTransform(transform int32) error {
	if transform < 0 || transform > 7 {
		s.log.Warnf("surface %d: ignoring unknown buffer transform %d", s.id, transform)
		return nil
	}
	return s.remote.SetBufferTransform(transform)
}

// Offset ignores a nonzero wl_surface.offset request with a warning, for
// the same reason as SetBufferTransform (spec.md §4.1).
func (s *Surface) Offset(x, y int32) {
	if x != 0 || y != 0 {
		s.log.Warnf("surface %d: ignoring wl_surface.offset(%d,%d)", s.id, x, y)
	}
}

// Commit runs the five-step pipeline of spec.md §4.1 exactly in order.
func (s *Surface) Commit() error {
	p := s.pending
	wasMapped := s.mapped

	// Step 1: buffer attach.
	if p.present&presBuffer != 0 {
		if s.current.buffer != nil {
			s.current.buffer.Unref()
			if !s.current.buffer.destroyed {
				s.current.buffer.releasePending = true
			}
		}
		s.current.buffer = p.buffer
		s.current.bufferX = p.bufferX
		s.current.bufferY = p.bufferY

		var remoteBuf remoteBuffer
		if p.buffer != nil {
			remoteBuf = p.buffer.Remote()
		}
		if err := s.remote.Attach(remoteBuf, 0, 0); err != nil {
			return fmt.Errorf("surface %d: remote attach: %w", s.id, err)
		}
	}

	// Step 2: surface-local damage, in submission order.
	if p.present&presDamage != 0 {
		for _, r := range p.damage {
			if err := s.remote.Damage(int32(r.Min.X), int32(r.Min.Y), int32(r.Dx()), int32(r.Dy())); err != nil {
				return fmt.Errorf("surface %d: remote damage: %w", s.id, err)
			}
		}
	}

	// Step 3: buffer-local damage, in submission order.
	if p.present&presBufferDamage != 0 {
		for _, r := range p.bufferDamage {
			if err := s.remote.DamageBuffer(int32(r.Min.X), int32(r.Min.Y), int32(r.Dx()), int32(r.Dy())); err != nil {
				return fmt.Errorf("surface %d: remote damage_buffer: %w", s.id, err)
			}
		}
	}

	// Step 4: frame callbacks attach to the remote surface's next frame.
	for _, cb := range p.frameCallbacks {
		fn := cb.fn
		remoteCb, err := s.remote.Frame()
		if err != nil {
			return fmt.Errorf("surface %d: remote frame: %w", s.id, err)
		}
		remoteCb.SetDoneHandler(func(ev client.CallbackDoneEvent) {
			fn(ev.CallbackData)
		})
	}

	// Step 5: forward the commit itself.
	if err := s.remote.Commit(); err != nil {
		return fmt.Errorf("surface %d: remote commit: %w", s.id, err)
	}

	s.current.damage = nil
	s.current.bufferDamage = nil
	s.pending = freshState()

	s.mapped = s.current.buffer != nil
	s.notify(EventCommit)
	if s.mapped && !wasMapped {
		s.notify(EventMapped)
	} else if !s.mapped && wasMapped {
		s.notify(EventUnmapped)
	}
	return nil
}

// Destroy releases every buffer reference held by pending/current state
// before freeing the remote surface (spec.md §4.1 "Buffer invariant").
// Must run before any of this surface's buffers are considered free.
func (s *Surface) Destroy() error {
	if s.destroyed {
		panic("server: double destroy of surface")
	}
	if s.pending.buffer != nil {
		s.pending.buffer.Unref()
		s.pending.buffer = nil
	}
	if s.current.buffer != nil {
		s.current.buffer.Unref()
		s.current.buffer = nil
	}
	s.destroyed = true
	s.notify(EventDestroyed)
	return s.remote.Destroy()
}

func (s *Surface) ID() uint32   { return s.id }
func (s *Surface) Mapped() bool { return s.mapped }
func (s *Surface) Remote() remoteSurface { return s.remote }

// rawRemote recovers the concrete generated proxy for façade call sites
// whose arguments are the external client package's own types (e.g.
// wl_subcompositor.get_subsurface's two *client.Surface parameters).
// Panics if remote is not the production liveSurface adapter, which would
// only happen if a test fake leaked into a live call path.
func (s *Surface) rawRemote() *client.Surface {
	return s.remote.(*liveSurface).Raw()
}

// SetTitle/SetAppID record xdg_toplevel.set_title/set_app_id for instance
// identification (spec.md §4.7).
func (s *Surface) SetTitle(title string) { s.title = title }
func (s *Surface) SetAppID(appID string) { s.appID = appID }
func (s *Surface) Title() string         { return s.title }
func (s *Surface) AppID() string         { return s.appID }

// SetWindowGeometry records xdg_surface.set_window_geometry's clip rect.
func (s *Surface) SetWindowGeometry(r image.Rectangle) { s.windowGeometry = r }
func (s *Surface) WindowGeometry() image.Rectangle     { return s.windowGeometry }

// SetViewRect/ViewRect track the on-screen rectangle this surface
// currently occupies, for input hit-testing (spec.md §4.3).
func (s *Surface) SetViewRect(r image.Rectangle) { s.viewRect = r }
func (s *Surface) ViewRect() image.Rectangle     { return s.viewRect }

// SurfaceID satisfies internal/input.FocusTarget.
func (s *Surface) SurfaceID() uint32 { return s.id }

// PopupInfo is the parent/geometry pair xdg_wm_base.get_popup supplies,
// recorded verbatim so the (out-of-scope, spec.md §1) layout consumer can
// read it back without re-deriving it from the wire request.
type PopupInfo struct {
	Parent   *Surface
	Geometry image.Rectangle
}

func (s *Surface) SetPopupInfo(p PopupInfo) { s.roleObject = p }
func (s *Surface) GetPopupInfo() (PopupInfo, bool) {
	p, ok := s.roleObject.(PopupInfo)
	return p, ok
}
