package server

import (
	"fmt"
	"image"
	"sync"

	"github.com/rajveermalviya/go-wayland/wayland/client"
)

// Facade exposes the fixed set of guest globals advertised to every
// client (spec.md §4.2). Each method is a thin translator: it validates,
// mutates server-side state, and forwards an equivalent request to the
// remote connection.
type Facade struct {
	srv *Server
}

func NewFacade(srv *Server) *Facade {
	return &Facade{srv: srv}
}

// CreateSurface implements wl_compositor.create_surface: creates the
// remote twin first (so the façade never holds a guest surface without
// one), then wraps it.
func (f *Facade) CreateSurface(id uint32, c *Client, version uint32) (*Surface, error) {
	remoteSurf, err := f.srv.Remote.Compositor.CreateSurface()
	if err != nil {
		return nil, fmt.Errorf("facade: create_surface: %w", err)
	}
	s := NewSurface(id, c, remoteSurf, version)
	c.AddSurface(s)
	s.Observe(func(ev SurfaceEvent) {
		switch ev {
		case EventMapped, EventUnmapped, EventDestroyed:
			if f.srv.OnSurfaceChange != nil {
				f.srv.OnSurfaceChange()
			}
		}
	})
	return s, nil
}

// CreateSubsurface implements wl_subcompositor.get_subsurface, assigning
// the Subsurface role (spec.md §3 "Surface" role enum) and forwarding to
// the remote subcompositor against the parent's remote twin.
func (f *Facade) CreateSubsurface(child, parent *Surface) error {
	if err := child.SetRole(RoleSubsurface); err != nil {
		return err
	}
	_, err := f.srv.Remote.Subcompositor.GetSubsurface(child.rawRemote(), parent.rawRemote())
	if err != nil {
		return fmt.Errorf("facade: get_subsurface: %w", err)
	}
	return nil
}

// CreatePool implements wl_shm.create_pool: proxies fd/size to the
// remote, tracking server-side size so Resize can be forwarded exactly
// (spec.md §4.2 "SHM").
func (f *Facade) CreatePool(fd uintptr, size int32) (*ShmPool, error) {
	remotePool, err := f.srv.Remote.Shm.CreatePool(int(fd), size)
	if err != nil {
		return nil, fmt.Errorf("facade: shm.create_pool: %w", err)
	}
	return &ShmPool{remote: remotePool, size: size}, nil
}

// ShmPool mirrors a guest wl_shm_pool, forwarding resize 1:1 and
// recording the pool's current size (spec.md §4.2 "SHM"). It does not
// keep track of the buffers created from it.
type ShmPool struct {
	remote *client.ShmPool
	size   int32
}

// Resize forwards resize exactly, per spec.md §4.2.
func (p *ShmPool) Resize(size int32) error {
	if err := p.remote.Resize(size); err != nil {
		return fmt.Errorf("facade: shm_pool.resize: %w", err)
	}
	p.size = size
	return nil
}

// CreateBuffer creates a buffer that starts out "invalid" (not yet
// validate()-d, spec.md §4.2) until its backing data is known; for SHM
// buffers that is immediate, since offset/stride/format fully determine
// the remote buffer at creation time.
func (p *ShmPool) CreateBuffer(offset, width, height, stride int32, format uint32) (*Buffer, error) {
	remoteBuf, err := p.remote.CreateBuffer(offset, width, height, stride, format)
	if err != nil {
		return nil, fmt.Errorf("facade: shm_pool.create_buffer: %w", err)
	}
	return NewSHMBuffer(remoteBuf, image.Point{X: int(width), Y: int(height)}), nil
}

func (p *ShmPool) Destroy() error {
	return p.remote.Destroy()
}

// XdgWmBase translates xdg_wm_base requests (spec.md §4.2 "xdg_wm_base
// creates toplevels and popups; popups are clipped and positioned
// identically to the request"). The detail floor here is "thin
// translator": it assigns the toplevel and popup roles and nothing more.
// No configure event is ever sent to the guest, and ack_configure is
// read and ignored (dispatchXdgSurface).
type XdgWmBase struct {
	srv *Server
}

func NewXdgWmBase(srv *Server) *XdgWmBase { return &XdgWmBase{srv: srv} }

// GetToplevel assigns the toplevel role and is otherwise a pass-through;
// the host is not asked to create an xdg_toplevel because the remote
// connection only ever sees one on-screen UI-root surface owned by
// internal/gl — guest toplevels are composited, not mapped 1:1 on the
// host (spec.md §4.4 "capture-from-guest-surface via GL texture").
func (x *XdgWmBase) GetToplevel(surf *Surface) error {
	return surf.SetRole(RoleXdgToplevel)
}

// GetPopup assigns the popup role and records the parent/geometry pair
// verbatim; clipping/positioning against that geometry is applied by the
// layout consumer (out of scope, spec.md §1).
func (x *XdgWmBase) GetPopup(surf *Surface, parent *Surface, geometry image.Rectangle) error {
	if err := surf.SetRole(RoleXdgPopup); err != nil {
		return err
	}
	surf.SetPopupInfo(PopupInfo{Parent: parent, Geometry: geometry})
	return nil
}

// DataDevice is a minimal wl_data_device translator (spec.md §4.2,
// "data-device" in the Client record's attribute list). Clipboard
// content mirroring is a thin passthrough of offers; drag-and-drop
// between guest clients is not meaningfully observable by a single
// hosted game process and is therefore not implemented beyond the
// selection-offer path games rely on for paste.
type DataDevice struct {
	client *Client

	mimeTypes []string
}

func NewDataDevice(c *Client) *DataDevice {
	return &DataDevice{client: c}
}

// SetSelection records the guest's offered mime types for the clipboard
// selection it just became the source for (wl_data_device.set_selection).
// There is exactly one selection owner at a time per spec.md §4.2's
// passthrough scope, so a new selection simply replaces the prior one.
func (d *DataDevice) SetSelection(mimeTypes []string) {
	d.mimeTypes = mimeTypes
}

// SelectionMimeTypes reports the mime types most recently offered via
// SetSelection, for a wl_data_offer advertised to other guest clients.
func (d *DataDevice) SelectionMimeTypes() []string {
	return d.mimeTypes
}

// Viewporter passes viewport requests through with per-surface
// remapping, so the guest addresses its own server-side surface while
// the remote viewport object addresses the real on-screen surface
// (spec.md §4.2 "pointer-constraints, relative-pointer, viewporter").
type Viewporter struct {
	srv *Server

	mu        sync.Mutex
	viewports map[uint32]*client.WpViewport
}

func NewViewporter(srv *Server) *Viewporter {
	return &Viewporter{srv: srv, viewports: make(map[uint32]*client.WpViewport)}
}

// viewport creates surf's remote wp_viewport lazily, on first use, and
// reuses it afterward: wp_viewporter.get_viewport is only valid once per
// wl_surface lifetime, so a second get_viewport on the same surface is
// rejected by the remote (and by this map lookup, which finds the
// existing one instead of creating a second).
func (v *Viewporter) viewport(surf *Surface) (*client.WpViewport, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	vp, ok := v.viewports[surf.ID()]
	if ok {
		return vp, nil
	}
	vp, err := v.srv.Remote.Viewporter.GetViewport(surf.rawRemote())
	if err != nil {
		return nil, fmt.Errorf("facade: viewporter.get_viewport: %w", err)
	}
	v.viewports[surf.ID()] = vp
	return vp, nil
}

// SetSource forwards wp_viewport.set_source onto the remote viewport.
func (v *Viewporter) SetSource(surf *Surface, src image.Rectangle) error {
	vp, err := v.viewport(surf)
	if err != nil {
		return err
	}
	const fixedScale = 256
	fx := func(n int) client.Fixed { return client.Fixed(n * fixedScale) }
	if err := vp.SetSource(fx(src.Min.X), fx(src.Min.Y), fx(src.Dx()), fx(src.Dy())); err != nil {
		return fmt.Errorf("facade: viewport.set_source: %w", err)
	}
	return nil
}

// SetDestination forwards wp_viewport.set_destination onto the remote
// viewport.
func (v *Viewporter) SetDestination(surf *Surface, dst image.Point) error {
	vp, err := v.viewport(surf)
	if err != nil {
		return err
	}
	if err := vp.SetDestination(int32(dst.X), int32(dst.Y)); err != nil {
		return fmt.Errorf("facade: viewport.set_destination: %w", err)
	}
	return nil
}

// DestroyViewport tears down surf's remote viewport, if one was ever
// created, in response to wp_viewport.destroy.
func (v *Viewporter) DestroyViewport(surf *Surface) error {
	v.mu.Lock()
	vp, ok := v.viewports[surf.ID()]
	if ok {
		delete(v.viewports, surf.ID())
	}
	v.mu.Unlock()
	if !ok {
		return nil
	}
	return vp.Destroy()
}
