// Package server implements the guest-facing Wayland objects: the
// surface/buffer state machine (spec.md §4.1), the guest protocol façade
// (§4.2), the seat singleton (§3 "Seat"), and the per-client bookkeeping
// that ties guest wire connections to remote protocol objects.
package server

import (
	"fmt"
	"image"
	"sync"

	"github.com/tesselslate/waywall-sub001/internal/input"
	"github.com/tesselslate/waywall-sub001/internal/logging"
	"github.com/tesselslate/waywall-sub001/internal/remote"
	"github.com/tesselslate/waywall-sub001/internal/wire"
)

// displayObjectID is the implicit id every Wayland connection's wl_display
// singleton is bound to before any request is ever sent (wire protocol
// convention, not negotiated).
const displayObjectID = 1

// Client is one hosted Wayland client's bookkeeping (spec.md §3 "Client
// record"). Destroying a client destroys all its surfaces in protocol
// order before closing the wire connection.
type Client struct {
	conn *wire.Conn
	srv  *Server

	mu       sync.Mutex
	surfaces map[uint32]*Surface
	nextID   uint32 // server-allocated ids for objects created on behalf of the guest

	// kinds tags every live object id this client has bound or been
	// handed, so dispatch can route a request by object id alone
	// (spec.md §4.2's façade is organized by interface, not by id, but
	// the wire only ever gives us an id).
	kinds map[uint32]objKind
	// versions records the bound protocol version of every global bound
	// through wl_registry and of every wl_surface, which takes its
	// wl_compositor's version. The wl_surface entries feed the
	// offset-since-version check of spec.md §4.1 step 1.
	versions map[uint32]uint32
	// objSurface relates any per-surface satellite object (xdg_surface,
	// xdg_toplevel, xdg_popup, wp_viewport) back to the wl_surface it was
	// created against.
	objSurface  map[uint32]*Surface
	shmPools    map[uint32]*ShmPool
	buffers     map[uint32]*Buffer
	positioners map[uint32]*positionerState
	// dataSources accumulates each wl_data_source's offered mime types
	// (wl_data_source.offer), consumed by wl_data_device.set_selection.
	dataSources map[uint32][]string
	pointerID    uint32
	keyboardID   uint32
	dataDeviceID uint32

	dataDevice *DataDevice

	log *logging.Logger
}

// objKind tags what a live object id currently is, for dispatch routing
// (spec.md §4.2).
type objKind int

const (
	kindNone objKind = iota
	kindDisplay
	kindRegistry
	kindCompositor
	kindSubcompositor
	kindShm
	kindShmPool
	kindBuffer
	kindRegion
	kindSurface
	kindCallback
	kindSeat
	kindPointer
	kindKeyboard
	kindDataDeviceManager
	kindDataDevice
	kindDataSource
	kindXdgWmBase
	kindXdgSurface
	kindXdgToplevel
	kindXdgPopup
	kindXdgPositioner
	kindViewporter
	kindViewport
	kindSubsurface
	kindTouch
)

// positionerState accumulates an xdg_positioner's anchor rect before it is
// consumed by xdg_surface.get_popup. Gravity and constraint-adjustment are
// not modeled: the (out-of-scope, spec.md §1) layout consumer is the only
// thing that would ever need to re-solve a popup's position against
// output edges, so the anchor rect is recorded and handed over verbatim.
type positionerState struct {
	anchorRect image.Rectangle
	offsetX    int32
	offsetY    int32
}

// geometry returns the positioner's resulting popup rectangle: its anchor
// rect translated by the recorded offset.
func (p *positionerState) geometry() image.Rectangle {
	return p.anchorRect.Add(image.Pt(int(p.offsetX), int(p.offsetY)))
}

// Server multiplexes every connected Client against one remote.Client and
// one Seat (spec.md §3 "Seat" is a singleton shared by every client).
type Server struct {
	Remote *remote.Client
	Seat   *Seat

	Facade     *Facade
	XdgWmBase  *XdgWmBase
	Viewporter *Viewporter

	// OnSurfaceChange, when set, is called after any surface transitions
	// map/unmap/destroy, so cmd/waywall can refresh the input router's
	// candidate target list (spec.md §4.3) without this package importing
	// anything layout-related.
	OnSurfaceChange func()

	mu      sync.Mutex
	clients map[*Client]struct{}
	log     *logging.Logger
}

// FocusTargets returns every currently mapped toplevel/popup surface
// across all connected clients, wrapped as internal/input.FocusTargets.
// Order is unspecified: z-ordering among instances is the (out-of-scope,
// spec.md §1) layout consumer's concern, not this core's.
func (srv *Server) FocusTargets() []input.FocusTarget {
	srv.mu.Lock()
	clients := make([]*Client, 0, len(srv.clients))
	for c := range srv.clients {
		clients = append(clients, c)
	}
	srv.mu.Unlock()

	var targets []input.FocusTarget
	for _, c := range clients {
		c.mu.Lock()
		for _, s := range c.surfaces {
			if s.Mapped() && (s.Role() == RoleXdgToplevel || s.Role() == RoleXdgPopup) {
				targets = append(targets, &SeatFocusTarget{Surf: s})
			}
		}
		c.mu.Unlock()
	}
	return targets
}

// NewServer wires a remote connection, seat, and guest protocol façade
// (spec.md §4.2) into a fresh registry of hosted clients.
func NewServer(rc *remote.Client) *Server {
	srv := &Server{
		Remote:  rc,
		Seat:    NewSeat(rc),
		clients: make(map[*Client]struct{}),
		log:     logging.New("server"),
	}
	srv.Facade = NewFacade(srv)
	srv.XdgWmBase = NewXdgWmBase(srv)
	srv.Viewporter = NewViewporter(srv)
	return srv
}

// Accept registers a newly accepted guest connection and seeds its object
// table with the implicit wl_display singleton.
func (srv *Server) Accept(conn *wire.Conn) *Client {
	c := &Client{
		conn:        conn,
		srv:         srv,
		surfaces:    make(map[uint32]*Surface),
		kinds:       make(map[uint32]objKind),
		versions:    make(map[uint32]uint32),
		objSurface:  make(map[uint32]*Surface),
		shmPools:    make(map[uint32]*ShmPool),
		buffers:     make(map[uint32]*Buffer),
		positioners: make(map[uint32]*positionerState),
		dataSources: make(map[uint32][]string),
		nextID:      0xff000000, // server-allocated id range, mirroring libwayland's convention
		log:         logging.New("client"),
	}
	c.kinds[displayObjectID] = kindDisplay
	srv.mu.Lock()
	srv.clients[c] = struct{}{}
	srv.mu.Unlock()
	return c
}

// AddSurface registers a surface under the client's live set.
func (c *Client) AddSurface(s *Surface) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.surfaces[s.ID()] = s
}

// RemoveSurface drops bookkeeping for a destroyed surface.
func (c *Client) RemoveSurface(id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.surfaces, id)
}

// Conn exposes the wire connection for façade objects that must reply
// directly (e.g. registry binds).
func (c *Client) Conn() *wire.Conn { return c.conn }

// ReadFd returns the guest connection's file descriptor, for registration
// with internal/loop's epoll reactor.
func (c *Client) ReadFd() (int, error) { return c.conn.Fd() }

// HandleReadable reads and dispatches one message from the guest
// connection. Registered as the fd's epoll handler (spec.md §4.2, §5
// "Scheduling model"); epoll is level-triggered, so a client that has
// queued several requests in one syscall's worth of socket buffer is
// simply handed back to us again next iteration rather than drained in a
// loop here. A cleanly closed connection or a fatal protocol violation
// disconnects the client rather than propagating an error up to the
// reactor, since neither is a condition the rest of the core should ever
// see surface as a Run() error.
func (c *Client) HandleReadable() error {
	msg, err := c.conn.ReadMessage()
	if err != nil {
		c.srv.Disconnect(c)
		return nil
	}
	if err := c.dispatch(msg); err != nil {
		if perr, ok := err.(*ProtocolError); ok {
			c.postError(msg.Sender, perr)
			c.srv.Disconnect(c)
			return nil
		}
		c.srv.Terminate(c, err.Error())
		return nil
	}
	return nil
}

// Disconnect destroys every surface belonging to c, unreffing all
// pending/current buffers first (spec.md §4.1 "Buffer invariant": this
// must happen before the surfaces themselves are destroyed, or
// undefined behavior at the host is possible), then closes the
// connection.
func (srv *Server) Disconnect(c *Client) {
	c.mu.Lock()
	surfaces := make([]*Surface, 0, len(c.surfaces))
	for _, s := range c.surfaces {
		surfaces = append(surfaces, s)
	}
	c.mu.Unlock()

	for _, s := range surfaces {
		if s.current.buffer != nil {
			s.current.buffer.Unref()
			s.current.buffer = nil
		}
		if s.pending.buffer != nil {
			s.pending.buffer.Unref()
			s.pending.buffer = nil
		}
	}
	for _, s := range surfaces {
		if !s.destroyed {
			if err := s.Destroy(); err != nil {
				c.log.Printf("destroy surface %d on disconnect: %v", s.ID(), err)
			}
		}
		c.RemoveSurface(s.ID())
	}

	if c == srv.Seat.KeyboardFocus() {
		srv.Seat.ClearKeyboardFocus()
	}
	if c == srv.Seat.PointerFocusClient() {
		srv.Seat.ClearPointerFocus()
	}

	srv.mu.Lock()
	delete(srv.clients, c)
	srv.mu.Unlock()

	if err := c.conn.Close(); err != nil {
		c.log.Printf("close connection: %v", err)
	}
}

// Terminate disconnects a client after a protocol violation that has no
// typed error on this resource version (spec.md §7 "Protocol errors":
// "otherwise terminate the client with an implementation error").
func (srv *Server) Terminate(c *Client, reason string) {
	c.log.Printf("terminating client: %s", reason)
	srv.Disconnect(c)
}

func (c *Client) String() string {
	return fmt.Sprintf("client(%p)", c)
}
