// Package remote is the compositor's single connection to the host
// Wayland compositor (spec.md §2 "Remote client", §4.1). It tracks the
// host globals the guest protocol façade needs to translate against:
// wl_compositor, wl_subcompositor, wl_seat, wl_shm, linux-dmabuf,
// pointer-constraints, relative-pointer, and viewporter.
//
// Follows the same connect / register-globals / display.Sync startup
// sequence used to bootstrap a Wayland client connection in general.
package remote

import (
	"fmt"
	"image"
	"log"
	"sync/atomic"

	"github.com/rajveermalviya/go-wayland/wayland/client"

	"github.com/tesselslate/waywall-sub001/internal/logging"
)

// Client owns the single connection to the host compositor. Every
// protocol object created here is owned exactly once by some guest-side
// resource (spec.md §9 design notes: "pure-owned-by-server").
type Client struct {
	Conn     *client.Connection
	Display  *client.Display
	Registry *client.Registry

	Compositor    *client.Compositor
	Subcompositor *client.Subcompositor
	Shm           *client.Shm
	Seat          *client.Seat
	Output        *client.Output
	Viewporter    *client.WpViewporter

	// Pointer/Keyboard are requested eagerly once the seat global is
	// bound; spec.md §1 non-goals rule out multi-seat and dynamic
	// capability renegotiation, so this core does not track
	// wl_seat.capabilities before requesting them.
	Pointer  *client.Pointer
	Keyboard *client.Keyboard

	// Extension globals tracked by numeric name only: these protocols
	// are per-surface-object factories the façade packages
	// (internal/server) bind against lazily, except wp_viewporter which
	// is a singleton manager bound eagerly above.
	DmabufName             uint32
	PointerConstraintsName uint32
	RelativePointerName    uint32

	monOffset image.Point
	monSize   image.Point

	log      *logging.Logger
	serial   atomic.Uint32
}

// Connect dials the host compositor at wlDisplay (empty string = default
// WAYLAND_DISPLAY resolution, matching client.Connect's own behavior).
func Connect(wlDisplay string) (*Client, error) {
	conn, err := client.Connect(wlDisplay)
	if err != nil {
		return nil, fmt.Errorf("remote: connect to host compositor: %w", err)
	}

	c := &Client{
		Conn: conn,
		log:  logging.New("remote"),
	}

	c.Display = client.NewDisplay(conn)
	c.Display.SetErrorHandler(func(ev client.DisplayErrorEvent) {
		log.Fatalf("[remote] host display error on %v: [%d] %s", ev.ObjectId, ev.Code, ev.Message)
	})

	c.Registry, err = c.Display.GetRegistry()
	if err != nil {
		return nil, fmt.Errorf("remote: get_registry: %w", err)
	}
	c.Registry.SetGlobalHandler(c.handleGlobal)

	if err := c.roundtrip(); err != nil {
		return nil, fmt.Errorf("remote: initial roundtrip: %w", err)
	}

	if c.Compositor == nil || c.Shm == nil || c.Seat == nil {
		return nil, fmt.Errorf("remote: host compositor is missing a required global (compositor/shm/seat)")
	}

	c.Pointer, err = c.Seat.GetPointer()
	if err != nil {
		return nil, fmt.Errorf("remote: seat.get_pointer: %w", err)
	}
	c.Keyboard, err = c.Seat.GetKeyboard()
	if err != nil {
		return nil, fmt.Errorf("remote: seat.get_keyboard: %w", err)
	}

	return c, nil
}

// handleGlobal binds every global the façade or GL surface might need.
// Unrecognized globals are ignored.
func (c *Client) handleGlobal(ev client.RegistryGlobalEvent) {
	switch ev.Interface {
	case "wl_compositor":
		c.Compositor = client.NewCompositor(c.Conn)
		_ = c.Registry.Bind(ev.Name, ev.Interface, ev.Version, c.Compositor)
	case "wl_subcompositor":
		c.Subcompositor = client.NewSubcompositor(c.Conn)
		_ = c.Registry.Bind(ev.Name, ev.Interface, ev.Version, c.Subcompositor)
	case "wl_shm":
		c.Shm = client.NewShm(c.Conn)
		_ = c.Registry.Bind(ev.Name, ev.Interface, ev.Version, c.Shm)
	case "wl_seat":
		c.Seat = client.NewSeat(c.Conn)
		_ = c.Registry.Bind(ev.Name, ev.Interface, ev.Version, c.Seat)
	case "wl_output":
		c.Output = client.NewOutput(c.Conn)
		c.Output.SetGeometryHandler(func(ev client.OutputGeometryEvent) {
			c.monOffset = image.Point{X: int(ev.X), Y: int(ev.Y)}
		})
		c.Output.SetModeHandler(func(ev client.OutputModeEvent) {
			c.monSize = image.Point{X: int(ev.Width), Y: int(ev.Height)}
		})
		_ = c.Registry.Bind(ev.Name, ev.Interface, ev.Version, c.Output)
	case "zwp_linux_dmabuf_v1":
		c.DmabufName = ev.Name
	case "zwp_pointer_constraints_v1":
		c.PointerConstraintsName = ev.Name
	case "zwp_relative_pointer_manager_v1":
		c.RelativePointerName = ev.Name
	case "wp_viewporter":
		c.Viewporter = client.NewWpViewporter(c.Conn)
		_ = c.Registry.Bind(ev.Name, ev.Interface, ev.Version, c.Viewporter)
	}
}

// roundtrip blocks until every queued request (including any binds just
// issued from handleGlobal) has been processed by the host, via
// display.Sync. This is one of the only two blocking points the whole
// core allows (spec.md §5 "Suspension points").
func (c *Client) roundtrip() error {
	done := make(chan struct{})
	cb, err := c.Display.Sync()
	if err != nil {
		return err
	}
	cb.SetDoneHandler(func(client.CallbackDoneEvent) {
		close(done)
	})
	for {
		if err := c.Conn.Dispatch(); err != nil {
			return err
		}
		select {
		case <-done:
			return nil
		default:
		}
	}
}

// Monitor returns the host output geometry, used by the GL surface to
// size the on-screen window (spec.md §4.4).
func (c *Client) Monitor() image.Rectangle {
	return image.Rectangle{Min: c.monOffset, Max: c.monOffset.Add(c.monSize)}
}

// Fd returns the host connection's file descriptor, for registration
// with internal/loop's epoll reactor so host events are pumped by the
// same single-threaded reactor as everything else (spec.md §5
// "Scheduling model") instead of a dedicated blocking goroutine.
func (c *Client) Fd() (int, error) {
	return c.Conn.Fd()
}

// Dispatch processes any host messages already queued or immediately
// readable on the connection. Called from the reactor each time Fd() is
// readable.
func (c *Client) Dispatch() error {
	return c.Conn.Dispatch()
}

// NextSerial hands out monotonically increasing serials for synthetic
// guest-side events the façade originates itself (e.g. enter/leave not
// directly triggered by a host event).
func (c *Client) NextSerial() uint32 {
	return c.serial.Add(1)
}

// Close tears down the host connection. Called only at core shutdown;
// every remote object must already be destroyed by its guest-side owner.
func (c *Client) Close() error {
	return c.Conn.Close()
}
