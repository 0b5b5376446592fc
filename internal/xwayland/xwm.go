package xwayland

// XWM is an interface-only placeholder for the window-manager endpoint
// described in spec.md §4.5 "XWM": one xcb connection on fd_xwm[0],
// pairing each mapped X11 window with its Wayland surface via the
// xwayland-shell protocol and relaying focus/activate/fullscreen/
// minimize requests to the surface façade. The xcb side is explicitly
// outside this specification's detail floor (spec.md §4.5), so this
// type only documents the seam a full xcb binding would plug into.
type XWM interface {
	// HandleMapNotify is called when an X11 client maps a top-level
	// window; the implementation creates the paired surface-façade
	// object and requests its xwayland-shell association.
	HandleMapNotify(xid uint32)

	// HandleUnmapNotify tears down the pairing created above.
	HandleUnmapNotify(xid uint32)

	// Close releases the xcb connection.
	Close() error
}
