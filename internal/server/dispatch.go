package server

import (
	"fmt"
	"image"

	"github.com/tesselslate/waywall-sub001/internal/wire"
)

// Opcodes below are the stable, public request/event numbers from
// wayland.xml, xdg-shell.xml, and viewporter.xml — not invented by this
// core. Only the requests a hosted game client actually exercises
// against this façade (spec.md §4.2) get a case; everything else is
// either an inert no-op (still consuming its wire arguments correctly)
// or, where sending it at all would be a client bug against this core's
// scope, a disconnect.

const (
	reqDisplaySync       = 0
	reqDisplayGetRegistry = 1
	evDisplayError       = 0
	evDisplayDeleteID    = 1
)

const (
	reqRegistryBind = 0
	evRegistryGlobal = 0
)

const (
	reqCompositorCreateSurface = 0
	reqCompositorCreateRegion = 1
)

const (
	reqSubcompositorDestroy      = 0
	reqSubcompositorGetSubsurface = 1
)

const (
	reqShmCreatePool = 0
)

const (
	reqShmPoolCreateBuffer = 0
	reqShmPoolDestroy      = 1
	reqShmPoolResize       = 2
)

const (
	reqBufferDestroy = 0
)

const (
	reqRegionDestroy = 0
)

const (
	reqSurfaceDestroy           = 0
	reqSurfaceAttach            = 1
	reqSurfaceDamage            = 2
	reqSurfaceFrame             = 3
	reqSurfaceSetOpaqueRegion   = 4
	reqSurfaceSetInputRegion    = 5
	reqSurfaceCommit            = 6
	reqSurfaceSetBufferTransform = 7
	reqSurfaceSetBufferScale    = 8
	reqSurfaceDamageBuffer      = 9
	reqSurfaceOffset            = 10
	evCallbackDone              = 0
)

const (
	reqSeatGetPointer  = 0
	reqSeatGetKeyboard = 1
	reqSeatGetTouch    = 2
	reqSeatRelease     = 3
)

const (
	reqPointerSetCursor = 0
	reqPointerRelease   = 1
)

const (
	reqKeyboardRelease = 0
)

const (
	reqDataDeviceManagerCreateDataSource = 0
	reqDataDeviceManagerGetDataDevice    = 1
)

const (
	reqDataDeviceStartDrag     = 0
	reqDataDeviceSetSelection  = 1
	reqDataDeviceRelease       = 2
)

const (
	reqDataSourceOffer   = 0
	reqDataSourceDestroy = 1
)

const (
	reqXdgWmBaseDestroy          = 0
	reqXdgWmBaseCreatePositioner = 1
	reqXdgWmBaseGetXdgSurface    = 2
	reqXdgWmBasePong             = 3
)

const (
	reqXdgSurfaceDestroy            = 0
	reqXdgSurfaceGetToplevel        = 1
	reqXdgSurfaceGetPopup           = 2
	reqXdgSurfaceSetWindowGeometry  = 3
	reqXdgSurfaceAckConfigure       = 4
	evXdgSurfaceConfigure           = 0
)

const (
	reqXdgToplevelDestroy   = 0
	reqXdgToplevelSetParent = 1
	reqXdgToplevelSetTitle  = 2
	reqXdgToplevelSetAppID  = 3
)

const (
	reqXdgPositionerDestroy       = 0
	reqXdgPositionerSetSize       = 1
	reqXdgPositionerSetAnchorRect = 2
	reqXdgPositionerSetOffset     = 6
)

const (
	reqViewporterDestroy    = 0
	reqViewporterGetViewport = 1
)

const (
	reqViewportDestroy          = 0
	reqViewportSetSource         = 1
	reqViewportSetDestination    = 2
)

// supportedGlobal is one entry of the fixed registry this core advertises
// (spec.md §4.2's façade surface). There is no dynamic global add/remove:
// every hosted client sees the same set at connect time.
type supportedGlobal struct {
	Interface string
	Version   uint32
	Kind      objKind
}

var supportedGlobals = []supportedGlobal{
	{"wl_compositor", 5, kindCompositor},
	{"wl_subcompositor", 1, kindSubcompositor},
	{"wl_shm", 1, kindShm},
	{"wl_seat", 8, kindSeat},
	{"wl_data_device_manager", 3, kindDataDeviceManager},
	{"xdg_wm_base", 5, kindXdgWmBase},
	{"wp_viewporter", 1, kindViewporter},
}

// dispatch routes one decoded wire message to the object it targets.
// Object lifetime and role-assignment errors surface as either a typed
// *ProtocolError (posted back to the guest, spec.md §7) or a plain error
// (client termination, spec.md §7 "otherwise terminate the client").
func (c *Client) dispatch(msg *wire.Message) error {
	kind, ok := c.kinds[msg.Sender]
	if !ok {
		return fmt.Errorf("server: request on unknown object %d", msg.Sender)
	}
	r := wire.NewArgReader(msg)

	switch kind {
	case kindDisplay:
		return c.dispatchDisplay(msg.Sender, msg.Opcode, r)
	case kindRegistry:
		return c.dispatchRegistry(msg.Sender, msg.Opcode, r)
	case kindCompositor:
		return c.dispatchCompositor(msg.Sender, msg.Opcode, r)
	case kindSubcompositor:
		return c.dispatchSubcompositor(msg.Sender, msg.Opcode, r)
	case kindShm:
		return c.dispatchShm(msg.Sender, msg.Opcode, r)
	case kindShmPool:
		return c.dispatchShmPool(msg.Sender, msg.Opcode, r)
	case kindBuffer:
		return c.dispatchBuffer(msg.Sender, msg.Opcode, r)
	case kindRegion:
		return c.dispatchRegion(msg.Sender, msg.Opcode, r)
	case kindSurface:
		return c.dispatchSurface(msg.Sender, msg.Opcode, r)
	case kindSeat:
		return c.dispatchSeat(msg.Sender, msg.Opcode, r)
	case kindPointer:
		return c.dispatchPointer(msg.Sender, msg.Opcode, r)
	case kindKeyboard:
		return c.dispatchKeyboard(msg.Sender, msg.Opcode, r)
	case kindDataDeviceManager:
		return c.dispatchDataDeviceManager(msg.Sender, msg.Opcode, r)
	case kindDataDevice:
		return c.dispatchDataDevice(msg.Sender, msg.Opcode, r)
	case kindDataSource:
		return c.dispatchDataSource(msg.Sender, msg.Opcode, r)
	case kindXdgWmBase:
		return c.dispatchXdgWmBase(msg.Sender, msg.Opcode, r)
	case kindXdgSurface:
		return c.dispatchXdgSurface(msg.Sender, msg.Opcode, r)
	case kindXdgToplevel:
		return c.dispatchXdgToplevel(msg.Sender, msg.Opcode, r)
	case kindXdgPopup:
		return c.dispatchXdgPopup(msg.Sender, msg.Opcode, r)
	case kindXdgPositioner:
		return c.dispatchXdgPositioner(msg.Sender, msg.Opcode, r)
	case kindViewporter:
		return c.dispatchViewporter(msg.Sender, msg.Opcode, r)
	case kindViewport:
		return c.dispatchViewport(msg.Sender, msg.Opcode, r)
	case kindSubsurface:
		// set_position/place_above/place_below/set_sync/set_desync carry
		// no ids and are harmless to ignore; only destroy needs to free
		// the object id (spec.md §4.2 scope: wl_subsurface stacking is not
		// modeled beyond get_subsurface's initial parenting).
		if msg.Opcode == 0 {
			delete(c.objSurface, msg.Sender)
			c.deleteID(msg.Sender)
		}
		return nil
	case kindTouch:
		if msg.Opcode == 0 { // release
			c.deleteID(msg.Sender)
		}
		return nil
	default:
		return fmt.Errorf("server: request on object %d with no request handler (kind %d)", msg.Sender, kind)
	}
}

// send writes one event toward the guest on object id.
func (c *Client) send(id uint32, opcode uint16, w *wire.ArgWriter) {
	if err := c.conn.WriteMessage(id, opcode, w.Bytes(), w.Fds()); err != nil {
		c.log.Printf("write event to object %d: %v", id, err)
	}
}

// deleteID frees id in this client's object table and tells the guest it
// may reuse it, per wl_display.delete_id.
func (c *Client) deleteID(id uint32) {
	delete(c.kinds, id)
	delete(c.versions, id)
	delete(c.objSurface, id)
	c.send(displayObjectID, evDisplayDeleteID, (&wire.ArgWriter{}).PutUint32(id))
}

// postError sends wl_display.error against objID (spec.md §7 "Protocol
// errors").
func (c *Client) postError(objID uint32, perr *ProtocolError) {
	w := (&wire.ArgWriter{}).PutUint32(objID).PutUint32(uint32(perr.Code)).PutString(perr.Message)
	c.send(displayObjectID, evDisplayError, w)
}

func (c *Client) dispatchDisplay(id uint32, op uint16, r *wire.ArgReader) error {
	switch op {
	case reqDisplaySync:
		cbID, err := r.Uint32()
		if err != nil {
			return err
		}
		c.kinds[cbID] = kindCallback
		// This core processes one request at a time with no outstanding
		// asynchronous host round trip gating it (the remote connection's
		// own sync, internal/remote.Client.roundtrip, already completed
		// before any guest request reaches here), so sync resolves
		// immediately.
		c.send(cbID, evCallbackDone, (&wire.ArgWriter{}).PutUint32(0))
		c.deleteID(cbID)
		return nil
	case reqDisplayGetRegistry:
		regID, err := r.Uint32()
		if err != nil {
			return err
		}
		c.kinds[regID] = kindRegistry
		for i, g := range supportedGlobals {
			w := (&wire.ArgWriter{}).PutUint32(uint32(i + 1)).PutString(g.Interface).PutUint32(g.Version)
			c.send(regID, evRegistryGlobal, w)
		}
		return nil
	default:
		return fmt.Errorf("server: wl_display: unknown request %d", op)
	}
}

func (c *Client) dispatchRegistry(id uint32, op uint16, r *wire.ArgReader) error {
	if op != reqRegistryBind {
		return fmt.Errorf("server: wl_registry: unknown request %d", op)
	}
	name, err := r.Uint32()
	if err != nil {
		return err
	}
	iface, err := r.String()
	if err != nil {
		return err
	}
	version, err := r.Uint32()
	if err != nil {
		return err
	}
	newID, err := r.Uint32()
	if err != nil {
		return err
	}
	if int(name) < 1 || int(name) > len(supportedGlobals) {
		return fmt.Errorf("server: wl_registry.bind: unknown global name %d", name)
	}
	g := supportedGlobals[name-1]
	if g.Interface != iface {
		return fmt.Errorf("server: wl_registry.bind: global %d is %s, not %s", name, g.Interface, iface)
	}
	c.kinds[newID] = g.Kind
	c.versions[newID] = version
	return nil
}

func (c *Client) dispatchCompositor(id uint32, op uint16, r *wire.ArgReader) error {
	switch op {
	case reqCompositorCreateSurface:
		surfID, err := r.Uint32()
		if err != nil {
			return err
		}
		version := c.versions[id]
		if _, err := c.srv.Facade.CreateSurface(surfID, c, version); err != nil {
			return err
		}
		c.kinds[surfID] = kindSurface
		c.versions[surfID] = version
		return nil
	case reqCompositorCreateRegion:
		regionID, err := r.Uint32()
		if err != nil {
			return err
		}
		c.kinds[regionID] = kindRegion
		return nil
	default:
		return fmt.Errorf("server: wl_compositor: unknown request %d", op)
	}
}

func (c *Client) dispatchSubcompositor(id uint32, op uint16, r *wire.ArgReader) error {
	switch op {
	case reqSubcompositorDestroy:
		c.deleteID(id)
		return nil
	case reqSubcompositorGetSubsurface:
		subID, err := r.Uint32()
		if err != nil {
			return err
		}
		childID, err := r.Uint32()
		if err != nil {
			return err
		}
		parentID, err := r.Uint32()
		if err != nil {
			return err
		}
		child, ok := c.surfaces[childID]
		if !ok {
			return fmt.Errorf("server: get_subsurface: unknown surface %d", childID)
		}
		parent, ok := c.surfaces[parentID]
		if !ok {
			return fmt.Errorf("server: get_subsurface: unknown parent surface %d", parentID)
		}
		if err := c.srv.Facade.CreateSubsurface(child, parent); err != nil {
			return err
		}
		c.kinds[subID] = kindSubsurface
		c.objSurface[subID] = child
		return nil
	default:
		return fmt.Errorf("server: wl_subcompositor: unknown request %d", op)
	}
}

func (c *Client) dispatchShm(id uint32, op uint16, r *wire.ArgReader) error {
	if op != reqShmCreatePool {
		return fmt.Errorf("server: wl_shm: unknown request %d", op)
	}
	poolID, err := r.Uint32()
	if err != nil {
		return err
	}
	fd, err := r.Fd()
	if err != nil {
		return err
	}
	size, err := r.Int32()
	if err != nil {
		return err
	}
	pool, err := c.srv.Facade.CreatePool(uintptr(fd), size)
	if err != nil {
		return err
	}
	c.kinds[poolID] = kindShmPool
	c.shmPools[poolID] = pool
	return nil
}

func (c *Client) dispatchShmPool(id uint32, op uint16, r *wire.ArgReader) error {
	pool, ok := c.shmPools[id]
	if !ok {
		return fmt.Errorf("server: wl_shm_pool: object %d has no pool", id)
	}
	switch op {
	case reqShmPoolCreateBuffer:
		bufID, err := r.Uint32()
		if err != nil {
			return err
		}
		off, err := r.Int32()
		if err != nil {
			return err
		}
		w, err := r.Int32()
		if err != nil {
			return err
		}
		h, err := r.Int32()
		if err != nil {
			return err
		}
		stride, err := r.Int32()
		if err != nil {
			return err
		}
		format, err := r.Uint32()
		if err != nil {
			return err
		}
		buf, err := pool.CreateBuffer(off, w, h, stride, format)
		if err != nil {
			return err
		}
		c.kinds[bufID] = kindBuffer
		c.buffers[bufID] = buf
		return nil
	case reqShmPoolDestroy:
		delete(c.shmPools, id)
		c.deleteID(id)
		return nil
	case reqShmPoolResize:
		size, err := r.Int32()
		if err != nil {
			return err
		}
		return pool.Resize(size)
	default:
		return fmt.Errorf("server: wl_shm_pool: unknown request %d", op)
	}
}

func (c *Client) dispatchBuffer(id uint32, op uint16, r *wire.ArgReader) error {
	if op != reqBufferDestroy {
		return fmt.Errorf("server: wl_buffer: unknown request %d", op)
	}
	buf, ok := c.buffers[id]
	if ok {
		buf.MarkDestroyed()
		delete(c.buffers, id)
	}
	c.deleteID(id)
	return nil
}

func (c *Client) dispatchRegion(id uint32, op uint16, r *wire.ArgReader) error {
	if op != reqRegionDestroy {
		// set_add/set_subtract carry four int32 rect args each, harmlessly
		// skipped: opaque/input regions are not modeled (spec.md §4.2
		// scope — every surface is treated as fully opaque and fully
		// input-accepting).
		return nil
	}
	c.deleteID(id)
	return nil
}

func (c *Client) dispatchSurface(id uint32, op uint16, r *wire.ArgReader) error {
	surf, ok := c.surfaces[id]
	if !ok {
		return fmt.Errorf("server: wl_surface: object %d is not a live surface", id)
	}
	switch op {
	case reqSurfaceDestroy:
		if err := surf.Destroy(); err != nil {
			return err
		}
		c.RemoveSurface(id)
		c.deleteID(id)
		return nil
	case reqSurfaceAttach:
		bufID, err := r.Uint32()
		if err != nil {
			return err
		}
		x, err := r.Int32()
		if err != nil {
			return err
		}
		y, err := r.Int32()
		if err != nil {
			return err
		}
		var buf *Buffer
		if bufID != 0 {
			buf, ok = c.buffers[bufID]
			if !ok {
				return fmt.Errorf("server: attach: unknown buffer %d", bufID)
			}
		}
		return surf.AttachBuffer(buf, x, y)
	case reqSurfaceDamage:
		rect, err := readRect(r)
		if err != nil {
			return err
		}
		surf.Damage(rect)
		return nil
	case reqSurfaceFrame:
		cbID, err := r.Uint32()
		if err != nil {
			return err
		}
		c.kinds[cbID] = kindCallback
		surf.AddFrameCallback(cbID, func(timestampMs uint32) {
			c.send(cbID, evCallbackDone, (&wire.ArgWriter{}).PutUint32(timestampMs))
			c.deleteID(cbID)
		})
		return nil
	case reqSurfaceSetOpaqueRegion, reqSurfaceSetInputRegion:
		_, err := r.Uint32() // region id, or 0 for null; not modeled, see dispatchRegion
		return err
	case reqSurfaceCommit:
		return surf.Commit()
	case reqSurfaceSetBufferTransform:
		t, err := r.Int32()
		if err != nil {
			return err
		}
		return surf.SetBufferTransform(t)
	case reqSurfaceSetBufferScale:
		s, err := r.Int32()
		if err != nil {
			return err
		}
		return surf.SetBufferScale(s)
	case reqSurfaceDamageBuffer:
		rect, err := readRect(r)
		if err != nil {
			return err
		}
		surf.DamageBuffer(rect)
		return nil
	case reqSurfaceOffset:
		x, err := r.Int32()
		if err != nil {
			return err
		}
		y, err := r.Int32()
		if err != nil {
			return err
		}
		surf.Offset(x, y)
		return nil
	default:
		return fmt.Errorf("server: wl_surface: unknown request %d", op)
	}
}

func readRect(r *wire.ArgReader) (image.Rectangle, error) {
	x, err := r.Int32()
	if err != nil {
		return image.Rectangle{}, err
	}
	y, err := r.Int32()
	if err != nil {
		return image.Rectangle{}, err
	}
	w, err := r.Int32()
	if err != nil {
		return image.Rectangle{}, err
	}
	h, err := r.Int32()
	if err != nil {
		return image.Rectangle{}, err
	}
	return image.Rect(int(x), int(y), int(x+w), int(y+h)), nil
}

func (c *Client) dispatchSeat(id uint32, op uint16, r *wire.ArgReader) error {
	switch op {
	case reqSeatGetPointer:
		pid, err := r.Uint32()
		if err != nil {
			return err
		}
		c.kinds[pid] = kindPointer
		c.pointerID = pid
		return nil
	case reqSeatGetKeyboard:
		kid, err := r.Uint32()
		if err != nil {
			return err
		}
		c.kinds[kid] = kindKeyboard
		c.keyboardID = kid
		return nil
	case reqSeatGetTouch:
		tid, err := r.Uint32()
		if err != nil {
			return err
		}
		c.kinds[tid] = kindTouch
		return nil
	case reqSeatRelease:
		c.deleteID(id)
		return nil
	default:
		return fmt.Errorf("server: wl_seat: unknown request %d", op)
	}
}

func (c *Client) dispatchPointer(id uint32, op uint16, r *wire.ArgReader) error {
	switch op {
	case reqPointerSetCursor:
		if _, err := r.Uint32(); err != nil { // serial
			return err
		}
		if _, err := r.Uint32(); err != nil { // surface (new cursor surface, or 0)
			return err
		}
		if _, err := r.Int32(); err != nil { // hotspot_x
			return err
		}
		if _, err := r.Int32(); err != nil { // hotspot_y
			return err
		}
		// Cursor image content is not modeled: the remote compositor owns
		// the on-screen pointer image for the whole composited output
		// (spec.md §4.4), so a guest-supplied cursor surface has nothing
		// to composite onto.
		return nil
	case reqPointerRelease:
		c.deleteID(id)
		return nil
	default:
		return fmt.Errorf("server: wl_pointer: unknown request %d", op)
	}
}

func (c *Client) dispatchKeyboard(id uint32, op uint16, r *wire.ArgReader) error {
	if op != reqKeyboardRelease {
		return fmt.Errorf("server: wl_keyboard: unknown request %d", op)
	}
	c.deleteID(id)
	return nil
}

func (c *Client) dispatchDataDeviceManager(id uint32, op uint16, r *wire.ArgReader) error {
	switch op {
	case reqDataDeviceManagerCreateDataSource:
		srcID, err := r.Uint32()
		if err != nil {
			return err
		}
		c.kinds[srcID] = kindDataSource
		c.dataSources[srcID] = nil
		return nil
	case reqDataDeviceManagerGetDataDevice:
		devID, err := r.Uint32()
		if err != nil {
			return err
		}
		if _, err := r.Uint32(); err != nil { // seat
			return err
		}
		c.kinds[devID] = kindDataDevice
		c.dataDeviceID = devID
		c.dataDevice = NewDataDevice(c)
		return nil
	default:
		return fmt.Errorf("server: wl_data_device_manager: unknown request %d", op)
	}
}

func (c *Client) dispatchDataDevice(id uint32, op uint16, r *wire.ArgReader) error {
	switch op {
	case reqDataDeviceStartDrag:
		// Drag-and-drop between guest clients is out of scope (spec.md
		// §4.2: "not meaningfully observable by a single hosted game
		// process"); consume the three object-id args and ignore.
		for i := 0; i < 3; i++ {
			if _, err := r.Uint32(); err != nil {
				return err
			}
		}
		if _, err := r.Uint32(); err != nil { // serial
			return err
		}
		return nil
	case reqDataDeviceSetSelection:
		srcID, err := r.Uint32() // source, or 0 to clear
		if err != nil {
			return err
		}
		if _, err := r.Uint32(); err != nil { // serial
			return err
		}
		if c.dataDevice != nil {
			c.dataDevice.SetSelection(c.dataSources[srcID])
		}
		return nil
	case reqDataDeviceRelease:
		c.deleteID(id)
		return nil
	default:
		return fmt.Errorf("server: wl_data_device: unknown request %d", op)
	}
}

// dispatchDataSource records offered mime types (wl_data_source.offer) so
// a later wl_data_device.set_selection naming this source can read them
// back (spec.md §4.2 "data-device" passthrough scope).
func (c *Client) dispatchDataSource(id uint32, op uint16, r *wire.ArgReader) error {
	switch op {
	case reqDataSourceOffer:
		mime, err := r.String()
		if err != nil {
			return err
		}
		c.dataSources[id] = append(c.dataSources[id], mime)
		return nil
	case reqDataSourceDestroy:
		delete(c.dataSources, id)
		c.deleteID(id)
		return nil
	default:
		return fmt.Errorf("server: wl_data_source: unknown request %d", op)
	}
}

func (c *Client) dispatchXdgWmBase(id uint32, op uint16, r *wire.ArgReader) error {
	switch op {
	case reqXdgWmBaseDestroy:
		c.deleteID(id)
		return nil
	case reqXdgWmBaseCreatePositioner:
		posID, err := r.Uint32()
		if err != nil {
			return err
		}
		c.kinds[posID] = kindXdgPositioner
		c.positioners[posID] = &positionerState{}
		return nil
	case reqXdgWmBaseGetXdgSurface:
		xdgSurfID, err := r.Uint32()
		if err != nil {
			return err
		}
		surfID, err := r.Uint32()
		if err != nil {
			return err
		}
		surf, ok := c.surfaces[surfID]
		if !ok {
			return fmt.Errorf("server: get_xdg_surface: unknown surface %d", surfID)
		}
		c.kinds[xdgSurfID] = kindXdgSurface
		c.objSurface[xdgSurfID] = surf
		return nil
	case reqXdgWmBasePong:
		_, err := r.Uint32() // serial; no ping is ever sent by this core (no host-driven xdg_wm_base), so pong is never expected either
		return err
	default:
		return fmt.Errorf("server: xdg_wm_base: unknown request %d", op)
	}
}

func (c *Client) dispatchXdgSurface(id uint32, op uint16, r *wire.ArgReader) error {
	surf, ok := c.objSurface[id]
	if !ok {
		return fmt.Errorf("server: xdg_surface: object %d has no backing surface", id)
	}
	switch op {
	case reqXdgSurfaceDestroy:
		c.deleteID(id)
		return nil
	case reqXdgSurfaceGetToplevel:
		topID, err := r.Uint32()
		if err != nil {
			return err
		}
		if err := c.srv.XdgWmBase.GetToplevel(surf); err != nil {
			return err
		}
		c.kinds[topID] = kindXdgToplevel
		c.objSurface[topID] = surf
		return nil
	case reqXdgSurfaceGetPopup:
		popID, err := r.Uint32()
		if err != nil {
			return err
		}
		parentXdgSurfID, err := r.Uint32()
		if err != nil {
			return err
		}
		posID, err := r.Uint32()
		if err != nil {
			return err
		}
		var parent *Surface
		if parentXdgSurfID != 0 {
			parent = c.objSurface[parentXdgSurfID]
		}
		pos, ok := c.positioners[posID]
		if !ok {
			return fmt.Errorf("server: get_popup: unknown positioner %d", posID)
		}
		if err := c.srv.XdgWmBase.GetPopup(surf, parent, pos.geometry()); err != nil {
			return err
		}
		c.kinds[popID] = kindXdgPopup
		c.objSurface[popID] = surf
		return nil
	case reqXdgSurfaceSetWindowGeometry:
		rect, err := readRect(r)
		if err != nil {
			return err
		}
		surf.SetWindowGeometry(rect)
		return nil
	case reqXdgSurfaceAckConfigure:
		_, err := r.Uint32() // serial; this core never defers mapping on ack (spec.md §4.2 scope)
		return err
	default:
		return fmt.Errorf("server: xdg_surface: unknown request %d", op)
	}
}

func (c *Client) dispatchXdgToplevel(id uint32, op uint16, r *wire.ArgReader) error {
	surf, ok := c.objSurface[id]
	if !ok {
		return fmt.Errorf("server: xdg_toplevel: object %d has no backing surface", id)
	}
	switch op {
	case reqXdgToplevelDestroy:
		c.deleteID(id)
		return nil
	case reqXdgToplevelSetParent:
		_, err := r.Uint32() // parent, or 0; multi-toplevel parenting is not modeled
		return err
	case reqXdgToplevelSetTitle:
		title, err := r.String()
		if err != nil {
			return err
		}
		surf.SetTitle(title)
		return nil
	case reqXdgToplevelSetAppID:
		appID, err := r.String()
		if err != nil {
			return err
		}
		surf.SetAppID(appID)
		return nil
	default:
		// move/resize/set_max_size/set_min_size/maximize/fullscreen/minimize:
		// all window-manager interactions the (out-of-scope, spec.md §1)
		// layout consumer would own. Silently ignored rather than
		// disconnecting a client for using a perfectly valid request this
		// core's scope doesn't act on.
		return nil
	}
}

func (c *Client) dispatchXdgPopup(id uint32, op uint16, r *wire.ArgReader) error {
	const reqXdgPopupDestroy = 0
	if op == reqXdgPopupDestroy {
		c.deleteID(id)
		return nil
	}
	// grab/reposition: popup-specific input grab and re-layout, out of
	// scope for the same reason as xdg_toplevel's window-manager requests.
	return nil
}

func (c *Client) dispatchXdgPositioner(id uint32, op uint16, r *wire.ArgReader) error {
	pos, ok := c.positioners[id]
	if !ok {
		return fmt.Errorf("server: xdg_positioner: object %d not found", id)
	}
	switch op {
	case reqXdgPositionerDestroy:
		delete(c.positioners, id)
		c.deleteID(id)
		return nil
	case reqXdgPositionerSetSize:
		w, err := r.Int32()
		if err != nil {
			return err
		}
		h, err := r.Int32()
		if err != nil {
			return err
		}
		pos.anchorRect = image.Rect(pos.anchorRect.Min.X, pos.anchorRect.Min.Y, pos.anchorRect.Min.X+int(w), pos.anchorRect.Min.Y+int(h))
		return nil
	case reqXdgPositionerSetAnchorRect:
		rect, err := readRect(r)
		if err != nil {
			return err
		}
		size := pos.anchorRect.Size()
		pos.anchorRect = image.Rectangle{Min: rect.Min, Max: rect.Min.Add(size)}
		return nil
	case reqXdgPositionerSetOffset:
		x, err := r.Int32()
		if err != nil {
			return err
		}
		y, err := r.Int32()
		if err != nil {
			return err
		}
		pos.offsetX, pos.offsetY = x, y
		return nil
	default:
		// set_anchor/set_gravity/set_constraint_adjustment/set_reactive/
		// set_parent_size/set_parent_configure: constraint-solving inputs
		// this core does not re-solve (see positionerState's doc comment).
		return nil
	}
}

func (c *Client) dispatchViewporter(id uint32, op uint16, r *wire.ArgReader) error {
	switch op {
	case reqViewporterDestroy:
		c.deleteID(id)
		return nil
	case reqViewporterGetViewport:
		vpID, err := r.Uint32()
		if err != nil {
			return err
		}
		surfID, err := r.Uint32()
		if err != nil {
			return err
		}
		surf, ok := c.surfaces[surfID]
		if !ok {
			return fmt.Errorf("server: get_viewport: unknown surface %d", surfID)
		}
		c.kinds[vpID] = kindViewport
		c.objSurface[vpID] = surf
		return nil
	default:
		return fmt.Errorf("server: wp_viewporter: unknown request %d", op)
	}
}

func (c *Client) dispatchViewport(id uint32, op uint16, r *wire.ArgReader) error {
	surf, ok := c.objSurface[id]
	if !ok {
		return fmt.Errorf("server: wp_viewport: object %d has no backing surface", id)
	}
	switch op {
	case reqViewportDestroy:
		if err := c.srv.Viewporter.DestroyViewport(surf); err != nil {
			return err
		}
		c.deleteID(id)
		return nil
	case reqViewportSetSource:
		xf, err := r.Fixed()
		if err != nil {
			return err
		}
		yf, err := r.Fixed()
		if err != nil {
			return err
		}
		wf, err := r.Fixed()
		if err != nil {
			return err
		}
		hf, err := r.Fixed()
		if err != nil {
			return err
		}
		src := image.Rect(int(xf), int(yf), int(xf+wf), int(yf+hf))
		return c.srv.Viewporter.SetSource(surf, src)
	case reqViewportSetDestination:
		w, err := r.Int32()
		if err != nil {
			return err
		}
		h, err := r.Int32()
		if err != nil {
			return err
		}
		return c.srv.Viewporter.SetDestination(surf, image.Pt(int(w), int(h)))
	default:
		return fmt.Errorf("server: wp_viewport: unknown request %d", op)
	}
}
