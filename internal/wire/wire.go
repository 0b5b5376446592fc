// Package wire implements the minimum slice of the Wayland wire protocol
// needed to terminate guest client connections: the 8-byte message header,
// argument buffering, and SCM_RIGHTS fd passing over a unix socket.
//
// No package in the retrieval pack implements the *server* side of the
// Wayland wire protocol (rajveermalviya/go-wayland/wayland, the library
// used for the remote connection, is client-only), so this layer is built
// directly on net and golang.org/x/sys/unix. See DESIGN.md for the
// justification.
package wire

import (
	"encoding/binary"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

const (
	maxMessageSize = 4096
	headerSize     = 8
)

// Message is one decoded Wayland wire message: a request from a guest or
// an event toward one.
type Message struct {
	Sender uint32 // object id
	Opcode uint16
	Args   []byte // raw argument payload, native endianness
	Fds    []int  // fds carried via SCM_RIGHTS, consumed in-order by decoders
}

// Conn is one guest connection's wire-level read/write half. Higher layers
// (internal/server) own the object table and dispatch.
type Conn struct {
	uc      *net.UnixConn
	raw     *rawConn
	wbuf    []byte
	closeFn func()
}

type rawConn struct {
	file *net.UnixConn
}

// NewConn wraps an accepted *net.UnixConn.
func NewConn(uc *net.UnixConn) *Conn {
	return &Conn{uc: uc, raw: &rawConn{file: uc}}
}

// Fd returns the underlying file descriptor, for registration with
// internal/loop's epoll reactor.
func (c *Conn) Fd() (int, error) {
	sc, err := c.uc.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	err = sc.Control(func(f uintptr) { fd = int(f) })
	return fd, err
}

// ReadMessage reads exactly one wire message, blocking until a full header
// and payload are available. fds arriving out of band with this read are
// attached to the returned Message in the order the kernel delivered them.
func (c *Conn) ReadMessage() (*Message, error) {
	hdr := make([]byte, headerSize)
	oob := make([]byte, unix.CmsgSpace(64*4)) // room for up to 64 fds

	n, oobn, fds, err := c.readFull(hdr, oob)
	if err != nil {
		return nil, err
	}
	if n < headerSize {
		return nil, fmt.Errorf("wire: short header read (%d bytes)", n)
	}

	sender := binary.LittleEndian.Uint32(hdr[0:4])
	sizeOpcode := binary.LittleEndian.Uint32(hdr[4:8])
	opcode := uint16(sizeOpcode & 0xffff)
	size := uint16(sizeOpcode >> 16)
	if int(size) < headerSize || int(size) > maxMessageSize {
		return nil, fmt.Errorf("wire: invalid message size %d", size)
	}

	argLen := int(size) - headerSize
	args := make([]byte, argLen)
	if argLen > 0 {
		if _, err := readExactly(c.uc, args); err != nil {
			return nil, fmt.Errorf("wire: read args: %w", err)
		}
	}
	_ = oobn

	return &Message{Sender: sender, Opcode: opcode, Args: args, Fds: fds}, nil
}

// readFull reads the header plus any ancillary data delivered alongside it.
func (c *Conn) readFull(hdr, oob []byte) (n, oobn int, fds []int, err error) {
	sc, err := c.uc.SyscallConn()
	if err != nil {
		return 0, 0, nil, err
	}
	var readErr error
	err = sc.Read(func(rawFd uintptr) bool {
		n, oobn, _, _, readErr = unix.Recvmsg(int(rawFd), hdr, oob, 0)
		if readErr == unix.EAGAIN {
			return false
		}
		return true
	})
	if err != nil {
		return 0, 0, nil, err
	}
	if readErr != nil {
		return 0, 0, nil, readErr
	}
	if n == 0 {
		return 0, 0, nil, fmt.Errorf("wire: connection closed")
	}
	if oobn > 0 {
		cmsgs, err := unix.ParseSocketControlMessage(oob[:oobn])
		if err == nil {
			for _, cm := range cmsgs {
				got, err := unix.ParseUnixRights(&cm)
				if err == nil {
					fds = append(fds, got...)
				}
			}
		}
	}
	return n, oobn, fds, nil
}

func readExactly(c *net.UnixConn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := c.Read(buf[total:])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// WriteMessage serializes one event toward the guest, optionally carrying
// fds via SCM_RIGHTS (e.g. the shm keymap fd, or a dmabuf fd echoed back).
func (c *Conn) WriteMessage(sender uint32, opcode uint16, args []byte, fds []int) error {
	size := headerSize + len(args)
	if size > maxMessageSize {
		return fmt.Errorf("wire: message too large (%d bytes)", size)
	}
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], sender)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(opcode)|uint32(size)<<16)
	copy(buf[headerSize:], args)

	var oob []byte
	if len(fds) > 0 {
		oob = unix.UnixRights(fds...)
	}

	sc, err := c.uc.SyscallConn()
	if err != nil {
		return err
	}
	var werr error
	err = sc.Write(func(rawFd uintptr) bool {
		_, _, werr = unix.Sendmsg(int(rawFd), buf, oob, nil, 0)
		if werr == unix.EAGAIN {
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	return werr
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.uc.Close()
}

// ArgReader decodes fixed-width Wayland wire argument types in sequence.
type ArgReader struct {
	buf []byte
	off int
	fds []int
	fi  int
}

func NewArgReader(m *Message) *ArgReader {
	return &ArgReader{buf: m.Args, fds: m.Fds}
}

func (r *ArgReader) Uint32() (uint32, error) {
	if r.off+4 > len(r.buf) {
		return 0, fmt.Errorf("wire: truncated uint32 argument")
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *ArgReader) Int32() (int32, error) {
	v, err := r.Uint32()
	return int32(v), err
}

func (r *ArgReader) Fixed() (float64, error) {
	v, err := r.Int32()
	if err != nil {
		return 0, err
	}
	return float64(v) / 256.0, nil
}

func (r *ArgReader) String() (string, error) {
	n, err := r.Uint32()
	if err != nil {
		return "", err
	}
	padded := (int(n) + 3) &^ 3
	if r.off+padded > len(r.buf) {
		return "", fmt.Errorf("wire: truncated string argument")
	}
	s := ""
	if n > 0 {
		s = string(r.buf[r.off : r.off+int(n)-1]) // drop NUL terminator
	}
	r.off += padded
	return s, nil
}

func (r *ArgReader) Array() ([]byte, error) {
	n, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	padded := (int(n) + 3) &^ 3
	if r.off+padded > len(r.buf) {
		return nil, fmt.Errorf("wire: truncated array argument")
	}
	out := r.buf[r.off : r.off+int(n)]
	r.off += padded
	return out, nil
}

func (r *ArgReader) Fd() (int, error) {
	if r.fi >= len(r.fds) {
		return -1, fmt.Errorf("wire: missing fd argument")
	}
	fd := r.fds[r.fi]
	r.fi++
	return fd, nil
}

// ArgWriter builds one event/request argument payload.
type ArgWriter struct {
	buf []byte
	fds []int
}

func (w *ArgWriter) PutUint32(v uint32) *ArgWriter {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
	return w
}

func (w *ArgWriter) PutInt32(v int32) *ArgWriter { return w.PutUint32(uint32(v)) }

func (w *ArgWriter) PutFixed(v float64) *ArgWriter { return w.PutInt32(int32(v * 256)) }

func (w *ArgWriter) PutString(s string) *ArgWriter {
	b := append([]byte(s), 0)
	w.PutUint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
	for len(w.buf)%4 != 0 {
		w.buf = append(w.buf, 0)
	}
	return w
}

func (w *ArgWriter) PutFd(fd int) *ArgWriter {
	w.fds = append(w.fds, fd)
	return w
}

func (w *ArgWriter) Bytes() []byte { return w.buf }
func (w *ArgWriter) Fds() []int    { return w.fds }
