package wire

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Listener accepts guest connections on a wayland-N style socket under
// XDG_RUNTIME_DIR, following the conventional naming used by every
// Wayland compositor (spec.md §6 "Persisted state": first line of
// /tmp/waywall-display is the guest socket name).
type Listener struct {
	ln       *net.UnixListener
	lockFile *os.File
	SockName string
	path     string
}

// Listen picks the first free wayland-N name (N starting at 0) under
// runtimeDir, creates its lock file, and starts listening.
func Listen(runtimeDir string) (*Listener, error) {
	for n := 0; n < 32; n++ {
		name := fmt.Sprintf("wayland-%d", n)
		sockPath := filepath.Join(runtimeDir, name)
		lockPath := sockPath + ".lock"

		lock, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			continue
		}
		if err := unix.Flock(int(lock.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
			_ = lock.Close()
			continue
		}

		_ = os.Remove(sockPath)
		ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: sockPath, Net: "unix"})
		if err != nil {
			_ = lock.Close()
			continue
		}

		return &Listener{ln: ln, lockFile: lock, SockName: name, path: sockPath}, nil
	}
	return nil, fmt.Errorf("wire: no free wayland-N socket name under %s", runtimeDir)
}

// Fd exposes the listener's fd for the epoll reactor.
func (l *Listener) Fd() (int, error) {
	sc, err := l.ln.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	err = sc.Control(func(f uintptr) { fd = int(f) })
	return fd, err
}

// Accept accepts one pending guest connection, non-blocking; callers
// should only invoke this after the reactor observes the listener fd as
// readable.
func (l *Listener) Accept() (*Conn, error) {
	uc, err := l.ln.AcceptUnix()
	if err != nil {
		return nil, err
	}
	return NewConn(uc), nil
}

// Close removes the socket and its lock file.
func (l *Listener) Close() error {
	err := l.ln.Close()
	_ = l.lockFile.Close()
	_ = os.Remove(l.path + ".lock")
	_ = os.Remove(l.path)
	return err
}
