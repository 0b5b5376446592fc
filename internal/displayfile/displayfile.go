// Package displayfile implements the /tmp/waywall-display lock file
// used by launcher wrapper scripts (spec.md §6.1, "Supplemented
// features"; grounded on original_source/waywall/cmd_run.c and
// waywall-launch.c). The file is opened and F_SETLK-locked before the
// guest socket is created, so a second "run" invocation fails fast
// instead of racing the first for the socket name; its first line is
// the Wayland socket name, written as soon as the listener exists, and
// an optional second line is the X11 DISPLAY value, appended once
// Xwayland reports readiness.
package displayfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/tesselslate/waywall-sub001/internal/logging"
)

const defaultPath = "/tmp/waywall-display"

var log = logging.New("displayfile")

// File is the locked /tmp/waywall-display handle held for the
// lifetime of one "run" invocation.
type File struct {
	f    *os.File
	path string
}

// Create opens (or creates) the lock file and takes an exclusive,
// non-blocking F_SETLK write lock over its whole extent. A locked-out
// caller gets an error saying the file is locked, matching the
// original's "waywall is already running" failure mode.
func Create(path string) (*File, error) {
	if path == "" {
		path = defaultPath
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("displayfile: open %s: %w", path, err)
	}

	lock := unix.Flock_t{
		Type:   unix.F_WRLCK,
		Whence: int16(os.SEEK_SET),
		Start:  0,
		Len:    0,
		Pid:    int32(os.Getpid()),
	}
	if err := unix.FcntlFlock(f.Fd(), unix.F_SETLK, &lock); err != nil {
		f.Close()
		return nil, fmt.Errorf("displayfile: %s is locked (waywall already running?): %w", path, err)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, fmt.Errorf("displayfile: truncate %s: %w", path, err)
	}

	return &File{f: f, path: path}, nil
}

// WriteSocketName writes the first line: the guest Wayland socket
// name. Called as soon as the wire listener is bound.
func (d *File) WriteSocketName(name string) error {
	if _, err := d.f.WriteAt([]byte(name+"\n"), 0); err != nil {
		return fmt.Errorf("displayfile: write socket name: %w", err)
	}
	return nil
}

// WriteX11Display appends the second line: the Xwayland DISPLAY
// value, once the X server reports readiness. Readers that open the
// file before this call see only the first line, which is a valid
// Wayland-only environment for launchers that don't need X11.
func (d *File) WriteX11Display(socketName string, displayNum int) error {
	content := fmt.Sprintf("%s\n:%d\n", socketName, displayNum)
	if _, err := d.f.WriteAt([]byte(content), 0); err != nil {
		return fmt.Errorf("displayfile: write x11 display: %w", err)
	}
	return nil
}

// Close releases the lock (an explicit F_UNLCK, since the original
// does this rather than relying solely on close-on-exit semantics)
// and closes the file, but does not remove it: the next "run"
// invocation reuses and truncates it.
func (d *File) Close() error {
	unlock := unix.Flock_t{Type: unix.F_UNLCK, Whence: int16(os.SEEK_SET)}
	if err := unix.FcntlFlock(d.f.Fd(), unix.F_SETLK, &unlock); err != nil {
		log.Warnf("unlock %s: %v", d.path, err)
	}
	return d.f.Close()
}

// Read implements the launcher side (waywall-launch): it opens the
// file read-only, reads its content, and returns the socket name and
// X11 display (the latter empty if Xwayland was not yet ready when
// this was called). The file is closed before this function returns,
// resolving spec.md §9's second Open Question: readers never hold the
// file open past a single read, so they never contend with the writer
// for the advisory lock, which only ever guards a single writer.
func Read(path string) (socketName, x11Display string, err error) {
	if path == "" {
		path = defaultPath
	}
	f, err := os.Open(path)
	if err != nil {
		return "", "", fmt.Errorf("displayfile: open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, 256)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return "", "", fmt.Errorf("displayfile: read %s: %w", path, err)
	}
	lines := splitLines(buf[:n])
	if len(lines) == 0 || lines[0] == "" {
		return "", "", fmt.Errorf("displayfile: %s has no socket name", path)
	}
	socketName = lines[0]
	if len(lines) > 1 {
		x11Display = lines[1]
	}
	return socketName, x11Display, nil
}

func splitLines(b []byte) []string {
	var out []string
	start := 0
	for i, c := range b {
		if c == '\n' {
			out = append(out, string(b[start:i]))
			start = i + 1
		}
	}
	if start < len(b) {
		out = append(out, string(b[start:]))
	}
	return out
}
