// Package xwayland implements the Xwayland supervisor of spec.md §4.5:
// it creates the socket pairs and readiness pipe, forks the X server
// child, and supervises it via a pidfd on the single-threaded reactor.
package xwayland

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/tesselslate/waywall-sub001/internal/logging"
)

// Supervisor owns one Xwayland child process for the lifetime of the
// core (spec.md §3 "X server").
type Supervisor struct {
	log *logging.Logger

	fdWl  [2]int // Wayland transport socketpair
	fdXwm [2]int // window-manager transport socketpair
	readyR, readyW int

	cmd     *exec.Cmd
	pid     int
	pidfd   int
	display int

	readyOnce sync.Once
	onReady   func(display int)
	started   bool
}

// New allocates the socket pairs and readiness pipe (spec.md §4.5
// "Startup (deferred to idle)"). The X server is not forked until
// Start is called from the event loop's idle queue.
func New(onReady func(display int)) (*Supervisor, error) {
	s := &Supervisor{log: logging.New("xwayland"), onReady: onReady, display: -1}

	fdWl, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("xwayland: socketpair(wl): %w", err)
	}
	s.fdWl = [2]int{fdWl[0], fdWl[1]}

	fdXwm, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		s.closeFds(s.fdWl[:])
		return nil, fmt.Errorf("xwayland: socketpair(xwm): %w", err)
	}
	s.fdXwm = [2]int{fdXwm[0], fdXwm[1]}

	pipeFds := make([]int, 2)
	if err := unix.Pipe2(pipeFds, unix.O_CLOEXEC); err != nil {
		s.closeFds(s.fdWl[:], s.fdXwm[:])
		return nil, fmt.Errorf("xwayland: pipe2: %w", err)
	}
	s.readyR, s.readyW = pipeFds[0], pipeFds[1]

	return s, nil
}

func (s *Supervisor) closeFds(groups ...[]int) {
	for _, g := range groups {
		for _, fd := range g {
			if fd > 0 {
				_ = unix.Close(fd)
			}
		}
	}
}

// Start forks Xwayland. Intended to be invoked from the event loop's
// idle source (spec.md §4.5 "Startup (deferred to idle)").
func (s *Supervisor) Start() error {
	if s.started {
		return nil
	}
	s.started = true

	// Clear CLOEXEC on the fds the child must inherit: fd_wl[1] (passed
	// as WAYLAND_SOCKET), fd_xwm[1], and the write end of the readiness
	// pipe. fd_wl[0]/fd_xwm[0]/readyR stay CLOEXEC so only the parent
	// keeps them past exec.
	for _, fd := range []int{s.fdWl[1], s.fdXwm[1], s.readyW} {
		flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
		if err != nil {
			return fmt.Errorf("xwayland: fcntl getfd: %w", err)
		}
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, flags&^unix.FD_CLOEXEC); err != nil {
			return fmt.Errorf("xwayland: fcntl clear cloexec: %w", err)
		}
	}

	cmd := exec.Command("Xwayland", "-rootless", "-core", "-noreset",
		"-displayfd", strconv.Itoa(s.readyW),
		"-wm", strconv.Itoa(s.fdXwm[1]))
	cmd.Env = append(os.Environ(), fmt.Sprintf("WAYLAND_SOCKET=%d", s.fdWl[1]))
	cmd.Stdin = nil
	cmd.ExtraFiles = nil // fds are inherited by fd number via clearing CLOEXEC above, not ExtraFiles renumbering
	cmd.SysProcAttr = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("xwayland: exec failed: %w", err)
	}
	s.cmd = cmd
	s.pid = cmd.Process.Pid

	pidfd, err := unix.PidfdOpen(s.pid, 0)
	if err != nil {
		return fmt.Errorf("xwayland: pidfd_open(%d): %w", s.pid, err)
	}
	s.pidfd = pidfd

	// Server-owned ends of the socketpairs/pipe are closed by CLOEXEC in
	// the child; the parent also closes its copy of the ends the child
	// now owns, since this process never uses them again.
	_ = unix.Close(s.fdWl[1])
	_ = unix.Close(s.fdXwm[1])
	_ = unix.Close(s.readyW)

	return nil
}

// Pidfd returns the child's pidfd for registration as a readable fd
// source on the reactor.
func (s *Supervisor) Pidfd() int { return s.pidfd }

// ReadyFd returns the read end of the readiness pipe, for registration
// as a readable fd source.
func (s *Supervisor) ReadyFd() int { return s.readyR }

// HandleReadyReadable is called when ReadyFd() becomes readable. It
// reads a '\n'-terminated base-10 display number, retrying on EINTR and
// tolerating short reads (spec.md §4.5 "Readiness"). A hangup before a
// complete line is a fatal startup failure. The ready callback fires at
// most once per supervisor lifetime (spec.md §5 "Ordering guarantees").
func (s *Supervisor) HandleReadyReadable() error {
	f := os.NewFile(uintptr(s.readyR), "xwayland-ready")
	defer func() {
		// f owns readyR from here on. The blocking read below consumes a
		// whole line or fails, so the fd is never read again: close it
		// here (which also drops it from the epoll set) rather than
		// whenever f's finalizer runs, and mark it closed for Shutdown.
		_ = f.Close()
		s.readyR = -1
	}()

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("xwayland: readiness pipe closed before a complete line: %w", err)
		}
		line = strings.TrimSpace(line)
		display, err := strconv.Atoi(line)
		if err != nil {
			return fmt.Errorf("xwayland: invalid display number %q: %w", line, err)
		}
		s.display = display
		s.readyOnce.Do(func() {
			if s.onReady != nil {
				s.onReady(display)
			}
		})
		return nil
	}
}

// Display returns the display number once ready, or -1.
func (s *Supervisor) Display() int { return s.display }

// HandlePidfdReadable reaps the exited child with a blocking wait4 and
// returns wait4's error (spec.md §4.5 "Supervision"). It does not stop
// the core; the caller does that.
func (s *Supervisor) HandlePidfdReadable() error {
	var ws unix.WaitStatus
	_, err := unix.Wait4(s.pid, &ws, 0, nil)
	return err
}

// Shutdown signals SIGKILL (ignoring ESRCH), closes every fd, and is
// idempotent (spec.md §4.5 "Shutdown").
func (s *Supervisor) Shutdown() {
	if s.pidfd > 0 {
		if err := unix.PidfdSendSignal(s.pidfd, unix.SIGKILL, nil, 0); err != nil && err != unix.ESRCH {
			s.log.Printf("sigkill xwayland: %v", err)
		}
		_ = unix.Close(s.pidfd)
		s.pidfd = 0
	}
	if s.cmd == nil {
		// The child never started, so its ends were never handed off.
		s.closeFds([]int{s.fdWl[1], s.fdXwm[1], s.readyW})
	}
	s.closeFds([]int{s.fdWl[0], s.fdXwm[0], s.readyR})
	s.fdWl, s.fdXwm = [2]int{-1, -1}, [2]int{-1, -1}
	s.readyR, s.readyW = -1, -1
}
