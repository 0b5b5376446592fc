// Package loop implements the single-threaded cooperative reactor of
// spec.md §5 and §4.10 ("Event loop glue"): one epoll instance
// multiplexing fd sources, an idle queue, and termination on SIGINT or
// child death.
package loop

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/tesselslate/waywall-sub001/internal/logging"
)

// Handler is invoked when its registered fd becomes readable.
type Handler func() error

// Loop is the core's single event loop. No data structure registered
// here is touched by any other goroutine while the loop is running
// (spec.md §5 "Scheduling model").
type Loop struct {
	epfd     int
	handlers map[int]Handler
	idle     []func()
	signalFd int
	log      *logging.Logger
	quit     bool
	quitErr  error
}

// New creates an epoll instance and a signalfd watching SIGINT and
// SIGCHLD (spec.md §5 "Cancellation and timeouts": "SIGINT and
// child-exit both call the server-wide shutdown").
func New() (*Loop, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("loop: epoll_create1: %w", err)
	}

	var mask unix.Sigset_t
	sigaddset(&mask, unix.SIGINT)
	sigaddset(&mask, unix.SIGCHLD)
	if err := unix.SigprocMask(unix.SIG_BLOCK, &mask, nil); err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("loop: sigprocmask: %w", err)
	}
	sigFd, err := unix.Signalfd(-1, &mask, unix.SFD_CLOEXEC|unix.SFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("loop: signalfd: %w", err)
	}

	l := &Loop{
		epfd:     epfd,
		handlers: make(map[int]Handler),
		signalFd: sigFd,
		log:      logging.New("loop"),
	}
	if err := l.Add(sigFd, func() error {
		l.Quit(nil)
		return nil
	}); err != nil {
		return nil, err
	}
	return l, nil
}

// Add registers fd as a readable source. Used for: the guest wire
// listener and connections, the remote connection's fd, Xwayland's
// readiness pipe and pidfd, and subprocess-registry pidfds (spec.md
// §4.10).
func (l *Loop) Add(fd int, h Handler) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("loop: epoll_ctl add %d: %w", fd, err)
	}
	l.handlers[fd] = h
	return nil
}

// Remove unregisters fd.
func (l *Loop) Remove(fd int) error {
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("loop: epoll_ctl del %d: %w", fd, err)
	}
	delete(l.handlers, fd)
	return nil
}

// Idle enqueues fn to run once at the start of the next iteration,
// implementing Xwayland's deferred startup (spec.md §4.5 "Startup
// (deferred to idle)").
func (l *Loop) Idle(fn func()) {
	l.idle = append(l.idle, fn)
}

// Ticker registers a timerfd firing every interval, invoking fn on each
// expiry (spec.md §4.4's per-frame GL composition step is driven this
// way, since the reactor has no other source of periodic wakeups).
func (l *Loop) Ticker(interval time.Duration, fn func() error) error {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return fmt.Errorf("loop: timerfd_create: %w", err)
	}
	spec := unix.ItimerSpec{
		Interval: unix.NsecToTimespec(interval.Nanoseconds()),
		Value:    unix.NsecToTimespec(interval.Nanoseconds()),
	}
	if err := unix.TimerfdSettime(fd, 0, &spec, nil); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("loop: timerfd_settime: %w", err)
	}
	return l.Add(fd, func() error {
		var buf [8]byte
		if _, err := unix.Read(fd, buf[:]); err != nil && err != unix.EAGAIN {
			return fmt.Errorf("loop: read timerfd: %w", err)
		}
		return fn()
	})
}

// Quit requests cooperative termination at the next iteration boundary
// (spec.md §5 "Cancellation and timeouts").
func (l *Loop) Quit(err error) {
	l.quit = true
	l.quitErr = err
}

// Run dispatches events until Quit is called. No request has a
// wall-clock timeout (spec.md §5); Run blocks in epoll_wait with no
// deadline between iterations.
func (l *Loop) Run() error {
	events := make([]unix.EpollEvent, 32)
	for !l.quit {
		for len(l.idle) > 0 {
			fn := l.idle[0]
			l.idle = l.idle[1:]
			fn()
		}

		n, err := unix.EpollWait(l.epfd, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("loop: epoll_wait: %w", err)
		}
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			h, ok := l.handlers[fd]
			if !ok {
				continue
			}
			if err := h(); err != nil {
				l.log.Printf("handler for fd %d returned error: %v", fd, err)
			}
		}
	}
	return l.quitErr
}

// Close releases the epoll and signalfd descriptors.
func (l *Loop) Close() error {
	_ = unix.Close(l.signalFd)
	return unix.Close(l.epfd)
}

func sigaddset(set *unix.Sigset_t, sig unix.Signal) {
	// unix.Sigset_t is a fixed-size bitmap; golang.org/x/sys/unix does
	// not export a portable Sigaddset for every GOARCH, so the bit is
	// set directly as the library's own SigprocMask callers do.
	// Signal numbers start at 1: signal n occupies bit n-1 of the mask.
	word := (sig - 1) / 32
	bit := (sig - 1) % 32
	// Sigset_t's layout is a []uint32-equivalent array on linux/amd64 and
	// linux/arm64, the only two targets this core builds.
	words := (*[32]uint32)(unsafe.Pointer(set))
	words[word] |= 1 << uint(bit)
}
