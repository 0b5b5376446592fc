// Package subproc implements the subprocess registry of spec.md §4.8: a
// small table of (pid, pidfd, event source) entries for child processes
// launched by configuration, reaped via pidfd readiness.
package subproc

import (
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"

	"github.com/tesselslate/waywall-sub001/internal/logging"
)

// Entry is one tracked child process.
type Entry struct {
	Pid   int
	Pidfd int
}

// Registry owns every subprocess launched via Exec, reaping them as
// their pidfd becomes readable (spec.md §4.8, §3 design note: "Linux's
// native child-readiness primitive").
type Registry struct {
	entries []Entry
	log     *logging.Logger
}

func NewRegistry() *Registry {
	return &Registry{log: logging.New("subproc")}
}

// Exec forks argv[0] with the caller's environment, redirecting the
// child's stdout to /dev/null (spec.md §4.8), and registers a pidfd
// for the new child.
func (r *Registry) Exec(argv []string) (*Entry, error) {
	return r.ExecEnv(argv, nil)
}

// ExecEnv is Exec with an explicit environment, used to start the
// wrapped game with the passthrough environment restored by
// envreexec rather than this process's own (spec.md §6.1).
func (r *Registry) ExecEnv(argv []string, env []string) (*Entry, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("subproc: empty argv")
	}

	devnull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("subproc: open /dev/null: %w", err)
	}
	defer devnull.Close()

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = devnull
	cmd.Stderr = devnull
	cmd.Env = env
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("subproc: exec %s: %w", argv[0], err)
	}

	pid := cmd.Process.Pid
	pidfd, err := unix.PidfdOpen(pid, 0)
	if err != nil {
		return nil, fmt.Errorf("subproc: pidfd_open(%d): %w", pid, err)
	}

	e := Entry{Pid: pid, Pidfd: pidfd}
	r.entries = append(r.entries, e)
	return &r.entries[len(r.entries)-1], nil
}

// HandlePidfdReady is called by the event loop when e's pidfd becomes
// readable: the child is reaped, sent SIGKILL (ignoring ESRCH, since it
// may have already exited on its own), and removed from the table
// (spec.md §4.8).
func (r *Registry) HandlePidfdReady(e *Entry) {
	var ws unix.WaitStatus
	_, _ = unix.Wait4(e.Pid, &ws, 0, nil)

	if err := unix.PidfdSendSignal(e.Pidfd, unix.SIGKILL, nil, 0); err != nil && err != unix.ESRCH {
		r.log.Printf("pidfd_send_signal(%d, SIGKILL): %v", e.Pid, err)
	}
	_ = unix.Close(e.Pidfd)
	r.compact(e.Pid)
}

func (r *Registry) compact(pid int) {
	out := r.entries[:0]
	for _, e := range r.entries {
		if e.Pid != pid {
			out = append(out, e)
		}
	}
	r.entries = out
}

// Entries returns a snapshot of the live table, for event-loop
// registration.
func (r *Registry) Entries() []Entry {
	return append([]Entry(nil), r.entries...)
}
