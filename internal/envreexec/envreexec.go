// Package envreexec implements the environment-passthrough re-exec of
// spec.md §6.1, grounded on original_source/waywall/env_reexec.c: a
// wrapper launcher (e.g. PrismLauncher) may mutate LD_PRELOAD or GPU
// selection variables before starting this process as its wrapper
// command, which would otherwise leak into the compositor itself
// instead of only the game. Maybe copies this process's environment
// into a memfd and re-execs with its parent's environment restored;
// PassthroughEnv later reads the memfd copy back, minus
// WAYLAND_DISPLAY/DISPLAY, for the wrapped child.
package envreexec

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/tesselslate/waywall-sub001/internal/logging"
)

const (
	passthroughFDEnv = "__WAYWALL_ENV_PASSTHROUGH_FD"
	noReexecFlag     = "--no-env-reexec"
)

var log = logging.New("envreexec")

// Maybe performs the re-exec described above unless it has already
// happened (__WAYWALL_ENV_PASSTHROUGH_FD is set) or the caller opted out
// via --no-env-reexec. It never returns on success, since syscall.Exec
// replaces the process image; it returns nil when re-exec is skipped, and
// a non-nil error when it failed. In both cases the caller should
// continue startup normally.
func Maybe(argv []string) error {
	if _, ok := os.LookupEnv(passthroughFDEnv); ok {
		log.Printf("skipping env_reexec (got passthrough fd)")
		return nil
	}
	for _, arg := range argv {
		if arg == noReexecFlag {
			log.Printf("skipping env_reexec (%s)", noReexecFlag)
			return nil
		}
	}

	ppid := os.Getppid()
	parentEnv, err := os.ReadFile(fmt.Sprintf("/proc/%d/environ", ppid))
	if err != nil {
		return fmt.Errorf("envreexec: read parent environment: %w", err)
	}

	passthroughFd, err := unix.MemfdCreate("waywall_env_reexec", 0)
	if err != nil {
		return fmt.Errorf("envreexec: memfd_create: %w", err)
	}
	defer unix.Close(passthroughFd)

	for _, kv := range os.Environ() {
		if _, err := unix.Write(passthroughFd, []byte(kv+"\x00")); err != nil {
			return fmt.Errorf("envreexec: write passthrough fd: %w", err)
		}
	}

	penv := splitEnvBuf(parentEnv, false)
	penv = append(penv, passthroughFDEnv+"="+strconv.Itoa(passthroughFd))

	log.Printf("set passthrough environment fd to %d, restarting", passthroughFd)

	// The passthrough fd must survive exec; clear its CLOEXEC bit (unset
	// by memfd_create by default, but made explicit here since the
	// original environment-copy loop above ran after fd creation).
	if flags, ferr := unix.FcntlInt(uintptr(passthroughFd), unix.F_GETFD, 0); ferr == nil {
		_, _ = unix.FcntlInt(uintptr(passthroughFd), unix.F_SETFD, flags&^unix.FD_CLOEXEC)
	}

	path, err := findExecutable(argv[0])
	if err != nil {
		return fmt.Errorf("envreexec: %w", err)
	}
	return syscall.Exec(path, argv, penv)
}

// PassthroughEnv reads the memfd left by Maybe and returns the
// WAYLAND_DISPLAY/DISPLAY-stripped environment that should be used to
// start the wrapped game, or nil if no re-exec happened (this process
// was started directly).
func PassthroughEnv() []string {
	raw, ok := os.LookupEnv(passthroughFDEnv)
	if !ok {
		log.Printf("no environment passthrough fd")
		return nil
	}
	_ = os.Unsetenv(passthroughFDEnv)

	fd, err := strconv.Atoi(raw)
	if err != nil || fd <= 0 {
		log.Printf("failed to parse passthrough fd %q from env", raw)
		return nil
	}
	f := os.NewFile(uintptr(fd), "env-passthrough")
	defer f.Close()

	buf, err := readAll(f)
	if err != nil {
		log.Printf("failed to read passthrough fd: %v", err)
		return nil
	}
	return splitEnvBuf(buf, true)
}

// AddDisplay appends WAYLAND_DISPLAY and DISPLAY from the current
// environment onto env, used when the caller wants the game to see
// the nested compositor's own displays rather than the host's.
func AddDisplay(env []string) []string {
	wl, x11 := os.Getenv("WAYLAND_DISPLAY"), os.Getenv("DISPLAY")
	env = append(env, "WAYLAND_DISPLAY="+wl, "DISPLAY="+x11)
	log.Printf("added WAYLAND_DISPLAY=%s to passthrough environment", wl)
	log.Printf("added DISPLAY=%s to passthrough environment", x11)
	return env
}

func splitEnvBuf(buf []byte, skipDisplays bool) []string {
	var out []string
	for _, kv := range strings.Split(string(buf), "\x00") {
		if kv == "" {
			continue
		}
		if skipDisplays && (strings.HasPrefix(kv, "WAYLAND_DISPLAY=") || strings.HasPrefix(kv, "DISPLAY=")) {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func readAll(f *os.File) ([]byte, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, fi.Size())
	if _, err := io.ReadFull(io.NewSectionReader(f, 0, fi.Size()), buf); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf, nil
}

func findExecutable(name string) (string, error) {
	if strings.Contains(name, "/") {
		return name, nil
	}
	for _, dir := range strings.Split(os.Getenv("PATH"), ":") {
		if dir == "" {
			continue
		}
		candidate := dir + "/" + name
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("executable %q not found in PATH", name)
}
