package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/tesselslate/waywall-sub001/internal/displayfile"
)

// cmdLaunch implements "waywall exec launch COMMAND [ARGS...]",
// grounded on original_source/waywall/cmd_exec.c: it reads the
// socket name left by a running "waywall run", sets
// WAYLAND_DISPLAY/DISPLAY, and execs the requested command in place.
func cmdLaunch(argv []string) error {
	if len(argv) < 1 {
		return fmt.Errorf("USAGE: waywall exec launch COMMAND [ARGS...]")
	}

	socketName, x11Display, err := displayfile.Read("")
	if err != nil {
		return fmt.Errorf("waywall is not running: %w", err)
	}

	if err := os.Setenv("WAYLAND_DISPLAY", socketName); err != nil {
		return err
	}
	if x11Display != "" {
		if err := os.Setenv("DISPLAY", x11Display); err != nil {
			return err
		}
	}

	path, err := lookPath(argv[0])
	if err != nil {
		return err
	}
	return syscall.Exec(path, argv, os.Environ())
}

func lookPath(name string) (string, error) {
	if hasSlash(name) {
		return name, nil
	}
	for _, dir := range splitPath(os.Getenv("PATH")) {
		candidate := dir + "/" + name
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("executable %q not found in PATH", name)
}

func hasSlash(s string) bool {
	for _, c := range s {
		if c == '/' {
			return true
		}
	}
	return false
}

func splitPath(path string) []string {
	var out []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == ':' {
			out = append(out, path[start:i])
			start = i + 1
		}
	}
	out = append(out, path[start:])
	return out
}
