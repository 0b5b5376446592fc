package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/tesselslate/waywall-sub001/internal/envreexec"
	"github.com/tesselslate/waywall-sub001/internal/logging"
	"github.com/tesselslate/waywall-sub001/internal/loop"
	"github.com/tesselslate/waywall-sub001/internal/remote"
	"github.com/tesselslate/waywall-sub001/internal/server"
	"github.com/tesselslate/waywall-sub001/internal/subproc"
	"github.com/tesselslate/waywall-sub001/internal/wire"
)

// cmdWrap implements "waywall wrap [profile] -- COMMAND [ARGS...]",
// grounded on original_source/waywall/cmd_wrap.c: unlike "run", it
// forks the wrapped command itself and shuts down the moment that
// child exits, instead of surviving across game restarts.
func cmdWrap(args []string) error {
	log := logging.New("cmd_wrap")

	profile, argv := splitWrapArgs(args)
	if len(argv) == 0 {
		return fmt.Errorf("USAGE: waywall wrap [profile] -- COMMAND [ARGS...]")
	}
	_ = profile

	rc, err := remote.Connect(os.Getenv("WAYLAND_DISPLAY"))
	if err != nil {
		return fmt.Errorf("cmd_wrap: connect to host compositor: %w", err)
	}
	defer rc.Close()

	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return fmt.Errorf("cmd_wrap: XDG_RUNTIME_DIR is not set")
	}
	listener, err := wire.Listen(runtimeDir)
	if err != nil {
		return fmt.Errorf("cmd_wrap: %w", err)
	}
	defer listener.Close()

	srv := server.NewServer(rc)

	l, err := loop.New()
	if err != nil {
		return fmt.Errorf("cmd_wrap: %w", err)
	}
	defer l.Close()

	listenerFd, err := listener.Fd()
	if err != nil {
		return err
	}
	if err := l.Add(listenerFd, func() error {
		conn, err := listener.Accept()
		if err != nil {
			return err
		}
		c := srv.Accept(conn)
		fd, err := c.ReadFd()
		if err != nil {
			return err
		}
		return l.Add(fd, c.HandleReadable)
	}); err != nil {
		return err
	}

	rcFd, err := rc.Fd()
	if err != nil {
		return fmt.Errorf("cmd_wrap: %w", err)
	}
	if err := l.Add(rcFd, rc.Dispatch); err != nil {
		return err
	}

	if err := os.Setenv("WAYLAND_DISPLAY", listener.SockName); err != nil {
		return fmt.Errorf("cmd_wrap: %w", err)
	}
	env := os.Environ()
	if passthrough := envreexec.PassthroughEnv(); passthrough != nil {
		env = envreexec.AddDisplay(passthrough)
	}

	procs := subproc.NewRegistry()
	entry, err := procs.ExecEnv(argv, env)
	if err != nil {
		return fmt.Errorf("cmd_wrap: exec %s: %w", argv[0], err)
	}
	log.Printf("wrapped child started, pid=%d", entry.Pid)

	if err := l.Add(entry.Pidfd, func() error {
		log.Printf("wrapped child exited, shutting down")
		procs.HandlePidfdReady(entry)
		l.Quit(nil)
		return nil
	}); err != nil {
		return err
	}

	return l.Run()
}

// splitWrapArgs separates the optional profile name from the "--
// COMMAND ARGS..." tail.
func splitWrapArgs(args []string) (profile string, argv []string) {
	for i, a := range args {
		if a == "--" {
			if i > 0 {
				profile = strings.Join(args[:i], " ")
			}
			return profile, args[i+1:]
		}
	}
	if len(args) > 0 {
		return "", args
	}
	return "", nil
}
