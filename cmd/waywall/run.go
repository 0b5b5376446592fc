package main

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"strconv"
	"time"

	"github.com/rajveermalviya/go-wayland/wayland/client"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"

	"github.com/tesselslate/waywall-sub001/internal/config"
	"github.com/tesselslate/waywall-sub001/internal/cpu"
	"github.com/tesselslate/waywall-sub001/internal/displayfile"
	"github.com/tesselslate/waywall-sub001/internal/envreexec"
	"github.com/tesselslate/waywall-sub001/internal/gl"
	"github.com/tesselslate/waywall-sub001/internal/input"
	"github.com/tesselslate/waywall-sub001/internal/instance"
	"github.com/tesselslate/waywall-sub001/internal/logging"
	"github.com/tesselslate/waywall-sub001/internal/loop"
	"github.com/tesselslate/waywall-sub001/internal/remote"
	"github.com/tesselslate/waywall-sub001/internal/server"
	"github.com/tesselslate/waywall-sub001/internal/sysinfo"
	"github.com/tesselslate/waywall-sub001/internal/ui"
	"github.com/tesselslate/waywall-sub001/internal/wire"
	"github.com/tesselslate/waywall-sub001/internal/xwayland"
)

// cmdRun implements "waywall run [profile]" (original_source's
// waywall/cmd_run.c): it locks /tmp/waywall-display, builds the full
// stack (remote connection, guest listener, scheduler, instance
// watcher, Xwayland supervisor), and runs the reactor until SIGINT or
// the X server dies.
func cmdRun(args []string) error {
	log := logging.New("cmd_run")
	sysinfo.DumpLog()

	if err := envreexec.Maybe(os.Args); err != nil {
		log.Warnf("env_reexec: %v", err)
	}

	profile := ""
	if len(args) > 0 {
		profile = args[0]
	}

	df, err := displayfile.Create("")
	if err != nil {
		return err
	}
	defer df.Close()

	cfgDir, err := config.Dir()
	if err != nil {
		return fmt.Errorf("cmd_run: %w", err)
	}
	_ = profile

	rc, err := remote.Connect(os.Getenv("WAYLAND_DISPLAY"))
	if err != nil {
		return fmt.Errorf("cmd_run: connect to host compositor: %w", err)
	}
	defer rc.Close()

	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return fmt.Errorf("cmd_run: XDG_RUNTIME_DIR is not set")
	}
	listener, err := wire.Listen(runtimeDir)
	if err != nil {
		return fmt.Errorf("cmd_run: %w", err)
	}
	defer listener.Close()
	if err := df.WriteSocketName(listener.SockName); err != nil {
		return err
	}
	log.Printf("listening on %s", listener.SockName)

	srv := server.NewServer(rc)

	sched, err := cpu.New(cgroupBase(), cpu.Weights{Idle: 10, Low: 50, High: 100, Active: 200}, 70)
	if err != nil {
		log.Warnf("cpu scheduler unavailable: %v (run 'waywall cpu' as root?)", err)
	}

	// grid is assigned below, once the overlay font has loaded; declared
	// here so the instance-update callback can push state into it
	// regardless of load order.
	var grid *ui.Grid

	// mgr is forward-declared so its own onUpdate callback can call
	// mgr.Get(id) for the instance's pid: NewManager's return value and
	// the closure passed into it are mutually referential.
	var mgr *instance.Manager
	mgr, err = instance.NewManager(func(id int, st instance.State) {
		if sched != nil {
			if inst, ok := mgr.Get(id); ok {
				if uerr := sched.Update(id, inst.Pid, st); uerr != nil {
					log.Warnf("cpu scheduler update instance %d: %v", id, uerr)
				}
			}
		}
		if grid != nil {
			group := cpu.GroupNone
			if sched != nil {
				group = sched.Group(id)
			}
			grid.SetTile(id, st, group)
		}
	})
	if err != nil {
		return fmt.Errorf("cmd_run: %w", err)
	}
	defer mgr.Close()

	l, err := loop.New()
	if err != nil {
		return fmt.Errorf("cmd_run: %w", err)
	}
	defer l.Close()

	cfgWatcher, err := config.NewWatcher(cfgDir, func([]byte) (config.Config, error) {
		return config.Config{}, nil
	})
	if err != nil {
		log.Warnf("config watcher unavailable: %v", err)
	} else {
		defer cfgWatcher.Close()
	}

	// router translates remote seat events into guest-side wl_pointer/
	// wl_keyboard events, hit-testing against whichever surfaces the
	// facade currently reports as mapped toplevels/popups (spec.md §4.3).
	router := input.NewRouter(rc)
	srv.OnSurfaceChange = func() {
		router.SetTargets(srv.FocusTargets())
	}
	if cfgWatcher != nil {
		router.SetRemaps(cfgWatcher.Current().Remaps)
	}
	wireSeat(rc, router)

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
		return fmt.Errorf("cmd_run: %w", err)
	}
	if err := l.Add(rcFd, rc.Dispatch); err != nil {
		return err
	}

	glctx, grid, err := setupOverlay(rc, l)
	if err != nil {
		log.Warnf("composition overlay unavailable: %v", err)
	} else {
		defer glctx.Close()
		defer grid.Close()
	}

	xwm, err := xwayland.New(func(display int) {
		log.Printf("xwayland ready on display :%d", display)
		if err := df.WriteX11Display(listener.SockName, display); err != nil {
			log.Warnf("writing x11 display: %v", err)
		}
	})
	if err != nil {
		log.Warnf("xwayland unavailable: %v", err)
	} else {
		l.Idle(func() {
			if err := xwm.Start(); err != nil {
				log.Warnf("xwayland start: %v", err)
			} else {
				_ = l.Add(xwm.ReadyFd(), xwm.HandleReadyReadable)
				_ = l.Add(xwm.Pidfd(), func() error {
					_ = xwm.HandlePidfdReadable()
					l.Quit(nil)
					return nil
				})
			}
		})
		defer xwm.Shutdown()
	}

	if cfgWatcher != nil {
		go func() {
			for {
				select {
				case ev, ok := <-cfgWatcher.Events():
					if !ok {
						return
					}
					cfgWatcher.HandleEvent(ev)
					router.SetRemaps(cfgWatcher.Current().Remaps)
				case err, ok := <-cfgWatcher.Errors():
					if !ok {
						return
					}
					log.Warnf("config watch error: %v", err)
				}
			}
		}()
	}

	go func() {
		for {
			select {
			case ev, ok := <-mgr.Events():
				if !ok {
					return
				}
				mgr.HandleEvent(ev)
			case err, ok := <-mgr.Errors():
				if !ok {
					return
				}
				log.Warnf("instance watch error: %v", err)
			}
		}
	}()

	log.Printf("running")
	return l.Run()
}

// candidateFonts are tried in order when WAYWALL_FONT_PATH is unset; these
// are the TrueType files most distributions ship by default for a
// monospace-ish label face.
var candidateFonts = []string{
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSansMono.ttf",
	"/usr/share/fonts/TTF/DejaVuSans.ttf",
	"/usr/share/fonts/noto/NotoSans-Regular.ttf",
}

func loadOverlayFont() (font.Face, error) {
	path := os.Getenv("WAYWALL_FONT_PATH")
	paths := candidateFonts
	if path != "" {
		paths = []string{path}
	}
	var lastErr error
	for _, p := range paths {
		face, err := ui.LoadFont(p, &opentype.FaceOptions{Size: 14, DPI: 72, Hinting: font.HintingNone})
		if err == nil {
			return face, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no usable overlay font (last error: %w)", lastErr)
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// setupOverlay builds the GL composition context and the SDL wall-mode
// overlay grid that composites it (spec.md §4.4): an off-screen EGL
// pbuffer is driven by a per-frame ticker and read back into the grid's
// background, with one tile per instance slot drawn on top. Grid
// dimensions are not negotiated with the external layout/Lua layer (out
// of scope per spec.md §1); WAYWALL_WALL_COLS/WAYWALL_WALL_ROWS pick a
// fixed tile count, defaulting to a typical multi-instance wall size.
func setupOverlay(rc *remote.Client, l *loop.Loop) (*gl.Context, *ui.Grid, error) {
	face, err := loadOverlayFont()
	if err != nil {
		return nil, nil, fmt.Errorf("load overlay font: %w", err)
	}

	monitor := rc.Monitor()
	w, h := monitor.Dx(), monitor.Dy()
	if w <= 0 || h <= 0 {
		w, h = 1920, 1080
	}

	cols := envInt("WAYWALL_WALL_COLS", 4)
	rows := envInt("WAYWALL_WALL_ROWS", 2)
	tileW, tileH := w/cols, h/rows

	colors := ui.TileColors{
		Idle:   image.NewUniform(color.RGBA{32, 32, 32, 255}),
		Low:    image.NewUniform(color.RGBA{70, 70, 30, 255}),
		High:   image.NewUniform(color.RGBA{90, 50, 20, 255}),
		Active: image.NewUniform(color.RGBA{30, 90, 40, 255}),
		Text:   image.NewUniform(color.RGBA{230, 230, 230, 255}),
	}

	grid, err := ui.NewGrid(monitor.Min.X, monitor.Min.Y, cols, rows, tileW, tileH, face, colors)
	if err != nil {
		return nil, nil, fmt.Errorf("create wall overlay window: %w", err)
	}

	glctx, err := gl.NewContext(0) // EGL_DEFAULT_DISPLAY: rendering is fully off-screen (pbuffer)
	if err != nil {
		grid.Close()
		return nil, nil, fmt.Errorf("create gl context: %w", err)
	}

	pw, ph := grid.PixelSize()
	if err := glctx.CreatePbufferSurface(int32(pw), int32(ph)); err != nil {
		glctx.Close()
		grid.Close()
		return nil, nil, fmt.Errorf("create gl pbuffer surface: %w", err)
	}

	if err := l.Ticker(16*time.Millisecond, func() error {
		if err := glctx.RenderFrame(0, 0, 0, 1); err != nil {
			return err
		}
		pixels := glctx.ReadPixels()
		if pixels != nil {
			grid.SetBackground(&image.RGBA{
				Pix:    pixels,
				Stride: pw * 4,
				Rect:   image.Rect(0, 0, pw, ph),
			})
		}
		return grid.Draw()
	}); err != nil {
		glctx.Close()
		grid.Close()
		return nil, nil, fmt.Errorf("start composition ticker: %w", err)
	}

	return glctx, grid, nil
}

// fixedToFloat converts a wire Fixed (24.8 signed fixed-point, per
// wayland.xml) to float64, matching internal/wire.ArgReader.Fixed's scale.
func fixedToFloat(f client.Fixed) float64 {
	return float64(f) / 256
}

// wireSeat forwards the remote seat's pointer/keyboard events into the
// input router (spec.md §4.3): the router owns all focus/remap logic,
// this just adapts host event structs to the router's plain-argument
// methods.
func wireSeat(rc *remote.Client, router *input.Router) {
	const pressed = 1

	rc.Pointer.SetMotionHandler(func(ev client.PointerMotionEvent) {
		router.PointerMotion(ev.Time, image.Pt(
			int(fixedToFloat(ev.SurfaceX)),
			int(fixedToFloat(ev.SurfaceY)),
		))
	})
	rc.Pointer.SetButtonHandler(func(ev client.PointerButtonEvent) {
		state := uint32(ev.State)
		router.ButtonEvent(ev.Time, uint32(ev.Button), state, state == pressed)
	})
	rc.Pointer.SetAxisHandler(func(ev client.PointerAxisEvent) {
		router.AxisEvent(ev.Time, uint32(ev.Axis), fixedToFloat(ev.Value))
	})
	rc.Pointer.SetFrameHandler(func(client.PointerFrameEvent) {
		router.FrameEvent()
	})

	rc.Keyboard.SetKeyHandler(func(ev client.KeyboardKeyEvent) {
		state := uint32(ev.State)
		router.KeyEvent(ev.Time, uint32(ev.Key), state, state == pressed)
	})
	rc.Keyboard.SetModifiersHandler(func(ev client.KeyboardModifiersEvent) {
		router.Modifiers(uint32(ev.ModsDepressed), uint32(ev.ModsLatched), uint32(ev.ModsLocked), uint32(ev.Group))
	})
}
