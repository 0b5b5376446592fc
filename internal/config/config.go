// Package config holds the typed configuration the Lua layer (out of
// scope per spec.md §1) hands to the core, plus the directory watcher that
// drives hot reload. The core never parses Lua; it only consumes the
// struct below and a ReloadFunc supplied by the surrounding layer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/tesselslate/waywall-sub001/internal/logging"
)

// Keymap describes the XKB layout inputs used to regenerate the guest
// keymap on reload (spec.md §4.3).
type Keymap struct {
	Rules   string
	Model   string
	Layout  string
	Variant string
	Options string
}

// RemapEntry is one source->destination binding consumed by internal/input.
type RemapEntry struct {
	SrcKeycode   uint32
	SrcModifiers uint32 // 0 = no modifiers, wildcard handled by WildcardMods
	WildcardMods bool
	DstKeycode   uint32
	HasDst       bool // false => binding is consumed, not forwarded
}

// CgroupWeights holds the four CPU scheduler weights, spec.md §4.6 "Startup".
type CgroupWeights struct {
	Idle, Low, High, Active int
}

// Config is the full set of values the external Lua layer resolves for a
// profile and hands to the core at (re)load time.
type Config struct {
	Keymap        Keymap
	KeyRepeatRate  int32
	KeyRepeatDelay int32
	Remaps         []RemapEntry
	CgroupBase     string
	Weights        CgroupWeights
	PreviewThreshold int // percent, spec.md §4.6 state->group mapping
}

// ReloadFunc parses raw Lua-evaluated bytes into a Config. Supplied by the
// external configuration layer; the core treats it as an opaque callback.
type ReloadFunc func([]byte) (Config, error)

// Watcher watches $XDG_CONFIG_HOME/waywall (or $HOME/.config/waywall) and
// invokes reload on every fsnotify event for a *.lua file and on any
// create/remove in the directory. Reloads follow each reported write, not
// only the close that ends a write. On failure it keeps the last-good Config and logs a warning,
// per spec.md §7 "Config reload failure".
type Watcher struct {
	dir     string
	reload  ReloadFunc
	watcher *fsnotify.Watcher
	log     *logging.Logger

	current Config
}

// Dir resolves the configuration directory per spec.md §6 "Persisted state".
func Dir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "waywall"), nil
	}
	home := os.Getenv("HOME")
	if home == "" {
		return "", fmt.Errorf("neither XDG_CONFIG_HOME nor HOME is set")
	}
	return filepath.Join(home, ".config", "waywall"), nil
}

// NewWatcher performs the initial load and starts watching dir for changes.
func NewWatcher(dir string, reload ReloadFunc) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("open config watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch config dir: %w", err)
	}

	w := &Watcher{
		dir:     dir,
		reload:  reload,
		watcher: fw,
		log:     logging.New("config"),
	}

	initial, err := w.loadAll()
	if err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("initial config load: %w", err)
	}
	w.current = initial
	return w, nil
}

// Current returns the last successfully loaded configuration.
func (w *Watcher) Current() Config {
	return w.current
}

// Events exposes the underlying fsnotify event channel so internal/loop
// can fold it into the single-threaded reactor (spec.md §5).
func (w *Watcher) Events() <-chan fsnotify.Event {
	return w.watcher.Events
}

// Errors exposes the fsnotify error channel.
func (w *Watcher) Errors() <-chan error {
	return w.watcher.Errors
}

// HandleEvent processes one fsnotify event; call from the reactor loop.
func (w *Watcher) HandleEvent(ev fsnotify.Event) {
	if !strings.HasSuffix(ev.Name, ".lua") && ev.Op&(fsnotify.Create|fsnotify.Remove) == 0 {
		return
	}
	cfg, err := w.loadAll()
	if err != nil {
		w.log.Warnf("reload failed, keeping previous config: %v", err)
		return
	}
	w.current = cfg
}

func (w *Watcher) loadAll() (Config, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return Config{}, err
	}
	var merged []byte
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".lua") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(w.dir, e.Name()))
		if err != nil {
			return Config{}, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		merged = append(merged, b...)
	}
	return w.reload(merged)
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
