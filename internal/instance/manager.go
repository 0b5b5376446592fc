package instance

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/tesselslate/waywall-sub001/internal/logging"
)

// Instance is one observable game instance (spec.md §3 "Instance").
type Instance struct {
	ID        int
	Dir       string
	Pid       int
	StatePath string
	State     State
}

// UpdateFunc is invoked once per successfully parsed state change,
// notifying both the scheduler and the (out-of-scope) layout consumer,
// per spec.md §4.7: "Every successful parse fires instance_state_update".
type UpdateFunc func(id int, st State)

// Manager watches every instance's state file with one shared
// fsnotify.Watcher, matching the single-watcher-multiple-paths shape of
// other_examples' resetti Manager.
type Manager struct {
	mu        sync.Mutex
	instances []*Instance
	pathToID  map[string]int
	watcher   *fsnotify.Watcher
	onUpdate  UpdateFunc
	log       *logging.Logger
}

// NewManager creates a Manager with no instances yet registered.
func NewManager(onUpdate UpdateFunc) (*Manager, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("instance: open watcher: %w", err)
	}
	return &Manager{
		pathToID: make(map[string]int),
		watcher:  w,
		onUpdate: onUpdate,
		log:      logging.New("instance"),
	}, nil
}

// Add registers a new instance, identified per spec.md §4.7 by the
// caller's heuristics on X11 window title / WM_CLASS / the pid's cwd,
// and starts watching its state file; HandleEvent reacts to every write
// or create event on it, not only to the close that ends a write (spec.md §3
// "Instance" lifecycle: "created when the server detects a new client
// that declares itself an instance").
func (m *Manager) Add(dir string, pid int) (*Instance, error) {
	statePath := dir + "/wpstateout.txt"
	if _, err := os.Stat(statePath); err != nil {
		return nil, fmt.Errorf("instance: stat %s: %w", statePath, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := len(m.instances)
	inst := &Instance{ID: id, Dir: dir, Pid: pid, StatePath: statePath}
	m.instances = append(m.instances, inst)
	m.pathToID[statePath] = id

	if err := m.watcher.Add(statePath); err != nil {
		return nil, fmt.Errorf("instance: watch %s: %w", statePath, err)
	}
	return inst, nil
}

// Get returns a copy of instance id's current bookkeeping (pid, state),
// or ok=false if id is unknown or has been removed. Used by callers that
// need the pid alongside a state update, e.g. internal/cpu's scheduler.
func (m *Manager) Get(id int) (Instance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 0 || id >= len(m.instances) || m.instances[id] == nil {
		return Instance{}, false
	}
	return *m.instances[id], true
}

// Remove unregisters an instance when its surface unmaps (spec.md §3
// "Instance" lifecycle: "destroyed when the surface is unmapped").
func (m *Manager) Remove(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 0 || id >= len(m.instances) {
		return
	}
	inst := m.instances[id]
	_ = m.watcher.Remove(inst.StatePath)
	delete(m.pathToID, inst.StatePath)
	m.instances[id] = nil
}

// Events exposes the fsnotify event channel for internal/loop's reactor.
func (m *Manager) Events() <-chan fsnotify.Event { return m.watcher.Events }
func (m *Manager) Errors() <-chan error          { return m.watcher.Errors }

// HandleEvent processes one fsnotify event for a state file: on a write
// or create event, it parses the first line and, on success, updates the stored
// state and fires onUpdate. Parse failures are logged and the previous
// state is kept (spec.md §4.7).
func (m *Manager) HandleEvent(ev fsnotify.Event) {
	if ev.Op&fsnotify.Write == 0 && ev.Op&fsnotify.Create == 0 {
		return
	}
	m.mu.Lock()
	id, ok := m.pathToID[ev.Name]
	if !ok || m.instances[id] == nil {
		m.mu.Unlock()
		return
	}
	inst := m.instances[id]
	m.mu.Unlock()

	line, err := firstLine(inst.StatePath)
	if err != nil {
		m.log.Printf("instance %d: read state file: %v", id, err)
		return
	}
	st, err := ParseState(line)
	if err != nil {
		m.log.Printf("instance %d: parse state %q: %v", id, line, err)
		return
	}

	m.mu.Lock()
	inst.State = st
	m.mu.Unlock()

	if m.onUpdate != nil {
		m.onUpdate(id, st)
	}
}

func firstLine(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	for i, c := range b {
		if c == '\n' {
			return string(b[:i]), nil
		}
	}
	return string(b), nil
}

// Close stops watching every instance.
func (m *Manager) Close() error {
	return m.watcher.Close()
}
