// Package cpu implements the CPU scheduler of spec.md §4.6: it maps
// per-instance game screen-state to one of five priority groups and
// writes pids/weights to cgroup tracking files.
package cpu

import (
	"fmt"
	"os"
	"strconv"

	"github.com/tesselslate/waywall-sub001/internal/instance"
	"github.com/tesselslate/waywall-sub001/internal/logging"
)

// Group is one of the five CPU priority tiers (spec.md §3 "Scheduler
// slot", glossary "Group").
type Group int

const (
	GroupNone Group = iota
	GroupIdle
	GroupLow
	GroupHigh
	GroupActive
)

func (g Group) String() string {
	switch g {
	case GroupIdle:
		return "idle"
	case GroupLow:
		return "low"
	case GroupHigh:
		return "high"
	case GroupActive:
		return "active"
	default:
		return "none"
	}
}

// Weights holds the four group weights written once at startup
// (spec.md §4.6 "Startup").
type Weights struct {
	Idle, Low, High, Active int
}

type slot struct {
	group Group
	pid   int
}

// Scheduler owns one open write fd per group and the dense slot table
// indexed by instance id (spec.md §3 "Scheduler slot").
type Scheduler struct {
	base    string
	files   map[Group]*os.File
	slots   []slot
	active  int // instance id, or -1
	log     *logging.Logger
	threshold int
}

// New opens cgroup.procs for each of the four groups under base
// (spec.md §4.6: "/sys/fs/cgroup/waywall/" or a systemd-user-slice
// equivalent) and writes the given weights to each group's cpu.weight.
// Construction fails, reporting the error, if any write fails
// (spec.md §4.6 "Startup").
func New(base string, w Weights, previewThreshold int) (*Scheduler, error) {
	s := &Scheduler{
		base:      base,
		files:     make(map[Group]*os.File),
		active:    -1,
		log:       logging.New("cpu"),
		threshold: previewThreshold,
	}

	weights := map[Group]int{
		GroupIdle: w.Idle, GroupLow: w.Low, GroupHigh: w.High, GroupActive: w.Active,
	}
	for _, g := range []Group{GroupIdle, GroupLow, GroupHigh, GroupActive} {
		dir := fmt.Sprintf("%s/%s", base, g)
		f, err := os.OpenFile(dir+"/cgroup.procs", os.O_WRONLY, 0)
		if err != nil {
			s.closeAll()
			return nil, fmt.Errorf("cpu: open %s/cgroup.procs: %w", dir, err)
		}
		s.files[g] = f

		if err := os.WriteFile(dir+"/cpu.weight", []byte(strconv.Itoa(weights[g])), 0o644); err != nil {
			s.closeAll()
			return nil, fmt.Errorf("cpu: write %s/cpu.weight: %w", dir, err)
		}
	}
	return s, nil
}

func (s *Scheduler) closeAll() {
	for _, f := range s.files {
		_ = f.Close()
	}
}

// groupFor applies the state -> group mapping table of spec.md §4.6.
func groupFor(st instance.State, active bool) Group {
	switch st.Screen {
	case instance.ScreenTitle, instance.ScreenWaiting, instance.ScreenGenerating:
		return GroupHigh
	case instance.ScreenPreviewing:
		// threshold is applied by the caller (Update), which has access
		// to s.threshold; this function only needs the in-world case.
		return GroupHigh
	case instance.ScreenInWorld:
		if active {
			return GroupActive
		}
		return GroupIdle
	default:
		return GroupNone
	}
}

func (s *Scheduler) ensureSlot(id int) {
	for len(s.slots) <= id {
		s.slots = append(s.slots, slot{group: GroupNone, pid: 0})
	}
}

// Update recomputes id's group from its current state and, if different
// from the remembered group, writes pid in base-10 to the new group's
// file (spec.md §4.6 "update(id, instance)", §8 property 6). Writes are
// idempotent with respect to the kernel: the scheduler never reads back
// group membership.
func (s *Scheduler) Update(id int, pid int, st instance.State) error {
	s.ensureSlot(id)

	var group Group
	switch {
	case st.Screen == instance.ScreenPreviewing && st.Percent >= s.threshold:
		group = GroupLow
	default:
		group = groupFor(st, id == s.active)
	}

	if s.slots[id].group == group && s.slots[id].pid == pid {
		return nil
	}
	s.slots[id] = slot{group: group, pid: pid}
	if group == GroupNone {
		return nil
	}
	return s.writePid(group, pid)
}

func (s *Scheduler) writePid(g Group, pid int) error {
	f, ok := s.files[g]
	if !ok {
		return fmt.Errorf("cpu: no file for group %s", g)
	}
	if _, err := f.WriteString(strconv.Itoa(pid)); err != nil {
		return fmt.Errorf("cpu: write pid %d to %s: %w", pid, g, err)
	}
	return nil
}

// SetActive demotes the previously active instance (if any, and
// different) to high, then promotes id to active, in that order
// (spec.md §4.6 "set_active(id)", §8 property 7).
func (s *Scheduler) SetActive(id int) error {
	s.ensureSlot(id)
	if s.active != -1 && s.active != id {
		old := s.active
		if old < len(s.slots) && s.slots[old].group != GroupNone {
			s.slots[old].group = GroupHigh
			if err := s.writePid(GroupHigh, s.slots[old].pid); err != nil {
				return err
			}
		}
	}
	s.active = id
	s.slots[id].group = GroupActive
	return s.writePid(GroupActive, s.slots[id].pid)
}

// Death shifts the slot table down by one, as described in spec.md §4.6
// ("the table is a dense array indexed by id; the table is
// zero-initialized on the tail").
func (s *Scheduler) Death(id int) {
	if id < 0 || id >= len(s.slots) {
		return
	}
	copy(s.slots[id:], s.slots[id+1:])
	s.slots[len(s.slots)-1] = slot{}
	if s.active == id {
		s.active = -1
	} else if s.active > id {
		s.active--
	}
}

// Group reports id's currently remembered scheduler group, for UI
// consumers that want to reflect scheduler state without duplicating
// the state->group mapping (spec.md §4.6).
func (s *Scheduler) Group(id int) Group {
	if id < 0 || id >= len(s.slots) {
		return GroupNone
	}
	return s.slots[id].group
}

// Close releases the group file descriptors.
func (s *Scheduler) Close() error {
	s.closeAll()
	return nil
}
