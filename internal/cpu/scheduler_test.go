package cpu

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tesselslate/waywall-sub001/internal/instance"
)

func setupGroups(t *testing.T, base string) {
	t.Helper()
	for _, g := range groupNames {
		dir := filepath.Join(base, g)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		for _, f := range []string{"cgroup.procs", "cpu.weight"} {
			if err := os.WriteFile(filepath.Join(dir, f), nil, 0o644); err != nil {
				t.Fatal(err)
			}
		}
	}
}

func readAll(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestSchedulerStateTransitionScenario(t *testing.T) {
	base := t.TempDir()
	setupGroups(t, base)

	s, err := New(base, Weights{Idle: 1, Low: 2, High: 3, Active: 4}, 20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	const id, pid = 0, 4242

	// generating,95 -> high
	if err := s.Update(id, pid, instance.State{Screen: instance.ScreenGenerating, Percent: 95}); err != nil {
		t.Fatal(err)
	}
	// previewing,10 (< threshold 20) -> high
	if err := s.Update(id, pid, instance.State{Screen: instance.ScreenPreviewing, Percent: 10}); err != nil {
		t.Fatal(err)
	}
	// previewing,85 (>= threshold 20) -> low
	if err := s.Update(id, pid, instance.State{Screen: instance.ScreenPreviewing, Percent: 85}); err != nil {
		t.Fatal(err)
	}
	// inworld,unpaused, not active -> idle
	if err := s.Update(id, pid, instance.State{Screen: instance.ScreenInWorld, Sub: instance.SubUnpaused}); err != nil {
		t.Fatal(err)
	}

	// generating,95 and previewing,10 both map to high; only the first
	// changes the remembered group, so high receives a single write.
	high := readAll(t, filepath.Join(base, "high", "cgroup.procs"))
	if strings.Count(high, "4242") != 1 {
		t.Errorf("expected pid written once to high/cgroup.procs, got %q", high)
	}
	low := readAll(t, filepath.Join(base, "low", "cgroup.procs"))
	if low != "4242" {
		t.Errorf("expected pid written once to low/cgroup.procs, got %q", low)
	}
	idle := readAll(t, filepath.Join(base, "idle", "cgroup.procs"))
	if idle != "4242" {
		t.Errorf("expected pid written once to idle/cgroup.procs, got %q", idle)
	}
	active := readAll(t, filepath.Join(base, "active", "cgroup.procs"))
	if active != "" {
		t.Errorf("expected no writes to active/cgroup.procs, got %q", active)
	}
}

func TestSetActiveDemotesPrevious(t *testing.T) {
	base := t.TempDir()
	setupGroups(t, base)

	s, err := New(base, Weights{1, 2, 3, 4}, 20)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	s.ensureSlot(0)
	s.ensureSlot(1)
	s.slots[0] = slot{group: GroupIdle, pid: 111}
	s.slots[1] = slot{group: GroupIdle, pid: 222}
	s.active = 0

	if err := s.SetActive(1); err != nil {
		t.Fatal(err)
	}

	high := readAll(t, filepath.Join(base, "high", "cgroup.procs"))
	if high != "111" {
		t.Errorf("expected old active (111) demoted to high, got %q", high)
	}
	active := readAll(t, filepath.Join(base, "active", "cgroup.procs"))
	if active != "222" {
		t.Errorf("expected new active (222) promoted, got %q", active)
	}
}

func TestDeathShiftsSlotTable(t *testing.T) {
	base := t.TempDir()
	setupGroups(t, base)
	s, err := New(base, Weights{1, 2, 3, 4}, 20)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	s.slots = []slot{{group: GroupHigh, pid: 1}, {group: GroupLow, pid: 2}, {group: GroupIdle, pid: 3}}
	s.Death(0)

	if s.slots[0].pid != 2 || s.slots[1].pid != 3 || s.slots[2].pid != 0 {
		t.Errorf("unexpected slot table after Death: %+v", s.slots)
	}
}
