package main

import (
	"fmt"
	"os"

	"github.com/tesselslate/waywall-sub001/internal/cpu"
)

// cmdCPU implements "waywall cpu", grounded on
// original_source/waywall/cmd_cpu.c: it must run with root privileges
// once to create the cgroup hierarchy used by every later "run".
func cmdCPU(args []string) error {
	base := cgroupBase()
	return cpu.Bootstrap(base, os.Getenv("LOGNAME"))
}

func cgroupBase() string {
	if base := os.Getenv("WAYWALL_CGROUP_BASE"); base != "" {
		return base
	}
	uid := os.Getuid()
	return fmt.Sprintf("/sys/fs/cgroup/user.slice/user-%d.slice/waywall.slice", uid)
}
