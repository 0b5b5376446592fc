package cpu

import (
	"fmt"
	"os"
	"os/user"
	"strconv"

	"github.com/tesselslate/waywall-sub001/internal/logging"
)

var groupNames = []string{"idle", "low", "high", "active"}

// Bootstrap implements the privileged `cpu` sub-command of spec.md §6:
// it creates the four group directories under base, chowns each group's
// cgroup.procs and cpu.weight to the logname-resolved user, and enables "+cpu" in the parent's
// cgroup.subtree_control (spec.md §4.6 "A privileged bootstrap").
func Bootstrap(base, logname string) error {
	log := logging.New("cpu")

	u, err := user.Lookup(logname)
	if err != nil {
		return fmt.Errorf("cpu: resolve user %q: %w", logname, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return fmt.Errorf("cpu: parse uid: %w", err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return fmt.Errorf("cpu: parse gid: %w", err)
	}

	if err := os.MkdirAll(base, 0o755); err != nil {
		return fmt.Errorf("cpu: mkdir %s: %w", base, err)
	}
	if err := os.WriteFile(base+"/cgroup.subtree_control", []byte("+cpu"), 0o644); err != nil {
		return fmt.Errorf("cpu: enable +cpu on %s: %w", base, err)
	}

	for _, name := range groupNames {
		dir := base + "/" + name
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cpu: mkdir %s: %w", dir, err)
		}
		for _, f := range []string{"cgroup.procs", "cpu.weight"} {
			path := dir + "/" + f
			if err := os.Chown(path, uid, gid); err != nil {
				return fmt.Errorf("cpu: chown %s: %w", path, err)
			}
		}
		log.Printf("prepared cgroup %s for user %s (uid=%d)", dir, logname, uid)
	}
	return nil
}
