// Package sysinfo logs a startup diagnostic dump of kernel, resource
// limit, and inotify/fsnotify tuning information, grounded on
// original_source/waywall/util/sysinfo.c (spec.md §6.1, "Supplemented
// features").
package sysinfo

import (
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/tesselslate/waywall-sub001/internal/logging"
)

const sysctlBase = "/proc/sys/"

var log = logging.New("sysinfo")

// DumpLog writes a block of system information to the log, the same
// three groups the original dumps at startup: kernel identification,
// the process's open-file limit, and the inotify/fsnotify tunables
// that the instance-state and config watchers depend on.
func DumpLog() {
	log.Printf("---- SYSTEM INFO")
	logUname()
	logMaxFiles()
	logInotifyLimits()
	log.Printf("---- END SYSTEM INFO")
}

func logUname() {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		log.Warnf("uname: %v", err)
		return
	}
	log.Printf("system:  %s", cstr(uts.Sysname[:]))
	log.Printf("release: %s", cstr(uts.Release[:]))
	log.Printf("version: %s", cstr(uts.Version[:]))
	log.Printf("machine: %s", cstr(uts.Machine[:]))
}

func logMaxFiles() {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		log.Warnf("getrlimit(RLIMIT_NOFILE): %v", err)
		return
	}
	log.Printf("max files: %d", rlim.Cur)
}

func logInotifyLimits() {
	maxQueued, err1 := numberFromFile(sysctlBase + "fs/inotify/max_queued_events")
	maxInstances, err2 := numberFromFile(sysctlBase + "fs/inotify/max_user_instances")
	maxWatches, err3 := numberFromFile(sysctlBase + "fs/inotify/max_user_watches")
	if err1 != nil || err2 != nil || err3 != nil {
		log.Warnf("failed to get inotify limits")
		return
	}
	log.Printf("inotify max queued events:  %d", maxQueued)
	log.Printf("inotify max user instances: %d", maxInstances)
	log.Printf("inotify max user watches:   %d", maxWatches)
}

func numberFromFile(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}

func cstr(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}
