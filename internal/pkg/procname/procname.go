// Package procname resolves a pid to its command name and parent pid by
// reading /proc, in the introspection style of
// nestybox-sysbox-libs/pathres (getProcStatus/getProcInfo read
// /proc/<pid>/status rather than shelling out to `ps`).
package procname

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Info is what the capable report table needs per observed pid.
type Info struct {
	PID  int
	PPID int
	Name string
}

// Lookup reads /proc/<pid>/status for Name and PPid, falling back to a
// placeholder name if the process has already exited (a common race
// once the observation window closes).
func Lookup(pid int) Info {
	info := Info{PID: pid, Name: "<exited>"}

	f, err := os.Open(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return info
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "Name:"):
			info.Name = strings.TrimSpace(strings.TrimPrefix(line, "Name:"))
		case strings.HasPrefix(line, "PPid:"):
			ppid, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "PPid:")))
			if err == nil {
				info.PPID = ppid
			}
		}
	}
	return info
}

// Cmdline reads /proc/<pid>/cmdline, joining its NUL-separated argv with
// spaces, for callers that want the full invocation rather than just
// the short comm name.
func Cmdline(pid int) string {
	raw, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.TrimRight(string(raw), "\x00"), "\x00")
	return strings.Join(parts, " ")
}
