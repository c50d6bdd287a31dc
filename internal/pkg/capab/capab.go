// Package capab wraps the kernel capability primitives Component A of the
// design needs: reading/setting process capability sets, stamping file
// capabilities, raising ambient bits, and locking securebits into the
// no-root configuration.
//
// The get/set/bounding/name-conversion plumbing is grounded on
// github.com/syndtr/gocapability/capability (studied in depth via its
// in-tree fork at nestybox-sysbox-libs/capability, which this package's
// capsV3-shaped internals mirror). Securebits and ambient-raise have no
// gocapability equivalent and are implemented directly over
// golang.org/x/sys/unix, as the teacher's process_linux.go does for
// OCI LinuxCapabilities assembly.
package capab

import (
	"strings"

	"github.com/syndtr/gocapability/capability"
)

// Set names one of the five capability sets a process or file carries.
type Set int

const (
	Effective Set = iota
	Permitted
	Inheritable
	Bounding
	Ambient
)

// IAB is the triple of capability sets the launcher computes for a child
// process: Inheritable, Ambient, Bounding. Effective and Permitted are
// derived by the kernel from these at exec time.
type IAB struct {
	Inheritable []capability.Cap
	Ambient     []capability.Cap
	Bounding    []capability.Cap
}

// Empty reports whether the IAB triple grants no capabilities at all. A
// task with no capabilities must still launch cleanly (spec.md §8).
func (iab IAB) Empty() bool {
	return len(iab.Inheritable) == 0 && len(iab.Ambient) == 0 && len(iab.Bounding) == 0
}

// CapFromName resolves a textual capability name (e.g. "cap_net_bind_service"
// or "CAP_NET_BIND_SERVICE") to its kernel value, bounded by the running
// kernel's highest known capability (spec.md Invariant 4).
func CapFromName(name string) (capability.Cap, bool) {
	want := normalizeCapName(name)
	max := MaxCap()
	for _, c := range capability.List() {
		if c > max {
			continue
		}
		if c.String() == want {
			return c, true
		}
	}
	return 0, false
}

// CapToName renders a capability value as its canonical lower-case name.
func CapToName(c capability.Cap) string {
	return c.String()
}

// AllCaps returns every capability known to the running kernel, in
// ascending order, for a task whose policy declares `capabilities="all"`.
func AllCaps() []capability.Cap {
	max := MaxCap()
	caps := make([]capability.Cap, 0, int(max)+1)
	for c := capability.Cap(0); c <= max; c++ {
		caps = append(caps, c)
	}
	return caps
}

func normalizeCapName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	return strings.TrimPrefix(n, "cap_")
}
