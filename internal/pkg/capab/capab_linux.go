//go:build linux

package capab

import (
	"github.com/sr-toolkit/sr/internal/pkg/errs"
	"github.com/syndtr/gocapability/capability"
	"golang.org/x/sys/unix"
)

// MaxCap returns the highest capability number the running kernel knows
// about, per /proc/sys/kernel/cap_last_cap via gocapability.
func MaxCap() capability.Cap {
	return capability.CAP_LAST_CAP
}

func self() (capability.Capabilities, error) {
	c, err := capability.NewPid2(0)
	if err != nil {
		return nil, errs.Wrap(errs.CapabilityOp, err, "reading process capabilities")
	}
	if err := c.Load(); err != nil {
		return nil, errs.Wrap(errs.CapabilityOp, err, "loading process capabilities")
	}
	return c, nil
}

// EffectiveHas reports whether the calling process currently carries cap
// in its effective set.
func EffectiveHas(cap capability.Cap) (bool, error) {
	c, err := self()
	if err != nil {
		return false, err
	}
	return c.Get(capability.EFFECTIVE, cap), nil
}

// EffectiveSet toggles caps in the caller's effective set. It fails if a
// requested capability is not present in the permitted set: the kernel
// cannot raise what is not already permitted.
func EffectiveSet(caps []capability.Cap, enable bool) error {
	c, err := self()
	if err != nil {
		return err
	}
	for _, cp := range caps {
		if enable && !c.Get(capability.PERMITTED, cp) {
			return errs.New(errs.CapabilityOp, "capability %s not in permitted set", cp)
		}
	}
	if enable {
		c.Set(capability.EFFECTIVE, caps...)
	} else {
		c.Unset(capability.EFFECTIVE, caps...)
	}
	if err := c.Apply(capability.CAPS); err != nil {
		return errs.Wrap(errs.CapabilityOp, err, "applying effective set")
	}
	return nil
}

// SetInheritable replaces the process's inheritable set wholesale.
func SetInheritable(caps []capability.Cap) error {
	c, err := self()
	if err != nil {
		return err
	}
	c.Clear(capability.INHERITABLE)
	c.Set(capability.INHERITABLE, caps...)
	if err := c.Apply(capability.CAPS); err != nil {
		return errs.Wrap(errs.CapabilityOp, err, "setting inheritable set")
	}
	return nil
}

// SetAmbient raises each capability in caps into the ambient set, one bit
// at a time as spec.md §4.5 step 4 requires. Each bit must already be
// present in both the permitted and inheritable sets or the kernel
// refuses it (PR_CAP_AMBIENT_RAISE semantics).
func SetAmbient(caps []capability.Cap) error {
	for _, cp := range caps {
		if err := unix.Prctl(unix.PR_CAP_AMBIENT, capAmbientRaise, uintptr(cp), 0, 0); err != nil {
			return errs.Wrap(errs.CapabilityOp, err, "raising ambient capability %s", cp)
		}
	}
	return nil
}

// ClearAmbient drops every ambient capability, used before a uid change
// clears them implicitly so state stays well-defined on the failure path.
func ClearAmbient() error {
	if err := unix.Prctl(unix.PR_CAP_AMBIENT, capAmbientClearAll, 0, 0, 0); err != nil {
		return errs.Wrap(errs.CapabilityOp, err, "clearing ambient set")
	}
	return nil
}

// SetBounding restricts the bounding set to keep. The kernel only allows
// dropping bounding bits, never raising them, so any bit not in keep is
// dropped one at a time via PR_CAPBSET_DROP.
func SetBounding(keep []capability.Cap) error {
	keepSet := make(map[capability.Cap]bool, len(keep))
	for _, c := range keep {
		keepSet[c] = true
	}
	max := MaxCap()
	for c := capability.Cap(0); c <= max; c++ {
		if keepSet[c] {
			continue
		}
		if err := unix.Prctl(unix.PR_CAPBSET_DROP, uintptr(c), 0, 0, 0); err != nil {
			if err == unix.EINVAL {
				continue
			}
			return errs.Wrap(errs.CapabilityOp, err, "dropping bounding capability %s", c)
		}
	}
	return nil
}

// FileSetPermitted stamps caps as the permitted (+effective) file
// capability set on the file at path, used to build the transient helper
// executable.
func FileSetPermitted(path string, caps []capability.Cap) error {
	c, err := capability.NewFile2(path)
	if err != nil {
		return errs.Wrap(errs.CapabilityOp, err, "opening %s for file capabilities", path)
	}
	c.Set(capability.CAPS|capability.BOUNDS, caps...)
	for _, cp := range caps {
		// CAP_EFFECTIVE must be raised alongside CAP_PERMITTED on a file
		// or the kernel ignores the file capability entirely at exec.
		c.Set(capability.EFFECTIVE, cp)
	}
	if err := c.Apply(capability.CAPS); err != nil {
		return errs.Wrap(errs.CapabilityOp, err, "stamping file capabilities on %s", path)
	}
	return nil
}

// Securebits lock bits, from linux/securebits.h. gocapability does not
// cover securebits so these are defined locally.
const (
	secbitNoRoot              = 1 << 0
	secbitNoRootLocked        = 1 << 1
	secbitNoSetuidFixup       = 1 << 2
	secbitNoSetuidFixupLocked = 1 << 3
	secbitKeepCaps            = 1 << 4
	secbitKeepCapsLocked      = 1 << 5

	capAmbientRaise    = 2 // PR_CAP_AMBIENT_RAISE
	capAmbientClearAll = 4 // PR_CAP_AMBIENT_CLEAR_ALL
)

// LockNoRoot atomically sets the no-root securebits (NOROOT|NOROOT_LOCKED
// combined with NO_SETUID_FIXUP|NO_SETUID_FIXUP_LOCKED, plus KEEP_CAPS so
// a later uid change does not implicitly drop capabilities before the
// helper has repopulated permitted from file caps). It must hold
// CAP_SETPCAP in the effective set, per spec.md §4.1.
func LockNoRoot() error {
	has, err := EffectiveHas(capability.CAP_SETPCAP)
	if err != nil {
		return err
	}
	if !has {
		if err := EffectiveSet([]capability.Cap{capability.CAP_SETPCAP}, true); err != nil {
			return errs.Wrap(errs.CapabilityOp, err, "raising CAP_SETPCAP to lock securebits")
		}
	}
	bits := secbitNoRoot | secbitNoRootLocked | secbitNoSetuidFixup |
		secbitNoSetuidFixupLocked | secbitKeepCaps | secbitKeepCapsLocked
	if err := unix.Prctl(unix.PR_SET_SECUREBITS, uintptr(bits), 0, 0, 0); err != nil {
		return errs.Wrap(errs.CapabilityOp, err, "locking securebits")
	}
	return nil
}

// SetNoNewPrivs sets PR_SET_NO_NEW_PRIVS so the exec'd command (and any
// descendants) can never regain privileges via setuid-root or file
// capabilities beyond what was explicitly granted.
func SetNoNewPrivs() error {
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return errs.Wrap(errs.CapabilityOp, err, "setting no_new_privs")
	}
	return nil
}

// Names renders a list of capabilities as their canonical lower-case
// names, in the order given, for use in diagnostics.
func Names(caps []capability.Cap) []string {
	out := make([]string, 0, len(caps))
	for _, c := range caps {
		out = append(out, c.String())
	}
	return out
}
