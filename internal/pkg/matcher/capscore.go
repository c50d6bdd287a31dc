package matcher

import "github.com/sr-toolkit/sr/internal/pkg/policy"

// adminCaps resolves spec.md §4.2's undefined "admin-level caps" subset
// for the Capability score's class 1 vs 2 split. original_source's
// capabilities.c only implements generic effective-set toggling, with no
// named admin list, so this enumeration is our own Open Question
// resolution (recorded in DESIGN.md): capabilities that grant
// kernel-wide control rather than a single bounded resource.
var adminCaps = map[string]bool{
	"cap_sys_admin":     true,
	"cap_sys_module":    true,
	"cap_sys_rawio":     true,
	"cap_sys_ptrace":    true,
	"cap_sys_boot":      true,
	"cap_sys_tty_config": true,
	"cap_net_admin":     true,
	"cap_mac_admin":     true,
	"cap_mac_override":  true,
}

// capabilityScore implements spec.md §4.2's capability axis: 0 = no
// caps, 1 = strict subset of admin-level caps, 2 = other specific caps,
// 3 = all.
func capabilityScore(t policy.Task) int {
	if t.CapsAll {
		return 3
	}
	if len(t.Caps) == 0 {
		return 0
	}
	for _, c := range t.Caps {
		if !adminCaps[normalizeCap(c)] {
			return 2
		}
	}
	return 1
}

func normalizeCap(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		b := name[i]
		if b >= 'A' && b <= 'Z' {
			b += 'a' - 'A'
		}
		out = append(out, b)
	}
	s := string(out)
	if len(s) >= 4 && s[:4] == "cap_" {
		return s
	}
	return "cap_" + s
}
