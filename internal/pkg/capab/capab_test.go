package capab

import (
	"testing"

	"github.com/syndtr/gocapability/capability"
)

func TestCapFromNameRoundTrip(t *testing.T) {
	cases := []string{"cap_net_bind_service", "CAP_NET_BIND_SERVICE", "net_bind_service", "  cap_sys_admin "}
	for _, in := range cases {
		c, ok := CapFromName(in)
		if !ok {
			t.Fatalf("CapFromName(%q): not found", in)
		}
		if got := CapToName(c); got == "" {
			t.Fatalf("CapToName(%v) returned empty string for input %q", c, in)
		}
	}
}

func TestCapFromNameUnknown(t *testing.T) {
	if _, ok := CapFromName("cap_totally_made_up"); ok {
		t.Fatalf("expected unknown capability name to be rejected")
	}
}

func TestIABEmpty(t *testing.T) {
	if !(IAB{}).Empty() {
		t.Fatalf("zero-value IAB should be Empty")
	}
	nonEmpty := IAB{Inheritable: []capability.Cap{capability.CAP_CHOWN}}
	if nonEmpty.Empty() {
		t.Fatalf("IAB with an inheritable capability should not be Empty")
	}
}
