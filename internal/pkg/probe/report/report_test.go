package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sr-toolkit/sr/internal/pkg/probe"
)

func TestBuildSortsByPID(t *testing.T) {
	agg := probe.AggregateMap{42: 0, 7: 1 << 0}
	rows := Build(agg)
	if len(rows) != 2 || rows[0].PID != 7 || rows[1].PID != 42 {
		t.Fatalf("expected rows sorted by pid, got %+v", rows)
	}
}

func TestWriteNoCapabilitiesMessage(t *testing.T) {
	var buf bytes.Buffer
	Write(&buf, []Row{{PID: 1, PPID: 0, Name: "init"}})
	if !strings.Contains(buf.String(), "No capabilities needed") {
		t.Fatalf("expected zero-mask row to render the no-capabilities message, got:\n%s", buf.String())
	}
}

func TestWriteJoinsCapabilityNames(t *testing.T) {
	var buf bytes.Buffer
	Write(&buf, []Row{{PID: 1, PPID: 0, Name: "x", Capabilities: []string{"cap_net_admin", "cap_sys_admin"}}})
	out := buf.String()
	if !strings.Contains(out, "cap_net_admin,cap_sys_admin") {
		t.Fatalf("expected comma-joined sorted capability names, got:\n%s", out)
	}
}
