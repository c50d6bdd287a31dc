package launcher

import (
	"strings"
	"testing"

	"github.com/sr-toolkit/sr/internal/pkg/matcher"
	"github.com/sr-toolkit/sr/internal/pkg/policy"
)

func TestPrepareNoSetUserLeavesTargetUIDUnset(t *testing.T) {
	dec := matcher.Decision{
		Role: policy.Role{Name: "readonly"},
		Task: policy.Task{},
	}
	s, err := Prepare(dec, []string{"/bin/true"}, nil, nil)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if s.HasTargetUID {
		t.Fatalf("expected HasTargetUID=false when task.SetUser is empty")
	}
}

// TestPrepareWithUIDOverrideSetsTargetIdentity covers -u (spec.md §6):
// a non-nil override must win over the task's own setuser/setgroups.
func TestPrepareWithUIDOverrideSetsTargetIdentity(t *testing.T) {
	dec := matcher.Decision{
		Role: policy.Role{Name: "readonly"},
		Task: policy.Task{SetUser: "nobody", SetGroups: []string{"users"}},
	}
	override := &UIDOverride{UID: 4242, GID: 4243}
	s, err := Prepare(dec, []string{"/bin/true"}, nil, override)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if !s.HasTargetUID {
		t.Fatalf("expected HasTargetUID=true with a UID override")
	}
	if s.TargetUID != 4242 {
		t.Fatalf("expected TargetUID=4242 from the override, got %d", s.TargetUID)
	}
	if s.TargetGID != 4243 {
		t.Fatalf("expected TargetGID=4243 from the override, got %d", s.TargetGID)
	}
	if len(s.TargetGroups) != 1 || s.TargetGroups[0] != 4243 {
		t.Fatalf("expected TargetGroups=[4243] from the override, got %v", s.TargetGroups)
	}
}

func TestChildEnvironIncludesPS1AndPath(t *testing.T) {
	s := Settings{
		RoleName: "admin",
		Path:     "/usr/bin:/bin",
	}
	env := s.childEnviron()

	var sawPath, sawPS1 bool
	for _, kv := range env {
		if kv == "PATH=/usr/bin:/bin" {
			sawPath = true
		}
		if strings.HasPrefix(kv, "PS1=") && strings.Contains(kv, "admin") {
			sawPS1 = true
		}
	}
	if !sawPath {
		t.Errorf("expected child environment to carry the resolved PATH, got %v", env)
	}
	if !sawPS1 {
		t.Errorf("expected child environment to carry a PS1 naming the matched role, got %v", env)
	}
}
