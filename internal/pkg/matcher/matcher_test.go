package matcher

import (
	"testing"

	"github.com/sr-toolkit/sr/internal/pkg/errs"
	"github.com/sr-toolkit/sr/internal/pkg/identity"
	"github.com/sr-toolkit/sr/internal/pkg/policy"
)

func docWithTasks(tasks ...policy.Task) *policy.Document {
	doc := &policy.Document{}
	var actorIDs []policy.ActorID
	doc.Actors = append(doc.Actors, policy.Actor{User: "alice"})
	actorIDs = append(actorIDs, policy.ActorID(0))

	var taskIDs []policy.TaskID
	for i, t := range tasks {
		t.ID = policy.TaskID(i)
		doc.Tasks = append(doc.Tasks, t)
		taskIDs = append(taskIDs, policy.TaskID(i))
	}
	doc.Roles = append(doc.Roles, policy.Role{ID: 0, Name: "r", Actors: actorIDs, Tasks: taskIDs})
	return doc
}

func TestMatchPicksLeastPrivilegedCandidate(t *testing.T) {
	strict := policy.Task{Commands: []string{"/bin/ls -l"}}
	wildcard := policy.Task{Commands: []string{"/bin/ls *"}}
	doc := docWithTasks(strict, wildcard)

	req := Request{
		Invoker:         identity.Invoker{Name: "alice", UID: 1000},
		ResolvedCommand: "/bin/ls",
		JoinedArgs:      "-l",
	}
	dec, err := Match(doc, req)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if dec.Task.ID != 0 {
		t.Fatalf("expected the strict task (id 0) to win over the wildcard task, got task %d", dec.Task.ID)
	}
}

func TestMatchNoCandidateIsPermissionDenied(t *testing.T) {
	doc := docWithTasks(policy.Task{Commands: []string{"/bin/ls -l"}})
	req := Request{
		Invoker:         identity.Invoker{Name: "bob", UID: 1000},
		ResolvedCommand: "/bin/ls",
		JoinedArgs:      "-l",
	}
	_, err := Match(doc, req)
	kind, ok := errs.KindOf(err)
	if !ok || kind != errs.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
}

func TestMatchUnknownRoleName(t *testing.T) {
	doc := docWithTasks(policy.Task{Commands: []string{"/bin/ls"}})
	req := Request{
		Invoker:       identity.Invoker{Name: "alice", UID: 1000},
		RequestedRole: "nosuchrole",
	}
	_, err := Match(doc, req)
	kind, ok := errs.KindOf(err)
	if !ok || kind != errs.RoleUnknown {
		t.Fatalf("expected RoleUnknown, got %v", err)
	}
}

func TestMatchAmbiguousTieFails(t *testing.T) {
	a := policy.Task{Commands: []string{"/bin/ls -l"}}
	b := policy.Task{Commands: []string{"/bin/ls -l"}}
	doc := docWithTasks(a, b)

	req := Request{
		Invoker:         identity.Invoker{Name: "alice", UID: 1000},
		ResolvedCommand: "/bin/ls",
		JoinedArgs:      "-l",
	}
	_, err := Match(doc, req)
	kind, ok := errs.KindOf(err)
	if !ok || kind != errs.AmbiguousMatch {
		t.Fatalf("expected AmbiguousMatch for two identically scored tasks, got %v", err)
	}
}

// TestMatchForbiddenRootRejected covers spec.md §8 Scenario 3: a root
// invoker, no -n, and a policy that leaves allow-root at its default
// (false) must be rejected with PermissionDenied/"cannot execute as
// root" rather than falling through to the generic no-match message.
func TestMatchForbiddenRootRejected(t *testing.T) {
	doc := docWithTasks(policy.Task{Commands: []string{"/bin/ls -l"}})
	req := Request{
		Invoker:         identity.Invoker{Name: "alice", UID: 0},
		ResolvedCommand: "/bin/ls",
		JoinedArgs:      "-l",
	}
	_, err := Match(doc, req)
	kind, ok := errs.KindOf(err)
	if !ok || kind != errs.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
	if err.Error() != "cannot execute as root" {
		t.Fatalf("expected diagnostic %q, got %q", "cannot execute as root", err.Error())
	}
}

// TestMatchForbiddenRootViaSetUser covers the same invariant when the
// invoker is a non-root user but the matching task's own setuser
// targets root: the resulting identity is still root, so it is still
// rejected.
func TestMatchForbiddenRootViaSetUser(t *testing.T) {
	doc := docWithTasks(policy.Task{Commands: []string{"/bin/ls -l"}, SetUser: "0"})
	req := Request{
		Invoker:         identity.Invoker{Name: "alice", UID: 1000},
		ResolvedCommand: "/bin/ls",
		JoinedArgs:      "-l",
	}
	_, err := Match(doc, req)
	kind, ok := errs.KindOf(err)
	if !ok || kind != errs.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
	if err.Error() != "cannot execute as root" {
		t.Fatalf("expected diagnostic %q, got %q", "cannot execute as root", err.Error())
	}
}

// TestMatchForbiddenRootViaUIDOverride covers -u targeting uid 0: even
// with a non-root invoker and a task with no setuser, an explicit -u 0
// override is still a root target and is still rejected.
func TestMatchForbiddenRootViaUIDOverride(t *testing.T) {
	doc := docWithTasks(policy.Task{Commands: []string{"/bin/ls -l"}})
	rootUID := uint32(0)
	req := Request{
		Invoker:           identity.Invoker{Name: "alice", UID: 1000},
		ResolvedCommand:   "/bin/ls",
		JoinedArgs:        "-l",
		TargetUIDOverride: &rootUID,
	}
	_, err := Match(doc, req)
	kind, ok := errs.KindOf(err)
	if !ok || kind != errs.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
	if err.Error() != "cannot execute as root" {
		t.Fatalf("expected diagnostic %q, got %q", "cannot execute as root", err.Error())
	}
}

func TestSetuidScoreOrdering(t *testing.T) {
	cases := []struct {
		name     string
		task     policy.Task
		wantRank int
	}{
		{"none", policy.Task{}, 0},
		{"setuid non-root", policy.Task{SetUser: "nobody"}, 1},
		{"setuid non-root + setgid non-root", policy.Task{SetUser: "nobody", SetGroups: []string{"users"}}, 2},
		{"setgid non-root only", policy.Task{SetGroups: []string{"users"}}, 3},
		{"setgid root only", policy.Task{SetGroups: []string{"root"}}, 4},
		{"setuid non-root + setgid root", policy.Task{SetUser: "nobody", SetGroups: []string{"root"}}, 5},
		{"setuid root only", policy.Task{SetUser: "0"}, 6},
		{"setuid root + setgid non-root", policy.Task{SetUser: "0", SetGroups: []string{"users"}}, 7},
		{"setuid root + setgid root", policy.Task{SetUser: "0", SetGroups: []string{"root"}}, 8},
	}
	for _, c := range cases {
		got := setuidScore(c.task)
		if got != c.wantRank {
			t.Errorf("%s: setuidScore() = %d, want %d", c.name, got, c.wantRank)
		}
	}
}

func TestCapabilityScoreAdminVsOther(t *testing.T) {
	admin := policy.Task{Caps: []string{"cap_sys_admin"}}
	other := policy.Task{Caps: []string{"cap_net_bind_service"}}
	all := policy.Task{CapsAll: true}
	none := policy.Task{}

	if capabilityScore(none) != 0 {
		t.Errorf("expected no-caps score 0")
	}
	if capabilityScore(admin) != 1 {
		t.Errorf("expected admin-subset score 1, got %d", capabilityScore(admin))
	}
	if capabilityScore(other) != 2 {
		t.Errorf("expected other-caps score 2, got %d", capabilityScore(other))
	}
	if capabilityScore(all) != 3 {
		t.Errorf("expected all-caps score 3, got %d", capabilityScore(all))
	}
}
