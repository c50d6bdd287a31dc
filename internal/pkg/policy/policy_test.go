package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleXML = `<rootasrole>
  <options>
    <path>/usr/bin:/bin</path>
  </options>
  <role name="admin">
    <actor user="alice"/>
    <actor group="wheel,ops"/>
    <task>
      <command>/bin/systemctl restart nginx</command>
      <capabilities>cap_net_bind_service</capabilities>
      <setuser>0</setuser>
    </task>
  </role>
</rootasrole>`

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "rootasrole.xml")
	if err := os.WriteFile(path, []byte(sampleXML), 0o644); err != nil {
		t.Fatalf("writing sample policy: %v", err)
	}
	return path
}

func TestLoadParsesRolesActorsTasks(t *testing.T) {
	path := writeSample(t)
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(doc.Roles) != 1 || doc.Roles[0].Name != "admin" {
		t.Fatalf("unexpected roles: %+v", doc.Roles)
	}
	if len(doc.Actors) != 2 {
		t.Fatalf("expected 2 actors, got %d", len(doc.Actors))
	}
	task := doc.Tasks[0]
	if len(task.Commands) != 1 || task.Commands[0] != "/bin/systemctl restart nginx" {
		t.Fatalf("unexpected commands: %+v", task.Commands)
	}
	if task.CapsAll || len(task.Caps) != 1 || task.Caps[0] != "cap_net_bind_service" {
		t.Fatalf("unexpected caps: all=%v caps=%+v", task.CapsAll, task.Caps)
	}
}

func TestLoadRejectsEmptyCommandSet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.xml")
	bad := `<rootasrole><role name="r"><task><capabilities>all</capabilities></task></role></rootasrole>`
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected PolicyInvalid for task with empty command set")
	}
}

func TestLoadRejectsUnknownCapability(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.xml")
	bad := `<rootasrole><role name="r"><task><command>/bin/true</command><capabilities>cap_not_a_real_cap</capabilities></task></role></rootasrole>`
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected PolicyInvalid for unknown capability name")
	}
}

func TestRoundTripLoadRenderLoad(t *testing.T) {
	path := writeSample(t)
	doc1, err := Load(path)
	if err != nil {
		t.Fatalf("first Load() error = %v", err)
	}

	rendered, err := Render(doc1)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	dir := t.TempDir()
	path2 := filepath.Join(dir, "rendered.xml")
	if err := os.WriteFile(path2, rendered, 0o644); err != nil {
		t.Fatal(err)
	}

	doc2, err := Load(path2)
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}

	doc1.Path, doc2.Path = "", ""
	if diff := cmp.Diff(doc1, doc2); diff != "" {
		t.Fatalf("Load->Render->Load mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveEnforceLocksInnerScope(t *testing.T) {
	allowTrue := true
	allowFalse := false
	root := Options{AllowRoot: &allowFalse, AllowRootLock: true}
	role := Options{}
	task := Options{AllowRoot: &allowTrue}

	resolved := Resolve(root, role, task)
	if resolved.AllowRoot != false {
		t.Fatalf("expected enforced root-level allow-root=false to resist task override, got %v", resolved.AllowRoot)
	}
}

func TestResolveInnerScopeWinsWithoutEnforce(t *testing.T) {
	p1 := "/bin"
	p2 := "/usr/bin"
	root := Options{Path: &p1}
	task := Options{Path: &p2}

	resolved := Resolve(root, Options{}, task)
	if resolved.Path != p2 {
		t.Fatalf("expected task-level path to win, got %q", resolved.Path)
	}
}
