// Package policy loads and validates the role-based access configuration
// document (spec.md §3) that the matcher scores candidates against.
//
// The on-disk format is XML (spec.md §6: "Document path fixed at
// /etc/security/rootasrole.xml"). Roles, tasks, and actors are kept as
// flat slices addressed by integer handles (RoleID/TaskID/ActorID)
// rather than the original's pointer graph, per spec.md §9's portability
// note — a document is immutable once loaded, so handle indexing into a
// slice is simpler than a tree of pointers and plays nicely with
// go-cmp-based round-trip tests.
package policy

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"

	"github.com/sr-toolkit/sr/internal/pkg/capab"
	"github.com/sr-toolkit/sr/internal/pkg/errs"
)

// RoleID indexes Document.Roles.
type RoleID int

// TaskID indexes Document.Tasks.
type TaskID int

// ActorID indexes Document.Actors.
type ActorID int

// Options is the override block that can appear at document root, role,
// or task scope (spec.md §3). A nil pointer field means "not set at this
// scope"; resolution walks root -> role -> task, last non-nil wins,
// except where Enforce pins a value.
type Options struct {
	Path          *string
	EnvKeep       []string
	EnvCheck      []string
	AllowRoot     *bool
	AllowRootLock bool
	AllowBounding *bool
	AllowBndLock  bool
}

// Actor is one actor entry: either a bare user name, or a comma-joined
// group-list (spec.md §3 "a set of user names and a set of group-lists").
type Actor struct {
	User  string // non-empty for a user entry
	Group string // non-empty, comma-separated, for a group-list entry
}

// IsUser reports whether this is a user-name actor entry.
func (a Actor) IsUser() bool { return a.User != "" }

// Task is one task within a role: a command set, a capability set, an
// optional target identity, and its own options override block.
type Task struct {
	ID           TaskID
	Commands     []string // raw, unparsed command patterns (see command.Parse)
	CapsAll      bool     // capabilities == "all"
	Caps         []string // textual capability names; ignored if CapsAll
	SetUser      string   // optional target user, name or numeric id
	SetGroups    []string // optional target groups, first primary
	Options      Options
	DocOrder     int // position of the task within its role in the source document
}

// Role is a named set of actors and tasks.
type Role struct {
	ID      RoleID
	Name    string
	Actors  []ActorID
	Tasks   []TaskID
	Options Options
}

// Document is an immutable, loaded configuration: the full set of roles,
// tasks, and actors plus document-root defaults.
type Document struct {
	Path     string
	Defaults Options
	Roles    []Role
	Tasks    []Task
	Actors   []Actor
}

// --- XML wire shapes -------------------------------------------------

type xmlDocument struct {
	XMLName  xml.Name   `xml:"rootasrole"`
	Defaults xmlOptions `xml:"options"`
	Roles    []xmlRole  `xml:"role"`
}

type xmlRole struct {
	Name    string     `xml:"name,attr"`
	Actors  []xmlActor `xml:"actor"`
	Tasks   []xmlTask  `xml:"task"`
	Options xmlOptions `xml:"options"`
}

type xmlActor struct {
	User  string `xml:"user,attr"`
	Group string `xml:"group,attr"`
}

type xmlTask struct {
	Commands     []string   `xml:"command"`
	Capabilities string     `xml:"capabilities"`
	SetUser      string     `xml:"setuser"`
	SetGroups    []string   `xml:"setgroups>group"`
	Options      xmlOptions `xml:"options"`
}

type xmlBoolOpt struct {
	Value   bool   `xml:",chardata"`
	Enforce string `xml:"enforce,attr"`
}

type xmlOptions struct {
	Path       *string     `xml:"path"`
	EnvKeep    []string    `xml:"env-keep>name"`
	EnvCheck   []string    `xml:"env-check>name"`
	AllowRoot  *xmlBoolOpt `xml:"allow-root"`
	AllowBound *xmlBoolOpt `xml:"allow-bounding"`
}

// Load reads and parses the document at path, returning a validated
// Document. On any structural or semantic error the result is a
// PolicyInvalid (or PolicyMissing, if the file cannot be opened).
func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.PolicyMissing, err, "opening policy file %q", path)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, errs.Wrap(errs.PolicyMissing, err, "reading policy file %q", path)
	}

	var x xmlDocument
	if err := xml.Unmarshal(raw, &x); err != nil {
		return nil, errs.Wrap(errs.PolicyInvalid, err, "parsing policy file %q", path)
	}

	doc := fromXML(path, x)
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

func fromXML(path string, x xmlDocument) *Document {
	doc := &Document{
		Path:     path,
		Defaults: toOptions(x.Defaults),
	}
	for _, xr := range x.Roles {
		role := Role{ID: RoleID(len(doc.Roles)), Name: xr.Name, Options: toOptions(xr.Options)}
		for _, xa := range xr.Actors {
			aid := ActorID(len(doc.Actors))
			doc.Actors = append(doc.Actors, Actor{User: xa.User, Group: xa.Group})
			role.Actors = append(role.Actors, aid)
		}
		for i, xt := range xr.Tasks {
			tid := TaskID(len(doc.Tasks))
			task := Task{
				ID:        tid,
				Commands:  xt.Commands,
				SetUser:   xt.SetUser,
				SetGroups: xt.SetGroups,
				Options:   toOptions(xt.Options),
				DocOrder:  i,
			}
			task.CapsAll, task.Caps = parseCaps(xt.Capabilities)
			doc.Tasks = append(doc.Tasks, task)
			role.Tasks = append(role.Tasks, tid)
		}
		doc.Roles = append(doc.Roles, role)
	}
	return doc
}

func parseCaps(raw string) (all bool, caps []string) {
	if raw == "all" {
		return true, nil
	}
	if raw == "" {
		return false, nil
	}
	return false, splitCommaList(raw)
}

func splitCommaList(raw string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if tok := trimSpace(raw[start:i]); tok != "" {
				out = append(out, tok)
			}
			start = i + 1
		}
	}
	return out
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\n' || b == '\r' }

func toOptions(x xmlOptions) Options {
	o := Options{Path: x.Path, EnvKeep: x.EnvKeep, EnvCheck: x.EnvCheck}
	if x.AllowRoot != nil {
		v := x.AllowRoot.Value
		o.AllowRoot = &v
		o.AllowRootLock = x.AllowRoot.Enforce == "true"
	}
	if x.AllowBound != nil {
		v := x.AllowBound.Value
		o.AllowBounding = &v
		o.AllowBndLock = x.AllowBound.Enforce == "true"
	}
	return o
}

// Render serializes doc back to the XML wire format, for the
// Load->Render->Load round-trip property required by spec.md §8.
func Render(doc *Document) ([]byte, error) {
	x := xmlDocument{Defaults: fromOptions(doc.Defaults)}
	for _, r := range doc.Roles {
		xr := xmlRole{Name: r.Name, Options: fromOptions(r.Options)}
		for _, aid := range r.Actors {
			a := doc.Actors[aid]
			xr.Actors = append(xr.Actors, xmlActor{User: a.User, Group: a.Group})
		}
		for _, tid := range r.Tasks {
			t := doc.Tasks[tid]
			xt := xmlTask{
				Commands:  t.Commands,
				SetUser:   t.SetUser,
				SetGroups: t.SetGroups,
				Options:   fromOptions(t.Options),
			}
			if t.CapsAll {
				xt.Capabilities = "all"
			} else if len(t.Caps) > 0 {
				xt.Capabilities = joinCommaList(t.Caps)
			}
			xr.Tasks = append(xr.Tasks, xt)
		}
		x.Roles = append(x.Roles, xr)
	}
	out, err := xml.MarshalIndent(x, "", "  ")
	if err != nil {
		return nil, errs.Wrap(errs.PolicyInvalid, err, "rendering policy document")
	}
	return out, nil
}

func joinCommaList(items []string) string {
	s := ""
	for i, it := range items {
		if i > 0 {
			s += ","
		}
		s += it
	}
	return s
}

func fromOptions(o Options) xmlOptions {
	x := xmlOptions{Path: o.Path, EnvKeep: o.EnvKeep, EnvCheck: o.EnvCheck}
	if o.AllowRoot != nil {
		enforce := ""
		if o.AllowRootLock {
			enforce = "true"
		}
		x.AllowRoot = &xmlBoolOpt{Value: *o.AllowRoot, Enforce: enforce}
	}
	if o.AllowBounding != nil {
		enforce := ""
		if o.AllowBndLock {
			enforce = "true"
		}
		x.AllowBound = &xmlBoolOpt{Value: *o.AllowBounding, Enforce: enforce}
	}
	return x
}

// Validate checks the document-level invariants of spec.md §3: every
// task has a non-empty command set, every named capability is known to
// the running kernel, and every role has a name. Any violation fails the
// whole load with PolicyInvalid: a task naming an unknown capability is
// rejected at load time rather than skipped as unmatchable (see
// DESIGN.md). Option override blocks are not checked.
func (d *Document) Validate() error {
	for _, t := range d.Tasks {
		if len(t.Commands) == 0 {
			return errs.New(errs.PolicyInvalid, "%s: task %d has an empty command set", d.Path, t.ID)
		}
		if !t.CapsAll {
			for _, name := range t.Caps {
				if _, ok := capab.CapFromName(name); !ok {
					return errs.New(errs.PolicyInvalid, "%s: task %d names unknown capability %q", d.Path, t.ID, name)
				}
			}
		}
	}
	for _, r := range d.Roles {
		if r.Name == "" {
			return errs.New(errs.PolicyInvalid, "%s: role %d has no name", d.Path, r.ID)
		}
	}
	return nil
}

// RoleByName returns the role with the given name, if any.
func (d *Document) RoleByName(name string) (Role, bool) {
	for _, r := range d.Roles {
		if r.Name == name {
			return r, true
		}
	}
	return Role{}, false
}

// Actor resolves an ActorID to its Actor value.
func (d *Document) Actor(id ActorID) Actor { return d.Actors[id] }

// Task resolves a TaskID to its Task value.
func (d *Document) Task(id TaskID) Task { return d.Tasks[id] }

// String is used in diagnostics (spec.md §7 "list the tied role/task
// identities to standard error").
func (r Role) String() string { return fmt.Sprintf("role(%d:%s)", r.ID, r.Name) }

// String identifies a task for ambiguity diagnostics.
func (t Task) String() string { return fmt.Sprintf("task(%d)", t.ID) }
