// Package report renders a probe.AggregateMap into the
// PID|PPID|NAME|CAPABILITIES table spec.md §4.6 describes, resolving
// each pid's name via internal/pkg/procname.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/sr-toolkit/sr/internal/pkg/capab"
	"github.com/sr-toolkit/sr/internal/pkg/probe"
	"github.com/sr-toolkit/sr/internal/pkg/procname"
	"github.com/syndtr/gocapability/capability"
)

// Row is one rendered line of the report.
type Row struct {
	PID          int
	PPID         int
	Name         string
	Capabilities []string // sorted textual names, empty if none observed
}

// Build turns an aggregate map into sorted, name-resolved rows, sorted
// by pid for stable output.
func Build(agg probe.AggregateMap) []Row {
	rows := make([]Row, 0, len(agg))
	for pid, mask := range agg {
		info := procname.Lookup(pid)
		name := procname.Cmdline(pid)
		if name == "" {
			name = info.Name
		}
		rows = append(rows, Row{
			PID:          pid,
			PPID:         info.PPID,
			Name:         name,
			Capabilities: capNames(mask),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].PID < rows[j].PID })
	return rows
}

func capNames(mask uint64) []string {
	var names []string
	max := capab.MaxCap()
	for c := capability.Cap(0); int(c) <= int(max) && c < 64; c++ {
		if mask&(1<<uint(c)) != 0 {
			names = append(names, capab.CapToName(c))
		}
	}
	sort.Strings(names)
	return names
}

// Write renders rows as a fixed-width table to w, colorizing the
// capability column when w is a terminal (spec.md §4.6's rendering
// step, extended with the teacher's term.IsTerminal-gated colorization
// pattern from process_linux.go).
func Write(w io.Writer, rows []Row) {
	colorize := false
	if f, ok := w.(interface{ Fd() uintptr }); ok {
		colorize = term.IsTerminal(int(f.Fd()))
	}

	fmt.Fprintf(w, "%-8s %-8s %-20s %s\n", "PID", "PPID", "NAME", "CAPABILITIES")
	for _, r := range rows {
		caps := "No capabilities needed"
		if len(r.Capabilities) > 0 {
			caps = strings.Join(r.Capabilities, ",")
			if colorize {
				caps = color.New(color.FgYellow).Sprint(caps)
			}
		}
		fmt.Fprintf(w, "%-8d %-8d %-20s %s\n", r.PID, r.PPID, r.Name, caps)
	}
}

// yamlRow is Row's serialization shape: Capabilities marshals as an
// explicit empty list rather than YAML's "null" for a zero-capability
// process, matching table mode's "No capabilities needed" row.
type yamlRow struct {
	PID          int      `yaml:"pid"`
	PPID         int      `yaml:"ppid"`
	Name         string   `yaml:"name"`
	Capabilities []string `yaml:"capabilities"`
}

// WriteYAML renders rows in the machine-readable form scripts driving
// capable (e.g. a CI gate diffing observed against declared capability
// sets) can parse, as an alternative to Write's human-facing table.
func WriteYAML(w io.Writer, rows []Row) error {
	out := make([]yamlRow, len(rows))
	for i, r := range rows {
		caps := r.Capabilities
		if caps == nil {
			caps = []string{}
		}
		out[i] = yamlRow{PID: r.PID, PPID: r.PPID, Name: r.Name, Capabilities: caps}
	}
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(out)
}
