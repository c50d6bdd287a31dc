// Package capable implements the capable CLI's behavior: spawn (or
// attach to) a target, run the capability probe for the configured
// observation window, and render the resulting report (spec.md §4.6).
package capable

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/sr-toolkit/sr/internal/pkg/command"
	"github.com/sr-toolkit/sr/internal/pkg/probe"
	"github.com/sr-toolkit/sr/internal/pkg/probe/report"
	"github.com/sr-toolkit/sr/internal/pkg/sysl"
)

// Options carries capable's CLI flags (spec.md §6 "`capable` CLI").
type Options struct {
	Command    string
	Seconds    int
	Daemon     bool
	KillTarget bool
	Output     string // "table" (default) or "yaml"
}

// Run drives one capable invocation end-to-end and returns the process
// exit code.
func Run(opts Options) int {
	collector, err := probe.NewCollector()
	if err != nil {
		fmt.Fprintln(os.Stderr, "capable:", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := collector.Attach(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "capable:", err)
		return 1
	}
	go drainEvents(events)

	var target *exec.Cmd
	var targetDone chan struct{}
	if opts.Command != "" {
		target, err = spawnTarget(opts.Command)
		if err != nil {
			fmt.Fprintln(os.Stderr, "capable:", err)
			return 1
		}
		targetDone = make(chan struct{})
		go func() {
			_ = target.Wait()
			close(targetDone)
		}()
	}

	waitForObservationWindow(opts, targetDone)

	if opts.KillTarget && target != nil && target.Process != nil {
		_ = target.Process.Signal(syscall.SIGINT)
	}

	agg, err := collector.Detach()
	if err != nil {
		sysl.Warningf("detaching probe: %v", err)
	}

	if targetDone != nil {
		<-targetDone // cmd.Wait() already in flight; let it finish reaping the child
	}

	rows := report.Build(agg)
	if opts.Output == "yaml" {
		if err := report.WriteYAML(os.Stdout, rows); err != nil {
			fmt.Fprintln(os.Stderr, "capable:", err)
			return 1
		}
		return 0
	}
	report.Write(os.Stdout, rows)
	return 0
}

func spawnTarget(commandStr string) (*exec.Cmd, error) {
	argv := command.Split(commandStr)
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting target %q: %w", commandStr, err)
	}
	return cmd, nil
}

// waitForObservationWindow blocks until one of spec.md §4.6's three
// stop conditions: a fixed duration, target exit, or SIGINT. In daemon
// mode (-d) only the duration and SIGINT conditions apply; targetDone
// is nil (no single target) or simply outlived by the daemon run.
func waitForObservationWindow(opts Options, targetDone <-chan struct{}) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	defer signal.Stop(sigCh)

	var timer <-chan time.Time
	if opts.Seconds > 0 {
		t := time.NewTimer(time.Duration(opts.Seconds) * time.Second)
		defer t.Stop()
		timer = t.C
	}

	if opts.Daemon {
		targetDone = nil
	}

	select {
	case <-sigCh:
		sysl.Infof("interrupted, draining capability map")
	case <-timer:
	case <-targetDone:
	}
}

func drainEvents(events <-chan probe.Event) {
	for range events {
		// The aggregate map itself is built from collector.Detach(); the
		// event stream exists for a future daemon-mode live view and is
		// drained here so the channel doesn't block the poller.
	}
}
