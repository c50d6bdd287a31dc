// Command capable observes which Linux capabilities a command actually
// exercises (spec.md §4.6, §6 "`capable` CLI") by attaching a kernel
// probe for the duration of the run and reporting the capabilities
// seen per process.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	appcapable "github.com/sr-toolkit/sr/internal/app/capable"
	"github.com/sr-toolkit/sr/internal/pkg/sysl"
	"github.com/sr-toolkit/sr/internal/pkg/util/env"
	"github.com/sr-toolkit/sr/pkg/cmdline"
)

func init() {
	env.Prefixes = []string{"CAPABLE_"}
}

var (
	flagCommand    string
	flagSeconds    int
	flagDaemon     bool
	flagKillTarget bool
	flagOutput     string
	flagVerbose    bool
)

func main() {
	root := &cobra.Command{
		Use:           "capable",
		Short:         "Report which capabilities a command exercises",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sysl.SetVerbose(flagVerbose)
			if flagCommand == "" && len(args) > 0 {
				flagCommand = joinArgs(args)
			}
			code := appcapable.Run(appcapable.Options{
				Command:    flagCommand,
				Seconds:    flagSeconds,
				Daemon:     flagDaemon,
				KillTarget: flagKillTarget,
				Output:     flagOutput,
			})
			os.Exit(code)
			return nil
		},
	}

	manager := cmdline.NewManager()
	registerFlags(root, manager)

	if err := manager.UpdateCmdFlagFromEnv(root, 0); err != nil {
		fmt.Fprintln(os.Stderr, "capable:", err)
		os.Exit(2)
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "capable:", err)
		os.Exit(2)
	}
}

func registerFlags(root *cobra.Command, m *cmdline.Manager) {
	must := func(err error) {
		if err != nil {
			fmt.Fprintln(os.Stderr, "capable:", err)
			os.Exit(2)
		}
	}

	must(m.RegisterFlagForCmd(&cmdline.Flag{
		ID: "command", Value: &flagCommand, DefaultValue: "", Name: "command", ShortHand: "c",
		Usage: "command to run and observe", EnvKeys: []string{"COMMAND"},
	}, root))
	must(m.RegisterFlagForCmd(&cmdline.Flag{
		ID: "seconds", Value: &flagSeconds, DefaultValue: 0, Name: "seconds", ShortHand: "s",
		Usage: "observation window in seconds (0 means until the target exits or SIGINT)", EnvKeys: []string{"SECONDS"},
	}, root))
	must(m.RegisterFlagForCmd(&cmdline.Flag{
		ID: "daemon", Value: &flagDaemon, DefaultValue: false, Name: "daemon", ShortHand: "d",
		Usage: "observe system-wide instead of a single target, until the window ends or SIGINT",
	}, root))
	must(m.RegisterFlagForCmd(&cmdline.Flag{
		ID: "kill", Value: &flagKillTarget, DefaultValue: false, Name: "kill", ShortHand: "k",
		Usage: "send SIGINT to the target once the observation window ends",
	}, root))
	must(m.RegisterFlagForCmd(&cmdline.Flag{
		ID: "output", Value: &flagOutput, DefaultValue: "table", Name: "output", ShortHand: "o",
		Usage: "report format: table or yaml", EnvKeys: []string{"OUTPUT"},
	}, root))
	must(m.RegisterFlagForCmd(&cmdline.Flag{
		ID: "verbose", Value: &flagVerbose, DefaultValue: false, Name: "verbose", ShortHand: "v",
		Usage: "enable debug logging", EnvKeys: []string{"DEBUG"},
	}, root))
}

func joinArgs(args []string) string {
	out := args[0]
	for _, a := range args[1:] {
		out += " " + a
	}
	return out
}
