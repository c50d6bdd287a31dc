// Command sr is the privilege-escalation front-end of spec.md §6: it
// resolves the invoking user against a role-based policy document and,
// on a match, launches the requested command with exactly the
// privileges that role's task grants.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	appsr "github.com/sr-toolkit/sr/internal/app/sr"
	"github.com/sr-toolkit/sr/internal/pkg/sysl"
	"github.com/sr-toolkit/sr/internal/pkg/util/env"
	"github.com/sr-toolkit/sr/pkg/cmdline"
)

func init() {
	env.Prefixes = []string{"SR_"}
}

var (
	flagRole        string
	flagUser        string
	flagCommand     string
	flagForceNoRoot bool
	flagListOnly    bool
	flagPolicyPath  string
	flagVerbose     bool
)

func main() {
	root := &cobra.Command{
		Use:           "sr",
		Short:         "Run a command with the privileges a role-based policy grants",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sysl.SetVerbose(flagVerbose)
			if flagCommand == "" && len(args) > 0 {
				flagCommand = joinArgs(args)
			}
			code := appsr.Run(appsr.Options{
				PolicyPath:  flagPolicyPath,
				Role:        flagRole,
				TargetUser:  flagUser,
				Command:     flagCommand,
				ForceNoRoot: flagForceNoRoot,
				ListOnly:    flagListOnly,
			})
			os.Exit(code)
			return nil
		},
	}

	manager := cmdline.NewManager()
	registerFlags(root, manager)

	if err := manager.UpdateCmdFlagFromEnv(root, 0); err != nil {
		fmt.Fprintln(os.Stderr, "sr:", err)
		os.Exit(2)
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sr:", err)
		os.Exit(2)
	}
}

func registerFlags(root *cobra.Command, m *cmdline.Manager) {
	must := func(err error) {
		if err != nil {
			fmt.Fprintln(os.Stderr, "sr:", err)
			os.Exit(2)
		}
	}

	must(m.RegisterFlagForCmd(&cmdline.Flag{
		ID: "role", Value: &flagRole, DefaultValue: "", Name: "role", ShortHand: "r",
		Usage: "role to assume (searches all roles if absent)", EnvKeys: []string{"ROLE"},
	}, root))
	must(m.RegisterFlagForCmd(&cmdline.Flag{
		ID: "user", Value: &flagUser, DefaultValue: "", Name: "user", ShortHand: "u",
		Usage: "target user (requires CAP_SETUID+CAP_SETGID at effective)", EnvKeys: []string{"USER"},
	}, root))
	must(m.RegisterFlagForCmd(&cmdline.Flag{
		ID: "command", Value: &flagCommand, DefaultValue: "", Name: "command", ShortHand: "c",
		Usage: "command string, shell-word-split before matching", EnvKeys: []string{"COMMAND"},
	}, root))
	must(m.RegisterFlagForCmd(&cmdline.Flag{
		ID: "no-root", Value: &flagForceNoRoot, DefaultValue: false, Name: "no-root", ShortHand: "n",
		Usage: "force no_root on, overriding any policy option that would disable it",
	}, root))
	must(m.RegisterFlagForCmd(&cmdline.Flag{
		ID: "info", Value: &flagListOnly, DefaultValue: false, Name: "info", ShortHand: "i",
		Usage: "print which commands the invoker may run with the chosen role; do not execute",
	}, root))
	must(m.RegisterFlagForCmd(&cmdline.Flag{
		ID: "config", Value: &flagPolicyPath, DefaultValue: "", Name: "config", ShortHand: "",
		Usage: "policy document path (default " + appsr.DefaultPolicyPath + ")", EnvKeys: []string{"CONFIG"},
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
