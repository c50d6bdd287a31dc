package cmdline

import "github.com/spf13/cobra"

// Manager is the package's exported entry point: cmd/sr and cmd/capable
// each build one, register their flags against their cobra commands,
// then call UpdateCmdFlagFromEnv before cmd.Execute() so environment
// variables can supply flag values the user didn't pass explicitly.
type Manager struct {
	inner *flagManager
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{inner: newFlagManager()}
}

// RegisterFlagForCmd attaches flag to every command in cmds.
func (m *Manager) RegisterFlagForCmd(flag *Flag, cmds ...*cobra.Command) error {
	return m.inner.registerFlagForCmd(flag, cmds...)
}

// UpdateCmdFlagFromEnv applies environment-variable overrides to every
// flag on cmd that declared EnvKeys, using env.Prefixes[precedence] (or
// no prefix, for flags marked WithoutPrefix, at precedence 0).
func (m *Manager) UpdateCmdFlagFromEnv(cmd *cobra.Command, precedence int) error {
	return m.inner.updateCmdFlagFromEnv(cmd, precedence, map[string]string{})
}
