// Package env holds the environment-variable prefix each CLI entry
// point looks for when resolving flag values from the process
// environment (pkg/cmdline's updateCmdFlagFromEnv), mirroring the
// teacher's APPTAINERENV_/SINGULARITYENV_ dual-prefix precedence list.
package env

// Prefixes is searched in order: index 0 is the primary, preferred
// prefix; any later entries are accepted for compatibility but logged
// as deprecated in favor of index 0. Each cmd/ entry point sets this in
// its own init() before cobra executes.
var Prefixes = []string{"SR_"}
