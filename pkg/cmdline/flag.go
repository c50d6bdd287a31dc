// Package cmdline provides a flag-registration layer over cobra/pflag
// that lets a flag be declared once and attached to several commands,
// with values resolvable from an environment variable as well as the
// command line.
package cmdline

import (
	"fmt"
	"os"

	"github.com/sr-toolkit/sr/internal/pkg/sysl"
	"github.com/sr-toolkit/sr/internal/pkg/util/env"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvHandler applies an environment variable's string value to a flag.
type EnvHandler func(flag *pflag.Flag, value string) error

// EnvSetValue is the default EnvHandler: it hands the raw string to the
// flag's own pflag.Value.Set, so it works uniformly across every flag
// type registerFlagForCmd supports.
func EnvSetValue(flag *pflag.Flag, value string) error {
	return flag.Value.Set(value)
}

// Flag holds information about a command flag. sr and capable only ever
// register string, bool, and int flags, so that is all this package
// binds — an unsupported DefaultValue type is a registration-time error
// rather than a dispatch case to add "just in case".
type Flag struct {
	ID           string
	Value        interface{}
	DefaultValue interface{}
	Name         string
	ShortHand    string
	Usage        string
	Deprecated   string
	Hidden       bool
	Required     bool
	EnvKeys      []string
	EnvHandler   EnvHandler
	// Export envar also without prefix
	WithoutPrefix bool
}

// flagManager manages cobra command flags and store them
// in a hash map
type flagManager struct {
	flags map[string]*Flag
}

// newFlagManager instantiates a flag manager and returns it
func newFlagManager() *flagManager {
	return &flagManager{
		flags: make(map[string]*Flag),
	}
}

func (m *flagManager) setFlagOptions(flag *Flag, cmd *cobra.Command) {
	cmd.Flags().SetAnnotation(flag.Name, "ID", []string{flag.ID})

	if len(flag.EnvKeys) > 0 {
		cmd.Flags().SetAnnotation(flag.Name, "envkey", flag.EnvKeys)

		// Environment flags can also be exported without a prefix (e.g. DOCKER_*)
		if flag.WithoutPrefix {
			cmd.Flags().SetAnnotation(flag.Name, "withoutPrefix", []string{"true"})
		}
	}
	if flag.Deprecated != "" {
		cmd.Flags().MarkDeprecated(flag.Name, flag.Deprecated)
	}
	if flag.Hidden {
		cmd.Flags().MarkHidden(flag.Name)
	}
	if flag.Required {
		cmd.MarkFlagRequired(flag.Name)
	}
}

// registerFlagForCmd binds flag onto every command in cmds. The bind
// step itself is picked by DefaultValue's type and expressed as a
// closure over a *pflag.FlagSet, so the three supported kinds share one
// copy of the "attach to every cmd, then set annotations" loop instead
// of repeating it per type.
func (m *flagManager) registerFlagForCmd(flag *Flag, cmds ...*cobra.Command) error {
	for _, c := range cmds {
		if c == nil {
			return fmt.Errorf("nil command provided")
		}
	}
	if flag == nil {
		return fmt.Errorf("nil flag provided")
	}
	if flag.EnvHandler == nil {
		flag.EnvHandler = EnvSetValue
	}

	bind, err := flag.binder()
	if err != nil {
		return err
	}
	for _, c := range cmds {
		bind(c.Flags())
		m.setFlagOptions(flag, c)
	}
	m.flags[flag.ID] = flag
	return nil
}

// binder returns the pflag registration call for flag's DefaultValue
// type, still unbound from any particular command's FlagSet.
func (flag *Flag) binder() (func(*pflag.FlagSet), error) {
	switch v := flag.DefaultValue.(type) {
	case string:
		p := flag.Value.(*string)
		return func(fs *pflag.FlagSet) {
			if flag.ShortHand != "" {
				fs.StringVarP(p, flag.Name, flag.ShortHand, v, flag.Usage)
			} else {
				fs.StringVar(p, flag.Name, v, flag.Usage)
			}
		}, nil
	case bool:
		p := flag.Value.(*bool)
		return func(fs *pflag.FlagSet) {
			if flag.ShortHand != "" {
				fs.BoolVarP(p, flag.Name, flag.ShortHand, v, flag.Usage)
			} else {
				fs.BoolVar(p, flag.Name, v, flag.Usage)
			}
		}, nil
	case int:
		p := flag.Value.(*int)
		return func(fs *pflag.FlagSet) {
			if flag.ShortHand != "" {
				fs.IntVarP(p, flag.Name, flag.ShortHand, v, flag.Usage)
			} else {
				fs.IntVar(p, flag.Name, v, flag.Usage)
			}
		}, nil
	default:
		return nil, fmt.Errorf("flag %s of type %T is not supported", flag.Name, flag.DefaultValue)
	}
}

// registeredFlag resolves the *Flag this package registered for a
// cobra/pflag.Flag, found via the "ID" annotation setFlagOptions wrote.
// Flags cobra adds on its own (e.g. --help) carry no such annotation.
func (m *flagManager) registeredFlag(flag *pflag.Flag) (*Flag, []string, bool) {
	envKeys, ok := flag.Annotations["envkey"]
	if !ok {
		return nil, nil, false
	}
	id, ok := flag.Annotations["ID"]
	if !ok {
		return nil, nil, false
	}
	mflag, ok := m.flags[id[0]]
	return mflag, envKeys, ok
}

// envValueFor resolves one env key to its value for this precedence
// level: the prefixed form always wins; a bare, prefix-less form is
// only tried at precedence 0 and only for flags marked WithoutPrefix.
func envValueFor(flag *pflag.Flag, prefix, key string, precedence int) (val string, withoutPrefix, found bool) {
	if val, set := os.LookupEnv(prefix + key); set {
		return val, false, true
	}
	if precedence > 0 {
		return "", false, false
	}
	if _, marked := flag.Annotations["withoutPrefix"]; !marked {
		return "", false, false
	}
	val, set := os.LookupEnv(key)
	return val, true, set
}

// supersededByPrimary reports whether key was already resolved at the
// primary (precedence 0) prefix, logging agreement or conflict between
// the two values either way.
func supersededByPrimary(prefix, key, val string, seen map[string]string) bool {
	primary, ok := seen[key]
	if !ok {
		sysl.Infof("Environment variable %v is set, but %v is preferred", prefix+key, env.Prefixes[0]+key)
		return false
	}
	if primary == val {
		sysl.Debugf("%s and %s have the same value [%s]", prefix+key, env.Prefixes[0]+key, val)
	} else {
		sysl.Warningf("%s and %s have different values, using the latter", prefix+key, env.Prefixes[0]+key)
	}
	return true
}

func (m *flagManager) updateCmdFlagFromEnv(cmd *cobra.Command, precedence int, seen map[string]string) error {
	var errs []error
	var prefix string
	if precedence >= 0 {
		prefix = env.Prefixes[precedence]
	}

	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		mflag, envKeys, ok := m.registeredFlag(flag)
		if !ok {
			return
		}
		for _, key := range envKeys {
			val, withoutPrefix, found := envValueFor(flag, prefix, key, precedence)
			if !found {
				continue
			}
			if precedence > 0 && supersededByPrimary(prefix, key, val, seen) {
				continue
			}
			if !withoutPrefix {
				seen[key] = val
			}
			if mflag.EnvHandler == nil {
				continue
			}
			if err := mflag.EnvHandler(flag, val); err != nil {
				errs = append(errs, err)
				return
			}
		}
	})

	if len(errs) == 0 {
		return nil
	}
	var errStr string
	for _, e := range errs {
		errStr += fmt.Sprintf("\n%s", e.Error())
	}
	return fmt.Errorf("while updating flags from environment: %v", errStr)
}
