// Package sysl provides the leveled logging used across sr and capable.
//
// It wraps a single logrus.Logger instance so every package logs through
// the same formatter and verbosity gate, the way the teacher's sylog
// package wraps a process-wide log target.
package sysl

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu  sync.Mutex
	log = newDefault()
)

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
		DisableColors:    false,
	})
	return l
}

// SetVerbose raises or lowers the logger's level. Called from the CLI's
// -v flag and from the SR_DEBUG / CAPABLE_DEBUG environment variables.
func SetVerbose(verbose bool) {
	mu.Lock()
	defer mu.Unlock()
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
}

// SetOutput redirects log output, mainly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	log.SetOutput(w)
}

func Debugf(format string, args ...interface{}) { log.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { log.Infof(format, args...) }
func Warningf(format string, args ...interface{}) {
	log.Warnf(format, args...)
}
func Errorf(format string, args ...interface{}) { log.Errorf(format, args...) }

// Fatalf logs at error level and exits the process with status 1. It is
// reserved for conditions that precede any fork, where there is no child
// exit status to preserve.
func Fatalf(format string, args ...interface{}) {
	log.Errorf(format, args...)
	os.Exit(1)
}
