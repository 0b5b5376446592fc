// Package logging provides a thin per-subsystem wrapper around the
// standard library logger, matching the terse log.Printf/log.Fatalf style
// used throughout the compositor.
package logging

import (
	"log"
	"os"
)

// Logger prefixes every line with a subsystem tag, e.g. "[xwayland]".
type Logger struct {
	std *log.Logger
	tag string
}

// New returns a Logger for the given subsystem name.
func New(subsystem string) *Logger {
	return &Logger{
		std: log.New(os.Stderr, "", log.LstdFlags),
		tag: "[" + subsystem + "] ",
	}
}

func (l *Logger) Printf(format string, args ...any) {
	l.std.Printf(l.tag+format, args...)
}

func (l *Logger) Println(args ...any) {
	all := append([]any{l.tag}, args...)
	l.std.Println(all...)
}

// Fatalf logs and terminates the process. Reserved for startup errors
// per the error taxonomy in SPEC_FULL.md §7 ("startup errors ... exit 1").
func (l *Logger) Fatalf(format string, args ...any) {
	l.std.Fatalf(l.tag+format, args...)
}

// Warnf logs a recoverable condition (protocol warnings ignored per
// spec: unknown transform, nonzero wl_surface.offset).
func (l *Logger) Warnf(format string, args ...any) {
	l.std.Printf(l.tag+"warning: "+format, args...)
}
