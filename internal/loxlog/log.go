// Package loxlog wraps the standard library's log.Logger with a
// verbosity gate. The teacher carries no structured logging
// dependency anywhere in its graph (cmd/main.go and cmd/langlang/main.go
// both use log.Fatal/log.Fatalf/log.Println directly) so this stays on
// the standard library rather than reaching for a third-party logger
// the teacher never imports.
package loxlog

import (
	"io"
	"log"
	"os"
)

// Logger gates Debugf behind a verbosity flag while leaving
// Printf/Fatalf available unconditionally.
type Logger struct {
	*log.Logger
	debug bool
}

// New returns a Logger writing to w (os.Stderr if w is nil).
func New(w io.Writer, debug bool) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{Logger: log.New(w, "", 0), debug: debug}
}

// Debugf logs only when the logger was constructed with debug enabled.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.debug {
		l.Printf(format, args...)
	}
}
