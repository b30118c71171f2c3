// Package tasklog defines the log sink that task-scoped operations write
// progress to. Challenge plugins and the issuance workflow log through
// a Logger supplied by the caller, never to a global output stream.
package tasklog

import (
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Logger receives human-readable progress lines from one task.
type Logger interface {
	LogMessage(msg string)
}

// LoggerFunc adapts a plain function to the Logger interface.
type LoggerFunc func(msg string)

func (f LoggerFunc) LogMessage(msg string) {
	f(msg)
}

// NewWriterLogger returns a Logger appending one line per message to w.
func NewWriterLogger(w io.Writer) Logger {
	return LoggerFunc(func(msg string) {
		fmt.Fprintln(w, msg)
	})
}

// NewZapLogger returns a Logger forwarding messages to a zap
// SugaredLogger at info level.
func NewZapLogger(log *zap.SugaredLogger) Logger {
	return LoggerFunc(func(msg string) {
		log.Info(msg)
	})
}

// Discard is a Logger dropping all messages.
var Discard Logger = LoggerFunc(func(string) {})
