package main

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/foodly/authsync"
)

// NewLogger creates a [log.Logger] writing to w, with timestamps enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer, level string) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	logger := log.NewWithOptions(w, log.Options{ReportTimestamp: true, Prefix: "authsync"})
	if lvl, err := log.ParseLevel(strings.ToLower(level)); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

// charmLogger adapts a [log.Logger] to authsync.Logger.
type charmLogger struct {
	l *log.Logger
}

var _ authsync.Logger = charmLogger{}

func (c charmLogger) Trace(format string, args ...any) { c.l.Debugf(format, args...) }
func (c charmLogger) Debug(format string, args ...any) { c.l.Debugf(format, args...) }
func (c charmLogger) Info(format string, args ...any)  { c.l.Infof(format, args...) }
func (c charmLogger) Warn(format string, args ...any)  { c.l.Warnf(format, args...) }
func (c charmLogger) Error(format string, args ...any) { c.l.Errorf(format, args...) }

// Fatal logs at error level; exiting is left to the caller.
func (c charmLogger) Fatal(format string, args ...any) { c.l.Errorf(format, args...) }

func (c charmLogger) WithContext(context.Context) authsync.Logger {
	return c
}

// charmProvider hands out loggers prefixed with the component name.
type charmProvider struct {
	base *log.Logger
}

func (p charmProvider) GetLogger(name string) authsync.Logger {
	return charmLogger{l: p.base.WithPrefix(name)}
}
