// Copyright (c) 2026 Feedbackd Contributors
// SPDX-License-Identifier: Apache-2.0

// Package flog wraps logrus with the call convention this codebase's
// teacher uses throughout cmd/ledmanager: Tracef for per-tick chatter,
// Functionf for routine state transitions, Noticef for events worth a
// human's attention, Warnf for recoverable problems, Errorf for backend
// failures that are absorbed rather than propagated.
package flog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the daemon-wide logging handle. A single instance is created in
// cmd/feedbackd and threaded through every package's constructor, the same
// way the teacher threads a *base.LogObject.
type Logger struct {
	*logrus.Logger
	component string
}

// New builds a Logger for the given component name, logging at info level
// with a text formatter on a terminal and a JSON formatter otherwise (the
// daemon runs under systemd as often as it runs interactively).
func New(component string) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	if isTerminal(os.Stderr) {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	l.SetLevel(logrus.InfoLevel)
	return &Logger{Logger: l, component: component}
}

// With returns a child logger scoped to a sub-component, e.g. "manager" ->
// "manager.udev".
func (l *Logger) With(sub string) *Logger {
	return &Logger{Logger: l.Logger, component: l.component + "." + sub}
}

// SetDebug raises the level to Trace, matching the teacher's "-d" flag and
// ledmanager's debugOverride handling.
func (l *Logger) SetDebug(debug bool) {
	if debug {
		l.SetLevel(logrus.TraceLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
}

func (l *Logger) entry() *logrus.Entry {
	return l.WithField("component", l.component)
}

// Tracef logs per-tick / per-poll chatter only visible with -d.
func (l *Logger) Tracef(format string, args ...interface{}) {
	l.entry().Tracef(format, args...)
}

// Functionf logs routine state transitions (subscription callbacks, device
// adoption, feedback start/stop).
func (l *Logger) Functionf(format string, args ...interface{}) {
	l.entry().Debugf(format, args...)
}

// Noticef logs events worth a human's attention without being an error
// (theme loaded, profile changed).
func (l *Logger) Noticef(format string, args ...interface{}) {
	l.entry().Infof(format, args...)
}

// Warnf logs recoverable problems (a feedback kind unavailable, a device
// missing at init).
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.entry().Warnf(format, args...)
}

// Errorf logs backend failures that are absorbed by the caller and reported
// as a feedback ending unsuccessfully, never as a bus error.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.entry().Errorf(format, args...)
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
