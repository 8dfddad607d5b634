// Package klog provides the structured logging convention shared by every
// Katalyst subsystem: a package-level logrus logger wrapped in a small
// context carrier so call sites attach fields (component, tx_id,
// workflow_id, schedule) without re-deriving a formatter each time.
package klog

import (
	"time"

	"github.com/sirupsen/logrus"
)

// base is the root logger every component-scoped Logger derives from.
var base = logrus.New()

func init() {
	base.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: time.RFC3339,
		FullTimestamp:   true,
	})
}

// Configure sets the process-wide log level and formatter. Call once at
// boot; Katalyst never mutates logging configuration afterward.
func Configure(level logrus.Level, jsonFormat bool) {
	base.SetLevel(level)
	if jsonFormat {
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
		return
	}
	base.SetFormatter(&logrus.TextFormatter{TimestampFormat: time.RFC3339, FullTimestamp: true})
}

// Logger is a structured logger scoped to one component, carrying a fixed
// set of fields across every entry it emits.
type Logger struct {
	entry *logrus.Entry
}

// For returns a Logger scoped to the named component.
func For(component string) *Logger {
	return &Logger{entry: base.WithField("component", component)}
}

// With returns a derived Logger with additional fields attached.
func (l *Logger) With(fields map[string]any) *Logger {
	return &Logger{entry: l.entry.WithFields(fields)}
}

// WithError returns a derived Logger carrying the error's message.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

func (l *Logger) Debug(msg string) { l.entry.Debug(msg) }
func (l *Logger) Info(msg string)  { l.entry.Info(msg) }
func (l *Logger) Warn(msg string)  { l.entry.Warn(msg) }
func (l *Logger) Error(msg string) { l.entry.Error(msg) }

func (l *Logger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }
