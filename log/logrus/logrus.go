// Package logrus adapts a logrus entry to mcache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/mcache"
)

var _ mcache.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New wraps l with a component=mcache field.
func New(l *logrus.Logger) Logger {
	return Logger{E: l.WithField("component", "mcache")}
}

func (l Logger) Debug(msg string, f mcache.Fields) { l.E.WithFields(fields(f)).Debug(msg) }
func (l Logger) Info(msg string, f mcache.Fields)  { l.E.WithFields(fields(f)).Info(msg) }
func (l Logger) Warn(msg string, f mcache.Fields)  { l.E.WithFields(fields(f)).Warn(msg) }
func (l Logger) Error(msg string, f mcache.Fields) { l.E.WithFields(fields(f)).Error(msg) }

// fields moves "err" to logrus' error key so formatters render it as one.
func fields(f mcache.Fields) logrus.Fields {
	out := make(logrus.Fields, len(f))
	for k, v := range f {
		if k == "err" {
			k = logrus.ErrorKey
		}
		out[k] = v
	}
	return out
}
