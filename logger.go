package replicator

import (
	"github.com/sirupsen/logrus"
)

// logrusLogger implements Logger on a logrus entry
type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger returns a Logger writing to entry. A nil entry uses the
// logrus standard logger.
func NewLogrusLogger(entry *logrus.Entry) Logger {
	if entry == nil {
		entry = logrus.NewEntry(logrus.StandardLogger())
	}
	return &logrusLogger{entry: entry}
}

func (l *logrusLogger) Debug(msg string, fields ...Field) {
	l.with(fields).Debug(msg)
}

func (l *logrusLogger) Info(msg string, fields ...Field) {
	l.with(fields).Info(msg)
}

func (l *logrusLogger) Error(msg string, fields ...Field) {
	l.with(fields).Error(msg)
}

func (l *logrusLogger) with(fields []Field) *logrus.Entry {
	if len(fields) == 0 {
		return l.entry
	}
	lf := make(logrus.Fields, len(fields))
	for _, f := range fields {
		lf[f.Key] = f.Value
	}
	return l.entry.WithFields(lf)
}
