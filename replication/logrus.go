package replication

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// LogrusLogger adapts a logrus entry to Logger. Fields are alternating key
// and value pairs.
type LogrusLogger struct {
	Entry *logrus.Entry
}

// NewLogrusLogger returns a Logger writing to entry, or to the logrus
// standard logger when entry is nil
func NewLogrusLogger(entry *logrus.Entry) *LogrusLogger {
	if entry == nil {
		entry = logrus.NewEntry(logrus.StandardLogger())
	}
	return &LogrusLogger{Entry: entry}
}

func (l *LogrusLogger) Debug(msg string, fields ...interface{}) {
	l.with(fields).Debug(msg)
}

func (l *LogrusLogger) Info(msg string, fields ...interface{}) {
	l.with(fields).Info(msg)
}

func (l *LogrusLogger) Error(msg string, fields ...interface{}) {
	l.with(fields).Error(msg)
}

func (l *LogrusLogger) with(fields []interface{}) *logrus.Entry {
	if len(fields) == 0 {
		return l.Entry
	}
	lf := make(logrus.Fields, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			key = fmt.Sprint(fields[i])
		}
		lf[key] = fields[i+1]
	}
	return l.Entry.WithFields(lf)
}
