package logger

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// SourceField names the replication source in log entries
const SourceField = "source"

// SourceFormatter renders the source field as a "[source]" message prefix
// and hands the entry to Parent. Entries without the field pass through.
type SourceFormatter struct {
	Parent logrus.Formatter
}

// Format implements logrus.Formatter
func (f *SourceFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	src, ok := entry.Data[SourceField]
	if !ok {
		return f.Parent.Format(entry)
	}

	// entry is shared with the other hooks and formatters
	e := entry.Dup()
	e.Level = entry.Level
	e.Message = fmt.Sprintf("[%v] %s", src, entry.Message)
	delete(e.Data, SourceField)
	return f.Parent.Format(e)
}
