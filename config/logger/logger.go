// Package logger sets up logrus for the rdb-replicator command. The log
// section of the YAML config provides the base settings and the --log-*
// flags override single fields of it.
package logger

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// Accepted values of the Config fields
var (
	Levels     = []string{"debug", "info", "warning", "error", "fatal"}
	Formats    = []string{"human", "logfmt", "json"}
	Timestamps = []string{"short", "disable", "full"}
)

// Config is the log section of the config file
type Config struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`    // human output moves the source field into a prefix
	Timestamp string `yaml:"timestamp"` // empty is the same as short
}

// DefaultConfig is used when the config file has no log section
var DefaultConfig = Config{
	Level:     "info",
	Format:    "human",
	Timestamp: "short",
}

// FlagConfig holds the --log-* flag values, empty when not passed
var FlagConfig = Config{}

// StringVarFlagFunc matches flag.StringVar and pflag's FlagSet.StringVar
type StringVarFlagFunc func(p *string, name, value, usage string)

// RegisterFlagsWith adds one flag per Config field. Flags default to the
// empty string.
func RegisterFlagsWith(stringVar StringVarFlagFunc) {
	stringVar(&FlagConfig.Level, "log-level", "", usage("Log level", DefaultConfig.Level, Levels))
	stringVar(&FlagConfig.Format, "log-format", "", usage("Log format", DefaultConfig.Format, Formats))
	stringVar(&FlagConfig.Timestamp, "log-timestamp", "", usage("Log timestamp", DefaultConfig.Timestamp, Timestamps))
}

// Check returns an error naming the first field with an unknown value
func (c Config) Check() error {
	if _, err := logrus.ParseLevel(c.Level); err != nil {
		return invalid("log.level", Levels)
	}
	if !lo.Contains(Formats, c.Format) {
		return invalid("log.format", Formats)
	}
	if c.Timestamp != "" && !lo.Contains(Timestamps, c.Timestamp) {
		return invalid("log.timestamp", Timestamps)
	}
	return nil
}

// Merge overrides the fields of c that are set in o
func (c Config) Merge(o Config) Config {
	c.Level = lo.CoalesceOrEmpty(o.Level, c.Level)
	c.Format = lo.CoalesceOrEmpty(o.Format, c.Format)
	c.Timestamp = lo.CoalesceOrEmpty(o.Timestamp, c.Timestamp)
	return c
}

// Formatter builds the logrus formatter selected by Format and Timestamp
func (c Config) Formatter() logrus.Formatter {
	text := &logrus.TextFormatter{
		DisableTimestamp: c.Timestamp == "disable",
		FullTimestamp:    c.Timestamp == "full",
	}
	switch c.Format {
	case "json":
		return &logrus.JSONFormatter{DisableTimestamp: text.DisableTimestamp}
	case "logfmt":
		text.DisableColors = true
		return text
	default:
		return &SourceFormatter{Parent: text}
	}
}

// Configure applies c to the standard logger
func Configure(c Config) {
	ConfigureLogger(logrus.StandardLogger(), c)
}

// ConfigureLogger applies c to l. An invalid level leaves the current one
// in place.
func ConfigureLogger(l *logrus.Logger, c Config) {
	l.SetFormatter(c.Formatter())
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		l.Warnf("Keeping log level %s, %q is not a level", l.GetLevel(), c.Level)
		return
	}
	l.SetLevel(level)
}

func usage(what, def string, options []string) string {
	return fmt.Sprintf("%s, one of %s (default %s)", what, strings.Join(options, "|"), def)
}

func invalid(field string, options []string) error {
	return fmt.Errorf("%s: must be one of: %s", field, strings.Join(options, ", "))
}
