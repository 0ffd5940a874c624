package observability

import (
	"fmt"
	"log"
	"sort"
	"strings"
)

// StdLogger writes structured log lines through the standard library logger.
type StdLogger struct {
	logger *log.Logger
	debug  bool
}

// NewStdLogger constructs a StdLogger. A nil base uses log.Default().
func NewStdLogger(base *log.Logger, debug bool) *StdLogger {
	if base == nil {
		base = log.Default()
	}
	return &StdLogger{logger: base, debug: debug}
}

func (l *StdLogger) Debug(msg string, fields ...Field) {
	if !l.debug {
		return
	}
	l.write("DEBUG", msg, fields)
}

func (l *StdLogger) Info(msg string, fields ...Field)  { l.write("INFO", msg, fields) }
func (l *StdLogger) Warn(msg string, fields ...Field)  { l.write("WARN", msg, fields) }
func (l *StdLogger) Error(msg string, fields ...Field) { l.write("ERROR", msg, fields) }

func (l *StdLogger) write(level, msg string, fields []Field) {
	if len(fields) == 0 {
		l.logger.Printf("%s %s", level, msg)
		return
	}
	pairs := make([]string, 0, len(fields))
	for _, f := range fields {
		if strings.TrimSpace(f.Key) == "" {
			continue
		}
		pairs = append(pairs, fmt.Sprintf("%s=%v", f.Key, f.Value))
	}
	sort.Strings(pairs)
	l.logger.Printf("%s %s %s", level, msg, strings.Join(pairs, " "))
}
