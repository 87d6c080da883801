// Package monitoring holds the process-wide diagnostic logger and the
// mapping from a log level to the ops/diag/trace stream writers that
// individual packages accept through SetLogWriters.
package monitoring

import (
	"fmt"
	"io"
	"log"
	"strings"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Level selects how many log streams are enabled.
type Level int

const (
	LevelQuiet Level = iota // nothing
	LevelOps                // actionable warnings and errors
	LevelDiag               // plus progress and tuning context
	LevelTrace              // plus per-snapshot and per-chunk telemetry
)

func (l Level) String() string {
	switch l {
	case LevelQuiet:
		return "quiet"
	case LevelOps:
		return "ops"
	case LevelDiag:
		return "diag"
	case LevelTrace:
		return "trace"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// ParseLevel accepts quiet, ops, diag or trace (case-insensitive).
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "quiet", "off", "none":
		return LevelQuiet, nil
	case "ops", "":
		return LevelOps, nil
	case "diag", "info":
		return LevelDiag, nil
	case "trace", "debug":
		return LevelTrace, nil
	}
	return LevelQuiet, fmt.Errorf("unknown log level %q (want quiet, ops, diag or trace)", s)
}

// Streams returns the writers for the three log streams at level l. A
// disabled stream is nil, which SetLogWriters treats as off.
func Streams(l Level, w io.Writer) (ops, diag, trace io.Writer) {
	if l >= LevelOps {
		ops = w
	}
	if l >= LevelDiag {
		diag = w
	}
	if l >= LevelTrace {
		trace = w
	}
	return ops, diag, trace
}
