// Package logging builds the structured loggers shared by the render host.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the logger type accepted by every package in this module. A nil
// *Logger is valid and discards everything.
type Logger = logiface.Logger[logiface.Event]

var levelNames = map[string]logiface.Level{
	"trace":   logiface.LevelTrace,
	"debug":   logiface.LevelDebug,
	"info":    logiface.LevelInformational,
	"notice":  logiface.LevelNotice,
	"warning": logiface.LevelWarning,
	"warn":    logiface.LevelWarning,
	"err":     logiface.LevelError,
	"error":   logiface.LevelError,
}

// ParseLevel maps a config level name onto a logiface level.
func ParseLevel(name string) (logiface.Level, error) {
	lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return logiface.LevelDisabled, fmt.Errorf("unknown log level %q", name)
	}
	return lvl, nil
}

// New returns a JSON line logger writing to w.
func New(w io.Writer, level logiface.Level) *Logger {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		logiface.WithLevel[*stumpy.Event](level),
	).Logger()
}

// Named returns a sub-logger tagging every entry with component.
func Named(l *Logger, component string) *Logger {
	return l.Clone().Str(`component`, component).Logger()
}
