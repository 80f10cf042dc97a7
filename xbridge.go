// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package xbridge holds the small set of primitives shared by every
// sub-package of the atomic swap core: the logging backend, the error
// taxonomy, and the protocol/module version strings.
package xbridge

import (
	"fmt"
	"io"
	"strings"

	"github.com/decred/slog"
)

// Logger is the logging interface used throughout the core. Every
// constructor in this module accepts a Logger rather than reaching for a
// package-level logger, so callers decide what subsystem name and level
// each component logs under.
type Logger = slog.Logger

// LoggerMaker allows creation of per-subsystem loggers sharing one backend
// and a table of subsystem->level overrides.
type LoggerMaker struct {
	*slog.Backend
	DefaultLevel slog.Level
	Levels       map[string]slog.Level
}

// SubLogger creates a Logger named "parent[name]", using any explicitly
// configured level for parent, else DefaultLevel.
func (lm *LoggerMaker) SubLogger(parent, name string) Logger {
	level, ok := lm.Levels[parent]
	if !ok {
		level = lm.DefaultLevel
	}
	logger := lm.Backend.Logger(fmt.Sprintf("%s[%s]", parent, name))
	logger.SetLevel(level)
	return logger
}

// NewLogger creates a Logger for the named subsystem at the given level or,
// if no level is supplied, at any explicitly configured level for name,
// else DefaultLevel.
func (lm *LoggerMaker) NewLogger(name string, level ...slog.Level) Logger {
	lvl, ok := lm.Levels[name]
	if !ok {
		lvl = lm.DefaultLevel
	}
	if len(level) > 0 {
		lvl = level[0]
	}
	logger := lm.Backend.Logger(name)
	logger.SetLevel(lvl)
	return logger
}

// NewLoggerMaker builds a LoggerMaker writing to w, parsing lvlCfg in the
// debuglevel config syntax cmd/xbridged exposes: either a single level
// ("debug") applied to every subsystem, or a default level followed by
// comma-separated subsystem overrides ("info,SESS=debug,HUB=trace").
func NewLoggerMaker(w io.Writer, lvlCfg string) (*LoggerMaker, error) {
	backend := slog.NewBackend(w)
	lm := &LoggerMaker{
		Backend: backend,
		Levels:  map[string]slog.Level{},
	}
	fields := strings.Split(lvlCfg, ",")
	defLvl, ok := slog.LevelFromString(fields[0])
	if !ok {
		return nil, fmt.Errorf("xbridge: invalid log level %q", fields[0])
	}
	lm.DefaultLevel = defLvl
	for _, field := range fields[1:] {
		subsysLvl := strings.Split(field, "=")
		if len(subsysLvl) != 2 {
			return nil, fmt.Errorf("xbridge: invalid subsystem log level pair %q", field)
		}
		lvl, ok := slog.LevelFromString(subsysLvl[1])
		if !ok {
			return nil, fmt.Errorf("xbridge: invalid log level %q for subsystem %s", subsysLvl[1], subsysLvl[0])
		}
		lm.Levels[strings.ToUpper(subsysLvl[0])] = lvl
	}
	return lm, nil
}
