package log

import (
	"log/slog"
	"math"
)

// Levels beyond the four slog defaults.
const (
	// LevelCritical is reserved for records that end the run.
	LevelCritical = slog.Level(12)

	// LevelSilent is above every level, so nothing is logged.
	LevelSilent = slog.Level(math.MaxInt32)
)

// LevelForVerbosity maps the command-line verbosity scale to a slog level.
//
//	5 debug, 4 info, 3 warn, 2 error, 1 critical only, 0 silent
//
// Values above 5 are treated as 5 and values below 0 as 0.
func LevelForVerbosity(verbosity int) slog.Level {
	switch {
	case verbosity >= 5:
		return slog.LevelDebug
	case verbosity == 4:
		return slog.LevelInfo
	case verbosity == 3:
		return slog.LevelWarn
	case verbosity == 2:
		return slog.LevelError
	case verbosity == 1:
		return LevelCritical
	default:
		return LevelSilent
	}
}

// replaceLevel renders LevelCritical as "CRITICAL" instead of "ERROR+4".
func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok && level >= LevelCritical {
			return slog.String(slog.LevelKey, "CRITICAL")
		}
	}
	return a
}
