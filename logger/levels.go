package logger

import "log/slog"

// LevelTrace is below Debug; used for per-attempt dial tracing.
const LevelTrace slog.Level = -8

var levelNames = map[slog.Level]string{
	LevelTrace: "TRACE",
}

// LevelName returns the name of a log level
func LevelName(level slog.Level) string {
	if name, ok := levelNames[level]; ok {
		return name
	}
	return level.String()
}
