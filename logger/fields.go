package logger

import "log/slog"

// Field helpers for structured logging
var (
	String = slog.String
	Int    = slog.Int

	ErrorField = func(err error) slog.Attr {
		if err == nil {
			return slog.String("error", "<nil>")
		}
		return slog.String("error", err.Error())
	}

	Component = func(name string) slog.Attr {
		return slog.String("component", name)
	}

	Endpoint = func(addr string) slog.Attr {
		return slog.String("endpoint", addr)
	}
)
