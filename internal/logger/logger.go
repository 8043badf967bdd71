package logger

import (
	"io"
	"log/slog"
	"os"
)

const (
	envLocal = "local"
	envDev   = "dev"
)

// New builds the JSON logger for env. Local and dev environments log at debug level.
func New(env string) *slog.Logger {
	return newWithWriter(env, os.Stdout)
}

func newWithWriter(env string, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if env == envLocal || env == envDev {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})).With(slog.String("env", env))
}

// Setup installs the logger for env as the process default and returns it
func Setup(env string) *slog.Logger {
	l := New(env)
	slog.SetDefault(l)
	return l
}
