package observability

import (
	"log/slog"
	"os"
)

// NewLogger returns a JSON slog logger. Log records carry trace/span ids
// when a span is active on the request context.
func NewLogger(env string) *slog.Logger {
	level := slog.LevelInfo

	if env == "dev" {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(NewTraceHandler(handler))
}
