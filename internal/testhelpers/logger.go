package testhelpers

import (
	"io"
	"log/slog"

	"github.com/Diego-DPL/zypace/internal/logging"
)

// NewLogger creates a debug-level logger with context attributes writing to logSink such as [NewWriter].
func NewLogger(logSink io.Writer) *slog.Logger {
	handler := logging.NewContextHandler(slog.NewTextHandler(logSink, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	}))
	return slog.New(handler)
}
