package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/Diego-DPL/zypace/internal/logging"
)

func TestContextHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(logging.NewContextHandler(slog.NewTextHandler(&buf, nil)))

	ctx := logging.WithAttrs(context.Background(), slog.String("trace_id", "abc"))
	runnerCtx := logging.WithAttrs(ctx, slog.Int("runner_id", 7))
	siblingCtx := logging.WithAttrs(ctx, slog.String("sibling", "yes"))

	logger.LogAttrs(runnerCtx, slog.LevelInfo, "sync started")
	line := buf.String()
	for _, want := range []string{"trace_id=abc", "runner_id=7", "sync started"} {
		if !strings.Contains(line, want) {
			t.Errorf("expected %q to contain %q", line, want)
		}
	}
	if strings.Contains(line, "sibling") {
		t.Errorf("sibling context attributes leaked into %q", line)
	}

	if got := len(logging.Attrs(siblingCtx)); got != 2 {
		t.Errorf("len(Attrs(sibling)) = %d, want 2", got)
	}
	if got := logging.Attrs(context.Background()); got != nil {
		t.Errorf("Attrs(empty) = %v, want nil", got)
	}
}
