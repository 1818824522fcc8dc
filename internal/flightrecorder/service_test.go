package flightrecorder_test

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Diego-DPL/zypace/internal/contexthelpers"
	"github.com/Diego-DPL/zypace/internal/flightrecorder"
	"github.com/Diego-DPL/zypace/internal/testhelpers"
)

func newService(t *testing.T, dir string, cooldown time.Duration) *flightrecorder.Service {
	t.Helper()
	service, err := flightrecorder.New(flightrecorder.Config{
		Logger:          testhelpers.NewLogger(testhelpers.NewWriter(t)),
		MinAge:          time.Second,
		MaxBytes:        1 << 20,
		TracesDirectory: dir,
		Cooldown:        cooldown,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err = service.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { service.Stop(t.Context()) })
	return service
}

func traceFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read trace directory: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestNew_Validation(t *testing.T) {
	logger := testhelpers.NewLogger(testhelpers.NewWriter(t))
	if _, err := flightrecorder.New(flightrecorder.Config{Logger: nil, TracesDirectory: t.TempDir()}); err == nil {
		t.Error("missing logger accepted")
	}
	if _, err := flightrecorder.New(flightrecorder.Config{Logger: logger, TracesDirectory: ""}); err == nil {
		t.Error("missing directory accepted")
	}
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := flightrecorder.New(flightrecorder.Config{Logger: logger, TracesDirectory: file}); err == nil {
		t.Error("file accepted as traces directory")
	}
}

func TestService_CaptureTimeoutTrace(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "traces")
	service := newService(t, dir, time.Hour)

	req := contexthelpers.SetRequestID(httptest.NewRequest("GET", "/", nil), "req-42")
	service.CaptureTimeoutTrace(req.Context())

	names := traceFiles(t, dir)
	if len(names) != 1 {
		t.Fatalf("trace files = %v, want one", names)
	}
	if !strings.HasPrefix(names[0], "timeout-") || !strings.HasSuffix(names[0], "-req-42.trace") {
		t.Errorf("file name = %s", names[0])
	}
}

func TestService_CooldownPreventsCapture(t *testing.T) {
	dir := t.TempDir()
	service := newService(t, dir, time.Hour)

	service.CaptureTimeoutTrace(t.Context())
	service.CaptureTimeoutTrace(t.Context())

	if names := traceFiles(t, dir); len(names) != 1 {
		t.Errorf("trace files = %v, want one during cooldown", names)
	}
}
