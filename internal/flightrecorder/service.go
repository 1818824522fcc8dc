// Package flightrecorder keeps a rolling runtime trace in memory and writes it out when a request times out.
package flightrecorder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/trace"
	"sync/atomic"
	"time"

	"github.com/Diego-DPL/zypace/internal/contexthelpers"
	"github.com/Diego-DPL/zypace/internal/errors"
)

const (
	defaultMinAge   = 5 * time.Minute
	defaultMaxBytes = 64 * 1024 * 1024
	defaultCooldown = 30 * time.Minute
)

// Service captures the flight recorder buffer on demand.
type Service struct {
	logger          *slog.Logger
	flightRecorder  *trace.FlightRecorder
	tracesDirectory string
	minAge          time.Duration
	maxBytes        uint64
	cooldown        time.Duration
	// lastCapture is the Unix time of the last capture.
	lastCapture atomic.Int64
}

// Config configures the flight recorder. Zero values get defaults.
type Config struct {
	Logger *slog.Logger
	// MinAge is the minimum age of trace events kept in the buffer.
	MinAge   time.Duration
	MaxBytes uint64
	// TracesDirectory is created when missing.
	TracesDirectory string
	// Cooldown is the minimum time between two captures.
	Cooldown time.Duration
}

// New creates a flight recorder. It does not record until Start is called.
func New(cfg Config) (*Service, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.TracesDirectory == "" {
		return nil, errors.New("traces directory is required")
	}

	if stat, err := os.Stat(cfg.TracesDirectory); err != nil {
		if err = os.MkdirAll(cfg.TracesDirectory, 0o750); err != nil { //nolint:mnd // owner rwx, group rx.
			return nil, errors.Wrap(err, "create traces directory", slog.String("dir", cfg.TracesDirectory))
		}
	} else if !stat.IsDir() {
		return nil, errors.New("traces path is not a directory: " + cfg.TracesDirectory)
	}

	s := &Service{
		logger:          cfg.Logger,
		flightRecorder:  nil,
		tracesDirectory: cfg.TracesDirectory,
		minAge:          cmpOr(cfg.MinAge, defaultMinAge),
		maxBytes:        cmpOr(cfg.MaxBytes, defaultMaxBytes),
		cooldown:        cmpOr(cfg.Cooldown, defaultCooldown),
		lastCapture:     atomic.Int64{},
	}
	s.flightRecorder = trace.NewFlightRecorder(trace.FlightRecorderConfig{MinAge: s.minAge, MaxBytes: s.maxBytes})
	return s, nil
}

func cmpOr[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}
	return v
}

// Start begins recording.
func (s *Service) Start(ctx context.Context) error {
	if err := s.flightRecorder.Start(); err != nil {
		return fmt.Errorf("start flight recorder: %w", err)
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "flight recorder started",
		slog.Duration("min_age", s.minAge),
		slog.Uint64("max_bytes", s.maxBytes),
		slog.Duration("cooldown", s.cooldown),
		slog.String("dir", s.tracesDirectory))
	return nil
}

// Stop ends recording.
func (s *Service) Stop(ctx context.Context) {
	s.flightRecorder.Stop()
	s.logger.LogAttrs(ctx, slog.LevelInfo, "flight recorder stopped")
}

// CaptureTimeoutTrace writes the buffered trace to a file named after the time and the request id of ctx. Captures
// within the cooldown of the previous one are skipped.
func (s *Service) CaptureTimeoutTrace(ctx context.Context) {
	now := time.Now()
	last := s.lastCapture.Load()
	if last > 0 && now.Sub(time.Unix(last, 0)) < s.cooldown {
		s.logger.LogAttrs(ctx, slog.LevelDebug, "skipping trace capture during cooldown",
			slog.Time("last_capture", time.Unix(last, 0)))
		return
	}
	// Another request won the race.
	if !s.lastCapture.CompareAndSwap(last, now.Unix()) {
		return
	}

	name := "timeout-" + now.UTC().Format("20060102-150405")
	if id := contexthelpers.RequestID(ctx); id != "" {
		name += "-" + id
	}
	path := filepath.Join(s.tracesDirectory, name+".trace")

	if err := s.write(path); err != nil {
		s.logger.LogAttrs(ctx, slog.LevelError, "failed to capture trace", errors.SlogError(err))
		return
	}
	s.logger.LogAttrs(ctx, slog.LevelWarn, "captured timeout trace", slog.String("file", path))
}

func (s *Service) write(path string) (err error) {
	file, err := os.Create(path) //nolint:gosec // path is built from a timestamp and a generated id.
	if err != nil {
		return errors.Wrap(err, "create trace file", slog.String("file", path))
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = errors.Wrap(closeErr, "close trace file", slog.String("file", path))
		}
	}()
	if _, err = s.flightRecorder.WriteTo(file); err != nil {
		return errors.Wrap(err, "write trace", slog.String("file", path))
	}
	return nil
}
