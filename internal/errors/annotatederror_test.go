package errors_test

import (
	"bytes"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"github.com/Diego-DPL/zypace/internal/errors"
	"github.com/Diego-DPL/zypace/internal/testhelpers"
)

var errNotConnected = errors.NewSentinel("provider not connected")

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return "status " + strconv.Itoa(e.code)
}

// here returns the file:line of its caller.
func here() string {
	_, file, line, _ := runtime.Caller(1)
	return file + ":" + strconv.Itoa(line)
}

// panicMessage records the line that is about to panic.
func panicMessage(src *string) string {
	_, file, line, _ := runtime.Caller(1)
	*src = file + ":" + strconv.Itoa(line)
	return "plan store closed"
}

func TestWrap_Message(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "sentinel",
			err:  errNotConnected,
			want: "provider not connected",
		},
		{
			name: "wrapped once",
			err:  errors.Wrap(errNotConnected, "sync", slog.Int("runner_id", 7)),
			want: "sync: provider not connected",
		},
		{
			name: "wrapped through fmt",
			err:  errors.Wrap(fmt.Errorf("load credential: %w", errNotConnected), "sync"),
			want: "sync: load credential: provider not connected",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
			if !errors.Is(tt.err, errNotConnected) {
				t.Error("wrapping lost the sentinel")
			}
		})
	}

	if errors.Wrap(nil, "nothing") != nil {
		t.Error("Wrap(nil) is not nil")
	}
	if errors.Is(errNotConnected, errors.NewSentinel("provider not connected")) {
		t.Error("sentinels with the same text compare equal")
	}
}

func TestWrap_As(t *testing.T) {
	cause := &statusError{code: 502}
	err := errors.Wrap(errors.Wrap(cause, "fetch page"), "sync")

	var target *statusError
	if !errors.As(err, &target) || target != cause {
		t.Errorf("As() found %v, want the cause", target)
	}
	if got := errors.Unwrap(errors.Unwrap(err)); got != cause {
		t.Errorf("Unwrap twice = %v", got)
	}
	if errors.Unwrap(errNotConnected) != nil {
		t.Error("sentinel unwraps to something")
	}
}

func TestSlogError(t *testing.T) {
	var buf bytes.Buffer
	logger := testhelpers.NewLogger(&buf)

	inner, src := errors.Wrap(&statusError{code: 503}, "fetch page", slog.Int("page", 3)), here()
	err := errors.Wrap(inner, "sync", slog.String("range", "30d"))
	logger.LogAttrs(t.Context(), slog.LevelError, "sync failed", errors.SlogError(err))

	line := buf.String()
	for _, want := range []string{
		`error.message="sync: fetch page: status 503"`,
		"error.annotations.range=30d",
		"error.annotations.page=3",
		"error.source=" + src,
	} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q lacks %q", line, want)
		}
	}
	if strings.Contains(line, "annotatederror.go") {
		t.Error("source points into the errors package")
	}

	// None of these may panic.
	_ = errors.SlogError(nil)
	_ = errors.SlogError(errors.Join(nil, errNotConnected, errors.New("plain")))
	_ = errors.SlogError(errors.Wrap(errors.Join(nil, nil), "empty join"))
	_ = errors.SlogError(fmt.Errorf("plain: %w", errNotConnected))
}

func TestDecoratePanic(t *testing.T) {
	if errors.DecoratePanic(nil) != nil {
		t.Error("nil panic value decorated")
	}

	var src string
	func() {
		defer func() {
			err := errors.DecoratePanic(recover())
			if err == nil {
				t.Fatal("expected error")
			}
			if got := err.Error(); got != "panic: plan store closed" {
				t.Errorf("Error() = %q", got)
			}
			if got := errors.SlogError(err).String(); !strings.Contains(got, src) {
				t.Errorf("attr %q lacks the panicking line %q", got, src)
			}
		}()
		panic(panicMessage(&src))
	}()

	func() {
		defer func() {
			err := errors.DecoratePanic(recover())
			if !errors.Is(err, errNotConnected) {
				t.Errorf("panic with an error lost it: %v", err)
			}
		}()
		panic(errNotConnected)
	}()
}
