// Package errors extends the standard library errors with slog annotations and call-site information.
//
// Wrap errors at the boundary where the context is known and log them with SlogError:
//
//	if err != nil {
//		return errors.Wrap(err, "fetch activities page", slog.Int("page", page))
//	}
package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
)

type annotatedError struct {
	msg         string
	cause       error
	annotations []slog.Attr
	source      string
}

func (e *annotatedError) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return e.msg + ": " + e.cause.Error()
}

func (e *annotatedError) Unwrap() error {
	return e.cause
}

// NewSentinel creates an error meant to be compared with Is. It carries no call-site information.
func NewSentinel(msg string) error {
	return errors.New(msg) //nolint:err113 // this is the sentinel constructor.
}

// New is the same as [errors.New].
func New(msg string) error {
	return errors.New(msg) //nolint:err113 // dynamic errors are fine outside sentinels.
}

// Wrap annotates err with msg and optional attributes. The call site of Wrap is recorded for SlogError.
//
// Wrap returns nil when err is nil.
func Wrap(err error, msg string, annotations ...slog.Attr) error {
	if err == nil {
		return nil
	}
	return &annotatedError{
		msg:         msg,
		cause:       err,
		annotations: annotations,
		source:      callerSource(2), //nolint:mnd // skip callerSource and Wrap.
	}
}

// DecoratePanic converts a recovered panic value into an error pointing at the line that panicked.
// It returns nil if excp is nil.
func DecoratePanic(excp any) error {
	if excp == nil {
		return nil
	}
	e := &annotatedError{
		msg:         "panic",
		cause:       nil,
		annotations: nil,
		source:      panicSource(),
	}
	if err, ok := excp.(error); ok {
		e.cause = err
	} else {
		e.msg = fmt.Sprintf("panic: %v", excp)
	}
	return e
}

// SlogError returns an attribute group describing err, its annotations, and the source of the innermost Wrap.
func SlogError(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}

	var (
		annotations []any
		source      string
	)
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		var ae *annotatedError
		if !errors.As(cur, &ae) {
			break
		}
		for _, a := range ae.annotations {
			annotations = append(annotations, a)
		}
		source = ae.source
		cur = ae
	}

	attrs := []any{slog.String("message", err.Error())}
	if len(annotations) > 0 {
		attrs = append(attrs, slog.Group("annotations", annotations...))
	}
	if source != "" {
		attrs = append(attrs, slog.String("source", source))
	}
	return slog.Group("error", attrs...)
}

// Is is the same as [errors.Is].
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is the same as [errors.As].
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Unwrap is the same as [errors.Unwrap].
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// Join is the same as [errors.Join].
func Join(errs ...error) error {
	return errors.Join(errs...)
}

func callerSource(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	return file + ":" + strconv.Itoa(line)
}

// panicSource finds the frame that called panic. It must be called from the deferred function's callee.
func panicSource() string {
	pcs := make([]uintptr, 32) //nolint:mnd // deep enough for any recover chain.
	n := runtime.Callers(3, pcs) //nolint:mnd // skip Callers, panicSource, and DecoratePanic.
	frames := runtime.CallersFrames(pcs[:n])
	var first string
	afterPanic := false
	for {
		frame, more := frames.Next()
		src := frame.File + ":" + strconv.Itoa(frame.Line)
		if first == "" {
			first = src
		}
		if afterPanic {
			return src
		}
		if frame.Function == "runtime.gopanic" {
			afterPanic = true
		}
		if !more {
			break
		}
	}
	return first
}
