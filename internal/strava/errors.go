package strava

import (
	"fmt"
	"io"
	"net/http"

	"github.com/Diego-DPL/zypace/internal/errors"
)

// maxErrorBodySize bounds how much of an error response ends up in error messages.
const maxErrorBodySize = 500

// ErrUpstream matches every failed call to the provider, including network errors and timeouts.
var ErrUpstream = errors.NewSentinel("activity provider error")

// HTTPError is a non-success response from the provider.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
	URL        string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s (status %d): %s", e.Status, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s (status %d)", e.Status, e.StatusCode)
}

func (e *HTTPError) Is(target error) bool {
	return target == ErrUpstream
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// parseErrorResponse returns an HTTPError for 4xx and 5xx responses and nil otherwise. It consumes the body of
// error responses.
func parseErrorResponse(resp *http.Response) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize+1))
	bodyStr := ""
	if err == nil {
		bodyStr = truncate(string(body), maxErrorBodySize)
	}
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Status:     http.StatusText(resp.StatusCode),
		Body:       bodyStr,
		URL:        resp.Request.URL.Redacted(),
	}
}

// upstream marks err as a provider failure unless it already is one.
func upstream(err error, msg string) error {
	if errors.Is(err, ErrUpstream) {
		return errors.Wrap(err, msg)
	}
	return errors.Wrap(fmt.Errorf("%w: %w", ErrUpstream, err), msg)
}
