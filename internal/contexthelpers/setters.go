package contexthelpers

import (
	"context"
	"net/http"

	"github.com/Diego-DPL/zypace/internal/i18n"
)

func AuthenticateContext(r *http.Request, runnerID int) *http.Request {
	return r.WithContext(WithRunner(r.Context(), runnerID))
}

// WithRunner marks ctx as authenticated for runnerID. Services read the runner from the context.
func WithRunner(ctx context.Context, runnerID int) context.Context {
	ctx = context.WithValue(ctx, IsAuthenticatedContextKey, true)
	return context.WithValue(ctx, RunnerIDContextKey, runnerID)
}

func SetCSPNonce(r *http.Request, cspNonce string) *http.Request {
	ctx := context.WithValue(r.Context(), CspNonceContextKey, cspNonce)
	return r.WithContext(ctx)
}

func SetRequestID(r *http.Request, requestID string) *http.Request {
	ctx := context.WithValue(r.Context(), RequestIDContextKey, requestID)
	return r.WithContext(ctx)
}

func SetLanguage(r *http.Request, language i18n.Language) *http.Request {
	ctx := context.WithValue(r.Context(), LanguageContextKey, language)
	return r.WithContext(ctx)
}
