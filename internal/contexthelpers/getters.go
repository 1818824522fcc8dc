package contexthelpers

import (
	"context"

	"github.com/Diego-DPL/zypace/internal/i18n"
)

func IsAuthenticated(ctx context.Context) bool {
	isAuthenticated, ok := ctx.Value(IsAuthenticatedContextKey).(bool)
	if !ok {
		return false
	}
	return isAuthenticated
}

// RunnerID returns the authenticated runner or 0 when the request is anonymous.
func RunnerID(ctx context.Context) int {
	runnerID, ok := ctx.Value(RunnerIDContextKey).(int)
	if !ok {
		return 0
	}
	return runnerID
}

func CSPNonce(ctx context.Context) string {
	cspNonce, ok := ctx.Value(CspNonceContextKey).(string)
	if !ok {
		return ""
	}
	return cspNonce
}

func RequestID(ctx context.Context) string {
	requestID, ok := ctx.Value(RequestIDContextKey).(string)
	if !ok {
		return ""
	}
	return requestID
}

func Language(ctx context.Context) i18n.Language {
	language, ok := ctx.Value(LanguageContextKey).(i18n.Language)
	if !ok {
		return i18n.DefaultLanguage
	}
	return language
}
