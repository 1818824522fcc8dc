package contexthelpers

type contextKey string

const (
	IsAuthenticatedContextKey = contextKey("isAuthenticated")
	RunnerIDContextKey        = contextKey("runnerID")
	CspNonceContextKey        = contextKey("cspNonce")
	RequestIDContextKey       = contextKey("requestID")
	LanguageContextKey        = contextKey("language")
)
