package genai

import "context"

type ctxKey string

const requestAPIKeyContext = ctxKey("genai_request_api_key")

// WithRequestAPIKey returns a context carrying a per-request API key that
// overrides the client's configured key.
func WithRequestAPIKey(ctx context.Context, apiKey string) context.Context {
	return context.WithValue(ctx, requestAPIKeyContext, apiKey)
}

// RequestAPIKeyFromContext returns the per-request API key, if any.
func RequestAPIKeyFromContext(ctx context.Context) string {
	value, _ := ctx.Value(requestAPIKeyContext).(string)
	return value
}
