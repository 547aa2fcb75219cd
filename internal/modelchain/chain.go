// Package modelchain executes a generation request against an ordered list of
// candidate models, substituting the next candidate only when the current one
// is reported missing by the backend.
package modelchain

import (
	"context"
	"errors"
	"log/slog"

	"triagekit/internal/upstream/genai"
)

// ErrModelUnavailable means every candidate was reported missing or
// unsupported. The caller may retry later; this package does not.
var ErrModelUnavailable = errors.New("no candidate model is available")

// Caller is the one generation call the chain needs from the backend client.
type Caller interface {
	GenerateContent(ctx context.Context, model string, req genai.GenerationRequest) (string, error)
}

type FallbackObserver func(model string)

type Chain struct {
	caller     Caller
	logger     *slog.Logger
	onFallback FallbackObserver
}

type Option func(*Chain)

func WithFallbackObserver(observer FallbackObserver) Option {
	return func(c *Chain) {
		c.onFallback = observer
	}
}

func New(caller Caller, logger *slog.Logger, opts ...Option) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Chain{caller: caller, logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Generate tries each candidate in order. A not-found classification moves on
// to the next candidate; any other failure aborts immediately and is returned
// as-is so the caller sees the upstream classification. After exhausting all
// candidates the result is ErrModelUnavailable.
func (c *Chain) Generate(ctx context.Context, candidates []string, req genai.GenerationRequest) (string, error) {
	if len(candidates) == 0 {
		return "", ErrModelUnavailable
	}

	for i, model := range candidates {
		text, err := c.caller.GenerateContent(ctx, model, req)
		if err == nil {
			return text, nil
		}
		if !genai.IsKind(err, genai.KindNotFound) {
			return "", err
		}
		c.logger.Warn("candidate model unavailable", "model", model, "error", err)
		if c.onFallback != nil && i < len(candidates)-1 {
			c.onFallback(model)
		}
	}
	return "", ErrModelUnavailable
}
