package provider

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrGenerationUnavailable is returned when every provider in a chain has
// failed for a request.
var ErrGenerationUnavailable = errors.New("all generation providers unavailable")

// Chain tries providers in order until one succeeds, so a Gemini outage
// degrades to OpenRouter instead of failing the chat. An optional
// client-side rate limiter gates all calls through the chain.
type Chain struct {
	providers  []Provider
	limiter    *rate.Limiter
	onFallback func(provider string)
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithRateLimit caps generation at rps requests per second with the given
// burst. Callers block in Wait until a slot frees or their context ends.
func WithRateLimit(rps float64, burst int) ChainOption {
	return func(c *Chain) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithFallbackHook registers a callback invoked with the name of each
// provider that fails before the chain moves on. Used for metrics.
func WithFallbackHook(hook func(provider string)) ChainOption {
	return func(c *Chain) {
		c.onFallback = hook
	}
}

// NewChain builds a provider chain. Order matters: earlier providers are
// preferred.
func NewChain(providers []Provider, opts ...ChainOption) (*Chain, error) {
	if len(providers) == 0 {
		return nil, errors.New("chain requires at least one provider")
	}
	c := &Chain{providers: providers}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Chain) Name() string {
	return "chain"
}

// Providers returns the chained provider names in preference order.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// CreateCompletion tries each provider in order and returns the first
// success. When all providers fail the returned error wraps
// ErrGenerationUnavailable and the last provider error.
func (c *Chain) CreateCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var lastErr error
	for _, p := range c.providers {
		resp, err := p.CreateCompletion(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		log.WithError(err).WithField("provider", p.Name()).Warn("generation provider failed, trying next")
		if c.onFallback != nil {
			c.onFallback(p.Name())
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrGenerationUnavailable, lastErr)
}
