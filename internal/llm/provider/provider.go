// Package provider defines the language-model abstraction used for lesson
// generation. Concrete providers (Gemini/LearnLM, OpenRouter) register
// themselves with the package factory registry; callers construct them by
// name and usually stack them into a Chain so a failing provider falls back
// to the next one.
package provider

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn of the prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest describes one generation call.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// CompletionResponse is the provider-normalized result of a generation call.
type CompletionResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
}

// Usage reports token consumption for a single call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Provider generates completions. Implementations must be safe for
// concurrent use.
type Provider interface {
	// CreateCompletion generates a response for the given request.
	CreateCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider identifier ("gemini", "openrouter", ...).
	Name() string
}

// Error codes shared by all providers.
const (
	ErrorCodeInvalidRequest = "invalid_request"
	ErrorCodeAuthentication = "authentication_error"
	ErrorCodeRateLimit      = "rate_limit_exceeded"
	ErrorCodeServerError    = "server_error"
	ErrorCodeTimeout        = "timeout"
	ErrorCodeModelNotFound  = "model_not_found"
	ErrorCodeUnknown        = "unknown_error"
)

// ProviderError normalizes errors across providers so callers can branch on
// Code instead of provider-specific error types.
type ProviderError struct {
	Provider      string
	Code          string
	Message       string
	StatusCode    int
	IsRetryable   bool
	OriginalError error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.OriginalError
}

// NewProviderError builds a ProviderError with retryability derived from the
// code.
func NewProviderError(provider, code, message string, original error) *ProviderError {
	return &ProviderError{
		Provider:      provider,
		Code:          code,
		Message:       message,
		IsRetryable:   isRetryableCode(code),
		OriginalError: original,
	}
}

// isRetryableCode reports whether a call failing with the given code is
// worth retrying.
func isRetryableCode(code string) bool {
	switch code {
	case ErrorCodeRateLimit, ErrorCodeServerError, ErrorCodeTimeout:
		return true
	default:
		return false
	}
}

// retryable reports whether err should be retried. Context errors are never
// retried; anything classified as a ProviderError defers to its code.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.IsRetryable
	}
	return false
}

// Retry policy shared by providers. Exponential backoff 1s, 2s, 4s, ...
// capped at maxRetryDelay, with ±30% jitter.
const (
	defaultMaxAttempts = 3
	retryJitterFactor  = 0.3
)

// Vars so tests can shrink the delays.
var (
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 16 * time.Second
)

// retryDelay returns the backoff before the given attempt (attempt >= 1).
func retryDelay(attempt int) time.Duration {
	shift := attempt - 1
	if shift < 0 {
		shift = 0
	}
	if shift > 31 {
		shift = 31
	}
	delay := time.Duration(1<<uint(shift)) * baseRetryDelay
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	jitter := time.Duration(float64(delay) * retryJitterFactor * (rand.Float64()*2 - 1))
	return delay + jitter
}

// sleepBackoff waits for the attempt's backoff or until ctx is done.
func sleepBackoff(ctx context.Context, attempt int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(retryDelay(attempt)):
		return nil
	}
}
