package provider

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lingokit/lingokit/internal/observability"
)

// InstrumentedProvider wraps a Provider so every completion call is traced
// with token usage, latency, and error attributes.
type InstrumentedProvider struct {
	provider Provider
	enabled  bool
}

// NewInstrumentedProvider wraps a provider with tracing. When enabled is
// false calls pass straight through.
func NewInstrumentedProvider(provider Provider, enabled bool) *InstrumentedProvider {
	return &InstrumentedProvider{
		provider: provider,
		enabled:  enabled,
	}
}

// CreateCompletion creates a completion with automatic instrumentation.
func (p *InstrumentedProvider) CreateCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if !p.enabled {
		return p.provider.CreateCompletion(ctx, req)
	}

	ctx, span := observability.StartSpanWithOtel(ctx, fmt.Sprintf("llm.%s.completion", p.provider.Name()),
		trace.WithAttributes(
			attribute.String("llm.provider", p.provider.Name()),
			attribute.String("llm.model", req.Model),
			attribute.Float64("llm.temperature", req.Temperature),
			attribute.Int("llm.max_tokens", req.MaxTokens),
			attribute.Int("llm.messages_count", len(req.Messages)),
		),
	)
	defer span.End()

	startTime := time.Now()
	resp, err := p.provider.CreateCompletion(ctx, req)
	duration := time.Since(startTime)

	span.SetAttributes(
		attribute.Int64("llm.duration_ms", duration.Milliseconds()),
		attribute.Bool("llm.success", err == nil),
	)

	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("llm.error", err.Error()))
		return nil, err
	}

	if resp != nil {
		span.SetAttributes(
			attribute.Int("llm.usage.prompt_tokens", resp.Usage.PromptTokens),
			attribute.Int("llm.usage.completion_tokens", resp.Usage.CompletionTokens),
			attribute.Int("llm.usage.total_tokens", resp.Usage.TotalTokens),
			attribute.String("llm.finish_reason", resp.FinishReason),
		)
	}

	return resp, nil
}

// Name returns the underlying provider name.
func (p *InstrumentedProvider) Name() string {
	return p.provider.Name()
}

// WrapProvider wraps a provider with instrumentation if not already wrapped.
func WrapProvider(provider Provider) Provider {
	if _, ok := provider.(*InstrumentedProvider); ok {
		return provider
	}
	return NewInstrumentedProvider(provider, true)
}

// UnwrapProvider returns the underlying provider if wrapped.
func UnwrapProvider(provider Provider) Provider {
	if instrumented, ok := provider.(*InstrumentedProvider); ok {
		return instrumented.provider
	}
	return provider
}
