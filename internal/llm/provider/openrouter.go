package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// OpenRouterBaseURL is the OpenAI-compatible endpoint OpenRouter exposes.
const OpenRouterBaseURL = "https://openrouter.ai/api/v1"

func init() {
	Register("openrouter", func(cfg Config) (Provider, error) {
		return NewOpenRouter(cfg)
	})
}

// chatCompleter is the slice of the OpenAI client the provider needs,
// extracted for testability.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenRouterProvider serves completions from OpenRouter's OpenAI-compatible
// chat API. OpenRouter fronts many hosted models, so Config.Model is
// required rather than defaulted.
type OpenRouterProvider struct {
	client      chatCompleter
	model       string
	maxAttempts int
}

// NewOpenRouter creates an OpenRouter provider.
func NewOpenRouter(cfg Config) (*OpenRouterProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openrouter: api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openrouter: model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = OpenRouterBaseURL
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenRouterProvider{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		maxAttempts: defaultMaxAttempts,
	}, nil
}

func (p *OpenRouterProvider) Name() string {
	return "openrouter"
}

// CreateCompletion calls the chat completions API with retry on transient
// failures.
func (p *OpenRouterProvider) CreateCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		}
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}

	var resp openai.ChatCompletionResponse
	var err error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			if werr := sleepBackoff(ctx, attempt); werr != nil {
				return nil, werr
			}
		}
		resp, err = p.client.CreateChatCompletion(ctx, chatReq)
		if err == nil {
			break
		}
		err = p.wrapError(err)
		if !retryable(err) {
			return nil, err
		}
	}
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, NewProviderError(p.Name(), ErrorCodeServerError, "no choices in response", nil)
	}

	choice := resp.Choices[0]
	finishReason := string(choice.FinishReason)
	if finishReason == "" {
		finishReason = "stop"
	}
	respModel := resp.Model
	if respModel == "" {
		respModel = model
	}

	return &CompletionResponse{
		Content:      choice.Message.Content,
		Model:        respModel,
		FinishReason: finishReason,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// wrapError classifies go-openai errors into ProviderErrors.
func (p *OpenRouterProvider) wrapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		perr := NewProviderError(p.Name(), codeForStatus(apiErr.HTTPStatusCode), apiErr.Message, err)
		perr.StatusCode = apiErr.HTTPStatusCode
		return perr
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		perr := NewProviderError(p.Name(), codeForStatus(reqErr.HTTPStatusCode), err.Error(), err)
		perr.StatusCode = reqErr.HTTPStatusCode
		return perr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError(p.Name(), ErrorCodeTimeout, err.Error(), err)
	}
	return NewProviderError(p.Name(), ErrorCodeUnknown, err.Error(), err)
}

func codeForStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrorCodeAuthentication
	case status == http.StatusTooManyRequests:
		return ErrorCodeRateLimit
	case status == http.StatusNotFound:
		return ErrorCodeModelNotFound
	case status == http.StatusRequestTimeout:
		return ErrorCodeTimeout
	case status >= 500:
		return ErrorCodeServerError
	case status >= 400:
		return ErrorCodeInvalidRequest
	default:
		return ErrorCodeUnknown
	}
}
