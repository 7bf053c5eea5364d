package provider

import (
	"context"
	"fmt"
	"math"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel is LearnLM, Google's model tuned for tutoring
// interactions. Overridable per request or via Config.Model.
const DefaultGeminiModel = "learnlm-2.0-flash-experimental"

func init() {
	Register("gemini", func(cfg Config) (Provider, error) {
		return NewGemini(context.Background(), cfg)
	})
}

// GeminiProvider generates completions through the Gemini API using the
// google.golang.org/genai SDK.
type GeminiProvider struct {
	client      *genai.Client
	model       string
	maxAttempts int
}

// NewGemini creates a Gemini provider authenticated with an API key.
func NewGemini(ctx context.Context, cfg Config) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}

	return &GeminiProvider{
		client:      client,
		model:       model,
		maxAttempts: defaultMaxAttempts,
	}, nil
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

// CreateCompletion calls the Gemini API with retry on transient failures.
func (p *GeminiProvider) CreateCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	config := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 && req.MaxTokens <= math.MaxInt32 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	contents := buildGeminiContents(req.Messages, config)

	var resp *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			if werr := sleepBackoff(ctx, attempt); werr != nil {
				return nil, werr
			}
		}
		resp, err = p.client.Models.GenerateContent(ctx, model, contents, config)
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

	return p.parseResponse(resp, model)
}

// buildGeminiContents converts messages to genai contents. System messages
// become the system instruction (last one wins); the assistant role maps to
// Gemini's "model" role.
func buildGeminiContents(messages []Message, config *genai.GenerateContentConfig) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			config.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: m.Content}},
			}
			continue
		}
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return contents
}

func (p *GeminiProvider) parseResponse(resp *genai.GenerateContentResponse, model string) (*CompletionResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, NewProviderError(p.Name(), ErrorCodeServerError, "no candidates in response", nil)
	}

	candidate := resp.Candidates[0]
	var text strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part != nil {
				text.WriteString(part.Text)
			}
		}
	}

	out := &CompletionResponse{
		Content:      text.String(),
		Model:        model,
		FinishReason: geminiFinishReason(string(candidate.FinishReason)),
	}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

func geminiFinishReason(reason string) string {
	switch reason {
	case "STOP", "":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION":
		return "content_filter"
	default:
		return strings.ToLower(reason)
	}
}

// wrapError classifies SDK errors into ProviderErrors. The genai SDK
// surfaces most failures as plain errors, so classification matches on the
// message.
func (p *GeminiProvider) wrapError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	code := ErrorCodeUnknown
	switch {
	case strings.Contains(msg, "authentication"), strings.Contains(msg, "credential"),
		strings.Contains(msg, "api key"), strings.Contains(msg, "401"), strings.Contains(msg, "403"):
		code = ErrorCodeAuthentication
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"), strings.Contains(msg, "quota"):
		code = ErrorCodeRateLimit
	case strings.Contains(msg, "not found"), strings.Contains(msg, "404"):
		code = ErrorCodeModelNotFound
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		code = ErrorCodeTimeout
	case strings.Contains(msg, "invalid"), strings.Contains(msg, "400"):
		code = ErrorCodeInvalidRequest
	case strings.Contains(msg, "500"), strings.Contains(msg, "503"), strings.Contains(msg, "server"),
		strings.Contains(msg, "unavailable"):
		code = ErrorCodeServerError
	}
	return NewProviderError(p.Name(), code, err.Error(), err)
}
