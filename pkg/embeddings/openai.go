package embeddings

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

func init() {
	Register("openai", func(config Config) (EmbeddingService, error) {
		return NewOpenAI(config)
	})
}

// OpenAIEmbedder generates embeddings through the OpenAI embeddings
// API or any OpenAI-compatible endpoint.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewOpenAI creates an OpenAIEmbedder from the provided configuration.
func NewOpenAI(config Config) (*OpenAIEmbedder, error) {
	if config.OpenAI == nil {
		return nil, fmt.Errorf("openai configuration is required")
	}
	if err := config.OpenAI.Validate(); err != nil {
		return nil, err
	}

	clientConfig := openai.DefaultConfig(config.OpenAI.APIKey)
	if config.OpenAI.BaseURL != "" {
		clientConfig.BaseURL = config.OpenAI.BaseURL
	}

	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      config.OpenAI.Model,
		dimensions: config.OpenAI.Dimensions,
	}, nil
}

// Embed generates an embedding for a single text.
func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts. Results are
// reordered by the index the API reports, so output position i always
// corresponds to texts[i].
func (o *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for i, text := range texts {
		if text == "" {
			return nil, fmt.Errorf("text at index %d is empty", i)
		}
	}

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(o.model),
		Dimensions: o.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: requested %d, got %d", len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding response has out-of-range index %d", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	for i, vec := range vectors {
		if vec == nil {
			return nil, fmt.Errorf("embedding response missing index %d", i)
		}
	}

	return vectors, nil
}

// Dimensions returns the configured embedding size.
func (o *OpenAIEmbedder) Dimensions() int {
	return o.dimensions
}

// ModelName returns the embedding model name.
func (o *OpenAIEmbedder) ModelName() string {
	return o.model
}

// Close is a no-op; the underlying client has no resources to release.
func (o *OpenAIEmbedder) Close() error {
	return nil
}
