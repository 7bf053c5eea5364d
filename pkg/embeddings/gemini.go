package embeddings

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

func init() {
	Register("gemini", func(config Config) (EmbeddingService, error) {
		return NewGemini(context.Background(), config)
	})
}

// GeminiEmbedder generates embeddings through the Gemini API.
type GeminiEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int
}

// NewGemini creates a GeminiEmbedder from the provided configuration.
func NewGemini(ctx context.Context, config Config) (*GeminiEmbedder, error) {
	if config.Gemini == nil {
		return nil, fmt.Errorf("gemini configuration is required")
	}
	if err := config.Gemini.Validate(); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.Gemini.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiEmbedder{
		client:     client,
		model:      config.Gemini.Model,
		dimensions: config.Gemini.Dimensions,
	}, nil
}

// Embed generates an embedding for a single text.
func (g *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts in a single call.
func (g *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for i, text := range texts {
		if text == "" {
			return nil, fmt.Errorf("text at index %d is empty", i)
		}
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = &genai.Content{
			Role:  "user",
			Parts: []*genai.Part{{Text: text}},
		}
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: genai.Ptr(int32(g.dimensions)),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: requested %d, got %d", len(texts), len(resp.Embeddings))
	}

	vectors := make([][]float32, len(texts))
	for i, embedding := range resp.Embeddings {
		if embedding == nil || len(embedding.Values) == 0 {
			return nil, fmt.Errorf("embedding response missing values at index %d", i)
		}
		vectors[i] = embedding.Values
	}

	return vectors, nil
}

// Dimensions returns the configured embedding size.
func (g *GeminiEmbedder) Dimensions() int {
	return g.dimensions
}

// ModelName returns the embedding model name.
func (g *GeminiEmbedder) ModelName() string {
	return g.model
}

// Close is a no-op; the genai client holds no closeable resources.
func (g *GeminiEmbedder) Close() error {
	return nil
}
