package embeddings

import (
	"context"
	"hash/fnv"
	"math"
)

func init() {
	Register("hash", func(config Config) (EmbeddingService, error) {
		return NewHash(config)
	})
}

// HashEmbedder produces deterministic pseudo-embeddings derived from a
// hash of the input text. Identical texts always map to identical
// vectors, which makes it useful for tests and offline development.
// It has no semantic awareness.
type HashEmbedder struct {
	dimensions int
}

// NewHash creates a HashEmbedder from the provided configuration.
func NewHash(config Config) (*HashEmbedder, error) {
	cfg := config.Hash
	if cfg == nil {
		cfg = &HashConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &HashEmbedder{dimensions: cfg.Dimensions}, nil
}

// Embed generates a deterministic unit-length vector for the text.
func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(text))

	// xorshift64 seeded by the text hash; the |1 keeps the state
	// nonzero for empty input.
	state := hasher.Sum64() | 1

	vec := make([]float32, h.dimensions)
	var sumSquares float64
	for i := range vec {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		v := float64(int64(state)) / float64(math.MaxInt64)
		vec[i] = float32(v)
		sumSquares += v * v
	}

	if sumSquares > 0 {
		norm := float32(1.0 / math.Sqrt(sumSquares))
		for i := range vec {
			vec[i] *= norm
		}
	}

	return vec, nil
}

// EmbedBatch generates deterministic vectors for each text.
func (h *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := h.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Dimensions returns the configured embedding size.
func (h *HashEmbedder) Dimensions() int {
	return h.dimensions
}

// ModelName identifies the embedder.
func (h *HashEmbedder) ModelName() string {
	return "hash"
}

// Close is a no-op.
func (h *HashEmbedder) Close() error {
	return nil
}
