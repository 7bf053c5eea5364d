package embeddings

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	ctx := context.Background()
	embedder, err := NewHash(Config{Hash: &HashConfig{Dimensions: 32}})
	require.NoError(t, err)

	first, err := embedder.Embed(ctx, "the present simple tense")
	require.NoError(t, err)
	second, err := embedder.Embed(ctx, "the present simple tense")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestHashEmbedder_DifferentTextsDiffer(t *testing.T) {
	ctx := context.Background()
	embedder, err := NewHash(Config{Hash: &HashConfig{Dimensions: 32}})
	require.NoError(t, err)

	a, err := embedder.Embed(ctx, "grammar")
	require.NoError(t, err)
	b, err := embedder.Embed(ctx, "vocabulary")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestHashEmbedder_UnitNorm(t *testing.T) {
	ctx := context.Background()
	embedder, err := NewHash(Config{Hash: &HashConfig{Dimensions: 128}})
	require.NoError(t, err)

	vec, err := embedder.Embed(ctx, "normalization check")
	require.NoError(t, err)

	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSquares), 1e-3)
}

func TestHashEmbedder_Batch(t *testing.T) {
	ctx := context.Background()
	embedder, err := NewHash(Config{Hash: &HashConfig{Dimensions: 16}})
	require.NoError(t, err)

	texts := []string{"one", "two", "three"}
	vectors, err := embedder.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	// Batch output must match single-text output per position.
	for i, text := range texts {
		single, err := embedder.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, vectors[i])
	}
}
