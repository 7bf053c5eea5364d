package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingokit/lingokit/pkg/vectorstore"
)

func newTestStore(t *testing.T) vectorstore.VectorStore {
	t.Helper()

	store, err := New(vectorstore.Config{
		Provider:            "memory",
		EmbeddingDimensions: 3,
		DefaultTopK:         10,
	})
	require.NoError(t, err)
	return store
}

func seedDocuments(t *testing.T, store vectorstore.VectorStore) {
	t.Helper()

	docs := []vectorstore.Document{
		{
			ID:        "grammar-1",
			Content:   "The present simple describes habits and routines.",
			Embedding: []float32{1, 0, 0},
			Metadata:  map[string]any{vectorstore.MetaDifficulty: "beginner", vectorstore.MetaSubject: "grammar"},
		},
		{
			ID:        "grammar-2",
			Content:   "The past perfect places one past event before another.",
			Embedding: []float32{0.9, 0.1, 0},
			Metadata:  map[string]any{vectorstore.MetaDifficulty: "advanced", vectorstore.MetaSubject: "grammar"},
		},
		{
			ID:        "vocab-1",
			Content:   "Common greetings include hello, hi, and good morning.",
			Embedding: []float32{0, 1, 0},
			Metadata:  map[string]any{vectorstore.MetaDifficulty: "beginner", vectorstore.MetaSubject: "vocabulary"},
		},
	}
	require.NoError(t, store.Upsert(context.Background(), docs))
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  vectorstore.Config
		wantErr bool
		maxDocs int
	}{
		{
			name: "with memory settings",
			config: vectorstore.Config{
				Provider:            "memory",
				EmbeddingDimensions: 384,
				DefaultTopK:         10,
				Memory:              &vectorstore.MemoryConfig{MaxDocuments: 5000},
			},
			maxDocs: 5000,
		},
		{
			name: "without memory settings uses default max",
			config: vectorstore.Config{
				Provider:            "memory",
				EmbeddingDimensions: 768,
				DefaultTopK:         20,
			},
			maxDocs: 10000,
		},
		{
			name: "zero dimensions rejected",
			config: vectorstore.Config{
				Provider:    "memory",
				DefaultTopK: 10,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := New(tt.config)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			ms := store.(*MemoryVectorStore)
			assert.Equal(t, tt.maxDocs, ms.maxDocuments)
		})
	}
}

func TestUpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedDocuments(t, store)

	results, err := store.Search(ctx, vectorstore.SearchQuery{
		Embedding: []float32{1, 0, 0},
		TopK:      2,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "grammar-1", results[0].Document.ID)
	assert.Equal(t, "grammar-2", results[1].Document.ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestSearch_DifficultyFilter(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedDocuments(t, store)

	results, err := store.Search(ctx, vectorstore.SearchQuery{
		Embedding: []float32{1, 0, 0},
		TopK:      10,
		Filter:    vectorstore.DifficultyFilter("beginner"),
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "beginner", r.Document.Metadata[vectorstore.MetaDifficulty])
	}
}

func TestSearch_MustNotFilter(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedDocuments(t, store)

	results, err := store.Search(ctx, vectorstore.SearchQuery{
		Embedding: []float32{1, 0, 0},
		TopK:      10,
		Filter: &vectorstore.MetadataFilter{
			MustNot: map[string]any{vectorstore.MetaSubject: "vocabulary"},
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NotEqual(t, "vocab-1", r.Document.ID)
	}
}

func TestSearch_ShouldFilter(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedDocuments(t, store)

	results, err := store.Search(ctx, vectorstore.SearchQuery{
		Embedding: []float32{1, 0, 0},
		TopK:      10,
		Filter: &vectorstore.MetadataFilter{
			Should: map[string]any{
				vectorstore.MetaSubject: "vocabulary",
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "vocab-1", results[0].Document.ID)
}

func TestSearch_MinScore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedDocuments(t, store)

	results, err := store.Search(ctx, vectorstore.SearchQuery{
		Embedding: []float32{1, 0, 0},
		TopK:      10,
		MinScore:  0.95,
	})
	require.NoError(t, err)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, float32(0.95))
	}
	// The orthogonal vocabulary vector must be excluded.
	for _, r := range results {
		assert.NotEqual(t, "vocab-1", r.Document.ID)
	}
}

func TestSearch_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Search(ctx, vectorstore.SearchQuery{
		Embedding: []float32{1, 0},
		TopK:      5,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension mismatch")
}

func TestUpsert_UpdatesExisting(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedDocuments(t, store)

	updated := []vectorstore.Document{{
		ID:        "grammar-1",
		Content:   "Updated explanation of the present simple.",
		Embedding: []float32{0.5, 0.5, 0},
	}}
	require.NoError(t, store.Upsert(ctx, updated))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	docs, err := store.Get(ctx, []string{"grammar-1"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Updated explanation of the present simple.", docs[0].Content)
}

func TestUpsert_MaxDocumentsLimit(t *testing.T) {
	ctx := context.Background()
	store, err := New(vectorstore.Config{
		Provider:            "memory",
		EmbeddingDimensions: 3,
		DefaultTopK:         10,
		Memory:              &vectorstore.MemoryConfig{MaxDocuments: 1},
	})
	require.NoError(t, err)

	first := []vectorstore.Document{{ID: "a", Content: "a", Embedding: []float32{1, 0, 0}}}
	require.NoError(t, store.Upsert(ctx, first))

	second := []vectorstore.Document{{ID: "b", Content: "b", Embedding: []float32{0, 1, 0}}}
	err = store.Upsert(ctx, second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max documents limit")
}

func TestDeleteAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedDocuments(t, store)

	require.NoError(t, store.Delete(ctx, []string{"grammar-1", "missing"}))

	docs, err := store.Get(ctx, []string{"grammar-1", "grammar-2"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "grammar-2", docs[0].ID)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedDocuments(t, store)

	stats, err := store.(*MemoryVectorStore).Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "memory", stats.Provider)
	assert.Equal(t, int64(3), stats.Documents)
	assert.Equal(t, 3, stats.EmbeddingDimensions)
}

func TestGetReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedDocuments(t, store)

	docs, err := store.Get(ctx, []string{"grammar-1"})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	docs[0].Metadata[vectorstore.MetaDifficulty] = "mutated"
	docs[0].Embedding[0] = 99

	again, err := store.Get(ctx, []string{"grammar-1"})
	require.NoError(t, err)
	assert.Equal(t, "beginner", again[0].Metadata[vectorstore.MetaDifficulty])
	assert.Equal(t, float32(1), again[0].Embedding[0])
}
