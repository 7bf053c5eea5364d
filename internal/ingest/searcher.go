package ingest

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/lingokit/lingokit/internal/observability"
	"github.com/lingokit/lingokit/pkg/embeddings"
	"github.com/lingokit/lingokit/pkg/vectorstore"
)

const defaultTopK = 5

// Searcher runs embedded similarity queries against the document store.
// It backs both the tutor's retrieval step and the document search API.
type Searcher struct {
	store    vectorstore.VectorStore
	embedder embeddings.EmbeddingService
	topK     int
}

// NewSearcher wires a Searcher. A non-positive topK falls back to 5.
func NewSearcher(store vectorstore.VectorStore, embedder embeddings.EmbeddingService, topK int) *Searcher {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Searcher{store: store, embedder: embedder, topK: topK}
}

// Search embeds the query and returns the most similar documents.
// Filters require exact metadata matches; empty filter values are
// ignored. A non-positive limit uses the configured default.
func (s *Searcher) Search(ctx context.Context, query string, filters map[string]string, limit int) ([]vectorstore.SearchResult, error) {
	ctx, span := observability.StartSpanWithOtel(ctx, "ingest.search")
	defer span.End()

	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	if limit <= 0 {
		limit = s.topK
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := s.store.Search(ctx, vectorstore.SearchQuery{
		Embedding: vec,
		TopK:      limit,
		Filter:    metadataFilter(filters),
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("search documents: %w", err)
	}

	span.SetAttributes(attribute.Int("search.results", len(results)))
	return results, nil
}

// SearchByDifficulty restricts retrieval to one subject and difficulty
// tier. This is the tutor's context lookup.
func (s *Searcher) SearchByDifficulty(ctx context.Context, query, subject, difficultyLevel string) ([]vectorstore.SearchResult, error) {
	return s.Search(ctx, query, map[string]string{
		vectorstore.MetaSubject:    subject,
		vectorstore.MetaDifficulty: difficultyLevel,
	}, 0)
}

// Stats reports collection statistics when the underlying store can
// produce them; ok is false otherwise.
func (s *Searcher) Stats(ctx context.Context) (stats *vectorstore.CollectionStats, ok bool, err error) {
	sp, ok := s.store.(vectorstore.StatsProvider)
	if !ok {
		return nil, false, nil
	}
	stats, err = sp.Stats(ctx)
	if err != nil {
		return nil, true, err
	}
	return stats, true, nil
}

func metadataFilter(filters map[string]string) *vectorstore.MetadataFilter {
	if len(filters) == 0 {
		return nil
	}
	must := make(map[string]any, len(filters))
	for key, value := range filters {
		if value == "" {
			continue
		}
		must[key] = value
	}
	if len(must) == 0 {
		return nil
	}
	return &vectorstore.MetadataFilter{Must: must}
}
