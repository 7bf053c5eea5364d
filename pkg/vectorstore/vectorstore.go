package vectorstore

import (
	"context"
	"fmt"
	"time"
)

// VectorStore is the interface for similarity search over teaching content.
// Implementations store documents with embeddings and answer top-K queries,
// optionally filtered by metadata such as difficulty level.
type VectorStore interface {
	// Upsert inserts or updates documents with embeddings
	Upsert(ctx context.Context, documents []Document) error

	// Search performs similarity search and returns the most similar documents
	Search(ctx context.Context, query SearchQuery) ([]SearchResult, error)

	// Delete removes documents by their IDs
	Delete(ctx context.Context, ids []string) error

	// Get retrieves documents by their IDs, skipping any that do not exist
	Get(ctx context.Context, ids []string) ([]Document, error)

	// Count returns the number of stored documents
	Count(ctx context.Context) (int64, error)

	// Close releases the underlying connection
	Close() error
}

// StatsProvider is an optional interface for stores that can report
// collection statistics. Callers should type-assert for it.
type StatsProvider interface {
	Stats(ctx context.Context) (*CollectionStats, error)
}

// CollectionStats describes the contents of a vector store collection.
type CollectionStats struct {
	Provider            string         `json:"provider"`
	Documents           int64          `json:"documents"`
	EmbeddingDimensions int            `json:"embedding_dimensions"`
	Extra               map[string]any `json:"extra,omitempty"`
}

// Well-known metadata keys written by the ingestion pipeline.
const (
	MetaSubject     = "subject"
	MetaDifficulty  = "difficulty_level"
	MetaContentType = "content_type"
	MetaTitle       = "title"
	MetaChunkIndex  = "chunk_index"
)

// Document is a chunk of teaching content with its embedding.
type Document struct {
	// ID is the unique identifier for the document
	ID string `json:"id"`

	// Content is the text of the chunk
	Content string `json:"content"`

	// Embedding is the vector representation of the content
	Embedding []float32 `json:"embedding"`

	// Metadata carries filterable attributes (difficulty, topic, source)
	Metadata map[string]any `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SearchQuery defines the parameters for a similarity search.
type SearchQuery struct {
	// Embedding is the query vector
	Embedding []float32

	// TopK is the number of results to return (default 10)
	TopK int

	// Filter is optional metadata filtering for hybrid search
	Filter *MetadataFilter

	// MinScore excludes results scoring below this value
	MinScore float32

	// DistanceMetric selects the similarity function (default cosine)
	DistanceMetric DistanceMetric
}

// SearchResult is a matched document with its similarity score.
type SearchResult struct {
	Document Document

	// Score is the similarity score, higher is more similar.
	// Cosine and euclidean scores are normalized to 0..1.
	Score float32

	// Distance is the raw distance reported by the backend
	Distance float32
}

// MetadataFilter defines metadata conditions for hybrid search.
type MetadataFilter struct {
	// Must contains conditions that all must hold (AND)
	Must map[string]any

	// Should contains conditions of which at least one must hold (OR)
	Should map[string]any

	// MustNot contains conditions that must not hold (NOT)
	MustNot map[string]any
}

// DifficultyFilter returns a filter matching documents tagged with the
// given difficulty level.
func DifficultyFilter(level string) *MetadataFilter {
	return &MetadataFilter{Must: map[string]any{MetaDifficulty: level}}
}

// DistanceMetric selects how vector similarity is computed.
type DistanceMetric string

const (
	// DistanceMetricCosine is cosine similarity (default).
	// Best fit for normalized text embeddings.
	DistanceMetricCosine DistanceMetric = "cosine"

	// DistanceMetricEuclidean is L2 distance, converted to a 0..1 score
	// via 1/(1+distance).
	DistanceMetricEuclidean DistanceMetric = "euclidean"

	// DistanceMetricDotProduct is the raw inner product.
	DistanceMetricDotProduct DistanceMetric = "dot_product"
)

// ValidateDocument checks a document before storage.
func ValidateDocument(doc *Document) error {
	if err := ValidateDocumentID(doc.ID); err != nil {
		return fmt.Errorf("invalid document ID: %w", err)
	}
	if doc.Content == "" {
		return fmt.Errorf("document content cannot be empty")
	}
	if len(doc.Embedding) == 0 {
		return fmt.Errorf("document embedding cannot be empty")
	}
	for i, val := range doc.Embedding {
		if isNaN(val) || isInf(val) {
			return fmt.Errorf("embedding contains invalid value at index %d: %f", i, val)
		}
	}
	for key := range doc.Metadata {
		if err := ValidateMetadataKey(key); err != nil {
			return fmt.Errorf("invalid metadata key %q: %w", key, err)
		}
	}
	return nil
}

// ValidateSearchQuery checks a search query.
func ValidateSearchQuery(query *SearchQuery) error {
	if len(query.Embedding) == 0 {
		return fmt.Errorf("query embedding cannot be empty")
	}
	for i, val := range query.Embedding {
		if isNaN(val) || isInf(val) {
			return fmt.Errorf("query embedding contains invalid value at index %d: %f", i, val)
		}
	}

	if query.TopK < 1 {
		return fmt.Errorf("TopK must be at least 1, got %d", query.TopK)
	}
	if query.TopK > 1000 {
		return fmt.Errorf("TopK cannot exceed 1000, got %d", query.TopK)
	}

	if query.MinScore != 0 {
		if isNaN(query.MinScore) || isInf(query.MinScore) {
			return fmt.Errorf("MinScore contains invalid value: %f", query.MinScore)
		}
		// Dot product scores are unbounded, everything else maps to 0..1.
		if query.DistanceMetric != DistanceMetricDotProduct {
			if query.MinScore < 0 || query.MinScore > 1 {
				return fmt.Errorf("MinScore must be between 0 and 1, got %f", query.MinScore)
			}
		}
	}

	switch query.DistanceMetric {
	case "", DistanceMetricCosine, DistanceMetricEuclidean, DistanceMetricDotProduct:
	default:
		return fmt.Errorf("invalid distance metric: %s", query.DistanceMetric)
	}

	return nil
}

// ValidateMetadataKey rejects keys that could be abused for injection
// into document-store query paths.
func ValidateMetadataKey(key string) error {
	if key == "" {
		return fmt.Errorf("metadata key cannot be empty")
	}
	if len(key) > 256 {
		return fmt.Errorf("metadata key too long: maximum 256 characters, got %d", len(key))
	}
	for i, r := range key {
		if r < 0x20 || r == 0x7F {
			return fmt.Errorf("metadata key contains control character at position %d", i)
		}
		if r == '$' || r == '.' {
			return fmt.Errorf("metadata key contains forbidden character '%c' at position %d", r, i)
		}
	}
	return nil
}

// ValidateDocumentID rejects IDs containing path separators or control
// characters.
func ValidateDocumentID(id string) error {
	if id == "" {
		return fmt.Errorf("document ID cannot be empty")
	}
	if len(id) > 512 {
		return fmt.Errorf("document ID too long: maximum 512 characters, got %d", len(id))
	}
	if id == "." || id == ".." {
		return fmt.Errorf("document ID cannot be '.' or '..'")
	}
	for i, r := range id {
		if r < 0x20 || r == 0x7F {
			return fmt.Errorf("document ID contains control character at position %d", i)
		}
		if r == '/' || r == '\\' {
			return fmt.Errorf("document ID contains path separator at position %d", i)
		}
	}
	return nil
}

func isNaN(f float32) bool {
	return f != f
}

func isInf(f float32) bool {
	return f > maxFloat32 || f < -maxFloat32
}

const maxFloat32 = 3.40282346638528859811704183484516925440e+38
