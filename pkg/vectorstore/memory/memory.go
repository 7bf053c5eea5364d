// Package memory provides an in-memory vector store backed by
// brute-force search. It is intended for tests and local development,
// not for large corpora.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/lingokit/lingokit/pkg/vectorstore"
)

func init() {
	vectorstore.Register("memory", New)
}

// MemoryVectorStore keeps all documents in a map and scores every
// document on each search.
type MemoryVectorStore struct {
	documents     map[string]vectorstore.Document
	maxDocuments  int
	defaultTopK   int
	defaultMetric string
	embeddingDims int
	mu            sync.RWMutex
}

// New creates a MemoryVectorStore from the provided configuration.
func New(config vectorstore.Config) (vectorstore.VectorStore, error) {
	if config.EmbeddingDimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be greater than 0, got %d", config.EmbeddingDimensions)
	}

	maxDocs := 10000
	if config.Memory != nil && config.Memory.MaxDocuments > 0 {
		maxDocs = config.Memory.MaxDocuments
	}

	topK := config.DefaultTopK
	if topK <= 0 {
		topK = 10
	}

	return &MemoryVectorStore{
		documents:     make(map[string]vectorstore.Document),
		maxDocuments:  maxDocs,
		defaultTopK:   topK,
		defaultMetric: config.DefaultDistanceMetric,
		embeddingDims: config.EmbeddingDimensions,
	}, nil
}

// Upsert inserts or updates documents.
func (m *MemoryVectorStore) Upsert(ctx context.Context, documents []vectorstore.Document) error {
	if len(documents) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range documents {
		if err := vectorstore.ValidateDocument(&documents[i]); err != nil {
			return fmt.Errorf("invalid document at index %d: %w", i, err)
		}
		if len(documents[i].Embedding) != m.embeddingDims {
			return fmt.Errorf("document %s embedding dimension mismatch: expected %d, got %d",
				documents[i].ID, m.embeddingDims, len(documents[i].Embedding))
		}
	}

	newDocs := 0
	for _, doc := range documents {
		if _, exists := m.documents[doc.ID]; !exists {
			newDocs++
		}
	}
	if len(m.documents)+newDocs > m.maxDocuments {
		return fmt.Errorf("would exceed max documents limit: %d (current: %d, adding: %d)",
			m.maxDocuments, len(m.documents), newDocs)
	}

	for _, doc := range documents {
		m.documents[doc.ID] = copyDocument(doc)
	}

	return nil
}

// Search performs brute-force similarity search.
func (m *MemoryVectorStore) Search(ctx context.Context, query vectorstore.SearchQuery) ([]vectorstore.SearchResult, error) {
	if query.TopK == 0 {
		query.TopK = m.defaultTopK
	}
	if query.DistanceMetric == "" {
		query.DistanceMetric = vectorstore.DistanceMetric(m.defaultMetric)
	}

	if err := vectorstore.ValidateSearchQuery(&query); err != nil {
		return nil, fmt.Errorf("invalid search query: %w", err)
	}
	if len(query.Embedding) != m.embeddingDims {
		return nil, fmt.Errorf("query embedding dimension mismatch: expected %d, got %d",
			m.embeddingDims, len(query.Embedding))
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var candidates []vectorstore.SearchResult

	for _, doc := range m.documents {
		if query.Filter != nil && !matchesFilter(doc, query.Filter) {
			continue
		}

		score, distance := similarity(query.Embedding, doc.Embedding, query.DistanceMetric)
		if query.MinScore > 0 && score < query.MinScore {
			continue
		}

		candidates = append(candidates, vectorstore.SearchResult{
			Document: copyDocument(doc),
			Score:    score,
			Distance: distance,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if len(candidates) > query.TopK {
		candidates = candidates[:query.TopK]
	}

	return candidates, nil
}

// Delete removes documents by their IDs.
func (m *MemoryVectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		delete(m.documents, id)
	}

	return nil
}

// Get retrieves documents by their IDs.
func (m *MemoryVectorStore) Get(ctx context.Context, ids []string) ([]vectorstore.Document, error) {
	if len(ids) == 0 {
		return []vectorstore.Document{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var documents []vectorstore.Document
	for _, id := range ids {
		if doc, exists := m.documents[id]; exists {
			documents = append(documents, copyDocument(doc))
		}
	}

	return documents, nil
}

// Count returns the number of stored documents.
func (m *MemoryVectorStore) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.documents)), nil
}

// Stats reports collection statistics.
func (m *MemoryVectorStore) Stats(ctx context.Context) (*vectorstore.CollectionStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return &vectorstore.CollectionStats{
		Provider:            "memory",
		Documents:           int64(len(m.documents)),
		EmbeddingDimensions: m.embeddingDims,
	}, nil
}

// Close is a no-op for the memory store.
func (m *MemoryVectorStore) Close() error {
	return nil
}

// Clear removes all documents. Useful for tests.
func (m *MemoryVectorStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents = make(map[string]vectorstore.Document)
}

func matchesFilter(doc vectorstore.Document, filter *vectorstore.MetadataFilter) bool {
	for key, expected := range filter.Must {
		actual, exists := doc.Metadata[key]
		if !exists || actual != expected {
			return false
		}
	}

	if len(filter.Should) > 0 {
		matchedAny := false
		for key, expected := range filter.Should {
			if actual, exists := doc.Metadata[key]; exists && actual == expected {
				matchedAny = true
				break
			}
		}
		if !matchedAny {
			return false
		}
	}

	for key, rejected := range filter.MustNot {
		if actual, exists := doc.Metadata[key]; exists && actual == rejected {
			return false
		}
	}

	return true
}

func similarity(a, b []float32, metric vectorstore.DistanceMetric) (score, distance float32) {
	switch metric {
	case vectorstore.DistanceMetricDotProduct:
		score = dotProduct(a, b)
		return score, -score
	case vectorstore.DistanceMetricEuclidean:
		distance = euclideanDistance(a, b)
		return 1.0 / (1.0 + distance), distance
	default:
		score = cosineSimilarity(a, b)
		return score, 1.0 - score
	}
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (sqrt(normA) * sqrt(normB))
}

func dotProduct(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func euclideanDistance(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var sum float32
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sqrt(sum)
}

func sqrt(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}

// copyDocument deep-copies a document so callers cannot mutate the
// stored copy.
func copyDocument(doc vectorstore.Document) vectorstore.Document {
	embedding := make([]float32, len(doc.Embedding))
	copy(embedding, doc.Embedding)

	var metadata map[string]any
	if doc.Metadata != nil {
		metadata = make(map[string]any, len(doc.Metadata))
		for k, v := range doc.Metadata {
			metadata[k] = v
		}
	}

	return vectorstore.Document{
		ID:        doc.ID,
		Content:   doc.Content,
		Embedding: embedding,
		Metadata:  metadata,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}
