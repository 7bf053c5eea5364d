// Package firestore provides a vector store backed by Google Cloud
// Firestore. Candidates are filtered server-side and scored
// client-side.
package firestore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/lingokit/lingokit/pkg/vectorstore"
)

func init() {
	vectorstore.Register("firestore", func(config vectorstore.Config) (vectorstore.VectorStore, error) {
		return New(context.Background(), config)
	})
}

// FirestoreVectorStore stores documents in a single Firestore
// collection. Firestore has a 500 operations per batch limit, so bulk
// writes go through a BulkWriter.
type FirestoreVectorStore struct {
	client        *firestore.Client
	collRef       *firestore.CollectionRef
	projectID     string
	collection    string
	embeddingDims int
	defaultTopK   int
	defaultMetric string
}

// firestoreDocument is the stored shape. Firestore has no float32
// type, so embeddings are persisted as float64 arrays.
type firestoreDocument struct {
	ID        string         `firestore:"id"`
	Content   string         `firestore:"content"`
	Embedding []float64      `firestore:"embedding"`
	Metadata  map[string]any `firestore:"metadata,omitempty"`
	CreatedAt time.Time      `firestore:"created_at"`
	UpdatedAt time.Time      `firestore:"updated_at"`
}

// New creates a FirestoreVectorStore and connects to Firestore. Uses
// Application Default Credentials unless a credentials file is
// configured.
func New(ctx context.Context, config vectorstore.Config) (vectorstore.VectorStore, error) {
	if config.Firestore == nil {
		return nil, fmt.Errorf("firestore configuration is required")
	}
	if config.EmbeddingDimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be greater than 0, got %d", config.EmbeddingDimensions)
	}

	var clientOpts []option.ClientOption
	if config.Firestore.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(config.Firestore.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, config.Firestore.ProjectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	topK := config.DefaultTopK
	if topK <= 0 {
		topK = 10
	}

	return &FirestoreVectorStore{
		client:        client,
		collRef:       client.Collection(config.Firestore.Collection),
		projectID:     config.Firestore.ProjectID,
		collection:    config.Firestore.Collection,
		embeddingDims: config.EmbeddingDimensions,
		defaultTopK:   topK,
		defaultMetric: config.DefaultDistanceMetric,
	}, nil
}

// Upsert inserts or updates documents via a BulkWriter.
func (f *FirestoreVectorStore) Upsert(ctx context.Context, documents []vectorstore.Document) error {
	if len(documents) == 0 {
		return nil
	}

	for i := range documents {
		if err := vectorstore.ValidateDocument(&documents[i]); err != nil {
			return fmt.Errorf("invalid document at index %d: %w", i, err)
		}
		if len(documents[i].Embedding) != f.embeddingDims {
			return fmt.Errorf("document %s embedding dimension mismatch: expected %d, got %d",
				documents[i].ID, f.embeddingDims, len(documents[i].Embedding))
		}
	}

	bulkWriter := f.client.BulkWriter(ctx)
	defer bulkWriter.End()

	now := time.Now().UTC()
	for _, doc := range documents {
		createdAt := doc.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}

		fsDoc := &firestoreDocument{
			ID:        doc.ID,
			Content:   doc.Content,
			Embedding: toFloat64(doc.Embedding),
			Metadata:  doc.Metadata,
			CreatedAt: createdAt,
			UpdatedAt: now,
		}

		if _, err := bulkWriter.Set(f.collRef.Doc(doc.ID), fsDoc); err != nil {
			return fmt.Errorf("failed to queue document %s: %w", doc.ID, err)
		}
	}

	bulkWriter.Flush()
	return nil
}

// Search fetches candidates matching the Must conditions server-side,
// then applies the remaining filters and similarity scoring locally.
func (f *FirestoreVectorStore) Search(ctx context.Context, query vectorstore.SearchQuery) ([]vectorstore.SearchResult, error) {
	if query.TopK == 0 {
		query.TopK = f.defaultTopK
	}
	if query.DistanceMetric == "" {
		query.DistanceMetric = vectorstore.DistanceMetric(f.defaultMetric)
	}

	if err := vectorstore.ValidateSearchQuery(&query); err != nil {
		return nil, fmt.Errorf("invalid search query: %w", err)
	}
	if len(query.Embedding) != f.embeddingDims {
		return nil, fmt.Errorf("query embedding dimension mismatch: expected %d, got %d",
			f.embeddingDims, len(query.Embedding))
	}

	fsQuery := f.collRef.Query
	if query.Filter != nil {
		for key, value := range query.Filter.Must {
			if err := vectorstore.ValidateMetadataKey(key); err != nil {
				return nil, fmt.Errorf("invalid filter key %q: %w", key, err)
			}
			fsQuery = fsQuery.WherePath(firestore.FieldPath{"metadata", key}, "==", value)
		}
	}

	iter := fsQuery.Documents(ctx)
	defer iter.Stop()

	var candidates []vectorstore.SearchResult
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate documents: %w", err)
		}

		var fsDoc firestoreDocument
		if err := snap.DataTo(&fsDoc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document: %w", err)
		}

		doc := fsDoc.toDocument()
		if query.Filter != nil && !matchesLocalFilter(doc, query.Filter) {
			continue
		}

		score, distance := similarity(query.Embedding, doc.Embedding, query.DistanceMetric)
		if query.MinScore > 0 && score < query.MinScore {
			continue
		}

		candidates = append(candidates, vectorstore.SearchResult{
			Document: doc,
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

// Delete removes documents by their IDs. Missing documents are not an
// error.
func (f *FirestoreVectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	bulkWriter := f.client.BulkWriter(ctx)
	defer bulkWriter.End()

	for _, id := range ids {
		if _, err := bulkWriter.Delete(f.collRef.Doc(id)); err != nil {
			return fmt.Errorf("failed to queue delete for document %s: %w", id, err)
		}
	}

	bulkWriter.Flush()
	return nil
}

// Get retrieves documents by their IDs, skipping missing ones.
func (f *FirestoreVectorStore) Get(ctx context.Context, ids []string) ([]vectorstore.Document, error) {
	if len(ids) == 0 {
		return []vectorstore.Document{}, nil
	}

	documents := make([]vectorstore.Document, 0, len(ids))
	for _, id := range ids {
		snap, err := f.collRef.Doc(id).Get(ctx)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				continue
			}
			return nil, fmt.Errorf("failed to get document %s: %w", id, err)
		}

		var fsDoc firestoreDocument
		if err := snap.DataTo(&fsDoc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document %s: %w", id, err)
		}

		documents = append(documents, fsDoc.toDocument())
	}

	return documents, nil
}

// Count returns the number of stored documents using an aggregation
// query, which avoids reading every document.
func (f *FirestoreVectorStore) Count(ctx context.Context) (int64, error) {
	aggQuery := f.collRef.Query.NewAggregationQuery().WithCount("count")
	results, err := aggQuery.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}

	count, ok := results["count"]
	if !ok {
		return 0, nil
	}
	countValue, ok := count.(*firestorepb.Value)
	if !ok {
		return 0, nil
	}
	return countValue.GetIntegerValue(), nil
}

// Stats reports collection statistics.
func (f *FirestoreVectorStore) Stats(ctx context.Context) (*vectorstore.CollectionStats, error) {
	count, err := f.Count(ctx)
	if err != nil {
		return nil, err
	}

	return &vectorstore.CollectionStats{
		Provider:            "firestore",
		Documents:           count,
		EmbeddingDimensions: f.embeddingDims,
		Extra: map[string]any{
			"project_id": f.projectID,
			"collection": f.collection,
		},
	}, nil
}

// Close closes the Firestore client.
func (f *FirestoreVectorStore) Close() error {
	return f.client.Close()
}

func (fsDoc *firestoreDocument) toDocument() vectorstore.Document {
	return vectorstore.Document{
		ID:        fsDoc.ID,
		Content:   fsDoc.Content,
		Embedding: toFloat32(fsDoc.Embedding),
		Metadata:  fsDoc.Metadata,
		CreatedAt: fsDoc.CreatedAt,
		UpdatedAt: fsDoc.UpdatedAt,
	}
}

// matchesLocalFilter applies the Should and MustNot conditions, which
// Firestore cannot evaluate in a single server-side query.
func matchesLocalFilter(doc vectorstore.Document, filter *vectorstore.MetadataFilter) bool {
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

	return dot / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
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
	return float32(math.Sqrt(float64(sum)))
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
