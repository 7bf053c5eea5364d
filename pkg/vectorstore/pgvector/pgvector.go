// Package pgvector provides a vector store backed by PostgreSQL with
// the pgvector extension. Similarity search runs server-side through
// the extension's distance operators.
package pgvector

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lingokit/lingokit/pkg/vectorstore"
)

func init() {
	vectorstore.Register("pgvector", func(config vectorstore.Config) (vectorstore.VectorStore, error) {
		return New(config)
	})
}

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PgVectorStore stores documents in a single table with a vector column
// and a JSONB metadata column.
type PgVectorStore struct {
	db            *gorm.DB
	table         string
	embeddingDims int
	defaultTopK   int
	defaultMetric string
	indexType     string
}

type documentRow struct {
	ID        string    `gorm:"column:id"`
	Content   string    `gorm:"column:content"`
	Embedding string    `gorm:"column:embedding"`
	Metadata  []byte    `gorm:"column:metadata"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
	Distance  float64   `gorm:"column:distance"`
}

// New creates a PgVectorStore, connects to PostgreSQL, and ensures the
// extension, table, and indexes exist.
func New(config vectorstore.Config) (vectorstore.VectorStore, error) {
	if config.PgVector == nil {
		return nil, fmt.Errorf("pgvector configuration is required")
	}
	if config.EmbeddingDimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be greater than 0, got %d", config.EmbeddingDimensions)
	}
	if !tableNamePattern.MatchString(config.PgVector.Table) {
		return nil, fmt.Errorf("invalid table name: %q", config.PgVector.Table)
	}

	db, err := gorm.Open(postgres.Open(config.PgVector.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(config.PgVector.MaxConnections)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	topK := config.DefaultTopK
	if topK <= 0 {
		topK = 10
	}

	store := &PgVectorStore{
		db:            db,
		table:         config.PgVector.Table,
		embeddingDims: config.EmbeddingDimensions,
		defaultTopK:   topK,
		defaultMetric: config.DefaultDistanceMetric,
		indexType:     config.PgVector.IndexType,
	}

	if err := store.ensureSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

// NewFromDB creates a PgVectorStore on an existing gorm connection.
// The schema must already exist. Useful for tests.
func NewFromDB(db *gorm.DB, table string, dims int) (*PgVectorStore, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name: %q", table)
	}
	return &PgVectorStore{
		db:            db,
		table:         table,
		embeddingDims: dims,
		defaultTopK:   10,
		indexType:     "hnsw",
	}, nil
}

func (p *PgVectorStore) ensureSchema() error {
	if err := p.db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		embedding vector(%d) NOT NULL,
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`, p.table, p.embeddingDims)
	if err := p.db.Exec(createTable).Error; err != nil {
		return fmt.Errorf("failed to create table %s: %w", p.table, err)
	}

	var indexSQL string
	switch p.indexType {
	case "ivfflat":
		indexSQL = fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)", p.table, p.table)
	default:
		indexSQL = fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)", p.table, p.table)
	}
	if err := p.db.Exec(indexSQL).Error; err != nil {
		return fmt.Errorf("failed to create embedding index: %w", err)
	}

	metadataIdx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_metadata_idx ON %s USING gin (metadata)", p.table, p.table)
	if err := p.db.Exec(metadataIdx).Error; err != nil {
		return fmt.Errorf("failed to create metadata index: %w", err)
	}

	return nil
}

// Upsert inserts or updates documents.
func (p *PgVectorStore) Upsert(ctx context.Context, documents []vectorstore.Document) error {
	if len(documents) == 0 {
		return nil
	}

	for i := range documents {
		if err := vectorstore.ValidateDocument(&documents[i]); err != nil {
			return fmt.Errorf("invalid document at index %d: %w", i, err)
		}
		if len(documents[i].Embedding) != p.embeddingDims {
			return fmt.Errorf("document %s embedding dimension mismatch: expected %d, got %d",
				documents[i].ID, p.embeddingDims, len(documents[i].Embedding))
		}
	}

	upsert := fmt.Sprintf(`INSERT INTO %s (id, content, embedding, metadata, created_at, updated_at)
		VALUES (?, ?, ?::vector, ?::jsonb, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at`, p.table)

	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		for _, doc := range documents {
			metadata, err := json.Marshal(doc.Metadata)
			if err != nil {
				return fmt.Errorf("failed to marshal metadata for document %s: %w", doc.ID, err)
			}

			createdAt := doc.CreatedAt
			if createdAt.IsZero() {
				createdAt = now
			}

			if err := tx.Exec(upsert, doc.ID, doc.Content, encodeVector(doc.Embedding), string(metadata), createdAt, now).Error; err != nil {
				return fmt.Errorf("failed to upsert document %s: %w", doc.ID, err)
			}
		}
		return nil
	})
}

// Search performs similarity search using pgvector distance operators.
func (p *PgVectorStore) Search(ctx context.Context, query vectorstore.SearchQuery) ([]vectorstore.SearchResult, error) {
	if query.TopK == 0 {
		query.TopK = p.defaultTopK
	}
	if query.DistanceMetric == "" {
		query.DistanceMetric = vectorstore.DistanceMetric(p.defaultMetric)
	}

	if err := vectorstore.ValidateSearchQuery(&query); err != nil {
		return nil, fmt.Errorf("invalid search query: %w", err)
	}
	if len(query.Embedding) != p.embeddingDims {
		return nil, fmt.Errorf("query embedding dimension mismatch: expected %d, got %d",
			p.embeddingDims, len(query.Embedding))
	}

	operator := distanceOperator(query.DistanceMetric)
	queryVec := encodeVector(query.Embedding)

	where, args, err := buildFilterClause(query.Filter)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`SELECT id, content, embedding::text AS embedding, metadata, created_at, updated_at,
		embedding %s ?::vector AS distance
		FROM %s%s
		ORDER BY distance ASC
		LIMIT ?`, operator, p.table, where)

	queryArgs := append([]any{queryVec}, args...)
	queryArgs = append(queryArgs, query.TopK)

	var rows []documentRow
	if err := p.db.WithContext(ctx).Raw(sql, queryArgs...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}

	results := make([]vectorstore.SearchResult, 0, len(rows))
	for _, row := range rows {
		doc, err := row.toDocument()
		if err != nil {
			return nil, err
		}

		distance := float32(row.Distance)
		score := scoreFromDistance(distance, query.DistanceMetric)
		if query.MinScore > 0 && score < query.MinScore {
			continue
		}

		results = append(results, vectorstore.SearchResult{
			Document: doc,
			Score:    score,
			Distance: distance,
		})
	}

	return results, nil
}

// Delete removes documents by their IDs.
func (p *PgVectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	sql := fmt.Sprintf("DELETE FROM %s WHERE id IN ?", p.table)
	if err := p.db.WithContext(ctx).Exec(sql, ids).Error; err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// Get retrieves documents by their IDs.
func (p *PgVectorStore) Get(ctx context.Context, ids []string) ([]vectorstore.Document, error) {
	if len(ids) == 0 {
		return []vectorstore.Document{}, nil
	}

	sql := fmt.Sprintf("SELECT id, content, embedding::text AS embedding, metadata, created_at, updated_at FROM %s WHERE id IN ?", p.table)

	var rows []documentRow
	if err := p.db.WithContext(ctx).Raw(sql, ids).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get documents: %w", err)
	}

	documents := make([]vectorstore.Document, 0, len(rows))
	for _, row := range rows {
		doc, err := row.toDocument()
		if err != nil {
			return nil, err
		}
		documents = append(documents, doc)
	}

	return documents, nil
}

// Count returns the number of stored documents.
func (p *PgVectorStore) Count(ctx context.Context) (int64, error) {
	var count int64
	sql := fmt.Sprintf("SELECT COUNT(*) FROM %s", p.table)
	if err := p.db.WithContext(ctx).Raw(sql).Scan(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

// Stats reports collection statistics.
func (p *PgVectorStore) Stats(ctx context.Context) (*vectorstore.CollectionStats, error) {
	count, err := p.Count(ctx)
	if err != nil {
		return nil, err
	}

	return &vectorstore.CollectionStats{
		Provider:            "pgvector",
		Documents:           count,
		EmbeddingDimensions: p.embeddingDims,
		Extra: map[string]any{
			"table":      p.table,
			"index_type": p.indexType,
		},
	}, nil
}

// Close closes the underlying connection pool.
func (p *PgVectorStore) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (row *documentRow) toDocument() (vectorstore.Document, error) {
	embedding, err := decodeVector(row.Embedding)
	if err != nil {
		return vectorstore.Document{}, fmt.Errorf("failed to decode embedding for document %s: %w", row.ID, err)
	}

	var metadata map[string]any
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			return vectorstore.Document{}, fmt.Errorf("failed to decode metadata for document %s: %w", row.ID, err)
		}
	}

	return vectorstore.Document{
		ID:        row.ID,
		Content:   row.Content,
		Embedding: embedding,
		Metadata:  metadata,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

// distanceOperator maps a metric to the pgvector operator.
// <=> is cosine distance, <-> is L2 distance, <#> is negative inner product.
func distanceOperator(metric vectorstore.DistanceMetric) string {
	switch metric {
	case vectorstore.DistanceMetricEuclidean:
		return "<->"
	case vectorstore.DistanceMetricDotProduct:
		return "<#>"
	default:
		return "<=>"
	}
}

func scoreFromDistance(distance float32, metric vectorstore.DistanceMetric) float32 {
	switch metric {
	case vectorstore.DistanceMetricEuclidean:
		return 1.0 / (1.0 + distance)
	case vectorstore.DistanceMetricDotProduct:
		// <#> returns the negated inner product.
		return -distance
	default:
		return 1.0 - distance
	}
}

// buildFilterClause turns a MetadataFilter into a WHERE clause using
// JSONB containment so the GIN index applies.
func buildFilterClause(filter *vectorstore.MetadataFilter) (string, []any, error) {
	if filter == nil {
		return "", nil, nil
	}

	var conditions []string
	var args []any

	containment := func(key string, value any) (string, error) {
		if err := vectorstore.ValidateMetadataKey(key); err != nil {
			return "", fmt.Errorf("invalid filter key %q: %w", key, err)
		}
		pair, err := json.Marshal(map[string]any{key: value})
		if err != nil {
			return "", fmt.Errorf("failed to encode filter value for key %q: %w", key, err)
		}
		args = append(args, string(pair))
		return "metadata @> ?::jsonb", nil
	}

	for key, value := range filter.Must {
		cond, err := containment(key, value)
		if err != nil {
			return "", nil, err
		}
		conditions = append(conditions, cond)
	}

	if len(filter.Should) > 0 {
		var should []string
		for key, value := range filter.Should {
			cond, err := containment(key, value)
			if err != nil {
				return "", nil, err
			}
			should = append(should, cond)
		}
		conditions = append(conditions, "("+strings.Join(should, " OR ")+")")
	}

	for key, value := range filter.MustNot {
		cond, err := containment(key, value)
		if err != nil {
			return "", nil, err
		}
		conditions = append(conditions, "NOT "+cond)
	}

	if len(conditions) == 0 {
		return "", nil, nil
	}

	return " WHERE " + strings.Join(conditions, " AND "), args, nil
}

// encodeVector renders a vector as a pgvector literal: [0.1,0.2,...]
func encodeVector(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// decodeVector parses a pgvector literal back into a slice.
func decodeVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return []float32{}, nil
	}

	parts := strings.Split(s, ",")
	out := make([]float32, len(parts))
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", part, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}
