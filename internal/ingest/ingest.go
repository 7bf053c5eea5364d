// Package ingest turns raw teaching material into embedded, searchable
// documents: section extraction from markdown or plain text, difficulty
// detection, chunking, batch embedding, and vector-store upserts. The
// Searcher half serves retrieval for both the chat path and the
// document search API.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lingokit/lingokit/internal/observability"
	"github.com/lingokit/lingokit/pkg/embeddings"
	metrics "github.com/lingokit/lingokit/pkg/observability"
	"github.com/lingokit/lingokit/pkg/session"
	"github.com/lingokit/lingokit/pkg/vectorstore"
)

const (
	// MaxContentBytes caps one ingested document at 10 MiB.
	MaxContentBytes = 10 << 20

	// DifficultyAuto asks the pipeline to detect the level from the text.
	DifficultyAuto = "auto"

	// DefaultContentType tags documents whose type the caller omitted.
	DefaultContentType = "lesson"

	fallbackSubject = "general"
	minSectionWords = 10
	embedBatchSize  = 100

	defaultChunkSize    = 500
	defaultChunkOverlap = 50
)

// ErrInvalidRequest wraps every rejection of caller input so transports
// can map the whole family to a 400.
var ErrInvalidRequest = errors.New("invalid ingest request")

// Request is one document to ingest.
type Request struct {
	Title           string `json:"title"`
	Content         string `json:"content"`
	Subject         string `json:"subject"`
	DifficultyLevel string `json:"difficulty_level"`
	ContentType     string `json:"content_type"`
}

// Result reports what the pipeline stored.
type Result struct {
	DocumentID      string `json:"document_id"`
	ChunksStored    int    `json:"chunks_stored"`
	Subject         string `json:"subject"`
	DifficultyLevel string `json:"difficulty_level"`
}

// Pipeline embeds and stores teaching documents.
type Pipeline struct {
	store        vectorstore.VectorStore
	embedder     embeddings.EmbeddingService
	chunkSize    int
	chunkOverlap int
}

// NewPipeline wires the ingestion pipeline. Non-positive chunk sizes
// and out-of-range overlaps fall back to the 500/50 defaults.
func NewPipeline(store vectorstore.VectorStore, embedder embeddings.EmbeddingService, chunkSize, chunkOverlap int) *Pipeline {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = defaultChunkOverlap
		if chunkOverlap >= chunkSize {
			chunkOverlap = chunkSize / 10
		}
	}
	return &Pipeline{
		store:        store,
		embedder:     embedder,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Ingest validates, sections, chunks, embeds, and stores one document.
// Unknown subjects fall back to "general"; difficulty "auto" (or empty)
// is detected from the text. Sections under 10 words are dropped, but
// still count toward difficulty detection.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*Result, error) {
	ctx, span := observability.StartSpanWithOtel(ctx, "ingest.document")
	defer span.End()

	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidRequest)
	}
	if len(req.Content) > MaxContentBytes {
		return nil, fmt.Errorf("%w: content exceeds %d bytes", ErrInvalidRequest, MaxContentBytes)
	}

	subject := req.Subject
	if !session.ValidSubject(subject) {
		subject = fallbackSubject
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}

	difficulty := req.DifficultyLevel
	switch difficulty {
	case "", DifficultyAuto:
		difficulty = DifficultyAuto
	case session.DifficultyBeginner, session.DifficultyIntermediate, session.DifficultyAdvanced:
	default:
		return nil, fmt.Errorf("%w: unknown difficulty_level %q", ErrInvalidRequest, req.DifficultyLevel)
	}

	sections := ExtractSections([]byte(req.Content))

	var kept []Section
	var full strings.Builder
	for _, sec := range sections {
		if full.Len() > 0 {
			full.WriteByte(' ')
		}
		full.WriteString(sec.Body)
		if sec.WordCount() < minSectionWords {
			continue
		}
		kept = append(kept, sec)
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: no section has at least %d words", ErrInvalidRequest, minSectionWords)
	}

	if difficulty == DifficultyAuto {
		difficulty = DetectDifficulty(full.String())
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		for _, sec := range kept {
			if sec.Title != "" {
				title = sec.Title
				break
			}
		}
	}
	if title == "" {
		title = "untitled"
	}

	var texts []string
	for _, sec := range kept {
		texts = append(texts, ChunkText(sec.Body, p.chunkSize, p.chunkOverlap)...)
	}

	vectors, err := p.embedChunks(ctx, texts)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("embed chunks: %w", err)
	}

	docID := uuid.NewString()
	now := time.Now().UTC()
	docs := make([]vectorstore.Document, len(texts))
	for i, chunk := range texts {
		docs[i] = vectorstore.Document{
			ID:        fmt.Sprintf("%s-%d", docID, i),
			Content:   chunk,
			Embedding: vectors[i],
			Metadata: map[string]any{
				vectorstore.MetaSubject:     subject,
				vectorstore.MetaDifficulty:  difficulty,
				vectorstore.MetaContentType: contentType,
				vectorstore.MetaTitle:       title,
				vectorstore.MetaChunkIndex:  i,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	if err := p.store.Upsert(ctx, docs); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("store documents: %w", err)
	}

	metrics.RecordDocumentsIngested(difficulty, len(docs))
	span.SetAttributes(
		attribute.String("ingest.subject", subject),
		attribute.String("ingest.difficulty", difficulty),
		attribute.Int("ingest.chunks", len(docs)),
	)
	log.WithFields(log.Fields{
		"document_id": docID,
		"title":       title,
		"subject":     subject,
		"difficulty":  difficulty,
		"chunks":      len(docs),
	}).Info("document ingested")

	return &Result{
		DocumentID:      docID,
		ChunksStored:    len(docs),
		Subject:         subject,
		DifficultyLevel: difficulty,
	}, nil
}

func (p *Pipeline) embedChunks(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := p.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}
