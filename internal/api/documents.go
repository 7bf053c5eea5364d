package api

import (
	"net/http"

	"github.com/lingokit/lingokit/internal/ingest"
	"github.com/lingokit/lingokit/pkg/vectorstore"
)

type ingestResponse struct {
	Message string `json:"message"`
	ingest.Result
}

func (s *Server) ingestDocument(w http.ResponseWriter, r *http.Request) {
	var req ingest.Request
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := s.pipeline.Ingest(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, ingestResponse{
		Message: "Document ingested successfully",
		Result:  *res,
	})
}

type searchRequest struct {
	Query           string `json:"query"`
	Subject         string `json:"subject"`
	DifficultyLevel string `json:"difficulty_level"`
	Limit           int    `json:"limit"`
}

// searchHit is a search result without the stored embedding.
type searchHit struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float32        `json:"score"`
}

func (s *Server) searchDocuments(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	filters := map[string]string{
		vectorstore.MetaSubject:    req.Subject,
		vectorstore.MetaDifficulty: req.DifficultyLevel,
	}
	results, err := s.searcher.Search(r.Context(), req.Query, filters, req.Limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	hits := make([]searchHit, 0, len(results))
	for _, res := range results {
		hits = append(hits, searchHit{
			ID:       res.Document.ID,
			Content:  res.Document.Content,
			Metadata: res.Document.Metadata,
			Score:    res.Score,
		})
	}

	JSON(w, http.StatusOK, map[string]any{
		"query":         req.Query,
		"results_count": len(hits),
		"results":       hits,
	})
}

func (s *Server) documentStats(w http.ResponseWriter, r *http.Request) {
	stats, ok, err := s.searcher.Stats(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if !ok {
		Error(w, http.StatusNotImplemented, "stats_unsupported", "document store does not report statistics")
		return
	}

	JSON(w, http.StatusOK, stats)
}
