package tutor

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lingokit/lingokit/internal/llm/provider"
	"github.com/lingokit/lingokit/internal/observability"
	metrics "github.com/lingokit/lingokit/pkg/observability"
	"github.com/lingokit/lingokit/pkg/session"
	"github.com/lingokit/lingokit/pkg/vectorstore"
)

// Prompt assembly clip sizes, in runes.
const (
	contextResults   = 3
	contextClipLen   = 200
	historyTurns     = 6
	historyClipLen   = 100
	defaultTemp      = 0.7
	defaultMaxTokens = 1000
)

// Retriever finds teaching documents similar to the query, restricted
// to a subject and difficulty level.
type Retriever interface {
	SearchByDifficulty(ctx context.Context, query, subject, difficultyLevel string) ([]vectorstore.SearchResult, error)
}

// ChatResult is the reply payload for one handled student message.
type ChatResult struct {
	Response         string `json:"response"`
	DifficultyLevel  string `json:"difficulty_level"`
	ProficiencyScore int    `json:"proficiency_score"`
	TeachingStrategy string `json:"teaching_strategy"`
	SessionID        string `json:"session_id"`
	InteractionCount int    `json:"interaction_count"`
}

// Orchestrator turns a student message into an adaptive teacher reply:
// analyze proficiency, retrieve supporting content, select a strategy,
// generate, and record both turns.
type Orchestrator struct {
	manager   *Manager
	retriever Retriever
	generator provider.Provider

	analyzer    ProficiencyAnalyzer
	prompts     *PromptSet
	temperature float64
	maxTokens   int
}

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithAnalyzer swaps the proficiency analyzer.
func WithAnalyzer(a ProficiencyAnalyzer) OrchestratorOption {
	return func(o *Orchestrator) { o.analyzer = a }
}

// WithPrompts swaps the prompt set.
func WithPrompts(p *PromptSet) OrchestratorOption {
	return func(o *Orchestrator) { o.prompts = p }
}

// WithGenerationParams sets the sampling temperature and token cap.
func WithGenerationParams(temperature float64, maxTokens int) OrchestratorOption {
	return func(o *Orchestrator) {
		o.temperature = temperature
		o.maxTokens = maxTokens
	}
}

// NewOrchestrator wires the chat path. The generator is typically a
// provider.Chain so fallback happens below this layer.
func NewOrchestrator(m *Manager, retriever Retriever, generator provider.Provider, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		manager:     m,
		retriever:   retriever,
		generator:   generator,
		analyzer:    HeuristicAnalyzer{},
		prompts:     DefaultPrompts(),
		temperature: defaultTemp,
		maxTokens:   defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HandleMessage runs the full chat pipeline for one student message.
// Returns ErrSessionNotFound for unknown sessions and a wrapped
// ErrGenerationUnavailable when every provider fails; in the latter
// case the proficiency update has already been applied but no turns
// are appended.
func (o *Orchestrator) HandleMessage(ctx context.Context, sessionID, message string) (*ChatResult, error) {
	ctx, span := observability.StartSpanWithOtel(ctx, "tutor.chat")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	start := time.Now()

	s, err := o.manager.GetSession(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	actx, aspan := observability.StartSpanWithOtel(ctx, "tutor.chat.analyze")
	delta, ind := o.analyzer.Analyze(message, s.DifficultyLevel)
	aspan.SetAttributes(
		attribute.Int("proficiency.delta", delta),
		attribute.Float64("proficiency.vocabulary_diversity", ind.VocabularyDiversity),
		attribute.Float64("proficiency.sentence_length", ind.SentenceLength),
	)
	if delta != 0 {
		if s, err = o.manager.UpdateProficiency(actx, sessionID, delta); err != nil {
			aspan.RecordError(err)
			aspan.End()
			return nil, err
		}
	}
	aspan.End()

	rctx, rspan := observability.StartSpanWithOtel(ctx, "tutor.chat.retrieve")
	retrieveStart := time.Now()
	results, err := o.retriever.SearchByDifficulty(rctx, message, s.Subject, s.DifficultyLevel)
	if err != nil {
		// The knowledge base enriches replies but is not required for
		// one; degrade to an uninformed prompt.
		rspan.RecordError(err)
		log.WithError(err).WithField("session_id", sessionID).Warn("retrieval failed, continuing without context")
		results = nil
	}
	metrics.RecordRetrieval(time.Since(retrieveStart))
	rspan.SetAttributes(attribute.Int("retrieval.results", len(results)))
	rspan.End()

	strategy := SelectStrategy(message, s.InteractionCount)
	span.SetAttributes(
		attribute.String("chat.strategy", strategy),
		attribute.String("chat.difficulty", s.DifficultyLevel),
	)

	gctx, gspan := observability.StartSpanWithOtel(ctx, "tutor.chat.generate")
	resp, err := o.generator.CreateCompletion(gctx, provider.CompletionRequest{
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: o.prompts.SystemPrompt(strategy, s.DifficultyLevel)},
			{Role: provider.RoleUser, Content: buildUserPrompt(message, s, results)},
		},
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
	})
	if err != nil {
		gspan.RecordError(err)
		gspan.End()
		span.RecordError(err)
		return nil, err
	}
	gspan.SetAttributes(attribute.String("llm.model", resp.Model))
	gspan.End()
	metrics.RecordTokenUsage(resp.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	pctx, pspan := observability.StartSpanWithOtel(ctx, "tutor.chat.persist")
	now := time.Now().UTC()
	if _, err := o.manager.AppendTurn(pctx, sessionID, session.Turn{
		Type:             session.TurnStudent,
		Message:          message,
		Timestamp:        now,
		ProficiencyLevel: s.DifficultyLevel,
		ProficiencyScore: s.ProficiencyScore,
	}); err != nil {
		pspan.RecordError(err)
		pspan.End()
		return nil, err
	}
	updated, err := o.manager.AppendTurn(pctx, sessionID, session.Turn{
		Type:              session.TurnTeacher,
		Message:           resp.Content,
		Timestamp:         now,
		TeachingStrategy:  strategy,
		SearchResultsUsed: len(results),
	})
	if err != nil {
		pspan.RecordError(err)
		pspan.End()
		return nil, err
	}
	pspan.End()

	metrics.RecordChatMessage(strategy, updated.DifficultyLevel, time.Since(start))

	return &ChatResult{
		Response:         resp.Content,
		DifficultyLevel:  updated.DifficultyLevel,
		ProficiencyScore: updated.ProficiencyScore,
		TeachingStrategy: strategy,
		SessionID:        sessionID,
		InteractionCount: updated.InteractionCount,
	}, nil
}

// buildUserPrompt assembles the user message sent to the model:
// knowledge-base clips, recent conversation, level counters, and the
// student's message.
func buildUserPrompt(message string, s *session.Session, results []vectorstore.SearchResult) string {
	var b strings.Builder
	b.WriteString("Context from knowledge base: ")
	b.WriteString(knowledgeContext(results))
	b.WriteString("\n\nRecent conversation: ")
	b.WriteString(conversationContext(s.History))
	fmt.Fprintf(&b, "\n\nStudent's current level: %s\n", s.DifficultyLevel)
	fmt.Fprintf(&b, "Student's proficiency score: %d/100\n", s.ProficiencyScore)
	fmt.Fprintf(&b, "Total interactions in session: %d\n", s.InteractionCount)
	fmt.Fprintf(&b, "Student's message: %s\n\n", message)
	b.WriteString("Provide an appropriate response that matches their proficiency level and learning needs.")
	return b.String()
}

func knowledgeContext(results []vectorstore.SearchResult) string {
	if len(results) == 0 {
		return "No specific context found."
	}

	n := len(results)
	if n > contextResults {
		n = contextResults
	}
	parts := make([]string, 0, n)
	for _, r := range results[:n] {
		parts = append(parts, "- "+clip(r.Document.Content, contextClipLen)+"...")
	}
	return strings.Join(parts, "\n")
}

func conversationContext(history []session.Turn) string {
	if len(history) == 0 {
		return "This is the beginning of the conversation."
	}

	recent := history
	if len(recent) > historyTurns {
		recent = recent[len(recent)-historyTurns:]
	}
	parts := make([]string, 0, len(recent))
	for _, t := range recent {
		role := "Teacher"
		if t.Type == session.TurnStudent {
			role = "Student"
		}
		parts = append(parts, role+": "+clip(t.Message, historyClipLen)+"...")
	}
	return strings.Join(parts, "\n")
}

// clip truncates to n runes.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
