// Package archive is the durable side of the session lifecycle: ended
// sessions move from the session store into Postgres as a conversation
// record plus a summary, with optional user feedback alongside. Analytics
// reads back summaries and experiences per user.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable wraps transport-level failures of the backing database.
var ErrUnavailable = errors.New("archive store unavailable")

// ValidationError marks user-supplied data that failed validation, so
// callers can distinguish bad input from store failures.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// ConversationRecord is the full transcript of an ended session.
type ConversationRecord struct {
	ID                     uint      `json:"id" gorm:"primaryKey"`
	SessionID              string    `json:"session_id" gorm:"index;not null"`
	UserID                 string    `json:"user_id" gorm:"index;not null"`
	ConversationData       []byte    `json:"conversation_data" gorm:"type:jsonb"`
	MessageCount           int       `json:"message_count"`
	Subject                string    `json:"subject"`
	FinalDifficultyLevel   string    `json:"final_difficulty_level"`
	FinalProficiencyScore  int       `json:"final_proficiency_score"`
	CreatedAt              time.Time `json:"created_at"`
	EndedAt                time.Time `json:"ended_at"`
	SessionDurationMinutes float64   `json:"session_duration_minutes"`
}

func (ConversationRecord) TableName() string {
	return "conversation_history"
}

// SessionSummary is the per-session rollup used for user history and
// analytics.
type SessionSummary struct {
	ID                      uint      `json:"id" gorm:"primaryKey"`
	SessionID               string    `json:"session_id" gorm:"index;not null"`
	UserID                  string    `json:"user_id" gorm:"index;not null"`
	Subject                 string    `json:"subject"`
	InitialProficiencyScore int       `json:"initial_proficiency_score"`
	FinalProficiencyScore   int       `json:"final_proficiency_score"`
	ProficiencyImprovement  int       `json:"proficiency_improvement"`
	InitialDifficultyLevel  string    `json:"initial_difficulty_level"`
	FinalDifficultyLevel    string    `json:"final_difficulty_level"`
	TotalInteractions       int       `json:"total_interactions"`
	SessionDurationMinutes  float64   `json:"session_duration_minutes"`
	CreatedAt               time.Time `json:"created_at"`
	EndedAt                 time.Time `json:"ended_at"`
	SessionStatus           string    `json:"session_status"`
}

func (SessionSummary) TableName() string {
	return "session_summaries"
}

// UserExperience is feedback about a session. Pointer fields are optional
// and stored as NULL when absent.
type UserExperience struct {
	ID                     uint      `json:"id" gorm:"primaryKey"`
	SessionID              string    `json:"session_id" gorm:"index;not null"`
	UserID                 string    `json:"user_id" gorm:"index;not null"`
	Rating                 *int      `json:"rating,omitempty"`
	FeedbackText           string    `json:"feedback_text,omitempty"`
	UsefulnessRating       *int      `json:"usefulness_rating,omitempty"`
	DifficultyAppropriate  *bool     `json:"difficulty_appropriate,omitempty"`
	WouldRecommend         *bool     `json:"would_recommend,omitempty"`
	ImprovementSuggestions string    `json:"improvement_suggestions,omitempty"`
	FavoriteFeatures       []string  `json:"favorite_features,omitempty" gorm:"serializer:json;type:jsonb"`
	CreatedAt              time.Time `json:"created_at"`
}

func (UserExperience) TableName() string {
	return "user_experiences"
}

// RatingBounds is the inclusive validity range for experience ratings.
type RatingBounds struct {
	Min int
	Max int
}

// DefaultRatingBounds returns the 1-5 scale used unless configured
// otherwise.
func DefaultRatingBounds() RatingBounds {
	return RatingBounds{Min: 1, Max: 5}
}

// Validate checks identity fields and rating ranges. Optional ratings are
// only range-checked when present. Failures are ValidationErrors.
func (e *UserExperience) Validate(bounds RatingBounds) error {
	if e.SessionID == "" {
		return NewValidationError("session_id is required")
	}
	if e.UserID == "" {
		return NewValidationError("user_id is required")
	}
	if e.Rating != nil && (*e.Rating < bounds.Min || *e.Rating > bounds.Max) {
		return NewValidationError("rating must be between %d and %d", bounds.Min, bounds.Max)
	}
	if e.UsefulnessRating != nil && (*e.UsefulnessRating < bounds.Min || *e.UsefulnessRating > bounds.Max) {
		return NewValidationError("usefulness_rating must be between %d and %d", bounds.Min, bounds.Max)
	}
	return nil
}

// Store persists archived sessions and feedback.
type Store interface {
	// SaveConversation writes the transcript of an ended session.
	SaveConversation(ctx context.Context, rec *ConversationRecord) error

	// SaveSummary writes the session rollup.
	SaveSummary(ctx context.Context, summary *SessionSummary) error

	// SaveExperience writes user feedback. Callers validate first.
	SaveExperience(ctx context.Context, exp *UserExperience) error

	// UserSummaries returns a user's summaries, most recent first.
	// A non-positive limit defaults to 10.
	UserSummaries(ctx context.Context, userID string, limit int) ([]SessionSummary, error)

	// UserExperiences returns a user's feedback records, most recent
	// first. A non-positive limit defaults to 10.
	UserExperiences(ctx context.Context, userID string, limit int) ([]UserExperience, error)

	// Ping verifies the backing database is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}

const defaultListLimit = 10
