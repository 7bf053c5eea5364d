package session

import "time"

// Difficulty levels a session can be tuned to.
const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

// Turn speaker types.
const (
	TurnStudent = "student"
	TurnTeacher = "teacher"
)

// Session status values. Only active sessions live in the store; ended
// sessions are archived and deleted.
const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

// Proficiency score bounds and the starting score for new sessions.
const (
	MinProficiency     = 0
	MaxProficiency     = 100
	DefaultProficiency = 50
)

// DefaultSubject is the subject assigned to new sessions.
const DefaultSubject = "english"

// KnownSubjects are the subjects sessions and teaching documents can be
// tagged with.
var KnownSubjects = []string{"english", "math", "science", "history", "general"}

// ValidSubject reports whether subject is a known subject.
func ValidSubject(subject string) bool {
	for _, s := range KnownSubjects {
		if s == subject {
			return true
		}
	}
	return false
}

// Turn is one immutable conversation entry. Student turns carry the
// proficiency level and score at send time; teacher turns carry the
// strategy used and how many retrieved documents informed the reply.
type Turn struct {
	Type              string    `json:"type"`
	Message           string    `json:"message"`
	Timestamp         time.Time `json:"timestamp"`
	ProficiencyLevel  string    `json:"proficiency_level,omitempty"`
	ProficiencyScore  int       `json:"proficiency_score,omitempty"`
	TeachingStrategy  string    `json:"teaching_strategy,omitempty"`
	SearchResultsUsed int       `json:"search_results_used,omitempty"`
}

// Session holds the full state of one active tutoring session.
type Session struct {
	ID                 string         `json:"session_id"`
	UserID             string         `json:"user_id"`
	UserData           map[string]any `json:"user_data,omitempty"`
	History            []Turn         `json:"conversation_history"`
	DifficultyLevel    string         `json:"difficulty_level"`
	ProficiencyScore   int            `json:"proficiency_score"`
	InitialProficiency int            `json:"initial_proficiency"`
	Subject            string         `json:"subject"`
	InteractionCount   int            `json:"interaction_count"`
	Status             string         `json:"session_status"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate freely.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.UserData != nil {
		c.UserData = make(map[string]any, len(s.UserData))
		for k, v := range s.UserData {
			c.UserData[k] = v
		}
	}
	if s.History != nil {
		c.History = make([]Turn, len(s.History))
		copy(c.History, s.History)
	}
	return &c
}

// DifficultyForScore maps a proficiency score to a difficulty level.
func DifficultyForScore(score int) string {
	switch {
	case score >= 75:
		return DifficultyAdvanced
	case score >= 40:
		return DifficultyIntermediate
	default:
		return DifficultyBeginner
	}
}

// ClampScore bounds a proficiency score to [MinProficiency, MaxProficiency].
func ClampScore(score int) int {
	if score < MinProficiency {
		return MinProficiency
	}
	if score > MaxProficiency {
		return MaxProficiency
	}
	return score
}

// ValidDifficulty reports whether level is a known difficulty level.
func ValidDifficulty(level string) bool {
	switch level {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}
