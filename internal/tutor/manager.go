package tutor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/lingokit/lingokit/internal/archive"
	"github.com/lingokit/lingokit/pkg/session"
)

// UserSessions limit bounds.
const (
	DefaultSessionLimit = 10
	MaxSessionLimit     = 50
)

// Steps of the end-session migration, reported by EndSessionError.
const (
	StepArchive    = "archive"
	StepExperience = "experience"
	StepSummary    = "summary"
)

// EndSessionError reports which archival step failed. The session stays
// active, so no turn data is lost and the caller can retry.
type EndSessionError struct {
	Step string
	Err  error
}

func (e *EndSessionError) Error() string {
	return fmt.Sprintf("end session failed at %s step: %v", e.Step, e.Err)
}

func (e *EndSessionError) Unwrap() error {
	return e.Err
}

// Manager owns the session lifecycle: creation, turn appends,
// proficiency movement, and the active-to-archived migration. All
// read-modify-write paths serialize per session through keyed mutexes.
// The guarantee is single-process only; multi-replica deployments need
// store-native locking (documented gap).
type Manager struct {
	store   session.Store
	archive archive.Store
	ratings archive.RatingBounds

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

// NewManager wires a Manager over the active and archive stores. Zero
// rating bounds fall back to the 1-5 default.
func NewManager(store session.Store, arch archive.Store, ratings archive.RatingBounds) *Manager {
	if ratings == (archive.RatingBounds{}) {
		ratings = archive.DefaultRatingBounds()
	}
	return &Manager{
		store:   store,
		archive: arch,
		ratings: ratings,
		locks:   make(map[string]*sync.Mutex),
		now:     time.Now,
	}
}

func (m *Manager) lockFor(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// releaseLock drops a session's mutex entry. Safe because session ids
// are never reused: once ended, no writer can race a fresh mutex on
// live data.
func (m *Manager) releaseLock(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, id)
}

// CreateSession initializes a session with defaults and persists it.
// The caller-supplied user_data travels with the session; a missing
// user_id gets an anonymous one.
func (m *Manager) CreateSession(ctx context.Context, userData map[string]any) (*session.Session, error) {
	userID, _ := userData["user_id"].(string)
	if userID == "" {
		userID = "anonymous_" + uuid.NewString()
	}

	now := m.now().UTC()
	s := &session.Session{
		ID:                 uuid.NewString(),
		UserID:             userID,
		UserData:           userData,
		History:            []session.Turn{},
		DifficultyLevel:    session.DifficultyIntermediate,
		ProficiencyScore:   session.DefaultProficiency,
		InitialProficiency: session.DefaultProficiency,
		Subject:            session.DefaultSubject,
		Status:             session.StatusActive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := m.store.Save(ctx, s); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"session_id": s.ID,
		"user_id":    s.UserID,
	}).Info("session created")
	return s, nil
}

// GetSession returns the active session, or ErrSessionNotFound.
func (m *Manager) GetSession(ctx context.Context, id string) (*session.Session, error) {
	return m.store.Get(ctx, id)
}

// History returns the session's conversation turns in order.
func (m *Manager) History(ctx context.Context, id string) ([]session.Turn, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.History, nil
}

// AppendTurn appends one turn, bumps the interaction count, and
// persists. Returns the updated session.
func (m *Manager) AppendTurn(ctx context.Context, id string, turn session.Turn) (*session.Session, error) {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if turn.Timestamp.IsZero() {
		turn.Timestamp = m.now().UTC()
	}
	s.History = append(s.History, turn)
	s.InteractionCount++
	s.UpdatedAt = m.now().UTC()

	if err := m.store.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// UpdateProficiency moves the score by delta, clamps it to [0,100],
// rederives the difficulty tier, and persists.
func (m *Manager) UpdateProficiency(ctx context.Context, id string, delta int) (*session.Session, error) {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.ProficiencyScore = session.ClampScore(s.ProficiencyScore + delta)
	s.DifficultyLevel = session.DifficultyForScore(s.ProficiencyScore)
	s.UpdatedAt = m.now().UTC()

	if err := m.store.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// UpdateSubject switches the session's subject.
func (m *Manager) UpdateSubject(ctx context.Context, id, subject string) (*session.Session, error) {
	if !session.ValidSubject(subject) {
		return nil, archive.NewValidationError("unknown subject %q (known: %v)", subject, session.KnownSubjects)
	}

	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.Subject = subject
	s.UpdatedAt = m.now().UTC()

	if err := m.store.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// EndSession migrates an active session into the archive. Ordered
// steps: (a) archive the conversation, (b) write feedback if supplied,
// (c) write the summary, (d) delete from the active store. (a)-(c)
// must all succeed before (d) so turn data cannot be lost; a failure
// in (a)-(c) leaves the session active and returns *EndSessionError.
func (m *Manager) EndSession(ctx context.Context, id string, experience *archive.UserExperience) (*archive.SessionSummary, error) {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	endedAt := m.now().UTC()
	duration := durationMinutes(s.CreatedAt, endedAt)

	// Validate feedback before any write so bad input cannot
	// half-archive a session.
	if experience != nil {
		experience.SessionID = s.ID
		experience.UserID = s.UserID
		if err := experience.Validate(m.ratings); err != nil {
			return nil, err
		}
	}

	data, err := json.Marshal(s.History)
	if err != nil {
		return nil, &EndSessionError{Step: StepArchive, Err: err}
	}
	rec := &archive.ConversationRecord{
		SessionID:              s.ID,
		UserID:                 s.UserID,
		ConversationData:       data,
		MessageCount:           len(s.History),
		Subject:                s.Subject,
		FinalDifficultyLevel:   s.DifficultyLevel,
		FinalProficiencyScore:  s.ProficiencyScore,
		CreatedAt:              s.CreatedAt,
		EndedAt:                endedAt,
		SessionDurationMinutes: duration,
	}
	if err := m.archive.SaveConversation(ctx, rec); err != nil {
		return nil, &EndSessionError{Step: StepArchive, Err: err}
	}

	if experience != nil {
		if experience.CreatedAt.IsZero() {
			experience.CreatedAt = endedAt
		}
		if err := m.archive.SaveExperience(ctx, experience); err != nil {
			return nil, &EndSessionError{Step: StepExperience, Err: err}
		}
	}

	summary := &archive.SessionSummary{
		SessionID:               s.ID,
		UserID:                  s.UserID,
		Subject:                 s.Subject,
		InitialProficiencyScore: s.InitialProficiency,
		FinalProficiencyScore:   s.ProficiencyScore,
		ProficiencyImprovement:  s.ProficiencyScore - s.InitialProficiency,
		InitialDifficultyLevel:  session.DifficultyForScore(s.InitialProficiency),
		FinalDifficultyLevel:    s.DifficultyLevel,
		TotalInteractions:       s.InteractionCount,
		SessionDurationMinutes:  duration,
		CreatedAt:               s.CreatedAt,
		EndedAt:                 endedAt,
		SessionStatus:           session.StatusEnded,
	}
	if err := m.archive.SaveSummary(ctx, summary); err != nil {
		return nil, &EndSessionError{Step: StepSummary, Err: err}
	}

	// The archive records exist now; a delete failure means the session
	// is briefly in both stores, and a retry re-archives. Surface it.
	if err := m.store.Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("remove archived session from active store: %w", err)
	}
	m.releaseLock(id)

	log.WithFields(log.Fields{
		"session_id":   s.ID,
		"user_id":      s.UserID,
		"interactions": s.InteractionCount,
		"duration_min": duration,
	}).Info("session archived")
	return summary, nil
}

// UserSessions returns the user's archived session summaries, most
// recent first. Limit defaults to 10 and caps at 50.
func (m *Manager) UserSessions(ctx context.Context, userID string, limit int) ([]archive.SessionSummary, error) {
	if limit <= 0 {
		limit = DefaultSessionLimit
	}
	if limit > MaxSessionLimit {
		limit = MaxSessionLimit
	}
	return m.archive.UserSummaries(ctx, userID, limit)
}

// SubmitExperience validates and stores standalone feedback. Unlike the
// end-session path the rating is required here; the session itself need
// not be active, so feedback can arrive after archival.
func (m *Manager) SubmitExperience(ctx context.Context, exp *archive.UserExperience) error {
	if exp.Rating == nil {
		return archive.NewValidationError("rating is required")
	}
	if err := exp.Validate(m.ratings); err != nil {
		return err
	}
	if exp.CreatedAt.IsZero() {
		exp.CreatedAt = m.now().UTC()
	}
	return m.archive.SaveExperience(ctx, exp)
}

// durationMinutes returns the span in minutes rounded to two decimals.
func durationMinutes(from, to time.Time) float64 {
	minutes := to.Sub(from).Minutes()
	return math.Round(minutes*100) / 100
}
