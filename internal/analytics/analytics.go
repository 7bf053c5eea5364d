// Package analytics aggregates archived sessions and feedback into
// per-user learning reports.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/lingokit/lingokit/internal/archive"
	"github.com/lingokit/lingokit/internal/observability"
)

const (
	// historyWindow caps how many archived records feed one report.
	historyWindow = 50

	recentSessions = 5
	trendLength    = 10
)

// SubjectCount ranks one subject by how many sessions studied it.
// It serializes as a ["subject", count] pair.
type SubjectCount struct {
	Subject string
	Count   int
}

// MarshalJSON renders the pair as a two-element array.
func (sc SubjectCount) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{sc.Subject, sc.Count})
}

// UnmarshalJSON accepts the two-element array form.
func (sc *SubjectCount) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if err := json.Unmarshal(pair[0], &sc.Subject); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &sc.Count)
}

// Report is the aggregate view of one user's learning history. Slices
// are never nil, so an empty history still serializes with all keys.
type Report struct {
	TotalSessions                 int                      `json:"total_sessions"`
	TotalInteractions             int                      `json:"total_interactions"`
	AverageProficiencyImprovement float64                  `json:"average_proficiency_improvement"`
	AverageRating                 float64                  `json:"average_rating"`
	FavoriteSubjects              []SubjectCount           `json:"favorite_subjects"`
	RecentSessions                []archive.SessionSummary `json:"recent_sessions"`
	LearningTrend                 []int                    `json:"learning_trend"`
}

// Service computes read-only aggregates from the archive.
type Service struct {
	store archive.Store
}

// NewService wires an analytics service over the archive store.
func NewService(store archive.Store) *Service {
	return &Service{store: store}
}

// UserReport builds the analytics rollup for one user from their 50
// most recent summaries and feedback records, loaded concurrently.
func (s *Service) UserReport(ctx context.Context, userID string) (*Report, error) {
	ctx, span := observability.StartSpanWithOtel(ctx, "analytics.user_report")
	defer span.End()

	var (
		summaries   []archive.SessionSummary
		experiences []archive.UserExperience
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if summaries, err = s.store.UserSummaries(gctx, userID, historyWindow); err != nil {
			return fmt.Errorf("load summaries: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if experiences, err = s.store.UserExperiences(gctx, userID, historyWindow); err != nil {
			return fmt.Errorf("load experiences: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	report := &Report{
		TotalSessions:    len(summaries),
		FavoriteSubjects: []SubjectCount{},
		RecentSessions:   []archive.SessionSummary{},
		LearningTrend:    []int{},
	}

	improvementSum := 0
	for _, sum := range summaries {
		report.TotalInteractions += sum.TotalInteractions
		improvementSum += sum.ProficiencyImprovement
	}
	if len(summaries) > 0 {
		report.AverageProficiencyImprovement = round2(float64(improvementSum) / float64(len(summaries)))
	}

	ratingSum, ratingCount := 0, 0
	for _, exp := range experiences {
		if exp.Rating != nil {
			ratingSum += *exp.Rating
			ratingCount++
		}
	}
	if ratingCount > 0 {
		report.AverageRating = round2(float64(ratingSum) / float64(ratingCount))
	}

	report.FavoriteSubjects = rankSubjects(summaries)

	recent := len(summaries)
	if recent > recentSessions {
		recent = recentSessions
	}
	report.RecentSessions = append(report.RecentSessions, summaries[:recent]...)

	// Summaries arrive newest first; the trend reads oldest to newest
	// so the series runs left to right in time.
	trend := len(summaries)
	if trend > trendLength {
		trend = trendLength
	}
	for i := trend - 1; i >= 0; i-- {
		report.LearningTrend = append(report.LearningTrend, summaries[i].ProficiencyImprovement)
	}

	span.SetAttributes(
		attribute.Int("analytics.sessions", len(summaries)),
		attribute.Int("analytics.experiences", len(experiences)),
	)
	return report, nil
}

// rankSubjects counts sessions per subject and sorts by count,
// descending. Ties keep first-seen order.
func rankSubjects(summaries []archive.SessionSummary) []SubjectCount {
	counts := make(map[string]int)
	var order []string
	for _, sum := range summaries {
		if sum.Subject == "" {
			continue
		}
		if _, seen := counts[sum.Subject]; !seen {
			order = append(order, sum.Subject)
		}
		counts[sum.Subject]++
	}

	ranked := make([]SubjectCount, 0, len(order))
	for _, subject := range order {
		ranked = append(ranked, SubjectCount{Subject: subject, Count: counts[subject]})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})
	return ranked
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
