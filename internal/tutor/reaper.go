package tutor

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lingokit/lingokit/internal/observability"
	metrics "github.com/lingokit/lingokit/pkg/observability"
	"github.com/lingokit/lingokit/pkg/session"
)

// Reaper ends sessions that have sat idle past a threshold, archiving
// them through the same path as an explicit end, with no user feedback
// attached.
type Reaper struct {
	manager *Manager
	store   session.Store
	idle    time.Duration
	now     func() time.Time
}

// NewReaper builds a reaper that considers a session idle once its last
// update is at least idleThreshold old.
func NewReaper(m *Manager, store session.Store, idleThreshold time.Duration) *Reaper {
	return &Reaper{
		manager: m,
		store:   store,
		idle:    idleThreshold,
		now:     time.Now,
	}
}

// Run sweeps the active index once and ends every idle session.
// Failures on individual sessions are logged and skipped so one broken
// record cannot stall the sweep; the next tick retries them. Returns
// the number of sessions reaped.
func (r *Reaper) Run(ctx context.Context) (int, error) {
	ctx, span := observability.StartSpanWithOtel(ctx, "tutor.reap")
	defer span.End()

	ids, err := r.store.ActiveIDs(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("list active sessions: %w", err)
	}

	var reaped, failed int
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return reaped, err
		}

		s, err := r.store.Get(ctx, id)
		if err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				// Expired between listing and lookup.
				continue
			}
			log.WithError(err).WithField("session_id", id).Warn("reaper: session lookup failed")
			failed++
			continue
		}

		idle := r.now().Sub(s.UpdatedAt)
		if idle < r.idle {
			continue
		}

		if _, err := r.manager.EndSession(ctx, id, nil); err != nil {
			log.WithError(err).WithField("session_id", id).Warn("reaper: end session failed")
			failed++
			continue
		}
		metrics.RecordSessionEnded("reaper")
		log.WithFields(log.Fields{
			"session_id": id,
			"idle":       idle.Round(time.Second).String(),
		}).Info("idle session reaped")
		reaped++
	}

	metrics.SetActiveSessions(len(ids) - reaped)
	span.SetAttributes(
		attribute.Int("reap.scanned", len(ids)),
		attribute.Int("reap.reaped", reaped),
	)
	if reaped > 0 || failed > 0 {
		log.WithFields(log.Fields{
			"scanned": len(ids),
			"reaped":  reaped,
			"failed":  failed,
		}).Info("reaper sweep complete")
	}
	return reaped, nil
}
