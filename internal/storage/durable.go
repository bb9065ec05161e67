package storage

import (
	"context"
	"time"

	"github.com/qntmpulse/relationship-engine/internal/domain"
	"github.com/qntmpulse/relationship-engine/internal/pkg/logger"
)

// Durable is an optional backing store that outlives the process. When
// set, every state change is mirrored through it and the in-memory maps
// are hydrated from it at wiring time. Mirror writes are best-effort:
// the in-memory state is authoritative and a failed write only logs.
type Durable interface {
	UpsertProfile(ctx context.Context, p *domain.RelationshipProfile) error
	DeleteProfile(ctx context.Context, contactKey string) error
	UpsertLead(ctx context.Context, l *domain.LeadScore) error
	DeleteLead(ctx context.Context, contactKey string) error
	UpsertAlert(ctx context.Context, a *domain.RelationshipAlert) error
	RekeyAlerts(ctx context.Context, oldKey, newKey string) error
	AddSuppression(ctx context.Context, groupKey string) error
	Load(ctx context.Context) ([]*domain.RelationshipProfile, []*domain.LeadScore, []*domain.RelationshipAlert, []string, error)
}

const mirrorTimeout = 5 * time.Second

// SetDurable attaches the durable store and hydrates in-memory state
// from it. Rows loaded here win over any S3 snapshot restored earlier.
func (s *Storage) SetDurable(ctx context.Context, d Durable) error {
	profiles, leads, alerts, suppressions, err := d.Load(ctx)
	if err != nil {
		return err
	}
	s.restore(&StateSnapshot{
		Profiles:     profiles,
		Leads:        leads,
		Alerts:       alerts,
		Suppressions: suppressions,
	})
	s.mu.Lock()
	s.durable = d
	s.mu.Unlock()
	logger.Info("durable store attached",
		"profiles", len(profiles), "leads", len(leads), "alerts", len(alerts))
	return nil
}

func (s *Storage) mirror(op string, fn func(ctx context.Context, d Durable) error) {
	s.mu.RLock()
	d := s.durable
	s.mu.RUnlock()
	if d == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := fn(ctx, d); err != nil {
		logger.Warn("durable mirror write failed", "op", op, "error", err.Error())
	}
}
