package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/qntmpulse/relationship-engine/internal/domain"
)

// Store bundles the four repositories behind the storage layer's
// durable-mirror interface.
type Store struct {
	profiles     *ProfileRepo
	leads        *LeadRepo
	alerts       *AlertRepo
	suppressions *SuppressionRepo
}

// NewStore creates the repository bundle on one database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{
		profiles:     NewProfileRepo(db),
		leads:        NewLeadRepo(db),
		alerts:       NewAlertRepo(db),
		suppressions: NewSuppressionRepo(db),
	}
}

func (s *Store) UpsertProfile(ctx context.Context, p *domain.RelationshipProfile) error {
	return s.profiles.Upsert(ctx, p)
}

// DeleteProfile removes a profile row. A missing row is not an error;
// merges delete profiles that may never have been mirrored.
func (s *Store) DeleteProfile(ctx context.Context, contactKey string) error {
	if err := s.profiles.Delete(ctx, contactKey); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

func (s *Store) UpsertLead(ctx context.Context, l *domain.LeadScore) error {
	return s.leads.Upsert(ctx, l)
}

func (s *Store) DeleteLead(ctx context.Context, contactKey string) error {
	return s.leads.Delete(ctx, contactKey)
}

func (s *Store) UpsertAlert(ctx context.Context, a *domain.RelationshipAlert) error {
	return s.alerts.Upsert(ctx, a)
}

func (s *Store) RekeyAlerts(ctx context.Context, oldKey, newKey string) error {
	return s.alerts.Rekey(ctx, oldKey, newKey)
}

func (s *Store) AddSuppression(ctx context.Context, groupKey string) error {
	return s.suppressions.Add(ctx, groupKey)
}

// Load reads the full durable state for hydration at boot.
func (s *Store) Load(ctx context.Context) ([]*domain.RelationshipProfile, []*domain.LeadScore, []*domain.RelationshipAlert, []string, error) {
	profiles, err := s.profiles.List(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	leads, err := s.leads.List(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	alerts, err := s.alerts.List(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	supMap, err := s.suppressions.List(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	suppressions := make([]string, 0, len(supMap))
	for k := range supMap {
		suppressions = append(suppressions, k)
	}
	return profiles, leads, alerts, suppressions, nil
}
