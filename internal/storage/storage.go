// Package storage holds the engine's state: profiles, lead scores,
// alerts and duplicate suppressions. State lives in memory behind a
// RWMutex; an optional S3 snapshot store persists it across restarts.
package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/qntmpulse/relationship-engine/internal/alerts"
	"github.com/qntmpulse/relationship-engine/internal/config"
	"github.com/qntmpulse/relationship-engine/internal/domain"
	"github.com/qntmpulse/relationship-engine/internal/pkg/logger"
)

// Storage is the in-memory state store. All returned values are copies;
// callers never share pointers with the store.
type Storage struct {
	config config.SnapshotConfig
	mu     sync.RWMutex

	// S3 snapshots (optional)
	snapshots *SnapshotStore

	// Optional durable mirror (Postgres). See durable.go.
	durable Durable

	profiles     map[string]*domain.RelationshipProfile
	leads        map[string]*domain.LeadScore
	alerts       map[string]*domain.RelationshipAlert
	suppressions map[string]bool
}

// New creates a Storage, wiring S3 snapshots when configured and
// restoring the last snapshot if one exists.
func New(ctx context.Context, cfg config.SnapshotConfig) (*Storage, error) {
	s := &Storage{
		config:       cfg,
		profiles:     make(map[string]*domain.RelationshipProfile),
		leads:        make(map[string]*domain.LeadScore),
		alerts:       make(map[string]*domain.RelationshipAlert),
		suppressions: make(map[string]bool),
	}

	if cfg.Enabled && cfg.S3Bucket != "" {
		snapshots, err := NewSnapshotStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.snapshots = snapshots

		if snap, err := snapshots.LoadState(ctx); err == nil {
			s.restore(snap)
			logger.Info("restored state from snapshot",
				"profiles", len(snap.Profiles), "alerts", len(snap.Alerts))
		} else {
			// Missing snapshot is normal on first boot.
			logger.Warn("no snapshot restored", "error", err.Error())
		}
	}

	return s, nil
}

// UpsertProfile stores a profile keyed by contact key.
func (s *Storage) UpsertProfile(p *domain.RelationshipProfile) {
	s.mu.Lock()
	cp := *p
	s.profiles[p.ContactKey] = &cp
	s.mu.Unlock()

	mc := *p
	s.mirror("upsert_profile", func(ctx context.Context, d Durable) error {
		return d.UpsertProfile(ctx, &mc)
	})
}

// GetProfile returns the profile for a contact key.
func (s *Storage) GetProfile(contactKey string) (*domain.RelationshipProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[contactKey]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

// ListProfiles returns all profiles sorted by descending score, ties
// broken by contact key for stable output.
func (s *Storage) ListProfiles() []*domain.RelationshipProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.RelationshipProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RelationshipScore != out[j].RelationshipScore {
			return out[i].RelationshipScore > out[j].RelationshipScore
		}
		return out[i].ContactKey < out[j].ContactKey
	})
	return out
}

// DeleteProfile removes a profile and its lead score.
func (s *Storage) DeleteProfile(contactKey string) {
	s.mu.Lock()
	delete(s.profiles, contactKey)
	delete(s.leads, contactKey)
	s.mu.Unlock()

	s.mirror("delete_profile", func(ctx context.Context, d Durable) error {
		if err := d.DeleteLead(ctx, contactKey); err != nil {
			return err
		}
		return d.DeleteProfile(ctx, contactKey)
	})
}

// UpsertLead stores a lead score keyed by contact key.
func (s *Storage) UpsertLead(l *domain.LeadScore) {
	s.mu.Lock()
	cp := *l
	s.leads[l.ContactKey] = &cp
	s.mu.Unlock()

	mc := *l
	s.mirror("upsert_lead", func(ctx context.Context, d Durable) error {
		return d.UpsertLead(ctx, &mc)
	})
}

// GetLead returns the lead score for a contact key.
func (s *Storage) GetLead(contactKey string) (*domain.LeadScore, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.leads[contactKey]
	if !ok {
		return nil, false
	}
	cp := *l
	return &cp, true
}

// DeleteLead removes a contact's lead score, used when a recompute
// drops below the scoring minimum.
func (s *Storage) DeleteLead(contactKey string) {
	s.mu.Lock()
	delete(s.leads, contactKey)
	s.mu.Unlock()

	s.mirror("delete_lead", func(ctx context.Context, d Durable) error {
		return d.DeleteLead(ctx, contactKey)
	})
}

// Leads returns all lead scores keyed by contact key.
func (s *Storage) Leads() map[string]*domain.LeadScore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*domain.LeadScore, len(s.leads))
	for k, v := range s.leads {
		cp := *v
		out[k] = &cp
	}
	return out
}

// GetAlert returns an alert by id.
func (s *Storage) GetAlert(id string) (*domain.RelationshipAlert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, false
	}
	cp := *a
	return &cp, true
}

// LatestAlert returns the most recently created alert for a
// (contact, type) pair, regardless of status.
func (s *Storage) LatestAlert(contactKey string, alertType domain.AlertType) (*domain.RelationshipAlert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *domain.RelationshipAlert
	for _, a := range s.alerts {
		if a.ContactKey != contactKey || a.AlertType != alertType {
			continue
		}
		if latest == nil || a.CreatedAt.After(latest.CreatedAt) {
			latest = a
		}
	}
	if latest == nil {
		return nil, false
	}
	cp := *latest
	return &cp, true
}

// UpsertAlert stores an alert keyed by id. At most one active or
// snoozed alert may exist per (contact, type) pair; a second live
// insert is rejected with alerts.ErrDuplicateActiveAlert so concurrent
// sweeps cannot double-fire.
func (s *Storage) UpsertAlert(a *domain.RelationshipAlert) error {
	s.mu.Lock()
	if a.Status.Live() {
		for _, existing := range s.alerts {
			if existing.ID != a.ID && existing.ContactKey == a.ContactKey &&
				existing.AlertType == a.AlertType && existing.Status.Live() {
				s.mu.Unlock()
				return alerts.ErrDuplicateActiveAlert
			}
		}
	}
	cp := *a
	s.alerts[a.ID] = &cp
	s.mu.Unlock()

	mc := *a
	s.mirror("upsert_alert", func(ctx context.Context, d Durable) error {
		return d.UpsertAlert(ctx, &mc)
	})
	return nil
}

// ListAlerts returns all alerts, newest first.
func (s *Storage) ListAlerts() []*domain.RelationshipAlert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.RelationshipAlert, 0, len(s.alerts))
	for _, a := range s.alerts {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// RekeyAlerts reassigns every alert on oldKey to newKey. Used when
// duplicate contacts merge so alert history follows the surviving
// profile. When both contacts held a live alert of the same type, only
// the newest stays live; the rest are expired so the one-live-per-pair
// rule survives the merge.
func (s *Storage) RekeyAlerts(oldKey, newKey string) error {
	s.mu.Lock()
	for _, a := range s.alerts {
		if a.ContactKey == oldKey {
			a.ContactKey = newKey
		}
	}
	var expired []domain.RelationshipAlert
	newestLive := make(map[domain.AlertType]*domain.RelationshipAlert)
	for _, a := range s.alerts {
		if a.ContactKey != newKey || !a.Status.Live() {
			continue
		}
		prev, ok := newestLive[a.AlertType]
		if !ok {
			newestLive[a.AlertType] = a
			continue
		}
		loser := a
		if a.CreatedAt.After(prev.CreatedAt) {
			newestLive[a.AlertType] = a
			loser = prev
		}
		loser.Status = domain.AlertExpired
		resolved := time.Now().UTC()
		loser.ResolvedAt = &resolved
		expired = append(expired, *loser)
	}
	s.mu.Unlock()

	s.mirror("rekey_alerts", func(ctx context.Context, d Durable) error {
		if err := d.RekeyAlerts(ctx, oldKey, newKey); err != nil {
			return err
		}
		for i := range expired {
			if err := d.UpsertAlert(ctx, &expired[i]); err != nil {
				return err
			}
		}
		return nil
	})
	return nil
}

// SuppressDuplicate records a dismissed duplicate group so it is never
// suggested again.
func (s *Storage) SuppressDuplicate(groupKey string) {
	s.mu.Lock()
	s.suppressions[groupKey] = true
	s.mu.Unlock()

	s.mirror("add_suppression", func(ctx context.Context, d Durable) error {
		return d.AddSuppression(ctx, groupKey)
	})
}

// Suppressions returns the set of dismissed duplicate group keys.
func (s *Storage) Suppressions() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.suppressions))
	for k := range s.suppressions {
		out[k] = true
	}
	return out
}

// Snapshot captures the full state for persistence.
func (s *Storage) Snapshot() *StateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := &StateSnapshot{
		TakenAt:      time.Now().UTC(),
		Profiles:     make([]*domain.RelationshipProfile, 0, len(s.profiles)),
		Leads:        make([]*domain.LeadScore, 0, len(s.leads)),
		Alerts:       make([]*domain.RelationshipAlert, 0, len(s.alerts)),
		Suppressions: make([]string, 0, len(s.suppressions)),
	}
	for _, p := range s.profiles {
		cp := *p
		snap.Profiles = append(snap.Profiles, &cp)
	}
	for _, l := range s.leads {
		cp := *l
		snap.Leads = append(snap.Leads, &cp)
	}
	for _, a := range s.alerts {
		cp := *a
		snap.Alerts = append(snap.Alerts, &cp)
	}
	for k := range s.suppressions {
		snap.Suppressions = append(snap.Suppressions, k)
	}
	sort.Strings(snap.Suppressions)
	return snap
}

// Persist writes the current state to S3. No-op without a snapshot
// store.
func (s *Storage) Persist(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}
	return s.snapshots.SaveState(ctx, s.Snapshot())
}

func (s *Storage) restore(snap *StateSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range snap.Profiles {
		cp := *p
		s.profiles[p.ContactKey] = &cp
	}
	for _, l := range snap.Leads {
		cp := *l
		s.leads[l.ContactKey] = &cp
	}
	for _, a := range snap.Alerts {
		cp := *a
		s.alerts[a.ID] = &cp
	}
	for _, k := range snap.Suppressions {
		s.suppressions[k] = true
	}
}
