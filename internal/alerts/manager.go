package alerts

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/qntmpulse/relationship-engine/internal/config"
	"github.com/qntmpulse/relationship-engine/internal/domain"
	"github.com/qntmpulse/relationship-engine/internal/pkg/logger"
)

// ErrAlertNotFound is returned for commands against unknown alert ids.
var ErrAlertNotFound = errors.New("alert not found")

// ErrInvalidTransition is returned when a command is not valid for the
// alert's current status (e.g. snoozing an expired alert).
var ErrInvalidTransition = errors.New("invalid alert transition")

// ErrDuplicateActiveAlert is returned by Store.UpsertAlert when a
// second active or snoozed alert would exist for one (contact, type)
// pair. Concurrent sweeps treat it as losing the race, not a failure.
var ErrDuplicateActiveAlert = errors.New("active alert already exists for contact and alert type")

// Store is the persistence the manager needs. The storage package
// provides the in-memory implementation; the postgres repository the
// durable one.
type Store interface {
	// GetAlert returns an alert by id.
	GetAlert(id string) (*domain.RelationshipAlert, bool)
	// LatestAlert returns the most recent alert for a (contact, type)
	// pair regardless of status.
	LatestAlert(contactKey string, alertType domain.AlertType) (*domain.RelationshipAlert, bool)
	// UpsertAlert inserts or replaces an alert keyed by id. It must
	// return ErrDuplicateActiveAlert rather than store a second
	// active/snoozed alert for an already-live (contact, type) pair.
	UpsertAlert(alert *domain.RelationshipAlert) error
	// ListAlerts returns all alerts, newest first.
	ListAlerts() []*domain.RelationshipAlert
	// RekeyAlerts points all alerts for oldKey at newKey (used by merge).
	RekeyAlerts(oldKey, newKey string) error
}

// SweepResult summarizes one sweep pass. Failures are per-contact and
// never abort the rest of the sweep.
type SweepResult struct {
	Evaluated int      `json:"evaluated"`
	Created   int      `json:"created"`
	Promoted  int      `json:"promoted"`
	Expired   int      `json:"expired"`
	Failures  []string `json:"failures,omitempty"`
}

// Manager runs the alert trigger sweep and the per-alert lifecycle
// commands. The state machine per (contact, type) is:
//
//	none -> active -> {dismissed | snoozed -> active | snoozed -> expired}
//
// Dismissal is terminal for the firing instance; once the trigger
// condition is observed to have cleared, a later firing creates a fresh
// alert with a new id.
type Manager struct {
	store    Store
	triggers []Trigger
	cfg      config.AlertsConfig
	now      func() time.Time
}

// NewManager creates an alert manager with the standard trigger table.
func NewManager(store Store, cfg config.AlertsConfig) *Manager {
	return &Manager{
		store:    store,
		triggers: StandardTriggers(),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Register adds a trigger to the table.
func (m *Manager) Register(t Trigger) {
	m.triggers = append(m.triggers, t)
}

// SetClock overrides the manager clock. Test hook.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Sweep evaluates every trigger against every profile, promoting or
// expiring snoozed alerts and creating new actives for fresh firings.
// One contact's failure never aborts the rest of the pass.
func (m *Manager) Sweep(profiles []*domain.RelationshipProfile, leads map[string]*domain.LeadScore) SweepResult {
	var result SweepResult
	now := m.now()

	for _, p := range profiles {
		if p == nil {
			continue
		}
		result.Evaluated++
		if err := m.sweepContact(p, leads[p.ContactKey], now, &result); err != nil {
			result.Failures = append(result.Failures, fmt.Sprintf("%s: %v", p.ContactKey, err))
			logger.Warn("alert sweep failed for contact", "contact_key", p.ContactKey, "error", err)
		}
	}
	return result
}

func (m *Manager) sweepContact(p *domain.RelationshipProfile, lead *domain.LeadScore, now time.Time, result *SweepResult) error {
	ctx := TriggerContext{Profile: p, Lead: lead, Now: now, Cfg: m.cfg}

	for _, trigger := range m.triggers {
		firing, fires := trigger.Evaluate(ctx)

		existing, ok := m.store.LatestAlert(p.ContactKey, trigger.Type)
		if ok {
			switch existing.Status {
			case domain.AlertActive:
				// Dedup invariant: re-evaluation never creates a second
				// active alert for an already-active trigger.
				continue
			case domain.AlertSnoozed:
				if existing.SnoozedUntil == nil || now.Before(*existing.SnoozedUntil) {
					continue
				}
				// Snooze elapsed: promote only if the trigger still holds.
				if fires {
					existing.Status = domain.AlertActive
					existing.SnoozedUntil = nil
					result.Promoted++
				} else {
					existing.Status = domain.AlertExpired
					resolved := now
					existing.ResolvedAt = &resolved
					result.Expired++
				}
				if err := m.store.UpsertAlert(existing); err != nil {
					return err
				}
				continue
			case domain.AlertDismissed:
				if fires && existing.ResolvedAt == nil {
					// Condition has held continuously since the dismissal;
					// not an independent firing yet.
					continue
				}
				if !fires && existing.ResolvedAt == nil {
					// Observe the condition clearing so the next firing
					// counts as fresh.
					resolved := now
					existing.ResolvedAt = &resolved
					if err := m.store.UpsertAlert(existing); err != nil {
						return err
					}
					continue
				}
			}
		}

		if !fires {
			continue
		}

		alert := &domain.RelationshipAlert{
			ID:              uuid.New().String(),
			ContactKey:      p.ContactKey,
			AlertType:       trigger.Type,
			Severity:        firing.Severity,
			Title:           firing.Title,
			Description:     firing.Description,
			SuggestedAction: firing.SuggestedAction,
			ActionType:      firing.ActionType,
			Status:          domain.AlertActive,
			CreatedAt:       now,
		}
		if err := m.store.UpsertAlert(alert); err != nil {
			if errors.Is(err, ErrDuplicateActiveAlert) {
				// A concurrent sweep created this firing first.
				continue
			}
			return err
		}
		result.Created++
	}
	return nil
}

// Dismiss marks an alert dismissed. Dismissing an already-terminal alert
// is a no-op, not an error.
func (m *Manager) Dismiss(id, reason string) (*domain.RelationshipAlert, error) {
	alert, ok := m.store.GetAlert(id)
	if !ok {
		return nil, ErrAlertNotFound
	}
	if alert.Status.Terminal() {
		return alert, nil
	}
	alert.Status = domain.AlertDismissed
	alert.DismissReason = reason
	alert.SnoozedUntil = nil
	if err := m.store.UpsertAlert(alert); err != nil {
		return nil, err
	}
	logger.Info("alert dismissed", "alert_id", id, "contact_key", alert.ContactKey, "alert_type", string(alert.AlertType))
	return alert, nil
}

// Snooze pauses an active alert until the given time.
func (m *Manager) Snooze(id string, until time.Time) (*domain.RelationshipAlert, error) {
	alert, ok := m.store.GetAlert(id)
	if !ok {
		return nil, ErrAlertNotFound
	}
	if alert.Status != domain.AlertActive && alert.Status != domain.AlertSnoozed {
		return nil, fmt.Errorf("%w: cannot snooze %s alert", ErrInvalidTransition, alert.Status)
	}
	if !until.After(m.now()) {
		return nil, fmt.Errorf("%w: snooze time must be in the future", ErrInvalidTransition)
	}
	alert.Status = domain.AlertSnoozed
	alert.SnoozedUntil = &until
	if err := m.store.UpsertAlert(alert); err != nil {
		return nil, err
	}
	return alert, nil
}

// Action acknowledges that the alert's suggested action was taken. The
// action itself (composing, scheduling) belongs to an external
// collaborator; here the alert is resolved as dismissed with the action
// recorded.
func (m *Manager) Action(id, actionType string) (*domain.RelationshipAlert, error) {
	alert, ok := m.store.GetAlert(id)
	if !ok {
		return nil, ErrAlertNotFound
	}
	if alert.Status.Terminal() {
		return nil, fmt.Errorf("%w: alert already %s", ErrInvalidTransition, alert.Status)
	}
	alert.Status = domain.AlertDismissed
	alert.DismissReason = "action_taken:" + actionType
	alert.SnoozedUntil = nil
	if err := m.store.UpsertAlert(alert); err != nil {
		return nil, err
	}
	logger.Info("alert action taken", "alert_id", id, "action_type", actionType)
	return alert, nil
}
