// Package engine orchestrates the relationship intelligence pipeline:
// interaction events in, profiles, lead scores, smart lists, duplicate
// groups and alerts out.
package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/qntmpulse/relationship-engine/internal/aggregator"
	"github.com/qntmpulse/relationship-engine/internal/alerts"
	"github.com/qntmpulse/relationship-engine/internal/config"
	"github.com/qntmpulse/relationship-engine/internal/dedup"
	"github.com/qntmpulse/relationship-engine/internal/domain"
	"github.com/qntmpulse/relationship-engine/internal/enrich"
	"github.com/qntmpulse/relationship-engine/internal/pkg/logger"
	"github.com/qntmpulse/relationship-engine/internal/scoring"
	"github.com/qntmpulse/relationship-engine/internal/smartlist"
	"github.com/qntmpulse/relationship-engine/internal/storage"
)

// ErrProfileNotFound is returned for queries on an unknown contact key.
var ErrProfileNotFound = errors.New("profile not found")

// ErrLeadNotFound is returned when a contact has no lead score, either
// because the contact is unknown or below the scoring minimum.
var ErrLeadNotFound = errors.New("lead score not found")

// Enricher is the optional AI collaborator. Nil disables enrichment.
type Enricher interface {
	Enrich(ctx context.Context, p *domain.RelationshipProfile, l *domain.LeadScore) (*enrich.Enrichment, error)
}

// Engine wires the aggregator, scorers, evaluators and alert manager
// over a shared store.
type Engine struct {
	cfg   *config.Config
	store *storage.Storage

	agg        *aggregator.Aggregator
	health     *scoring.HealthScorer
	leads      *scoring.LeadScorer
	smartlists *smartlist.Evaluator
	detector   *dedup.Detector
	alerts     *alerts.Manager
	enricher   Enricher

	// Keyword buying signals accumulated from event content, merged
	// into each recompute.
	sigMu   sync.Mutex
	signals map[string][]domain.BuyingSignal

	// Guards multi-record operations (merge).
	mergeMu sync.Mutex

	now func() time.Time
}

// New creates an engine over the given store. enricher may be nil.
func New(cfg *config.Config, store *storage.Storage, enricher Enricher) *Engine {
	return &Engine{
		cfg:        cfg,
		store:      store,
		agg:        aggregator.New(),
		health:     scoring.NewHealthScorer(cfg.Scoring),
		leads:      scoring.NewLeadScorer(cfg.Lead),
		smartlists: smartlist.NewEvaluator(),
		detector:   dedup.NewDetector(cfg.Dedup.NameOverlapThreshold),
		alerts:     alerts.NewManager(store, cfg.Alerts),
		enricher:   enricher,
		signals:    make(map[string][]domain.BuyingSignal),
		now:        time.Now,
	}
}

// SetClock overrides the engine clock and the clocks of every
// time-dependent component. Test hook.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
	e.agg.SetClock(now)
	e.health.SetClock(now)
	e.leads.SetClock(now)
	e.alerts.SetClock(now)
}

// RecordEvent ingests one interaction event: folds it into the
// aggregate, captures any keyword buying signals, and recomputes the
// contact's profile and lead score.
func (e *Engine) RecordEvent(event domain.InteractionEvent) error {
	if err := e.agg.Record(event); err != nil {
		return err
	}

	if sigs := scoring.KeywordSignals(event); len(sigs) > 0 {
		e.sigMu.Lock()
		e.signals[event.ContactKey] = scoring.MergeSignals(e.signals[event.ContactKey], sigs)
		e.sigMu.Unlock()
	}

	e.recompute(event.ContactKey, identityFromEvent(event))
	return nil
}

// identity carries contact identity fields supplied alongside events by
// the data service.
type identity struct {
	Name        string
	Email       string
	Company     string
	Phone       string
	Birthday    string
	Anniversary string
}

func identityFromEvent(event domain.InteractionEvent) identity {
	id := identity{
		Name:        event.Metadata["contact_name"],
		Email:       event.Metadata["contact_email"],
		Company:     event.Metadata["company"],
		Phone:       event.Metadata["phone"],
		Birthday:    event.Metadata["birthday"],
		Anniversary: event.Metadata["anniversary"],
	}
	if id.Email == "" && strings.Contains(event.ContactKey, "@") {
		id.Email = event.ContactKey
	}
	return id
}

// recompute rebuilds the profile and lead score for one contact from
// its current aggregate. The zero identity leaves existing identity
// fields untouched.
func (e *Engine) recompute(contactKey string, id identity) {
	stats, ok := e.agg.Snapshot(contactKey)
	if !ok {
		return
	}

	now := e.now()

	existing, had := e.store.GetProfile(contactKey)
	var previousScore *int
	if had {
		previousScore = &existing.RelationshipScore
	} else {
		existing = &domain.RelationshipProfile{
			ContactKey: contactKey,
			CreatedAt:  now,
		}
	}

	result := e.health.Score(stats, existing.IsVIP, previousScore)

	p := existing
	applyIdentity(p, id)
	p.RelationshipScore = result.Score
	p.RelationshipTrend = result.Trend
	p.CommunicationFrequency = result.Frequency
	p.LastInteractionAt = stats.LastInteractionAt
	p.LastEmailSentAt = stats.LastEmailSentAt
	p.LastEmailReceivedAt = stats.LastEmailReceivedAt
	p.TotalInteractions = stats.TotalInteractions
	p.TotalEmailsSent = stats.EmailsSent
	p.TotalEmailsReceived = stats.EmailsReceived
	p.UpdatedAt = now
	e.store.UpsertProfile(p)

	e.sigMu.Lock()
	keywordSigs := e.signals[contactKey]
	e.sigMu.Unlock()
	allSignals := scoring.MergeSignals(keywordSigs, scoring.StatsSignals(stats, now))

	previousLead, _ := e.store.GetLead(contactKey)
	if lead := e.leads.Score(stats, result, allSignals, previousLead); lead != nil {
		e.store.UpsertLead(lead)
	} else if previousLead != nil {
		e.store.DeleteLead(contactKey)
	}
}

func applyIdentity(p *domain.RelationshipProfile, id identity) {
	if id.Name != "" {
		p.ContactName = id.Name
	}
	if id.Email != "" {
		p.ContactEmail = id.Email
	}
	if id.Company != "" {
		p.Company = id.Company
	}
	if id.Phone != "" {
		p.Phone = id.Phone
	}
	if id.Birthday != "" {
		p.Birthday = id.Birthday
	}
	if id.Anniversary != "" {
		p.Anniversary = id.Anniversary
	}
}

// GetProfile returns one contact's profile.
func (e *Engine) GetProfile(contactKey string) (*domain.RelationshipProfile, error) {
	p, ok := e.store.GetProfile(contactKey)
	if !ok {
		return nil, ErrProfileNotFound
	}
	return p, nil
}

// ListProfiles returns all profiles, highest score first.
func (e *Engine) ListProfiles() []*domain.RelationshipProfile {
	return e.store.ListProfiles()
}

// GetLeadScore returns one contact's lead score.
func (e *Engine) GetLeadScore(contactKey string) (*domain.LeadScore, error) {
	l, ok := e.store.GetLead(contactKey)
	if !ok {
		return nil, ErrLeadNotFound
	}
	return l, nil
}

// ListSmartListCounts returns the membership count of every smart list,
// recomputed from the full population.
func (e *Engine) ListSmartListCounts() map[domain.SmartListType]int {
	return e.smartlists.Counts(e.store.ListProfiles(), e.store.Leads(), e.now())
}

// SmartListMembers returns the profiles currently in one smart list.
func (e *Engine) SmartListMembers(list domain.SmartListType) []*domain.RelationshipProfile {
	leads := e.store.Leads()
	now := e.now()
	var out []*domain.RelationshipProfile
	for _, p := range e.store.ListProfiles() {
		for _, t := range e.smartlists.Classify(p, leads[p.ContactKey], now) {
			if t == list {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// ListAlerts returns all alerts, newest first.
func (e *Engine) ListAlerts() []*domain.RelationshipAlert {
	return e.store.ListAlerts()
}

// DismissAlert dismisses an alert with an optional reason.
func (e *Engine) DismissAlert(id, reason string) (*domain.RelationshipAlert, error) {
	return e.alerts.Dismiss(id, reason)
}

// SnoozeAlert snoozes an active alert until the given time.
func (e *Engine) SnoozeAlert(id string, until time.Time) (*domain.RelationshipAlert, error) {
	return e.alerts.Snooze(id, until)
}

// HandleAlertAction acknowledges the suggested action was taken and
// resolves the alert.
func (e *Engine) HandleAlertAction(id, actionType string) (*domain.RelationshipAlert, error) {
	return e.alerts.Action(id, actionType)
}

// SweepAlerts evaluates all alert triggers over the current population.
func (e *Engine) SweepAlerts() alerts.SweepResult {
	return e.alerts.Sweep(e.store.ListProfiles(), e.store.Leads())
}

// MarkCustomer records the business event that a lead converted. Status
// becomes customer and stays sticky against later score movement.
func (e *Engine) MarkCustomer(contactKey string) (*domain.LeadScore, error) {
	lead, ok := e.store.GetLead(contactKey)
	if !ok {
		return nil, ErrLeadNotFound
	}
	now := e.now()
	lead.Status = domain.LeadCustomer
	if lead.BecameCustomerAt == nil {
		lead.BecameCustomerAt = &now
	}
	lead.UpdatedAt = now
	e.store.UpsertLead(lead)
	logger.Info("lead marked customer", "contact_key", lead.ContactKey)
	return lead, nil
}

// SetVIP toggles a contact's VIP flag and recomputes their scores so
// the VIP floor applies immediately.
func (e *Engine) SetVIP(contactKey string, vip bool) (*domain.RelationshipProfile, error) {
	p, ok := e.store.GetProfile(contactKey)
	if !ok {
		return nil, ErrProfileNotFound
	}
	p.IsVIP = vip
	e.store.UpsertProfile(p)
	e.recompute(contactKey, identity{})

	updated, _ := e.store.GetProfile(contactKey)
	return updated, nil
}

// Persist writes the current state to the snapshot store, when
// configured.
func (e *Engine) Persist(ctx context.Context) error {
	return e.store.Persist(ctx)
}
