package alerts

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qntmpulse/relationship-engine/internal/config"
	"github.com/qntmpulse/relationship-engine/internal/domain"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

// fakeStore is a minimal in-memory alert store for manager tests.
type fakeStore struct {
	alerts map[string]*domain.RelationshipAlert
}

func newFakeStore() *fakeStore {
	return &fakeStore{alerts: make(map[string]*domain.RelationshipAlert)}
}

func (s *fakeStore) GetAlert(id string) (*domain.RelationshipAlert, bool) {
	a, ok := s.alerts[id]
	if !ok {
		return nil, false
	}
	cp := *a
	return &cp, true
}

func (s *fakeStore) LatestAlert(contactKey string, alertType domain.AlertType) (*domain.RelationshipAlert, bool) {
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

func (s *fakeStore) UpsertAlert(alert *domain.RelationshipAlert) error {
	if alert.Status.Live() {
		for _, a := range s.alerts {
			if a.ID != alert.ID && a.ContactKey == alert.ContactKey &&
				a.AlertType == alert.AlertType && a.Status.Live() {
				return ErrDuplicateActiveAlert
			}
		}
	}
	cp := *alert
	s.alerts[alert.ID] = &cp
	return nil
}

func (s *fakeStore) ListAlerts() []*domain.RelationshipAlert {
	var out []*domain.RelationshipAlert
	for _, a := range s.alerts {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *fakeStore) RekeyAlerts(oldKey, newKey string) error {
	for _, a := range s.alerts {
		if a.ContactKey == oldKey {
			a.ContactKey = newKey
		}
	}
	return nil
}

func newTestManager(store Store) *Manager {
	m := NewManager(store, config.Default().Alerts)
	m.SetClock(func() time.Time { return testNow })
	return m
}

func tsAgo(d time.Duration) *time.Time {
	t := testNow.Add(-d)
	return &t
}

func decayedProfile(key string) *domain.RelationshipProfile {
	return &domain.RelationshipProfile{
		ContactKey:        key,
		ContactName:       "Jane Doe",
		RelationshipScore: 25,
		RelationshipTrend: domain.TrendFalling,
		TotalInteractions: 10,
		LastInteractionAt: tsAgo(20 * 24 * time.Hour),
	}
}

func TestSweepCreatesAlert(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store)

	res := m.Sweep([]*domain.RelationshipProfile{decayedProfile("jane@co.com")}, nil)
	assert.Equal(t, 1, res.Evaluated)
	assert.Equal(t, 1, res.Created)

	alerts := store.ListAlerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.AlertScoreDecay, alerts[0].AlertType)
	assert.Equal(t, domain.AlertActive, alerts[0].Status)
	assert.Equal(t, domain.SeverityWarning, alerts[0].Severity)
	assert.NotEmpty(t, alerts[0].SuggestedAction)
}

func TestSweepNeverDuplicatesActiveAlert(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store)
	profiles := []*domain.RelationshipProfile{decayedProfile("jane@co.com")}

	m.Sweep(profiles, nil)
	res := m.Sweep(profiles, nil)
	assert.Equal(t, 0, res.Created, "re-evaluation must not create a second active alert")
	assert.Len(t, store.ListAlerts(), 1)
}

// blindStore hides score-decay history from LatestAlert, modelling a
// concurrent sweep whose write lands between this sweep's read and its
// create.
type blindStore struct {
	*fakeStore
}

func (s *blindStore) LatestAlert(contactKey string, alertType domain.AlertType) (*domain.RelationshipAlert, bool) {
	if alertType == domain.AlertScoreDecay {
		return nil, false
	}
	return s.fakeStore.LatestAlert(contactKey, alertType)
}

func TestSweepLostCreateRaceIsNotAFailure(t *testing.T) {
	store := newFakeStore()
	store.alerts["a0"] = &domain.RelationshipAlert{
		ID: "a0", ContactKey: "jane@co.com", AlertType: domain.AlertScoreDecay,
		Status: domain.AlertActive, CreatedAt: testNow,
	}
	m := newTestManager(&blindStore{fakeStore: store})

	res := m.Sweep([]*domain.RelationshipProfile{decayedProfile("jane@co.com")}, nil)
	assert.Zero(t, res.Created, "the winning writer's alert stands")
	assert.Empty(t, res.Failures)
	assert.Len(t, store.ListAlerts(), 1)
}

func TestDismissThenReFireCreatesNewID(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store)
	profiles := []*domain.RelationshipProfile{decayedProfile("jane@co.com")}

	m.Sweep(profiles, nil)
	first := store.ListAlerts()[0]

	_, err := m.Dismiss(first.ID, "not relevant")
	require.NoError(t, err)

	// Condition still holds: dismissal suppresses re-creation.
	res := m.Sweep(profiles, nil)
	assert.Equal(t, 0, res.Created)

	// Condition clears, then fires again: fresh alert with a new id.
	recovered := []*domain.RelationshipProfile{{
		ContactKey:        "jane@co.com",
		RelationshipScore: 80,
		TotalInteractions: 12,
		LastInteractionAt: tsAgo(time.Hour),
	}}
	m.Sweep(recovered, nil)

	res = m.Sweep(profiles, nil)
	assert.Equal(t, 1, res.Created)

	var active *domain.RelationshipAlert
	for _, a := range store.ListAlerts() {
		if a.Status == domain.AlertActive {
			active = a
		}
	}
	require.NotNil(t, active)
	assert.NotEqual(t, first.ID, active.ID, "a re-fire is a fresh alert, not a resurrection")
}

func TestSnoozePromotionWhenConditionHolds(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store)
	profiles := []*domain.RelationshipProfile{decayedProfile("jane@co.com")}

	m.Sweep(profiles, nil)
	alert := store.ListAlerts()[0]

	_, err := m.Snooze(alert.ID, testNow.Add(4*time.Hour))
	require.NoError(t, err)

	// Before the snooze elapses, nothing changes.
	res := m.Sweep(profiles, nil)
	assert.Equal(t, 0, res.Promoted+res.Expired+res.Created)

	// Advance past snoozedUntil with the condition still holding.
	m.SetClock(func() time.Time { return testNow.Add(5 * time.Hour) })
	res = m.Sweep(profiles, nil)
	assert.Equal(t, 1, res.Promoted)

	got, ok := store.GetAlert(alert.ID)
	require.True(t, ok)
	assert.Equal(t, domain.AlertActive, got.Status)
	assert.Nil(t, got.SnoozedUntil)
}

func TestSnoozeExpiryWhenConditionCleared(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store)

	m.Sweep([]*domain.RelationshipProfile{decayedProfile("jane@co.com")}, nil)
	alert := store.ListAlerts()[0]

	_, err := m.Snooze(alert.ID, testNow.Add(4*time.Hour))
	require.NoError(t, err)

	// Condition self-resolves while snoozed.
	recovered := []*domain.RelationshipProfile{{
		ContactKey:        "jane@co.com",
		RelationshipScore: 85,
		TotalInteractions: 12,
		LastInteractionAt: tsAgo(time.Hour),
	}}
	m.SetClock(func() time.Time { return testNow.Add(5 * time.Hour) })
	res := m.Sweep(recovered, nil)
	assert.Equal(t, 1, res.Expired)

	got, ok := store.GetAlert(alert.ID)
	require.True(t, ok)
	assert.Equal(t, domain.AlertExpired, got.Status)
	assert.NotNil(t, got.ResolvedAt)
}

func TestDismissTerminalIsNoOp(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store)

	m.Sweep([]*domain.RelationshipProfile{decayedProfile("jane@co.com")}, nil)
	alert := store.ListAlerts()[0]

	_, err := m.Dismiss(alert.ID, "first")
	require.NoError(t, err)

	got, err := m.Dismiss(alert.ID, "second")
	require.NoError(t, err)
	assert.Equal(t, "first", got.DismissReason, "dismissing a dismissed alert is a no-op")
}

func TestSnoozeInvalidTransitions(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store)

	m.Sweep([]*domain.RelationshipProfile{decayedProfile("jane@co.com")}, nil)
	alert := store.ListAlerts()[0]

	_, err := m.Snooze(alert.ID, testNow.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = m.Dismiss(alert.ID, "")
	require.NoError(t, err)
	_, err = m.Snooze(alert.ID, testNow.Add(time.Hour))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = m.Snooze("no-such-id", testNow.Add(time.Hour))
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestActionResolvesAlert(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store)

	m.Sweep([]*domain.RelationshipProfile{decayedProfile("jane@co.com")}, nil)
	alert := store.ListAlerts()[0]

	got, err := m.Action(alert.ID, "compose")
	require.NoError(t, err)
	assert.Equal(t, domain.AlertDismissed, got.Status)
	assert.Equal(t, "action_taken:compose", got.DismissReason)

	_, err = m.Action(alert.ID, "compose")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestVIPSilentTrigger(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store)

	vip := &domain.RelationshipProfile{
		ContactKey:        "vip@co.com",
		ContactName:       "Ada King",
		RelationshipScore: 60,
		TotalInteractions: 40,
		IsVIP:             true,
		LastInteractionAt: tsAgo(20 * 24 * time.Hour),
	}
	m.Sweep([]*domain.RelationshipProfile{vip}, nil)

	var found bool
	for _, a := range store.ListAlerts() {
		if a.AlertType == domain.AlertVIPSilent {
			found = true
			assert.Equal(t, domain.SeverityCritical, a.Severity)
		}
	}
	assert.True(t, found, "silent VIP should raise a critical alert")
}

func TestChurnRiskTriggerUsesEnrichment(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store)

	p := &domain.RelationshipProfile{
		ContactKey:        "cust@co.com",
		RelationshipScore: 70,
		TotalInteractions: 50,
		LastInteractionAt: tsAgo(24 * time.Hour),
	}
	risk := 0.85
	leads := map[string]*domain.LeadScore{
		"cust@co.com": {ContactKey: "cust@co.com", Status: domain.LeadCustomer, AIChurnRisk: &risk},
	}

	res := m.Sweep([]*domain.RelationshipProfile{p}, leads)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, domain.AlertChurnRisk, store.ListAlerts()[0].AlertType)

	// Without the enrichment the trigger never fires.
	store2 := newFakeStore()
	m2 := newTestManager(store2)
	res = m2.Sweep([]*domain.RelationshipProfile{p}, nil)
	assert.Equal(t, 0, res.Created)
}

func TestUpcomingDateTrigger(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store)

	p := &domain.RelationshipProfile{
		ContactKey:        "bday@co.com",
		ContactName:       "Sam Lee",
		RelationshipScore: 70,
		TotalInteractions: 5,
		LastInteractionAt: tsAgo(24 * time.Hour),
		Birthday:          "03-18", // three days out from testNow
	}

	res := m.Sweep([]*domain.RelationshipProfile{p}, nil)
	assert.Equal(t, 1, res.Created)
	alert := store.ListAlerts()[0]
	assert.Equal(t, domain.AlertUpcomingDate, alert.AlertType)
	assert.Equal(t, domain.SeverityInfo, alert.Severity)
	assert.Contains(t, alert.Title, "Birthday")
}
