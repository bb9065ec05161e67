package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qntmpulse/relationship-engine/internal/config"
	"github.com/qntmpulse/relationship-engine/internal/dedup"
	"github.com/qntmpulse/relationship-engine/internal/domain"
	"github.com/qntmpulse/relationship-engine/internal/enrich"
	"github.com/qntmpulse/relationship-engine/internal/storage"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store, err := storage.New(context.Background(), config.SnapshotConfig{})
	require.NoError(t, err)
	e := New(config.Default(), store, nil)
	e.SetClock(func() time.Time { return testNow })
	return e
}

func event(key string, kind domain.InteractionKind, ago time.Duration) domain.InteractionEvent {
	return domain.InteractionEvent{
		ContactKey: key,
		Kind:       kind,
		Timestamp:  testNow.Add(-ago),
	}
}

// seedConversation records a back-and-forth email thread dense enough
// to clear the lead scoring minimum.
func seedConversation(t *testing.T, e *Engine, key string) {
	t.Helper()
	for i, kind := range []domain.InteractionKind{
		domain.InteractionEmailSent,
		domain.InteractionEmailReceived,
		domain.InteractionEmailSent,
		domain.InteractionEmailReceived,
		domain.InteractionMeeting,
	} {
		require.NoError(t, e.RecordEvent(event(key, kind, time.Duration(i+1)*24*time.Hour)))
	}
}

func TestRecordEventCreatesProfile(t *testing.T) {
	e := newTestEngine(t)

	err := e.RecordEvent(domain.InteractionEvent{
		ContactKey: "jane@co.com",
		Kind:       domain.InteractionEmailReceived,
		Timestamp:  testNow.Add(-time.Hour),
		Metadata: map[string]string{
			"contact_name": "Jane Doe",
			"company":      "Acme",
		},
	})
	require.NoError(t, err)

	p, err := e.GetProfile("jane@co.com")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", p.ContactName)
	assert.Equal(t, "Acme", p.Company)
	assert.Equal(t, "jane@co.com", p.ContactEmail, "email inferred from the contact key")
	assert.Equal(t, 1, p.TotalInteractions)
	assert.GreaterOrEqual(t, p.RelationshipScore, 0)
	assert.LessOrEqual(t, p.RelationshipScore, 100)
}

func TestRecordEventRejectsInvalid(t *testing.T) {
	e := newTestEngine(t)
	err := e.RecordEvent(domain.InteractionEvent{Kind: domain.InteractionEmailSent, Timestamp: testNow})
	assert.Error(t, err)
}

func TestGetProfileNotFound(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.GetProfile("nobody@co.com")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestLeadScoreAppearsAfterMinimum(t *testing.T) {
	e := newTestEngine(t)

	require.NoError(t, e.RecordEvent(event("jane@co.com", domain.InteractionEmailSent, 24*time.Hour)))
	_, err := e.GetLeadScore("jane@co.com")
	assert.ErrorIs(t, err, ErrLeadNotFound, "below the interaction minimum there is no lead score")

	seedConversation(t, e, "jane@co.com")
	lead, err := e.GetLeadScore("jane@co.com")
	require.NoError(t, err)
	assert.Equal(t, "jane@co.com", lead.ContactKey)
	assert.GreaterOrEqual(t, lead.Score, 0)
	assert.LessOrEqual(t, lead.Score, 100)
	assert.Equal(t, domain.GradeForScore(lead.Score), lead.Grade)
}

func TestKeywordSignalsFlowIntoLead(t *testing.T) {
	e := newTestEngine(t)
	seedConversation(t, e, "jane@co.com")

	require.NoError(t, e.RecordEvent(domain.InteractionEvent{
		ContactKey: "jane@co.com",
		Kind:       domain.InteractionEmailReceived,
		Timestamp:  testNow.Add(-time.Hour),
		Metadata:   map[string]string{"subject": "Question about pricing"},
	}))

	lead, err := e.GetLeadScore("jane@co.com")
	require.NoError(t, err)

	var found bool
	for _, s := range lead.BuyingSignals {
		if s.Signal == "pricing_inquiry" {
			found = true
		}
	}
	assert.True(t, found, "pricing keyword in an inbound email becomes a buying signal")
}

func TestListSmartListCounts(t *testing.T) {
	e := newTestEngine(t)
	seedConversation(t, e, "jane@co.com")

	counts := e.ListSmartListCounts()
	assert.Len(t, counts, len(domain.AllSmartLists()), "every list reports a count, zero included")
	assert.GreaterOrEqual(t, counts[domain.ListRecentContacts], 1)
}

func TestSetVIPAppliesFloor(t *testing.T) {
	e := newTestEngine(t)
	// Long-stale contact whose score has decayed to near zero.
	require.NoError(t, e.RecordEvent(event("old@co.com", domain.InteractionEmailSent, 80*24*time.Hour)))

	before, err := e.GetProfile("old@co.com")
	require.NoError(t, err)
	assert.Less(t, before.RelationshipScore, config.Default().Scoring.VIPFloor)

	after, err := e.SetVIP("old@co.com", true)
	require.NoError(t, err)
	assert.True(t, after.IsVIP)
	assert.GreaterOrEqual(t, after.RelationshipScore, config.Default().Scoring.VIPFloor)
}

func TestMarkCustomerSticky(t *testing.T) {
	e := newTestEngine(t)
	seedConversation(t, e, "jane@co.com")

	lead, err := e.MarkCustomer("jane@co.com")
	require.NoError(t, err)
	assert.Equal(t, domain.LeadCustomer, lead.Status)
	require.NotNil(t, lead.BecameCustomerAt)

	// Another event triggers a recompute; customer status survives it.
	require.NoError(t, e.RecordEvent(event("jane@co.com", domain.InteractionEmailSent, time.Hour)))
	lead, err = e.GetLeadScore("jane@co.com")
	require.NoError(t, err)
	assert.Equal(t, domain.LeadCustomer, lead.Status)

	_, err = e.MarkCustomer("nobody@co.com")
	assert.ErrorIs(t, err, ErrLeadNotFound)
}

func seedDuplicatePair(t *testing.T, e *Engine) {
	t.Helper()
	require.NoError(t, e.RecordEvent(domain.InteractionEvent{
		ContactKey: "jane.doe@co.com",
		Kind:       domain.InteractionEmailSent,
		Timestamp:  testNow.Add(-24 * time.Hour),
		Metadata:   map[string]string{"contact_name": "Jane Doe", "phone": "+1 (555) 123-4567"},
	}))
	require.NoError(t, e.RecordEvent(domain.InteractionEvent{
		ContactKey: "jdoe@co.com",
		Kind:       domain.InteractionEmailReceived,
		Timestamp:  testNow.Add(-48 * time.Hour),
		Metadata:   map[string]string{"contact_name": "Jane Doe", "phone": "555-123-4567"},
	}))
}

func TestListDuplicateGroups(t *testing.T) {
	e := newTestEngine(t)
	seedDuplicatePair(t, e)

	groups := e.ListDuplicateGroups()
	require.Len(t, groups, 1)
	assert.True(t, groups[0].Contains("jane.doe@co.com"))
	assert.True(t, groups[0].Contains("jdoe@co.com"))
}

func TestMergeDuplicates(t *testing.T) {
	e := newTestEngine(t)
	seedDuplicatePair(t, e)

	merged, err := e.MergeDuplicates("jane.doe@co.com", []string{"jdoe@co.com"})
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@co.com", merged.ContactKey)
	assert.Equal(t, 2, merged.TotalInteractions, "counters are additive across members")

	_, err = e.GetProfile("jdoe@co.com")
	assert.ErrorIs(t, err, ErrProfileNotFound, "absorbed profile is gone")

	assert.Empty(t, e.ListDuplicateGroups(), "merged primary is not a self-duplicate")
}

func TestMergeConflictPrimaryNotInGroup(t *testing.T) {
	e := newTestEngine(t)
	seedDuplicatePair(t, e)
	require.NoError(t, e.RecordEvent(event("stranger@other.com", domain.InteractionEmailSent, time.Hour)))

	_, err := e.MergeDuplicates("stranger@other.com", []string{"jdoe@co.com"})
	assert.ErrorIs(t, err, dedup.ErrMergeConflict)

	// Nothing changed.
	_, err = e.GetProfile("jdoe@co.com")
	assert.NoError(t, err)

	_, err = e.MergeDuplicates("jane.doe@co.com", []string{"jane.doe@co.com"})
	assert.ErrorIs(t, err, dedup.ErrMergeConflict, "primary cannot be its own duplicate")
}

func TestDismissDuplicateIsSticky(t *testing.T) {
	e := newTestEngine(t)
	seedDuplicatePair(t, e)

	groups := e.ListDuplicateGroups()
	require.Len(t, groups, 1)

	e.DismissDuplicate(groups[0].MemberKeys())
	assert.Empty(t, e.ListDuplicateGroups(), "dismissed member set never resurfaces")
}

func TestRefreshRecomputesAll(t *testing.T) {
	e := newTestEngine(t)
	seedConversation(t, e, "jane@co.com")
	seedConversation(t, e, "john@co.com")

	res := e.Refresh(context.Background())
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 0, res.Failed)
	assert.Empty(t, res.Failures)
}

func TestRefreshCanceledContext(t *testing.T) {
	e := newTestEngine(t)
	seedConversation(t, e, "jane@co.com")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := e.Refresh(ctx)
	assert.Equal(t, 0, res.Failed)
}

type stubEnricher struct{ calls int }

func (s *stubEnricher) Enrich(ctx context.Context, p *domain.RelationshipProfile, l *domain.LeadScore) (*enrich.Enrichment, error) {
	s.calls++
	return &enrich.Enrichment{ConversionProbability: 0.7, ChurnRisk: 0.2, NextAction: "Send a proposal."}, nil
}

func TestRefreshEnrichmentPass(t *testing.T) {
	store, err := storage.New(context.Background(), config.SnapshotConfig{})
	require.NoError(t, err)
	stub := &stubEnricher{}
	e := New(config.Default(), store, stub)
	e.SetClock(func() time.Time { return testNow })
	seedConversation(t, e, "jane@co.com")

	res := e.Refresh(context.Background())
	assert.Equal(t, 1, res.Enriched)
	assert.Equal(t, 1, stub.calls)

	lead, err := e.GetLeadScore("jane@co.com")
	require.NoError(t, err)
	require.NotNil(t, lead.AIConversionProbability)
	assert.InDelta(t, 0.7, *lead.AIConversionProbability, 0.001)
	assert.Equal(t, "Send a proposal.", lead.AINextActionPrediction)
}

func TestAlertLifecycleThroughEngine(t *testing.T) {
	e := newTestEngine(t)
	// Decayed contact to fire the score-decay trigger.
	require.NoError(t, e.RecordEvent(event("fading@co.com", domain.InteractionEmailReceived, 40*24*time.Hour)))

	res := e.SweepAlerts()
	require.GreaterOrEqual(t, res.Created, 1)

	alerts := e.ListAlerts()
	require.NotEmpty(t, alerts)
	id := alerts[0].ID

	snoozed, err := e.SnoozeAlert(id, testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, domain.AlertSnoozed, snoozed.Status)

	dismissed, err := e.DismissAlert(id, "not now")
	require.NoError(t, err)
	assert.Equal(t, domain.AlertDismissed, dismissed.Status)
}
