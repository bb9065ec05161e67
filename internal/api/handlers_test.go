package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qntmpulse/relationship-engine/internal/config"
	"github.com/qntmpulse/relationship-engine/internal/domain"
	"github.com/qntmpulse/relationship-engine/internal/engine"
	"github.com/qntmpulse/relationship-engine/internal/storage"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*engine.Engine, http.Handler) {
	t.Helper()
	store, err := storage.New(context.Background(), config.SnapshotConfig{})
	require.NoError(t, err)
	eng := engine.New(config.Default(), store, nil)
	eng.SetClock(func() time.Time { return testNow })
	srv := NewServer(config.Default().Server, eng)
	return eng, srv.Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(out))
}

func seedContact(t *testing.T, eng *engine.Engine, key string) {
	t.Helper()
	for i, kind := range []domain.InteractionKind{
		domain.InteractionEmailSent,
		domain.InteractionEmailReceived,
		domain.InteractionEmailSent,
		domain.InteractionEmailReceived,
		domain.InteractionMeeting,
	} {
		require.NoError(t, eng.RecordEvent(domain.InteractionEvent{
			ContactKey: key,
			Kind:       kind,
			Timestamp:  testNow.Add(-time.Duration(i+1) * 24 * time.Hour),
		}))
	}
}

func TestHealthCheck(t *testing.T) {
	_, handler := newTestServer(t)

	rec := doJSON(t, handler, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	assert.Equal(t, "healthy", body["status"])
}

func TestIngestEvents(t *testing.T) {
	eng, handler := newTestServer(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/events", map[string]interface{}{
		"events": []map[string]interface{}{
			{
				"contact_key": "jane@co.com",
				"kind":        "email_received",
				"timestamp":   testNow.Add(-time.Hour).Format(time.RFC3339),
				"metadata":    map[string]string{"contact_name": "Jane Doe"},
			},
			{
				"contact_key": "bad@co.com",
				"kind":        "carrier_pigeon",
				"timestamp":   testNow.Format(time.RFC3339),
			},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Accepted int `json:"accepted"`
		Failed   int `json:"failed"`
		Failures []struct {
			Index int    `json:"index"`
			Error string `json:"error"`
		} `json:"failures"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, 1, body.Accepted)
	assert.Equal(t, 1, body.Failed)
	require.Len(t, body.Failures, 1)
	assert.Equal(t, 1, body.Failures[0].Index)

	// The valid event landed.
	p, err := eng.GetProfile("jane@co.com")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", p.ContactName)
}

func TestIngestRejectsEmptyBatch(t *testing.T) {
	_, handler := newTestServer(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/events", map[string]interface{}{
		"events": []map[string]interface{}{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetProfile(t *testing.T) {
	eng, handler := newTestServer(t)
	seedContact(t, eng, "jane@co.com")

	rec := doJSON(t, handler, http.MethodGet, "/api/profiles/jane@co.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var p domain.RelationshipProfile
	decodeBody(t, rec, &p)
	assert.Equal(t, "jane@co.com", p.ContactKey)
	assert.Greater(t, p.RelationshipScore, 0)

	rec = doJSON(t, handler, http.MethodGet, "/api/profiles/nobody@co.com", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListProfilesOrdering(t *testing.T) {
	eng, handler := newTestServer(t)
	seedContact(t, eng, "active@co.com")
	require.NoError(t, eng.RecordEvent(domain.InteractionEvent{
		ContactKey: "quiet@co.com",
		Kind:       domain.InteractionEmailReceived,
		Timestamp:  testNow.Add(-60 * 24 * time.Hour),
	}))

	rec := doJSON(t, handler, http.MethodGet, "/api/profiles", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Profiles []domain.RelationshipProfile `json:"profiles"`
		Count    int                          `json:"count"`
	}
	decodeBody(t, rec, &body)
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "active@co.com", body.Profiles[0].ContactKey)
}

func TestGetLeadScore(t *testing.T) {
	eng, handler := newTestServer(t)
	seedContact(t, eng, "jane@co.com")

	rec := doJSON(t, handler, http.MethodGet, "/api/profiles/jane@co.com/lead", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var lead domain.LeadScore
	decodeBody(t, rec, &lead)
	assert.Greater(t, lead.Score, 0)

	rec = doJSON(t, handler, http.MethodGet, "/api/profiles/nobody@co.com/lead", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetVIP(t *testing.T) {
	eng, handler := newTestServer(t)
	seedContact(t, eng, "jane@co.com")

	rec := doJSON(t, handler, http.MethodPut, "/api/profiles/jane@co.com/vip", vipRequest{VIP: true})
	require.Equal(t, http.StatusOK, rec.Code)

	var p domain.RelationshipProfile
	decodeBody(t, rec, &p)
	assert.True(t, p.IsVIP)

	rec = doJSON(t, handler, http.MethodPut, "/api/profiles/nobody@co.com/vip", vipRequest{VIP: true})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMarkCustomer(t *testing.T) {
	eng, handler := newTestServer(t)
	seedContact(t, eng, "jane@co.com")

	rec := doJSON(t, handler, http.MethodPost, "/api/profiles/jane@co.com/customer", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var lead domain.LeadScore
	decodeBody(t, rec, &lead)
	assert.Equal(t, domain.LeadCustomer, lead.Status)
	require.NotNil(t, lead.BecameCustomerAt)

	// No lead score yet for an unknown contact.
	rec = doJSON(t, handler, http.MethodPost, "/api/profiles/nobody@co.com/customer", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSmartListEndpoints(t *testing.T) {
	eng, handler := newTestServer(t)
	seedContact(t, eng, "jane@co.com")

	rec := doJSON(t, handler, http.MethodGet, "/api/smartlists", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var counts struct {
		Counts map[domain.SmartListType]int `json:"counts"`
	}
	decodeBody(t, rec, &counts)
	assert.Len(t, counts.Counts, len(domain.AllSmartLists()))
	assert.GreaterOrEqual(t, counts.Counts[domain.ListRecentContacts], 1)

	rec = doJSON(t, handler, http.MethodGet, "/api/smartlists/recent_contacts", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var members struct {
		Count int `json:"count"`
	}
	decodeBody(t, rec, &members)
	assert.GreaterOrEqual(t, members.Count, 1)

	rec = doJSON(t, handler, http.MethodGet, "/api/smartlists/not_a_list", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// seedStaleContact creates a contact whose score has decayed enough for
// the sweep to raise an alert.
func seedStaleContact(t *testing.T, eng *engine.Engine, key string) {
	t.Helper()
	for _, ago := range []time.Duration{42, 41, 40} {
		require.NoError(t, eng.RecordEvent(domain.InteractionEvent{
			ContactKey: key,
			Kind:       domain.InteractionEmailReceived,
			Timestamp:  testNow.Add(-ago * 24 * time.Hour),
		}))
	}
}

func TestAlertLifecycleEndpoints(t *testing.T) {
	eng, handler := newTestServer(t)
	seedStaleContact(t, eng, "quiet@co.com")
	eng.SweepAlerts()

	rec := doJSON(t, handler, http.MethodGet, "/api/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Alerts []domain.RelationshipAlert `json:"alerts"`
		Count  int                        `json:"count"`
	}
	decodeBody(t, rec, &list)
	require.GreaterOrEqual(t, list.Count, 1)
	id := list.Alerts[0].ID

	// Snooze, then dismiss.
	rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/alerts/%s/snooze", id),
		snoozeAlertRequest{Until: testNow.Add(48 * time.Hour)})
	require.Equal(t, http.StatusOK, rec.Code)

	var alert domain.RelationshipAlert
	decodeBody(t, rec, &alert)
	assert.Equal(t, domain.AlertSnoozed, alert.Status)

	rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/alerts/%s/dismiss", id),
		dismissAlertRequest{Reason: "not relevant"})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &alert)
	assert.Equal(t, domain.AlertDismissed, alert.Status)

	// Snoozing a dismissed alert is a conflict.
	rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/alerts/%s/snooze", id),
		snoozeAlertRequest{Until: testNow.Add(72 * time.Hour)})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/alerts/no-such-id/dismiss", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlertActionEndpoint(t *testing.T) {
	eng, handler := newTestServer(t)
	seedStaleContact(t, eng, "quiet@co.com")
	eng.SweepAlerts()

	alertsList := eng.ListAlerts()
	require.NotEmpty(t, alertsList)
	id := alertsList[0].ID

	rec := doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/alerts/%s/action", id),
		alertActionRequest{ActionType: "compose"})
	require.Equal(t, http.StatusOK, rec.Code)

	var alert domain.RelationshipAlert
	decodeBody(t, rec, &alert)
	assert.Equal(t, domain.AlertDismissed, alert.Status)
	assert.Equal(t, "action_taken:compose", alert.DismissReason)

	// Missing action_type is a bad request.
	rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/alerts/%s/action", id),
		alertActionRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func seedDuplicatePair(t *testing.T, eng *engine.Engine) {
	t.Helper()
	meta := map[string]string{"contact_name": "Jane Doe", "phone": "+1 (555) 010-2000"}
	for _, key := range []string{"jane.doe@co.com", "jdoe@co.com"} {
		require.NoError(t, eng.RecordEvent(domain.InteractionEvent{
			ContactKey: key,
			Kind:       domain.InteractionEmailReceived,
			Timestamp:  testNow.Add(-24 * time.Hour),
			Metadata:   meta,
		}))
	}
}

func TestDuplicateEndpoints(t *testing.T) {
	eng, handler := newTestServer(t)
	seedDuplicatePair(t, eng)

	rec := doJSON(t, handler, http.MethodGet, "/api/duplicates", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var groups struct {
		Groups []domain.DuplicateGroup `json:"groups"`
		Count  int                     `json:"count"`
	}
	decodeBody(t, rec, &groups)
	require.GreaterOrEqual(t, groups.Count, 1)

	rec = doJSON(t, handler, http.MethodPost, "/api/duplicates/merge", mergeRequest{
		PrimaryKey:    "jane.doe@co.com",
		DuplicateKeys: []string{"jdoe@co.com"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var merged domain.RelationshipProfile
	decodeBody(t, rec, &merged)
	assert.Equal(t, "jane.doe@co.com", merged.ContactKey)
	assert.Equal(t, 2, merged.TotalInteractions)

	// The absorbed profile is gone.
	rec = doJSON(t, handler, http.MethodGet, "/api/profiles/jdoe@co.com", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMergeConflictMapsToConflict(t *testing.T) {
	eng, handler := newTestServer(t)
	seedDuplicatePair(t, eng)
	seedContact(t, eng, "stranger@other.com")

	rec := doJSON(t, handler, http.MethodPost, "/api/duplicates/merge", mergeRequest{
		PrimaryKey:    "stranger@other.com",
		DuplicateKeys: []string{"jdoe@co.com"},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDismissDuplicateEndpoint(t *testing.T) {
	eng, handler := newTestServer(t)
	seedDuplicatePair(t, eng)

	rec := doJSON(t, handler, http.MethodPost, "/api/duplicates/dismiss", dismissDuplicateRequest{
		MemberKeys: []string{"jane.doe@co.com", "jdoe@co.com"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Empty(t, eng.ListDuplicateGroups(), "dismissed group should not be suggested again")

	rec = doJSON(t, handler, http.MethodPost, "/api/duplicates/dismiss", dismissDuplicateRequest{
		MemberKeys: []string{"only-one@co.com"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshEndpoint(t *testing.T) {
	eng, handler := newTestServer(t)
	seedContact(t, eng, "jane@co.com")
	seedContact(t, eng, "john@co.com")

	rec := doJSON(t, handler, http.MethodPost, "/api/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result engine.RefreshResult
	decodeBody(t, rec, &result)
	assert.Equal(t, 2, result.Processed)
	assert.Zero(t, result.Failed)
}
