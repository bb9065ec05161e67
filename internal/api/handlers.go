package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/qntmpulse/relationship-engine/internal/alerts"
	"github.com/qntmpulse/relationship-engine/internal/dedup"
	"github.com/qntmpulse/relationship-engine/internal/domain"
	"github.com/qntmpulse/relationship-engine/internal/engine"
	"github.com/qntmpulse/relationship-engine/internal/worker"
)

// Handlers contains all HTTP handlers.
type Handlers struct {
	engine    *engine.Engine
	sweeper   *worker.Sweeper
	startTime time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(eng *engine.Engine) *Handlers {
	return &Handlers{
		engine:    eng,
		startTime: time.Now(),
	}
}

// SetSweeper wires the background sweeper so /api/status can report its
// counters. Optional; nil is fine for API-only deployments.
func (h *Handlers) SetSweeper(s *worker.Sweeper) {
	h.sweeper = s
}

// HealthCheck reports liveness.
//
//	GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"uptime":   time.Since(h.startTime).String(),
		"profiles": len(h.engine.ListProfiles()),
	})
}

// GetStatus reports the background sweeper counters.
//
//	GET /api/status
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{"sweeper": "not_configured"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"sweeper": h.sweeper.Stats()})
}

// ListProfiles returns all relationship profiles, highest score first.
//
//	GET /api/profiles
func (h *Handlers) ListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles := h.engine.ListProfiles()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"profiles": profiles,
		"count":    len(profiles),
	})
}

// GetProfile returns one relationship profile.
//
//	GET /api/profiles/{key}
func (h *Handlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.engine.GetProfile(chi.URLParam(r, "key"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

// GetLeadScore returns the lead score for one contact.
//
//	GET /api/profiles/{key}/lead
func (h *Handlers) GetLeadScore(w http.ResponseWriter, r *http.Request) {
	lead, err := h.engine.GetLeadScore(chi.URLParam(r, "key"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, lead)
}

type vipRequest struct {
	VIP bool `json:"vip"`
}

// SetVIP toggles the VIP flag on a profile and recomputes its scores so
// the VIP floor applies immediately.
//
//	PUT /api/profiles/{key}/vip
func (h *Handlers) SetVIP(w http.ResponseWriter, r *http.Request) {
	var req vipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	profile, err := h.engine.SetVIP(chi.URLParam(r, "key"), req.VIP)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

// MarkCustomer records the business event that a lead converted.
//
//	POST /api/profiles/{key}/customer
func (h *Handlers) MarkCustomer(w http.ResponseWriter, r *http.Request) {
	lead, err := h.engine.MarkCustomer(chi.URLParam(r, "key"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, lead)
}

// GetSmartLists returns the membership count for every smart list.
//
//	GET /api/smartlists
func (h *Handlers) GetSmartLists(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"counts": h.engine.ListSmartListCounts(),
	})
}

// GetSmartListMembers returns the profiles currently in one smart list.
//
//	GET /api/smartlists/{list}
func (h *Handlers) GetSmartListMembers(w http.ResponseWriter, r *http.Request) {
	list := domain.SmartListType(chi.URLParam(r, "list"))
	if !validSmartList(list) {
		respondError(w, http.StatusNotFound, "unknown smart list")
		return
	}
	members := h.engine.SmartListMembers(list)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"list":    list,
		"members": members,
		"count":   len(members),
	})
}

func validSmartList(list domain.SmartListType) bool {
	for _, l := range domain.AllSmartLists() {
		if l == list {
			return true
		}
	}
	return false
}

// ListAlerts returns all alerts, newest first.
//
//	GET /api/alerts
func (h *Handlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	list := h.engine.ListAlerts()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": list,
		"count":  len(list),
	})
}

type dismissAlertRequest struct {
	Reason string `json:"reason"`
}

// DismissAlert dismisses an alert with an optional reason.
//
//	POST /api/alerts/{id}/dismiss
func (h *Handlers) DismissAlert(w http.ResponseWriter, r *http.Request) {
	var req dismissAlertRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	alert, err := h.engine.DismissAlert(chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, alert)
}

type snoozeAlertRequest struct {
	Until time.Time `json:"until"`
}

// SnoozeAlert snoozes an active alert until the given time.
//
//	POST /api/alerts/{id}/snooze
func (h *Handlers) SnoozeAlert(w http.ResponseWriter, r *http.Request) {
	var req snoozeAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Until.IsZero() {
		respondError(w, http.StatusBadRequest, "until must be an RFC3339 timestamp")
		return
	}
	alert, err := h.engine.SnoozeAlert(chi.URLParam(r, "id"), req.Until)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, alert)
}

type alertActionRequest struct {
	ActionType string `json:"action_type"`
}

// AlertAction acknowledges that the alert's suggested action was taken.
//
//	POST /api/alerts/{id}/action
func (h *Handlers) AlertAction(w http.ResponseWriter, r *http.Request) {
	var req alertActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ActionType == "" {
		respondError(w, http.StatusBadRequest, "action_type is required")
		return
	}
	alert, err := h.engine.HandleAlertAction(chi.URLParam(r, "id"), req.ActionType)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, alert)
}

// ListDuplicateGroups returns the candidate duplicate groups awaiting
// review.
//
//	GET /api/duplicates
func (h *Handlers) ListDuplicateGroups(w http.ResponseWriter, r *http.Request) {
	groups := h.engine.ListDuplicateGroups()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"groups": groups,
		"count":  len(groups),
	})
}

type mergeRequest struct {
	PrimaryKey    string   `json:"primary_key"`
	DuplicateKeys []string `json:"duplicate_keys"`
}

// MergeDuplicates merges duplicate profiles into the primary.
//
//	POST /api/duplicates/merge
func (h *Handlers) MergeDuplicates(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PrimaryKey == "" {
		respondError(w, http.StatusBadRequest, "primary_key and duplicate_keys are required")
		return
	}
	merged, err := h.engine.MergeDuplicates(req.PrimaryKey, req.DuplicateKeys)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, merged)
}

type dismissDuplicateRequest struct {
	MemberKeys []string `json:"member_keys"`
}

// DismissDuplicate marks a duplicate group as not-a-duplicate; the same
// member set is never suggested again.
//
//	POST /api/duplicates/dismiss
func (h *Handlers) DismissDuplicate(w http.ResponseWriter, r *http.Request) {
	var req dismissDuplicateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.MemberKeys) < 2 {
		respondError(w, http.StatusBadRequest, "member_keys must name at least two contacts")
		return
	}
	h.engine.DismissDuplicate(req.MemberKeys)
	respondJSON(w, http.StatusOK, map[string]string{"status": "dismissed"})
}

type ingestRequest struct {
	Events []domain.InteractionEvent `json:"events"`
}

type ingestFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// IngestEvents accepts a batch of interaction events from the data
// service. Invalid events are reported per-index; the rest of the batch
// is still processed.
//
//	POST /api/events
func (h *Handlers) IngestEvents(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Events) == 0 {
		respondError(w, http.StatusBadRequest, "events must not be empty")
		return
	}

	var failures []ingestFailure
	accepted := 0
	for i, event := range req.Events {
		if err := h.engine.RecordEvent(event); err != nil {
			failures = append(failures, ingestFailure{Index: i, Error: err.Error()})
			continue
		}
		accepted++
	}

	status := http.StatusOK
	if accepted == 0 {
		status = http.StatusBadRequest
	}
	respondJSON(w, status, map[string]interface{}{
		"accepted": accepted,
		"failed":   len(failures),
		"failures": failures,
	})
}

// Refresh recomputes all profiles and runs the enrichment pass.
//
//	POST /api/refresh
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	result := h.engine.Refresh(r.Context())
	respondJSON(w, http.StatusOK, result)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondEngineError maps engine sentinel errors onto HTTP statuses.
func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrProfileNotFound),
		errors.Is(err, engine.ErrLeadNotFound),
		errors.Is(err, alerts.ErrAlertNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, alerts.ErrInvalidTransition),
		errors.Is(err, dedup.ErrMergeConflict):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
