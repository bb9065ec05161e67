// Package alerts raises and manages the lifecycle of actionable alerts
// derived from profile state.
package alerts

import (
	"fmt"
	"time"

	"github.com/qntmpulse/relationship-engine/internal/config"
	"github.com/qntmpulse/relationship-engine/internal/domain"
)

// TriggerContext is the snapshot a trigger predicate evaluates against.
type TriggerContext struct {
	Profile *domain.RelationshipProfile
	Lead    *domain.LeadScore
	Now     time.Time
	Cfg     config.AlertsConfig
}

// Firing describes one fired trigger: the alert content to raise.
type Firing struct {
	Severity        domain.AlertSeverity
	Title           string
	Description     string
	SuggestedAction string
	ActionType      string
}

// Trigger is a tagged rule evaluated by the sweep. Like smart-list
// rules, new alert conditions are registered entries, not new branches.
type Trigger struct {
	Type     domain.AlertType
	Evaluate func(ctx TriggerContext) (Firing, bool)
}

// StandardTriggers returns the built-in alert trigger table.
func StandardTriggers() []Trigger {
	return []Trigger{
		{
			Type: domain.AlertScoreDecay,
			Evaluate: func(ctx TriggerContext) (Firing, bool) {
				p := ctx.Profile
				if p.TotalInteractions == 0 || p.RelationshipScore >= ctx.Cfg.ScoreDecayThreshold {
					return Firing{}, false
				}
				return Firing{
					Severity:        domain.SeverityWarning,
					Title:           fmt.Sprintf("Relationship with %s is fading", displayName(p)),
					Description:     fmt.Sprintf("Score dropped to %d.", p.RelationshipScore),
					SuggestedAction: "Reach out with a personal note to rebuild momentum.",
					ActionType:      "compose",
				}, true
			},
		},
		{
			Type: domain.AlertFollowUpOverdue,
			Evaluate: func(ctx TriggerContext) (Firing, bool) {
				p := ctx.Profile
				sent := p.LastEmailSentAt
				if sent == nil {
					return Firing{}, false
				}
				if p.LastEmailReceivedAt != nil && p.LastEmailReceivedAt.After(*sent) {
					return Firing{}, false
				}
				overdue := time.Duration(ctx.Cfg.FollowUpOverdueDays) * 24 * time.Hour
				if ctx.Now.Sub(*sent) <= overdue {
					return Firing{}, false
				}
				return Firing{
					Severity:        domain.SeverityWarning,
					Title:           fmt.Sprintf("No reply from %s", displayName(p)),
					Description:     fmt.Sprintf("Your last email has gone unanswered for over %d days.", ctx.Cfg.FollowUpOverdueDays),
					SuggestedAction: "Send a short follow-up.",
					ActionType:      "compose",
				}, true
			},
		},
		{
			Type: domain.AlertVIPSilent,
			Evaluate: func(ctx TriggerContext) (Firing, bool) {
				p := ctx.Profile
				if !p.IsVIP || p.LastInteractionAt == nil {
					return Firing{}, false
				}
				silent := time.Duration(ctx.Cfg.VIPSilentDays) * 24 * time.Hour
				if ctx.Now.Sub(*p.LastInteractionAt) <= silent {
					return Firing{}, false
				}
				return Firing{
					Severity:        domain.SeverityCritical,
					Title:           fmt.Sprintf("VIP %s has gone quiet", displayName(p)),
					Description:     fmt.Sprintf("No interaction in over %d days.", ctx.Cfg.VIPSilentDays),
					SuggestedAction: "Schedule a check-in call.",
					ActionType:      "schedule",
				}, true
			},
		},
		{
			Type: domain.AlertUpcomingDate,
			Evaluate: func(ctx TriggerContext) (Firing, bool) {
				p := ctx.Profile
				occasion, days, ok := nextOccasion(p, ctx.Now, ctx.Cfg.UpcomingDateDays)
				if !ok {
					return Firing{}, false
				}
				return Firing{
					Severity:        domain.SeverityInfo,
					Title:           fmt.Sprintf("%s for %s in %d days", occasion, displayName(p), days),
					SuggestedAction: "Send your wishes.",
					ActionType:      "compose",
				}, true
			},
		},
		{
			Type: domain.AlertChurnRisk,
			Evaluate: func(ctx TriggerContext) (Firing, bool) {
				lead := ctx.Lead
				if lead == nil || lead.AIChurnRisk == nil || *lead.AIChurnRisk < ctx.Cfg.ChurnRiskThreshold {
					return Firing{}, false
				}
				return Firing{
					Severity:        domain.SeverityCritical,
					Title:           fmt.Sprintf("%s is at risk of churning", displayName(ctx.Profile)),
					Description:     fmt.Sprintf("Estimated churn risk %.0f%%.", *lead.AIChurnRisk*100),
					SuggestedAction: "Offer a retention touchpoint.",
					ActionType:      "schedule",
				}, true
			},
		},
	}
}

func displayName(p *domain.RelationshipProfile) string {
	if p.ContactName != "" {
		return p.ContactName
	}
	return p.ContactKey
}

// nextOccasion finds the nearest birthday/anniversary within the lookout
// window. Dates are stored as "MM-DD".
func nextOccasion(p *domain.RelationshipProfile, now time.Time, lookoutDays int) (string, int, bool) {
	bestName, bestDays, found := "", 0, false
	check := func(name, mmdd string) {
		days, ok := daysUntil(mmdd, now)
		if !ok || days > lookoutDays {
			return
		}
		if !found || days < bestDays {
			bestName, bestDays, found = name, days, true
		}
	}
	check("Birthday", p.Birthday)
	check("Anniversary", p.Anniversary)
	return bestName, bestDays, found
}

func daysUntil(mmdd string, now time.Time) (int, bool) {
	t, err := time.Parse("01-02", mmdd)
	if err != nil {
		return 0, false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	next := time.Date(now.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	if next.Before(today) {
		next = next.AddDate(1, 0, 0)
	}
	return int(next.Sub(today).Hours() / 24), true
}
