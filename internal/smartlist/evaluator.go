// Package smartlist classifies contacts into named segments from the
// current profile and lead-score snapshot. Classification is pure and
// stateless: membership is recomputed on every query, never stored.
package smartlist

import (
	"time"

	"github.com/qntmpulse/relationship-engine/internal/domain"
)

// Input is one contact's snapshot at classification time. Lead may be
// nil for contacts without enough history to carry a lead score.
type Input struct {
	Profile *domain.RelationshipProfile
	Lead    *domain.LeadScore
	Now     time.Time
}

// Rule is a tagged membership predicate. New segments are registered
// rules, not new branches in a conditional chain.
type Rule struct {
	Type  domain.SmartListType
	Match func(in Input) bool
}

// Evaluator classifies contacts against a registered rule table.
type Evaluator struct {
	rules []Rule
}

// NewEvaluator creates an evaluator with the standard segment rules.
func NewEvaluator() *Evaluator {
	e := &Evaluator{}
	for _, r := range standardRules() {
		e.Register(r)
	}
	return e
}

// Register appends a rule to the table.
func (e *Evaluator) Register(r Rule) {
	e.rules = append(e.rules, r)
}

// Classify returns the set of segments the contact belongs to, in the
// rule table's registration order. A contact can be in several at once.
func (e *Evaluator) Classify(profile *domain.RelationshipProfile, lead *domain.LeadScore, now time.Time) []domain.SmartListType {
	if profile == nil {
		return nil
	}
	in := Input{Profile: profile, Lead: lead, Now: now}

	var lists []domain.SmartListType
	for _, r := range e.rules {
		if r.Match(in) {
			lists = append(lists, r.Type)
		}
	}
	return lists
}

// Counts re-derives per-segment membership counts from the full contact
// population. leads is keyed by contact key; missing entries mean the
// contact has no lead score.
func (e *Evaluator) Counts(profiles []*domain.RelationshipProfile, leads map[string]*domain.LeadScore, now time.Time) map[domain.SmartListType]int {
	counts := make(map[domain.SmartListType]int, len(e.rules))
	for _, r := range e.rules {
		counts[r.Type] = 0
	}
	for _, p := range profiles {
		for _, list := range e.Classify(p, leads[p.ContactKey], now) {
			counts[list]++
		}
	}
	return counts
}

func standardRules() []Rule {
	return []Rule{
		{
			Type: domain.ListNeedsFollowUp,
			// We reached out and the contact has not replied since.
			Match: func(in Input) bool {
				sent := in.Profile.LastEmailSentAt
				if sent == nil {
					return false
				}
				received := in.Profile.LastEmailReceivedAt
				return received == nil || sent.After(*received)
			},
		},
		{
			Type: domain.ListWarmLeads,
			Match: func(in Input) bool {
				return in.Profile.RelationshipScore >= 60 &&
					in.Profile.RelationshipTrend == domain.TrendRising
			},
		},
		{
			Type: domain.ListInactive30Days,
			Match: func(in Input) bool {
				last := in.Profile.LastInteractionAt
				return last != nil && in.Now.Sub(*last) > 30*24*time.Hour
			},
		},
		{
			Type:  domain.ListVIP,
			Match: func(in Input) bool { return in.Profile.IsVIP },
		},
		{
			Type: domain.ListColdLeads,
			Match: func(in Input) bool {
				return in.Profile.RelationshipScore < 40 ||
					in.Profile.RelationshipTrend == domain.TrendFalling
			},
		},
		{
			Type: domain.ListRecentContacts,
			Match: func(in Input) bool {
				last := in.Profile.LastInteractionAt
				return last != nil && in.Now.Sub(*last) <= 7*24*time.Hour
			},
		},
		{
			Type: domain.ListHotLeads,
			Match: func(in Input) bool {
				return in.Lead != nil && in.Lead.Status == domain.LeadHot
			},
		},
		{
			Type: domain.ListAtRisk,
			Match: func(in Input) bool {
				return in.Lead != nil && in.Lead.Status == domain.LeadWarm &&
					in.Profile.RelationshipTrend == domain.TrendFalling
			},
		},
	}
}
