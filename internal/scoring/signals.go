package scoring

import (
	"strings"
	"time"

	"github.com/qntmpulse/relationship-engine/internal/domain"
)

// Buying-signal names.
const (
	SignalPricingInquiry  = "pricing_inquiry"
	SignalDemoRequest     = "demo_request"
	SignalMeetingMomentum = "meeting_momentum"
	SignalEngagedReplies  = "engaged_replies"
	SignalRepeatFollowUp  = "repeat_follow_up"
)

// pricingKeywords flag purchase intent in message subjects/snippets.
var pricingKeywords = []string{"pricing", "price", "quote", "cost", "budget", "contract", "invoice", "renewal"}

// demoKeywords flag evaluation intent.
var demoKeywords = []string{"demo", "trial", "walkthrough", "evaluation", "poc"}

// KeywordSignals scans a single inbound interaction's metadata for
// purchase-intent keywords. Only inbound interactions count: our own
// outbound pitches mentioning pricing are not a buying signal.
func KeywordSignals(event domain.InteractionEvent) []domain.BuyingSignal {
	if !event.Kind.Inbound() {
		return nil
	}
	text := strings.ToLower(event.Metadata["subject"] + " " + event.Metadata["snippet"])
	if text == " " {
		return nil
	}

	var signals []domain.BuyingSignal
	if kw := firstMatch(text, pricingKeywords); kw != "" {
		signals = append(signals, domain.BuyingSignal{
			Signal:     SignalPricingInquiry,
			Confidence: 0.8,
			Details:    "mentioned " + kw,
		})
	}
	if kw := firstMatch(text, demoKeywords); kw != "" {
		signals = append(signals, domain.BuyingSignal{
			Signal:     SignalDemoRequest,
			Confidence: 0.7,
			Details:    "mentioned " + kw,
		})
	}
	return signals
}

// StatsSignals derives buying signals from interaction-shape patterns in
// the aggregate stats.
func StatsSignals(stats domain.AggregateStats, now time.Time) []domain.BuyingSignal {
	var signals []domain.BuyingSignal

	// Multiple recent meetings suggest an active evaluation.
	if stats.Meetings >= 2 && stats.LastMeetingAt != nil &&
		now.Sub(*stats.LastMeetingAt) <= 30*24*time.Hour {
		signals = append(signals, domain.BuyingSignal{
			Signal:     SignalMeetingMomentum,
			Confidence: 0.6,
			Details:    "repeated meetings within 30 days",
		})
	}

	// Sustained inbound engagement within the last week.
	if stats.Received() >= 3 && stats.Count7d >= 2 {
		signals = append(signals, domain.BuyingSignal{
			Signal:     SignalEngagedReplies,
			Confidence: 0.55,
			Details:    "active two-way thread this week",
		})
	}

	// A burst of inbound messages over outbound reads as follow-up
	// questions from the contact.
	if stats.Received() >= stats.Sent()+3 && stats.Count30d >= 4 {
		signals = append(signals, domain.BuyingSignal{
			Signal:     SignalRepeatFollowUp,
			Confidence: 0.5,
			Details:    "inbound volume outpacing outbound",
		})
	}
	return signals
}

// MergeSignals unions signal sets, keeping the highest confidence per
// signal name. Order of the result is deterministic (first-seen order).
func MergeSignals(sets ...[]domain.BuyingSignal) []domain.BuyingSignal {
	var merged []domain.BuyingSignal
	index := make(map[string]int)
	for _, set := range sets {
		for _, sig := range set {
			if i, ok := index[sig.Signal]; ok {
				if sig.Confidence > merged[i].Confidence {
					merged[i] = sig
				}
				continue
			}
			index[sig.Signal] = len(merged)
			merged = append(merged, sig)
		}
	}
	return merged
}

func firstMatch(text string, keywords []string) string {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return kw
		}
	}
	return ""
}
