package dedup

import (
	"github.com/qntmpulse/relationship-engine/internal/domain"
)

// MergeProfiles computes the merged profile for a primary and its
// duplicates. Pure: storage updates, alert re-keying and score
// recomputation are the caller's responsibility.
//
// Semantics: interaction counters are summed across all members, VIP is
// OR'd, and identity fields keep the primary's non-empty value with
// duplicates only filling gaps. Scores are NOT merged here: averaging a
// healthy and a stale duplicate would understate the relationship, so
// the caller recomputes them from the consolidated aggregate.
func MergeProfiles(primary *domain.RelationshipProfile, duplicates []*domain.RelationshipProfile) *domain.RelationshipProfile {
	merged := *primary

	for _, dup := range duplicates {
		if dup == nil || dup.ContactKey == primary.ContactKey {
			continue
		}
		merged.TotalInteractions += dup.TotalInteractions
		merged.TotalEmailsSent += dup.TotalEmailsSent
		merged.TotalEmailsReceived += dup.TotalEmailsReceived
		merged.IsVIP = merged.IsVIP || dup.IsVIP

		if merged.ContactName == "" {
			merged.ContactName = dup.ContactName
		}
		if merged.Company == "" {
			merged.Company = dup.Company
		}
		if merged.Phone == "" {
			merged.Phone = dup.Phone
		}
		if merged.Birthday == "" {
			merged.Birthday = dup.Birthday
		}
		if merged.Anniversary == "" {
			merged.Anniversary = dup.Anniversary
		}

		if dup.LastInteractionAt != nil &&
			(merged.LastInteractionAt == nil || dup.LastInteractionAt.After(*merged.LastInteractionAt)) {
			merged.LastInteractionAt = dup.LastInteractionAt
		}
		if dup.LastEmailSentAt != nil &&
			(merged.LastEmailSentAt == nil || dup.LastEmailSentAt.After(*merged.LastEmailSentAt)) {
			merged.LastEmailSentAt = dup.LastEmailSentAt
		}
		if dup.LastEmailReceivedAt != nil &&
			(merged.LastEmailReceivedAt == nil || dup.LastEmailReceivedAt.After(*merged.LastEmailReceivedAt)) {
			merged.LastEmailReceivedAt = dup.LastEmailReceivedAt
		}
		if dup.CreatedAt.Before(merged.CreatedAt) {
			merged.CreatedAt = dup.CreatedAt
		}
	}
	return &merged
}
