package domain

import "time"

// RelationshipTrend is the short-term direction of a relationship score.
type RelationshipTrend string

const (
	TrendRising  RelationshipTrend = "rising"
	TrendStable  RelationshipTrend = "stable"
	TrendFalling RelationshipTrend = "falling"
)

// CommunicationFrequency buckets how often a contact is interacted with,
// derived from the 30-day interaction count.
type CommunicationFrequency string

const (
	FrequencyDaily   CommunicationFrequency = "daily"
	FrequencyWeekly  CommunicationFrequency = "weekly"
	FrequencyMonthly CommunicationFrequency = "monthly"
	FrequencyRare    CommunicationFrequency = "rare"
	FrequencyUnknown CommunicationFrequency = "unknown"
)

// RelationshipProfile is the durable relationship-health record for one
// contact identity. One profile exists per contact key; it is created on
// the first interaction event and recomputed on every new event or
// explicit refresh.
//
// Invariants: RelationshipScore is always within [0,100], and
// LastInteractionAt is never earlier than any channel-specific timestamp.
type RelationshipProfile struct {
	ContactKey   string `json:"contact_key" db:"contact_key"`
	ContactName  string `json:"contact_name,omitempty" db:"contact_name"`
	ContactEmail string `json:"contact_email" db:"contact_email"`
	Company      string `json:"company,omitempty" db:"company"`
	Phone        string `json:"phone,omitempty" db:"phone"`

	RelationshipScore int               `json:"relationship_score" db:"relationship_score"`
	RelationshipTrend RelationshipTrend `json:"relationship_trend" db:"relationship_trend"`

	LastInteractionAt   *time.Time `json:"last_interaction_at,omitempty" db:"last_interaction_at"`
	LastEmailSentAt     *time.Time `json:"last_email_sent_at,omitempty" db:"last_email_sent_at"`
	LastEmailReceivedAt *time.Time `json:"last_email_received_at,omitempty" db:"last_email_received_at"`

	CommunicationFrequency CommunicationFrequency `json:"communication_frequency" db:"communication_frequency"`

	TotalInteractions   int  `json:"total_interactions" db:"total_interactions"`
	TotalEmailsSent     int  `json:"total_emails_sent" db:"total_emails_sent"`
	TotalEmailsReceived int  `json:"total_emails_received" db:"total_emails_received"`
	IsVIP               bool `json:"is_vip" db:"is_vip"`

	// Optional notable dates supplied by the data service, used by the
	// birthday/anniversary alert triggers. Stored as "MM-DD".
	Birthday    string `json:"birthday,omitempty" db:"birthday"`
	Anniversary string `json:"anniversary,omitempty" db:"anniversary"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DataRichness scores how much identity data a profile carries; used to
// pick the suggested primary of a duplicate group.
func (p *RelationshipProfile) DataRichness() int {
	n := 0
	if p.ContactName != "" {
		n++
	}
	if p.Company != "" {
		n++
	}
	if p.Phone != "" {
		n++
	}
	if p.ContactEmail != "" {
		n++
	}
	return n
}
