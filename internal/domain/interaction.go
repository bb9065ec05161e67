package domain

import (
	"fmt"
	"strings"
	"time"
)

// InteractionKind enumerates the channels an interaction can arrive on.
type InteractionKind string

const (
	InteractionEmailSent       InteractionKind = "email_sent"
	InteractionEmailReceived   InteractionKind = "email_received"
	InteractionMessageSent     InteractionKind = "message_sent"
	InteractionMessageReceived InteractionKind = "message_received"
	InteractionMeeting         InteractionKind = "meeting"
)

// Valid reports whether k is one of the known interaction kinds.
func (k InteractionKind) Valid() bool {
	switch k {
	case InteractionEmailSent, InteractionEmailReceived,
		InteractionMessageSent, InteractionMessageReceived, InteractionMeeting:
		return true
	}
	return false
}

// Outbound reports whether the interaction was initiated by us.
func (k InteractionKind) Outbound() bool {
	return k == InteractionEmailSent || k == InteractionMessageSent
}

// Inbound reports whether the interaction was initiated by the contact.
func (k InteractionKind) Inbound() bool {
	return k == InteractionEmailReceived || k == InteractionMessageReceived
}

// InteractionEvent is a single normalized interaction with a contact, as
// delivered by the upstream data service. Events are immutable; replays
// of the same (contact, kind, timestamp) triple must not double-count.
type InteractionEvent struct {
	ContactKey string            `json:"contact_key" db:"contact_key"`
	Kind       InteractionKind   `json:"kind" db:"kind"`
	Timestamp  time.Time         `json:"timestamp" db:"timestamp"`
	Metadata   map[string]string `json:"metadata,omitempty" db:"metadata"`
}

// DedupKey returns the replay-suppression key for the event.
func (e InteractionEvent) DedupKey() string {
	return fmt.Sprintf("%s|%s|%d", e.ContactKey, e.Kind, e.Timestamp.UnixNano())
}

// Validate checks the event carries the minimum required fields.
func (e InteractionEvent) Validate() error {
	if strings.TrimSpace(e.ContactKey) == "" {
		return fmt.Errorf("interaction event: missing contact key")
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("interaction event: unknown kind %q", e.Kind)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("interaction event: missing timestamp")
	}
	return nil
}

// AggregateStats is the per-contact rolling view the aggregator maintains
// and the scorers consume.
type AggregateStats struct {
	ContactKey string `json:"contact_key"`

	TotalInteractions int `json:"total_interactions"`
	EmailsSent        int `json:"emails_sent"`
	EmailsReceived    int `json:"emails_received"`
	MessagesSent      int `json:"messages_sent"`
	MessagesReceived  int `json:"messages_received"`
	Meetings          int `json:"meetings"`

	FirstInteractionAt  *time.Time `json:"first_interaction_at,omitempty"`
	LastInteractionAt   *time.Time `json:"last_interaction_at,omitempty"`
	LastEmailSentAt     *time.Time `json:"last_email_sent_at,omitempty"`
	LastEmailReceivedAt *time.Time `json:"last_email_received_at,omitempty"`
	LastMeetingAt       *time.Time `json:"last_meeting_at,omitempty"`

	// Rolling window counts relative to the aggregator's clock.
	Count7d  int `json:"count_7d"`
	Count30d int `json:"count_30d"`
	Count90d int `json:"count_90d"`
}

// Sent returns total outbound interactions across channels.
func (s AggregateStats) Sent() int { return s.EmailsSent + s.MessagesSent }

// Received returns total inbound interactions across channels.
func (s AggregateStats) Received() int { return s.EmailsReceived + s.MessagesReceived }
