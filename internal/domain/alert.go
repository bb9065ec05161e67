package domain

import "time"

// AlertSeverity ranks how urgent an alert is.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// AlertType names the trigger that raised an alert. At most one alert of
// a given type may be active (or snoozed) per contact at a time.
type AlertType string

const (
	AlertScoreDecay      AlertType = "score_decay"
	AlertFollowUpOverdue AlertType = "follow_up_overdue"
	AlertVIPSilent       AlertType = "vip_silent"
	AlertUpcomingDate    AlertType = "upcoming_date"
	AlertChurnRisk       AlertType = "churn_risk"
)

// AlertStatus is the lifecycle state of an alert.
//
// The machine is: active -> dismissed (terminal for the firing),
// active -> snoozed -> active (snooze elapsed, trigger still holds),
// active -> snoozed -> expired (trigger cleared while snoozed).
type AlertStatus string

const (
	AlertActive    AlertStatus = "active"
	AlertDismissed AlertStatus = "dismissed"
	AlertSnoozed   AlertStatus = "snoozed"
	AlertExpired   AlertStatus = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s AlertStatus) Terminal() bool {
	return s == AlertDismissed || s == AlertExpired
}

// Live reports whether the alert still occupies its (contact, type)
// slot. At most one live alert may exist per pair.
func (s AlertStatus) Live() bool {
	return s == AlertActive || s == AlertSnoozed
}

// RelationshipAlert is an actionable, dismissible notification raised by
// a rule trigger against a profile.
type RelationshipAlert struct {
	ID              string        `json:"id" db:"id"`
	ContactKey      string        `json:"contact_key" db:"contact_key"`
	AlertType       AlertType     `json:"alert_type" db:"alert_type"`
	Severity        AlertSeverity `json:"severity" db:"severity"`
	Title           string        `json:"title" db:"title"`
	Description     string        `json:"description,omitempty" db:"description"`
	SuggestedAction string        `json:"suggested_action,omitempty" db:"suggested_action"`
	ActionType      string        `json:"action_type,omitempty" db:"action_type"`
	Status          AlertStatus   `json:"status" db:"status"`
	SnoozedUntil    *time.Time    `json:"snoozed_until,omitempty" db:"snoozed_until"`
	DismissReason   string        `json:"dismiss_reason,omitempty" db:"dismiss_reason"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	ResolvedAt      *time.Time    `json:"resolved_at,omitempty" db:"resolved_at"`
}
