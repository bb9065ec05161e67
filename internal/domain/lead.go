package domain

import "time"

// LeadGrade is the letter bucketing of a lead score.
type LeadGrade string

const (
	GradeA LeadGrade = "A"
	GradeB LeadGrade = "B"
	GradeC LeadGrade = "C"
	GradeD LeadGrade = "D"
	GradeF LeadGrade = "F"
)

// GradeForScore maps a 0-100 lead score onto its grade band.
// The bands are fixed: A ≥80, B ≥60, C ≥40, D ≥20, F <20.
func GradeForScore(score int) LeadGrade {
	switch {
	case score >= 80:
		return GradeA
	case score >= 60:
		return GradeB
	case score >= 40:
		return GradeC
	case score >= 20:
		return GradeD
	default:
		return GradeF
	}
}

// LeadStatus is sales-pipeline state. Unlike the grade it is not a pure
// function of the score: customer and churned are sticky states driven by
// business events.
type LeadStatus string

const (
	LeadUnknown  LeadStatus = "unknown"
	LeadCold     LeadStatus = "cold"
	LeadWarming  LeadStatus = "warming"
	LeadWarm     LeadStatus = "warm"
	LeadHot      LeadStatus = "hot"
	LeadCustomer LeadStatus = "customer"
	LeadChurned  LeadStatus = "churned"
)

// BuyingSignal is a discrete detected purchase-intent trigger.
type BuyingSignal struct {
	Signal     string  `json:"signal" db:"signal"`
	Confidence float64 `json:"confidence" db:"confidence"`
	Details    string  `json:"details,omitempty" db:"details"`
}

// LeadScore is the sales-qualification record for one contact. It is
// present only once the contact has enough interaction history to score.
//
// Invariant: LeadGrade always equals GradeForScore(Score).
type LeadScore struct {
	ContactKey       string         `json:"contact_key" db:"contact_key"`
	Score            int            `json:"lead_score" db:"lead_score"`
	Grade            LeadGrade      `json:"lead_grade" db:"lead_grade"`
	Status           LeadStatus     `json:"lead_status" db:"lead_status"`
	BuyingSignalCount int           `json:"buying_signal_count" db:"buying_signal_count"`
	BuyingSignals    []BuyingSignal `json:"buying_signals,omitempty" db:"buying_signals"`

	// Optional enrichments from the external AI collaborator; never
	// required for core scoring.
	AIConversionProbability *float64 `json:"ai_conversion_probability,omitempty" db:"ai_conversion_probability"`
	AIChurnRisk             *float64 `json:"ai_churn_risk,omitempty" db:"ai_churn_risk"`
	AINextActionPrediction  string   `json:"ai_next_action_prediction,omitempty" db:"ai_next_action_prediction"`

	BecameCustomerAt *time.Time `json:"became_customer_at,omitempty" db:"became_customer_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}
