package scoring

import (
	"math"
	"time"

	"github.com/qntmpulse/relationship-engine/internal/config"
	"github.com/qntmpulse/relationship-engine/internal/domain"
)

// recencyWindowDays is the window over which the engagement-recency
// component decays from full credit to zero.
const recencyWindowDays = 30.0

// LeadScorer derives a sales-qualification score, grade and status from
// relationship health, detected buying signals, and engagement recency.
type LeadScorer struct {
	cfg config.LeadConfig
	now func() time.Time
}

// NewLeadScorer creates a lead scorer with the given tunables.
func NewLeadScorer(cfg config.LeadConfig) *LeadScorer {
	return &LeadScorer{cfg: cfg, now: time.Now}
}

// SetClock overrides the scorer clock. Test hook.
func (s *LeadScorer) SetClock(now func() time.Time) { s.now = now }

// Score computes the lead score for one contact. Returns nil when the
// contact has too little interaction history to qualify: absence of a
// lead score is an expected state, not an error.
//
// previous carries forward sticky state (status, customer timestamps,
// AI enrichments); pass nil on the first computation.
func (s *LeadScorer) Score(
	stats domain.AggregateStats,
	health HealthResult,
	signals []domain.BuyingSignal,
	previous *domain.LeadScore,
) *domain.LeadScore {
	if stats.TotalInteractions < s.cfg.MinInteractions {
		return nil
	}

	now := s.now()

	qualifying := 0
	for _, sig := range signals {
		if sig.Confidence >= s.cfg.SignalConfidence {
			qualifying++
		}
	}

	// Signal density saturates: four strong signals max out the component.
	signalComponent := float64(qualifying) * 25
	if signalComponent > 100 {
		signalComponent = 100
	}

	recencyComponent := 0.0
	if stats.LastInteractionAt != nil {
		days := now.Sub(*stats.LastInteractionAt).Hours() / 24
		if days < 0 {
			days = 0
		}
		recencyComponent = 100 * (1 - days/recencyWindowDays)
		if recencyComponent < 0 {
			recencyComponent = 0
		}
	}

	raw := s.cfg.HealthWeight*float64(health.Score) +
		s.cfg.SignalWeight*signalComponent +
		s.cfg.RecencyWeight*recencyComponent
	score := int(math.Round(raw))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	ls := &domain.LeadScore{
		ContactKey:        stats.ContactKey,
		Score:             score,
		Grade:             domain.GradeForScore(score),
		Status:            s.nextStatus(previous, score, health.Trend, stats, now),
		BuyingSignalCount: qualifying,
		BuyingSignals:     signals,
		UpdatedAt:         now,
	}

	if previous != nil {
		ls.BecameCustomerAt = previous.BecameCustomerAt
		ls.AIConversionProbability = previous.AIConversionProbability
		ls.AIChurnRisk = previous.AIChurnRisk
		ls.AINextActionPrediction = previous.AINextActionPrediction
	}
	return ls
}

// nextStatus advances the lead status machine.
//
// customer is entered only via an explicit business event (MarkCustomer
// on the engine) and churned only via prolonged post-customer silence;
// both are sticky against score movement. Otherwise the status climbs
// warming -> warm -> hot as the score crosses ascending thresholds while
// the trend is rising, and falls back to cold when a previously warmed
// lead decays below the warming threshold on a falling trend.
func (s *LeadScorer) nextStatus(
	previous *domain.LeadScore,
	score int,
	trend domain.RelationshipTrend,
	stats domain.AggregateStats,
	now time.Time,
) domain.LeadStatus {
	current := domain.LeadUnknown
	if previous != nil {
		current = previous.Status
	}

	switch current {
	case domain.LeadChurned:
		return domain.LeadChurned
	case domain.LeadCustomer:
		if stats.LastInteractionAt != nil &&
			now.Sub(*stats.LastInteractionAt) > time.Duration(s.cfg.ChurnInactiveDays)*24*time.Hour {
			return domain.LeadChurned
		}
		return domain.LeadCustomer
	}

	if trend == domain.TrendRising {
		switch {
		case score >= s.cfg.HotThreshold:
			return domain.LeadHot
		case score >= s.cfg.WarmThreshold:
			return maxStatus(current, domain.LeadWarm)
		case score >= s.cfg.WarmingThreshold:
			return maxStatus(current, domain.LeadWarming)
		}
	}

	if trend == domain.TrendFalling && score < s.cfg.WarmingThreshold && current != domain.LeadUnknown {
		return domain.LeadCold
	}
	return current
}

// statusRank orders the score-driven statuses for monotonic upgrades.
var statusRank = map[domain.LeadStatus]int{
	domain.LeadUnknown: 0,
	domain.LeadCold:    1,
	domain.LeadWarming: 2,
	domain.LeadWarm:    3,
	domain.LeadHot:     4,
}

func maxStatus(a, b domain.LeadStatus) domain.LeadStatus {
	if statusRank[a] > statusRank[b] {
		return a
	}
	return b
}
