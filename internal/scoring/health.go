// Package scoring derives relationship health and sales lead scores from
// aggregated interaction statistics.
package scoring

import (
	"math"
	"time"

	"github.com/qntmpulse/relationship-engine/internal/config"
	"github.com/qntmpulse/relationship-engine/internal/domain"
)

// baseScore is the neutral midpoint a relationship starts from before
// decay and bonuses are applied.
const baseScore = 50.0

// HealthResult is the outcome of one health scoring pass.
type HealthResult struct {
	Score     int
	Trend     domain.RelationshipTrend
	Frequency domain.CommunicationFrequency
}

// HealthScorer computes a 0-100 relationship score from aggregate stats.
//
// The model: the base score decays by half every half-life of silence,
// then earns additive bonuses for interaction frequency and balanced
// two-way communication. VIP contacts never decay below the configured
// floor regardless of activity.
type HealthScorer struct {
	cfg config.ScoringConfig
	now func() time.Time
}

// NewHealthScorer creates a health scorer with the given tunables.
func NewHealthScorer(cfg config.ScoringConfig) *HealthScorer {
	return &HealthScorer{cfg: cfg, now: time.Now}
}

// SetClock overrides the scorer clock. Test hook.
func (s *HealthScorer) SetClock(now func() time.Time) { s.now = now }

// Score computes the health score, trend and communication frequency for
// one contact. previousScore is the score from the prior recomputation
// cycle; pass nil on the first computation.
//
// A contact with no recorded interactions gets the neutral default
// (50, stable, unknown) rather than an error.
func (s *HealthScorer) Score(stats domain.AggregateStats, isVIP bool, previousScore *int) HealthResult {
	if stats.LastInteractionAt == nil || stats.TotalInteractions == 0 {
		return HealthResult{
			Score:     int(baseScore),
			Trend:     domain.TrendStable,
			Frequency: domain.FrequencyUnknown,
		}
	}

	now := s.now()

	// Recency decay: halve the base for every half-life since the last
	// interaction.
	daysSinceLast := now.Sub(*stats.LastInteractionAt).Hours() / 24
	if daysSinceLast < 0 {
		daysSinceLast = 0
	}
	score := baseScore * math.Pow(0.5, daysSinceLast/s.cfg.DecayHalfLifeDays)

	// Frequency bonus: proportional to interactions per week over the
	// 30-day window, clipped at the configured max.
	perWeek := float64(stats.Count30d) / (30.0 / 7.0)
	freqBonus := perWeek * s.cfg.FrequencyPerWeek
	if freqBonus > s.cfg.FrequencyBonusMax {
		freqBonus = s.cfg.FrequencyBonusMax
	}
	score += freqBonus

	// Reciprocity: balanced two-way traffic earns a bonus, one-sided
	// communication is penalized.
	sent, received := stats.Sent(), stats.Received()
	switch {
	case sent > 0 && received > 0:
		balance := float64(min(sent, received)) / float64(max(sent, received))
		score += balance * s.cfg.ReciprocityBonus
	case sent >= 3 && received == 0, received >= 3 && sent == 0:
		score -= s.cfg.OneSidedPenalty
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	rounded := int(math.Round(score))

	// VIP contacts reflect an intentionally maintained relationship, so
	// they never decay below the floor.
	if isVIP && rounded < s.cfg.VIPFloor {
		rounded = s.cfg.VIPFloor
	}

	return HealthResult{
		Score:     rounded,
		Trend:     s.trend(rounded, previousScore),
		Frequency: FrequencyLabel(stats.Count30d, stats.TotalInteractions),
	}
}

// trend bands the delta against the previous score so noise does not
// flap the label.
func (s *HealthScorer) trend(score int, previous *int) domain.RelationshipTrend {
	if previous == nil {
		return domain.TrendStable
	}
	delta := score - *previous
	switch {
	case delta > s.cfg.TrendBand:
		return domain.TrendRising
	case delta < -s.cfg.TrendBand:
		return domain.TrendFalling
	default:
		return domain.TrendStable
	}
}

// FrequencyLabel buckets a 30-day interaction count into a
// communication-frequency label. Contacts with history but nothing in
// the window are "rare"; contacts with no history at all are "unknown".
func FrequencyLabel(count30d, total int) domain.CommunicationFrequency {
	switch {
	case count30d >= 20:
		return domain.FrequencyDaily
	case count30d >= 4:
		return domain.FrequencyWeekly
	case count30d >= 1:
		return domain.FrequencyMonthly
	case total > 0:
		return domain.FrequencyRare
	default:
		return domain.FrequencyUnknown
	}
}
