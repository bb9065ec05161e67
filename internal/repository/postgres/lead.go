package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/qntmpulse/relationship-engine/internal/domain"
)

// LeadRepo persists lead scores. Buying signals are stored as a JSONB
// column rather than a join table; they are always read and written as
// a unit with the score.
type LeadRepo struct{ db *sql.DB }

// NewLeadRepo creates a Postgres-backed lead score repository.
func NewLeadRepo(db *sql.DB) *LeadRepo { return &LeadRepo{db: db} }

func (r *LeadRepo) Upsert(ctx context.Context, l *domain.LeadScore) error {
	signals, err := json.Marshal(l.BuyingSignals)
	if err != nil {
		return fmt.Errorf("marshal buying signals: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO lead_scores
			(contact_key, lead_score, lead_grade, lead_status,
			 buying_signal_count, buying_signals,
			 ai_conversion_probability, ai_churn_risk, ai_next_action_prediction,
			 became_customer_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (contact_key) DO UPDATE SET
			lead_score = $2, lead_grade = $3, lead_status = $4,
			buying_signal_count = $5, buying_signals = $6,
			ai_conversion_probability = $7, ai_churn_risk = $8,
			ai_next_action_prediction = $9, became_customer_at = $10,
			updated_at = $11
	`, l.ContactKey, l.Score, l.Grade, l.Status,
		l.BuyingSignalCount, signals,
		l.AIConversionProbability, l.AIChurnRisk, l.AINextActionPrediction,
		l.BecameCustomerAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert lead score: %w", err)
	}
	return nil
}

func (r *LeadRepo) Get(ctx context.Context, contactKey string) (*domain.LeadScore, error) {
	l := &domain.LeadScore{}
	var signals []byte
	var nextAction sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT contact_key, lead_score, lead_grade, lead_status,
		       buying_signal_count, buying_signals,
		       ai_conversion_probability, ai_churn_risk, ai_next_action_prediction,
		       became_customer_at, updated_at
		FROM lead_scores
		WHERE contact_key = $1
	`, contactKey).Scan(
		&l.ContactKey, &l.Score, &l.Grade, &l.Status,
		&l.BuyingSignalCount, &signals,
		&l.AIConversionProbability, &l.AIChurnRisk, &nextAction,
		&l.BecameCustomerAt, &l.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead score: %w", err)
	}
	l.AINextActionPrediction = nextAction.String
	if len(signals) > 0 {
		if err := json.Unmarshal(signals, &l.BuyingSignals); err != nil {
			return nil, fmt.Errorf("unmarshal buying signals: %w", err)
		}
	}
	return l, nil
}

func (r *LeadRepo) List(ctx context.Context) ([]*domain.LeadScore, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT contact_key, lead_score, lead_grade, lead_status,
		       buying_signal_count, buying_signals,
		       ai_conversion_probability, ai_churn_risk, ai_next_action_prediction,
		       became_customer_at, updated_at
		FROM lead_scores
		ORDER BY lead_score DESC, contact_key
	`)
	if err != nil {
		return nil, fmt.Errorf("list lead scores: %w", err)
	}
	defer rows.Close()

	var out []*domain.LeadScore
	for rows.Next() {
		l := &domain.LeadScore{}
		var signals []byte
		var nextAction sql.NullString
		if err := rows.Scan(
			&l.ContactKey, &l.Score, &l.Grade, &l.Status,
			&l.BuyingSignalCount, &signals,
			&l.AIConversionProbability, &l.AIChurnRisk, &nextAction,
			&l.BecameCustomerAt, &l.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan lead score: %w", err)
		}
		l.AINextActionPrediction = nextAction.String
		if len(signals) > 0 {
			if err := json.Unmarshal(signals, &l.BuyingSignals); err != nil {
				return nil, fmt.Errorf("unmarshal buying signals: %w", err)
			}
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *LeadRepo) Delete(ctx context.Context, contactKey string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM lead_scores WHERE contact_key = $1`, contactKey)
	if err != nil {
		return fmt.Errorf("delete lead score: %w", err)
	}
	return nil
}
