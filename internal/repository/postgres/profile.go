// Package postgres provides durable repositories for profiles, lead
// scores, alerts and duplicate suppressions on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/qntmpulse/relationship-engine/internal/domain"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ProfileRepo persists relationship profiles.
type ProfileRepo struct{ db *sql.DB }

// NewProfileRepo creates a Postgres-backed profile repository.
func NewProfileRepo(db *sql.DB) *ProfileRepo { return &ProfileRepo{db: db} }

func (r *ProfileRepo) Upsert(ctx context.Context, p *domain.RelationshipProfile) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO relationship_profiles
			(contact_key, contact_name, contact_email, company, phone,
			 relationship_score, relationship_trend,
			 last_interaction_at, last_email_sent_at, last_email_received_at,
			 communication_frequency, total_interactions, total_emails_sent,
			 total_emails_received, is_vip, birthday, anniversary,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (contact_key) DO UPDATE SET
			contact_name = $2, contact_email = $3, company = $4, phone = $5,
			relationship_score = $6, relationship_trend = $7,
			last_interaction_at = $8, last_email_sent_at = $9, last_email_received_at = $10,
			communication_frequency = $11, total_interactions = $12,
			total_emails_sent = $13, total_emails_received = $14,
			is_vip = $15, birthday = $16, anniversary = $17, updated_at = $19
	`, p.ContactKey, p.ContactName, p.ContactEmail, p.Company, p.Phone,
		p.RelationshipScore, p.RelationshipTrend,
		p.LastInteractionAt, p.LastEmailSentAt, p.LastEmailReceivedAt,
		p.CommunicationFrequency, p.TotalInteractions, p.TotalEmailsSent,
		p.TotalEmailsReceived, p.IsVIP, p.Birthday, p.Anniversary,
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (r *ProfileRepo) Get(ctx context.Context, contactKey string) (*domain.RelationshipProfile, error) {
	p := &domain.RelationshipProfile{}
	err := r.db.QueryRowContext(ctx, `
		SELECT contact_key, COALESCE(contact_name,''), contact_email,
		       COALESCE(company,''), COALESCE(phone,''),
		       relationship_score, relationship_trend,
		       last_interaction_at, last_email_sent_at, last_email_received_at,
		       communication_frequency, total_interactions, total_emails_sent,
		       total_emails_received, is_vip,
		       COALESCE(birthday,''), COALESCE(anniversary,''),
		       created_at, updated_at
		FROM relationship_profiles
		WHERE contact_key = $1
	`, contactKey).Scan(
		&p.ContactKey, &p.ContactName, &p.ContactEmail, &p.Company, &p.Phone,
		&p.RelationshipScore, &p.RelationshipTrend,
		&p.LastInteractionAt, &p.LastEmailSentAt, &p.LastEmailReceivedAt,
		&p.CommunicationFrequency, &p.TotalInteractions, &p.TotalEmailsSent,
		&p.TotalEmailsReceived, &p.IsVIP, &p.Birthday, &p.Anniversary,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (r *ProfileRepo) List(ctx context.Context) ([]*domain.RelationshipProfile, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT contact_key, COALESCE(contact_name,''), contact_email,
		       COALESCE(company,''), COALESCE(phone,''),
		       relationship_score, relationship_trend,
		       last_interaction_at, last_email_sent_at, last_email_received_at,
		       communication_frequency, total_interactions, total_emails_sent,
		       total_emails_received, is_vip,
		       COALESCE(birthday,''), COALESCE(anniversary,''),
		       created_at, updated_at
		FROM relationship_profiles
		ORDER BY relationship_score DESC, contact_key
	`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var out []*domain.RelationshipProfile
	for rows.Next() {
		p := &domain.RelationshipProfile{}
		if err := rows.Scan(
			&p.ContactKey, &p.ContactName, &p.ContactEmail, &p.Company, &p.Phone,
			&p.RelationshipScore, &p.RelationshipTrend,
			&p.LastInteractionAt, &p.LastEmailSentAt, &p.LastEmailReceivedAt,
			&p.CommunicationFrequency, &p.TotalInteractions, &p.TotalEmailsSent,
			&p.TotalEmailsReceived, &p.IsVIP, &p.Birthday, &p.Anniversary,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *ProfileRepo) Delete(ctx context.Context, contactKey string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM relationship_profiles WHERE contact_key = $1`, contactKey)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
