package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/qntmpulse/relationship-engine/internal/alerts"
	"github.com/qntmpulse/relationship-engine/internal/domain"
)

// AlertRepo persists relationship alerts.
type AlertRepo struct{ db *sql.DB }

// NewAlertRepo creates a Postgres-backed alert repository.
func NewAlertRepo(db *sql.DB) *AlertRepo { return &AlertRepo{db: db} }

const alertColumns = `id, contact_key, alert_type, severity, title,
	       COALESCE(description,''), COALESCE(suggested_action,''),
	       COALESCE(action_type,''), status, snoozed_until,
	       COALESCE(dismiss_reason,''), created_at, resolved_at`

// Upsert inserts or updates an alert keyed by id. A live (active or
// snoozed) insert is guarded so one (contact_key, alert_type) pair can
// never hold two live rows, matching the in-memory store's rule.
func (r *AlertRepo) Upsert(ctx context.Context, a *domain.RelationshipAlert) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO relationship_alerts
			(id, contact_key, alert_type, severity, title, description,
			 suggested_action, action_type, status, snoozed_until,
			 dismiss_reason, created_at, resolved_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		WHERE NOT EXISTS (
			SELECT 1 FROM relationship_alerts
			WHERE contact_key = $2 AND alert_type = $3 AND id <> $1
			  AND status IN ('active', 'snoozed')
			  AND $9 IN ('active', 'snoozed')
		)
		ON CONFLICT (id) DO UPDATE SET
			contact_key = $2, status = $9, snoozed_until = $10,
			dismiss_reason = $11, resolved_at = $13
	`, a.ID, a.ContactKey, a.AlertType, a.Severity, a.Title, a.Description,
		a.SuggestedAction, a.ActionType, a.Status, a.SnoozedUntil,
		a.DismissReason, a.CreatedAt, a.ResolvedAt)
	if err != nil {
		return fmt.Errorf("upsert alert: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("upsert alert %s: %w", a.ID, alerts.ErrDuplicateActiveAlert)
	}
	return nil
}

func (r *AlertRepo) Get(ctx context.Context, id string) (*domain.RelationshipAlert, error) {
	a := &domain.RelationshipAlert{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM relationship_alerts WHERE id = $1`, id,
	).Scan(
		&a.ID, &a.ContactKey, &a.AlertType, &a.Severity, &a.Title,
		&a.Description, &a.SuggestedAction, &a.ActionType, &a.Status,
		&a.SnoozedUntil, &a.DismissReason, &a.CreatedAt, &a.ResolvedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

func (r *AlertRepo) List(ctx context.Context) ([]*domain.RelationshipAlert, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM relationship_alerts ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []*domain.RelationshipAlert
	for rows.Next() {
		a := &domain.RelationshipAlert{}
		if err := rows.Scan(
			&a.ID, &a.ContactKey, &a.AlertType, &a.Severity, &a.Title,
			&a.Description, &a.SuggestedAction, &a.ActionType, &a.Status,
			&a.SnoozedUntil, &a.DismissReason, &a.CreatedAt, &a.ResolvedAt,
		); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Rekey moves every alert from one contact key to another, used when
// duplicate profiles merge.
func (r *AlertRepo) Rekey(ctx context.Context, oldKey, newKey string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE relationship_alerts SET contact_key = $2 WHERE contact_key = $1`,
		oldKey, newKey)
	if err != nil {
		return fmt.Errorf("rekey alerts: %w", err)
	}
	return nil
}
