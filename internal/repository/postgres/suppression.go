package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SuppressionRepo persists dismissed duplicate groups so they stay
// dismissed across restarts and re-detections.
type SuppressionRepo struct{ db *sql.DB }

// NewSuppressionRepo creates a Postgres-backed duplicate suppression
// repository.
func NewSuppressionRepo(db *sql.DB) *SuppressionRepo { return &SuppressionRepo{db: db} }

func (r *SuppressionRepo) Add(ctx context.Context, groupKey string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO duplicate_suppressions (group_key, created_at)
		VALUES ($1, $2)
		ON CONFLICT (group_key) DO NOTHING
	`, groupKey, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("add suppression: %w", err)
	}
	return nil
}

func (r *SuppressionRepo) List(ctx context.Context) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT group_key FROM duplicate_suppressions`)
	if err != nil {
		return nil, fmt.Errorf("list suppressions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan suppression: %w", err)
		}
		out[key] = true
	}
	return out, rows.Err()
}
