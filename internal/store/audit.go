package store

import (
	"context"
	"fmt"
)

// InsertActivationHistory appends an activation audit row.
func (s *PostgresStore) InsertActivationHistory(ctx context.Context, row PartnerActivationHistory) error {
	const q = `
INSERT INTO partner_activation_history (profile_id, action, activation_type, reason, expires_at, admin_id)
VALUES ($1, $2, $3, $4, $5, $6);
`
	var actType *string
	if row.ActivationType != nil {
		v := string(*row.ActivationType)
		actType = &v
	}
	if _, err := s.pool.Exec(ctx, q, row.ProfileID, row.Action, actType, row.Reason, row.ExpiresAt, row.AdminID); err != nil {
		return fmt.Errorf("insert activation history: %w", err)
	}
	return nil
}

// ListActivationHistory returns the newest audit rows for a profile.
func (s *PostgresStore) ListActivationHistory(ctx context.Context, profileID string, limit int) ([]PartnerActivationHistory, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, profile_id, action, activation_type, reason, expires_at, admin_id, created_at
FROM partner_activation_history
WHERE profile_id = $1
ORDER BY created_at DESC
LIMIT $2;
`
	rows, err := s.pool.Query(ctx, q, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activation history: %w", err)
	}
	defer rows.Close()

	var history []PartnerActivationHistory
	for rows.Next() {
		var (
			h       PartnerActivationHistory
			actType *string
		)
		if err := rows.Scan(&h.ID, &h.ProfileID, &h.Action, &actType, &h.Reason, &h.ExpiresAt, &h.AdminID, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activation history: %w", err)
		}
		if actType != nil {
			v := ActivationType(*actType)
			h.ActivationType = &v
		}
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activation history: %w", err)
	}
	return history, nil
}
