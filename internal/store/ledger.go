package store

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// InsertTransaction appends a ledger entry. The ledger is append-only; there
// is deliberately no update or delete counterpart.
func (s *PostgresStore) InsertTransaction(ctx context.Context, tx PartnerTransaction) (*PartnerTransaction, error) {
	const q = `
INSERT INTO partner_transactions (profile_id, amount, type, description)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at;
`
	err := s.pool.QueryRow(ctx, q, tx.ProfileID, tx.Amount.String(), tx.Type, tx.Description).
		Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	return &tx, nil
}

// ListTransactions returns the profile's full ledger history, oldest first.
func (s *PostgresStore) ListTransactions(ctx context.Context, profileID string) ([]PartnerTransaction, error) {
	const q = `
SELECT id, profile_id, amount::text, type, description, created_at
FROM partner_transactions
WHERE profile_id = $1
ORDER BY created_at ASC, id ASC;
`
	rows, err := s.pool.Query(ctx, q, profileID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []PartnerTransaction
	for rows.Next() {
		var (
			tx        PartnerTransaction
			amountStr string
		)
		if err := rows.Scan(&tx.ID, &tx.ProfileID, &amountStr, &tx.Type, &tx.Description, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if tx.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, fmt.Errorf("parse transaction amount: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

// InsertBonusEvent records the idempotency marker for a distributed bonus.
// Replays hit the (profile_id, order_id) unique constraint and are no-ops.
func (s *PostgresStore) InsertBonusEvent(ctx context.Context, ev BonusEvent) error {
	const q = `
INSERT INTO partner_bonus_events (profile_id, referred_user_id, order_id, amount)
VALUES ($1, $2, $3, $4)
ON CONFLICT (profile_id, order_id) DO NOTHING;
`
	if _, err := s.pool.Exec(ctx, q, ev.ProfileID, ev.ReferredUserID, ev.OrderID, ev.Amount.String()); err != nil {
		return fmt.Errorf("insert bonus event: %w", err)
	}
	return nil
}

// HasBonusEvent reports whether any bonus was already distributed for the
// given order originating from the given user.
func (s *PostgresStore) HasBonusEvent(ctx context.Context, referredUserID, orderID string) (bool, error) {
	const q = `
SELECT EXISTS (
    SELECT 1 FROM partner_bonus_events
    WHERE referred_user_id = $1 AND order_id = $2
);
`
	var exists bool
	if err := s.pool.QueryRow(ctx, q, referredUserID, orderID).Scan(&exists); err != nil {
		return false, fmt.Errorf("has bonus event: %w", err)
	}
	return exists, nil
}

// HasProfileBonusEvent reports whether this particular partner was already
// credited for the order. Used to resume a partially failed distribution.
func (s *PostgresStore) HasProfileBonusEvent(ctx context.Context, profileID, orderID string) (bool, error) {
	const q = `
SELECT EXISTS (
    SELECT 1 FROM partner_bonus_events
    WHERE profile_id = $1 AND order_id = $2
);
`
	var exists bool
	if err := s.pool.QueryRow(ctx, q, profileID, orderID).Scan(&exists); err != nil {
		return false, fmt.Errorf("has profile bonus event: %w", err)
	}
	return exists, nil
}
