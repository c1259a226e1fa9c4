package store

import (
	"context"
	"fmt"
)

// UpsertReferral records a referral edge. At most one edge exists per
// (profile, referred, level) triple; replaying the same edge returns the
// stored row instead of inserting a duplicate.
func (s *PostgresStore) UpsertReferral(ctx context.Context, edge PartnerReferral) (*PartnerReferral, error) {
	const q = `
INSERT INTO partner_referrals (profile_id, referred_id, level, referral_type, contact)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (profile_id, referred_id, level) DO UPDATE SET
    contact = COALESCE(EXCLUDED.contact, partner_referrals.contact)
RETURNING id, profile_id, referred_id, level, referral_type, contact, created_at;
`
	row := s.pool.QueryRow(ctx, q, edge.ProfileID, edge.ReferredID, edge.Level, edge.ReferralType, edge.Contact)
	var out PartnerReferral
	if err := row.Scan(&out.ID, &out.ProfileID, &out.ReferredID, &out.Level, &out.ReferralType, &out.Contact, &out.CreatedAt); err != nil {
		return nil, fmt.Errorf("upsert referral: %w", err)
	}
	return &out, nil
}

// ListReferralsByReferred returns the edges crediting partners for the given
// downstream user, oldest first.
func (s *PostgresStore) ListReferralsByReferred(ctx context.Context, referredID string) ([]PartnerReferral, error) {
	const q = `
SELECT id, profile_id, referred_id, level, referral_type, contact, created_at
FROM partner_referrals
WHERE referred_id = $1
ORDER BY created_at ASC;
`
	rows, err := s.pool.Query(ctx, q, referredID)
	if err != nil {
		return nil, fmt.Errorf("list referrals by referred: %w", err)
	}
	defer rows.Close()

	var edges []PartnerReferral
	for rows.Next() {
		var e PartnerReferral
		if err := rows.Scan(&e.ID, &e.ProfileID, &e.ReferredID, &e.Level, &e.ReferralType, &e.Contact, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan referral: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate referrals: %w", err)
	}
	return edges, nil
}

// CountReferralsByProfile counts the edges a profile holds credit for.
func (s *PostgresStore) CountReferralsByProfile(ctx context.Context, profileID string) (int64, error) {
	const q = `SELECT COUNT(*) FROM partner_referrals WHERE profile_id = $1;`
	var n int64
	if err := s.pool.QueryRow(ctx, q, profileID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count referrals: %w", err)
	}
	return n, nil
}
