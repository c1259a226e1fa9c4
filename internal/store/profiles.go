package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// referralCodeAttempts bounds the collision-retry loop when generating codes.
const referralCodeAttempts = 5

// NewReferralCode produces a short, shareable referral code.
func NewReferralCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:10])
}

const profileColumns = `id, user_id, referral_code, program_type, is_active, activated_at, expires_at, activation_type, balance::text, bonus::text, created_at, updated_at`

// GetProfileByID loads a partner profile by primary key.
func (s *PostgresStore) GetProfileByID(ctx context.Context, id string) (*PartnerProfile, error) {
	const q = `SELECT ` + profileColumns + ` FROM partner_profiles WHERE id = $1 LIMIT 1;`
	return s.queryProfile(ctx, q, id)
}

// GetProfileByUserID loads the partner profile owned by the given user.
func (s *PostgresStore) GetProfileByUserID(ctx context.Context, userID string) (*PartnerProfile, error) {
	const q = `SELECT ` + profileColumns + ` FROM partner_profiles WHERE user_id = $1 LIMIT 1;`
	return s.queryProfile(ctx, q, userID)
}

// GetProfileByCode loads a partner profile by its referral code.
func (s *PostgresStore) GetProfileByCode(ctx context.Context, code string) (*PartnerProfile, error) {
	const q = `SELECT ` + profileColumns + ` FROM partner_profiles WHERE referral_code = $1 LIMIT 1;`
	return s.queryProfile(ctx, q, code)
}

// GetOrCreateProfile returns the user's partner profile, creating it with a
// freshly generated collision-checked referral code on first need. The upsert
// makes concurrent first calls for the same user converge on one row.
func (s *PostgresStore) GetOrCreateProfile(ctx context.Context, userID string, program ProgramType) (*PartnerProfile, error) {
	for attempt := 0; attempt < referralCodeAttempts; attempt++ {
		code := NewReferralCode()
		if _, err := s.GetProfileByCode(ctx, code); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}

		const q = `
INSERT INTO partner_profiles (user_id, referral_code, program_type)
VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
RETURNING ` + profileColumns + `;`
		p, err := scanProfile(s.pool.QueryRow(ctx, q, userID, code, program))
		if err != nil {
			if isUniqueViolation(err) {
				continue
			}
			return nil, fmt.Errorf("get or create profile: %w", err)
		}
		return p, nil
	}
	return nil, fmt.Errorf("get or create profile: could not generate unique referral code")
}

// SetProfileActivation writes the activation state. Nil pointer fields in upd
// keep their stored values.
func (s *PostgresStore) SetProfileActivation(ctx context.Context, profileID string, upd ActivationUpdate) (*PartnerProfile, error) {
	const q = `
UPDATE partner_profiles
SET is_active = $2,
    activated_at = COALESCE($3, activated_at),
    expires_at = COALESCE($4, expires_at),
    activation_type = COALESCE($5, activation_type),
    updated_at = NOW()
WHERE id = $1
RETURNING ` + profileColumns + `;`
	var actType *string
	if upd.ActivationType != nil {
		v := string(*upd.ActivationType)
		actType = &v
	}
	p, err := scanProfile(s.pool.QueryRow(ctx, q, profileID, upd.IsActive, upd.ActivatedAt, upd.ExpiresAt, actType))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("set profile activation: %w", err)
	}
	return p, nil
}

// SetProfileBalance writes the derived balance and bonus fields and mirrors
// the value onto the owning user row, in one transaction.
func (s *PostgresStore) SetProfileBalance(ctx context.Context, profileID string, balance decimal.Decimal) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		const profileQ = `
UPDATE partner_profiles
SET balance = $2, bonus = $2, updated_at = NOW()
WHERE id = $1
RETURNING user_id;`
		var userID string
		if err := tx.QueryRow(ctx, profileQ, profileID, balance.String()).Scan(&userID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("set profile balance: %w", err)
		}

		const userQ = `UPDATE users SET balance = $2, updated_at = NOW() WHERE id = $1;`
		if _, err := tx.Exec(ctx, userQ, userID, balance.String()); err != nil {
			return fmt.Errorf("mirror user balance: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) queryProfile(ctx context.Context, q string, arg any) (*PartnerProfile, error) {
	p, err := scanProfile(s.pool.QueryRow(ctx, q, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query profile: %w", err)
	}
	return p, nil
}

func scanProfile(row pgx.Row) (*PartnerProfile, error) {
	var (
		p          PartnerProfile
		actType    *string
		balanceStr string
		bonusStr   string
	)
	if err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.ReferralCode,
		&p.ProgramType,
		&p.IsActive,
		&p.ActivatedAt,
		&p.ExpiresAt,
		&actType,
		&balanceStr,
		&bonusStr,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if actType != nil {
		v := ActivationType(*actType)
		p.ActivationType = &v
	}
	var err error
	if p.Balance, err = decimal.NewFromString(balanceStr); err != nil {
		return nil, fmt.Errorf("parse profile balance: %w", err)
	}
	if p.Bonus, err = decimal.NewFromString(bonusStr); err != nil {
		return nil, fmt.Errorf("parse profile bonus: %w", err)
	}
	return &p, nil
}
