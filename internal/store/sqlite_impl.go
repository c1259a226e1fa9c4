package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func randomUUID() string {
	return uuid.NewString()
}

// -- Users --

func (s *SQLiteStore) UpsertUserByTG(ctx context.Context, profile UserProfile) (*User, error) {
	const q = `
INSERT INTO users (id, tg_id, username, display_name, updated_at)
VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (tg_id) DO UPDATE SET
    username = COALESCE(excluded.username, users.username),
    display_name = COALESCE(excluded.display_name, users.display_name),
    updated_at = CURRENT_TIMESTAMP
RETURNING id, tg_id, username, display_name, balance, created_at, updated_at;
`
	row := s.db.QueryRowContext(ctx, q, randomUUID(), profile.TGID, profile.Username, profile.DisplayName)
	u, err := scanUserSQL(row)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	const q = `
SELECT id, tg_id, username, display_name, balance, created_at, updated_at
FROM users
WHERE id = ?
LIMIT 1;
`
	u, err := scanUserSQL(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) SetUserBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	const q = `UPDATE users SET balance = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?;`
	ct, err := s.db.ExecContext(ctx, q, balance.String(), userID)
	if err != nil {
		return fmt.Errorf("set user balance: %w", err)
	}
	if n, _ := ct.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUserSQL(row *sql.Row) (*User, error) {
	var (
		u          User
		balanceStr string
	)
	if err := row.Scan(&u.ID, &u.TGID, &u.Username, &u.DisplayName, &balanceStr, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	u.Balance = balance
	return &u, nil
}

// -- Partner profiles --

const sqliteProfileColumns = `id, user_id, referral_code, program_type, is_active, activated_at, expires_at, activation_type, balance, bonus, created_at, updated_at`

func (s *SQLiteStore) GetProfileByID(ctx context.Context, id string) (*PartnerProfile, error) {
	const q = `SELECT ` + sqliteProfileColumns + ` FROM partner_profiles WHERE id = ? LIMIT 1;`
	return s.queryProfile(ctx, q, id)
}

func (s *SQLiteStore) GetProfileByUserID(ctx context.Context, userID string) (*PartnerProfile, error) {
	const q = `SELECT ` + sqliteProfileColumns + ` FROM partner_profiles WHERE user_id = ? LIMIT 1;`
	return s.queryProfile(ctx, q, userID)
}

func (s *SQLiteStore) GetProfileByCode(ctx context.Context, code string) (*PartnerProfile, error) {
	const q = `SELECT ` + sqliteProfileColumns + ` FROM partner_profiles WHERE referral_code = ? LIMIT 1;`
	return s.queryProfile(ctx, q, code)
}

func (s *SQLiteStore) GetOrCreateProfile(ctx context.Context, userID string, program ProgramType) (*PartnerProfile, error) {
	if existing, err := s.GetProfileByUserID(ctx, userID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	for attempt := 0; attempt < referralCodeAttempts; attempt++ {
		code := NewReferralCode()
		if _, err := s.GetProfileByCode(ctx, code); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}

		const q = `
INSERT INTO partner_profiles (id, user_id, referral_code, program_type)
VALUES (?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET updated_at = CURRENT_TIMESTAMP
RETURNING ` + sqliteProfileColumns + `;`
		p, err := scanProfileSQL(s.db.QueryRowContext(ctx, q, randomUUID(), userID, code, string(program)))
		if err != nil {
			return nil, fmt.Errorf("get or create profile: %w", err)
		}
		return p, nil
	}
	return nil, fmt.Errorf("get or create profile: could not generate unique referral code")
}

func (s *SQLiteStore) SetProfileActivation(ctx context.Context, profileID string, upd ActivationUpdate) (*PartnerProfile, error) {
	const q = `
UPDATE partner_profiles
SET is_active = ?,
    activated_at = COALESCE(?, activated_at),
    expires_at = COALESCE(?, expires_at),
    activation_type = COALESCE(?, activation_type),
    updated_at = CURRENT_TIMESTAMP
WHERE id = ?
RETURNING ` + sqliteProfileColumns + `;`
	var actType *string
	if upd.ActivationType != nil {
		v := string(*upd.ActivationType)
		actType = &v
	}
	p, err := scanProfileSQL(s.db.QueryRowContext(ctx, q, upd.IsActive, upd.ActivatedAt, upd.ExpiresAt, actType, profileID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("set profile activation: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) SetProfileBalance(ctx context.Context, profileID string, balance decimal.Decimal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin balance tx: %w", err)
	}
	defer tx.Rollback()

	const profileQ = `
UPDATE partner_profiles
SET balance = ?, bonus = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?
RETURNING user_id;`
	var userID string
	if err := tx.QueryRowContext(ctx, profileQ, balance.String(), balance.String(), profileID).Scan(&userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("set profile balance: %w", err)
	}

	const userQ = `UPDATE users SET balance = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?;`
	if _, err := tx.ExecContext(ctx, userQ, balance.String(), userID); err != nil {
		return fmt.Errorf("mirror user balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit balance tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) queryProfile(ctx context.Context, q string, arg any) (*PartnerProfile, error) {
	p, err := scanProfileSQL(s.db.QueryRowContext(ctx, q, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query profile: %w", err)
	}
	return p, nil
}

func scanProfileSQL(row *sql.Row) (*PartnerProfile, error) {
	var (
		p           PartnerProfile
		actType     sql.NullString
		activatedAt sql.NullTime
		expiresAt   sql.NullTime
		balanceStr  string
		bonusStr    string
		programType string
	)
	if err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.ReferralCode,
		&programType,
		&p.IsActive,
		&activatedAt,
		&expiresAt,
		&actType,
		&balanceStr,
		&bonusStr,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.ProgramType = ProgramType(programType)
	if actType.Valid {
		v := ActivationType(actType.String)
		p.ActivationType = &v
	}
	if activatedAt.Valid {
		t := activatedAt.Time
		p.ActivatedAt = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		p.ExpiresAt = &t
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

// -- Referral edges --

func (s *SQLiteStore) UpsertReferral(ctx context.Context, edge PartnerReferral) (*PartnerReferral, error) {
	const q = `
INSERT INTO partner_referrals (id, profile_id, referred_id, level, referral_type, contact)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (profile_id, referred_id, level) DO UPDATE SET
    contact = COALESCE(excluded.contact, partner_referrals.contact)
RETURNING id, profile_id, referred_id, level, referral_type, contact, created_at;
`
	row := s.db.QueryRowContext(ctx, q, randomUUID(), edge.ProfileID, edge.ReferredID, edge.Level, string(edge.ReferralType), edge.Contact)
	out, err := scanReferralSQL(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("upsert referral: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) ListReferralsByReferred(ctx context.Context, referredID string) ([]PartnerReferral, error) {
	const q = `
SELECT id, profile_id, referred_id, level, referral_type, contact, created_at
FROM partner_referrals
WHERE referred_id = ?
ORDER BY created_at ASC;
`
	rows, err := s.db.QueryContext(ctx, q, referredID)
	if err != nil {
		return nil, fmt.Errorf("list referrals by referred: %w", err)
	}
	defer rows.Close()

	var edges []PartnerReferral
	for rows.Next() {
		e, err := scanReferralSQL(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan referral: %w", err)
		}
		edges = append(edges, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate referrals: %w", err)
	}
	return edges, nil
}

func (s *SQLiteStore) CountReferralsByProfile(ctx context.Context, profileID string) (int64, error) {
	const q = `SELECT COUNT(*) FROM partner_referrals WHERE profile_id = ?;`
	var n int64
	if err := s.db.QueryRowContext(ctx, q, profileID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count referrals: %w", err)
	}
	return n, nil
}

func scanReferralSQL(scan func(...any) error) (*PartnerReferral, error) {
	var (
		e            PartnerReferral
		referralType string
		contact      sql.NullString
	)
	if err := scan(&e.ID, &e.ProfileID, &e.ReferredID, &e.Level, &referralType, &contact, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.ReferralType = ProgramType(referralType)
	if contact.Valid {
		v := contact.String
		e.Contact = &v
	}
	return &e, nil
}

// -- Ledger --

func (s *SQLiteStore) InsertTransaction(ctx context.Context, tx PartnerTransaction) (*PartnerTransaction, error) {
	tx.ID = randomUUID()
	const q = `
INSERT INTO partner_transactions (id, profile_id, amount, type, description)
VALUES (?, ?, ?, ?, ?)
RETURNING created_at;
`
	err := s.db.QueryRowContext(ctx, q, tx.ID, tx.ProfileID, tx.Amount.String(), string(tx.Type), tx.Description).
		Scan(&tx.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	return &tx, nil
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, profileID string) ([]PartnerTransaction, error) {
	const q = `
SELECT id, profile_id, amount, type, description, created_at
FROM partner_transactions
WHERE profile_id = ?
ORDER BY created_at ASC, id ASC;
`
	rows, err := s.db.QueryContext(ctx, q, profileID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []PartnerTransaction
	for rows.Next() {
		var (
			tx        PartnerTransaction
			amountStr string
			txType    string
		)
		if err := rows.Scan(&tx.ID, &tx.ProfileID, &amountStr, &txType, &tx.Description, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.Type = TxType(txType)
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

func (s *SQLiteStore) InsertBonusEvent(ctx context.Context, ev BonusEvent) error {
	const q = `
INSERT INTO partner_bonus_events (id, profile_id, referred_user_id, order_id, amount)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (profile_id, order_id) DO NOTHING;
`
	if _, err := s.db.ExecContext(ctx, q, randomUUID(), ev.ProfileID, ev.ReferredUserID, ev.OrderID, ev.Amount.String()); err != nil {
		return fmt.Errorf("insert bonus event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) HasBonusEvent(ctx context.Context, referredUserID, orderID string) (bool, error) {
	const q = `
SELECT EXISTS (
    SELECT 1 FROM partner_bonus_events
    WHERE referred_user_id = ? AND order_id = ?
);
`
	var exists bool
	if err := s.db.QueryRowContext(ctx, q, referredUserID, orderID).Scan(&exists); err != nil {
		return false, fmt.Errorf("has bonus event: %w", err)
	}
	return exists, nil
}

func (s *SQLiteStore) HasProfileBonusEvent(ctx context.Context, profileID, orderID string) (bool, error) {
	const q = `
SELECT EXISTS (
    SELECT 1 FROM partner_bonus_events
    WHERE profile_id = ? AND order_id = ?
);
`
	var exists bool
	if err := s.db.QueryRowContext(ctx, q, profileID, orderID).Scan(&exists); err != nil {
		return false, fmt.Errorf("has profile bonus event: %w", err)
	}
	return exists, nil
}

// -- Activation audit trail --

func (s *SQLiteStore) InsertActivationHistory(ctx context.Context, row PartnerActivationHistory) error {
	const q = `
INSERT INTO partner_activation_history (id, profile_id, action, activation_type, reason, expires_at, admin_id)
VALUES (?, ?, ?, ?, ?, ?, ?);
`
	var actType *string
	if row.ActivationType != nil {
		v := string(*row.ActivationType)
		actType = &v
	}
	if _, err := s.db.ExecContext(ctx, q, randomUUID(), row.ProfileID, string(row.Action), actType, row.Reason, row.ExpiresAt, row.AdminID); err != nil {
		return fmt.Errorf("insert activation history: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListActivationHistory(ctx context.Context, profileID string, limit int) ([]PartnerActivationHistory, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, profile_id, action, activation_type, reason, expires_at, admin_id, created_at
FROM partner_activation_history
WHERE profile_id = ?
ORDER BY created_at DESC
LIMIT ?;
`
	rows, err := s.db.QueryContext(ctx, q, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activation history: %w", err)
	}
	defer rows.Close()

	var history []PartnerActivationHistory
	for rows.Next() {
		var (
			h         PartnerActivationHistory
			action    string
			actType   sql.NullString
			expiresAt sql.NullTime
			adminID   sql.NullString
		)
		if err := rows.Scan(&h.ID, &h.ProfileID, &action, &actType, &h.Reason, &expiresAt, &adminID, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activation history: %w", err)
		}
		h.Action = AuditAction(action)
		if actType.Valid {
			v := ActivationType(actType.String)
			h.ActivationType = &v
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			h.ExpiresAt = &t
		}
		if adminID.Valid {
			v := adminID.String
			h.AdminID = &v
		}
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activation history: %w", err)
	}
	return history, nil
}
