package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProgramType selects the payout table a referral edge is recorded under.
// The choice is made at profile creation and is frozen into every edge the
// profile creates afterwards.
type ProgramType string

const (
	ProgramDirect     ProgramType = "DIRECT"
	ProgramMultiLevel ProgramType = "MULTI_LEVEL"
)

// ActivationType records how a partner profile was activated.
type ActivationType string

const (
	ActivationPurchase ActivationType = "PURCHASE"
	ActivationAdmin    ActivationType = "ADMIN"
)

// TxType is the sign of a ledger entry. Amounts are always positive
// magnitudes; the type carries the sign.
type TxType string

const (
	TxCredit TxType = "CREDIT"
	TxDebit  TxType = "DEBIT"
)

// AuditAction is the kind of activation-history row.
type AuditAction string

const (
	AuditActivated   AuditAction = "ACTIVATED"
	AuditDeactivated AuditAction = "DEACTIVATED"
)

// User represents the users table row. TGID is the Telegram account the
// bot talks to; Balance mirrors the partner profile balance so the bot can
// show it without joining partner tables.
type User struct {
	ID          string
	TGID        int64
	Username    *string
	DisplayName *string
	Balance     decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserProfile carries data used to upsert a user.
type UserProfile struct {
	TGID        int64
	Username    *string
	DisplayName *string
}

// PartnerProfile is a user's enrollment in the referral program.
//
// Balance and Bonus are derived fields: they always equal the signed sum of
// the profile's ledger transactions and are only written by the ledger
// recompute step, never mutated directly.
type PartnerProfile struct {
	ID             string
	UserID         string
	ReferralCode   string
	ProgramType    ProgramType
	IsActive       bool
	ActivatedAt    *time.Time
	ExpiresAt      *time.Time
	ActivationType *ActivationType
	Balance        decimal.Decimal
	Bonus          decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PartnerReferral is a directed edge: ProfileID is owed credit for
// ReferredID's activity. At most one edge exists per
// (profile, referred, level) triple.
type PartnerReferral struct {
	ID           string
	ProfileID    string
	ReferredID   string
	Level        int
	ReferralType ProgramType
	Contact      *string
	CreatedAt    time.Time
}

// PartnerTransaction is an append-only ledger entry. Amount is a positive
// magnitude; TxType carries the sign.
type PartnerTransaction struct {
	ID          string
	ProfileID   string
	Amount      decimal.Decimal
	Type        TxType
	Description string
	CreatedAt   time.Time
}

// PartnerActivationHistory is an append-only audit row for activation state
// changes. It is never read by the bonus path, only by reporting.
type PartnerActivationHistory struct {
	ID             string
	ProfileID      string
	Action         AuditAction
	ActivationType *ActivationType
	Reason         string
	ExpiresAt      *time.Time
	AdminID        *string
	CreatedAt      time.Time
}

// BonusEvent is the durable idempotency marker proving a bonus was already
// distributed to ProfileID for OrderID. Unique on (profile_id, order_id).
type BonusEvent struct {
	ID             string
	ProfileID      string
	ReferredUserID string
	OrderID        string
	Amount         decimal.Decimal
	CreatedAt      time.Time
}

// ActivationUpdate describes a partner activation state write. Nil pointer
// fields leave the stored value unchanged.
type ActivationUpdate struct {
	IsActive       bool
	ActivatedAt    *time.Time
	ExpiresAt      *time.Time
	ActivationType *ActivationType
}
