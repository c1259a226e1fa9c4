package store

import (
	"context"
	"errors"
	"io/fs"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested record does not exist. All other
// store failures wrap the driver error and should be treated as transient.
var ErrNotFound = errors.New("store: record not found")

// Store defines the interface for referral data persistence.
type Store interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context, filesystem fs.FS) error

	// Users
	UpsertUserByTG(ctx context.Context, profile UserProfile) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	SetUserBalance(ctx context.Context, userID string, balance decimal.Decimal) error

	// Partner profiles
	GetProfileByID(ctx context.Context, id string) (*PartnerProfile, error)
	GetProfileByUserID(ctx context.Context, userID string) (*PartnerProfile, error)
	GetProfileByCode(ctx context.Context, code string) (*PartnerProfile, error)
	GetOrCreateProfile(ctx context.Context, userID string, program ProgramType) (*PartnerProfile, error)
	SetProfileActivation(ctx context.Context, profileID string, upd ActivationUpdate) (*PartnerProfile, error)
	SetProfileBalance(ctx context.Context, profileID string, balance decimal.Decimal) error

	// Referral edges
	UpsertReferral(ctx context.Context, edge PartnerReferral) (*PartnerReferral, error)
	ListReferralsByReferred(ctx context.Context, referredID string) ([]PartnerReferral, error)
	CountReferralsByProfile(ctx context.Context, profileID string) (int64, error)

	// Ledger
	InsertTransaction(ctx context.Context, tx PartnerTransaction) (*PartnerTransaction, error)
	ListTransactions(ctx context.Context, profileID string) ([]PartnerTransaction, error)

	// Activation audit trail
	InsertActivationHistory(ctx context.Context, row PartnerActivationHistory) error
	ListActivationHistory(ctx context.Context, profileID string, limit int) ([]PartnerActivationHistory, error)

	// Bonus-distribution idempotency markers
	InsertBonusEvent(ctx context.Context, ev BonusEvent) error
	HasBonusEvent(ctx context.Context, referredUserID, orderID string) (bool, error)
	HasProfileBonusEvent(ctx context.Context, profileID, orderID string) (bool, error)
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
