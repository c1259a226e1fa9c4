package referral

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"partner-bot/internal/metrics"
	"partner-bot/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	store      *store.MemoryStore
	activation *ActivationManager
	resolver   *Resolver
	ledger     *Ledger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := testLogger()
	reg := metrics.Registry("test")
	st := store.NewMemory()
	return &testEnv{
		store: st,
		activation: NewActivationManager(st, logger, reg, ActivationConfig{
			PurchaseThreshold: decimal.NewFromInt(5000),
			ActivationMonths:  12,
		}),
		resolver: NewResolver(st, nil, time.Minute, logger),
		ledger:   NewLedger(st, logger, reg),
	}
}

// newPartner creates a user with a partner profile under the given program.
func (e *testEnv) newPartner(t *testing.T, tgID int64, program store.ProgramType) (*store.User, *store.PartnerProfile) {
	t.Helper()
	ctx := context.Background()
	user, err := e.store.UpsertUserByTG(ctx, store.UserProfile{TGID: tgID})
	if err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	profile, err := e.store.GetOrCreateProfile(ctx, user.ID, program)
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	return user, profile
}

// newUser creates a user without a partner profile.
func (e *testEnv) newUser(t *testing.T, tgID int64) *store.User {
	t.Helper()
	user, err := e.store.UpsertUserByTG(context.Background(), store.UserProfile{TGID: tgID})
	if err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	return user
}

// invite records the level-1 edge crediting inviter's profile for referred.
func (e *testEnv) invite(t *testing.T, inviter *store.PartnerProfile, referredUserID string) {
	t.Helper()
	_, err := e.store.UpsertReferral(context.Background(), store.PartnerReferral{
		ProfileID:    inviter.ID,
		ReferredID:   referredUserID,
		Level:        1,
		ReferralType: inviter.ProgramType,
	})
	if err != nil {
		t.Fatalf("upsert referral: %v", err)
	}
}

// activate marks the partner active with an expiry one year out.
func (e *testEnv) activate(t *testing.T, profile *store.PartnerProfile) {
	t.Helper()
	now := time.Now().UTC()
	expires := now.Add(365 * 24 * time.Hour)
	actType := store.ActivationPurchase
	_, err := e.store.SetProfileActivation(context.Background(), profile.ID, store.ActivationUpdate{
		IsActive:       true,
		ActivatedAt:    &now,
		ExpiresAt:      &expires,
		ActivationType: &actType,
	})
	if err != nil {
		t.Fatalf("set activation: %v", err)
	}
}
