package referral

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"partner-bot/internal/metrics"
	"partner-bot/internal/store"
)

func TestActivateRequiresProfile(t *testing.T) {
	env := newTestEnv(t)
	user := env.newUser(t, 400)

	_, err := env.activation.Activate(context.Background(), user.ID, store.ActivationAdmin, 12, "", nil)
	if !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestActivateSetsStateAndAuditRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, profile := env.newPartner(t, 401, store.ProgramMultiLevel)

	updated, err := env.activation.Activate(ctx, user.ID, store.ActivationPurchase, 6, "", nil)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if !updated.IsActive {
		t.Fatal("expected active profile")
	}
	if updated.ActivatedAt == nil || updated.ExpiresAt == nil {
		t.Fatal("expected activation timestamps")
	}
	wantExpiry := updated.ActivatedAt.Add(6 * monthLength)
	if !updated.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expected expiry %v, got %v", wantExpiry, updated.ExpiresAt)
	}
	if updated.ActivationType == nil || *updated.ActivationType != store.ActivationPurchase {
		t.Fatal("expected PURCHASE activation type")
	}

	history, err := env.store.ListActivationHistory(ctx, profile.ID, 10)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(history))
	}
	if history[0].Action != store.AuditActivated {
		t.Fatalf("expected ACTIVATED, got %s", history[0].Action)
	}
	if history[0].Reason != ReasonPurchaseThreshold {
		t.Fatalf("expected default purchase reason, got %q", history[0].Reason)
	}
}

func TestDeactivateCapturesExpiryInEffect(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, profile := env.newPartner(t, 402, store.ProgramDirect)

	activated, err := env.activation.Activate(ctx, user.ID, store.ActivationAdmin, 12, "", nil)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}

	adminID := "admin-7"
	updated, err := env.activation.Deactivate(ctx, user.ID, "fraud review", &adminID)
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if updated.IsActive {
		t.Fatal("expected inactive profile")
	}

	history, err := env.store.ListActivationHistory(ctx, profile.ID, 10)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 audit rows, got %d", len(history))
	}
	latest := history[0]
	if latest.Action != store.AuditDeactivated {
		t.Fatalf("expected DEACTIVATED, got %s", latest.Action)
	}
	if latest.Reason != "fraud review" {
		t.Fatalf("unexpected reason %q", latest.Reason)
	}
	if latest.ExpiresAt == nil || !latest.ExpiresAt.Equal(*activated.ExpiresAt) {
		t.Fatal("expected audit row to capture the expiry that was in effect")
	}
	if latest.AdminID == nil || *latest.AdminID != adminID {
		t.Fatal("expected admin id on audit row")
	}
}

func TestIsCurrentlyActiveDoesNotMutateOnExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, profile := env.newPartner(t, 403, store.ProgramMultiLevel)

	if _, err := env.activation.Activate(ctx, user.ID, store.ActivationPurchase, 1, "", nil); err != nil {
		t.Fatalf("activate: %v", err)
	}

	// Move the manager clock past the one-month expiry.
	env.activation.now = func() time.Time { return time.Now().UTC().Add(40 * 24 * time.Hour) }

	if env.activation.IsCurrentlyActive(ctx, user.ID) {
		t.Fatal("expected inactive after expiry")
	}

	// Pure query: the stored flag must be untouched.
	stored, err := env.store.GetProfileByID(ctx, profile.ID)
	if err != nil {
		t.Fatalf("reload profile: %v", err)
	}
	if !stored.IsActive {
		t.Fatal("IsCurrentlyActive must not flip the stored flag")
	}

	// The mutating variant performs the deactivation and audits it.
	active, err := env.activation.CheckAndExpire(ctx, user.ID)
	if err != nil {
		t.Fatalf("check and expire: %v", err)
	}
	if active {
		t.Fatal("expected inactive result")
	}
	stored, err = env.store.GetProfileByID(ctx, profile.ID)
	if err != nil {
		t.Fatalf("reload profile: %v", err)
	}
	if stored.IsActive {
		t.Fatal("expected stored flag flipped by CheckAndExpire")
	}
	history, err := env.store.ListActivationHistory(ctx, profile.ID, 10)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if history[0].Action != store.AuditDeactivated || history[0].Reason != ReasonExpired {
		t.Fatalf("expected expired audit row, got %s %q", history[0].Action, history[0].Reason)
	}
}

type failingReadStore struct {
	store.Store
	err error
}

func (s *failingReadStore) GetProfileByUserID(ctx context.Context, userID string) (*store.PartnerProfile, error) {
	return nil, s.err
}

func TestIsCurrentlyActiveFailsClosedOnStoreError(t *testing.T) {
	env := newTestEnv(t)
	flaky := &failingReadStore{Store: env.store, err: errors.New("connection refused")}
	manager := NewActivationManager(flaky, testLogger(), metrics.Registry("test"), ActivationConfig{ActivationMonths: 12})

	if manager.IsCurrentlyActive(context.Background(), "anyone") {
		t.Fatal("expected inactive on store failure")
	}
}

func TestMaybeActivateByPurchase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, _ := env.newPartner(t, 404, store.ProgramMultiLevel)

	activated, err := env.activation.MaybeActivateByPurchase(ctx, user.ID, decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("below threshold: %v", err)
	}
	if activated {
		t.Fatal("expected no activation below threshold")
	}

	activated, err = env.activation.MaybeActivateByPurchase(ctx, user.ID, decimal.NewFromInt(5000))
	if err != nil {
		t.Fatalf("at threshold: %v", err)
	}
	if !activated {
		t.Fatal("expected activation at threshold")
	}

	// Non-partners are ignored.
	outsider := env.newUser(t, 405)
	activated, err = env.activation.MaybeActivateByPurchase(ctx, outsider.ID, decimal.NewFromInt(9000))
	if err != nil || activated {
		t.Fatalf("expected no-op for non-partner, got %v %v", activated, err)
	}
}
