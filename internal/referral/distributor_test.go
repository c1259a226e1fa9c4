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

type recordingNotifier struct {
	sent []string
	err  error
}

func (n *recordingNotifier) Notify(ctx context.Context, chatID int64, text string) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, text)
	return nil
}

func (e *testEnv) newDistributor(notifier *recordingNotifier) *Distributor {
	return NewDistributor(e.store, e.resolver, e.activation, e.ledger, notifier, metrics.Registry("test"), testLogger())
}

// buildChain creates A -> B -> C where A referred B and B referred C, all
// under MULTI_LEVEL, with A and B active.
func buildChain(t *testing.T, env *testEnv) (a, b *store.PartnerProfile, buyer *store.User) {
	t.Helper()
	_, profA := env.newPartner(t, 600, store.ProgramMultiLevel)
	userB, profB := env.newPartner(t, 601, store.ProgramMultiLevel)
	buyer = env.newUser(t, 602)

	env.invite(t, profA, userB.ID)
	env.invite(t, profB, buyer.ID)
	env.activate(t, profA)
	env.activate(t, profB)
	return profA, profB, buyer
}

func TestDistributeMultiLevelChain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	notifier := &recordingNotifier{}
	dist := env.newDistributor(notifier)
	profA, profB, buyer := buildChain(t, env)

	awards, err := dist.Distribute(ctx, buyer.ID, decimal.NewFromInt(1000), "o-42")
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if len(awards) != 2 {
		t.Fatalf("expected 2 awards, got %d", len(awards))
	}

	byProfile := map[string]Award{}
	for _, a := range awards {
		byProfile[a.ProfileID] = a
	}
	if got := byProfile[profB.ID]; got.Level != 1 || !got.Amount.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("level-1 award = %+v, want level 1 amount 150", got)
	}
	if got := byProfile[profA.ID]; got.Level != 2 || !got.Amount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("level-2 award = %+v, want level 2 amount 50", got)
	}

	for _, want := range []struct {
		profileID string
		balance   int64
	}{
		{profB.ID, 150},
		{profA.ID, 50},
	} {
		prof, err := env.store.GetProfileByID(ctx, want.profileID)
		if err != nil {
			t.Fatalf("reload %s: %v", want.profileID, err)
		}
		if !prof.Balance.Equal(decimal.NewFromInt(want.balance)) {
			t.Fatalf("profile %s balance = %s, want %d", want.profileID, prof.Balance, want.balance)
		}
	}

	if len(notifier.sent) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(notifier.sent))
	}
}

func TestDistributeReplayIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dist := env.newDistributor(&recordingNotifier{})
	profA, profB, buyer := buildChain(t, env)

	if _, err := dist.Distribute(ctx, buyer.ID, decimal.NewFromInt(1000), "o-42"); err != nil {
		t.Fatalf("first distribute: %v", err)
	}

	awards, err := dist.Distribute(ctx, buyer.ID, decimal.NewFromInt(1000), "o-42")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(awards) != 0 {
		t.Fatalf("expected no awards on replay, got %d", len(awards))
	}

	for _, p := range []struct {
		id   string
		want int64
	}{{profB.ID, 150}, {profA.ID, 50}} {
		prof, err := env.store.GetProfileByID(ctx, p.id)
		if err != nil {
			t.Fatalf("reload: %v", err)
		}
		if !prof.Balance.Equal(decimal.NewFromInt(p.want)) {
			t.Fatalf("replay changed balance of %s to %s", p.id, prof.Balance)
		}
	}
}

func TestDistributeEmptyChain(t *testing.T) {
	env := newTestEnv(t)
	dist := env.newDistributor(&recordingNotifier{})
	buyer := env.newUser(t, 610)

	awards, err := dist.Distribute(context.Background(), buyer.ID, decimal.NewFromInt(1000), "o-1")
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if len(awards) != 0 {
		t.Fatalf("expected no awards, got %d", len(awards))
	}
}

func TestDistributeInactiveLevelOne(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dist := env.newDistributor(&recordingNotifier{})

	_, inviter := env.newPartner(t, 620, store.ProgramMultiLevel)
	buyer := env.newUser(t, 621)
	env.invite(t, inviter, buyer.ID)

	awards, err := dist.Distribute(ctx, buyer.ID, decimal.NewFromInt(1000), "o-2")
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if len(awards) != 1 {
		t.Fatalf("expected 1 award, got %d", len(awards))
	}
	if !awards[0].Amount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("inactive level-1 award = %s, want 100", awards[0].Amount)
	}
}

func TestDistributeNotifierFailureDoesNotAffectAwards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dist := env.newDistributor(&recordingNotifier{err: errors.New("telegram down")})
	_, profB, buyer := buildChain(t, env)

	awards, err := dist.Distribute(ctx, buyer.ID, decimal.NewFromInt(1000), "o-3")
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if len(awards) != 2 {
		t.Fatalf("expected 2 awards despite notifier failure, got %d", len(awards))
	}
	prof, err := env.store.GetProfileByID(ctx, profB.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !prof.Balance.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("balance = %s, want 150", prof.Balance)
	}
}

type failingTxStore struct {
	store.Store
	failProfileID string
}

func (s *failingTxStore) InsertTransaction(ctx context.Context, tx store.PartnerTransaction) (*store.PartnerTransaction, error) {
	if tx.ProfileID == s.failProfileID {
		return nil, errors.New("insert rejected")
	}
	return s.Store.InsertTransaction(ctx, tx)
}

func TestDistributePartialFailureContinues(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	profA, profB, buyer := buildChain(t, env)

	// Credits to the level-1 partner fail; the level-2 partner must still
	// receive their bonus.
	flaky := &failingTxStore{Store: env.store, failProfileID: profB.ID}
	logger := testLogger()
	reg := metrics.Registry("test")
	ledger := NewLedger(flaky, logger, reg)
	dist := NewDistributor(flaky, NewResolver(flaky, nil, time.Minute, logger), env.activation, ledger, &recordingNotifier{}, reg, logger)

	awards, err := dist.Distribute(ctx, buyer.ID, decimal.NewFromInt(1000), "o-4")
	if err == nil {
		t.Fatal("expected joined error for the failed credit")
	}
	if len(awards) != 1 {
		t.Fatalf("expected 1 award, got %d", len(awards))
	}
	if awards[0].ProfileID != profA.ID || !awards[0].Amount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("surviving award = %+v, want profile %s amount 50", awards[0], profA.ID)
	}
}

func TestDistributeRetryFinishesPartialRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	profA, profB, buyer := buildChain(t, env)

	// First run: the level-1 partner's credit fails, the level-2 partner is
	// credited and marked.
	flaky := &failingTxStore{Store: env.store, failProfileID: profB.ID}
	logger := testLogger()
	reg := metrics.Registry("test")
	flakyDist := NewDistributor(flaky, NewResolver(flaky, nil, time.Minute, logger), env.activation, NewLedger(flaky, logger, reg), &recordingNotifier{}, reg, logger)
	if _, err := flakyDist.Distribute(ctx, buyer.ID, decimal.NewFromInt(1000), "o-5"); err == nil {
		t.Fatal("expected joined error for the failed credit")
	}

	// Retry with a healthy store: only the missed partner is credited.
	awards, err := env.newDistributor(&recordingNotifier{}).Distribute(ctx, buyer.ID, decimal.NewFromInt(1000), "o-5")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(awards) != 1 {
		t.Fatalf("expected 1 award on retry, got %d", len(awards))
	}
	if awards[0].ProfileID != profB.ID || !awards[0].Amount.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("retry award = %+v, want profile %s amount 150", awards[0], profB.ID)
	}

	for _, want := range []struct {
		profileID string
		balance   int64
	}{
		{profB.ID, 150},
		{profA.ID, 50},
	} {
		prof, err := env.store.GetProfileByID(ctx, want.profileID)
		if err != nil {
			t.Fatalf("reload %s: %v", want.profileID, err)
		}
		if !prof.Balance.Equal(decimal.NewFromInt(want.balance)) {
			t.Fatalf("profile %s balance = %s, want %d", want.profileID, prof.Balance, want.balance)
		}
	}
}
