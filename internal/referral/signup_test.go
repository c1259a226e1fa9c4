package referral

import (
	"context"
	"errors"
	"testing"

	"partner-bot/internal/store"
)

func TestRecordSignup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := NewSignupService(env.store, env.resolver, testLogger())

	inviterUser, inviter := env.newPartner(t, 700, store.ProgramDirect)
	newcomer := env.newUser(t, 701)

	edge, err := svc.RecordSignup(ctx, newcomer.ID, "ref_direct_"+inviter.ReferralCode, nil)
	if err != nil {
		t.Fatalf("record signup: %v", err)
	}
	if edge.ProfileID != inviter.ID || edge.Level != 1 {
		t.Fatalf("edge = %+v, want level-1 edge for inviter", edge)
	}
	if edge.ReferralType != store.ProgramDirect {
		t.Fatalf("edge referral type = %s, want inviter's program", edge.ReferralType)
	}

	// Replaying the same signup keeps a single edge.
	if _, err := svc.RecordSignup(ctx, newcomer.ID, "ref_direct_"+inviter.ReferralCode, nil); err != nil {
		t.Fatalf("replay signup: %v", err)
	}
	count, err := env.store.CountReferralsByProfile(ctx, inviter.ID)
	if err != nil {
		t.Fatalf("count referrals: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 edge after replay, got %d", count)
	}

	// The chain now reaches the inviter.
	chain, err := env.resolver.ResolveChain(ctx, newcomer.ID)
	if err != nil {
		t.Fatalf("resolve chain: %v", err)
	}
	if len(chain) != 1 || chain[0].Profile.UserID != inviterUser.ID {
		t.Fatalf("chain = %+v, want the inviter at level 1", chain)
	}
}

func TestRecordSignupRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := NewSignupService(env.store, env.resolver, testLogger())

	inviterUser, inviter := env.newPartner(t, 710, store.ProgramMultiLevel)
	newcomer := env.newUser(t, 711)

	if _, err := svc.RecordSignup(ctx, newcomer.ID, "hello", nil); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
	if _, err := svc.RecordSignup(ctx, newcomer.ID, "ref_multi_NOSUCHCODE", nil); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
	if _, err := svc.RecordSignup(ctx, inviterUser.ID, "ref_multi_"+inviter.ReferralCode, nil); !errors.Is(err, ErrSelfReferral) {
		t.Fatalf("expected ErrSelfReferral, got %v", err)
	}
}
