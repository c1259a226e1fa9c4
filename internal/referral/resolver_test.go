package referral

import (
	"context"
	"testing"

	"partner-bot/internal/store"
)

func TestResolveChainDepthBound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Five ancestry levels: buyer invited by p1, p1's owner by p2, and so on.
	buyer := env.newUser(t, 100)
	previous := buyer
	var profiles []*store.PartnerProfile
	for i := 0; i < 5; i++ {
		user, profile := env.newPartner(t, int64(101+i), store.ProgramMultiLevel)
		env.invite(t, profile, previous.ID)
		profiles = append(profiles, profile)
		previous = user
	}

	chain, err := env.resolver.ResolveChain(ctx, buyer.ID)
	if err != nil {
		t.Fatalf("resolve chain: %v", err)
	}
	if len(chain) != MaxChainDepth {
		t.Fatalf("expected %d entries, got %d", MaxChainDepth, len(chain))
	}
	for i, entry := range chain {
		if entry.Level != i+1 {
			t.Fatalf("entry %d: expected level %d, got %d", i, i+1, entry.Level)
		}
		if entry.Profile.ID != profiles[i].ID {
			t.Fatalf("entry %d: expected profile %s, got %s", i, profiles[i].ID, entry.Profile.ID)
		}
		if entry.ReferralType != store.ProgramMultiLevel {
			t.Fatalf("entry %d: unexpected referral type %s", i, entry.ReferralType)
		}
	}
}

func TestResolveChainEmptyForUnreferredUser(t *testing.T) {
	env := newTestEnv(t)

	buyer := env.newUser(t, 200)
	chain, err := env.resolver.ResolveChain(context.Background(), buyer.ID)
	if err != nil {
		t.Fatalf("resolve chain: %v", err)
	}
	if len(chain) != 0 {
		t.Fatalf("expected empty chain, got %d entries", len(chain))
	}
}

func TestResolveChainSkipsDanglingEdges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	buyer := env.newUser(t, 300)
	_, inviter := env.newPartner(t, 301, store.ProgramDirect)
	env.invite(t, inviter, buyer.ID)

	// An edge pointing at a profile that no longer exists must not fail the walk.
	if _, err := env.store.UpsertReferral(ctx, store.PartnerReferral{
		ProfileID:    "gone",
		ReferredID:   buyer.ID,
		Level:        1,
		ReferralType: store.ProgramDirect,
	}); err != nil {
		t.Fatalf("upsert dangling edge: %v", err)
	}

	chain, err := env.resolver.ResolveChain(ctx, buyer.ID)
	if err != nil {
		t.Fatalf("resolve chain: %v", err)
	}
	if len(chain) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(chain))
	}
	if chain[0].Profile.ID != inviter.ID {
		t.Fatalf("expected profile %s, got %s", inviter.ID, chain[0].Profile.ID)
	}
}
