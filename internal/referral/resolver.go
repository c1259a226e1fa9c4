package referral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"partner-bot/internal/cache"
	"partner-bot/internal/store"
)

// ChainEntry is one partner eligible for consideration when an order by a
// downstream user completes. ReferralType is the type frozen into the edge
// that was followed to reach this partner.
type ChainEntry struct {
	Profile      store.PartnerProfile `json:"profile"`
	Level        int                  `json:"level"`
	ReferralType store.ProgramType    `json:"referral_type"`
}

// Resolver walks the referral graph upward from an order's user and returns
// the ordered chain of partners, at most MaxChainDepth levels deep.
type Resolver struct {
	store  store.Store
	cache  *cache.Redis
	ttl    time.Duration
	logger *slog.Logger
}

// NewResolver creates a resolver. redis may be nil; the chain cache is an
// optimization only. Referral edges are append-only, so a cached chain can
// at worst miss a freshly recorded inviter for one TTL.
func NewResolver(st store.Store, redis *cache.Redis, ttl time.Duration, logger *slog.Logger) *Resolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Resolver{
		store:  st,
		cache:  redis,
		ttl:    ttl,
		logger: logger.With("component", "resolver"),
	}
}

func chainCacheKey(userID string) string {
	return "refchain:" + userID
}

// ResolveChain walks upward from orderUserID: the user's direct inviters are
// level 1, their inviters level 2, and so on up to MaxChainDepth. A user with
// no inviter yields an empty chain. The visited set guards against malformed
// cyclic data; well-formed graphs never trigger it.
func (r *Resolver) ResolveChain(ctx context.Context, orderUserID string) ([]ChainEntry, error) {
	key := chainCacheKey(orderUserID)
	var cached []ChainEntry
	if hit, err := r.cache.GetJSON(ctx, key, &cached); err != nil {
		r.logger.Warn("chain cache read failed", "user_id", orderUserID, "error", err)
	} else if hit {
		return cached, nil
	}

	var chain []ChainEntry
	visited := map[string]bool{orderUserID: true}
	frontier := []string{orderUserID}

	for level := 1; level <= MaxChainDepth && len(frontier) > 0; level++ {
		var next []string
		for _, userID := range frontier {
			edges, err := r.store.ListReferralsByReferred(ctx, userID)
			if err != nil {
				return nil, fmt.Errorf("resolve chain level %d: %w", level, err)
			}
			for _, edge := range edges {
				profile, err := r.store.GetProfileByID(ctx, edge.ProfileID)
				if err != nil {
					if errors.Is(err, store.ErrNotFound) {
						// Partial chain: an edge pointing at a deleted profile
						// skips that branch instead of failing the walk.
						r.logger.Warn("referral edge without profile", "edge_id", edge.ID, "profile_id", edge.ProfileID)
						continue
					}
					return nil, fmt.Errorf("resolve chain level %d: %w", level, err)
				}
				if visited[profile.UserID] {
					continue
				}
				visited[profile.UserID] = true
				chain = append(chain, ChainEntry{
					Profile:      *profile,
					Level:        level,
					ReferralType: edge.ReferralType,
				})
				next = append(next, profile.UserID)
			}
		}
		frontier = next
	}

	if err := r.cache.SetJSON(ctx, key, chain, r.ttl); err != nil {
		r.logger.Warn("chain cache write failed", "user_id", orderUserID, "error", err)
	}
	return chain, nil
}

// InvalidateChain drops the cached chain for a user, typically after a new
// referral edge is recorded for them.
func (r *Resolver) InvalidateChain(ctx context.Context, userID string) {
	if err := r.cache.Delete(ctx, chainCacheKey(userID)); err != nil {
		r.logger.Warn("chain cache invalidate failed", "user_id", userID, "error", err)
	}
}
