package referral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"partner-bot/internal/store"
)

// SignupService records the level-1 referral edge when a new user arrives
// through a tracked link. Deeper levels are never stored; they emerge from
// the graph walk at distribution time.
type SignupService struct {
	store    store.Store
	resolver *Resolver
	logger   *slog.Logger
}

// NewSignupService creates the signup flow adapter.
func NewSignupService(st store.Store, resolver *Resolver, logger *slog.Logger) *SignupService {
	return &SignupService{
		store:    st,
		resolver: resolver,
		logger:   logger.With("component", "signup"),
	}
}

// RecordSignup resolves the inviter from the /start payload and upserts the
// level-1 edge crediting them for newUserID. Replaying the same signup is a
// no-op thanks to the edge uniqueness constraint. The edge's referral type is
// the inviter profile's program at this moment, frozen for the edge's
// lifetime.
func (s *SignupService) RecordSignup(ctx context.Context, newUserID, startPayload string, contact *string) (*store.PartnerReferral, error) {
	code, _, ok := ParseStartPayload(startPayload)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPayload, startPayload)
	}

	profile, err := s.store.GetProfileByCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: code %q", ErrProfileNotFound, code)
		}
		return nil, fmt.Errorf("lookup inviter: %w", err)
	}
	if profile.UserID == newUserID {
		return nil, ErrSelfReferral
	}

	edge, err := s.store.UpsertReferral(ctx, store.PartnerReferral{
		ProfileID:    profile.ID,
		ReferredID:   newUserID,
		Level:        1,
		ReferralType: profile.ProgramType,
		Contact:      contact,
	})
	if err != nil {
		return nil, fmt.Errorf("record referral edge: %w", err)
	}

	s.resolver.InvalidateChain(ctx, newUserID)
	s.logger.Info("referral signup recorded",
		"inviter_profile", profile.ID,
		"referred_user", newUserID,
		"referral_type", edge.ReferralType,
	)
	return edge, nil
}
