package referral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"partner-bot/internal/metrics"
	"partner-bot/internal/store"
)

// Default audit reasons for activation state changes.
const (
	ReasonPurchaseThreshold = "purchase threshold reached"
	ReasonAdminActivation   = "admin activation"
	ReasonExpired           = "expired"
)

// monthLength is the fixed month used for activation expiry arithmetic.
const monthLength = 30 * 24 * time.Hour

// ActivationConfig carries the purchase-threshold activation policy.
type ActivationConfig struct {
	PurchaseThreshold decimal.Decimal
	ActivationMonths  int
}

// ActivationManager owns the partner activation state machine and its audit
// trail.
type ActivationManager struct {
	store   store.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	cfg     ActivationConfig
	now     func() time.Time
}

// NewActivationManager creates an activation manager using the real clock.
func NewActivationManager(st store.Store, logger *slog.Logger, metricRegistry *metrics.Metrics, cfg ActivationConfig) *ActivationManager {
	if cfg.ActivationMonths <= 0 {
		cfg.ActivationMonths = 12
	}
	return &ActivationManager{
		store:   st,
		logger:  logger.With("component", "activation"),
		metrics: metricRegistry,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Activate marks an existing partner profile active for the given number of
// 30-day months and appends an ACTIVATED audit row. An empty reason gets the
// default for the activation type.
func (m *ActivationManager) Activate(ctx context.Context, userID string, activationType store.ActivationType, months int, reason string, adminID *string) (*store.PartnerProfile, error) {
	profile, err := m.getProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return m.activateProfile(ctx, profile, activationType, months, reason, adminID)
}

// Deactivate marks an existing partner profile inactive and appends a
// DEACTIVATED audit row capturing the expiry that was in effect.
func (m *ActivationManager) Deactivate(ctx context.Context, userID, reason string, adminID *string) (*store.PartnerProfile, error) {
	profile, err := m.getProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return m.deactivateProfile(ctx, profile, reason, adminID)
}

// IsCurrentlyActive is a pure, side-effect-free activation check used on the
// hot bonus path. It returns false for missing profiles, inactive profiles,
// and profiles whose expiry has passed. Store failures degrade to inactive
// instead of blocking the order flow.
func (m *ActivationManager) IsCurrentlyActive(ctx context.Context, userID string) bool {
	profile, err := m.store.GetProfileByUserID(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.logger.Warn("activation check degraded to inactive", "user_id", userID, "error", err)
			m.metrics.Errors.WithLabelValues("activation").Inc()
			m.metrics.ActivationChecks.WithLabelValues("error").Inc()
			return false
		}
		m.metrics.ActivationChecks.WithLabelValues("inactive").Inc()
		return false
	}

	active := m.activeNow(profile)
	if active {
		m.metrics.ActivationChecks.WithLabelValues("active").Inc()
	} else {
		m.metrics.ActivationChecks.WithLabelValues("inactive").Inc()
	}
	return active
}

// CheckAndExpire reports whether the partner is active and, unlike
// IsCurrentlyActive, deactivates profiles whose expiry has passed. Only for
// low-frequency user-initiated paths such as the dashboard.
func (m *ActivationManager) CheckAndExpire(ctx context.Context, userID string) (bool, error) {
	profile, err := m.store.GetProfileByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("check and expire: %w", err)
	}

	if !profile.IsActive {
		return false, nil
	}
	if profile.ExpiresAt != nil && !profile.ExpiresAt.After(m.now()) {
		if _, err := m.deactivateProfile(ctx, profile, ReasonExpired, nil); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// MaybeActivateByPurchase activates a partner via the purchase threshold when
// a qualifying order of their own completes. Users without a partner profile
// are ignored. Returns true when an activation happened.
func (m *ActivationManager) MaybeActivateByPurchase(ctx context.Context, userID string, orderTotal decimal.Decimal) (bool, error) {
	if orderTotal.LessThan(m.cfg.PurchaseThreshold) {
		return false, nil
	}
	profile, err := m.store.GetProfileByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("purchase activation lookup: %w", err)
	}
	if m.activeNow(profile) {
		return false, nil
	}
	if _, err := m.activateProfile(ctx, profile, store.ActivationPurchase, m.cfg.ActivationMonths, "", nil); err != nil {
		return false, err
	}
	return true, nil
}

func (m *ActivationManager) activeNow(p *store.PartnerProfile) bool {
	if !p.IsActive {
		return false
	}
	return p.ExpiresAt == nil || p.ExpiresAt.After(m.now())
}

func (m *ActivationManager) activateProfile(ctx context.Context, profile *store.PartnerProfile, activationType store.ActivationType, months int, reason string, adminID *string) (*store.PartnerProfile, error) {
	if months <= 0 {
		months = m.cfg.ActivationMonths
	}
	if reason == "" {
		switch activationType {
		case store.ActivationAdmin:
			reason = ReasonAdminActivation
		default:
			reason = ReasonPurchaseThreshold
		}
	}

	now := m.now()
	expiresAt := now.Add(time.Duration(months) * monthLength)
	updated, err := m.store.SetProfileActivation(ctx, profile.ID, store.ActivationUpdate{
		IsActive:       true,
		ActivatedAt:    &now,
		ExpiresAt:      &expiresAt,
		ActivationType: &activationType,
	})
	if err != nil {
		return nil, fmt.Errorf("activate profile: %w", err)
	}

	if err := m.store.InsertActivationHistory(ctx, store.PartnerActivationHistory{
		ProfileID:      profile.ID,
		Action:         store.AuditActivated,
		ActivationType: &activationType,
		Reason:         reason,
		ExpiresAt:      &expiresAt,
		AdminID:        adminID,
	}); err != nil {
		return nil, fmt.Errorf("record activation: %w", err)
	}

	m.logger.Info("partner activated",
		"profile_id", profile.ID,
		"user_id", profile.UserID,
		"activation_type", activationType,
		"expires_at", expiresAt,
	)
	return updated, nil
}

func (m *ActivationManager) deactivateProfile(ctx context.Context, profile *store.PartnerProfile, reason string, adminID *string) (*store.PartnerProfile, error) {
	updated, err := m.store.SetProfileActivation(ctx, profile.ID, store.ActivationUpdate{IsActive: false})
	if err != nil {
		return nil, fmt.Errorf("deactivate profile: %w", err)
	}

	if err := m.store.InsertActivationHistory(ctx, store.PartnerActivationHistory{
		ProfileID:      profile.ID,
		Action:         store.AuditDeactivated,
		ActivationType: profile.ActivationType,
		Reason:         reason,
		ExpiresAt:      profile.ExpiresAt,
		AdminID:        adminID,
	}); err != nil {
		return nil, fmt.Errorf("record deactivation: %w", err)
	}

	m.logger.Info("partner deactivated", "profile_id", profile.ID, "user_id", profile.UserID, "reason", reason)
	return updated, nil
}

func (m *ActivationManager) getProfile(ctx context.Context, userID string) (*store.PartnerProfile, error) {
	profile, err := m.store.GetProfileByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return profile, nil
}
