package referral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"partner-bot/internal/metrics"
	"partner-bot/internal/notify"
	"partner-bot/internal/store"
)

// Award describes one bonus granted during a distribution run.
type Award struct {
	ProfileID   string          `json:"profile_id"`
	UserID      string          `json:"user_id"`
	Level       int             `json:"level"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// Distributor orchestrates bonus distribution for a completed order:
// idempotency guard, chain resolution, rule evaluation, ledger credit,
// idempotency marker, best-effort notification.
type Distributor struct {
	store      store.Store
	resolver   *Resolver
	activation *ActivationManager
	ledger     *Ledger
	notifier   notify.Notifier
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewDistributor wires the distribution pipeline.
func NewDistributor(st store.Store, resolver *Resolver, activation *ActivationManager, ledger *Ledger, notifier notify.Notifier, metricRegistry *metrics.Metrics, logger *slog.Logger) *Distributor {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Distributor{
		store:      st,
		resolver:   resolver,
		activation: activation,
		ledger:     ledger,
		notifier:   notifier,
		metrics:    metricRegistry,
		logger:     logger.With("component", "distributor"),
	}
}

// Distribute credits referral bonuses for a completed order. Callers may
// safely retry on timeout: each credited partner carries a per-order marker,
// so a replay credits only partners the earlier run did not reach. A replay
// of a fully distributed order returns an empty award list without error.
// A failure on one chain entry skips that partner only, so partial success
// is possible and reported through the joined error.
func (d *Distributor) Distribute(ctx context.Context, orderUserID string, orderAmount decimal.Decimal, orderID string) ([]Award, error) {
	start := time.Now()
	status := "awarded"
	defer func() {
		d.metrics.BonusDistributions.WithLabelValues(status).Inc()
		d.metrics.BonusDistributeTime.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}()

	replay, err := d.store.HasBonusEvent(ctx, orderUserID, orderID)
	if err != nil {
		status = "error"
		return nil, fmt.Errorf("idempotency check: %w", err)
	}
	if replay {
		d.logger.Info("distribution replayed, resuming", "order_id", orderID, "user_id", orderUserID)
	}

	chain, err := d.resolver.ResolveChain(ctx, orderUserID)
	if err != nil {
		status = "error"
		return nil, fmt.Errorf("resolve chain: %w", err)
	}
	if len(chain) == 0 {
		status = "empty"
		return nil, nil
	}

	var (
		awards []Award
		errs   []error
	)
	for _, entry := range chain {
		if replay {
			credited, err := d.store.HasProfileBonusEvent(ctx, entry.Profile.ID, orderID)
			if err != nil {
				errs = append(errs, fmt.Errorf("marker check for profile %s: %w", entry.Profile.ID, err))
				continue
			}
			if credited {
				continue
			}
		}

		active := d.activation.IsCurrentlyActive(ctx, entry.Profile.UserID)
		bonus := ComputeBonus(entry.Level, active, entry.ReferralType, orderAmount)
		if bonus == nil {
			continue
		}

		if _, err := d.ledger.Append(ctx, entry.Profile.ID, bonus.Amount, store.TxCredit, bonus.Description); err != nil {
			d.logger.Error("bonus credit failed",
				"order_id", orderID,
				"profile_id", entry.Profile.ID,
				"level", entry.Level,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("credit profile %s: %w", entry.Profile.ID, err))
			continue
		}
		d.metrics.BonusCredited.Add(bonus.Amount.InexactFloat64())

		if err := d.store.InsertBonusEvent(ctx, store.BonusEvent{
			ProfileID:      entry.Profile.ID,
			ReferredUserID: orderUserID,
			OrderID:        orderID,
			Amount:         bonus.Amount,
		}); err != nil {
			// The credit stands either way; a missing marker only risks a
			// duplicate on retry, which the ledger audit trail exposes.
			d.logger.Error("bonus event write failed", "order_id", orderID, "profile_id", entry.Profile.ID, "error", err)
			errs = append(errs, fmt.Errorf("mark bonus event for profile %s: %w", entry.Profile.ID, err))
		}

		awards = append(awards, Award{
			ProfileID:   entry.Profile.ID,
			UserID:      entry.Profile.UserID,
			Level:       entry.Level,
			Amount:      bonus.Amount,
			Description: bonus.Description,
		})

		d.notifyPartner(ctx, entry.Profile, bonus)
	}

	switch {
	case len(errs) > 0 && len(awards) > 0:
		status = "partial"
	case len(errs) > 0:
		status = "error"
	case len(awards) == 0 && replay:
		status = "duplicate"
	case len(awards) == 0:
		status = "empty"
	}
	return awards, errors.Join(errs...)
}

// notifyPartner is strictly best-effort: the bonus is definitively granted
// once the ledger append succeeds, regardless of what happens here.
func (d *Distributor) notifyPartner(ctx context.Context, profile store.PartnerProfile, bonus *Bonus) {
	user, err := d.store.GetUserByID(ctx, profile.UserID)
	if err != nil {
		d.logger.Warn("notification skipped, user lookup failed", "user_id", profile.UserID, "error", err)
		d.metrics.Notifications.WithLabelValues("skipped").Inc()
		return
	}

	message := fmt.Sprintf("You received a referral bonus of %s. %s", bonus.Amount.String(), bonus.Description)
	if err := d.notifier.Notify(ctx, user.TGID, message); err != nil {
		d.logger.Warn("notification failed", "user_id", profile.UserID, "error", err)
		d.metrics.Errors.WithLabelValues("notify").Inc()
	}
}
