package referral

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"partner-bot/internal/metrics"
	"partner-bot/internal/store"
)

// Ledger appends signed transactions and keeps the derived balance equal to
// the signed sum of the full ledger history.
//
// Append and recompute for one profile are serialized through a per-profile
// mutex; distributions touching different profiles do not contend. Without
// that serialization two interleaved recomputes could persist a balance
// reflecting only one of two appended transactions.
type Ledger struct {
	store   store.Store
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLedger creates a ledger service on top of the store.
func NewLedger(st store.Store, logger *slog.Logger, metricRegistry *metrics.Metrics) *Ledger {
	return &Ledger{
		store:   st,
		logger:  logger.With("component", "ledger"),
		metrics: metricRegistry,
		locks:   map[string]*sync.Mutex{},
	}
}

func (l *Ledger) profileLock(profileID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[profileID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[profileID] = lock
	}
	return lock
}

// Append records a transaction and recomputes the profile balance. The
// amount is a positive magnitude; negative amounts are rejected with
// ErrInvalidAmount before anything is persisted.
func (l *Ledger) Append(ctx context.Context, profileID string, amount decimal.Decimal, txType store.TxType, description string) (*store.PartnerTransaction, error) {
	if amount.IsNegative() {
		return nil, ErrInvalidAmount
	}

	lock := l.profileLock(profileID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := l.store.InsertTransaction(ctx, store.PartnerTransaction{
		ProfileID:   profileID,
		Amount:      amount,
		Type:        txType,
		Description: description,
	})
	if err != nil {
		return nil, fmt.Errorf("append transaction: %w", err)
	}
	l.metrics.LedgerTransactions.WithLabelValues(string(txType)).Inc()

	if _, err := l.recomputeLocked(ctx, profileID); err != nil {
		// The transaction is durable; the next write to this profile
		// recomputes from full history and repairs the balance.
		return nil, err
	}
	return tx, nil
}

// RecomputeBalance refolds the profile's entire transaction history into the
// derived balance and persists it. Full-history refold is deliberate: a lost
// or duplicated individual update cannot permanently corrupt the balance.
func (l *Ledger) RecomputeBalance(ctx context.Context, profileID string) (decimal.Decimal, error) {
	lock := l.profileLock(profileID)
	lock.Lock()
	defer lock.Unlock()
	return l.recomputeLocked(ctx, profileID)
}

func (l *Ledger) recomputeLocked(ctx context.Context, profileID string) (decimal.Decimal, error) {
	txs, err := l.store.ListTransactions(ctx, profileID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("recompute balance: %w", err)
	}

	balance := decimal.Zero
	for _, tx := range txs {
		switch tx.Type {
		case store.TxCredit:
			balance = balance.Add(tx.Amount)
		case store.TxDebit:
			balance = balance.Sub(tx.Amount)
		default:
			l.logger.Warn("ledger entry with unknown type skipped", "tx_id", tx.ID, "type", tx.Type)
		}
	}

	if err := l.store.SetProfileBalance(ctx, profileID, balance); err != nil {
		return decimal.Zero, fmt.Errorf("persist balance: %w", err)
	}
	return balance, nil
}
