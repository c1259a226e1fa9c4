package notify

import "context"

// Notifier delivers partner-facing messages. Delivery is best-effort by
// contract: callers must never let a notification failure affect ledger
// state.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

// Nop discards every notification. Used when no bot token is configured.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(ctx context.Context, chatID int64, text string) error { return nil }
