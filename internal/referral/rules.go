package referral

import (
	"fmt"

	"github.com/shopspring/decimal"

	"partner-bot/internal/store"
)

// MaxChainDepth bounds how far up the referral graph bonuses reach. Deeper
// ancestry never pays out, which keeps the total payout liability per order
// bounded.
const MaxChainDepth = 3

// Bonus is the outcome of a rule evaluation: an exact amount in the order's
// currency and a human-readable description for the ledger entry.
type Bonus struct {
	Amount      decimal.Decimal
	Description string
}

// Payout rates as fractions of the order amount.
//
//	level | inactive | active DIRECT | active MULTI_LEVEL
//	  1   |   10%    |      25%      |        15%
//	  2   |   none   |     none      |         5%
//	  3   |   none   |     none      |         5%
//
// Level 1 always earns the inactive baseline to reward initial signups;
// levels 2 and 3 only pay once the up-chain partner has activated, and only
// under the multi-level program.
var (
	rateLevel1Inactive = decimal.RequireFromString("0.10")
	rateLevel1Direct   = decimal.RequireFromString("0.25")
	rateLevel1Multi    = decimal.RequireFromString("0.15")
	rateDeepMulti      = decimal.RequireFromString("0.05")
)

// ComputeBonus maps (referral level, activation state, referral edge type,
// order amount) to a bonus, or nil when that combination pays nothing.
// It is a pure function: no rounding, no side effects. The referral type is
// the one frozen into the edge at creation time, not the profile's current
// program.
func ComputeBonus(level int, isActive bool, referralType store.ProgramType, orderAmount decimal.Decimal) *Bonus {
	switch {
	case level == 1 && !isActive:
		return &Bonus{
			Amount:      orderAmount.Mul(rateLevel1Inactive),
			Description: "Level 1 referral bonus, 10% (inactive partner rate)",
		}
	case level == 1 && referralType == store.ProgramDirect:
		return &Bonus{
			Amount:      orderAmount.Mul(rateLevel1Direct),
			Description: "Level 1 referral bonus, 25% (direct program)",
		}
	case level == 1:
		return &Bonus{
			Amount:      orderAmount.Mul(rateLevel1Multi),
			Description: "Level 1 referral bonus, 15% (multi-level program)",
		}
	case level == 2 || level == 3:
		if !isActive || referralType != store.ProgramMultiLevel {
			return nil
		}
		return &Bonus{
			Amount:      orderAmount.Mul(rateDeepMulti),
			Description: fmt.Sprintf("Level %d referral bonus, 5%% (multi-level program)", level),
		}
	default:
		return nil
	}
}
