package referral

import (
	"testing"

	"github.com/shopspring/decimal"

	"partner-bot/internal/store"
)

func TestComputeBonusRateTable(t *testing.T) {
	order := decimal.NewFromInt(1000)

	cases := []struct {
		name     string
		level    int
		isActive bool
		refType  store.ProgramType
		want     string // empty means no bonus
	}{
		{"level1 inactive direct", 1, false, store.ProgramDirect, "100"},
		{"level1 inactive multi", 1, false, store.ProgramMultiLevel, "100"},
		{"level1 active direct", 1, true, store.ProgramDirect, "250"},
		{"level1 active multi", 1, true, store.ProgramMultiLevel, "150"},
		{"level2 inactive multi", 2, false, store.ProgramMultiLevel, ""},
		{"level2 active multi", 2, true, store.ProgramMultiLevel, "50"},
		{"level2 active direct", 2, true, store.ProgramDirect, ""},
		{"level3 inactive multi", 3, false, store.ProgramMultiLevel, ""},
		{"level3 active multi", 3, true, store.ProgramMultiLevel, "50"},
		{"level3 active direct", 3, true, store.ProgramDirect, ""},
		{"level4 active multi", 4, true, store.ProgramMultiLevel, ""},
		{"level0", 0, true, store.ProgramMultiLevel, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bonus := ComputeBonus(tc.level, tc.isActive, tc.refType, order)
			if tc.want == "" {
				if bonus != nil {
					t.Fatalf("expected no bonus, got %s", bonus.Amount)
				}
				return
			}
			if bonus == nil {
				t.Fatalf("expected bonus %s, got nil", tc.want)
			}
			want := decimal.RequireFromString(tc.want)
			if !bonus.Amount.Equal(want) {
				t.Fatalf("expected %s, got %s", want, bonus.Amount)
			}
			if bonus.Description == "" {
				t.Fatal("expected a description")
			}
		})
	}
}

func TestComputeBonusExactFractions(t *testing.T) {
	// No rounding: 10% of 333.33 is exactly 33.333.
	bonus := ComputeBonus(1, false, store.ProgramMultiLevel, decimal.RequireFromString("333.33"))
	if bonus == nil {
		t.Fatal("expected bonus")
	}
	if want := decimal.RequireFromString("33.333"); !bonus.Amount.Equal(want) {
		t.Fatalf("expected %s, got %s", want, bonus.Amount)
	}
}
