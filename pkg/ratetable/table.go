package ratetable

import (
	"fmt"
	"time"

	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/money"
)

const DefaultHoldDays = 45

type TierRate struct {
	Total    money.Rate
	HoldDays int
}

// Table is one immutable version of a scheme's rates.
type Table struct {
	Version            string
	Scheme             models.Scheme
	EffectiveFrom      time.Time
	HoldDays           int
	HouseBeneficiaryID string
	Tiers              map[string]TierRate
	// Splits maps a chain length to shares of the tier total, level 0 first.
	Splits map[int][]money.Rate
}

func (t Table) Tier(name string) (TierRate, error) {
	tier, ok := t.Tiers[name]
	if !ok {
		return TierRate{}, &apperrors.UnknownTierError{Tier: name, Scheme: string(t.Scheme)}
	}
	return tier, nil
}

// HoldDaysFor returns the tier override, the table default, or DefaultHoldDays.
func (t Table) HoldDaysFor(tier TierRate) int {
	if tier.HoldDays > 0 {
		return tier.HoldDays
	}
	if t.HoldDays > 0 {
		return t.HoldDays
	}
	return DefaultHoldDays
}

// SplitFor returns the split row for a chain of the given length, falling back
// to the longest configured row.
func (t Table) SplitFor(chainLen int) []money.Rate {
	if split, ok := t.Splits[chainLen]; ok {
		return split
	}
	longest := 0
	for n := range t.Splits {
		if n > longest {
			longest = n
		}
	}
	return t.Splits[longest]
}

func (t Table) Validate() error {
	if t.Version == "" {
		return fmt.Errorf("rate table is missing a version")
	}
	if !t.Scheme.Valid() {
		return fmt.Errorf("rate table %s has unknown scheme %q", t.Version, t.Scheme)
	}
	if t.HouseBeneficiaryID == "" {
		return fmt.Errorf("rate table %s is missing house_beneficiary_id", t.Version)
	}
	if t.HoldDays < 0 {
		return fmt.Errorf("rate table %s has negative hold_days", t.Version)
	}
	if len(t.Tiers) == 0 {
		return fmt.Errorf("rate table %s has no tiers", t.Version)
	}
	for name, tier := range t.Tiers {
		if tier.Total.Sign() <= 0 || tier.Total.Cmp(money.One) >= 0 {
			return fmt.Errorf("rate table %s tier %s total %s must be between 0 and 1", t.Version, name, tier.Total.PercentString())
		}
		if tier.HoldDays < 0 {
			return fmt.Errorf("rate table %s tier %s has negative hold_days", t.Version, name)
		}
	}
	if len(t.Splits) == 0 {
		return fmt.Errorf("rate table %s has no splits", t.Version)
	}
	for n, split := range t.Splits {
		if n < 1 || n > models.MaxChainDepth {
			return fmt.Errorf("rate table %s split for chain length %d is out of range", t.Version, n)
		}
		if len(split) != n {
			return fmt.Errorf("rate table %s split for chain length %d has %d shares", t.Version, n, len(split))
		}
		sum := money.Zero
		for _, share := range split {
			if share.Sign() < 0 {
				return fmt.Errorf("rate table %s split %d has a negative share", t.Version, n)
			}
			sum = sum.Add(share)
		}
		if !sum.Equal(money.One) {
			return fmt.Errorf("rate table %s split for chain length %d sums to %s, want 1", t.Version, n, sum)
		}
	}
	return nil
}
