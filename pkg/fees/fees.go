// Package fees computes transfer fees and currency conversions.
//
// Every function here is pure: the same inputs always give the same outputs,
// amounts are integer minor units, and rounding is half-up to the minor unit.
package fees

import (
	"errors"
	"fmt"

	"github.com/amirasaad/remittance/pkg/domain"
	"github.com/amirasaad/remittance/pkg/money"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidSchedule is returned when tiers leave part of the amount range uncovered.
	ErrInvalidSchedule = errors.New("invalid fee schedule")
	// ErrNonPositiveAmount is returned for zero or negative amounts.
	ErrNonPositiveAmount = fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
)

var tenThousand = decimal.NewFromInt(10000)

// Tier applies Bps basis points plus Flat minor units to amounts up to and
// including UpTo. UpTo of zero means unbounded.
type Tier struct {
	UpTo int64 `json:"up_to"`
	Bps  int64 `json:"bps"`
	Flat int64 `json:"flat"`
}

// Quote is the fee breakdown for one amount.
type Quote struct {
	Amount money.Money `json:"amount"`
	Fee    money.Money `json:"fee"`
	Total  money.Money `json:"total"`
}

// Schedule maps currencies to fee tiers with a fallback default.
type Schedule struct {
	defaults   []Tier
	byCurrency map[money.Code][]Tier
}

// FlatRate is a single unbounded tier.
func FlatRate(bps, flat int64) []Tier {
	return []Tier{{Bps: bps, Flat: flat}}
}

// NewSchedule validates tiers so that every positive amount matches exactly
// one tier: UpTo strictly increases and the last tier is unbounded.
func NewSchedule(defaults []Tier, overrides map[money.Code][]Tier) (*Schedule, error) {
	if err := validateTiers(defaults); err != nil {
		return nil, fmt.Errorf("default tiers: %w", err)
	}
	for code, tiers := range overrides {
		if err := validateTiers(tiers); err != nil {
			return nil, fmt.Errorf("%s tiers: %w", code, err)
		}
	}
	return &Schedule{defaults: defaults, byCurrency: overrides}, nil
}

func validateTiers(tiers []Tier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("%w: no tiers", ErrInvalidSchedule)
	}
	var prev int64
	for i, t := range tiers {
		if t.Bps < 0 || t.Flat < 0 {
			return fmt.Errorf("%w: tier %d has negative rate", ErrInvalidSchedule, i)
		}
		last := i == len(tiers)-1
		switch {
		case last && t.UpTo != 0:
			return fmt.Errorf("%w: last tier must be unbounded", ErrInvalidSchedule)
		case !last && t.UpTo <= prev:
			return fmt.Errorf("%w: tier %d bound must increase", ErrInvalidSchedule, i)
		}
		prev = t.UpTo
	}
	return nil
}

func (s *Schedule) tiersFor(code money.Code) []Tier {
	if t, ok := s.byCurrency[code]; ok {
		return t
	}
	return s.defaults
}

// Compute returns the fee and total for amount.
func (s *Schedule) Compute(amount money.Money) (Quote, error) {
	if !amount.IsPositive() {
		return Quote{}, ErrNonPositiveAmount
	}
	tier := pick(s.tiersFor(amount.Code()), amount.Amount())

	pct := decimal.NewFromInt(amount.Amount()).
		Mul(decimal.NewFromInt(tier.Bps)).
		Div(tenThousand).
		Round(0)
	fee, err := money.New(pct.IntPart()+tier.Flat, amount.Code())
	if err != nil {
		return Quote{}, err
	}
	total, err := amount.Add(fee)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return Quote{Amount: amount, Fee: fee, Total: total}, nil
}

func pick(tiers []Tier, amount int64) Tier {
	for _, t := range tiers {
		if t.UpTo == 0 || amount <= t.UpTo {
			return t
		}
	}
	// unreachable for validated schedules
	return tiers[len(tiers)-1]
}
