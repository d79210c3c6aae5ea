// Package money provides an immutable monetary value.
//
// Invariants:
//   - Amount is always stored in the smallest currency unit (e.g., cents for ZAR).
//   - Currency code must be valid ISO 4217 (3 uppercase letters).
//   - All arithmetic operations require matching currencies.
package money

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Amount represents a monetary amount as an integer in the
// smallest currency unit.
type Amount = int64

// IsValid checks if the currency code is valid
func (c Code) IsValid() bool {
	if len(c) != 3 {
		return false
	}
	return c[0] >= 'A' && c[0] <= 'Z' &&
		c[1] >= 'A' && c[1] <= 'Z' &&
		c[2] >= 'A' && c[2] <= 'Z'
}

// String returns the string representation of the currency code.
func (c Code) String() string {
	return string(c)
}

// ToCurrency resolves the minor unit exponent for the code.
func (c Code) ToCurrency() Currency {
	if d, ok := decimals[c]; ok {
		return Currency{Code: c, Decimals: d}
	}
	return Currency{Code: c, Decimals: 2}
}

// Currency represents a monetary unit with its standard decimal places
type Currency struct {
	Code     Code // 3-letter ISO 4217 code
	Decimals int  // Number of decimal places (0-8)
}

// IsValid checks if the currency is valid.
func (c Currency) IsValid() bool {
	return c.Decimals >= 0 && c.Decimals <= 8 && c.Code.IsValid()
}

// String returns the currency code as a string
func (c Currency) String() string { return string(c.Code) }

// Money represents a monetary value in a specific currency.
type Money struct {
	amount   Amount
	currency Currency
}

// New creates Money from an amount already expressed in minor units.
func New(amount Amount, code Code) (Money, error) {
	if !code.IsValid() {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	return Money{amount: amount, currency: code.ToCurrency()}, nil
}

// Must is New that panics on error. Intended for constants and tests.
func Must(amount Amount, code Code) Money {
	m, err := New(amount, code)
	if err != nil {
		panic(err)
	}
	return m
}

// FromMajor converts a major-unit decimal (e.g. "1030.00") to Money.
// Amounts with more precision than the currency allows are rejected.
func FromMajor(major decimal.Decimal, code Code) (Money, error) {
	if !code.IsValid() {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	cur := code.ToCurrency()
	minor := major.Shift(int32(cur.Decimals))
	if !minor.Equal(minor.Truncate(0)) {
		return Money{}, fmt.Errorf("%w: %s has more than %d decimals", ErrInvalidAmount, major, cur.Decimals)
	}
	if minor.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || minor.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return Money{}, ErrOverflow
	}
	return Money{amount: minor.IntPart(), currency: cur}, nil
}

// ParseMajor parses a major-unit string such as "1030.00".
func ParseMajor(s string, code Code) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return FromMajor(d, code)
}

// Zero returns zero in the given currency.
func Zero(code Code) Money {
	return Money{currency: code.ToCurrency()}
}

// Amount returns the amount in the smallest currency unit.
func (m Money) Amount() Amount { return m.amount }

// Currency returns the currency.
func (m Money) Currency() Currency { return m.currency }

// Code returns the currency code.
func (m Money) Code() Code { return m.currency.Code }

// Major returns the amount in major units as a decimal.
func (m Money) Major() decimal.Decimal {
	return decimal.NewFromInt(m.amount).Shift(-int32(m.currency.Decimals))
}

// IsPositive reports whether the amount is strictly greater than zero.
func (m Money) IsPositive() bool { return m.amount > 0 }

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.amount == 0 }

// Add returns the sum of two amounts in the same currency.
func (m Money) Add(other Money) (Money, error) {
	if m.currency.Code != other.currency.Code {
		return Money{}, ErrMismatchedCurrencies
	}
	if (other.amount > 0 && m.amount > math.MaxInt64-other.amount) ||
		(other.amount < 0 && m.amount < math.MinInt64-other.amount) {
		return Money{}, ErrOverflow
	}
	return Money{amount: m.amount + other.amount, currency: m.currency}, nil
}

// Subtract returns m - other. The result can be negative.
func (m Money) Subtract(other Money) (Money, error) {
	if other.amount == math.MinInt64 {
		return Money{}, ErrOverflow
	}
	return m.Add(Money{amount: -other.amount, currency: other.currency})
}

// Equals reports whether both amount and currency match.
func (m Money) Equals(other Money) bool {
	return m.currency.Code == other.currency.Code && m.amount == other.amount
}

// GreaterThan compares two amounts in the same currency.
func (m Money) GreaterThan(other Money) (bool, error) {
	if m.currency.Code != other.currency.Code {
		return false, ErrMismatchedCurrencies
	}
	return m.amount > other.amount, nil
}

// String formats the value as "1030.00 ZAR".
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Major().StringFixed(int32(m.currency.Decimals)), m.currency.Code)
}

// MarshalJSON implements json.Marshaler interface.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"amount":   m.amount,
		"currency": m.currency.Code,
	})
}

// UnmarshalJSON implements json.Unmarshaler interface.
func (m *Money) UnmarshalJSON(data []byte) error {
	var aux struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	v, err := New(aux.Amount, Code(aux.Currency))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
