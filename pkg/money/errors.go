package money

import "errors"

// Common money package errors
var (
	// ErrInvalidCurrency is returned for codes that are not three uppercase letters.
	ErrInvalidCurrency = errors.New("invalid currency code")

	// ErrInvalidAmount is returned when a major-unit amount cannot be
	// represented in the currency's minor unit.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrMismatchedCurrencies is returned when performing operations on money with
	// different currencies
	ErrMismatchedCurrencies = errors.New("mismatched currencies")

	// ErrOverflow is returned when an operation would overflow int64 minor units.
	ErrOverflow = errors.New("amount overflows minor units")
)
