// Package kyc models the verification tier of a user and the monthly send
// allowance that comes with it.
package kyc

import (
	"fmt"
	"time"

	"github.com/amirasaad/remittance/pkg/domain"
	"github.com/amirasaad/remittance/pkg/money"
	"github.com/google/uuid"
)

type Level string

const (
	LevelBronze Level = "bronze"
	LevelSilver Level = "silver"
	LevelGold   Level = "gold"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Record is the per-user KYC row. CurrentMonthSent never exceeds
// MonthlySendLimit in a committed state. ResetDate is the instant the
// current period ends and the counter restarts from zero.
type Record struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	Level            Level
	Status           Status
	MonthlySendLimit int64
	CurrentMonthSent int64
	Currency         money.Code
	ResetDate        time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Verified reports whether sends are allowed at all.
func (r *Record) Verified() bool {
	return r != nil && r.Status == StatusApproved
}

// Remaining returns the allowance left in the current period.
func (r *Record) Remaining() int64 {
	if rem := r.MonthlySendLimit - r.CurrentMonthSent; rem > 0 {
		return rem
	}
	return 0
}

// Rollover resets the counter when now has reached ResetDate and reports
// whether it did.
func (r *Record) Rollover(now time.Time) bool {
	if now.Before(r.ResetDate) {
		return false
	}
	r.CurrentMonthSent = 0
	r.ResetDate = NextReset(r.ResetDate, now)
	return true
}

// NextReset advances from one month at a time until the result is after now.
// A zero from starts at the first day of the month following now.
func NextReset(from, now time.Time) time.Time {
	if from.IsZero() {
		return FirstOfNextMonth(now)
	}
	next := from
	for !next.After(now) {
		next = next.AddDate(0, 1, 0)
	}
	return next
}

// FirstOfNextMonth returns 00:00 UTC on the first day of the month after t.
func FirstOfNextMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}

// Reservation is a granted hold against the monthly allowance. Period is the
// ResetDate of the period the hold was taken in.
type Reservation struct {
	UserID   uuid.UUID
	Amount   int64
	Currency money.Code
	Period   time.Time
}

// LimitExceededError carries the remaining allowance of a denied reservation.
type LimitExceededError struct {
	Remaining money.Money
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s: remaining %s", domain.ErrLimitExceeded, e.Remaining)
}

func (e *LimitExceededError) Unwrap() error { return domain.ErrLimitExceeded }
