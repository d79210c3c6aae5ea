// Package ledger turns verified gateway events into payment state changes and
// paired double-entry transactions.
//
// The guard decides what an event means for the recorded payment, the writer
// applies that decision inside a unit of work, and the reconciler ties both
// to inbound webhooks with per-transaction serialization.
package ledger

import (
	"fmt"

	"github.com/amirasaad/remittance/pkg/domain/payment"
	"github.com/amirasaad/remittance/pkg/gateway"
)

// Action is what the ledger should do with an event.
type Action int

const (
	// ActionCreate records a payment the application has not seen yet.
	ActionCreate Action = iota
	// ActionAdvance moves a pending payment to processing.
	ActionAdvance
	// ActionApply moves a non-terminal payment to a terminal status.
	ActionApply
	// ActionNoOp acknowledges a duplicate or stale event.
	ActionNoOp
	// ActionConflict flags an event that contradicts a terminal payment.
	ActionConflict
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionAdvance:
		return "advance"
	case ActionApply:
		return "apply"
	case ActionNoOp:
		return "noop"
	case ActionConflict:
		return "conflict"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// ReasonCancelledAtGateway is the failure reason recorded when a provider
// cancels a payment that was already processing.
const ReasonCancelledAtGateway = "cancelled at gateway"

// ReasonReferenceBound is the review reason recorded when a second gateway
// transaction reports our reference after another one already claimed it.
const ReasonReferenceBound = "reference reused by another gateway transaction"

// Decision is the guard's verdict for one event.
type Decision struct {
	Action Action
	// Target is the status to move to for Create, Advance and Apply.
	Target payment.Status
	// Reason explains NoOp and Conflict verdicts.
	Reason string
}

// Decide compares an event with the recorded payment, or nil if none exists.
// It is pure; the caller must hold the payment's row lock while acting on it.
func Decide(existing *payment.Payment, ev *gateway.PaymentEvent) Decision {
	if existing == nil {
		return Decision{Action: ActionCreate, Target: ev.Status}
	}

	target := ev.Status
	// Cancelled is reserved for pending payments; a provider withdrawing a
	// payment it already accepted is a failure.
	if target == payment.StatusCancelled && existing.Status == payment.StatusProcessing {
		target = payment.StatusFailed
	}

	if existing.Status.IsTerminal() {
		switch {
		case !target.IsTerminal():
			return Decision{Action: ActionNoOp, Reason: "stale non-terminal event"}
		case sameOutcome(existing.Status, target):
			return Decision{Action: ActionNoOp, Reason: "duplicate delivery"}
		default:
			return Decision{
				Action: ActionConflict,
				Target: target,
				Reason: fmt.Sprintf("gateway reported %s, recorded %s", target, existing.Status),
			}
		}
	}

	if target == payment.StatusCompleted && ev.Amount != nil && !ev.Amount.Equals(existing.TotalAmount) {
		return Decision{
			Action: ActionConflict,
			Target: target,
			Reason: fmt.Sprintf("gateway settled %s, expected %s", ev.Amount, existing.TotalAmount),
		}
	}

	switch {
	case target.IsTerminal():
		return Decision{Action: ActionApply, Target: target}
	case target == payment.StatusProcessing && existing.Status == payment.StatusPending:
		return Decision{Action: ActionAdvance, Target: target}
	default:
		return Decision{Action: ActionNoOp, Reason: "no progress"}
	}
}

// sameOutcome treats failed and cancelled as one outcome: no money moved.
// Only success against non-success is a conflict.
func sameOutcome(a, b payment.Status) bool {
	return (a == payment.StatusCompleted) == (b == payment.StatusCompleted)
}
