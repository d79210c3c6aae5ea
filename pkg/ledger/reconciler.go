package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/amirasaad/remittance/pkg/domain"
	"github.com/amirasaad/remittance/pkg/domain/events"
	"github.com/amirasaad/remittance/pkg/domain/payment"
	"github.com/amirasaad/remittance/pkg/eventbus"
	"github.com/amirasaad/remittance/pkg/gateway"
	"github.com/amirasaad/remittance/pkg/metrics"
	"github.com/amirasaad/remittance/pkg/money"
	"github.com/amirasaad/remittance/pkg/repository"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Outcome summarizes what a webhook did to the ledger.
type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeAdvanced Outcome = "advanced"
	OutcomeApplied  Outcome = "applied"
	OutcomeNoOp     Outcome = "noop"
	OutcomeConflict Outcome = "conflict"
	OutcomeIgnored  Outcome = "ignored"
	OutcomeRejected Outcome = "rejected"
)

// WebhookResult is returned for every acknowledged webhook.
type WebhookResult struct {
	Outcome   Outcome
	PaymentID uuid.UUID
	Status    payment.Status
}

// Webhook is one inbound delivery.
type Webhook struct {
	Provider payment.Gateway
	Payload  []byte
	Headers  http.Header
	RemoteIP string
}

// Reconciler verifies webhooks and applies them to the ledger exactly once
// per gateway transaction id.
type Reconciler struct {
	registry *gateway.Registry
	uow      repository.UnitOfWork
	writer   *Writer
	bus      eventbus.Bus
	inflight singleflight.Group
	logger   *slog.Logger
}

// NewReconciler wires the webhook pipeline.
func NewReconciler(
	registry *gateway.Registry,
	uow repository.UnitOfWork,
	writer *Writer,
	bus eventbus.Bus,
	logger *slog.Logger,
) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		registry: registry,
		uow:      uow,
		writer:   writer,
		bus:      bus,
		logger:   logger,
	}
}

// HandleWebhook verifies, normalizes and applies one delivery. Errors wrap
// ErrUnknownGateway, ErrSignatureInvalid or ErrValidation for bad input;
// anything else is an infrastructure failure the provider should retry.
func (r *Reconciler) HandleWebhook(ctx context.Context, wh Webhook) (*WebhookResult, error) {
	start := time.Now()
	log := r.logger.With("handler", "ledger.HandleWebhook", "provider", wh.Provider)

	result, err := r.handle(ctx, wh, log)
	outcome := "error"
	if result != nil {
		outcome = string(result.Outcome)
	}
	metrics.ObserveWebhook(string(wh.Provider), outcome, time.Since(start).Seconds())
	return result, err
}

func (r *Reconciler) handle(ctx context.Context, wh Webhook, log *slog.Logger) (*WebhookResult, error) {
	gw, err := r.registry.Get(wh.Provider)
	if err != nil {
		return nil, err
	}

	if err := gw.Verify(wh.Payload, wh.Headers); err != nil {
		log.Warn("🚨 webhook signature rejected", "remote_ip", wh.RemoteIP, "error", err)
		r.emit(ctx, &events.WebhookRejected{
			Gateway:    string(wh.Provider),
			RemoteIP:   wh.RemoteIP,
			Reason:     err.Error(),
			OccurredAt: time.Now().UTC(),
		})
		return &WebhookResult{Outcome: OutcomeRejected}, err
	}

	ev, err := gw.Normalize(wh.Payload)
	if errors.Is(err, gateway.ErrEventIgnored) {
		log.Info("🔁 [SKIP] event does not concern a charge", "reason", err)
		return &WebhookResult{Outcome: OutcomeIgnored}, nil
	}
	if err != nil {
		return nil, err
	}
	log = log.With("gateway_tx_id", ev.GatewayTxID, "reported_status", ev.Status)
	log.Info("🟢 [START] webhook verified")

	key := string(ev.Provider) + ":" + ev.GatewayTxID
	v, err, shared := r.inflight.Do(key, func() (any, error) {
		return r.apply(ctx, ev, log)
	})
	if err != nil {
		log.Error("webhook processing failed", "error", err)
		return nil, err
	}
	res := *v.(*WebhookResult)
	if shared {
		log.Debug("collapsed concurrent delivery", "outcome", res.Outcome)
	}
	return &res, nil
}

// apply runs the critical section, retrying once when a concurrent insert of
// the same payment wins the unique constraint.
func (r *Reconciler) apply(ctx context.Context, ev *gateway.PaymentEvent, log *slog.Logger) (*WebhookResult, error) {
	res, pending, err := r.applyOnce(ctx, ev, log)
	if errors.Is(err, domain.ErrAlreadyExists) {
		log.Info("🔁 lost insert race, retrying")
		res, pending, err = r.applyOnce(ctx, ev, log)
	}
	if err != nil {
		return nil, err
	}
	for _, e := range pending {
		r.emit(ctx, e)
	}
	log.Info("✅ [SUCCESS] webhook reconciled", "outcome", res.Outcome, "status", res.Status)
	return res, nil
}

func (r *Reconciler) applyOnce(
	ctx context.Context,
	ev *gateway.PaymentEvent,
	log *slog.Logger,
) (*WebhookResult, []events.Event, error) {
	var (
		result  *WebhookResult
		pending []events.Event
	)
	err := r.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		repo, err := uow.PaymentRepository()
		if err != nil {
			return err
		}
		existing, adopted, err := r.lookup(ctx, repo, ev)
		var d Decision
		switch {
		case errors.Is(err, errReferenceBound):
			d = Decision{Action: ActionConflict, Target: ev.Status, Reason: ReasonReferenceBound}
		case err != nil:
			return err
		default:
			d = Decide(existing, ev)
		}
		log.Info("guard decision", "action", d.Action, "target", d.Target, "reason", d.Reason)

		var e events.Event
		switch d.Action {
		case ActionCreate:
			p, err := r.createFromEvent(ctx, uow, ev)
			if err != nil {
				return err
			}
			if e, err = r.transition(ctx, uow, p, d.Target, ev.Status); err != nil {
				return err
			}
			result = &WebhookResult{Outcome: OutcomeCreated, PaymentID: p.ID, Status: p.Status}
			if e == nil && p.Status == payment.StatusPending {
				e = initiatedEvent(p)
			}

		case ActionAdvance, ActionApply:
			if adopted {
				existing.GatewayTransactionID = ev.GatewayTxID
			}
			if e, err = r.transition(ctx, uow, existing, d.Target, ev.Status); err != nil {
				return err
			}
			outcome := OutcomeApplied
			if d.Action == ActionAdvance {
				outcome = OutcomeAdvanced
			}
			result = &WebhookResult{Outcome: outcome, PaymentID: existing.ID, Status: existing.Status}

		case ActionNoOp:
			if adopted {
				existing.GatewayTransactionID = ev.GatewayTxID
				if err := repo.Update(ctx, existing); err != nil {
					return err
				}
			}
			result = &WebhookResult{Outcome: OutcomeNoOp, PaymentID: existing.ID, Status: existing.Status}

		case ActionConflict:
			result = &WebhookResult{Outcome: OutcomeConflict, PaymentID: existing.ID, Status: existing.Status}
			if existing.NeedsReview && existing.ReviewReason == d.Reason {
				return nil
			}
			if adopted {
				existing.GatewayTransactionID = ev.GatewayTxID
			}
			existing.NeedsReview = true
			existing.ReviewReason = d.Reason
			if err := repo.Update(ctx, existing); err != nil {
				return err
			}
			log.Warn("⚠️ conflicting gateway status flagged for review",
				"payment_id", existing.ID, "recorded", existing.Status, "reason", d.Reason)
			e = &events.PaymentConflict{
				PaymentID:            existing.ID,
				GatewayTransactionID: ev.GatewayTxID,
				Gateway:              string(ev.Provider),
				RecordedStatus:       string(existing.Status),
				ReportedStatus:       string(d.Target),
				OccurredAt:           time.Now().UTC(),
			}
		}
		if e != nil {
			pending = append(pending, e)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return result, pending, nil
}

// errReferenceBound is returned by lookup, together with the matched payment,
// when the reference already belongs to a different gateway transaction.
var errReferenceBound = fmt.Errorf("%w: reference bound to another gateway transaction", domain.ErrConflict)

// lookup finds the payment by gateway transaction id, falling back to our
// own reference for payments created before the provider assigned its id.
// adopted reports that the fallback matched and the id must be stored.
func (r *Reconciler) lookup(
	ctx context.Context,
	repo repository.PaymentRepository,
	ev *gateway.PaymentEvent,
) (p *payment.Payment, adopted bool, err error) {
	p, err = repo.GetByGatewayTxIDForUpdate(ctx, ev.GatewayTxID)
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) || ev.Reference == "" {
		return nil, false, ignoreNotFound(err)
	}

	p, err = repo.GetByReferenceForUpdate(ctx, ev.Provider, ev.Reference)
	if err != nil {
		return nil, false, ignoreNotFound(err)
	}
	if !p.HasProvisionalGatewayID() {
		return p, false, fmt.Errorf("%w: reference %s already bound to %s",
			errReferenceBound, ev.Reference, p.GatewayTransactionID)
	}
	return p, true, nil
}

// transition routes a guard target to the writer. reported is the status the
// provider sent, which differs from target for cancellations of processing
// payments.
func (r *Reconciler) transition(
	ctx context.Context,
	uow repository.UnitOfWork,
	p *payment.Payment,
	target, reported payment.Status,
) (events.Event, error) {
	switch target {
	case payment.StatusPending:
		return nil, nil
	case payment.StatusProcessing:
		return nil, r.writer.Advance(ctx, uow, p)
	case payment.StatusCompleted:
		return r.writer.Complete(ctx, uow, p)
	case payment.StatusFailed:
		reason := "reported failed by gateway"
		if reported == payment.StatusCancelled {
			reason = ReasonCancelledAtGateway
		}
		return r.writer.Fail(ctx, uow, p, reason)
	case payment.StatusCancelled:
		return r.writer.Cancel(ctx, uow, p)
	}
	return nil, fmt.Errorf("%w: unknown target status %q", domain.ErrValidation, target)
}

// createFromEvent records a payment first seen through a webhook. The payer
// must be named in the metadata and exist; the reported amount is the total
// charged, so no fee is attributed.
func (r *Reconciler) createFromEvent(
	ctx context.Context,
	uow repository.UnitOfWork,
	ev *gateway.PaymentEvent,
) (*payment.Payment, error) {
	if ev.Amount == nil {
		return nil, fmt.Errorf("%w: webhook for unknown payment has no amount", domain.ErrValidation)
	}
	payerID, err := uuid.Parse(ev.Metadata[gateway.MetaPayerID])
	if err != nil {
		return nil, fmt.Errorf("%w: webhook for unknown payment has no payer", domain.ErrValidation)
	}
	users, err := uow.UserRepository()
	if err != nil {
		return nil, err
	}
	if _, err := users.Get(ctx, payerID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: payer %s does not exist", domain.ErrValidation, payerID)
		}
		return nil, err
	}

	p, err := payment.New(payerID, ev.Provider, *ev.Amount, money.Zero(ev.Amount.Code()))
	if err != nil {
		return nil, err
	}
	p.GatewayTransactionID = ev.GatewayTxID
	if ev.Reference != "" {
		p.Reference = ev.Reference
	}
	if id, err := uuid.Parse(ev.Metadata[gateway.MetaRecipientID]); err == nil {
		p.RecipientID = &id
	}
	p.RecipientEmail = ev.Metadata[gateway.MetaRecipientEmail]
	p.Description = ev.Metadata[gateway.MetaDescription]
	for k, v := range ev.Metadata {
		p.Metadata[k] = v
	}

	repo, err := uow.PaymentRepository()
	if err != nil {
		return nil, err
	}
	if err := repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListUnreconciled returns payments that need manual reconciliation.
func (r *Reconciler) ListUnreconciled(ctx context.Context, limit int) ([]*payment.Payment, error) {
	repo, err := r.uow.PaymentRepository()
	if err != nil {
		return nil, err
	}
	return repo.ListUnreconciled(ctx, limit)
}

func (r *Reconciler) emit(ctx context.Context, e events.Event) {
	if r.bus == nil {
		return
	}
	if err := r.bus.Emit(ctx, e); err != nil {
		r.logger.Error("failed to emit event", "type", e.Type(), "error", err)
	}
}

func initiatedEvent(p *payment.Payment) *events.PaymentInitiated {
	return &events.PaymentInitiated{
		PaymentID:  p.ID,
		UserID:     p.UserID,
		Gateway:    string(p.Gateway),
		Amount:     p.Amount.Amount(),
		Currency:   p.Amount.Code().String(),
		Status:     string(p.Status),
		OccurredAt: time.Now().UTC(),
	}
}

func ignoreNotFound(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}
