package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/remittance/pkg/domain"
	"github.com/amirasaad/remittance/pkg/domain/events"
	"github.com/amirasaad/remittance/pkg/domain/kyc"
	"github.com/amirasaad/remittance/pkg/domain/payment"
	"github.com/amirasaad/remittance/pkg/domain/transaction"
	"github.com/amirasaad/remittance/pkg/domain/user"
	"github.com/amirasaad/remittance/pkg/metrics"
	"github.com/amirasaad/remittance/pkg/money"
	"github.com/amirasaad/remittance/pkg/repository"
	"github.com/google/uuid"
)

// Releaser gives a KYC reservation back within a unit of work.
type Releaser interface {
	ReleaseTx(ctx context.Context, uow repository.UnitOfWork, res *kyc.Reservation) error
}

// Writer applies payment state transitions. Every method must run inside a
// unit of work that holds the payment's row lock; the returned event, if
// any, is for the caller to emit after commit.
type Writer struct {
	releaser Releaser
	now      func() time.Time
	logger   *slog.Logger
}

// NewWriter creates a Writer. releaser may be nil when reservations are not
// tracked.
func NewWriter(releaser Releaser, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		releaser: releaser,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// Advance moves a pending payment to processing.
func (w *Writer) Advance(ctx context.Context, uow repository.UnitOfWork, p *payment.Payment) error {
	if err := p.TransitionTo(payment.StatusProcessing); err != nil {
		return err
	}
	if err := w.save(ctx, uow, p); err != nil {
		return err
	}
	metrics.IncTransition(string(p.Gateway), string(p.Status))
	return nil
}

// Complete records a successful payment and its send/receive pair. If the
// pair cannot be written because a party cannot be resolved, the payment is
// still completed, left without a TransactionID and flagged for review.
func (w *Writer) Complete(ctx context.Context, uow repository.UnitOfWork, p *payment.Payment) (events.Event, error) {
	log := w.logger.With("handler", "ledger.Complete", "payment_id", p.ID)

	if p.TransactionID != nil {
		log.Info("🔁 [SKIP] ledger pair already written", "transaction_id", *p.TransactionID)
		return nil, nil
	}
	if err := p.TransitionTo(payment.StatusCompleted); err != nil {
		return nil, err
	}
	now := w.now()
	p.ProcessedAt = &now
	if p.ReservationState == payment.ReservationHeld {
		p.ReservationState = payment.ReservationConsumed
	}

	payer, recipient, reason, err := w.resolveParties(ctx, uow, p)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		p.NeedsReview = true
		p.ReviewReason = reason
		if err := w.save(ctx, uow, p); err != nil {
			return nil, err
		}
		metrics.IncTransition(string(p.Gateway), "unreconciled")
		log.Warn("⚠️ payment completed without ledger pair", "reason", reason)
		return &events.PaymentUnreconciled{
			PaymentID:  p.ID,
			UserID:     p.UserID,
			Gateway:    string(p.Gateway),
			Reason:     reason,
			OccurredAt: now,
		}, nil
	}

	pair := buildPair(p, payer.ID, recipient.ID, now)
	txRepo, err := uow.TransactionRepository()
	if err != nil {
		return nil, err
	}
	for _, leg := range []*transaction.Transaction{pair.Send, pair.Receive} {
		if err := txRepo.Create(ctx, leg); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				return nil, fmt.Errorf("%w: %s leg already exists for payment %s", domain.ErrConflict, leg.Type, p.ID)
			}
			return nil, err
		}
	}

	p.TransactionID = &pair.Send.ID
	p.RecipientID = &recipient.ID
	if err := w.save(ctx, uow, p); err != nil {
		return nil, err
	}
	metrics.IncTransition(string(p.Gateway), string(p.Status))
	log.Info("✅ [SUCCESS] ledger pair written", "send_id", pair.Send.ID, "receive_id", pair.Receive.ID)

	return &events.PaymentCompleted{
		PaymentID:     p.ID,
		UserID:        p.UserID,
		RecipientID:   p.RecipientID,
		TransactionID: p.TransactionID,
		Gateway:       string(p.Gateway),
		Amount:        p.Amount.Amount(),
		Currency:      p.Amount.Code().String(),
		OccurredAt:    now,
	}, nil
}

// Fail records a failed payment and releases its reservation.
func (w *Writer) Fail(ctx context.Context, uow repository.UnitOfWork, p *payment.Payment, reason string) (events.Event, error) {
	if err := p.TransitionTo(payment.StatusFailed); err != nil {
		return nil, err
	}
	p.FailureReason = reason
	if err := w.release(ctx, uow, p); err != nil {
		return nil, err
	}
	if err := w.save(ctx, uow, p); err != nil {
		return nil, err
	}
	metrics.IncTransition(string(p.Gateway), string(p.Status))
	w.logger.Info("❌ payment failed", "handler", "ledger.Fail", "payment_id", p.ID, "reason", reason)
	return &events.PaymentFailed{
		PaymentID:  p.ID,
		UserID:     p.UserID,
		Gateway:    string(p.Gateway),
		Reason:     reason,
		OccurredAt: w.now(),
	}, nil
}

// Cancel cancels a pending payment and releases its reservation.
func (w *Writer) Cancel(ctx context.Context, uow repository.UnitOfWork, p *payment.Payment) (events.Event, error) {
	if p.Status != payment.StatusPending {
		return nil, fmt.Errorf("%w: only pending payments can be cancelled, status is %s", domain.ErrInvalidTransition, p.Status)
	}
	if err := p.TransitionTo(payment.StatusCancelled); err != nil {
		return nil, err
	}
	if err := w.release(ctx, uow, p); err != nil {
		return nil, err
	}
	if err := w.save(ctx, uow, p); err != nil {
		return nil, err
	}
	metrics.IncTransition(string(p.Gateway), string(p.Status))
	w.logger.Info("🚫 payment cancelled", "handler", "ledger.Cancel", "payment_id", p.ID)
	return &events.PaymentCancelled{
		PaymentID:  p.ID,
		UserID:     p.UserID,
		Gateway:    string(p.Gateway),
		OccurredAt: w.now(),
	}, nil
}

// resolveParties loads payer and recipient. A non-empty reason means the
// pair cannot be written; err is reserved for infrastructure failures.
func (w *Writer) resolveParties(
	ctx context.Context,
	uow repository.UnitOfWork,
	p *payment.Payment,
) (payer, recipient *user.User, reason string, err error) {
	users, err := uow.UserRepository()
	if err != nil {
		return nil, nil, "", err
	}

	payer, err = users.Get(ctx, p.UserID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil, nil, "payer not found", nil
	case err != nil:
		return nil, nil, "", err
	}

	switch {
	case p.RecipientID != nil:
		recipient, err = users.Get(ctx, *p.RecipientID)
	case p.RecipientEmail != "":
		recipient, err = users.GetByEmail(ctx, p.RecipientEmail)
	default:
		return nil, nil, "recipient not specified", nil
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil, nil, "recipient not found", nil
	case err != nil:
		return nil, nil, "", err
	}
	if recipient.ID == payer.ID {
		return nil, nil, "payer and recipient are the same user", nil
	}
	return payer, recipient, "", nil
}

func (w *Writer) release(ctx context.Context, uow repository.UnitOfWork, p *payment.Payment) error {
	if p.ReservationState != payment.ReservationHeld {
		return nil
	}
	if w.releaser != nil && p.ReservationPeriod != nil {
		res := &kyc.Reservation{
			UserID:   p.UserID,
			Amount:   p.ReservedAmount,
			Currency: p.ReservedCurrency,
			Period:   *p.ReservationPeriod,
		}
		if err := w.releaser.ReleaseTx(ctx, uow, res); err != nil {
			return fmt.Errorf("release reservation: %w", err)
		}
	}
	p.ReservationState = payment.ReservationReleased
	return nil
}

func (w *Writer) save(ctx context.Context, uow repository.UnitOfWork, p *payment.Payment) error {
	repo, err := uow.PaymentRepository()
	if err != nil {
		return err
	}
	p.UpdatedAt = w.now()
	return repo.Update(ctx, p)
}

// buildPair creates the send leg for the payer and the mirrored receive leg
// for the recipient. Both carry the payment's amount, currency and stored
// rate; the fee is charged on the send leg only. Only the receive leg links
// to its counterpart, so inserting send first satisfies the foreign key.
func buildPair(p *payment.Payment, payerID, recipientID uuid.UUID, now time.Time) transaction.Pair {
	sendID := uuid.New()
	send := &transaction.Transaction{
		ID:                sendID,
		UserID:            payerID,
		PaymentID:         p.ID,
		Type:              transaction.TypeSend,
		Amount:            p.Amount,
		CounterpartID:     recipientID,
		Status:            transaction.StatusCompleted,
		Fee:               p.Fee,
		TotalAmount:       p.TotalAmount,
		ExchangeRate:      p.ExchangeRate,
		ConvertedAmount:   p.ConvertedAmount,
		ConvertedCurrency: p.TargetCurrency,
		Description:       p.Description,
		CreatedAt:         now,
	}
	receive := &transaction.Transaction{
		ID:                   uuid.New(),
		UserID:               recipientID,
		PaymentID:            p.ID,
		Type:                 transaction.TypeReceive,
		Amount:               p.Amount,
		CounterpartID:        payerID,
		Status:               transaction.StatusCompleted,
		Fee:                  money.Zero(p.Amount.Code()),
		TotalAmount:          p.Amount,
		ExchangeRate:         p.ExchangeRate,
		ConvertedAmount:      p.ConvertedAmount,
		ConvertedCurrency:    p.TargetCurrency,
		RelatedTransactionID: &sendID,
		Description:          p.Description,
		CreatedAt:            now,
	}
	return transaction.Pair{Send: send, Receive: receive}
}
