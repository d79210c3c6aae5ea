// Package payment runs client-initiated sends: quote, KYC reservation,
// persistence and the hand-off to the payment gateway.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/amirasaad/remittance/pkg/domain"
	"github.com/amirasaad/remittance/pkg/domain/events"
	"github.com/amirasaad/remittance/pkg/domain/payment"
	"github.com/amirasaad/remittance/pkg/domain/user"
	"github.com/amirasaad/remittance/pkg/eventbus"
	"github.com/amirasaad/remittance/pkg/kyc"
	"github.com/amirasaad/remittance/pkg/ledger"
	"github.com/amirasaad/remittance/pkg/metrics"
	"github.com/amirasaad/remittance/pkg/money"
	provider "github.com/amirasaad/remittance/pkg/provider/payment"
	"github.com/amirasaad/remittance/pkg/repository"
	"github.com/google/uuid"
)

// ReasonGatewayResultUnrecorded is the review reason for payments the gateway
// accepted whose gateway id and status could not be stored.
const ReasonGatewayResultUnrecorded = "gateway accepted the charge but the result was not recorded"

// Gateways is the outbound payment gateway contract.
type Gateways interface {
	ValidatePaymentData(data *provider.Data, gw payment.Gateway) error
	ProcessPayment(ctx context.Context, gw payment.Gateway, data *provider.Data) (*provider.Result, error)
}

// ProcessRequest is a payer's instruction to send money.
type ProcessRequest struct {
	UserID     uuid.UUID
	PayerEmail string
	Gateway    payment.Gateway
	Amount     money.Money
	// RecipientIdentifier is a user id or an email address.
	RecipientIdentifier string
	Description         string
	QuoteID             string
}

// ProcessResult is what the payer needs to finish paying with the provider.
type ProcessResult struct {
	Payment     *payment.Payment
	RedirectURL string
	FormData    map[string]string
}

type Service struct {
	bus      eventbus.Bus
	uow      repository.UnitOfWork
	gateways Gateways
	kyc      *kyc.Enforcer
	writer   *ledger.Writer
	quoter   *Quoter
	logger   *slog.Logger
}

func New(
	bus eventbus.Bus,
	uow repository.UnitOfWork,
	gateways Gateways,
	enforcer *kyc.Enforcer,
	writer *ledger.Writer,
	quoter *Quoter,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		bus:      bus,
		uow:      uow,
		gateways: gateways,
		kyc:      enforcer,
		writer:   writer,
		quoter:   quoter,
		logger:   logger,
	}
}

// Quote prices a send and keeps the quote for later confirmation.
func (s *Service) Quote(ctx context.Context, userID uuid.UUID, amount money.Money, target money.Code) (*Quote, error) {
	return s.quoter.Quote(ctx, userID, amount, target)
}

// Process validates and records a send, reserves the payer's allowance and
// starts the payment with the gateway. Validation and limit failures happen
// before anything is stored; a gateway failure fails the stored payment and
// releases its reservation.
func (s *Service) Process(ctx context.Context, req ProcessRequest) (*ProcessResult, error) {
	log := s.logger.With(
		"handler", "payment.Process",
		"user_id", req.UserID,
		"gateway", req.Gateway,
		"amount", req.Amount.String(),
	)
	log.Info("🟢 [START] processing payment")

	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	recipient, err := s.resolveRecipient(ctx, req.UserID, req.RecipientIdentifier)
	if err != nil {
		log.Warn("⚠️ recipient rejected", "error", err)
		return nil, err
	}

	quote, err := s.quoteFor(ctx, req)
	if err != nil {
		return nil, err
	}

	p, err := payment.New(req.UserID, req.Gateway, quote.Amount, quote.Fee)
	if err != nil {
		return nil, err
	}
	p.RecipientID = &recipient.ID
	p.Description = req.Description
	p.TargetCurrency = quote.TargetCurrency
	p.ExchangeRate = quote.ExchangeRate
	p.ConvertedAmount = quote.ConvertedAmount
	if req.QuoteID != "" {
		p.Metadata["quote_id"] = req.QuoteID
	}

	data := &provider.Data{
		PaymentID:   p.ID,
		Reference:   p.Reference,
		PayerID:     p.UserID,
		PayerEmail:  req.PayerEmail,
		RecipientID: p.RecipientID,
		Amount:      p.TotalAmount,
		Description: p.Description,
	}
	if err := s.gateways.ValidatePaymentData(data, req.Gateway); err != nil {
		return nil, err
	}

	base, err := s.kyc.ToBase(ctx, p.TotalAmount)
	if err != nil {
		return nil, err
	}
	err = s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		res, err := s.kyc.ReserveTx(ctx, uow, p.UserID, base)
		if err != nil {
			return err
		}
		p.HoldReservation(res.Amount, res.Currency, res.Period)
		repo, err := uow.PaymentRepository()
		if err != nil {
			return err
		}
		return repo.Create(ctx, p)
	})
	if err != nil {
		log.Warn("⚠️ payment not recorded", "error", err)
		return nil, err
	}
	s.emit(ctx, &events.PaymentInitiated{
		PaymentID:  p.ID,
		UserID:     p.UserID,
		Gateway:    string(p.Gateway),
		Amount:     p.Amount.Amount(),
		Currency:   p.Amount.Code().String(),
		Status:     string(p.Status),
		OccurredAt: p.CreatedAt,
	})

	result, gwErr := s.gateways.ProcessPayment(ctx, req.Gateway, data)
	if gwErr != nil {
		log.Error("❌ gateway rejected payment", "payment_id", p.ID, "error", gwErr)
		if err := s.failAfterGateway(ctx, p.ID, gwErr); err != nil {
			log.Error("failed to record gateway failure", "payment_id", p.ID, "error", err)
		}
		metrics.IncInitiated(string(req.Gateway), string(payment.StatusFailed))
		return nil, gwErr
	}

	updated, err := s.applyGatewayResult(ctx, p.ID, result)
	if err != nil {
		log.Error("❌ gateway accepted payment but its result was not recorded",
			"payment_id", p.ID, "gateway_tx_id", result.GatewayTransactionID, "error", err)
		s.flagUnrecorded(ctx, p, result.GatewayTransactionID, log)
		return nil, err
	}
	metrics.IncInitiated(string(req.Gateway), string(updated.Status))
	log.Info("✅ [SUCCESS] payment handed to gateway", "payment_id", p.ID, "status", updated.Status)
	return &ProcessResult{
		Payment:     updated,
		RedirectURL: result.RedirectURL,
		FormData:    result.FormData,
	}, nil
}

// quoteFor loads the confirmed quote, or prices the amount afresh.
func (s *Service) quoteFor(ctx context.Context, req ProcessRequest) (*Quote, error) {
	if req.QuoteID == "" {
		return s.quoter.Compute(ctx, req.UserID, req.Amount, "")
	}
	q, err := s.quoter.Get(ctx, req.UserID, req.QuoteID)
	if err != nil {
		return nil, err
	}
	if !q.Amount.Equals(req.Amount) {
		return nil, fmt.Errorf("%w: amount differs from quote %s", domain.ErrValidation, req.QuoteID)
	}
	return q, nil
}

// resolveRecipient turns an id or email into a user distinct from the payer.
func (s *Service) resolveRecipient(ctx context.Context, payerID uuid.UUID, identifier string) (*user.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("%w: recipient is required", domain.ErrValidation)
	}
	users, err := s.uow.UserRepository()
	if err != nil {
		return nil, err
	}
	var u *user.User
	if id, perr := uuid.Parse(identifier); perr == nil {
		u, err = users.Get(ctx, id)
	} else {
		u, err = users.GetByEmail(ctx, identifier)
	}
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: recipient %q not found", domain.ErrValidation, identifier)
	}
	if err != nil {
		return nil, err
	}
	if u.ID == payerID {
		return nil, fmt.Errorf("%w: cannot send to yourself", domain.ErrValidation)
	}
	return u, nil
}

// failAfterGateway fails a payment whose gateway call did not succeed. It
// runs even when ctx is done, since the reservation must be released.
func (s *Service) failAfterGateway(ctx context.Context, id uuid.UUID, cause error) error {
	ctx = context.WithoutCancel(ctx)
	var e events.Event
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		repo, err := uow.PaymentRepository()
		if err != nil {
			return err
		}
		p, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if p.Status.IsTerminal() {
			return nil
		}
		e, err = s.writer.Fail(ctx, uow, p, "gateway error: "+cause.Error())
		return err
	})
	if err != nil {
		return err
	}
	if e != nil {
		s.emit(ctx, e)
	}
	return nil
}

// flagUnrecorded marks a payment the gateway accepted but that we failed to
// advance, so it shows up in the unreconciled list while the webhook is
// outstanding. The alert is raised even when the flag cannot be stored.
func (s *Service) flagUnrecorded(ctx context.Context, p *payment.Payment, gatewayTxID string, log *slog.Logger) {
	ctx = context.WithoutCancel(ctx)
	settled := false
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		repo, err := uow.PaymentRepository()
		if err != nil {
			return err
		}
		cur, err := repo.GetForUpdate(ctx, p.ID)
		if err != nil {
			return err
		}
		if cur.Status.IsTerminal() {
			settled = true
			return nil
		}
		cur.NeedsReview = true
		cur.ReviewReason = ReasonGatewayResultUnrecorded
		return repo.Update(ctx, cur)
	})
	if err != nil {
		log.Error("failed to flag payment for review", "payment_id", p.ID, "gateway_tx_id", gatewayTxID, "error", err)
	}
	if settled {
		return
	}
	reason := ReasonGatewayResultUnrecorded
	if gatewayTxID != "" {
		reason += ": " + gatewayTxID
	}
	s.emit(ctx, &events.PaymentUnreconciled{
		PaymentID:  p.ID,
		UserID:     p.UserID,
		Gateway:    string(p.Gateway),
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	})
}

// applyGatewayResult stores the provider's id and advances the payment. A
// webhook may have got there first, in which case its state is kept.
func (s *Service) applyGatewayResult(ctx context.Context, id uuid.UUID, result *provider.Result) (*payment.Payment, error) {
	var out *payment.Payment
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		repo, err := uow.PaymentRepository()
		if err != nil {
			return err
		}
		p, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		out = p
		changed := false
		if result.GatewayTransactionID != "" && p.HasProvisionalGatewayID() {
			p.GatewayTransactionID = result.GatewayTransactionID
			changed = true
		}
		if result.Status == payment.StatusProcessing && p.Status == payment.StatusPending {
			return s.writer.Advance(ctx, uow, p)
		}
		if changed {
			return repo.Update(ctx, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Status returns one of the user's payments.
func (s *Service) Status(ctx context.Context, userID, id uuid.UUID) (*payment.Payment, error) {
	repo, err := s.uow.PaymentRepository()
	if err != nil {
		return nil, err
	}
	p, err := repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, fmt.Errorf("%w: payment %s", domain.ErrNotFound, id)
	}
	return p, nil
}

// History lists the user's payments, newest first, with the total count.
func (s *Service) History(ctx context.Context, filter repository.HistoryFilter) ([]*payment.Payment, int64, error) {
	if filter.UserID == uuid.Nil {
		return nil, 0, fmt.Errorf("%w: user is required", domain.ErrValidation)
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	repo, err := s.uow.PaymentRepository()
	if err != nil {
		return nil, 0, err
	}
	return repo.List(ctx, filter)
}

// Cancel cancels one of the user's pending payments.
func (s *Service) Cancel(ctx context.Context, userID, id uuid.UUID) (*payment.Payment, error) {
	var (
		out *payment.Payment
		e   events.Event
	)
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		repo, err := uow.PaymentRepository()
		if err != nil {
			return err
		}
		p, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if p.UserID != userID {
			return fmt.Errorf("%w: payment %s", domain.ErrNotFound, id)
		}
		e, err = s.writer.Cancel(ctx, uow, p)
		out = p
		return err
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, e)
	return out, nil
}

func (s *Service) emit(ctx context.Context, e events.Event) {
	if s.bus == nil || e == nil {
		return
	}
	if err := s.bus.Emit(ctx, e); err != nil {
		s.logger.Error("failed to emit event", "type", e.Type(), "error", err)
	}
}
