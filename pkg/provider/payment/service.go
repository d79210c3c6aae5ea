// Package payment is the outbound side of the payment gateways: starting a
// charge and handing the customer over to the provider.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/amirasaad/remittance/pkg/domain"
	"github.com/amirasaad/remittance/pkg/domain/payment"
)

// Service dispatches to the processor registered for a gateway and bounds
// every provider call with a timeout.
type Service struct {
	mu         sync.RWMutex
	processors map[payment.Gateway]Processor
	timeout    time.Duration
	logger     *slog.Logger
}

// NewService creates a Service. A zero timeout leaves calls bounded only by
// the caller's context.
func NewService(timeout time.Duration, logger *slog.Logger, processors ...Processor) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		processors: make(map[payment.Gateway]Processor, len(processors)),
		timeout:    timeout,
		logger:     logger,
	}
	for _, p := range processors {
		s.Register(p)
	}
	return s
}

// Register adds or replaces the processor for its provider.
func (s *Service) Register(p Processor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processors[p.Provider()] = p
}

func (s *Service) processor(gw payment.Gateway) (Processor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.processors[gw]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownGateway, gw)
	}
	return p, nil
}

// ValidatePaymentData checks data against the common rules and the
// gateway's own constraints.
func (s *Service) ValidatePaymentData(data *Data, gw payment.Gateway) error {
	p, err := s.processor(gw)
	if err != nil {
		return err
	}
	if err := data.validate(); err != nil {
		return err
	}
	return p.ValidatePaymentData(data)
}

// ProcessPayment starts a payment with gw. Provider failures and timeouts
// are returned wrapping domain.ErrGateway.
func (s *Service) ProcessPayment(ctx context.Context, gw payment.Gateway, data *Data) (*Result, error) {
	p, err := s.processor(gw)
	if err != nil {
		return nil, err
	}
	log := s.logger.With("handler", "provider.ProcessPayment", "gateway", gw, "payment_id", data.PaymentID)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := p.ProcessPayment(ctx, data)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Error("⏱️ gateway call timed out", "elapsed", time.Since(start))
			return nil, fmt.Errorf("%w: %s timed out after %s", domain.ErrGateway, gw, s.timeout)
		}
		log.Error("❌ gateway call failed", "error", err)
		if errors.Is(err, domain.ErrGateway) || errors.Is(err, domain.ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrGateway, gw, err)
	}
	if res == nil {
		return nil, fmt.Errorf("%w: %s returned no result", domain.ErrGateway, gw)
	}
	log.Info("✅ [SUCCESS] gateway accepted payment",
		"gateway_tx_id", res.GatewayTransactionID, "status", res.Status, "elapsed", time.Since(start))
	return res, nil
}
