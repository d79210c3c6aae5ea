package stripepayment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/amirasaad/remittance/pkg/config"
	"github.com/amirasaad/remittance/pkg/domain"
	"github.com/amirasaad/remittance/pkg/domain/payment"
	provider "github.com/amirasaad/remittance/pkg/provider/payment"
	"github.com/stripe/stripe-go/v82"
)

// sessionCreator is the part of the Stripe client used here.
type sessionCreator interface {
	Create(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)
}

// StripePaymentProvider starts card payments as Stripe Checkout sessions.
// The session id is the gateway transaction id; webhooks for the session
// carry our reference as client_reference_id.
type StripePaymentProvider struct {
	sessions sessionCreator
	cfg      *config.Stripe
	logger   *slog.Logger
}

// New creates a StripePaymentProvider using the API key from cfg.
func New(cfg *config.Stripe, logger *slog.Logger) *StripePaymentProvider {
	client := stripe.NewClient(cfg.ApiKey)
	return newWithSessions(client.V1CheckoutSessions, cfg, logger)
}

func newWithSessions(sessions sessionCreator, cfg *config.Stripe, logger *slog.Logger) *StripePaymentProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripePaymentProvider{sessions: sessions, cfg: cfg, logger: logger}
}

func (s *StripePaymentProvider) Provider() payment.Gateway { return payment.GatewayStripe }

func (s *StripePaymentProvider) ValidatePaymentData(data *provider.Data) error {
	if !data.Amount.Code().IsValid() {
		return fmt.Errorf("%w: invalid currency %q", domain.ErrValidation, data.Amount.Code())
	}
	return nil
}

// ProcessPayment creates a Checkout session for the payment total.
func (s *StripePaymentProvider) ProcessPayment(ctx context.Context, data *provider.Data) (*provider.Result, error) {
	log := s.logger.With(
		"handler", "stripe.ProcessPayment",
		"payment_id", data.PaymentID,
		"amount", data.Amount.String(),
	)
	log.Info("🛒 [START] creating checkout session")

	description := data.Description
	if description == "" {
		description = "Remittance " + data.Reference
	}
	metadata := data.Metadata()

	params := &stripe.CheckoutSessionCreateParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(s.cfg.SuccessURL),
		CancelURL:          stripe.String(s.cfg.CancelURL),
		ClientReferenceID:  stripe.String(data.Reference),
		Metadata:           metadata,
		PaymentIntentData: &stripe.CheckoutSessionCreatePaymentIntentDataParams{
			Metadata: metadata,
		},
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{{
			PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
				Currency: stripe.String(strings.ToLower(string(data.Amount.Code()))),
				ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
					Name: stripe.String(description),
				},
				UnitAmount: stripe.Int64(data.Amount.Amount()),
			},
			Quantity: stripe.Int64(1),
		}},
	}
	if data.PayerEmail != "" {
		params.CustomerEmail = stripe.String(data.PayerEmail)
	}

	session, err := s.sessions.Create(ctx, params)
	if err != nil {
		log.Error("failed to create checkout session", "error", err)
		return nil, fmt.Errorf("%w: stripe checkout session: %v", domain.ErrGateway, err)
	}
	log.Info("✅ [SUCCESS] created checkout session", "session_id", session.ID)

	return &provider.Result{
		GatewayTransactionID: session.ID,
		Status:               payment.StatusPending,
		RedirectURL:          session.URL,
	}, nil
}

var _ provider.Processor = (*StripePaymentProvider)(nil)
