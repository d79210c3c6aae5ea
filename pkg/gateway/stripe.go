package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/amirasaad/remittance/pkg/domain/payment"
	"github.com/amirasaad/remittance/pkg/money"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeSignatureHeader carries the timestamped HMAC-SHA256 signature.
const StripeSignatureHeader = "Stripe-Signature"

// Stripe handles Checkout Session webhooks. The session id is the gateway
// transaction id; the merchant reference is the client reference id.
type Stripe struct {
	signingSecret string
}

func NewStripe(signingSecret string) *Stripe {
	return &Stripe{signingSecret: signingSecret}
}

func (s *Stripe) Provider() payment.Gateway { return payment.GatewayStripe }

func (s *Stripe) Verify(payload []byte, headers http.Header) error {
	sig := headers.Get(StripeSignatureHeader)
	if sig == "" {
		return signatureError("missing %s header", StripeSignatureHeader)
	}
	if err := webhook.ValidatePayload(payload, sig, s.signingSecret); err != nil {
		return signatureError("stripe: %v", err)
	}
	return nil
}

func (s *Stripe) Normalize(payload []byte) (*PaymentEvent, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	var status payment.Status
	switch string(event.Type) {
	case "checkout.session.completed":
		status = payment.StatusProcessing
	case "checkout.session.async_payment_succeeded":
		status = payment.StatusCompleted
	case "checkout.session.async_payment_failed":
		status = payment.StatusFailed
	case "checkout.session.expired":
		status = payment.StatusCancelled
	default:
		return nil, fmt.Errorf("%w: stripe %s", ErrEventIgnored, event.Type)
	}
	if event.Data == nil {
		return nil, fmt.Errorf("%w: missing data", ErrMalformedPayload)
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if session.ID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrMalformedPayload)
	}
	// A completed session settles synchronously for card payments.
	if string(event.Type) == "checkout.session.completed" &&
		session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
		status = payment.StatusCompleted
	}

	ev := &PaymentEvent{
		Provider:    payment.GatewayStripe,
		EventType:   string(event.Type),
		GatewayTxID: session.ID,
		Reference:   session.ClientReferenceID,
		Status:      status,
		Metadata:    map[string]string{},
		RawPayload:  payload,
	}
	for k, v := range session.Metadata {
		ev.Metadata[k] = v
	}
	if ev.Reference == "" {
		ev.Reference = session.Metadata["payment_id"]
	}
	if session.Currency != "" && session.AmountTotal > 0 {
		amount, err := money.New(session.AmountTotal, money.Code(strings.ToUpper(string(session.Currency))))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		ev.Amount = &amount
	}
	return ev, nil
}

var _ Gateway = (*Stripe)(nil)
