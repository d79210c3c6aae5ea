// Package gateway turns provider-specific webhook payloads into verified,
// normalized payment events. Each provider is one Gateway implementation.
package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/amirasaad/remittance/pkg/domain"
	"github.com/amirasaad/remittance/pkg/domain/payment"
	"github.com/amirasaad/remittance/pkg/money"
)

// ErrEventIgnored marks a well-formed webhook that does not describe a
// payment status change. Callers acknowledge it without side effects.
var ErrEventIgnored = errors.New("gateway event ignored")

// ErrMalformedPayload is returned when a verified payload cannot be decoded.
var ErrMalformedPayload = fmt.Errorf("%w: malformed webhook payload", domain.ErrValidation)

// Canonical metadata keys carried from providers into PaymentEvent.Metadata.
const (
	MetaPayerID        = "payer_id"
	MetaRecipientID    = "recipient_id"
	MetaRecipientEmail = "recipient_email"
	MetaDescription    = "description"
)

// PaymentEvent is the provider-neutral form of a webhook.
type PaymentEvent struct {
	Provider    payment.Gateway
	EventType   string
	GatewayTxID string
	// Reference is our merchant reference echoed back by the provider.
	Reference string
	Status    payment.Status
	// Amount is nil when the provider did not report one.
	Amount     *money.Money
	Metadata   map[string]string
	RawPayload []byte
}

// Gateway verifies and normalizes webhooks for one provider.
type Gateway interface {
	Provider() payment.Gateway
	// Verify authenticates the payload. It returns an error wrapping
	// domain.ErrSignatureInvalid when the signature does not match.
	Verify(payload []byte, headers http.Header) error
	// Normalize decodes an already verified payload.
	Normalize(payload []byte) (*PaymentEvent, error)
}

// Registry resolves a Gateway by provider.
type Registry struct {
	mu       sync.RWMutex
	gateways map[payment.Gateway]Gateway
}

// NewRegistry registers the given gateways.
func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[payment.Gateway]Gateway, len(gateways))}
	for _, g := range gateways {
		r.Register(g)
	}
	return r
}

// Register adds or replaces the gateway for its provider.
func (r *Registry) Register(g Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[g.Provider()] = g
}

// Get returns the gateway for provider or domain.ErrUnknownGateway.
func (r *Registry) Get(provider payment.Gateway) (Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gateways[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownGateway, provider)
	}
	return g, nil
}

func signatureError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrSignatureInvalid, fmt.Sprintf(format, args...))
}

// mapStatus looks up a provider status, defaulting to processing.
func mapStatus(table map[string]payment.Status, raw string) payment.Status {
	if s, ok := table[raw]; ok {
		return s
	}
	return payment.StatusProcessing
}
