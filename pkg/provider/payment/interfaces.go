package payment

import (
	"context"

	"github.com/amirasaad/remittance/pkg/domain/payment"
)

// Processor starts payments with one provider.
type Processor interface {
	Provider() payment.Gateway

	// ValidatePaymentData checks provider-specific constraints such as
	// supported currencies before anything is persisted.
	ValidatePaymentData(data *Data) error

	// ProcessPayment asks the provider to collect data.Amount. It must
	// honour ctx cancellation.
	ProcessPayment(ctx context.Context, data *Data) (*Result, error)
}
