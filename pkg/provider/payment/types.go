package payment

import (
	"fmt"

	"github.com/amirasaad/remittance/pkg/domain"
	"github.com/amirasaad/remittance/pkg/domain/payment"
	"github.com/amirasaad/remittance/pkg/money"
	"github.com/google/uuid"
)

// Data is what a gateway needs to start collecting a payment.
type Data struct {
	PaymentID uuid.UUID
	// Reference is the merchant reference the provider echoes back in
	// notifications.
	Reference      string
	PayerID        uuid.UUID
	PayerEmail     string
	RecipientID    *uuid.UUID
	RecipientEmail string
	// Amount is the total to charge, fee included.
	Amount      money.Money
	Description string
}

// Metadata returns the payer and recipient fields every provider carries
// through to its notifications.
func (d *Data) Metadata() map[string]string {
	md := map[string]string{
		"payment_id": d.PaymentID.String(),
		"payer_id":   d.PayerID.String(),
	}
	if d.RecipientID != nil {
		md["recipient_id"] = d.RecipientID.String()
	}
	if d.RecipientEmail != "" {
		md["recipient_email"] = d.RecipientEmail
	}
	return md
}

// Result is a provider's answer to a new payment.
type Result struct {
	// GatewayTransactionID is empty when the provider only assigns its id
	// in the first notification.
	GatewayTransactionID string
	// Status is pending or processing.
	Status      payment.Status
	RedirectURL string
	// FormData holds signed fields to be posted to RedirectURL.
	FormData map[string]string
}

// validate checks the fields every provider needs.
func (d *Data) validate() error {
	if d == nil {
		return fmt.Errorf("%w: payment data is required", domain.ErrValidation)
	}
	if d.PaymentID == uuid.Nil || d.Reference == "" {
		return fmt.Errorf("%w: payment id and reference are required", domain.ErrValidation)
	}
	if d.PayerID == uuid.Nil {
		return fmt.Errorf("%w: payer is required", domain.ErrValidation)
	}
	if !d.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	return nil
}

// RequireCurrency rejects amounts a provider cannot settle.
func RequireCurrency(d *Data, codes ...money.Code) error {
	for _, c := range codes {
		if d.Amount.Code() == c {
			return nil
		}
	}
	return fmt.Errorf("%w: currency %s is not supported by this gateway", domain.ErrValidation, d.Amount.Code())
}
