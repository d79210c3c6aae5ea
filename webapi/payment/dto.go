package payment

import (
	"time"

	"github.com/amirasaad/remittance/pkg/domain/payment"
	"github.com/amirasaad/remittance/pkg/money"
	paymentsvc "github.com/amirasaad/remittance/pkg/service/payment"
	"github.com/shopspring/decimal"
)

// QuoteRequest asks for the fee and FX breakdown of a send.
// Amount is in major units, e.g. 1000 or "1000.00".
type QuoteRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency" validate:"required,len=3,uppercase"`
	TargetCurrency string          `json:"targetCurrency" validate:"omitempty,len=3,uppercase"`
}

// ProcessRequest starts a send through a gateway.
type ProcessRequest struct {
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency" validate:"required,len=3,uppercase"`
	RecipientIdentifier string          `json:"recipientIdentifier" validate:"required,max=320"`
	Description         string          `json:"description" validate:"max=255"`
	QuoteID             string          `json:"quoteId" validate:"omitempty,uuid"`
}

// QuoteDTO is the quote shown to the payer.
type QuoteDTO struct {
	QuoteID         string    `json:"quoteId"`
	Amount          string    `json:"amount"`
	Currency        string    `json:"currency"`
	Fee             string    `json:"fee"`
	TotalAmount     string    `json:"totalAmount"`
	TargetCurrency  string    `json:"targetCurrency,omitempty"`
	ExchangeRate    *string   `json:"exchangeRate,omitempty"`
	ConvertedAmount *string   `json:"convertedAmount,omitempty"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

// PaymentDTO is the client view of a payment. Amounts are major units.
type PaymentDTO struct {
	PaymentID       string     `json:"paymentId"`
	Status          string     `json:"status"`
	Gateway         string     `json:"gateway"`
	Reference       string     `json:"reference"`
	Amount          string     `json:"amount"`
	Currency        string     `json:"currency"`
	Fee             string     `json:"fee"`
	TotalAmount     string     `json:"totalAmount"`
	TargetCurrency  string     `json:"targetCurrency,omitempty"`
	ExchangeRate    *string    `json:"exchangeRate,omitempty"`
	ConvertedAmount *string    `json:"convertedAmount,omitempty"`
	RecipientID     *string    `json:"recipientId,omitempty"`
	TransactionID   *string    `json:"transactionId,omitempty"`
	Description     string     `json:"description,omitempty"`
	FailureReason   string     `json:"failureReason,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	ProcessedAt     *time.Time `json:"processedAt,omitempty"`
}

// ProcessResponse tells the client how to finish paying with the provider.
type ProcessResponse struct {
	PaymentDTO
	RedirectURL string            `json:"redirectUrl,omitempty"`
	FormData    map[string]string `json:"formData,omitempty"`
}

// HistoryDTO is one page of payments.
type HistoryDTO struct {
	Items    []PaymentDTO `json:"items"`
	Page     int          `json:"page"`
	PageSize int          `json:"pageSize"`
	Total    int64        `json:"total"`
}

func major(m money.Money) string {
	return m.Major().StringFixed(int32(m.Currency().Decimals))
}

func convertedMajor(amount *int64, code money.Code) *string {
	if amount == nil || !code.IsValid() {
		return nil
	}
	s := major(money.Must(*amount, code))
	return &s
}

func toQuoteDTO(q *paymentsvc.Quote) QuoteDTO {
	return QuoteDTO{
		QuoteID:         q.ID,
		Amount:          major(q.Amount),
		Currency:        q.Amount.Code().String(),
		Fee:             major(q.Fee),
		TotalAmount:     major(q.Total),
		TargetCurrency:  string(q.TargetCurrency),
		ExchangeRate:    q.ExchangeRate,
		ConvertedAmount: convertedMajor(q.ConvertedAmount, q.TargetCurrency),
		ExpiresAt:       q.ExpiresAt,
	}
}

func toPaymentDTO(p *payment.Payment) PaymentDTO {
	dto := PaymentDTO{
		PaymentID:       p.ID.String(),
		Status:          string(p.Status),
		Gateway:         string(p.Gateway),
		Reference:       p.Reference,
		Amount:          major(p.Amount),
		Currency:        p.Amount.Code().String(),
		Fee:             major(p.Fee),
		TotalAmount:     major(p.TotalAmount),
		TargetCurrency:  string(p.TargetCurrency),
		ExchangeRate:    p.ExchangeRate,
		ConvertedAmount: convertedMajor(p.ConvertedAmount, p.TargetCurrency),
		Description:     p.Description,
		FailureReason:   p.FailureReason,
		CreatedAt:       p.CreatedAt,
		ProcessedAt:     p.ProcessedAt,
	}
	if p.RecipientID != nil {
		id := p.RecipientID.String()
		dto.RecipientID = &id
	}
	if p.TransactionID != nil {
		id := p.TransactionID.String()
		dto.TransactionID = &id
	}
	return dto
}
