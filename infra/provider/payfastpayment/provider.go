// Package payfastpayment starts card and EFT payments through PayFast's
// hosted process page.
package payfastpayment

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/amirasaad/remittance/pkg/config"
	"github.com/amirasaad/remittance/pkg/domain"
	"github.com/amirasaad/remittance/pkg/domain/payment"
	"github.com/amirasaad/remittance/pkg/gateway"
	"github.com/amirasaad/remittance/pkg/money"
	provider "github.com/amirasaad/remittance/pkg/provider/payment"
)

// itemNameLen is PayFast's limit on item_name.
const itemNameLen = 100

type PayFastPaymentProvider struct {
	cfg    *config.PayFast
	logger *slog.Logger
}

func New(cfg *config.PayFast, logger *slog.Logger) *PayFastPaymentProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &PayFastPaymentProvider{cfg: cfg, logger: logger}
}

func (p *PayFastPaymentProvider) Provider() payment.Gateway { return payment.GatewayPayFast }

func (p *PayFastPaymentProvider) ValidatePaymentData(data *provider.Data) error {
	if p.cfg.MerchantID == "" || p.cfg.MerchantKey == "" {
		return fmt.Errorf("%w: payfast is not configured", domain.ErrGateway)
	}
	return provider.RequireCurrency(data, money.ZAR)
}

// ProcessPayment builds the signed form posted to the process URL. PayFast
// assigns pf_payment_id in its first ITN.
func (p *PayFastPaymentProvider) ProcessPayment(ctx context.Context, data *provider.Data) (*provider.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fields := p.formFields(data)
	fields.Set(gateway.PayFastSignatureField, gateway.SignPayFast(fields, p.cfg.Passphrase))

	form := make(map[string]string, len(fields))
	for k := range fields {
		form[k] = fields.Get(k)
	}
	p.logger.Info("✅ [SUCCESS] payfast form signed",
		"handler", "payfast.ProcessPayment", "payment_id", data.PaymentID, "amount", data.Amount.String())

	return &provider.Result{
		Status:      payment.StatusPending,
		RedirectURL: p.cfg.ProcessURL,
		FormData:    form,
	}, nil
}

func (p *PayFastPaymentProvider) formFields(data *provider.Data) url.Values {
	item := data.Description
	if item == "" {
		item = "Remittance " + data.Reference
	}
	if len(item) > itemNameLen {
		item = item[:itemNameLen]
	}
	fields := url.Values{
		"merchant_id":  {p.cfg.MerchantID},
		"merchant_key": {p.cfg.MerchantKey},
		"return_url":   {p.cfg.ReturnURL},
		"cancel_url":   {p.cfg.CancelURL},
		"notify_url":   {p.cfg.NotifyURL},
		"m_payment_id": {data.Reference},
		"amount":       {data.Amount.Major().StringFixed(2)},
		"item_name":    {item},
		"custom_str1":  {data.PayerID.String()},
	}
	if data.PayerEmail != "" {
		fields.Set("email_address", data.PayerEmail)
	}
	if data.RecipientID != nil {
		fields.Set("custom_str2", data.RecipientID.String())
	}
	if data.RecipientEmail != "" {
		fields.Set("custom_str3", data.RecipientEmail)
	}
	return fields
}

var _ provider.Processor = (*PayFastPaymentProvider)(nil)
