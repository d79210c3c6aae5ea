// Package ozowpayment starts instant EFT payments through Ozow.
//
// Ozow has no server-side create call: the customer's browser posts a signed
// form to the payment page. Ozow assigns its TransactionId when it notifies
// us, and the ledger adopts it by TransactionReference.
package ozowpayment

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/amirasaad/remittance/pkg/config"
	"github.com/amirasaad/remittance/pkg/domain"
	"github.com/amirasaad/remittance/pkg/domain/payment"
	"github.com/amirasaad/remittance/pkg/gateway"
	"github.com/amirasaad/remittance/pkg/money"
	provider "github.com/amirasaad/remittance/pkg/provider/payment"
)

// HashCheckField carries the request signature.
const HashCheckField = "HashCheck"

// bankReferenceLen is the longest statement reference Ozow accepts.
const bankReferenceLen = 20

type OzowPaymentProvider struct {
	cfg    *config.Ozow
	logger *slog.Logger
}

func New(cfg *config.Ozow, logger *slog.Logger) *OzowPaymentProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &OzowPaymentProvider{cfg: cfg, logger: logger}
}

func (o *OzowPaymentProvider) Provider() payment.Gateway { return payment.GatewayOzow }

func (o *OzowPaymentProvider) ValidatePaymentData(data *provider.Data) error {
	if o.cfg.SiteCode == "" || o.cfg.PrivateKey == "" {
		return fmt.Errorf("%w: ozow is not configured", domain.ErrGateway)
	}
	return provider.RequireCurrency(data, money.ZAR)
}

// ProcessPayment builds the signed redirect form.
func (o *OzowPaymentProvider) ProcessPayment(ctx context.Context, data *provider.Data) (*provider.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fields := o.formFields(data)
	fields.Set(HashCheckField, gateway.SignOzow(fields, o.cfg.PrivateKey))

	form := make(map[string]string, len(fields))
	for k := range fields {
		form[k] = fields.Get(k)
	}
	o.logger.Info("✅ [SUCCESS] ozow redirect form signed",
		"handler", "ozow.ProcessPayment", "payment_id", data.PaymentID, "amount", data.Amount.String())

	return &provider.Result{
		Status:      payment.StatusPending,
		RedirectURL: o.cfg.PaymentURL,
		FormData:    form,
	}, nil
}

func (o *OzowPaymentProvider) formFields(data *provider.Data) url.Values {
	bankRef := data.Reference
	if len(bankRef) > bankReferenceLen {
		bankRef = bankRef[:bankReferenceLen]
	}
	decimals := int32(data.Amount.Currency().Decimals)
	fields := url.Values{
		"SiteCode":             {o.cfg.SiteCode},
		"CountryCode":          {o.cfg.CountryCode},
		"CurrencyCode":         {string(data.Amount.Code())},
		"Amount":               {data.Amount.Major().StringFixed(decimals)},
		"TransactionReference": {data.Reference},
		"BankReference":        {bankRef},
		"Optional1":            {data.PayerID.String()},
		"CancelUrl":            {o.cfg.CancelURL},
		"ErrorUrl":             {o.cfg.ErrorURL},
		"SuccessUrl":           {o.cfg.SuccessURL},
		"NotifyUrl":            {o.cfg.NotifyURL},
		"IsTest":               {strconv.FormatBool(o.cfg.IsTest)},
	}
	if data.RecipientID != nil {
		fields.Set("Optional2", data.RecipientID.String())
	}
	if data.RecipientEmail != "" {
		fields.Set("Optional3", data.RecipientEmail)
	}
	return fields
}

var _ provider.Processor = (*OzowPaymentProvider)(nil)
