package payfastpayment_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/amirasaad/remittance/infra/provider/payfastpayment"
	"github.com/amirasaad/remittance/pkg/config"
	"github.com/amirasaad/remittance/pkg/domain"
	"github.com/amirasaad/remittance/pkg/gateway"
	"github.com/amirasaad/remittance/pkg/money"
	provider "github.com/amirasaad/remittance/pkg/provider/payment"
	"github.com/amirasaad/remittance/pkg/testutils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cfg = &config.PayFast{
	MerchantID:  "10000100",
	MerchantKey: "46f0cd694581a",
	Passphrase:  "jt7NOE43FZPn",
	ProcessURL:  "https://sandbox.payfast.co.za/eng/process",
	NotifyURL:   "https://api.example.com/webhooks/payfast",
}

func TestProcessPayment_SignatureVerifiesAsITN(t *testing.T) {
	p := payfastpayment.New(cfg, testutils.Logger())
	id := uuid.New()
	recipient := uuid.New()
	d := &provider.Data{
		PaymentID:   id,
		Reference:   id.String(),
		PayerID:     uuid.New(),
		RecipientID: &recipient,
		Amount:      money.Must(25050, money.ZAR),
		Description: "School fees",
	}

	require.NoError(t, p.ValidatePaymentData(d))
	res, err := p.ProcessPayment(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, cfg.ProcessURL, res.RedirectURL)

	form := res.FormData
	assert.Equal(t, "250.50", form["amount"])
	assert.Equal(t, id.String(), form["m_payment_id"])
	assert.Equal(t, "School fees", form["item_name"])
	assert.Equal(t, recipient.String(), form["custom_str2"])

	values := url.Values{}
	for k, v := range form {
		values.Set(k, v)
	}
	assert.NoError(t, gateway.NewPayFast(cfg.Passphrase).Verify([]byte(values.Encode()), nil))
}

func TestValidatePaymentData(t *testing.T) {
	p := payfastpayment.New(cfg, testutils.Logger())
	id := uuid.New()
	d := &provider.Data{PaymentID: id, Reference: id.String(), PayerID: uuid.New(), Amount: money.Must(100, money.USD)}
	assert.ErrorIs(t, p.ValidatePaymentData(d), domain.ErrValidation)

	d.Amount = money.Must(100, money.ZAR)
	assert.ErrorIs(t, payfastpayment.New(&config.PayFast{}, nil).ValidatePaymentData(d), domain.ErrGateway)
}
