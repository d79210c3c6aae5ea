package stripepayment

import (
	"context"
	"errors"
	"testing"

	"github.com/amirasaad/remittance/pkg/config"
	"github.com/amirasaad/remittance/pkg/domain"
	"github.com/amirasaad/remittance/pkg/domain/payment"
	"github.com/amirasaad/remittance/pkg/money"
	provider "github.com/amirasaad/remittance/pkg/provider/payment"
	"github.com/amirasaad/remittance/pkg/testutils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
)

type fakeSessions struct {
	params *stripe.CheckoutSessionCreateParams
	err    error
}

func (f *fakeSessions) Create(_ context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.CheckoutSession{ID: "cs_test_123", URL: "https://checkout.stripe.com/c/pay/cs_test_123"}, nil
}

var testConfig = &config.Stripe{
	SuccessURL: "https://app.example.com/success",
	CancelURL:  "https://app.example.com/cancel",
}

func TestProcessPayment_CreatesCheckoutSession(t *testing.T) {
	fake := &fakeSessions{}
	p := newWithSessions(fake, testConfig, testutils.Logger())

	id := uuid.New()
	recipient := uuid.New()
	data := &provider.Data{
		PaymentID:   id,
		Reference:   id.String(),
		PayerID:     uuid.New(),
		PayerEmail:  "payer@example.com",
		RecipientID: &recipient,
		Amount:      money.Must(10300, money.USD),
	}

	res, err := p.ProcessPayment(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, "cs_test_123", res.GatewayTransactionID)
	assert.Equal(t, payment.StatusPending, res.Status)
	assert.Contains(t, res.RedirectURL, "cs_test_123")

	require.NotNil(t, fake.params)
	assert.Equal(t, id.String(), *fake.params.ClientReferenceID)
	assert.Equal(t, "payer@example.com", *fake.params.CustomerEmail)
	assert.Equal(t, recipient.String(), fake.params.Metadata["recipient_id"])
	assert.Equal(t, data.PayerID.String(), fake.params.Metadata["payer_id"])
	require.Len(t, fake.params.LineItems, 1)
	assert.Equal(t, "usd", *fake.params.LineItems[0].PriceData.Currency)
	assert.Equal(t, int64(10300), *fake.params.LineItems[0].PriceData.UnitAmount)
}

func TestProcessPayment_StripeErrorIsGatewayError(t *testing.T) {
	p := newWithSessions(&fakeSessions{err: errors.New("api key invalid")}, testConfig, testutils.Logger())
	id := uuid.New()

	_, err := p.ProcessPayment(context.Background(), &provider.Data{
		PaymentID: id, Reference: id.String(), PayerID: uuid.New(), Amount: money.Must(100, money.USD),
	})
	assert.ErrorIs(t, err, domain.ErrGateway)
}
