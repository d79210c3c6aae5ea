package mockpayment

import (
	"context"
	"sync"
	"time"

	"github.com/amirasaad/remittance/pkg/domain/payment"
	provider "github.com/amirasaad/remittance/pkg/provider/payment"
)

// MockPaymentProvider simulates a payment provider for tests and local
// development. It accepts every payment unless Err is set, and waits Delay
// (or until ctx is done) before answering. Accepted payments report Status,
// processing by default, and TransactionID when set.
//
// This is NOT for production use. Real providers confirm through webhooks.
type MockPaymentProvider struct {
	Gateway payment.Gateway
	Status  payment.Status
	Delay   time.Duration
	Err     error

	// TransactionID overrides the derived gateway transaction id.
	TransactionID string

	mu    sync.Mutex
	calls []provider.Data
}

// NewMockPaymentProvider creates a mock standing in for gw.
func NewMockPaymentProvider(gw payment.Gateway) *MockPaymentProvider {
	return &MockPaymentProvider{Gateway: gw}
}

func (m *MockPaymentProvider) Provider() payment.Gateway { return m.Gateway }

func (m *MockPaymentProvider) ValidatePaymentData(*provider.Data) error { return nil }

// ProcessPayment records the call and returns a result whose gateway
// transaction id is derived from the payment id unless TransactionID is set.
func (m *MockPaymentProvider) ProcessPayment(ctx context.Context, data *provider.Data) (*provider.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, *data)
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}
	status := m.Status
	if status == "" {
		status = payment.StatusProcessing
	}
	txID := m.TransactionID
	if txID == "" {
		txID = "mock_" + data.PaymentID.String()
	}
	return &provider.Result{
		GatewayTransactionID: txID,
		Status:               status,
		RedirectURL:          "https://mock.example.com/pay/" + data.Reference,
	}, nil
}

// Calls returns every payment the mock was asked to process.
func (m *MockPaymentProvider) Calls() []provider.Data {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]provider.Data(nil), m.calls...)
}

var _ provider.Processor = (*MockPaymentProvider)(nil)
