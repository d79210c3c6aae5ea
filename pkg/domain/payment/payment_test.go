package payment

import (
	"slices"
	"testing"

	"github.com/amirasaad/remittance/pkg/domain"
	"github.com/amirasaad/remittance/pkg/money"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	all := []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled}
	allowed := map[Status][]Status{
		StatusPending:    {StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled},
		StatusProcessing: {StatusCompleted, StatusFailed},
	}
	for _, from := range all {
		for _, to := range all {
			want := slices.Contains(allowed[from], to)
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestNew(t *testing.T) {
	p, err := New(uuid.New(), GatewayOzow, money.Must(100000, money.ZAR), money.Must(3000, money.ZAR))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, p.Status)
	assert.Equal(t, int64(103000), p.TotalAmount.Amount())
	assert.True(t, p.HasProvisionalGatewayID())
	assert.Equal(t, p.ID.String(), p.Reference)

	_, err = New(uuid.Nil, GatewayOzow, money.Must(1, money.ZAR), money.Zero(money.ZAR))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = New(uuid.New(), GatewayOzow, money.Must(0, money.ZAR), money.Zero(money.ZAR))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestTransitionTo(t *testing.T) {
	p, err := New(uuid.New(), GatewayStripe, money.Must(100, money.USD), money.Zero(money.USD))
	require.NoError(t, err)

	require.NoError(t, p.TransitionTo(StatusProcessing))
	assert.ErrorIs(t, p.TransitionTo(StatusCancelled), domain.ErrInvalidTransition)
	require.NoError(t, p.TransitionTo(StatusCompleted))
	assert.ErrorIs(t, p.TransitionTo(StatusFailed), domain.ErrInvalidTransition)
	assert.True(t, p.IsUnreconciled())
}

func TestParseGateway(t *testing.T) {
	g, err := ParseGateway("payfast")
	require.NoError(t, err)
	assert.Equal(t, GatewayPayFast, g)

	_, err = ParseGateway("paypal")
	assert.ErrorIs(t, err, domain.ErrUnknownGateway)
}
