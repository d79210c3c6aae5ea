package eventbus

import (
	"context"
	"errors"
	"testing"

	"github.com/amirasaad/remittance/pkg/domain/events"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryEventBus_DispatchesByType(t *testing.T) {
	bus := NewWithMemory(nil)

	var completed, failed int
	bus.Register(events.TypePaymentCompleted, func(_ context.Context, e events.Event) error {
		_, ok := e.(*events.PaymentCompleted)
		assert.True(t, ok)
		completed++
		return nil
	})
	bus.Register(events.TypePaymentFailed, func(context.Context, events.Event) error {
		failed++
		return errors.New("handler errors are logged, not returned")
	})
	bus.Register(events.TypePaymentFailed, func(context.Context, events.Event) error {
		panic("recovered")
	})

	ctx := context.Background()
	require.NoError(t, bus.Emit(ctx, &events.PaymentCompleted{PaymentID: uuid.New()}))
	require.NoError(t, bus.Emit(ctx, &events.PaymentFailed{PaymentID: uuid.New()}))
	require.NoError(t, bus.Emit(ctx, &events.PaymentCancelled{PaymentID: uuid.New()}))

	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, failed)
	assert.Len(t, bus.Published(), 3)
	assert.Len(t, bus.PublishedOfType(events.TypePaymentCancelled), 1)

	bus.ClearPublished()
	assert.Empty(t, bus.Published())
}

func TestEnvelopeRoundTrip(t *testing.T) {
	id := uuid.New()
	raw, err := encode(&events.PaymentConflict{PaymentID: id, RecordedStatus: "completed", ReportedStatus: "failed"})
	require.NoError(t, err)

	evt, err := decode(raw, events.Factories)
	require.NoError(t, err)
	conflict, ok := evt.(*events.PaymentConflict)
	require.True(t, ok)
	assert.Equal(t, id, conflict.PaymentID)
	assert.Equal(t, "failed", conflict.ReportedStatus)

	_, err = decode([]byte(`{"type":"nope","payload":{}}`), events.Factories)
	assert.Error(t, err)
	_, err = decode([]byte(`not json`), events.Factories)
	assert.Error(t, err)
}
