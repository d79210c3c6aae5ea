package eventbus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/amirasaad/remittance/pkg/domain/events"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupRedisBus(t *testing.T) *RedisEventBus {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })

	bus, err := NewWithRedis(client, "test.events", "test", events.Factories, newDiscardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func TestRedisBus_HandlerReceivesEvent(t *testing.T) {
	bus := setupRedisBus(t)

	received := make(chan uuid.UUID, 1)
	bus.Register(events.TypePaymentCompleted, func(_ context.Context, e events.Event) error {
		received <- e.(*events.PaymentCompleted).PaymentID
		return nil
	})

	id := uuid.New()
	require.NoError(t, bus.Emit(context.Background(), &events.PaymentCompleted{PaymentID: id}))

	select {
	case got := <-received:
		assert.Equal(t, id, got)
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not receive event in time")
	}
}

func TestRedisBus_FailedHandlerGoesToDLQ(t *testing.T) {
	bus := setupRedisBus(t)
	ctx := context.Background()

	bus.Register(events.TypePaymentFailed, func(context.Context, events.Event) error {
		return errors.New("simulated failure")
	})
	require.NoError(t, bus.Emit(ctx, &events.PaymentFailed{PaymentID: uuid.New()}))

	require.Eventually(t, func() bool {
		n, err := bus.client.XLen(ctx, bus.dlqStream()).Result()
		return err == nil && n == 1
	}, 5*time.Second, 100*time.Millisecond)
}

func TestNewWithRedis_Validation(t *testing.T) {
	_, err := NewWithRedis(nil, "s", "g", events.Factories, nil)
	assert.Error(t, err)
}
