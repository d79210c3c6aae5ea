// Command kafka_smoketest publishes a payment.completed event through the
// Kafka event bus and waits for it to come back through the consumer group,
// to check a local broker setup end to end.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	infraeventbus "github.com/amirasaad/remittance/infra/eventbus"
	"github.com/amirasaad/remittance/pkg/domain/events"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

func run() error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	brokers := strings.TrimSpace(os.Getenv("BROKERS"))
	if brokers == "" {
		brokers = "localhost:9093,localhost:9092"
	}
	groupID := strings.TrimSpace(os.Getenv("GROUP_ID"))
	if groupID == "" {
		groupID = "remittance-smoketest"
	}
	prefix := "remittance.events"

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// Readers start at the latest offset, so the topic must exist before
	// the consumer joins or the first message is missed.
	topic := prefix + "." + events.TypePaymentCompleted
	dialer := &kafka.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", strings.Split(brokers, ",")[0])
	if err != nil {
		return err
	}
	err = conn.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
	_ = conn.Close()
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return err
	}
	logger.Info("topic ready", "topic", topic)

	bus, err := infraeventbus.NewWithKafka(infraeventbus.KafkaConfig{
		Brokers:     strings.Split(brokers, ","),
		GroupID:     groupID,
		TopicPrefix: prefix,
	}, events.Factories, logger)
	if err != nil {
		return err
	}
	defer func() { _ = bus.Close() }()

	want := uuid.New()
	got := make(chan uuid.UUID, 1)
	bus.Register(events.TypePaymentCompleted, func(_ context.Context, e events.Event) error {
		if pc, ok := e.(*events.PaymentCompleted); ok {
			select {
			case got <- pc.PaymentID:
			default:
			}
		}
		return nil
	})
	// Give the reader time to join the group.
	time.Sleep(3 * time.Second)

	if err := bus.Emit(ctx, &events.PaymentCompleted{
		PaymentID:  want,
		UserID:     uuid.New(),
		Gateway:    "ozow",
		Amount:     100000,
		Currency:   "ZAR",
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		return err
	}
	logger.Info("produced", "payment_id", want)

	for {
		select {
		case id := <-got:
			if id == want {
				logger.Info("✅ [SUCCESS] consumed", "payment_id", id)
				return nil
			}
		case <-ctx.Done():
			return errors.New("timed out waiting for payment.completed")
		}
	}
}

func main() {
	if err := run(); err != nil {
		slog.Error("smoke test failed", "error", err)
		os.Exit(1)
	}
}
