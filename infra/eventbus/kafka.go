package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/amirasaad/remittance/pkg/domain/events"
	"github.com/amirasaad/remittance/pkg/eventbus"
	"github.com/segmentio/kafka-go"
)

// KafkaConfig configures the Kafka event bus.
type KafkaConfig struct {
	Brokers     []string
	GroupID     string
	TopicPrefix string
}

// KafkaEventBus publishes each event type to its own topic,
// <prefix>.<type>, keyed by payment so one payment's events stay ordered.
// Messages whose handlers fail are copied to <prefix>.dlq.<type>.
type KafkaEventBus struct {
	cfg       KafkaConfig
	writer    messageWriter
	factories map[string]func() events.Event
	logger    *slog.Logger

	handlersMtx sync.RWMutex
	handlers    map[string][]eventbus.HandlerFunc
	readersMtx  sync.Mutex
	readers     map[string]*kafka.Reader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWithKafka creates a Kafka-backed event bus.
func NewWithKafka(cfg KafkaConfig, factories map[string]func() events.Event, logger *slog.Logger) (*KafkaEventBus, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka event bus: brokers are required")
	}
	cfg.Brokers = brokers
	if cfg.GroupID == "" {
		cfg.GroupID = "remittance"
	}
	if strings.TrimSpace(cfg.TopicPrefix) == "" {
		cfg.TopicPrefix = "remittance.events"
	}
	if logger == nil {
		logger = slog.Default()
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		Balancer:               &kafka.Hash{},
	}
	bus := newKafkaBus(cfg, writer, factories, logger)
	logger.Info("🚀 Kafka event bus initialized", "group_id", cfg.GroupID, "brokers", brokers)
	return bus, nil
}

func newKafkaBus(cfg KafkaConfig, w messageWriter, factories map[string]func() events.Event, logger *slog.Logger) *KafkaEventBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &KafkaEventBus{
		cfg:       cfg,
		writer:    w,
		factories: factories,
		logger:    logger.With("bus", "kafka"),
		handlers:  make(map[string][]eventbus.HandlerFunc),
		readers:   make(map[string]*kafka.Reader),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Emit publishes the event to its topic.
func (b *KafkaEventBus) Emit(ctx context.Context, event events.Event) error {
	raw, err := encode(event)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Topic: b.topicFor(event.Type()),
		Key:   []byte(partitionKey(event)),
		Value: raw,
		Time:  time.Now(),
	}
	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka event bus: publish failed: %w", err)
	}
	return nil
}

// Register adds a handler and starts one reader per event type.
func (b *KafkaEventBus) Register(eventType string, handler eventbus.HandlerFunc) {
	b.handlersMtx.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.handlersMtx.Unlock()

	b.readersMtx.Lock()
	defer b.readersMtx.Unlock()
	if _, exists := b.readers[eventType]; exists {
		return
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     b.cfg.Brokers,
		GroupID:     b.cfg.GroupID,
		Topic:       b.topicFor(eventType),
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
	})
	b.readers[eventType] = reader

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.consumeLoop(eventType, reader)
	}()
}

func (b *KafkaEventBus) consumeLoop(eventType string, reader *kafka.Reader) {
	for {
		msg, err := reader.FetchMessage(b.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || b.ctx.Err() != nil {
				return
			}
			b.logger.Error("kafka consume error", "error", err, "event_type", eventType)
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if err := b.process(b.ctx, msg); err != nil {
			b.logger.Error("kafka message processing failed; will retry", "error", err, "offset", msg.Offset)
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if err := reader.CommitMessages(b.ctx, msg); err != nil {
			b.logger.Error("kafka commit error", "error", err, "offset", msg.Offset)
		}
	}
}

// process runs the handlers for one message. It returns an error only when
// the message could not be parked in the DLQ and should be fetched again.
func (b *KafkaEventBus) process(ctx context.Context, msg kafka.Message) error {
	evt, err := decode(msg.Value, b.factories)
	if err != nil {
		b.logger.Error("undecodable message dropped", "error", err, "topic", msg.Topic, "offset", msg.Offset)
		return nil
	}

	b.handlersMtx.RLock()
	handlers := append([]eventbus.HandlerFunc(nil), b.handlers[evt.Type()]...)
	b.handlersMtx.RUnlock()

	failed := false
	for _, h := range handlers {
		if err := h(ctx, evt); err != nil {
			failed = true
			b.logger.Error("handler error", "error", err, "event_type", evt.Type(), "offset", msg.Offset)
		}
	}
	if !failed {
		return nil
	}

	dlq := kafka.Message{
		Topic: b.dlqTopicFor(evt.Type()),
		Key:   msg.Key,
		Value: msg.Value,
		Time:  time.Now(),
	}
	if err := b.writer.WriteMessages(ctx, dlq); err != nil {
		return fmt.Errorf("kafka event bus: dlq publish failed: %w", err)
	}
	b.logger.Warn("message sent to DLQ", "event_type", evt.Type(), "dlq_topic", dlq.Topic)
	return nil
}

func (b *KafkaEventBus) topicFor(eventType string) string {
	return b.cfg.TopicPrefix + "." + strings.ToLower(eventType)
}

func (b *KafkaEventBus) dlqTopicFor(eventType string) string {
	return b.cfg.TopicPrefix + ".dlq." + strings.ToLower(eventType)
}

// partitionKey keeps all events of one payment on one partition.
func partitionKey(event events.Event) string {
	switch e := event.(type) {
	case *events.PaymentInitiated:
		return e.PaymentID.String()
	case *events.PaymentCompleted:
		return e.PaymentID.String()
	case *events.PaymentFailed:
		return e.PaymentID.String()
	case *events.PaymentCancelled:
		return e.PaymentID.String()
	case *events.PaymentConflict:
		return e.PaymentID.String()
	case *events.PaymentUnreconciled:
		return e.PaymentID.String()
	}
	return event.Type()
}

// Close stops readers and flushes the writer.
func (b *KafkaEventBus) Close() error {
	b.cancel()
	b.readersMtx.Lock()
	for _, r := range b.readers {
		_ = r.Close()
	}
	b.readersMtx.Unlock()
	b.wg.Wait()
	return b.writer.Close()
}

var _ eventbus.Bus = (*KafkaEventBus)(nil)
