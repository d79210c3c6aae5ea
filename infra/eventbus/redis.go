package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/amirasaad/remittance/pkg/domain/events"
	"github.com/amirasaad/remittance/pkg/eventbus"
	"github.com/redis/go-redis/v9"
)

// RedisEventBus publishes events to one Redis stream. Each registered event
// type reads through its own consumer group, so every type sees every entry.
type RedisEventBus struct {
	client    *redis.Client
	stream    string
	group     string
	factories map[string]func() events.Event
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWithRedis creates a Redis Streams event bus on an existing client.
func NewWithRedis(
	client *redis.Client,
	stream, group string,
	factories map[string]func() events.Event,
	logger *slog.Logger,
) (*RedisEventBus, error) {
	if client == nil || stream == "" || group == "" {
		return nil, fmt.Errorf("redis event bus: client, stream and group are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisEventBus{
		client:    client,
		stream:    stream,
		group:     group,
		factories: factories,
		logger:    logger.With("bus", "redis", "stream", stream),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Emit appends the event to the stream.
func (b *RedisEventBus) Emit(ctx context.Context, event events.Event) error {
	raw, err := encode(event)
	if err != nil {
		return err
	}
	if err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		Values: map[string]any{"event": string(raw)},
	}).Err(); err != nil {
		b.logger.Error("failed to emit event", "error", err, "type", event.Type())
		return fmt.Errorf("redis event bus: emit failed: %w", err)
	}
	b.logger.Debug("event emitted", "type", event.Type())
	return nil
}

// Register starts a consumer goroutine for eventType.
func (b *RedisEventBus) Register(eventType string, handler eventbus.HandlerFunc) {
	group := b.groupFor(eventType)
	consumer := fmt.Sprintf("consumer-%s-%d", eventType, time.Now().UnixNano())
	if err := b.client.XGroupCreateMkStream(b.ctx, b.stream, group, "$").Err(); err != nil &&
		err.Error() != "BUSYGROUP Consumer Group name already exists" {
		b.logger.Error("failed to create consumer group", "error", err, "group", group)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.consume(eventType, group, consumer, handler)
	}()
	b.logger.Info("handler registered", "event_type", eventType, "group", group, "consumer", consumer)
}

func (b *RedisEventBus) consume(eventType, group, consumer string, handler eventbus.HandlerFunc) {
	for {
		res, err := b.client.XReadGroup(b.ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{b.stream, ">"},
			Count:    10,
			Block:    2 * time.Second,
		}).Result()
		if b.ctx.Err() != nil {
			return
		}
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				b.logger.Error("error reading from stream", "error", err, "consumer", consumer)
				time.Sleep(time.Second)
			}
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				b.handleMessage(eventType, msg, handler)
				if err := b.client.XAck(b.ctx, b.stream, group, msg.ID).Err(); err != nil {
					b.logger.Error("failed to acknowledge message", "error", err, "msg_id", msg.ID)
				}
			}
		}
	}
}

func (b *RedisEventBus) handleMessage(eventType string, msg redis.XMessage, handler eventbus.HandlerFunc) {
	raw, ok := msg.Values["event"].(string)
	if !ok {
		return
	}
	evt, err := decode([]byte(raw), b.factories)
	if err != nil {
		b.logger.Error("undecodable stream entry", "error", err, "msg_id", msg.ID)
		b.pushToDLQ(msg.Values)
		return
	}
	if evt.Type() != eventType {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panic recovered", "panic", r, "event_type", eventType)
			b.pushToDLQ(msg.Values)
		}
	}()
	if err := handler(b.ctx, evt); err != nil {
		b.logger.Error("handler error", "error", err, "event_type", eventType)
		b.pushToDLQ(msg.Values)
	}
}

func (b *RedisEventBus) groupFor(eventType string) string {
	return b.group + ":" + eventType
}

func (b *RedisEventBus) dlqStream() string {
	return b.stream + "-DLQ"
}

// pushToDLQ keeps the raw entry for inspection or manual replay.
func (b *RedisEventBus) pushToDLQ(values map[string]any) {
	if err := b.client.XAdd(b.ctx, &redis.XAddArgs{
		Stream: b.dlqStream(),
		Values: values,
	}).Err(); err != nil {
		b.logger.Error("failed to push to DLQ", "error", err, "stream", b.dlqStream())
		return
	}
	b.logger.Warn("event pushed to DLQ", "stream", b.dlqStream())
}

// Close stops the consumers. The client is owned by the caller.
func (b *RedisEventBus) Close() error {
	b.cancel()
	b.wg.Wait()
	return nil
}

var _ eventbus.Bus = (*RedisEventBus)(nil)
