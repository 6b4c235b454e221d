// Package kafka provides Kafka producer and consumer clients backed by
// segmentio/kafka-go. The producer serialises events as JSON, while the
// consumer decodes them via a pluggable MessageHandler callback.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/resilience"
)

// MessageHandler is a callback invoked for each Kafka message. A returned
// error leaves the message uncommitted.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// messageReader is the part of *kafka.Reader the consumer drives.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// fetchRetry backs off between failed fetches so a lost broker does not
// spin the loop.
var fetchRetry = resilience.RetryConfig{
	MaxAttempts:    10,
	InitialDelay:   100 * time.Millisecond,
	MaxDelay:       5 * time.Second,
	Multiplier:     2,
	JitterFraction: 0.1,
}

// Consumer reads messages from a Kafka topic in a consumer group and
// dispatches them to a MessageHandler.
type Consumer struct {
	reader  messageReader
	retry   resilience.RetryConfig
	logger  *slog.Logger
	handler MessageHandler
}

// NewConsumer creates a Consumer for cfg.QueryTopic. fromStart selects the
// first offset for a group without a committed position.
func NewConsumer(cfg config.KafkaConfig, fromStart bool, handler MessageHandler) *Consumer {
	start := kafka.LastOffset
	if fromStart {
		start = kafka.FirstOffset
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.QueryTopic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: start,
	})
	return &Consumer{
		reader:  r,
		retry:   fetchRetry,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", cfg.QueryTopic),
		handler: handler,
	}
}

// Run fetches and processes messages until ctx is cancelled, then closes
// the reader.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.reader.Close()
	for {
		msg, err := c.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
			c.logger.Error("failed to process message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// fetch reads the next message, retrying failed fetches with backoff.
func (c *Consumer) fetch(ctx context.Context) (kafka.Message, error) {
	var msg kafka.Message
	err := resilience.Retry(ctx, "fetch message", c.retry, func() error {
		var err error
		msg, err = c.reader.FetchMessage(ctx)
		if err != nil && ctx.Err() != nil {
			return resilience.Permanent(err)
		}
		return err
	})
	return msg, err
}

// DecodeJSON unmarshals a Kafka message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
