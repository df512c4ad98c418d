package notification

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const maxDeliveryAttempts = 3

// messageReader is the subset of *kafka.Reader used by Consumer.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer drains the notification topic into a Processor. Offsets are committed after each message
// is handled; a message whose delivery keeps failing is committed after maxDeliveryAttempts so it
// does not block the partition (the user can request a new code).
type Consumer struct {
	reader  messageReader
	proc    *Processor
	logger  *zap.Logger
	backoff time.Duration
}

// NewKafkaConsumer returns a consumer-group reader for topic.
func NewKafkaConsumer(brokers []string, topic, groupID string, proc *Processor, logger *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
	return newConsumer(r, proc, logger)
}

func newConsumer(r messageReader, proc *Processor, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{reader: r, proc: proc, logger: logger, backoff: time.Second}
}

// Run consumes until ctx is cancelled. It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("worker: kafka fetch failed", zap.Error(err))
			if !sleepCtx(ctx, c.backoff) {
				return nil
			}
			continue
		}
		c.deliver(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Warn("worker: commit failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, msg kafka.Message) {
	for attempt := 1; attempt <= maxDeliveryAttempts; attempt++ {
		err := c.proc.Handle(ctx, msg.Value)
		if err == nil {
			return
		}
		if errors.Is(err, ErrEmailNotConfigured) || attempt == maxDeliveryAttempts {
			c.logger.Error("worker: giving up on otp job",
				zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset), zap.Int("attempts", attempt), zap.Error(err))
			return
		}
		if !sleepCtx(ctx, time.Duration(attempt)*c.backoff) {
			return
		}
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
