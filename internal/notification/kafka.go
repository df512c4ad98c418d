package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer used by KafkaDispatcher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaDispatcher implements Sender by publishing the job to the notification topic; the worker
// performs the actual delivery.
type KafkaDispatcher struct {
	writer messageWriter
}

// NewKafkaDispatcher creates a dispatcher that writes OTP jobs to topic. Returns nil when brokers or
// topic are empty. Call Close when shutting down.
func NewKafkaDispatcher(brokers []string, topic string) *KafkaDispatcher {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &KafkaDispatcher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}}
}

// SendOTP serializes the job as JSON keyed by user id, so a user's jobs stay ordered on one partition.
func (d *KafkaDispatcher) SendOTP(ctx context.Context, job OTPJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return d.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(job.UserID),
		Value: payload,
	})
}

// Close closes the Kafka writer. Safe to call on a nil dispatcher.
func (d *KafkaDispatcher) Close() error {
	if d == nil || d.writer == nil {
		return nil
	}
	return d.writer.Close()
}
