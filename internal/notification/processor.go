package notification

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Processor handles jobs consumed from the notification topic.
type Processor struct {
	sender  Sender
	logger  *zap.Logger
	timeout time.Duration
}

// NewProcessor returns a Processor that delivers decoded jobs through sender.
func NewProcessor(sender Sender, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{sender: sender, logger: logger, timeout: 10 * time.Second}
}

// Handle decodes and delivers one message value. Malformed payloads are logged and dropped (nil error)
// so a poison message does not stall the consumer; delivery failures are returned.
func (p *Processor) Handle(ctx context.Context, payload []byte) error {
	job, err := DecodeJob(payload)
	if err != nil {
		p.logger.Warn("notification: dropping malformed job", zap.Error(err), zap.Int("bytes", len(payload)))
		return nil
	}
	if !job.ExpiresAt.IsZero() && !time.Now().Before(job.ExpiresAt) {
		p.logger.Info("notification: dropping expired job",
			zap.String("request_id", job.RequestID), zap.String("user_id", job.UserID))
		return nil
	}
	sendCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.sender.SendOTP(sendCtx, job); err != nil {
		if errors.Is(err, ErrEmailNotConfigured) {
			p.logger.Error("notification: email API not configured", zap.String("request_id", job.RequestID))
		}
		return err
	}
	p.logger.Info("notification: otp delivered",
		zap.String("request_id", job.RequestID), zap.String("user_id", job.UserID))
	return nil
}
