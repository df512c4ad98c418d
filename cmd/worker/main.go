// Worker drains OTP email jobs from Kafka and delivers them through the email API. When DATABASE_URL
// is set it also runs the cron job that purges finished and expired phone-number change requests.
// Set KAFKA_BROKERS, NOTIFICATION_KAFKA_TOPIC, KAFKA_GROUP_ID and EMAIL_API_KEY.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/zackweld/crAPI/internal/config"
	"github.com/zackweld/crAPI/internal/db"
	"github.com/zackweld/crAPI/internal/logging"
	"github.com/zackweld/crAPI/internal/notification"
	"github.com/zackweld/crAPI/internal/phonechange/cleanup"
	changerepo "github.com/zackweld/crAPI/internal/phonechange/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("worker exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		return errors.New("worker: KAFKA_BROKERS is required")
	}
	if cfg.EmailAPIKey == "" {
		logger.Warn("worker: EMAIL_API_KEY is not set; jobs will be dropped after retries")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler, closeDB, err := startPurge(cfg, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	email := notification.NewEmailClient(cfg.EmailAPIKey, cfg.EmailAPIURL, cfg.EmailSenderAddress, cfg.EmailSenderName)
	consumer := notification.NewKafkaConsumer(brokers, cfg.NotificationKafkaTopic, cfg.KafkaGroupID,
		notification.NewProcessor(email, logger), logger)
	defer func() { _ = consumer.Close() }()

	logger.Info("worker: consuming otp jobs",
		zap.String("topic", cfg.NotificationKafkaTopic), zap.String("group", cfg.KafkaGroupID))
	runErr := consumer.Run(ctx)

	logger.Info("worker: shutting down")
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	return runErr
}

// startPurge schedules the stale-change purge when a database is configured. The returned scheduler
// is nil when purging is disabled.
func startPurge(cfg *config.Config, logger *zap.Logger) (*cron.Cron, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Info("worker: DATABASE_URL not set; purge job disabled")
		return nil, func() {}, nil
	}
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("db: %w", err)
	}
	job := cleanup.NewJob(changerepo.NewPostgresRepository(conn), cfg.PurgeRetention(), logger)
	scheduler, err := cleanup.NewScheduler(cfg.PurgeSchedule, job, logger)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	scheduler.Start()
	logger.Info("worker: purge job scheduled",
		zap.String("schedule", cfg.PurgeSchedule), zap.Duration("retention", cfg.PurgeRetention()))
	return scheduler, func() { _ = conn.Close() }, nil
}
