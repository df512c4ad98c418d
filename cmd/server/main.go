// server runs the identity REST API (phone-number change workflow) and the gRPC health service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/zackweld/crAPI/internal/audit"
	auditrepo "github.com/zackweld/crAPI/internal/audit/repository"
	"github.com/zackweld/crAPI/internal/config"
	"github.com/zackweld/crAPI/internal/db"
	"github.com/zackweld/crAPI/internal/devotp"
	devotphandler "github.com/zackweld/crAPI/internal/devotp/handler"
	healthhandler "github.com/zackweld/crAPI/internal/health/handler"
	"github.com/zackweld/crAPI/internal/logging"
	"github.com/zackweld/crAPI/internal/notification"
	phonechangehandler "github.com/zackweld/crAPI/internal/phonechange/handler"
	changerepo "github.com/zackweld/crAPI/internal/phonechange/repository"
	phonechangeservice "github.com/zackweld/crAPI/internal/phonechange/service"
	"github.com/zackweld/crAPI/internal/policy/engine"
	"github.com/zackweld/crAPI/internal/security"
	"github.com/zackweld/crAPI/internal/server"
	"github.com/zackweld/crAPI/internal/server/middleware"
	"github.com/zackweld/crAPI/internal/telemetry"
	telemetryotel "github.com/zackweld/crAPI/internal/telemetry/otel"
	userrepo "github.com/zackweld/crAPI/internal/user/repository"
)

const shutdownTimeout = 10 * time.Second

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
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.OTLPInsecure)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()

	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set; set DATABASE_URL or add it to .env")
	}
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer conn.Close()

	tokens, err := security.NewTokenProviderFromPEM(cfg.JWTPrivateKey, cfg.JWTPublicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
	if err != nil {
		return fmt.Errorf("jwt: %w", err)
	}

	module, err := engine.LoadPolicy(cfg.PhoneChangePolicyFile)
	if err != nil {
		return err
	}
	defaults := engine.Defaults{OTPTTL: cfg.OTPTTL(), MaxAttempts: cfg.OTPMaxAttempts}
	evaluator, err := engine.NewOPAEvaluator(ctx, module, defaults, logger.Named("policy"))
	if err != nil {
		return err
	}

	var (
		sender   notification.Sender
		devStore *devotp.MemoryStore
		devOTP   *devotphandler.Handler
	)
	switch brokers := cfg.KafkaBrokersList(); {
	case cfg.OTPReturnToClient:
		devStore = devotp.NewMemoryStore()
		sender = notification.NewDevStoreSender(devStore, cfg.OTPTTL())
		devOTP = devotphandler.NewHandler(devStore)
		logger.Warn("dev OTP mode enabled: codes are readable at /identity/api/v2/dev/phone-otp and no email is sent")
	case len(brokers) > 0:
		dispatcher := notification.NewKafkaDispatcher(brokers, cfg.NotificationKafkaTopic)
		if dispatcher == nil {
			return errors.New("NOTIFICATION_KAFKA_TOPIC must be set when KAFKA_BROKERS is set")
		}
		defer func() { _ = dispatcher.Close() }()
		sender = dispatcher
		logger.Info("otp delivery via kafka", zap.Strings("brokers", brokers), zap.String("topic", cfg.NotificationKafkaTopic))
	default:
		if cfg.EmailAPIKey == "" {
			logger.Warn("EMAIL_API_KEY is not set; phone change requests will fail to deliver OTPs")
		}
		sender = notification.NewEmailClient(cfg.EmailAPIKey, cfg.EmailAPIURL, cfg.EmailSenderAddress, cfg.EmailSenderName)
	}

	deps := phonechangeservice.Deps{
		Users:          userrepo.NewPostgresRepository(conn),
		Changes:        changerepo.NewPostgresRepository(conn),
		Sender:         sender,
		Hasher:         security.NewHasher(cfg.BcryptCost),
		Policy:         evaluator,
		Audit:          audit.NewLogger(auditrepo.NewPostgresRepository(conn), middleware.ClientIPFromContext, logger.Named("audit")),
		Events:         telemetryotel.NewEventEmitter(providers.LoggerProvider),
		ClientIP:       middleware.ClientIPFromContext,
		Logger:         logger.Named("phonechange"),
		TracerProvider: providers.TracerProvider,
		MeterProvider:  providers.MeterProvider,
	}
	if devStore != nil {
		deps.Codes = devStore
	}
	svc, err := phonechangeservice.NewService(deps, phonechangeservice.Options{OTPDigits: cfg.OTPDigits, Defaults: defaults})
	if err != nil {
		return err
	}

	rateLimiter, closeLimiter, err := middleware.NewLimiter(cfg.PhoneChangeRateLimit, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	defer func() { _ = closeLimiter() }()

	checker := healthhandler.NewChecker(conn, evaluator)
	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.NewRouter(server.HTTPDeps{
			Tokens:         tokens,
			PhoneChange:    phonechangehandler.NewHandler(svc, logger.Named("http")),
			DevOTP:         devOTP,
			Health:         checker,
			Limiter:        rateLimiter,
			Logger:         logger.Named("http"),
			TracerProvider: providers.TracerProvider,
			MeterProvider:  providers.MeterProvider,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("REST server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	var stopGRPC func()
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		grpcSrv := server.NewGRPCServer(server.GRPCDeps{
			Health:         checker,
			Logger:         logger.Named("grpc"),
			TracerProvider: providers.TracerProvider,
			MeterProvider:  providers.MeterProvider,
			Reflection:     cfg.IsDevelopment(),
		})
		stopGRPC = grpcSrv.GracefulStop
		go func() {
			logger.Info("gRPC health server listening", zap.String("addr", cfg.GRPCAddr))
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
		logger.Error("server failed, shutting down", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if stopGRPC != nil {
		stopGRPC()
	}
	// Let in-flight async telemetry emits finish before the providers flush.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Warn("otel shutdown", zap.Error(err))
	}
	logger.Info("stopped")
	return runErr
}
