// Package server assembles the REST router and the gRPC health server of the identity service.
package server

import (
	"context"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	healthhandler "github.com/zackweld/crAPI/internal/health/handler"
)

// GRPCDeps holds the dependencies of the gRPC server.
type GRPCDeps struct {
	Health         *healthhandler.Checker
	Logger         *zap.Logger
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	// Reflection registers the reflection service (development only).
	Reflection bool
}

// NewGRPCServer returns a gRPC server exposing grpc.health.v1.Health, instrumented with otelgrpc.
func NewGRPCServer(deps GRPCDeps) *grpc.Server {
	var statsOpts []otelgrpc.Option
	if deps.TracerProvider != nil {
		statsOpts = append(statsOpts, otelgrpc.WithTracerProvider(deps.TracerProvider))
	}
	if deps.MeterProvider != nil {
		statsOpts = append(statsOpts, otelgrpc.WithMeterProvider(deps.MeterProvider))
	}
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler(statsOpts...)),
		grpc.ChainUnaryInterceptor(LoggingUnary(deps.Logger, map[string]bool{healthpb.Health_Check_FullMethodName: true})),
	)
	RegisterServices(s, deps)
	if deps.Reflection {
		reflection.Register(s)
	}
	return s
}

// RegisterServices registers the gRPC services with s.
func RegisterServices(s grpc.ServiceRegistrar, deps GRPCDeps) {
	checker := deps.Health
	if checker == nil {
		checker = healthhandler.NewChecker(nil, nil)
	}
	healthpb.RegisterHealthServer(s, healthhandler.NewServer(checker))
}

// LoggingUnary logs each unary RPC with its status code and duration. Methods in skipMethods are not logged.
func LoggingUnary(logger *zap.Logger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if skipMethods[info.FullMethod] {
			return resp, err
		}
		logger.Info("grpc request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}
