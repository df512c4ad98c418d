package server

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// mockServiceRegistrar implements grpc.ServiceRegistrar for testing.
type mockServiceRegistrar struct {
	services []string
}

func (m *mockServiceRegistrar) RegisterService(desc *grpc.ServiceDesc, impl interface{}) {
	m.services = append(m.services, desc.ServiceName)
}

func TestRegisterServices_Health(t *testing.T) {
	reg := &mockServiceRegistrar{}
	RegisterServices(reg, GRPCDeps{})
	if len(reg.services) != 1 || reg.services[0] != "grpc.health.v1.Health" {
		t.Errorf("services = %v, want [grpc.health.v1.Health]", reg.services)
	}
}

func TestNewGRPCServer(t *testing.T) {
	s := NewGRPCServer(GRPCDeps{Reflection: true})
	defer s.Stop()
	info := s.GetServiceInfo()
	if _, ok := info["grpc.health.v1.Health"]; !ok {
		t.Errorf("health service not registered: %v", info)
	}
}

func TestLoggingUnary(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	interceptor := LoggingUnary(zap.New(core), map[string]bool{"/skip/Me": true})
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "missing")
	}

	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Method"}, handler)
	if status.Code(err) != codes.NotFound {
		t.Errorf("err = %v, want NotFound passthrough", err)
	}
	_, _ = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/skip/Me"}, handler)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["method"] != "/svc/Method" || fields["code"] != "NotFound" {
		t.Errorf("fields = %v", fields)
	}
}

func TestLoggingUnary_NilLogger(t *testing.T) {
	interceptor := LoggingUnary(nil, nil)
	want := errors.New("boom")
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/a/B"},
		func(ctx context.Context, req interface{}) (interface{}, error) { return nil, want })
	if !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}
