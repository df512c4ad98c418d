package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// mockPinger implements Pinger for tests.
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) PingContext(context.Context) error {
	return m.pingErr
}

// mockPolicyChecker implements PolicyChecker for tests.
type mockPolicyChecker struct {
	healthErr error
}

func (m *mockPolicyChecker) HealthCheck(context.Context) error {
	return m.healthErr
}

func TestCheck_GRPC(t *testing.T) {
	testCases := []struct {
		name   string
		pinger Pinger
		policy PolicyChecker
		want   healthpb.HealthCheckResponse_ServingStatus
	}{
		{"no probes", nil, nil, healthpb.HealthCheckResponse_SERVING},
		{"all healthy", &mockPinger{}, &mockPolicyChecker{}, healthpb.HealthCheckResponse_SERVING},
		{"db down", &mockPinger{pingErr: errors.New("connection refused")}, &mockPolicyChecker{}, healthpb.HealthCheckResponse_NOT_SERVING},
		{"policy broken", &mockPinger{}, &mockPolicyChecker{healthErr: errors.New("compile")}, healthpb.HealthCheckResponse_NOT_SERVING},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := NewServer(NewChecker(tc.pinger, tc.policy))
			resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{})
			if err != nil {
				t.Fatalf("Check must not return an RPC error: %v", err)
			}
			if resp.GetStatus() != tc.want {
				t.Errorf("status = %v, want %v", resp.GetStatus(), tc.want)
			}
		})
	}
}

func TestCheck_GRPC_ServiceNames(t *testing.T) {
	srv := NewServer(NewChecker(nil, nil))
	if _, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName}); err != nil {
		t.Errorf("Check(%s): %v", ServiceName, err)
	}
	_, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "other"})
	if status.Code(err) != codes.NotFound {
		t.Errorf("Check(other) code = %v, want NotFound", status.Code(err))
	}
}

func TestHTTP(t *testing.T) {
	testCases := []struct {
		name       string
		pinger     Pinger
		wantStatus int
		wantDB     string
	}{
		{"healthy", &mockPinger{}, http.StatusOK, "ok"},
		{"db down", &mockPinger{pingErr: errors.New("connection refused")}, http.StatusServiceUnavailable, "connection refused"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HTTP(NewChecker(tc.pinger, &mockPolicyChecker{}))(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			var body struct {
				Status int               `json:"status"`
				Data   map[string]string `json:"data"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Data["database"] != tc.wantDB || body.Data["policy"] != "ok" {
				t.Errorf("components = %v", body.Data)
			}
		})
	}
}
