package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zackweld/crAPI/internal/security"
)

func TestAuthenticate(t *testing.T) {
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	valid, _, err := tokens.IssueAccess("user-1", "user-1@example.com", "user")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	testCases := []struct {
		name       string
		header     string
		wantStatus int
		wantUserID string
	}{
		{"no header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized, ""},
		{"bearer only", "Bearer", http.StatusUnauthorized, ""},
		{"invalid token", "Bearer not-a-jwt", http.StatusUnauthorized, ""},
		{"valid", "Bearer " + valid, http.StatusOK, "user-1"},
		{"lowercase scheme", "bearer " + valid, http.StatusOK, "user-1"},
		{"extra whitespace", "  Bearer   " + valid + "  ", http.StatusOK, "user-1"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var gotUserID, gotEmail string
			h := Authenticate(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUserID, _ = GetUserID(r.Context())
				gotEmail, _ = GetEmail(r.Context())
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if gotUserID != tc.wantUserID {
				t.Errorf("user id = %q, want %q", gotUserID, tc.wantUserID)
			}
			if tc.wantUserID != "" && gotEmail != "user-1@example.com" {
				t.Errorf("email = %q", gotEmail)
			}
		})
	}
}
