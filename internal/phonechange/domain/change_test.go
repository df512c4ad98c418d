package domain

import (
	"testing"
	"time"
)

func TestChange_Verifiable(t *testing.T) {
	testCases := []struct {
		name   string
		change *Change
		want   bool
	}{
		{"nil", nil, false},
		{"active", &Change{Status: StatusActive}, true},
		{"consumed", &Change{Status: StatusConsumed}, false},
		{"locked", &Change{Status: StatusLocked}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.change.Verifiable(); got != tc.want {
				t.Errorf("Verifiable() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestChange_Expired(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	testCases := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"future", now.Add(time.Minute), false},
		{"exactly now", now, true},
		{"past", now.Add(-time.Second), true},
		{"unset", time.Time{}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := &Change{ExpiresAt: tc.expiresAt}
			if got := c.Expired(now); got != tc.want {
				t.Errorf("Expired() = %v, want %v", got, tc.want)
			}
		})
	}
}
