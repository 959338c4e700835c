package quota

import (
	"errors"
	"testing"
	"time"

	apperrors "github.com/goldenseed/entropy/internal/platform/errors"
)

func TestTierLimits(t *testing.T) {
	tests := []struct {
		tier         Tier
		wantBytes    int64
		wantRequests int64
	}{
		{tier: TierFree, wantBytes: 100 << 20, wantRequests: 1000},
		{tier: TierPro, wantBytes: 10 << 30, wantRequests: 100_000},
		{tier: TierEnterprise, wantBytes: -1, wantRequests: -1},
		{tier: Tier("bogus"), wantBytes: 100 << 20, wantRequests: 1000},
	}
	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			limits := TierLimits(tt.tier)
			if limits.MonthlyBytes != tt.wantBytes {
				t.Fatalf("MonthlyBytes = %d, want %d", limits.MonthlyBytes, tt.wantBytes)
			}
			if limits.MonthlyRequests != tt.wantRequests {
				t.Fatalf("MonthlyRequests = %d, want %d", limits.MonthlyRequests, tt.wantRequests)
			}
		})
	}
}

func TestCheckMonthly(t *testing.T) {
	tests := []struct {
		name     string
		tier     Tier
		bytes    int64
		requests int64
		wantErr  bool
	}{
		{name: "free under quota", tier: TierFree, bytes: 1 << 20, requests: 10},
		{name: "free over requests", tier: TierFree, requests: 1000, wantErr: true},
		{name: "free over bytes", tier: TierFree, bytes: 100 << 20, wantErr: true},
		{name: "pro under quota", tier: TierPro, bytes: 1 << 30, requests: 50_000},
		{name: "enterprise unlimited", tier: TierEnterprise, bytes: 1 << 40, requests: 10_000_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckMonthly(tt.tier, tt.bytes, tt.requests)
			if tt.wantErr {
				if !errors.Is(err, apperrors.New(apperrors.CodeQuotaExceeded, "")) {
					t.Fatalf("expected QUOTA_EXCEEDED, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestRateLimiterWindow(t *testing.T) {
	limiter := NewRateLimiter(3, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	limiter.clock = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !limiter.Allow("key") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if limiter.Allow("key") {
		t.Fatal("fourth request inside window should be rejected")
	}

	// A different key has its own window.
	if !limiter.Allow("other") {
		t.Fatal("distinct key should be allowed")
	}

	// Advance past the window; the key recovers.
	now = now.Add(61 * time.Second)
	if !limiter.Allow("key") {
		t.Fatal("request after window should be allowed")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := NewRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		if !limiter.Allow("key") {
			t.Fatal("disabled limiter must always allow")
		}
	}
}

func TestTierValid(t *testing.T) {
	if !TierFree.Valid() || !TierPro.Valid() || !TierEnterprise.Valid() {
		t.Fatal("known tiers must validate")
	}
	if Tier("gold").Valid() {
		t.Fatal("unknown tier must not validate")
	}
}
