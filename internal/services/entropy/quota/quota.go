// Package quota enforces account tiers and per-key request rates for the
// entropy service.
package quota

import (
	"sync"
	"time"

	apperrors "github.com/goldenseed/entropy/internal/platform/errors"
)

// Tier identifies an account's service tier.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Valid reports whether the tier is a known value.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPro, TierEnterprise:
		return true
	}
	return false
}

// Limits describes the monthly allowance for a tier. Negative values
// mean unlimited.
type Limits struct {
	MonthlyBytes    int64
	MonthlyRequests int64
}

// TierLimits returns the monthly allowance for a tier. Unknown tiers get
// the free allowance.
func TierLimits(t Tier) Limits {
	switch t {
	case TierPro:
		return Limits{MonthlyBytes: 10 << 30, MonthlyRequests: 100_000}
	case TierEnterprise:
		return Limits{MonthlyBytes: -1, MonthlyRequests: -1}
	default:
		return Limits{MonthlyBytes: 100 << 20, MonthlyRequests: 1000}
	}
}

// CheckMonthly validates used consumption against the tier allowance.
// It returns a QUOTA_EXCEEDED domain error when either the byte or the
// request allowance is exhausted.
func CheckMonthly(t Tier, usedBytes, usedRequests int64) error {
	limits := TierLimits(t)
	if limits.MonthlyRequests >= 0 && usedRequests >= limits.MonthlyRequests {
		return apperrors.WithMetadata(apperrors.CodeQuotaExceeded, "monthly request quota exhausted",
			map[string]string{"Tier": string(t)})
	}
	if limits.MonthlyBytes >= 0 && usedBytes >= limits.MonthlyBytes {
		return apperrors.WithMetadata(apperrors.CodeQuotaExceeded, "monthly byte quota exhausted",
			map[string]string{"Tier": string(t)})
	}
	return nil
}

// RateLimiter applies a sliding-window request limit per key.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	seen   map[string][]time.Time
	clock  func() time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per window
// for each distinct key. A non-positive limit disables limiting.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		seen:   make(map[string][]time.Time),
		clock:  time.Now,
	}
}

// Allow records a request for key and reports whether it fits inside the
// window.
func (l *RateLimiter) Allow(key string) bool {
	if l == nil || l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	cutoff := now.Add(-l.window)

	recent := l.seen[key][:0]
	for _, at := range l.seen[key] {
		if at.After(cutoff) {
			recent = append(recent, at)
		}
	}
	if len(recent) >= l.limit {
		l.seen[key] = recent
		return false
	}
	l.seen[key] = append(recent, now)
	return true
}
