// Package storage defines the persistence contracts for the entropy
// service: accounts, API keys, and usage metering.
package storage

import (
	"context"
	"time"

	apperrors "github.com/goldenseed/entropy/internal/platform/errors"
	"github.com/goldenseed/entropy/internal/services/entropy/quota"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// Account is a registered API account.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Tier         quota.Tier
	CreatedAt    time.Time
	Active       bool
}

// APIKey stores a minted API key. Only the SHA-256 hash of the key is
// persisted; the plaintext exists once, in the mint response.
type APIKey struct {
	ID         string
	AccountID  string
	KeyHash    string
	KeyPrefix  string
	Name       string
	CreatedAt  time.Time
	LastUsedAt *time.Time
	Active     bool
}

// UsageEntry records a single metered generation call.
type UsageEntry struct {
	AccountID   string
	APIKeyID    string
	Operation   string
	OutputBytes int64
	CreatedAt   time.Time
}

// UsageSummary aggregates metered consumption for an account.
type UsageSummary struct {
	Requests    int64
	OutputBytes int64
}

// AccountStore persists account records.
type AccountStore interface {
	CreateAccount(ctx context.Context, account Account) error
	GetAccount(ctx context.Context, id string) (Account, error)
	GetAccountByEmail(ctx context.Context, email string) (Account, error)
}

// APIKeyStore persists API key records.
type APIKeyStore interface {
	PutAPIKey(ctx context.Context, key APIKey) error
	GetAPIKeyByHash(ctx context.Context, keyHash string) (APIKey, error)
	ListAPIKeys(ctx context.Context, accountID string) ([]APIKey, error)
	TouchAPIKey(ctx context.Context, id string, usedAt time.Time) error
	RevokeAPIKey(ctx context.Context, accountID, id string) error
}

// UsageStore persists and aggregates usage metering entries.
type UsageStore interface {
	AppendUsage(ctx context.Context, entry UsageEntry) error
	SummarizeUsage(ctx context.Context, accountID string, since time.Time) (UsageSummary, error)
}

// Store combines all entropy service persistence concerns.
type Store interface {
	AccountStore
	APIKeyStore
	UsageStore
	Close() error
}
