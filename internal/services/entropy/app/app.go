// Package app implements the entropy service business logic: accounts,
// API keys, metered random generation, and deterministic streams.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goldenseed/entropy/internal/csprng"
	apperrors "github.com/goldenseed/entropy/internal/platform/errors"
	"github.com/goldenseed/entropy/internal/platform/id"
	"github.com/goldenseed/entropy/internal/services/entropy/auth"
	"github.com/goldenseed/entropy/internal/services/entropy/quota"
	"github.com/goldenseed/entropy/internal/services/entropy/storage"
	"github.com/goldenseed/entropy/internal/services/entropy/streams"
)

// Generation request limits. Larger draws are split by the client.
const (
	MaxBytesPerRequest  = 1 << 20
	MaxValuesPerRequest = 1000
)

// Operation names recorded in the usage log.
const (
	OpRandomInt    = "random_int"
	OpRandomBytes  = "random_bytes"
	OpRandomFloat  = "random_float"
	OpStreamInt    = "stream_int"
	OpStreamBytes  = "stream_bytes"
	OpStreamFloat  = "stream_float"
	OpStreamCreate = "stream_create"
)

// App wires the entropy service dependencies together.
type App struct {
	store     storage.Store
	tokens    auth.Tokens
	streams   *streams.Registry
	limiter   *quota.RateLimiter
	generator *csprng.Generator
	now       func() time.Time
}

// Config carries the dependencies for New.
type Config struct {
	Store      storage.Store
	Tokens     auth.Tokens
	RateLimit  int
	RateWindow time.Duration
}

// New creates the entropy application core. The shared generator runs in
// secure mode; deterministic generation goes through streams.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("storage is required")
	}
	gen, err := csprng.New()
	if err != nil {
		return nil, fmt.Errorf("create generator: %w", err)
	}
	return &App{
		store:     cfg.Store,
		tokens:    cfg.Tokens,
		streams:   streams.NewRegistry(),
		limiter:   quota.NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
		generator: gen,
		now:       time.Now,
	}, nil
}

// Close releases the shared generator and every registered stream.
func (a *App) Close() error {
	err := a.streams.Close()
	if genErr := a.generator.Close(); err == nil {
		err = genErr
	}
	return err
}

// Principal identifies an authenticated caller.
type Principal struct {
	Account storage.Account
	APIKey  *storage.APIKey
}

// rateKey scopes the sliding-window limiter to the API key when present,
// falling back to the account.
func (p Principal) rateKey() string {
	if p.APIKey != nil {
		return "key:" + p.APIKey.ID
	}
	return "acct:" + p.Account.ID
}

// Session is an issued login token.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Account   storage.Account
}

// Register creates an account and logs it in.
func (a *App) Register(ctx context.Context, email, password, name string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return Session{}, apperrors.New(apperrors.CodeEmailRequired, "email is required")
	}
	if password == "" {
		return Session{}, apperrors.New(apperrors.CodePasswordRequired, "password is required")
	}

	if _, err := a.store.GetAccountByEmail(ctx, email); err == nil {
		return Session{}, apperrors.New(apperrors.CodeAccountExists, "account already exists")
	} else if !errors.Is(err, storage.ErrNotFound) {
		return Session{}, fmt.Errorf("check existing account: %w", err)
	}

	accountID, err := id.New()
	if err != nil {
		return Session{}, fmt.Errorf("generate account id: %w", err)
	}
	account := storage.Account{
		ID:           accountID,
		Email:        email,
		PasswordHash: auth.HashPassword(password),
		Name:         strings.TrimSpace(name),
		Tier:         quota.TierFree,
		CreatedAt:    a.now().UTC(),
		Active:       true,
	}
	if err := a.store.CreateAccount(ctx, account); err != nil {
		return Session{}, fmt.Errorf("create account: %w", err)
	}
	return a.issueSession(account)
}

// Login verifies credentials and issues a session token.
func (a *App) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	account, err := a.store.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Session{}, apperrors.New(apperrors.CodeCredentialsInvalid, "invalid email or password")
		}
		return Session{}, fmt.Errorf("load account: %w", err)
	}
	if !account.Active || !auth.VerifyPassword(password, account.PasswordHash) {
		return Session{}, apperrors.New(apperrors.CodeCredentialsInvalid, "invalid email or password")
	}
	return a.issueSession(account)
}

func (a *App) issueSession(account storage.Account) (Session, error) {
	token, err := a.tokens.Issue(account.ID, account.Email)
	if err != nil {
		return Session{}, fmt.Errorf("issue session token: %w", err)
	}
	return Session{
		Token:     token,
		ExpiresAt: a.now().UTC().Add(a.tokens.Expiry),
		Account:   account,
	}, nil
}

// ResolveToken authenticates a session token into a principal.
func (a *App) ResolveToken(ctx context.Context, token string) (Principal, error) {
	claims, err := a.tokens.Verify(token)
	if err != nil {
		return Principal{}, err
	}
	account, err := a.store.GetAccount(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Principal{}, apperrors.New(apperrors.CodeTokenInvalid, "account no longer exists")
		}
		return Principal{}, fmt.Errorf("load account: %w", err)
	}
	if !account.Active {
		return Principal{}, apperrors.New(apperrors.CodeTokenInvalid, "account is disabled")
	}
	return Principal{Account: account}, nil
}

// ResolveAPIKey authenticates a plaintext API key into a principal and
// records the key use.
func (a *App) ResolveAPIKey(ctx context.Context, plaintext string) (Principal, error) {
	plaintext = strings.TrimSpace(plaintext)
	if !strings.HasPrefix(plaintext, auth.KeyPrefix) {
		return Principal{}, apperrors.New(apperrors.CodeAPIKeyInvalid, "api key is invalid")
	}

	key, err := a.store.GetAPIKeyByHash(ctx, auth.HashAPIKey(plaintext))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Principal{}, apperrors.New(apperrors.CodeAPIKeyInvalid, "api key is invalid")
		}
		return Principal{}, fmt.Errorf("load api key: %w", err)
	}
	if !key.Active {
		return Principal{}, apperrors.New(apperrors.CodeAPIKeyInvalid, "api key is revoked")
	}

	account, err := a.store.GetAccount(ctx, key.AccountID)
	if err != nil {
		return Principal{}, fmt.Errorf("load key account: %w", err)
	}
	if !account.Active {
		return Principal{}, apperrors.New(apperrors.CodeAPIKeyInvalid, "account is disabled")
	}

	if err := a.store.TouchAPIKey(ctx, key.ID, a.now().UTC()); err != nil {
		return Principal{}, fmt.Errorf("touch api key: %w", err)
	}
	return Principal{Account: account, APIKey: &key}, nil
}

// MintedKey is a freshly created API key. Plaintext is never stored.
type MintedKey struct {
	Key       storage.APIKey
	Plaintext string
}

// CreateAPIKey mints and stores a new API key for the account.
func (a *App) CreateAPIKey(ctx context.Context, accountID, name string) (MintedKey, error) {
	plaintext, hash, prefix, err := auth.MintAPIKey()
	if err != nil {
		return MintedKey{}, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = "default"
	}
	keyID, err := id.New()
	if err != nil {
		return MintedKey{}, fmt.Errorf("generate key id: %w", err)
	}
	key := storage.APIKey{
		ID:        keyID,
		AccountID: accountID,
		KeyHash:   hash,
		KeyPrefix: prefix,
		Name:      name,
		CreatedAt: a.now().UTC(),
		Active:    true,
	}
	if err := a.store.PutAPIKey(ctx, key); err != nil {
		return MintedKey{}, fmt.Errorf("store api key: %w", err)
	}
	return MintedKey{Key: key, Plaintext: plaintext}, nil
}

// ListAPIKeys returns the account's keys, newest first.
func (a *App) ListAPIKeys(ctx context.Context, accountID string) ([]storage.APIKey, error) {
	return a.store.ListAPIKeys(ctx, accountID)
}

// RevokeAPIKey deactivates one of the account's keys. Revoked keys fail
// authentication immediately.
func (a *App) RevokeAPIKey(ctx context.Context, accountID, keyID string) error {
	return a.store.RevokeAPIKey(ctx, accountID, keyID)
}

// UsageReport is the account's consumption for the current month.
type UsageReport struct {
	Tier        quota.Tier
	PeriodStart time.Time
	Summary     storage.UsageSummary
	Limits      quota.Limits
}

// Usage reports current-month consumption against the tier allowance.
func (a *App) Usage(ctx context.Context, accountID string) (UsageReport, error) {
	account, err := a.store.GetAccount(ctx, accountID)
	if err != nil {
		return UsageReport{}, fmt.Errorf("load account: %w", err)
	}

	start := monthStart(a.now())
	summary, err := a.store.SummarizeUsage(ctx, accountID, start)
	if err != nil {
		return UsageReport{}, fmt.Errorf("summarize usage: %w", err)
	}
	return UsageReport{
		Tier:        account.Tier,
		PeriodStart: start,
		Summary:     summary,
		Limits:      quota.TierLimits(account.Tier),
	}, nil
}

func monthStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// meter enforces the rate limit and monthly quota, then records usage.
// It runs before generation so rejected calls cost nothing.
func (a *App) meter(ctx context.Context, p Principal, operation string, outputBytes int64) error {
	if !a.limiter.Allow(p.rateKey()) {
		return apperrors.New(apperrors.CodeRateLimited, "rate limit exceeded")
	}

	summary, err := a.store.SummarizeUsage(ctx, p.Account.ID, monthStart(a.now()))
	if err != nil {
		return fmt.Errorf("summarize usage: %w", err)
	}
	if err := quota.CheckMonthly(p.Account.Tier, summary.OutputBytes+outputBytes, summary.Requests); err != nil {
		return err
	}

	entry := storage.UsageEntry{
		AccountID:   p.Account.ID,
		Operation:   operation,
		OutputBytes: outputBytes,
		CreatedAt:   a.now().UTC(),
	}
	if p.APIKey != nil {
		entry.APIKeyID = p.APIKey.ID
	}
	if err := a.store.AppendUsage(ctx, entry); err != nil {
		return fmt.Errorf("append usage: %w", err)
	}
	return nil
}

// RandomInt draws count uniform integers in [min, max] from the secure
// generator.
func (a *App) RandomInt(ctx context.Context, p Principal, min, max int64, count int) ([]int64, error) {
	if err := validateCount(count); err != nil {
		return nil, err
	}
	if err := a.meter(ctx, p, OpRandomInt, int64(count)*8); err != nil {
		return nil, err
	}
	return drawInts(a.generator, min, max, count)
}

// RandomBytes draws length random bytes from the secure generator.
func (a *App) RandomBytes(ctx context.Context, p Principal, length int) ([]byte, error) {
	if length < 1 || length > MaxBytesPerRequest {
		return nil, apperrors.New(apperrors.CodeLengthInvalid,
			fmt.Sprintf("length must be between 1 and %d", MaxBytesPerRequest))
	}
	if err := a.meter(ctx, p, OpRandomBytes, int64(length)); err != nil {
		return nil, err
	}
	out, err := a.generator.Bytes(length)
	if err != nil {
		return nil, translateGeneratorError(err)
	}
	return out, nil
}

// RandomFloat draws count uniform floats in [0, 1) from the secure
// generator.
func (a *App) RandomFloat(ctx context.Context, p Principal, count int) ([]float64, error) {
	if err := validateCount(count); err != nil {
		return nil, err
	}
	if err := a.meter(ctx, p, OpRandomFloat, int64(count)*8); err != nil {
		return nil, err
	}
	return drawFloats(a.generator, count)
}

// CreateStream registers a deterministic stream seeded from bytes.
func (a *App) CreateStream(ctx context.Context, p Principal, seed []byte) (*streams.Stream, error) {
	if err := a.meter(ctx, p, OpStreamCreate, 0); err != nil {
		return nil, err
	}
	stream, err := a.streams.Create(p.Account.ID, seed)
	if err != nil {
		return nil, translateGeneratorError(err)
	}
	return stream, nil
}

// CreateStreamInt registers a deterministic stream seeded from an
// integer.
func (a *App) CreateStreamInt(ctx context.Context, p Principal, seed int64) (*streams.Stream, error) {
	if err := a.meter(ctx, p, OpStreamCreate, 0); err != nil {
		return nil, err
	}
	stream, err := a.streams.CreateInt(p.Account.ID, seed)
	if err != nil {
		return nil, translateGeneratorError(err)
	}
	return stream, nil
}

// ListStreams returns the account's streams, newest first.
func (a *App) ListStreams(p Principal) []*streams.Stream {
	return a.streams.List(p.Account.ID)
}

// RemoveStream closes and forgets a stream.
func (a *App) RemoveStream(p Principal, streamID string) error {
	return a.streams.Remove(p.Account.ID, streamID)
}

// StreamInt draws count integers in [min, max] from a stream.
func (a *App) StreamInt(ctx context.Context, p Principal, streamID string, min, max int64, count int) ([]int64, error) {
	if err := validateCount(count); err != nil {
		return nil, err
	}
	stream, err := a.streams.Get(p.Account.ID, streamID)
	if err != nil {
		return nil, err
	}
	if err := a.meter(ctx, p, OpStreamInt, int64(count)*8); err != nil {
		return nil, err
	}
	return drawInts(stream.Generator, min, max, count)
}

// StreamBytes draws length bytes from a stream.
func (a *App) StreamBytes(ctx context.Context, p Principal, streamID string, length int) ([]byte, error) {
	if length < 1 || length > MaxBytesPerRequest {
		return nil, apperrors.New(apperrors.CodeLengthInvalid,
			fmt.Sprintf("length must be between 1 and %d", MaxBytesPerRequest))
	}
	stream, err := a.streams.Get(p.Account.ID, streamID)
	if err != nil {
		return nil, err
	}
	if err := a.meter(ctx, p, OpStreamBytes, int64(length)); err != nil {
		return nil, err
	}
	out, err := stream.Generator.Bytes(length)
	if err != nil {
		return nil, translateGeneratorError(err)
	}
	return out, nil
}

// StreamFloat draws count floats in [0, 1) from a stream.
func (a *App) StreamFloat(ctx context.Context, p Principal, streamID string, count int) ([]float64, error) {
	if err := validateCount(count); err != nil {
		return nil, err
	}
	stream, err := a.streams.Get(p.Account.ID, streamID)
	if err != nil {
		return nil, err
	}
	if err := a.meter(ctx, p, OpStreamFloat, int64(count)*8); err != nil {
		return nil, err
	}
	return drawFloats(stream.Generator, count)
}

func validateCount(count int) error {
	if count < 1 || count > MaxValuesPerRequest {
		return apperrors.New(apperrors.CodePayloadInvalid,
			fmt.Sprintf("count must be between 1 and %d", MaxValuesPerRequest))
	}
	return nil
}

func drawInts(gen *csprng.Generator, min, max int64, count int) ([]int64, error) {
	values := make([]int64, count)
	for i := range values {
		v, err := gen.Int(min, max)
		if err != nil {
			return nil, translateGeneratorError(err)
		}
		values[i] = v
	}
	return values, nil
}

func drawFloats(gen *csprng.Generator, count int) ([]float64, error) {
	values := make([]float64, count)
	for i := range values {
		v, err := gen.Float64()
		if err != nil {
			return nil, translateGeneratorError(err)
		}
		values[i] = v
	}
	return values, nil
}

// translateGeneratorError maps csprng sentinels onto domain error codes
// for the API surface.
func translateGeneratorError(err error) error {
	switch {
	case errors.Is(err, csprng.ErrInvalidSeed):
		return apperrors.Wrap(apperrors.CodeSeedInvalid, "seed is invalid", err)
	case errors.Is(err, csprng.ErrInvalidLength):
		return apperrors.Wrap(apperrors.CodeLengthInvalid, "length is invalid", err)
	case errors.Is(err, csprng.ErrInvalidRange):
		return apperrors.Wrap(apperrors.CodeRangeInvalid, "range is invalid", err)
	case errors.Is(err, csprng.ErrClosed):
		return apperrors.Wrap(apperrors.CodeStreamNotFound, "stream is closed", err)
	default:
		return err
	}
}
