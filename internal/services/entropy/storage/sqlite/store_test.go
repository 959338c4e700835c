package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/goldenseed/entropy/internal/services/entropy/quota"
	"github.com/goldenseed/entropy/internal/services/entropy/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "entropy.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testAccount(id, email string) storage.Account {
	return storage.Account{
		ID:           id,
		Email:        email,
		PasswordHash: "hash",
		Name:         "Test Account",
		Tier:         quota.TierFree,
		CreatedAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Active:       true,
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for blank path")
	}
}

func TestAccountRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	account := testAccount("acct-1", "one@example.com")
	if err := store.CreateAccount(ctx, account); err != nil {
		t.Fatalf("create account: %v", err)
	}

	got, err := store.GetAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if got != account {
		t.Fatalf("account mismatch: got %+v, want %+v", got, account)
	}

	byEmail, err := store.GetAccountByEmail(ctx, "one@example.com")
	if err != nil {
		t.Fatalf("get account by email: %v", err)
	}
	if byEmail.ID != "acct-1" {
		t.Fatalf("expected acct-1, got %q", byEmail.ID)
	}
}

func TestAccountNotFound(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.GetAccount(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetAccountByEmail(context.Background(), "missing@example.com"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDuplicateEmailRejected(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.CreateAccount(ctx, testAccount("acct-1", "dup@example.com")); err != nil {
		t.Fatalf("create account: %v", err)
	}
	if err := store.CreateAccount(ctx, testAccount("acct-2", "dup@example.com")); err == nil {
		t.Fatal("expected unique constraint violation for duplicate email")
	}
}

func TestAPIKeyRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.CreateAccount(ctx, testAccount("acct-1", "keys@example.com")); err != nil {
		t.Fatalf("create account: %v", err)
	}

	key := storage.APIKey{
		ID:        "key-1",
		AccountID: "acct-1",
		KeyHash:   "abcdef",
		KeyPrefix: "gseed_abc",
		Name:      "default",
		CreatedAt: time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC),
		Active:    true,
	}
	if err := store.PutAPIKey(ctx, key); err != nil {
		t.Fatalf("put api key: %v", err)
	}

	got, err := store.GetAPIKeyByHash(ctx, "abcdef")
	if err != nil {
		t.Fatalf("get api key: %v", err)
	}
	if got.ID != "key-1" || got.AccountID != "acct-1" || got.LastUsedAt != nil {
		t.Fatalf("api key mismatch: %+v", got)
	}

	usedAt := time.Date(2025, 6, 3, 8, 0, 0, 0, time.UTC)
	if err := store.TouchAPIKey(ctx, "key-1", usedAt); err != nil {
		t.Fatalf("touch api key: %v", err)
	}
	got, err = store.GetAPIKeyByHash(ctx, "abcdef")
	if err != nil {
		t.Fatalf("get api key after touch: %v", err)
	}
	if got.LastUsedAt == nil || !got.LastUsedAt.Equal(usedAt) {
		t.Fatalf("expected last used %v, got %v", usedAt, got.LastUsedAt)
	}
}

func TestTouchAPIKeyMissing(t *testing.T) {
	store := openTestStore(t)
	err := store.TouchAPIKey(context.Background(), "missing", time.Now())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRevokeAPIKey(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.CreateAccount(ctx, testAccount("acct-1", "revoke@example.com")); err != nil {
		t.Fatalf("create account: %v", err)
	}
	key := storage.APIKey{
		ID:        "key-1",
		AccountID: "acct-1",
		KeyHash:   "abcdef",
		KeyPrefix: "gseed_abc",
		Name:      "default",
		CreatedAt: time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC),
		Active:    true,
	}
	if err := store.PutAPIKey(ctx, key); err != nil {
		t.Fatalf("put api key: %v", err)
	}

	// Wrong account must not be able to revoke.
	if err := store.RevokeAPIKey(ctx, "acct-2", "key-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign account, got %v", err)
	}
	got, err := store.GetAPIKeyByHash(ctx, "abcdef")
	if err != nil {
		t.Fatalf("get api key: %v", err)
	}
	if !got.Active {
		t.Fatal("key must stay active after a foreign revocation attempt")
	}

	if err := store.RevokeAPIKey(ctx, "acct-1", "key-1"); err != nil {
		t.Fatalf("revoke api key: %v", err)
	}
	got, err = store.GetAPIKeyByHash(ctx, "abcdef")
	if err != nil {
		t.Fatalf("get api key after revoke: %v", err)
	}
	if got.Active {
		t.Fatal("expected key to be inactive after revocation")
	}

	if err := store.RevokeAPIKey(ctx, "acct-1", "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown key, got %v", err)
	}
}

func TestListAPIKeysOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.CreateAccount(ctx, testAccount("acct-1", "list@example.com")); err != nil {
		t.Fatalf("create account: %v", err)
	}

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"key-a", "key-b", "key-c"} {
		key := storage.APIKey{
			ID:        id,
			AccountID: "acct-1",
			KeyHash:   "hash-" + id,
			KeyPrefix: "gseed_" + id,
			Name:      id,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			Active:    true,
		}
		if err := store.PutAPIKey(ctx, key); err != nil {
			t.Fatalf("put api key %s: %v", id, err)
		}
	}

	keys, err := store.ListAPIKeys(ctx, "acct-1")
	if err != nil {
		t.Fatalf("list api keys: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("expected 3 keys, got %d", len(keys))
	}
	if keys[0].ID != "key-c" || keys[2].ID != "key-a" {
		t.Fatalf("expected newest first, got %s...%s", keys[0].ID, keys[2].ID)
	}
}

func TestUsageSummarize(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.CreateAccount(ctx, testAccount("acct-1", "usage@example.com")); err != nil {
		t.Fatalf("create account: %v", err)
	}
	if err := store.CreateAccount(ctx, testAccount("acct-2", "other@example.com")); err != nil {
		t.Fatalf("create second account: %v", err)
	}

	monthStart := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	entries := []storage.UsageEntry{
		{AccountID: "acct-1", APIKeyID: "key-1", Operation: "random_bytes", OutputBytes: 32, CreatedAt: monthStart.Add(24 * time.Hour)},
		{AccountID: "acct-1", APIKeyID: "key-1", Operation: "random_int", OutputBytes: 8, CreatedAt: monthStart.Add(48 * time.Hour)},
		// Before the window; must not be counted.
		{AccountID: "acct-1", APIKeyID: "key-1", Operation: "random_bytes", OutputBytes: 1000, CreatedAt: monthStart.Add(-time.Hour)},
		// Different account; must not be counted.
		{AccountID: "acct-2", APIKeyID: "key-2", Operation: "random_bytes", OutputBytes: 500, CreatedAt: monthStart.Add(24 * time.Hour)},
	}
	for i, entry := range entries {
		if err := store.AppendUsage(ctx, entry); err != nil {
			t.Fatalf("append usage %d: %v", i, err)
		}
	}

	summary, err := store.SummarizeUsage(ctx, "acct-1", monthStart)
	if err != nil {
		t.Fatalf("summarize usage: %v", err)
	}
	if summary.Requests != 2 {
		t.Fatalf("expected 2 requests, got %d", summary.Requests)
	}
	if summary.OutputBytes != 40 {
		t.Fatalf("expected 40 output bytes, got %d", summary.OutputBytes)
	}
}
