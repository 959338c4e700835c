// Package sqlite implements entropy service persistence over SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/goldenseed/entropy/internal/platform/storage/sqlitemigrate"
	"github.com/goldenseed/entropy/internal/services/entropy/quota"
	"github.com/goldenseed/entropy/internal/services/entropy/storage"
	"github.com/goldenseed/entropy/internal/services/entropy/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store implements storage.Store over a single SQLite file.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.Store = (*Store)(nil)

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the entropy SQLite store and applies bundled migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := sqlitemigrate.Apply(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateAccount persists a new account record.
func (s *Store) CreateAccount(ctx context.Context, account storage.Account) error {
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO accounts (id, email, password_hash, name, tier, created_at, active)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.Email,
		account.PasswordHash,
		account.Name,
		string(account.Tier),
		toMillis(account.CreatedAt),
		boolToInt(account.Active),
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetAccount loads an account by id.
func (s *Store) GetAccount(ctx context.Context, id string) (storage.Account, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, email, password_hash, name, tier, created_at, active
FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// GetAccountByEmail loads an account by email address.
func (s *Store) GetAccountByEmail(ctx context.Context, email string) (storage.Account, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, email, password_hash, name, tier, created_at, active
FROM accounts WHERE email = ?`, email)
	return scanAccount(row)
}

func scanAccount(row *sql.Row) (storage.Account, error) {
	var (
		account   storage.Account
		tier      string
		createdAt int64
		active    int
	)
	err := row.Scan(&account.ID, &account.Email, &account.PasswordHash, &account.Name, &tier, &createdAt, &active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Account{}, storage.ErrNotFound
		}
		return storage.Account{}, fmt.Errorf("scan account: %w", err)
	}
	account.Tier = quota.Tier(tier)
	account.CreatedAt = fromMillis(createdAt)
	account.Active = active != 0
	return account, nil
}

// PutAPIKey persists an API key record.
func (s *Store) PutAPIKey(ctx context.Context, key storage.APIKey) error {
	var lastUsed any
	if key.LastUsedAt != nil {
		lastUsed = toMillis(*key.LastUsedAt)
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO api_keys (id, account_id, key_hash, key_prefix, name, created_at, last_used_at, active)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		key.ID,
		key.AccountID,
		key.KeyHash,
		key.KeyPrefix,
		key.Name,
		toMillis(key.CreatedAt),
		lastUsed,
		boolToInt(key.Active),
	)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// GetAPIKeyByHash loads an API key by its stored hash.
func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (storage.APIKey, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, account_id, key_hash, key_prefix, name, created_at, last_used_at, active
FROM api_keys WHERE key_hash = ?`, keyHash)

	key, err := scanAPIKey(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.APIKey{}, storage.ErrNotFound
		}
		return storage.APIKey{}, fmt.Errorf("scan api key: %w", err)
	}
	return key, nil
}

// ListAPIKeys returns all API keys for an account, newest first.
func (s *Store) ListAPIKeys(ctx context.Context, accountID string) ([]storage.APIKey, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, account_id, key_hash, key_prefix, name, created_at, last_used_at, active
FROM api_keys WHERE account_id = ? ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []storage.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api keys: %w", err)
	}
	return keys, nil
}

// TouchAPIKey records when an API key was last used.
func (s *Store) TouchAPIKey(ctx context.Context, id string, usedAt time.Time) error {
	result, err := s.sqlDB.ExecContext(ctx,
		"UPDATE api_keys SET last_used_at = ? WHERE id = ?", toMillis(usedAt), id)
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch api key rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RevokeAPIKey marks an API key inactive. The account scope keeps one
// account from revoking another's keys.
func (s *Store) RevokeAPIKey(ctx context.Context, accountID, id string) error {
	result, err := s.sqlDB.ExecContext(ctx,
		"UPDATE api_keys SET active = 0 WHERE id = ? AND account_id = ?", id, accountID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke api key rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanAPIKey(scan func(...any) error) (storage.APIKey, error) {
	var (
		key       storage.APIKey
		createdAt int64
		lastUsed  sql.NullInt64
		active    int
	)
	err := scan(&key.ID, &key.AccountID, &key.KeyHash, &key.KeyPrefix, &key.Name, &createdAt, &lastUsed, &active)
	if err != nil {
		return storage.APIKey{}, err
	}
	key.CreatedAt = fromMillis(createdAt)
	if lastUsed.Valid {
		at := fromMillis(lastUsed.Int64)
		key.LastUsedAt = &at
	}
	key.Active = active != 0
	return key, nil
}

// AppendUsage records a metered generation call.
func (s *Store) AppendUsage(ctx context.Context, entry storage.UsageEntry) error {
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO usage_log (account_id, api_key_id, operation, output_bytes, created_at)
VALUES (?, ?, ?, ?, ?)`,
		entry.AccountID,
		entry.APIKeyID,
		entry.Operation,
		entry.OutputBytes,
		toMillis(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert usage entry: %w", err)
	}
	return nil
}

// SummarizeUsage aggregates request and byte counts since the given time.
func (s *Store) SummarizeUsage(ctx context.Context, accountID string, since time.Time) (storage.UsageSummary, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(output_bytes), 0)
FROM usage_log WHERE account_id = ? AND created_at >= ?`,
		accountID, toMillis(since))

	var summary storage.UsageSummary
	if err := row.Scan(&summary.Requests, &summary.OutputBytes); err != nil {
		return storage.UsageSummary{}, fmt.Errorf("summarize usage: %w", err)
	}
	return summary, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
