// Package auth issues and verifies account credentials for the entropy
// service: HS256 session tokens and prefixed API keys.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/goldenseed/entropy/internal/csprng"
	apperrors "github.com/goldenseed/entropy/internal/platform/errors"
)

// KeyPrefix marks every minted API key so leaked keys are identifiable
// in logs and secret scanners.
const KeyPrefix = "gseed_"

// apiKeyBytes is the random payload length behind the key prefix.
const apiKeyBytes = 24

// Tokens issues and verifies HS256 session tokens.
type Tokens struct {
	Secret []byte
	Expiry time.Duration
	Now    func() time.Time
}

// Claims are the validated contents of a session token.
type Claims struct {
	AccountID string
	Email     string
	ExpiresAt time.Time
}

// sessionClaims is the internal claims type used for JWT parsing.
type sessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// Issue creates a signed session token for an account.
func (t Tokens) Issue(accountID, email string) (string, error) {
	if len(t.Secret) == 0 {
		return "", errors.New("token secret is not configured")
	}
	now := t.now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.Expiry)),
		},
		Email: email,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.Secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify parses a session token and validates its signature and expiry.
func (t Tokens) Verify(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, apperrors.New(apperrors.CodeTokenInvalid, "session token is required")
	}
	if len(t.Secret) == 0 {
		return Claims{}, errors.New("token secret is not configured")
	}

	var parsed sessionClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return t.Secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, apperrors.Wrap(apperrors.CodeTokenExpired, "session token is expired", err)
		}
		return Claims{}, apperrors.Wrap(apperrors.CodeTokenInvalid, "session token is invalid", err)
	}
	if parsed.Subject == "" {
		return Claims{}, apperrors.New(apperrors.CodeTokenInvalid, "session token has no subject")
	}

	claims := Claims{
		AccountID: parsed.Subject,
		Email:     parsed.Email,
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time
	}
	return claims, nil
}

func (t Tokens) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// MintAPIKey generates a fresh API key. The plaintext is returned once;
// callers persist only the hash and the display prefix.
func MintAPIKey() (plaintext, hash, displayPrefix string, err error) {
	payload, err := csprng.SecureBytes(apiKeyBytes)
	if err != nil {
		return "", "", "", fmt.Errorf("mint api key: %w", err)
	}
	plaintext = KeyPrefix + hex.EncodeToString(payload)
	return plaintext, HashAPIKey(plaintext), plaintext[:len(KeyPrefix)+6], nil
}

// HashAPIKey returns the hex SHA-256 digest stored in place of the key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// HashPassword hashes an account password for storage.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// VerifyPassword compares a candidate password against a stored hash in
// constant time.
func VerifyPassword(password, storedHash string) bool {
	candidate := HashPassword(password)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(storedHash)) == 1
}
