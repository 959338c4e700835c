package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Request validation
	CodePayloadInvalid Code = "PAYLOAD_INVALID"

	// Generator errors
	CodeSeedInvalid   Code = "SEED_INVALID"
	CodeLengthInvalid Code = "LENGTH_INVALID"
	CodeRangeInvalid  Code = "RANGE_INVALID"

	// Account errors
	CodeAccountExists      Code = "ACCOUNT_EXISTS"
	CodeCredentialsInvalid Code = "CREDENTIALS_INVALID"
	CodeEmailRequired      Code = "EMAIL_REQUIRED"
	CodePasswordRequired   Code = "PASSWORD_REQUIRED"

	// Auth errors
	CodeTokenInvalid  Code = "TOKEN_INVALID"
	CodeTokenExpired  Code = "TOKEN_EXPIRED"
	CodeAPIKeyInvalid Code = "API_KEY_INVALID"

	// Metering errors
	CodeQuotaExceeded Code = "QUOTA_EXCEEDED"
	CodeRateLimited   Code = "RATE_LIMITED"

	// Stream errors
	CodeStreamNotFound Code = "STREAM_NOT_FOUND"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// HTTPStatus maps domain codes to HTTP response status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodePayloadInvalid, CodeSeedInvalid, CodeLengthInvalid, CodeRangeInvalid,
		CodeEmailRequired, CodePasswordRequired:
		return http.StatusBadRequest
	case CodeCredentialsInvalid, CodeTokenInvalid, CodeTokenExpired, CodeAPIKeyInvalid:
		return http.StatusUnauthorized
	case CodeAccountExists:
		return http.StatusConflict
	case CodeQuotaExceeded:
		return http.StatusPaymentRequired
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeStreamNotFound, CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
