package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorUnwrap(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(CodeUnknown, "write usage entry", cause)
	if !stderrors.Is(err, cause) {
		t.Fatal("wrapped cause not reachable via errors.Is")
	}
	if err.Error() != "write usage entry" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestErrorIsMatchesByCode(t *testing.T) {
	a := New(CodeAPIKeyInvalid, "bad key")
	b := New(CodeAPIKeyInvalid, "different message")
	if !stderrors.Is(a, b) {
		t.Fatal("errors with equal codes should match")
	}
	c := New(CodeNotFound, "missing")
	if stderrors.Is(a, c) {
		t.Fatal("errors with different codes should not match")
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{name: "domain error", err: New(CodeQuotaExceeded, "over"), want: CodeQuotaExceeded},
		{name: "wrapped domain error", err: fmt.Errorf("outer: %w", New(CodeRateLimited, "slow down")), want: CodeRateLimited},
		{name: "plain error", err: stderrors.New("plain"), want: CodeUnknown},
		{name: "nil", err: nil, want: CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Fatalf("GetCode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{code: CodeRangeInvalid, want: http.StatusBadRequest},
		{code: CodeLengthInvalid, want: http.StatusBadRequest},
		{code: CodeSeedInvalid, want: http.StatusBadRequest},
		{code: CodeAPIKeyInvalid, want: http.StatusUnauthorized},
		{code: CodeTokenExpired, want: http.StatusUnauthorized},
		{code: CodeAccountExists, want: http.StatusConflict},
		{code: CodeQuotaExceeded, want: http.StatusPaymentRequired},
		{code: CodeRateLimited, want: http.StatusTooManyRequests},
		{code: CodeStreamNotFound, want: http.StatusNotFound},
		{code: CodeUnknown, want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Fatalf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}
