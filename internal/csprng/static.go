package csprng

import (
	crand "crypto/rand"
	"fmt"
	"io"
)

// SecureBytes returns length random bytes drawn directly from the
// operating-system entropy source. No generator state is constructed or
// retained; each call is an independent one-shot draw. A non-positive
// length fails with ErrInvalidLength.
func SecureBytes(length int) ([]byte, error) {
	if length <= 0 {
		return nil, ErrInvalidLength
	}
	out := make([]byte, length)
	if _, err := io.ReadFull(crand.Reader, out); err != nil {
		return nil, fmt.Errorf("read os entropy: %w", err)
	}
	return out, nil
}

// SecureInt returns an integer uniformly distributed over [a, b]
// inclusive, drawn directly from the operating-system entropy source
// with the same rejection sampling as Generator.Int. It fails with
// ErrInvalidRange when a > b.
func SecureInt(a, b int64) (int64, error) {
	if a > b {
		return 0, ErrInvalidRange
	}
	v, err := uniformUint64(readEntropy, uint64(b)-uint64(a)+1)
	if err != nil {
		return 0, err
	}
	return a + int64(v), nil
}

func readEntropy(p []byte) error {
	if _, err := io.ReadFull(crand.Reader, p); err != nil {
		return fmt.Errorf("read os entropy: %w", err)
	}
	return nil
}
