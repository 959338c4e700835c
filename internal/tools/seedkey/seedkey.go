// Package seedkey generates the JWT signing secret for the entropy
// service.
package seedkey

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/goldenseed/entropy/internal/csprng"
)

// Config holds configuration for secret generation.
type Config struct {
	Bytes int
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{Bytes: 32}
	fs.IntVar(&cfg.Bytes, "bytes", cfg.Bytes, "number of random bytes (default: 32)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run generates the secret and writes it to out. A nil reader draws
// from the secure generator.
func Run(cfg Config, out io.Writer, reader io.Reader) error {
	if cfg.Bytes <= 0 {
		return errors.New("bytes must be greater than zero")
	}
	if out == nil {
		return errors.New("output is required")
	}

	var buf []byte
	if reader == nil {
		generated, err := csprng.SecureBytes(cfg.Bytes)
		if err != nil {
			return fmt.Errorf("generate random bytes: %w", err)
		}
		buf = generated
	} else {
		buf = make([]byte, cfg.Bytes)
		if _, err := io.ReadFull(reader, buf); err != nil {
			return fmt.Errorf("generate random bytes: %w", err)
		}
	}

	_, err := fmt.Fprintf(out, "SEED_JWT_SECRET=%s\n", hex.EncodeToString(buf))
	return err
}
