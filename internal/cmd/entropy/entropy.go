// Package entropy parses entropy service flags and starts the API
// server.
package entropy

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/goldenseed/entropy/internal/csprng"
	entrypoint "github.com/goldenseed/entropy/internal/platform/cmd"
	platformgrpc "github.com/goldenseed/entropy/internal/platform/grpc"
	"github.com/goldenseed/entropy/internal/services/entropy/server"
)

const probeTimeout = 5 * time.Second

// Config holds entropy service configuration.
type Config struct {
	Port           int    `env:"SEED_PORT" envDefault:"8000"`
	Addr           string `env:"SEED_ADDR"`
	GRPCPort       int    `env:"SEED_GRPC_PORT" envDefault:"8001"`
	DatabasePath   string `env:"SEED_DATABASE_PATH" envDefault:"seed_saas.db"`
	JWTSecret      string `env:"SEED_JWT_SECRET"`
	JWTExpiryHours int    `env:"SEED_JWT_EXPIRATION_HOURS" envDefault:"24"`
	RateLimit      int    `env:"SEED_RATE_LIMIT" envDefault:"100"`
	RateWindowSecs int    `env:"SEED_RATE_LIMIT_WINDOW" envDefault:"60"`
	Probe          bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The API server port")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The API server listen address (overrides -port)")
	fs.IntVar(&cfg.GRPCPort, "grpc-port", cfg.GRPCPort, "The health probe port")
	fs.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "The SQLite database path")
	fs.BoolVar(&cfg.Probe, "probe", false, "Check a running server's health and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) httpAddr() string {
	if cfg.Addr != "" {
		return cfg.Addr
	}
	return fmt.Sprintf(":%d", cfg.Port)
}

func (cfg Config) grpcAddr() string {
	return fmt.Sprintf(":%d", cfg.GRPCPort)
}

// secret resolves the JWT signing secret, generating an ephemeral one
// when none is configured. Ephemeral secrets invalidate sessions on
// restart.
func (cfg Config) secret() ([]byte, error) {
	if cfg.JWTSecret != "" {
		return []byte(cfg.JWTSecret), nil
	}
	generated, err := csprng.SecureBytes(32)
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral jwt secret: %w", err)
	}
	log.Print("SEED_JWT_SECRET is not set; using an ephemeral secret")
	return generated, nil
}

// Run starts the entropy API service, or probes a running one when
// -probe is set.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Probe {
		return probe(ctx, cfg)
	}

	secret, err := cfg.secret()
	if err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceEntropy, func(context.Context) error {
		return server.Run(ctx, server.Config{
			Addr:         cfg.httpAddr(),
			GRPCAddr:     cfg.grpcAddr(),
			DatabasePath: cfg.DatabasePath,
			JWTSecret:    secret,
			JWTExpiry:    time.Duration(cfg.JWTExpiryHours) * time.Hour,
			RateLimit:    cfg.RateLimit,
			RateWindow:   time.Duration(cfg.RateWindowSecs) * time.Second,
		})
	})
}

func probe(ctx context.Context, cfg Config) error {
	addr := fmt.Sprintf("localhost:%d", cfg.GRPCPort)
	conn, err := platformgrpc.DialWithHealth(ctx, addr, probeTimeout, log.Printf)
	if err != nil {
		return fmt.Errorf("probe %s: %w", addr, err)
	}
	return conn.Close()
}
