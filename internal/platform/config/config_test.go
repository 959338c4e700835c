package config

import "testing"

type testConfig struct {
	Addr string `env:"CONFIG_TEST_ADDR" envDefault:"127.0.0.1:8000"`
	Name string `env:"CONFIG_TEST_NAME"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg testConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != "127.0.0.1:8000" {
		t.Fatalf("expected default addr, got %q", cfg.Addr)
	}
	if cfg.Name != "" {
		t.Fatalf("expected empty name, got %q", cfg.Name)
	}
}

func TestParseEnvReadsEnvironment(t *testing.T) {
	t.Setenv("CONFIG_TEST_ADDR", "0.0.0.0:9999")
	t.Setenv("CONFIG_TEST_NAME", "entropy")

	var cfg testConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != "0.0.0.0:9999" {
		t.Fatalf("expected env addr, got %q", cfg.Addr)
	}
	if cfg.Name != "entropy" {
		t.Fatalf("expected env name, got %q", cfg.Name)
	}
}

func TestParseEnvRejectsNonPointer(t *testing.T) {
	if err := ParseEnv(testConfig{}); err == nil {
		t.Fatal("expected error for non-pointer target")
	}
}
