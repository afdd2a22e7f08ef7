package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadExpandsEnvAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	t.Setenv("TEST_API_URL", "http://api.example.com")

	data := `
api:
  base_url: ${TEST_API_URL}
database:
  path: ` + filepath.Join(dir, "data", "test.db") + `
redis:
  enabled: true
  address: localhost:6379
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.API.BaseURL != "http://api.example.com" {
		t.Errorf("env expansion failed, got %q", cfg.API.BaseURL)
	}
	if cfg.Server.Port != 8090 {
		t.Errorf("expected default port 8090, got %d", cfg.Server.Port)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Address != "localhost:6379" {
		t.Errorf("unexpected redis config: %+v", cfg.Redis)
	}
	if cfg.DefaultRangeDays() != 7 {
		t.Errorf("expected default range 7 days, got %d", cfg.DefaultRangeDays())
	}
	if cfg.OTPBurst() != 3 {
		t.Errorf("expected default otp burst 3, got %d", cfg.OTPBurst())
	}

	// Database dir is created for SQLite.
	if _, err := os.Stat(filepath.Join(dir, "data")); err != nil {
		t.Errorf("database dir not created: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
