package config

import (
	"os"
	"path/filepath"
	"testing"
)

// chdir is a stand-in for t.Chdir, which requires Go 1.24.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load with no file should fall back to defaults: %v", err)
	}
	if cfg.Mode != "release" || cfg.Port != 8080 || cfg.ReadLimit != 32768 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.IceServers) != 0 {
		t.Fatalf("no ice servers expected by default")
	}
}

func TestLoadRejectsMistypedConfig(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	// ice_servers must be a list; a scalar fails decoding and the caller
	// is expected to treat that as fatal.
	yaml := "ice_servers: nope\n"
	if err := os.WriteFile(filepath.Join(dir, "config", "config.dev.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_ENV", "dev")

	if _, err := Load(); err == nil {
		t.Fatalf("mistyped ice_servers should fail to load")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	yaml := `
mode: debug
port: 9000
status_api_key: sekret
ice_servers:
  - uri: "turn:relay.example:3478"
    secret: "s3cr3t"
    ttl_seconds: 3600
  - uri: "stun:stun.example:3478"
`
	if err := os.WriteFile(filepath.Join(dir, "config", "config.dev.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_ENV", "dev")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != "debug" || cfg.Port != 9000 || cfg.StatusAPIKey != "sekret" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.IceServers) != 2 {
		t.Fatalf("expected two ice servers, got %+v", cfg.IceServers)
	}
	if cfg.IceServers[0].TTLSeconds != 3600 || cfg.IceServers[0].Secret != "s3cr3t" {
		t.Fatalf("ice server fields not parsed: %+v", cfg.IceServers[0])
	}
}
