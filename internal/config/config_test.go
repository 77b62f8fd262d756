package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("logging.level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Probe.Count != 4 {
		t.Errorf("probe.count = %d, want 4", cfg.Probe.Count)
	}
	if cfg.Scan.Concurrency != 128 {
		t.Errorf("scan.concurrency = %d, want 128", cfg.Scan.Concurrency)
	}
	if cfg.Scan.Timeout != 500*time.Millisecond {
		t.Errorf("scan.timeout = %v, want 500ms", cfg.Scan.Timeout)
	}
	if cfg.Traffic.AlertThresholdBytes != 1<<20 {
		t.Errorf("traffic.alert_threshold_bytes = %d, want 1MiB", cfg.Traffic.AlertThresholdBytes)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "netdiag.yaml")
	data := []byte("scan:\n  concurrency: 32\n  timeout: 2s\nlogging:\n  level: debug\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scan.Concurrency != 32 {
		t.Errorf("scan.concurrency = %d, want 32", cfg.Scan.Concurrency)
	}
	if cfg.Scan.Timeout != 2*time.Second {
		t.Errorf("scan.timeout = %v, want 2s", cfg.Scan.Timeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %q, want debug", cfg.Logging.Level)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Probe.Count != 4 {
		t.Errorf("probe.count = %d, want default 4", cfg.Probe.Count)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, _, err := Load("/nonexistent/netdiag.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
