package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Analysis.SessionGap != 30*time.Minute {
		t.Errorf("expected 30m session gap, got %s", cfg.Analysis.SessionGap)
	}
	if cfg.Analysis.SignificanceZ != 1.96 {
		t.Errorf("expected z cutoff 1.96, got %g", cfg.Analysis.SignificanceZ)
	}
	if cfg.Catalog.Path != filepath.Join("./data/devlens", "catalog.db") {
		t.Errorf("unexpected catalog path %s", cfg.Catalog.Path)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"bad mode", func(c *Config) { c.Mode = "compact" }, false},
		{"bad storage", func(c *Config) { c.Storage.Type = "gcs" }, false},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = "s3" }, false},
		{"s3 with bucket", func(c *Config) { c.Storage.Type = "s3"; c.Storage.S3.Bucket = "b" }, true},
		{"zero gap", func(c *Config) { c.Analysis.SessionGap = 0 }, false},
		{"zero z", func(c *Config) { c.Analysis.SignificanceZ = 0 }, false},
		{"negative workers", func(c *Config) { c.Analysis.Workers = -1 }, false},
		{"negative cache", func(c *Config) { c.Storage.CacheBytes = -1 }, false},
		{"cache disabled", func(c *Config) { c.Storage.CacheBytes = 0 }, true},
		{"bad pattern", func(c *Config) { c.Inbox.Pattern = "[" }, false},
		{"inbox mode", func(c *Config) { c.Mode = ModeInbox }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			cfg.Resolve()
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("expected valid config, got %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestShouldRun(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.ShouldRunAPI() || !cfg.ShouldRunInbox() {
		t.Error("mode all should run everything")
	}
	cfg.Mode = ModeAPI
	if !cfg.ShouldRunAPI() || cfg.ShouldRunInbox() {
		t.Error("mode api should run only the API")
	}
	cfg.Mode = ModeInbox
	if cfg.ShouldRunAPI() || !cfg.ShouldRunInbox() {
		t.Error("mode inbox should run only the inbox")
	}
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devlens.yaml")
	content := `
mode: api
data_dir: /tmp/devlens
http:
  addr: ":9999"
analysis:
  session_gap: 45m
  significance_z: 2.58
  workers: 4
storage:
  type: s3
  s3:
    bucket: analyses
    use_path_style: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Mode != ModeAPI {
		t.Errorf("expected mode api, got %s", cfg.Mode)
	}
	if cfg.HTTP.Addr != ":9999" {
		t.Errorf("expected addr :9999, got %s", cfg.HTTP.Addr)
	}
	if cfg.Analysis.SessionGap != 45*time.Minute {
		t.Errorf("expected 45m gap, got %s", cfg.Analysis.SessionGap)
	}
	if cfg.Analysis.SignificanceZ != 2.58 {
		t.Errorf("expected z 2.58, got %g", cfg.Analysis.SignificanceZ)
	}
	if cfg.Storage.S3.Bucket != "analyses" || !cfg.Storage.S3.UsePathStyle {
		t.Errorf("unexpected s3 config %+v", cfg.Storage.S3)
	}
	// untouched fields keep defaults
	if cfg.GRPC.Addr != ":9090" {
		t.Errorf("expected default grpc addr, got %s", cfg.GRPC.Addr)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devlens.json")
	if err := os.WriteFile(path, []byte(`{"mode":"inbox","inbox":{"pattern":"*.jsonl"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Mode != ModeInbox || cfg.Inbox.Pattern != "*.jsonl" {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestLoadFromFile_UnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devlens.toml")
	if err := os.WriteFile(path, []byte("mode = 'all'"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DEVLENS_MODE", "api")
	t.Setenv("DEVLENS_HTTP_ADDR", ":7070")
	t.Setenv("DEVLENS_SESSION_GAP", "10m")
	t.Setenv("DEVLENS_SIGNIFICANCE_Z", "2.33")
	t.Setenv("DEVLENS_WORKERS", "3")
	t.Setenv("DEVLENS_GRPC_ENABLED", "false")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.Mode != ModeAPI {
		t.Errorf("expected api mode, got %s", cfg.Mode)
	}
	if cfg.HTTP.Addr != ":7070" {
		t.Errorf("expected :7070, got %s", cfg.HTTP.Addr)
	}
	if cfg.Analysis.SessionGap != 10*time.Minute {
		t.Errorf("expected 10m, got %s", cfg.Analysis.SessionGap)
	}
	if cfg.Analysis.SignificanceZ != 2.33 {
		t.Errorf("expected 2.33, got %g", cfg.Analysis.SignificanceZ)
	}
	if cfg.Analysis.Workers != 3 {
		t.Errorf("expected 3 workers, got %d", cfg.Analysis.Workers)
	}
	if cfg.GRPC.Enabled {
		t.Error("expected grpc disabled")
	}
}

func TestEnsureDirectories(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Resolve()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.DataDir, cfg.Storage.Path, cfg.Inbox.Dir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("expected directory %s to exist", dir)
		}
	}
}
