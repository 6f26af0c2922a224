// Package config provides unified configuration for the DevLens server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode represents the service mode to run.
type Mode string

const (
	ModeAll   Mode = "all"
	ModeAPI   Mode = "api"
	ModeInbox Mode = "inbox"
)

// Config holds the unified configuration for the DevLens server.
type Config struct {
	// Mode specifies which services to run: all, api, inbox
	Mode Mode `json:"mode" yaml:"mode"`

	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	HTTP     HTTPConfig     `json:"http" yaml:"http"`
	GRPC     GRPCConfig     `json:"grpc" yaml:"grpc"`
	Analysis AnalysisConfig `json:"analysis" yaml:"analysis"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
	Catalog  CatalogConfig  `json:"catalog" yaml:"catalog"`
	Inbox    InboxConfig    `json:"inbox" yaml:"inbox"`
	Shutdown ShutdownConfig `json:"shutdown" yaml:"shutdown"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the HTTP listen address
	Addr string `json:"addr" yaml:"addr"`

	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`

	// MaxBodyBytes caps request bodies (uploaded CSV or JSON rows)
	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes"`
}

// GRPCConfig holds gRPC server configuration.
type GRPCConfig struct {
	// Addr is the gRPC server address
	Addr string `json:"addr" yaml:"addr"`

	// Enabled controls whether gRPC is enabled
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// AnalysisConfig holds the pipeline tunables.
type AnalysisConfig struct {
	// SessionGap is the inactivity gap that starts a new session
	SessionGap time.Duration `json:"session_gap" yaml:"session_gap"`

	// SignificanceZ is the adjusted-residual cutoff for significant transitions
	SignificanceZ float64 `json:"significance_z" yaml:"significance_z"`

	// Workers is the number of actor shards for transition counting (0 = GOMAXPROCS)
	Workers int `json:"workers" yaml:"workers"`

	// Timeout bounds one pipeline invocation (0 = no timeout)
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// StorageConfig holds result payload storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`

	// CacheBytes is the in-memory payload cache budget (0 = no cache)
	CacheBytes int64 `json:"cache_bytes" yaml:"cache_bytes"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	Bucket       string `json:"bucket" yaml:"bucket"`
	Region       string `json:"region" yaml:"region"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style"`
	KeyPrefix    string `json:"key_prefix" yaml:"key_prefix"`
	MaxRetries   int    `json:"max_retries" yaml:"max_retries"`
}

// CatalogConfig holds the analysis catalog configuration.
type CatalogConfig struct {
	// Path is the SQLite catalog file
	Path string `json:"path" yaml:"path"`
}

// InboxConfig holds the watch-folder configuration.
type InboxConfig struct {
	Dir      string        `json:"dir" yaml:"dir"`
	Pattern  string        `json:"pattern" yaml:"pattern"`
	Debounce time.Duration `json:"debounce" yaml:"debounce"`
}

// ShutdownConfig holds graceful shutdown configuration.
type ShutdownConfig struct {
	Timeout      time.Duration `json:"timeout" yaml:"timeout"`
	DrainTimeout time.Duration `json:"drain_timeout" yaml:"drain_timeout"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		Mode:    ModeAll,
		DataDir: "./data/devlens",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  120 * time.Second,
			MaxBodyBytes: 64 << 20,
		},
		GRPC: GRPCConfig{
			Addr:    ":9090",
			Enabled: true,
		},
		Analysis: AnalysisConfig{
			SessionGap:    30 * time.Minute,
			SignificanceZ: 1.96,
			Workers:       0,
			Timeout:       2 * time.Minute,
		},
		Storage: StorageConfig{
			Type:       "local",
			CacheBytes: 64 << 20,
		},
		Inbox: InboxConfig{
			Pattern:  "*.csv",
			Debounce: 500 * time.Millisecond,
		},
		Shutdown: ShutdownConfig{
			Timeout:      30 * time.Second,
			DrainTimeout: 15 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/devlens"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
	if c.Catalog.Path == "" {
		c.Catalog.Path = filepath.Join(c.DataDir, "catalog.db")
	}
	if c.Inbox.Dir == "" {
		c.Inbox.Dir = filepath.Join(c.DataDir, "inbox")
	}
	if c.Inbox.Pattern == "" {
		c.Inbox.Pattern = "*.csv"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeAll, ModeAPI, ModeInbox:
	default:
		return fmt.Errorf("invalid mode: %s (must be all, api, or inbox)", c.Mode)
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}

	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	if c.Storage.S3.MaxRetries < 0 {
		return fmt.Errorf("s3.max_retries must not be negative, got %d", c.Storage.S3.MaxRetries)
	}

	if c.Analysis.SessionGap <= 0 {
		return fmt.Errorf("analysis.session_gap must be positive, got %s", c.Analysis.SessionGap)
	}

	if c.Analysis.SignificanceZ <= 0 {
		return fmt.Errorf("analysis.significance_z must be positive, got %g", c.Analysis.SignificanceZ)
	}

	if c.Storage.CacheBytes < 0 {
		return fmt.Errorf("storage.cache_bytes must not be negative, got %d", c.Storage.CacheBytes)
	}

	if c.Analysis.Workers < 0 {
		return fmt.Errorf("analysis.workers must not be negative, got %d", c.Analysis.Workers)
	}

	if _, err := filepath.Match(c.Inbox.Pattern, "probe.csv"); err != nil {
		return fmt.Errorf("invalid inbox.pattern %q: %w", c.Inbox.Pattern, err)
	}

	return nil
}

// ShouldRunAPI returns true if the HTTP and gRPC APIs should run.
func (c *Config) ShouldRunAPI() bool {
	return c.Mode == ModeAll || c.Mode == ModeAPI
}

// ShouldRunInbox returns true if the watch-folder should run.
func (c *Config) ShouldRunInbox() bool {
	return c.Mode == ModeAll || c.Mode == ModeInbox
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the DEVLENS_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("DEVLENS_MODE"); v != "" {
		cfg.Mode = Mode(v)
	}
	if v := os.Getenv("DEVLENS_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv("DEVLENS_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("DEVLENS_GRPC_ADDR"); v != "" {
		cfg.GRPC.Addr = v
	}
	if v := os.Getenv("DEVLENS_GRPC_ENABLED"); v != "" {
		cfg.GRPC.Enabled = v == "true" || v == "1"
	}

	// Analysis configuration
	if v := os.Getenv("DEVLENS_SESSION_GAP"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Analysis.SessionGap = d
		}
	}
	if v := os.Getenv("DEVLENS_SIGNIFICANCE_Z"); v != "" {
		fmt.Sscanf(v, "%g", &cfg.Analysis.SignificanceZ)
	}
	if v := os.Getenv("DEVLENS_WORKERS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Analysis.Workers)
	}
	if v := os.Getenv("DEVLENS_ANALYSIS_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Analysis.Timeout = d
		}
	}

	// Storage configuration
	if v := os.Getenv("DEVLENS_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("DEVLENS_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("DEVLENS_STORAGE_CACHE_BYTES"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Storage.CacheBytes)
	}
	if v := os.Getenv("DEVLENS_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("DEVLENS_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("DEVLENS_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	if v := os.Getenv("DEVLENS_S3_USE_PATH_STYLE"); v != "" {
		cfg.Storage.S3.UsePathStyle = v == "true" || v == "1"
	}
	if v := os.Getenv("DEVLENS_S3_KEY_PREFIX"); v != "" {
		cfg.Storage.S3.KeyPrefix = v
	}

	if v := os.Getenv("DEVLENS_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}
	if v := os.Getenv("DEVLENS_INBOX_DIR"); v != "" {
		cfg.Inbox.Dir = v
	}
	if v := os.Getenv("DEVLENS_INBOX_PATTERN"); v != "" {
		cfg.Inbox.Pattern = v
	}
	if v := os.Getenv("DEVLENS_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true" || v == "1"
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		filepath.Dir(c.Catalog.Path),
	}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}
	if c.ShouldRunInbox() {
		dirs = append(dirs, c.Inbox.Dir)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
