// Package main implements the devlens server binary.
// It runs the HTTP and gRPC APIs and the inbox watcher, or a subset of them
// selected with the --mode flag.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/devlens/devlens/internal/app"
	"github.com/devlens/devlens/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

type flags struct {
	configFile string
	dataDir    string
	mode       string
	httpAddr   string
	grpcAddr   string
	inboxDir   string
	storage    string
}

func main() {
	var (
		f           flags
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&f.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&f.dataDir, "data-dir", "", "Base directory for all data files")
	flag.StringVar(&f.mode, "mode", "", "Service mode: all, api, inbox")
	flag.StringVar(&f.httpAddr, "http-addr", "", "HTTP listen address")
	flag.StringVar(&f.grpcAddr, "grpc-addr", "", "gRPC listen address")
	flag.StringVar(&f.inboxDir, "inbox-dir", "", "Directory watched for event exports")
	flag.StringVar(&f.storage, "storage", "", "Result storage type: local, s3")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "DevLens - learning analytics over xAPI-style event logs\n\n")
		fmt.Fprintf(os.Stderr, "Usage: devlens [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  devlens --data-dir /data/devlens\n")
		fmt.Fprintf(os.Stderr, "  devlens --mode inbox --inbox-dir /srv/exports\n")
		fmt.Fprintf(os.Stderr, "  devlens --config /etc/devlens/config.yaml\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  DEVLENS_MODE            Service mode (all, api, inbox)\n")
		fmt.Fprintf(os.Stderr, "  DEVLENS_DATA_DIR        Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  DEVLENS_HTTP_ADDR       HTTP listen address\n")
		fmt.Fprintf(os.Stderr, "  DEVLENS_GRPC_ADDR       gRPC listen address\n")
		fmt.Fprintf(os.Stderr, "  DEVLENS_STORAGE_TYPE    Storage type (local, s3)\n")
		fmt.Fprintf(os.Stderr, "  DEVLENS_SESSION_GAP     Session inactivity gap (e.g. 30m)\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("devlens version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := loadConfig(f)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	printBanner(cfg)

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	if err := application.WaitForShutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
		os.Exit(1)
	}
}

// loadConfig layers the config file, environment, and command line flags,
// in increasing priority.
func loadConfig(f flags) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if f.configFile != "" {
		cfg, err = config.LoadFromFile(f.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if f.dataDir != "" {
		cfg.DataDir = f.dataDir
	}
	if f.mode != "" {
		cfg.Mode = config.Mode(f.mode)
	}
	if f.httpAddr != "" {
		cfg.HTTP.Addr = f.httpAddr
	}
	if f.grpcAddr != "" {
		cfg.GRPC.Addr = f.grpcAddr
	}
	if f.inboxDir != "" {
		cfg.Inbox.Dir = f.inboxDir
	}
	if f.storage != "" {
		cfg.Storage.Type = f.storage
	}

	return cfg, nil
}

func printBanner(cfg *config.Config) {
	log.Printf("DevLens %s (commit: %s)", version, commit)
	log.Printf("Configuration:")
	log.Printf("  Mode:     %s", cfg.Mode)
	log.Printf("  Data Dir: %s", cfg.DataDir)
	log.Printf("  Storage:  %s", cfg.Storage.Type)

	if cfg.ShouldRunAPI() {
		log.Printf("API:")
		log.Printf("  HTTP: %s", cfg.HTTP.Addr)
		if cfg.GRPC.Enabled {
			log.Printf("  gRPC: %s", cfg.GRPC.Addr)
		}
		if cfg.Metrics.Enabled {
			log.Printf("  Metrics: %s/metrics", cfg.HTTP.Addr)
		}
	}

	if cfg.ShouldRunInbox() {
		log.Printf("Inbox:")
		log.Printf("  Dir:     %s", cfg.Inbox.Dir)
		log.Printf("  Pattern: %s", cfg.Inbox.Pattern)
	}
}
