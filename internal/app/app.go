// Package app provides the unified application lifecycle management for DevLens.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc"

	grpcapi "github.com/devlens/devlens/internal/api/grpc"
	httpapi "github.com/devlens/devlens/internal/api/http"
	"github.com/devlens/devlens/internal/cache"
	"github.com/devlens/devlens/internal/catalog"
	"github.com/devlens/devlens/internal/config"
	"github.com/devlens/devlens/internal/inbox"
	"github.com/devlens/devlens/internal/observability"
	"github.com/devlens/devlens/internal/pipeline"
	"github.com/devlens/devlens/internal/results"
	"github.com/devlens/devlens/internal/server"
	"github.com/devlens/devlens/internal/storage"
)

// behaviorWindow is how long a behavior code stays in the frequency table
// without being seen again.
const behaviorWindow = 24 * time.Hour

// App manages all DevLens service lifecycles.
type App struct {
	cfg *config.Config

	// Shared resources
	storage   storage.ObjectStorage
	catalog   catalog.Catalog
	results   *results.Store
	behaviors *observability.BehaviorStats
	metrics   *observability.Metrics
	analyzer  *pipeline.Analyzer
	shutdown  *server.ShutdownManager

	// Service components
	httpListener net.Listener
	grpcServer   *grpc.Server
	grpcListener net.Listener
	watcher      *inbox.Watcher

	// Lifecycle
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new App with the given configuration.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	return &App{
		cfg: cfg,
	}, nil
}

// Start initializes shared resources and starts all configured services.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.initSharedResources(ctx); err != nil {
		a.cleanup()
		return fmt.Errorf("failed to initialize shared resources: %w", err)
	}

	if a.cfg.ShouldRunAPI() {
		if err := a.startAPI(); err != nil {
			a.cleanup()
			return fmt.Errorf("failed to start api: %w", err)
		}
	}

	if a.cfg.ShouldRunInbox() {
		if err := a.startInbox(ctx); err != nil {
			a.cleanup()
			return fmt.Errorf("failed to start inbox: %w", err)
		}
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.pruneBehaviors(ctx)
	}()

	log.Printf("DevLens started in %s mode", a.cfg.Mode)
	return nil
}

// initSharedResources initializes storage, the catalog, the pipeline and the
// shutdown manager.
func (a *App) initSharedResources(ctx context.Context) error {
	var err error

	switch a.cfg.Storage.Type {
	case "local":
		a.storage, err = storage.NewLocalStorage(a.cfg.Storage.Path)
	case "s3":
		s3Cfg := storage.DefaultS3Config()
		if a.cfg.Storage.S3.Region != "" {
			s3Cfg.Region = a.cfg.Storage.S3.Region
		}
		s3Cfg.Endpoint = a.cfg.Storage.S3.Endpoint
		s3Cfg.UsePathStyle = a.cfg.Storage.S3.UsePathStyle
		s3Cfg.KeyPrefix = a.cfg.Storage.S3.KeyPrefix
		if a.cfg.Storage.S3.MaxRetries > 0 {
			s3Cfg.MaxRetries = a.cfg.Storage.S3.MaxRetries
		}
		a.storage, err = storage.NewS3Storage(ctx, a.cfg.Storage.S3.Bucket, s3Cfg)
	default:
		return fmt.Errorf("unsupported storage type: %s", a.cfg.Storage.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	log.Printf("Storage initialized: type=%s", a.cfg.Storage.Type)
	if a.cfg.Storage.Type == "s3" {
		log.Printf("S3 Config: Bucket=%s, Region=%s, Endpoint=%s",
			a.cfg.Storage.S3.Bucket, a.cfg.Storage.S3.Region, a.cfg.Storage.S3.Endpoint)
	}
	if a.cfg.Storage.CacheBytes > 0 {
		cached, err := cache.NewCachedStorage(a.storage, a.cfg.Storage.CacheBytes)
		if err != nil {
			return fmt.Errorf("failed to initialize payload cache: %w", err)
		}
		a.storage = cached
		log.Printf("Payload cache enabled: %d bytes", a.cfg.Storage.CacheBytes)
	}

	cat, err := catalog.NewCatalog(a.cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize catalog: %w", err)
	}
	a.catalog = cat
	log.Printf("Catalog initialized: %s", a.cfg.Catalog.Path)

	a.results = results.NewStore(a.catalog, a.storage)
	if report, err := a.results.Reconcile(ctx, false); err != nil {
		log.Printf("Warning: reconciliation failed: %v", err)
	} else if report.HasIssues() {
		log.Printf("Warning: reconciliation found %d dangling records and %d orphaned objects",
			len(report.DanglingRecords), len(report.OrphanedObjects))
	}

	a.behaviors = observability.NewBehaviorStats(behaviorWindow)
	a.metrics = observability.NewMetrics(a.behaviors)

	a.analyzer = pipeline.New(pipeline.Options{
		SessionGap:    a.cfg.Analysis.SessionGap,
		SignificanceZ: a.cfg.Analysis.SignificanceZ,
		Workers:       a.cfg.Analysis.Workers,
		Timeout:       a.cfg.Analysis.Timeout,
		Observer:      a.metrics,
	})
	log.Printf("Pipeline initialized: session_gap=%s, z=%g, workers=%d",
		a.cfg.Analysis.SessionGap, a.cfg.Analysis.SignificanceZ, a.cfg.Analysis.Workers)

	a.shutdown = server.NewShutdownManager(server.ShutdownConfig{
		Timeout:      a.cfg.Shutdown.Timeout,
		DrainTimeout: a.cfg.Shutdown.DrainTimeout,
	})
	// Closers run in reverse order, so the catalog goes last.
	a.shutdown.RegisterCloser("catalog", a.catalog)

	return nil
}

// startAPI starts the HTTP server and, when enabled, the gRPC server.
func (a *App) startAPI() error {
	routerCfg := httpapi.RouterConfig{
		Handlers: httpapi.NewHandlers(a.analyzer, a.results, a.behaviors, a.cfg.HTTP.MaxBodyBytes),
		Observe:  a.metrics.ObserveHTTP,
		Outer:    []func(http.Handler) http.Handler{server.ShutdownMiddleware(a.shutdown)},
	}
	if a.cfg.Metrics.Enabled {
		routerCfg.Metrics = a.metrics.Handler()
	}

	httpServer := &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      httpapi.NewRouter(routerCfg),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}

	var err error
	a.httpListener, err = net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on HTTP address: %w", err)
	}

	graceful := server.NewGracefulHTTPServer(httpServer, a.shutdown)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Printf("HTTP server listening on %s", a.httpListener.Addr())
		if err := graceful.Serve(a.httpListener); err != nil {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	if !a.cfg.GRPC.Enabled {
		return nil
	}

	a.grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(server.UnaryShutdownInterceptor(a.shutdown)))
	grpcapi.RegisterAnalysisServiceServer(a.grpcServer, grpcapi.NewAnalysisServer(a.analyzer, a.results))

	a.grpcListener, err = net.Listen("tcp", a.cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC address: %w", err)
	}

	a.shutdown.RegisterCloser("grpc server", server.CloserFunc(func() error {
		a.grpcServer.GracefulStop()
		return nil
	}))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Printf("gRPC server listening on %s", a.grpcListener.Addr())
		if err := a.grpcServer.Serve(a.grpcListener); err != nil {
			log.Printf("gRPC server error: %v", err)
		}
	}()

	return nil
}

// startInbox starts the watch-folder.
func (a *App) startInbox(ctx context.Context) error {
	var err error
	a.watcher, err = inbox.NewWatcher(inbox.Config{
		Dir:      a.cfg.Inbox.Dir,
		Pattern:  a.cfg.Inbox.Pattern,
		Debounce: a.cfg.Inbox.Debounce,
		Timeout:  a.cfg.Analysis.Timeout,
	}, a.analyzer, a.results, inbox.WithTracker(a.shutdown))
	if err != nil {
		return err
	}

	inboxCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	a.shutdown.RegisterCloser("inbox watcher", server.CloserFunc(func() error {
		stop()
		<-done
		return nil
	}))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer close(done)
		if err := a.watcher.Run(inboxCtx); err != nil {
			log.Printf("Inbox watcher error: %v", err)
		}
	}()
	return nil
}

func (a *App) pruneBehaviors(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.shutdown.ShutdownCh():
			return
		case <-ticker.C:
			a.behaviors.Prune()
		}
	}
}

// HTTPAddr returns the bound HTTP address, or "" when the API is not running.
func (a *App) HTTPAddr() string {
	if a.httpListener == nil {
		return ""
	}
	return a.httpListener.Addr().String()
}

// GRPCAddr returns the bound gRPC address, or "" when gRPC is not running.
func (a *App) GRPCAddr() string {
	if a.grpcListener == nil {
		return ""
	}
	return a.grpcListener.Addr().String()
}

// Stop gracefully stops all services and releases resources.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	log.Printf("Initiating graceful shutdown...")
	err := a.shutdown.Shutdown(ctx, "stop requested")

	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Printf("Shutdown timeout, some goroutines may not have finished")
	}

	log.Printf("DevLens stopped")
	return err
}

// cleanup releases shared resources after a failed start.
func (a *App) cleanup() {
	if a.shutdown != nil {
		a.shutdown.Shutdown(context.Background(), "startup failed")
	} else if a.catalog != nil {
		a.catalog.Close()
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
}

// WaitForShutdown blocks until a shutdown signal is received, then stops.
func (a *App) WaitForShutdown(ctx context.Context) error {
	if err := a.shutdown.ListenForSignals(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	return a.Stop(context.Background())
}
