// Package server owns process lifecycle: signal handling, admission of new
// work and ordered release of resources on the way down.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ShutdownConfig bounds how long shutdown may take.
type ShutdownConfig struct {
	// Timeout bounds the whole shutdown, closers included.
	Timeout time.Duration
	// DrainTimeout bounds the wait for in-flight work. It is clamped to
	// Timeout.
	DrainTimeout time.Duration
}

// DefaultShutdownConfig returns a 30s overall budget with half of it for
// draining.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		Timeout:      30 * time.Second,
		DrainTimeout: 15 * time.Second,
	}
}

type namedCloser struct {
	name string
	io.Closer
}

// ShutdownManager admits work until shutdown begins, waits for admitted
// work to finish and then runs registered closers newest first. Work is an
// HTTP request, a gRPC call or an inbox analysis.
type ShutdownManager struct {
	cfg ShutdownConfig

	mu       sync.Mutex
	inFlight int64
	draining bool
	// idle is closed once draining and inFlight reaches zero.
	idle    chan struct{}
	closers []namedCloser
	onStart []func()

	started chan struct{}
	once    sync.Once
}

func NewShutdownManager(cfg ShutdownConfig) *ShutdownManager {
	def := DefaultShutdownConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.DrainTimeout <= 0 || cfg.DrainTimeout > cfg.Timeout {
		cfg.DrainTimeout = min(def.DrainTimeout, cfg.Timeout)
	}
	return &ShutdownManager{
		cfg:     cfg,
		idle:    make(chan struct{}),
		started: make(chan struct{}),
	}
}

// RegisterCloser adds a resource to release on shutdown. Closers run in
// reverse registration order, so register dependencies first.
func (sm *ShutdownManager) RegisterCloser(name string, c io.Closer) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.closers = append(sm.closers, namedCloser{name: name, Closer: c})
}

// OnShutdownStart registers fn to run as soon as shutdown begins, before
// draining.
func (sm *ShutdownManager) OnShutdownStart(fn func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onStart = append(sm.onStart, fn)
}

// ListenForSignals blocks until SIGINT, SIGTERM, ctx cancellation or a
// Shutdown started elsewhere.
func (sm *ShutdownManager) ListenForSignals(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		return sm.Shutdown(context.Background(), "signal "+sig.String())
	case <-ctx.Done():
		return sm.Shutdown(context.Background(), "context cancelled")
	case <-sm.started:
		return nil
	}
}

// Shutdown stops admitting work, drains and closes. Calls after the first
// return nil immediately.
func (sm *ShutdownManager) Shutdown(ctx context.Context, reason string) error {
	var err error
	sm.once.Do(func() {
		log.Printf("Shutting down: %s", reason)

		sm.mu.Lock()
		sm.draining = true
		if sm.inFlight == 0 {
			close(sm.idle)
		}
		onStart := sm.onStart
		closers := sm.closers
		sm.mu.Unlock()
		close(sm.started)

		for _, fn := range onStart {
			fn()
		}

		ctx, cancel := context.WithTimeout(ctx, sm.cfg.Timeout)
		defer cancel()

		if derr := sm.drain(ctx); derr != nil {
			err = fmt.Errorf("%s: %w", reason, derr)
		}

		for i := len(closers) - 1; i >= 0; i-- {
			c := closers[i]
			start := time.Now()
			if cerr := c.Close(); cerr != nil {
				log.Printf("Shutdown: closing %s failed: %v", c.name, cerr)
				err = errors.Join(err, fmt.Errorf("close %s: %w", c.name, cerr))
				continue
			}
			log.Printf("Shutdown: closed %s in %s", c.name, time.Since(start).Round(time.Millisecond))
		}
	})
	return err
}

func (sm *ShutdownManager) drain(ctx context.Context) error {
	t := time.NewTimer(sm.cfg.DrainTimeout)
	defer t.Stop()

	select {
	case <-sm.idle:
		return nil
	case <-t.C:
	case <-ctx.Done():
	}
	if n := sm.InFlightCount(); n > 0 {
		return fmt.Errorf("gave up waiting for %d in-flight operations", n)
	}
	return nil
}

// TrackRequest admits one unit of work. It returns false once shutdown has
// begun; the caller must then reject the work and not call UntrackRequest.
func (sm *ShutdownManager) TrackRequest() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.draining {
		return false
	}
	sm.inFlight++
	return true
}

// UntrackRequest marks admitted work as finished.
func (sm *ShutdownManager) UntrackRequest() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.inFlight--
	if sm.draining && sm.inFlight == 0 {
		close(sm.idle)
	}
}

func (sm *ShutdownManager) IsShuttingDown() bool {
	select {
	case <-sm.started:
		return true
	default:
		return false
	}
}

func (sm *ShutdownManager) InFlightCount() int64 {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.inFlight
}

// ShutdownCh is closed when shutdown begins.
func (sm *ShutdownManager) ShutdownCh() <-chan struct{} {
	return sm.started
}

// GracefulHTTPServer serves until the manager shuts it down.
type GracefulHTTPServer struct {
	srv *http.Server
	sm  *ShutdownManager
}

// NewGracefulHTTPServer registers srv with sm. Registration happens here
// rather than in Serve so a shutdown racing startup still closes srv.
func NewGracefulHTTPServer(srv *http.Server, sm *ShutdownManager) *GracefulHTTPServer {
	sm.RegisterCloser("http server", CloserFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), sm.cfg.DrainTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	}))
	return &GracefulHTTPServer{srv: srv, sm: sm}
}

func (gs *GracefulHTTPServer) ListenAndServe() error {
	ln, err := net.Listen("tcp", gs.srv.Addr)
	if err != nil {
		return err
	}
	return gs.Serve(ln)
}

// Serve returns nil after a graceful shutdown and the serve error
// otherwise.
func (gs *GracefulHTTPServer) Serve(ln net.Listener) error {
	err := gs.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ShutdownMiddleware admits requests through sm and answers 503 once
// shutdown has begun.
func ShutdownMiddleware(sm *ShutdownManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sm.TrackRequest() {
				w.Header().Set("Connection", "close")
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "5")
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{
					"error": "service is shutting down",
					"code":  "UNAVAILABLE",
				})
				return
			}
			defer sm.UntrackRequest()
			next.ServeHTTP(w, r)
		})
	}
}

// UnaryShutdownInterceptor is the gRPC counterpart of ShutdownMiddleware.
func UnaryShutdownInterceptor(sm *ShutdownManager) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !sm.TrackRequest() {
			return nil, status.Errorf(codes.Unavailable, "%s: service is shutting down", info.FullMethod)
		}
		defer sm.UntrackRequest()
		return handler(ctx, req)
	}
}

// CloserFunc adapts a function to io.Closer.
type CloserFunc func() error

func (f CloserFunc) Close() error { return f() }
