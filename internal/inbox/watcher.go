// Package inbox analyzes event exports dropped into a watched directory.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/devlens/devlens/internal/ingest"
	"github.com/devlens/devlens/internal/pipeline"
	"github.com/devlens/devlens/pkg/types"
)

const (
	// ProcessedDir receives files that were analyzed and saved.
	ProcessedDir = "processed"
	// FailedDir receives files that could not be analyzed, each with a .err note.
	FailedDir = "failed"

	defaultDebounce = 500 * time.Millisecond
	defaultWorkers  = 2
	maxQueueSize    = 128
)

// Analyzer runs the analysis pipeline over raw rows.
type Analyzer interface {
	Run(ctx context.Context, rows []types.RawEvent) (*types.Analysis, error)
}

// ResultStore persists analyses.
type ResultStore interface {
	Create(ctx context.Context, sourceFile string, analysis *types.Analysis) (*types.AnalysisRecord, error)
}

// Tracker admits units of work while the process is not shutting down.
// *server.ShutdownManager satisfies it.
type Tracker interface {
	TrackRequest() bool
	UntrackRequest()
}

// Config configures a Watcher.
type Config struct {
	Dir      string
	Pattern  string
	Debounce time.Duration
	Workers  int
	// Timeout bounds the analysis of one file. Zero means no limit.
	Timeout time.Duration
}

// Result describes what happened to one inbox file.
type Result struct {
	Path string
	Dest string
	ID   string
	Err  error
}

// Option configures optional Watcher behavior.
type Option func(*Watcher)

// WithTracker gates file processing on a shutdown tracker.
func WithTracker(t Tracker) Option {
	return func(w *Watcher) { w.tracker = t }
}

// WithResultHook registers a callback invoked after each processed file.
func WithResultHook(fn func(Result)) Option {
	return func(w *Watcher) { w.onResult = fn }
}

// Watcher watches a directory and analyzes every matching file written to it.
type Watcher struct {
	cfg      Config
	analyzer Analyzer
	store    ResultStore
	tracker  Tracker
	onResult func(Result)

	mu     sync.Mutex
	active map[string]bool
}

// NewWatcher creates a watcher. The pattern is validated up front.
func NewWatcher(cfg Config, analyzer Analyzer, store ResultStore, opts ...Option) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("inbox directory is required")
	}
	if cfg.Pattern == "" {
		cfg.Pattern = "*.csv"
	}
	if _, err := filepath.Match(cfg.Pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid inbox pattern %q: %w", cfg.Pattern, err)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}

	w := &Watcher{
		cfg:      cfg,
		analyzer: analyzer,
		store:    store,
		active:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Matches reports whether a file name is eligible for processing.
// Hidden files are skipped so that partial writes named ".x.csv" are ignored.
func (w *Watcher) Matches(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false
	}
	ok, _ := filepath.Match(w.cfg.Pattern, name)
	return ok
}

// Run watches the inbox until ctx is cancelled. Files already present at
// startup are processed first.
func (w *Watcher) Run(ctx context.Context) error {
	for _, dir := range []string{w.cfg.Dir, filepath.Join(w.cfg.Dir, ProcessedDir), filepath.Join(w.cfg.Dir, FailedDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create inbox directory: %w", err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.cfg.Dir, err)
	}

	queue := make(chan string, maxQueueSize)
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range queue {
				w.process(ctx, path)
			}
		}()
	}

	pending := make(map[string]bool)
	flush := func() {
		for p := range pending {
			select {
			case queue <- p:
			case <-ctx.Done():
				return
			}
			delete(pending, p)
		}
	}

	existing, err := w.scan()
	if err != nil {
		log.Printf("inbox: failed to scan %s: %v", w.cfg.Dir, err)
	}
	for _, p := range existing {
		pending[p] = true
	}
	flush()

	timer := time.NewTimer(w.cfg.Debounce)
	timer.Stop()

	defer func() {
		timer.Stop()
		close(queue)
		wg.Wait()
	}()

	log.Printf("inbox: watching %s for %s", w.cfg.Dir, w.cfg.Pattern)
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-timer.C:
			flush()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.Matches(event.Name) {
				continue
			}
			pending[event.Name] = true
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.cfg.Debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("inbox: watcher error: %v", err)
		}
	}
}

// scan lists matching files already sitting in the inbox.
func (w *Watcher) scan() ([]string, error) {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !w.Matches(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(w.cfg.Dir, e.Name()))
	}
	return paths, nil
}

func (w *Watcher) process(ctx context.Context, path string) {
	if !w.claim(path) {
		return
	}
	defer w.release(path)

	res, ok := w.ProcessFile(ctx, path)
	if !ok {
		return
	}
	if res.Err != nil {
		log.Printf("inbox: %s failed: %v", filepath.Base(path), res.Err)
	} else {
		log.Printf("inbox: %s saved as analysis %s", filepath.Base(path), res.ID)
	}
	if w.onResult != nil {
		w.onResult(res)
	}
}

func (w *Watcher) claim(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active[path] {
		return false
	}
	w.active[path] = true
	return true
}

func (w *Watcher) release(path string) {
	w.mu.Lock()
	delete(w.active, path)
	w.mu.Unlock()
}

// ProcessFile analyzes one file, saves the analysis, and moves the file to
// processed/ or failed/. The second return value is false when the file was
// left untouched: it vanished before it could be read, or shutdown began.
func (w *Watcher) ProcessFile(ctx context.Context, path string) (Result, bool) {
	res := Result{Path: path}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return res, false
	}
	if w.tracker != nil {
		if !w.tracker.TrackRequest() {
			return res, false
		}
		defer w.tracker.UntrackRequest()
	}

	if w.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.Timeout)
		defer cancel()
	}

	res.ID, res.Err = w.analyze(ctx, path)
	if res.Err != nil && errors.Is(res.Err, os.ErrNotExist) {
		return res, false
	}

	dir := ProcessedDir
	if res.Err != nil {
		dir = FailedDir
	}
	dest, err := moveInto(filepath.Join(w.cfg.Dir, dir), path)
	if err != nil {
		log.Printf("inbox: failed to move %s: %v", path, err)
		if res.Err == nil {
			res.Err = err
		}
		return res, true
	}
	res.Dest = dest

	if res.Err != nil {
		note := []byte(res.Err.Error() + "\n")
		if err := os.WriteFile(dest+".err", note, 0644); err != nil {
			log.Printf("inbox: failed to write error note for %s: %v", dest, err)
		}
	}
	return res, true
}

func (w *Watcher) analyze(ctx context.Context, path string) (string, error) {
	rows, err := ingest.ReadFile(path)
	if err != nil {
		return "", err
	}
	analysis, err := w.analyzer.Run(ctx, rows)
	if err == nil {
		err = pipeline.RequireClassified(analysis)
	}
	if err != nil {
		return "", err
	}
	rec, err := w.store.Create(ctx, filepath.Base(path), analysis)
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// moveInto renames path into dir, suffixing the name when it is taken.
func moveInto(dir, path string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	name := filepath.Base(path)
	dest := filepath.Join(dir, name)
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		dest = filepath.Join(dir, stem+"-"+strconv.FormatInt(time.Now().UnixNano(), 10)+ext)
	}
	if err := os.Rename(path, dest); err != nil {
		return "", err
	}
	return dest, nil
}
