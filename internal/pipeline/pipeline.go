// Package pipeline runs a complete analysis over one batch of raw rows:
// normalize, classify, then LSA, session/funnel and overview concurrently.
package pipeline

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/devlens/devlens/internal/classify"
	dlerrors "github.com/devlens/devlens/internal/errors"
	"github.com/devlens/devlens/internal/funnel"
	"github.com/devlens/devlens/internal/lsa"
	"github.com/devlens/devlens/internal/normalize"
	"github.com/devlens/devlens/internal/overview"
	"github.com/devlens/devlens/internal/session"
	"github.com/devlens/devlens/pkg/types"
)

// RunStats describes one finished run for observers.
type RunStats struct {
	Rows         int
	Classified   int
	Unclassified int
	Behaviors    map[string]int
	Duration     time.Duration
	Err          error
}

// Observer receives a callback after every run, successful or not.
type Observer interface {
	ObserveRun(stats RunStats)
}

// Options configures an Analyzer.
type Options struct {
	SessionGap    time.Duration
	SignificanceZ float64
	Workers       int
	Timeout       time.Duration
	Classifier    *classify.Classifier
	Observer      Observer
	// Now stamps GeneratedAt; defaults to time.Now.
	Now func() time.Time
}

// Analyzer is safe for concurrent use.
type Analyzer struct {
	classifier *classify.Classifier
	lsa        *lsa.Engine
	funnel     *funnel.Calculator
	timeout    time.Duration
	observer   Observer
	now        func() time.Time
}

// New creates an analyzer. Zero option values select defaults.
func New(opts Options) *Analyzer {
	c := opts.Classifier
	if c == nil {
		c = classify.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Analyzer{
		classifier: c,
		lsa:        lsa.NewEngine(lsa.WithSignificanceZ(opts.SignificanceZ), lsa.WithWorkers(opts.Workers)),
		funnel:     funnel.NewCalculator(session.NewReconstructor(opts.SessionGap, opts.Workers)),
		timeout:    opts.Timeout,
		observer:   opts.Observer,
		now:        now,
	}
}

// Run analyzes rows. It fails with INPUT:INVALID_INPUT when rows is nil or
// no row resolves an actor. Batches where nothing classifies are not errors:
// they yield an empty LSA result next to a full funnel and overview. Callers
// that want to refuse such uploads use RequireClassified.
func (a *Analyzer) Run(ctx context.Context, rows []types.RawEvent) (*types.Analysis, error) {
	start := time.Now()
	stats := RunStats{Rows: len(rows)}
	res, err := a.run(ctx, rows, &stats)
	stats.Duration = time.Since(start)
	stats.Err = err
	if a.observer != nil {
		a.observer.ObserveRun(stats)
	}
	return res, err
}

func (a *Analyzer) run(ctx context.Context, rows []types.RawEvent, stats *RunStats) (*types.Analysis, error) {
	if rows == nil {
		return nil, dlerrors.NewInputError(dlerrors.CodeInvalidInput, "input rows are missing")
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	normalized := normalize.Events(rows)
	if len(normalized) > 0 && !anyActor(normalized) {
		return nil, dlerrors.NewInputError(dlerrors.CodeInvalidInput, "no row carries an actor identity")
	}

	labeled, dropped := a.classifier.Label(normalized)
	classified := classify.Coded(labeled)
	stats.Classified = len(classified)
	stats.Unclassified = dropped
	stats.Behaviors = make(map[string]int)
	for _, ev := range classified {
		stats.Behaviors[ev.BehaviorCode]++
	}

	out := &types.Analysis{
		RecordCount:     len(classified),
		ClassifiedCount: len(classified),
		RowCount:        len(rows),
		GeneratedAt:     a.now().UTC(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := a.lsa.Analyze(gctx, classified)
		out.LSA = r
		return err
	})
	g.Go(func() error {
		// sessions and funnel stages come from verbs, so unclassified
		// events count too
		r, err := a.funnel.Calculate(gctx, labeled)
		out.Funnel = r
		return err
	})
	g.Go(func() error {
		out.Overview = overview.Calculate(normalized)
		return nil
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, dlerrors.NewAnalysisError(dlerrors.CodeTimeout, "analysis timed out", err)
		}
		return nil, err
	}
	return out, nil
}

// RequireClassified rejects a result whose batch had rows but none matched
// a behavior rule. Upload surfaces call it; the analysis itself is valid.
func RequireClassified(a *types.Analysis) error {
	if a != nil && a.RowCount > 0 && a.ClassifiedCount == 0 {
		return dlerrors.NewInputError(dlerrors.CodeNoClassifiedRows, "no rows matched behavior rules")
	}
	return nil
}

func anyActor(events []types.NormalizedEvent) bool {
	for _, ev := range events {
		if ev.ActorID != types.UnknownActor {
			return true
		}
	}
	return false
}
