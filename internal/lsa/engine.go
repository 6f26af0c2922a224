// Package lsa implements lag sequential analysis over classified events:
// observed lag-1 transition counts, expected counts under independence, and
// adjusted residuals with a significance cutoff.
package lsa

import (
	"context"
	"runtime"

	"github.com/devlens/devlens/pkg/types"
)

// DefaultSignificanceZ is the one-sided 95% cutoff for adjusted residuals.
const DefaultSignificanceZ = 1.96

// Engine runs the analysis. The zero value is not usable; call NewEngine.
type Engine struct {
	threshold float64
	workers   int
}

// Option configures an Engine.
type Option func(*Engine)

// WithSignificanceZ sets the z cutoff for significant transitions.
func WithSignificanceZ(z float64) Option {
	return func(e *Engine) {
		if z > 0 {
			e.threshold = z
		}
	}
}

// WithWorkers sets the number of shards used to count transitions.
// Values below 1 select GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// NewEngine creates an engine with the default cutoff and GOMAXPROCS workers.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{threshold: DefaultSignificanceZ}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = runtime.GOMAXPROCS(0)
	}
	return e
}

// Result is the dense outcome of one run. All matrices share Index.
type Result struct {
	Index       *BehaviorIndex
	Observed    *Observed
	Expected    [][]float64
	ZScores     [][]float64
	Significant []types.Transition
}

// Run analyzes classified events; events without a behavior code are
// ignored. Degenerate input yields empty matrices, never an error; the only
// error is context cancellation.
func (e *Engine) Run(ctx context.Context, events []types.ClassifiedEvent) (*Result, error) {
	seqs := BuildSequences(events)
	obs, err := CountObserved(ctx, seqs, e.workers)
	if err != nil {
		return nil, err
	}
	exp := Expected(obs)
	z := ZScores(obs, exp)
	return &Result{
		Index:       obs.Index,
		Observed:    obs,
		Expected:    exp,
		ZScores:     z,
		Significant: Significant(obs.Index, z, e.threshold),
	}, nil
}

// Analyze runs the engine and returns the keyed output form.
func (e *Engine) Analyze(ctx context.Context, events []types.ClassifiedEvent) (*types.LSAResult, error) {
	res, err := e.Run(ctx, events)
	if err != nil {
		return nil, err
	}
	return res.Output(), nil
}

// Output converts the dense result into code-keyed maps.
func (r *Result) Output() *types.LSAResult {
	codes := r.Index.Codes()
	out := &types.LSAResult{
		Observed:     make(map[string]map[string]int, len(codes)),
		AllBehaviors: codes,
		Totals: types.LSATotals{
			RowTotals:  make(map[string]int, len(codes)),
			ColTotals:  make(map[string]int, len(codes)),
			GrandTotal: r.Observed.GrandTotal,
		},
		Expected:               make(map[string]map[string]float64, len(codes)),
		ZScores:                make(map[string]map[string]float64, len(codes)),
		SignificantTransitions: r.Significant,
	}
	for i, from := range codes {
		obsRow := make(map[string]int, len(codes))
		expRow := make(map[string]float64, len(codes))
		zRow := make(map[string]float64, len(codes))
		for j, to := range codes {
			obsRow[to] = r.Observed.Counts[i][j]
			expRow[to] = r.Expected[i][j]
			zRow[to] = r.ZScores[i][j]
		}
		out.Observed[from] = obsRow
		out.Expected[from] = expRow
		out.ZScores[from] = zRow
		out.Totals.RowTotals[from] = r.Observed.RowTotals[i]
		out.Totals.ColTotals[from] = r.Observed.ColTotals[i]
	}
	return out
}
