package lsa

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// pair is one from -> to transition.
type pair struct {
	from, to string
}

// PartialCounts holds the transition counts of one shard. Codes are kept
// sparse because the behavior universe is only known after all shards merge.
type PartialCounts struct {
	counts map[pair]int
}

// NewPartialCounts creates an empty partial.
func NewPartialCounts() *PartialCounts {
	return &PartialCounts{counts: make(map[pair]int)}
}

// Accumulate counts every consecutive pair within one actor sequence.
func (p *PartialCounts) Accumulate(seq Sequence) {
	for i := 0; i+1 < len(seq.Events); i++ {
		from := seq.Events[i].BehaviorCode
		to := seq.Events[i+1].BehaviorCode
		p.counts[pair{from, to}]++
	}
}

// Total returns the number of transitions counted.
func (p *PartialCounts) Total() int {
	n := 0
	for _, c := range p.counts {
		n += c
	}
	return n
}

// MergePartials sums partial counts from all shards into one.
func MergePartials(partials []*PartialCounts) *PartialCounts {
	merged := NewPartialCounts()
	for _, p := range partials {
		if p == nil {
			continue
		}
		for k, c := range p.counts {
			merged.counts[k] += c
		}
	}
	return merged
}

// Observed is the dense observed transition matrix with its marginals.
type Observed struct {
	Index      *BehaviorIndex
	Counts     [][]int
	RowTotals  []int
	ColTotals  []int
	GrandTotal int
}

// Dense converts the counts into a dense matrix over the codes that appear
// as a transition endpoint.
func (p *PartialCounts) Dense() *Observed {
	codes := make([]string, 0, 2*len(p.counts))
	for k := range p.counts {
		codes = append(codes, k.from, k.to)
	}
	idx := NewBehaviorIndex(codes)
	n := idx.Len()

	obs := &Observed{
		Index:     idx,
		Counts:    make([][]int, n),
		RowTotals: make([]int, n),
		ColTotals: make([]int, n),
	}
	for i := range obs.Counts {
		obs.Counts[i] = make([]int, n)
	}
	for k, c := range p.counts {
		i, _ := idx.Pos(k.from)
		j, _ := idx.Pos(k.to)
		obs.Counts[i][j] += c
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			obs.RowTotals[i] += obs.Counts[i][j]
			obs.ColTotals[j] += obs.Counts[i][j]
		}
		obs.GrandTotal += obs.RowTotals[i]
	}
	return obs
}

// CountObserved counts transitions across sequences using up to workers
// goroutines. Each worker owns the actors hashed to its shard and fills its
// own partial; partials are merged once every worker is done.
func CountObserved(ctx context.Context, seqs []Sequence, workers int) (*Observed, error) {
	if workers < 1 {
		workers = 1
	}
	if workers > len(seqs) {
		workers = len(seqs)
	}
	if workers <= 1 {
		p := NewPartialCounts()
		for _, s := range seqs {
			p.Accumulate(s)
		}
		return p.Dense(), nil
	}

	shards := partitionSequences(seqs, workers)
	partials := make([]*PartialCounts, workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := range shards {
		g.Go(func() error {
			p := NewPartialCounts()
			for _, s := range shards[i] {
				if err := gctx.Err(); err != nil {
					return err
				}
				p.Accumulate(s)
			}
			partials[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return MergePartials(partials).Dense(), nil
}
