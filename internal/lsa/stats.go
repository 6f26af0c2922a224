package lsa

import (
	"math"
	"sort"

	"github.com/devlens/devlens/pkg/types"
)

// Expected computes E[A][B] = N_A * N_B / N under independence. The matrix
// is all zeros when there are no transitions.
func Expected(obs *Observed) [][]float64 {
	n := obs.Index.Len()
	exp := newFloatMatrix(n)
	if obs.GrandTotal == 0 {
		return exp
	}
	total := float64(obs.GrandTotal)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			exp[i][j] = float64(obs.RowTotals[i]) * (float64(obs.ColTotals[j]) / total)
		}
	}
	return exp
}

// ZScores computes adjusted residuals
//
//	z = (O - E) / sqrt(E * (1 - p_A) * (1 - p_B))
//
// with z = 0 whenever E or the denominator is 0. No cell is ever NaN or Inf.
func ZScores(obs *Observed, exp [][]float64) [][]float64 {
	n := obs.Index.Len()
	z := newFloatMatrix(n)
	if obs.GrandTotal == 0 {
		return z
	}
	total := float64(obs.GrandTotal)
	for i := 0; i < n; i++ {
		pRow := float64(obs.RowTotals[i]) / total
		for j := 0; j < n; j++ {
			e := exp[i][j]
			if e == 0 {
				continue
			}
			pCol := float64(obs.ColTotals[j]) / total
			denom := math.Sqrt(e * (1 - pRow) * (1 - pCol))
			if denom == 0 || math.IsNaN(denom) {
				continue
			}
			v := (float64(obs.Counts[i][j]) - e) / denom
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			z[i][j] = v
		}
	}
	return z
}

// Significant lists transitions with z >= threshold, highest z first. Equal
// scores keep row-major matrix order.
func Significant(idx *BehaviorIndex, z [][]float64, threshold float64) []types.Transition {
	out := make([]types.Transition, 0)
	for i := range z {
		for j, v := range z[i] {
			if v >= threshold {
				out = append(out, types.Transition{From: idx.Code(i), To: idx.Code(j), Z: v})
			}
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Z > out[b].Z })
	return out
}

func newFloatMatrix(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	return m
}
