package cluster

import (
	"gonum.org/v1/gonum/mat"
)

// Fitter is the mixture-fitting collaborator. Fit clusters one channel's
// feature subset and returns the component parameters together with the
// dense responsibility matrix (rows sum to 1 over all components).
//
// mask is a per-spike weight in [0,1]; group assigns spikes to coreset
// groups. The location-feature mode passes a unit mask and singleton
// groups. Implementations must be deterministic for a fixed seed.
type Fitter interface {
	Fit(features [][]float64, mask []float64, group []int) (*MixtureState, [][]float64, error)
}

// SuffStats are the per-component sufficient statistics of a local
// sub-mixture: responsibility mass, weighted feature sums and weighted
// outer-product sums. The merge engine re-derives these for each
// candidate pair before consulting the merge tester.
type SuffStats struct {
	N     []float64
	SumX  [][]float64
	SumXX []*mat.Dense
}

// MergeTester decides whether a one-component explanation of a local
// two-component sub-mixture is at least as good as keeping the pair. On
// acceptance it returns the merged single-component state and its
// statistics; otherwise the inputs are returned unchanged.
type MergeTester interface {
	TestMerge(features [][]float64, st *MixtureState, resp [][]float64, stats *SuffStats) (*MixtureState, *SuffStats, bool, error)
}

// ComputeSuffStats derives sufficient statistics for a sub-mixture from
// its features and dense responsibilities.
func ComputeSuffStats(features [][]float64, resp [][]float64) *SuffStats {
	if len(features) == 0 {
		return &SuffStats{}
	}
	dim := len(features[0])
	var k int
	if len(resp) > 0 {
		k = len(resp[0])
	}
	stats := &SuffStats{
		N:     make([]float64, k),
		SumX:  make([][]float64, k),
		SumXX: make([]*mat.Dense, k),
	}
	for j := 0; j < k; j++ {
		stats.SumX[j] = make([]float64, dim)
		stats.SumXX[j] = mat.NewDense(dim, dim, nil)
	}
	for i, x := range features {
		for j := 0; j < k; j++ {
			r := resp[i][j]
			if r == 0 {
				continue
			}
			stats.N[j] += r
			for a := 0; a < dim; a++ {
				stats.SumX[j][a] += r * x[a]
				for b := 0; b < dim; b++ {
					stats.SumXX[j].Set(a, b, stats.SumXX[j].At(a, b)+r*x[a]*x[b])
				}
			}
		}
	}
	return stats
}
