package split

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// KNNTriage flags outliers by aggregate distance to the k nearest
// neighbors. Points whose summed neighbor distance reaches the given
// percentile (e.g. 90) are discarded; the returned slice marks the
// points to keep. The point itself counts among its neighbors at
// distance zero, matching a direct k-query against the point set.
func KNNTriage(X [][]float64, k int, percentile float64) []bool {
	n := len(X)
	if n == 0 {
		return nil
	}
	if k > n {
		k = n
	}

	sums := make([]float64, n)
	dists := make([]float64, n)
	for i := range X {
		for j := range X {
			dists[j] = floats.Distance(X[i], X[j], 2)
		}
		sort.Float64s(dists)
		sums[i] = floats.Sum(dists[:k])
	}

	sorted := append([]float64(nil), sums...)
	sort.Float64s(sorted)
	cutoff := stat.Quantile(percentile/100, stat.Empirical, sorted, nil)

	keep := make([]bool, n)
	for i, s := range sums {
		keep[i] = s < cutoff
	}
	return keep
}
