package split

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Project reduces X to at most k dimensions with a variance-maximizing
// linear projection: SVD of the column-centered data matrix, scores
// U·S truncated to the leading components.
func Project(X [][]float64, k int) ([][]float64, error) {
	n := len(X)
	if n == 0 {
		return nil, fmt.Errorf("cannot project empty data")
	}
	d := len(X[0])
	if d == 0 {
		return nil, fmt.Errorf("cannot project zero-width data")
	}
	if k > d {
		k = d
	}
	if k > n {
		k = n
	}

	means := make([]float64, d)
	for _, row := range X {
		if len(row) != d {
			return nil, fmt.Errorf("ragged data: row width %d, want %d", len(row), d)
		}
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= float64(n)
	}

	centered := mat.NewDense(n, d, nil)
	for i, row := range X {
		for j, v := range row {
			centered.Set(i, j, v-means[j])
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(centered, mat.SVDThin); !ok {
		return nil, fmt.Errorf("svd failed to converge")
	}
	var u mat.Dense
	svd.UTo(&u)
	s := svd.Values(nil)

	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, k)
		for j := 0; j < k; j++ {
			row[j] = u.At(i, j) * s[j]
		}
		out[i] = row
	}
	return out, nil
}
