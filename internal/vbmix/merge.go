package vbmix

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/spikesort/internal/cluster"
)

// TestMerge compares a one-component against a two-component explanation
// of a local sub-mixture's evidence. Acceptance uses a Bayesian
// information criterion: the pair merges unless the extra component's
// likelihood gain outweighs its parameter cost. On acceptance the merged
// component's parameters and statistics are returned.
func (s *Sorter) TestMerge(features [][]float64, st *cluster.MixtureState, resp [][]float64, stats *cluster.SuffStats) (*cluster.MixtureState, *cluster.SuffStats, bool, error) {
	if st.NumComponents() != 2 {
		return nil, nil, false, fmt.Errorf("merge test requires 2 components, got %d", st.NumComponents())
	}
	n := len(features)
	if n == 0 || len(stats.N) != 2 {
		return nil, nil, false, fmt.Errorf("merge test requires populated sufficient statistics")
	}
	dim := st.Dim

	// Pooled moments of the would-be merged component.
	total := stats.N[0] + stats.N[1]
	if total <= 0 {
		return nil, nil, false, fmt.Errorf("merge test on empty components")
	}
	mean := make([]float64, dim)
	for d := 0; d < dim; d++ {
		mean[d] = (stats.SumX[0][d] + stats.SumX[1][d]) / total
	}
	cov := mat.NewDense(dim, dim, nil)
	for a := 0; a < dim; a++ {
		for b := 0; b < dim; b++ {
			v := (stats.SumXX[0].At(a, b)+stats.SumXX[1].At(a, b))/total - mean[a]*mean[b]
			if a == b {
				v += 1e-6 // regularize
			}
			cov.Set(a, b, v)
		}
	}

	mergedLL, err := gaussianLogLikelihood(features, [][]float64{mean}, []*mat.Dense{cov}, []float64{1})
	if err != nil {
		return nil, nil, false, err
	}

	// Two-component likelihood under the components' effective
	// covariances (inverse of CovFactor × DOF).
	covs := make([]*mat.Dense, 2)
	weights := []float64{stats.N[0] / total, stats.N[1] / total}
	for j := 0; j < 2; j++ {
		var prec mat.Dense
		prec.Scale(st.DOF[j], st.CovFactor[j])
		var c mat.Dense
		if err := c.Inverse(&prec); err != nil {
			return nil, nil, false, fmt.Errorf("component %d precision is singular: %w", j, err)
		}
		covs[j] = &c
	}
	pairLL, err := gaussianLogLikelihood(features, st.Mean, covs, weights)
	if err != nil {
		return nil, nil, false, err
	}

	// Parameter cost of the extra component: a mean, a covariance and a
	// mixing weight.
	extra := float64(dim+dim*(dim+1)/2+1) / 2 * math.Log(float64(n))
	if pairLL-mergedLL > extra {
		return st, stats, false, nil
	}

	var prec mat.Dense
	if err := prec.Inverse(cov); err != nil {
		return nil, nil, false, fmt.Errorf("merged covariance is singular: %w", err)
	}
	dof := st.DOF[0] + st.DOF[1]
	factor := mat.NewDense(dim, dim, nil)
	factor.Scale(1/dof, &prec)
	var factorInv mat.Dense
	factorInv.Scale(dof, cov)

	merged := &cluster.MixtureState{
		Dim:          dim,
		Mean:         [][]float64{mean},
		CovFactor:    []*mat.Dense{factor},
		CovFactorInv: []*mat.Dense{&factorInv},
		DOF:          []float64{dof},
		PrecScale:    []float64{st.PrecScale[0] + st.PrecScale[1]},
		PseudoCount:  []float64{st.PseudoCount[0] + st.PseudoCount[1]},
	}

	sumXX := mat.NewDense(dim, dim, nil)
	sumXX.Add(stats.SumXX[0], stats.SumXX[1])
	sumX := make([]float64, dim)
	for d := 0; d < dim; d++ {
		sumX[d] = stats.SumX[0][d] + stats.SumX[1][d]
	}
	mergedStats := &cluster.SuffStats{
		N:     []float64{total},
		SumX:  [][]float64{sumX},
		SumXX: []*mat.Dense{sumXX},
	}
	return merged, mergedStats, true, nil
}

// gaussianLogLikelihood sums the weighted mixture log density over the
// points.
func gaussianLogLikelihood(points [][]float64, means [][]float64, covs []*mat.Dense, weights []float64) (float64, error) {
	if len(points) == 0 {
		return 0, nil
	}
	dim := len(points[0])
	k := len(means)

	precs := make([]*mat.Dense, k)
	logNorm := make([]float64, k)
	for j := 0; j < k; j++ {
		var p mat.Dense
		if err := p.Inverse(covs[j]); err != nil {
			return 0, fmt.Errorf("covariance %d is singular: %w", j, err)
		}
		precs[j] = &p
		det, sign := mat.LogDet(covs[j])
		if sign <= 0 {
			return 0, fmt.Errorf("covariance %d is not positive definite", j)
		}
		logNorm[j] = -0.5*float64(dim)*math.Log(2*math.Pi) - 0.5*det + math.Log(weights[j])
	}

	diff := mat.NewVecDense(dim, nil)
	var total float64
	for _, x := range points {
		maxLog := math.Inf(-1)
		logs := make([]float64, k)
		for j := 0; j < k; j++ {
			for d := 0; d < dim; d++ {
				diff.SetVec(d, x[d]-means[j][d])
			}
			logs[j] = logNorm[j] - 0.5*mat.Inner(diff, precs[j], diff)
			if logs[j] > maxLog {
				maxLog = logs[j]
			}
		}
		var sum float64
		for _, l := range logs {
			sum += math.Exp(l - maxLog)
		}
		total += maxLog + math.Log(sum)
	}
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return 0, fmt.Errorf("non-finite likelihood")
	}
	return total, nil
}
