// Package vbmix provides a variational Bayes Gaussian mixture fitter for
// masked, grouped spike features. It satisfies the engine's fitting and
// merge-test contracts: responsibilities plus per-component mean,
// precision factor and inverse, degrees of freedom, precision scale and
// mixing pseudo-count. The engine depends only on those contracts; any
// fitter exposing them can replace this one.
package vbmix

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/mathext"

	"github.com/banshee-data/spikesort/internal/cluster"
)

// Options control the variational fit.
type Options struct {
	// MaxComponents is the initial component count; empty components are
	// pruned as the fit converges.
	MaxComponents int
	// MaxIterations bounds the variational update loop.
	MaxIterations int
	// Tolerance ends the loop once the largest responsibility change
	// between iterations falls below it.
	Tolerance float64
	// PriorAlpha, PriorBeta and PriorDOFExtra set the Dirichlet
	// pseudo-count, precision-scale and Wishart degrees-of-freedom priors.
	// A small PriorAlpha drives surplus components toward zero mass.
	PriorAlpha    float64
	PriorBeta     float64
	PriorDOFExtra float64
	// PruneMass drops components whose weighted mass falls below it once
	// the fit has had a few iterations to settle.
	PruneMass float64
}

// DefaultOptions returns the fit options the sorter was validated with.
func DefaultOptions() Options {
	return Options{
		MaxComponents: 16,
		MaxIterations: 100,
		Tolerance:     1e-5,
		PriorAlpha:    0.05,
		PriorBeta:     0.01,
		PriorDOFExtra: 1,
		PruneMass:     1.0,
	}
}

// Sorter fits variational Gaussian mixtures and evaluates merge tests.
// Initialization is deterministic, so fits are reproducible.
type Sorter struct {
	opts Options
}

// New returns a Sorter with the given options.
func New(opts Options) *Sorter {
	return &Sorter{opts: opts}
}

// pruneWarmup is how many iterations run before empty components are
// dropped; pruning earlier can kill components the updates still need.
const pruneWarmup = 3

// Fit clusters one channel's features. mask weights each spike's
// contribution to the sufficient statistics; group collapses grouped
// spikes into one weighted pseudo-observation before fitting, and the
// fitted responsibilities are expanded back to every spike.
func (s *Sorter) Fit(features [][]float64, mask []float64, group []int) (*cluster.MixtureState, [][]float64, error) {
	n := len(features)
	if n == 0 {
		return nil, nil, fmt.Errorf("no features to fit")
	}
	if len(mask) != n || len(group) != n {
		return nil, nil, fmt.Errorf("mask/group lengths (%d,%d) do not match %d features", len(mask), len(group), n)
	}
	dim := len(features[0])

	points, weights, memberOf := collapseGroups(features, mask, group)
	np := len(points)

	k := s.opts.MaxComponents
	if k > np {
		k = np
	}
	if k < 1 {
		k = 1
	}

	resp := blockInit(points, k)
	var state *fitState
	for iter := 0; iter < s.opts.MaxIterations; iter++ {
		var pruned bool
		if iter >= pruneWarmup {
			resp, pruned = pruneColumns(resp, weights, s.opts.PruneMass)
		}
		st, err := s.updateParams(points, weights, resp, dim)
		if err != nil {
			return nil, nil, err
		}
		state = st
		next := s.updateResponsibilities(points, st)
		delta := maxDelta(resp, next)
		resp = next
		if !pruned && delta < s.opts.Tolerance && iter >= pruneWarmup {
			break
		}
	}

	// Expand pseudo-point responsibilities back to the spike axis.
	full := make([][]float64, n)
	for i := 0; i < n; i++ {
		full[i] = append([]float64(nil), resp[memberOf[i]]...)
	}
	return state.mixture(dim), full, nil
}

// fitState holds one iteration's variational parameters.
type fitState struct {
	alpha   []float64
	beta    []float64
	nu      []float64
	mean    [][]float64
	w       []*mat.Dense // Wishart scale (precision factor)
	wInv    []*mat.Dense
	logDetW []float64
}

// mixture converts the fit state to the engine's parameter aggregate.
func (st *fitState) mixture(dim int) *cluster.MixtureState {
	k := len(st.mean)
	out := &cluster.MixtureState{
		Dim:          dim,
		Mean:         make([][]float64, k),
		CovFactor:    make([]*mat.Dense, k),
		CovFactorInv: make([]*mat.Dense, k),
		DOF:          append([]float64(nil), st.nu...),
		PrecScale:    append([]float64(nil), st.beta...),
		PseudoCount:  append([]float64(nil), st.alpha...),
	}
	for j := 0; j < k; j++ {
		out.Mean[j] = append([]float64(nil), st.mean[j]...)
		out.CovFactor[j] = mat.DenseCopyOf(st.w[j])
		out.CovFactorInv[j] = mat.DenseCopyOf(st.wInv[j])
	}
	return out
}

// updateParams recomputes the variational parameters from the weighted
// responsibilities (the M-like step).
func (s *Sorter) updateParams(points [][]float64, weights []float64, resp [][]float64, dim int) (*fitState, error) {
	k := len(resp[0])
	nu0 := float64(dim) + s.opts.PriorDOFExtra

	m0 := make([]float64, dim)
	var wTotal float64
	for i, x := range points {
		for d, v := range x {
			m0[d] += weights[i] * v
		}
		wTotal += weights[i]
	}
	for d := range m0 {
		m0[d] /= wTotal
	}

	st := &fitState{
		alpha:   make([]float64, k),
		beta:    make([]float64, k),
		nu:      make([]float64, k),
		mean:    make([][]float64, k),
		w:       make([]*mat.Dense, k),
		wInv:    make([]*mat.Dense, k),
		logDetW: make([]float64, k),
	}

	for j := 0; j < k; j++ {
		var nk float64
		xbar := make([]float64, dim)
		for i, x := range points {
			r := weights[i] * resp[i][j]
			nk += r
			for d, v := range x {
				xbar[d] += r * v
			}
		}
		if nk < 1e-10 {
			nk = 1e-10
		}
		for d := range xbar {
			xbar[d] /= nk
		}

		scatter := mat.NewDense(dim, dim, nil)
		for i, x := range points {
			r := weights[i] * resp[i][j]
			if r == 0 {
				continue
			}
			for a := 0; a < dim; a++ {
				for b := 0; b < dim; b++ {
					scatter.Set(a, b, scatter.At(a, b)+r*(x[a]-xbar[a])*(x[b]-xbar[b]))
				}
			}
		}

		st.alpha[j] = s.opts.PriorAlpha + nk
		st.beta[j] = s.opts.PriorBeta + nk
		st.nu[j] = nu0 + nk
		st.mean[j] = make([]float64, dim)
		for d := 0; d < dim; d++ {
			st.mean[j][d] = (s.opts.PriorBeta*m0[d] + nk*xbar[d]) / st.beta[j]
		}

		wInv := mat.NewDense(dim, dim, nil)
		shrink := s.opts.PriorBeta * nk / st.beta[j]
		for a := 0; a < dim; a++ {
			for b := 0; b < dim; b++ {
				v := scatter.At(a, b) + shrink*(xbar[a]-m0[a])*(xbar[b]-m0[b])
				if a == b {
					v += 1 // Wishart prior scale: identity
				}
				wInv.Set(a, b, v)
			}
		}
		var w mat.Dense
		if err := w.Inverse(wInv); err != nil {
			return nil, fmt.Errorf("component %d precision factor is singular: %w", j, err)
		}
		st.wInv[j] = wInv
		st.w[j] = &w
		det, sign := mat.LogDet(&w)
		if sign <= 0 {
			return nil, fmt.Errorf("component %d precision factor is not positive definite", j)
		}
		st.logDetW[j] = det
	}
	return st, nil
}

// updateResponsibilities computes the expected log joint per component
// and renormalizes per point (the E-like step).
func (s *Sorter) updateResponsibilities(points [][]float64, st *fitState) [][]float64 {
	k := len(st.mean)
	dim := len(points[0])

	var alphaSum float64
	for _, a := range st.alpha {
		alphaSum += a
	}
	psiSum := mathext.Digamma(alphaSum)

	expLog := make([]float64, k)
	for j := 0; j < k; j++ {
		var psiDet float64
		for d := 0; d < dim; d++ {
			psiDet += mathext.Digamma((st.nu[j] - float64(d)) / 2)
		}
		expLog[j] = mathext.Digamma(st.alpha[j]) - psiSum +
			0.5*(psiDet+st.logDetW[j]) - float64(dim)/(2*st.beta[j])
	}

	diff := mat.NewVecDense(dim, nil)
	out := make([][]float64, len(points))
	for i, x := range points {
		row := make([]float64, k)
		maxLog := math.Inf(-1)
		for j := 0; j < k; j++ {
			for d := 0; d < dim; d++ {
				diff.SetVec(d, x[d]-st.mean[j][d])
			}
			quad := st.nu[j] * mat.Inner(diff, st.w[j], diff)
			row[j] = expLog[j] - 0.5*quad
			if row[j] > maxLog {
				maxLog = row[j]
			}
		}
		var sum float64
		for j := range row {
			row[j] = math.Exp(row[j] - maxLog)
			sum += row[j]
		}
		for j := range row {
			row[j] /= sum
		}
		out[i] = row
	}
	return out
}

// collapseGroups folds grouped spikes into weighted pseudo-observations.
// Singleton groups (the location-feature mode) pass through unchanged.
func collapseGroups(features [][]float64, mask []float64, group []int) (points [][]float64, weights []float64, memberOf []int) {
	dim := len(features[0])
	index := make(map[int]int)
	memberOf = make([]int, len(features))
	for i, g := range group {
		p, ok := index[g]
		if !ok {
			p = len(points)
			index[g] = p
			points = append(points, make([]float64, dim))
			weights = append(weights, 0)
		}
		w := mask[i]
		if w <= 0 {
			w = 1e-6
		}
		for d, v := range features[i] {
			points[p][d] += w * v
		}
		weights[p] += w
		memberOf[i] = p
	}
	for p := range points {
		for d := range points[p] {
			points[p][d] /= weights[p]
		}
	}
	return points, weights, memberOf
}

// blockInit deterministically seeds responsibilities by sorting points
// along their first coordinate and hard-assigning contiguous blocks, with
// light smoothing so no component starts empty.
func blockInit(points [][]float64, k int) [][]float64 {
	n := len(points)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return points[order[a]][0] < points[order[b]][0]
	})

	const smooth = 0.05
	resp := make([][]float64, n)
	for rank, i := range order {
		row := make([]float64, k)
		block := rank * k / n
		if block >= k {
			block = k - 1
		}
		for j := range row {
			row[j] = smooth / float64(k)
		}
		row[block] += 1 - smooth
		resp[i] = row
	}
	return resp
}

// pruneColumns drops components with negligible weighted mass and
// renormalizes the surviving rows.
func pruneColumns(resp [][]float64, weights []float64, minMass float64) ([][]float64, bool) {
	k := len(resp[0])
	mass := make([]float64, k)
	for i, row := range resp {
		for j, r := range row {
			mass[j] += weights[i] * r
		}
	}
	var keep []int
	for j, m := range mass {
		if m >= minMass {
			keep = append(keep, j)
		}
	}
	if len(keep) == k {
		return resp, false
	}
	if len(keep) == 0 {
		// Never prune everything; keep the heaviest component.
		best := 0
		for j := 1; j < k; j++ {
			if mass[j] > mass[best] {
				best = j
			}
		}
		keep = []int{best}
	}
	out := make([][]float64, len(resp))
	for i, row := range resp {
		next := make([]float64, len(keep))
		var sum float64
		for j, col := range keep {
			next[j] = row[col]
			sum += next[j]
		}
		if sum > 0 {
			for j := range next {
				next[j] /= sum
			}
		} else {
			for j := range next {
				next[j] = 1 / float64(len(next))
			}
		}
		out[i] = next
	}
	return out, true
}

func maxDelta(a, b [][]float64) float64 {
	if len(a) != len(b) || len(a) == 0 || len(a[0]) != len(b[0]) {
		return math.Inf(1)
	}
	var worst float64
	for i := range a {
		for j := range a[i] {
			if d := math.Abs(a[i][j] - b[i][j]); d > worst {
				worst = d
			}
		}
	}
	return worst
}
