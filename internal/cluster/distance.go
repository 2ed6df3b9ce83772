package cluster

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// DistanceMatrix holds the directional squared Mahalanobis distance
// between every ordered pair of global components. Entry (i, j) measures
// component j's mean from component i's mean under component i's
// effective precision (CovFactor × DOF). The asymmetry is deliberate:
// both directions are kept and the merge gate fires on either one. The
// diagonal is always +Inf, and a rejected pair's entries are pinned to
// +Inf permanently.
type DistanceMatrix struct {
	d [][]float64
}

// NewDistanceMatrix computes all pairwise distances for the state.
// This is the only full recomputation; merges update it incrementally.
func NewDistanceMatrix(st *MixtureState) *DistanceMatrix {
	k := st.NumComponents()
	dm := &DistanceMatrix{d: make([][]float64, k)}
	for i := 0; i < k; i++ {
		dm.d[i] = make([]float64, k)
		for j := 0; j < k; j++ {
			if i == j {
				dm.d[i][j] = math.Inf(1)
				continue
			}
			dm.d[i][j] = mahalanobis(st, i, j)
		}
	}
	return dm
}

// mahalanobis returns the squared distance of component j's mean from
// component i's mean under i's effective precision.
func mahalanobis(st *MixtureState, i, j int) float64 {
	dim := st.Dim
	diff := mat.NewVecDense(dim, nil)
	for d := 0; d < dim; d++ {
		diff.SetVec(d, st.Mean[j][d]-st.Mean[i][d])
	}
	var prec mat.Dense
	prec.Scale(st.DOF[i], st.CovFactor[i])
	return mat.Inner(diff, &prec, diff)
}

// Size returns the current component count.
func (dm *DistanceMatrix) Size() int { return len(dm.d) }

// At returns the directional distance from i to j.
func (dm *DistanceMatrix) At(i, j int) float64 { return dm.d[i][j] }

// SetInf pins both directions of a pair to +Inf. Used when a merge test
// rejects the pair; the entries are never reset to a finite value.
func (dm *DistanceMatrix) SetInf(i, j int) {
	dm.d[i][j] = math.Inf(1)
	dm.d[j][i] = math.Inf(1)
}

// Remove deletes row and column k, shifting higher indices down.
func (dm *DistanceMatrix) Remove(k int) {
	dm.d = append(dm.d[:k], dm.d[k+1:]...)
	for i := range dm.d {
		dm.d[i] = append(dm.d[i][:k], dm.d[i][k+1:]...)
	}
}

// Refresh recomputes component k's row and column against the state and
// restores the infinite self-distance. Called after a merge replaces k's
// parameters.
func (dm *DistanceMatrix) Refresh(st *MixtureState, k int) {
	for j := range dm.d {
		if j == k {
			continue
		}
		dm.d[k][j] = mahalanobis(st, k, j)
		dm.d[j][k] = mahalanobis(st, j, k)
	}
	dm.d[k][k] = math.Inf(1)
}

// Candidates returns, in ascending id order, the components whose
// distance to k in either direction is below the gate.
func (dm *DistanceMatrix) Candidates(k int, gate float64) []int {
	var out []int
	for j := range dm.d {
		if j == k {
			continue
		}
		if dm.d[k][j] < gate || dm.d[j][k] < gate {
			out = append(out, j)
		}
	}
	return out
}
