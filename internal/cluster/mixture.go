package cluster

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// SpikeRef identifies one detected event: its sample time in the source
// recording and the channel whose amplitude was maximal.
type SpikeRef struct {
	Time    int64
	Channel int
}

// MixtureState is the component-indexed parameter aggregate produced by a
// mixture fit. Every slice is parallel: index k addresses one component.
// The effective precision of component k is CovFactor[k] scaled by DOF[k].
//
// Responsibilities are carried separately (dense per channel, sparse
// globally); see SparseResp.
type MixtureState struct {
	Dim          int
	Mean         [][]float64  // [k][d]
	CovFactor    []*mat.Dense // Vhat: precision factor, Dim x Dim
	CovFactorInv []*mat.Dense // inverse of CovFactor
	DOF          []float64    // degrees of freedom
	PrecScale    []float64    // precision-scale pseudo-count
	PseudoCount  []float64    // mixing pseudo-count
}

// NumComponents returns the number of components in the state.
func (st *MixtureState) NumComponents() int {
	return len(st.Mean)
}

// validate checks that all parallel arrays agree on the component count
// and that parameters are finite.
func (st *MixtureState) validate() error {
	k := len(st.Mean)
	if len(st.CovFactor) != k || len(st.CovFactorInv) != k ||
		len(st.DOF) != k || len(st.PrecScale) != k || len(st.PseudoCount) != k {
		return fmt.Errorf("mixture state arrays disagree on component count %d", k)
	}
	for i := 0; i < k; i++ {
		for _, v := range st.Mean[i] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("component %d has non-finite mean", i)
			}
		}
		if math.IsNaN(st.DOF[i]) || st.DOF[i] <= 0 {
			return fmt.Errorf("component %d has invalid degrees of freedom", i)
		}
	}
	return nil
}

// Gather returns a new state holding copies of the selected components,
// in the given order. It never aliases the receiver's storage.
func (st *MixtureState) Gather(idx []int) *MixtureState {
	out := &MixtureState{
		Dim:          st.Dim,
		Mean:         make([][]float64, len(idx)),
		CovFactor:    make([]*mat.Dense, len(idx)),
		CovFactorInv: make([]*mat.Dense, len(idx)),
		DOF:          make([]float64, len(idx)),
		PrecScale:    make([]float64, len(idx)),
		PseudoCount:  make([]float64, len(idx)),
	}
	for i, k := range idx {
		out.Mean[i] = append([]float64(nil), st.Mean[k]...)
		out.CovFactor[i] = mat.DenseCopyOf(st.CovFactor[k])
		out.CovFactorInv[i] = mat.DenseCopyOf(st.CovFactorInv[k])
		out.DOF[i] = st.DOF[k]
		out.PrecScale[i] = st.PrecScale[k]
		out.PseudoCount[i] = st.PseudoCount[k]
	}
	return out
}

// Append concatenates other's components onto the receiver along the
// component axis. Parameter matrices are copied, not aliased.
func (st *MixtureState) Append(other *MixtureState) error {
	if st.Dim != other.Dim {
		return fmt.Errorf("cannot append mixture of dim %d to dim %d", other.Dim, st.Dim)
	}
	for k := 0; k < other.NumComponents(); k++ {
		st.Mean = append(st.Mean, append([]float64(nil), other.Mean[k]...))
		st.CovFactor = append(st.CovFactor, mat.DenseCopyOf(other.CovFactor[k]))
		st.CovFactorInv = append(st.CovFactorInv, mat.DenseCopyOf(other.CovFactorInv[k]))
		st.DOF = append(st.DOF, other.DOF[k])
		st.PrecScale = append(st.PrecScale, other.PrecScale[k])
		st.PseudoCount = append(st.PseudoCount, other.PseudoCount[k])
	}
	return nil
}

// Delete removes component k from every parallel array. Components above
// k shift down by one.
func (st *MixtureState) Delete(k int) {
	st.Mean = append(st.Mean[:k], st.Mean[k+1:]...)
	st.CovFactor = append(st.CovFactor[:k], st.CovFactor[k+1:]...)
	st.CovFactorInv = append(st.CovFactorInv[:k], st.CovFactorInv[k+1:]...)
	st.DOF = append(st.DOF[:k], st.DOF[k+1:]...)
	st.PrecScale = append(st.PrecScale[:k], st.PrecScale[k+1:]...)
	st.PseudoCount = append(st.PseudoCount[:k], st.PseudoCount[k+1:]...)
}

// replace overwrites component k's parameters with component 0 of src.
func (st *MixtureState) replace(k int, src *MixtureState) {
	st.Mean[k] = append([]float64(nil), src.Mean[0]...)
	st.CovFactor[k] = mat.DenseCopyOf(src.CovFactor[0])
	st.CovFactorInv[k] = mat.DenseCopyOf(src.CovFactorInv[0])
	st.DOF[k] = src.DOF[0]
	st.PrecScale[k] = src.PrecScale[0]
	st.PseudoCount[k] = src.PseudoCount[0]
}

// ThresholdResponsibilities zeroes entries below floor and renormalizes
// each row to sum to 1 over the survivors. A row with no survivors stays
// all-zero: the spike is unassigned, never forced onto a component.
func ThresholdResponsibilities(resp [][]float64, floor float64) {
	for i := range resp {
		var sum float64
		for j, v := range resp[i] {
			if v < floor {
				resp[i][j] = 0
			} else {
				sum += v
			}
		}
		if sum <= 0 {
			continue // spike dropped
		}
		for j := range resp[i] {
			resp[i][j] /= sum
		}
	}
}

// PruneEmpty keeps only components whose responsibility column sum
// exceeds minMass. It returns the pruned state, the responsibility matrix
// restricted to surviving columns, and the surviving component count.
func PruneEmpty(st *MixtureState, resp [][]float64, minMass float64) (*MixtureState, [][]float64, int) {
	k := st.NumComponents()
	keep := make([]int, 0, k)
	for j := 0; j < k; j++ {
		var mass float64
		for i := range resp {
			mass += resp[i][j]
		}
		if mass > minMass {
			keep = append(keep, j)
		}
	}
	if len(keep) == k {
		return st, resp, k
	}
	pruned := st.Gather(keep)
	out := make([][]float64, len(resp))
	for i := range resp {
		row := make([]float64, len(keep))
		for j, col := range keep {
			row[j] = resp[i][col]
		}
		out[i] = row
	}
	return pruned, out, len(keep)
}
