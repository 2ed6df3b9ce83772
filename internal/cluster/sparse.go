package cluster

import "sort"

// RespEntry is one retained (spike, component) → probability triplet.
type RespEntry struct {
	Spike     int
	Component int
	P         float64
}

// SparseResp is the sparse responsibility relation used for global
// storage. Per-channel fits work on dense matrices; SparsifyResp converts
// at the aggregation boundary.
type SparseResp []RespEntry

// SparsifyResp converts a dense responsibility matrix to triplets,
// dropping zero entries. Rows that were zeroed by thresholding simply
// produce no triplets: the spike stays unassigned.
func SparsifyResp(dense [][]float64) SparseResp {
	var out SparseResp
	for i, row := range dense {
		for j, p := range row {
			if p > 0 {
				out = append(out, RespEntry{Spike: i, Component: j, P: p})
			}
		}
	}
	return out
}

// Densify expands the relation to an nSpikes x nComponents matrix.
func (r SparseResp) Densify(nSpikes, nComponents int) [][]float64 {
	out := make([][]float64, nSpikes)
	for i := range out {
		out[i] = make([]float64, nComponents)
	}
	for _, e := range r {
		out[e.Spike][e.Component] = e.P
	}
	return out
}

// MaxIDs returns the largest spike id and component id present, or
// (-1, -1) for an empty relation.
func (r SparseResp) MaxIDs() (maxSpike, maxComponent int) {
	maxSpike, maxComponent = -1, -1
	for _, e := range r {
		if e.Spike > maxSpike {
			maxSpike = e.Spike
		}
		if e.Component > maxComponent {
			maxComponent = e.Component
		}
	}
	return maxSpike, maxComponent
}

// Shift offsets every spike id and component id in place.
func (r SparseResp) Shift(spikeOffset, componentOffset int) {
	for i := range r {
		r[i].Spike += spikeOffset
		r[i].Component += componentOffset
	}
}

// ColumnMass returns the total responsibility mass of one component.
func (r SparseResp) ColumnMass(component int) float64 {
	var mass float64
	for _, e := range r {
		if e.Component == component {
			mass += e.P
		}
	}
	return mass
}

// MemberSpikes returns the sorted, deduplicated spike ids carrying
// nonzero responsibility under any of the given components.
func (r SparseResp) MemberSpikes(components ...int) []int {
	want := make(map[int]bool, len(components))
	for _, c := range components {
		want[c] = true
	}
	seen := make(map[int]bool)
	var out []int
	for _, e := range r {
		if want[e.Component] && !seen[e.Spike] {
			seen[e.Spike] = true
			out = append(out, e.Spike)
		}
	}
	sort.Ints(out)
	return out
}

// MergeColumns sums component kb's responsibility into ka and removes kb
// from the relation. Component ids above kb shift down by one so the id
// space stays dense. Spikes holding mass under both components end up
// with a single combined triplet.
func (r SparseResp) MergeColumns(ka, kb int) SparseResp {
	combined := make(map[int]float64)
	out := r[:0]
	for _, e := range r {
		switch {
		case e.Component == ka || e.Component == kb:
			combined[e.Spike] += e.P
		case e.Component > kb:
			e.Component--
			out = append(out, e)
		default:
			out = append(out, e)
		}
	}
	spikes := make([]int, 0, len(combined))
	for s := range combined {
		spikes = append(spikes, s)
	}
	sort.Ints(spikes)
	for _, s := range spikes {
		out = append(out, RespEntry{Spike: s, Component: ka, P: combined[s]})
	}
	return out
}

// Assignments returns each spike's highest-probability component as a
// map from spike id to component id. Unassigned spikes are absent.
func (r SparseResp) Assignments() map[int]int {
	best := make(map[int]float64)
	out := make(map[int]int)
	for _, e := range r {
		if p, ok := best[e.Spike]; !ok || e.P > p {
			best[e.Spike] = e.P
			out[e.Spike] = e.Component
		}
	}
	return out
}
