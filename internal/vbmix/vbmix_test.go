package vbmix

import (
	"math"
	"reflect"
	"testing"
)

// clump generates n deterministic points scattered around (cx, cy) with
// roughly unit spread.
func clump(n int, cx, cy float64) [][]float64 {
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		out[i] = []float64{
			cx + math.Sin(float64(i)*1.7),
			cy + math.Cos(float64(i)*2.3),
		}
	}
	return out
}

func unitMaskSingletonGroups(n int) ([]float64, []int) {
	mask := make([]float64, n)
	group := make([]int, n)
	for i := range mask {
		mask[i] = 1
		group[i] = i
	}
	return mask, group
}

func TestFit_SeparatesTwoClumps(t *testing.T) {
	features := append(clump(30, 0, 0), clump(30, 20, 0)...)
	mask, group := unitMaskSingletonGroups(len(features))

	opts := DefaultOptions()
	opts.MaxComponents = 2
	s := New(opts)

	state, resp, err := s.Fit(features, mask, group)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if len(resp) != len(features) {
		t.Fatalf("responsibility rows = %d, want %d", len(resp), len(features))
	}
	k := state.NumComponents()
	if k != len(resp[0]) {
		t.Fatalf("state has %d components but responsibility width is %d", k, len(resp[0]))
	}

	for i, row := range resp {
		var sum float64
		for _, v := range row {
			sum += v
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("row %d sums to %f", i, sum)
		}
	}

	first := argmaxRow(resp[0])
	second := argmaxRow(resp[30])
	if first == second {
		t.Fatal("both clumps assigned the same component")
	}
	for i := 0; i < 30; i++ {
		if argmaxRow(resp[i]) != first {
			t.Errorf("point %d of the first clump left its component", i)
		}
		if argmaxRow(resp[30+i]) != second {
			t.Errorf("point %d of the second clump left its component", 30+i)
		}
	}
}

func TestFit_Deterministic(t *testing.T) {
	features := append(clump(20, 0, 0), clump(20, 12, 3)...)
	mask, group := unitMaskSingletonGroups(len(features))
	s := New(DefaultOptions())

	_, resp1, err := s.Fit(features, mask, group)
	if err != nil {
		t.Fatalf("first Fit: %v", err)
	}
	_, resp2, err := s.Fit(features, mask, group)
	if err != nil {
		t.Fatalf("second Fit: %v", err)
	}
	if !reflect.DeepEqual(resp1, resp2) {
		t.Error("repeated fits produced different responsibilities")
	}
}

func TestFit_GroupedSpikesShareResponsibilities(t *testing.T) {
	features := append(clump(10, 0, 0), clump(10, 15, 0)...)
	mask, group := unitMaskSingletonGroups(len(features))
	// Spikes 0 and 1 form one coreset group.
	group[1] = group[0]

	opts := DefaultOptions()
	opts.MaxComponents = 2
	_, resp, err := New(opts).Fit(features, mask, group)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if !reflect.DeepEqual(resp[0], resp[1]) {
		t.Errorf("grouped spikes got different responsibilities: %v vs %v", resp[0], resp[1])
	}
}

func TestFit_RejectsBadInput(t *testing.T) {
	s := New(DefaultOptions())
	if _, _, err := s.Fit(nil, nil, nil); err == nil {
		t.Error("Fit accepted empty features")
	}
	if _, _, err := s.Fit([][]float64{{1, 2}}, []float64{1, 1}, []int{0}); err == nil {
		t.Error("Fit accepted mismatched mask length")
	}
}

func TestCollapseGroups(t *testing.T) {
	features := [][]float64{{0, 0}, {2, 0}, {10, 4}}
	mask := []float64{1, 3, 1}
	group := []int{7, 7, 9}

	points, weights, memberOf := collapseGroups(features, mask, group)
	if len(points) != 2 {
		t.Fatalf("collapsed to %d points, want 2", len(points))
	}
	// Weighted mean of the first group: (0*1 + 2*3) / 4.
	if math.Abs(points[0][0]-1.5) > 1e-12 || points[0][1] != 0 {
		t.Errorf("group point = %v, want [1.5 0]", points[0])
	}
	if weights[0] != 4 || weights[1] != 1 {
		t.Errorf("weights = %v, want [4 1]", weights)
	}
	if !reflect.DeepEqual(memberOf, []int{0, 0, 1}) {
		t.Errorf("memberOf = %v", memberOf)
	}
}

func TestBlockInit_ContiguousAlongFirstCoordinate(t *testing.T) {
	points := [][]float64{{5, 0}, {0, 0}, {9, 0}, {1, 0}}
	resp := blockInit(points, 2)

	// Points 1 and 3 (smallest x) dominate block 0; points 0 and 2 block 1.
	for _, i := range []int{1, 3} {
		if argmaxRow(resp[i]) != 0 {
			t.Errorf("point %d not seeded into the low block", i)
		}
	}
	for _, i := range []int{0, 2} {
		if argmaxRow(resp[i]) != 1 {
			t.Errorf("point %d not seeded into the high block", i)
		}
	}
	for i, row := range resp {
		var sum float64
		for _, v := range row {
			sum += v
			if v <= 0 {
				t.Errorf("row %d has a non-positive entry; smoothing missing", i)
			}
		}
		if math.Abs(sum-1) > 1e-12 {
			t.Errorf("row %d sums to %f", i, sum)
		}
	}
}

func TestPruneColumns(t *testing.T) {
	resp := [][]float64{
		{0.9, 0.1, 0},
		{0.8, 0.2, 0},
		{0.1, 0.9, 0},
	}
	weights := []float64{1, 1, 1}

	out, pruned := pruneColumns(resp, weights, 0.5)
	if !pruned {
		t.Fatal("empty column survived pruning")
	}
	if len(out[0]) != 2 {
		t.Fatalf("pruned width = %d, want 2", len(out[0]))
	}
	for i, row := range out {
		var sum float64
		for _, v := range row {
			sum += v
		}
		if math.Abs(sum-1) > 1e-12 {
			t.Errorf("row %d sums to %f after pruning", i, sum)
		}
	}

	if _, pruned := pruneColumns(out, weights, 0.5); pruned {
		t.Error("pruning reported work on a matrix with no empty columns")
	}

	// A threshold above every column's mass keeps the heaviest component
	// rather than pruning everything.
	out, _ = pruneColumns(resp, weights, 100)
	if len(out[0]) != 1 {
		t.Errorf("width = %d after over-aggressive prune, want 1", len(out[0]))
	}
}

func argmaxRow(row []float64) int {
	best := 0
	for j, v := range row {
		if v > row[best] {
			best = j
		}
	}
	return best
}
