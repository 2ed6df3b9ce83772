package cluster

import (
	"math"
	"reflect"
	"testing"
)

func TestSparsifyResp_SkipsZeroEntries(t *testing.T) {
	dense := [][]float64{
		{0.7, 0.3},
		{0, 0}, // unassigned spike
		{0, 1},
	}
	sparse := SparsifyResp(dense)
	if len(sparse) != 3 {
		t.Fatalf("expected 3 triplets, got %d", len(sparse))
	}
	for _, e := range sparse {
		if e.Spike == 1 {
			t.Error("unassigned spike produced a triplet")
		}
	}
}

func TestSparseResp_MemberSpikes(t *testing.T) {
	r := SparseResp{
		{Spike: 4, Component: 0, P: 0.5},
		{Spike: 1, Component: 1, P: 1},
		{Spike: 4, Component: 1, P: 0.5},
		{Spike: 2, Component: 2, P: 1},
	}
	got := r.MemberSpikes(0, 1)
	want := []int{1, 4}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MemberSpikes = %v, want %v", got, want)
	}
}

func TestSparseResp_MergeColumns(t *testing.T) {
	r := SparseResp{
		{Spike: 0, Component: 0, P: 0.6},
		{Spike: 0, Component: 2, P: 0.4},
		{Spike: 1, Component: 2, P: 1},
		{Spike: 2, Component: 3, P: 1},
	}
	massBefore := r.ColumnMass(0) + r.ColumnMass(2)

	merged := r.MergeColumns(0, 2)

	if got := merged.ColumnMass(0); math.Abs(got-massBefore) > 1e-12 {
		t.Errorf("merged column mass = %f, want %f", got, massBefore)
	}
	// Component 3 shifts down to fill the removed index.
	if got := merged.ColumnMass(2); got != 1 {
		t.Errorf("shifted column mass = %f, want 1", got)
	}
	for _, e := range merged {
		if e.Component == 3 {
			t.Error("component id above the removed index did not shift down")
		}
	}
	// Spike 0 held mass under both components; it must end with one triplet.
	var spike0 int
	for _, e := range merged {
		if e.Spike == 0 {
			spike0++
		}
	}
	if spike0 != 1 {
		t.Errorf("spike 0 has %d triplets after merge, want 1", spike0)
	}
}

func TestSparseResp_ShiftAndMaxIDs(t *testing.T) {
	r := SparseResp{
		{Spike: 0, Component: 0, P: 1},
		{Spike: 3, Component: 1, P: 1},
	}
	r.Shift(10, 5)
	maxSpike, maxComponent := r.MaxIDs()
	if maxSpike != 13 || maxComponent != 6 {
		t.Errorf("MaxIDs = (%d,%d), want (13,6)", maxSpike, maxComponent)
	}
}

func TestSparseResp_Assignments(t *testing.T) {
	r := SparseResp{
		{Spike: 0, Component: 0, P: 0.3},
		{Spike: 0, Component: 1, P: 0.7},
		{Spike: 1, Component: 0, P: 1},
	}
	got := r.Assignments()
	if got[0] != 1 || got[1] != 0 {
		t.Errorf("Assignments = %v", got)
	}
	if _, ok := got[2]; ok {
		t.Error("assignment exists for spike with no responsibility")
	}
}
