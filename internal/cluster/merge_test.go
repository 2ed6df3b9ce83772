package cluster

import (
	"errors"
	"math"
	"testing"
)

// pooledMeanTester accepts every candidate pair and merges it into a
// single component at the responsibility-weighted pooled mean. Useful for
// exercising the engine's bookkeeping without a real model comparison.
type pooledMeanTester struct {
	calls int
}

func (f *pooledMeanTester) TestMerge(features [][]float64, st *MixtureState, resp [][]float64, stats *SuffStats) (*MixtureState, *SuffStats, bool, error) {
	f.calls++
	dim := st.Dim
	var n float64
	pooled := make([]float64, dim)
	for j := range stats.N {
		n += stats.N[j]
		for d := 0; d < dim; d++ {
			pooled[d] += stats.SumX[j][d]
		}
	}
	for d := 0; d < dim; d++ {
		pooled[d] /= n
	}
	return identityState([][]float64{pooled}), nil, true, nil
}

type rejectingTester struct{ calls int }

func (f *rejectingTester) TestMerge([][]float64, *MixtureState, [][]float64, *SuffStats) (*MixtureState, *SuffStats, bool, error) {
	f.calls++
	return nil, nil, false, nil
}

type failingTester struct{}

func (failingTester) TestMerge([][]float64, *MixtureState, [][]float64, *SuffStats) (*MixtureState, *SuffStats, bool, error) {
	return nil, nil, false, errors.New("singular precision")
}

// mergeFixture builds a 3-component collection where components 0 and 1
// sit one unit apart and component 2 sits far from both.
func mergeFixture(t *testing.T) *GlobalCollection {
	t.Helper()
	g := &GlobalCollection{}
	err := g.Fold(channelResult(0,
		[][]float64{{0, 0}, {1, 0}, {10, 0}},
		[][]float64{
			{1, 0, 0},
			{0.5, 0.5, 0},
			{0, 1, 0},
			{0, 0, 1},
			{0, 0, 1},
		},
		[]int64{1, 2, 3, 4, 5}))
	if err != nil {
		t.Fatalf("Fold: %v", err)
	}
	return g
}

func totalMass(r SparseResp) float64 {
	var m float64
	for _, e := range r {
		m += e.P
	}
	return m
}

func TestConsolidate_MergesClosePairOnly(t *testing.T) {
	g := mergeFixture(t)
	massBefore := totalMass(g.Resp)

	tester := &pooledMeanTester{}
	engine := NewMergeEngine(tester, DefaultConfig(1), nil)
	if err := engine.Consolidate(g); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}

	if got := g.NumComponents(); got != 2 {
		t.Fatalf("components after consolidation = %d, want 2", got)
	}
	if tester.calls != 1 {
		t.Errorf("merge tester called %d times, want 1", tester.calls)
	}
	if len(g.OriginChannel) != 2 {
		t.Errorf("origin channel length = %d, want 2", len(g.OriginChannel))
	}
	if got := totalMass(g.Resp); math.Abs(got-massBefore) > 1e-12 {
		t.Errorf("responsibility mass changed: %f -> %f", massBefore, got)
	}
	// The survivor absorbs both columns' mass; the far component keeps
	// its own, renumbered down to 1.
	if got := g.Resp.ColumnMass(0); math.Abs(got-3) > 1e-12 {
		t.Errorf("survivor column mass = %f, want 3", got)
	}
	if got := g.Resp.ColumnMass(1); math.Abs(got-2) > 1e-12 {
		t.Errorf("far column mass = %f, want 2", got)
	}
	// Pooled mean of the pair's member spikes at x=1,2,3 is 2.
	if got := g.Params.Mean[0][0]; math.Abs(got-2) > 1e-12 {
		t.Errorf("merged mean x = %f, want 2", got)
	}
}

func TestConsolidate_RejectionLeavesPairApart(t *testing.T) {
	g := mergeFixture(t)

	tester := &rejectingTester{}
	engine := NewMergeEngine(tester, DefaultConfig(1), nil)
	if err := engine.Consolidate(g); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}

	if got := g.NumComponents(); got != 3 {
		t.Errorf("components after rejection = %d, want 3", got)
	}
	// The candidate pair is tested once from each side at most; the
	// rejection pins both directions so the engine terminates.
	if tester.calls != 1 {
		t.Errorf("merge tester called %d times, want 1", tester.calls)
	}
}

func TestConsolidate_TesterErrorTreatedAsRejection(t *testing.T) {
	g := mergeFixture(t)

	engine := NewMergeEngine(failingTester{}, DefaultConfig(1), nil)
	if err := engine.Consolidate(g); err != nil {
		t.Fatalf("Consolidate returned error for failing tester: %v", err)
	}
	if got := g.NumComponents(); got != 3 {
		t.Errorf("components after failed tests = %d, want 3", got)
	}
}

func TestConsolidate_EmptyCollection(t *testing.T) {
	engine := NewMergeEngine(&rejectingTester{}, DefaultConfig(1), nil)
	if err := engine.Consolidate(&GlobalCollection{}); err != nil {
		t.Errorf("Consolidate on empty collection: %v", err)
	}
}
