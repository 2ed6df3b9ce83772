package split

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProject_PreservesDominantDirection(t *testing.T) {
	// Points strictly along the direction (1,1,0)/sqrt(2): one projected
	// dimension captures everything, the second collapses to zero.
	ts := []float64{-3, -1, 0, 2, 5}
	X := make([][]float64, len(ts))
	for i, v := range ts {
		X[i] = []float64{v, v, 0}
	}

	scores, err := Project(X, 2)
	require.NoError(t, err)
	require.Len(t, scores, len(ts))

	for i := range scores {
		require.Len(t, scores[i], 2)
		require.InDelta(t, 0, scores[i][1], 1e-9, "second component of point %d", i)
	}
	// Pairwise separations along the leading component match the original
	// geometry up to sign.
	for i := 1; i < len(ts); i++ {
		want := math.Abs(ts[i]-ts[0]) * math.Sqrt2
		got := math.Abs(scores[i][0] - scores[0][0])
		require.InDelta(t, want, got, 1e-9, "separation of points 0 and %d", i)
	}
}

func TestProject_ClampsDimensions(t *testing.T) {
	X := [][]float64{{1, 2}, {3, 4}, {5, 7}}
	scores, err := Project(X, 10)
	require.NoError(t, err)
	require.Len(t, scores[0], 2, "k clamps to the data width")

	scores, err = Project(X[:2], 10)
	require.NoError(t, err)
	require.Len(t, scores[0], 2, "k clamps to the point count")
}

func TestProject_RejectsBadInput(t *testing.T) {
	_, err := Project(nil, 2)
	require.Error(t, err)

	_, err = Project([][]float64{{}}, 2)
	require.Error(t, err)

	_, err = Project([][]float64{{1, 2}, {1}}, 2)
	require.Error(t, err)
}
