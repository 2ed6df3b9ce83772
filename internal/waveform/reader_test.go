package waveform

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testParams() Params {
	return Params{Channels: 2, SampleRate: 30000, DType: "float32", DataOrder: "samples"}
}

// writeRecording writes nFrames interleaved frames where the sample at
// (frame, channel) is frame*10 + channel, so segment contents are easy
// to predict exactly.
func writeRecording(t *testing.T, nFrames, channels int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "standardized.bin")
	buf := make([]byte, nFrames*channels*4)
	for f := 0; f < nFrames; f++ {
		for ch := 0; ch < channels; ch++ {
			v := float32(f*10 + ch)
			off := (f*channels + ch) * 4
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
		}
	}
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func TestReader_LoadExactSegment(t *testing.T) {
	path := writeRecording(t, 100, 2)
	r, err := NewReader(path, testParams(), 2, nil, WithChunkSeconds(1))
	require.NoError(t, err)
	require.EqualValues(t, 100, r.Frames())

	segs, err := r.Load(context.Background(), []int64{10})
	require.NoError(t, err)
	require.Len(t, segs, 1)
	require.Len(t, segs[0], 2)
	require.Len(t, segs[0][0], 5)

	for ch := 0; ch < 2; ch++ {
		for s := 0; s < 5; s++ {
			frame := 10 + s - 2
			require.Equal(t, float64(frame*10+ch), segs[0][ch][s],
				"channel %d sample %d", ch, s)
		}
	}
}

func TestReader_ZeroPadsRecordingEdges(t *testing.T) {
	path := writeRecording(t, 100, 2)
	r, err := NewReader(path, testParams(), 2, nil, WithChunkSeconds(1))
	require.NoError(t, err)

	segs, err := r.Load(context.Background(), []int64{0, 99})
	require.NoError(t, err)

	// Time 0: the two leading samples fall before the recording.
	require.Equal(t, 0.0, segs[0][0][0])
	require.Equal(t, 0.0, segs[0][0][1])
	require.Equal(t, 0.0, segs[0][0][2]) // frame 0, channel 0
	require.Equal(t, 10.0, segs[0][0][3])

	// Time 99: the two trailing samples fall past the recording.
	require.Equal(t, 980.0, segs[1][0][1])
	require.Equal(t, 990.0, segs[1][0][2])
	require.Equal(t, 0.0, segs[1][0][3])
	require.Equal(t, 0.0, segs[1][0][4])
}

func TestReader_FullyOutOfRangeIsAllZeros(t *testing.T) {
	path := writeRecording(t, 100, 2)
	r, err := NewReader(path, testParams(), 2, nil, WithChunkSeconds(1))
	require.NoError(t, err)

	segs, err := r.Load(context.Background(), []int64{-500, 50_000})
	require.NoError(t, err)
	for _, seg := range segs {
		for _, row := range seg {
			for _, v := range row {
				require.Equal(t, 0.0, v)
			}
		}
	}
}

func TestReader_ParallelWorkersAcrossChunks(t *testing.T) {
	path := writeRecording(t, 1000, 2)
	p := testParams()
	p.SampleRate = 100 // 1-second chunks of 100 frames at this rate
	r, err := NewReader(path, p, 2, nil, WithChunkSeconds(1), WithWorkers(4))
	require.NoError(t, err)

	times := []int64{5, 150, 420, 999}
	segs, err := r.Load(context.Background(), times)
	require.NoError(t, err)
	for i, tm := range times {
		require.Equal(t, float64(tm*10), segs[i][0][2], "center sample of spike %d", i)
	}
}

func TestReader_CancelledContext(t *testing.T) {
	path := writeRecording(t, 100, 2)
	r, err := NewReader(path, testParams(), 2, nil, WithChunkSeconds(1))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Load(ctx, []int64{10})
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewReader_RejectsBadWindow(t *testing.T) {
	path := writeRecording(t, 10, 2)
	_, err := NewReader(path, testParams(), 0, nil)
	require.Error(t, err)
	_, err = NewReader(path, testParams(), DefaultBufferSamples+1, nil)
	require.Error(t, err)
	_, err = NewReader(filepath.Join(t.TempDir(), "missing.bin"), testParams(), 2, nil)
	require.Error(t, err)
}
