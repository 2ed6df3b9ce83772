package waveform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeParamsFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "standardized.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestReadParams(t *testing.T) {
	p, err := ReadParams(writeParamsFile(t, "n_channels: 384\nsampling_rate: 30000\ndtype: float32\ndata_order: samples\n"))
	require.NoError(t, err)
	require.Equal(t, 384, p.Channels)
	require.Equal(t, 30000, p.SampleRate)
}

func TestReadParams_DefaultsDTypeAndOrder(t *testing.T) {
	p, err := ReadParams(writeParamsFile(t, "n_channels: 4\nsampling_rate: 20000\n"))
	require.NoError(t, err)
	require.Equal(t, "float32", p.DType)
	require.Equal(t, "samples", p.DataOrder)
}

func TestReadParams_RejectsUnsupportedEncoding(t *testing.T) {
	_, err := ReadParams(writeParamsFile(t, "n_channels: 4\nsampling_rate: 20000\ndtype: int16\n"))
	require.ErrorContains(t, err, "dtype")

	_, err = ReadParams(writeParamsFile(t, "n_channels: 4\nsampling_rate: 20000\ndata_order: channels\n"))
	require.ErrorContains(t, err, "data order")
}

func TestParams_Validate(t *testing.T) {
	require.Error(t, Params{Channels: 0, SampleRate: 1, DType: "float32", DataOrder: "samples"}.Validate())
	require.Error(t, Params{Channels: 1, SampleRate: 0, DType: "float32", DataOrder: "samples"}.Validate())
	require.NoError(t, Params{Channels: 1, SampleRate: 1, DType: "float32", DataOrder: "samples"}.Validate())
}
