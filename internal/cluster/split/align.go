package split

import (
	"gonum.org/v1/gonum/dsp/fourier"
)

// Resample returns x resampled to n points using FFT-based bandlimited
// interpolation: the spectrum is truncated or zero-padded to the target
// length and inverted.
func Resample(x []float64, n int) []float64 {
	m := len(x)
	if m == 0 || n <= 0 {
		return nil
	}
	if n == m {
		return append([]float64(nil), x...)
	}
	fft := fourier.NewFFT(m)
	coeff := fft.Coefficients(nil, x)

	out := make([]complex128, n/2+1)
	copy(out, coeff[:min(len(coeff), len(out))])

	inv := fourier.NewFFT(n)
	y := inv.Sequence(nil, out)
	// Sequence is unnormalized; dividing by the original length restores
	// the source amplitude at the new rate.
	scale := 1.0 / float64(m)
	for i := range y {
		y[i] *= scale
	}
	return y
}

// AlignToTemplate aligns every waveform to the set's mean template with
// sub-sample resolution. Waveforms and template are upsampled by the
// given factor, each waveform's center window is cross-correlated against
// shifted copies of the upsampled template, and the waveform is resampled
// back to the original rate at the best shift. Samples running past the
// end are zero-padded.
//
// halfWidth is in original samples; both the correlation window and the
// shift range span halfWidth*upsample points in the upsampled domain.
// Waveforms too short for the window are returned unshifted.
func AlignToTemplate(wfs [][]float64, upsample, halfWidth int) [][]float64 {
	n := len(wfs)
	if n == 0 {
		return nil
	}
	length := len(wfs[0])
	window := halfWidth * upsample
	shifts := halfWidth * upsample

	upLen := length * upsample
	center := upLen / 2
	if center-window-shifts/2 < 0 || center+window+shifts/2+1 > upLen {
		out := make([][]float64, n)
		for i := range wfs {
			out[i] = append([]float64(nil), wfs[i]...)
		}
		return out
	}

	template := make([]float64, length)
	for _, wf := range wfs {
		for t, v := range wf {
			template[t] += v
		}
	}
	for t := range template {
		template[t] /= float64(n)
	}
	templateUp := Resample(template, upLen)

	// Shifted template windows, one per candidate shift.
	shifted := make([][]float64, 0, shifts+1)
	for s := -shifts / 2; s <= shifts/2; s++ {
		shifted = append(shifted, templateUp[center-window+s:center+window+s])
	}

	out := make([][]float64, n)
	for i, wf := range wfs {
		wfUp := Resample(wf, upLen)
		segment := wfUp[center-window : center+window]

		best, bestScore := 0, dot(segment, shifted[0])
		for s := 1; s < len(shifted); s++ {
			if score := dot(segment, shifted[s]); score > bestScore {
				best, bestScore = s, score
			}
		}

		aligned := make([]float64, length)
		for t := 0; t < length; t++ {
			src := shifts - best + t*upsample
			if src < len(wfUp) {
				aligned[t] = wfUp[src]
			}
			// else zero padded
		}
		out[i] = aligned
	}
	return out
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
