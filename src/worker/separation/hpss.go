package separation

import (
	"sort"
)

// percussiveWeights splits a magnitude spectrogram into harmonic and
// percussive energy by median filtering: sustained partials survive a median
// across time, transients survive a median across frequency. The result is
// the soft percussive share P²/(H²+P²) per [frame][bin]; the harmonic share
// is its complement. mags is consumed.
func percussiveWeights(mags [][]float32, harmonicKernel int, percussiveKernel int) [][]float32 {
	frames := len(mags)
	if frames == 0 {
		return mags
	}
	bins := len(mags[0])

	harmonic := make([][]float32, frames)
	for t := range harmonic {
		harmonic[t] = make([]float32, bins)
	}

	window := make([]float32, 0, max(harmonicKernel, percussiveKernel))
	halfH := harmonicKernel / 2
	for k := 0; k < bins; k++ {
		for t := 0; t < frames; t++ {
			window = window[:0]
			for j := max(0, t-halfH); j <= min(frames-1, t+halfH); j++ {
				window = append(window, mags[j][k])
			}
			harmonic[t][k] = median(window)
		}
	}

	halfP := percussiveKernel / 2
	percussive := make([]float32, bins)
	for t := 0; t < frames; t++ {
		row := mags[t]
		for k := 0; k < bins; k++ {
			window = window[:0]
			for j := max(0, k-halfP); j <= min(bins-1, k+halfP); j++ {
				window = append(window, row[j])
			}
			percussive[k] = median(window)
		}

		for k := 0; k < bins; k++ {
			h := float64(harmonic[t][k])
			p := float64(percussive[k])
			total := h*h + p*p

			// silence is split evenly
			weight := 0.5
			if total > 0 {
				weight = p * p / total
			}

			// harmonic[t] is done with, so it holds the result
			harmonic[t][k] = float32(weight)
		}
	}

	return harmonic
}

// median sorts window in place.
func median(window []float32) float32 {
	if len(window) == 0 {
		return 0
	}

	sort.Slice(window, func(i, j int) bool {
		return window[i] < window[j]
	})

	mid := len(window) / 2
	if len(window)%2 == 1 {
		return window[mid]
	}

	return (window[mid-1] + window[mid]) / 2
}
