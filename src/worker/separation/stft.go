package separation

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// stft is a weighted overlap-add short-time Fourier transform. Signals are
// padded by a full frame on both sides so every sample is covered by the
// same number of frames, and the overlap-add is normalized by the summed
// squared window so analysis followed by synthesis is the identity.
//
// An stft holds FFT work buffers and must not be shared between goroutines.
type stft struct {
	frameSize int
	hopSize   int
	window    []float64
	fft       *fourier.FFT

	// inverse scale of the forward/backward round trip, measured once
	inverseScale float64

	frame   []float64
	spectra []complex128
}

func newSTFT(frameSize int, hopSize int) *stft {
	s := &stft{
		frameSize: frameSize,
		hopSize:   hopSize,
		window:    hannWindow(frameSize),
		fft:       fourier.NewFFT(frameSize),
		frame:     make([]float64, frameSize),
		spectra:   make([]complex128, frameSize/2+1),
	}

	impulse := make([]float64, frameSize)
	impulse[0] = 1
	roundTrip := s.fft.Sequence(nil, s.fft.Coefficients(nil, impulse))
	s.inverseScale = 1 / roundTrip[0]

	return s
}

// periodic Hann, which overlap-adds to a constant at hop = frame/4
func hannWindow(size int) []float64 {
	window := make([]float64, size)
	for i := range window {
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(size))
	}

	return window
}

func (s *stft) bins() int {
	return s.frameSize/2 + 1
}

func (s *stft) frameCount(samples int) int {
	padded := samples + 2*s.frameSize
	return (padded-s.frameSize+s.hopSize-1)/s.hopSize + 1
}

// frameStart is the offset of frame t in unpadded sample coordinates.
func (s *stft) frameStart(t int) int {
	return t*s.hopSize - s.frameSize
}

// analyze returns the spectrum of frame t. The returned slice is reused by
// the next call.
func (s *stft) analyze(signal []float32, t int) []complex128 {
	start := s.frameStart(t)
	for i := range s.frame {
		idx := start + i
		if idx < 0 || idx >= len(signal) {
			s.frame[i] = 0
			continue
		}

		s.frame[i] = float64(signal[idx]) * s.window[i]
	}

	return s.fft.Coefficients(s.spectra, s.frame)
}

// magnitudes returns |X| for every frame as [frame][bin].
func (s *stft) magnitudes(signal []float32) [][]float32 {
	frames := s.frameCount(len(signal))
	mags := make([][]float32, frames)

	for t := 0; t < frames; t++ {
		spectrum := s.analyze(signal, t)
		row := make([]float32, len(spectrum))
		for k, coeff := range spectrum {
			row[k] = float32(math.Hypot(real(coeff), imag(coeff)))
		}
		mags[t] = row
	}

	return mags
}

// filter runs analysis, lets shape rewrite each frame's spectrum in place,
// and resynthesizes a signal of the original length.
func (s *stft) filter(signal []float32, shape func(t int, spectrum []complex128)) []float64 {
	frames := s.frameCount(len(signal))
	out := make([]float64, len(signal))
	norm := make([]float64, len(signal))
	synthesized := make([]float64, s.frameSize)

	for t := 0; t < frames; t++ {
		spectrum := s.analyze(signal, t)
		shape(t, spectrum)
		s.fft.Sequence(synthesized, spectrum)

		start := s.frameStart(t)
		for i, sample := range synthesized {
			idx := start + i
			if idx < 0 || idx >= len(out) {
				continue
			}

			w := s.window[i]
			out[idx] += sample * s.inverseScale * w
			norm[idx] += w * w
		}
	}

	for i := range out {
		if norm[i] > 1e-12 {
			out[i] /= norm[i]
		}
	}

	return out
}
