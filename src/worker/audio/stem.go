package audio

// Stem is one separated source.
type Stem struct {
	Name   string
	Buffer Buffer
}

// StemSet keeps stems in model order.
type StemSet []Stem

func (s StemSet) Names() []string {
	names := make([]string, 0, len(s))
	for _, stem := range s {
		names = append(names, stem.Name)
	}

	return names
}

func (s StemSet) Get(name string) (Buffer, bool) {
	for _, stem := range s {
		if stem.Name == name {
			return stem.Buffer, true
		}
	}

	return Buffer{}, false
}

// Mixdown sums every stem sample by sample. All stems must share the same
// shape.
func (s StemSet) Mixdown() Buffer {
	if len(s) == 0 {
		return Buffer{}
	}

	first := s[0].Buffer
	mix := Silence(first.SampleRate, first.NumChannels(), first.Frames())
	for _, stem := range s {
		for c, channel := range stem.Buffer.Channels {
			for i, sample := range channel {
				mix.Channels[c][i] += sample
			}
		}
	}

	return mix
}

// MeanSquaredError compares two buffers of the same shape across all
// channels. Mismatched shapes compare over the overlapping region.
func MeanSquaredError(a Buffer, b Buffer) float64 {
	numChannels := min(a.NumChannels(), b.NumChannels())
	frames := min(a.Frames(), b.Frames())
	if numChannels == 0 || frames == 0 {
		return 0
	}

	var sum float64
	for c := 0; c < numChannels; c++ {
		for i := 0; i < frames; i++ {
			diff := float64(a.Channels[c][i]) - float64(b.Channels[c][i])
			sum += diff * diff
		}
	}

	return sum / float64(numChannels*frames)
}
