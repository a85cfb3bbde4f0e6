package separation

import (
	"math"
)

// maskBank turns a percussive share and a frequency bin into per-stem gains.
// For any input the gains are non-negative and sum to exactly one, which is
// what makes the stems add back up to the mix.
type maskBank struct {
	stems    []StemSpec
	residual int

	// bandWeights[stem][bin]
	bandWeights [][]float64
}

func newMaskBank(model *Model, bins int) maskBank {
	binHz := float64(model.SampleRate) / float64(2*(bins-1))

	bank := maskBank{
		stems:       model.Stems,
		bandWeights: make([][]float64, len(model.Stems)),
	}

	for s, stem := range model.Stems {
		if stem.Residual {
			bank.residual = s
			continue
		}

		weights := make([]float64, bins)
		for k := range weights {
			hz := float64(k) * binHz
			weights[k] = rampUp(hz, stem.LowHz, stem.CrossoverHz) * rampDown(hz, stem.HighHz, stem.CrossoverHz)
		}
		bank.bandWeights[s] = weights
	}

	return bank
}

func (m maskBank) raw(stem int, percussive float64, bin int) float64 {
	var sourceWeight float64
	switch m.stems[stem].Source {
	case Harmonic:
		sourceWeight = 1 - percussive
	case Percussive:
		sourceWeight = percussive
	default:
		sourceWeight = 1
	}

	return sourceWeight * m.bandWeights[stem][bin]
}

// gain is the share of bin that stem receives. Non-residual gains are scaled
// down together if they would claim more than the whole bin; the residual
// stem gets whatever is left.
func (m maskBank) gain(stem int, percussive float32, bin int) float64 {
	p := float64(percussive)

	var total float64
	for s := range m.stems {
		if s == m.residual {
			continue
		}
		total += m.raw(s, p, bin)
	}

	scale := 1.0
	if total > 1 {
		scale = 1 / total
	}

	if stem == m.residual {
		return 1 - total*scale
	}

	return m.raw(stem, p, bin) * scale
}

// raised cosine from 0 below edge-width/2 to 1 above edge+width/2
func rampUp(hz float64, edge float64, width float64) float64 {
	if edge <= 0 {
		return 1
	}

	if width <= 0 {
		if hz >= edge {
			return 1
		}
		return 0
	}

	lo := edge - width/2
	switch {
	case hz <= lo:
		return 0
	case hz >= edge+width/2:
		return 1
	default:
		return 0.5 - 0.5*math.Cos(math.Pi*(hz-lo)/width)
	}
}

func rampDown(hz float64, edge float64, width float64) float64 {
	if edge <= 0 {
		return 1
	}

	return 1 - rampUp(hz, edge, width)
}
