package separation

import (
	"bytes"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/veedubyou/stemsplit/src/shared/failure"
	"github.com/veedubyou/stemsplit/src/shared/lib/cerr"
	"github.com/veedubyou/stemsplit/src/worker/audio/codec"
)

type Source string

const (
	Harmonic   Source = "harmonic"
	Percussive Source = "percussive"
	AnySource  Source = "any"
)

// StemSpec describes how one stem is carved out of the mix: which half of
// the harmonic/percussive split it draws from, limited to a frequency band.
// A zero LowHz or HighHz leaves that side of the band open.
type StemSpec struct {
	Name        string  `toml:"name" validate:"required,alphanum"`
	Source      Source  `toml:"source" validate:"required,oneof=harmonic percussive any"`
	LowHz       float64 `toml:"low_hz" validate:"gte=0"`
	HighHz      float64 `toml:"high_hz" validate:"gte=0"`
	CrossoverHz float64 `toml:"crossover_hz" validate:"gte=0"`
	Residual    bool    `toml:"residual"`
}

type Model struct {
	Name             string     `toml:"name" validate:"required"`
	Version          string     `toml:"version" validate:"required"`
	Description      string     `toml:"description"`
	SampleRate       int        `toml:"sample_rate" validate:"required,gte=8000"`
	Channels         int        `toml:"channels" validate:"required,gte=1,lte=8"`
	FrameSize        int        `toml:"frame_size" validate:"required,gte=64"`
	HopSize          int        `toml:"hop_size" validate:"required,gt=0,ltfield=FrameSize"`
	HarmonicKernel   int        `toml:"harmonic_kernel" validate:"required,gte=3"`
	PercussiveKernel int        `toml:"percussive_kernel" validate:"required,gte=3"`
	Stems            []StemSpec `toml:"stems" validate:"required,min=2,dive"`
}

var modelValidator = validator.New()

// ParseModel decodes and validates a TOML model definition.
func ParseModel(data []byte) (*Model, error) {
	model := &Model{}
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(model); err != nil {
		return nil, failure.Wrap(cerr.Wrap(err).Error("Failed to decode model definition"),
			failure.ModelUnavailable, "model definition is not valid toml")
	}

	if err := model.Validate(); err != nil {
		return nil, err
	}

	return model, nil
}

func (m *Model) Validate() error {
	errctx := cerr.Field("model", m.Name)

	if err := modelValidator.Struct(m); err != nil {
		return failure.Wrap(errctx.Wrap(err).Error("Model definition failed validation"),
			failure.ModelUnavailable, "model definition is invalid")
	}

	invalid := func(msg string) error {
		return failure.Wrap(errctx.Error(msg), failure.ModelUnavailable, "model definition is invalid")
	}

	if m.HarmonicKernel%2 == 0 || m.PercussiveKernel%2 == 0 {
		return invalid("Median kernels must have odd lengths")
	}

	nyquist := float64(m.SampleRate) / 2
	names := map[string]bool{}
	residuals := 0

	for _, stem := range m.Stems {
		if names[stem.Name] {
			return invalid(fmt.Sprintf("Stem %s is defined twice", stem.Name))
		}
		names[stem.Name] = true

		if stem.Residual {
			residuals++
			continue
		}

		if stem.HighHz > nyquist {
			return invalid(fmt.Sprintf("Stem %s reaches above nyquist", stem.Name))
		}

		if stem.HighHz > 0 && stem.LowHz >= stem.HighHz {
			return invalid(fmt.Sprintf("Stem %s has an empty band", stem.Name))
		}
	}

	if residuals != 1 {
		return invalid("Exactly one stem must be the residual")
	}

	return nil
}

func (m *Model) StemNames() []string {
	names := make([]string, 0, len(m.Stems))
	for _, stem := range m.Stems {
		names = append(names, stem.Name)
	}

	return names
}

// Target is the layout inputs must be decoded to before separation.
func (m *Model) Target() codec.Target {
	return codec.Target{
		SampleRate: m.SampleRate,
		Channels:   m.Channels,
	}
}
