// Package separation splits a mix into the stems a Model defines. All work
// for one call happens on the calling goroutine and is deterministic.
package separation

import (
	"context"
	"math"
	"time"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
	"github.com/veedubyou/stemsplit/src/shared/failure"
	"github.com/veedubyou/stemsplit/src/shared/lib/cerr"
	"github.com/veedubyou/stemsplit/src/worker/audio"
)

// ReconstructionTolerance bounds the mean squared error between the mix and
// the sum of its stems.
const ReconstructionTolerance = 1e-6

// StemHandler receives each stem as soon as it is computed. Returning an
// error stops the separation.
type StemHandler func(ctx context.Context, stem audio.Stem) error

type Engine struct {
	model       *Model
	maxDuration time.Duration
}

// NewEngine wraps a loaded model. A zero maxDuration accepts any length.
func NewEngine(model *Model, maxDuration time.Duration) *Engine {
	return &Engine{
		model:       model,
		maxDuration: maxDuration,
	}
}

func (e *Engine) Model() *Model {
	return e.model
}

func (e *Engine) StemNames() []string {
	if e.model == nil {
		return nil
	}

	return e.model.StemNames()
}

// Validate rejects buffers the engine would refuse, without doing any
// spectral work.
func (e *Engine) Validate(buf audio.Buffer) error {
	if e.model == nil {
		return failure.New(failure.ModelUnavailable, "no separation model is loaded")
	}

	if buf.IsEmpty() {
		return failure.New(failure.EmptyInput, "input has no samples")
	}

	if e.maxDuration > 0 && buf.Duration() > e.maxDuration {
		return cerr.Fields(cerr.F{
			"duration":     buf.Duration().String(),
			"max_duration": e.maxDuration.String(),
		}).Wrap(failure.New(failure.InputTooLong, "input is longer than "+e.maxDuration.String())).
			Error("Input exceeds the maximum duration")
	}

	if buf.SampleRate != e.model.SampleRate || buf.NumChannels() != e.model.Channels {
		return cerr.Fields(cerr.F{
			"sample_rate":          buf.SampleRate,
			"channels":             buf.NumChannels(),
			"model_sample_rate":    e.model.SampleRate,
			"model_channel_layout": e.model.Channels,
		}).Wrap(failure.New(failure.InferenceError, "input layout does not match the model")).
			Error("Input layout mismatch")
	}

	for c, channel := range buf.Channels {
		for i, sample := range channel {
			f := float64(sample)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return cerr.Fields(cerr.F{"channel": c, "frame": i}).
					Wrap(failure.New(failure.InferenceError, "input contains non-finite samples")).
					Error("Non-finite sample")
			}
		}
	}

	return nil
}

// Separate hands each stem to onStem in model order. ctx is checked before
// every stem, and a cancelled ctx ends the run with its cause.
func (e *Engine) Separate(ctx context.Context, buf audio.Buffer, onStem StemHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = failure.Wrap(errors.Newf("separation panicked: %v", r),
				failure.InferenceError, "separation failed")
		}
	}()

	if err := e.Validate(buf); err != nil {
		return err
	}

	model := e.model
	logger := log.WithFields(log.Fields{
		"model":    model.Name,
		"frames":   buf.Frames(),
		"channels": buf.NumChannels(),
	})

	transform := newSTFT(model.FrameSize, model.HopSize)
	bank := newMaskBank(model, transform.bins())

	startTime := time.Now()
	weights := make([][][]float32, buf.NumChannels())
	for c, channel := range buf.Channels {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}

		weights[c] = percussiveWeights(transform.magnitudes(channel), model.HarmonicKernel, model.PercussiveKernel)
	}
	logger.WithField("elapsed", time.Since(startTime).String()).Debug("Harmonic/percussive analysis done")

	for s, spec := range model.Stems {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}

		startTime = time.Now()
		channels := make([][]float32, buf.NumChannels())
		for c, channel := range buf.Channels {
			channelWeights := weights[c]
			filtered := transform.filter(channel, func(t int, spectrum []complex128) {
				for k := range spectrum {
					spectrum[k] *= complex(bank.gain(s, channelWeights[t][k], k), 0)
				}
			})

			samples := make([]float32, len(filtered))
			for i, sample := range filtered {
				samples[i] = float32(sample)
			}
			channels[c] = samples
		}

		logger.WithFields(log.Fields{
			"stem":    spec.Name,
			"elapsed": time.Since(startTime).String(),
		}).Debug("Stem separated")

		stem := audio.Stem{
			Name:   spec.Name,
			Buffer: audio.Buffer{SampleRate: buf.SampleRate, Channels: channels},
		}

		if err := onStem(ctx, stem); err != nil {
			return err
		}
	}

	return nil
}

// SeparateAll collects every stem in memory.
func (e *Engine) SeparateAll(ctx context.Context, buf audio.Buffer) (audio.StemSet, error) {
	stems := audio.StemSet{}
	err := e.Separate(ctx, buf, func(_ context.Context, stem audio.Stem) error {
		stems = append(stems, stem)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return stems, nil
}
