// Package pipeline runs one job end to end: materialize, decode, separate,
// encode and persist.
package pipeline

import (
	"context"
	"time"

	"github.com/apex/log"
	"github.com/veedubyou/stemsplit/src/shared/failure"
	jobentity "github.com/veedubyou/stemsplit/src/shared/job/entity"
	"github.com/veedubyou/stemsplit/src/shared/lib/cerr"
	"github.com/veedubyou/stemsplit/src/worker/audio"
	"github.com/veedubyou/stemsplit/src/worker/audio/codec"
	"github.com/veedubyou/stemsplit/src/worker/separation"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

//counterfeiter:generate . Separator
type Separator interface {
	Validate(buf audio.Buffer) error
	Separate(ctx context.Context, buf audio.Buffer, onStem separation.StemHandler) error
	StemNames() []string
}

type Decoder interface {
	DecodeFile(ctx context.Context, path string, format codec.Format) (audio.Buffer, error)
}

type Encoder interface {
	Encode(ctx context.Context, buf audio.Buffer, format codec.Format) ([]byte, error)
}

//counterfeiter:generate . Gateway
type Gateway interface {
	Materialize(ctx context.Context, inputRef string) (string, codec.Format, func(), error)
	Persist(ctx context.Context, jobID string, stem string, format codec.Format, data []byte) (string, error)
	Discard(ctx context.Context, urls []string)
}

// ProgressReporter is told about every stage change. It must not block.
type ProgressReporter func(stage jobentity.Stage, percent int)

type Pipeline struct {
	gateway      Gateway
	decoder      Decoder
	separator    Separator
	encoder      Encoder
	outputFormat codec.Format
}

func NewPipeline(gateway Gateway, decoder Decoder, separator Separator, encoder Encoder, outputFormat codec.Format) Pipeline {
	return Pipeline{
		gateway:      gateway,
		decoder:      decoder,
		separator:    separator,
		encoder:      encoder,
		outputFormat: outputFormat,
	}
}

func (p Pipeline) StemNames() []string {
	return p.separator.StemNames()
}

// Run returns the stored location of every stem. ctx is checked after
// decoding, after each stem is separated and after each stem is encoded; on
// any error every stem already persisted is discarded.
func (p Pipeline) Run(ctx context.Context, job jobentity.Job, report ProgressReporter) (jobentity.StemOutputs, error) {
	logger := log.WithFields(log.Fields{
		"job_id":    job.ID,
		"input_ref": job.InputRef,
	})
	errctx := cerr.Field("job_id", job.ID)
	startTime := time.Now()

	report(jobentity.Materializing, 0)
	inputPath, inputFormat, cleanup, err := p.gateway.Materialize(ctx, job.InputRef)
	if err != nil {
		return nil, errctx.Wrap(err).Error("Failed to materialize input")
	}
	defer cleanup()

	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	report(jobentity.Decoding, 5)
	buf, err := p.decoder.DecodeFile(ctx, inputPath, inputFormat)
	if err != nil {
		return nil, errctx.Wrap(err).Error("Failed to decode input")
	}
	logger.WithFields(log.Fields{
		"duration": buf.Duration().String(),
		"elapsed":  time.Since(startTime).String(),
	}).Info("Input decoded")

	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	if err := p.separator.Validate(buf); err != nil {
		return nil, errctx.Wrap(err).Error("Input rejected by the separator")
	}

	stemNames := p.separator.StemNames()
	outputs := jobentity.StemOutputs{}
	persisted := []string{}
	stemsDone := 0
	stageProgress := func(base int) int {
		return 10 + (90*stemsDone+base)/max(len(stemNames), 1)
	}

	report(jobentity.Separating, stageProgress(0))
	err = p.separator.Separate(ctx, buf, func(ctx context.Context, stem audio.Stem) error {
		stemctx := errctx.Field("stem", stem.Name)

		if err := checkpoint(ctx); err != nil {
			return err
		}

		report(jobentity.Encoding, stageProgress(30))
		data, err := p.encoder.Encode(ctx, stem.Buffer, p.outputFormat)
		if err != nil {
			return stemctx.Wrap(err).Error("Failed to encode stem")
		}

		if err := checkpoint(ctx); err != nil {
			return err
		}

		report(jobentity.Persisting, stageProgress(60))
		url, err := p.gateway.Persist(ctx, job.ID, stem.Name, p.outputFormat, data)
		if err != nil {
			return stemctx.Wrap(err).Error("Failed to persist stem")
		}

		outputs[stem.Name] = url
		persisted = append(persisted, url)
		stemsDone++
		logger.WithField("stem", stem.Name).Debug("Stem stored")

		if stemsDone < len(stemNames) {
			report(jobentity.Separating, stageProgress(0))
		}
		return nil
	})

	if err == nil && len(outputs) != len(stemNames) {
		err = failure.New(failure.InferenceError, "separation did not produce every stem")
	}

	if err != nil {
		p.gateway.Discard(ctx, persisted)
		return nil, errctx.Wrap(err).Error("Failed to separate input")
	}

	logger.WithField("elapsed", time.Since(startTime).String()).Info("Job pipeline finished")
	return outputs, nil
}

func checkpoint(ctx context.Context) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}

	return nil
}
