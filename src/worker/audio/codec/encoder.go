package codec

import (
	"context"
	"os"
	"path/filepath"

	"github.com/veedubyou/stemsplit/src/shared/failure"
	"github.com/veedubyou/stemsplit/src/shared/lib/cerr"
	"github.com/veedubyou/stemsplit/src/shared/lib/working_dir"
	"github.com/veedubyou/stemsplit/src/worker/audio"
)

type Encoder struct {
	ffmpeg     FFmpeg
	workingDir working_dir.WorkingDir
}

func NewEncoder(ffmpeg FFmpeg, workingDir working_dir.WorkingDir) Encoder {
	return Encoder{
		ffmpeg:     ffmpeg,
		workingDir: workingDir,
	}
}

// Encode renders buf as a complete file in format. Samples outside [-1, 1]
// are clipped.
func (e Encoder) Encode(ctx context.Context, buf audio.Buffer, format Format) ([]byte, error) {
	errctx := cerr.Field("format", format)

	if _, ok := encodeArgs[format]; !ok {
		return nil, failure.New(failure.UnsupportedFormat, "no encoder for format "+string(format))
	}

	if buf.IsEmpty() || buf.SampleRate <= 0 {
		return nil, failure.New(failure.EncodingError, "cannot encode an empty buffer")
	}

	tempDir, cleanup, err := e.workingDir.MakeTempDir("encode-*")
	if err != nil {
		return nil, failure.Wrap(err, failure.EncodingError, "no scratch space for encoding")
	}
	defer cleanup()

	pcmPath := filepath.Join(tempDir, "stem.pcm.wav")
	if err := writeWAVFile(pcmPath, buf); err != nil {
		return nil, failure.Wrap(errctx.Wrap(err).Error("Failed to write pcm wav"),
			failure.EncodingError, "stem could not be written")
	}

	outputPath := pcmPath
	if format != WAV {
		outputPath = filepath.Join(tempDir, "stem"+format.Extension())
		if err := e.ffmpeg.FromPCM(ctx, pcmPath, outputPath, format); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, failure.Wrap(errctx.Wrap(err).Error("Failed to read encoded stem"),
			failure.EncodingError, "encoded stem could not be read back")
	}

	return data, nil
}
