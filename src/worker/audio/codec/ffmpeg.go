package codec

import (
	"context"
	"strconv"
	"strings"

	"github.com/veedubyou/stemsplit/src/shared/failure"
	"github.com/veedubyou/stemsplit/src/shared/lib/cerr"
	"github.com/veedubyou/stemsplit/src/shared/lib/executor"
)

// output fragments ffmpeg prints when it can't identify the container at all
var unrecognizedMarkers = []string{
	"Invalid data found when processing input",
	"could not find codec parameters",
	"Unknown input format",
	"does not contain any stream",
	"Unsupported codec",
}

type FFmpeg struct {
	binPath  string
	executor executor.Executor
}

func NewFFmpeg(binPath string, executor executor.Executor) FFmpeg {
	return FFmpeg{
		binPath:  binPath,
		executor: executor,
	}
}

// ToPCM transcodes any input ffmpeg understands to a 16 bit PCM wav with the
// target layout.
func (f FFmpeg) ToPCM(ctx context.Context, inputPath string, outputPath string, target Target) error {
	args := []string{
		"-nostdin", "-hide_banner", "-loglevel", "error", "-y",
		"-i", inputPath,
		"-vn", "-map_metadata", "-1",
		"-ac", strconv.Itoa(target.Channels),
		"-ar", strconv.Itoa(target.SampleRate),
		"-c:a", "pcm_s16le",
		"-f", "wav",
		outputPath,
	}

	output, err := f.run(ctx, args)
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	errctx := cerr.Fields(cerr.F{
		"input_path":    inputPath,
		"ffmpeg_output": string(output),
	})

	if isUnrecognized(string(output)) {
		return errctx.Wrap(failure.Wrap(err, failure.UnsupportedFormat, "input is not a recognizable audio file")).
			Error("ffmpeg could not identify the input")
	}

	return errctx.Wrap(failure.Wrap(err, failure.CorruptInput, "input audio could not be decoded")).
		Error("ffmpeg failed to decode the input")
}

// FromPCM encodes a wav produced by this package into format.
func (f FFmpeg) FromPCM(ctx context.Context, inputPath string, outputPath string, format Format) error {
	args := []string{
		"-nostdin", "-hide_banner", "-loglevel", "error", "-y",
		"-i", inputPath,
	}
	args = append(args, encodeArgs[format]...)
	args = append(args, outputPath)

	output, err := f.run(ctx, args)
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	return cerr.Fields(cerr.F{
		"format":        format,
		"ffmpeg_output": string(output),
	}).Wrap(failure.Wrap(err, failure.EncodingError, "stem could not be encoded as "+string(format))).
		Error("ffmpeg failed to encode the stem")
}

func (f FFmpeg) run(ctx context.Context, args []string) ([]byte, error) {
	cmd := f.executor.Command(ctx, f.binPath, args...)
	return cmd.CombinedOutput()
}

func isUnrecognized(output string) bool {
	for _, marker := range unrecognizedMarkers {
		if strings.Contains(output, marker) {
			return true
		}
	}

	return false
}
