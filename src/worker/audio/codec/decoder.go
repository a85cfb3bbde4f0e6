package codec

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/veedubyou/stemsplit/src/shared/failure"
	"github.com/veedubyou/stemsplit/src/shared/lib/cerr"
	"github.com/veedubyou/stemsplit/src/shared/lib/working_dir"
	"github.com/veedubyou/stemsplit/src/worker/audio"
)

type Decoder struct {
	ffmpeg     FFmpeg
	workingDir working_dir.WorkingDir
	target     Target
}

func NewDecoder(ffmpeg FFmpeg, workingDir working_dir.WorkingDir, target Target) Decoder {
	return Decoder{
		ffmpeg:     ffmpeg,
		workingDir: workingDir,
		target:     target,
	}
}

func (d Decoder) Target() Target {
	return d.target
}

// DecodeFile reads the audio at path into a buffer with the decoder's target
// layout. Integer PCM wav is read directly; everything else goes through
// ffmpeg.
func (d Decoder) DecodeFile(ctx context.Context, path string, format Format) (audio.Buffer, error) {
	errctx := cerr.Fields(cerr.F{
		"path":   path,
		"format": format,
	})

	info, err := os.Stat(path)
	if err != nil {
		return audio.Buffer{}, failure.Wrap(errctx.Wrap(err).Error("Failed to stat input file"),
			failure.InvalidInput, "input file is not readable")
	}

	if info.Size() == 0 {
		return audio.Buffer{}, failure.New(failure.EmptyInput, "input file is empty")
	}

	if format == WAV && d.isNativeWAV(path) {
		buf, err := readWAVFile(path)
		if err != nil {
			return audio.Buffer{}, errctx.Wrap(err).Error("Failed to read wav input")
		}

		return Conform(buf, d.target), nil
	}

	buf, err := d.transcode(ctx, path)
	if err != nil {
		return audio.Buffer{}, errctx.Wrap(err).Error("Failed to transcode input")
	}

	return buf, nil
}

// Decode spools r to a temp file and decodes it.
func (d Decoder) Decode(ctx context.Context, r io.Reader, format Format) (audio.Buffer, error) {
	tempDir, cleanup, err := d.workingDir.MakeTempDir("decode-*")
	if err != nil {
		return audio.Buffer{}, failure.Wrap(err, failure.InternalError, "no scratch space for decoding")
	}
	defer cleanup()

	inputPath := filepath.Join(tempDir, "input"+format.Extension())
	file, err := os.Create(inputPath)
	if err != nil {
		return audio.Buffer{}, failure.Wrap(err, failure.InternalError, "no scratch space for decoding")
	}

	_, copyErr := io.Copy(file, r)
	closeErr := file.Close()
	if copyErr != nil {
		return audio.Buffer{}, failure.Wrap(copyErr, failure.CorruptInput, "input stream could not be read")
	}
	if closeErr != nil {
		return audio.Buffer{}, failure.Wrap(closeErr, failure.InternalError, "input could not be spooled to disk")
	}

	return d.DecodeFile(ctx, inputPath, format)
}

func (d Decoder) isNativeWAV(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	return sniffWAV(file).nativeReadable()
}

func (d Decoder) transcode(ctx context.Context, path string) (audio.Buffer, error) {
	tempDir, cleanup, err := d.workingDir.MakeTempDir("transcode-*")
	if err != nil {
		return audio.Buffer{}, failure.Wrap(err, failure.InternalError, "no scratch space for decoding")
	}
	defer cleanup()

	pcmPath := filepath.Join(tempDir, "decoded.wav")
	log.WithField("path", path).Debug("Transcoding input with ffmpeg")

	if err := d.ffmpeg.ToPCM(ctx, path, pcmPath, d.target); err != nil {
		return audio.Buffer{}, err
	}

	buf, err := readWAVFile(pcmPath)
	if err != nil {
		if failure.Is(err, failure.EmptyInput) {
			return audio.Buffer{}, err
		}

		return audio.Buffer{}, failure.Wrap(err, failure.CorruptInput, "transcoded audio could not be read")
	}

	// ffmpeg already resampled, this only guards against odd container headers
	return Conform(buf, d.target), nil
}
