package dummy

import (
	"bytes"
	"context"
	"os"
	"sync"

	"github.com/veedubyou/stemsplit/src/shared/lib/executor"
)

var _ executor.Executor = &FFmpegExecutor{}

const unrecognizedInputOutput = "Invalid data found when processing input"

// FFmpegExecutor stands in for the ffmpeg binary. Every "transcode" copies
// the input bytes to the output path, so wav data passes through unchanged
// whatever extension it is given. Inputs that aren't RIFF data are rejected
// the way ffmpeg rejects an unknown container.
type FFmpegExecutor struct {
	FailEncoding bool
	FailDecoding bool

	mutex       sync.Mutex
	invocations [][]string
}

func NewDummyFFmpegExecutor() *FFmpegExecutor {
	return &FFmpegExecutor{}
}

func (f *FFmpegExecutor) Command(ctx context.Context, _ string, args ...string) executor.Command {
	f.mutex.Lock()
	f.invocations = append(f.invocations, args)
	f.mutex.Unlock()

	return &ffmpegCommand{
		ctx:      ctx,
		args:     args,
		executor: f,
	}
}

func (f *FFmpegExecutor) Invocations() [][]string {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	invocations := make([][]string, len(f.invocations))
	copy(invocations, f.invocations)
	return invocations
}

type ffmpegCommand struct {
	ctx      context.Context
	args     []string
	executor *FFmpegExecutor
}

func (f *ffmpegCommand) SetDir(string) {}

func (f *ffmpegCommand) CombinedOutput() ([]byte, error) {
	if err := f.ctx.Err(); err != nil {
		return nil, err
	}

	inputPath, outputPath := f.paths()
	input, err := os.ReadFile(inputPath)
	if err != nil {
		return []byte(inputPath + ": No such file or directory"), err
	}

	encoding := f.isEncoding()
	if encoding && f.executor.FailEncoding {
		return []byte("Error while opening encoder"), NetworkFailure
	}

	if !encoding && f.executor.FailDecoding {
		return []byte("Error while decoding stream #0:0"), NetworkFailure
	}

	if !bytes.HasPrefix(input, []byte("RIFF")) {
		return []byte(inputPath + ": " + unrecognizedInputOutput), NotFound
	}

	if err := os.WriteFile(outputPath, input, 0o644); err != nil {
		return nil, err
	}

	return nil, nil
}

func (f *ffmpegCommand) paths() (string, string) {
	var inputPath string
	for i, arg := range f.args {
		if arg == "-i" && i+1 < len(f.args) {
			inputPath = f.args[i+1]
		}
	}

	return inputPath, f.args[len(f.args)-1]
}

// decoding always targets pcm_s16le into a wav muxer
func (f *ffmpegCommand) isEncoding() bool {
	for i, arg := range f.args {
		if arg == "-f" && i+1 < len(f.args) && f.args[i+1] == "wav" {
			return false
		}
	}

	return true
}
