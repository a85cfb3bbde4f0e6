// Package audio holds the in-memory sample buffers passed between the
// decoder, the separation engine and the encoder.
package audio

import (
	"time"

	"github.com/cockroachdb/errors"
)

// Buffer is planar float audio: Channels[c][i] is sample i of channel c,
// nominally in [-1, 1]. A Buffer is never mutated once built; transforms
// return new buffers.
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

func NewBuffer(sampleRate int, channels [][]float32) (Buffer, error) {
	if sampleRate <= 0 {
		return Buffer{}, errors.Newf("sample rate must be positive, got %d", sampleRate)
	}

	if len(channels) == 0 {
		return Buffer{}, errors.New("buffer needs at least one channel")
	}

	frames := len(channels[0])
	for i, channel := range channels {
		if len(channel) != frames {
			return Buffer{}, errors.Newf("channel %d has %d frames, expected %d", i, len(channel), frames)
		}
	}

	return Buffer{SampleRate: sampleRate, Channels: channels}, nil
}

// Silence allocates a zeroed buffer.
func Silence(sampleRate int, numChannels int, frames int) Buffer {
	channels := make([][]float32, numChannels)
	for c := range channels {
		channels[c] = make([]float32, frames)
	}

	return Buffer{SampleRate: sampleRate, Channels: channels}
}

func (b Buffer) NumChannels() int {
	return len(b.Channels)
}

func (b Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}

	return len(b.Channels[0])
}

func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}

	return time.Duration(float64(b.Frames()) / float64(b.SampleRate) * float64(time.Second))
}

func (b Buffer) IsEmpty() bool {
	return b.Frames() == 0
}
