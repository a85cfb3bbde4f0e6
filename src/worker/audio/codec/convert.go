package codec

import (
	"math"

	"github.com/veedubyou/stemsplit/src/worker/audio"
)

// Target is the sample layout every decoded buffer is normalized to.
type Target struct {
	SampleRate int `toml:"sample_rate" validate:"required,gt=0"`
	Channels   int `toml:"channels" validate:"required,gt=0"`
}

// Conform resamples and remaps channels so buf matches target.
func Conform(buf audio.Buffer, target Target) audio.Buffer {
	return Resample(RemapChannels(buf, target.Channels), target.SampleRate)
}

// RemapChannels averages down to mono, duplicates mono up, and otherwise
// keeps the leading channels.
func RemapChannels(buf audio.Buffer, numChannels int) audio.Buffer {
	if buf.NumChannels() == numChannels {
		return buf
	}

	frames := buf.Frames()
	out := audio.Silence(buf.SampleRate, numChannels, frames)

	switch {
	case numChannels == 1:
		scale := 1 / float32(buf.NumChannels())
		for _, channel := range buf.Channels {
			for i, sample := range channel {
				out.Channels[0][i] += sample * scale
			}
		}

	case buf.NumChannels() == 1:
		for c := range out.Channels {
			copy(out.Channels[c], buf.Channels[0])
		}

	default:
		for c := range out.Channels {
			copy(out.Channels[c], buf.Channels[c%buf.NumChannels()])
		}
	}

	return out
}

// Resample converts to sampleRate with linear interpolation.
func Resample(buf audio.Buffer, sampleRate int) audio.Buffer {
	if buf.SampleRate == sampleRate || buf.Frames() == 0 {
		return audio.Buffer{SampleRate: sampleRate, Channels: buf.Channels}
	}

	ratio := float64(buf.SampleRate) / float64(sampleRate)
	inFrames := buf.Frames()
	outFrames := int(math.Round(float64(inFrames) / ratio))
	if outFrames < 1 {
		outFrames = 1
	}

	out := audio.Silence(sampleRate, buf.NumChannels(), outFrames)
	for c, channel := range buf.Channels {
		for i := 0; i < outFrames; i++ {
			position := float64(i) * ratio
			left := int(position)
			if left >= inFrames-1 {
				out.Channels[c][i] = channel[inFrames-1]
				continue
			}

			frac := float32(position - float64(left))
			out.Channels[c][i] = channel[left]*(1-frac) + channel[left+1]*frac
		}
	}

	return out
}
