package testing

import (
	"math"
	"math/rand"
	"time"

	"github.com/veedubyou/stemsplit/src/worker/audio"
)

// SineWave renders a half amplitude tone on every channel.
func SineWave(sampleRate int, numChannels int, duration time.Duration, hz float64) audio.Buffer {
	frames := int(duration.Seconds() * float64(sampleRate))
	buf := audio.Silence(sampleRate, numChannels, frames)

	for c := range buf.Channels {
		for i := range buf.Channels[c] {
			t := float64(i) / float64(sampleRate)
			buf.Channels[c][i] = float32(0.5 * math.Sin(2*math.Pi*hz*t))
		}
	}

	return buf
}

// Mixture is a tone, a bass line and a click track with a bit of noise, so
// every kind of stem has something to pull out.
func Mixture(sampleRate int, numChannels int, duration time.Duration) audio.Buffer {
	frames := int(duration.Seconds() * float64(sampleRate))
	buf := audio.Silence(sampleRate, numChannels, frames)
	rng := rand.New(rand.NewSource(42))
	clickEvery := sampleRate / 4

	for i := 0; i < frames; i++ {
		t := float64(i) / float64(sampleRate)
		sample := 0.25*math.Sin(2*math.Pi*440*t) + 0.2*math.Sin(2*math.Pi*82.4*t)
		if i%clickEvery < 64 {
			sample += 0.3 * (rng.Float64()*2 - 1)
		}
		sample += 0.01 * (rng.Float64()*2 - 1)

		for c := range buf.Channels {
			buf.Channels[c][i] = float32(sample)
		}
	}

	return buf
}
