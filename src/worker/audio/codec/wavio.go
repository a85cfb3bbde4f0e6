package codec

import (
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/veedubyou/stemsplit/src/shared/failure"
	"github.com/veedubyou/stemsplit/src/shared/lib/cerr"
	waveform "github.com/veedubyou/stemsplit/src/worker/audio"
)

const (
	pcmBitDepth  = 16
	wavFormatPCM = 1
)

type wavHeader struct {
	valid      bool
	audioCodec uint16
	bitDepth   uint16
}

// nativeReadable reports whether the file is an integer PCM WAV that can be
// read without transcoding.
func (h wavHeader) nativeReadable() bool {
	if !h.valid || h.audioCodec != wavFormatPCM {
		return false
	}

	switch h.bitDepth {
	case 8, 16, 24, 32:
		return true
	default:
		return false
	}
}

func sniffWAV(r io.ReadSeeker) wavHeader {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return wavHeader{}
	}

	return wavHeader{
		valid:      true,
		audioCodec: decoder.WavAudioFormat,
		bitDepth:   decoder.BitDepth,
	}
}

func readWAVFile(path string) (waveform.Buffer, error) {
	errctx := cerr.Field("wav_path", path)

	file, err := os.Open(path)
	if err != nil {
		return waveform.Buffer{}, failure.Wrap(errctx.Wrap(err).Error("Failed to open wav file"),
			failure.CorruptInput, "wav file could not be opened")
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return waveform.Buffer{}, failure.New(failure.UnsupportedFormat, "not a readable wav container")
	}

	pcm, err := decoder.FullPCMBuffer()
	if err != nil {
		if decoder.PCMLen() == 0 {
			return waveform.Buffer{}, failure.New(failure.EmptyInput, "wav file has no samples")
		}

		return waveform.Buffer{}, failure.Wrap(errctx.Wrap(err).Error("Failed to read pcm data"),
			failure.CorruptInput, "wav samples could not be read")
	}

	numChannels := int(decoder.NumChans)
	bytesPerSample := int64(decoder.BitDepth / 8)
	if numChannels <= 0 || bytesPerSample <= 0 || decoder.SampleRate == 0 {
		return waveform.Buffer{}, failure.New(failure.CorruptInput, "wav header declares an impossible layout")
	}

	declaredSamples := decoder.PCMLen() / bytesPerSample
	if int64(len(pcm.Data)) < declaredSamples {
		return waveform.Buffer{}, errctx.Fields(cerr.F{
			"declared_samples": declaredSamples,
			"read_samples":     len(pcm.Data),
		}).Wrap(failure.New(failure.CorruptInput, "wav data chunk is truncated")).Error("Short read on wav data")
	}

	frames := len(pcm.Data) / numChannels
	if frames == 0 {
		return waveform.Buffer{}, failure.New(failure.EmptyInput, "wav file has no samples")
	}

	scale := float32(int64(1) << (decoder.BitDepth - 1))
	if decoder.BitDepth == 8 {
		// 8 bit wav is unsigned
		scale = 128
	}

	channels := make([][]float32, numChannels)
	for c := range channels {
		channels[c] = make([]float32, frames)
	}

	for i := 0; i < frames; i++ {
		for c := 0; c < numChannels; c++ {
			sample := pcm.Data[i*numChannels+c]
			if decoder.BitDepth == 8 {
				sample -= 128
			}
			channels[c][i] = float32(sample) / scale
		}
	}

	return waveform.NewBuffer(int(decoder.SampleRate), channels)
}

func writeWAVFile(path string, buf waveform.Buffer) error {
	errctx := cerr.Field("wav_path", path)

	file, err := os.Create(path)
	if err != nil {
		return errctx.Wrap(err).Error("Failed to create wav file")
	}
	defer file.Close()

	numChannels := buf.NumChannels()
	frames := buf.Frames()
	maxValue := float32(int64(1)<<(pcmBitDepth-1) - 1)

	data := make([]int, frames*numChannels)
	for i := 0; i < frames; i++ {
		for c := 0; c < numChannels; c++ {
			sample := buf.Channels[c][i]
			if sample > 1 {
				sample = 1
			} else if sample < -1 {
				sample = -1
			}
			data[i*numChannels+c] = int(sample * maxValue)
		}
	}

	encoder := wav.NewEncoder(file, buf.SampleRate, pcmBitDepth, numChannels, wavFormatPCM)
	err = encoder.Write(&audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: numChannels,
			SampleRate:  buf.SampleRate,
		},
		Data:           data,
		SourceBitDepth: pcmBitDepth,
	})
	if err != nil {
		return errctx.Wrap(err).Error("Failed to write pcm data")
	}

	if err := encoder.Close(); err != nil {
		return errctx.Wrap(err).Error("Failed to finalize wav header")
	}

	return nil
}
