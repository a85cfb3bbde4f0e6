package separation_test

import (
	"context"
	"math"
	"time"

	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/veedubyou/stemsplit/src/shared/failure"
	. "github.com/veedubyou/stemsplit/src/shared/testing"
	"github.com/veedubyou/stemsplit/src/worker/audio"
	"github.com/veedubyou/stemsplit/src/worker/separation"
)

func energy(buf audio.Buffer) float64 {
	var sum float64
	for _, channel := range buf.Channels {
		for _, sample := range channel {
			sum += float64(sample) * float64(sample)
		}
	}

	return sum
}

var _ = Describe("Engine", func() {
	var (
		ctx    context.Context
		model  *separation.Model
		engine *separation.Engine
		mix    audio.Buffer
	)

	BeforeEach(func() {
		ctx = context.Background()
		model = ExpectSuccess(separation.ParseModel([]byte(smallModelTOML)))
		engine = separation.NewEngine(model, 10*time.Second)
		mix = Mixture(model.SampleRate, model.Channels, 2*time.Second)
	})

	Describe("Separating", func() {
		It("produces the model's stems in order", func() {
			stems, err := engine.SeparateAll(ctx, mix)
			Expect(err).NotTo(HaveOccurred())
			Expect(stems.Names()).To(Equal([]string{"low", "hits", "rest"}))

			for _, stem := range stems {
				Expect(stem.Buffer.SampleRate).To(Equal(mix.SampleRate))
				Expect(stem.Buffer.Frames()).To(Equal(mix.Frames()))
				Expect(stem.Buffer.NumChannels()).To(Equal(mix.NumChannels()))
			}
		})

		It("produces stems that sum back to the mix", func() {
			stems, err := engine.SeparateAll(ctx, mix)
			Expect(err).NotTo(HaveOccurred())

			mse := audio.MeanSquaredError(stems.Mixdown(), mix)
			Expect(mse).To(BeNumerically("<", separation.ReconstructionTolerance))
		})

		It("reconstructs with a built-in model too", func() {
			builtin := ExpectSuccess(separation.LoadModel("bandsplit-4stems"))
			stereo := Mixture(builtin.SampleRate, builtin.Channels, time.Second)

			stems, err := separation.NewEngine(builtin, time.Minute).SeparateAll(ctx, stereo)
			Expect(err).NotTo(HaveOccurred())
			Expect(stems).To(HaveLen(4))
			Expect(audio.MeanSquaredError(stems.Mixdown(), stereo)).To(BeNumerically("<", separation.ReconstructionTolerance))
		})

		It("is deterministic", func() {
			first := ExpectSuccess(engine.SeparateAll(ctx, mix))
			second := ExpectSuccess(engine.SeparateAll(ctx, mix))
			Expect(second).To(Equal(first))
		})

		It("puts a steady low tone in the low band stem", func() {
			tone := SineWave(model.SampleRate, model.Channels, time.Second, 110)
			stems := ExpectSuccess(engine.SeparateAll(ctx, tone))

			low, _ := stems.Get("low")
			hits, _ := stems.Get("hits")
			rest, _ := stems.Get("rest")
			Expect(energy(low)).To(BeNumerically(">", energy(hits)))
			Expect(energy(low)).To(BeNumerically(">", energy(rest)))
		})

		It("handles input shorter than one frame", func() {
			short := SineWave(model.SampleRate, model.Channels, 10*time.Millisecond, 440)
			stems := ExpectSuccess(engine.SeparateAll(ctx, short))
			Expect(audio.MeanSquaredError(stems.Mixdown(), short)).To(BeNumerically("<", separation.ReconstructionTolerance))
		})
	})

	Describe("Cancellation", func() {
		It("stops between stems", func() {
			cancelCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			received := []string{}
			err := engine.Separate(cancelCtx, mix, func(_ context.Context, stem audio.Stem) error {
				received = append(received, stem.Name)
				cancel()
				return nil
			})

			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(received).To(Equal([]string{"low"}))
		})

		It("stops when the stem handler fails", func() {
			handlerErr := errors.New("disk full")
			calls := 0
			err := engine.Separate(ctx, mix, func(context.Context, audio.Stem) error {
				calls++
				return handlerErr
			})

			Expect(errors.Is(err, handlerErr)).To(BeTrue())
			Expect(calls).To(Equal(1))
		})
	})

	Describe("Validation", func() {
		It("rejects input longer than the ceiling", func() {
			engine = separation.NewEngine(model, time.Second)

			err := engine.Validate(mix)
			Expect(failure.KindOf(err)).To(Equal(failure.InputTooLong))

			calls := 0
			err = engine.Separate(ctx, mix, func(context.Context, audio.Stem) error {
				calls++
				return nil
			})
			Expect(failure.KindOf(err)).To(Equal(failure.InputTooLong))
			Expect(calls).To(BeZero())
		})

		It("accepts any length without a ceiling", func() {
			engine = separation.NewEngine(model, 0)
			Expect(engine.Validate(mix)).To(Succeed())
		})

		It("rejects a mismatched layout", func() {
			stereo := Mixture(model.SampleRate, 2, time.Second)
			Expect(failure.KindOf(engine.Validate(stereo))).To(Equal(failure.InferenceError))

			resampled := Mixture(16000, model.Channels, time.Second)
			Expect(failure.KindOf(engine.Validate(resampled))).To(Equal(failure.InferenceError))
		})

		It("rejects non-finite samples", func() {
			mix.Channels[0][100] = float32(math.NaN())
			Expect(failure.KindOf(engine.Validate(mix))).To(Equal(failure.InferenceError))
		})

		It("rejects empty input", func() {
			empty := audio.Silence(model.SampleRate, model.Channels, 0)
			Expect(failure.KindOf(engine.Validate(empty))).To(Equal(failure.EmptyInput))
		})

		It("reports a missing model", func() {
			engine = separation.NewEngine(nil, time.Minute)
			Expect(failure.KindOf(engine.Validate(mix))).To(Equal(failure.ModelUnavailable))
			Expect(engine.StemNames()).To(BeEmpty())
		})
	})
})
