package pipeline_test

import (
	"context"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/veedubyou/stemsplit/src/shared/config/prod"
	"github.com/veedubyou/stemsplit/src/shared/failure"
	jobentity "github.com/veedubyou/stemsplit/src/shared/job/entity"
	"github.com/veedubyou/stemsplit/src/shared/lib/storagepath"
	"github.com/veedubyou/stemsplit/src/shared/lib/working_dir"
	. "github.com/veedubyou/stemsplit/src/shared/testing"
	"github.com/veedubyou/stemsplit/src/shared/testing/dummy"
	"github.com/veedubyou/stemsplit/src/worker/audio/codec"
	"github.com/veedubyou/stemsplit/src/worker/pipeline"
	"github.com/veedubyou/stemsplit/src/worker/storage"
)

type stageReport struct {
	stage   jobentity.Stage
	percent int
}

var _ = Describe("Pipeline", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc

		dummyFileStore *dummy.FileStore
		dummyFFmpeg    *dummy.FFmpegExecutor
		dummySeparator *dummy.Separator

		paths   storagepath.Generator
		encoder codec.Encoder
		target  codec.Target
		job     jobentity.Job

		reports  []stageReport
		onReport func(stage jobentity.Stage)

		jobPipeline pipeline.Pipeline

		uploadWAV = func(seconds float64) string {
			buf := SineWave(target.SampleRate, target.Channels, time.Duration(seconds*float64(time.Second)), 220)
			data, err := encoder.Encode(context.Background(), buf, codec.WAV)
			ExpectWithOffset(1, err).NotTo(HaveOccurred())

			ref := paths.UploadPath("owner", "upload", ".wav")
			ExpectWithOffset(1, dummyFileStore.WriteFile(context.Background(), ref, data)).To(Succeed())
			return ref
		}
		run = func() (jobentity.StemOutputs, error) {
			return jobPipeline.Run(ctx, job, func(stage jobentity.Stage, percent int) {
				reports = append(reports, stageReport{stage: stage, percent: percent})
				if onReport != nil {
					onReport(stage)
				}
			})
		}
		countReports = func(stage jobentity.Stage) int {
			count := 0
			for _, report := range reports {
				if report.stage == stage {
					count++
				}
			}
			return count
		}
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		DeferCleanup(cancel)

		By("Instantiating all mocks", func() {
			dummyFileStore = dummy.NewDummyFileStore()
			dummyFFmpeg = dummy.NewDummyFFmpegExecutor()
			dummySeparator = dummy.NewDummySeparator()
		})

		By("Instantiating the pipeline", func() {
			dir, err := os.MkdirTemp("", "pipeline-test-*")
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(func() {
				_ = os.RemoveAll(dir)
			})
			workingDir := ExpectSuccess(working_dir.NewWorkingDir(dir))

			paths = storagepath.Generator{Host: prod.GOOGLE_STORAGE_HOST, Bucket: "stems-test"}
			gateway := storage.NewGateway(dummyFileStore, paths, workingDir).WithRetryInterval(time.Millisecond)

			target = codec.Target{SampleRate: 8000, Channels: 1}
			ffmpeg := codec.NewFFmpeg("/somewhere/ffmpeg", dummyFFmpeg)
			encoder = codec.NewEncoder(ffmpeg, workingDir)
			decoder := codec.NewDecoder(ffmpeg, workingDir, target)

			jobPipeline = pipeline.NewPipeline(gateway, decoder, dummySeparator, encoder, codec.MP3)
		})

		reports = nil
		onReport = nil
		job = jobentity.Job{
			ID:    "job-id",
			Owner: "owner",
			State: jobentity.Running,
		}
	})

	Describe("Happy path", func() {
		BeforeEach(func() {
			job.InputRef = uploadWAV(1)
		})

		It("stores every stem and returns where", func() {
			outputs, err := run()
			Expect(err).NotTo(HaveOccurred())

			Expect(outputs).To(HaveLen(4))
			for _, stem := range dummySeparator.StemNames() {
				url := paths.StemPath(job.ID, stem, ".mp3")
				Expect(outputs).To(HaveKeyWithValue(stem, url))
				Expect(dummyFileStore.Exists(ctx, url)).To(BeTrue())
			}
		})

		It("reports every stage in order", func() {
			_, err := run()
			Expect(err).NotTo(HaveOccurred())

			Expect(reports[0].stage).To(Equal(jobentity.Materializing))
			Expect(reports[1].stage).To(Equal(jobentity.Decoding))
			Expect(reports[2].stage).To(Equal(jobentity.Separating))
			Expect(countReports(jobentity.Encoding)).To(Equal(4))
			Expect(countReports(jobentity.Persisting)).To(Equal(4))

			for i := 1; i < len(reports); i++ {
				Expect(reports[i].percent).To(BeNumerically(">=", reports[i-1].percent))
			}
			Expect(reports[len(reports)-1].percent).To(BeNumerically("<=", 100))
		})
	})

	Describe("Input problems", func() {
		It("fails an empty input before separating", func() {
			job.InputRef = paths.UploadPath("owner", "upload", ".mp3")
			Expect(dummyFileStore.WriteFile(ctx, job.InputRef, []byte{})).To(Succeed())

			_, err := run()
			Expect(failure.KindOf(err)).To(Equal(failure.EmptyInput))
			Expect(dummySeparator.SeparateCalls()).To(BeZero())
		})

		It("fails an overly long input without running the separator", func() {
			dummySeparator.MaxDuration = 500 * time.Millisecond
			job.InputRef = uploadWAV(1)

			_, err := run()
			Expect(failure.KindOf(err)).To(Equal(failure.InputTooLong))
			Expect(dummySeparator.SeparateCalls()).To(BeZero())
		})

		It("fails an input that can't be decoded", func() {
			job.InputRef = paths.UploadPath("owner", "upload", ".ogg")
			Expect(dummyFileStore.WriteFile(ctx, job.InputRef, []byte("not a vorbis stream"))).To(Succeed())

			_, err := run()
			Expect(failure.KindOf(err)).To(Equal(failure.UnsupportedFormat))
		})

		It("fails a missing input", func() {
			job.InputRef = paths.UploadPath("owner", "gone", ".wav")

			_, err := run()
			Expect(failure.KindOf(err)).To(Equal(failure.InvalidInput))
		})
	})

	Describe("Stopping partway", func() {
		BeforeEach(func() {
			job.InputRef = uploadWAV(1)
		})

		It("stops at the next checkpoint when cancelled and discards stored stems", func() {
			onReport = func(stage jobentity.Stage) {
				if stage == jobentity.Encoding && countReports(jobentity.Encoding) == 2 {
					cancel()
				}
			}

			_, err := run()
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(countReports(jobentity.Persisting)).To(Equal(1))
			Expect(dummyFileStore.URLs()).To(ConsistOf(job.InputRef))
		})

		It("carries the cancellation cause", func() {
			causeCtx, cancelWithCause := context.WithCancelCause(context.Background())
			ctx = causeCtx
			timedOut := errors.New("took too long")

			onReport = func(stage jobentity.Stage) {
				if stage == jobentity.Separating {
					cancelWithCause(timedOut)
				}
			}

			_, err := run()
			Expect(errors.Is(err, timedOut)).To(BeTrue())
			Expect(dummyFileStore.URLs()).To(ConsistOf(job.InputRef))
		})

		It("discards stored stems when a later stem fails to encode", func() {
			onReport = func(stage jobentity.Stage) {
				if stage == jobentity.Encoding && countReports(jobentity.Encoding) == 3 {
					dummyFFmpeg.FailEncoding = true
				}
			}

			_, err := run()
			Expect(failure.KindOf(err)).To(Equal(failure.EncodingError))
			Expect(dummyFileStore.URLs()).To(ConsistOf(job.InputRef))
		})

		It("reports storage failures", func() {
			onReport = func(stage jobentity.Stage) {
				if stage == jobentity.Persisting {
					dummyFileStore.Unavailable = true
				}
			}

			_, err := run()
			Expect(failure.KindOf(err)).To(Equal(failure.StorageError))
		})
	})
})
