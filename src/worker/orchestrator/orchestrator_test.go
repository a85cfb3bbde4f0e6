package orchestrator_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rabbitmq/amqp091-go"
	"github.com/veedubyou/stemsplit/src/shared/config/prod"
	"github.com/veedubyou/stemsplit/src/shared/failure"
	jobentity "github.com/veedubyou/stemsplit/src/shared/job/entity"
	"github.com/veedubyou/stemsplit/src/shared/job/job_message"
	"github.com/veedubyou/stemsplit/src/shared/lib/rabbitmq"
	"github.com/veedubyou/stemsplit/src/shared/lib/storagepath"
	"github.com/veedubyou/stemsplit/src/shared/lib/working_dir"
	. "github.com/veedubyou/stemsplit/src/shared/testing"
	"github.com/veedubyou/stemsplit/src/shared/testing/dummy"
	"github.com/veedubyou/stemsplit/src/worker/audio/codec"
	"github.com/veedubyou/stemsplit/src/worker/orchestrator"
	"github.com/veedubyou/stemsplit/src/worker/pipeline"
	"github.com/veedubyou/stemsplit/src/worker/storage"
)

// stubbornRunner ignores cancellation and reports success once released.
type stubbornRunner struct {
	fileStore *dummy.FileStore
	paths     storagepath.Generator
	release   chan struct{}
	started   chan string
}

func (s stubbornRunner) Run(_ context.Context, job jobentity.Job, _ pipeline.ProgressReporter) (jobentity.StemOutputs, error) {
	s.started <- job.ID
	<-s.release

	url := s.paths.StemPath(job.ID, "vocals", ".wav")
	if err := s.fileStore.WriteFile(context.Background(), url, []byte("late")); err != nil {
		return nil, err
	}

	return jobentity.StemOutputs{"vocals": url}, nil
}

var _ = Describe("Orchestrator", func() {
	const owner = "owner-id"

	var (
		ctx context.Context

		dummyFileStore *dummy.FileStore
		dummyJobStore  *dummy.JobStore
		dummySeparator *dummy.Separator
		dummyRabbitMQ  *dummy.RabbitMQ

		paths      storagepath.Generator
		target     codec.Target
		encoder    codec.Encoder
		gateway    storage.Gateway
		runner     orchestrator.Runner
		publisher  rabbitmq.Publisher
		config     orchestrator.Config
		clock      func() time.Time
		subject    *orchestrator.Orchestrator
		uploadSeq  int
		uploadLock sync.Mutex

		uploadWAVFor = func(uploader string, seconds float64) string {
			uploadLock.Lock()
			uploadSeq++
			seq := uploadSeq
			uploadLock.Unlock()

			buf := SineWave(target.SampleRate, target.Channels, time.Duration(seconds*float64(time.Second)), 220)
			data, err := encoder.Encode(context.Background(), buf, codec.WAV)
			ExpectWithOffset(1, err).NotTo(HaveOccurred())

			ref := paths.UploadPath(uploader, fmt.Sprintf("upload-%d", seq), ".wav")
			ExpectWithOffset(1, dummyFileStore.WriteFile(context.Background(), ref, data)).To(Succeed())
			return ref
		}
		uploadWAV = func(seconds float64) string {
			return uploadWAVFor(owner, seconds)
		}
		storedState = func(jobID string) func() jobentity.State {
			return func() jobentity.State {
				return ExpectSuccess(dummyJobStore.GetJob(ctx, jobID)).State
			}
		}
		submit = func(inputRef string) jobentity.Job {
			job, err := subject.Submit(ctx, orchestrator.SubmitRequest{Owner: owner, InputRef: inputRef})
			ExpectWithOffset(1, err).NotTo(HaveOccurred())
			return job
		}
		stateOf = func(jobID string) func() jobentity.State {
			return func() jobentity.State {
				job, err := subject.Status(ctx, jobID)
				Expect(err).NotTo(HaveOccurred())
				return job.State
			}
		}
		stemURLs = func() []string {
			urls := []string{}
			for _, url := range dummyFileStore.URLs() {
				if strings.HasPrefix(url, paths.GeneratePath("jobs")+"/") {
					urls = append(urls, url)
				}
			}
			return urls
		}
	)

	BeforeEach(func() {
		ctx = context.Background()

		By("Instantiating all mocks", func() {
			dummyFileStore = dummy.NewDummyFileStore()
			dummyJobStore = dummy.NewDummyJobStore()
			dummySeparator = dummy.NewDummySeparator()
			dummyRabbitMQ = dummy.NewRabbitMQ()
		})

		By("Building the real pipeline around the mocks", func() {
			dir, err := os.MkdirTemp("", "orchestrator-test-*")
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(func() {
				_ = os.RemoveAll(dir)
			})
			workingDir := ExpectSuccess(working_dir.NewWorkingDir(dir))

			paths = storagepath.Generator{Host: prod.GOOGLE_STORAGE_HOST, Bucket: "stems-test"}
			gateway = storage.NewGateway(dummyFileStore, paths, workingDir).WithRetryInterval(time.Millisecond)

			target = codec.Target{SampleRate: 8000, Channels: 1}
			ffmpeg := codec.NewFFmpeg("/somewhere/ffmpeg", dummy.NewDummyFFmpegExecutor())
			encoder = codec.NewEncoder(ffmpeg, workingDir)
			decoder := codec.NewDecoder(ffmpeg, workingDir, target)

			runner = pipeline.NewPipeline(gateway, decoder, dummySeparator, encoder, codec.WAV)
		})

		publisher = nil
		clock = nil
		config = orchestrator.Config{
			Workers:    2,
			JobTimeout: 10 * time.Second,
			Retention:  time.Hour,
		}
	})

	JustBeforeEach(func() {
		recorder := orchestrator.NewRecorder(dummyJobStore, publisher).WithRetryInterval(time.Millisecond)

		var err error
		subject, err = orchestrator.NewOrchestrator(config, runner, gateway, dummyJobStore, recorder)
		Expect(err).NotTo(HaveOccurred())
		if clock != nil {
			subject.WithClock(clock)
		}

		Expect(subject.Start(ctx)).To(Succeed())
		DeferCleanup(subject.Stop)
	})

	Describe("Happy path", func() {
		It("queues a job and runs it to success", func() {
			job := submit(uploadWAV(1))
			Expect(job.State).To(Equal(jobentity.Queued))
			Expect(job.ID).NotTo(BeEmpty())

			Expect(stateOf(job.ID)()).To(BeElementOf(jobentity.Queued, jobentity.Running, jobentity.Succeeded))
			Eventually(stateOf(job.ID)).Should(Equal(jobentity.Succeeded))

			finished := ExpectSuccess(subject.Status(ctx, job.ID))
			Expect(finished.Error).To(BeNil())
			Expect(finished.Progress).To(Equal(100))
			Expect(finished.StartedAt).NotTo(BeNil())
			Expect(finished.FinishedAt).NotTo(BeNil())
			Expect(finished.StartedAt.Before(finished.CreatedAt)).To(BeFalse())
			Expect(finished.FinishedAt.Before(*finished.StartedAt)).To(BeFalse())

			Expect(finished.StemOutputs).To(HaveLen(len(dummySeparator.StemNames())))
			for _, stem := range dummySeparator.StemNames() {
				Expect(finished.StemOutputs).To(HaveKeyWithValue(stem, paths.StemPath(job.ID, stem, ".wav")))
			}
		})

		It("records every transition in order", func() {
			job := submit(uploadWAV(1))
			Eventually(stateOf(job.ID)).Should(Equal(jobentity.Succeeded))

			Eventually(func() []jobentity.State {
				return dummyJobStore.History(job.ID)
			}).Should(Equal([]jobentity.State{jobentity.Queued, jobentity.Running, jobentity.Succeeded}))
		})

		It("lists only the owner's jobs, newest first", func() {
			first := submit(uploadWAV(1))
			time.Sleep(2 * time.Millisecond)
			second := submit(uploadWAV(1))

			otherRef := uploadWAVFor("someone-else", 1)
			_, err := subject.Submit(ctx, orchestrator.SubmitRequest{Owner: "someone-else", InputRef: otherRef})
			Expect(err).NotTo(HaveOccurred())

			jobs := ExpectSuccess(subject.List(ctx, owner))
			Expect(jobs).To(HaveLen(2))
			Expect(jobs[0].ID).To(Equal(second.ID))
			Expect(jobs[1].ID).To(Equal(first.ID))
		})
	})

	Describe("Publishing transitions", func() {
		BeforeEach(func() {
			publisher = dummyRabbitMQ
		})

		It("publishes a state change event per transition", func() {
			job := submit(uploadWAV(1))

			states := []jobentity.State{}
			for len(states) < 3 {
				var delivery amqp091.Delivery
				Eventually(dummyRabbitMQ.MessageChannel).Should(Receive(&delivery))
				Expect(delivery.Type).To(Equal(job_message.JobStateChangedType))

				event := job_message.JobStateChanged{}
				Expect(json.Unmarshal(delivery.Body, &event)).To(Succeed())
				Expect(event.Job.ID).To(Equal(job.ID))
				states = append(states, event.Job.State)
			}

			Expect(states).To(Equal([]jobentity.State{jobentity.Queued, jobentity.Running, jobentity.Succeeded}))
		})
	})

	Describe("Rejected submissions", func() {
		It("rejects a reference that doesn't resolve", func() {
			_, err := subject.Submit(ctx, orchestrator.SubmitRequest{Owner: owner, InputRef: paths.UploadPath(owner, "missing", ".wav")})
			Expect(failure.KindOf(err)).To(Equal(failure.InvalidInput))
		})

		It("rejects another owner's upload", func() {
			_, err := subject.Submit(ctx, orchestrator.SubmitRequest{Owner: "someone-else", InputRef: uploadWAV(1)})
			Expect(failure.KindOf(err)).To(Equal(failure.InvalidInput))

			Expect(subject.List(ctx, "someone-else")).To(BeEmpty())
		})

		It("rejects stems of another job as input", func() {
			stem := paths.StemPath("some-job", "vocals", ".wav")
			Expect(dummyFileStore.WriteFile(ctx, stem, []byte("RIFF"))).To(Succeed())

			_, err := subject.Submit(ctx, orchestrator.SubmitRequest{Owner: owner, InputRef: stem})
			Expect(failure.KindOf(err)).To(Equal(failure.InvalidInput))
		})

		It("rejects unsupported formats", func() {
			ref := paths.UploadPath(owner, "doc", ".pdf")
			Expect(dummyFileStore.WriteFile(ctx, ref, []byte("%PDF"))).To(Succeed())

			_, err := subject.Submit(ctx, orchestrator.SubmitRequest{Owner: owner, InputRef: ref})
			Expect(failure.KindOf(err)).To(Equal(failure.UnsupportedFormat))
		})

		It("rejects anonymous and blank submissions", func() {
			_, err := subject.Submit(ctx, orchestrator.SubmitRequest{InputRef: uploadWAV(1)})
			Expect(failure.KindOf(err)).To(Equal(failure.Unauthorized))

			_, err = subject.Submit(ctx, orchestrator.SubmitRequest{Owner: owner})
			Expect(failure.KindOf(err)).To(Equal(failure.InvalidInput))

			Expect(subject.List(ctx, owner)).To(BeEmpty())
		})

		It("reports unknown jobs as not found", func() {
			_, err := subject.Status(ctx, "no-such-job")
			Expect(failure.KindOf(err)).To(Equal(failure.NotFound))

			_, err = subject.Cancel(ctx, "no-such-job")
			Expect(failure.KindOf(err)).To(Equal(failure.NotFound))
		})
	})

	Describe("Failing jobs", func() {
		It("fails an empty input", func() {
			ref := paths.UploadPath(owner, "empty", ".mp3")
			Expect(dummyFileStore.WriteFile(ctx, ref, []byte{})).To(Succeed())

			job := submit(ref)
			Eventually(stateOf(job.ID)).Should(Equal(jobentity.Failed))

			failed := ExpectSuccess(subject.Status(ctx, job.ID))
			Expect(failed.Error.Kind).To(Equal(failure.EmptyInput))
			Expect(failed.StemOutputs).To(BeEmpty())
		})

		It("fails an overly long input without running the separator", func() {
			dummySeparator.MaxDuration = 500 * time.Millisecond

			job := submit(uploadWAV(1))
			Eventually(stateOf(job.ID)).Should(Equal(jobentity.Failed))

			failed := ExpectSuccess(subject.Status(ctx, job.ID))
			Expect(failed.Error.Kind).To(Equal(failure.InputTooLong))
			Expect(dummySeparator.SeparateCalls()).To(BeZero())
		})

		It("turns a panic into an internal error", func() {
			dummySeparator.Panic = true

			job := submit(uploadWAV(1))
			Eventually(stateOf(job.ID)).Should(Equal(jobentity.Failed))

			failed := ExpectSuccess(subject.Status(ctx, job.ID))
			Expect(failed.Error.Kind).To(Equal(failure.InternalError))

			By("Carrying on with the next job", func() {
				dummySeparator.Panic = false
				next := submit(uploadWAV(1))
				Eventually(stateOf(next.ID)).Should(Equal(jobentity.Succeeded))
			})
		})
	})

	Describe("Cancellation", func() {
		BeforeEach(func() {
			config.Workers = 1
			dummySeparator.Hold = make(chan struct{})
		})

		It("cancels a queued job immediately and never runs it", func() {
			blocker := submit(uploadWAV(1))
			Eventually(stateOf(blocker.ID)).Should(Equal(jobentity.Running))

			queued := submit(uploadWAV(1))
			cancelled, err := subject.Cancel(ctx, queued.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(cancelled.State).To(Equal(jobentity.Cancelled))
			Expect(cancelled.Error).To(BeNil())
			Expect(cancelled.StemOutputs).To(BeEmpty())

			close(dummySeparator.Hold)
			Eventually(stateOf(blocker.ID)).Should(Equal(jobentity.Succeeded))
			Consistently(stateOf(queued.ID), 100*time.Millisecond).Should(Equal(jobentity.Cancelled))
			Expect(dummySeparator.SeparateCalls()).To(Equal(1))
		})

		It("cancels a running job at its next checkpoint", func() {
			job := submit(uploadWAV(1))
			Eventually(stateOf(job.ID)).Should(Equal(jobentity.Running))

			signalled, err := subject.Cancel(ctx, job.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(signalled.State).To(BeElementOf(jobentity.Running, jobentity.Cancelled))

			Eventually(stateOf(job.ID)).Should(Equal(jobentity.Cancelled))
			Consistently(stateOf(job.ID), 100*time.Millisecond).Should(Equal(jobentity.Cancelled))
			Expect(stemURLs()).To(BeEmpty())
		})

		It("treats cancelling a finished job as a no-op", func() {
			close(dummySeparator.Hold)
			job := submit(uploadWAV(1))
			Eventually(stateOf(job.ID)).Should(Equal(jobentity.Succeeded))

			again, err := subject.Cancel(ctx, job.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(again.State).To(Equal(jobentity.Succeeded))
			Expect(again.StemOutputs).NotTo(BeEmpty())
		})
	})

	Describe("Late results", func() {
		var stubborn stubbornRunner

		BeforeEach(func() {
			config.Workers = 1
			stubborn = stubbornRunner{
				fileStore: dummyFileStore,
				paths:     paths,
				release:   make(chan struct{}),
				started:   make(chan string, 10),
			}
			runner = stubborn
		})

		It("never lets a cancelled job succeed", func() {
			job := submit(uploadWAV(1))
			Eventually(stubborn.started).Should(Receive(Equal(job.ID)))

			_, err := subject.Cancel(ctx, job.ID)
			Expect(err).NotTo(HaveOccurred())
			close(stubborn.release)

			Eventually(stateOf(job.ID)).Should(Equal(jobentity.Cancelled))
			Consistently(stateOf(job.ID), 100*time.Millisecond).Should(Equal(jobentity.Cancelled))

			cancelled := ExpectSuccess(subject.Status(ctx, job.ID))
			Expect(cancelled.StemOutputs).To(BeEmpty())
			Eventually(stemURLs).Should(BeEmpty())
		})

		Describe("Timeouts", func() {
			BeforeEach(func() {
				config.JobTimeout = 100 * time.Millisecond
			})

			It("fails the job with a timeout as soon as the deadline passes", func() {
				job := submit(uploadWAV(1))
				Eventually(stubborn.started).Should(Receive(Equal(job.ID)))

				Eventually(stateOf(job.ID)).Should(Equal(jobentity.Failed))
				timedOut := ExpectSuccess(subject.Status(ctx, job.ID))
				Expect(timedOut.Error.Kind).To(Equal(failure.Timeout))

				By("Throwing away what the worker produces afterwards", func() {
					close(stubborn.release)
					Consistently(stateOf(job.ID), 100*time.Millisecond).Should(Equal(jobentity.Failed))
					Eventually(stemURLs).Should(BeEmpty())
				})
			})
		})
	})

	Describe("Worker pool", func() {
		BeforeEach(func() {
			config.Workers = 2
			dummySeparator.StemDelay = 10 * time.Millisecond
		})

		It("never runs more jobs than it has workers", func() {
			jobs := []jobentity.Job{}
			for i := 0; i < 6; i++ {
				jobs = append(jobs, submit(uploadWAV(0.5)))
			}

			for _, job := range jobs {
				Eventually(stateOf(job.ID), 5*time.Second).Should(Equal(jobentity.Succeeded))
			}

			Expect(dummySeparator.SeparateCalls()).To(Equal(6))
			Expect(dummySeparator.MaxRunning()).To(BeNumerically(">", 0))
			Expect(dummySeparator.MaxRunning()).To(BeNumerically("<=", config.Workers))
		})
	})

	Describe("Cleanup", func() {
		It("refuses to delete an unfinished job", func() {
			dummySeparator.Hold = make(chan struct{})
			DeferCleanup(func() {
				close(dummySeparator.Hold)
			})

			job := submit(uploadWAV(1))
			err := subject.Delete(ctx, job.ID)
			Expect(failure.KindOf(err)).To(Equal(failure.InvalidInput))
		})

		It("deletes a finished job's outputs and record", func() {
			job := submit(uploadWAV(1))
			Eventually(stateOf(job.ID)).Should(Equal(jobentity.Succeeded))
			Expect(stemURLs()).NotTo(BeEmpty())

			Expect(subject.Delete(ctx, job.ID)).To(Succeed())
			Expect(stemURLs()).To(BeEmpty())

			Eventually(func() error {
				_, err := subject.Status(ctx, job.ID)
				return err
			}).Should(WithTransform(failure.KindOf, Equal(failure.NotFound)))
		})

		It("evicts old finished jobs from memory but keeps their records", func() {
			job := submit(uploadWAV(1))
			Eventually(stateOf(job.ID)).Should(Equal(jobentity.Succeeded))
			Eventually(func() []jobentity.State {
				return dummyJobStore.History(job.ID)
			}).Should(HaveLen(3))

			Expect(subject.EvictExpired(time.Now())).To(BeZero())
			Expect(subject.EvictExpired(time.Now().Add(2 * config.Retention))).To(Equal(1))

			stored := ExpectSuccess(subject.Status(ctx, job.ID))
			Expect(stored.State).To(Equal(jobentity.Succeeded))
			Expect(stored.StemOutputs).To(HaveLen(4))
		})
	})

	Describe("Restart recovery", func() {
		var runningJob, queuedJob jobentity.Job

		BeforeEach(func() {
			started := time.Now().UTC()
			runningJob = jobentity.Job{ID: "running-job", Owner: owner, State: jobentity.Running, CreatedAt: started, StartedAt: &started}
			queuedJob = jobentity.Job{ID: "queued-job", Owner: owner, State: jobentity.Queued, CreatedAt: started}

			Expect(dummyJobStore.PutJob(ctx, runningJob)).To(Succeed())
			Expect(dummyJobStore.PutJob(ctx, queuedJob)).To(Succeed())
		})

		It("fails unclaimed records a previous run left unfinished", func() {
			Eventually(storedState(runningJob.ID)).Should(Equal(jobentity.Failed))
			Eventually(storedState(queuedJob.ID)).Should(Equal(jobentity.Failed))

			Expect(ExpectSuccess(subject.Status(ctx, runningJob.ID)).Error.Kind).To(Equal(failure.Timeout))
			Expect(ExpectSuccess(subject.Status(ctx, queuedJob.ID)).Error.Kind).To(Equal(failure.InternalError))
		})

		Describe("Claimed records", func() {
			var orphaned, claimed, ownEarlier jobentity.Job

			BeforeEach(func() {
				config.InstanceID = "instance-a"
				config.Lease = time.Minute

				now := time.Now().UTC()
				orphaned = jobentity.Job{
					ID: "orphaned-job", Owner: owner, State: jobentity.Running, CreatedAt: now, StartedAt: &now,
					InstanceID: "instance-gone", UpdatedAt: now.Add(-10 * time.Minute),
				}
				claimed = jobentity.Job{
					ID: "claimed-job", Owner: owner, State: jobentity.Running, CreatedAt: now, StartedAt: &now,
					InstanceID: "instance-b", UpdatedAt: now,
				}
				ownEarlier = jobentity.Job{
					ID: "own-earlier-job", Owner: owner, State: jobentity.Queued, CreatedAt: now,
					InstanceID: "instance-a", UpdatedAt: now,
				}

				for _, job := range []jobentity.Job{orphaned, claimed, ownEarlier} {
					Expect(dummyJobStore.PutJob(ctx, job)).To(Succeed())
				}
			})

			It("fails records whose lease ran out", func() {
				Eventually(storedState(orphaned.ID)).Should(Equal(jobentity.Failed))
				Expect(ExpectSuccess(dummyJobStore.GetJob(ctx, orphaned.ID)).Error.Kind).To(Equal(failure.Timeout))
			})

			It("fails records its own earlier run held", func() {
				Eventually(storedState(ownEarlier.ID)).Should(Equal(jobentity.Failed))
			})

			It("leaves records another live instance holds", func() {
				Eventually(storedState(orphaned.ID)).Should(Equal(jobentity.Failed))
				Consistently(storedState(claimed.ID), 100*time.Millisecond).Should(Equal(jobentity.Running))
			})
		})
	})

	Describe("Sharing a store with another instance", func() {
		var other *orchestrator.Orchestrator

		var startOther = func() {
			recorder := orchestrator.NewRecorder(dummyJobStore, nil).WithRetryInterval(time.Millisecond)

			var err error
			other, err = orchestrator.NewOrchestrator(config, runner, gateway, dummyJobStore, recorder)
			Expect(err).NotTo(HaveOccurred())
			Expect(other.Start(ctx)).To(Succeed())
			DeferCleanup(other.Stop)
		}

		BeforeEach(func() {
			config.Workers = 1
			config.Lease = 150 * time.Millisecond
			dummySeparator.Hold = make(chan struct{})
		})

		It("leaves a job the other instance is still running alone", func() {
			job := submit(uploadWAV(1))
			Eventually(stateOf(job.ID)).Should(Equal(jobentity.Running))

			By("Starting the second instance after the first lease would have run out", func() {
				time.Sleep(2 * config.Lease)
				startOther()
				Expect(other.InstanceID()).NotTo(Equal(subject.InstanceID()))
			})

			Consistently(storedState(job.ID), 3*config.Lease).Should(Equal(jobentity.Running))
			Expect(stateOf(job.ID)()).To(Equal(jobentity.Running))

			By("Refusing to cancel it from the instance that doesn't hold it", func() {
				_, err := other.Cancel(ctx, job.ID)
				Expect(failure.KindOf(err)).To(Equal(failure.InvalidInput))
			})

			close(dummySeparator.Hold)
			Eventually(stateOf(job.ID)).Should(Equal(jobentity.Succeeded))
			Eventually(storedState(job.ID)).Should(Equal(jobentity.Succeeded))
			Expect(dummyJobStore.History(job.ID)).NotTo(ContainElement(jobentity.Failed))
		})

		It("never moves a finished record to another terminal state", func() {
			job := submit(uploadWAV(1))
			Eventually(storedState(job.ID)).Should(Equal(jobentity.Running))

			By("Having the record failed from elsewhere while the job runs", func() {
				failed := ExpectSuccess(dummyJobStore.GetJob(ctx, job.ID))
				finishedAt := time.Now().UTC()
				failed.State = jobentity.Failed
				failed.FinishedAt = &finishedAt
				failed.Error = &failure.Failure{Kind: failure.Timeout, Message: "the job ran out of time"}
				Expect(dummyJobStore.PutJob(ctx, failed)).To(Succeed())
			})

			close(dummySeparator.Hold)
			Eventually(stateOf(job.ID)).Should(Equal(jobentity.Succeeded))

			Consistently(storedState(job.ID), 100*time.Millisecond).Should(Equal(jobentity.Failed))
			history := dummyJobStore.History(job.ID)
			Expect(history[len(history)-1]).To(Equal(jobentity.Failed))
			Expect(history).NotTo(ContainElement(jobentity.Succeeded))
		})
	})

	Describe("Renaming", func() {
		It("renames queued and finished jobs", func() {
			job, err := subject.Submit(ctx, orchestrator.SubmitRequest{Owner: owner, InputRef: uploadWAV(1), InputName: "take 1"})
			Expect(err).NotTo(HaveOccurred())

			renamed := ExpectSuccess(subject.Rename(ctx, job.ID, " take 2 "))
			Expect(renamed.InputName).To(Equal("take 2"))

			Eventually(stateOf(job.ID)).Should(Equal(jobentity.Succeeded))
			Expect(ExpectSuccess(subject.Status(ctx, job.ID)).InputName).To(Equal("take 2"))

			ExpectSuccess(subject.Rename(ctx, job.ID, "final"))
			Eventually(func() string {
				return ExpectSuccess(dummyJobStore.GetJob(ctx, job.ID)).InputName
			}).Should(Equal("final"))
		})

		It("renames jobs only the store still holds", func() {
			job := submit(uploadWAV(1))
			Eventually(stateOf(job.ID)).Should(Equal(jobentity.Succeeded))
			Eventually(storedState(job.ID)).Should(Equal(jobentity.Succeeded))
			Expect(subject.EvictExpired(time.Now().Add(2 * config.Retention))).To(Equal(1))

			renamed := ExpectSuccess(subject.Rename(ctx, job.ID, "from the archive"))
			Expect(renamed.InputName).To(Equal("from the archive"))
			Expect(renamed.State).To(Equal(jobentity.Succeeded))
		})

		It("rejects blank and duplicate names", func() {
			first := submit(uploadWAV(1))
			second := submit(uploadWAV(1))
			ExpectSuccess(subject.Rename(ctx, first.ID, "taken"))

			_, err := subject.Rename(ctx, second.ID, "taken")
			Expect(failure.KindOf(err)).To(Equal(failure.InvalidInput))

			_, err = subject.Rename(ctx, second.ID, "   ")
			Expect(failure.KindOf(err)).To(Equal(failure.InvalidInput))

			_, err = subject.Rename(ctx, "no-such-job", "anything")
			Expect(failure.KindOf(err)).To(Equal(failure.NotFound))
		})
	})

	Describe("Clock steps", func() {
		BeforeEach(func() {
			var (
				clockLock sync.Mutex
				reads     int
			)
			base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

			// every read is a minute earlier than the last
			clock = func() time.Time {
				clockLock.Lock()
				defer clockLock.Unlock()
				reads++
				return base.Add(-time.Duration(reads) * time.Minute)
			}
		})

		It("keeps timestamps in order when the wall clock goes back", func() {
			job := submit(uploadWAV(1))
			Eventually(stateOf(job.ID)).Should(Equal(jobentity.Succeeded))

			finished := ExpectSuccess(subject.Status(ctx, job.ID))
			Expect(finished.StartedAt.Before(finished.CreatedAt)).To(BeFalse())
			Expect(finished.FinishedAt.Before(*finished.StartedAt)).To(BeFalse())
		})
	})

	Describe("Lifecycle", func() {
		It("stops an orchestrator that was never started", func() {
			recorder := orchestrator.NewRecorder(dummyJobStore, nil)
			idle, err := orchestrator.NewOrchestrator(config, runner, gateway, dummyJobStore, recorder)
			Expect(err).NotTo(HaveOccurred())

			stopped := make(chan struct{})
			go func() {
				defer close(stopped)
				idle.Stop()
			}()
			Eventually(stopped).Should(BeClosed())
		})

		It("refuses to start twice", func() {
			Expect(subject.Start(ctx)).NotTo(Succeed())
		})
	})
})
