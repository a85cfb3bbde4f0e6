package jobstorage_test

import (
	"context"
	"time"

	"github.com/cockroachdb/errors/markers"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/veedubyou/stemsplit/src/shared/failure"
	jobentity "github.com/veedubyou/stemsplit/src/shared/job/entity"
	jobstorage "github.com/veedubyou/stemsplit/src/shared/job/storage"
	. "github.com/veedubyou/stemsplit/src/shared/testing"
)

// itStoresJobs is run against every Store implementation. The caller's
// BeforeEach must set store.
func itStoresJobs(store *jobentity.Store) {
	var (
		ctx     context.Context
		created time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		created = time.UnixMilli(time.Now().UnixMilli()).UTC()
	})

	It("keeps the latest snapshot of a job", func() {
		job := jobentity.Job{
			ID:        "job-1",
			Owner:     "owner-id",
			State:     jobentity.Queued,
			InputRef:  "file:///tmp/bucket/uploads/owner-id/x/original.wav",
			InputName: "song.wav",
			CreatedAt: created,
		}
		Expect((*store).PutJob(ctx, job)).To(Succeed())

		finished := created.Add(time.Second)
		job.State = jobentity.Succeeded
		job.StartedAt = &created
		job.FinishedAt = &finished
		job.StemOutputs = jobentity.StemOutputs{"vocals": "file:///tmp/bucket/jobs/job-1/stems/vocals.wav"}
		Expect((*store).PutJob(ctx, job)).To(Succeed())

		stored := ExpectSuccess((*store).GetJob(ctx, "job-1"))
		Expect(stored).To(Equal(job))
	})

	It("round trips a failure", func() {
		finished := created.Add(time.Second)
		job := jobentity.Job{
			ID:         "job-2",
			Owner:      "owner-id",
			State:      jobentity.Failed,
			InputRef:   "ref",
			CreatedAt:  created,
			FinishedAt: &finished,
			Error:      &failure.Failure{Kind: failure.EmptyInput, Message: "input has no samples"},
		}
		Expect((*store).PutJob(ctx, job)).To(Succeed())

		stored := ExpectSuccess((*store).GetJob(ctx, "job-2"))
		Expect(stored.Error).To(Equal(job.Error))
		Expect(stored.StemOutputs).To(BeNil())
	})

	It("keeps the holding instance and its heartbeat", func() {
		heartbeat := created.Add(30 * time.Second)
		job := jobentity.Job{
			ID:         "job-3",
			Owner:      "owner-id",
			State:      jobentity.Running,
			InputRef:   "ref",
			CreatedAt:  created,
			StartedAt:  &created,
			InstanceID: "instance-a",
			UpdatedAt:  heartbeat,
		}
		Expect((*store).PutJob(ctx, job)).To(Succeed())

		stored := ExpectSuccess((*store).GetJob(ctx, "job-3"))
		Expect(stored.InstanceID).To(Equal("instance-a"))
		Expect(stored.UpdatedAt).To(Equal(heartbeat))
	})

	It("never replaces a finished record", func() {
		finished := created.Add(time.Second)
		job := jobentity.Job{
			ID:         "job-4",
			Owner:      "owner-id",
			State:      jobentity.Failed,
			InputRef:   "ref",
			CreatedAt:  created,
			FinishedAt: &finished,
			Error:      &failure.Failure{Kind: failure.Timeout, Message: "the job ran out of time"},
		}
		Expect((*store).PutJob(ctx, job)).To(Succeed())

		late := job.Clone()
		late.State = jobentity.Succeeded
		late.Error = nil
		late.StemOutputs = jobentity.StemOutputs{"vocals": "file:///tmp/bucket/jobs/job-4/stems/vocals.wav"}
		err := (*store).PutJob(ctx, late)
		Expect(markers.Is(err, jobstorage.JobFinishedMark)).To(BeTrue())

		stored := ExpectSuccess((*store).GetJob(ctx, "job-4"))
		Expect(stored.State).To(Equal(jobentity.Failed))
		Expect(stored.StemOutputs).To(BeNil())
	})

	It("renames a job in any state", func() {
		finished := created.Add(time.Second)
		job := jobentity.Job{
			ID:         "job-5",
			Owner:      "owner-id",
			State:      jobentity.Succeeded,
			InputRef:   "ref",
			InputName:  "take 1.wav",
			CreatedAt:  created,
			FinishedAt: &finished,
		}
		Expect((*store).PutJob(ctx, job)).To(Succeed())

		Expect((*store).RenameJob(ctx, "job-5", "final mix.wav")).To(Succeed())

		stored := ExpectSuccess((*store).GetJob(ctx, "job-5"))
		Expect(stored.InputName).To(Equal("final mix.wav"))
		Expect(stored.State).To(Equal(jobentity.Succeeded))

		err := (*store).RenameJob(ctx, "nope", "x")
		Expect(markers.Is(err, jobstorage.JobNotFound)).To(BeTrue())
	})

	It("rejects a job without an id", func() {
		err := (*store).PutJob(ctx, jobentity.Job{Owner: "owner-id"})
		Expect(markers.Is(err, jobstorage.IDEmptyMark)).To(BeTrue())
	})

	It("marks missing jobs", func() {
		_, err := (*store).GetJob(ctx, "nope")
		Expect(markers.Is(err, jobstorage.JobNotFound)).To(BeTrue())
	})

	Describe("Queries", func() {
		BeforeEach(func() {
			jobs := []jobentity.Job{
				{ID: "a", Owner: "alice", State: jobentity.Running, InputRef: "ref", CreatedAt: created},
				{ID: "b", Owner: "alice", State: jobentity.Succeeded, InputRef: "ref", CreatedAt: created.Add(time.Minute)},
				{ID: "c", Owner: "bob", State: jobentity.Queued, InputRef: "ref", CreatedAt: created.Add(2 * time.Minute)},
			}
			for _, job := range jobs {
				Expect((*store).PutJob(ctx, job)).To(Succeed())
			}
		})

		It("lists an owner's jobs newest first", func() {
			jobs := ExpectSuccess((*store).ListJobsForOwner(ctx, "alice"))
			Expect(jobs).To(HaveLen(2))
			Expect(jobs[0].ID).To(Equal("b"))
			Expect(jobs[1].ID).To(Equal("a"))
		})

		It("lists unfinished jobs", func() {
			jobs := ExpectSuccess((*store).ListUnfinishedJobs(ctx))
			ids := []string{}
			for _, job := range jobs {
				ids = append(ids, job.ID)
			}
			Expect(ids).To(Equal([]string{"a", "c"}))
		})

		It("deletes a job", func() {
			Expect((*store).DeleteJob(ctx, "a")).To(Succeed())

			_, err := (*store).GetJob(ctx, "a")
			Expect(markers.Is(err, jobstorage.JobNotFound)).To(BeTrue())
		})
	})
}
