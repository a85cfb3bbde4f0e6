package orchestrator

import (
	"context"
	"time"

	"github.com/apex/log"
	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors/markers"
	jobentity "github.com/veedubyou/stemsplit/src/shared/job/entity"
	"github.com/veedubyou/stemsplit/src/shared/job/job_message"
	jobstorage "github.com/veedubyou/stemsplit/src/shared/job/storage"
	"github.com/veedubyou/stemsplit/src/shared/lib/cerr"
	"github.com/veedubyou/stemsplit/src/shared/lib/rabbitmq"
)

const recordRetries = 5

type opKind int

const (
	putOp opKind = iota
	heartbeatOp
	renameOp
	deleteOp
)

type recordOp struct {
	kind opKind
	job  jobentity.Job
	at   time.Time
}

// Recorder writes job snapshots to the document store in the order they
// were taken, off the caller's goroutine. Each written transition is also
// published as an event when a publisher is set.
type Recorder struct {
	store      jobentity.Store
	publisher  rabbitmq.Publisher
	ops        *Queue[recordOp]
	newBackOff func() backoff.BackOff
	done       chan struct{}
}

func NewRecorder(store jobentity.Store, publisher rabbitmq.Publisher) *Recorder {
	return &Recorder{
		store:     store,
		publisher: publisher,
		ops:       NewQueue[recordOp](),
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		done: make(chan struct{}),
	}
}

// WithRetryInterval swaps the exponential backoff for a constant one.
func (r *Recorder) WithRetryInterval(interval time.Duration) *Recorder {
	r.newBackOff = func() backoff.BackOff {
		return backoff.NewConstantBackOff(interval)
	}
	return r
}

// Record queues a snapshot. The caller must not modify job afterwards.
func (r *Recorder) Record(job jobentity.Job) {
	r.push(recordOp{kind: putOp, job: job, at: time.Now()})
}

// Heartbeat writes a snapshot that only renews the job's lease. Nothing is
// published for it.
func (r *Recorder) Heartbeat(job jobentity.Job) {
	r.push(recordOp{kind: heartbeatOp, job: job, at: time.Now()})
}

// Rename updates only the stored input name, so it applies to finished
// records too.
func (r *Recorder) Rename(job jobentity.Job) {
	r.push(recordOp{kind: renameOp, job: job, at: time.Now()})
}

func (r *Recorder) Forget(job jobentity.Job) {
	r.push(recordOp{kind: deleteOp, job: job, at: time.Now()})
}

func (r *Recorder) push(op recordOp) {
	if err := r.ops.Push(op); err != nil {
		log.WithField("job_id", op.job.ID).Warn("Recorder is closed, dropping job record")
	}
}

// Run drains queued snapshots until Close is called and the backlog is
// written.
func (r *Recorder) Run() {
	defer close(r.done)

	for {
		op, err := r.ops.Pop(context.Background())
		if err != nil {
			return
		}

		r.write(op)
	}
}

// Close stops accepting snapshots and waits for the backlog to be written.
func (r *Recorder) Close() {
	r.ops.Close()
	<-r.done
}

func (r *Recorder) write(op recordOp) {
	errctx := cerr.Fields(cerr.F{
		"job_id": op.job.ID,
		"state":  op.job.State,
	})
	ctx := context.Background()

	var write func() error
	switch op.kind {
	case deleteOp:
		write = func() error {
			return r.store.DeleteJob(ctx, op.job.ID)
		}
	case renameOp:
		write = func() error {
			return r.store.RenameJob(ctx, op.job.ID, op.job.InputName)
		}
	default:
		write = func() error {
			return r.store.PutJob(ctx, op.job)
		}
	}

	attempt := func() error {
		err := write()
		if markers.Is(err, jobstorage.JobFinishedMark) || markers.Is(err, jobstorage.JobNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(attempt, backoff.WithMaxRetries(r.newBackOff(), recordRetries))
	if markers.Is(err, jobstorage.JobFinishedMark) {
		log.WithFields(log.Fields{
			"job_id": op.job.ID,
			"state":  op.job.State,
		}).Warn("Job record was already finished elsewhere, dropping snapshot")
		return
	}
	if err != nil {
		cerr.Log(errctx.Wrap(err).Error("Failed to write job record"))
		return
	}

	if op.kind != putOp || r.publisher == nil {
		return
	}

	err = rabbitmq.PublishJSON(r.publisher, job_message.JobStateChangedType, job_message.JobStateChanged{
		Job:       op.job,
		ChangedAt: op.at,
	})
	if err != nil {
		cerr.Log(errctx.Wrap(err).Error("Failed to publish job state change"))
	}
}
