// Package orchestrator owns the lifecycle of separation jobs: the queue,
// the worker pool, cancellation and timeouts.
package orchestrator

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/markers"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/veedubyou/stemsplit/src/shared/failure"
	jobentity "github.com/veedubyou/stemsplit/src/shared/job/entity"
	jobstorage "github.com/veedubyou/stemsplit/src/shared/job/storage"
	"github.com/veedubyou/stemsplit/src/shared/lib/cerr"
	"github.com/veedubyou/stemsplit/src/worker/audio/codec"
	"github.com/veedubyou/stemsplit/src/worker/pipeline"
)

var (
	ErrCancelled = errors.New("job cancelled")
	ErrTimedOut  = errors.New("job timed out")
	errShutdown  = errors.New("orchestrator shutting down")
)

type Runner interface {
	Run(ctx context.Context, job jobentity.Job, report pipeline.ProgressReporter) (jobentity.StemOutputs, error)
}

type Gateway interface {
	Resolve(ctx context.Context, owner string, inputRef string) (codec.Format, error)
	Discard(ctx context.Context, urls []string)
}

type Config struct {
	Workers         int           `validate:"required,gt=0"`
	JobTimeout      time.Duration `validate:"gte=0"`
	Retention       time.Duration `validate:"gte=0"`
	JanitorInterval time.Duration `validate:"gte=0"`

	// InstanceID identifies this process on the records it holds. A stable
	// id lets a restarted process reclaim its own records without waiting
	// for their leases to run out. Empty means a fresh id per process.
	InstanceID string
	// Lease is how long an unfinished record stays claimed without a
	// heartbeat from its instance.
	Lease time.Duration `validate:"gte=0"`
}

type SubmitRequest struct {
	Owner     string `validate:"required"`
	InputRef  string `validate:"required"`
	InputName string `validate:"max=255"`
}

type entry struct {
	job             jobentity.Job
	cancel          context.CancelCauseFunc
	timer           *time.Timer
	cancelRequested bool
	timedOut        bool
}

type Orchestrator struct {
	config   Config
	runner   Runner
	gateway  Gateway
	store    jobentity.Store
	recorder *Recorder
	validate *validator.Validate

	queue *Queue[string]

	instanceID string
	lease      time.Duration
	now        func() time.Time

	// mutex guards jobs and every entry in it
	mutex sync.Mutex
	jobs  map[string]*entry

	started atomic.Bool
	stop    context.CancelFunc
	workers sync.WaitGroup
}

func NewOrchestrator(config Config, runner Runner, gateway Gateway, store jobentity.Store, recorder *Recorder) (*Orchestrator, error) {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return nil, cerr.Wrap(err).Error("Invalid orchestrator config")
	}

	instanceID := config.InstanceID
	if instanceID == "" {
		instanceID = uuid.New().String()
	}

	lease := config.Lease
	if lease <= 0 {
		lease = defaultLease
	}

	return &Orchestrator{
		config:     config,
		runner:     runner,
		gateway:    gateway,
		store:      store,
		recorder:   recorder,
		validate:   validate,
		queue:      NewQueue[string](),
		instanceID: instanceID,
		lease:      lease,
		now: func() time.Time {
			return time.Now().UTC()
		},
		jobs: map[string]*entry{},
	}, nil
}

// WithClock replaces the wall clock used for job timestamps. Call it before
// Start.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

func (o *Orchestrator) InstanceID() string {
	return o.instanceID
}

// Start recovers abandoned records and launches the worker pool, the
// recorder, the lease keeper and the janitor. They run until Stop.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.started.CompareAndSwap(false, true) {
		return cerr.Error("Orchestrator is already started")
	}

	go o.recorder.Run()

	if err := o.recoverAbandoned(ctx); err != nil {
		return cerr.Wrap(err).Error("Failed to recover unfinished jobs")
	}

	workerCtx, stop := context.WithCancelCause(context.Background())
	o.stop = func() {
		stop(errShutdown)
	}

	for i := 0; i < o.config.Workers; i++ {
		o.workers.Add(1)
		go func(workerID int) {
			defer o.workers.Done()
			o.work(workerCtx, workerID)
		}(i)
	}

	o.workers.Add(1)
	go func() {
		defer o.workers.Done()
		o.keepLeases(workerCtx)
	}()

	if o.config.Retention > 0 {
		o.workers.Add(1)
		go func() {
			defer o.workers.Done()
			o.runJanitor(workerCtx)
		}()
	}

	log.WithFields(log.Fields{
		"workers":     o.config.Workers,
		"instance_id": o.instanceID,
	}).Info("Orchestrator started")
	return nil
}

// Stop cancels running jobs, waits for the workers and flushes the
// recorder.
func (o *Orchestrator) Stop() {
	o.queue.Close()
	if !o.started.Load() {
		return
	}

	if o.stop != nil {
		o.stop()
	}

	o.workers.Wait()
	o.recorder.Close()
	log.Info("Orchestrator stopped")
}

func (o *Orchestrator) Submit(ctx context.Context, request SubmitRequest) (jobentity.Job, error) {
	if request.Owner == "" {
		return jobentity.Job{}, failure.New(failure.Unauthorized, "no authenticated owner")
	}

	if err := o.validate.Struct(request); err != nil {
		return jobentity.Job{}, failure.Wrap(err, failure.InvalidInput, "submission is invalid")
	}

	if _, err := o.gateway.Resolve(ctx, request.Owner, request.InputRef); err != nil {
		return jobentity.Job{}, cerr.Field("input_ref", request.InputRef).Wrap(err).Error("Failed to resolve input")
	}

	job := jobentity.Job{
		ID:        uuid.New().String(),
		Owner:     request.Owner,
		State:     jobentity.Queued,
		InputRef:  request.InputRef,
		InputName: request.InputName,
		CreatedAt: o.now(),
	}

	o.mutex.Lock()
	defer o.mutex.Unlock()

	if err := o.queue.Push(job.ID); err != nil {
		return jobentity.Job{}, failure.Wrap(err, failure.InternalError, "not accepting jobs")
	}

	e := &entry{job: job}
	o.jobs[job.ID] = e
	o.recordLocked(e)
	job = e.job

	log.WithFields(log.Fields{
		"job_id": job.ID,
		"owner":  job.Owner,
	}).Info("Job queued")

	return job.Clone(), nil
}

// Status returns a snapshot, falling back to the record store for jobs this
// process no longer holds.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (jobentity.Job, error) {
	o.mutex.Lock()
	e, ok := o.jobs[jobID]
	var job jobentity.Job
	if ok {
		job = e.job.Clone()
	}
	o.mutex.Unlock()

	if ok {
		return job, nil
	}

	return o.storedJob(ctx, jobID)
}

func (o *Orchestrator) List(ctx context.Context, owner string) ([]jobentity.Job, error) {
	byID := map[string]jobentity.Job{}

	stored, err := o.store.ListJobsForOwner(ctx, owner)
	if err != nil {
		log.WithField("owner", owner).WithError(err).Warn("Failed to list stored jobs, listing in-memory jobs only")
	}
	for _, job := range stored {
		byID[job.ID] = job
	}

	o.mutex.Lock()
	for _, e := range o.jobs {
		if e.job.IsOwnedBy(owner) {
			byID[e.job.ID] = e.job.Clone()
		}
	}
	o.mutex.Unlock()

	jobs := make([]jobentity.Job, 0, len(byID))
	for _, job := range byID {
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	return jobs, nil
}

// Cancel stops a job. A queued job is cancelled at once; a running job is
// signalled and becomes Cancelled when its worker reaches a checkpoint.
// Cancelling a finished job changes nothing.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) (jobentity.Job, error) {
	o.mutex.Lock()
	e, ok := o.jobs[jobID]
	if !ok {
		o.mutex.Unlock()
		return o.cancelStored(ctx, jobID)
	}
	defer o.mutex.Unlock()

	logger := log.WithField("job_id", jobID)

	switch e.job.State {
	case jobentity.Queued:
		o.queue.Remove(func(id string) bool {
			return id == jobID
		})
		o.finishLocked(e, jobentity.Cancelled, nil, nil)
		logger.Info("Queued job cancelled")

	case jobentity.Running:
		if !e.cancelRequested {
			e.cancelRequested = true
			e.cancel(ErrCancelled)
			logger.Info("Cancellation requested for running job")
		}
	}

	return e.job.Clone(), nil
}

// Delete removes a finished job's outputs and record.
func (o *Orchestrator) Delete(ctx context.Context, jobID string) error {
	o.mutex.Lock()
	e, ok := o.jobs[jobID]
	if ok && !e.job.State.IsTerminal() {
		o.mutex.Unlock()
		return failure.New(failure.InvalidInput, "only finished jobs can be deleted")
	}

	var job jobentity.Job
	if ok {
		job = e.job.Clone()
		delete(o.jobs, jobID)
	}
	o.mutex.Unlock()

	if !ok {
		stored, err := o.storedJob(ctx, jobID)
		if err != nil {
			return err
		}

		if !stored.State.IsTerminal() {
			return failure.New(failure.InvalidInput, "only finished jobs can be deleted")
		}
		job = stored
	}

	o.gateway.Discard(ctx, outputURLs(job.StemOutputs))
	o.recorder.Forget(job)

	log.WithField("job_id", jobID).Info("Job deleted")
	return nil
}

// Rename changes a job's display name in any state. Names are trimmed and
// must be unique among the owner's jobs.
func (o *Orchestrator) Rename(ctx context.Context, jobID string, inputName string) (jobentity.Job, error) {
	inputName = strings.TrimSpace(inputName)
	if err := o.validate.Var(inputName, "required,max=255"); err != nil {
		return jobentity.Job{}, failure.Wrap(err, failure.InvalidInput, "a name of 1 to 255 characters is required")
	}

	current, err := o.Status(ctx, jobID)
	if err != nil {
		return jobentity.Job{}, err
	}

	siblings, err := o.List(ctx, current.Owner)
	if err != nil {
		return jobentity.Job{}, err
	}
	for _, sibling := range siblings {
		if sibling.ID != jobID && sibling.InputName == inputName {
			return jobentity.Job{}, failure.New(failure.InvalidInput, "another job is already named "+inputName)
		}
	}

	o.mutex.Lock()
	if e, ok := o.jobs[jobID]; ok {
		e.job.InputName = inputName
		renamed := e.job.Clone()
		o.recorder.Rename(renamed.Clone())
		o.mutex.Unlock()

		log.WithField("job_id", jobID).Info("Job renamed")
		return renamed, nil
	}
	o.mutex.Unlock()

	err = o.store.RenameJob(ctx, jobID, inputName)
	if markers.Is(err, jobstorage.JobNotFound) {
		return jobentity.Job{}, failure.Wrap(err, failure.NotFound, "no job with id "+jobID)
	}
	if err != nil {
		return jobentity.Job{}, failure.Wrap(err, failure.StorageError, "job record could not be renamed")
	}

	log.WithField("job_id", jobID).Info("Job renamed")
	return o.storedJob(ctx, jobID)
}

func (o *Orchestrator) work(ctx context.Context, workerID int) {
	logger := log.WithField("worker_id", workerID)

	for {
		jobID, err := o.queue.Pop(ctx)
		if err != nil {
			logger.Debug("Worker exiting")
			return
		}

		o.process(ctx, jobID)
	}
}

func (o *Orchestrator) process(workerCtx context.Context, jobID string) {
	jobCtx, cancel := context.WithCancelCause(workerCtx)
	defer cancel(nil)

	job, ok := o.start(jobID, cancel)
	if !ok {
		return
	}

	logger := log.WithField("job_id", jobID)
	logger.Info("Job started")

	outputs, err := o.runSafely(jobCtx, job)
	o.complete(jobID, outputs, err)
}

// start moves a job from Queued to Running. A job cancelled between the pop
// and here is skipped.
func (o *Orchestrator) start(jobID string, cancel context.CancelCauseFunc) (jobentity.Job, bool) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	e, ok := o.jobs[jobID]
	if !ok || e.job.State != jobentity.Queued {
		return jobentity.Job{}, false
	}

	startedAt := notBefore(o.now(), e.job.CreatedAt)
	e.job.State = jobentity.Running
	e.job.StartedAt = &startedAt
	e.job.Progress = 0
	e.cancel = cancel

	if o.config.JobTimeout > 0 {
		e.timer = time.AfterFunc(o.config.JobTimeout, func() {
			o.timeout(jobID)
		})
	}

	o.recordLocked(e)
	return e.job.Clone(), true
}

func (o *Orchestrator) runSafely(ctx context.Context, job jobentity.Job) (outputs jobentity.StemOutputs, err error) {
	defer func() {
		if r := recover(); r != nil {
			outputs = nil
			err = failure.Wrap(errors.Newf("job pipeline panicked: %v", r), failure.InternalError, "job crashed")
		}
	}()

	return o.runner.Run(ctx, job, func(stage jobentity.Stage, percent int) {
		o.progress(job.ID, stage, percent)
	})
}

func (o *Orchestrator) progress(jobID string, stage jobentity.Stage, percent int) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	e, ok := o.jobs[jobID]
	if !ok || e.job.State != jobentity.Running {
		return
	}

	e.job.Stage = stage
	e.job.Progress = percent
}

// timeout fails a job the moment its deadline passes. The worker is told to
// stop and whatever it produces afterwards is thrown away.
func (o *Orchestrator) timeout(jobID string) {
	o.mutex.Lock()
	e, ok := o.jobs[jobID]
	if !ok || e.job.State != jobentity.Running {
		o.mutex.Unlock()
		return
	}

	e.timedOut = true
	o.finishLocked(e, jobentity.Failed, nil, &failure.Failure{
		Kind:    failure.Timeout,
		Message: "job exceeded " + o.config.JobTimeout.String(),
	})
	cancel := e.cancel
	o.mutex.Unlock()

	log.WithField("job_id", jobID).Warn("Job timed out")
	cancel(ErrTimedOut)
}

// complete records the worker's result. A requested cancel or a timeout
// outranks whatever the pipeline returned, and outputs of a job that did not
// succeed are deleted.
func (o *Orchestrator) complete(jobID string, outputs jobentity.StemOutputs, runErr error) {
	logger := log.WithField("job_id", jobID)

	o.mutex.Lock()
	e, ok := o.jobs[jobID]
	discard := outputs != nil

	switch {
	case !ok || e.timedOut:
		// already terminal, or deleted after timing out

	case e.cancelRequested:
		o.finishLocked(e, jobentity.Cancelled, nil, nil)
		logger.Info("Running job cancelled")

	case runErr != nil:
		o.finishLocked(e, jobentity.Failed, nil, failure.From(runErr))
		cerr.Log(cerr.Field("job_id", jobID).Wrap(runErr).Error("Job failed"))

	default:
		discard = false
		o.finishLocked(e, jobentity.Succeeded, outputs, nil)
		logger.Info("Job succeeded")
	}

	if ok && e.timer != nil {
		e.timer.Stop()
	}
	o.mutex.Unlock()

	if discard {
		o.gateway.Discard(context.Background(), outputURLs(outputs))
	}
}

// finishLocked makes a job terminal. Caller holds o.mutex.
func (o *Orchestrator) finishLocked(e *entry, state jobentity.State, outputs jobentity.StemOutputs, jobFailure *failure.Failure) {
	finishedAt := notBefore(o.now(), latestTimestamp(e.job))
	e.job.State = state
	e.job.FinishedAt = &finishedAt
	e.job.Stage = jobentity.NoStage
	e.job.StemOutputs = outputs
	e.job.Error = jobFailure

	if state == jobentity.Succeeded {
		e.job.Progress = 100
	}

	o.recordLocked(e)
}

// recordLocked stamps the entry as held by this instance and queues a
// snapshot. Caller holds o.mutex.
func (o *Orchestrator) recordLocked(e *entry) {
	e.job.InstanceID = o.instanceID
	e.job.UpdatedAt = o.now()
	o.recorder.Record(e.job.Clone())
}

func (o *Orchestrator) storedJob(ctx context.Context, jobID string) (jobentity.Job, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if markers.Is(err, jobstorage.JobNotFound) {
		return jobentity.Job{}, failure.Wrap(err, failure.NotFound, "no job with id "+jobID)
	}
	if err != nil {
		return jobentity.Job{}, failure.Wrap(err, failure.StorageError, "job record could not be read")
	}

	return job, nil
}

func (o *Orchestrator) cancelStored(ctx context.Context, jobID string) (jobentity.Job, error) {
	job, err := o.storedJob(ctx, jobID)
	if err != nil {
		return jobentity.Job{}, err
	}

	if !job.State.IsTerminal() {
		return jobentity.Job{}, failure.New(failure.InvalidInput, "job is owned by another worker")
	}

	return job, nil
}

// notBefore keeps job timestamps ordered when the wall clock steps back.
func notBefore(t time.Time, floor time.Time) time.Time {
	if t.Before(floor) {
		return floor
	}
	return t
}

func latestTimestamp(job jobentity.Job) time.Time {
	if job.StartedAt != nil && job.StartedAt.After(job.CreatedAt) {
		return *job.StartedAt
	}
	return job.CreatedAt
}

func outputURLs(outputs jobentity.StemOutputs) []string {
	urls := make([]string, 0, len(outputs))
	for _, url := range outputs {
		urls = append(urls, url)
	}

	sort.Strings(urls)
	return urls
}
