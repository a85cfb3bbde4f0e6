package dummy

import (
	"context"
	"sort"
	"sync"

	jobentity "github.com/veedubyou/stemsplit/src/shared/job/entity"
	jobstorage "github.com/veedubyou/stemsplit/src/shared/job/storage"
	"github.com/veedubyou/stemsplit/src/shared/lib/errors/mark"
)

var _ jobentity.Store = &JobStore{}

type JobStore struct {
	Unavailable bool

	jobs    map[string]jobentity.Job
	history map[string][]jobentity.State
	mutex   sync.Mutex
}

func NewDummyJobStore() *JobStore {
	return &JobStore{
		jobs:    make(map[string]jobentity.Job),
		history: make(map[string][]jobentity.State),
	}
}

func (j *JobStore) SetUnavailable(unavailable bool) {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	j.Unavailable = unavailable
}

func (j *JobStore) PutJob(_ context.Context, job jobentity.Job) error {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	if j.Unavailable {
		return NetworkFailure
	}

	if existing, ok := j.jobs[job.ID]; ok && existing.State.IsTerminal() {
		return mark.Message(jobstorage.JobFinishedMark, "Job "+job.ID+" is already final")
	}

	j.jobs[job.ID] = job.Clone()
	j.history[job.ID] = append(j.history[job.ID], job.State)
	return nil
}

func (j *JobStore) RenameJob(_ context.Context, jobID string, inputName string) error {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	if j.Unavailable {
		return NetworkFailure
	}

	job, ok := j.jobs[jobID]
	if !ok {
		return mark.Wrap(NotFound, jobstorage.JobNotFound, "No job "+jobID)
	}

	job.InputName = inputName
	j.jobs[jobID] = job
	return nil
}

func (j *JobStore) GetJob(_ context.Context, jobID string) (jobentity.Job, error) {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	if j.Unavailable {
		return jobentity.Job{}, NetworkFailure
	}

	job, ok := j.jobs[jobID]
	if !ok {
		return jobentity.Job{}, mark.Wrap(NotFound, jobstorage.JobNotFound, "No job "+jobID)
	}

	return job.Clone(), nil
}

func (j *JobStore) ListJobsForOwner(_ context.Context, owner string) ([]jobentity.Job, error) {
	return j.filter(func(job jobentity.Job) bool {
		return job.IsOwnedBy(owner)
	})
}

func (j *JobStore) ListUnfinishedJobs(_ context.Context) ([]jobentity.Job, error) {
	return j.filter(func(job jobentity.Job) bool {
		return !job.State.IsTerminal()
	})
}

func (j *JobStore) DeleteJob(_ context.Context, jobID string) error {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	if j.Unavailable {
		return NetworkFailure
	}

	delete(j.jobs, jobID)
	return nil
}

// History is every state written for jobID, in write order.
func (j *JobStore) History(jobID string) []jobentity.State {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	states := make([]jobentity.State, len(j.history[jobID]))
	copy(states, j.history[jobID])
	return states
}

func (j *JobStore) filter(keep func(jobentity.Job) bool) ([]jobentity.Job, error) {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	if j.Unavailable {
		return nil, NetworkFailure
	}

	jobs := []jobentity.Job{}
	for _, job := range j.jobs {
		if keep(job) {
			jobs = append(jobs, job.Clone())
		}
	}

	sort.Slice(jobs, func(a, b int) bool {
		return jobs[a].ID < jobs[b].ID
	})
	return jobs, nil
}
