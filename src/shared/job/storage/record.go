package jobstorage

import (
	"time"

	"github.com/veedubyou/stemsplit/src/shared/failure"
	jobentity "github.com/veedubyou/stemsplit/src/shared/job/entity"
)

const (
	JobsTable    = "SeparationJobs"
	idKey        = "id"
	ownerKey     = "owner"
	stateKey     = "state"
	inputNameKey = "input_name"
	ownerIndex   = "owner-index"
)

// record is the flattened, storage friendly form of a job. Timestamps are
// unix milliseconds, zero meaning unset.
type record struct {
	ID           string            `dynamo:"id,hash"`
	Owner        string            `dynamo:"owner" index:"owner-index,hash"`
	State        string            `dynamo:"state"`
	InputRef     string            `dynamo:"input_ref"`
	InputName    string            `dynamo:"input_name"`
	CreatedAt    int64             `dynamo:"created_at"`
	StartedAt    int64             `dynamo:"started_at"`
	FinishedAt   int64             `dynamo:"finished_at"`
	StemOutputs  map[string]string `dynamo:"stem_outputs"`
	ErrorKind    string            `dynamo:"error_kind"`
	ErrorMessage string            `dynamo:"error_message"`
	InstanceID   string            `dynamo:"instance_id"`
	UpdatedAt    int64             `dynamo:"updated_at"`
}

func toRecord(job jobentity.Job) record {
	rec := record{
		ID:          job.ID,
		Owner:       job.Owner,
		State:       string(job.State),
		InputRef:    job.InputRef,
		InputName:   job.InputName,
		CreatedAt:   toMillis(&job.CreatedAt),
		StartedAt:   toMillis(job.StartedAt),
		FinishedAt:  toMillis(job.FinishedAt),
		StemOutputs: map[string]string{},
		InstanceID:  job.InstanceID,
		UpdatedAt:   toMillis(&job.UpdatedAt),
	}

	for stem, location := range job.StemOutputs {
		rec.StemOutputs[stem] = location
	}

	if job.Error != nil {
		rec.ErrorKind = string(job.Error.Kind)
		rec.ErrorMessage = job.Error.Message
	}

	return rec
}

func (r record) toMap() map[string]any {
	return map[string]any{
		"id":            r.ID,
		"owner":         r.Owner,
		"state":         r.State,
		"input_ref":     r.InputRef,
		"input_name":    r.InputName,
		"created_at":    r.CreatedAt,
		"started_at":    r.StartedAt,
		"finished_at":   r.FinishedAt,
		"stem_outputs":  r.StemOutputs,
		"error_kind":    r.ErrorKind,
		"error_message": r.ErrorMessage,
		"instance_id":   r.InstanceID,
		"updated_at":    r.UpdatedAt,
	}
}

func (r record) toEntity() jobentity.Job {
	job := jobentity.Job{
		ID:         r.ID,
		Owner:      r.Owner,
		State:      jobentity.State(r.State),
		InputRef:   r.InputRef,
		InputName:  r.InputName,
		StartedAt:  fromMillis(r.StartedAt),
		FinishedAt: fromMillis(r.FinishedAt),
		InstanceID: r.InstanceID,
	}

	if createdAt := fromMillis(r.CreatedAt); createdAt != nil {
		job.CreatedAt = *createdAt
	}

	if updatedAt := fromMillis(r.UpdatedAt); updatedAt != nil {
		job.UpdatedAt = *updatedAt
	}

	if len(r.StemOutputs) > 0 {
		job.StemOutputs = jobentity.StemOutputs{}
		for stem, location := range r.StemOutputs {
			job.StemOutputs[stem] = location
		}
	}

	if r.ErrorKind != "" {
		job.Error = &failure.Failure{
			Kind:    failure.Kind(r.ErrorKind),
			Message: r.ErrorMessage,
		}
	}

	return job
}

func toMillis(t *time.Time) int64 {
	if t == nil || t.IsZero() {
		return 0
	}

	return t.UnixMilli()
}

func fromMillis(ms int64) *time.Time {
	if ms == 0 {
		return nil
	}

	t := time.UnixMilli(ms).UTC()
	return &t
}
