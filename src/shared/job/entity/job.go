package jobentity

import (
	"time"

	"github.com/veedubyou/stemsplit/src/shared/failure"
)

type State string

const (
	Queued    State = "queued"
	Running   State = "running"
	Succeeded State = "succeeded"
	Failed    State = "failed"
	Cancelled State = "cancelled"
)

func (s State) IsTerminal() bool {
	switch s {
	case Succeeded, Failed, Cancelled:
		return true
	default:
		return false
	}
}

func (s State) Valid() bool {
	switch s {
	case Queued, Running, Succeeded, Failed, Cancelled:
		return true
	default:
		return false
	}
}

type Stage string

const (
	NoStage       Stage = ""
	Materializing Stage = "materializing"
	Decoding      Stage = "decoding"
	Separating    Stage = "separating"
	Encoding      Stage = "encoding"
	Persisting    Stage = "persisting"
)

type StemOutputs map[string]string

type Job struct {
	ID          string           `json:"id"`
	Owner       string           `json:"owner"`
	State       State            `json:"state"`
	InputRef    string           `json:"input_ref"`
	InputName   string           `json:"input_name,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	FinishedAt  *time.Time       `json:"finished_at,omitempty"`
	Stage       Stage            `json:"stage,omitempty"`
	Progress    int              `json:"progress"`
	StemOutputs StemOutputs      `json:"stem_outputs,omitempty"`
	Error       *failure.Failure `json:"error,omitempty"`

	// InstanceID is the orchestrator holding an unfinished job. It renews
	// UpdatedAt while the job is live, so other instances can tell a held
	// job from an abandoned one.
	InstanceID string    `json:"-"`
	UpdatedAt  time.Time `json:"-"`
}

// Clone returns a copy that shares no mutable memory with j.
func (j Job) Clone() Job {
	clone := j

	if j.StartedAt != nil {
		startedAt := *j.StartedAt
		clone.StartedAt = &startedAt
	}

	if j.FinishedAt != nil {
		finishedAt := *j.FinishedAt
		clone.FinishedAt = &finishedAt
	}

	if j.StemOutputs != nil {
		clone.StemOutputs = make(StemOutputs, len(j.StemOutputs))
		for stem, location := range j.StemOutputs {
			clone.StemOutputs[stem] = location
		}
	}

	if j.Error != nil {
		jobErr := *j.Error
		clone.Error = &jobErr
	}

	return clone
}

func (j Job) IsOwnedBy(owner string) bool {
	return j.Owner == owner
}

// LeaseExpired reports whether nobody has vouched for the job within lease.
func (j Job) LeaseExpired(now time.Time, lease time.Duration) bool {
	if j.InstanceID == "" || j.UpdatedAt.IsZero() {
		return true
	}

	return now.Sub(j.UpdatedAt) > lease
}
