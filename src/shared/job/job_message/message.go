// Package job_message holds the RabbitMQ message types exchanged about jobs.
package job_message

import (
	"time"

	jobentity "github.com/veedubyou/stemsplit/src/shared/job/entity"
)

const (
	JobStateChangedType = "job_state_changed"
	SubmitJobType       = "submit_job"
)

// JobStateChanged is published after every job transition.
type JobStateChanged struct {
	Job       jobentity.Job `json:"job"`
	ChangedAt time.Time     `json:"changed_at"`
}

// SubmitJob asks a worker to queue a separation of an already stored input.
type SubmitJob struct {
	Owner     string `json:"owner" validate:"required"`
	InputRef  string `json:"input_ref" validate:"required,url"`
	InputName string `json:"input_name"`
}
