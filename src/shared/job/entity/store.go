package jobentity

import "context"

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

// Store is the document store that keeps a record of every job transition.
// PutJob never replaces a finished record; it fails instead.
//
//counterfeiter:generate . Store
type Store interface {
	PutJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	ListJobsForOwner(ctx context.Context, owner string) ([]Job, error)
	ListUnfinishedJobs(ctx context.Context) ([]Job, error)
	RenameJob(ctx context.Context, jobID string, inputName string) error
	DeleteJob(ctx context.Context, jobID string) error
}
