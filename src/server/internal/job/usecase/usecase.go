package jobusecase

import (
	"context"

	"github.com/apex/log"
	"github.com/veedubyou/stemsplit/src/server/google_id"
	"github.com/veedubyou/stemsplit/src/server/internal/errors/api"
	"github.com/veedubyou/stemsplit/src/server/internal/job/errors"
	"github.com/veedubyou/stemsplit/src/server/internal/user/usecase"
	jobentity "github.com/veedubyou/stemsplit/src/shared/job/entity"
	"github.com/veedubyou/stemsplit/src/worker/orchestrator"
	"github.com/veedubyou/stemsplit/src/worker/separation"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

//counterfeiter:generate . Orchestrator
type Orchestrator interface {
	Submit(ctx context.Context, request orchestrator.SubmitRequest) (jobentity.Job, error)
	Status(ctx context.Context, jobID string) (jobentity.Job, error)
	List(ctx context.Context, owner string) ([]jobentity.Job, error)
	Cancel(ctx context.Context, jobID string) (jobentity.Job, error)
	Delete(ctx context.Context, jobID string) error
	Rename(ctx context.Context, jobID string, inputName string) (jobentity.Job, error)
}

//counterfeiter:generate . Uploader
type Uploader interface {
	Upload(ctx context.Context, owner string, fileName string, data []byte) (string, error)
}

type ModelSummary struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description,omitempty"`
	SampleRate  int      `json:"sample_rate"`
	Channels    int      `json:"channels"`
	Stems       []string `json:"stems"`
}

type Usecase struct {
	orchestrator Orchestrator
	uploader     Uploader
	userUsecase  userusecase.Usecase
	model        *separation.Model
}

func NewUsecase(orchestrator Orchestrator, uploader Uploader, userUsecase userusecase.Usecase, model *separation.Model) Usecase {
	return Usecase{
		orchestrator: orchestrator,
		uploader:     uploader,
		userUsecase:  userUsecase,
		model:        model,
	}
}

func (u Usecase) SubmitJob(ctx context.Context, authHeader string, inputRef string, inputName string) (jobentity.Job, *api.Error) {
	user, apiErr := u.userUsecase.Authenticate(ctx, authHeader)
	if apiErr != nil {
		return jobentity.Job{}, api.WrapError(apiErr, "Failed to authenticate job submission")
	}

	return u.submit(ctx, user, inputRef, inputName)
}

// UploadJob stores the uploaded bytes under the caller and submits them.
func (u Usecase) UploadJob(ctx context.Context, authHeader string, fileName string, data []byte) (jobentity.Job, *api.Error) {
	user, apiErr := u.userUsecase.Authenticate(ctx, authHeader)
	if apiErr != nil {
		return jobentity.Job{}, api.WrapError(apiErr, "Failed to authenticate upload")
	}

	inputRef, err := u.uploader.Upload(ctx, user.UserID, fileName, data)
	if err != nil {
		return jobentity.Job{}, joberrors.CommitFailure(err, "The uploaded file could not be accepted")
	}

	return u.submit(ctx, user, inputRef, fileName)
}

func (u Usecase) GetJob(ctx context.Context, authHeader string, jobID string) (jobentity.Job, *api.Error) {
	_, job, apiErr := u.ownedJob(ctx, authHeader, jobID)
	if apiErr != nil {
		return jobentity.Job{}, api.WrapError(apiErr, "Failed to get job")
	}

	return job, nil
}

func (u Usecase) ListJobs(ctx context.Context, authHeader string) ([]jobentity.Job, *api.Error) {
	user, apiErr := u.userUsecase.Authenticate(ctx, authHeader)
	if apiErr != nil {
		return nil, api.WrapError(apiErr, "Failed to authenticate job listing")
	}

	jobs, err := u.orchestrator.List(ctx, user.UserID)
	if err != nil {
		return nil, joberrors.CommitFailure(err, "Your jobs could not be listed")
	}

	return jobs, nil
}

func (u Usecase) CancelJob(ctx context.Context, authHeader string, jobID string) (jobentity.Job, *api.Error) {
	_, _, apiErr := u.ownedJob(ctx, authHeader, jobID)
	if apiErr != nil {
		return jobentity.Job{}, api.WrapError(apiErr, "Failed to cancel job")
	}

	job, err := u.orchestrator.Cancel(ctx, jobID)
	if err != nil {
		return jobentity.Job{}, joberrors.CommitFailure(err, "The job could not be cancelled")
	}

	log.WithField("job_id", jobID).Info("Job cancellation requested over HTTP")
	return job, nil
}

func (u Usecase) RenameJob(ctx context.Context, authHeader string, jobID string, inputName string) (jobentity.Job, *api.Error) {
	_, _, apiErr := u.ownedJob(ctx, authHeader, jobID)
	if apiErr != nil {
		return jobentity.Job{}, api.WrapError(apiErr, "Failed to rename job")
	}

	job, err := u.orchestrator.Rename(ctx, jobID, inputName)
	if err != nil {
		return jobentity.Job{}, joberrors.CommitFailure(err, "The job could not be renamed")
	}

	return job, nil
}

func (u Usecase) DeleteJob(ctx context.Context, authHeader string, jobID string) *api.Error {
	_, _, apiErr := u.ownedJob(ctx, authHeader, jobID)
	if apiErr != nil {
		return api.WrapError(apiErr, "Failed to delete job")
	}

	if err := u.orchestrator.Delete(ctx, jobID); err != nil {
		return joberrors.CommitFailure(err, "The job could not be deleted")
	}

	return nil
}

func (u Usecase) Model() ModelSummary {
	return ModelSummary{
		Name:        u.model.Name,
		Version:     u.model.Version,
		Description: u.model.Description,
		SampleRate:  u.model.SampleRate,
		Channels:    u.model.Channels,
		Stems:       u.model.StemNames(),
	}
}

func (u Usecase) submit(ctx context.Context, user google_id.User, inputRef string, inputName string) (jobentity.Job, *api.Error) {
	job, err := u.orchestrator.Submit(ctx, orchestrator.SubmitRequest{
		Owner:     user.UserID,
		InputRef:  inputRef,
		InputName: inputName,
	})
	if err != nil {
		return jobentity.Job{}, joberrors.CommitFailure(err, "The job could not be submitted")
	}

	return job, nil
}

func (u Usecase) ownedJob(ctx context.Context, authHeader string, jobID string) (google_id.User, jobentity.Job, *api.Error) {
	user, apiErr := u.userUsecase.Authenticate(ctx, authHeader)
	if apiErr != nil {
		return google_id.User{}, jobentity.Job{}, api.WrapError(apiErr, "Failed to authenticate")
	}

	job, err := u.orchestrator.Status(ctx, jobID)
	if err != nil {
		return google_id.User{}, jobentity.Job{}, joberrors.CommitFailure(err, "The job could not be found")
	}

	if apiErr := u.userUsecase.VerifyOwner(user, job.Owner); apiErr != nil {
		return google_id.User{}, jobentity.Job{}, api.WrapError(apiErr, "Job belongs to someone else")
	}

	return user, job, nil
}
