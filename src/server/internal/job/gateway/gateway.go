package jobgateway

import (
	"io"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/labstack/echo/v4"
	"github.com/veedubyou/stemsplit/src/server/internal/errors/api"
	"github.com/veedubyou/stemsplit/src/server/internal/errors/gateway"
	"github.com/veedubyou/stemsplit/src/server/internal/job/errors"
	"github.com/veedubyou/stemsplit/src/server/internal/job/usecase"
	"github.com/veedubyou/stemsplit/src/server/internal/lib/request"
)

const (
	MaxUploadBytes = 50 << 20
	uploadField    = "file"
)

type SubmitJobRequest struct {
	InputRef  string `json:"input_ref"`
	InputName string `json:"input_name"`
}

type RenameJobRequest struct {
	InputName string `json:"input_name"`
}

type Gateway struct {
	usecase jobusecase.Usecase
}

func NewGateway(usecase jobusecase.Usecase) Gateway {
	return Gateway{
		usecase: usecase,
	}
}

// SubmitJob takes either a JSON body naming an already stored input or a
// multipart upload in the "file" field.
func (g Gateway) SubmitJob(c echo.Context) error {
	ctx := request.Context(c)
	authHeader, apiErr := request.AuthHeader(c)
	if apiErr != nil {
		return gateway.ErrorResponse(c, apiErr)
	}

	contentType := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(contentType, echo.MIMEMultipartForm) {
		return g.uploadJob(c, authHeader)
	}

	submitRequest := SubmitJobRequest{}
	if err := c.Bind(&submitRequest); err != nil {
		err = errors.Wrap(err, "Failed to bind request body to submit request")
		apiErr := api.CommitError(err,
			joberrors.BadJobRequestCode,
			"The job request was malformed. Expected {\"input_ref\": url} or a file upload")
		return gateway.ErrorResponse(c, apiErr)
	}

	job, apiErr := g.usecase.SubmitJob(ctx, authHeader, submitRequest.InputRef, submitRequest.InputName)
	if apiErr != nil {
		return gateway.ErrorResponse(c, apiErr)
	}

	return c.JSON(http.StatusAccepted, job)
}

func (g Gateway) uploadJob(c echo.Context, authHeader string) error {
	fileHeader, err := c.FormFile(uploadField)
	if err != nil {
		err = errors.Wrap(err, "Failed to read upload field")
		apiErr := api.CommitError(err,
			joberrors.BadJobRequestCode,
			"The upload is missing its \"file\" field")
		return gateway.ErrorResponse(c, apiErr)
	}

	if fileHeader.Size > MaxUploadBytes {
		apiErr := api.CommitError(errors.Newf("Upload of %d bytes exceeds the limit", fileHeader.Size),
			joberrors.UploadTooLargeCode,
			"Uploads are limited to 50 MB")
		return gateway.ErrorResponse(c, apiErr)
	}

	file, err := fileHeader.Open()
	if err != nil {
		apiErr := api.CommitError(errors.Wrap(err, "Failed to open upload"),
			joberrors.BadJobRequestCode,
			"The upload could not be read")
		return gateway.ErrorResponse(c, apiErr)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxUploadBytes+1))
	if err != nil {
		apiErr := api.CommitError(errors.Wrap(err, "Failed to read upload"),
			joberrors.BadJobRequestCode,
			"The upload could not be read")
		return gateway.ErrorResponse(c, apiErr)
	}

	if len(data) > MaxUploadBytes {
		apiErr := api.CommitError(errors.New("Upload exceeds the limit"),
			joberrors.UploadTooLargeCode,
			"Uploads are limited to 50 MB")
		return gateway.ErrorResponse(c, apiErr)
	}

	job, apiErr := g.usecase.UploadJob(request.Context(c), authHeader, fileHeader.Filename, data)
	if apiErr != nil {
		return gateway.ErrorResponse(c, apiErr)
	}

	return c.JSON(http.StatusAccepted, job)
}

func (g Gateway) GetJob(c echo.Context, jobID string) error {
	ctx := request.Context(c)
	authHeader, apiErr := request.AuthHeader(c)
	if apiErr != nil {
		return gateway.ErrorResponse(c, apiErr)
	}

	job, apiErr := g.usecase.GetJob(ctx, authHeader, jobID)
	if apiErr != nil {
		return gateway.ErrorResponse(c, apiErr)
	}

	return c.JSON(http.StatusOK, job)
}

func (g Gateway) ListJobs(c echo.Context) error {
	ctx := request.Context(c)
	authHeader, apiErr := request.AuthHeader(c)
	if apiErr != nil {
		return gateway.ErrorResponse(c, apiErr)
	}

	jobs, apiErr := g.usecase.ListJobs(ctx, authHeader)
	if apiErr != nil {
		return gateway.ErrorResponse(c, apiErr)
	}

	return c.JSON(http.StatusOK, jobs)
}

func (g Gateway) CancelJob(c echo.Context, jobID string) error {
	ctx := request.Context(c)
	authHeader, apiErr := request.AuthHeader(c)
	if apiErr != nil {
		return gateway.ErrorResponse(c, apiErr)
	}

	job, apiErr := g.usecase.CancelJob(ctx, authHeader, jobID)
	if apiErr != nil {
		return gateway.ErrorResponse(c, apiErr)
	}

	return c.JSON(http.StatusOK, job)
}

func (g Gateway) RenameJob(c echo.Context, jobID string) error {
	ctx := request.Context(c)
	authHeader, apiErr := request.AuthHeader(c)
	if apiErr != nil {
		return gateway.ErrorResponse(c, apiErr)
	}

	renameRequest := RenameJobRequest{}
	if err := c.Bind(&renameRequest); err != nil {
		err = errors.Wrap(err, "Failed to bind request body to rename request")
		apiErr := api.CommitError(err,
			joberrors.BadJobRequestCode,
			"The rename request was malformed. Expected {\"input_name\": name}")
		return gateway.ErrorResponse(c, apiErr)
	}

	job, apiErr := g.usecase.RenameJob(ctx, authHeader, jobID, renameRequest.InputName)
	if apiErr != nil {
		return gateway.ErrorResponse(c, apiErr)
	}

	return c.JSON(http.StatusOK, job)
}

func (g Gateway) DeleteJob(c echo.Context, jobID string) error {
	ctx := request.Context(c)
	authHeader, apiErr := request.AuthHeader(c)
	if apiErr != nil {
		return gateway.ErrorResponse(c, apiErr)
	}

	if apiErr := g.usecase.DeleteJob(ctx, authHeader, jobID); apiErr != nil {
		return gateway.ErrorResponse(c, apiErr)
	}

	return c.NoContent(http.StatusNoContent)
}

func (g Gateway) GetModel(c echo.Context) error {
	return c.JSON(http.StatusOK, g.usecase.Model())
}
