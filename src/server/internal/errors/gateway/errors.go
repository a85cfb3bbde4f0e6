package gateway

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/veedubyou/stemsplit/src/server/api_error"
	"github.com/veedubyou/stemsplit/src/server/internal/errors/api"
	"github.com/veedubyou/stemsplit/src/server/internal/errors/auth"
	"github.com/veedubyou/stemsplit/src/server/internal/job/errors"
	"github.com/veedubyou/stemsplit/src/shared/lib/cerr"
)

var httpStatusCodeMap = map[api.ErrorCode]int{
	api.DefaultErrorCode:            http.StatusInternalServerError,
	auth.FailedVerificationCode:     http.StatusUnauthorized,
	auth.BadAuthorizationHeaderCode: http.StatusBadRequest,
	auth.WrongOwnerCode:             http.StatusForbidden,
	joberrors.BadJobRequestCode:     http.StatusBadRequest,
	joberrors.UploadTooLargeCode:    http.StatusRequestEntityTooLarge,
	joberrors.InvalidInputCode:      http.StatusBadRequest,
	joberrors.UnauthorizedCode:      http.StatusUnauthorized,
	joberrors.JobNotFoundCode:       http.StatusNotFound,
	joberrors.UnsupportedFormatCode: http.StatusUnprocessableEntity,
	joberrors.CorruptInputCode:      http.StatusUnprocessableEntity,
	joberrors.EmptyInputCode:        http.StatusUnprocessableEntity,
	joberrors.InputTooLongCode:      http.StatusUnprocessableEntity,
	joberrors.ModelUnavailableCode:  http.StatusUnprocessableEntity,
	joberrors.InferenceErrorCode:    http.StatusUnprocessableEntity,
	joberrors.EncodingErrorCode:     http.StatusUnprocessableEntity,
	joberrors.TimeoutCode:           http.StatusUnprocessableEntity,
	joberrors.StorageErrorCode:      http.StatusUnprocessableEntity,
	joberrors.InternalErrorCode:     http.StatusUnprocessableEntity,
}

// StatusCode is the HTTP status for code, if it has one.
func StatusCode(code api.ErrorCode) (int, bool) {
	statusCode, ok := httpStatusCodeMap[code]
	return statusCode, ok
}

func ErrorResponse(c echo.Context, err *api.Error) error {
	statusCode, ok := StatusCode(err.ErrorCode)
	if !ok {
		msg := fmt.Sprintf("Error code %s has no HTTP status code mapping", err.ErrorCode)
		panic(msg)
	}

	if statusCode >= http.StatusInternalServerError {
		cerr.Log(cerr.Field("error_code", err.ErrorCode).Wrap(err).Error("Request failed"))
	}

	return c.JSON(statusCode, api_error.JSONAPIError{
		Code:         string(err.ErrorCode),
		Msg:          err.UserMessage,
		ErrorDetails: err.Error(),
	})
}
