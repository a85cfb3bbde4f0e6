package joberrors

import (
	"github.com/veedubyou/stemsplit/src/server/internal/errors/api"
	"github.com/veedubyou/stemsplit/src/shared/failure"
)

const (
	BadJobRequestCode     = api.ErrorCode("bad_job_request")
	UploadTooLargeCode    = api.ErrorCode("upload_too_large")
	InvalidInputCode      = api.ErrorCode("invalid_input")
	UnauthorizedCode      = api.ErrorCode("unauthorized")
	JobNotFoundCode       = api.ErrorCode("job_not_found")
	UnsupportedFormatCode = api.ErrorCode("unsupported_format")
	CorruptInputCode      = api.ErrorCode("corrupt_input")
	EmptyInputCode        = api.ErrorCode("empty_input")
	InputTooLongCode      = api.ErrorCode("input_too_long")
	ModelUnavailableCode  = api.ErrorCode("model_unavailable")
	InferenceErrorCode    = api.ErrorCode("inference_error")
	EncodingErrorCode     = api.ErrorCode("encoding_error")
	TimeoutCode           = api.ErrorCode("timeout")
	StorageErrorCode      = api.ErrorCode("storage_error")
	InternalErrorCode     = api.ErrorCode("internal_error")
)

var kindCodes = map[failure.Kind]api.ErrorCode{
	failure.InvalidInput:      InvalidInputCode,
	failure.Unauthorized:      UnauthorizedCode,
	failure.NotFound:          JobNotFoundCode,
	failure.UnsupportedFormat: UnsupportedFormatCode,
	failure.CorruptInput:      CorruptInputCode,
	failure.EmptyInput:        EmptyInputCode,
	failure.InputTooLong:      InputTooLongCode,
	failure.ModelUnavailable:  ModelUnavailableCode,
	failure.InferenceError:    InferenceErrorCode,
	failure.EncodingError:     EncodingErrorCode,
	failure.Timeout:           TimeoutCode,
	failure.StorageError:      StorageErrorCode,
	failure.InternalError:     InternalErrorCode,
}

// CodeFor maps a failure kind to its API error code.
func CodeFor(kind failure.Kind) api.ErrorCode {
	code, ok := kindCodes[kind]
	if !ok {
		return api.DefaultErrorCode
	}

	return code
}

// CommitFailure classifies err by its failure kind.
func CommitFailure(err error, userMessage string) *api.Error {
	return api.CommitError(err, CodeFor(failure.KindOf(err)), userMessage)
}
