package api

import (
	"github.com/cockroachdb/errors"
)

type ErrorCode string

const DefaultErrorCode = ErrorCode("unknown")

// Error is what a usecase hands back to its gateway: a code that picks the
// HTTP status, a message fit for the user and the internal cause.
type Error struct {
	ErrorCode     ErrorCode
	UserMessage   string
	InternalError error
}

func (e *Error) Error() string {
	if e.InternalError == nil {
		return e.UserMessage
	}

	return e.InternalError.Error()
}

func (e *Error) Unwrap() error {
	return e.InternalError
}

func CommitError(err error, code ErrorCode, userMessage string) *Error {
	return &Error{
		ErrorCode:     code,
		UserMessage:   userMessage,
		InternalError: err,
	}
}

// WrapError adds context to the internal error, keeping the code and user
// message.
func WrapError(apiErr *Error, msg string) *Error {
	return &Error{
		ErrorCode:     apiErr.ErrorCode,
		UserMessage:   apiErr.UserMessage,
		InternalError: errors.Wrap(apiErr.InternalError, msg),
	}
}
