// Package failure is the error taxonomy shared by every stage of a
// separation job. Each Kind is backed by a marker error, so a kind survives
// any amount of wrapping and can be recovered with KindOf.
package failure

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/domains"
	"github.com/cockroachdb/errors/markers"
	"github.com/veedubyou/stemsplit/src/shared/lib/errors/mark"
)

type Kind string

const (
	InvalidInput      Kind = "InvalidInput"
	Unauthorized      Kind = "Unauthorized"
	NotFound          Kind = "NotFound"
	UnsupportedFormat Kind = "UnsupportedFormat"
	CorruptInput      Kind = "CorruptInput"
	EmptyInput        Kind = "EmptyInput"
	InputTooLong      Kind = "InputTooLong"
	ModelUnavailable  Kind = "ModelUnavailable"
	InferenceError    Kind = "InferenceError"
	EncodingError     Kind = "EncodingError"
	Timeout           Kind = "Timeout"
	StorageError      Kind = "StorageError"
	InternalError     Kind = "InternalError"
)

var kindMarks = map[Kind]error{
	InvalidInput:      domains.New("invalid_input"),
	Unauthorized:      domains.New("unauthorized"),
	NotFound:          domains.New("not_found"),
	UnsupportedFormat: domains.New("unsupported_format"),
	CorruptInput:      domains.New("corrupt_input"),
	EmptyInput:        domains.New("empty_input"),
	InputTooLong:      domains.New("input_too_long"),
	ModelUnavailable:  domains.New("model_unavailable"),
	InferenceError:    domains.New("inference_error"),
	EncodingError:     domains.New("encoding_error"),
	Timeout:           domains.New("timeout"),
	StorageError:      domains.New("storage_error"),
	InternalError:     domains.New("internal_error"),
}

// checked in this order; a timeout observed mid-stage outranks whatever the
// stage itself reported
var precedence = []Kind{
	Timeout,
	InvalidInput,
	Unauthorized,
	NotFound,
	UnsupportedFormat,
	CorruptInput,
	EmptyInput,
	InputTooLong,
	ModelUnavailable,
	InferenceError,
	EncodingError,
	StorageError,
	InternalError,
}

func AllKinds() []Kind {
	kinds := make([]Kind, len(precedence))
	copy(kinds, precedence)
	return kinds
}

func (k Kind) Mark() error {
	markErr, ok := kindMarks[k]
	if !ok {
		return kindMarks[InternalError]
	}

	return markErr
}

func (k Kind) Valid() bool {
	_, ok := kindMarks[k]
	return ok
}

// fallback text for failures that never went through Wrap or New
var defaultMessages = map[Kind]string{
	InvalidInput:      "the request is invalid",
	Unauthorized:      "not authorized",
	NotFound:          "not found",
	UnsupportedFormat: "the input format is not supported",
	CorruptInput:      "the input could not be decoded",
	EmptyInput:        "the input has no audio",
	InputTooLong:      "the input is too long",
	ModelUnavailable:  "the separation model is unavailable",
	InferenceError:    "separation failed",
	EncodingError:     "a stem could not be encoded",
	Timeout:           "the job ran out of time",
	StorageError:      "storage is unavailable",
	InternalError:     "something went wrong",
}

// withUserMessage carries the client facing text given to Wrap or New. The
// rest of the chain is for logs only.
type withUserMessage struct {
	cause error
	kind  Kind
	msg   string
}

func (w *withUserMessage) Error() string {
	return w.cause.Error()
}

func (w *withUserMessage) Unwrap() error {
	return w.cause
}

func Wrap(err error, kind Kind, msg string) error {
	return &withUserMessage{
		cause: mark.Wrap(err, kind.Mark(), msg),
		kind:  kind,
		msg:   msg,
	}
}

func New(kind Kind, msg string) error {
	return &withUserMessage{
		cause: mark.Message(kind.Mark(), msg),
		kind:  kind,
		msg:   msg,
	}
}

func Is(err error, kind Kind) bool {
	return markers.Is(err, kind.Mark())
}

// KindOf classifies err. Unmarked errors are InternalError, except bare
// deadline errors which are reported as Timeout.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	for _, kind := range precedence {
		if markers.Is(err, kindMarks[kind]) {
			return kind
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}

	return InternalError
}

// Failure is the structured cause recorded on a failed job.
type Failure struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// From classifies err for clients. Message is the outermost text given to
// Wrap or New for the winning kind, never the wrapped chain, which can name
// scratch paths and bucket URLs.
func From(err error) *Failure {
	if err == nil {
		return nil
	}

	kind := KindOf(err)
	return &Failure{
		Kind:    kind,
		Message: UserMessage(err, kind),
	}
}

func UserMessage(err error, kind Kind) string {
	for current := err; current != nil; current = errors.UnwrapOnce(current) {
		labelled, ok := current.(*withUserMessage)
		if ok && labelled.kind == kind {
			return labelled.msg
		}
	}

	if msg, ok := defaultMessages[kind]; ok {
		return msg
	}
	return defaultMessages[InternalError]
}
