package ingest

import (
	"errors"

	"github.com/princekumarofficial/gallery-service/internal/ratelimit"
)

// Kind classifies why an upload did not go through
type Kind int

const (
	KindUnknown Kind = iota
	AdmissionDenied
	PolicyDenied
	Validation
	DuplicateContent
	TranscodeFailure
	PersistenceFailure
)

func (k Kind) String() string {
	switch k {
	case AdmissionDenied:
		return "admission_denied"
	case PolicyDenied:
		return "policy_denied"
	case Validation:
		return "validation"
	case DuplicateContent:
		return "duplicate_content"
	case TranscodeFailure:
		return "transcode_failure"
	case PersistenceFailure:
		return "persistence_failure"
	default:
		return "unknown"
	}
}

// Client facing messages. The wording is kept stable for existing API consumers.
var (
	ErrUploadsDisabled = errors.New("Image uploads not allowed")

	ErrMissingPayload       = errors.New("No image and/or form attached")
	ErrUnsupportedMediaType = errors.New("Invalid file type")
	ErrPayloadTooLarge      = errors.New("File too large")
	ErrTooManyTags          = errors.New("A post can only have up to 50 tags")
	ErrTagTooLong           = errors.New("Tags have a maximum length of 40 characters")
	ErrArtistNameTooLong    = errors.New("The artist field has a maximum length of 30 characters")

	ErrDuplicateContent   = errors.New("Image already uploaded")
	ErrTranscodeFailure   = errors.New("Error processing image")
	ErrPersistenceFailure = errors.New("Error saving image")
)

// Error carries the kind of a failed upload, the message safe to show to the client
// and, for server side failures, the underlying cause.
type Error struct {
	Kind  Kind
	Err   error
	Cause error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func serverError(kind Kind, public, cause error) *Error {
	return &Error{Kind: kind, Err: public, Cause: cause}
}

// DuplicateError reports that identical bytes were already stored under ExistingID
type DuplicateError struct {
	ExistingID string
}

func (e *DuplicateError) Error() string {
	return ErrDuplicateContent.Error()
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicateContent
}

// KindOf classifies any error returned by the pipeline or the rate limiter
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var dup *DuplicateError
	if errors.As(err, &dup) {
		return DuplicateContent
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	if errors.Is(err, ratelimit.ErrLimited) {
		return AdmissionDenied
	}

	return KindUnknown
}
