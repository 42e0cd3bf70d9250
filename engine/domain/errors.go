package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure taxonomy in spec §7.
var (
	ErrInvalidHeaderSpec      = errors.New("invalid header spec")
	ErrEmptySelection         = errors.New("empty selection")
	ErrUnsupportedFormat      = errors.New("unsupported format")
	ErrStorageUnavailable     = errors.New("storage unavailable")
	ErrLogScaleInvalid        = errors.New("log scale invalid")
	ErrIncompatibleMixedSeries = errors.New("incompatible mixed series")
	ErrColumnNotFound         = errors.New("column not found")
	ErrForwardReference       = errors.New("forward reference")
	ErrDuplicateName          = errors.New("duplicate name")
	ErrExpressionTooLong      = errors.New("expression too long")
	ErrUnknownFunction        = errors.New("unknown function")
	ErrSliceTooLarge          = errors.New("slice too large")
	ErrReadError              = errors.New("read error")
	ErrWriteError             = errors.New("write error")
	ErrNotFound               = errors.New("not found")
	ErrRawNotAvailable        = errors.New("raw not available")
)

// JobError wraps a sentinel with the job-facing context that ends up in
// IngestionJob.Message / VisualizationJob.Message.
type JobError struct {
	Kind    error
	Context string
}

func (e *JobError) Error() string {
	if e.Context == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Context)
}

func (e *JobError) Unwrap() error { return e.Kind }

// NewJobError builds a JobError from a sentinel and formatted context.
func NewJobError(kind error, format string, args ...any) *JobError {
	return &JobError{Kind: kind, Context: fmt.Sprintf(format, args...)}
}
