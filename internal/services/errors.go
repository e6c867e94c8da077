package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDirectoryNotFound  = errors.New("directory not found")
	ErrInvalidBatchSize   = errors.New("invalid batch size")
	ErrUploadFailed       = errors.New("upload failed")
	ErrArchiveCorrupt     = errors.New("archive corrupt")
	ErrArchiveWriteFailed = errors.New("archive write failed")
	ErrConfiguration      = errors.New("configuration error")
	ErrTimeout            = errors.New("timeout")
	ErrRunLocked          = errors.New("output directory locked by another run")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrConfiguration
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// BatchError is a failure scoped to a single batch. It unwraps to both its
// marker and its cause so callers can use errors.Is against either.
type BatchError struct {
	Index   int
	Marker  error
	Detail  string
	Timeout bool
	Err     error
}

// NewBatchError tags err with a batch index and marker.
func NewBatchError(marker error, index int, detail string, err error) *BatchError {
	return &BatchError{
		Index:   index,
		Marker:  marker,
		Detail:  strings.TrimSpace(detail),
		Timeout: isTimeout(err),
		Err:     err,
	}
}

func (e *BatchError) Error() string {
	marker := "batch failure"
	if e.Marker != nil {
		marker = e.Marker.Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "batch %d: %s", e.Index, marker)
	if e.Timeout {
		b.WriteString(" (timeout)")
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *BatchError) Unwrap() []error {
	out := make([]error, 0, 3)
	if e.Marker != nil {
		out = append(out, e.Marker)
	}
	if e.Timeout {
		out = append(out, ErrTimeout)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// BatchIndex returns the batch index carried by err, if any.
func BatchIndex(err error) (int, bool) {
	var batchErr *BatchError
	if errors.As(err, &batchErr) {
		return batchErr.Index, true
	}
	return 0, false
}

// Classify maps an error to the short kind recorded in the run ledger and
// emitted as the event_type of failure logs.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUploadFailed):
		return "upload_failed"
	case errors.Is(err, ErrArchiveCorrupt):
		return "archive_corrupt"
	case errors.Is(err, ErrArchiveWriteFailed):
		return "archive_write_failed"
	case errors.Is(err, ErrDirectoryNotFound):
		return "directory_not_found"
	case errors.Is(err, ErrInvalidBatchSize):
		return "invalid_batch_size"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrRunLocked):
		return "run_locked"
	default:
		return "unknown"
	}
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return true
	}
	var timeoutErr interface{ Timeout() bool }
	return errors.As(err, &timeoutErr) && timeoutErr.Timeout()
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
