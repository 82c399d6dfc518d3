package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation means the asset cannot be processed now. No session is
	// created for it.
	ErrValidation = errors.New("asset is not eligible for processing")

	ErrRetrieval   = errors.New("retrieval failed")
	ErrExtraction  = errors.New("extraction failed")
	ErrPersistence = errors.New("persistence failed")

	// ErrInternal wraps unexpected failures, including recovered panics.
	ErrInternal = errors.New("processing failed unexpectedly")

	// ErrBusy is returned when the pool queue is full. No session is created.
	ErrBusy = errors.New("processing queue is full")
)

// Error is a failed pipeline run. It matches both its stage sentinel and the
// underlying cause with errors.Is.
type Error struct {
	Stage     error
	AssetID   string
	SessionID string
	Err       error
}

func (e *Error) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("%v: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%v (session %s): %v", e.Stage, e.SessionID, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Stage, e.Err}
}
