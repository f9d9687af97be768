package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidReference means the submitted reference does not resolve to a video key.
	ErrInvalidReference = errors.New("invalid video reference")
	// ErrNotFound means the key was never submitted, in this process or a previous one.
	ErrNotFound = errors.New("video not found")
	// ErrRunInProgress means the operation would race a run that has not finished.
	ErrRunInProgress = errors.New("video is still being processed")
)

// Pipeline stages that can fail
const (
	StageDownload   = "download"
	StageTranscribe = "transcribe"
	StagePersist    = "persist"
)

// CapabilityError wraps a failure of one of the external collaborators.
type CapabilityError struct {
	Stage string
	Err   error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// NewCapabilityError wraps err for the given stage, or returns nil for a nil err.
func NewCapabilityError(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &CapabilityError{Stage: stage, Err: err}
}
