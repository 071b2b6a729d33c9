package domain

import (
	"context"
	"errors"
	"fmt"
)

// FailureKind classifies job failures for UI rendering and recovery policy.
type FailureKind string

const (
	FailureModelUnavailable  FailureKind = "model_unavailable"
	FailureDeviceUnavailable FailureKind = "device_unavailable"
	FailureEngine            FailureKind = "engine_error"
	FailureCancelled         FailureKind = "cancelled"
	FailureDiarization       FailureKind = "diarization_error"
	FailureSummarization     FailureKind = "summarization_error"
	FailurePromptInvalid     FailureKind = "prompt_invalid"
	FailureSink              FailureKind = "sink_error"
)

// JobError is a stage-aware error carried by a failed or aborted job.
// Partial holds segments accumulated before the failure, if any.
type JobError struct {
	Kind    FailureKind `json:"kind"`
	Stage   JobStatus   `json:"stage,omitempty"`
	Message string      `json:"message"`
	Partial []Segment   `json:"partial,omitempty"`
	Err     error       `json:"-"`
}

// Error formats the failure for logs and UI.
func (e *JobError) Error() string {
	if e == nil {
		return ""
	}
	if e.Stage == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s (stage=%s)", e.Kind, e.Message, e.Stage)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *JobError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewJobError wraps err with a failure kind and the stage it occurred in.
func NewJobError(kind FailureKind, stage JobStatus, message string, err error) *JobError {
	return &JobError{Kind: kind, Stage: stage, Message: message, Err: err}
}

// KindOf extracts the failure kind from an error chain. Plain context
// cancellation maps to FailureCancelled; anything else to FailureEngine.
func KindOf(err error) FailureKind {
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		return jobErr.Kind
	}
	if errors.Is(err, context.Canceled) {
		return FailureCancelled
	}
	return FailureEngine
}

// IsCancelled reports whether an error chain stems from a cancel request.
func IsCancelled(err error) bool {
	return err != nil && KindOf(err) == FailureCancelled
}
