// Package jobs drives transcription work through its pipeline stages:
// model acquisition, engine transcription, optional diarization and
// summarization, and output writing, with cooperative cancellation and
// progress reporting over the event bus.
package jobs

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"speech-desk/internal/domain"
	"speech-desk/internal/engine"
	"speech-desk/internal/export"
)

// Options carries everything one job needs beyond its input.
type Options struct {
	ModelPath  string
	Device     int
	Transcribe domain.TranscribeOptions
	Diarize    domain.DiarizeOptions
	Summarize  domain.SummarizeOptions
	Render     export.RenderOptions
	Outputs    []export.Request
}

// Job is a single unit of transcription work. It owns its cancellation
// token exclusively; the token is shared by reference with the engine
// call and every post-processing step.
type Job struct {
	ID      string
	Kind    domain.JobKind
	Input   engine.Input
	Options Options
	Token   *Token
}

// NewJob allocates a job with a fresh id and token.
func NewJob(kind domain.JobKind, input engine.Input, opts Options) *Job {
	return &Job{
		ID:      uuid.NewString(),
		Kind:    kind,
		Input:   input,
		Options: opts,
		Token:   NewToken(),
	}
}

// Cancel signals the job's token. Idempotent.
func (j *Job) Cancel() {
	j.Token.Cancel()
}

// Snapshot returns the UI-facing job identity with the given status.
func (j *Job) Snapshot(status domain.JobStatus) domain.Job {
	return domain.Job{ID: j.ID, Kind: j.Kind, Status: status}
}

// validate rejects jobs that cannot reach the engine at all.
func (j *Job) validate() error {
	if strings.TrimSpace(j.Options.ModelPath) == "" {
		return domain.NewJobError(domain.FailureModelUnavailable, domain.JobStatusCreated,
			"no model path configured", nil)
	}
	if j.Input.Path == "" && j.Input.Samples == nil {
		return domain.NewJobError(domain.FailureEngine, domain.JobStatusCreated,
			"job has no input", nil)
	}
	return nil
}

// invalidTransition is returned when the pipeline attempts a state
// machine edge that does not exist; it indicates a runner bug.
func invalidTransition(from, to domain.JobStatus) error {
	return fmt.Errorf("invalid transition: %s -> %s", from, to)
}
