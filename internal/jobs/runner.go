package jobs

import (
	"context"
	"errors"
	"time"

	"speech-desk/internal/diarize"
	"speech-desk/internal/domain"
	"speech-desk/internal/engine"
	"speech-desk/internal/export"
	"speech-desk/internal/llm"
	"speech-desk/internal/model"
	"speech-desk/internal/progress"
)

// Runner executes jobs through the full pipeline. Collaborators are
// injected at construction; Diarizer and LLM may be nil, which disables
// the corresponding optional stages.
type Runner struct {
	models   *model.Manager
	engine   engine.Transcriber
	diarizer diarize.Diarizer
	llm      llm.Client
	bus      *progress.Bus
}

// NewRunner wires a runner with its collaborators.
func NewRunner(models *model.Manager, eng engine.Transcriber, diarizer diarize.Diarizer, llmClient llm.Client, bus *progress.Bus) *Runner {
	return &Runner{
		models:   models,
		engine:   eng,
		diarizer: diarizer,
		llm:      llmClient,
		bus:      bus,
	}
}

// Run drives one job to a terminal state. Exactly one terminal event is
// published per job id: finished, failed, or aborted. Cancellation wins
// the race against a late engine success; the token is re-checked after
// every stage so a cancel requested before the terminal event always
// ends in Aborted, never Done.
func (r *Runner) Run(ctx context.Context, job *Job) (domain.Transcript, error) {
	ex := &execution{runner: r, job: job, status: domain.JobStatusCreated}
	ex.publishStatus()

	transcript, err := ex.run(ctx)
	if err != nil {
		return domain.Transcript{}, ex.fail(err)
	}
	// Last arbitration point: a cancel that slipped in after the final
	// stage check must still end in Aborted, not Done.
	if cerr := ex.checkCancel(); cerr != nil {
		return domain.Transcript{}, ex.fail(cerr)
	}

	ex.finish(&transcript)
	return transcript, nil
}

// execution holds the mutable state of one job run.
type execution struct {
	runner    *Runner
	job       *Job
	status    domain.JobStatus
	collected []domain.Segment
}

func (ex *execution) run(ctx context.Context) (domain.Transcript, error) {
	start := time.Now()
	opts := ex.job.Options

	if err := ex.job.validate(); err != nil {
		return domain.Transcript{}, err
	}
	if err := ex.transition(domain.JobStatusAcquiringModel); err != nil {
		return domain.Transcript{}, err
	}

	jctx, cancel := ex.job.Token.Context(ctx)
	defer cancel()

	handle, fellBack, err := ex.runner.models.AcquireWithFallback(jctx, opts.ModelPath, opts.Device)
	if err != nil {
		return domain.Transcript{}, ex.stageError(err)
	}
	if fellBack {
		ex.notice("requested device unavailable, fell back to the default device")
	}
	if err := ex.checkCancel(); err != nil {
		return domain.Transcript{}, err
	}

	if err := ex.transition(domain.JobStatusTranscribing); err != nil {
		return domain.Transcript{}, err
	}
	transcript, err := ex.runner.engine.Transcribe(jctx, handle, ex.job.Input, opts.Transcribe, engine.Callbacks{
		OnProgress: ex.publishProgress,
		OnSegment:  ex.appendSegment,
	})
	if cerr := ex.checkCancel(); cerr != nil {
		return domain.Transcript{}, cerr
	}
	if err != nil {
		return domain.Transcript{}, ex.stageError(err)
	}

	segments := transcript.Segments

	if opts.Diarize.Enabled && ex.runner.diarizer != nil && ex.job.Input.Path != "" {
		if err := ex.transition(domain.JobStatusDiarizing); err != nil {
			return domain.Transcript{}, err
		}
		labeled, derr := ex.runner.diarizer.Assign(jctx, ex.job.Input.Path, segments, opts.Diarize)
		if cerr := ex.checkCancel(); cerr != nil {
			return domain.Transcript{}, cerr
		}
		if derr != nil {
			ex.notice("diarization failed, continuing without speaker labels: " + derr.Error())
		} else {
			segments = labeled
		}
	}

	if opts.Summarize.Enabled && ex.runner.llm != nil {
		if err := ex.transition(domain.JobStatusSummarizing); err != nil {
			return domain.Transcript{}, err
		}
		summarizer := llm.Summarizer{Client: ex.runner.llm, Prompt: opts.Summarize.Prompt, Render: opts.Render}
		summary, serr := summarizer.Summarize(jctx, segments)
		if cerr := ex.checkCancel(); cerr != nil {
			return domain.Transcript{}, cerr
		}
		if serr != nil {
			ex.notice("summarization failed: " + serr.Error())
		} else {
			transcript.Summary = summary
		}
	}

	transcript.Segments = segments

	if len(opts.Outputs) > 0 {
		if err := ex.transition(domain.JobStatusWritingOutput); err != nil {
			return domain.Transcript{}, err
		}
		resolver := export.Resolver{Options: opts.Render}
		writeErrs := resolver.WriteAll(segments, opts.Outputs)
		for _, werr := range writeErrs {
			ex.notice("output failed: " + werr.Error())
		}
		if len(writeErrs) == len(opts.Outputs) {
			return domain.Transcript{}, domain.NewJobError(domain.FailureSink, domain.JobStatusWritingOutput,
				"all output targets failed", writeErrs[0])
		}
		if cerr := ex.checkCancel(); cerr != nil {
			return domain.Transcript{}, cerr
		}
	}

	transcript.ProcessingTimeSec = int64(time.Since(start).Seconds())
	return transcript, nil
}

// transition validates and applies one state machine edge and publishes
// the new status.
func (ex *execution) transition(next domain.JobStatus) error {
	if next == ex.status {
		return nil
	}
	if !isValidTransition(ex.status, next) {
		return invalidTransition(ex.status, next)
	}
	ex.status = next
	ex.publishStatus()
	return nil
}

// checkCancel converts a signaled token into a cancellation error.
func (ex *execution) checkCancel() error {
	if ex.job.Token.Cancelled() {
		return domain.NewJobError(domain.FailureCancelled, ex.status, "job cancelled", nil)
	}
	return nil
}

// stageError attaches the current stage to errors from collaborators.
func (ex *execution) stageError(err error) error {
	var jobErr *domain.JobError
	if errors.As(err, &jobErr) {
		return jobErr
	}
	return domain.NewJobError(domain.KindOf(err), ex.status, err.Error(), err)
}

// fail publishes the terminal failed or aborted event. A cancel request
// takes precedence over any concurrently reported failure.
func (ex *execution) fail(err error) error {
	jobErr, ok := err.(*domain.JobError)
	if !ok {
		jobErr = domain.NewJobError(domain.KindOf(err), ex.status, err.Error(), err)
	}
	if len(jobErr.Partial) == 0 {
		jobErr.Partial = ex.collected
	}

	if ex.job.Token.Cancelled() || domain.IsCancelled(err) {
		jobErr.Kind = domain.FailureCancelled
		if !ex.status.Terminal() && ex.status != domain.JobStatusAborting {
			ex.status = domain.JobStatusAborting
			ex.publishStatus()
		}
		ex.status = domain.JobStatusAborted
		ex.runner.bus.Publish(progress.Event{
			JobID:   ex.job.ID,
			Type:    progress.EventTypeAborted,
			Status:  domain.JobStatusAborted,
			Failure: jobErr,
		})
		return jobErr
	}

	ex.status = domain.JobStatusFailed
	ex.runner.bus.Publish(progress.Event{
		JobID:   ex.job.ID,
		Type:    progress.EventTypeFailed,
		Status:  domain.JobStatusFailed,
		Failure: jobErr,
	})
	return jobErr
}

// finish publishes the terminal success event.
func (ex *execution) finish(transcript *domain.Transcript) {
	ex.status = domain.JobStatusDone
	ex.runner.bus.Publish(progress.Event{
		JobID:  ex.job.ID,
		Type:   progress.EventTypeFinished,
		Status: domain.JobStatusDone,
		Result: transcript,
	})
}

func (ex *execution) publishStatus() {
	ex.runner.bus.Publish(progress.Event{
		JobID:  ex.job.ID,
		Type:   progress.EventTypeStatus,
		Status: ex.status,
	})
}

func (ex *execution) publishProgress(percent int) {
	ex.runner.bus.Publish(progress.Event{
		JobID:   ex.job.ID,
		Type:    progress.EventTypeProgress,
		Percent: percent,
	})
}

func (ex *execution) appendSegment(seg domain.Segment) {
	ex.collected = append(ex.collected, seg)
	copied := seg
	ex.runner.bus.Publish(progress.Event{
		JobID:   ex.job.ID,
		Type:    progress.EventTypeSegment,
		Segment: &copied,
	})
}

func (ex *execution) notice(message string) {
	ex.runner.bus.Publish(progress.Event{
		JobID:   ex.job.ID,
		Type:    progress.EventTypeNotice,
		Message: message,
	})
}
