package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"speech-desk/internal/domain"
	"speech-desk/internal/engine"
	"speech-desk/internal/export"
	"speech-desk/internal/model"
	"speech-desk/internal/progress"
)

// ErrBatchRunning is returned when a second batch is started while one
// is active.
var ErrBatchRunning = errors.New("batch already running")

// BatchOptions configure a whole queue run. Formats plus OutputDir
// derive one file sink per format for every item.
type BatchOptions struct {
	Job       Options
	Formats   []export.Format
	OutputDir string
}

// BatchItem is the per-input record of a queue run.
type BatchItem struct {
	Input  domain.NamedInput `json:"input"`
	JobID  string            `json:"jobId,omitempty"`
	Status domain.JobStatus  `json:"status"`
}

// BatchRunner sequences jobs over a list of inputs. Items are processed
// in order; a per-item failure is recorded and the loop continues.
// Cancel stops the current item and prevents further items from
// starting; unattempted items keep their created status.
type BatchRunner struct {
	runner *Runner
	models *model.Manager
	bus    *progress.Bus

	mu             sync.Mutex
	running        bool
	items          []BatchItem
	cursor         int
	abortRequested bool
	current        *Job
}

// NewBatchRunner wires a batch runner over the shared job runner.
func NewBatchRunner(runner *Runner, models *model.Manager, bus *progress.Bus) *BatchRunner {
	return &BatchRunner{runner: runner, models: models, bus: bus}
}

// Run processes the inputs sequentially and blocks until the queue
// finishes or is cancelled. The model is loaded once before the loop,
// not once per item. The final cursor is always len(items)+1, the
// "finished" sentinel distinct from 0 ("not started").
func (b *BatchRunner) Run(ctx context.Context, inputs []domain.NamedInput, opts BatchOptions) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return ErrBatchRunning
	}
	b.running = true
	b.abortRequested = false
	b.cursor = 0
	b.items = make([]BatchItem, len(inputs))
	for i, input := range inputs {
		b.items[i] = BatchItem{Input: input, Status: domain.JobStatusCreated}
	}
	b.mu.Unlock()

	batchID := uuid.NewString()
	start := time.Now()

	defer func() {
		b.mu.Lock()
		b.cursor = len(b.items) + 1
		b.current = nil
		b.running = false
		b.mu.Unlock()

		b.bus.Publish(progress.Event{
			JobID:     batchID,
			Type:      progress.EventTypeTiming,
			ElapsedMS: time.Since(start).Milliseconds(),
		})
	}()

	if _, fellBack, err := b.models.AcquireWithFallback(ctx, opts.Job.ModelPath, opts.Job.Device); err != nil {
		return err
	} else if fellBack {
		b.bus.Publish(progress.Event{
			JobID:   batchID,
			Type:    progress.EventTypeNotice,
			Message: "requested device unavailable, batch falls back to the default device",
		})
	}

	for i := range b.items {
		b.mu.Lock()
		if b.abortRequested {
			b.mu.Unlock()
			break
		}
		item := b.items[i]
		job := NewJob(domain.JobKindBatchItem, engine.Input{Path: item.Input.Path}, b.itemOptions(item, opts))
		b.items[i].JobID = job.ID
		b.current = job
		b.cursor = i
		b.mu.Unlock()

		_, err := b.runner.Run(ctx, job)

		b.mu.Lock()
		b.current = nil
		b.cursor = i + 1
		switch {
		case err == nil:
			b.items[i].Status = domain.JobStatusDone
		case domain.IsCancelled(err):
			b.items[i].Status = domain.JobStatusAborted
		default:
			b.items[i].Status = domain.JobStatusFailed
		}
		b.mu.Unlock()
	}

	return nil
}

// itemOptions derives per-item job options with one file sink per
// requested format, placed next to the input or in the output dir.
func (b *BatchRunner) itemOptions(item BatchItem, opts BatchOptions) Options {
	jobOpts := opts.Job
	jobOpts.Outputs = nil
	if jobOpts.Render.Title == "" {
		jobOpts.Render.Title = item.Input.Name
	}
	for _, format := range opts.Formats {
		path := export.DestinationPath(item.Input.Path, opts.OutputDir, format)
		jobOpts.Outputs = append(jobOpts.Outputs, export.Request{
			Format: format,
			Sink:   export.FileSink{Path: path},
		})
	}
	return jobOpts
}

// Cancel aborts the queue: the current item's token is signaled and no
// further items start. Idempotent; calling it again while aborting is a
// no-op.
func (b *BatchRunner) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.abortRequested {
		return
	}
	b.abortRequested = true
	if b.current != nil {
		b.current.Cancel()
	}
}

// Running reports whether a queue run is in progress.
func (b *BatchRunner) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Cursor returns the index of the next item to process; len(items)+1
// means the queue finished.
func (b *BatchRunner) Cursor() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursor
}

// Items returns a snapshot of per-item statuses.
func (b *BatchRunner) Items() []BatchItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]BatchItem, len(b.items))
	copy(out, b.items)
	return out
}
