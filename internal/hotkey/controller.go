package hotkey

import (
	"context"
	"sync"

	"speech-desk/internal/domain"
	"speech-desk/internal/engine"
	"speech-desk/internal/export"
	"speech-desk/internal/jobs"
)

// Recorder captures microphone audio between chord press and release.
type Recorder interface {
	Start() error
	Stop() []float32
}

// Config is the per-dictation snapshot of user settings.
type Config struct {
	Options jobs.Options // Outputs is ignored; routing is fixed below
	Output  string       // "clipboard" (default) or "type"
}

// Controller turns one press/release cycle into a dictation job. The
// reentrancy guard is owned by the controller instance: a second press
// while a cycle is active is ignored, and the guard clears only after
// the job reaches a terminal state, failure included, so the next press
// can always start fresh. Dictation output goes to the clipboard or the
// synthetic typist, never to a file.
type Controller struct {
	recorder Recorder
	runner   *jobs.Runner
	config   func() Config
	sinkFor  func(output string) export.Sink

	mu        sync.Mutex
	active    bool
	recording bool
	wg        sync.WaitGroup
}

// NewController wires a controller with its collaborators. config is
// called at each press so settings changes apply to the next dictation.
func NewController(recorder Recorder, runner *jobs.Runner, config func() Config) *Controller {
	return &Controller{recorder: recorder, runner: runner, config: config, sinkFor: outputSink}
}

// Active reports whether a dictation cycle is in progress.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// KeyDown starts recording unless a cycle is already active.
func (c *Controller) KeyDown() {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return
	}
	c.active = true
	c.mu.Unlock()

	if err := c.recorder.Start(); err != nil {
		c.mu.Lock()
		c.active = false
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	c.recording = true
	c.mu.Unlock()
}

// KeyUp stops the recording and runs the captured audio through the
// pipeline in the background.
func (c *Controller) KeyUp(ctx context.Context) {
	c.mu.Lock()
	if !c.active || !c.recording {
		c.mu.Unlock()
		return
	}
	c.recording = false
	c.mu.Unlock()

	samples := c.recorder.Stop()
	if len(samples) == 0 {
		c.release()
		return
	}

	cfg := c.config()
	cfg.Options.Outputs = []export.Request{{Format: export.FormatText, Sink: c.sinkFor(cfg.Output)}}

	job := jobs.NewJob(domain.JobKindHotkeyDictation, engine.Input{Samples: samples}, cfg.Options)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.release()
		_, _ = c.runner.Run(ctx, job) // failures surface on the event bus
	}()
}

// Wait blocks until any in-flight dictation job finishes.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) release() {
	c.mu.Lock()
	c.active = false
	c.mu.Unlock()
}

// outputSink maps the configured routing to its sink. Unknown values
// fall back to the clipboard.
func outputSink(output string) export.Sink {
	if output == "type" {
		return export.TypistSink{}
	}
	return export.ClipboardSink{}
}
