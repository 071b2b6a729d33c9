package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"speech-desk/internal/domain"
	"speech-desk/internal/engine"
	"speech-desk/internal/export"
	"speech-desk/internal/hotkey"
	"speech-desk/internal/jobs"
	"speech-desk/internal/model"
	"speech-desk/internal/progress"
)

// fakeStore returns deterministic settings for App tests.
type fakeStore struct {
	settings domain.Settings
}

// Load returns preconfigured settings.
func (s *fakeStore) Load() (domain.Settings, error) {
	return s.settings, nil
}

// Save is a no-op for tests.
func (s *fakeStore) Save(domain.Settings) error {
	return nil
}

type fakeHandle struct{}

func (fakeHandle) Close() error { return nil }

// fakeEngine allows injecting custom transcription behavior per test.
type fakeEngine struct {
	run func(ctx context.Context, input engine.Input, cb engine.Callbacks) (domain.Transcript, error)
}

func (e *fakeEngine) Transcribe(ctx context.Context, _ model.Handle, input engine.Input, _ domain.TranscribeOptions, cb engine.Callbacks) (domain.Transcript, error) {
	if e.run == nil {
		return domain.Transcript{}, nil
	}
	return e.run(ctx, input, cb)
}

func newTestApp(settings domain.Settings, eng engine.Transcriber) *App {
	return &App{
		Settings: settings,
		Store:    &fakeStore{settings: settings},
		bus:      progress.NewBus(200),
		models: model.NewManager(model.LoaderFunc(func(_ context.Context, _ string, _ int) (model.Handle, error) {
			return fakeHandle{}, nil
		})),
		engine: eng,
	}
}

func testSettings(t *testing.T) domain.Settings {
	t.Helper()
	return domain.Settings{
		ModelPath: "/tmp/model.bin",
		OutputDir: t.TempDir(),
		Formats:   []string{"srt"},
	}
}

// waitForEvent polls JobEvents until an event of the given type arrives.
func waitForEvent(t *testing.T, app *App, eventType progress.EventType) progress.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, event := range app.JobEvents(0) {
			if event.Type == eventType {
				return event
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %s event observed", eventType)
	return progress.Event{}
}

// fakeListener stands in for the gohook chord listener. Start blocks
// until Stop, mirroring the real listener's contract.
type fakeListener struct {
	ch      chan hotkey.Event
	started chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func newFakeListener() *fakeListener {
	return &fakeListener{
		ch:      make(chan hotkey.Event, 4),
		started: make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (l *fakeListener) Start() {
	close(l.started)
	<-l.stopped
	close(l.ch)
}

func (l *fakeListener) Stop() {
	l.once.Do(func() { close(l.stopped) })
}

func (l *fakeListener) Events() <-chan hotkey.Event {
	return l.ch
}

// fakeRecorder counts capture starts for hotkey wiring tests.
type fakeRecorder struct {
	starts atomic.Int32
}

func (r *fakeRecorder) Start() error {
	r.starts.Add(1)
	return nil
}

func (r *fakeRecorder) Stop() []float32 {
	return nil
}

// TestStartupRunsHotkeyListenerWithoutBlocking checks that Startup
// returns while the chord listener keeps running, and that chord events
// reach the dictation controller.
func TestStartupRunsHotkeyListenerWithoutBlocking(t *testing.T) {
	app := newTestApp(testSettings(t), &fakeEngine{})
	listener := newFakeListener()
	recorder := &fakeRecorder{}
	runner := jobs.NewRunner(app.models, app.engine, nil, nil, app.bus)
	app.listener = listener
	app.dictation = hotkey.NewController(recorder, runner, func() hotkey.Config {
		return hotkey.Config{Options: jobs.Options{ModelPath: "/tmp/model.bin"}}
	})

	returned := make(chan struct{})
	go func() {
		app.Startup(context.Background())
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Startup did not return with the listener configured")
	}
	select {
	case <-listener.started:
	case <-time.After(time.Second):
		t.Fatal("listener was never started")
	}

	listener.ch <- hotkey.Event{Type: hotkey.EventPressed}
	deadline := time.Now().Add(time.Second)
	for recorder.starts.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("chord press never reached the dictation controller")
		}
		time.Sleep(5 * time.Millisecond)
	}

	app.Shutdown(context.Background())
	select {
	case <-listener.stopped:
	case <-time.After(time.Second):
		t.Fatal("listener was not stopped on shutdown")
	}
}

// TestStartTranscriptionEnforcesSingleRunningJob checks single-job guard.
func TestStartTranscriptionEnforcesSingleRunningJob(t *testing.T) {
	app := newTestApp(testSettings(t), &fakeEngine{
		run: func(ctx context.Context, _ engine.Input, _ engine.Callbacks) (domain.Transcript, error) {
			<-ctx.Done()
			return domain.Transcript{}, domain.NewJobError(domain.FailureCancelled, domain.JobStatusTranscribing, "interrupted", nil)
		},
	})

	if _, err := app.StartTranscription("/tmp/input.mp4"); err != nil {
		t.Fatalf("start first job: %v", err)
	}
	if _, err := app.StartTranscription("/tmp/input-2.mp4"); !errors.Is(err, ErrJobRunning) {
		t.Fatalf("second start error = %v, want %v", err, ErrJobRunning)
	}

	if err := app.CancelTranscription(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	event := waitForEvent(t, app, progress.EventTypeAborted)
	if event.Failure == nil || event.Failure.Kind != domain.FailureCancelled {
		t.Fatalf("aborted event failure = %+v", event.Failure)
	}
}

// TestStartTranscriptionPublishesProgressAndResultEvents checks event flow.
func TestStartTranscriptionPublishesProgressAndResultEvents(t *testing.T) {
	settings := testSettings(t)
	inputPath := filepath.Join(t.TempDir(), "talk.mp4")

	app := newTestApp(settings, &fakeEngine{
		run: func(_ context.Context, _ engine.Input, cb engine.Callbacks) (domain.Transcript, error) {
			cb.OnProgress(50)
			seg := domain.Segment{Start: 0, Stop: 1, Text: "hello"}
			cb.OnSegment(seg)
			cb.OnProgress(100)
			return domain.Transcript{Segments: []domain.Segment{seg}}, nil
		},
	})

	job, err := app.StartTranscription(inputPath)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if job.Kind != domain.JobKindInteractive {
		t.Fatalf("job kind = %s", job.Kind)
	}

	finished := waitForEvent(t, app, progress.EventTypeFinished)
	if finished.Result == nil || len(finished.Result.Segments) != 1 {
		t.Fatalf("finished result = %+v", finished.Result)
	}

	var sawProgress bool
	for _, event := range app.JobEvents(0) {
		if event.Type == progress.EventTypeProgress {
			sawProgress = true
		}
	}
	if !sawProgress {
		t.Fatal("expected at least one progress event")
	}

	exported := filepath.Join(settings.OutputDir, "talk.srt")
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(exported); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("exported file missing: %s", exported)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestStartTranscriptionPublishesFailureEvents checks failure mapping.
func TestStartTranscriptionPublishesFailureEvents(t *testing.T) {
	app := newTestApp(testSettings(t), &fakeEngine{
		run: func(context.Context, engine.Input, engine.Callbacks) (domain.Transcript, error) {
			return domain.Transcript{}, domain.NewJobError(domain.FailureEngine, domain.JobStatusTranscribing, "decode failed", nil)
		},
	})

	if _, err := app.StartTranscription("/tmp/input.mp4"); err != nil {
		t.Fatalf("start: %v", err)
	}

	failed := waitForEvent(t, app, progress.EventTypeFailed)
	if failed.Failure == nil || failed.Failure.Kind != domain.FailureEngine {
		t.Fatalf("failed event failure = %+v", failed.Failure)
	}
}

// TestCancelTranscriptionWithoutActiveJob checks the no-op cancel error.
func TestCancelTranscriptionWithoutActiveJob(t *testing.T) {
	app := newTestApp(testSettings(t), &fakeEngine{})
	if err := app.CancelTranscription(); !errors.Is(err, ErrNoRunningJob) {
		t.Fatalf("cancel error = %v, want %v", err, ErrNoRunningJob)
	}
}

// TestStartBatchRejectsConcurrentRuns checks the one-batch-at-a-time guard.
func TestStartBatchRejectsConcurrentRuns(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 8)
	app := newTestApp(testSettings(t), &fakeEngine{
		run: func(ctx context.Context, _ engine.Input, _ engine.Callbacks) (domain.Transcript, error) {
			started <- struct{}{}
			select {
			case <-release:
			case <-ctx.Done():
			}
			return domain.Transcript{Segments: []domain.Segment{{Text: "ok"}}}, nil
		},
	})

	inputs := []domain.NamedInput{{Name: "a.mp4", Path: "/tmp/a.mp4"}}
	if err := app.StartBatch(inputs); err != nil {
		t.Fatalf("start batch: %v", err)
	}
	<-started

	if err := app.StartBatch(inputs); !errors.Is(err, jobs.ErrBatchRunning) {
		t.Fatalf("second batch error = %v, want %v", err, jobs.ErrBatchRunning)
	}

	close(release)
	waitForEvent(t, app, progress.EventTypeTiming)

	items := app.BatchItems()
	if len(items) != 1 || items[0].Status != domain.JobStatusDone {
		t.Fatalf("batch items = %+v", items)
	}
}

// TestStartBatchRejectsEmptyInputs checks input validation.
func TestStartBatchRejectsEmptyInputs(t *testing.T) {
	app := newTestApp(testSettings(t), &fakeEngine{})
	if err := app.StartBatch(nil); err == nil {
		t.Fatal("expected error for empty inputs")
	}
}

// TestJobOptionsFromSettingsBuildsFileSinks checks format-to-sink mapping.
func TestJobOptionsFromSettingsBuildsFileSinks(t *testing.T) {
	settings := domain.Settings{
		ModelPath: "/tmp/model.bin",
		OutputDir: "/out",
		Formats:   []string{"srt", "vtt"},
	}

	opts, err := jobOptionsFromSettings(settings, "/media/talk.mp4")
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Render.Title != "talk" {
		t.Fatalf("title = %q", opts.Render.Title)
	}
	if len(opts.Outputs) != 2 {
		t.Fatalf("outputs = %d, want 2", len(opts.Outputs))
	}
	if opts.Outputs[0].Format != export.FormatSRT || opts.Outputs[1].Format != export.FormatVTT {
		t.Fatalf("formats = %s, %s", opts.Outputs[0].Format, opts.Outputs[1].Format)
	}
}

// TestJobOptionsFromSettingsRejectsUnknownFormat checks format validation.
func TestJobOptionsFromSettingsRejectsUnknownFormat(t *testing.T) {
	settings := domain.Settings{ModelPath: "/tmp/model.bin", Formats: []string{"midi"}}
	if _, err := jobOptionsFromSettings(settings, "/media/talk.mp4"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

// TestNormalizeSettingsAppliesDefaults checks trimming and fallbacks.
func TestNormalizeSettingsAppliesDefaults(t *testing.T) {
	normalized := normalizeSettings(domain.Settings{
		ModelPath: "  /tmp/model.bin  ",
		OutputDir: " /out ",
	})

	if normalized.ModelPath != "/tmp/model.bin" {
		t.Fatalf("model path = %q", normalized.ModelPath)
	}
	if normalized.OutputDir != "/out" {
		t.Fatalf("output dir = %q", normalized.OutputDir)
	}
	if normalized.Transcribe.Language != "auto" {
		t.Fatalf("language = %q", normalized.Transcribe.Language)
	}
	if normalized.LLM.Platform != "ollama" {
		t.Fatalf("platform = %q", normalized.LLM.Platform)
	}
	if normalized.Hotkey.Output != "clipboard" {
		t.Fatalf("hotkey output = %q", normalized.Hotkey.Output)
	}
	if len(normalized.Formats) != 1 || normalized.Formats[0] != "srt" {
		t.Fatalf("formats = %v", normalized.Formats)
	}
}
