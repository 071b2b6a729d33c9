package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"

	"speech-desk/internal/diarize"
	"speech-desk/internal/domain"
	"speech-desk/internal/engine"
	"speech-desk/internal/export"
	"speech-desk/internal/model"
	"speech-desk/internal/progress"
)

type fakeHandle struct{}

func (fakeHandle) Close() error { return nil }

func newTestModels() *model.Manager {
	return model.NewManager(model.LoaderFunc(func(_ context.Context, _ string, _ int) (model.Handle, error) {
		return fakeHandle{}, nil
	}))
}

// fakeEngine drives the callbacks, then either blocks until cancel,
// fails, or succeeds with its configured segments.
type fakeEngine struct {
	mu          sync.Mutex
	calls       int
	segments    []domain.Segment
	progress    []int
	err         error
	failOnCall  int // 1-based call index that returns err; 0 means every call
	blockCancel bool
	started     chan struct{} // closed on first Transcribe call when set
}

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeEngine) Transcribe(ctx context.Context, _ model.Handle, _ engine.Input, _ domain.TranscribeOptions, cb engine.Callbacks) (domain.Transcript, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	if f.started != nil && call == 1 {
		close(f.started)
	}
	f.mu.Unlock()

	for _, p := range f.progress {
		if cb.OnProgress != nil {
			cb.OnProgress(p)
		}
	}
	for _, seg := range f.segments {
		if cb.OnSegment != nil {
			cb.OnSegment(seg)
		}
	}

	if f.blockCancel {
		<-ctx.Done()
		return domain.Transcript{}, domain.NewJobError(domain.FailureCancelled, domain.JobStatusTranscribing, "stopped", ctx.Err())
	}
	if f.err != nil && (f.failOnCall == 0 || f.failOnCall == call) {
		return domain.Transcript{}, f.err
	}
	return domain.Transcript{Segments: f.segments}, nil
}

type memorySink struct {
	mu   sync.Mutex
	data []byte
	err  error
}

func (s *memorySink) Name() string { return "memory" }

func (s *memorySink) Write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	return s.err
}

func baseOptions() Options {
	return Options{ModelPath: "/models/ggml-base.bin"}
}

func TestRunnerHappyPath(t *testing.T) {
	bus := progress.NewBus(100)
	eng := &fakeEngine{
		segments: []domain.Segment{{Start: 0, Stop: 1.5, Text: "hi"}},
		progress: []int{10, 50, 100},
	}
	sink := &memorySink{}

	opts := baseOptions()
	opts.Outputs = []export.Request{{Format: export.FormatText, Sink: sink}}

	runner := NewRunner(newTestModels(), eng, nil, nil, bus)
	job := NewJob(domain.JobKindInteractive, engine.Input{Path: "talk.wav"}, opts)

	transcript, err := runner.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(transcript.Segments) != 1 || transcript.Segments[0].Text != "hi" {
		t.Errorf("transcript = %+v", transcript)
	}
	if string(sink.data) != "hi\n" {
		t.Errorf("sink received %q", sink.data)
	}

	events := bus.Since(0)
	var terminals int
	var sawDone bool
	for _, ev := range events {
		switch ev.Type {
		case progress.EventTypeFinished:
			terminals++
			sawDone = true
			if ev.Result == nil || len(ev.Result.Segments) != 1 {
				t.Errorf("finished event missing result: %+v", ev)
			}
		case progress.EventTypeFailed, progress.EventTypeAborted:
			terminals++
		}
	}
	if terminals != 1 || !sawDone {
		t.Errorf("terminal events = %d (done=%v), want exactly one finished", terminals, sawDone)
	}
}

func TestRunnerStatusOrder(t *testing.T) {
	bus := progress.NewBus(100)
	eng := &fakeEngine{segments: []domain.Segment{{Text: "hi"}}}

	runner := NewRunner(newTestModels(), eng, nil, nil, bus)
	job := NewJob(domain.JobKindInteractive, engine.Input{Path: "talk.wav"}, baseOptions())

	if _, err := runner.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var statuses []domain.JobStatus
	for _, ev := range bus.Since(0) {
		if ev.Type == progress.EventTypeStatus {
			statuses = append(statuses, ev.Status)
		}
	}
	want := []domain.JobStatus{
		domain.JobStatusCreated,
		domain.JobStatusAcquiringModel,
		domain.JobStatusTranscribing,
	}
	if len(statuses) != len(want) {
		t.Fatalf("statuses = %v, want %v", statuses, want)
	}
	for i, w := range want {
		if statuses[i] != w {
			t.Errorf("status %d = %s, want %s", i, statuses[i], w)
		}
	}
}

func TestRunnerCancelBeforeTerminalNeverDone(t *testing.T) {
	bus := progress.NewBus(100)
	eng := &fakeEngine{
		segments:    []domain.Segment{{Start: 0, Stop: 1, Text: "partial"}},
		blockCancel: true,
		started:     make(chan struct{}),
	}

	runner := NewRunner(newTestModels(), eng, nil, nil, bus)
	job := NewJob(domain.JobKindInteractive, engine.Input{Path: "talk.wav"}, baseOptions())

	done := make(chan error, 1)
	go func() {
		_, err := runner.Run(context.Background(), job)
		done <- err
	}()

	<-eng.started
	job.Cancel()
	err := <-done

	if !domain.IsCancelled(err) {
		t.Fatalf("expected cancelled failure, got %v", err)
	}
	var jobErr *domain.JobError
	if !errors.As(err, &jobErr) {
		t.Fatalf("expected *JobError, got %T", err)
	}
	if len(jobErr.Partial) != 1 || jobErr.Partial[0].Text != "partial" {
		t.Errorf("partial segments = %+v", jobErr.Partial)
	}

	var aborted, finished int
	for _, ev := range bus.Since(0) {
		switch ev.Type {
		case progress.EventTypeAborted:
			aborted++
		case progress.EventTypeFinished:
			finished++
		}
	}
	if aborted != 1 || finished != 0 {
		t.Errorf("aborted=%d finished=%d, want exactly one aborted and no finished", aborted, finished)
	}
}

func TestRunnerCancelWinsOverLateSuccess(t *testing.T) {
	// Engine completes successfully, but the cancel was requested before
	// the terminal event: the job must report Aborted, not Done.
	bus := progress.NewBus(100)
	eng := &fakeEngine{segments: []domain.Segment{{Text: "hi"}}}

	runner := NewRunner(newTestModels(), eng, nil, nil, bus)
	job := NewJob(domain.JobKindInteractive, engine.Input{Path: "talk.wav"}, baseOptions())
	job.Cancel()

	_, err := runner.Run(context.Background(), job)
	if !domain.IsCancelled(err) {
		t.Fatalf("expected cancelled failure, got %v", err)
	}
	for _, ev := range bus.Since(0) {
		if ev.Type == progress.EventTypeFinished {
			t.Error("finished event published for a cancelled job")
		}
	}
}

func TestRunnerEmptyTranscriptFinishesDone(t *testing.T) {
	// Silent audio produces no segments; the job still completes.
	bus := progress.NewBus(100)
	eng := &fakeEngine{}

	runner := NewRunner(newTestModels(), eng, nil, nil, bus)
	job := NewJob(domain.JobKindInteractive, engine.Input{Path: "silence.wav"}, baseOptions())

	transcript, err := runner.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(transcript.Segments) != 0 {
		t.Errorf("segments = %+v, want none", transcript.Segments)
	}

	var finished, failed int
	for _, ev := range bus.Since(0) {
		switch ev.Type {
		case progress.EventTypeFinished:
			finished++
		case progress.EventTypeFailed:
			failed++
		}
	}
	if finished != 1 || failed != 0 {
		t.Errorf("finished=%d failed=%d, want one finished and no failed", finished, failed)
	}
}

// cancellingSink cancels the job token from inside the output write,
// racing the cancel against the terminal event.
type cancellingSink struct {
	job *Job
}

func (s *cancellingSink) Name() string { return "cancelling" }

func (s *cancellingSink) Write([]byte) error {
	s.job.Cancel()
	return nil
}

func TestRunnerCancelDuringOutputWriteEndsAborted(t *testing.T) {
	bus := progress.NewBus(100)
	eng := &fakeEngine{segments: []domain.Segment{{Text: "hi"}}}

	job := NewJob(domain.JobKindInteractive, engine.Input{Path: "talk.wav"}, baseOptions())
	job.Options.Outputs = []export.Request{
		{Format: export.FormatText, Sink: &cancellingSink{job: job}},
	}

	runner := NewRunner(newTestModels(), eng, nil, nil, bus)
	_, err := runner.Run(context.Background(), job)
	if !domain.IsCancelled(err) {
		t.Fatalf("expected cancelled failure, got %v", err)
	}

	var aborted, finished int
	for _, ev := range bus.Since(0) {
		switch ev.Type {
		case progress.EventTypeAborted:
			aborted++
		case progress.EventTypeFinished:
			finished++
		}
	}
	if aborted != 1 || finished != 0 {
		t.Errorf("aborted=%d finished=%d, want exactly one aborted and no finished", aborted, finished)
	}
}

func TestRunnerRequiresModelPath(t *testing.T) {
	bus := progress.NewBus(100)
	runner := NewRunner(newTestModels(), &fakeEngine{}, nil, nil, bus)
	job := NewJob(domain.JobKindInteractive, engine.Input{Path: "talk.wav"}, Options{})

	_, err := runner.Run(context.Background(), job)
	if domain.KindOf(err) != domain.FailureModelUnavailable {
		t.Errorf("failure kind = %s, want model_unavailable", domain.KindOf(err))
	}
}

type failingDiarizer struct{}

func (failingDiarizer) Assign(_ context.Context, _ string, _ []domain.Segment, _ domain.DiarizeOptions) ([]domain.Segment, error) {
	return nil, domain.NewJobError(domain.FailureDiarization, domain.JobStatusDiarizing, "model missing", nil)
}

func TestRunnerDiarizationFailureIsNonFatal(t *testing.T) {
	bus := progress.NewBus(100)
	eng := &fakeEngine{segments: []domain.Segment{{Text: "hi"}}}

	opts := baseOptions()
	opts.Diarize = domain.DiarizeOptions{Enabled: true}

	runner := NewRunner(newTestModels(), eng, failingDiarizer{}, nil, bus)
	job := NewJob(domain.JobKindInteractive, engine.Input{Path: "talk.wav"}, opts)

	transcript, err := runner.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if transcript.Segments[0].Speaker != "" {
		t.Errorf("speaker = %q, want unlabeled after diarization failure", transcript.Segments[0].Speaker)
	}

	var notices int
	for _, ev := range bus.Since(0) {
		if ev.Type == progress.EventTypeNotice {
			notices++
		}
	}
	if notices == 0 {
		t.Error("expected a notice event for the diarization failure")
	}
}

func TestRunnerDiarizationLabelsSegments(t *testing.T) {
	bus := progress.NewBus(100)
	eng := &fakeEngine{segments: []domain.Segment{{Start: 0, Stop: 1, Text: "a"}, {Start: 1, Stop: 2, Text: "b"}}}

	opts := baseOptions()
	opts.Diarize = domain.DiarizeOptions{Enabled: true}

	runner := NewRunner(newTestModels(), eng, diarize.NewMock(), nil, bus)
	job := NewJob(domain.JobKindInteractive, engine.Input{Path: "talk.wav"}, opts)

	transcript, err := runner.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if transcript.Segments[0].Speaker != "1" || transcript.Segments[1].Speaker != "2" {
		t.Errorf("speakers = %q,%q", transcript.Segments[0].Speaker, transcript.Segments[1].Speaker)
	}
}

type stubLLM struct {
	answer string
	err    error
}

func (s stubLLM) Ask(_ context.Context, _ string) (string, error) {
	return s.answer, s.err
}

func TestRunnerSummarization(t *testing.T) {
	bus := progress.NewBus(100)
	eng := &fakeEngine{segments: []domain.Segment{{Text: "hello world"}}}

	opts := baseOptions()
	opts.Summarize = domain.SummarizeOptions{Enabled: true}

	runner := NewRunner(newTestModels(), eng, nil, stubLLM{answer: "a summary"}, bus)
	job := NewJob(domain.JobKindInteractive, engine.Input{Path: "talk.wav"}, opts)

	transcript, err := runner.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if transcript.Summary != "a summary" {
		t.Errorf("summary = %q", transcript.Summary)
	}
}

func TestRunnerInvalidPromptIsNonFatal(t *testing.T) {
	bus := progress.NewBus(100)
	eng := &fakeEngine{segments: []domain.Segment{{Text: "hello"}}}

	opts := baseOptions()
	opts.Summarize = domain.SummarizeOptions{Enabled: true, Prompt: "no marker"}

	runner := NewRunner(newTestModels(), eng, nil, stubLLM{answer: "unused"}, bus)
	job := NewJob(domain.JobKindInteractive, engine.Input{Path: "talk.wav"}, opts)

	transcript, err := runner.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if transcript.Summary != "" {
		t.Errorf("summary = %q, want empty after prompt validation failure", transcript.Summary)
	}

	var noticed bool
	for _, ev := range bus.Since(0) {
		if ev.Type == progress.EventTypeNotice {
			noticed = true
		}
	}
	if !noticed {
		t.Error("expected a notice for the invalid prompt")
	}
}

func TestRunnerAllSinksFailingFailsJob(t *testing.T) {
	bus := progress.NewBus(100)
	eng := &fakeEngine{segments: []domain.Segment{{Text: "hi"}}}

	opts := baseOptions()
	opts.Outputs = []export.Request{
		{Format: export.FormatText, Sink: &memorySink{err: errors.New("disk full")}},
		{Format: export.FormatSRT, Sink: &memorySink{err: errors.New("disk full")}},
	}

	runner := NewRunner(newTestModels(), eng, nil, nil, bus)
	job := NewJob(domain.JobKindInteractive, engine.Input{Path: "talk.wav"}, opts)

	_, err := runner.Run(context.Background(), job)
	if domain.KindOf(err) != domain.FailureSink {
		t.Errorf("failure kind = %s, want sink_error", domain.KindOf(err))
	}
}

func TestRunnerPartialSinkFailureIsNonFatal(t *testing.T) {
	bus := progress.NewBus(100)
	eng := &fakeEngine{segments: []domain.Segment{{Text: "hi"}}}

	working := &memorySink{}
	opts := baseOptions()
	opts.Outputs = []export.Request{
		{Format: export.FormatText, Sink: &memorySink{err: errors.New("denied")}},
		{Format: export.FormatText, Sink: working},
	}

	runner := NewRunner(newTestModels(), eng, nil, nil, bus)
	job := NewJob(domain.JobKindInteractive, engine.Input{Path: "talk.wav"}, opts)

	if _, err := runner.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if working.data == nil {
		t.Error("working sink received nothing")
	}
}

func TestRunnerProgressObservedMonotonic(t *testing.T) {
	bus := progress.NewBus(100)
	eng := &fakeEngine{
		segments: []domain.Segment{{Text: "hi"}},
		progress: []int{10, 40, 30, 75, 60, 100},
	}

	runner := NewRunner(newTestModels(), eng, nil, nil, bus)
	job := NewJob(domain.JobKindInteractive, engine.Input{Path: "talk.wav"}, baseOptions())

	if _, err := runner.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}

	last := -1
	for _, ev := range bus.Since(0) {
		if ev.Type != progress.EventTypeProgress {
			continue
		}
		if ev.Percent < last {
			t.Errorf("progress regressed: %d after %d", ev.Percent, last)
		}
		last = ev.Percent
	}
	if last != 100 {
		t.Errorf("final observed progress = %d, want 100", last)
	}
}

func TestTokenCancelIdempotent(t *testing.T) {
	token := NewToken()
	if token.Cancelled() {
		t.Fatal("fresh token reports cancelled")
	}

	token.Cancel()
	token.Cancel()
	if !token.Cancelled() {
		t.Fatal("token not cancelled after Cancel")
	}

	select {
	case <-token.Done():
	default:
		t.Error("Done channel not closed")
	}
}

func TestTokenContextBridging(t *testing.T) {
	token := NewToken()
	ctx, cancel := token.Context(context.Background())
	defer cancel()

	token.Cancel()
	<-ctx.Done()
	if !errors.Is(ctx.Err(), context.Canceled) {
		t.Errorf("ctx.Err() = %v", ctx.Err())
	}
}

func TestStateMachineRejectsRegression(t *testing.T) {
	if isValidTransition(domain.JobStatusTranscribing, domain.JobStatusAcquiringModel) {
		t.Error("regression to acquiring_model allowed")
	}
	if isValidTransition(domain.JobStatusDone, domain.JobStatusTranscribing) {
		t.Error("transition out of terminal state allowed")
	}
	if !isValidTransition(domain.JobStatusTranscribing, domain.JobStatusAborting) {
		t.Error("aborting from transcribing rejected")
	}
	if !isValidTransition(domain.JobStatusAborting, domain.JobStatusAborted) {
		t.Error("aborting -> aborted rejected")
	}
}
