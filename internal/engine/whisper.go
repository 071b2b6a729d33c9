package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"speech-desk/internal/domain"
	"speech-desk/internal/model"
)

// whisperHandle wraps a loaded whisper.cpp model as a model.Handle.
type whisperHandle struct {
	model whisper.Model
}

// Close releases the whisper model resources.
func (h *whisperHandle) Close() error {
	if h.model != nil {
		return h.model.Close()
	}
	return nil
}

// WhisperLoader loads whisper.cpp models from disk.
type WhisperLoader struct{}

// Load opens the model file. The Go bindings always use the engine's default
// compute device, so any explicit GPU index is reported as unavailable and
// callers fall back to the default device.
func (WhisperLoader) Load(ctx context.Context, path string, device int) (model.Handle, error) {
	if path == "" {
		return nil, domain.NewJobError(domain.FailureModelUnavailable, domain.JobStatusAcquiringModel, "no model path configured", nil)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, domain.NewJobError(domain.FailureModelUnavailable, domain.JobStatusAcquiringModel,
			fmt.Sprintf("model file missing: %s", path), err)
	}
	if device != model.DefaultDevice {
		return nil, domain.NewJobError(domain.FailureDeviceUnavailable, domain.JobStatusAcquiringModel,
			fmt.Sprintf("compute device %d not available", device), nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m, err := whisper.New(path)
	if err != nil {
		return nil, domain.NewJobError(domain.FailureModelUnavailable, domain.JobStatusAcquiringModel,
			fmt.Sprintf("load whisper model %q", path), err)
	}
	return &whisperHandle{model: m}, nil
}

// Whisper runs transcriptions through the whisper.cpp Go bindings.
type Whisper struct{}

// Transcribe decodes the input, configures a whisper context from the job
// options, and streams segment/progress callbacks while processing. The
// encoder-begin callback polls ctx so cancellation takes effect between
// encoder passes, which is the engine's internal step boundary.
func (Whisper) Transcribe(ctx context.Context, handle model.Handle, input Input, opts domain.TranscribeOptions, cb Callbacks) (domain.Transcript, error) {
	h, ok := handle.(*whisperHandle)
	if !ok || h.model == nil {
		return domain.Transcript{}, domain.NewJobError(domain.FailureEngine, domain.JobStatusTranscribing, "handle is not a whisper model", nil)
	}

	samples := input.Samples
	if samples == nil {
		loaded, err := LoadWAV(input.Path)
		if err != nil {
			return domain.Transcript{}, domain.NewJobError(domain.FailureEngine, domain.JobStatusTranscribing, "read input audio", err)
		}
		samples = loaded
	}

	wctx, err := h.model.NewContext()
	if err != nil {
		return domain.Transcript{}, domain.NewJobError(domain.FailureEngine, domain.JobStatusTranscribing, "create whisper context", err)
	}
	if err := applyOptions(wctx, opts); err != nil {
		return domain.Transcript{}, domain.NewJobError(domain.FailureEngine, domain.JobStatusTranscribing, "apply engine options", err)
	}

	encoderBegin := func() bool {
		return ctx.Err() == nil
	}
	var onSegment whisper.SegmentCallback
	if cb.OnSegment != nil {
		onSegment = func(seg whisper.Segment) {
			cb.OnSegment(toSegment(seg))
		}
	}
	var onProgress whisper.ProgressCallback
	if cb.OnProgress != nil {
		onProgress = func(percent int) {
			cb.OnProgress(percent)
		}
	}

	start := time.Now()
	processErr := wctx.Process(samples, encoderBegin, onSegment, onProgress)

	if err := ctx.Err(); err != nil {
		return domain.Transcript{}, domain.NewJobError(domain.FailureCancelled, domain.JobStatusTranscribing, "transcription aborted", err)
	}
	if processErr != nil {
		return domain.Transcript{}, domain.NewJobError(domain.FailureEngine, domain.JobStatusTranscribing, "whisper processing failed", processErr)
	}

	// Silence legitimately yields zero segments; that is an empty
	// transcript, not an engine failure.
	var segments []domain.Segment
	for {
		seg, err := wctx.NextSegment()
		if err != nil {
			break
		}
		segments = append(segments, toSegment(seg))
	}

	return domain.Transcript{
		ProcessingTimeSec: int64(time.Since(start).Seconds()),
		Segments:          segments,
	}, nil
}

// applyOptions maps job options onto a whisper context.
func applyOptions(wctx whisper.Context, opts domain.TranscribeOptions) error {
	if opts.Language != "" && opts.Language != "auto" {
		if err := wctx.SetLanguage(opts.Language); err != nil {
			return err
		}
	}
	wctx.SetTranslate(opts.Translate)
	if opts.Threads > 0 {
		wctx.SetThreads(uint(opts.Threads))
	}
	if opts.Temperature > 0 {
		wctx.SetTemperature(opts.Temperature)
	}
	if opts.InitPrompt != "" {
		wctx.SetInitialPrompt(opts.InitPrompt)
	}
	if opts.WordTimestamps {
		wctx.SetTokenTimestamps(true)
		wctx.SetSplitOnWord(true)
		maxLen := opts.MaxSentenceLen
		if maxLen <= 0 {
			maxLen = 1
		}
		wctx.SetMaxSegmentLength(uint(maxLen))
	}
	return nil
}

// toSegment converts a whisper segment into the domain representation.
func toSegment(seg whisper.Segment) domain.Segment {
	return domain.Segment{
		Start: seg.Start.Seconds(),
		Stop:  seg.End.Seconds(),
		Text:  seg.Text,
	}
}
