// Package engine defines the boundary to the native speech recognition
// engine. The orchestration core treats it as an opaque service that accepts
// a loaded model handle plus per-job options and streams segment and progress
// events back through callbacks.
package engine

import (
	"context"

	"speech-desk/internal/domain"
	"speech-desk/internal/model"
)

// Input is either a filesystem path or raw captured audio samples
// (16 kHz mono float32, as produced by the dictation recorder).
type Input struct {
	Path    string
	Samples []float32
}

// Callbacks receive incremental engine events while a transcription runs.
// Either callback may be nil.
type Callbacks struct {
	OnProgress func(percent int)
	OnSegment  func(seg domain.Segment)
}

// Transcriber runs one transcription against a loaded model handle.
// Implementations observe ctx between internal steps; cancellation is
// cooperative and may stop with a bounded delay.
type Transcriber interface {
	Transcribe(ctx context.Context, handle model.Handle, input Input, opts domain.TranscribeOptions, cb Callbacks) (domain.Transcript, error)
}
