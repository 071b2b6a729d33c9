package domain

// JobKind distinguishes how a transcription job was initiated.
type JobKind string

const (
	JobKindInteractive     JobKind = "interactive"
	JobKindBatchItem       JobKind = "batch_item"
	JobKindHotkeyDictation JobKind = "hotkey_dictation"
)

// JobStatus tracks each pipeline stage for a single transcription job.
type JobStatus string

const (
	JobStatusCreated        JobStatus = "created"
	JobStatusAcquiringModel JobStatus = "acquiring_model"
	JobStatusTranscribing   JobStatus = "transcribing"
	JobStatusDiarizing      JobStatus = "diarizing"
	JobStatusSummarizing    JobStatus = "summarizing"
	JobStatusWritingOutput  JobStatus = "writing_output"
	JobStatusDone           JobStatus = "done"
	JobStatusAborting       JobStatus = "aborting"
	JobStatusAborted        JobStatus = "aborted"
	JobStatusFailed         JobStatus = "failed"
)

// Terminal reports whether a status ends the job lifecycle.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusDone, JobStatusAborted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// Segment is one timed span of transcribed text, optionally tagged with a speaker id.
type Segment struct {
	Start   float64 `json:"start"`
	Stop    float64 `json:"stop"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// Transcript is the final successful output of a job.
type Transcript struct {
	ProcessingTimeSec int64     `json:"processingTimeSec"`
	Segments          []Segment `json:"segments"`
	Summary           string    `json:"summary,omitempty"`
}

// NamedInput pairs a display name with a filesystem path for batch items.
type NamedInput struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// TranscribeOptions are the per-job decoding parameters passed to the engine.
type TranscribeOptions struct {
	Language       string  `json:"language,omitempty"`
	Translate      bool    `json:"translate,omitempty"`
	Temperature    float32 `json:"temperature,omitempty"`
	Threads        int     `json:"threads,omitempty"`
	InitPrompt     string  `json:"initPrompt,omitempty"`
	WordTimestamps bool    `json:"wordTimestamps,omitempty"`
	MaxSentenceLen int     `json:"maxSentenceLen,omitempty"`
}

// DiarizeOptions controls optional speaker assignment.
type DiarizeOptions struct {
	Enabled     bool    `json:"enabled"`
	Threshold   float64 `json:"threshold,omitempty"`
	MaxSpeakers int     `json:"maxSpeakers,omitempty"`
}

// SummarizeOptions controls optional LLM summarization. Prompt must contain
// exactly one %s marker that the transcript text replaces.
type SummarizeOptions struct {
	Enabled bool   `json:"enabled"`
	Prompt  string `json:"prompt,omitempty"`
}

// LLMSettings selects and configures the summarization backend.
type LLMSettings struct {
	Platform  string `json:"platform,omitempty"` // "claude", "ollama" or "openai"
	Model     string `json:"model,omitempty"`
	APIKey    string `json:"apiKey,omitempty"`
	BaseURL   string `json:"baseUrl,omitempty"`
	MaxTokens int    `json:"maxTokens,omitempty"`
}

// HotkeySettings configures the global dictation key chord.
type HotkeySettings struct {
	Enabled bool     `json:"enabled"`
	Keys    []string `json:"keys,omitempty"`
	Output  string   `json:"output,omitempty"` // "clipboard" or "type"
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	ModelPath     string            `json:"modelPath"`
	GPUDevice     int               `json:"gpuDevice"`
	OutputDir     string            `json:"outputDir"`
	DiarizeBinary string            `json:"diarizeBinary,omitempty"`
	Formats       []string          `json:"formats,omitempty"`
	SpeakerPrefix string            `json:"speakerPrefix,omitempty"`
	RightToLeft   bool              `json:"rightToLeft,omitempty"`
	Transcribe    TranscribeOptions `json:"transcribe"`
	Diarize       DiarizeOptions    `json:"diarize"`
	Summarize     SummarizeOptions  `json:"summarize"`
	LLM           LLMSettings       `json:"llm"`
	Hotkey        HotkeySettings    `json:"hotkey"`
}

// Job is a UI-facing snapshot of one job's identity and lifecycle status.
type Job struct {
	ID     string    `json:"id"`
	Kind   JobKind   `json:"kind"`
	Status JobStatus `json:"status"`
}
