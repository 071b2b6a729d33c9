package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"speech-desk/internal/audio"
	"speech-desk/internal/config"
	"speech-desk/internal/diagnostics"
	"speech-desk/internal/diarize"
	"speech-desk/internal/domain"
	"speech-desk/internal/engine"
	"speech-desk/internal/export"
	"speech-desk/internal/hotkey"
	"speech-desk/internal/jobs"
	"speech-desk/internal/llm"
	"speech-desk/internal/model"
	"speech-desk/internal/progress"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// ErrJobRunning is returned when an interactive job is requested while
// another one is still active.
var ErrJobRunning = errors.New("a transcription job is already running")

// ErrNoRunningJob is returned by cancel calls with nothing to cancel.
var ErrNoRunningJob = errors.New("no transcription job is running")

var mediaDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Media files",
		Pattern:     "*.mp4;*.mov;*.mkv;*.avi;*.mp3;*.wav;*.m4a;*.flac;*.aac;*.ogg;*.webm",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

var modelDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Whisper models",
		Pattern:     "*.bin;*.gguf",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// App wires configuration, the model manager, job runners and the UI
// runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Diagnostics domain.DiagnosticReport

	assets  fs.FS
	checker *diagnostics.Checker
	bus     *progress.Bus
	models  *model.Manager
	engine  engine.Transcriber

	mu         sync.Mutex
	activeJob  *jobs.Job
	batch      *jobs.BatchRunner
	runtimeCtx context.Context
	busSub     *progress.Subscription

	dictation *hotkey.Controller
	listener  chordListener
	recorder  *audio.Recorder
}

// chordListener is the key-chord event source behind the dictation flow.
type chordListener interface {
	Start()
	Stop()
	Events() <-chan hotkey.Event
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}

	store := config.NewJSONStore(filepath.Join(homeDir, ".speech-desk", "settings.json"))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	checker := diagnostics.NewChecker()
	report := checker.Run(settings)

	app := &App{
		Settings:    settings,
		Store:       store,
		Diagnostics: report,
		assets:      assets,
		checker:     checker,
		bus:         progress.NewBus(1000),
		models:      model.NewManager(engine.WhisperLoader{}),
		engine:      engine.Whisper{},
	}

	if settings.Hotkey.Enabled {
		if err := app.setupDictation(settings); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// setupDictation prepares the microphone recorder and the hold-to-dictate
// controller. Dictation runs transcription only, never diarization or
// summarization, and routes output to the clipboard or the typist.
func (a *App) setupDictation(settings domain.Settings) error {
	recorder, err := audio.NewRecorder()
	if err != nil {
		return fmt.Errorf("initialize audio capture: %w", err)
	}

	runner := jobs.NewRunner(a.models, a.engine, nil, nil, a.bus)
	a.recorder = recorder
	a.dictation = hotkey.NewController(recorder, runner, func() hotkey.Config {
		current := a.currentSettings()
		return hotkey.Config{
			Options: jobs.Options{
				ModelPath:  current.ModelPath,
				Device:     current.GPUDevice,
				Transcribe: current.Transcribe,
			},
			Output: current.Hotkey.Output,
		}
	})
	a.listener = hotkey.NewListener(settings.Hotkey.Keys)
	return nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Speech Desk",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores the Wails runtime context, begins forwarding job events
// to the frontend, and starts the global hotkey listener when enabled.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = ctx
	a.busSub = a.bus.Subscribe("")
	sub := a.busSub
	a.mu.Unlock()

	go func() {
		for event := range sub.Events() {
			wailsruntime.EventsEmit(ctx, "job:event", event)
		}
	}()

	if a.listener != nil {
		// Start blocks until Stop, so it gets its own goroutine.
		go a.listener.Start()
		go a.consumeHotkeys()
	}
}

// Shutdown tears down the event forwarder and hotkey listener.
func (a *App) Shutdown(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = nil
	sub := a.busSub
	a.busSub = nil
	a.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	if a.listener != nil {
		a.listener.Stop()
	}
	if a.dictation != nil {
		a.dictation.Wait()
	}
	if a.recorder != nil {
		_ = a.recorder.Close()
	}
}

// consumeHotkeys translates key events into dictation press/release cycles.
func (a *App) consumeHotkeys() {
	for event := range a.listener.Events() {
		switch event.Type {
		case hotkey.EventPressed:
			a.dictation.KeyDown()
		case hotkey.EventReleased:
			a.dictation.KeyUp(context.Background())
		}
	}
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// RefreshDiagnostics reloads settings and reruns startup checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.Diagnostics = a.checker.Run(settings)
	report := a.Diagnostics
	a.mu.Unlock()
	return report, nil
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = normalized
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(normalized)
	}
	a.mu.Unlock()

	return normalized, nil
}

// GetPromptTemplates returns the summarization prompt catalog.
func (a *App) GetPromptTemplates() ([]config.PromptTemplate, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	return config.LoadTemplates(filepath.Join(homeDir, ".speech-desk", "templates.yaml"))
}

// PickInputFile opens a native file dialog for media selection.
func (a *App) PickInputFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select media file",
		Filters: mediaDialogFilter,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// PickInputFiles opens a native multi-select dialog for batch queues.
func (a *App) PickInputFiles() ([]domain.NamedInput, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return nil, err
	}

	paths, err := wailsruntime.OpenMultipleFilesDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select media files",
		Filters: mediaDialogFilter,
	})
	if err != nil {
		return nil, err
	}

	inputs := make([]domain.NamedInput, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		inputs = append(inputs, domain.NamedInput{Name: filepath.Base(p), Path: p})
	}
	return inputs, nil
}

// PickModelFile opens a native file dialog for whisper model selection.
func (a *App) PickModelFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select whisper model",
		Filters: modelDialogFilter,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// PickModelDirectory opens a native directory picker for model folders.
func (a *App) PickModelDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select model directory",
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// PickOutputDirectory opens a native directory picker for transcript exports.
func (a *App) PickOutputDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select output directory",
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// OpenOutputFolder opens the given path (or configured output dir) in file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		a.mu.Lock()
		target = a.Settings.OutputDir
		a.mu.Unlock()
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// StartTranscription creates an interactive job for one media file and
// runs it asynchronously. Only one interactive job runs at a time.
func (a *App) StartTranscription(inputPath string) (domain.Job, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Job{}, fmt.Errorf("load settings: %w", err)
	}

	opts, err := jobOptionsFromSettings(settings, inputPath)
	if err != nil {
		return domain.Job{}, err
	}

	job := jobs.NewJob(domain.JobKindInteractive, engine.Input{Path: inputPath}, opts)

	a.mu.Lock()
	if a.activeJob != nil {
		a.mu.Unlock()
		return domain.Job{}, ErrJobRunning
	}
	a.activeJob = job
	a.Settings = settings
	a.mu.Unlock()

	runner := a.newRunner(settings)
	go func() {
		_, _ = runner.Run(context.Background(), job)
		a.clearActiveJob(job)
	}()

	return job.Snapshot(domain.JobStatusCreated), nil
}

// CancelTranscription requests cancellation of the active interactive job.
func (a *App) CancelTranscription() error {
	a.mu.Lock()
	job := a.activeJob
	a.mu.Unlock()

	if job == nil {
		return ErrNoRunningJob
	}
	job.Cancel()
	return nil
}

// CurrentJobID returns the id of the active interactive job, if any.
func (a *App) CurrentJobID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeJob == nil {
		return ""
	}
	return a.activeJob.ID
}

// StartBatch queues the given inputs and processes them sequentially in
// the background. One batch runs at a time.
func (a *App) StartBatch(inputs []domain.NamedInput) error {
	if len(inputs) == 0 {
		return fmt.Errorf("batch inputs are empty")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	formats, err := parseFormats(settings.Formats)
	if err != nil {
		return err
	}

	opts, err := jobOptionsFromSettings(settings, "")
	if err != nil {
		return err
	}
	opts.Outputs = nil

	a.mu.Lock()
	if a.batch != nil && a.batch.Running() {
		a.mu.Unlock()
		return jobs.ErrBatchRunning
	}
	batch := jobs.NewBatchRunner(a.newRunner(settings), a.models, a.bus)
	a.batch = batch
	a.Settings = settings
	a.mu.Unlock()

	go func() {
		_ = batch.Run(context.Background(), inputs, jobs.BatchOptions{
			Job:       opts,
			Formats:   formats,
			OutputDir: settings.OutputDir,
		})
	}()
	return nil
}

// CancelBatch stops the running batch after the current item.
func (a *App) CancelBatch() error {
	a.mu.Lock()
	batch := a.batch
	a.mu.Unlock()

	if batch == nil || !batch.Running() {
		return ErrNoRunningJob
	}
	batch.Cancel()
	return nil
}

// BatchItems returns a snapshot of the current or last batch queue.
func (a *App) BatchItems() []jobs.BatchItem {
	a.mu.Lock()
	batch := a.batch
	a.mu.Unlock()

	if batch == nil {
		return nil
	}
	return batch.Items()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []progress.Event {
	return a.bus.Since(sinceSeq)
}

// newRunner assembles a job runner from the given settings snapshot.
// Diarization and summarization stages get backends only when the
// corresponding feature is configured.
func (a *App) newRunner(settings domain.Settings) *jobs.Runner {
	var diarizer diarize.Diarizer
	if strings.TrimSpace(settings.DiarizeBinary) != "" {
		diarizer = diarize.NewExec(settings.DiarizeBinary)
	}

	var llmClient llm.Client
	if settings.Summarize.Enabled {
		if client, err := llm.New(settings.LLM); err == nil {
			llmClient = client
		}
	}

	return jobs.NewRunner(a.models, a.engine, diarizer, llmClient, a.bus)
}

// clearActiveJob releases the interactive slot once the given job ended.
func (a *App) clearActiveJob(job *jobs.Job) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeJob == job {
		a.activeJob = nil
	}
}

// currentSettings returns the in-memory settings snapshot.
func (a *App) currentSettings() domain.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Settings
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// jobOptionsFromSettings maps persisted settings onto per-job options.
// With a non-empty inputPath the configured formats become file sinks
// placed via the output directory rules.
func jobOptionsFromSettings(settings domain.Settings, inputPath string) (jobs.Options, error) {
	opts := jobs.Options{
		ModelPath:  settings.ModelPath,
		Device:     settings.GPUDevice,
		Transcribe: settings.Transcribe,
		Diarize:    settings.Diarize,
		Summarize:  settings.Summarize,
		Render: export.RenderOptions{
			SpeakerPrefix: settings.SpeakerPrefix,
			RightToLeft:   settings.RightToLeft,
		},
	}

	if inputPath == "" {
		return opts, nil
	}

	base := filepath.Base(inputPath)
	opts.Render.Title = strings.TrimSuffix(base, filepath.Ext(base))

	formats, err := parseFormats(settings.Formats)
	if err != nil {
		return jobs.Options{}, err
	}
	for _, format := range formats {
		opts.Outputs = append(opts.Outputs, export.Request{
			Format: format,
			Sink:   export.FileSink{Path: export.DestinationPath(inputPath, settings.OutputDir, format)},
		})
	}
	return opts, nil
}

// parseFormats validates the configured format names, defaulting to SRT.
func parseFormats(names []string) ([]export.Format, error) {
	if len(names) == 0 {
		return []export.Format{export.FormatSRT}, nil
	}

	formats := make([]export.Format, 0, len(names))
	for _, name := range names {
		format, err := export.ParseFormat(name)
		if err != nil {
			return nil, err
		}
		formats = append(formats, format)
	}
	return formats, nil
}

// refreshDiagnosticsFromSettings reruns checks against a settings snapshot.
func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(settings)
	}
	return a.Diagnostics
}

// normalizeSettings trims user inputs and applies defaults for the
// fields downstream code treats as required.
func normalizeSettings(settings domain.Settings) domain.Settings {
	settings.ModelPath = strings.TrimSpace(settings.ModelPath)
	settings.OutputDir = strings.TrimSpace(settings.OutputDir)
	settings.DiarizeBinary = strings.TrimSpace(settings.DiarizeBinary)
	settings.Transcribe.Language = strings.TrimSpace(settings.Transcribe.Language)
	if settings.Transcribe.Language == "" {
		settings.Transcribe.Language = "auto"
	}
	if settings.LLM.Platform == "" {
		settings.LLM.Platform = "ollama"
	}
	if settings.Hotkey.Output == "" {
		settings.Hotkey.Output = "clipboard"
	}
	if len(settings.Formats) == 0 {
		settings.Formats = []string{"srt"}
	}
	return settings
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
