package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"speech-desk/internal/domain"
)

const modelRepoURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

// presetRow is one line of the built-in model table. The ggml file name
// and download URL derive from the id, so the table stays compact.
type presetRow struct {
	id    string
	label string
	size  string
	note  string
}

var presetRows = []presetRow{
	{"tiny.en", "Tiny (English)", "~75 MB", "Fastest, English only."},
	{"tiny", "Tiny (Multilingual)", "~75 MB", "Fastest multilingual model."},
	{"base.en", "Base (English)", "~142 MB", "Balanced speed and quality, English only."},
	{"base", "Base (Multilingual)", "~142 MB", "Balanced speed and quality."},
	{"small.en", "Small (English)", "~466 MB", "Higher quality, English only."},
	{"small", "Small (Multilingual)", "~466 MB", "Higher quality multilingual model."},
	{"medium.en", "Medium (English)", "~1.5 GB", "High quality, English only."},
	{"medium", "Medium (Multilingual)", "~1.5 GB", "High quality multilingual model."},
	{"large-v2", "Large v2", "~2.9 GB", "Very high quality."},
	{"large-v3", "Large v3", "~2.9 GB", "Latest large model."},
	{"large-v3-turbo", "Large v3 Turbo", "~1.6 GB", "Faster large-v3 variant."},
}

func (r presetRow) preset() domain.ModelPreset {
	file := "ggml-" + r.id + ".bin"
	return domain.ModelPreset{
		ID:    r.id,
		Label: r.label,
		File:  file,
		URL:   modelRepoURL + file,
		Size:  r.size,
		Note:  r.note,
	}
}

// ListModelPresets returns the built-in model table with local
// availability marked against the known model directories.
func (a *App) ListModelPresets() []domain.ModelPreset {
	presets := make([]domain.ModelPreset, 0, len(presetRows))
	for _, row := range presetRows {
		presets = append(presets, row.preset())
	}

	settings, err := a.Store.Load()
	markLocalPresets(presets, presetSearchDirs(normalizeSettings(settings), err == nil))
	return presets
}

// DownloadModelPreset fetches the chosen preset into the model directory
// and points the settings at the downloaded file.
func (a *App) DownloadModelPreset(presetID string) (domain.Settings, error) {
	preset, found := presetByID(strings.TrimSpace(presetID))
	if !found {
		return domain.Settings{}, fmt.Errorf("unknown model preset: %s", presetID)
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	dir, err := presetTargetDir(settings.ModelPath)
	if err != nil {
		return domain.Settings{}, err
	}

	target := filepath.Join(dir, preset.File)
	if err := downloadURLToFile(target, preset.URL, modelDownloadTimeout); err != nil {
		return domain.Settings{}, fmt.Errorf("download %s: %w", preset.Label, err)
	}

	settings.ModelPath = target
	if err := a.Store.Save(settings); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.refreshDiagnosticsFromSettings(settings)
	return settings, nil
}

func presetByID(id string) (domain.ModelPreset, bool) {
	for _, row := range presetRows {
		if row.id == id {
			return row.preset(), true
		}
	}
	return domain.ModelPreset{}, false
}

func isModelFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bin", ".gguf":
		return true
	}
	return false
}

// presetTargetDir decides where a download lands, from the configured
// model path: a directory is used as is, a model file means its parent,
// and an empty path falls back to the app's local model directory.
func presetTargetDir(modelPath string) (string, error) {
	path := strings.TrimSpace(modelPath)
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve user home: %w", err)
		}
		return localModelsDir(homeDir), nil
	}

	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		return path, nil
	case err == nil && isModelFile(path):
		return filepath.Dir(path), nil
	case err == nil:
		return "", fmt.Errorf("model path points to a non-model file: %s", path)
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("check model path: %w", err)
	}

	// The configured path does not exist yet; treat a model-file name
	// as its future parent and anything else as a directory.
	if isModelFile(path) {
		return filepath.Dir(path), nil
	}
	return path, nil
}

// presetSearchDirs collects the directories a downloaded model may live
// in: the app's local model directory plus whatever the settings point at.
func presetSearchDirs(settings domain.Settings, hasSettings bool) []string {
	seen := map[string]struct{}{}
	add := func(path string) {
		path = strings.TrimSpace(path)
		if path == "" {
			return
		}
		if clean := filepath.Clean(path); clean != "." {
			seen[clean] = struct{}{}
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		add(localModelsDir(homeDir))
	}

	if hasSettings && settings.ModelPath != "" {
		if dir, err := presetTargetDir(settings.ModelPath); err == nil {
			add(dir)
		}
	}

	dirs := make([]string, 0, len(seen))
	for dir := range seen {
		dirs = append(dirs, dir)
	}
	return dirs
}

func markLocalPresets(presets []domain.ModelPreset, dirs []string) {
	for i := range presets {
		for _, dir := range dirs {
			candidate := filepath.Join(dir, presets[i].File)
			if info, err := os.Stat(candidate); err != nil || info.IsDir() {
				continue
			}
			presets[i].Downloaded = true
			presets[i].LocalPath = candidate
			break
		}
	}
}
