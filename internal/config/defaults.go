package config

import (
	"os"
	"path/filepath"

	"speech-desk/internal/domain"
	"speech-desk/internal/model"
)

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		ModelPath:     filepath.Join(homeDir, ".speech-desk", "models", "ggml-medium.bin"),
		GPUDevice:     model.DefaultDevice,
		OutputDir:     filepath.Join(homeDir, "Documents", "Transcripts"),
		Formats:       []string{"srt"},
		SpeakerPrefix: "Speaker",
		Transcribe: domain.TranscribeOptions{
			Language: "auto",
		},
		Diarize: domain.DiarizeOptions{
			Threshold:   0.5,
			MaxSpeakers: 5,
		},
		LLM: domain.LLMSettings{
			Platform: "ollama",
		},
		Hotkey: domain.HotkeySettings{
			Keys:   []string{"ctrl", "shift", "d"},
			Output: "clipboard",
		},
	}
}
