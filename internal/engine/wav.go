package engine

import (
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// LoadWAV decodes a PCM WAV file into float32 samples for the engine.
// Inputs are expected to be 16 kHz mono, the format the recognition models
// are trained on; other rates decode but degrade accuracy.
func LoadWAV(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio file %q: %w", path, err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("not a valid WAV file: %s", path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode WAV %q: %w", path, err)
	}

	return buf.AsFloat32Buffer().Data, nil
}
