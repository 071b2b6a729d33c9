package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sink is one output destination for serialized transcript bytes.
type Sink interface {
	Name() string
	Write(data []byte) error
}

// SinkError marks a per-output-target failure. It is reported alongside the
// transcript rather than replacing it.
type SinkError struct {
	Sink string
	Err  error
}

// Error formats the sink failure.
func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s: %v", e.Sink, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SinkError) Unwrap() error {
	return e.Err
}

// FileSink writes output to a filesystem path, creating parent directories.
type FileSink struct {
	Path string
}

// Name identifies the sink in error reports.
func (s FileSink) Name() string {
	return "file:" + s.Path
}

// Write stores the rendered bytes on disk.
func (s FileSink) Write(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.Path, data, 0o644)
}

// UniquePath returns path unchanged when free, otherwise appends " (1)",
// " (2)", … before the extension until an unused name is found.
func UniquePath(path string) string {
	if _, err := os.Stat(path); err != nil {
		return path
	}

	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for counter := 1; ; counter++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, counter, ext)
		if _, err := os.Stat(candidate); err != nil {
			return candidate
		}
	}
}

// DestinationPath derives an output path next to the input file with the
// format's extension (e.g. talk.mp3 -> talk.srt), avoiding collisions.
// When outputDir is non-empty the file is placed there instead.
func DestinationPath(inputPath, outputDir string, format Format) string {
	base := filepath.Base(inputPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "" {
		name = "transcript"
	}

	dir := filepath.Dir(inputPath)
	if outputDir != "" {
		dir = outputDir
	}
	return UniquePath(filepath.Join(dir, name+format.Extension()))
}
