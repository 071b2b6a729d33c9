package export

import (
	"fmt"
	"time"

	"github.com/go-vgo/robotgo"
)

// ClipboardSink places rendered text on the system clipboard.
type ClipboardSink struct{}

// Name identifies the sink in error reports.
func (ClipboardSink) Name() string {
	return "clipboard"
}

// Write copies the text to the clipboard.
func (ClipboardSink) Write(data []byte) error {
	if err := robotgo.WriteAll(string(data)); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	return nil
}

// TypistSink injects rendered text into the focused application via
// synthetic keystrokes.
type TypistSink struct{}

// Name identifies the sink in error reports.
func (TypistSink) Name() string {
	return "typist"
}

// Write types the text. The short delay lets the user's key release
// propagate before synthetic input starts.
func (TypistSink) Write(data []byte) error {
	time.Sleep(100 * time.Millisecond)
	robotgo.TypeStr(string(data))
	return nil
}
