package domain

// ModelPreset is one whisper.cpp model the app can fetch for the user.
// File and URL are derived from the preset id; Downloaded and LocalPath
// are filled in against the local model directories at listing time.
type ModelPreset struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	File       string `json:"file"`
	URL        string `json:"url"`
	Size       string `json:"size,omitempty"`
	Note       string `json:"note,omitempty"`
	Downloaded bool   `json:"downloaded"`
	LocalPath  string `json:"localPath,omitempty"`
}
