// Package llm talks to chat-completion providers for transcript
// summarization. One small Client interface covers Claude, Ollama, and
// OpenAI-compatible endpoints.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"speech-desk/internal/domain"
)

// Client answers a single prompt with a single completion.
type Client interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

// New builds the client matching the configured platform.
func New(cfg domain.LLMSettings) (Client, error) {
	switch cfg.Platform {
	case "claude":
		return NewClaude(cfg), nil
	case "ollama":
		return NewOllama(cfg), nil
	case "openai":
		return NewOpenAI(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm platform: %s", cfg.Platform)
	}
}

// newHTTPClient is shared by all providers. Summaries of long transcripts
// can take minutes on local models.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 5 * time.Minute}
}
