package llm

import (
	"context"
	"strings"

	"speech-desk/internal/domain"
	"speech-desk/internal/export"
)

// PromptMarker is the placeholder in a summarization prompt that gets
// replaced with the transcript text.
const PromptMarker = "%s"

// DefaultPrompt is used when the settings carry no prompt of their own.
const DefaultPrompt = "Output only the requested content. No introductions, explanations, or commentary.\n\n" +
	"Write a concise summary of this transcript using markdown. Include:\n" +
	"- A short overview paragraph\n" +
	"- 3-5 key takeaways as bullet points\n" +
	"- Action items as a checklist if there are any\n\n" +
	"\"\"\"\n" + PromptMarker + "\n\"\"\""

// BuildPrompt substitutes the transcript into the prompt template. The
// template must contain the marker exactly once so the transcript lands
// in a predictable spot.
func BuildPrompt(template, transcript string) (string, error) {
	if template == "" {
		template = DefaultPrompt
	}
	if strings.Count(template, PromptMarker) != 1 {
		return "", domain.NewJobError(domain.FailurePromptInvalid, domain.JobStatusSummarizing,
			"summarization prompt must contain the "+PromptMarker+" marker exactly once", nil)
	}
	return strings.Replace(template, PromptMarker, transcript, 1), nil
}

// Summarizer runs the configured prompt over a finished transcript.
type Summarizer struct {
	Client Client
	Prompt string
	Render export.RenderOptions
}

// Summarize asks the model for a summary of the transcript. The text
// sent to the model is the plain-text rendering, so speaker labels are
// part of what the model sees. An empty transcript yields an empty
// summary without a model call.
func (s Summarizer) Summarize(ctx context.Context, segments []domain.Segment) (string, error) {
	var kept []domain.Segment
	for _, seg := range segments {
		if strings.TrimSpace(seg.Text) != "" {
			kept = append(kept, seg)
		}
	}
	if len(kept) == 0 {
		return "", nil
	}

	rendered, err := export.Render(kept, export.FormatText, s.Render)
	if err != nil {
		return "", err
	}

	prompt, err := BuildPrompt(s.Prompt, strings.TrimSpace(string(rendered)))
	if err != nil {
		return "", err
	}

	summary, err := s.Client.Ask(ctx, prompt)
	if err != nil {
		return "", domain.NewJobError(domain.FailureSummarization, domain.JobStatusSummarizing,
			"summarization failed", err)
	}
	return strings.TrimSpace(summary), nil
}
