package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PromptTemplate is one named summarization preset. The prompt must
// contain exactly one %s marker that the transcript text replaces.
type PromptTemplate struct {
	Name   string `yaml:"name"`
	Prompt string `yaml:"prompt"`
}

// DefaultTemplates are the built-in summarization presets.
func DefaultTemplates() []PromptTemplate {
	return []PromptTemplate{
		{
			Name: "summary",
			Prompt: "Output only the requested content. No introductions, explanations, or commentary.\n\n" +
				"Write a concise summary of this transcript using markdown. Include:\n" +
				"- A short overview paragraph\n" +
				"- 3-5 key takeaways as bullet points\n" +
				"- Action items as a checklist if there are any\n\n" +
				"\"\"\"\n%s\n\"\"\"",
		},
		{
			Name:   "meeting-notes",
			Prompt: "Turn the following meeting transcript into structured notes with decisions and action items:\n\n\"\"\"\n%s\n\"\"\"",
		},
		{
			Name:   "plain",
			Prompt: "Please summarize the following transcription:\n\n\"\"\"\n%s\n\"\"\"",
		},
	}
}

// LoadTemplates reads a YAML catalog of prompt templates. A missing
// file yields the built-in presets.
func LoadTemplates(path string) ([]PromptTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultTemplates(), nil
		}
		return nil, fmt.Errorf("reading template catalog: %w", err)
	}

	var templates []PromptTemplate
	if err := yaml.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("parsing template catalog: %w", err)
	}
	if len(templates) == 0 {
		return DefaultTemplates(), nil
	}
	return templates, nil
}
