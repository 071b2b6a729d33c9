// Package export converts finished transcripts into their serialized output
// formats and delivers them to sinks. The SRT and VTT layouts are consumed by
// external players and editors and must not drift.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"speech-desk/internal/domain"
)

// Format identifies one supported serialization format.
type Format string

const (
	FormatText Format = "text"
	FormatSRT  Format = "srt"
	FormatVTT  Format = "vtt"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
	FormatRich Format = "rich"
)

var formatExtensions = map[Format]string{
	FormatText: ".txt",
	FormatSRT:  ".srt",
	FormatVTT:  ".vtt",
	FormatJSON: ".json",
	FormatCSV:  ".csv",
	FormatHTML: ".html",
	FormatRich: ".doc",
}

// Extension returns the file extension for a format, including the dot.
func (f Format) Extension() string {
	if ext, ok := formatExtensions[f]; ok {
		return ext
	}
	return ".txt"
}

// ParseFormat maps a settings string to a Format.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(name))) {
	case FormatText, "normal", "":
		return FormatText, nil
	case FormatSRT:
		return FormatSRT, nil
	case FormatVTT:
		return FormatVTT, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatHTML:
		return FormatHTML, nil
	case FormatRich, "doc", "docx":
		return FormatRich, nil
	default:
		return "", fmt.Errorf("unknown output format: %s", name)
	}
}

// RenderOptions carry presentation state shared by all formats.
type RenderOptions struct {
	Title         string
	SpeakerPrefix string // word placed before the speaker id, default "Speaker"
	RightToLeft   bool   // mirrors document layout for RTL text
}

func (o RenderOptions) prefix() string {
	if o.SpeakerPrefix == "" {
		return "Speaker"
	}
	return o.SpeakerPrefix
}

// Render serializes segments into the requested format.
func Render(segments []domain.Segment, format Format, opts RenderOptions) ([]byte, error) {
	switch format {
	case FormatText:
		return []byte(asText(segments, opts)), nil
	case FormatSRT:
		return []byte(asSRT(segments, opts)), nil
	case FormatVTT:
		return []byte(asVTT(segments, opts)), nil
	case FormatJSON:
		return asJSON(segments)
	case FormatCSV:
		return asCSV(segments)
	case FormatHTML:
		return asHTML(segments, opts)
	case FormatRich:
		return asRich(segments, opts)
	default:
		return nil, fmt.Errorf("unknown output format: %s", format)
	}
}

// speakerLine returns the "{prefix} {id}\n" line for labeled segments,
// empty otherwise.
func speakerLine(seg domain.Segment, opts RenderOptions) string {
	if seg.Speaker == "" {
		return ""
	}
	return fmt.Sprintf("%s %s\n", opts.prefix(), seg.Speaker)
}

// cueText trims the segment text and defuses the SRT/VTT cue arrow.
func cueText(seg domain.Segment) string {
	return strings.ReplaceAll(strings.TrimSpace(seg.Text), "-->", "->")
}

func asText(segments []domain.Segment, opts RenderOptions) string {
	var sb strings.Builder
	for _, seg := range segments {
		sb.WriteString(speakerLine(seg, opts))
		sb.WriteString(strings.TrimSpace(seg.Text))
		sb.WriteString("\n")
	}
	return sb.String()
}

func asSRT(segments []domain.Segment, opts RenderOptions) string {
	var sb strings.Builder
	for i, seg := range segments {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("%d\n", i+1))
		sb.WriteString(fmt.Sprintf("%s --> %s\n",
			FormatTimestamp(seg.Start, true, ","),
			FormatTimestamp(seg.Stop, true, ",")))
		sb.WriteString(speakerLine(seg, opts))
		sb.WriteString(cueText(seg))
		sb.WriteString("\n")
	}
	return sb.String()
}

func asVTT(segments []domain.Segment, opts RenderOptions) string {
	var sb strings.Builder
	sb.WriteString("WEBVTT\n")
	for _, seg := range segments {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s --> %s\n",
			FormatTimestamp(seg.Start, true, "."),
			FormatTimestamp(seg.Stop, true, ".")))
		sb.WriteString(speakerLine(seg, opts))
		sb.WriteString(cueText(seg))
		sb.WriteString("\n")
	}
	return sb.String()
}

func asJSON(segments []domain.Segment) ([]byte, error) {
	return json.MarshalIndent(segments, "", "  ")
}

func asCSV(segments []domain.Segment) ([]byte, error) {
	hasSpeakers := false
	for _, seg := range segments {
		if seg.Speaker != "" {
			hasSpeakers = true
			break
		}
	}

	var sb strings.Builder
	w := csv.NewWriter(&sb)

	header := []string{"start", "end", "text"}
	if hasSpeakers {
		header = []string{"start", "end", "speaker", "text"}
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, seg := range segments {
		start := FormatTimestamp(seg.Start, true, ".")
		end := FormatTimestamp(seg.Stop, true, ".")
		text := strings.TrimSpace(seg.Text)

		row := []string{start, end, text}
		if hasSpeakers {
			row = []string{start, end, seg.Speaker, text}
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	return []byte(sb.String()), w.Error()
}
