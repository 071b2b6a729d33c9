package export

import (
	"bytes"
	"html/template"

	"speech-desk/internal/domain"
)

// documentSegment is the per-segment view model shared by the HTML and rich
// document templates.
type documentSegment struct {
	Duration string
	Speaker  string
	Text     string
}

type documentData struct {
	Title    string
	Dir      string
	Align    string
	Segments []documentSegment
}

var htmlTemplate = template.Must(template.New("html").Parse(`<!DOCTYPE html>
<html dir="{{.Dir}}">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body style="font-family: Roboto, Arial; max-width: 1000px; margin: auto; padding: 22px;">
<h1 style="text-align: center; color: #1565c0;">{{.Title}}</h1>
{{range .Segments}}<div class="segment" style="padding-top: 18px;">
<div class="timestamp" style="font-size: 12px; color: #bbbbbb;">{{.Duration}}</div>
{{if .Speaker}}<div class="speaker">{{.Speaker}}</div>
{{end}}<div>{{.Text}}</div>
</div>
{{end}}</body>
</html>
`))

// The rich document is plain HTML that word processors open natively; the
// layout mirrors to the right when the active text direction is RTL.
var richTemplate = template.Must(template.New("rich").Parse(`<html dir="{{.Dir}}">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<p align="center"><b>{{.Title}}</b></p>
{{range .Segments}}<p align="{{$.Align}}"><b>{{.Duration}}</b><br>
{{if .Speaker}}{{.Speaker}}<br>
{{end}}{{.Text}}</p>
{{end}}</body>
</html>
`))

func documentModel(segments []domain.Segment, opts RenderOptions) documentData {
	data := documentData{
		Title: opts.Title,
		Dir:   "ltr",
		Align: "left",
	}
	if opts.RightToLeft {
		data.Dir = "rtl"
		data.Align = "right"
	}
	if data.Title == "" {
		data.Title = "Transcript"
	}

	for _, seg := range segments {
		speaker := ""
		if seg.Speaker != "" {
			speaker = opts.prefix() + " " + seg.Speaker
		}
		data.Segments = append(data.Segments, documentSegment{
			Duration: FormatDuration(seg.Start, seg.Stop),
			Speaker:  speaker,
			Text:     seg.Text,
		})
	}
	return data
}

func asHTML(segments []domain.Segment, opts RenderOptions) ([]byte, error) {
	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, documentModel(segments, opts)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func asRich(segments []domain.Segment, opts RenderOptions) ([]byte, error) {
	var buf bytes.Buffer
	if err := richTemplate.Execute(&buf, documentModel(segments, opts)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
