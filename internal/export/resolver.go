package export

import (
	"speech-desk/internal/domain"
)

// Request pairs a serialization format with the sink that receives it.
type Request struct {
	Format Format
	Sink   Sink
}

// Resolver renders transcripts and routes the output to sinks.
type Resolver struct {
	Options RenderOptions
}

// Write renders the segments in the given format and hands the bytes
// to the sink. Sink failures come back wrapped as *SinkError so the
// caller can tell a rendering problem from a delivery problem.
func (r Resolver) Write(segments []domain.Segment, format Format, sink Sink) error {
	data, err := Render(segments, format, r.Options)
	if err != nil {
		return err
	}
	if err := sink.Write(data); err != nil {
		return &SinkError{Sink: sink.Name(), Err: err}
	}
	return nil
}

// WriteAll processes every request and returns the errors that
// occurred, one entry per failed request. Failures do not stop the
// remaining requests.
func (r Resolver) WriteAll(segments []domain.Segment, requests []Request) []error {
	var errs []error
	for _, req := range requests {
		if err := r.Write(segments, req.Format, req.Sink); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
