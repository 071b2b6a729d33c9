package diarize

import (
	"context"

	"speech-desk/internal/domain"
)

type mockDiarizer struct{}

// NewMock returns a diarizer that alternates between two speakers,
// useful for development without a segmentation model.
func NewMock() Diarizer {
	return &mockDiarizer{}
}

func (m *mockDiarizer) Assign(_ context.Context, _ string, segments []domain.Segment, opts domain.DiarizeOptions) ([]domain.Segment, error) {
	speakers := 2
	if opts.MaxSpeakers == 1 {
		speakers = 1
	}

	out := make([]domain.Segment, len(segments))
	for i, seg := range segments {
		out[i] = seg
		if i%speakers == 0 {
			out[i].Speaker = "1"
		} else {
			out[i].Speaker = "2"
		}
	}
	return out, nil
}
