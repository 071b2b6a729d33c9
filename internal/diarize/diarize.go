// Package diarize assigns speaker identities to transcript segments.
package diarize

import (
	"context"
	"strconv"

	"speech-desk/internal/domain"
)

// Diarizer annotates segments with speaker ids. Implementations must
// return ids as "1", "2", ... numbered in order of first appearance.
type Diarizer interface {
	Assign(ctx context.Context, audioPath string, segments []domain.Segment, opts domain.DiarizeOptions) ([]domain.Segment, error)
}

// turn is one speaker-homogeneous span of the recording.
type turn struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker int     `json:"speaker"`
}

// assignSpeakers labels each segment with the turn it overlaps most.
// Raw speaker indexes are renumbered from 1 in order of first
// appearance so labels are stable regardless of backend numbering.
// Segments overlapping no turn keep an empty speaker.
func assignSpeakers(segments []domain.Segment, turns []turn) []domain.Segment {
	labels := make(map[int]string)
	next := 1

	out := make([]domain.Segment, len(segments))
	for i, seg := range segments {
		out[i] = seg

		best := -1
		bestOverlap := 0.0
		for _, t := range turns {
			o := overlap(seg.Start, seg.Stop, t.Start, t.End)
			if o > bestOverlap {
				bestOverlap = o
				best = t.Speaker
			}
		}
		if best < 0 {
			continue
		}

		label, ok := labels[best]
		if !ok {
			label = strconv.Itoa(next)
			labels[best] = label
			next++
		}
		out[i].Speaker = label
	}
	return out
}

func overlap(aStart, aStop, bStart, bStop float64) float64 {
	start := aStart
	if bStart > start {
		start = bStart
	}
	stop := aStop
	if bStop < stop {
		stop = bStop
	}
	if stop <= start {
		return 0
	}
	return stop - start
}
