package jobs

import "speech-desk/internal/domain"

// isValidTransition enforces the allowed job state machine edges. Jobs
// move monotonically forward through the pipeline; Aborting and Failed
// are reachable from any non-terminal state.
func isValidTransition(from, to domain.JobStatus) bool {
	if !from.Terminal() && (to == domain.JobStatusAborting || to == domain.JobStatusFailed) {
		return true
	}

	switch from {
	case domain.JobStatusCreated:
		return to == domain.JobStatusAcquiringModel
	case domain.JobStatusAcquiringModel:
		return to == domain.JobStatusTranscribing
	case domain.JobStatusTranscribing:
		return to == domain.JobStatusDiarizing || to == domain.JobStatusSummarizing ||
			to == domain.JobStatusWritingOutput || to == domain.JobStatusDone
	case domain.JobStatusDiarizing:
		return to == domain.JobStatusSummarizing || to == domain.JobStatusWritingOutput ||
			to == domain.JobStatusDone
	case domain.JobStatusSummarizing:
		return to == domain.JobStatusWritingOutput || to == domain.JobStatusDone
	case domain.JobStatusWritingOutput:
		return to == domain.JobStatusDone
	case domain.JobStatusAborting:
		return to == domain.JobStatusAborted
	default:
		return false
	}
}
