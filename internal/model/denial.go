package model

// DenialReason is the fixed, lowercase vocabulary of candidate-facing
// rejection codes. Client UIs branch on these values deterministically.
type DenialReason string

const (
	DenialExamNotFound   DenialReason = "exam_not_found"
	DenialExamNotActive  DenialReason = "exam_not_active"
	DenialExamNotStarted DenialReason = "exam_not_started"
	DenialExamEnded      DenialReason = "exam_ended"
	DenialNotEnrolled    DenialReason = "not_enrolled"
	DenialBatchNotActive DenialReason = "batch_not_active"
	DenialNotInAnyBatch  DenialReason = "not_in_any_batch"
	DenialBatchFull      DenialReason = "batch_full"
	DenialSessionExists  DenialReason = "session_exists"
	DenialTimeExpired    DenialReason = "time_expired"
)

// DenialError carries a denial reason through the error return path. No state
// is mutated when one is returned (the multiple-login violation recorded
// before session_exists being the documented exception).
type DenialError struct {
	Reason DenialReason
}

func (e *DenialError) Error() string {
	return string(e.Reason)
}

// Deny builds a DenialError for the given reason.
func Deny(reason DenialReason) *DenialError {
	return &DenialError{Reason: reason}
}
