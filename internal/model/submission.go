package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus enumerates terminal submission states.
type SubmissionStatus string

const (
	SubmissionStatusSubmitted          SubmissionStatus = "SUBMITTED"
	SubmissionStatusAutoSubmitted      SubmissionStatus = "AUTO_SUBMITTED"
	SubmissionStatusForceSubmitted     SubmissionStatus = "FORCE_SUBMITTED"
	SubmissionStatusViolationSubmitted SubmissionStatus = "VIOLATION_SUBMITTED"
	SubmissionStatusEvaluated          SubmissionStatus = "EVALUATED"
)

// SubmissionStatusFor maps a submit reason to the submission status.
func SubmissionStatusFor(reason SubmitReason) SubmissionStatus {
	switch reason {
	case SubmitReasonAutoTimeout:
		return SubmissionStatusAutoSubmitted
	case SubmitReasonAutoViolation:
		return SubmissionStatusViolationSubmitted
	case SubmitReasonAdminForce, SubmitReasonBatchClosure:
		return SubmissionStatusForceSubmitted
	default:
		return SubmissionStatusSubmitted
	}
}

// ScoredAnswer is one graded question within a submission.
type ScoredAnswer struct {
	QuestionID    uuid.UUID `json:"question_id"`
	Verdict       string    `json:"verdict"`
	MarksAwarded  float64   `json:"marks_awarded"`
	MarksPossible float64   `json:"marks_possible"`
}

// Submission is the durable, gradable record derived from a terminated
// session. At most one final submission exists per (exam, candidate);
// creating a second is a no-op that returns the existing record.
type Submission struct {
	ID             uuid.UUID        `json:"id"`
	SessionID      uuid.UUID        `json:"session_id"`
	ExamID         uuid.UUID        `json:"exam_id"`
	CandidateID    int              `json:"candidate_id"`
	Scores         []ScoredAnswer   `json:"scores"`
	MarksObtained  float64          `json:"marks_obtained"`
	TotalMarks     float64          `json:"total_marks"`
	Percentage     float64          `json:"percentage"`
	CorrectCount   int              `json:"correct_answers"`
	WrongCount     int              `json:"wrong_answers"`
	Unattempted    int              `json:"unattempted"`
	ViolationCount int              `json:"violation_count"`
	Status         SubmissionStatus `json:"status"`
	// GradingPending marks a submission whose scoring was degraded to zero
	// because grading failed during submit. The regrade worker reconciles it.
	GradingPending bool      `json:"grading_pending"`
	CreatedAt      time.Time `json:"created_at"`
}

// SubmissionScoreUpdate carries one regraded result for the bulk update path.
// Scores holds the pre-marshaled JSON score array.
type SubmissionScoreUpdate struct {
	ID            uuid.UUID
	Scores        []byte
	MarksObtained float64
	Percentage    float64
	CorrectCount  int
	WrongCount    int
	Unattempted   int
}
