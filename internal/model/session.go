package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates attempt states. Exactly one session may be ACTIVE
// per (exam, candidate); every other status is terminal and entered at most
// once.
type SessionStatus string

const (
	SessionStatusActive              SessionStatus = "ACTIVE"
	SessionStatusSubmitted           SessionStatus = "SUBMITTED"
	SessionStatusForceSubmitted      SessionStatus = "FORCE_SUBMITTED"
	SessionStatusViolationTerminated SessionStatus = "VIOLATION_TERMINATED"
	SessionStatusExpired             SessionStatus = "EXPIRED"
)

// Terminal reports whether the status is one of the end states.
func (s SessionStatus) Terminal() bool {
	return s != SessionStatusActive
}

// SubmitReason identifies what ended an attempt.
type SubmitReason string

const (
	SubmitReasonManual        SubmitReason = "manual"
	SubmitReasonAutoTimeout   SubmitReason = "auto_timeout"
	SubmitReasonAutoViolation SubmitReason = "auto_violation"
	SubmitReasonAdminForce    SubmitReason = "admin_force"
	SubmitReasonBatchClosure  SubmitReason = "batch_closure"
)

// SessionStatusFor maps a submit reason to the session's terminal status.
func SessionStatusFor(reason SubmitReason) SessionStatus {
	switch reason {
	case SubmitReasonAutoTimeout:
		return SessionStatusExpired
	case SubmitReasonAutoViolation:
		return SessionStatusViolationTerminated
	case SubmitReasonAdminForce, SubmitReasonBatchClosure:
		return SessionStatusForceSubmitted
	default:
		return SessionStatusSubmitted
	}
}

// Session is one candidate's single timed attempt at an exam.
type Session struct {
	ID          uuid.UUID `json:"id"`
	Token       uuid.UUID `json:"token"`
	ExamID      uuid.UUID `json:"exam_id"`
	CandidateID int       `json:"candidate_id"`
	BatchID     *uuid.UUID
	// Fingerprint binds the attempt to one client; a login with a different
	// fingerprint while this session is active is itself a violation.
	Fingerprint      string        `json:"-"`
	IPAddress        string        `json:"-"`
	StartedAt        time.Time     `json:"started_at"`
	ServerEndTime    time.Time     `json:"server_end_time"`
	SubmittedAt      *time.Time    `json:"submitted_at,omitempty"`
	SubmitReason     *SubmitReason `json:"submit_reason,omitempty"`
	TimeTakenSeconds *int          `json:"time_taken_seconds,omitempty"`
	ViolationCount   int           `json:"violation_count"`
	QuestionOrder    []uuid.UUID   `json:"question_order"`
	LastHeartbeat    time.Time     `json:"-"`
	Status           SessionStatus `json:"status"`
}

// RemainingTime returns the seconds left on the attempt clock, never negative.
func (s *Session) RemainingTime(now time.Time) float64 {
	remaining := s.ServerEndTime.Sub(now).Seconds()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Expired reports whether the server-side deadline has passed.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ServerEndTime)
}

// Answer is a candidate's response record for one question. Mutable only
// while the owning session is active; last write wins.
type Answer struct {
	SessionID       uuid.UUID  `json:"-"`
	QuestionID      uuid.UUID  `json:"question_id"`
	SelectedOptions []int      `json:"selected_options,omitempty"`
	TextResponse    string     `json:"text_response,omitempty"`
	NumericResponse *float64   `json:"numeric_response,omitempty"`
	Visited         bool       `json:"visited"`
	MarkedForReview bool       `json:"marked_for_review"`
	TimeSpentSecs   int        `json:"time_spent_seconds"`
	AnsweredAt      *time.Time `json:"answered_at,omitempty"`
}

// Empty reports whether the answer carries no response content.
func (a *Answer) Empty() bool {
	return len(a.SelectedOptions) == 0 && a.TextResponse == "" && a.NumericResponse == nil
}

// SaveAnswerRequest is the payload for upserting one answer.
type SaveAnswerRequest struct {
	SelectedOptions []int    `json:"selected_options" binding:"omitempty,dive,min=0"`
	TextResponse    string   `json:"text_response" binding:"omitempty,max=20000"`
	NumericResponse *float64 `json:"numeric_response"`
	Visited         bool     `json:"visited"`
	MarkedForReview bool     `json:"marked_for_review"`
	TimeSpentSecs   int      `json:"time_spent_seconds" binding:"min=0"`
}

// SessionState is the candidate-facing view served on reload and polling.
type SessionState struct {
	Session       *Session               `json:"session"`
	Questions     []QuestionForCandidate `json:"questions"`
	Answers       []Answer               `json:"answers"`
	RemainingTime float64                `json:"remaining_time_seconds"`
}
