package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the lifecycle states of an exam definition.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusOngoing   ExamStatus = "ONGOING"
	ExamStatusCompleted ExamStatus = "COMPLETED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// Exam represents an exam definition. Immutable once published except for
// status transitions.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	AuthorID        int        `json:"author_id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	DurationMinutes int        `json:"duration_minutes"`
	TotalMarks      float64    `json:"total_marks"`
	PassingMarks    float64    `json:"passing_marks"`
	NegativeMarks   float64    `json:"negative_marks"`
	WarnThreshold   int        `json:"warn_threshold"`
	SubmitThreshold int        `json:"submit_threshold"`
	BatchingEnabled bool       `json:"batching_enabled"`
	OpenToAll       bool       `json:"open_to_all"`
	RandomizeOrder  bool       `json:"randomize_order"`
	Status          ExamStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Duration returns the per-attempt duration as a time.Duration.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// AttemptEndTime computes the server-side hard deadline for an attempt that
// starts at the given instant: startedAt + duration, capped at the exam's own
// end time.
func (e *Exam) AttemptEndTime(startedAt time.Time) time.Time {
	end := startedAt.Add(e.Duration())
	if end.After(e.EndTime) {
		return e.EndTime
	}
	return end
}

// Joinable reports whether candidates may start attempts in this status.
func (e *Exam) Joinable() bool {
	return e.Status == ExamStatusPublished || e.Status == ExamStatusOngoing
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	Title           string    `json:"title" binding:"required,min=3,max=255"`
	StartTime       time.Time `json:"start_time" binding:"required"`
	EndTime         time.Time `json:"end_time" binding:"required,gtfield=StartTime"`
	DurationMinutes int       `json:"duration_minutes" binding:"required,min=1,max=480"`
	TotalMarks      float64   `json:"total_marks" binding:"min=0"`
	PassingMarks    float64   `json:"passing_marks" binding:"min=0"`
	NegativeMarks   float64   `json:"negative_marks" binding:"min=0"`
	WarnThreshold   int       `json:"warn_threshold" binding:"min=0"`
	SubmitThreshold int       `json:"submit_threshold" binding:"min=0"`
	BatchingEnabled bool      `json:"batching_enabled"`
	OpenToAll       bool      `json:"open_to_all"`
	RandomizeOrder  bool      `json:"randomize_order"`
}

// UpdateExamRequest is the payload for updating a draft exam.
type UpdateExamRequest struct {
	Title           string     `json:"title" binding:"omitempty,min=3,max=255"`
	StartTime       *time.Time `json:"start_time" binding:"omitempty"`
	EndTime         *time.Time `json:"end_time" binding:"omitempty"`
	DurationMinutes *int       `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
	TotalMarks      *float64   `json:"total_marks" binding:"omitempty,min=0"`
	PassingMarks    *float64   `json:"passing_marks" binding:"omitempty,min=0"`
	NegativeMarks   *float64   `json:"negative_marks" binding:"omitempty,min=0"`
	WarnThreshold   *int       `json:"warn_threshold" binding:"omitempty,min=0"`
	SubmitThreshold *int       `json:"submit_threshold" binding:"omitempty,min=0"`
	BatchingEnabled *bool      `json:"batching_enabled"`
	OpenToAll       *bool      `json:"open_to_all"`
	RandomizeOrder  *bool      `json:"randomize_order"`
}

// EnrollCandidatesRequest is the payload for enrolling candidates in an exam.
type EnrollCandidatesRequest struct {
	CandidateIDs []int `json:"candidate_ids" binding:"required,min=1"`
}

// ExamPayload is the cached candidate-facing view of an exam: questions with
// the answer key stripped.
type ExamPayload struct {
	ExamID    uuid.UUID              `json:"exam_id"`
	Title     string                 `json:"title"`
	Duration  int                    `json:"duration_minutes"`
	Questions []QuestionForCandidate `json:"questions"`
}
