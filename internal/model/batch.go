package model

import (
	"time"

	"github.com/google/uuid"
)

// BatchStatus enumerates batch scheduling states. Status only ever advances
// forward through pending → queued → active → completed → locked; it never
// regresses.
type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "PENDING"
	BatchStatusQueued    BatchStatus = "QUEUED"
	BatchStatusActive    BatchStatus = "ACTIVE"
	BatchStatusCompleted BatchStatus = "COMPLETED"
	BatchStatusLocked    BatchStatus = "LOCKED"
)

// Batch is a time-boxed, capacity-bounded subgroup of an exam's candidates.
// IsLocked == true implies status COMPLETED or LOCKED and forbids all
// further writes to students, capacity, and status.
type Batch struct {
	ID             uuid.UUID   `json:"id"`
	ExamID         uuid.UUID   `json:"exam_id"`
	Number         int         `json:"number"`
	CandidateIDs   []int       `json:"candidate_ids"`
	MaxCapacity    int         `json:"max_capacity"`
	CurrentCount   int         `json:"current_count"`
	ScheduledStart time.Time   `json:"scheduled_start"`
	ScheduledEnd   time.Time   `json:"scheduled_end"`
	ActualStart    *time.Time  `json:"actual_start,omitempty"`
	ActualEnd      *time.Time  `json:"actual_end,omitempty"`
	IsLocked       bool        `json:"is_locked"`
	LockedAt       *time.Time  `json:"locked_at,omitempty"`
	Status         BatchStatus `json:"status"`
}

// CanAcceptStudent reports whether the batch has spare capacity.
func (b *Batch) CanAcceptStudent() bool {
	return b.CurrentCount < b.MaxCapacity
}

// Contains reports whether the candidate is enrolled in this batch.
func (b *Batch) Contains(candidateID int) bool {
	for _, id := range b.CandidateIDs {
		if id == candidateID {
			return true
		}
	}
	return false
}

// GenerateBatchesRequest is the payload for partitioning a cohort.
type GenerateBatchesRequest struct {
	CandidateIDs  []int `json:"candidate_ids" binding:"required,min=1"`
	BatchSize     int   `json:"batch_size" binding:"required,min=1"`
	BufferMinutes *int  `json:"buffer_minutes" binding:"omitempty,min=0"`
}

// BatchBoardEntry is one row of the admin batch status board.
type BatchBoardEntry struct {
	Batch
	ActiveSessions    int `json:"active_sessions"`
	SubmittedSessions int `json:"submitted_sessions"`
}
