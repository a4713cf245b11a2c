package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/proctorly/proctor-backend/internal/model"
)

// Batch scheduling errors.
var (
	ErrBatchingDisabled = errors.New("batching is not enabled for this exam")
	ErrExamNotEditable  = errors.New("exam can no longer be modified")
	ErrBatchPlanTooLong = errors.New("batch plan does not fit inside the exam window")
	ErrBatchLocked      = errors.New("batch is locked")
	ErrBatchNotPending  = errors.New("batch is not awaiting its window")
)

// BatchAdminStore is the batch persistence surface for the scheduler.
type BatchAdminStore interface {
	CreateAll(ctx context.Context, examID uuid.UUID, batches []model.Batch) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Batch, error)
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Batch, error)
	ListDueToActivate(ctx context.Context, now time.Time) ([]model.Batch, error)
	ListDueToComplete(ctx context.Context, now time.Time) ([]model.Batch, error)
	ListUpNext(ctx context.Context, now time.Time, horizon time.Duration) ([]model.Batch, error)
	MarkActive(ctx context.Context, id uuid.UUID, startedAt time.Time) (bool, error)
	MarkQueued(ctx context.Context, id uuid.UUID) (bool, error)
	CompleteAndLock(ctx context.Context, id uuid.UUID, endedAt time.Time) (bool, error)
	BoardByExam(ctx context.Context, examID uuid.UUID) ([]model.BatchBoardEntry, error)
}

// BatchSubmitter force-submits the live sessions of a closing batch.
type BatchSubmitter interface {
	ForceSubmitBatch(ctx context.Context, batchID uuid.UUID) int
}

// queueHorizon is how far ahead of its window a pending batch is flagged as
// up next.
const queueHorizon = 15 * time.Minute

// BatchService partitions exam cohorts into sequential time-boxed batches and
// advances them through their windows. AutoAdvance is fully idempotent: every
// transition is guarded in the store, so overlapping sweeps (ticker plus an
// external cron) are safe.
type BatchService struct {
	exams     ExamStore
	batches   BatchAdminStore
	submitter BatchSubmitter
	log       zerolog.Logger

	// defaultBuffer pads each batch window for handover between cohorts.
	defaultBuffer time.Duration
	now           func() time.Time
}

// NewBatchService creates a new BatchService.
func NewBatchService(
	exams ExamStore,
	batches BatchAdminStore,
	submitter BatchSubmitter,
	defaultBuffer time.Duration,
	log zerolog.Logger,
) *BatchService {
	return &BatchService{
		exams:         exams,
		batches:       batches,
		submitter:     submitter,
		defaultBuffer: defaultBuffer,
		log:           log.With().Str("component", "batch_service").Logger(),
		now:           time.Now,
	}
}

// Generate partitions the cohort into sequential batches starting at the
// exam's start time. Each window spans the attempt duration plus the buffer;
// the next batch begins where the previous one ends. Regeneration replaces
// the whole plan and is only allowed before the exam goes ongoing.
func (s *BatchService) Generate(ctx context.Context, examID uuid.UUID, req *model.GenerateBatchesRequest) ([]model.Batch, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if !exam.BatchingEnabled {
		return nil, ErrBatchingDisabled
	}
	if exam.Status != model.ExamStatusDraft && exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotEditable
	}

	buffer := s.defaultBuffer
	if req.BufferMinutes != nil {
		buffer = time.Duration(*req.BufferMinutes) * time.Minute
	}
	window := exam.Duration() + buffer

	var batches []model.Batch
	for i := 0; i < len(req.CandidateIDs); i += req.BatchSize {
		end := i + req.BatchSize
		if end > len(req.CandidateIDs) {
			end = len(req.CandidateIDs)
		}

		number := len(batches) + 1
		start := exam.StartTime.Add(time.Duration(number-1) * window)
		batches = append(batches, model.Batch{
			ExamID:         examID,
			Number:         number,
			CandidateIDs:   req.CandidateIDs[i:end],
			MaxCapacity:    req.BatchSize,
			ScheduledStart: start,
			ScheduledEnd:   start.Add(window),
			Status:         model.BatchStatusPending,
		})
	}

	if last := batches[len(batches)-1]; last.ScheduledEnd.After(exam.EndTime) {
		return nil, ErrBatchPlanTooLong
	}

	if err := s.batches.CreateAll(ctx, examID, batches); err != nil {
		return nil, fmt.Errorf("create batches: %w", err)
	}

	s.log.Info().
		Str("exam_id", examID.String()).
		Int("batches", len(batches)).
		Int("candidates", len(req.CandidateIDs)).
		Msg("Batch plan generated")
	return batches, nil
}

// AdvanceResult summarizes one AutoAdvance pass.
type AdvanceResult struct {
	Completed int `json:"completed"`
	Activated int `json:"activated"`
	Queued    int `json:"queued"`
	// ForceSubmitted counts sessions submitted by batch closures this pass.
	ForceSubmitted int `json:"force_submitted"`
}

// AutoAdvance moves every due batch one step forward: active batches past
// their window complete (force-submitting their sessions), pending or queued
// batches whose window opened activate, and pending batches nearing their
// window become queued. Completion runs first so a batch whose window both
// opened and closed between sweeps never activates.
func (s *BatchService) AutoAdvance(ctx context.Context) (*AdvanceResult, error) {
	now := s.now()
	res := &AdvanceResult{}

	due, err := s.batches.ListDueToComplete(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list due to complete: %w", err)
	}
	for i := range due {
		won, err := s.batches.CompleteAndLock(ctx, due[i].ID, now)
		if err != nil {
			s.log.Error().Err(err).Str("batch_id", due[i].ID.String()).Msg("Batch completion failed")
			continue
		}
		if !won {
			continue
		}
		res.Completed++
		res.ForceSubmitted += s.submitter.ForceSubmitBatch(ctx, due[i].ID)
		s.log.Info().
			Str("batch_id", due[i].ID.String()).
			Int("batch_number", due[i].Number).
			Msg("Batch completed and locked")
	}

	openable, err := s.batches.ListDueToActivate(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list due to activate: %w", err)
	}
	for i := range openable {
		// Skip batches whose whole window already elapsed; they were handled
		// above or never had attendees.
		if !openable[i].ScheduledEnd.After(now) {
			continue
		}
		won, err := s.batches.MarkActive(ctx, openable[i].ID, now)
		if err != nil {
			s.log.Error().Err(err).Str("batch_id", openable[i].ID.String()).Msg("Batch activation failed")
			continue
		}
		if won {
			res.Activated++
			s.log.Info().
				Str("batch_id", openable[i].ID.String()).
				Int("batch_number", openable[i].Number).
				Msg("Batch activated")
		}
	}

	upNext, err := s.batches.ListUpNext(ctx, now, queueHorizon)
	if err != nil {
		return nil, fmt.Errorf("list up next: %w", err)
	}
	for i := range upNext {
		won, err := s.batches.MarkQueued(ctx, upNext[i].ID)
		if err != nil {
			s.log.Error().Err(err).Str("batch_id", upNext[i].ID.String()).Msg("Batch queueing failed")
			continue
		}
		if won {
			res.Queued++
		}
	}

	return res, nil
}

// ForceStart opens a batch ahead of its scheduled window. It goes through the
// same guarded transition as the sweep, so racing an overlapping sweep or a
// repeated call changes nothing.
func (s *BatchService) ForceStart(ctx context.Context, batchID uuid.UUID) (*model.Batch, error) {
	won, err := s.batches.MarkActive(ctx, batchID, s.now())
	if err != nil {
		return nil, fmt.Errorf("activate batch: %w", err)
	}
	if !won {
		return nil, ErrBatchNotPending
	}
	s.log.Info().Str("batch_id", batchID.String()).Msg("Batch started manually")
	return s.batches.GetByID(ctx, batchID)
}

// ForceComplete closes a batch early: it completes and locks the batch and
// force-submits its live sessions. Used by admins to end a disrupted cohort.
func (s *BatchService) ForceComplete(ctx context.Context, batchID uuid.UUID) (int, error) {
	won, err := s.batches.CompleteAndLock(ctx, batchID, s.now())
	if err != nil {
		return 0, fmt.Errorf("complete batch: %w", err)
	}
	if !won {
		return 0, ErrBatchLocked
	}
	return s.submitter.ForceSubmitBatch(ctx, batchID), nil
}

// List returns an exam's batch plan.
func (s *BatchService) List(ctx context.Context, examID uuid.UUID) ([]model.Batch, error) {
	return s.batches.ListByExam(ctx, examID)
}

// Board returns the per-batch progress aggregation for admins.
func (s *BatchService) Board(ctx context.Context, examID uuid.UUID) ([]model.BatchBoardEntry, error) {
	return s.batches.BoardByExam(ctx, examID)
}
