package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/proctorly/proctor-backend/internal/model"
)

const batchColumns = `id, exam_id, batch_number, candidate_ids, max_capacity, current_count,
	scheduled_start, scheduled_end, actual_start, actual_end, is_locked, locked_at, status`

// BatchRepository handles cohort batch data access.
type BatchRepository struct {
	pool *pgxpool.Pool
}

// NewBatchRepository creates a new BatchRepository.
func NewBatchRepository(pool *pgxpool.Pool) *BatchRepository {
	return &BatchRepository{pool: pool}
}

func scanBatch(row interface{ Scan(...any) error }) (*model.Batch, error) {
	b := &model.Batch{}
	err := row.Scan(
		&b.ID, &b.ExamID, &b.Number, &b.CandidateIDs, &b.MaxCapacity, &b.CurrentCount,
		&b.ScheduledStart, &b.ScheduledEnd, &b.ActualStart, &b.ActualEnd, &b.IsLocked, &b.LockedAt, &b.Status,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// CreateAll replaces an exam's batch plan in one transaction. Regeneration is
// only allowed before the exam goes ongoing, which the service enforces.
func (r *BatchRepository) CreateAll(ctx context.Context, examID uuid.UUID, batches []model.Batch) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM batches WHERE exam_id = $1`, examID); err != nil {
		return fmt.Errorf("clear batches: %w", err)
	}

	for i := range batches {
		b := &batches[i]
		err := tx.QueryRow(ctx,
			`INSERT INTO batches (exam_id, batch_number, candidate_ids, max_capacity,
			                      current_count, scheduled_start, scheduled_end, status)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			 RETURNING id`,
			examID, b.Number, b.CandidateIDs, b.MaxCapacity,
			b.CurrentCount, b.ScheduledStart, b.ScheduledEnd, b.Status,
		).Scan(&b.ID)
		if err != nil {
			return fmt.Errorf("insert batch %d: %w", b.Number, err)
		}
	}

	return tx.Commit(ctx)
}

// GetByID retrieves a batch by its UUID.
func (r *BatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Batch, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+batchColumns+` FROM batches WHERE id = $1`, id)
	return scanBatch(row)
}

// ListByExam retrieves an exam's batches in schedule order.
func (r *BatchRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Batch, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+batchColumns+` FROM batches WHERE exam_id = $1 ORDER BY batch_number`,
		examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBatches(rows)
}

// FindForCandidate locates the batch whose roster contains the candidate.
func (r *BatchRepository) FindForCandidate(ctx context.Context, examID uuid.UUID, candidateID int) (*model.Batch, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+batchColumns+`
		 FROM batches
		 WHERE exam_id = $1 AND candidate_ids @> ARRAY[$2]::int[]
		 ORDER BY batch_number
		 LIMIT 1`,
		examID, candidateID)
	return scanBatch(row)
}

// ListDueToActivate returns batches whose window has opened but are not yet
// marked active.
func (r *BatchRepository) ListDueToActivate(ctx context.Context, now time.Time) ([]model.Batch, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+batchColumns+`
		 FROM batches
		 WHERE status IN ('PENDING','QUEUED') AND NOT is_locked AND scheduled_start <= $1
		 ORDER BY scheduled_start`,
		now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBatches(rows)
}

// ListDueToComplete returns active batches whose window has closed.
func (r *BatchRepository) ListDueToComplete(ctx context.Context, now time.Time) ([]model.Batch, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+batchColumns+`
		 FROM batches
		 WHERE status = 'ACTIVE' AND NOT is_locked AND scheduled_end <= $1
		 ORDER BY scheduled_end`,
		now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBatches(rows)
}

// ListUpNext returns pending batches whose window opens within the horizon, so
// the scheduler can flag them as queued.
func (r *BatchRepository) ListUpNext(ctx context.Context, now time.Time, horizon time.Duration) ([]model.Batch, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+batchColumns+`
		 FROM batches
		 WHERE status = 'PENDING' AND NOT is_locked
		   AND scheduled_start > $1 AND scheduled_start <= $2
		 ORDER BY scheduled_start`,
		now, now.Add(horizon))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBatches(rows)
}

// MarkActive transitions a pending or queued batch into its live window.
// The guard makes concurrent scheduler runs idempotent: only the first caller
// sees a row affected.
func (r *BatchRepository) MarkActive(ctx context.Context, id uuid.UUID, startedAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE batches
		 SET status='ACTIVE', actual_start=$1, updated_at=NOW()
		 WHERE id=$2 AND status IN ('PENDING','QUEUED') AND NOT is_locked`,
		startedAt, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkQueued flags the next-up pending batch.
func (r *BatchRepository) MarkQueued(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE batches
		 SET status='QUEUED', updated_at=NOW()
		 WHERE id=$1 AND status='PENDING' AND NOT is_locked`,
		id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CompleteAndLock closes an active batch and locks it against any further
// writes.
func (r *BatchRepository) CompleteAndLock(ctx context.Context, id uuid.UUID, endedAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE batches
		 SET status='COMPLETED', actual_end=$1, is_locked=TRUE, locked_at=$1, updated_at=NOW()
		 WHERE id=$2 AND status='ACTIVE' AND NOT is_locked`,
		endedAt, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// IncrementCount reserves one seat in the batch. Returns false when the batch
// is already at capacity; the WHERE clause makes the check-and-claim atomic.
func (r *BatchRepository) IncrementCount(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE batches
		 SET current_count = current_count + 1, updated_at=NOW()
		 WHERE id=$1 AND current_count < max_capacity AND NOT is_locked`,
		id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DecrementCount releases a claimed seat after a failed session insert. The
// floor guard keeps a double release from going negative.
func (r *BatchRepository) DecrementCount(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE batches
		 SET current_count = current_count - 1, updated_at=NOW()
		 WHERE id=$1 AND current_count > 0`,
		id)
	return err
}

// BoardByExam aggregates per-batch session progress for the admin board.
func (r *BatchRepository) BoardByExam(ctx context.Context, examID uuid.UUID) ([]model.BatchBoardEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+batchColumns+`,
		        (SELECT COUNT(*) FROM sessions s WHERE s.batch_id = batches.id AND s.status = 'ACTIVE'),
		        (SELECT COUNT(*) FROM sessions s WHERE s.batch_id = batches.id AND s.status <> 'ACTIVE')
		 FROM batches
		 WHERE exam_id = $1
		 ORDER BY batch_number`,
		examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var board []model.BatchBoardEntry
	for rows.Next() {
		var e model.BatchBoardEntry
		if err := rows.Scan(
			&e.ID, &e.ExamID, &e.Number, &e.CandidateIDs, &e.MaxCapacity, &e.CurrentCount,
			&e.ScheduledStart, &e.ScheduledEnd, &e.ActualStart, &e.ActualEnd, &e.IsLocked, &e.LockedAt, &e.Status,
			&e.ActiveSessions, &e.SubmittedSessions,
		); err != nil {
			return nil, err
		}
		board = append(board, e)
	}
	return board, rows.Err()
}

func collectBatches(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]model.Batch, error) {
	var batches []model.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *b)
	}
	return batches, rows.Err()
}
