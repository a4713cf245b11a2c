package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/proctorly/proctor-backend/internal/model"
)

const examColumns = `id, title, author_id, start_time, end_time, duration_minutes,
	total_marks, passing_marks, negative_marks, warn_threshold, submit_threshold,
	batching_enabled, open_to_all, randomize_order, status, created_at, updated_at`

// ExamRepository handles exam definition data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

func scanExam(row interface{ Scan(...any) error }) (*model.Exam, error) {
	e := &model.Exam{}
	err := row.Scan(
		&e.ID, &e.Title, &e.AuthorID, &e.StartTime, &e.EndTime, &e.DurationMinutes,
		&e.TotalMarks, &e.PassingMarks, &e.NegativeMarks, &e.WarnThreshold, &e.SubmitThreshold,
		&e.BatchingEnabled, &e.OpenToAll, &e.RandomizeOrder, &e.Status, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1`, id)
	return scanExam(row)
}

// Create inserts a new exam definition.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (title, author_id, start_time, end_time, duration_minutes,
			total_marks, passing_marks, negative_marks, warn_threshold, submit_threshold,
			batching_enabled, open_to_all, randomize_order, status)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		 RETURNING id, created_at, updated_at`,
		e.Title, e.AuthorID, e.StartTime, e.EndTime, e.DurationMinutes,
		e.TotalMarks, e.PassingMarks, e.NegativeMarks, e.WarnThreshold, e.SubmitThreshold,
		e.BatchingEnabled, e.OpenToAll, e.RandomizeOrder, e.Status,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// Update rewrites a draft exam's definition fields.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exams
		 SET title=$1, start_time=$2, end_time=$3, duration_minutes=$4,
		     total_marks=$5, passing_marks=$6, negative_marks=$7,
		     warn_threshold=$8, submit_threshold=$9, batching_enabled=$10,
		     open_to_all=$11, randomize_order=$12, updated_at=NOW()
		 WHERE id=$13`,
		e.Title, e.StartTime, e.EndTime, e.DurationMinutes,
		e.TotalMarks, e.PassingMarks, e.NegativeMarks,
		e.WarnThreshold, e.SubmitThreshold, e.BatchingEnabled,
		e.OpenToAll, e.RandomizeOrder, e.ID)
	return err
}

// TransitionStatus advances an exam's status guarded by the expected source
// status. Returns false if the guard did not match (already transitioned).
func (r *ExamRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.ExamStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams SET status=$1, updated_at=NOW() WHERE id=$2 AND status=$3`,
		to, id, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListByStatus retrieves all exams currently in any of the given statuses.
func (r *ExamRepository) ListByStatus(ctx context.Context, statuses ...model.ExamStatus) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams WHERE status = ANY($1) ORDER BY start_time`,
		statuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, *e)
	}
	return exams, rows.Err()
}

// ListPaginated retrieves exams ordered by creation time, newest first.
func (r *ExamRepository) ListPaginated(ctx context.Context, limit, offset int) ([]model.Exam, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM exams`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, 0, err
		}
		exams = append(exams, *e)
	}
	return exams, total, rows.Err()
}

// Delete removes an exam. Only draft exams are deletable; the service checks
// the status before calling.
func (r *ExamRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
	return err
}

// Enroll registers candidates for the exam, ignoring duplicates.
func (r *ExamRepository) Enroll(ctx context.Context, examID uuid.UUID, candidateIDs []int) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_enrollments (exam_id, candidate_id)
		 SELECT $1, UNNEST($2::int[])
		 ON CONFLICT DO NOTHING`,
		examID, candidateIDs)
	return err
}

// IsEnrolled reports whether the candidate is enrolled in the exam.
func (r *ExamRepository) IsEnrolled(ctx context.Context, examID uuid.UUID, candidateID int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM exam_enrollments WHERE exam_id=$1 AND candidate_id=$2)`,
		examID, candidateID).Scan(&exists)
	return exists, err
}
