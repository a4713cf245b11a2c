package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/proctorly/proctor-backend/internal/model"
)

const submissionColumns = `id, session_id, exam_id, candidate_id, scores, marks_obtained,
	total_marks, percentage, correct_count, wrong_count, unattempted, violation_count,
	status, grading_pending, created_at`

// SubmissionRepository handles graded submission data access.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

func scanSubmission(row interface{ Scan(...any) error }) (*model.Submission, error) {
	s := &model.Submission{}
	err := row.Scan(
		&s.ID, &s.SessionID, &s.ExamID, &s.CandidateID, &s.Scores, &s.MarksObtained,
		&s.TotalMarks, &s.Percentage, &s.CorrectCount, &s.WrongCount, &s.Unattempted, &s.ViolationCount,
		&s.Status, &s.GradingPending, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts the submission, or returns the existing one when the unique
// (exam_id, candidate_id) slot is already taken. At most one final submission
// exists per candidate per exam.
func (r *SubmissionRepository) Create(ctx context.Context, s *model.Submission) (*model.Submission, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO submissions (session_id, exam_id, candidate_id, scores, marks_obtained,
		                          total_marks, percentage, correct_count, wrong_count, unattempted,
		                          violation_count, status, grading_pending)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		 ON CONFLICT (exam_id, candidate_id) DO NOTHING
		 RETURNING id, created_at`,
		s.SessionID, s.ExamID, s.CandidateID, s.Scores, s.MarksObtained,
		s.TotalMarks, s.Percentage, s.CorrectCount, s.WrongCount, s.Unattempted,
		s.ViolationCount, s.Status, s.GradingPending,
	).Scan(&s.ID, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.GetByExamAndCandidate(ctx, s.ExamID, s.CandidateID)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetByExamAndCandidate retrieves the candidate's submission for an exam.
func (r *SubmissionRepository) GetByExamAndCandidate(ctx context.Context, examID uuid.UUID, candidateID int) (*model.Submission, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+`
		 FROM submissions
		 WHERE exam_id = $1 AND candidate_id = $2`,
		examID, candidateID)
	return scanSubmission(row)
}

// GetBySession retrieves the submission derived from a specific session.
func (r *SubmissionRepository) GetBySession(ctx context.Context, sessionID uuid.UUID) (*model.Submission, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE session_id = $1`, sessionID)
	return scanSubmission(row)
}

// ListByExam retrieves all submissions for an exam, highest score first.
func (r *SubmissionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Submission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionColumns+`
		 FROM submissions
		 WHERE exam_id = $1
		 ORDER BY marks_obtained DESC, created_at`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *s)
	}
	return subs, rows.Err()
}

// ListPendingGrading returns submissions whose scoring was degraded and needs
// reconciling.
func (r *SubmissionRepository) ListPendingGrading(ctx context.Context, limit int) ([]model.Submission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionColumns+`
		 FROM submissions
		 WHERE grading_pending
		 ORDER BY created_at
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *s)
	}
	return subs, rows.Err()
}

// BulkUpdateScores applies regraded results in one statement via UNNEST.
func (r *SubmissionRepository) BulkUpdateScores(ctx context.Context, updates []model.SubmissionScoreUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(updates))
	scores := make([][]byte, len(updates))
	obtained := make([]float64, len(updates))
	percentages := make([]float64, len(updates))
	correct := make([]int, len(updates))
	wrong := make([]int, len(updates))
	unattempted := make([]int, len(updates))
	for i, u := range updates {
		ids[i] = u.ID
		scores[i] = u.Scores
		obtained[i] = u.MarksObtained
		percentages[i] = u.Percentage
		correct[i] = u.CorrectCount
		wrong[i] = u.WrongCount
		unattempted[i] = u.Unattempted
	}

	_, err := r.pool.Exec(ctx,
		`UPDATE submissions AS s
		 SET scores = u.scores::jsonb,
		     marks_obtained = u.marks_obtained,
		     percentage = u.percentage,
		     correct_count = u.correct_count,
		     wrong_count = u.wrong_count,
		     unattempted = u.unattempted,
		     grading_pending = FALSE,
		     status = 'EVALUATED'
		 FROM (
		   SELECT UNNEST($1::uuid[])  AS id,
		          UNNEST($2::text[])  AS scores,
		          UNNEST($3::float8[]) AS marks_obtained,
		          UNNEST($4::float8[]) AS percentage,
		          UNNEST($5::int[])   AS correct_count,
		          UNNEST($6::int[])   AS wrong_count,
		          UNNEST($7::int[])   AS unattempted
		 ) AS u
		 WHERE s.id = u.id`,
		ids, scores, obtained, percentages, correct, wrong, unattempted)
	return err
}
