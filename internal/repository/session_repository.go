package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/proctorly/proctor-backend/internal/model"
)

// ErrSessionExists is returned when an active session for the same exam and
// candidate already holds the partial unique slot.
var ErrSessionExists = errors.New("active session already exists")

// ErrSessionNotActive is returned when an operation requires a live session.
var ErrSessionNotActive = errors.New("session is not active")

const sessionColumns = `id, token, exam_id, candidate_id, batch_id, fingerprint, ip_address,
	started_at, server_end_time, submitted_at, submit_reason, time_taken_seconds,
	violation_count, question_order, last_heartbeat, status`

// SessionRepository handles exam attempt data access.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func scanSession(row interface{ Scan(...any) error }) (*model.Session, error) {
	s := &model.Session{}
	err := row.Scan(
		&s.ID, &s.Token, &s.ExamID, &s.CandidateID, &s.BatchID, &s.Fingerprint, &s.IPAddress,
		&s.StartedAt, &s.ServerEndTime, &s.SubmittedAt, &s.SubmitReason, &s.TimeTakenSeconds,
		&s.ViolationCount, &s.QuestionOrder, &s.LastHeartbeat, &s.Status,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a new active session. The partial unique index on
// (exam_id, candidate_id) WHERE status='ACTIVE' turns a concurrent duplicate
// start into ErrSessionExists instead of a second live attempt.
func (r *SessionRepository) Create(ctx context.Context, s *model.Session) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO sessions (token, exam_id, candidate_id, batch_id, fingerprint, ip_address,
		                       started_at, server_end_time, question_order, last_heartbeat, status)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		 ON CONFLICT (exam_id, candidate_id) WHERE status = 'ACTIVE' DO NOTHING
		 RETURNING id`,
		s.Token, s.ExamID, s.CandidateID, s.BatchID, s.Fingerprint, s.IPAddress,
		s.StartedAt, s.ServerEndTime, s.QuestionOrder, s.LastHeartbeat, s.Status,
	).Scan(&s.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrSessionExists
	}
	return err
}

// GetByToken retrieves a session by its opaque token.
func (r *SessionRepository) GetByToken(ctx context.Context, token uuid.UUID) (*model.Session, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE token = $1`, token)
	return scanSession(row)
}

// GetActiveByExamAndCandidate finds the candidate's live attempt, if any.
func (r *SessionRepository) GetActiveByExamAndCandidate(ctx context.Context, examID uuid.UUID, candidateID int) (*model.Session, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE exam_id = $1 AND candidate_id = $2 AND status = 'ACTIVE'`,
		examID, candidateID)
	return scanSession(row)
}

// Terminate moves an active session into a terminal status. The status guard
// makes concurrent submit paths race-safe: exactly one caller wins.
func (r *SessionRepository) Terminate(ctx context.Context, id uuid.UUID, status model.SessionStatus, reason model.SubmitReason, submittedAt time.Time, timeTakenSeconds int) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sessions
		 SET status=$1, submit_reason=$2, submitted_at=$3, time_taken_seconds=$4, updated_at=NOW()
		 WHERE id=$5 AND status='ACTIVE'`,
		status, reason, submittedAt, timeTakenSeconds, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Heartbeat refreshes the liveness timestamp for an active session.
func (r *SessionRepository) Heartbeat(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sessions SET last_heartbeat=$1, updated_at=NOW() WHERE id=$2 AND status='ACTIVE'`,
		at, id)
	return err
}

// UpsertAnswer writes one answer row, last write wins per question.
func (r *SessionRepository) UpsertAnswer(ctx context.Context, a *model.Answer) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_answers (session_id, question_id, selected_options, text_response,
		                              numeric_response, visited, marked_for_review, time_spent_seconds, answered_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT (session_id, question_id) DO UPDATE
		 SET selected_options=EXCLUDED.selected_options,
		     text_response=EXCLUDED.text_response,
		     numeric_response=EXCLUDED.numeric_response,
		     visited=EXCLUDED.visited,
		     marked_for_review=EXCLUDED.marked_for_review,
		     time_spent_seconds=EXCLUDED.time_spent_seconds,
		     answered_at=EXCLUDED.answered_at`,
		a.SessionID, a.QuestionID, a.SelectedOptions, a.TextResponse,
		a.NumericResponse, a.Visited, a.MarkedForReview, a.TimeSpentSecs, a.AnsweredAt)
	return err
}

// ListAnswers returns all answers saved for a session.
func (r *SessionRepository) ListAnswers(ctx context.Context, sessionID uuid.UUID) ([]model.Answer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT session_id, question_id, selected_options, text_response, numeric_response,
		        visited, marked_for_review, time_spent_seconds, answered_at
		 FROM session_answers
		 WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(
			&a.SessionID, &a.QuestionID, &a.SelectedOptions, &a.TextResponse, &a.NumericResponse,
			&a.Visited, &a.MarkedForReview, &a.TimeSpentSecs, &a.AnsweredAt,
		); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// AppendViolation records a violation and bumps the session counter in one
// transaction. The row lock serializes concurrent reports so each one sees a
// distinct running count.
func (r *SessionRepository) AppendViolation(ctx context.Context, v *model.Violation) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var status model.SessionStatus
	if err := tx.QueryRow(ctx,
		`SELECT status FROM sessions WHERE id = $1 FOR UPDATE`,
		v.SessionID).Scan(&status); err != nil {
		return 0, err
	}
	if status != model.SessionStatusActive {
		return 0, ErrSessionNotActive
	}

	if err := tx.QueryRow(ctx,
		`INSERT INTO violations (session_id, type, severity, details)
		 VALUES ($1,$2,$3,$4)
		 RETURNING id, created_at`,
		v.SessionID, v.Type, v.Severity, v.Details,
	).Scan(&v.ID, &v.CreatedAt); err != nil {
		return 0, err
	}

	var count int
	if err := tx.QueryRow(ctx,
		`UPDATE sessions
		 SET violation_count = violation_count + 1, updated_at=NOW()
		 WHERE id = $1
		 RETURNING violation_count`,
		v.SessionID).Scan(&count); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return count, nil
}

// ListActiveByBatch returns live sessions attached to a batch.
func (r *SessionRepository) ListActiveByBatch(ctx context.Context, batchID uuid.UUID) ([]model.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE batch_id = $1 AND status = 'ACTIVE'`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

// ListActiveExpired returns active sessions whose deadline has passed, for
// the background sweep.
func (r *SessionRepository) ListActiveExpired(ctx context.Context, now time.Time, limit int) ([]model.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE status = 'ACTIVE' AND server_end_time <= $1
		 ORDER BY server_end_time
		 LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

// ListTerminalWithoutSubmission finds finished attempts that still lack a
// submission row, so the regrade worker can backfill them.
func (r *SessionRepository) ListTerminalWithoutSubmission(ctx context.Context, limit int) ([]model.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions s
		 WHERE s.status <> 'ACTIVE'
		   AND NOT EXISTS (
		     SELECT 1 FROM submissions sub WHERE sub.session_id = s.id
		   )
		 ORDER BY s.submitted_at NULLS FIRST
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

// ListActiveByExam returns all live sessions for an exam, for the admin
// monitor snapshot.
func (r *SessionRepository) ListActiveByExam(ctx context.Context, examID uuid.UUID) ([]model.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE exam_id = $1 AND status = 'ACTIVE'
		 ORDER BY started_at`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

func collectSessions(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]model.Session, error) {
	var sessions []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}
