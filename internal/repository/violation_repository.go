package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/proctorly/proctor-backend/internal/model"
)

// ViolationRepository handles violation records and the archived event stream.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// ListBySession returns a session's violations, oldest first.
func (r *ViolationRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Violation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, type, severity, details, created_at
		 FROM violations
		 WHERE session_id = $1
		 ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var violations []model.Violation
	for rows.Next() {
		var v model.Violation
		if err := rows.Scan(&v.ID, &v.SessionID, &v.Type, &v.Severity, &v.Details, &v.CreatedAt); err != nil {
			return nil, err
		}
		violations = append(violations, v)
	}
	return violations, rows.Err()
}

// CountBySeverity aggregates a session's violations per severity for the
// admin detail view.
func (r *ViolationRepository) CountBySeverity(ctx context.Context, sessionID uuid.UUID) (map[model.ViolationSeverity]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT severity, COUNT(*) FROM violations WHERE session_id = $1 GROUP BY severity`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.ViolationSeverity]int)
	for rows.Next() {
		var sev model.ViolationSeverity
		var n int
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, err
		}
		counts[sev] = n
	}
	return counts, rows.Err()
}

// BulkInsertEvents archives a batch of raw violation event payloads using
// COPY for throughput.
func (r *ViolationRepository) BulkInsertEvents(ctx context.Context, events []model.ViolationEvent) error {
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		rows = append(rows, []any{e.SessionID, e.ExamID, e.Type, e.Severity, e.Payload, e.OccurredAt})
	}

	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"violation_events"},
		[]string{"session_id", "exam_id", "type", "severity", "payload", "occurred_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// InsertEvent is the row-by-row fallback when a COPY batch fails, so one bad
// event cannot sink the whole batch.
func (r *ViolationRepository) InsertEvent(ctx context.Context, e *model.ViolationEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO violation_events (session_id, exam_id, type, severity, payload, occurred_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		e.SessionID, e.ExamID, e.Type, e.Severity, e.Payload, e.OccurredAt)
	return err
}
