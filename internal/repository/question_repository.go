package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/proctorly/proctor-backend/internal/model"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByExam retrieves an exam's questions in display order.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, text, type, marks, options, correct_options,
		        accepted_answers, correct_value, tolerance, partial_credit, order_num
		 FROM questions
		 WHERE exam_id = $1
		 ORDER BY order_num, id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(
			&q.ID, &q.ExamID, &q.Text, &q.Type, &q.Marks, &q.Options, &q.CorrectOptions,
			&q.AcceptedAnswers, &q.CorrectValue, &q.Tolerance, &q.PartialCredit, &q.OrderNum,
		); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// CountByExam returns the number of questions attached to an exam.
func (r *QuestionRepository) CountByExam(ctx context.Context, examID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM questions WHERE exam_id = $1`, examID).Scan(&n)
	return n, err
}

// ReplaceAll atomically swaps the full question set for an exam.
func (r *QuestionRepository) ReplaceAll(ctx context.Context, examID uuid.UUID, questions []model.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE exam_id = $1`, examID); err != nil {
		return fmt.Errorf("clear questions: %w", err)
	}

	for i := range questions {
		q := &questions[i]
		err := tx.QueryRow(ctx,
			`INSERT INTO questions (exam_id, text, type, marks, options, correct_options,
			                        accepted_answers, correct_value, tolerance, partial_credit, order_num)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			 RETURNING id`,
			examID, q.Text, q.Type, q.Marks, q.Options, q.CorrectOptions,
			q.AcceptedAnswers, q.CorrectValue, q.Tolerance, q.PartialCredit, q.OrderNum,
		).Scan(&q.ID)
		if err != nil {
			return fmt.Errorf("insert question %d: %w", i, err)
		}
	}

	return tx.Commit(ctx)
}
