package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/proctorly/proctor-backend/internal/grading"
	"github.com/proctorly/proctor-backend/internal/model"
)

// GradingService wraps the pure grading engine with attempt data loading.
type GradingService struct {
	exams     ExamStore
	questions QuestionStore
	sessions  SessionStore
	log       zerolog.Logger
}

// NewGradingService creates a new GradingService.
func NewGradingService(exams ExamStore, questions QuestionStore, sessions SessionStore, log zerolog.Logger) *GradingService {
	return &GradingService{
		exams:     exams,
		questions: questions,
		sessions:  sessions,
		log:       log.With().Str("component", "grading_service").Logger(),
	}
}

// BuildSubmission grades a terminated session and shapes the submission
// record. It never fails: when loading questions or answers errors out, the
// submission degrades to zero scores with GradingPending set, and the regrade
// worker reconciles it later. Termination must not be blocked by grading.
func (g *GradingService) BuildSubmission(ctx context.Context, sess *model.Session, reason model.SubmitReason) *model.Submission {
	sub := &model.Submission{
		SessionID:      sess.ID,
		ExamID:         sess.ExamID,
		CandidateID:    sess.CandidateID,
		Scores:         []model.ScoredAnswer{},
		ViolationCount: sess.ViolationCount,
		Status:         model.SubmissionStatusFor(reason),
	}

	result, err := g.GradeSession(ctx, sess)
	if err != nil {
		g.log.Error().Err(err).Str("session_id", sess.ID.String()).Msg("Grading degraded, flagging for regrade")
		sub.GradingPending = true
		return sub
	}

	sub.Scores = result.ScoredAnswers()
	sub.MarksObtained = result.MarksObtained
	sub.TotalMarks = result.TotalMarks
	sub.Percentage = result.Percentage
	sub.CorrectCount = result.Correct
	sub.WrongCount = result.Wrong
	sub.Unattempted = result.Unattempted
	return sub
}

// GradeSession loads a session's questions and answers and runs the engine.
// Grading is deterministic, so calling it again for an unchanged attempt
// produces the same result.
func (g *GradingService) GradeSession(ctx context.Context, sess *model.Session) (*grading.Result, error) {
	exam, err := g.exams.GetByID(ctx, sess.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	questions, err := g.questions.ListByExam(ctx, sess.ExamID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	answers, err := g.sessions.ListAnswers(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	byQuestion := make(map[uuid.UUID]model.Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}

	result := grading.Grade(questions, byQuestion, grading.Config{
		TotalMarks:    exam.TotalMarks,
		NegativeMarks: exam.NegativeMarks,
	})
	return &result, nil
}
