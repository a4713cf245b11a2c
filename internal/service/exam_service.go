package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/proctorly/proctor-backend/internal/config"
	"github.com/proctorly/proctor-backend/internal/model"
)

// Exam lifecycle errors.
var (
	ErrExamNotDraft     = errors.New("exam is not in draft status")
	ErrExamNotCompleted = errors.New("exam is not completed")
	ErrNoQuestions      = errors.New("exam has no questions")
)

// ExamAdminStore is the exam persistence surface for administration.
type ExamAdminStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	Create(ctx context.Context, e *model.Exam) error
	Update(ctx context.Context, e *model.Exam) error
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.ExamStatus) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByStatus(ctx context.Context, statuses ...model.ExamStatus) ([]model.Exam, error)
	ListPaginated(ctx context.Context, limit, offset int) ([]model.Exam, int, error)
	Enroll(ctx context.Context, examID uuid.UUID, candidateIDs []int) error
	IsEnrolled(ctx context.Context, examID uuid.UUID, candidateID int) (bool, error)
}

// QuestionAdminStore manages an exam's question set.
type QuestionAdminStore interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
	ReplaceAll(ctx context.Context, examID uuid.UUID, questions []model.Question) error
	CountByExam(ctx context.Context, examID uuid.UUID) (int, error)
}

// ExamService owns the exam definition lifecycle
// (draft → published → ongoing → completed → archived) and the cached
// candidate-facing exam payload.
type ExamService struct {
	exams     ExamAdminStore
	questions QuestionAdminStore
	rdb       *redis.Client
	log       zerolog.Logger

	payloadTTL time.Duration
	now        func() time.Time
}

// NewExamService creates a new ExamService.
func NewExamService(exams ExamAdminStore, questions QuestionAdminStore, rdb *redis.Client, payloadTTL time.Duration, log zerolog.Logger) *ExamService {
	return &ExamService{
		exams:      exams,
		questions:  questions,
		rdb:        rdb,
		log:        log.With().Str("component", "exam_service").Logger(),
		payloadTTL: payloadTTL,
		now:        time.Now,
	}
}

// Create inserts a new draft exam owned by the author.
func (s *ExamService) Create(ctx context.Context, authorID int, req *model.CreateExamRequest) (*model.Exam, error) {
	exam := &model.Exam{
		Title:           req.Title,
		AuthorID:        authorID,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		DurationMinutes: req.DurationMinutes,
		TotalMarks:      req.TotalMarks,
		PassingMarks:    req.PassingMarks,
		NegativeMarks:   req.NegativeMarks,
		WarnThreshold:   req.WarnThreshold,
		SubmitThreshold: req.SubmitThreshold,
		BatchingEnabled: req.BatchingEnabled,
		OpenToAll:       req.OpenToAll,
		RandomizeOrder:  req.RandomizeOrder,
		Status:          model.ExamStatusDraft,
	}
	if err := s.exams.Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}
	return exam, nil
}

// Get retrieves one exam.
func (s *ExamService) Get(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return s.exams.GetByID(ctx, id)
}

// List retrieves exams page by page.
func (s *ExamService) List(ctx context.Context, limit, offset int) ([]model.Exam, int, error) {
	return s.exams.ListPaginated(ctx, limit, offset)
}

// Update modifies a draft exam. Published and later exams are immutable
// except for status transitions.
func (s *ExamService) Update(ctx context.Context, id uuid.UUID, req *model.UpdateExamRequest) (*model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusDraft {
		return nil, ErrExamNotDraft
	}

	if req.Title != "" {
		exam.Title = req.Title
	}
	if req.StartTime != nil {
		exam.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		exam.EndTime = *req.EndTime
	}
	if req.DurationMinutes != nil {
		exam.DurationMinutes = *req.DurationMinutes
	}
	if req.TotalMarks != nil {
		exam.TotalMarks = *req.TotalMarks
	}
	if req.PassingMarks != nil {
		exam.PassingMarks = *req.PassingMarks
	}
	if req.NegativeMarks != nil {
		exam.NegativeMarks = *req.NegativeMarks
	}
	if req.WarnThreshold != nil {
		exam.WarnThreshold = *req.WarnThreshold
	}
	if req.SubmitThreshold != nil {
		exam.SubmitThreshold = *req.SubmitThreshold
	}
	if req.BatchingEnabled != nil {
		exam.BatchingEnabled = *req.BatchingEnabled
	}
	if req.OpenToAll != nil {
		exam.OpenToAll = *req.OpenToAll
	}
	if req.RandomizeOrder != nil {
		exam.RandomizeOrder = *req.RandomizeOrder
	}

	if err := s.exams.Update(ctx, exam); err != nil {
		return nil, fmt.Errorf("update exam: %w", err)
	}
	return exam, nil
}

// Delete removes a draft exam.
func (s *ExamService) Delete(ctx context.Context, id uuid.UUID) error {
	exam, err := s.exams.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	return s.exams.Delete(ctx, id)
}

// ReplaceQuestions swaps the full question set of a draft exam.
func (s *ExamService) ReplaceQuestions(ctx context.Context, examID uuid.UUID, req *model.ReplaceQuestionsRequest) ([]model.Question, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusDraft {
		return nil, ErrExamNotDraft
	}

	questions := make([]model.Question, 0, len(req.Questions))
	for i, q := range req.Questions {
		orderNum := q.OrderNum
		if orderNum == 0 {
			orderNum = i + 1
		}
		questions = append(questions, model.Question{
			ExamID:          examID,
			Text:            q.Text,
			Type:            model.QuestionType(q.Type),
			Marks:           q.Marks,
			Options:         q.Options,
			CorrectOptions:  q.CorrectOptions,
			AcceptedAnswers: q.AcceptedAnswers,
			CorrectValue:    q.CorrectValue,
			Tolerance:       q.Tolerance,
			PartialCredit:   q.PartialCredit,
			OrderNum:        orderNum,
		})
	}

	if err := s.questions.ReplaceAll(ctx, examID, questions); err != nil {
		return nil, fmt.Errorf("replace questions: %w", err)
	}
	return questions, nil
}

// Questions returns the full question set, answer keys included. Admin only.
func (s *ExamService) Questions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	return s.questions.ListByExam(ctx, examID)
}

// Enroll registers candidates for an exam.
func (s *ExamService) Enroll(ctx context.Context, examID uuid.UUID, candidateIDs []int) error {
	if _, err := s.exams.GetByID(ctx, examID); err != nil {
		return fmt.Errorf("get exam: %w", err)
	}
	return s.exams.Enroll(ctx, examID, candidateIDs)
}

// Publish transitions a draft exam to published. Publishing requires at
// least one question and freezes the definition. The candidate payload cache
// is warmed so first logins do not stampede the database.
func (s *ExamService) Publish(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	count, err := s.questions.CountByExam(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}
	if count == 0 {
		return nil, ErrNoQuestions
	}

	won, err := s.exams.TransitionStatus(ctx, id, model.ExamStatusDraft, model.ExamStatusPublished)
	if err != nil {
		return nil, fmt.Errorf("publish exam: %w", err)
	}
	if !won {
		return nil, ErrExamNotDraft
	}

	if err := s.WarmPayload(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Payload prewarm failed")
	}

	s.log.Info().Str("exam_id", id.String()).Msg("Exam published")
	return s.exams.GetByID(ctx, id)
}

// Archive transitions a completed exam to archived.
func (s *ExamService) Archive(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	won, err := s.exams.TransitionStatus(ctx, id, model.ExamStatusCompleted, model.ExamStatusArchived)
	if err != nil {
		return nil, fmt.Errorf("archive exam: %w", err)
	}
	if !won {
		return nil, ErrExamNotCompleted
	}
	s.dropPayload(ctx, id)
	return s.exams.GetByID(ctx, id)
}

// AdvanceLifecycle moves published exams whose window opened to ongoing and
// ongoing exams whose window closed to completed. Guarded transitions make
// overlapping sweeps idempotent.
func (s *ExamService) AdvanceLifecycle(ctx context.Context) (started, completed int, err error) {
	now := s.now()

	published, err := s.exams.ListByStatus(ctx, model.ExamStatusPublished)
	if err != nil {
		return 0, 0, fmt.Errorf("list published: %w", err)
	}
	for i := range published {
		if now.Before(published[i].StartTime) {
			continue
		}
		won, err := s.exams.TransitionStatus(ctx, published[i].ID, model.ExamStatusPublished, model.ExamStatusOngoing)
		if err != nil {
			s.log.Error().Err(err).Str("exam_id", published[i].ID.String()).Msg("Exam start transition failed")
			continue
		}
		if won {
			started++
			s.log.Info().Str("exam_id", published[i].ID.String()).Msg("Exam is now ongoing")
		}
	}

	ongoing, err := s.exams.ListByStatus(ctx, model.ExamStatusOngoing)
	if err != nil {
		return started, 0, fmt.Errorf("list ongoing: %w", err)
	}
	for i := range ongoing {
		if now.Before(ongoing[i].EndTime) {
			continue
		}
		won, err := s.exams.TransitionStatus(ctx, ongoing[i].ID, model.ExamStatusOngoing, model.ExamStatusCompleted)
		if err != nil {
			s.log.Error().Err(err).Str("exam_id", ongoing[i].ID.String()).Msg("Exam complete transition failed")
			continue
		}
		if won {
			completed++
			s.log.Info().Str("exam_id", ongoing[i].ID.String()).Msg("Exam completed")
		}
	}

	return started, completed, nil
}

// Payload returns the candidate-facing exam payload, served from Redis with a
// Postgres fallback that heals the cache.
func (s *ExamService) Payload(ctx context.Context, examID uuid.UUID) (*model.ExamPayload, error) {
	if s.rdb != nil {
		raw, err := s.rdb.Get(ctx, config.CacheKey.ExamPayloadKey(examID.String())).Result()
		if err == nil {
			payload := &model.ExamPayload{}
			if err := json.Unmarshal([]byte(raw), payload); err == nil {
				return payload, nil
			}
			// Poisoned entry: fall through and rebuild.
		} else if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Msg("Payload cache read failed")
		}
	}

	payload, err := s.buildPayload(ctx, examID)
	if err != nil {
		return nil, err
	}
	s.storePayload(ctx, payload)
	return payload, nil
}

// WarmPayload rebuilds and stores the payload cache entry.
func (s *ExamService) WarmPayload(ctx context.Context, examID uuid.UUID) error {
	payload, err := s.buildPayload(ctx, examID)
	if err != nil {
		return err
	}
	s.storePayload(ctx, payload)
	return nil
}

func (s *ExamService) buildPayload(ctx context.Context, examID uuid.UUID) (*model.ExamPayload, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	questions, err := s.questions.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	payload := &model.ExamPayload{
		ExamID:   exam.ID,
		Title:    exam.Title,
		Duration: exam.DurationMinutes,
	}
	for i := range questions {
		payload.Questions = append(payload.Questions, questions[i].Strip())
	}
	return payload, nil
}

func (s *ExamService) storePayload(ctx context.Context, payload *model.ExamPayload) {
	if s.rdb == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	key := config.CacheKey.ExamPayloadKey(payload.ExamID.String())
	if err := s.rdb.Set(ctx, key, data, s.payloadTTL).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Payload cache write failed")
	}
}

func (s *ExamService) dropPayload(ctx context.Context, examID uuid.UUID) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, config.CacheKey.ExamPayloadKey(examID.String())).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Payload cache delete failed")
	}
}
