package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/proctorly/proctor-backend/internal/cache"
	"github.com/proctorly/proctor-backend/internal/model"
	"github.com/proctorly/proctor-backend/internal/repository"
)

// ExamStore is the exam access the session engine needs.
type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	IsEnrolled(ctx context.Context, examID uuid.UUID, candidateID int) (bool, error)
}

// QuestionStore loads an exam's question set.
type QuestionStore interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// BatchStore is the batch access the session engine needs.
type BatchStore interface {
	FindForCandidate(ctx context.Context, examID uuid.UUID, candidateID int) (*model.Batch, error)
	IncrementCount(ctx context.Context, id uuid.UUID) (bool, error)
	DecrementCount(ctx context.Context, id uuid.UUID) error
}

// SessionStore is the attempt persistence surface.
type SessionStore interface {
	Create(ctx context.Context, s *model.Session) error
	GetByToken(ctx context.Context, token uuid.UUID) (*model.Session, error)
	GetActiveByExamAndCandidate(ctx context.Context, examID uuid.UUID, candidateID int) (*model.Session, error)
	Terminate(ctx context.Context, id uuid.UUID, status model.SessionStatus, reason model.SubmitReason, submittedAt time.Time, timeTakenSeconds int) (bool, error)
	Heartbeat(ctx context.Context, id uuid.UUID, at time.Time) error
	UpsertAnswer(ctx context.Context, a *model.Answer) error
	ListAnswers(ctx context.Context, sessionID uuid.UUID) ([]model.Answer, error)
	AppendViolation(ctx context.Context, v *model.Violation) (int, error)
	ListActiveByBatch(ctx context.Context, batchID uuid.UUID) ([]model.Session, error)
	ListActiveExpired(ctx context.Context, now time.Time, limit int) ([]model.Session, error)
}

// SubmissionStore persists graded submissions.
type SubmissionStore interface {
	Create(ctx context.Context, s *model.Submission) (*model.Submission, error)
	GetBySession(ctx context.Context, sessionID uuid.UUID) (*model.Submission, error)
	GetByExamAndCandidate(ctx context.Context, examID uuid.UUID, candidateID int) (*model.Submission, error)
}

// EventPublisher pushes live monitor events. Implementations must be
// best-effort: a failed publish never fails the operation that produced it.
type EventPublisher interface {
	Publish(ctx context.Context, examID uuid.UUID, event MonitorEvent)
}

// ErrSessionNotFound is returned for unknown session tokens.
var ErrSessionNotFound = errors.New("session not found")

// SessionService runs the attempt lifecycle: eligibility gate, timed state
// machine, answer persistence, and the submit pipeline. All deadline checks
// use the server clock only.
type SessionService struct {
	exams       ExamStore
	questions   QuestionStore
	batches     BatchStore
	sessions    SessionStore
	submissions SubmissionStore
	grader      *GradingService
	cache       cache.SessionCache
	monitor     EventPublisher
	log         zerolog.Logger

	// now is the injected clock. All lifecycle decisions flow through it.
	now func() time.Time
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	exams ExamStore,
	questions QuestionStore,
	batches BatchStore,
	sessions SessionStore,
	submissions SubmissionStore,
	grader *GradingService,
	sessionCache cache.SessionCache,
	monitor EventPublisher,
	log zerolog.Logger,
) *SessionService {
	if sessionCache == nil {
		sessionCache = cache.Noop{}
	}
	return &SessionService{
		exams:       exams,
		questions:   questions,
		batches:     batches,
		sessions:    sessions,
		submissions: submissions,
		grader:      grader,
		cache:       sessionCache,
		monitor:     monitor,
		log:         log.With().Str("component", "session_service").Logger(),
		now:         time.Now,
	}
}

// Start runs the eligibility gate and either resumes the candidate's active
// attempt or creates a fresh one. Denials come back as *model.DenialError
// with a stable reason code; nothing is mutated on denial except the
// multiple_login violation recorded before session_exists.
func (s *SessionService) Start(ctx context.Context, examID uuid.UUID, candidateID int, fingerprint, ipAddress string) (*model.Session, error) {
	now := s.now()

	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.Deny(model.DenialExamNotFound)
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}

	if !exam.Joinable() {
		return nil, model.Deny(model.DenialExamNotActive)
	}
	if now.Before(exam.StartTime) {
		return nil, model.Deny(model.DenialExamNotStarted)
	}
	if !now.Before(exam.EndTime) {
		return nil, model.Deny(model.DenialExamEnded)
	}

	if !exam.OpenToAll {
		enrolled, err := s.exams.IsEnrolled(ctx, examID, candidateID)
		if err != nil {
			return nil, fmt.Errorf("check enrollment: %w", err)
		}
		if !enrolled {
			return nil, model.Deny(model.DenialNotEnrolled)
		}
	}

	var batch *model.Batch
	if exam.BatchingEnabled {
		batch, err = s.batches.FindForCandidate(ctx, examID, candidateID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, model.Deny(model.DenialNotInAnyBatch)
			}
			return nil, fmt.Errorf("find batch: %w", err)
		}
		if batch.Status != model.BatchStatusActive {
			return nil, model.Deny(model.DenialBatchNotActive)
		}
	}

	// Resume path: at most one active session may exist per (exam, candidate).
	existing, err := s.sessions.GetActiveByExamAndCandidate(ctx, examID, candidateID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get active session: %w", err)
	}
	if existing != nil {
		if existing.Expired(now) {
			if _, err := s.finish(ctx, existing, model.SubmitReasonAutoTimeout); err != nil {
				return nil, err
			}
			return nil, model.Deny(model.DenialTimeExpired)
		}
		if existing.Fingerprint == fingerprint {
			return existing, nil
		}
		// Another device is holding the attempt. The login is rejected, and the
		// collision itself is an integrity event on the live session.
		v := &model.Violation{
			SessionID: existing.ID,
			Type:      model.ViolationMultipleLogin,
			Severity:  model.SeverityFor(model.ViolationMultipleLogin),
			Details:   fmt.Sprintf("login attempt from ip %s", ipAddress),
		}
		if _, err := s.sessions.AppendViolation(ctx, v); err != nil {
			s.log.Error().Err(err).Str("session_id", existing.ID.String()).Msg("Failed to record multiple_login violation")
		}
		return nil, model.Deny(model.DenialSessionExists)
	}

	// The attempt is consumed once a final submission exists.
	if _, err := s.submissions.GetByExamAndCandidate(ctx, examID, candidateID); err == nil {
		return nil, model.Deny(model.DenialTimeExpired)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check submission: %w", err)
	}

	questions, err := s.questions.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	order := make([]uuid.UUID, len(questions))
	for i := range questions {
		order[i] = questions[i].ID
	}
	if exam.RandomizeOrder {
		rand.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	serverEnd := exam.AttemptEndTime(now)
	var batchID *uuid.UUID
	if batch != nil {
		// The batch window binds harder than the personal clock.
		if batch.ScheduledEnd.Before(serverEnd) {
			serverEnd = batch.ScheduledEnd
		}
		ok, err := s.batches.IncrementCount(ctx, batch.ID)
		if err != nil {
			return nil, fmt.Errorf("claim batch seat: %w", err)
		}
		if !ok {
			return nil, model.Deny(model.DenialBatchFull)
		}
		batchID = &batch.ID
	}

	sess := &model.Session{
		Token:         uuid.New(),
		ExamID:        examID,
		CandidateID:   candidateID,
		BatchID:       batchID,
		Fingerprint:   fingerprint,
		IPAddress:     ipAddress,
		StartedAt:     now,
		ServerEndTime: serverEnd,
		QuestionOrder: order,
		LastHeartbeat: now,
		Status:        model.SessionStatusActive,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		// The seat was claimed before the insert; release it so a lost race or
		// a failed insert cannot shrink the batch's effective capacity.
		if batchID != nil {
			if derr := s.batches.DecrementCount(ctx, *batchID); derr != nil {
				s.log.Error().Err(derr).Str("batch_id", batchID.String()).Msg("Failed to release batch seat")
			}
		}
		if errors.Is(err, repository.ErrSessionExists) {
			return nil, model.Deny(model.DenialSessionExists)
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.log.Info().
		Str("session_id", sess.ID.String()).
		Str("exam_id", examID.String()).
		Int("candidate_id", candidateID).
		Time("server_end_time", serverEnd).
		Msg("Session started")

	s.publish(ctx, examID, MonitorEvent{
		Kind:        MonitorSessionStarted,
		SessionID:   sess.ID,
		CandidateID: candidateID,
	})
	return sess, nil
}

// State returns the candidate-facing view of an attempt. A session whose
// deadline already passed is finalized lazily before the state is built, so
// a client polling after expiry observes the terminal status.
func (s *SessionService) State(ctx context.Context, token uuid.UUID) (*model.SessionState, error) {
	sess, err := s.getSession(ctx, token)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if sess.Status == model.SessionStatusActive && sess.Expired(now) {
		if _, err := s.finish(ctx, sess, model.SubmitReasonAutoTimeout); err != nil {
			return nil, err
		}
	}

	state := &model.SessionState{
		Session:       sess,
		RemainingTime: sess.RemainingTime(now),
	}
	if sess.Status.Terminal() {
		return state, nil
	}

	questions, err := s.questions.ListByExam(ctx, sess.ExamID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	byID := make(map[uuid.UUID]*model.Question, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}
	for _, qid := range sess.QuestionOrder {
		if q, ok := byID[qid]; ok {
			state.Questions = append(state.Questions, q.Strip())
		}
	}

	state.Answers, err = s.loadAnswers(ctx, sess)
	if err != nil {
		return nil, err
	}
	return state, nil
}

// loadAnswers serves the live answer state from the cache when it has one,
// falling back to the store and re-warming the cache from the authoritative
// rows. A cache miss or a corrupt entry is self-healing, never an error.
func (s *SessionService) loadAnswers(ctx context.Context, sess *model.Session) ([]model.Answer, error) {
	if cached, err := s.cache.GetAnswers(ctx, sess.Token.String()); err == nil && len(cached) > 0 {
		answers := make([]model.Answer, 0, len(cached))
		for _, raw := range cached {
			var a model.Answer
			if json.Unmarshal([]byte(raw), &a) != nil {
				answers = nil
				break
			}
			answers = append(answers, a)
		}
		if answers != nil {
			return answers, nil
		}
	}

	answers, err := s.sessions.ListAnswers(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	for i := range answers {
		raw, err := json.Marshal(&answers[i])
		if err != nil {
			continue
		}
		if err := s.cache.SetAnswer(ctx, sess.Token.String(), answers[i].QuestionID.String(), string(raw)); err != nil {
			s.log.Debug().Err(err).Msg("Answer cache warm failed")
			break
		}
	}
	return answers, nil
}

// SaveAnswer upserts one answer. A save that arrives after the deadline does
// not persist; it finalizes the attempt instead and reports time_expired.
func (s *SessionService) SaveAnswer(ctx context.Context, token, questionID uuid.UUID, req *model.SaveAnswerRequest) error {
	sess, err := s.getSession(ctx, token)
	if err != nil {
		return err
	}

	if sess.Status.Terminal() {
		return model.Deny(model.DenialTimeExpired)
	}
	if sess.Expired(s.now()) {
		if _, err := s.finish(ctx, sess, model.SubmitReasonAutoTimeout); err != nil {
			return err
		}
		return model.Deny(model.DenialTimeExpired)
	}

	if !containsUUID(sess.QuestionOrder, questionID) {
		return pgx.ErrNoRows
	}

	answeredAt := s.now()
	answer := &model.Answer{
		SessionID:       sess.ID,
		QuestionID:      questionID,
		SelectedOptions: req.SelectedOptions,
		TextResponse:    req.TextResponse,
		NumericResponse: req.NumericResponse,
		Visited:         req.Visited,
		MarkedForReview: req.MarkedForReview,
		TimeSpentSecs:   req.TimeSpentSecs,
		AnsweredAt:      &answeredAt,
	}
	if err := s.sessions.UpsertAnswer(ctx, answer); err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}

	// Best-effort write-through for fast reload; Postgres stays authoritative.
	if raw, err := json.Marshal(answer); err == nil {
		if err := s.cache.SetAnswer(ctx, sess.Token.String(), questionID.String(), string(raw)); err != nil {
			s.log.Debug().Err(err).Msg("Answer cache write failed")
		}
	}
	return nil
}

// Heartbeat refreshes liveness and reports the remaining seconds. Expiry is
// detected here too, so idle clients converge on the terminal state.
func (s *SessionService) Heartbeat(ctx context.Context, token uuid.UUID) (float64, error) {
	sess, err := s.getSession(ctx, token)
	if err != nil {
		return 0, err
	}

	now := s.now()
	if sess.Status.Terminal() {
		return 0, model.Deny(model.DenialTimeExpired)
	}
	if sess.Expired(now) {
		if _, err := s.finish(ctx, sess, model.SubmitReasonAutoTimeout); err != nil {
			return 0, err
		}
		return 0, model.Deny(model.DenialTimeExpired)
	}

	if err := s.sessions.Heartbeat(ctx, sess.ID, now); err != nil {
		return 0, fmt.Errorf("heartbeat: %w", err)
	}
	return sess.RemainingTime(now), nil
}

// Submit ends the attempt and produces the graded submission. Termination
// outranks scoring: the session is moved to its terminal status first, and a
// grading failure degrades to a zero-score submission flagged for regrade
// rather than leaving the attempt open. Submit is idempotent; repeated calls
// return the already-created submission.
func (s *SessionService) Submit(ctx context.Context, token uuid.UUID, reason model.SubmitReason) (*model.Submission, error) {
	sess, err := s.getSession(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, sess, reason)
}

// ForceSubmitBatch submits every still-active session of a closing batch.
// Already-submitted sessions are untouched. Errors are logged per session so
// one failure cannot strand the rest of the batch.
func (s *SessionService) ForceSubmitBatch(ctx context.Context, batchID uuid.UUID) int {
	sessions, err := s.sessions.ListActiveByBatch(ctx, batchID)
	if err != nil {
		s.log.Error().Err(err).Str("batch_id", batchID.String()).Msg("Failed to list batch sessions")
		return 0
	}

	submitted := 0
	for i := range sessions {
		if _, err := s.finish(ctx, &sessions[i], model.SubmitReasonBatchClosure); err != nil {
			s.log.Error().Err(err).Str("session_id", sessions[i].ID.String()).Msg("Batch force submit failed")
			continue
		}
		submitted++
	}
	return submitted
}

// ExpireOverdue finalizes active sessions whose deadline has passed. The
// background sweep calls this on an interval; clients hitting the lazy checks
// first is fine, the terminate guard keeps both paths idempotent.
func (s *SessionService) ExpireOverdue(ctx context.Context, limit int) int {
	sessions, err := s.sessions.ListActiveExpired(ctx, s.now(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list expired sessions")
		return 0
	}

	expired := 0
	for i := range sessions {
		if _, err := s.finish(ctx, &sessions[i], model.SubmitReasonAutoTimeout); err != nil {
			s.log.Error().Err(err).Str("session_id", sessions[i].ID.String()).Msg("Expiry finalize failed")
			continue
		}
		expired++
	}
	return expired
}

// finish is the single submit pipeline. Every terminal transition, whatever
// its trigger, goes through here.
func (s *SessionService) finish(ctx context.Context, sess *model.Session, reason model.SubmitReason) (*model.Submission, error) {
	if sess.Status.Terminal() {
		return s.existingSubmission(ctx, sess)
	}

	now := s.now()
	// A manual submit that lands after the deadline is recorded as a timeout.
	if reason == model.SubmitReasonManual && sess.Expired(now) {
		reason = model.SubmitReasonAutoTimeout
	}

	submittedAt := now
	if submittedAt.After(sess.ServerEndTime) {
		submittedAt = sess.ServerEndTime
	}
	timeTaken := int(submittedAt.Sub(sess.StartedAt).Seconds())

	status := model.SessionStatusFor(reason)
	won, err := s.sessions.Terminate(ctx, sess.ID, status, reason, submittedAt, timeTaken)
	if err != nil {
		return nil, fmt.Errorf("terminate session: %w", err)
	}
	if !won {
		// A concurrent path already terminated the session.
		return s.existingSubmission(ctx, sess)
	}

	sess.Status = status
	sess.SubmitReason = &reason
	sess.SubmittedAt = &submittedAt
	sess.TimeTakenSeconds = &timeTaken

	sub := s.grader.BuildSubmission(ctx, sess, reason)
	created, err := s.submissions.Create(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("create submission: %w", err)
	}

	if err := s.cache.Delete(ctx, sess.Token.String()); err != nil {
		s.log.Debug().Err(err).Msg("Answer cache delete failed")
	}

	s.log.Info().
		Str("session_id", sess.ID.String()).
		Str("reason", string(reason)).
		Str("status", string(status)).
		Float64("marks", created.MarksObtained).
		Msg("Session submitted")

	s.publish(ctx, sess.ExamID, MonitorEvent{
		Kind:        MonitorSessionSubmitted,
		SessionID:   sess.ID,
		CandidateID: sess.CandidateID,
		Reason:      string(reason),
	})
	return created, nil
}

// existingSubmission resolves the idempotent-submit read path.
func (s *SessionService) existingSubmission(ctx context.Context, sess *model.Session) (*model.Submission, error) {
	sub, err := s.submissions.GetBySession(ctx, sess.ID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	// Terminal session without a submission: a previous submit crashed between
	// terminate and create. Backfill now; Create is conflict-safe.
	reason := model.SubmitReasonManual
	if sess.SubmitReason != nil {
		reason = *sess.SubmitReason
	}
	sub = s.grader.BuildSubmission(ctx, sess, reason)
	return s.submissions.Create(ctx, sub)
}

func (s *SessionService) getSession(ctx context.Context, token uuid.UUID) (*model.Session, error) {
	sess, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *SessionService) publish(ctx context.Context, examID uuid.UUID, ev MonitorEvent) {
	if s.monitor != nil {
		s.monitor.Publish(ctx, examID, ev)
	}
}

func containsUUID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
