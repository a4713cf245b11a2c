package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/proctorly/proctor-backend/internal/model"
	"github.com/proctorly/proctor-backend/internal/repository"
)

// In-memory stores backing the service tests. They mirror the repository
// guarantees that matter: guarded transitions, one active session per
// (exam, candidate), and conflict-safe submission creation.

type fakeExams struct {
	mu       sync.Mutex
	exams    map[uuid.UUID]*model.Exam
	enrolled map[uuid.UUID]map[int]bool
}

func newFakeExams() *fakeExams {
	return &fakeExams{
		exams:    make(map[uuid.UUID]*model.Exam),
		enrolled: make(map[uuid.UUID]map[int]bool),
	}
}

func (f *fakeExams) add(e *model.Exam) *model.Exam {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	f.exams[e.ID] = e
	return e
}

func (f *fakeExams) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.exams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *e
	return &cp, nil
}

func (f *fakeExams) IsEnrolled(_ context.Context, examID uuid.UUID, candidateID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enrolled[examID][candidateID], nil
}

func (f *fakeExams) enroll(examID uuid.UUID, candidateID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enrolled[examID] == nil {
		f.enrolled[examID] = make(map[int]bool)
	}
	f.enrolled[examID][candidateID] = true
}

func (f *fakeExams) Create(_ context.Context, e *model.Exam) error {
	f.add(e)
	return nil
}

func (f *fakeExams) Update(_ context.Context, e *model.Exam) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.exams[e.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *e
	f.exams[e.ID] = &cp
	return nil
}

func (f *fakeExams) TransitionStatus(_ context.Context, id uuid.UUID, from, to model.ExamStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.exams[id]
	if !ok || e.Status != from {
		return false, nil
	}
	e.Status = to
	return true, nil
}

func (f *fakeExams) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.exams, id)
	return nil
}

func (f *fakeExams) ListByStatus(_ context.Context, statuses ...model.ExamStatus) ([]model.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Exam
	for _, e := range f.exams {
		for _, st := range statuses {
			if e.Status == st {
				out = append(out, *e)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeExams) ListPaginated(_ context.Context, limit, offset int) ([]model.Exam, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Exam
	for _, e := range f.exams {
		out = append(out, *e)
	}
	return out, len(out), nil
}

func (f *fakeExams) Enroll(_ context.Context, examID uuid.UUID, candidateIDs []int) error {
	for _, id := range candidateIDs {
		f.enroll(examID, id)
	}
	return nil
}

type fakeQuestions struct {
	mu        sync.Mutex
	questions map[uuid.UUID][]model.Question
}

func newFakeQuestions() *fakeQuestions {
	return &fakeQuestions{questions: make(map[uuid.UUID][]model.Question)}
}

func (f *fakeQuestions) add(examID uuid.UUID, qs ...model.Question) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range qs {
		if qs[i].ID == uuid.Nil {
			qs[i].ID = uuid.New()
		}
		qs[i].ExamID = examID
	}
	f.questions[examID] = append(f.questions[examID], qs...)
}

func (f *fakeQuestions) ListByExam(_ context.Context, examID uuid.UUID) ([]model.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Question(nil), f.questions[examID]...), nil
}

func (f *fakeQuestions) ReplaceAll(_ context.Context, examID uuid.UUID, qs []model.Question) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range qs {
		if qs[i].ID == uuid.Nil {
			qs[i].ID = uuid.New()
		}
	}
	f.questions[examID] = qs
	return nil
}

func (f *fakeQuestions) CountByExam(_ context.Context, examID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.questions[examID]), nil
}

type fakeBatches struct {
	mu      sync.Mutex
	batches map[uuid.UUID]*model.Batch
}

func newFakeBatches() *fakeBatches {
	return &fakeBatches{batches: make(map[uuid.UUID]*model.Batch)}
}

func (f *fakeBatches) add(b *model.Batch) *model.Batch {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	f.batches[b.ID] = b
	return b
}

func (f *fakeBatches) CreateAll(_ context.Context, examID uuid.UUID, batches []model.Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, b := range f.batches {
		if b.ExamID == examID {
			delete(f.batches, id)
		}
	}
	for i := range batches {
		b := batches[i]
		if b.ID == uuid.Nil {
			b.ID = uuid.New()
		}
		f.batches[b.ID] = &b
	}
	return nil
}

func (f *fakeBatches) GetByID(_ context.Context, id uuid.UUID) (*model.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBatches) ListByExam(_ context.Context, examID uuid.UUID) ([]model.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Batch
	for _, b := range f.batches {
		if b.ExamID == examID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBatches) FindForCandidate(_ context.Context, examID uuid.UUID, candidateID int) (*model.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.batches {
		if b.ExamID == examID && b.Contains(candidateID) {
			cp := *b
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeBatches) ListDueToActivate(_ context.Context, now time.Time) ([]model.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Batch
	for _, b := range f.batches {
		if (b.Status == model.BatchStatusPending || b.Status == model.BatchStatusQueued) &&
			!b.IsLocked && !b.ScheduledStart.After(now) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBatches) ListDueToComplete(_ context.Context, now time.Time) ([]model.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Batch
	for _, b := range f.batches {
		if b.Status == model.BatchStatusActive && !b.IsLocked && !b.ScheduledEnd.After(now) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBatches) ListUpNext(_ context.Context, now time.Time, horizon time.Duration) ([]model.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Batch
	for _, b := range f.batches {
		if b.Status == model.BatchStatusPending && !b.IsLocked &&
			b.ScheduledStart.After(now) && !b.ScheduledStart.After(now.Add(horizon)) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBatches) MarkActive(_ context.Context, id uuid.UUID, startedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok || b.IsLocked || (b.Status != model.BatchStatusPending && b.Status != model.BatchStatusQueued) {
		return false, nil
	}
	b.Status = model.BatchStatusActive
	b.ActualStart = &startedAt
	return true, nil
}

func (f *fakeBatches) MarkQueued(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok || b.IsLocked || b.Status != model.BatchStatusPending {
		return false, nil
	}
	b.Status = model.BatchStatusQueued
	return true, nil
}

func (f *fakeBatches) CompleteAndLock(_ context.Context, id uuid.UUID, endedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok || b.IsLocked || b.Status != model.BatchStatusActive {
		return false, nil
	}
	b.Status = model.BatchStatusCompleted
	b.ActualEnd = &endedAt
	b.IsLocked = true
	b.LockedAt = &endedAt
	return true, nil
}

func (f *fakeBatches) IncrementCount(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok || b.IsLocked || b.CurrentCount >= b.MaxCapacity {
		return false, nil
	}
	b.CurrentCount++
	return true, nil
}

func (f *fakeBatches) DecrementCount(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.batches[id]; ok && b.CurrentCount > 0 {
		b.CurrentCount--
	}
	return nil
}

func (f *fakeBatches) BoardByExam(_ context.Context, examID uuid.UUID) ([]model.BatchBoardEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.BatchBoardEntry
	for _, b := range f.batches {
		if b.ExamID == examID {
			out = append(out, model.BatchBoardEntry{Batch: *b})
		}
	}
	return out, nil
}

type fakeSessions struct {
	mu         sync.Mutex
	byID       map[uuid.UUID]*model.Session
	answers    map[uuid.UUID]map[uuid.UUID]model.Answer
	violations map[uuid.UUID][]model.Violation
	// createErr is returned by the next Create call, once. It simulates an
	// insert losing the unique-active-session race.
	createErr error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		byID:       make(map[uuid.UUID]*model.Session),
		answers:    make(map[uuid.UUID]map[uuid.UUID]model.Answer),
		violations: make(map[uuid.UUID][]model.Violation),
	}
}

func (f *fakeSessions) Create(_ context.Context, s *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		err := f.createErr
		f.createErr = nil
		return err
	}
	for _, existing := range f.byID {
		if existing.ExamID == s.ExamID && existing.CandidateID == s.CandidateID &&
			existing.Status == model.SessionStatusActive {
			return repository.ErrSessionExists
		}
	}
	s.ID = uuid.New()
	cp := *s
	f.byID[s.ID] = &cp
	return nil
}

func (f *fakeSessions) GetByToken(_ context.Context, token uuid.UUID) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.byID {
		if s.Token == token {
			cp := *s
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeSessions) GetActiveByExamAndCandidate(_ context.Context, examID uuid.UUID, candidateID int) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.byID {
		if s.ExamID == examID && s.CandidateID == candidateID && s.Status == model.SessionStatusActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeSessions) Terminate(_ context.Context, id uuid.UUID, status model.SessionStatus, reason model.SubmitReason, submittedAt time.Time, timeTakenSeconds int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok || s.Status != model.SessionStatusActive {
		return false, nil
	}
	s.Status = status
	s.SubmitReason = &reason
	s.SubmittedAt = &submittedAt
	s.TimeTakenSeconds = &timeTakenSeconds
	return true, nil
}

func (f *fakeSessions) Heartbeat(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.byID[id]; ok {
		s.LastHeartbeat = at
	}
	return nil
}

func (f *fakeSessions) UpsertAnswer(_ context.Context, a *model.Answer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.answers[a.SessionID] == nil {
		f.answers[a.SessionID] = make(map[uuid.UUID]model.Answer)
	}
	f.answers[a.SessionID][a.QuestionID] = *a
	return nil
}

func (f *fakeSessions) ListAnswers(_ context.Context, sessionID uuid.UUID) ([]model.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Answer
	for _, a := range f.answers[sessionID] {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeSessions) AppendViolation(_ context.Context, v *model.Violation) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[v.SessionID]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	if s.Status != model.SessionStatusActive {
		return 0, repository.ErrSessionNotActive
	}
	v.ID = uuid.New()
	v.CreatedAt = time.Now()
	f.violations[v.SessionID] = append(f.violations[v.SessionID], *v)
	s.ViolationCount++
	return s.ViolationCount, nil
}

func (f *fakeSessions) ListActiveByBatch(_ context.Context, batchID uuid.UUID) ([]model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Session
	for _, s := range f.byID {
		if s.BatchID != nil && *s.BatchID == batchID && s.Status == model.SessionStatusActive {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSessions) ListActiveExpired(_ context.Context, now time.Time, limit int) ([]model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Session
	for _, s := range f.byID {
		if s.Status == model.SessionStatusActive && !s.ServerEndTime.After(now) {
			out = append(out, *s)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeSessions) ListActiveByExam(_ context.Context, examID uuid.UUID) ([]model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Session
	for _, s := range f.byID {
		if s.ExamID == examID && s.Status == model.SessionStatusActive {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSessions) get(id uuid.UUID) *model.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.byID[id]
	return &cp
}

type fakeSubmissions struct {
	mu        sync.Mutex
	bySession map[uuid.UUID]*model.Submission
}

func newFakeSubmissions() *fakeSubmissions {
	return &fakeSubmissions{bySession: make(map[uuid.UUID]*model.Submission)}
}

func (f *fakeSubmissions) Create(_ context.Context, s *model.Submission) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.bySession {
		if existing.ExamID == s.ExamID && existing.CandidateID == s.CandidateID {
			cp := *existing
			return &cp, nil
		}
	}
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	cp := *s
	f.bySession[s.SessionID] = &cp
	return s, nil
}

func (f *fakeSubmissions) GetBySession(_ context.Context, sessionID uuid.UUID) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.bySession[sessionID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSubmissions) GetByExamAndCandidate(_ context.Context, examID uuid.UUID, candidateID int) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.bySession {
		if s.ExamID == examID && s.CandidateID == candidateID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type fakeAnswerCache struct {
	mu   sync.Mutex
	data map[string]map[string]string
}

func newFakeAnswerCache() *fakeAnswerCache {
	return &fakeAnswerCache{data: make(map[string]map[string]string)}
}

func (f *fakeAnswerCache) GetAnswers(_ context.Context, token string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.data[token]))
	for k, v := range f.data[token] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeAnswerCache) SetAnswer(_ context.Context, token, questionID, raw string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data[token] == nil {
		f.data[token] = make(map[string]string)
	}
	f.data[token][questionID] = raw
	return nil
}

func (f *fakeAnswerCache) Delete(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, token)
	return nil
}

type fakeMonitor struct {
	mu     sync.Mutex
	events []MonitorEvent
}

func (f *fakeMonitor) Publish(_ context.Context, _ uuid.UUID, event MonitorEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}
