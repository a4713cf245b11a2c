package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/proctorly/proctor-backend/internal/model"
	"github.com/proctorly/proctor-backend/internal/repository"
)

// at returns a fixed-date clock value for deterministic lifecycle tests.
func at(hour, min int) time.Time {
	return time.Date(2026, 3, 14, hour, min, 0, 0, time.UTC)
}

type sessionFixture struct {
	svc         *SessionService
	exams       *fakeExams
	questions   *fakeQuestions
	batches     *fakeBatches
	sessions    *fakeSessions
	submissions *fakeSubmissions
	monitor     *fakeMonitor
}

func newSessionFixture() *sessionFixture {
	f := &sessionFixture{
		exams:       newFakeExams(),
		questions:   newFakeQuestions(),
		batches:     newFakeBatches(),
		sessions:    newFakeSessions(),
		submissions: newFakeSubmissions(),
		monitor:     &fakeMonitor{},
	}
	grader := NewGradingService(f.exams, f.questions, f.sessions, zerolog.Nop())
	f.svc = NewSessionService(f.exams, f.questions, f.batches, f.sessions, f.submissions, grader, nil, f.monitor, zerolog.Nop())
	return f
}

func (f *sessionFixture) clock(now time.Time) {
	f.svc.now = func() time.Time { return now }
}

// addExam creates an ongoing exam with a 09:00–11:00 window and a 60-minute
// attempt duration, plus two auto-gradable questions.
func (f *sessionFixture) addExam(mutate func(*model.Exam)) *model.Exam {
	exam := &model.Exam{
		Title:           "Algebra Midterm",
		StartTime:       at(9, 0),
		EndTime:         at(11, 0),
		DurationMinutes: 60,
		NegativeMarks:   1,
		WarnThreshold:   3,
		SubmitThreshold: 5,
		OpenToAll:       true,
		Status:          model.ExamStatusOngoing,
	}
	if mutate != nil {
		mutate(exam)
	}
	f.exams.add(exam)

	correct := 42.0
	f.questions.add(exam.ID,
		model.Question{Text: "q1", Type: model.QuestionSingleChoice, Marks: 4, Options: []string{"a", "b", "c"}, CorrectOptions: []int{1}, OrderNum: 1},
		model.Question{Text: "q2", Type: model.QuestionNumerical, Marks: 2, CorrectValue: &correct, Tolerance: 0.5, OrderNum: 2},
	)
	return exam
}

func wantDenial(t *testing.T, err error, reason model.DenialReason) {
	t.Helper()
	var denial *model.DenialError
	if !errors.As(err, &denial) {
		t.Fatalf("expected denial %q, got err=%v", reason, err)
	}
	if denial.Reason != reason {
		t.Fatalf("expected denial %q, got %q", reason, denial.Reason)
	}
}

func TestStart_ServerEndTime(t *testing.T) {
	tests := []struct {
		name    string
		loginAt time.Time
		wantEnd time.Time
	}{
		{name: "full duration fits", loginAt: at(9, 50), wantEnd: at(10, 50)},
		{name: "capped at exam end", loginAt: at(10, 30), wantEnd: at(11, 0)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newSessionFixture()
			exam := f.addExam(nil)
			f.clock(tc.loginAt)

			sess, err := f.svc.Start(context.Background(), exam.ID, 7, "fp-1", "10.0.0.1")
			if err != nil {
				t.Fatalf("start: %v", err)
			}
			if !sess.ServerEndTime.Equal(tc.wantEnd) {
				t.Fatalf("expected server end %v, got %v", tc.wantEnd, sess.ServerEndTime)
			}
			if sess.Status != model.SessionStatusActive {
				t.Fatalf("expected ACTIVE, got %s", sess.Status)
			}
			if len(sess.QuestionOrder) != 2 {
				t.Fatalf("expected question order of 2, got %d", len(sess.QuestionOrder))
			}
		})
	}
}

func TestStart_Denials(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.Exam)
		now    time.Time
		want   model.DenialReason
	}{
		{name: "draft exam", mutate: func(e *model.Exam) { e.Status = model.ExamStatusDraft }, now: at(9, 30), want: model.DenialExamNotActive},
		{name: "archived exam", mutate: func(e *model.Exam) { e.Status = model.ExamStatusArchived }, now: at(9, 30), want: model.DenialExamNotActive},
		{name: "before window", now: at(8, 59), want: model.DenialExamNotStarted},
		{name: "at window end", now: at(11, 0), want: model.DenialExamEnded},
		{name: "not enrolled", mutate: func(e *model.Exam) { e.OpenToAll = false }, now: at(9, 30), want: model.DenialNotEnrolled},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newSessionFixture()
			exam := f.addExam(tc.mutate)
			f.clock(tc.now)

			_, err := f.svc.Start(context.Background(), exam.ID, 7, "fp-1", "10.0.0.1")
			wantDenial(t, err, tc.want)
		})
	}
}

func TestStart_UnknownExam(t *testing.T) {
	f := newSessionFixture()
	f.clock(at(9, 30))

	_, err := f.svc.Start(context.Background(), uuid.New(), 7, "fp-1", "10.0.0.1")
	wantDenial(t, err, model.DenialExamNotFound)
}

func TestStart_ResumeSameFingerprint(t *testing.T) {
	f := newSessionFixture()
	exam := f.addExam(nil)
	f.clock(at(9, 30))

	first, err := f.svc.Start(context.Background(), exam.ID, 7, "fp-1", "10.0.0.1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	f.clock(at(9, 45))
	second, err := f.svc.Start(context.Background(), exam.ID, 7, "fp-1", "10.0.0.2")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if second.Token != first.Token {
		t.Fatalf("resume should return the same attempt, got %s vs %s", second.Token, first.Token)
	}
	// The deadline is anchored to the original start, not the resume.
	if !second.ServerEndTime.Equal(at(10, 30)) {
		t.Fatalf("expected original deadline 10:30, got %v", second.ServerEndTime)
	}
}

func TestStart_SecondDeviceRejected(t *testing.T) {
	f := newSessionFixture()
	exam := f.addExam(nil)
	f.clock(at(9, 30))

	first, err := f.svc.Start(context.Background(), exam.ID, 7, "fp-1", "10.0.0.1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err = f.svc.Start(context.Background(), exam.ID, 7, "fp-other", "10.0.0.9")
	wantDenial(t, err, model.DenialSessionExists)

	// The collision itself is recorded against the live session.
	violations := f.sessions.violations[first.ID]
	if len(violations) != 1 || violations[0].Type != model.ViolationMultipleLogin {
		t.Fatalf("expected one multiple_login violation, got %+v", violations)
	}
	if f.sessions.get(first.ID).ViolationCount != 1 {
		t.Fatalf("expected violation count 1")
	}
}

func TestStart_Batching(t *testing.T) {
	t.Run("not in any batch", func(t *testing.T) {
		f := newSessionFixture()
		exam := f.addExam(func(e *model.Exam) { e.BatchingEnabled = true })
		f.clock(at(9, 30))

		_, err := f.svc.Start(context.Background(), exam.ID, 7, "fp-1", "10.0.0.1")
		wantDenial(t, err, model.DenialNotInAnyBatch)
	})

	t.Run("batch not active", func(t *testing.T) {
		f := newSessionFixture()
		exam := f.addExam(func(e *model.Exam) { e.BatchingEnabled = true })
		f.batches.add(&model.Batch{
			ExamID: exam.ID, Number: 1, CandidateIDs: []int{7},
			MaxCapacity: 100, ScheduledStart: at(10, 0), ScheduledEnd: at(11, 0),
			Status: model.BatchStatusPending,
		})
		f.clock(at(9, 30))

		_, err := f.svc.Start(context.Background(), exam.ID, 7, "fp-1", "10.0.0.1")
		wantDenial(t, err, model.DenialBatchNotActive)
	})

	t.Run("batch at capacity", func(t *testing.T) {
		f := newSessionFixture()
		exam := f.addExam(func(e *model.Exam) { e.BatchingEnabled = true })
		f.batches.add(&model.Batch{
			ExamID: exam.ID, Number: 1, CandidateIDs: []int{7},
			MaxCapacity: 500, CurrentCount: 500,
			ScheduledStart: at(9, 0), ScheduledEnd: at(10, 0),
			Status: model.BatchStatusActive,
		})
		f.clock(at(9, 30))

		_, err := f.svc.Start(context.Background(), exam.ID, 7, "fp-1", "10.0.0.1")
		wantDenial(t, err, model.DenialBatchFull)
	})

	t.Run("seat released when create loses the race", func(t *testing.T) {
		f := newSessionFixture()
		exam := f.addExam(func(e *model.Exam) { e.BatchingEnabled = true })
		batch := f.batches.add(&model.Batch{
			ExamID: exam.ID, Number: 1, CandidateIDs: []int{7},
			MaxCapacity:    100,
			ScheduledStart: at(9, 0), ScheduledEnd: at(10, 0),
			Status: model.BatchStatusActive,
		})
		f.clock(at(9, 30))

		f.sessions.createErr = repository.ErrSessionExists
		_, err := f.svc.Start(context.Background(), exam.ID, 7, "fp-1", "10.0.0.1")
		wantDenial(t, err, model.DenialSessionExists)

		if got, _ := f.batches.GetByID(context.Background(), batch.ID); got.CurrentCount != 0 {
			t.Fatalf("lost race must release the claimed seat, count=%d", got.CurrentCount)
		}

		// The seat is free again for the retry.
		if _, err := f.svc.Start(context.Background(), exam.ID, 7, "fp-1", "10.0.0.1"); err != nil {
			t.Fatalf("retry: %v", err)
		}
		if got, _ := f.batches.GetByID(context.Background(), batch.ID); got.CurrentCount != 1 {
			t.Fatalf("expected one seat claimed after retry, count=%d", got.CurrentCount)
		}
	})

	t.Run("deadline bound by batch window", func(t *testing.T) {
		f := newSessionFixture()
		exam := f.addExam(func(e *model.Exam) { e.BatchingEnabled = true })
		batch := f.batches.add(&model.Batch{
			ExamID: exam.ID, Number: 1, CandidateIDs: []int{7},
			MaxCapacity:    100,
			ScheduledStart: at(9, 0), ScheduledEnd: at(10, 0),
			Status: model.BatchStatusActive,
		})
		f.clock(at(9, 30))

		sess, err := f.svc.Start(context.Background(), exam.ID, 7, "fp-1", "10.0.0.1")
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		if !sess.ServerEndTime.Equal(at(10, 0)) {
			t.Fatalf("expected batch-bound deadline 10:00, got %v", sess.ServerEndTime)
		}
		if got, _ := f.batches.GetByID(context.Background(), batch.ID); got.CurrentCount != 1 {
			t.Fatalf("expected seat claimed, count=%d", got.CurrentCount)
		}
	})
}

func TestStart_AttemptAlreadyConsumed(t *testing.T) {
	f := newSessionFixture()
	exam := f.addExam(nil)
	f.clock(at(9, 10))

	sess, err := f.svc.Start(context.Background(), exam.ID, 7, "fp-1", "10.0.0.1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.svc.Submit(context.Background(), sess.Token, model.SubmitReasonManual); err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err = f.svc.Start(context.Background(), exam.ID, 7, "fp-1", "10.0.0.1")
	wantDenial(t, err, model.DenialTimeExpired)
}

func TestSaveAnswer(t *testing.T) {
	f := newSessionFixture()
	exam := f.addExam(nil)
	f.clock(at(9, 10))

	sess, err := f.svc.Start(context.Background(), exam.ID, 7, "fp-1", "10.0.0.1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	qid := sess.QuestionOrder[0]
	err = f.svc.SaveAnswer(context.Background(), sess.Token, qid, &model.SaveAnswerRequest{
		SelectedOptions: []int{1},
		Visited:         true,
	})
	if err != nil {
		t.Fatalf("save answer: %v", err)
	}

	answers, _ := f.sessions.ListAnswers(context.Background(), sess.ID)
	if len(answers) != 1 || answers[0].QuestionID != qid {
		t.Fatalf("expected one stored answer, got %+v", answers)
	}
}

func TestSaveAnswer_AfterDeadlineAutoSubmits(t *testing.T) {
	f := newSessionFixture()
	exam := f.addExam(nil)
	f.clock(at(9, 50))

	sess, err := f.svc.Start(context.Background(), exam.ID, 7, "fp-1", "10.0.0.1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// The save lands past the 10:50 deadline: it must not persist, and the
	// attempt is finalized as a timeout.
	f.clock(at(10, 51))
	err = f.svc.SaveAnswer(context.Background(), sess.Token, sess.QuestionOrder[0], &model.SaveAnswerRequest{
		SelectedOptions: []int{1},
	})
	wantDenial(t, err, model.DenialTimeExpired)

	stored := f.sessions.get(sess.ID)
	if stored.Status != model.SessionStatusExpired {
		t.Fatalf("expected EXPIRED, got %s", stored.Status)
	}
	sub, err := f.submissions.GetBySession(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("expected submission created, got %v", err)
	}
	if sub.Status != model.SubmissionStatusAutoSubmitted {
		t.Fatalf("expected AUTO_SUBMITTED, got %s", sub.Status)
	}
	if answers, _ := f.sessions.ListAnswers(context.Background(), sess.ID); len(answers) != 0 {
		t.Fatalf("late answer must not persist, got %+v", answers)
	}
}

func TestSubmit_GradesAnswers(t *testing.T) {
	f := newSessionFixture()
	exam := f.addExam(nil)
	f.clock(at(9, 10))

	sess, err := f.svc.Start(context.Background(), exam.ID, 7, "fp-1", "10.0.0.1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	questions, _ := f.questions.ListByExam(context.Background(), exam.ID)
	answer := 42.3
	if err := f.svc.SaveAnswer(context.Background(), sess.Token, questions[0].ID, &model.SaveAnswerRequest{SelectedOptions: []int{1}}); err != nil {
		t.Fatalf("save q1: %v", err)
	}
	if err := f.svc.SaveAnswer(context.Background(), sess.Token, questions[1].ID, &model.SaveAnswerRequest{NumericResponse: &answer}); err != nil {
		t.Fatalf("save q2: %v", err)
	}

	f.clock(at(9, 40))
	sub, err := f.svc.Submit(context.Background(), sess.Token, model.SubmitReasonManual)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if sub.MarksObtained != 6 || sub.TotalMarks != 6 {
		t.Fatalf("expected 6/6, got %v/%v", sub.MarksObtained, sub.TotalMarks)
	}
	if sub.CorrectCount != 2 || sub.WrongCount != 0 {
		t.Fatalf("bad partition: %+v", sub)
	}
	if sub.Status != model.SubmissionStatusSubmitted {
		t.Fatalf("expected SUBMITTED, got %s", sub.Status)
	}
	if got := f.sessions.get(sess.ID); got.TimeTakenSeconds == nil || *got.TimeTakenSeconds != 1800 {
		t.Fatalf("expected time taken 1800s, got %+v", got.TimeTakenSeconds)
	}
}

func TestSubmit_Idempotent(t *testing.T) {
	f := newSessionFixture()
	exam := f.addExam(nil)
	f.clock(at(9, 10))

	sess, err := f.svc.Start(context.Background(), exam.ID, 7, "fp-1", "10.0.0.1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	first, err := f.svc.Submit(context.Background(), sess.Token, model.SubmitReasonManual)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := f.svc.Submit(context.Background(), sess.Token, model.SubmitReasonManual)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("repeated submit must return the same submission, got %s vs %s", second.ID, first.ID)
	}
}

func TestSubmit_ManualAfterDeadlineBecomesTimeout(t *testing.T) {
	f := newSessionFixture()
	exam := f.addExam(nil)
	f.clock(at(9, 50))

	sess, err := f.svc.Start(context.Background(), exam.ID, 7, "fp-1", "10.0.0.1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	f.clock(at(10, 55))
	sub, err := f.svc.Submit(context.Background(), sess.Token, model.SubmitReasonManual)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.Status != model.SubmissionStatusAutoSubmitted {
		t.Fatalf("expected AUTO_SUBMITTED, got %s", sub.Status)
	}
	if got := f.sessions.get(sess.ID); got.Status != model.SessionStatusExpired {
		t.Fatalf("expected EXPIRED, got %s", got.Status)
	}
	// Time taken is clamped to the attempt window.
	if got := f.sessions.get(sess.ID); *got.TimeTakenSeconds != 3600 {
		t.Fatalf("expected 3600s, got %d", *got.TimeTakenSeconds)
	}
}

func TestHeartbeat(t *testing.T) {
	f := newSessionFixture()
	exam := f.addExam(nil)
	f.clock(at(9, 50))

	sess, err := f.svc.Start(context.Background(), exam.ID, 7, "fp-1", "10.0.0.1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	f.clock(at(10, 20))
	remaining, err := f.svc.Heartbeat(context.Background(), sess.Token)
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if remaining != 30*60 {
		t.Fatalf("expected 1800s remaining, got %v", remaining)
	}

	f.clock(at(10, 51))
	_, err = f.svc.Heartbeat(context.Background(), sess.Token)
	wantDenial(t, err, model.DenialTimeExpired)
	if got := f.sessions.get(sess.ID); got.Status != model.SessionStatusExpired {
		t.Fatalf("expected EXPIRED after heartbeat past deadline, got %s", got.Status)
	}
}

func TestState_LazyExpiry(t *testing.T) {
	f := newSessionFixture()
	exam := f.addExam(nil)
	f.clock(at(9, 50))

	sess, err := f.svc.Start(context.Background(), exam.ID, 7, "fp-1", "10.0.0.1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	f.clock(at(10, 10))
	state, err := f.svc.State(context.Background(), sess.Token)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.RemainingTime != 40*60 {
		t.Fatalf("expected 2400s remaining, got %v", state.RemainingTime)
	}
	if len(state.Questions) != 2 {
		t.Fatalf("expected stripped questions, got %d", len(state.Questions))
	}

	f.clock(at(11, 30))
	state, err = f.svc.State(context.Background(), sess.Token)
	if err != nil {
		t.Fatalf("state after expiry: %v", err)
	}
	if state.Session.Status != model.SessionStatusExpired {
		t.Fatalf("expected EXPIRED, got %s", state.Session.Status)
	}
	if state.RemainingTime != 0 {
		t.Fatalf("expected no remaining time, got %v", state.RemainingTime)
	}
}

func TestState_AnswerCache(t *testing.T) {
	f := newSessionFixture()
	c := newFakeAnswerCache()
	f.svc.cache = c
	exam := f.addExam(nil)
	f.clock(at(9, 10))

	sess, err := f.svc.Start(context.Background(), exam.ID, 7, "fp-1", "10.0.0.1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	qid := sess.QuestionOrder[0]
	if err := f.svc.SaveAnswer(context.Background(), sess.Token, qid, &model.SaveAnswerRequest{SelectedOptions: []int{1}}); err != nil {
		t.Fatalf("save answer: %v", err)
	}

	// The write-through populated the cache. Drop the store rows to prove the
	// state read is served from it.
	delete(f.sessions.answers, sess.ID)
	state, err := f.svc.State(context.Background(), sess.Token)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if len(state.Answers) != 1 || state.Answers[0].QuestionID != qid {
		t.Fatalf("expected cached answer for %s, got %+v", qid, state.Answers)
	}

	// A corrupt cache entry falls back to the store and re-warms the cache.
	c.data[sess.Token.String()][qid.String()] = "{not json"
	if err := f.sessions.UpsertAnswer(context.Background(), &model.Answer{
		SessionID: sess.ID, QuestionID: qid, SelectedOptions: []int{1},
	}); err != nil {
		t.Fatalf("restore answer: %v", err)
	}
	state, err = f.svc.State(context.Background(), sess.Token)
	if err != nil {
		t.Fatalf("state after corrupt cache: %v", err)
	}
	if len(state.Answers) != 1 || state.Answers[0].QuestionID != qid {
		t.Fatalf("expected store fallback, got %+v", state.Answers)
	}
	var rewarmed model.Answer
	if err := json.Unmarshal([]byte(c.data[sess.Token.String()][qid.String()]), &rewarmed); err != nil {
		t.Fatalf("expected cache re-warmed with valid entry: %v", err)
	}
	if rewarmed.QuestionID != qid {
		t.Fatalf("re-warmed entry holds wrong question, got %s", rewarmed.QuestionID)
	}
}

func TestExpireOverdue(t *testing.T) {
	f := newSessionFixture()
	exam := f.addExam(nil)

	f.clock(at(9, 10))
	overdueA, _ := f.svc.Start(context.Background(), exam.ID, 1, "fp-a", "10.0.0.1")
	overdueB, _ := f.svc.Start(context.Background(), exam.ID, 2, "fp-b", "10.0.0.2")
	f.clock(at(10, 40))
	live, _ := f.svc.Start(context.Background(), exam.ID, 3, "fp-c", "10.0.0.3")

	// 10:45: A and B (deadline 10:10) are overdue, C (deadline 11:00) is not.
	f.clock(at(10, 45))
	if n := f.svc.ExpireOverdue(context.Background(), 100); n != 2 {
		t.Fatalf("expected 2 expired, got %d", n)
	}

	for _, s := range []*model.Session{overdueA, overdueB} {
		if got := f.sessions.get(s.ID); got.Status != model.SessionStatusExpired {
			t.Fatalf("expected EXPIRED, got %s", got.Status)
		}
		if _, err := f.submissions.GetBySession(context.Background(), s.ID); err != nil {
			t.Fatalf("expected submission for expired session: %v", err)
		}
	}
	if got := f.sessions.get(live.ID); got.Status != model.SessionStatusActive {
		t.Fatalf("live session must stay ACTIVE, got %s", got.Status)
	}

	// Second sweep is a no-op.
	if n := f.svc.ExpireOverdue(context.Background(), 100); n != 0 {
		t.Fatalf("expected idempotent sweep, got %d", n)
	}
}
