package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/proctorly/proctor-backend/internal/model"
)

func newExamFixture() (*sessionFixture, *ExamService) {
	f := newSessionFixture()
	es := NewExamService(f.exams, f.questions, nil, time.Hour, zerolog.Nop())
	return f, es
}

func TestPublish(t *testing.T) {
	f, es := newExamFixture()
	exam := f.addExam(func(e *model.Exam) { e.Status = model.ExamStatusDraft })

	published, err := es.Publish(context.Background(), exam.ID)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if published.Status != model.ExamStatusPublished {
		t.Fatalf("expected PUBLISHED, got %s", published.Status)
	}

	// Publishing twice fails: the guarded transition already moved the exam.
	if _, err := es.Publish(context.Background(), exam.ID); !errors.Is(err, ErrExamNotDraft) {
		t.Fatalf("expected ErrExamNotDraft, got %v", err)
	}
}

func TestPublish_RequiresQuestions(t *testing.T) {
	f, es := newExamFixture()
	exam := f.exams.add(&model.Exam{
		Title: "Empty", StartTime: at(9, 0), EndTime: at(11, 0),
		DurationMinutes: 60, Status: model.ExamStatusDraft,
	})

	if _, err := es.Publish(context.Background(), exam.ID); !errors.Is(err, ErrNoQuestions) {
		t.Fatalf("expected ErrNoQuestions, got %v", err)
	}
}

func TestUpdate_DraftOnly(t *testing.T) {
	f, es := newExamFixture()
	exam := f.addExam(nil) // ongoing

	title := "Renamed"
	_, err := es.Update(context.Background(), exam.ID, &model.UpdateExamRequest{Title: title})
	if !errors.Is(err, ErrExamNotDraft) {
		t.Fatalf("expected ErrExamNotDraft, got %v", err)
	}
}

func TestAdvanceLifecycle(t *testing.T) {
	f, es := newExamFixture()
	exam := f.addExam(func(e *model.Exam) { e.Status = model.ExamStatusPublished })

	// Before the window opens, nothing moves.
	es.now = func() time.Time { return at(8, 30) }
	started, completed, err := es.AdvanceLifecycle(context.Background())
	if err != nil || started != 0 || completed != 0 {
		t.Fatalf("expected no transitions, got started=%d completed=%d err=%v", started, completed, err)
	}

	// Window open: published → ongoing.
	es.now = func() time.Time { return at(9, 30) }
	started, _, err = es.AdvanceLifecycle(context.Background())
	if err != nil || started != 1 {
		t.Fatalf("expected 1 started, got %d err=%v", started, err)
	}
	if got, _ := f.exams.GetByID(context.Background(), exam.ID); got.Status != model.ExamStatusOngoing {
		t.Fatalf("expected ONGOING, got %s", got.Status)
	}

	// Window closed: ongoing → completed. Repeat runs are no-ops.
	es.now = func() time.Time { return at(11, 30) }
	_, completed, err = es.AdvanceLifecycle(context.Background())
	if err != nil || completed != 1 {
		t.Fatalf("expected 1 completed, got %d err=%v", completed, err)
	}
	_, completed, _ = es.AdvanceLifecycle(context.Background())
	if completed != 0 {
		t.Fatalf("expected idempotent sweep, got %d", completed)
	}
}

func TestArchive(t *testing.T) {
	f, es := newExamFixture()
	exam := f.addExam(func(e *model.Exam) { e.Status = model.ExamStatusCompleted })

	archived, err := es.Archive(context.Background(), exam.ID)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if archived.Status != model.ExamStatusArchived {
		t.Fatalf("expected ARCHIVED, got %s", archived.Status)
	}

	// Only completed exams archive.
	ongoing := f.addExam(nil)
	if _, err := es.Archive(context.Background(), ongoing.ID); !errors.Is(err, ErrExamNotCompleted) {
		t.Fatalf("expected ErrExamNotCompleted, got %v", err)
	}
}

func TestPayload_StripsAnswerKey(t *testing.T) {
	f, es := newExamFixture()
	exam := f.addExam(nil)

	payload, err := es.Payload(context.Background(), exam.ID)
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.ExamID != exam.ID || len(payload.Questions) != 2 {
		t.Fatalf("bad payload: %+v", payload)
	}
	for _, q := range payload.Questions {
		if q.Text == "" || q.Type == "" {
			t.Fatalf("payload question missing display fields: %+v", q)
		}
	}
}
