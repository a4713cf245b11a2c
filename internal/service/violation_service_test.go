package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/proctorly/proctor-backend/internal/model"
)

func newViolationFixture() (*sessionFixture, *ViolationService) {
	f := newSessionFixture()
	vs := NewViolationService(f.exams, f.sessions, f.svc, f.monitor, nil, zerolog.Nop())
	return f, vs
}

func TestReport_EscalationLadder(t *testing.T) {
	f, vs := newViolationFixture()
	exam := f.addExam(nil) // warn at 3, auto-submit at 5
	f.clock(at(9, 10))

	sess, err := f.svc.Start(context.Background(), exam.ID, 7, "fp-1", "10.0.0.1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	steps := []struct {
		action    model.ViolationActionKind
		remaining int
	}{
		{model.ActionNone, 0},
		{model.ActionNone, 0},
		{model.ActionWarning, 2},
		{model.ActionWarning, 1},
		{model.ActionAutoSubmit, 0},
	}

	for i, step := range steps {
		action, err := vs.Report(context.Background(), sess.Token, &model.ReportViolationRequest{Type: "tab_switch"})
		if err != nil {
			t.Fatalf("report %d: %v", i+1, err)
		}
		if action.Action != step.action {
			t.Fatalf("report %d: expected action %s, got %s", i+1, step.action, action.Action)
		}
		if action.ViolationCount != i+1 {
			t.Fatalf("report %d: expected count %d, got %d", i+1, i+1, action.ViolationCount)
		}
		if action.Remaining != step.remaining {
			t.Fatalf("report %d: expected remaining %d, got %d", i+1, step.remaining, action.Remaining)
		}
	}

	stored := f.sessions.get(sess.ID)
	if stored.Status != model.SessionStatusViolationTerminated {
		t.Fatalf("expected VIOLATION_TERMINATED, got %s", stored.Status)
	}
	sub, err := f.submissions.GetBySession(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("expected submission: %v", err)
	}
	if sub.Status != model.SubmissionStatusViolationSubmitted {
		t.Fatalf("expected VIOLATION_SUBMITTED, got %s", sub.Status)
	}
	if sub.ViolationCount != 5 {
		t.Fatalf("expected violation count 5 on submission, got %d", sub.ViolationCount)
	}

	// The attempt is over; further reports are rejected and nothing changes.
	_, err = vs.Report(context.Background(), sess.Token, &model.ReportViolationRequest{Type: "tab_switch"})
	wantDenial(t, err, model.DenialTimeExpired)
	if got := f.sessions.get(sess.ID); got.ViolationCount != 5 {
		t.Fatalf("terminated session must not accrue violations, got %d", got.ViolationCount)
	}
}

func TestReport_AfterDeadlineExpiresSession(t *testing.T) {
	f, vs := newViolationFixture()
	exam := f.addExam(nil)
	f.clock(at(9, 50)) // deadline 10:50

	sess, err := f.svc.Start(context.Background(), exam.ID, 7, "fp-1", "10.0.0.1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// The report lands past the deadline: the attempt must end as a timeout,
	// and the event must not count.
	f.clock(at(11, 0))
	_, err = vs.Report(context.Background(), sess.Token, &model.ReportViolationRequest{Type: "tab_switch"})
	wantDenial(t, err, model.DenialTimeExpired)

	stored := f.sessions.get(sess.ID)
	if stored.Status != model.SessionStatusExpired {
		t.Fatalf("expected EXPIRED, got %s", stored.Status)
	}
	if stored.ViolationCount != 0 {
		t.Fatalf("late report must not accrue violations, got %d", stored.ViolationCount)
	}
	sub, err := f.submissions.GetBySession(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("expected submission for expired session: %v", err)
	}
	if sub.Status != model.SubmissionStatusAutoSubmitted {
		t.Fatalf("expected AUTO_SUBMITTED, got %s", sub.Status)
	}
}

func TestReport_UnknownTypeClassifiesAsOther(t *testing.T) {
	f, vs := newViolationFixture()
	exam := f.addExam(nil)
	f.clock(at(9, 10))

	sess, err := f.svc.Start(context.Background(), exam.ID, 7, "fp-1", "10.0.0.1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := vs.Report(context.Background(), sess.Token, &model.ReportViolationRequest{Type: "weird_new_thing"}); err != nil {
		t.Fatalf("report: %v", err)
	}

	violations := f.sessions.violations[sess.ID]
	if len(violations) != 1 {
		t.Fatalf("expected one violation, got %d", len(violations))
	}
	if violations[0].Type != model.ViolationOther || violations[0].Severity != model.SeverityLow {
		t.Fatalf("expected other/low, got %s/%s", violations[0].Type, violations[0].Severity)
	}
}

func TestReport_ThresholdsDisabled(t *testing.T) {
	f, vs := newViolationFixture()
	exam := f.addExam(func(e *model.Exam) {
		e.WarnThreshold = 0
		e.SubmitThreshold = 0
	})
	f.clock(at(9, 10))

	sess, err := f.svc.Start(context.Background(), exam.ID, 7, "fp-1", "10.0.0.1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	for i := 0; i < 10; i++ {
		action, err := vs.Report(context.Background(), sess.Token, &model.ReportViolationRequest{Type: "window_blur"})
		if err != nil {
			t.Fatalf("report %d: %v", i+1, err)
		}
		if action.Action != model.ActionNone {
			t.Fatalf("disabled thresholds must never escalate, got %s", action.Action)
		}
	}
	if got := f.sessions.get(sess.ID); got.Status != model.SessionStatusActive {
		t.Fatalf("session must remain ACTIVE, got %s", got.Status)
	}
}
