package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/proctorly/proctor-backend/internal/config"
	"github.com/proctorly/proctor-backend/internal/model"
)

// ViolationService records integrity events and enforces the escalation
// policy: silent below the warn threshold, warnings up to the submit
// threshold, auto-submit at the submit threshold.
type ViolationService struct {
	exams    ExamStore
	sessions SessionStore
	// submitter ends the attempt when the submit threshold is crossed.
	submitter *SessionService
	monitor   EventPublisher
	rdb       *redis.Client
	log       zerolog.Logger
}

// NewViolationService creates a new ViolationService.
func NewViolationService(
	exams ExamStore,
	sessions SessionStore,
	submitter *SessionService,
	monitor EventPublisher,
	rdb *redis.Client,
	log zerolog.Logger,
) *ViolationService {
	return &ViolationService{
		exams:     exams,
		sessions:  sessions,
		submitter: submitter,
		monitor:   monitor,
		rdb:       rdb,
		log:       log.With().Str("component", "violation_service").Logger(),
	}
}

// Report records one violation against the session and returns the resulting
// action. The increment and the threshold decision are atomic: concurrent
// reports serialize on the session row, so exactly one of them crosses the
// submit threshold and triggers the auto-submit.
func (s *ViolationService) Report(ctx context.Context, token uuid.UUID, req *model.ReportViolationRequest) (*model.ViolationAction, error) {
	sess, err := s.submitter.getSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() {
		return nil, model.Deny(model.DenialTimeExpired)
	}
	// A report landing past the deadline is the lazy-expiry trigger, not a
	// countable violation: the attempt ends as a timeout, never as an
	// escalation.
	if sess.Expired(s.submitter.now()) {
		if _, err := s.submitter.finish(ctx, sess, model.SubmitReasonAutoTimeout); err != nil {
			return nil, err
		}
		return nil, model.Deny(model.DenialTimeExpired)
	}

	exam, err := s.exams.GetByID(ctx, sess.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	vtype := model.ViolationType(req.Type)
	if !vtype.Valid() {
		vtype = model.ViolationOther
	}

	violation := &model.Violation{
		SessionID: sess.ID,
		Type:      vtype,
		Severity:  model.SeverityFor(vtype),
		Details:   req.Details,
	}
	count, err := s.sessions.AppendViolation(ctx, violation)
	if err != nil {
		return nil, fmt.Errorf("append violation: %w", err)
	}

	s.enqueueArchive(ctx, sess, violation)

	action := &model.ViolationAction{Action: model.ActionNone, ViolationCount: count}
	switch {
	case exam.SubmitThreshold > 0 && count >= exam.SubmitThreshold:
		action.Action = model.ActionAutoSubmit
		if _, err := s.submitter.Submit(ctx, token, model.SubmitReasonAutoViolation); err != nil {
			return nil, fmt.Errorf("auto submit: %w", err)
		}
	case exam.WarnThreshold > 0 && count >= exam.WarnThreshold:
		action.Action = model.ActionWarning
		if exam.SubmitThreshold > 0 {
			action.Remaining = exam.SubmitThreshold - count
		}
	}

	s.log.Info().
		Str("session_id", sess.ID.String()).
		Str("type", string(vtype)).
		Str("severity", string(violation.Severity)).
		Int("count", count).
		Str("action", string(action.Action)).
		Msg("Violation recorded")

	if s.monitor != nil {
		s.monitor.Publish(ctx, sess.ExamID, MonitorEvent{
			Kind:           MonitorViolation,
			SessionID:      sess.ID,
			CandidateID:    sess.CandidateID,
			ViolationType:  string(vtype),
			ViolationCount: count,
			Action:         string(action.Action),
		})
	}
	return action, nil
}

// enqueueArchive pushes the raw event onto the Redis archive queue. Losing an
// archive copy is acceptable; the authoritative violations row is already
// committed.
func (s *ViolationService) enqueueArchive(ctx context.Context, sess *model.Session, v *model.Violation) {
	if s.rdb == nil {
		return
	}

	payload, err := json.Marshal(map[string]string{"details": v.Details, "ip": sess.IPAddress})
	if err != nil {
		return
	}
	event := model.ViolationEvent{
		SessionID:  sess.ID,
		ExamID:     sess.ExamID,
		Type:       v.Type,
		Severity:   v.Severity,
		Payload:    payload,
		OccurredAt: v.CreatedAt,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.rdb.LPush(ctx, config.WorkerKey.ViolationEventsQueue, data).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to enqueue violation event for archival")
	}
}
