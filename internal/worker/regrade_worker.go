package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/proctorly/proctor-backend/internal/model"
	"github.com/proctorly/proctor-backend/internal/repository"
	"github.com/proctorly/proctor-backend/internal/service"
)

// RegradeSweepLimit bounds how many records one reconcile pass touches.
const RegradeSweepLimit = 200

// RegradeWorker reconciles attempts whose grading was degraded: submissions
// flagged grading_pending, and terminal sessions left without a submission by
// a crash between terminate and create. Grading is deterministic, so rerunning
// it on an unchanged attempt is always safe.
type RegradeWorker struct {
	grader      *service.GradingService
	sessions    *repository.SessionRepository
	submissions *repository.SubmissionRepository
	interval    time.Duration
	log         zerolog.Logger
}

// NewRegradeWorker creates a new RegradeWorker.
func NewRegradeWorker(
	grader *service.GradingService,
	sessions *repository.SessionRepository,
	submissions *repository.SubmissionRepository,
	interval time.Duration,
	log zerolog.Logger,
) *RegradeWorker {
	return &RegradeWorker{
		grader:      grader,
		sessions:    sessions,
		submissions: submissions,
		interval:    interval,
		log:         log.With().Str("component", "regrade_worker").Logger(),
	}
}

// Start runs reconcile passes until the context is cancelled.
func (w *RegradeWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("RegradeWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("RegradeWorker stopping")
			return
		case <-ticker.C:
			w.backfillMissing(ctx)
			w.regradePending(ctx)
		}
	}
}

// regradePending regrades submissions flagged during a degraded submit and
// writes the corrected scores back in one bulk statement.
func (w *RegradeWorker) regradePending(ctx context.Context) {
	pending, err := w.submissions.ListPendingGrading(ctx, RegradeSweepLimit)
	if err != nil {
		w.log.Error().Err(err).Msg("Failed to list pending submissions")
		return
	}
	if len(pending) == 0 {
		return
	}

	updates := make([]model.SubmissionScoreUpdate, 0, len(pending))
	for i := range pending {
		sub := &pending[i]
		// GradeSession only needs the session and exam identity.
		sess := &model.Session{ID: sub.SessionID, ExamID: sub.ExamID, CandidateID: sub.CandidateID}

		result, err := w.grader.GradeSession(ctx, sess)
		if err != nil {
			w.log.Warn().Err(err).Str("submission_id", sub.ID.String()).Msg("Regrade attempt failed, will retry")
			continue
		}

		scores, err := json.Marshal(result.ScoredAnswers())
		if err != nil {
			w.log.Error().Err(err).Str("submission_id", sub.ID.String()).Msg("Score marshal failed")
			continue
		}
		updates = append(updates, model.SubmissionScoreUpdate{
			ID:            sub.ID,
			Scores:        scores,
			MarksObtained: result.MarksObtained,
			Percentage:    result.Percentage,
			CorrectCount:  result.Correct,
			WrongCount:    result.Wrong,
			Unattempted:   result.Unattempted,
		})
	}

	if len(updates) == 0 {
		return
	}
	if err := w.submissions.BulkUpdateScores(ctx, updates); err != nil {
		w.log.Error().Err(err).Int("count", len(updates)).Msg("Bulk score update failed")
		return
	}
	w.log.Info().Int("count", len(updates)).Msg("Regraded pending submissions")
}

// backfillMissing creates submissions for terminal sessions that never got
// one. Create is conflict-safe, so racing a concurrent backfill is harmless.
func (w *RegradeWorker) backfillMissing(ctx context.Context) {
	orphans, err := w.sessions.ListTerminalWithoutSubmission(ctx, RegradeSweepLimit)
	if err != nil {
		w.log.Error().Err(err).Msg("Failed to list orphaned sessions")
		return
	}

	backfilled := 0
	for i := range orphans {
		sess := &orphans[i]
		reason := model.SubmitReasonManual
		if sess.SubmitReason != nil {
			reason = *sess.SubmitReason
		}

		sub := w.grader.BuildSubmission(ctx, sess, reason)
		if _, err := w.submissions.Create(ctx, sub); err != nil {
			w.log.Error().Err(err).Str("session_id", sess.ID.String()).Msg("Submission backfill failed")
			continue
		}
		backfilled++
	}
	if backfilled > 0 {
		w.log.Info().Int("count", backfilled).Msg("Backfilled missing submissions")
	}
}
