package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/proctorly/proctor-backend/internal/service"
)

// ExpireSweepLimit bounds how many overdue sessions one pass finalizes.
const ExpireSweepLimit = 500

// SweepWorker drives the time-based state machines on a fixed interval:
// exam lifecycle transitions, batch window advancement, and expiry of overdue
// sessions. Every step is idempotent, so overlapping runs (or an external
// cron hitting the advance endpoint) are safe.
type SweepWorker struct {
	exams    *service.ExamService
	batches  *service.BatchService
	sessions *service.SessionService
	interval time.Duration
	log      zerolog.Logger
}

// NewSweepWorker creates a new SweepWorker.
func NewSweepWorker(
	exams *service.ExamService,
	batches *service.BatchService,
	sessions *service.SessionService,
	interval time.Duration,
	log zerolog.Logger,
) *SweepWorker {
	return &SweepWorker{
		exams:    exams,
		batches:  batches,
		sessions: sessions,
		interval: interval,
		log:      log.With().Str("component", "sweep_worker").Logger(),
	}
}

// Start runs sweep passes until the context is cancelled.
func (w *SweepWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("SweepWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("SweepWorker stopping")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SweepWorker) sweep(ctx context.Context) {
	started, completed, err := w.exams.AdvanceLifecycle(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("Exam lifecycle sweep failed")
	}

	var advanced *service.AdvanceResult
	advanced, err = w.batches.AutoAdvance(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("Batch sweep failed")
		advanced = &service.AdvanceResult{}
	}

	expired := w.sessions.ExpireOverdue(ctx, ExpireSweepLimit)

	if started+completed+advanced.Completed+advanced.Activated+advanced.Queued+expired > 0 {
		w.log.Info().
			Int("exams_started", started).
			Int("exams_completed", completed).
			Int("batches_completed", advanced.Completed).
			Int("batches_activated", advanced.Activated).
			Int("batches_queued", advanced.Queued).
			Int("force_submitted", advanced.ForceSubmitted).
			Int("sessions_expired", expired).
			Msg("Sweep pass applied transitions")
	}
}
