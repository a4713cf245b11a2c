package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/proctorly/proctor-backend/internal/config"
	"github.com/proctorly/proctor-backend/internal/model"
)

// MonitorEventKind enumerates live proctor feed events.
type MonitorEventKind string

const (
	MonitorSessionStarted   MonitorEventKind = "session_started"
	MonitorSessionSubmitted MonitorEventKind = "session_submitted"
	MonitorViolation        MonitorEventKind = "violation"
)

// MonitorEvent is one entry of the per-exam live feed.
type MonitorEvent struct {
	Kind           MonitorEventKind `json:"kind"`
	SessionID      uuid.UUID        `json:"session_id"`
	CandidateID    int              `json:"candidate_id"`
	Reason         string           `json:"reason,omitempty"`
	ViolationType  string           `json:"violation_type,omitempty"`
	ViolationCount int              `json:"violation_count,omitempty"`
	Action         string           `json:"action,omitempty"`
}

// SessionLister provides the active-session snapshot for the monitor.
type SessionLister interface {
	ListActiveByExam(ctx context.Context, examID uuid.UUID) ([]model.Session, error)
}

// MonitorService fans live events out to admin watchers over Redis Pub/Sub,
// so the feed works across multiple server instances.
type MonitorService struct {
	rdb      *redis.Client
	sessions SessionLister
	log      zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(rdb *redis.Client, sessions SessionLister, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		rdb:      rdb,
		sessions: sessions,
		log:      log.With().Str("component", "monitor_service").Logger(),
	}
}

// Publish sends one event to the exam's channel. Best-effort.
func (s *MonitorService) Publish(ctx context.Context, examID uuid.UUID, event MonitorEvent) {
	if s.rdb == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(examID.String()), data).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Monitor publish failed")
	}
}

// Subscribe opens the exam's live feed. The caller owns the returned PubSub
// and must close it.
func (s *MonitorService) Subscribe(ctx context.Context, examID uuid.UUID) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID.String()))
}

// Snapshot returns the currently active sessions of an exam, sent to a
// watcher when it first connects.
func (s *MonitorService) Snapshot(ctx context.Context, examID uuid.UUID) ([]model.Session, error) {
	return s.sessions.ListActiveByExam(ctx, examID)
}
