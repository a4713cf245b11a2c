package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/proctorly/proctor-backend/internal/config"
	"github.com/proctorly/proctor-backend/internal/model"
	"github.com/proctorly/proctor-backend/internal/repository"
)

const (
	ArchiveBatchSize    = 50
	ArchiveBatchTimeout = 2 * time.Second
	ArchivePollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ViolationArchiver drains the violation event queue into the append-only
// archive table. The authoritative violations row is committed before the
// event is enqueued, so the archiver only ever loses redundant copies.
type ViolationArchiver struct {
	violations *repository.ViolationRepository
	rdb        *redis.Client
	log        zerolog.Logger
}

// NewViolationArchiver creates a new ViolationArchiver.
func NewViolationArchiver(violations *repository.ViolationRepository, rdb *redis.Client, log zerolog.Logger) *ViolationArchiver {
	return &ViolationArchiver{
		violations: violations,
		rdb:        rdb,
		log:        log.With().Str("component", "violation_archiver").Logger(),
	}
}

// Start runs the drain loop until the context is cancelled. Events are
// buffered and flushed by size or age, bulk-inserted with a row-by-row
// fallback, and requeued when the database is unreachable.
func (w *ViolationArchiver) Start(ctx context.Context) {
	w.log.Info().Msg("ViolationArchiver started")

	buffer := make([]model.ViolationEvent, 0, ArchiveBatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 &&
			(len(buffer) >= ArchiveBatchSize || time.Since(lastFlush) >= ArchiveBatchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, ArchivePollTimeout, config.WorkerKey.ViolationEventsQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue // Queue empty, loop back to check the flush timer.
			}
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var event model.ViolationEvent
		if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
			// Malformed JSON cannot be retried. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed event")
			continue
		}
		buffer = append(buffer, event)
	}
}

// flushSafe attempts bulk insert, then fallback insert, then requeue.
func (w *ViolationArchiver) flushSafe(ctx context.Context, batch []model.ViolationEvent) {
	if err := w.violations.BulkInsertEvents(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *ViolationArchiver) fallbackInsert(ctx context.Context, batch []model.ViolationEvent) {
	requeueList := make([]model.ViolationEvent, 0)

	for i := range batch {
		if err := w.violations.InsertEvent(ctx, &batch[i]); err != nil {
			w.log.Error().Err(err).Str("session_id", batch[i].SessionID.String()).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, batch[i])
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *ViolationArchiver) requeue(ctx context.Context, items []model.ViolationEvent) {
	pipe := w.rdb.Pipeline()
	for i := range items {
		data, _ := json.Marshal(items[i])
		pipe.RPush(ctx, config.WorkerKey.ViolationEventsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue events to Redis. Archive copies lost.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed events back to Redis")
	// Avoid thrashing while the database is down.
	time.Sleep(2 * time.Second)
}

func (w *ViolationArchiver) shutdown(buffer []model.ViolationEvent) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
