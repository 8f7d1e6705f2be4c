package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/secureeval-backend/internal/config"
	"github.com/stemsi/secureeval-backend/internal/model"
	"github.com/stemsi/secureeval-backend/internal/observability"
	"github.com/stemsi/secureeval-backend/internal/service"
)

const (
	BatchSize    = 20
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis

	// MaxAttempts bounds how often a job is requeued after storage failures.
	MaxAttempts = 5
	// generateConcurrency bounds parallel report generations within one batch.
	generateConcurrency = 4
)

// ReportGenerator produces and stores the integrity report of one session.
type ReportGenerator interface {
	Generate(ctx context.Context, id uuid.UUID) (*model.IntegrityReport, error)
}

type reportJob struct {
	SessionID  uuid.UUID `json:"session_id"`
	EnqueuedAt int64     `json:"enqueued_at"`
	Attempts   int       `json:"attempts"`
}

// ReportQueue schedules report generation on the Redis work queue.
type ReportQueue struct {
	rdb *redis.Client
}

// NewReportQueue creates a new ReportQueue.
func NewReportQueue(rdb *redis.Client) *ReportQueue {
	return &ReportQueue{rdb: rdb}
}

// ScheduleReport enqueues a report job for sessionID.
func (q *ReportQueue) ScheduleReport(ctx context.Context, sessionID uuid.UUID) error {
	data, err := json.Marshal(reportJob{SessionID: sessionID, EnqueuedAt: time.Now().Unix()})
	if err != nil {
		return err
	}
	return q.rdb.RPush(ctx, config.WorkerKey.GenerateReportQueue, data).Err()
}

// ReportWorker drains the report queue in batches.
type ReportWorker struct {
	reports        ReportGenerator
	rdb            *redis.Client
	log            zerolog.Logger
	requeueBackoff time.Duration
}

func NewReportWorker(reports ReportGenerator, rdb *redis.Client, log zerolog.Logger) *ReportWorker {
	return &ReportWorker{
		reports:        reports,
		rdb:            rdb,
		log:            log.With().Str("component", "report_worker").Logger(),
		requeueBackoff: 2 * time.Second,
	}
}

func (w *ReportWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ReportWorker started")

	buffer := make([]*reportJob, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Check Flush Conditions (Time or Size)
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		// 2. Check Context (Graceful Shutdown)
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch from Redis
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.GenerateReportQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // Queue empty, loop back to check flush timer
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		// 4. Process Data
		if len(result) < 2 {
			continue
		}

		var job reportJob
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil || job.SessionID == uuid.Nil {
			// Malformed jobs cannot be retried.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed report job")
			observability.WorkerJobs().WithLabelValues(config.WorkerKey.GenerateReportQueue, "discarded").Inc()
			continue
		}

		buffer = append(buffer, &job)
	}
}

// flushSafe generates one report per distinct session in the batch and
// requeues the jobs that failed on storage.
func (w *ReportWorker) flushSafe(ctx context.Context, batch []*reportJob) {
	seen := make(map[uuid.UUID]struct{}, len(batch))
	unique := make([]*reportJob, 0, len(batch))
	for _, job := range batch {
		if _, dup := seen[job.SessionID]; dup {
			continue
		}
		seen[job.SessionID] = struct{}{}
		unique = append(unique, job)
	}

	failed := make([]*reportJob, len(unique))
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(generateConcurrency)
	for i, job := range unique {
		g.Go(func() error {
			if w.generate(gctx, job) {
				failed[i] = job
			}
			return nil
		})
	}
	_ = g.Wait()

	requeueList := make([]*reportJob, 0)
	for _, job := range failed {
		if job != nil {
			requeueList = append(requeueList, job)
		}
	}
	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

// generate runs one job and reports whether it should be retried.
func (w *ReportWorker) generate(ctx context.Context, job *reportJob) bool {
	queue := config.WorkerKey.GenerateReportQueue
	_, err := w.reports.Generate(ctx, job.SessionID)
	switch {
	case err == nil:
		observability.WorkerJobs().WithLabelValues(queue, "done").Inc()
		return false
	case errors.Is(err, service.ErrSessionNotFound):
		w.log.Warn().Str("session_id", job.SessionID.String()).Msg("Dropping report job for deleted session")
		observability.WorkerJobs().WithLabelValues(queue, "dropped").Inc()
		return false
	case job.Attempts+1 >= MaxAttempts:
		w.log.Error().Err(err).Str("session_id", job.SessionID.String()).Int("attempts", job.Attempts+1).Msg("Report job failed permanently")
		observability.WorkerJobs().WithLabelValues(queue, "failed").Inc()
		return false
	default:
		w.log.Error().Err(err).Str("session_id", job.SessionID.String()).Msg("Report generation failed, requeueing")
		observability.WorkerJobs().WithLabelValues(queue, "requeued").Inc()
		job.Attempts++
		return true
	}
}

func (w *ReportWorker) requeue(ctx context.Context, items []*reportJob) {
	// Use a pipeline to push everything back quickly
	pipe := w.rdb.Pipeline()
	for _, job := range items {
		data, _ := json.Marshal(job)
		pipe.RPush(ctx, config.WorkerKey.GenerateReportQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue report jobs to Redis")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed report jobs")
	// Back off so a storage outage is not hammered
	time.Sleep(w.requeueBackoff)
}

func (w *ReportWorker) shutdown(buffer []*reportJob) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
