package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/logging"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/performance"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/store"
)

// ReportGenerator produces a coaching report for a request.
type ReportGenerator interface {
	GenerateReport(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisReport, error)
}

// DefaultJobTimeout bounds a single report.
const DefaultJobTimeout = 5 * time.Minute

// Worker consumes analysis jobs. A message is acknowledged once the job is
// marked running; the report itself runs on the worker pool.
type Worker struct {
	subscriber message.Subscriber
	records    store.RecordStore
	reports    ReportGenerator
	topic      string
	pool       *performance.WorkerPool
	timeout    time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

// NewWorker creates a worker with the given concurrency.
func NewWorker(subscriber message.Subscriber, records store.RecordStore, reports ReportGenerator, topic string, workers int, logger zerolog.Logger) *Worker {
	if topic == "" {
		topic = DefaultTopic
	}
	if workers <= 0 {
		workers = 1
	}
	return &Worker{
		subscriber: subscriber,
		records:    records,
		reports:    reports,
		topic:      topic,
		pool:       performance.NewWorkerPool(workers),
		timeout:    DefaultJobTimeout,
		now:        time.Now,
		logger:     logger.With().Str("component", "analysis_worker").Logger(),
	}
}

// WithTimeout overrides the per-job timeout.
func (w *Worker) WithTimeout(d time.Duration) *Worker {
	w.timeout = d
	return w
}

// Run consumes jobs until ctx is cancelled, then waits for in-flight reports.
func (w *Worker) Run(ctx context.Context) error {
	messages, err := w.subscriber.Subscribe(ctx, w.topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", w.topic, err)
	}

	w.pool.Start()
	defer w.pool.Stop()

	w.logger.Info().Str("topic", w.topic).Msg("Analysis worker started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			w.handle(ctx, msg)
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg *message.Message) {
	var payload jobMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		w.logger.Error().Err(err).Str("message_id", msg.UUID).Msg("Dropping malformed analysis job")
		msg.Ack()
		return
	}

	if _, err := w.transition(ctx, payload, models.JobRunning, nil, ""); err != nil {
		w.logger.Error().Err(err).Str("job_id", payload.JobID).Msg("Failed to mark job running")
		msg.Nack()
		return
	}
	msg.Ack()
	logging.LogJob(w.logger, payload.Request.UserID, payload.JobID, string(models.JobRunning))

	task := func() { w.process(context.WithoutCancel(ctx), payload) }
	if !w.pool.Submit(task) {
		_, _ = w.transition(ctx, payload, models.JobFailed, nil, "analysis worker is saturated")
	}
}

// process generates the report and records the outcome.
func (w *Worker) process(ctx context.Context, payload jobMessage) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := w.now()
	report, err := w.reports.GenerateReport(ctx, payload.Request)
	logger := w.logger.With().Str("job_id", payload.JobID).Dur("duration", w.now().Sub(start)).Logger()

	if err != nil {
		if _, terr := w.transition(ctx, payload, models.JobFailed, nil, err.Error()); terr != nil {
			logger.Error().Err(terr).Msg("Failed to record job failure")
			return
		}
		logger.Warn().Err(err).Msg("Analysis report failed")
		logging.LogJob(w.logger, payload.Request.UserID, payload.JobID, string(models.JobFailed))
		return
	}

	if _, err := w.transition(ctx, payload, models.JobCompleted, report, ""); err != nil {
		logger.Error().Err(err).Msg("Failed to record job report")
		return
	}
	logging.LogJob(logger, payload.Request.UserID, payload.JobID, string(models.JobCompleted))
}

// transition rewrites the job record with a new status.
func (w *Worker) transition(ctx context.Context, payload jobMessage, status models.JobStatus, report *models.AnalysisReport, errMsg string) (*models.AnalysisJob, error) {
	pk := store.UserPK(payload.Request.UserID)
	sk := JobSortKey(payload.JobID)

	var job models.AnalysisJob
	if err := w.records.GetRecord(ctx, pk, sk, &job); err != nil {
		// The record may be gone; rebuild it from the message.
		job = models.AnalysisJob{
			JobID:     payload.JobID,
			UserID:    payload.Request.UserID,
			Request:   payload.Request,
			CreatedAt: w.now().UTC(),
		}
	}

	job.Status = status
	job.Report = report
	job.Error = errMsg
	job.UpdatedAt = w.now().UTC()

	if err := w.records.PutRecord(ctx, pk, sk, job); err != nil {
		return nil, err
	}
	return &job, nil
}
