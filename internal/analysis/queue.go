// Package analysis runs coaching reports over a user's journal as
// background jobs. Jobs are published on a watermill topic and their status
// is kept in the record store.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	apperrors "github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/errors"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/store"
)

// DefaultTopic is the topic analysis jobs are published on.
const DefaultTopic = "analysis.jobs"

// jobIDLayout is the timestamp suffix of a job id.
const jobIDLayout = "20060102T150405Z"

// JobID derives the id of a job requested by userID at t.
func JobID(userID string, t time.Time) string {
	return userID + "-" + t.UTC().Format(jobIDLayout)
}

// JobSortKey is the record sort key of a job.
func JobSortKey(jobID string) string {
	return "analysis#" + jobID
}

// jobMessage is the payload published for each job.
type jobMessage struct {
	JobID   string                 `json:"job_id"`
	Request models.AnalysisRequest `json:"request"`
}

// Queue enqueues analysis jobs and reports their status.
type Queue struct {
	publisher message.Publisher
	records   store.RecordStore
	topic     string
	now       func() time.Time
	logger    zerolog.Logger
}

// NewQueue creates a queue publishing on topic.
func NewQueue(publisher message.Publisher, records store.RecordStore, topic string, logger zerolog.Logger) *Queue {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Queue{
		publisher: publisher,
		records:   records,
		topic:     topic,
		now:       time.Now,
		logger:    logger.With().Str("component", "analysis_queue").Logger(),
	}
}

// WithClock overrides the time source.
func (q *Queue) WithClock(now func() time.Time) *Queue {
	q.now = now
	return q
}

// Enqueue records a pending job and publishes it.
func (q *Queue) Enqueue(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisJob, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, apperrors.NewValidationError("user_id", req.UserID, "is required")
	}
	if req.StartDate != nil && req.EndDate != nil && req.EndDate.Before(*req.StartDate) {
		return nil, apperrors.NewValidationError("end_date", req.EndDate, "must not be before start_date")
	}

	now := q.now().UTC()
	job := &models.AnalysisJob{
		JobID:     JobID(req.UserID, now),
		UserID:    req.UserID,
		Status:    models.JobPending,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := q.records.PutRecord(ctx, store.UserPK(req.UserID), JobSortKey(job.JobID), job); err != nil {
		return nil, fmt.Errorf("failed to record analysis job: %w", err)
	}

	payload, err := json.Marshal(jobMessage{JobID: job.JobID, Request: req})
	if err != nil {
		return nil, fmt.Errorf("failed to encode analysis job: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("user_id", req.UserID)

	if err := q.publisher.Publish(q.topic, msg); err != nil {
		return nil, fmt.Errorf("failed to publish analysis job: %w", err)
	}

	q.logger.Info().Str("job_id", job.JobID).Str("user_id", req.UserID).Msg("Analysis job queued")
	return job, nil
}

// Status returns the job record or ErrJobNotFound.
func (q *Queue) Status(ctx context.Context, userID, jobID string) (*models.AnalysisJob, error) {
	var job models.AnalysisJob
	if err := q.records.GetRecord(ctx, store.UserPK(userID), JobSortKey(jobID), &job); err != nil {
		if errors.Is(err, apperrors.ErrRecordNotFound) {
			return nil, apperrors.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to load analysis job: %w", err)
	}
	return &job, nil
}
