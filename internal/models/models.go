// Package models provides domain models for the trade journal agent.
package models

import (
	"time"
)

// CaptureStatus is the outcome of a capture turn.
type CaptureStatus string

const (
	StatusNeedsMoreInfo CaptureStatus = "needs_more_info"
	StatusCompleted     CaptureStatus = "completed"
)

// JobStatus is the lifecycle state of an analysis job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// AnalysisRequest asks for a coaching report over a user's journal.
type AnalysisRequest struct {
	UserID    string     `json:"user_id"`
	SheetID   string     `json:"sheet_id,omitempty"`
	Range     string     `json:"sheet_range,omitempty"`
	Prompt    string     `json:"prompt"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

// AnalysisJob is the persisted status record of an analysis job.
type AnalysisJob struct {
	JobID     string          `json:"job_id"`
	UserID    string          `json:"user_id"`
	Status    JobStatus       `json:"status"`
	Request   AnalysisRequest `json:"request"`
	Report    *AnalysisReport `json:"report,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// AnalysisReport is the coaching report produced for a journal.
type AnalysisReport struct {
	PerformanceOverview PerformanceOverview `json:"performance_overview"`
	BehaviouralPatterns []string            `json:"behavioural_patterns"`
	Opportunities       []string            `json:"opportunities"`
	ActionPlan          []ActionItem        `json:"action_plan"`
	// Raw holds the model output when it was not valid JSON.
	Raw string `json:"raw,omitempty"`
}

// PerformanceOverview summarises results across the journal.
type PerformanceOverview struct {
	Summary    string   `json:"summary"`
	KeyMetrics []string `json:"key_metrics"`
}

// ActionItem is one prioritised recommendation.
type ActionItem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}
