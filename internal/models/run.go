package models

import (
	"fmt"
	"time"
)

// JobStatus tracks a job through its lifecycle.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// RunRequest is one incoming qualification request.
type RunRequest struct {
	PostURL     string   `json:"post_url" validate:"required,url"`
	Competitors []string `json:"competitors" validate:"required,min=1,dive,min=1"`
	AccessCode  string   `json:"access_code,omitempty"`
}

// Job is one admitted end-to-end qualification run. Identity fields are never
// mutated after admission; only Status changes.
type Job struct {
	ID          string    `json:"id"`
	PostURL     string    `json:"post_url"`
	Competitors []string  `json:"competitors"`
	Status      JobStatus `json:"status"`
	StartedAt   time.Time `json:"started_at"`
}

// QualificationReason explains a per-candidate verification outcome.
type QualificationReason string

const (
	ReasonFullMatch      QualificationReason = "full_match"
	ReasonPartialMatch   QualificationReason = "partial_match"
	ReasonNoMatch        QualificationReason = "no_match"
	ReasonPrivateAccount QualificationReason = "private_account"
	ReasonNoIdentifier   QualificationReason = "no_identifier"
	ReasonError          QualificationReason = "error"
)

// QualificationResult is the per-candidate outcome of follow verification.
// Immutable once produced.
type QualificationResult struct {
	Candidate string              `json:"candidate"`
	Qualifies bool                `json:"qualifies"`
	Reason    QualificationReason `json:"reason"`
	Missing   []string            `json:"missing,omitempty"`
}

// RunResult is the terminal output of one orchestrator invocation. The caller
// always receives either a winner plus qualified list or a descriptive error.
type RunResult struct {
	Winner     string   `json:"winner,omitempty"`
	ProfileURL string   `json:"profile,omitempty"`
	Qualified  []string `json:"qualified,omitempty"`
	Duration   int64    `json:"duration"` // seconds
	Error      string   `json:"error,omitempty"`
}

// Failed reports whether the run terminated with an error.
func (r *RunResult) Failed() bool {
	return r != nil && r.Error != ""
}

// ErrorResult builds a terminal failure result.
func ErrorResult(format string, args ...interface{}) *RunResult {
	return &RunResult{Error: fmt.Sprintf(format, args...)}
}

// RunRecord is the persisted history entry for one terminal run.
type RunRecord struct {
	ID          string    `json:"id" badgerhold:"key"`
	PostURL     string    `json:"post_url"`
	Competitors []string  `json:"competitors"`
	Status      JobStatus `json:"status"`
	Result      RunResult `json:"result"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// JobLogEvent is the payload for job_log events streamed to observers.
type JobLogEvent struct {
	JobID     string    `json:"job_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// JobResultEvent is the payload for terminal job events.
type JobResultEvent struct {
	JobID  string     `json:"job_id"`
	Status JobStatus  `json:"status"`
	Result *RunResult `json:"result"`
}
