package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/eligo/internal/common"
	"github.com/ternarybob/eligo/internal/interfaces"
	"github.com/ternarybob/eligo/internal/models"
	"github.com/ternarybob/eligo/internal/services/analyzer"
)

// Runner executes one admitted job end to end.
type Runner interface {
	Run(ctx context.Context, job *models.Job, log analyzer.LogSink) *models.RunResult
}

// Scheduler admits qualification jobs under a concurrency ceiling. Admission
// is atomic with the capacity check; requests over the ceiling are rejected
// immediately rather than queued, because each run holds a browser and an
// operator is waiting on the other end.
type Scheduler struct {
	config   *common.SchedulerConfig
	access   *common.AccessConfig
	runner   Runner
	events   interfaces.EventService
	storage  interfaces.RunStorage
	validate *validator.Validate
	logger   arbor.ILogger

	mu        sync.Mutex
	active    map[string]*models.Job
	completed int
	failed    int
	rejected  int

	jobTimeout time.Duration
	startedAt  time.Time
}

// SchedulerStats is a point-in-time view for the admin surface.
type SchedulerStats struct {
	UptimeSeconds int64         `json:"uptime_seconds"`
	Active        int           `json:"active"`
	MaxConcurrent int           `json:"max_concurrent"`
	Completed     int           `json:"completed"`
	Failed        int           `json:"failed"`
	Rejected      int           `json:"rejected"`
	ActiveJobs    []*models.Job `json:"active_jobs"`
}

// NewScheduler creates a scheduler; storage may be nil when history is
// disabled.
func NewScheduler(config *common.Config, runner Runner, events interfaces.EventService, storage interfaces.RunStorage, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		config:     &config.Scheduler,
		access:     &config.Access,
		runner:     runner,
		events:     events,
		storage:    storage,
		validate:   validator.New(),
		logger:     logger,
		active:     make(map[string]*models.Job),
		jobTimeout: common.ParseDurationOr(config.Analyzer.JobTimeout, 0),
		startedAt:  time.Now(),
	}
}

// Submit validates, admits and runs one request, blocking until the run
// terminates. It always returns a result; admission failures come back as
// error results without a job ever existing.
func (s *Scheduler) Submit(ctx context.Context, req *models.RunRequest) *models.RunResult {
	if err := s.validate.Struct(req); err != nil {
		return s.reject(ctx, models.ErrorResult("invalid request: %v", err))
	}

	if s.access.Code != "" && req.AccessCode != s.access.Code {
		s.logger.Warn().Str("post_url", req.PostURL).Msg("Rejected run with bad access code")
		return s.reject(ctx, models.ErrorResult("invalid access code"))
	}

	job, admitted := s.admit(req)
	if !admitted {
		return s.rejectBusy(ctx, req)
	}

	return s.run(ctx, job)
}

// admit atomically checks capacity and registers the job.
func (s *Scheduler) admit(req *models.RunRequest) (*models.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.active) >= s.config.MaxConcurrent {
		return nil, false
	}

	job := &models.Job{
		ID:          common.NewJobID(),
		PostURL:     req.PostURL,
		Competitors: analyzer.SplitCompetitors(req.Competitors),
		Status:      models.JobStatusQueued,
		StartedAt:   time.Now(),
	}
	s.active[job.ID] = job
	return job, true
}

// reject publishes the terminal event for a submission that never became a
// job. Stream observers get the same result frame the caller does; no
// submission ends without a terminal signal.
func (s *Scheduler) reject(ctx context.Context, result *models.RunResult) *models.RunResult {
	s.events.PublishSync(ctx, interfaces.Event{
		Type:    interfaces.EventJobRejected,
		Payload: &models.JobResultEvent{Status: models.JobStatusFailed, Result: result},
	})
	return result
}

func (s *Scheduler) rejectBusy(ctx context.Context, req *models.RunRequest) *models.RunResult {
	s.mu.Lock()
	s.rejected++
	active := len(s.active)
	s.mu.Unlock()

	s.logger.Warn().
		Str("post_url", req.PostURL).
		Int("active", active).
		Int("max", s.config.MaxConcurrent).
		Msg("Run rejected, concurrency ceiling reached")

	return s.reject(ctx, models.ErrorResult("Server busy. Max %d concurrent analyses allowed. Please try again later.", s.config.MaxConcurrent))
}

// run executes the job and settles it exactly once, whatever the runner does.
// The deferred block owns the slot release, the counters, persistence and the
// terminal event; a panicking runner settles as failed, never as a stuck slot.
func (s *Scheduler) run(ctx context.Context, job *models.Job) (result *models.RunResult) {
	runCtx := ctx
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.jobTimeout)
		defer cancel()
	}

	s.mu.Lock()
	job.Status = models.JobStatusRunning
	s.mu.Unlock()

	s.logger.Info().
		Str("job_id", job.ID).
		Str("post_url", job.PostURL).
		Int("competitors", len(job.Competitors)).
		Msg("Job started")

	s.events.PublishSync(ctx, interfaces.Event{
		Type:    interfaces.EventJobStarted,
		Payload: &models.JobResultEvent{JobID: job.ID, Status: models.JobStatusRunning},
	})

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("job_id", job.ID).Msg(fmt.Sprintf("Job panicked: %v", r))
			result = models.ErrorResult("internal error: %v", r)
		}
		if result == nil {
			result = models.ErrorResult("run produced no result")
		}
		s.settle(ctx, job, result)
	}()

	result = s.runner.Run(runCtx, job, s.logSink(job.ID))
	if result.Failed() && runCtx.Err() == context.DeadlineExceeded {
		result = models.ErrorResult("run exceeded the %s time limit", s.jobTimeout)
	}
	return result
}

// settle releases the slot, updates counters, persists the record and
// publishes the terminal event.
func (s *Scheduler) settle(ctx context.Context, job *models.Job, result *models.RunResult) {
	status := models.JobStatusCompleted
	eventType := interfaces.EventJobCompleted
	if result.Failed() {
		status = models.JobStatusFailed
		eventType = interfaces.EventJobFailed
	}

	s.mu.Lock()
	delete(s.active, job.ID)
	job.Status = status
	if status == models.JobStatusCompleted {
		s.completed++
	} else {
		s.failed++
	}
	s.mu.Unlock()

	s.logger.Info().
		Str("job_id", job.ID).
		Str("status", string(status)).
		Int64("duration_s", result.Duration).
		Msg("Job finished")

	if s.storage != nil {
		record := &models.RunRecord{
			ID:          job.ID,
			PostURL:     job.PostURL,
			Competitors: job.Competitors,
			Status:      status,
			Result:      *result,
			StartedAt:   job.StartedAt,
			FinishedAt:  time.Now(),
		}
		if err := s.storage.SaveRun(ctx, record); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to persist run record")
		}
	}

	s.events.PublishSync(ctx, interfaces.Event{
		Type:    eventType,
		Payload: &models.JobResultEvent{JobID: job.ID, Status: status, Result: result},
	})
}

// logSink bridges per-run progress messages onto the event bus and the
// structured log. Events are published synchronously so log lines reach
// observers in emission order and the terminal result never overtakes them.
func (s *Scheduler) logSink(jobID string) analyzer.LogSink {
	return func(message string) {
		s.logger.Info().Str("job_id", jobID).Msg(message)
		s.events.PublishSync(context.Background(), interfaces.Event{
			Type: interfaces.EventJobLog,
			Payload: &models.JobLogEvent{
				JobID:     jobID,
				Message:   message,
				Timestamp: time.Now(),
			},
		})
	}
}

// Snapshot returns current scheduler stats.
func (s *Scheduler) Snapshot() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]*models.Job, 0, len(s.active))
	for _, job := range s.active {
		copied := *job
		jobs = append(jobs, &copied)
	}

	return SchedulerStats{
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Active:        len(s.active),
		MaxConcurrent: s.config.MaxConcurrent,
		Completed:     s.completed,
		Failed:        s.failed,
		Rejected:      s.rejected,
		ActiveJobs:    jobs,
	}
}
