package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/eligo/internal/browser"
	"github.com/ternarybob/eligo/internal/common"
	"github.com/ternarybob/eligo/internal/interfaces"
	"github.com/ternarybob/eligo/internal/models"
	"github.com/ternarybob/eligo/internal/services/session"
)

// Orchestrator sequences one end-to-end qualification run: acquire an
// isolated session, collect candidates (accelerated path first, DOM scrape as
// fallback), verify each candidate sequentially, pick a winner. The session
// clone and the browser are released in deferred blocks whatever happens.
type Orchestrator struct {
	config   *common.Config
	sessions *session.Manager
	drivers  interfaces.DriverFactory
	graph    *GraphClient
	selector *WinnerSelector
	logger   arbor.ILogger
}

// NewOrchestrator wires the pipeline components
func NewOrchestrator(config *common.Config, sessions *session.Manager, drivers interfaces.DriverFactory, graph *GraphClient, selector *WinnerSelector, logger arbor.ILogger) *Orchestrator {
	return &Orchestrator{
		config:   config,
		sessions: sessions,
		drivers:  drivers,
		graph:    graph,
		selector: selector,
		logger:   logger,
	}
}

// Run executes the pipeline for one admitted job. The returned result always
// carries either a winner plus qualified list or a descriptive error; run
// failures never escape as panics or bare errors.
func (o *Orchestrator) Run(ctx context.Context, job *models.Job, log LogSink) *models.RunResult {
	if log == nil {
		log = discard
	}
	startTime := time.Now()
	log("Starting analysis...")

	sess, err := o.sessions.Acquire(job.ID)
	if err != nil {
		return models.ErrorResult("session setup failed: %v", err)
	}
	defer o.sessions.Release(sess)

	if sess.FirstRun {
		log("First run detected (or session cleared).")
		log("Please LOG IN MANUALLY in the browser window that opens.")
	} else {
		log("Session restored.")
	}

	candidates := o.collectCandidates(ctx, job, sess, log)
	if candidates == nil {
		// collectCandidates already logged the fatal cause.
		return o.finish(&models.RunResult{Error: "analysis could not collect candidates"}, startTime)
	}
	if len(candidates) == 0 {
		log("No valid commenters found.")
		return o.finish(&models.RunResult{Error: "no valid commenters found"}, startTime)
	}

	qualified, err := o.verifyCandidates(ctx, job, sess, candidates, log)
	if err != nil {
		return o.finish(&models.RunResult{Error: err.Error()}, startTime)
	}

	log("------------------------------------------------")
	log("ANALYSIS COMPLETE")
	log(fmt.Sprintf("Qualified users: %d", len(qualified)))

	winner, ok := o.selector.Pick(qualified)
	if !ok {
		log("No qualified users found.")
		return o.finish(&models.RunResult{Error: "no qualified users found"}, startTime)
	}

	log(fmt.Sprintf("WINNER: @%s", winner))
	return o.finish(&models.RunResult{
		Winner:     winner,
		ProfileURL: fmt.Sprintf("%s/%s/", instagramBaseURL, winner),
		Qualified:  qualified,
	}, startTime)
}

// collectCandidates prefers the bulk Graph path and falls back to DOM
// scraping. Returns nil only on a fatal, already-logged setup failure; an
// empty slice is the normal "no candidates" outcome.
func (o *Orchestrator) collectCandidates(ctx context.Context, job *models.Job, sess *session.Session, log LogSink) []string {
	if o.graph != nil {
		candidates, err := o.graph.FetchQualifiedCommenters(ctx, job.PostURL, job.Competitors, log)
		if err == nil {
			log(fmt.Sprintf("Graph API found %d valid commenters.", len(candidates)))
			return candidates
		}
		// The accelerated path declining is not a run failure.
		log(fmt.Sprintf("Graph API unavailable (%v), falling back to browser scraping.", err))
	}

	log("Using browser scraping for comments...")

	driver, err := o.drivers(ctx, sess.Dir)
	if err != nil {
		log(fmt.Sprintf("Failed to launch browser: %v", err))
		return nil
	}
	defer driver.Close()

	if err := o.ensureLoggedIn(ctx, driver, log); err != nil {
		log(fmt.Sprintf("Login not detected: %v", err))
		return nil
	}

	log(fmt.Sprintf("Scraping comments from: %s", job.PostURL))

	extractor := NewExtractor(driver,
		o.config.Analyzer.MaxLoadAttempts,
		common.ParseDurationOr(o.config.Analyzer.SettleDelay, 1500*time.Millisecond),
		o.logger, log)

	candidates, err := extractor.Extract(ctx, job.PostURL, job.Competitors)
	if err != nil {
		log(fmt.Sprintf("Scrape error: %v", err))
		return nil
	}
	if candidates == nil {
		candidates = []string{}
	}
	return candidates
}

// verifyCandidates runs follow verification sequentially over the extraction
// order; a shared driver cannot be used concurrently and the pacing is part
// of the anti-automation posture. Cancellation stops scheduling further
// candidates but still returns cleanly.
func (o *Orchestrator) verifyCandidates(ctx context.Context, job *models.Job, sess *session.Session, candidates []string, log LogSink) ([]string, error) {
	log("Opening browser for follower check...")

	driver, err := o.drivers(ctx, sess.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser for analysis: %v", err)
	}
	defer driver.Close()

	verifier := NewVerifier(driver,
		common.ParseDurationOr(o.config.Analyzer.CheckDelay, time.Second),
		o.logger, log)

	log("------------------------------------------------")

	var qualified []string
	for i, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			log("Run cancelled, stopping verification.")
			return nil, fmt.Errorf("run cancelled")
		}

		log(fmt.Sprintf("[%d/%d] Checking @%s...", i+1, len(candidates), candidate))

		result := verifier.Verify(ctx, candidate, job.Competitors)
		o.logger.Debug().
			Str("job_id", job.ID).
			Str("candidate", candidate).
			Bool("qualifies", result.Qualifies).
			Str("reason", string(result.Reason)).
			Msg("Candidate verified")

		if result.Qualifies {
			qualified = append(qualified, candidate)
			log(fmt.Sprintf("QUALIFIED: @%s", candidate))
		}
	}

	return qualified, nil
}

// ensureLoggedIn checks for the login form and, when present, polls for a
// logged-in marker while the operator signs in manually. Detection only; no
// credentials pass through here.
func (o *Orchestrator) ensureLoggedIn(ctx context.Context, driver interfaces.PageDriver, log LogSink) error {
	log("Checking login status...")

	if err := driver.Navigate(ctx, instagramBaseURL+"/"); err != nil {
		return fmt.Errorf("open home page: %w", err)
	}

	loginVisible, err := driver.Exists(ctx, loginInputSelector)
	if err != nil {
		return fmt.Errorf("probe login form: %w", err)
	}
	if !loginVisible {
		return nil
	}

	log("Login required. Waiting for you to log in...")

	poll := browser.Poll{
		MaxAttempts: o.config.Analyzer.LoginWaitAttempts,
		Delay:       common.ParseDurationOr(o.config.Analyzer.LoginWaitDelay, 5*time.Second),
	}
	err = poll.Until(ctx, o.logger, "login detection", func(ctx context.Context) (bool, error) {
		for _, selector := range loggedInSelectors {
			if found, err := driver.Exists(ctx, selector); err == nil && found {
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return err
	}

	log("Login detected!")
	return nil
}

func (o *Orchestrator) finish(result *models.RunResult, startTime time.Time) *models.RunResult {
	result.Duration = int64(time.Since(startTime).Seconds())
	return result
}
