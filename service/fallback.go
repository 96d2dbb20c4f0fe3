package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"VideoFactory-server/config"
	"VideoFactory-server/logger"
	"VideoFactory-server/models"
)

var (
	ErrProviderStart         = errors.New("provider start failure")
	ErrProviderJob           = errors.New("provider job failure")
	ErrProviderTimeout       = errors.New("provider timeout")
	ErrAllProvidersExhausted = errors.New("all providers exhausted")
	ErrNoProviders           = errors.New("no enabled providers")
	ErrJobCancelled          = errors.New("job cancelled")
)

// AttemptOutcome classifies a single provider attempt.
type AttemptOutcome string

const (
	OutcomeSucceeded    AttemptOutcome = "succeeded"
	OutcomeStartFailure AttemptOutcome = "start_failure"
	OutcomeJobFailure   AttemptOutcome = "job_failure"
	OutcomeTimeout      AttemptOutcome = "timeout"
	OutcomeCancelled    AttemptOutcome = "cancelled"
)

type Attempt struct {
	Provider string
	TaskID   string
	Outcome  AttemptOutcome
	Err      error
	Elapsed  time.Duration
}

// JobRequest is one logical generation job to push through the fallback chain.
type JobRequest struct {
	Capability  string
	Input       string
	Params      JobParams
	Preferred   string
	ProjectID   string
	SceneID     string
	SceneNumber int
	// OnStart is invoked after a provider accepted the job.
	OnStart func(provider, taskID string)
}

type JobResult struct {
	Provider  string
	TaskID    string
	OutputURL string
	Attempts  []Attempt
}

// LastProvider is the provider of the final attempt, empty when none ran.
func (r *JobResult) LastProvider() string {
	if r == nil || len(r.Attempts) == 0 {
		return ""
	}
	return r.Attempts[len(r.Attempts)-1].Provider
}

// FallbackRunner drives one job across the provider chain of its capability,
// one provider at a time, until one succeeds or every provider has failed.
type FallbackRunner struct {
	registry     *Registry
	activity     ActivitySink
	log          *logger.Logger
	pollInterval time.Duration
	timeouts     map[string]time.Duration
	now          func() time.Time
}

func NewFallbackRunner(registry *Registry, activity ActivitySink, log *logger.Logger, pipeline config.Pipeline) *FallbackRunner {
	pipeline = pipeline.WithDefaults()
	return &FallbackRunner{
		registry:     registry,
		activity:     activity,
		log:          log.Component("FallbackRunner"),
		pollInterval: pipeline.PollInterval,
		timeouts: map[string]time.Duration{
			models.CapabilityVideo:     pipeline.VideoTimeout,
			models.CapabilityVoiceover: pipeline.VoiceoverTimeout,
			models.CapabilityImage:     pipeline.ImageTimeout,
		},
		now: time.Now,
	}
}

func (f *FallbackRunner) timeoutFor(capability string) time.Duration {
	if t, ok := f.timeouts[capability]; ok {
		return t
	}
	return f.timeouts[models.CapabilityVideo]
}

// Run returns the first successful result. On failure the error wraps
// ErrAllProvidersExhausted (and the last provider error) or ErrJobCancelled.
// The result carries every attempt in both cases.
func (f *FallbackRunner) Run(ctx context.Context, req JobRequest) (*JobResult, error) {
	result := &JobResult{}
	candidates, err := f.registry.Candidates(ctx, req.Capability, req.Preferred)
	if err != nil {
		return result, fmt.Errorf("%w: %s: %w", ErrAllProvidersExhausted, req.Capability, err)
	}
	if len(candidates) == 0 {
		return result, fmt.Errorf("%w: %s: %w", ErrAllProvidersExhausted, req.Capability, ErrNoProviders)
	}

	var lastErr error
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("%w: %v", ErrJobCancelled, context.Cause(ctx))
		}
		attempt, res := f.attempt(ctx, c, req)
		result.Attempts = append(result.Attempts, attempt)
		f.recordAttempt(ctx, req, c, attempt)

		switch attempt.Outcome {
		case OutcomeSucceeded:
			result.Provider = attempt.Provider
			result.TaskID = attempt.TaskID
			result.OutputURL = res.OutputURL
			return result, nil
		case OutcomeCancelled:
			return result, fmt.Errorf("%w: %v", ErrJobCancelled, attempt.Err)
		}
		lastErr = attempt.Err
	}
	return result, fmt.Errorf("%w: %s: %w", ErrAllProvidersExhausted, req.Capability, lastErr)
}

func (f *FallbackRunner) attempt(ctx context.Context, c Candidate, req JobRequest) (Attempt, PollResult) {
	started := f.now()
	a := Attempt{Provider: c.Entry.Name}

	taskID, err := c.Adapter.Start(ctx, req.Input, req.Params)
	if err == nil && strings.TrimSpace(taskID) == "" {
		err = errors.New("no task id returned")
	}
	if err != nil {
		a.Elapsed = f.now().Sub(started)
		if ctx.Err() != nil {
			a.Outcome = OutcomeCancelled
			a.Err = context.Cause(ctx)
			return a, PollResult{}
		}
		a.Outcome = OutcomeStartFailure
		a.Err = fmt.Errorf("%w: %s: %w", ErrProviderStart, c.Entry.Name, err)
		return a, PollResult{}
	}
	a.TaskID = taskID
	if req.OnStart != nil {
		req.OnStart(c.Entry.Name, taskID)
	}

	watch := newJobWatch(c.Adapter, taskID, f.timeoutFor(req.Capability), f.now)
	status, res, werr := watch.wait(ctx, f.pollInterval)
	a.Elapsed = f.now().Sub(started)
	if werr != nil {
		a.Outcome = OutcomeCancelled
		a.Err = context.Cause(ctx)
		f.abandon(ctx, c, taskID)
		return a, res
	}
	switch status {
	case watchSucceeded:
		a.Outcome = OutcomeSucceeded
	case watchFailed:
		msg := res.Error
		if msg == "" {
			msg = "provider reported failure"
		}
		a.Outcome = OutcomeJobFailure
		a.Err = fmt.Errorf("%w: %s: %s", ErrProviderJob, c.Entry.Name, msg)
	default:
		a.Outcome = OutcomeTimeout
		f.abandon(ctx, c, taskID)
		if watch.lastErr != nil {
			a.Err = fmt.Errorf("%w: %s after %s (last poll error: %v)", ErrProviderTimeout, c.Entry.Name, f.timeoutFor(req.Capability), watch.lastErr)
		} else {
			a.Err = fmt.Errorf("%w: %s after %s", ErrProviderTimeout, c.Entry.Name, f.timeoutFor(req.Capability))
		}
	}
	return a, res
}

// jobCanceller is implemented by adapters whose backend can drop a job we
// stopped waiting for.
type jobCanceller interface {
	Cancel(ctx context.Context, taskID string) error
}

func (f *FallbackRunner) abandon(ctx context.Context, c Candidate, taskID string) {
	cc, ok := c.Adapter.(jobCanceller)
	if !ok {
		return
	}
	if err := cc.Cancel(context.WithoutCancel(ctx), taskID); err != nil {
		f.log.Warn("failed to cancel abandoned job", "provider", c.Entry.Name, "task_id", taskID, "error", err)
	}
}

func (f *FallbackRunner) recordAttempt(ctx context.Context, req JobRequest, c Candidate, a Attempt) {
	persistCtx := context.WithoutCancel(ctx)
	if a.Outcome != OutcomeCancelled {
		errMsg := ""
		if a.Err != nil {
			errMsg = a.Err.Error()
		}
		f.registry.ReportHealth(persistCtx, c.Entry.ID, a.Outcome == OutcomeSucceeded, errMsg)
	}

	severity := models.SeverityWarning
	if a.Outcome == OutcomeSucceeded {
		severity = models.SeverityInfo
	}
	meta := map[string]interface{}{
		"capability":   req.Capability,
		"provider":     a.Provider,
		"outcome":      string(a.Outcome),
		"task_id":      a.TaskID,
		"scene_id":     req.SceneID,
		"scene_number": req.SceneNumber,
		"elapsed_ms":   a.Elapsed.Milliseconds(),
	}
	if a.Err != nil {
		meta["error"] = a.Err.Error()
	}
	f.activity.Record(persistCtx, Event{
		ProjectID: req.ProjectID,
		Category:  CategoryProviderAttempt,
		Severity:  severity,
		Message:   fmt.Sprintf("%s provider %s: %s", req.Capability, a.Provider, a.Outcome),
		Metadata:  meta,
	})
}
