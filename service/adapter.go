package service

import (
	"context"
	"time"
)

// JobState is the provider-neutral state of a generation or render job.
type JobState string

const (
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// PollResult is what one poll of a provider job reports.
type PollResult struct {
	State     JobState
	OutputURL string
	Error     string
}

// JobParams carries the per-job knobs adapters may honor. Unknown fields are
// ignored by providers that have no equivalent.
type JobParams struct {
	Duration    int
	AspectRatio string
	Voice       string
	// ObjectKey is a stable storage key for adapters that persist bytes themselves.
	ObjectKey string
}

// Adapter normalizes one provider's job contract. Start submits a job and
// returns its task id; Poll reports its state. A Poll error is transient and
// the caller keeps polling until its own deadline.
type Adapter interface {
	Name() string
	Start(ctx context.Context, input string, params JobParams) (string, error)
	Poll(ctx context.Context, taskID string) (PollResult, error)
}

// poller is the polling half shared by provider adapters and render backends.
type poller interface {
	Poll(ctx context.Context, taskID string) (PollResult, error)
}

// jobWatch is the explicit poll state machine for one submitted job. Each
// step issues exactly one poll; the deadline turns "still running" into a
// timeout.
type jobWatch struct {
	source   poller
	taskID   string
	deadline time.Time
	now      func() time.Time
	lastErr  error
}

type watchStatus int

const (
	watchRunning watchStatus = iota
	watchSucceeded
	watchFailed
	watchTimedOut
)

func newJobWatch(source poller, taskID string, timeout time.Duration, now func() time.Time) *jobWatch {
	if now == nil {
		now = time.Now
	}
	return &jobWatch{
		source:   source,
		taskID:   taskID,
		deadline: now().Add(timeout),
		now:      now,
	}
}

func (w *jobWatch) step(ctx context.Context) (watchStatus, PollResult) {
	res, err := w.source.Poll(ctx, w.taskID)
	if err != nil {
		w.lastErr = err
		res = PollResult{State: JobRunning}
	}
	switch res.State {
	case JobSucceeded:
		return watchSucceeded, res
	case JobFailed:
		return watchFailed, res
	}
	if !w.now().Before(w.deadline) {
		return watchTimedOut, res
	}
	return watchRunning, res
}

// wait drives step on a fixed interval until the job is terminal, times out
// or ctx is done. The first poll is issued immediately.
func (w *jobWatch) wait(ctx context.Context, interval time.Duration) (watchStatus, PollResult, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := ctx.Err(); err != nil {
			return watchRunning, PollResult{}, err
		}
		status, res := w.step(ctx)
		if status != watchRunning {
			return status, res, nil
		}
		select {
		case <-ctx.Done():
			return watchRunning, res, ctx.Err()
		case <-ticker.C:
		}
	}
}
