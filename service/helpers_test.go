package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"VideoFactory-server/config"
	"VideoFactory-server/logger"
	"VideoFactory-server/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *models.Store {
	t.Helper()
	db, err := models.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return models.NewStore(db)
}

func fastPipeline() config.Pipeline {
	return config.Pipeline{
		PollInterval:     time.Millisecond,
		VideoTimeout:     time.Second,
		VoiceoverTimeout: time.Second,
		ImageTimeout:     time.Second,
		RenderTimeout:    time.Second,
	}
}

func seedProvider(t *testing.T, store *models.Store, capability, name string, priority int, enabled bool) *models.ProviderEntry {
	t.Helper()
	e := &models.ProviderEntry{
		ID:         uuid.NewString(),
		Capability: capability,
		Name:       name,
		Priority:   priority,
		IsEnabled:  enabled,
		Health:     models.HealthUnknown,
	}
	require.NoError(t, store.CreateProvider(context.Background(), e))
	return e
}

// fakeAdapter scripts a provider: a start error, a number of running polls
// before the final result, or a job that never finishes.
type fakeAdapter struct {
	name         string
	startErr     error
	runningPolls int
	final        PollResult
	hang         bool
	onStart      func(input string)
	rejectIf     func(input string) bool

	mu     sync.Mutex
	starts []string
	polls  int
	seq    int
}

func succeeding(name string) *fakeAdapter {
	return &fakeAdapter{name: name, final: PollResult{State: JobSucceeded, OutputURL: "https://cdn.test/" + name}}
}

func failingStart(name string) *fakeAdapter {
	return &fakeAdapter{name: name, startErr: errors.New(name + " rejected the job")}
}

func failingJob(name string) *fakeAdapter {
	return &fakeAdapter{name: name, final: PollResult{State: JobFailed, Error: name + " blew up"}}
}

func hanging(name string) *fakeAdapter {
	return &fakeAdapter{name: name, hang: true}
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Start(ctx context.Context, input string, params JobParams) (string, error) {
	f.mu.Lock()
	f.starts = append(f.starts, input)
	f.seq++
	seq := f.seq
	hook := f.onStart
	f.mu.Unlock()
	if hook != nil {
		hook(input)
	}
	if f.startErr != nil {
		return "", f.startErr
	}
	if f.rejectIf != nil && f.rejectIf(input) {
		return "", errors.New(f.name + " refused input")
	}
	return fmt.Sprintf("%s-task-%d", f.name, seq), nil
}

func (f *fakeAdapter) Poll(ctx context.Context, taskID string) (PollResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.hang || f.polls <= f.runningPolls {
		return PollResult{State: JobRunning}, nil
	}
	return f.final, nil
}

func (f *fakeAdapter) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts)
}

// recordingSink keeps events in memory.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Record(ctx context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) byCategory(category string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Category == category {
			out = append(out, e)
		}
	}
	return out
}

// steppingClock advances by step on every reading.
type steppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

func testLogger() *logger.Logger {
	return logger.Nop()
}
