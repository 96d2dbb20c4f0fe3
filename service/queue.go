package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"VideoFactory-server/logger"

	"github.com/hibiken/asynq"
)

const (
	TypeGenerateProject = "project:generate"
)

type GeneratePayload struct {
	ProjectID string `json:"project_id"`
}

// ProjectRunner executes one orchestration pass for a project.
type ProjectRunner interface {
	Run(ctx context.Context, projectID string) (*RunReport, error)
}

// Dispatcher starts a generation pass without waiting for it.
type Dispatcher interface {
	Dispatch(ctx context.Context, projectID string) error
}

// AsynqDispatcher enqueues passes into redis for the processor to pick up.
type AsynqDispatcher struct {
	client *asynq.Client
	log    *logger.Logger
}

func NewAsynqDispatcher(addr, password string, log *logger.Logger) *AsynqDispatcher {
	return &AsynqDispatcher{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     addr,
			Password: password,
		}),
		log: log.Component("Queue"),
	}
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, projectID string) error {
	payload, err := json.Marshal(GeneratePayload{ProjectID: projectID})
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}
	task := asynq.NewTask(TypeGenerateProject, payload,
		asynq.MaxRetry(3),
		// twenty scenes walking a full fallback chain take a while
		asynq.Timeout(3*time.Hour),
		asynq.Retention(24*time.Hour),
	)
	info, err := d.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}
	d.log.Info("generation enqueued", "project_id", projectID, "task_id", info.ID)
	return nil
}

func (d *AsynqDispatcher) Close() error {
	return d.client.Close()
}

// LocalDispatcher runs passes on goroutines of this process.
type LocalDispatcher struct {
	runner ProjectRunner
	log    *logger.Logger
	base   context.Context
	wg     sync.WaitGroup
}

// NewLocalDispatcher runs every pass under base, so cancelling base stops them.
func NewLocalDispatcher(base context.Context, runner ProjectRunner, log *logger.Logger) *LocalDispatcher {
	return &LocalDispatcher{runner: runner, base: base, log: log.Component("LocalDispatcher")}
}

func (d *LocalDispatcher) Dispatch(ctx context.Context, projectID string) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		report, err := d.runner.Run(d.base, projectID)
		if err != nil {
			d.log.Error("generation run failed", "project_id", projectID, "error", err)
			return
		}
		d.log.Info("generation run finished", "project_id", projectID, "status", report.Status, "reason", report.Reason)
	}()
	return nil
}

// Wait blocks until every dispatched pass has returned.
func (d *LocalDispatcher) Wait() {
	d.wg.Wait()
}
