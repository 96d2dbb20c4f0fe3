package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"VideoFactory-server/logger"
	"VideoFactory-server/models"

	"github.com/hibiken/asynq"
)

// Processor consumes project:generate tasks.
type Processor struct {
	runner ProjectRunner
	log    *logger.Logger
	srv    *asynq.Server
}

func NewProcessor(runner ProjectRunner, log *logger.Logger) *Processor {
	return &Processor{runner: runner, log: log.Component("Processor")}
}

// StartProcessor starts the asynq server in the background.
func (p *Processor) StartProcessor(addr, password string, concurrency int) {
	p.srv = asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     addr,
			Password: password,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeGenerateProject, p.HandleGenerateProject)

	p.log.Info("starting processor", "concurrency", concurrency)
	go func() {
		if err := p.srv.Run(mux); err != nil {
			p.log.Fatal("could not run processor", "error", err)
		}
	}()
}

func (p *Processor) Shutdown() {
	if p.srv != nil {
		p.srv.Shutdown()
	}
}

// HandleGenerateProject runs one pass. Pipeline outcomes are recorded on the
// project and never retried; a missing project skips retries as well.
func (p *Processor) HandleGenerateProject(ctx context.Context, t *asynq.Task) error {
	var payload GeneratePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if payload.ProjectID == "" {
		return fmt.Errorf("empty project_id: %w", asynq.SkipRetry)
	}

	p.log.Info("processing generation", "project_id", payload.ProjectID)
	report, err := p.runner.Run(ctx, payload.ProjectID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		p.log.Error("generation run failed", "project_id", payload.ProjectID, "error", err)
		return err
	}
	p.log.Info("generation finished", "project_id", payload.ProjectID, "status", report.Status, "reason", report.Reason)
	return nil
}
