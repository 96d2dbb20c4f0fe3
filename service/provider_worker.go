package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"VideoFactory-server/models"

	"github.com/google/uuid"
)

// WorkerAdapter talks to a self-hosted GPU worker: POST /v1/generate queues a
// job, GET /v1/jobs/{id} reports it. Workers disagree on status spelling, so
// every known success and failure word is accepted.
type WorkerAdapter struct {
	name       string
	baseURL    string
	capability string
	client     *http.Client
}

func NewWorkerAdapter(name, baseURL, capability string) *WorkerAdapter {
	return &WorkerAdapter{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		capability: capability,
		client:     newHTTPClient(),
	}
}

func (a *WorkerAdapter) Name() string { return a.name }

func (a *WorkerAdapter) Start(ctx context.Context, input string, params JobParams) (string, error) {
	parameters := map[string]interface{}{"prompt": input}
	switch a.capability {
	case models.CapabilityVoiceover:
		parameters = map[string]interface{}{
			"text":   input,
			"voice":  params.Voice,
			"format": "mp3",
		}
	default:
		parameters["duration"] = params.Duration
		parameters["aspect_ratio"] = params.AspectRatio
	}
	body := map[string]interface{}{
		"id":         uuid.NewString(),
		"type":       a.capability,
		"parameters": parameters,
	}
	var resp map[string]interface{}
	if err := doJSON(ctx, a.client, http.MethodPost, a.baseURL+"/v1/generate", nil, body, &resp); err != nil {
		return "", err
	}
	// the root id wins over job_id
	if id := getString(resp, "id"); id != "" {
		return id, nil
	}
	if id := getString(resp, "job_id"); id != "" {
		return id, nil
	}
	return "", errors.New("response missing 'id'")
}

func (a *WorkerAdapter) Poll(ctx context.Context, taskID string) (PollResult, error) {
	var resp struct {
		Status string `json:"status"`
		Error  string `json:"error"`
		Result struct {
			ResourceURL string `json:"resource_url"`
		} `json:"result"`
	}
	if err := doJSON(ctx, a.client, http.MethodGet, fmt.Sprintf("%s/v1/jobs/%s", a.baseURL, taskID), nil, nil, &resp); err != nil {
		return PollResult{}, err
	}
	switch strings.ToLower(resp.Status) {
	case "finished", "success", "completed", "succeeded":
		if resp.Result.ResourceURL == "" {
			return PollResult{State: JobFailed, Error: "result missing resource_url"}, nil
		}
		return PollResult{State: JobSucceeded, OutputURL: resp.Result.ResourceURL}, nil
	case "failed", "error", "cancelled":
		return PollResult{State: JobFailed, Error: "worker reported failure: " + resp.Error}, nil
	default:
		return PollResult{State: JobRunning}, nil
	}
}

// Cancel asks the worker to drop a job.
func (a *WorkerAdapter) Cancel(ctx context.Context, taskID string) error {
	if taskID == "" {
		return errors.New("empty job id")
	}
	if err := doJSON(ctx, a.client, http.MethodDelete, a.baseURL+"/v1/jobs/"+taskID, nil, nil, nil); err != nil {
		return fmt.Errorf("worker delete request failed: %w", err)
	}
	return nil
}
