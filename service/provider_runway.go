package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const runwayAPIVersion = "2024-11-06"

// RunwayAdapter drives Runway's task API: a generation returns a task id,
// GET /tasks/{id} reports PENDING, THROTTLED, RUNNING, SUCCEEDED or FAILED.
type RunwayAdapter struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewRunwayAdapter(name, baseURL, apiKey, model string) *RunwayAdapter {
	if model == "" {
		model = "gen3a_turbo"
	}
	return &RunwayAdapter{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  newHTTPClient(),
	}
}

func (a *RunwayAdapter) Name() string { return a.name }

func (a *RunwayAdapter) headers() map[string]string {
	return map[string]string{
		"Authorization":    "Bearer " + a.apiKey,
		"X-Runway-Version": runwayAPIVersion,
	}
}

func (a *RunwayAdapter) Start(ctx context.Context, input string, params JobParams) (string, error) {
	body := map[string]interface{}{
		"promptText": input,
		"model":      a.model,
		"duration":   runwayDuration(params.Duration),
		"ratio":      runwayRatio(params.AspectRatio),
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := doJSON(ctx, a.client, http.MethodPost, a.baseURL+"/text_to_video", a.headers(), body, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", errors.New("response missing 'id'")
	}
	return resp.ID, nil
}

func (a *RunwayAdapter) Poll(ctx context.Context, taskID string) (PollResult, error) {
	var resp struct {
		Status  string   `json:"status"`
		Output  []string `json:"output"`
		Failure string   `json:"failure"`
	}
	if err := doJSON(ctx, a.client, http.MethodGet, a.baseURL+"/tasks/"+taskID, a.headers(), nil, &resp); err != nil {
		return PollResult{}, err
	}
	switch resp.Status {
	case "SUCCEEDED":
		if len(resp.Output) == 0 {
			return PollResult{State: JobFailed, Error: "succeeded without output"}, nil
		}
		return PollResult{State: JobSucceeded, OutputURL: resp.Output[0]}, nil
	case "FAILED", "CANCELLED":
		return PollResult{State: JobFailed, Error: fmt.Sprintf("runway %s: %s", strings.ToLower(resp.Status), resp.Failure)}, nil
	default:
		return PollResult{State: JobRunning}, nil
	}
}

// runwayDuration maps a scene length onto the 5s / 10s clips Runway renders.
func runwayDuration(seconds int) int {
	if seconds > 5 {
		return 10
	}
	return 5
}

func runwayRatio(aspect string) string {
	switch aspect {
	case "16:9":
		return "1280:768"
	default:
		return "768:1280"
	}
}
