package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// PikaAdapter drives Pika's generate / job endpoints.
type PikaAdapter struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewPikaAdapter(name, baseURL, apiKey string) *PikaAdapter {
	return &PikaAdapter{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  newHTTPClient(),
	}
}

func (a *PikaAdapter) Name() string { return a.name }

func (a *PikaAdapter) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.apiKey}
}

func (a *PikaAdapter) Start(ctx context.Context, input string, params JobParams) (string, error) {
	body := map[string]interface{}{
		"prompt":   input,
		"style":    "cinematic",
		"duration": params.Duration,
	}
	if params.AspectRatio != "" {
		body["aspect_ratio"] = params.AspectRatio
	}
	var resp map[string]interface{}
	if err := doJSON(ctx, a.client, http.MethodPost, a.baseURL+"/generate", a.headers(), body, &resp); err != nil {
		return "", err
	}
	if id := getString(resp, "id"); id != "" {
		return id, nil
	}
	if id := getString(resp, "job_id"); id != "" {
		return id, nil
	}
	return "", errors.New("response missing 'id'")
}

func (a *PikaAdapter) Poll(ctx context.Context, taskID string) (PollResult, error) {
	var resp map[string]interface{}
	if err := doJSON(ctx, a.client, http.MethodGet, a.baseURL+"/jobs/"+taskID, a.headers(), nil, &resp); err != nil {
		return PollResult{}, err
	}
	switch strings.ToLower(getString(resp, "status")) {
	case "finished", "completed", "succeeded", "success":
		url := getString(resp, "video_url")
		if url == "" {
			url = getString(resp, "url")
		}
		if url == "" {
			return PollResult{State: JobFailed, Error: "finished without video_url"}, nil
		}
		return PollResult{State: JobSucceeded, OutputURL: url}, nil
	case "failed", "error", "cancelled":
		return PollResult{State: JobFailed, Error: getString(resp, "error")}, nil
	default:
		return PollResult{State: JobRunning}, nil
	}
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
