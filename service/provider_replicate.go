package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"VideoFactory-server/models"
)

// ReplicateAdapter runs a model through Replicate predictions. It serves
// video and image capabilities depending on the model.
type ReplicateAdapter struct {
	name       string
	baseURL    string
	apiKey     string
	model      string
	capability string
	client     *http.Client
}

func NewReplicateAdapter(name, baseURL, apiKey, model, capability string) *ReplicateAdapter {
	return &ReplicateAdapter{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		capability: capability,
		client:     newHTTPClient(),
	}
}

func (a *ReplicateAdapter) Name() string { return a.name }

func (a *ReplicateAdapter) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.apiKey}
}

type replicatePrediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  interface{}     `json:"error"`
}

func (a *ReplicateAdapter) Start(ctx context.Context, input string, params JobParams) (string, error) {
	in := map[string]interface{}{"prompt": input}
	if params.AspectRatio != "" {
		in["aspect_ratio"] = params.AspectRatio
	}
	if a.capability == models.CapabilityVideo && params.Duration > 0 {
		in["duration"] = params.Duration
	}
	var resp replicatePrediction
	url := fmt.Sprintf("%s/models/%s/predictions", a.baseURL, a.model)
	if err := doJSON(ctx, a.client, http.MethodPost, url, a.headers(), map[string]interface{}{"input": in}, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", errors.New("response missing 'id'")
	}
	return resp.ID, nil
}

func (a *ReplicateAdapter) Poll(ctx context.Context, taskID string) (PollResult, error) {
	var resp replicatePrediction
	if err := doJSON(ctx, a.client, http.MethodGet, a.baseURL+"/predictions/"+taskID, a.headers(), nil, &resp); err != nil {
		return PollResult{}, err
	}
	switch resp.Status {
	case "succeeded":
		url := firstOutput(resp.Output)
		if url == "" {
			return PollResult{State: JobFailed, Error: "succeeded without output"}, nil
		}
		return PollResult{State: JobSucceeded, OutputURL: url}, nil
	case "failed", "canceled":
		msg := resp.Status
		if resp.Error != nil {
			msg = fmt.Sprint(resp.Error)
		}
		return PollResult{State: JobFailed, Error: msg}, nil
	default:
		return PollResult{State: JobRunning}, nil
	}
}

// firstOutput accepts both a single URL and a list of URLs.
func firstOutput(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}
