package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"VideoFactory-server/config"
	"VideoFactory-server/logger"
)

// RenderBackend submits a timeline and reports the render like any other job.
type RenderBackend interface {
	Name() string
	Submit(ctx context.Context, req RenderRequest) (string, error)
	Poll(ctx context.Context, renderID string) (PollResult, error)
}

// NewRenderBackend builds the configured backend. Without an API key the
// shotstack backend degrades to the mock one.
func NewRenderBackend(cfg config.RenderConfig, log *logger.Logger) RenderBackend {
	switch cfg.Backend {
	case "shotstack":
		key := cfg.APIKey()
		if key == "" {
			log.Warn("render api key not set, using mock render backend", "env", cfg.APIKeyEnv)
			return NewMockRenderBackend()
		}
		return NewShotstackBackend(cfg.BaseURL, key)
	default:
		return NewMockRenderBackend()
	}
}

// ShotstackBackend talks to the Shotstack edit API.
type ShotstackBackend struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewShotstackBackend(baseURL, apiKey string) *ShotstackBackend {
	return &ShotstackBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  newHTTPClient(),
	}
}

func (s *ShotstackBackend) Name() string { return "shotstack" }

type shotstackResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Response struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		URL    string `json:"url"`
		Error  string `json:"error"`
	} `json:"response"`
}

func (s *ShotstackBackend) headers() map[string]string {
	return map[string]string{"x-api-key": s.apiKey}
}

func (s *ShotstackBackend) Submit(ctx context.Context, req RenderRequest) (string, error) {
	var resp shotstackResponse
	if err := doJSON(ctx, s.client, http.MethodPost, s.baseURL+"/render", s.headers(), req, &resp); err != nil {
		return "", fmt.Errorf("shotstack submit: %w", err)
	}
	if resp.Response.ID == "" {
		return "", fmt.Errorf("shotstack submit: response missing id: %s", resp.Message)
	}
	return resp.Response.ID, nil
}

func (s *ShotstackBackend) Poll(ctx context.Context, renderID string) (PollResult, error) {
	var resp shotstackResponse
	if err := doJSON(ctx, s.client, http.MethodGet, s.baseURL+"/render/"+renderID, s.headers(), nil, &resp); err != nil {
		return PollResult{}, fmt.Errorf("shotstack poll: %w", err)
	}
	switch resp.Response.Status {
	case "done":
		if resp.Response.URL == "" {
			return PollResult{State: JobFailed, Error: "render done without url"}, nil
		}
		return PollResult{State: JobSucceeded, OutputURL: resp.Response.URL}, nil
	case "failed":
		return PollResult{State: JobFailed, Error: resp.Response.Error}, nil
	default:
		// queued, fetching, rendering, saving
		return PollResult{State: JobRunning}, nil
	}
}

// MockRenderBackend finishes every render on the first poll.
type MockRenderBackend struct {
	seq     atomic.Int64
	mu      sync.Mutex
	renders map[string]RenderRequest
}

func NewMockRenderBackend() *MockRenderBackend {
	return &MockRenderBackend{renders: make(map[string]RenderRequest)}
}

func (m *MockRenderBackend) Name() string { return "mock" }

func (m *MockRenderBackend) Submit(ctx context.Context, req RenderRequest) (string, error) {
	if len(req.Timeline.Tracks) == 0 {
		return "", errors.New("empty timeline")
	}
	id := fmt.Sprintf("mock-render-%d", m.seq.Add(1))
	m.mu.Lock()
	m.renders[id] = req
	m.mu.Unlock()
	return id, nil
}

func (m *MockRenderBackend) Poll(ctx context.Context, renderID string) (PollResult, error) {
	m.mu.Lock()
	_, ok := m.renders[renderID]
	m.mu.Unlock()
	if !ok {
		return PollResult{State: JobFailed, Error: "unknown render " + renderID}, nil
	}
	return PollResult{State: JobSucceeded, OutputURL: "https://mock-render.example.com/" + renderID + ".mp4"}, nil
}

// Submitted returns the request recorded for a render id.
func (m *MockRenderBackend) Submitted(renderID string) (RenderRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.renders[renderID]
	return r, ok
}
