package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"VideoFactory-server/models"
)

// MockAdapter stands in for a provider without credentials. It returns
// deterministic placeholder URLs and finishes on the first poll.
type MockAdapter struct {
	name       string
	capability string
	seq        atomic.Int64

	mu   sync.Mutex
	jobs map[string]string
}

func NewMockAdapter(name, capability string) *MockAdapter {
	return &MockAdapter{name: name, capability: capability, jobs: make(map[string]string)}
}

func (m *MockAdapter) Name() string { return m.name }

func (m *MockAdapter) Start(ctx context.Context, input string, params JobParams) (string, error) {
	id := fmt.Sprintf("%s-%d", m.name, m.seq.Add(1))
	m.mu.Lock()
	m.jobs[id] = MockOutputURL(m.capability, input)
	m.mu.Unlock()
	return id, nil
}

func (m *MockAdapter) Poll(ctx context.Context, taskID string) (PollResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	url, ok := m.jobs[taskID]
	if !ok {
		return PollResult{State: JobFailed, Error: "unknown task " + taskID}, nil
	}
	return PollResult{State: JobSucceeded, OutputURL: url}, nil
}

// MockOutputURL derives the placeholder URL from the first 20 characters of input.
func MockOutputURL(capability, input string) string {
	slug := []rune(strings.TrimSpace(input))
	if len(slug) > 20 {
		slug = slug[:20]
	}
	s := strings.ReplaceAll(string(slug), " ", "-")
	switch capability {
	case models.CapabilityVoiceover:
		return "https://mock-audio.example.com/" + s + ".mp3"
	case models.CapabilityImage:
		return "https://mock-image.example.com/" + s + ".png"
	default:
		return "https://mock-video.example.com/" + s + ".mp4"
	}
}
