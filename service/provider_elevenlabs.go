package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const defaultVoiceID = "21m00Tcm4TlvDq8ikWAM"

// ElevenLabsAdapter synthesizes speech synchronously. Start uploads the audio
// and the job is already done on the first poll.
type ElevenLabsAdapter struct {
	name     string
	baseURL  string
	apiKey   string
	voice    string
	model    string
	uploader Uploader
	client   *http.Client

	mu      sync.Mutex
	results map[string]string
}

func NewElevenLabsAdapter(name, baseURL, apiKey, voice, model string, uploader Uploader) *ElevenLabsAdapter {
	if voice == "" {
		voice = defaultVoiceID
	}
	if model == "" {
		model = "eleven_turbo_v2_5"
	}
	return &ElevenLabsAdapter{
		name:     name,
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		voice:    voice,
		model:    model,
		uploader: uploader,
		client:   newHTTPClient(),
		results:  make(map[string]string),
	}
}

func (a *ElevenLabsAdapter) Name() string { return a.name }

func (a *ElevenLabsAdapter) Start(ctx context.Context, input string, params JobParams) (string, error) {
	if a.uploader == nil {
		return "", errors.New("no object storage configured for synthesized audio")
	}
	voice := a.voice
	if params.Voice != "" {
		voice = params.Voice
	}
	body, err := json.Marshal(map[string]interface{}{
		"text":     input,
		"model_id": a.model,
		"voice_settings": map[string]float64{
			"stability":        0.5,
			"similarity_boost": 0.75,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request failed: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/text-to-speech/"+voice, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("xi-api-key", a.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read audio failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Code: resp.StatusCode, Body: truncate(string(audio), maxErrorBody)}
	}
	if len(audio) == 0 {
		return "", errors.New("empty audio response")
	}

	taskID := uuid.NewString()
	key := params.ObjectKey
	if key == "" {
		key = "voiceovers/" + taskID + ".mp3"
	}
	url, err := a.uploader.Upload(ctx, bytes.NewReader(audio), key, int64(len(audio)))
	if err != nil {
		return "", fmt.Errorf("store audio: %w", err)
	}
	a.mu.Lock()
	a.results[taskID] = url
	a.mu.Unlock()
	return taskID, nil
}

func (a *ElevenLabsAdapter) Poll(ctx context.Context, taskID string) (PollResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	url, ok := a.results[taskID]
	if !ok {
		return PollResult{State: JobFailed, Error: "unknown task " + taskID}, nil
	}
	delete(a.results, taskID)
	return PollResult{State: JobSucceeded, OutputURL: url}, nil
}
