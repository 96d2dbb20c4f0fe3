package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"VideoFactory-server/config"
	"VideoFactory-server/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeBody(t *testing.T, r *http.Request) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestRunwayAdapter(t *testing.T) {
	var mu sync.Mutex
	var polls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "Bearer rk", r.Header.Get("Authorization"))
		assert.Equal(t, runwayAPIVersion, r.Header.Get("X-Runway-Version"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/text_to_video":
			body := decodeBody(t, r)
			assert.Equal(t, "a fox", body["promptText"])
			assert.Equal(t, 10.0, body["duration"])
			assert.Equal(t, "768:1280", body["ratio"])
			_, _ = w.Write([]byte(`{"id":"task-1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/tasks/task-1":
			polls++
			if polls == 1 {
				_, _ = w.Write([]byte(`{"status":"RUNNING"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":"SUCCEEDED","output":["https://runway.test/out.mp4"]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a := NewRunwayAdapter("runway", srv.URL, "rk", "")
	id, err := a.Start(context.Background(), "a fox", JobParams{Duration: 8, AspectRatio: "9:16"})
	require.NoError(t, err)
	assert.Equal(t, "task-1", id)

	res, err := a.Poll(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, JobRunning, res.State)
	res, err = a.Poll(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, PollResult{State: JobSucceeded, OutputURL: "https://runway.test/out.mp4"}, res)
}

func TestRunwayAdapterStartRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"quota"}`))
	}))
	defer srv.Close()

	_, err := NewRunwayAdapter("runway", srv.URL, "rk", "").Start(context.Background(), "x", JobParams{})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
	assert.Contains(t, se.Body, "quota")
}

func TestPikaAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/generate":
			body := decodeBody(t, r)
			assert.Equal(t, "cinematic", body["style"])
			_, _ = w.Write([]byte(`{"job_id":"p-9"}`))
		case "/jobs/p-9":
			_, _ = w.Write([]byte(`{"status":"failed","error":"nsfw filter"}`))
		}
	}))
	defer srv.Close()

	a := NewPikaAdapter("pika", srv.URL, "pk")
	id, err := a.Start(context.Background(), "a fox", JobParams{Duration: 5})
	require.NoError(t, err)
	assert.Equal(t, "p-9", id)
	res, err := a.Poll(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, res.State)
	assert.Equal(t, "nsfw filter", res.Error)
}

func TestReplicateAdapterOutputShapes(t *testing.T) {
	var mu sync.Mutex
	output := `"https://replicate.test/one.mp4"`
	setOutput := func(o string) {
		mu.Lock()
		output = o
		mu.Unlock()
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case r.Method == http.MethodPost:
			assert.Equal(t, "/models/acme/zoom/predictions", r.URL.Path)
			body := decodeBody(t, r)
			in := body["input"].(map[string]interface{})
			assert.Equal(t, 5.0, in["duration"])
			_, _ = w.Write([]byte(`{"id":"pred-1","status":"starting"}`))
		default:
			_, _ = w.Write([]byte(`{"id":"pred-1","status":"succeeded","output":` + output + `}`))
		}
	}))
	defer srv.Close()

	a := NewReplicateAdapter("replicate", srv.URL, "tok", "acme/zoom", models.CapabilityVideo)
	id, err := a.Start(context.Background(), "a fox", JobParams{Duration: 5})
	require.NoError(t, err)

	res, err := a.Poll(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "https://replicate.test/one.mp4", res.OutputURL)

	setOutput(`["https://replicate.test/a.mp4","https://replicate.test/b.mp4"]`)
	res, err = a.Poll(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "https://replicate.test/a.mp4", res.OutputURL)

	setOutput(`null`)
	res, err = a.Poll(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, res.State)
}

func TestWorkerAdapterStatusesAndCancel(t *testing.T) {
	var mu sync.Mutex
	var deleted []string
	status := "processing"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/generate":
			body := decodeBody(t, r)
			assert.Equal(t, models.CapabilityVoiceover, body["type"])
			params := body["parameters"].(map[string]interface{})
			assert.Equal(t, "hello", params["text"])
			_, _ = w.Write([]byte(`{"id":"w-1","job_id":"ignored"}`))
		case r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`{"status":"` + status + `","result":{"resource_url":"https://worker.test/a.mp3"}}`))
		case r.Method == http.MethodDelete:
			deleted = append(deleted, strings.TrimPrefix(r.URL.Path, "/v1/jobs/"))
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	a := NewWorkerAdapter("gpu-worker-tts", srv.URL, models.CapabilityVoiceover)
	id, err := a.Start(context.Background(), "hello", JobParams{})
	require.NoError(t, err)
	assert.Equal(t, "w-1", id)

	res, err := a.Poll(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, JobRunning, res.State)

	mu.Lock()
	status = "Finished"
	mu.Unlock()
	res, err = a.Poll(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, JobSucceeded, res.State)
	assert.Equal(t, "https://worker.test/a.mp3", res.OutputURL)

	require.NoError(t, a.Cancel(context.Background(), id))
	mu.Lock()
	assert.Equal(t, []string{"w-1"}, deleted)
	mu.Unlock()
	assert.Error(t, a.Cancel(context.Background(), ""))
}

func TestFallbackCancelsAbandonedWorkerJob(t *testing.T) {
	var deletes int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			_, _ = w.Write([]byte(`{"id":"w-7"}`))
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"status":"queued"}`))
		case http.MethodDelete:
			mu.Lock()
			deletes++
			mu.Unlock()
		}
	}))
	defer srv.Close()

	store := newTestStore(t)
	seedProvider(t, store, models.CapabilityVideo, "gpu-worker", 10, true)
	fb := newTestFallback(t, store, &recordingSink{}, NewWorkerAdapter("gpu-worker", srv.URL, models.CapabilityVideo))

	_, err := fb.Run(context.Background(), videoJob())
	assert.ErrorIs(t, err, ErrProviderTimeout)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, deletes)
}

type memUploader struct {
	objects map[string][]byte
}

func (m *memUploader) Upload(ctx context.Context, reader io.Reader, objectName string, size int64) (string, error) {
	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, reader); err != nil {
		return "", err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[objectName] = buf.Bytes()
	return "https://bucket.test/" + objectName, nil
}

func TestElevenLabsAdapterUploadsAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/text-to-speech/voice-x", r.URL.Path)
		assert.Equal(t, "xi", r.Header.Get("xi-api-key"))
		_, _ = w.Write([]byte("ID3-fake-mp3"))
	}))
	defer srv.Close()

	up := &memUploader{}
	a := NewElevenLabsAdapter("elevenlabs", srv.URL, "xi", "voice-x", "", up)
	id, err := a.Start(context.Background(), "hello", JobParams{ObjectKey: "projects/p/scenes/1/voiceover.mp3"})
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3-fake-mp3"), up.objects["projects/p/scenes/1/voiceover.mp3"])

	res, err := a.Poll(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, PollResult{State: JobSucceeded, OutputURL: "https://bucket.test/projects/p/scenes/1/voiceover.mp3"}, res)

	res, err = a.Poll(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, res.State, "a result is handed out once")

	_, err = NewElevenLabsAdapter("elevenlabs", srv.URL, "xi", "", "", nil).Start(context.Background(), "hello", JobParams{})
	assert.Error(t, err)
}

func TestShotstackBackend(t *testing.T) {
	var mu sync.Mutex
	var submitted RenderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "sk", r.Header.Get("x-api-key"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/render":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&submitted))
			_, _ = w.Write([]byte(`{"success":true,"response":{"id":"r-1"}}`))
		case r.URL.Path == "/render/r-1":
			_, _ = w.Write([]byte(`{"success":true,"response":{"id":"r-1","status":"done","url":"https://shotstack.test/r-1.mp4"}}`))
		case r.URL.Path == "/render/r-2":
			_, _ = w.Write([]byte(`{"success":true,"response":{"id":"r-2","status":"rendering"}}`))
		}
	}))
	defer srv.Close()

	b := NewShotstackBackend(srv.URL+"/", "sk")
	tl := BuildTimeline([]TimelineScene{timelineScene(1, 0, 5, "c1.mp4", "")}, nil)
	id, err := b.Submit(context.Background(), RenderRequest{Timeline: tl, Output: Output{Format: "mp4"}})
	require.NoError(t, err)
	assert.Equal(t, "r-1", id)
	mu.Lock()
	assert.Equal(t, "c1.mp4", submitted.Timeline.Tracks[0].Clips[0].Asset.Src)
	mu.Unlock()

	res, err := b.Poll(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, "https://shotstack.test/r-1.mp4", res.OutputURL)
	res, err = b.Poll(context.Background(), "r-2")
	require.NoError(t, err)
	assert.Equal(t, JobRunning, res.State)
}

func TestBuildAdaptersFallsBackToMock(t *testing.T) {
	t.Setenv("VF_TEST_RUNWAY_KEY", "")
	t.Setenv("VF_TEST_PIKA_KEY", "pk")
	adapters := BuildAdapters([]config.ProviderConfig{
		{Name: "runway", Kind: "runway", Capability: models.CapabilityVideo, APIKeyEnv: "VF_TEST_RUNWAY_KEY"},
		{Name: "pika", Kind: "pika", Capability: models.CapabilityVideo, APIKeyEnv: "VF_TEST_PIKA_KEY"},
		{Name: "gpu", Kind: "worker", Capability: models.CapabilityVideo, BaseURL: "http://worker"},
		{Name: "odd", Kind: "carrier-pigeon", Capability: models.CapabilityVideo, APIKeyEnv: "VF_TEST_PIKA_KEY"},
	}, nil, testLogger())

	require.Len(t, adapters, 3)
	assert.IsType(t, &MockAdapter{}, adapters[0])
	assert.Equal(t, "runway", adapters[0].Name())
	assert.IsType(t, &PikaAdapter{}, adapters[1])
	assert.IsType(t, &WorkerAdapter{}, adapters[2])
}

func TestMockAdapterDeterministicURL(t *testing.T) {
	m := NewMockAdapter("runway", models.CapabilityVideo)
	id, err := m.Start(context.Background(), "a very long prompt about coffee beans", JobParams{})
	require.NoError(t, err)
	res, err := m.Poll(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "https://mock-video.example.com/a-very-long-prompt-a.mp4", res.OutputURL)
	assert.Equal(t, res.OutputURL, MockOutputURL(models.CapabilityVideo, "a very long prompt about coffee beans"))
	assert.True(t, strings.HasSuffix(MockOutputURL(models.CapabilityVoiceover, "hi"), "/hi.mp3"))
}

func TestStatusErrorBodyKeepsRunesIntact(t *testing.T) {
	body := strings.Repeat("é", maxErrorBody+10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, body)
	}))
	defer srv.Close()

	err := doJSON(context.Background(), srv.Client(), http.MethodGet, srv.URL, nil, nil, nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Code)
	assert.True(t, utf8.ValidString(se.Body))
	assert.True(t, strings.HasSuffix(se.Body, "..."))
	assert.Equal(t, maxErrorBody+3, utf8.RuneCountInString(se.Body))
}
