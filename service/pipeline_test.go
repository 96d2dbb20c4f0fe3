package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"VideoFactory-server/config"
	"VideoFactory-server/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// pipeline wires the real components over an in-memory store with scripted
// providers.
type pipeline struct {
	store     *models.Store
	sink      *recordingSink
	switches  *MemorySwitchStore
	registry  *Registry
	cancels   *CancelRegistry
	fallback  *FallbackRunner
	scenes    *SceneRunner
	assembler *Assembler
	orch      *Orchestrator
}

func newPipeline(t *testing.T, render RenderBackend, adapters ...Adapter) *pipeline {
	t.Helper()
	p := &pipeline{
		store:    newTestStore(t),
		sink:     &recordingSink{},
		switches: NewMemorySwitchStore(),
		cancels:  NewCancelRegistry(),
	}
	if render == nil {
		render = NewMockRenderBackend()
	}
	p.registry = NewRegistry(p.store, testLogger(), adapters...)
	p.fallback = NewFallbackRunner(p.registry, p.sink, testLogger(), fastPipeline())
	p.scenes = NewSceneRunner(p.store, p.fallback, p.sink, nil, testLogger())
	p.assembler = NewAssembler(p.store, render, p.sink, nil, testLogger(), config.RenderConfig{FPS: 25}, fastPipeline())
	p.orch = NewOrchestrator(p.store, p.scenes, p.assembler, NewControlPlane(p.switches, p.registry), p.cancels, p.sink, testLogger())
	return p
}

type sceneDef struct {
	prompt    string
	voiceover string
}

// createProject stores a project with one scene per definition, five seconds each.
func (p *pipeline) createProject(t *testing.T, defs []sceneDef, musicURL string) *models.Project {
	t.Helper()
	project := &models.Project{
		ID:         uuid.NewString(),
		Title:      "test",
		Status:     models.ProjectStatusPending,
		SceneCount: len(defs),
	}
	var scenes []models.Scene
	for i, s := range defs {
		scenes = append(scenes, models.Scene{
			ID:            uuid.NewString(),
			ProjectID:     project.ID,
			SceneNumber:   i + 1,
			VisualPrompt:  s.prompt,
			VoiceoverText: s.voiceover,
			Duration:      5,
			StartOffset:   i * 5,
			Transition:    "fade",
			Status:        models.StatusPending,
		})
		project.Duration += 5
	}
	var tracks []models.AudioTrack
	if musicURL != "" {
		tracks = append(tracks, models.AudioTrack{
			ID:        uuid.NewString(),
			ProjectID: project.ID,
			Kind:      models.AudioKindMusic,
			MusicRef:  musicURL,
			OutputURL: musicURL,
			Status:    models.StatusReady,
		})
	}
	require.NoError(t, p.store.CreateProjectWithScenes(context.Background(), project, scenes, tracks))
	return project
}

func plainScenes(n int) []sceneDef {
	defs := make([]sceneDef, n)
	for i := range defs {
		defs[i] = sceneDef{prompt: fmt.Sprintf("scene-%d product shot", i+1)}
	}
	return defs
}

func (p *pipeline) project(t *testing.T, id string) *models.Project {
	t.Helper()
	got, err := p.store.GetProject(context.Background(), id)
	require.NoError(t, err)
	return got
}

func (p *pipeline) sceneList(t *testing.T, id string) []models.Scene {
	t.Helper()
	scenes, err := p.store.ListScenes(context.Background(), id)
	require.NoError(t, err)
	return scenes
}

// fakeRender is a scripted render backend.
type fakeRender struct {
	hang     bool
	fail     string
	onSubmit func()

	mu       sync.Mutex
	requests []RenderRequest
}

func (f *fakeRender) Name() string { return "fake-render" }

func (f *fakeRender) Submit(ctx context.Context, req RenderRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	id := fmt.Sprintf("render-%d", len(f.requests))
	hook := f.onSubmit
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return id, nil
}

func (f *fakeRender) Poll(ctx context.Context, renderID string) (PollResult, error) {
	switch {
	case f.hang:
		return PollResult{State: JobRunning}, nil
	case f.fail != "":
		return PollResult{State: JobFailed, Error: f.fail}, nil
	}
	return PollResult{State: JobSucceeded, OutputURL: "https://render.test/" + renderID + ".mp4"}, nil
}

func (f *fakeRender) submitted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func stepClock(step time.Duration) func() time.Time {
	c := &steppingClock{now: time.Unix(0, 0), step: step}
	return c.Now
}
