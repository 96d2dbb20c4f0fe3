package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"VideoFactory-server/config"
	"VideoFactory-server/logger"
	"VideoFactory-server/models"
)

const (
	musicVolume      = 0.25
	sceneTransition  = "fade"
	musicEffect      = "fadeInFadeOut"
	defaultOutFormat = "mp4"
)

// Timeline is a render edit in the Shotstack edit API shape.
type Timeline struct {
	Soundtrack *Soundtrack `json:"soundtrack,omitempty"`
	Background string      `json:"background,omitempty"`
	Tracks     []Track     `json:"tracks"`
}

type Soundtrack struct {
	Src    string  `json:"src"`
	Effect string  `json:"effect,omitempty"`
	Volume float64 `json:"volume"`
}

type Track struct {
	Clips []TimelineClip `json:"clips"`
}

type TimelineClip struct {
	Asset      Asset       `json:"asset"`
	Start      float64     `json:"start"`
	Length     float64     `json:"length"`
	Transition *Transition `json:"transition,omitempty"`
}

type Asset struct {
	Type   string  `json:"type"`
	Src    string  `json:"src"`
	Volume float64 `json:"volume,omitempty"`
}

type Transition struct {
	In string `json:"in,omitempty"`
}

type Output struct {
	Format string `json:"format"`
	FPS    int    `json:"fps,omitempty"`
	Size   *Size  `json:"size,omitempty"`
}

type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RenderRequest is one edit submitted to a render backend.
type RenderRequest struct {
	Timeline Timeline `json:"timeline"`
	Output   Output   `json:"output"`
}

// TimelineScene joins a ready scene with its clip and optional voiceover.
type TimelineScene struct {
	Scene     models.Scene
	Clip      models.Clip
	Voiceover *models.AudioTrack
}

// BuildTimeline lays the scenes out by start offset: one video track with a
// fade into every clip but the first, one voiceover track aligned to the
// scene offsets and cut to the scene length, and an optional music bed.
// Shotstack renders the first track on top, so voiceover comes first.
func BuildTimeline(scenes []TimelineScene, music *models.AudioTrack) Timeline {
	ordered := make([]TimelineScene, len(scenes))
	copy(ordered, scenes)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Scene.StartOffset < ordered[j].Scene.StartOffset
	})

	var video, voice Track
	video.Clips = make([]TimelineClip, 0, len(ordered))
	for i, s := range ordered {
		start := float64(s.Scene.StartOffset)
		length := float64(s.Scene.Duration)
		clip := TimelineClip{
			Asset:  Asset{Type: "video", Src: s.Clip.OutputURL},
			Start:  start,
			Length: length,
		}
		if i > 0 {
			t := s.Scene.Transition
			if t == "" {
				t = sceneTransition
			}
			clip.Transition = &Transition{In: t}
		}
		video.Clips = append(video.Clips, clip)

		if s.Voiceover != nil && s.Voiceover.OutputURL != "" {
			voice.Clips = append(voice.Clips, TimelineClip{
				Asset:  Asset{Type: "audio", Src: s.Voiceover.OutputURL, Volume: 1},
				Start:  start,
				Length: length,
			})
		}
	}

	tl := Timeline{Background: "#000000"}
	if len(voice.Clips) > 0 {
		tl.Tracks = append(tl.Tracks, voice)
	}
	tl.Tracks = append(tl.Tracks, video)
	if music != nil && music.OutputURL != "" {
		tl.Soundtrack = &Soundtrack{Src: music.OutputURL, Effect: musicEffect, Volume: musicVolume}
	}
	return tl
}

// Assembler renders a project whose scenes are all ready. It is pinned to a
// single backend; there is no fallback for rendering.
type Assembler struct {
	store        *models.Store
	backend      RenderBackend
	activity     ActivitySink
	mirror       AssetMirror
	log          *logger.Logger
	output       Output
	pollInterval time.Duration
	timeout      time.Duration
	now          func() time.Time
}

func NewAssembler(store *models.Store, backend RenderBackend, activity ActivitySink, mirror AssetMirror, log *logger.Logger, render config.RenderConfig, pipeline config.Pipeline) *Assembler {
	pipeline = pipeline.WithDefaults()
	out := Output{Format: defaultOutFormat, FPS: render.FPS}
	if render.Width > 0 && render.Height > 0 {
		out.Size = &Size{Width: render.Width, Height: render.Height}
	}
	return &Assembler{
		store:        store,
		backend:      backend,
		activity:     activity,
		mirror:       mirror,
		log:          log.Component("Assembler"),
		output:       out,
		pollInterval: pipeline.PollInterval,
		timeout:      pipeline.RenderTimeout,
		now:          time.Now,
	}
}

// Assemble renders the project and returns its terminal status and reason.
// Scene, clip and audio records are never modified here.
func (a *Assembler) Assemble(ctx context.Context, project *models.Project) (string, string, error) {
	persistCtx := context.WithoutCancel(ctx)
	scenes, music, err := a.collect(persistCtx, project.ID)
	if err != nil {
		return "", "", err
	}
	if len(scenes) == 0 {
		return a.fail(persistCtx, project.ID, "no ready clips to assemble")
	}

	req := RenderRequest{Timeline: BuildTimeline(scenes, music), Output: a.output}
	renderID, err := a.backend.Submit(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return a.cancelled(persistCtx, project.ID, "", context.Cause(ctx))
		}
		return a.fail(persistCtx, project.ID, fmt.Sprintf("render submit via %s: %v", a.backend.Name(), err))
	}
	if err := a.store.UpdateProject(persistCtx, project.ID, map[string]interface{}{"render_id": renderID}); err != nil {
		a.log.Warn("failed to save render id", "project_id", project.ID, "error", err)
	}
	a.log.Info("render submitted", "project_id", project.ID, "render_id", renderID, "clips", len(scenes))

	watch := newJobWatch(a.backend, renderID, a.timeout, a.now)
	status, res, werr := watch.wait(ctx, a.pollInterval)
	switch {
	case werr != nil:
		return a.cancelled(persistCtx, project.ID, renderID, context.Cause(ctx))
	case status == watchFailed:
		msg := res.Error
		if msg == "" {
			msg = "render failed"
		}
		return a.fail(persistCtx, project.ID, fmt.Sprintf("render %s: %s", renderID, msg))
	case status == watchTimedOut:
		return a.fail(persistCtx, project.ID, fmt.Sprintf("render %s timed out after %s", renderID, a.timeout))
	}

	url := res.OutputURL
	if a.mirror != nil && url != "" {
		if mirrored, err := a.mirror.Mirror(persistCtx, url, fmt.Sprintf("projects/%s/final.mp4", project.ID)); err != nil {
			a.log.Warn("mirror of final render failed, keeping backend url", "project_id", project.ID, "error", err)
		} else {
			url = mirrored
		}
	}
	if err := a.store.UpdateProject(persistCtx, project.ID, map[string]interface{}{
		"status":     models.ProjectStatusCompleted,
		"output_url": url,
		"error":      "",
	}); err != nil {
		return "", "", fmt.Errorf("mark project completed: %w", err)
	}
	a.activity.Record(persistCtx, Event{
		ProjectID: project.ID,
		Category:  CategoryAssembly,
		Severity:  models.SeverityInfo,
		Message:   "render completed",
		Metadata:  map[string]interface{}{"render_id": renderID, "output_url": url, "backend": a.backend.Name()},
	})
	return models.ProjectStatusCompleted, "", nil
}

func (a *Assembler) collect(ctx context.Context, projectID string) ([]TimelineScene, *models.AudioTrack, error) {
	scenes, err := a.store.ListScenes(ctx, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("list scenes: %w", err)
	}
	clips, err := a.store.ListClips(ctx, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("list clips: %w", err)
	}
	tracks, err := a.store.ListAudioTracks(ctx, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("list audio tracks: %w", err)
	}

	clipByScene := make(map[string]models.Clip, len(clips))
	for _, c := range clips {
		if c.Status == models.StatusReady && c.OutputURL != "" {
			clipByScene[c.SceneID] = c
		}
	}
	voiceByScene := make(map[string]*models.AudioTrack)
	var music *models.AudioTrack
	for i := range tracks {
		t := &tracks[i]
		if t.Status != models.StatusReady {
			continue
		}
		switch t.Kind {
		case models.AudioKindVoiceover:
			voiceByScene[t.SceneID] = t
		case models.AudioKindMusic:
			music = t
		}
	}

	var out []TimelineScene
	for _, s := range scenes {
		c, ok := clipByScene[s.ID]
		if !ok {
			continue
		}
		out = append(out, TimelineScene{Scene: s, Clip: c, Voiceover: voiceByScene[s.ID]})
	}
	return out, music, nil
}

func (a *Assembler) fail(ctx context.Context, projectID, reason string) (string, string, error) {
	if err := a.store.UpdateProject(ctx, projectID, map[string]interface{}{
		"status": models.ProjectStatusFailed,
		"error":  reason,
	}); err != nil {
		return "", "", fmt.Errorf("mark project failed: %w", err)
	}
	a.log.Warn("assembly failed", "project_id", projectID, "reason", reason)
	a.activity.Record(ctx, Event{
		ProjectID: projectID,
		Category:  CategoryAssembly,
		Severity:  models.SeverityError,
		Message:   "assembly failed",
		Metadata:  map[string]interface{}{"reason": reason, "backend": a.backend.Name()},
	})
	return models.ProjectStatusFailed, reason, nil
}

// cancelled ends a render wait interrupted by the run context. Ready scene
// records are left alone.
func (a *Assembler) cancelled(ctx context.Context, projectID, renderID string, cause error) (string, string, error) {
	reason := fmt.Sprintf("cancelled: %v", cause)
	if err := a.store.MarkCancelled(ctx, projectID, reason); err != nil {
		return "", "", fmt.Errorf("mark project cancelled: %w", err)
	}
	a.log.Warn("assembly cancelled", "project_id", projectID, "render_id", renderID, "reason", reason)
	a.activity.Record(ctx, Event{
		ProjectID: projectID,
		Category:  CategoryAssembly,
		Severity:  models.SeverityWarning,
		Message:   "assembly cancelled",
		Metadata:  map[string]interface{}{"reason": reason, "render_id": renderID, "backend": a.backend.Name()},
	})
	return models.ProjectStatusCancelled, reason, nil
}
