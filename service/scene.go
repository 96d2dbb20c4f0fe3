package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"VideoFactory-server/logger"
	"VideoFactory-server/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ProductionSuffix closes every enriched clip prompt.
const ProductionSuffix = "Professional commercial video, smooth camera motion, consistent lighting, no text overlays."

// AssetMirror copies a finished provider output into our own bucket and
// returns the stable URL.
type AssetMirror interface {
	Mirror(ctx context.Context, sourceURL, objectName string) (string, error)
}

// SceneOutcome summarizes one scene visit.
type SceneOutcome struct {
	SceneID string
	Status  string
	Error   string
	Skipped bool
}

// SceneRunner moves one scene through pending -> generating -> ready|failed by
// running its clip and voiceover sub-jobs through the fallback chain.
type SceneRunner struct {
	store    *models.Store
	fallback *FallbackRunner
	activity ActivitySink
	mirror   AssetMirror
	log      *logger.Logger

	AspectRatio string
}

func NewSceneRunner(store *models.Store, fallback *FallbackRunner, activity ActivitySink, mirror AssetMirror, log *logger.Logger) *SceneRunner {
	return &SceneRunner{
		store:       store,
		fallback:    fallback,
		activity:    activity,
		mirror:      mirror,
		log:         log.Component("SceneRunner"),
		AspectRatio: "9:16",
	}
}

// EnrichPrompt builds the clip prompt for a scene at position index (0-based)
// of total. The output depends only on its inputs.
func EnrichPrompt(scene models.Scene, index, total int) string {
	position := "middle"
	switch {
	case index == 0:
		position = "opening"
	case index == total-1:
		position = "closing"
	}
	prompt := scene.VisualPrompt
	if scene.VoiceoverText != "" {
		prompt += fmt.Sprintf(". The narrator is saying: %q", scene.VoiceoverText)
	}
	prompt += fmt.Sprintf(". This is the %s scene (%d of %d) of the video. %s", position, index+1, total, ProductionSuffix)
	return prompt
}

// Run drives one scene. A ready scene is skipped. Sub-job failures end up on
// the records; the returned error is reserved for store failures.
func (r *SceneRunner) Run(ctx context.Context, project *models.Project, scene models.Scene, index, total int) (SceneOutcome, error) {
	out := SceneOutcome{SceneID: scene.ID}
	if scene.Status == models.StatusReady {
		out.Status = models.StatusReady
		out.Skipped = true
		return out, nil
	}
	persistCtx := context.WithoutCancel(ctx)

	if err := r.store.UpdateScene(persistCtx, scene.ID, map[string]interface{}{
		"status": models.StatusGenerating,
		"error":  "",
	}); err != nil {
		return out, fmt.Errorf("mark scene %d generating: %w", scene.SceneNumber, err)
	}

	clip, err := r.ensureClip(persistCtx, scene)
	if err != nil {
		return out, err
	}
	var voiceover *models.AudioTrack
	if scene.HasVoiceover() {
		if voiceover, err = r.ensureVoiceover(persistCtx, scene); err != nil {
			return out, err
		}
	}

	prompt := EnrichPrompt(scene, index, total)
	var g errgroup.Group
	if clip.Status != models.StatusReady {
		g.Go(func() error {
			r.runClip(ctx, project, scene, clip, prompt)
			return nil
		})
	}
	if voiceover != nil && voiceover.Status != models.StatusReady {
		g.Go(func() error {
			r.runVoiceover(ctx, project, scene, voiceover)
			return nil
		})
	}
	_ = g.Wait()

	out.Status, out.Error = models.StatusReady, ""
	switch {
	case clip.Status != models.StatusReady:
		out.Status, out.Error = models.StatusFailed, "clip: "+clip.Error
	case voiceover != nil && voiceover.Status != models.StatusReady:
		out.Status, out.Error = models.StatusFailed, "voiceover: "+voiceover.Error
	}
	if err := r.store.UpdateScene(persistCtx, scene.ID, map[string]interface{}{
		"status": out.Status,
		"error":  out.Error,
	}); err != nil {
		return out, fmt.Errorf("finish scene %d: %w", scene.SceneNumber, err)
	}

	severity := models.SeverityInfo
	if out.Status == models.StatusFailed {
		severity = models.SeverityWarning
	}
	r.activity.Record(persistCtx, Event{
		ProjectID: project.ID,
		Category:  CategoryScene,
		Severity:  severity,
		Message:   fmt.Sprintf("scene %d %s", scene.SceneNumber, out.Status),
		Metadata: map[string]interface{}{
			"scene_id":     scene.ID,
			"scene_number": scene.SceneNumber,
			"error":        out.Error,
		},
	})
	return out, nil
}

func (r *SceneRunner) ensureClip(ctx context.Context, scene models.Scene) (*models.Clip, error) {
	clip, err := r.store.GetClipByScene(ctx, scene.ID)
	if err == nil {
		return clip, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("load clip of scene %d: %w", scene.SceneNumber, err)
	}
	clip = &models.Clip{
		ID:        uuid.NewString(),
		ProjectID: scene.ProjectID,
		SceneID:   scene.ID,
		Status:    models.StatusPending,
	}
	if err := r.store.CreateClip(ctx, clip); err != nil {
		return nil, fmt.Errorf("create clip of scene %d: %w", scene.SceneNumber, err)
	}
	return clip, nil
}

func (r *SceneRunner) ensureVoiceover(ctx context.Context, scene models.Scene) (*models.AudioTrack, error) {
	track, err := r.store.GetVoiceoverByScene(ctx, scene.ID)
	if err == nil {
		return track, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("load voiceover of scene %d: %w", scene.SceneNumber, err)
	}
	track = &models.AudioTrack{
		ID:         uuid.NewString(),
		ProjectID:  scene.ProjectID,
		SceneID:    scene.ID,
		Kind:       models.AudioKindVoiceover,
		SourceText: scene.VoiceoverText,
		Duration:   scene.Duration,
		Status:     models.StatusPending,
	}
	if err := r.store.CreateAudioTrack(ctx, track); err != nil {
		return nil, fmt.Errorf("create voiceover of scene %d: %w", scene.SceneNumber, err)
	}
	return track, nil
}

// runClip runs the video sub-job and leaves its terminal state in clip.
func (r *SceneRunner) runClip(ctx context.Context, project *models.Project, scene models.Scene, clip *models.Clip, prompt string) {
	persistCtx := context.WithoutCancel(ctx)
	r.updateClip(persistCtx, clip, map[string]interface{}{
		"status": models.StatusGenerating,
		"prompt": prompt,
		"error":  "",
	})

	res, err := r.fallback.Run(ctx, JobRequest{
		Capability: models.CapabilityVideo,
		Input:      prompt,
		Params: JobParams{
			Duration:    scene.Duration,
			AspectRatio: r.AspectRatio,
			ObjectKey:   fmt.Sprintf("projects/%s/scenes/%d/clip.mp4", project.ID, scene.SceneNumber),
		},
		Preferred:   project.PreferredProvider,
		ProjectID:   project.ID,
		SceneID:     scene.ID,
		SceneNumber: scene.SceneNumber,
		OnStart: func(provider, taskID string) {
			r.updateClip(persistCtx, clip, map[string]interface{}{"provider": provider, "task_id": taskID})
		},
	})
	if err != nil {
		r.updateClip(persistCtx, clip, map[string]interface{}{
			"status":   models.StatusFailed,
			"provider": res.LastProvider(),
			"error":    err.Error(),
		})
		return
	}
	url := r.mirrorOutput(persistCtx, res.OutputURL, fmt.Sprintf("projects/%s/scenes/%d/clip.mp4", project.ID, scene.SceneNumber))
	r.updateClip(persistCtx, clip, map[string]interface{}{
		"status":     models.StatusReady,
		"provider":   res.Provider,
		"task_id":    res.TaskID,
		"output_url": url,
		"error":      "",
	})
}

// runVoiceover runs the voiceover sub-job and leaves its terminal state in track.
func (r *SceneRunner) runVoiceover(ctx context.Context, project *models.Project, scene models.Scene, track *models.AudioTrack) {
	persistCtx := context.WithoutCancel(ctx)
	r.updateTrack(persistCtx, track, map[string]interface{}{
		"status":      models.StatusGenerating,
		"source_text": scene.VoiceoverText,
		"error":       "",
	})

	key := fmt.Sprintf("projects/%s/scenes/%d/voiceover.mp3", project.ID, scene.SceneNumber)
	res, err := r.fallback.Run(ctx, JobRequest{
		Capability:  models.CapabilityVoiceover,
		Input:       scene.VoiceoverText,
		Params:      JobParams{Duration: scene.Duration, ObjectKey: key},
		ProjectID:   project.ID,
		SceneID:     scene.ID,
		SceneNumber: scene.SceneNumber,
		OnStart: func(provider, taskID string) {
			r.updateTrack(persistCtx, track, map[string]interface{}{"provider": provider, "task_id": taskID})
		},
	})
	if err != nil {
		r.updateTrack(persistCtx, track, map[string]interface{}{
			"status":   models.StatusFailed,
			"provider": res.LastProvider(),
			"error":    err.Error(),
		})
		return
	}
	url := r.mirrorOutput(persistCtx, res.OutputURL, key)
	r.updateTrack(persistCtx, track, map[string]interface{}{
		"status":     models.StatusReady,
		"provider":   res.Provider,
		"task_id":    res.TaskID,
		"output_url": url,
		"error":      "",
	})
}

// mirrorOutput falls back to the provider URL when mirroring is off or fails.
func (r *SceneRunner) mirrorOutput(ctx context.Context, sourceURL, objectName string) string {
	if r.mirror == nil || sourceURL == "" {
		return sourceURL
	}
	url, err := r.mirror.Mirror(ctx, sourceURL, objectName)
	if err != nil {
		r.log.Warn("mirror failed, keeping provider url", "object", objectName, "error", err)
		return sourceURL
	}
	return url
}

// updateClip persists updates and applies them to the in-memory record so
// the caller can judge readiness without re-reading.
func (r *SceneRunner) updateClip(ctx context.Context, clip *models.Clip, updates map[string]interface{}) {
	if err := r.store.UpdateClip(ctx, clip.ID, updates); err != nil {
		r.log.Error("update clip failed", "clip_id", clip.ID, "error", err)
	}
	for k, v := range updates {
		s, _ := v.(string)
		switch k {
		case "status":
			clip.Status = s
		case "provider":
			clip.Provider = s
		case "task_id":
			clip.TaskID = s
		case "output_url":
			clip.OutputURL = s
		case "error":
			clip.Error = s
		case "prompt":
			clip.Prompt = s
		}
	}
	clip.UpdatedAt = time.Now()
}

func (r *SceneRunner) updateTrack(ctx context.Context, track *models.AudioTrack, updates map[string]interface{}) {
	if err := r.store.UpdateAudioTrack(ctx, track.ID, updates); err != nil {
		r.log.Error("update audio track failed", "track_id", track.ID, "error", err)
	}
	for k, v := range updates {
		s, _ := v.(string)
		switch k {
		case "status":
			track.Status = s
		case "provider":
			track.Provider = s
		case "task_id":
			track.TaskID = s
		case "output_url":
			track.OutputURL = s
		case "error":
			track.Error = s
		case "source_text":
			track.SourceText = s
		}
	}
	track.UpdatedAt = time.Now()
}
