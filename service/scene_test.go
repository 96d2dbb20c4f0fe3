package service

import (
	"context"
	"strings"
	"testing"

	"VideoFactory-server/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrichPromptIsDeterministic(t *testing.T) {
	scene := models.Scene{VisualPrompt: "a barista pouring latte art", VoiceoverText: "Great coffee starts here."}

	got := EnrichPrompt(scene, 0, 3)
	want := `a barista pouring latte art. The narrator is saying: "Great coffee starts here.". This is the opening scene (1 of 3) of the video. ` + ProductionSuffix
	assert.Equal(t, want, got)
	assert.Equal(t, got, EnrichPrompt(scene, 0, 3))

	assert.Contains(t, EnrichPrompt(scene, 1, 3), "middle scene (2 of 3)")
	assert.Contains(t, EnrichPrompt(scene, 2, 3), "closing scene (3 of 3)")

	silent := EnrichPrompt(models.Scene{VisualPrompt: "city skyline"}, 0, 1)
	assert.NotContains(t, silent, "narrator")
	assert.True(t, strings.HasPrefix(silent, "city skyline. This is the opening scene (1 of 1)"))
}

func TestSceneRunnerReadyWhenClipAndVoiceoverSucceed(t *testing.T) {
	ctx := context.Background()
	video, voice := succeeding("runway"), succeeding("elevenlabs")
	p := newPipeline(t, nil, video, voice)
	seedProvider(t, p.store, models.CapabilityVideo, "runway", 10, true)
	seedProvider(t, p.store, models.CapabilityVoiceover, "elevenlabs", 10, true)
	project := p.createProject(t, []sceneDef{{prompt: "mountain lake", voiceover: "Find your calm."}}, "")
	scene := p.sceneList(t, project.ID)[0]

	out, err := p.scenes.Run(ctx, project, scene, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, out.Status)

	clip, err := p.store.GetClipByScene(ctx, scene.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, clip.Status)
	assert.Equal(t, "runway", clip.Provider)
	assert.Equal(t, "https://cdn.test/runway", clip.OutputURL)
	assert.Equal(t, EnrichPrompt(scene, 0, 1), clip.Prompt)

	track, err := p.store.GetVoiceoverByScene(ctx, scene.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, track.Status)
	assert.Equal(t, "elevenlabs", track.Provider)
	assert.Equal(t, []string{"Find your calm."}, voice.starts)
}

func TestSceneRunnerVoiceoverAloneDoesNotSaveScene(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, nil, failingJob("runway"), succeeding("elevenlabs"))
	seedProvider(t, p.store, models.CapabilityVideo, "runway", 10, true)
	seedProvider(t, p.store, models.CapabilityVoiceover, "elevenlabs", 10, true)
	project := p.createProject(t, []sceneDef{{prompt: "mountain lake", voiceover: "Find your calm."}}, "")
	scene := p.sceneList(t, project.ID)[0]

	out, err := p.scenes.Run(ctx, project, scene, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, out.Status)

	got, err := p.store.GetScene(ctx, scene.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "runway blew up")

	clip, err := p.store.GetClipByScene(ctx, scene.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, clip.Status)
	assert.Contains(t, clip.Error, ErrAllProvidersExhausted.Error())
	assert.Equal(t, "runway", clip.Provider)

	track, err := p.store.GetVoiceoverByScene(ctx, scene.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, track.Status)
}

func TestSceneRunnerFailedVoiceoverFailsScene(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, nil, succeeding("runway"), failingStart("elevenlabs"))
	seedProvider(t, p.store, models.CapabilityVideo, "runway", 10, true)
	seedProvider(t, p.store, models.CapabilityVoiceover, "elevenlabs", 10, true)
	project := p.createProject(t, []sceneDef{{prompt: "mountain lake", voiceover: "Find your calm."}}, "")
	scene := p.sceneList(t, project.ID)[0]

	out, err := p.scenes.Run(ctx, project, scene, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, out.Status)
	assert.Contains(t, out.Error, "voiceover")
}

func TestSceneRunnerSkipsReadySceneAndReadySubJobs(t *testing.T) {
	ctx := context.Background()
	video, voice := succeeding("runway"), failingStart("elevenlabs")
	p := newPipeline(t, nil, video, voice)
	seedProvider(t, p.store, models.CapabilityVideo, "runway", 10, true)
	seedProvider(t, p.store, models.CapabilityVoiceover, "elevenlabs", 10, true)
	project := p.createProject(t, []sceneDef{{prompt: "mountain lake", voiceover: "Find your calm."}}, "")
	scene := p.sceneList(t, project.ID)[0]

	out, err := p.scenes.Run(ctx, project, scene, 0, 1)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, out.Status)
	require.Equal(t, 1, video.startCount())

	// only the failed voiceover is retried; the ready clip keeps its identity
	clipBefore, err := p.store.GetClipByScene(ctx, scene.ID)
	require.NoError(t, err)
	voice.startErr = nil
	voice.final = PollResult{State: JobSucceeded, OutputURL: "https://cdn.test/vo.mp3"}
	require.NoError(t, p.store.ResetForRegeneration(ctx, project.ID, false))
	scene = p.sceneList(t, project.ID)[0]

	out, err = p.scenes.Run(ctx, project, scene, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, out.Status)
	assert.Equal(t, 1, video.startCount())
	clipAfter, err := p.store.GetClipByScene(ctx, scene.ID)
	require.NoError(t, err)
	assert.Equal(t, clipBefore.ID, clipAfter.ID)

	scene = p.sceneList(t, project.ID)[0]
	out, err = p.scenes.Run(ctx, project, scene, 0, 1)
	require.NoError(t, err)
	assert.True(t, out.Skipped)
	assert.Equal(t, 1, video.startCount())
	assert.Equal(t, 2, voice.startCount())
}
