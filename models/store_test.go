package models

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewStore(db)
}

// seedProject stores a project whose scenes, clips and voiceovers carry the
// given statuses, plus a ready music bed.
func seedProject(t *testing.T, s *Store, statuses ...string) *Project {
	t.Helper()
	ctx := context.Background()
	p := &Project{ID: uuid.NewString(), Status: ProjectStatusFailed, SceneCount: len(statuses), OutputURL: "old.mp4"}
	var scenes []Scene
	for i, st := range statuses {
		scenes = append(scenes, Scene{ID: uuid.NewString(), ProjectID: p.ID, SceneNumber: i + 1, VisualPrompt: "x", VoiceoverText: "y", Status: st})
	}
	music := []AudioTrack{{ID: uuid.NewString(), ProjectID: p.ID, Kind: AudioKindMusic, OutputURL: "bed.mp3", Status: StatusReady}}
	require.NoError(t, s.CreateProjectWithScenes(ctx, p, scenes, music))
	for _, sc := range scenes {
		require.NoError(t, s.CreateClip(ctx, &Clip{ID: uuid.NewString(), ProjectID: p.ID, SceneID: sc.ID, Status: sc.Status, OutputURL: "clip-" + sc.ID}))
		require.NoError(t, s.CreateAudioTrack(ctx, &AudioTrack{ID: uuid.NewString(), ProjectID: p.ID, SceneID: sc.ID, Kind: AudioKindVoiceover, Status: sc.Status}))
	}
	return p
}

func TestCreateProjectWithScenesIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	p := &Project{ID: uuid.NewString(), Status: ProjectStatusPending}
	dup := uuid.NewString()
	err := s.CreateProjectWithScenes(ctx, p, []Scene{
		{ID: dup, ProjectID: p.ID, SceneNumber: 1},
		{ID: dup, ProjectID: p.ID, SceneNumber: 2},
	}, nil)
	require.Error(t, err)

	_, err = s.GetProject(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResetForRegenerationOnlyFailed(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	p := seedProject(t, s, StatusReady, StatusFailed)
	scenes, err := s.ListScenes(ctx, p.ID)
	require.NoError(t, err)

	require.NoError(t, s.ResetForRegeneration(ctx, p.ID, false))

	got, err := s.ListScenes(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, scenes[0], got[0])
	assert.Equal(t, StatusPending, got[1].Status)

	readyClip, err := s.GetClipByScene(ctx, got[0].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, readyClip.Status)
	assert.NotEmpty(t, readyClip.OutputURL)
	failedClip, err := s.GetClipByScene(ctx, got[1].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, failedClip.Status)
	assert.Empty(t, failedClip.OutputURL)

	project, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, ProjectStatusPending, project.Status)
	assert.Empty(t, project.OutputURL)
}

func TestResetForRegenerationForceKeepsMusic(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	p := seedProject(t, s, StatusReady, StatusReady)

	require.NoError(t, s.ResetForRegeneration(ctx, p.ID, true))

	tracks, err := s.ListAudioTracks(ctx, p.ID)
	require.NoError(t, err)
	for _, tr := range tracks {
		if tr.Kind == AudioKindMusic {
			assert.Equal(t, StatusReady, tr.Status)
			assert.Equal(t, "bed.mp3", tr.OutputURL)
			continue
		}
		assert.Equal(t, StatusPending, tr.Status)
	}
	clips, err := s.ListClips(ctx, p.ID)
	require.NoError(t, err)
	for _, c := range clips {
		assert.Equal(t, StatusPending, c.Status)
	}
}

func TestMarkCancelledKeepsTerminalRecords(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	p := seedProject(t, s, StatusReady, StatusFailed, StatusGenerating, StatusPending)
	before, err := s.ListScenes(ctx, p.ID)
	require.NoError(t, err)

	require.NoError(t, s.MarkCancelled(ctx, p.ID, "cancelled: maintenance"))

	got, err := s.ListScenes(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, got[0].Status)
	assert.Equal(t, before[1].Error, got[1].Error)
	for _, sc := range got[2:] {
		assert.Equal(t, StatusFailed, sc.Status)
		assert.Equal(t, "cancelled: maintenance", sc.Error)
	}
	project, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, ProjectStatusCancelled, project.Status)
	assert.Equal(t, "cancelled: maintenance", project.Error)
}

func TestUpdateProvider(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	e := &ProviderEntry{ID: uuid.NewString(), Capability: CapabilityVideo, Name: "runway", Priority: 10, IsEnabled: true}
	require.NoError(t, s.CreateProvider(ctx, e))

	require.NoError(t, s.UpdateProvider(ctx, e.ID, map[string]interface{}{"priority": 5}))
	require.NoError(t, s.UpdateProvider(ctx, e.ID, map[string]interface{}{"priority": 5}))
	got, err := s.GetProviderByName(ctx, CapabilityVideo, "runway")
	require.NoError(t, err)
	assert.Equal(t, 5, got.Priority)

	assert.ErrorIs(t, s.UpdateProvider(ctx, "missing", map[string]interface{}{"priority": 1}), ErrNotFound)
}

func TestListProvidersOrdered(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	for _, e := range []ProviderEntry{
		{Capability: CapabilityVideo, Name: "pika", Priority: 20},
		{Capability: CapabilityVoiceover, Name: "elevenlabs", Priority: 10},
		{Capability: CapabilityVideo, Name: "runway", Priority: 10},
	} {
		e.ID = uuid.NewString()
		require.NoError(t, s.CreateProvider(ctx, &e))
	}

	video, err := s.ListProviders(ctx, CapabilityVideo)
	require.NoError(t, err)
	require.Len(t, video, 2)
	assert.Equal(t, "runway", video[0].Name)

	all, err := s.ListProviders(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestTransitionProjectOnlyFromListedStatuses(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	p := seedProject(t, s, StatusReady)

	ok, err := s.TransitionProject(ctx, p.ID, IdleProjectStatuses, map[string]interface{}{"status": ProjectStatusQueued})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TransitionProject(ctx, p.ID, IdleProjectStatuses, map[string]interface{}{"status": ProjectStatusQueued})
	require.NoError(t, err)
	assert.False(t, ok, "a queued project is not idle")

	ok, err = s.TransitionProject(ctx, p.ID, nil, map[string]interface{}{"status": ProjectStatusFailed})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.TransitionProject(ctx, "missing", IdleProjectStatuses, map[string]interface{}{"status": ProjectStatusQueued})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClaimRegenerationResetsOnlyWhenClaimed(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	p := seedProject(t, s, StatusReady, StatusFailed)
	require.NoError(t, s.UpdateProject(ctx, p.ID, map[string]interface{}{"status": ProjectStatusGenerating}))

	ok, err := s.ClaimRegeneration(ctx, p.ID, IdleProjectStatuses, false)
	require.NoError(t, err)
	assert.False(t, ok)
	scenes, err := s.ListScenes(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, scenes[1].Status, "a lost claim resets nothing")

	ok, err = s.ClaimRegeneration(ctx, p.ID, nil, false)
	require.NoError(t, err)
	require.True(t, ok)
	project, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, ProjectStatusQueued, project.Status)
	assert.Empty(t, project.OutputURL)
	scenes, err = s.ListScenes(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, scenes[0].Status)
	assert.Equal(t, StatusPending, scenes[1].Status)
}
