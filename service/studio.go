package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"VideoFactory-server/logger"
	"VideoFactory-server/models"

	"github.com/google/uuid"
)

var (
	ErrProjectBusy       = errors.New("project is already queued or generating")
	ErrInvalidCapability = errors.New("unknown capability")
)

const operatorCancelReason = "cancel requested by operator"

// Studio is the entry point used by the HTTP layer.
type Studio struct {
	store      *models.Store
	dispatcher Dispatcher
	cancels    *CancelRegistry
	switches   SwitchStore
	oracle     Oracle
	activity   ActivitySink
	log        *logger.Logger
}

func NewStudio(store *models.Store, dispatcher Dispatcher, cancels *CancelRegistry, switches SwitchStore, oracle Oracle, activity ActivitySink, log *logger.Logger) *Studio {
	return &Studio{
		store:      store,
		dispatcher: dispatcher,
		cancels:    cancels,
		switches:   switches,
		oracle:     oracle,
		activity:   activity,
		log:        log.Component("Studio"),
	}
}

// CreateProject plans the script and stores the project with its scenes.
func (s *Studio) CreateProject(ctx context.Context, script Script) (*models.Project, error) {
	planned, err := PlanScenes(script)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(script.Title)
	if title == "" {
		title = "Untitled video"
	}
	project := &models.Project{
		ID:         uuid.NewString(),
		Title:      title,
		SourceID:   script.SourceID,
		Status:     models.ProjectStatusPending,
		SceneCount: len(planned),
	}
	scenes := make([]models.Scene, 0, len(planned))
	for _, p := range planned {
		scenes = append(scenes, models.Scene{
			ID:            uuid.NewString(),
			ProjectID:     project.ID,
			SceneNumber:   p.Number,
			Title:         p.Title,
			VisualPrompt:  p.VisualPrompt,
			VoiceoverText: p.Voiceover,
			Duration:      p.Duration,
			StartOffset:   p.StartOffset,
			Transition:    defaultTransition,
			Status:        models.StatusPending,
		})
		project.Duration += p.Duration
	}
	var tracks []models.AudioTrack
	if music := strings.TrimSpace(script.MusicURL); music != "" {
		tracks = append(tracks, models.AudioTrack{
			ID:        uuid.NewString(),
			ProjectID: project.ID,
			Kind:      models.AudioKindMusic,
			MusicRef:  music,
			OutputURL: music,
			Duration:  project.Duration,
			Status:    models.StatusReady,
		})
	}
	if err := s.store.CreateProjectWithScenes(ctx, project, scenes, tracks); err != nil {
		return nil, err
	}
	s.log.Info("project created", "project_id", project.ID, "scenes", len(scenes), "duration", project.Duration)
	s.activity.Record(ctx, Event{
		ProjectID: project.ID,
		Category:  CategoryProject,
		Severity:  models.SeverityInfo,
		Message:   "project created",
		Metadata:  map[string]interface{}{"scenes": len(scenes), "duration": project.Duration, "source_id": script.SourceID},
	})
	return project, nil
}

// StartGeneration claims an idle project as queued and dispatches one pass.
// A project already queued or running is rejected, so repeated calls never
// stack passes on the same records.
func (s *Studio) StartGeneration(ctx context.Context, projectID, preferredProvider string) error {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	claimed, err := s.store.TransitionProject(ctx, projectID, models.IdleProjectStatuses, map[string]interface{}{
		"status":             models.ProjectStatusQueued,
		"preferred_provider": preferredProvider,
		"cancel_requested":   false,
	})
	if err != nil {
		return err
	}
	if !claimed {
		return ErrProjectBusy
	}
	return s.dispatch(ctx, projectID, project.Status, "generation requested")
}

// Regenerate resets failed records (every record when force is set) and
// starts a new pass. A forced regenerate also recovers a project left queued
// or running by a pass that no longer exists in this process.
func (s *Studio) Regenerate(ctx context.Context, projectID string, force bool) error {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	from := models.IdleProjectStatuses
	if force && !s.cancels.Running(projectID) && isActive(project.Status) {
		s.log.Warn("recovering stale project", "project_id", projectID, "status", project.Status)
		from = nil
	}
	claimed, err := s.store.ClaimRegeneration(ctx, projectID, from, force)
	if err != nil {
		return err
	}
	if !claimed {
		return ErrProjectBusy
	}
	return s.dispatch(ctx, projectID, models.ProjectStatusPending, fmt.Sprintf("regeneration requested (force=%t)", force))
}

func isActive(status string) bool {
	for _, st := range models.ActiveProjectStatuses {
		if st == status {
			return true
		}
	}
	return false
}

// dispatch hands the claimed project to the dispatcher and returns it to
// fallback status when that fails.
func (s *Studio) dispatch(ctx context.Context, projectID, fallback, msg string) error {
	if err := s.dispatcher.Dispatch(ctx, projectID); err != nil {
		if _, rerr := s.store.TransitionProject(context.WithoutCancel(ctx), projectID,
			[]string{models.ProjectStatusQueued}, map[string]interface{}{"status": fallback}); rerr != nil {
			s.log.Error("failed to release project claim", "project_id", projectID, "error", rerr)
		}
		return fmt.Errorf("dispatch generation: %w", err)
	}
	s.activity.Record(ctx, Event{
		ProjectID: projectID,
		Category:  CategoryProject,
		Severity:  models.SeverityInfo,
		Message:   msg,
	})
	return nil
}

// Cancel flags the project and interrupts its in-flight poll when the pass
// runs in this process. The pass halts at its next checkpoint either way.
func (s *Studio) Cancel(ctx context.Context, projectID string) error {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return err
	}
	if err := s.store.UpdateProject(ctx, projectID, map[string]interface{}{"cancel_requested": true}); err != nil {
		return err
	}
	interrupted := s.cancels.Cancel(projectID, operatorCancelReason)
	s.activity.Record(ctx, Event{
		ProjectID: projectID,
		Category:  CategoryControl,
		Severity:  models.SeverityWarning,
		Message:   "cancel requested",
		Metadata:  map[string]interface{}{"interrupted_local_run": interrupted},
	})
	return nil
}

// SceneView is a scene with its generated media.
type SceneView struct {
	models.Scene
	Clip      *models.Clip       `json:"clip,omitempty"`
	Voiceover *models.AudioTrack `json:"voiceover,omitempty"`
}

type ProjectView struct {
	Project *models.Project    `json:"project"`
	Scenes  []SceneView        `json:"scenes"`
	Music   *models.AudioTrack `json:"music,omitempty"`
}

// Status returns the project with its per-scene breakdown.
func (s *Studio) Status(ctx context.Context, projectID string) (*ProjectView, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	scenes, err := s.store.ListScenes(ctx, projectID)
	if err != nil {
		return nil, err
	}
	clips, err := s.store.ListClips(ctx, projectID)
	if err != nil {
		return nil, err
	}
	tracks, err := s.store.ListAudioTracks(ctx, projectID)
	if err != nil {
		return nil, err
	}

	clipByScene := make(map[string]*models.Clip, len(clips))
	for i := range clips {
		clipByScene[clips[i].SceneID] = &clips[i]
	}
	view := &ProjectView{Project: project, Scenes: make([]SceneView, 0, len(scenes))}
	voiceByScene := make(map[string]*models.AudioTrack)
	for i := range tracks {
		t := &tracks[i]
		if t.Kind == models.AudioKindMusic {
			view.Music = t
			continue
		}
		voiceByScene[t.SceneID] = t
	}
	for _, sc := range scenes {
		view.Scenes = append(view.Scenes, SceneView{
			Scene:     sc,
			Clip:      clipByScene[sc.ID],
			Voiceover: voiceByScene[sc.ID],
		})
	}
	return view, nil
}

func (s *Studio) ListActivity(ctx context.Context, projectID string, limit int) ([]models.ActivityLog, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.store.ListActivity(ctx, projectID, limit)
}

func (s *Studio) ListProviders(ctx context.Context, capability string) ([]models.ProviderEntry, error) {
	return s.store.ListProviders(ctx, capability)
}

// ProviderPatch carries the operator-editable fields of a registry entry.
type ProviderPatch struct {
	Enabled  *bool `json:"enabled"`
	Priority *int  `json:"priority"`
}

// UpdateProvider applies the patch; the next attempt sees the new state.
func (s *Studio) UpdateProvider(ctx context.Context, id string, patch ProviderPatch) (*models.ProviderEntry, error) {
	updates := map[string]interface{}{}
	if patch.Enabled != nil {
		updates["is_enabled"] = *patch.Enabled
	}
	if patch.Priority != nil {
		updates["priority"] = *patch.Priority
	}
	if len(updates) == 0 {
		return s.store.GetProvider(ctx, id)
	}
	if err := s.store.UpdateProvider(ctx, id, updates); err != nil {
		return nil, err
	}
	entry, err := s.store.GetProvider(ctx, id)
	if err != nil {
		return nil, err
	}
	s.log.Info("provider updated", "provider", entry.Name, "capability", entry.Capability, "enabled", entry.IsEnabled, "priority", entry.Priority)
	s.activity.Record(ctx, Event{
		Category: CategoryControl,
		Severity: models.SeverityInfo,
		Message:  "provider " + entry.Name + " updated",
		Metadata: map[string]interface{}{"capability": entry.Capability, "enabled": entry.IsEnabled, "priority": entry.Priority},
	})
	return entry, nil
}

func (s *Studio) SetKillSwitch(ctx context.Context, engaged bool, reason string) error {
	if err := s.switches.SetKillSwitch(ctx, engaged, reason); err != nil {
		return err
	}
	s.activity.Record(ctx, Event{
		Category: CategoryControl,
		Severity: models.SeverityWarning,
		Message:  fmt.Sprintf("kill switch engaged=%t", engaged),
		Metadata: map[string]interface{}{"reason": reason},
	})
	return nil
}

func (s *Studio) SetCategoryDisabled(ctx context.Context, capability string, disabled bool, reason string) error {
	if !models.ValidCapability(capability) {
		return fmt.Errorf("%w: %s", ErrInvalidCapability, capability)
	}
	if err := s.switches.SetCategoryDisabled(ctx, capability, disabled, reason); err != nil {
		return err
	}
	s.activity.Record(ctx, Event{
		Category: CategoryControl,
		Severity: models.SeverityWarning,
		Message:  fmt.Sprintf("%s pipeline disabled=%t", capability, disabled),
		Metadata: map[string]interface{}{"reason": reason},
	})
	return nil
}

// Operational reports the oracle answer for a capability.
func (s *Studio) Operational(ctx context.Context, capability string) (OperationalStatus, error) {
	return s.oracle.IsOperational(ctx, capability)
}
