package service

import (
	"context"
	"fmt"

	"VideoFactory-server/logger"
	"VideoFactory-server/models"
)

var claimableStatuses = []string{models.ProjectStatusPending, models.ProjectStatusQueued}

// RunReport is the terminal view of one orchestrator pass.
type RunReport struct {
	ProjectID string
	Status    string
	Reason    string
	Scenes    []SceneOutcome
}

// Orchestrator runs a project's scenes strictly in order and hands a fully
// ready project to the assembler. Cancellation is cooperative and checked at
// pass start, before every scene and before assembly.
type Orchestrator struct {
	store     *models.Store
	scenes    *SceneRunner
	assembler *Assembler
	oracle    Oracle
	cancels   *CancelRegistry
	activity  ActivitySink
	log       *logger.Logger
}

func NewOrchestrator(store *models.Store, scenes *SceneRunner, assembler *Assembler, oracle Oracle, cancels *CancelRegistry, activity ActivitySink, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		store:     store,
		scenes:    scenes,
		assembler: assembler,
		oracle:    oracle,
		cancels:   cancels,
		activity:  activity,
		log:       log.Component("Orchestrator"),
	}
}

// Run executes one pass. Only a project that cannot be loaded (or a store
// failure) is returned as an error; every pipeline outcome is recorded on the
// project and reported in RunReport.
func (o *Orchestrator) Run(ctx context.Context, projectID string) (*RunReport, error) {
	project, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", projectID, err)
	}
	report := &RunReport{ProjectID: projectID}
	log := o.log.Project(projectID)
	persistCtx := context.WithoutCancel(ctx)

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if o.cancels != nil {
		token, ok := o.cancels.Register(projectID, cancel)
		if !ok {
			log.Info("another pass of this project is running here, skipping")
			report.Status, report.Reason = project.Status, "another pass is running"
			return report, nil
		}
		defer o.cancels.Unregister(projectID, token)
	}

	// only a pending or queued project can be taken; a duplicate task for a
	// project another pass already owns, or already finished, is a no-op
	claimed, err := o.store.TransitionProject(persistCtx, projectID, claimableStatuses, map[string]interface{}{
		"status": models.ProjectStatusGenerating,
		"error":  "",
	})
	if err != nil {
		return nil, fmt.Errorf("claim project %s: %w", projectID, err)
	}
	if !claimed {
		current, err := o.store.GetProject(persistCtx, projectID)
		if err != nil {
			return nil, fmt.Errorf("reload project %s: %w", projectID, err)
		}
		log.Info("project not claimable, skipping pass", "status", current.Status)
		report.Status, report.Reason = current.Status, "project is "+current.Status+", not queued"
		return report, nil
	}

	scenes, err := o.store.ListScenes(persistCtx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list scenes of %s: %w", projectID, err)
	}
	log.Info("generation started", "scenes", len(scenes), "preferred", project.PreferredProvider)
	o.record(persistCtx, projectID, models.SeverityInfo, "generation started", nil)

	capabilities := requiredCapabilities(scenes)
	if reason, halt := o.checkpoint(runCtx, projectID, capabilities); halt {
		return o.cancel(persistCtx, report, reason)
	}

	for i, scene := range scenes {
		if i > 0 {
			if reason, halt := o.checkpoint(runCtx, projectID, capabilities); halt {
				return o.cancel(persistCtx, report, reason)
			}
		}
		out, err := o.scenes.Run(runCtx, project, scene, i, len(scenes))
		if err != nil {
			return nil, err
		}
		report.Scenes = append(report.Scenes, out)
	}

	if reason, halt := o.checkpoint(runCtx, projectID, capabilities); halt {
		return o.cancel(persistCtx, report, reason)
	}

	if reason, ready, err := o.allReady(persistCtx, projectID); err != nil {
		return nil, err
	} else if !ready {
		if err := o.store.UpdateProject(persistCtx, projectID, map[string]interface{}{
			"status": models.ProjectStatusFailed,
			"error":  reason,
		}); err != nil {
			return nil, fmt.Errorf("mark project failed: %w", err)
		}
		log.Warn("generation incomplete", "reason", reason)
		o.record(persistCtx, projectID, models.SeverityError, "generation failed", map[string]interface{}{"reason": reason})
		report.Status, report.Reason = models.ProjectStatusFailed, reason
		return report, nil
	}

	if err := o.store.UpdateProject(persistCtx, projectID, map[string]interface{}{
		"status": models.ProjectStatusAssembling,
	}); err != nil {
		return nil, fmt.Errorf("mark project assembling: %w", err)
	}
	project.Status = models.ProjectStatusAssembling
	status, reason, err := o.assembler.Assemble(runCtx, project)
	if err != nil {
		return nil, err
	}
	report.Status, report.Reason = status, reason
	return report, nil
}

func requiredCapabilities(scenes []models.Scene) []string {
	caps := []string{models.CapabilityVideo}
	for _, s := range scenes {
		if s.HasVoiceover() {
			return append(caps, models.CapabilityVoiceover)
		}
	}
	return caps
}

// checkpoint reports whether the run must halt and why. Oracle errors are
// logged and treated as operational.
func (o *Orchestrator) checkpoint(ctx context.Context, projectID string, capabilities []string) (string, bool) {
	if ctx.Err() != nil {
		return fmt.Sprint(context.Cause(ctx)), true
	}
	project, err := o.store.GetProject(ctx, projectID)
	if err == nil && project.CancelRequested {
		return "cancel requested by operator", true
	}
	if err != nil {
		o.log.Warn("checkpoint could not reload project", "project_id", projectID, "error", err)
	}
	if o.oracle == nil {
		return "", false
	}
	for _, c := range capabilities {
		st, err := o.oracle.IsOperational(ctx, c)
		if err != nil {
			o.log.Warn("operational check failed, continuing", "capability", c, "error", err)
			continue
		}
		if !st.Operational {
			return withDefault(st.Reason, c+" not operational"), true
		}
	}
	return "", false
}

func (o *Orchestrator) cancel(ctx context.Context, report *RunReport, reason string) (*RunReport, error) {
	reason = "cancelled: " + reason
	if err := o.store.MarkCancelled(ctx, report.ProjectID, reason); err != nil {
		return nil, fmt.Errorf("mark project cancelled: %w", err)
	}
	o.log.Warn("generation cancelled", "project_id", report.ProjectID, "reason", reason)
	o.record(ctx, report.ProjectID, models.SeverityWarning, "generation cancelled", map[string]interface{}{"reason": reason})
	report.Status, report.Reason = models.ProjectStatusCancelled, reason
	return report, nil
}

// allReady checks every scene, clip and audio track of the project.
func (o *Orchestrator) allReady(ctx context.Context, projectID string) (string, bool, error) {
	scenes, err := o.store.ListScenes(ctx, projectID)
	if err != nil {
		return "", false, fmt.Errorf("list scenes: %w", err)
	}
	if len(scenes) == 0 {
		return "project has no scenes", false, nil
	}
	var failed []int
	for _, s := range scenes {
		if s.Status != models.StatusReady {
			failed = append(failed, s.SceneNumber)
		}
	}
	if len(failed) > 0 {
		return fmt.Sprintf("%d of %d scenes not ready: %v", len(failed), len(scenes), failed), false, nil
	}
	clips, err := o.store.ListClips(ctx, projectID)
	if err != nil {
		return "", false, fmt.Errorf("list clips: %w", err)
	}
	for _, c := range clips {
		if c.Status != models.StatusReady {
			return "clip " + c.ID + " not ready", false, nil
		}
	}
	tracks, err := o.store.ListAudioTracks(ctx, projectID)
	if err != nil {
		return "", false, fmt.Errorf("list audio tracks: %w", err)
	}
	for _, t := range tracks {
		if t.Status != models.StatusReady {
			return t.Kind + " track " + t.ID + " not ready", false, nil
		}
	}
	return "", true, nil
}

func (o *Orchestrator) record(ctx context.Context, projectID, severity, msg string, meta map[string]interface{}) {
	o.activity.Record(ctx, Event{
		ProjectID: projectID,
		Category:  CategoryProject,
		Severity:  severity,
		Message:   msg,
		Metadata:  meta,
	})
}
