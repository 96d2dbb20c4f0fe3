package models

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("record not found")

// Store is the persistence boundary of the pipeline. Updates are partial
// merges keyed by column name.
type Store struct {
	DB *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Project

func (s *Store) CreateProject(ctx context.Context, p *Project) error {
	return s.DB.WithContext(ctx).Create(p).Error
}

// CreateProjectWithScenes writes a planned project in one transaction so a
// project never exists without its scenes.
func (s *Store) CreateProjectWithScenes(ctx context.Context, p *Project, scenes []Scene, tracks []AudioTrack) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(p).Error; err != nil {
			return fmt.Errorf("create project: %w", err)
		}
		if len(scenes) > 0 {
			if err := tx.Create(&scenes).Error; err != nil {
				return fmt.Errorf("create scenes: %w", err)
			}
		}
		if len(tracks) > 0 {
			if err := tx.Create(&tracks).Error; err != nil {
				return fmt.Errorf("create audio tracks: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	var p Project
	if err := s.DB.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *Store) UpdateProject(ctx context.Context, id string, updates map[string]interface{}) error {
	return s.DB.WithContext(ctx).Model(&Project{}).Where("id = ?", id).Updates(updates).Error
}

// TransitionProject applies updates only while the project status is one of
// from (any status when from is empty) and reports whether it did. Two
// callers racing for the same project cannot both win.
func (s *Store) TransitionProject(ctx context.Context, id string, from []string, updates map[string]interface{}) (bool, error) {
	return transition(s.DB.WithContext(ctx), id, from, updates)
}

func transition(db *gorm.DB, id string, from []string, updates map[string]interface{}) (bool, error) {
	q := db.Model(&Project{}).Where("id = ?", id)
	if len(from) > 0 {
		q = q.Where("status IN ?", from)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	var p Project
	if err := db.Select("status").First(&p, "id = ?", id).Error; err != nil {
		return false, notFound(err)
	}
	// mysql reports zero affected rows when the values did not change
	if len(from) == 0 {
		return true, nil
	}
	for _, st := range from {
		if st == p.Status {
			return true, nil
		}
	}
	return false, nil
}

// Scene

func (s *Store) CreateScenes(ctx context.Context, scenes []Scene) error {
	if len(scenes) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).Create(&scenes).Error
}

// ListScenes returns the scenes of a project in timeline order.
func (s *Store) ListScenes(ctx context.Context, projectID string) ([]Scene, error) {
	var scenes []Scene
	err := s.DB.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("scene_number ASC").
		Find(&scenes).Error
	return scenes, err
}

func (s *Store) GetScene(ctx context.Context, id string) (*Scene, error) {
	var sc Scene
	if err := s.DB.WithContext(ctx).First(&sc, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &sc, nil
}

func (s *Store) UpdateScene(ctx context.Context, id string, updates map[string]interface{}) error {
	return s.DB.WithContext(ctx).Model(&Scene{}).Where("id = ?", id).Updates(updates).Error
}

// Clip

func (s *Store) CreateClip(ctx context.Context, c *Clip) error {
	return s.DB.WithContext(ctx).Create(c).Error
}

func (s *Store) GetClipByScene(ctx context.Context, sceneID string) (*Clip, error) {
	var c Clip
	if err := s.DB.WithContext(ctx).First(&c, "scene_id = ?", sceneID).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *Store) UpdateClip(ctx context.Context, id string, updates map[string]interface{}) error {
	return s.DB.WithContext(ctx).Model(&Clip{}).Where("id = ?", id).Updates(updates).Error
}

func (s *Store) ListClips(ctx context.Context, projectID string) ([]Clip, error) {
	var clips []Clip
	err := s.DB.WithContext(ctx).Where("project_id = ?", projectID).Find(&clips).Error
	return clips, err
}

// AudioTrack

func (s *Store) CreateAudioTrack(ctx context.Context, a *AudioTrack) error {
	return s.DB.WithContext(ctx).Create(a).Error
}

func (s *Store) GetVoiceoverByScene(ctx context.Context, sceneID string) (*AudioTrack, error) {
	var a AudioTrack
	err := s.DB.WithContext(ctx).
		First(&a, "scene_id = ? AND kind = ?", sceneID, AudioKindVoiceover).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (s *Store) UpdateAudioTrack(ctx context.Context, id string, updates map[string]interface{}) error {
	return s.DB.WithContext(ctx).Model(&AudioTrack{}).Where("id = ?", id).Updates(updates).Error
}

func (s *Store) ListAudioTracks(ctx context.Context, projectID string) ([]AudioTrack, error) {
	var tracks []AudioTrack
	err := s.DB.WithContext(ctx).Where("project_id = ?", projectID).Find(&tracks).Error
	return tracks, err
}

// ProviderEntry

func (s *Store) CreateProvider(ctx context.Context, p *ProviderEntry) error {
	return s.DB.WithContext(ctx).Create(p).Error
}

func (s *Store) GetProvider(ctx context.Context, id string) (*ProviderEntry, error) {
	var p ProviderEntry
	if err := s.DB.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *Store) GetProviderByName(ctx context.Context, capability, name string) (*ProviderEntry, error) {
	var p ProviderEntry
	err := s.DB.WithContext(ctx).First(&p, "capability = ? AND name = ?", capability, name).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// ListProviders returns every entry of a capability, enabled or not. An empty
// capability lists all entries.
func (s *Store) ListProviders(ctx context.Context, capability string) ([]ProviderEntry, error) {
	var entries []ProviderEntry
	q := s.DB.WithContext(ctx).Order("capability ASC, priority ASC, name ASC")
	if capability != "" {
		q = q.Where("capability = ?", capability)
	}
	err := q.Find(&entries).Error
	return entries, err
}

func (s *Store) UpdateProvider(ctx context.Context, id string, updates map[string]interface{}) error {
	res := s.DB.WithContext(ctx).Model(&ProviderEntry{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	// mysql reports zero affected rows when the values did not change
	var n int64
	if err := s.DB.WithContext(ctx).Model(&ProviderEntry{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ActivityLog

func (s *Store) CreateActivity(ctx context.Context, a *ActivityLog) error {
	return s.DB.WithContext(ctx).Create(a).Error
}

func (s *Store) ListActivity(ctx context.Context, projectID string, limit int) ([]ActivityLog, error) {
	var logs []ActivityLog
	q := s.DB.WithContext(ctx).Where("project_id = ?", projectID).Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&logs).Error
	return logs, err
}

// ResetForRegeneration moves records back to pending ahead of a new pass.
// Without force only failed records are touched; with force every scene,
// clip and voiceover is reset regardless of status. Music beds are external
// references and are never reset.
func (s *Store) ResetForRegeneration(ctx context.Context, projectID string, force bool) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := resetRecords(tx, projectID, force); err != nil {
			return err
		}
		return tx.Model(&Project{}).Where("id = ?", projectID).Updates(map[string]interface{}{
			"status":           ProjectStatusPending,
			"error":            "",
			"output_url":       "",
			"render_id":        "",
			"cancel_requested": false,
		}).Error
	})
}

// ClaimRegeneration moves the project to queued when its status is in from
// (any status when from is empty) and resets its records in the same
// transaction. It reports whether the claim was taken.
func (s *Store) ClaimRegeneration(ctx context.Context, projectID string, from []string, force bool) (bool, error) {
	var claimed bool
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := transition(tx, projectID, from, map[string]interface{}{
			"status":           ProjectStatusQueued,
			"error":            "",
			"output_url":       "",
			"render_id":        "",
			"cancel_requested": false,
		})
		if err != nil || !ok {
			return err
		}
		claimed = true
		return resetRecords(tx, projectID, force)
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

func resetRecords(tx *gorm.DB, projectID string, force bool) error {
	scope := func(model interface{}) *gorm.DB {
		q := tx.Model(model).Where("project_id = ?", projectID)
		if !force {
			q = q.Where("status = ?", StatusFailed)
		}
		return q
	}
	if err := scope(&Scene{}).Updates(map[string]interface{}{
		"status": StatusPending,
		"error":  "",
	}).Error; err != nil {
		return fmt.Errorf("reset scenes: %w", err)
	}
	if err := scope(&Clip{}).Updates(map[string]interface{}{
		"status":     StatusPending,
		"error":      "",
		"output_url": "",
		"task_id":    "",
	}).Error; err != nil {
		return fmt.Errorf("reset clips: %w", err)
	}
	if err := scope(&AudioTrack{}).Where("kind = ?", AudioKindVoiceover).Updates(map[string]interface{}{
		"status":     StatusPending,
		"error":      "",
		"output_url": "",
		"task_id":    "",
	}).Error; err != nil {
		return fmt.Errorf("reset audio tracks: %w", err)
	}
	return nil
}

// MarkCancelled fails every record that is still pending or generating with
// the cancellation reason and moves the project to cancelled. Ready and
// already-failed records keep their state.
func (s *Store) MarkCancelled(ctx context.Context, projectID, reason string) error {
	inFlight := []string{StatusPending, StatusGenerating}
	failed := map[string]interface{}{
		"status": StatusFailed,
		"error":  reason,
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{&Scene{}, &Clip{}, &AudioTrack{}} {
			if err := tx.Model(model).
				Where("project_id = ? AND status IN ?", projectID, inFlight).
				Updates(failed).Error; err != nil {
				return fmt.Errorf("cancel records: %w", err)
			}
		}
		return tx.Model(&Project{}).Where("id = ?", projectID).Updates(map[string]interface{}{
			"status": ProjectStatusCancelled,
			"error":  reason,
		}).Error
	})
}
