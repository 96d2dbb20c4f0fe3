package models

import "time"

// Generation record states shared by Scene, Clip and AudioTrack.
const (
	StatusPending    = "pending"
	StatusGenerating = "generating"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

type Scene struct {
	ID            string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ProjectID     string    `gorm:"type:varchar(64);uniqueIndex:idx_scene_project_number" json:"projectId"`
	SceneNumber   int       `gorm:"uniqueIndex:idx_scene_project_number" json:"sceneNumber"`
	Title         string    `json:"title"`
	VisualPrompt  string    `gorm:"type:text" json:"visualPrompt"`
	VoiceoverText string    `gorm:"type:text" json:"voiceoverText"`
	Duration      int       `json:"duration"`
	StartOffset   int       `json:"startOffset"`
	Transition    string    `gorm:"type:varchar(32)" json:"transition"`
	Status        string    `gorm:"type:varchar(32)" json:"status"`
	Error         string    `gorm:"type:text" json:"error"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (s Scene) HasVoiceover() bool {
	return s.VoiceoverText != ""
}

func (Scene) TableName() string {
	return "scene"
}

// Clip is the generated video segment of a scene. A scene owns at most one
// clip; regeneration reuses the same row.
type Clip struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ProjectID string    `gorm:"type:varchar(64);index" json:"projectId"`
	SceneID   string    `gorm:"type:varchar(64);uniqueIndex" json:"sceneId"`
	Provider  string    `gorm:"type:varchar(64)" json:"provider"`
	TaskID    string    `gorm:"type:varchar(128)" json:"taskId"`
	Prompt    string    `gorm:"type:text" json:"prompt"`
	Status    string    `gorm:"type:varchar(32)" json:"status"`
	OutputURL string    `gorm:"type:text" json:"outputUrl"`
	Error     string    `gorm:"type:text" json:"error"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Clip) TableName() string {
	return "clip"
}
