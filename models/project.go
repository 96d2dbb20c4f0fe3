package models

import "time"

// Project statuses. Only the orchestrator and the assembly engine move a project
// between these.
const (
	ProjectStatusPending    = "pending"
	ProjectStatusQueued     = "queued"
	ProjectStatusGenerating = "generating"
	ProjectStatusAssembling = "assembling"
	ProjectStatusReady      = "ready"
	ProjectStatusCompleted  = "completed"
	ProjectStatusFailed     = "failed"
	ProjectStatusCancelled  = "cancelled"
	ProjectStatusExported   = "exported"
)

// ActiveProjectStatuses are the statuses of a project owned by a pass,
// either waiting for a worker or running.
var ActiveProjectStatuses = []string{ProjectStatusQueued, ProjectStatusGenerating, ProjectStatusAssembling}

// IdleProjectStatuses may be claimed for a new pass.
var IdleProjectStatuses = []string{
	ProjectStatusPending,
	ProjectStatusReady,
	ProjectStatusCompleted,
	ProjectStatusFailed,
	ProjectStatusCancelled,
	ProjectStatusExported,
}

type Project struct {
	ID                string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Title             string    `json:"title"`
	SourceID          string    `gorm:"type:varchar(128);index" json:"sourceId"`
	Duration          int       `json:"duration"`
	Status            string    `gorm:"type:varchar(32);index" json:"status"`
	OutputURL         string    `gorm:"type:text" json:"outputUrl"`
	Error             string    `gorm:"type:text" json:"error"`
	PreferredProvider string    `gorm:"type:varchar(64)" json:"preferredProvider"`
	CancelRequested   bool      `json:"cancelRequested"`
	RenderID          string    `gorm:"type:varchar(128)" json:"renderId"`
	SceneCount        int       `json:"sceneCount"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func (Project) TableName() string {
	return "project"
}
