package models

import "time"

const (
	AudioKindVoiceover = "voiceover"
	AudioKindMusic     = "music"
)

// AudioTrack is either a scene voiceover or a project-wide background music
// bed. Music tracks have an empty SceneID.
type AudioTrack struct {
	ID         string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ProjectID  string    `gorm:"type:varchar(64);index" json:"projectId"`
	SceneID    string    `gorm:"type:varchar(64);index" json:"sceneId,omitempty"`
	Kind       string    `gorm:"type:varchar(16)" json:"kind"`
	SourceText string    `gorm:"type:text" json:"sourceText,omitempty"`
	MusicRef   string    `gorm:"type:text" json:"musicRef,omitempty"`
	Provider   string    `gorm:"type:varchar(64)" json:"provider"`
	TaskID     string    `gorm:"type:varchar(128)" json:"taskId"`
	Status     string    `gorm:"type:varchar(32)" json:"status"`
	OutputURL  string    `gorm:"type:text" json:"outputUrl"`
	Duration   int       `json:"duration"`
	Error      string    `gorm:"type:text" json:"error"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (AudioTrack) TableName() string {
	return "audio_track"
}
