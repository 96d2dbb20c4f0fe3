package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

type ActivityLog struct {
	ID        string         `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ProjectID string         `gorm:"type:varchar(64);index" json:"projectId"`
	Category  string         `gorm:"type:varchar(64)" json:"category"`
	Severity  string         `gorm:"type:varchar(16)" json:"severity"`
	Message   string         `gorm:"type:text" json:"message"`
	Metadata  datatypes.JSON `json:"metadata"`
	CreatedAt time.Time      `json:"createdAt"`
}

func (ActivityLog) TableName() string {
	return "activity_log"
}
