package models

import "time"

const (
	CapabilityVideo     = "video"
	CapabilityImage     = "image"
	CapabilityVoiceover = "voiceover"
	CapabilityAssembly  = "assembly"
)

const (
	HealthUnknown  = "unknown"
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
)

// ProviderEntry is the operator-editable registry row for one provider of
// one capability. Lower priority is tried first.
type ProviderEntry struct {
	ID            string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Capability    string     `gorm:"type:varchar(16);uniqueIndex:idx_provider_capability_name" json:"capability"`
	Name          string     `gorm:"type:varchar(64);uniqueIndex:idx_provider_capability_name" json:"name"`
	Priority      int        `json:"priority"`
	IsEnabled     bool       `json:"isEnabled"`
	Health        string     `gorm:"type:varchar(16)" json:"health"`
	LastError     string     `gorm:"type:text" json:"lastError"`
	LastCheckedAt *time.Time `json:"lastCheckedAt"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func (ProviderEntry) TableName() string {
	return "provider_entry"
}

// ValidCapability reports whether c names a known capability category.
func ValidCapability(c string) bool {
	switch c {
	case CapabilityVideo, CapabilityImage, CapabilityVoiceover, CapabilityAssembly:
		return true
	}
	return false
}
