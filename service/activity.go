package service

import (
	"context"
	"encoding/json"
	"time"

	"VideoFactory-server/logger"
	"VideoFactory-server/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Activity categories.
const (
	CategoryProviderAttempt = "provider_attempt"
	CategoryScene           = "scene"
	CategoryProject         = "project"
	CategoryAssembly        = "assembly"
	CategoryControl         = "control"
)

type Event struct {
	ProjectID string
	Category  string
	Severity  string
	Message   string
	Metadata  map[string]interface{}
}

// ActivitySink accepts discrete activity events. Recording is fire-and-forget.
type ActivitySink interface {
	Record(ctx context.Context, ev Event)
}

// StoreActivitySink persists events as activity_log rows and mirrors them to
// the structured log.
type StoreActivitySink struct {
	store *models.Store
	log   *logger.Logger
}

func NewStoreActivitySink(store *models.Store, log *logger.Logger) *StoreActivitySink {
	return &StoreActivitySink{store: store, log: log.Component("ActivitySink")}
}

func (s *StoreActivitySink) Record(ctx context.Context, ev Event) {
	kv := []interface{}{"project_id", ev.ProjectID, "category", ev.Category}
	for k, v := range ev.Metadata {
		kv = append(kv, k, v)
	}
	switch ev.Severity {
	case models.SeverityError:
		s.log.Error(ev.Message, kv...)
	case models.SeverityWarning:
		s.log.Warn(ev.Message, kv...)
	default:
		s.log.Info(ev.Message, kv...)
	}

	meta, err := json.Marshal(ev.Metadata)
	if err != nil {
		s.log.Warn("activity metadata not serializable", "error", err)
		meta = []byte("{}")
	}
	row := &models.ActivityLog{
		ID:        uuid.NewString(),
		ProjectID: ev.ProjectID,
		Category:  ev.Category,
		Severity:  ev.Severity,
		Message:   ev.Message,
		Metadata:  datatypes.JSON(meta),
		CreatedAt: time.Now(),
	}
	// the run may already be cancelled; the event still has to land
	if err := s.store.CreateActivity(context.WithoutCancel(ctx), row); err != nil {
		s.log.Warn("failed to persist activity", "error", err)
	}
}
