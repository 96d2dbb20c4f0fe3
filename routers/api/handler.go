package api

import (
	"errors"
	"net/http"

	"VideoFactory-server/logger"
	"VideoFactory-server/models"
	"VideoFactory-server/service"

	"github.com/gin-gonic/gin"
)

// Handler binds the HTTP surface to the studio.
type Handler struct {
	Studio *service.Studio
	Log    *logger.Logger
}

func NewHandler(studio *service.Studio, log *logger.Logger) *Handler {
	return &Handler{Studio: studio, Log: log.Component("api")}
}

// writeError maps domain errors onto status codes.
func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrPlanInvalid), errors.Is(err, service.ErrInvalidCapability):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrProjectBusy):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.Log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
