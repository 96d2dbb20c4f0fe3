package api

import (
	"net/http"
	"strconv"

	"VideoFactory-server/service"

	"github.com/gin-gonic/gin"
)

// CreateProject POST /v1/api/projects
func (h *Handler) CreateProject(c *gin.Context) {
	var script service.Script
	if err := c.ShouldBindJSON(&script); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	project, err := h.Studio.CreateProject(c.Request.Context(), script)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"project_id":  project.ID,
		"scene_count": project.SceneCount,
		"duration":    project.Duration,
		"status":      project.Status,
	})
}

// GetProject GET /v1/api/projects/:project_id
func (h *Handler) GetProject(c *gin.Context) {
	view, err := h.Studio.Status(c.Request.Context(), c.Param("project_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GenerateProject POST /v1/api/projects/:project_id/generate
func (h *Handler) GenerateProject(c *gin.Context) {
	var req struct {
		PreferredProvider string `json:"preferred_provider"`
	}
	// the body is optional
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	projectID := c.Param("project_id")
	if err := h.Studio.StartGeneration(c.Request.Context(), projectID, req.PreferredProvider); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"project_id": projectID, "accepted": true})
}

// RegenerateProject POST /v1/api/projects/:project_id/regenerate
func (h *Handler) RegenerateProject(c *gin.Context) {
	var req struct {
		Force bool `json:"force" form:"force"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	} else if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	projectID := c.Param("project_id")
	if err := h.Studio.Regenerate(c.Request.Context(), projectID, req.Force); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"project_id": projectID, "accepted": true, "force": req.Force})
}

// CancelProject POST /v1/api/projects/:project_id/cancel
func (h *Handler) CancelProject(c *gin.Context) {
	projectID := c.Param("project_id")
	if err := h.Studio.Cancel(c.Request.Context(), projectID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"project_id": projectID, "accepted": true})
}

// GetProjectActivity GET /v1/api/projects/:project_id/activity?limit=N
func (h *Handler) GetProjectActivity(c *gin.Context) {
	limit := 200
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	logs, err := h.Studio.ListActivity(c.Request.Context(), c.Param("project_id"), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": logs})
}
