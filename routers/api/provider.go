package api

import (
	"net/http"

	"VideoFactory-server/service"

	"github.com/gin-gonic/gin"
)

// ListProviders GET /v1/api/providers?capability=video
func (h *Handler) ListProviders(c *gin.Context) {
	entries, err := h.Studio.ListProviders(c.Request.Context(), c.Query("capability"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"providers": entries})
}

// UpdateProvider PATCH /v1/api/providers/:provider_id
func (h *Handler) UpdateProvider(c *gin.Context) {
	var patch service.ProviderPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entry, err := h.Studio.UpdateProvider(c.Request.Context(), c.Param("provider_id"), patch)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider": entry})
}
