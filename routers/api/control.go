package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type switchRequest struct {
	Enabled *bool  `json:"enabled" binding:"required"`
	Reason  string `json:"reason"`
}

// SetKillSwitch PUT /v1/api/control/killswitch {"enabled": true, "reason": "..."}
func (h *Handler) SetKillSwitch(c *gin.Context) {
	var req switchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Studio.SetKillSwitch(c.Request.Context(), *req.Enabled, req.Reason); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"killswitch": *req.Enabled, "reason": req.Reason})
}

// SetCategory PUT /v1/api/control/categories/:capability {"enabled": false, "reason": "..."}
func (h *Handler) SetCategory(c *gin.Context) {
	var req switchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	capability := c.Param("capability")
	if err := h.Studio.SetCategoryDisabled(c.Request.Context(), capability, !*req.Enabled, req.Reason); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"capability": capability, "enabled": *req.Enabled, "reason": req.Reason})
}

// GetOperational GET /v1/api/control/categories/:capability
func (h *Handler) GetOperational(c *gin.Context) {
	st, err := h.Studio.Operational(c.Request.Context(), c.Param("capability"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
