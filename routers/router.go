package routers

import (
	"VideoFactory-server/routers/api"

	"github.com/gin-gonic/gin"
)

func InitRouter(h *api.Handler) *gin.Engine {
	r := gin.Default()
	v1 := r.Group("/v1/api")
	{
		v1.POST("/projects", h.CreateProject)
		v1.GET("/projects/:project_id", h.GetProject)
		v1.POST("/projects/:project_id/generate", h.GenerateProject)
		v1.POST("/projects/:project_id/regenerate", h.RegenerateProject)
		v1.POST("/projects/:project_id/cancel", h.CancelProject)
		v1.GET("/projects/:project_id/activity", h.GetProjectActivity)
		v1.GET("/providers", h.ListProviders)
		v1.PATCH("/providers/:provider_id", h.UpdateProvider)
		v1.PUT("/control/killswitch", h.SetKillSwitch)
		v1.PUT("/control/categories/:capability", h.SetCategory)
		v1.GET("/control/categories/:capability", h.GetOperational)
	}
	r.GET("/projects/:project_id/wss", h.ProjectProgressWebSocket)
	return r
}
