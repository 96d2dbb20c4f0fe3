package api

import (
	"net/http"
	"strings"
	"time"

	"VideoFactory-server/models"
	"VideoFactory-server/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ProgressInterval is how often the websocket re-reads the project.
var ProgressInterval = time.Second

// ProjectProgressWebSocket pushes the project view whenever the project or
// any scene, clip or voiceover changes state, and closes once the project
// is terminal. The database is the only source.
func (h *Handler) ProjectProgressWebSocket(c *gin.Context) {
	projectID := c.Param("project_id")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Log.Warn("websocket upgrade failed", "project_id", projectID, "error", err)
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	view, err := h.Studio.Status(ctx, projectID)
	if err != nil {
		_ = conn.WriteJSON(gin.H{"error": "project not found: " + err.Error()})
		return
	}
	if err := conn.WriteJSON(view); err != nil {
		return
	}
	prev := progressSignature(view)
	if terminal(view.Project.Status) {
		return
	}

	ticker := time.NewTicker(ProgressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		cur, err := h.Studio.Status(ctx, projectID)
		if err != nil {
			continue
		}
		if sig := progressSignature(cur); sig != prev {
			if err := conn.WriteJSON(cur); err != nil {
				return
			}
			prev = sig
		}
		if terminal(cur.Project.Status) {
			return
		}
	}
}

func terminal(status string) bool {
	switch status {
	case models.ProjectStatusCompleted, models.ProjectStatusFailed, models.ProjectStatusCancelled, models.ProjectStatusExported:
		return true
	}
	return false
}

func progressSignature(v *service.ProjectView) string {
	var b strings.Builder
	b.WriteString(v.Project.Status)
	for _, s := range v.Scenes {
		b.WriteString("|" + s.Status)
		if s.Clip != nil {
			b.WriteString("," + s.Clip.Status + "," + s.Clip.Provider)
		}
		if s.Voiceover != nil {
			b.WriteString("," + s.Voiceover.Status)
		}
	}
	return b.String()
}
