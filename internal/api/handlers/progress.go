package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/progress"
)

// ProgressHandler lists busy indicators.
type ProgressHandler struct {
	tracker *progress.Tracker
}

// NewProgressHandler constructs a ProgressHandler.
func NewProgressHandler(tracker *progress.Tracker) *ProgressHandler {
	return &ProgressHandler{tracker: tracker}
}

// ListProgress handles GET /v1/progress.
func (h *ProgressHandler) ListProgress(c *gin.Context) {
	c.JSON(http.StatusOK, h.tracker.Active())
}
