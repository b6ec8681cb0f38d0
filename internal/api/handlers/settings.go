package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/session"
	"github.com/justinchuby/vscode-interactive-graphviz/pkg/types"
)

// SettingsHandler serves the preview tuning settings.
type SettingsHandler struct {
	manager *session.Manager
}

// NewSettingsHandler constructs a SettingsHandler.
func NewSettingsHandler(manager *session.Manager) *SettingsHandler {
	return &SettingsHandler{manager: manager}
}

// GetSettings handles GET /v1/settings.
//
// With ?key=<name> only that setting is returned; keys may carry the
// settings section prefix used by advisories.
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	settings := h.manager.Settings()
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusOK, settings)
		return
	}
	v, ok := settings.Lookup(key)
	if !ok {
		c.JSON(http.StatusNotFound, types.ErrorResponse{Error: "unknown setting: " + key})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": v})
}

// UpdateSettings handles PUT /v1/settings. Previews already open keep the
// settings they were opened with.
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	next := h.manager.Settings()
	if err := c.ShouldBindJSON(&next); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.manager.SetSettings(next); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, next)
}
