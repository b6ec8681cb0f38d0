package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/config"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/preview"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/session"
	"github.com/justinchuby/vscode-interactive-graphviz/pkg/types"
)

// abortWithError maps domain errors onto HTTP status codes.
func abortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrExists), errors.Is(err, preview.ErrDisposed):
		status = http.StatusConflict
	case errors.Is(err, config.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, preview.ErrBusy):
		status = http.StatusServiceUnavailable
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, types.ErrorResponse{Error: err.Error()})
}
