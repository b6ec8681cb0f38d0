package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/session"
	"github.com/justinchuby/vscode-interactive-graphviz/pkg/types"
)

// MaxSourceBytes bounds a single source upload.
const MaxSourceBytes = 16 << 20

// PreviewHandler exposes the preview registry.
type PreviewHandler struct {
	manager *session.Manager
}

// NewPreviewHandler constructs a PreviewHandler.
func NewPreviewHandler(manager *session.Manager) *PreviewHandler {
	return &PreviewHandler{manager: manager}
}

// CreatePreview handles POST /v1/previews.
func (h *PreviewHandler) CreatePreview(c *gin.Context) {
	var req types.CreatePreviewRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
			return
		}
	}

	pv, err := h.manager.Open(req.ID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if req.Source != "" {
		if err := pv.Scheduler().RequestRender(req.Source); err != nil {
			abortWithError(c, err)
			return
		}
	}

	c.JSON(http.StatusCreated, types.CreatePreviewResponse{
		ID:      pv.ID,
		ViewURL: "/v1/previews/" + pv.ID + "/view",
	})
}

// ListPreviews handles GET /v1/previews.
func (h *PreviewHandler) ListPreviews(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.List())
}

// GetPreview handles GET /v1/previews/:id.
func (h *PreviewHandler) GetPreview(c *gin.Context) {
	pv, err := h.manager.Get(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, pv.Status())
}

// UpdateSource handles PUT /v1/previews/:id/source.
//
// The body is the raw diagram source. The render happens asynchronously, so
// the response is 202 with the status at the time the change was queued.
func (h *PreviewHandler) UpdateSource(c *gin.Context) {
	pv, err := h.manager.Get(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxSourceBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, types.ErrorResponse{Error: "source too large"})
			return
		}
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "failed to read source"})
		return
	}

	if err := pv.Scheduler().RequestRender(string(body)); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, pv.Status())
}

// Reveal handles POST /v1/previews/:id/reveal.
func (h *PreviewHandler) Reveal(c *gin.Context) {
	pv, err := h.manager.Get(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	var req types.RevealRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
			return
		}
	}
	if err := pv.Scheduler().Reveal(req.Target); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, types.SuccessResponse{Success: true})
}

// DeletePreview handles DELETE /v1/previews/:id.
func (h *PreviewHandler) DeletePreview(c *gin.Context) {
	if err := h.manager.Close(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.SuccessResponse{Success: true})
}

// View handles GET /v1/previews/:id/view, the hosted view's websocket.
func (h *PreviewHandler) View(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.manager.Get(id); err != nil {
		abortWithError(c, err)
		return
	}
	// Upgrade failures have been answered by the upgrader and logged.
	_ = h.manager.ServeView(c.Writer, c.Request, id)
}
