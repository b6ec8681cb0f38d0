// Package server wires the preview registry into an HTTP server.
package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/api/handlers"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/api/middleware"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/config"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/logger"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/panel"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/progress"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/session"
)

const shutdownTimeout = 5 * time.Second

// Banner is served at GET / so clients can check they reached the right
// process.
const Banner = "Interactive Graphviz preview server"

// Server is the preview HTTP server.
type Server struct {
	cfg     *config.Config
	hub     *panel.Hub
	tracker *progress.Tracker
	manager *session.Manager
	router  *gin.Engine
}

// New builds the server and its registry from cfg.
func New(cfg *config.Config) *Server {
	hub := panel.NewHub(panel.WithCheckOrigin(originChecker(cfg.AllowedOrigins)))
	tracker := progress.NewTracker()
	manager := session.NewManager(hub, tracker, cfg.Preview)
	return &Server{
		cfg:     cfg,
		hub:     hub,
		tracker: tracker,
		manager: manager,
		router:  NewRouter(cfg, manager, tracker),
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Manager returns the preview registry.
func (s *Server) Manager() *session.Manager { return s.manager }

// Run serves until ctx is canceled, then shuts down and disposes every
// preview.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("[server] listening on %s", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
		logger.Infof("[server] shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Hijacked view connections are not tracked by Shutdown.
	s.hub.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	if err := s.manager.CloseAll(shutdownCtx); err != nil {
		logger.Warnf("[server] closing previews: %v", err)
	}
	return serveErr
}

// NewRouter builds the gin engine serving the preview API.
func NewRouter(cfg *config.Config, manager *session.Manager, tracker *progress.Tracker) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))
	router.Use(middleware.LoggingMiddleware())

	// Root endpoint - returns plain text for client validation
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, Banner)
	})

	previewHandler := handlers.NewPreviewHandler(manager)
	settingsHandler := handlers.NewSettingsHandler(manager)
	progressHandler := handlers.NewProgressHandler(tracker)

	v1 := router.Group("/v1")
	{
		v1.POST("/previews", previewHandler.CreatePreview)
		v1.GET("/previews", previewHandler.ListPreviews)
		v1.GET("/previews/:id", previewHandler.GetPreview)
		v1.PUT("/previews/:id/source", previewHandler.UpdateSource)
		v1.POST("/previews/:id/reveal", previewHandler.Reveal)
		v1.DELETE("/previews/:id", previewHandler.DeletePreview)
		v1.GET("/previews/:id/view", previewHandler.View)

		v1.GET("/settings", settingsHandler.GetSettings)
		v1.PUT("/settings", settingsHandler.UpdateSettings)

		v1.GET("/progress", progressHandler.ListProgress)
	}
	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"*"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func originChecker(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Non-browser clients send no Origin.
		return origin == "" || slices.Contains(origins, origin)
	}
}
