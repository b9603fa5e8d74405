// Package server implements the HTTP front door: document upload, session
// creation, and session reads.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"carevoice-backend/internal/session"
)

// SessionCreator is the slice of the session factory the server needs.
type SessionCreator interface {
	CreateSession(ctx context.Context, filePath string) (string, error)
}

// SessionReader is the slice of the session store the server needs.
type SessionReader interface {
	Get(id string) (*session.Session, error)
}

// Server is the HTTP front door.
type Server struct {
	factory   SessionCreator
	sessions  SessionReader
	uploadDir string
	router    *gin.Engine
}

// Opts holds parameters for creating a Server.
type Opts struct {
	Factory   SessionCreator
	Sessions  SessionReader
	UploadDir string
}

// New creates a Server and builds its routes.
func New(opts Opts) (*Server, error) {
	if opts.Factory == nil {
		return nil, fmt.Errorf("server: session factory is required")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("server: session reader is required")
	}
	if opts.UploadDir == "" {
		return nil, fmt.Errorf("server: upload dir is required")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), corsMiddleware())

	s := &Server{
		factory:   opts.Factory,
		sessions:  opts.Sessions,
		uploadDir: opts.UploadDir,
		router:    router,
	}
	s.registerRoutes()
	return s, nil
}

// Router exposes the underlying handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start launches the HTTP server on the given port. It blocks until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, port int, out io.Writer) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if out != nil {
		fmt.Fprintf(out, "Carevoice API listening on :%d\n", port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// corsMiddleware allows cross-origin requests from the patient frontend,
// which is served from a different origin.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
