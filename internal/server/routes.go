package server

import (
	"errors"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"carevoice-backend/internal/store"
)

func (s *Server) registerRoutes() {
	api := s.router.Group("/api")
	api.POST("/upload", s.handleUpload)
	api.GET("/users", s.handleUsers)
	api.GET("/sessions/:id", s.handleGetSession)
}

// handleUpload receives a medical note as multipart form data, saves it under
// the upload directory, and creates a session from it.
func (s *Server) handleUpload(c *gin.Context) {
	file, err := c.FormFile("note")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}

	name := sanitizeFilename(file.Filename)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Empty filename"})
		return
	}

	dst := filepath.Join(s.uploadDir, name)
	if err := c.SaveUploadedFile(file, dst); err != nil {
		log.Printf("server: saving upload %q: %v", name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}

	sessionID, err := s.factory.CreateSession(c.Request.Context(), dst)
	if err != nil {
		log.Printf("server: creating session for %q: %v", name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "File uploaded",
		"session_id": sessionID,
	})
}

// handleUsers is a placeholder for the frontend's health probe.
func (s *Server) handleUsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Users fetched"})
}

func (s *Server) handleGetSession(c *gin.Context) {
	sess, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		log.Printf("server: reading session %q: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read session"})
		return
	}
	c.JSON(http.StatusOK, sess)
}

// sanitizeFilename strips any path components from an uploaded filename and
// rejects names that reduce to nothing. Uploads share a flat directory, so
// traversal sequences must not survive.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimLeft(name, ".")
	if name == "" || name == "/" {
		return ""
	}
	return name
}
