// handlers.go - HTTP handlers for the stub backend
package stub

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/genstats/client/internal/api"
	"github.com/genstats/client/internal/models"
	"github.com/labstack/echo/v4"
)

type uploadResponse struct {
	FileID      string `json:"file_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type summaryResponse struct {
	FileID      string    `json:"file_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Lines       int       `json:"lines"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

type insightRequest struct {
	Query string `json:"query"`
}

type insightResponse struct {
	Response string `json:"response"`
}

// handleUpload accepts a multipart form with the dataset in field "file".
func (s *Server) handleUpload(c echo.Context) error {
	if err := s.injected(RouteUpload); err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return api.NewBadRequestError("multipart field \"file\" is required", err)
	}
	f, err := fh.Open()
	if err != nil {
		return api.NewInternalError("failed to open uploaded file", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return api.NewInternalError("failed to read uploaded file", err)
	}

	contentType := fh.Header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = models.DefaultContentType
	}
	info := s.registry.Add(fh.Filename, contentType, data)
	s.log.Debug("dataset stored", "file", info.Name, "id", info.ID, "bytes", info.Size)

	return c.JSON(http.StatusOK, uploadResponse{
		FileID:      info.ID,
		Filename:    info.Name,
		ContentType: info.ContentType,
		Size:        info.Size,
	})
}

// handleSummary returns the stored metadata of a dataset.
func (s *Server) handleSummary(c echo.Context) error {
	if err := s.injected(RouteSummary); err != nil {
		return err
	}

	id := c.Param("id")
	info, lines, ok := s.registry.Get(id)
	if !ok {
		return api.NewNotFoundError("dataset", id)
	}
	return c.JSON(http.StatusOK, summaryResponse{
		FileID:      info.ID,
		Filename:    info.Name,
		ContentType: info.ContentType,
		Size:        info.Size,
		Lines:       lines,
		UploadedAt:  info.UploadedAt,
	})
}

// handleInsights answers a free-text query with canned text.
func (s *Server) handleInsights(c echo.Context) error {
	if err := s.injected(RouteInsights); err != nil {
		return err
	}

	var req insightRequest
	if err := c.Bind(&req); err != nil {
		return api.NewBadRequestError("invalid request body", err)
	}
	if strings.TrimSpace(req.Query) == "" {
		return api.NewValidationError("query")
	}
	return c.JSON(http.StatusOK, insightResponse{Response: s.respond(req.Query)})
}

// handleHealth returns server health status.
func (s *Server) handleHealth(c echo.Context) error {
	if err := s.injected(RouteHealth); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, api.HealthStatus{
		Status:  "ok",
		Version: s.version,
	})
}
