// interfaces.go - Collaborator interfaces for clean separation of concerns
package api

import (
	"context"
	"io"

	"github.com/genstats/client/internal/models"
)

// Uploader sends a dataset file to the upload service.
type Uploader interface {
	Upload(ctx context.Context, name, contentType string, body io.Reader) (*models.UploadResult, error)
}

// SummaryFetcher requests the summary document for an uploaded dataset.
type SummaryFetcher interface {
	Summary(ctx context.Context, handle models.DatasetHandle) (models.Summary, error)
}

// InsightRequester submits a free-text query to the AI insight service.
type InsightRequester interface {
	GenerateInsights(ctx context.Context, query string) (string, error)
}

// Backend groups the three request/response services the session drives.
// This allows mocking in tests.
type Backend interface {
	Uploader
	SummaryFetcher
	InsightRequester
}

// HealthChecker reports whether the backend is reachable.
type HealthChecker interface {
	Health(ctx context.Context) (*HealthStatus, error)
}

// HealthStatus is the decoded /health response.
type HealthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
