package models

import "time"

// FileInfo represents metadata about a dataset held by the stub backend.
type FileInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploadedAt"`
}
