package models

import (
	"encoding/json"
	"time"
)

// PendingFile describes the selected file without its payload.
type PendingFile struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// SessionState is the observable state of one dataset session.
type SessionState struct {
	Pending         *PendingFile    `json:"pending,omitempty"`
	Handle          DatasetHandle   `json:"handle,omitempty"`
	Preview         json.RawMessage `json:"preview,omitempty"` // extra upload response members
	Summary         Summary         `json:"summary,omitempty"`
	SummaryHandle   DatasetHandle   `json:"summaryHandle,omitempty"` // handle the summary was fetched for
	InsightQuery    string          `json:"insightQuery,omitempty"`
	InsightResponse string          `json:"insightResponse,omitempty"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// HasDataset reports whether analysis calls can be issued.
func (s SessionState) HasDataset() bool { return !s.Handle.IsZero() }

// Clone returns a copy that shares no mutable memory with s.
func (s SessionState) Clone() SessionState {
	out := s
	if s.Pending != nil {
		p := *s.Pending
		out.Pending = &p
	}
	if s.Preview != nil {
		out.Preview = append(json.RawMessage(nil), s.Preview...)
	}
	if s.Summary != nil {
		out.Summary = append(Summary(nil), s.Summary...)
	}
	return out
}
