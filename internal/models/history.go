package models

import "time"

// Operation names recorded in the history journal.
type Operation string

const (
	OperationUpload   Operation = "upload"
	OperationSummary  Operation = "summary"
	OperationInsight  Operation = "insight"
	OperationRealtime Operation = "realtime"
)

// Outcome of a recorded operation.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// HistoryEntry is one journal row.
type HistoryEntry struct {
	ID        int64         `json:"id"`
	Operation Operation     `json:"operation"`
	Outcome   Outcome       `json:"outcome"`
	Handle    DatasetHandle `json:"handle,omitempty"`
	Detail    string        `json:"detail,omitempty"`
	Duration  time.Duration `json:"duration"`
	At        time.Time     `json:"at"`
}
