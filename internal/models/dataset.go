// Package models contains domain types for the genstats session client.
package models

import (
	"bytes"
	"encoding/json"
	"errors"
)

// DefaultContentType is the media type declared for uploads that don't set one.
const DefaultContentType = "text/csv"

// DatasetHandle is the opaque identifier the upload service returns for an
// accepted file. The zero value means no dataset is selected.
type DatasetHandle string

// IsZero reports whether the handle is unset.
func (h DatasetHandle) IsZero() bool { return h == "" }

func (h DatasetHandle) String() string { return string(h) }

// UploadedFile is a file selected for upload but not yet sent.
type UploadedFile struct {
	Name        string `json:"name" msgpack:"name"`
	ContentType string `json:"contentType" msgpack:"contentType"`
	Payload     []byte `json:"-" msgpack:"-"`
}

// MediaType returns the declared content type, falling back to CSV.
func (f UploadedFile) MediaType() string {
	if f.ContentType == "" {
		return DefaultContentType
	}
	return f.ContentType
}

// Size returns the payload length in bytes.
func (f UploadedFile) Size() int64 { return int64(len(f.Payload)) }

// Summary is the statistics document returned for a dataset. Its content is
// opaque to the client; only presence matters.
type Summary []byte

// IsZero reports whether no summary is stored.
func (s Summary) IsZero() bool { return len(s) == 0 }

// Fields decodes the summary when it is a JSON object.
func (s Summary) Fields() (map[string]any, error) {
	if s.IsZero() {
		return nil, errors.New("empty summary")
	}
	var fields map[string]any
	if err := json.Unmarshal(s, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// Indent returns the summary pretty-printed for display.
func (s Summary) Indent() string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, s, "", "  "); err != nil {
		return string(s)
	}
	return buf.String()
}

// MarshalJSON emits the stored document verbatim.
func (s Summary) MarshalJSON() ([]byte, error) {
	if s.IsZero() {
		return []byte("null"), nil
	}
	return s, nil
}

// UnmarshalJSON keeps a copy of the raw document.
func (s *Summary) UnmarshalJSON(data []byte) error {
	if s == nil {
		return errors.New("models.Summary: UnmarshalJSON on nil pointer")
	}
	if bytes.Equal(data, []byte("null")) {
		*s = nil
		return nil
	}
	*s = append((*s)[0:0], data...)
	return nil
}

// UploadResult is the decoded response of a successful upload.
type UploadResult struct {
	FileID DatasetHandle `json:"file_id"`
	// Preview holds whatever else the upload service returned, such as an
	// inline dataset preview.
	Preview json.RawMessage `json:"preview,omitempty"`
}
