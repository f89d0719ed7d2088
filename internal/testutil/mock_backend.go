// mock_backend.go - In-memory backend for session tests
package testutil

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/genstats/client/internal/api"
	"github.com/genstats/client/internal/models"
)

// Call records one request made against the mock.
type Call struct {
	Op          string // "upload", "summary" or "insight"
	Name        string
	ContentType string
	Body        []byte
	Handle      models.DatasetHandle
	Query       string
}

// MockBackend implements api.Backend for testing. Responses are canned per
// operation and any operation can be made to fail.
type MockBackend struct {
	mu sync.Mutex

	fileID    models.DatasetHandle
	preview   []byte
	summaries map[models.DatasetHandle]models.Summary
	response  string
	failures  map[string]error
	gates     map[string]chan struct{}
	calls     []Call
}

// NewMockBackend creates a mock that answers uploads with fileID.
func NewMockBackend(fileID string) *MockBackend {
	return &MockBackend{
		fileID:    models.DatasetHandle(fileID),
		summaries: make(map[models.DatasetHandle]models.Summary),
		failures:  make(map[string]error),
		gates:     make(map[string]chan struct{}),
	}
}

var _ api.Backend = (*MockBackend)(nil)

func (m *MockBackend) Upload(ctx context.Context, name, contentType string, body io.Reader) (*models.UploadResult, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	m.record(Call{Op: "upload", Name: name, ContentType: contentType, Body: data})
	if err := m.wait(ctx, "upload"); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["upload"]; err != nil {
		return nil, err
	}
	return &models.UploadResult{FileID: m.fileID, Preview: m.preview}, nil
}

func (m *MockBackend) Summary(ctx context.Context, handle models.DatasetHandle) (models.Summary, error) {
	m.record(Call{Op: "summary", Handle: handle})
	if err := m.wait(ctx, "summary"); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["summary"]; err != nil {
		return nil, err
	}
	s, ok := m.summaries[handle]
	if !ok {
		return nil, api.NewNotFoundError("dataset", handle.String())
	}
	return s, nil
}

func (m *MockBackend) GenerateInsights(ctx context.Context, query string) (string, error) {
	m.record(Call{Op: "insight", Query: query})
	if err := m.wait(ctx, "insight"); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["insight"]; err != nil {
		return "", err
	}
	return m.response, nil
}

// Test Helper Methods

// SetFileID changes the handle returned by the next uploads.
func (m *MockBackend) SetFileID(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fileID = models.DatasetHandle(id)
}

// SetPreview sets the extra upload response members.
func (m *MockBackend) SetPreview(raw string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preview = []byte(raw)
}

// SetSummary registers the summary document served for handle.
func (m *MockBackend) SetSummary(handle, doc string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[models.DatasetHandle(handle)] = models.Summary(doc)
}

// SetResponse sets the insight text.
func (m *MockBackend) SetResponse(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = text
}

// Fail makes op return err until cleared with a nil err.
func (m *MockBackend) Fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// Hold blocks requests for op until the returned release func is called.
// The call is recorded before it blocks.
func (m *MockBackend) Hold(op string) (release func()) {
	gate := make(chan struct{})
	m.mu.Lock()
	m.gates[op] = gate
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.gates[op] == gate {
				delete(m.gates, op)
			}
			m.mu.Unlock()
			close(gate)
		})
	}
}

// Calls returns a copy of the recorded calls.
func (m *MockBackend) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many calls were made for op; an empty op counts all.
func (m *MockBackend) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if op == "" {
		return len(m.calls)
	}
	n := 0
	for _, c := range m.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (m *MockBackend) record(c Call) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
}

func (m *MockBackend) wait(ctx context.Context, op string) error {
	m.mu.Lock()
	gate := m.gates[op]
	m.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ErrInjected is a convenience error for failure injection.
var ErrInjected = errors.New("injected failure")

// MockJournal collects history entries in memory.
type MockJournal struct {
	mu      sync.Mutex
	entries []models.HistoryEntry
	err     error
}

// NewMockJournal creates an empty journal. A non-nil err is returned from
// every Record call after the entry is stored.
func NewMockJournal(err error) *MockJournal {
	return &MockJournal{err: err}
}

func (j *MockJournal) Record(_ context.Context, e models.HistoryEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	e.ID = int64(len(j.entries) + 1)
	j.entries = append(j.entries, e)
	return j.err
}

// Entries returns a copy of the recorded entries.
func (j *MockJournal) Entries() []models.HistoryEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]models.HistoryEntry, len(j.entries))
	copy(out, j.entries)
	return out
}
