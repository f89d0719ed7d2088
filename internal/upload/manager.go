package upload

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status represents the upload status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
)

// Job tracks one upload attempt from the client side.
type Job struct {
	ID          string     `json:"id"`
	FileName    string     `json:"fileName"`
	TotalBytes  int64      `json:"totalBytes"`
	SentBytes   int64      `json:"sentBytes"`
	Status      Status     `json:"status"`
	Progress    float64    `json:"progress"` // 0-100
	Handle      string     `json:"handle,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Listener receives a copy of a job after every change.
type Listener func(Job)

// Manager keeps upload jobs and reports their progress.
type Manager struct {
	jobs     map[string]*Job
	mu       sync.RWMutex
	listener Listener
	log      *slog.Logger
}

// NewManager creates a new upload manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		jobs: make(map[string]*Job),
		log:  logger.With("component", "upload"),
	}
}

// SetListener installs the progress listener, replacing any previous one.
func (m *Manager) SetListener(l Listener) {
	m.mu.Lock()
	m.listener = l
	m.mu.Unlock()
}

// StartJob registers a new upload of totalBytes.
func (m *Manager) StartJob(fileName string, totalBytes int64) *Job {
	job := &Job{
		ID:         uuid.New().String(),
		FileName:   fileName,
		TotalBytes: totalBytes,
		Status:     StatusPending,
		CreatedAt:  time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.log.Debug("upload job started", "job", job.ID, "file", fileName, "bytes", totalBytes)
	m.notify(job)
	return job
}

// GetJob returns a copy of the job with the given id.
func (m *Manager) GetJob(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Jobs returns copies of all known jobs.
func (m *Manager) Jobs() []Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, *job)
	}
	return out
}

// Reader wraps r so that every read advances the job's progress.
func (m *Manager) Reader(job *Job, r io.Reader) io.Reader {
	return &progressReader{m: m, job: job, r: r}
}

// MarkComplete marks the job as finished with the returned handle.
func (m *Manager) MarkComplete(job *Job, handle string) {
	m.mu.Lock()
	job.Status = StatusComplete
	job.Progress = 100
	job.Handle = handle
	now := time.Now()
	job.CompletedAt = &now
	m.mu.Unlock()

	m.log.Debug("upload job complete", "job", job.ID, "handle", handle)
	m.notify(job)
}

// MarkError marks the job as failed.
func (m *Manager) MarkError(job *Job, err error) {
	m.mu.Lock()
	job.Status = StatusError
	job.Error = err.Error()
	now := time.Now()
	job.CompletedAt = &now
	m.mu.Unlock()

	m.log.Debug("upload job failed", "job", job.ID, "error", err)
	m.notify(job)
}

// CleanupOldJobs removes jobs that finished at least maxAge ago.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for id, job := range m.jobs {
		if job.Status == StatusComplete || job.Status == StatusError {
			if job.CompletedAt != nil && !job.CompletedAt.After(cutoff) {
				delete(m.jobs, id)
				removed++
			}
		}
	}
	return removed
}

func (m *Manager) advance(job *Job, n int) {
	m.mu.Lock()
	job.Status = StatusUploading
	job.SentBytes += int64(n)
	if job.TotalBytes > 0 {
		job.Progress = float64(job.SentBytes) * 100 / float64(job.TotalBytes)
		// 100% is reserved for a confirmed response
		if job.Progress > 99.9 {
			job.Progress = 99.9
		}
	}
	m.mu.Unlock()
	m.notify(job)
}

func (m *Manager) notify(job *Job) {
	m.mu.RLock()
	l := m.listener
	snapshot := *job
	m.mu.RUnlock()
	if l != nil {
		l(snapshot)
	}
}

type progressReader struct {
	m   *Manager
	job *Job
	r   io.Reader
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.m.advance(p.job, n)
	}
	return n, err
}

// String implements fmt.Stringer for log output.
func (j Job) String() string {
	return fmt.Sprintf("%s %s %.1f%% (%d/%d bytes)", j.ID[:8], j.Status, j.Progress, j.SentBytes, j.TotalBytes)
}
