package stub

import (
	"bytes"
	"sort"
	"sync"
	"time"

	"github.com/genstats/client/internal/models"
	"github.com/google/uuid"
)

// Registry holds uploaded datasets in memory.
type Registry struct {
	mu    sync.RWMutex
	files map[string]*dataset
}

type dataset struct {
	info models.FileInfo
	rows int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{files: make(map[string]*dataset)}
}

// Add stores data and returns its metadata with a fresh id.
func (r *Registry) Add(name, contentType string, data []byte) models.FileInfo {
	info := models.FileInfo{
		ID:          uuid.New().String(),
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		UploadedAt:  time.Now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[info.ID] = &dataset{info: info, rows: countLines(data)}
	return info
}

// Get returns the metadata stored under id.
func (r *Registry) Get(id string) (models.FileInfo, int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.files[id]
	if !ok {
		return models.FileInfo{}, 0, false
	}
	return d.info, d.rows, true
}

// List returns all datasets, most recent first.
func (r *Registry) List() []models.FileInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]models.FileInfo, 0, len(r.files))
	for _, d := range r.files {
		list = append(list, d.info)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].UploadedAt.After(list[j].UploadedAt)
	})
	return list
}

// Len returns the number of stored datasets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.files)
}

// countLines counts newline-terminated lines plus a trailing partial line.
func countLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	n := bytes.Count(data, []byte{'\n'})
	if data[len(data)-1] != '\n' {
		n++
	}
	return n
}
