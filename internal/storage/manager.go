package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/genstats/client/internal/session"
	"github.com/vmihailenco/msgpack/v5"
)

const snapshotExt = ".msgpack"

// ErrNotFound is returned when no snapshot exists under a name.
var ErrNotFound = errors.New("snapshot not found")

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// Store defines the interface for session snapshot storage.
type Store interface {
	SaveSnapshot(name string, snap session.Snapshot) error
	LoadSnapshot(name string) (session.Snapshot, error)
	Delete(name string) error
	List() ([]SnapshotInfo, error)
}

// SnapshotInfo describes a stored snapshot.
type SnapshotInfo struct {
	Name    string    `json:"name"`
	Handle  string    `json:"handle"`
	Size    int64     `json:"size"`
	SavedAt time.Time `json:"savedAt"`
}

// LocalStore implements Store using one msgpack file per session name.
type LocalStore struct {
	mu  sync.RWMutex
	dir string
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore creates a new LocalStore rooted at dir.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Dir returns the directory snapshots are written to.
func (s *LocalStore) Dir() string { return s.dir }

// SaveSnapshot writes snap under name, replacing any previous snapshot.
// The file is written to a temporary path and renamed into place.
func (s *LocalStore) SaveSnapshot(name string, snap session.Snapshot) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now()
	}

	data, err := msgpack.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("renaming snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads the snapshot stored under name.
func (s *LocalStore) LoadSnapshot(name string) (session.Snapshot, error) {
	var snap session.Snapshot
	path, err := s.path(name)
	if err != nil {
		return snap, err
	}

	s.mu.RLock()
	data, err := os.ReadFile(path)
	s.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return snap, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return snap, fmt.Errorf("reading snapshot: %w", err)
	}

	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("decoding snapshot %s: %w", name, err)
	}
	return snap, nil
}

// Delete removes the snapshot stored under name.
func (s *LocalStore) Delete(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("deleting snapshot: %w", err)
	}
	return nil
}

// List returns the stored snapshots, most recently saved first. Files that
// fail to decode are skipped.
func (s *LocalStore) List() ([]SnapshotInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading state directory: %w", err)
	}

	var list []SnapshotInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), snapshotExt) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var snap session.Snapshot
		if err := msgpack.Unmarshal(data, &snap); err != nil {
			continue
		}
		list = append(list, SnapshotInfo{
			Name:    strings.TrimSuffix(e.Name(), snapshotExt),
			Handle:  snap.Handle,
			Size:    int64(len(data)),
			SavedAt: snap.SavedAt,
		})
	}

	// Sort by SavedAt desc
	sort.Slice(list, func(i, j int) bool {
		return list[i].SavedAt.After(list[j].SavedAt)
	})
	return list, nil
}

func (s *LocalStore) path(name string) (string, error) {
	if !validName.MatchString(name) {
		return "", fmt.Errorf("invalid session name %q", name)
	}
	return filepath.Join(s.dir, name+snapshotExt), nil
}
