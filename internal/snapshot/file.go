package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/product-resolver/internal/models"
)

// FileStore keeps all snapshots in one JSON file. Meant for local runs
// without postgres.
type FileStore struct {
	mu        sync.RWMutex
	snapshots map[uuid.UUID]*Snapshot
	filename  string
}

func NewFileStore(filename string) (*FileStore, error) {
	fs := &FileStore{
		snapshots: make(map[uuid.UUID]*Snapshot),
		filename:  filename,
	}

	if err := fs.load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load snapshots: %w", err)
	}

	return fs, nil
}

func (fs *FileStore) Create(_ context.Context, s *Snapshot) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if s.ID == uuid.Nil {
		return fmt.Errorf("snapshot id is required")
	}
	if _, exists := fs.snapshots[s.ID]; exists {
		return fmt.Errorf("snapshot %s already exists", s.ID)
	}

	fs.snapshots[s.ID] = s.clone()
	if err := fs.save(); err != nil {
		delete(fs.snapshots, s.ID)
		return err
	}
	return nil
}

func (fs *FileStore) Get(_ context.Context, id uuid.UUID) (*Snapshot, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	s, exists := fs.snapshots[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.clone(), nil
}

func (fs *FileStore) UpdateResolved(_ context.Context, id uuid.UUID, p *models.ResolvedProduct) (*Snapshot, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	current, exists := fs.snapshots[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	next := current.clone()
	if err := next.apply(p, time.Now().UTC()); err != nil {
		return nil, err
	}

	fs.snapshots[id] = next
	if err := fs.save(); err != nil {
		fs.snapshots[id] = current
		return nil, err
	}
	return next.clone(), nil
}

// Stats counts snapshots per status.
func (fs *FileStore) Stats() map[string]int {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	stats := make(map[string]int)
	for _, s := range fs.snapshots {
		stats[s.Status]++
	}
	stats["total"] = len(fs.snapshots)
	return stats
}

func (fs *FileStore) save() error {
	data, err := json.MarshalIndent(fs.snapshots, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshots: %w", err)
	}

	tmpFile := fs.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshots: %w", err)
	}

	if err := os.Rename(tmpFile, fs.filename); err != nil {
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}
	return nil
}

func (fs *FileStore) load() error {
	data, err := os.ReadFile(fs.filename)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &fs.snapshots)
}
