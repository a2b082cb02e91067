package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tutorlink/backend/internal/models"
)

// MemoryStore is an in-process registry store. It backs tests and
// single-node deployments without a database.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string]models.UploadedFile
}

// NewMemoryStore creates an empty in-memory registry store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files: make(map[string]models.UploadedFile),
	}
}

// Register adds a new entry, rejecting duplicate ids.
func (s *MemoryStore) Register(_ context.Context, file *models.UploadedFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.files[file.ID]; exists {
		return ErrDuplicateID
	}
	s.files[file.ID] = *file
	return nil
}

// Get returns the entry for id.
func (s *MemoryStore) Get(_ context.Context, id string) (*models.UploadedFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, exists := s.files[id]
	if !exists {
		return nil, ErrNotFound
	}
	return &f, nil
}

// UpdateStatus moves an entry forward, enforcing the transition rules.
func (s *MemoryStore) UpdateStatus(_ context.Context, id string, status models.FileStatus, errorMessage *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, exists := s.files[id]
	if !exists {
		return ErrNotFound
	}

	if !ValidStatusTransition(f.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, f.Status, status)
	}

	f.Status = status
	f.ErrorMessage = errorMessage
	if status == models.FileStatusCompleted || status == models.FileStatusError {
		now := time.Now()
		f.ProcessedAt = &now
	}
	s.files[id] = f
	return nil
}

// Delete removes an entry.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.files[id]; !exists {
		return ErrNotFound
	}
	delete(s.files, id)
	return nil
}

// List returns a consistent snapshot of all entries.
func (s *MemoryStore) List(_ context.Context) ([]models.UploadedFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	files := make([]models.UploadedFile, 0, len(s.files))
	for _, f := range s.files {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].CreatedAt.Equal(files[j].CreatedAt) {
			return files[i].ID < files[j].ID
		}
		return files[i].CreatedAt.Before(files[j].CreatedAt)
	})
	return files, nil
}

// ListByUser returns a snapshot of one user's entries.
func (s *MemoryStore) ListByUser(ctx context.Context, userID string) ([]models.UploadedFile, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	files := make([]models.UploadedFile, 0)
	for _, f := range all {
		if f.UserID == userID {
			files = append(files, f)
		}
	}
	return files, nil
}

// TotalSizeByUser returns the total registered bytes for a user.
func (s *MemoryStore) TotalSizeByUser(_ context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, f := range s.files {
		if f.UserID == userID && f.Status != models.FileStatusError {
			total += f.FileSize
		}
	}
	return total, nil
}
