// Package registry is the authoritative record of stored artifacts.
// Every file on disk the system owns has exactly one registry entry;
// entries move through a forward-only status chain.
package registry

import (
	"context"
	"errors"

	"github.com/tutorlink/backend/internal/models"
)

// Registry errors
var (
	ErrNotFound                = errors.New("file not found in registry")
	ErrDuplicateID             = errors.New("file id already registered")
	ErrInvalidStatusTransition = errors.New("invalid file status transition")
)

// statusRank orders the normal processing chain. Error sits outside
// the chain: any non-error status may move to it, and nothing leaves it.
var statusRank = map[models.FileStatus]int{
	models.FileStatusPending:    0,
	models.FileStatusUploading:  1,
	models.FileStatusProcessing: 2,
	models.FileStatusCompleted:  3,
}

// ValidStatusTransition reports whether a file may move from one
// status to another. Statuses only move forward; regressions and
// repeats are rejected.
func ValidStatusTransition(from, to models.FileStatus) bool {
	if from == to {
		return false
	}
	if from == models.FileStatusError {
		return false
	}
	if to == models.FileStatusError {
		return true
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return fromRank < toRank
}

// Store persists registry entries.
type Store interface {
	// Register adds a new entry. Registering an existing id fails with
	// ErrDuplicateID and leaves the registry unchanged.
	Register(ctx context.Context, file *models.UploadedFile) error

	// Get returns the entry for id, or ErrNotFound.
	Get(ctx context.Context, id string) (*models.UploadedFile, error)

	// UpdateStatus moves an entry to a new status, enforcing
	// ValidStatusTransition. The entry is unchanged on rejection.
	UpdateStatus(ctx context.Context, id string, status models.FileStatus, errorMessage *string) error

	// Delete removes an entry, or ErrNotFound.
	Delete(ctx context.Context, id string) error

	// List returns a consistent snapshot of all entries.
	List(ctx context.Context) ([]models.UploadedFile, error)

	// ListByUser returns a snapshot of one user's entries.
	ListByUser(ctx context.Context, userID string) ([]models.UploadedFile, error)

	// TotalSizeByUser returns the total registered bytes for a user.
	TotalSizeByUser(ctx context.Context, userID string) (int64, error)
}
