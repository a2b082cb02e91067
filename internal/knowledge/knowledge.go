// Package knowledge maintains the knowledge-base index: per-user
// knowledge bases and the course records acquired into them. The union
// of file ids across all course records is the reachable set the
// reclaimer marks against.
package knowledge

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/tutorlink/backend/internal/models"
)

var (
	// ErrNotFound is returned when a knowledge base or course record
	// does not exist.
	ErrNotFound = errors.New("knowledge base not found")

	// ErrCourseNotFound is returned when a course record does not exist.
	ErrCourseNotFound = errors.New("course record not found")
)

// Index is the persistence surface for knowledge bases and the course
// records attached to them.
type Index interface {
	// CreateKnowledgeBase inserts a new knowledge base.
	CreateKnowledgeBase(ctx context.Context, kb *models.KnowledgeBase) error

	// Get returns a knowledge base by id, or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*models.KnowledgeBase, error)

	// ListByUser returns a user's knowledge bases, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.KnowledgeBase, error)

	// Update persists name and description changes.
	Update(ctx context.Context, kb *models.KnowledgeBase) error

	// Delete removes a knowledge base and its course records.
	// File entries referenced by the removed records become orphans
	// and are left for the reclaimer.
	Delete(ctx context.Context, id uuid.UUID) error

	// AddCourse appends a course record to a knowledge base.
	AddCourse(ctx context.Context, course *models.CourseRecord) error

	// GetCourse returns a course record by id, or ErrCourseNotFound.
	GetCourse(ctx context.Context, id uuid.UUID) (*models.CourseRecord, error)

	// ListCourses returns the course records of one knowledge base,
	// newest first.
	ListCourses(ctx context.Context, knowledgeBaseID uuid.UUID) ([]models.CourseRecord, error)

	// DeleteCourse removes a single course record.
	DeleteCourse(ctx context.Context, id uuid.UUID) error

	// ReachableFileIDs returns the union of file ids referenced by any
	// course record across all knowledge bases.
	ReachableFileIDs(ctx context.Context) (map[string]struct{}, error)
}
