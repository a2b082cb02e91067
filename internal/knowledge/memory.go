package knowledge

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tutorlink/backend/internal/models"
)

// MemoryIndex is an in-memory Index used by tests and the reclaimer
// tests. Same semantics as PostgresIndex, value-copy on every boundary.
type MemoryIndex struct {
	mu      sync.RWMutex
	bases   map[uuid.UUID]models.KnowledgeBase
	courses map[uuid.UUID]models.CourseRecord
}

// NewMemoryIndex creates an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		bases:   make(map[uuid.UUID]models.KnowledgeBase),
		courses: make(map[uuid.UUID]models.CourseRecord),
	}
}

func (s *MemoryIndex) CreateKnowledgeBase(_ context.Context, kb *models.KnowledgeBase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	kb.CreatedAt = now
	kb.UpdatedAt = now
	s.bases[kb.ID] = *kb
	return nil
}

func (s *MemoryIndex) Get(_ context.Context, id uuid.UUID) (*models.KnowledgeBase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kb, ok := s.bases[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &kb, nil
}

func (s *MemoryIndex) ListByUser(_ context.Context, userID uuid.UUID) ([]models.KnowledgeBase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bases []models.KnowledgeBase
	for _, kb := range s.bases {
		if kb.UserID == userID {
			bases = append(bases, kb)
		}
	}
	sort.Slice(bases, func(i, j int) bool {
		return bases[i].CreatedAt.After(bases[j].CreatedAt)
	})
	return bases, nil
}

func (s *MemoryIndex) Update(_ context.Context, kb *models.KnowledgeBase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bases[kb.ID]; !ok {
		return ErrNotFound
	}
	kb.UpdatedAt = time.Now()
	s.bases[kb.ID] = *kb
	return nil
}

func (s *MemoryIndex) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bases[id]; !ok {
		return ErrNotFound
	}
	delete(s.bases, id)
	for courseID, course := range s.courses {
		if course.KnowledgeBaseID == id {
			delete(s.courses, courseID)
		}
	}
	return nil
}

func (s *MemoryIndex) AddCourse(_ context.Context, course *models.CourseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Postgres enforces this with the knowledge_bases FK
	if _, ok := s.bases[course.KnowledgeBaseID]; !ok {
		return ErrNotFound
	}
	course.CreatedAt = time.Now()
	stored := *course
	stored.FileIDs = append([]string(nil), course.FileIDs...)
	s.courses[course.ID] = stored
	return nil
}

func (s *MemoryIndex) GetCourse(_ context.Context, id uuid.UUID) (*models.CourseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	course, ok := s.courses[id]
	if !ok {
		return nil, ErrCourseNotFound
	}
	out := course
	out.FileIDs = append([]string(nil), course.FileIDs...)
	return &out, nil
}

func (s *MemoryIndex) ListCourses(_ context.Context, knowledgeBaseID uuid.UUID) ([]models.CourseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var courses []models.CourseRecord
	for _, course := range s.courses {
		if course.KnowledgeBaseID == knowledgeBaseID {
			out := course
			out.FileIDs = append([]string(nil), course.FileIDs...)
			courses = append(courses, out)
		}
	}
	sort.Slice(courses, func(i, j int) bool {
		return courses[i].CreatedAt.After(courses[j].CreatedAt)
	})
	return courses, nil
}

func (s *MemoryIndex) DeleteCourse(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.courses[id]; !ok {
		return ErrCourseNotFound
	}
	delete(s.courses, id)
	return nil
}

func (s *MemoryIndex) ReachableFileIDs(_ context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reachable := make(map[string]struct{})
	for _, course := range s.courses {
		for _, id := range course.FileIDs {
			reachable[id] = struct{}{}
		}
	}
	return reachable, nil
}
