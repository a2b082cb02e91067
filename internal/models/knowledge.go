package models

import (
	"time"

	"github.com/google/uuid"
)

// KnowledgeBase is a per-user collection of acquired course material.
type KnowledgeBase struct {
	ID          uuid.UUID `json:"id" db:"id"`
	UserID      uuid.UUID `json:"user_id" db:"user_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// CourseRecord is one acquired course inside a knowledge base. FileIDs
// reference the registry entries holding the course artifacts; the union
// of FileIDs across all courses is the reachable set for reclamation.
type CourseRecord struct {
	ID              uuid.UUID `json:"id" db:"id"`
	KnowledgeBaseID uuid.UUID `json:"knowledge_base_id" db:"knowledge_base_id"`
	Title           string    `json:"title" db:"title"`
	CourseURL       string    `json:"course_url" db:"course_url"`
	FileIDs         []string  `json:"file_ids" db:"file_ids"`
	SectionCount    int       `json:"section_count" db:"section_count"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}
