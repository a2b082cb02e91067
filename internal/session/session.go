// Package session implements the browser-session lifecycle for course
// acquisition: open a remote browser on a course URL, pause for manual
// login, extract the page into the knowledge base, and close.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is a session lifecycle state.
type Status string

const (
	StatusCreated       Status = "created"
	StatusNavigated     Status = "navigated"
	StatusAwaitingLogin Status = "awaiting_login"
	StatusAuthenticated Status = "authenticated"
	StatusScraping      Status = "scraping"
	StatusCompleted     Status = "completed"
	StatusError         Status = "error"
	StatusClosed        Status = "closed"
)

var (
	// ErrNotFound is returned when a session id is unknown.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidTransition is returned when an operation is not legal
	// in the session's current state. The state is left unchanged.
	ErrInvalidTransition = errors.New("invalid session state transition")
)

// transitions is the legal state machine. Close is handled separately:
// it is legal from every state and idempotent.
var transitions = map[Status][]Status{
	StatusCreated:       {StatusNavigated, StatusError},
	StatusNavigated:     {StatusAwaitingLogin, StatusError},
	StatusAwaitingLogin: {StatusAuthenticated, StatusError},
	StatusAuthenticated: {StatusScraping, StatusError},
	StatusScraping:      {StatusCompleted, StatusError},
	StatusCompleted:     {},
	StatusError:         {},
	StatusClosed:        {},
}

// CanTransition reports whether moving from one status to another is
// legal. Closing is always legal and not part of this table.
func CanTransition(from, to Status) bool {
	if to == StatusClosed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Record is the persisted session state. The live browser handle is
// held separately by the manager; a record alone is enough to resume a
// paused session after a restart.
type Record struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	KnowledgeBaseID uuid.UUID  `json:"knowledge_base_id"`
	CourseURL       string     `json:"course_url"`
	Status          Status     `json:"status"`
	PageTitle       string     `json:"page_title,omitempty"`
	LiveViewURL     string     `json:"live_view_url,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CourseID        *uuid.UUID `json:"course_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
