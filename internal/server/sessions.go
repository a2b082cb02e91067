package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tutorlink/backend/internal/browser"
	apierrors "github.com/tutorlink/backend/internal/errors"
	"github.com/tutorlink/backend/internal/extractor"
	"github.com/tutorlink/backend/internal/knowledge"
	"github.com/tutorlink/backend/internal/middleware"
	"github.com/tutorlink/backend/internal/session"
)

type openSessionRequest struct {
	KnowledgeBaseID string `json:"knowledge_base_id" binding:"required,uuid"`
	CourseURL       string `json:"course_url" binding:"required,url"`
}

// currentUserID pulls the authenticated user id set by JWTAuth.
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	raw := middleware.GetUserIDFromContext(c)
	id, err := uuid.Parse(raw)
	if err != nil {
		respondError(c, apierrors.ErrInvalidCredentialsError)
		return uuid.Nil, false
	}
	return id, true
}

func sessionIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apierrors.NewValidationError("invalid session id"))
		return uuid.Nil, false
	}
	return id, true
}

// respondSessionError maps service errors onto the API error taxonomy.
func respondSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		respondError(c, apierrors.ErrSessionNotFoundError)
	case errors.Is(err, session.ErrInvalidTransition):
		respondError(c, apierrors.NewInvalidTransitionError(err.Error()))
	case errors.Is(err, knowledge.ErrNotFound):
		respondError(c, apierrors.ErrKnowledgeBaseNotFoundError)
	case errors.Is(err, browser.ErrNavigation):
		respondError(c, apierrors.ErrNavigationFailedError)
	case errors.Is(err, browser.ErrUnavailable):
		respondError(c, apierrors.ErrBrowserUnavailableError)
	case errors.Is(err, extractor.ErrExtraction):
		respondError(c, apierrors.ErrExtractionFailedError)
	default:
		respondError(c, apierrors.ErrInternalServerError)
	}
}

// handleOpenSession opens a browser on the course URL and parks the
// session awaiting the user's login through the live view.
func (s *APIServer) handleOpenSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req openSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}
	kbID, err := uuid.Parse(req.KnowledgeBaseID)
	if err != nil {
		respondError(c, apierrors.NewValidationError("invalid knowledge base id"))
		return
	}

	record, err := s.sessions.Open(c.Request.Context(), userID, kbID, req.CourseURL)
	if err != nil {
		respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (s *APIServer) handleListSessions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	records, err := s.sessions.ListByUser(c.Request.Context(), userID)
	if err != nil {
		respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": records})
}

func (s *APIServer) handleSessionStatus(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}

	record, err := s.sessions.Status(c.Request.Context(), id, userID)
	if err != nil {
		respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// handleContinueSession acknowledges the user's login and immediately
// drives the session through extraction. Login confirmation means the
// page is ready; making the caller issue a second request to scrape it
// would only leave the browser idling. On extraction failure the
// errored record is returned so the caller sees what went wrong.
func (s *APIServer) handleContinueSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}

	record, err := s.sessions.Continue(c.Request.Context(), id, userID)
	if err != nil {
		respondSessionError(c, err)
		return
	}

	record, err = s.sessions.Extract(c.Request.Context(), id, userID)
	if err != nil {
		if errored, gerr := s.sessions.Status(c.Request.Context(), id, userID); gerr == nil {
			c.JSON(http.StatusOK, errored)
			return
		}
		respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *APIServer) handleExtractSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}

	record, err := s.sessions.Extract(c.Request.Context(), id, userID)
	if err != nil {
		respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *APIServer) handleCloseSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}

	if err := s.sessions.Close(c.Request.Context(), id, userID); err != nil {
		respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session closed"})
}
