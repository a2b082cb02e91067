package server

import (
	"errors"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apierrors "github.com/tutorlink/backend/internal/errors"
	"github.com/tutorlink/backend/internal/knowledge"
	"github.com/tutorlink/backend/internal/models"
)

type knowledgeBaseRequest struct {
	Name        string `json:"name" binding:"required,max=200"`
	Description string `json:"description" binding:"max=2000"`
}

func respondKnowledgeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, knowledge.ErrNotFound):
		respondError(c, apierrors.ErrKnowledgeBaseNotFoundError)
	case errors.Is(err, knowledge.ErrCourseNotFound):
		respondError(c, apierrors.ErrCourseNotFoundError)
	default:
		respondError(c, apierrors.ErrInternalServerError)
	}
}

func idParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apierrors.NewValidationError("invalid id"))
		return uuid.Nil, false
	}
	return id, true
}

// ownedKnowledgeBase loads the knowledge base and enforces ownership.
func (s *APIServer) ownedKnowledgeBase(c *gin.Context, id, userID uuid.UUID) (*models.KnowledgeBase, bool) {
	kb, err := s.knowledge.Get(c.Request.Context(), id)
	if err != nil {
		respondKnowledgeError(c, err)
		return nil, false
	}
	if kb.UserID != userID {
		respondError(c, apierrors.ErrKnowledgeBaseNotFoundError)
		return nil, false
	}
	return kb, true
}

func (s *APIServer) handleCreateKnowledgeBase(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req knowledgeBaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	kb := &models.KnowledgeBase{
		ID:          uuid.New(),
		UserID:      userID,
		Name:        req.Name,
		Description: req.Description,
	}
	if err := s.knowledge.CreateKnowledgeBase(c.Request.Context(), kb); err != nil {
		respondKnowledgeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, kb)
}

func (s *APIServer) handleListKnowledgeBases(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	bases, err := s.knowledge.ListByUser(c.Request.Context(), userID)
	if err != nil {
		respondKnowledgeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"knowledge_bases": bases})
}

func (s *APIServer) handleGetKnowledgeBase(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	kb, ok := s.ownedKnowledgeBase(c, id, userID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, kb)
}

func (s *APIServer) handleUpdateKnowledgeBase(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req knowledgeBaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	kb, ok := s.ownedKnowledgeBase(c, id, userID)
	if !ok {
		return
	}
	kb.Name = req.Name
	kb.Description = req.Description
	if err := s.knowledge.Update(c.Request.Context(), kb); err != nil {
		respondKnowledgeError(c, err)
		return
	}
	c.JSON(http.StatusOK, kb)
}

// handleDeleteKnowledgeBase deletes the base and its course records.
// Files the records referenced become orphans for the reclaimer.
func (s *APIServer) handleDeleteKnowledgeBase(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	if _, ok := s.ownedKnowledgeBase(c, id, userID); !ok {
		return
	}
	if err := s.knowledge.Delete(c.Request.Context(), id); err != nil {
		respondKnowledgeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Knowledge base deleted"})
}

func (s *APIServer) handleListCourses(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	if _, ok := s.ownedKnowledgeBase(c, id, userID); !ok {
		return
	}
	courses, err := s.knowledge.ListCourses(c.Request.Context(), id)
	if err != nil {
		respondKnowledgeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": courses})
}

// handleListUserCourses returns all of the caller's course records
// across their knowledge bases, newest first.
func (s *APIServer) handleListUserCourses(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	bases, err := s.knowledge.ListByUser(c.Request.Context(), userID)
	if err != nil {
		respondKnowledgeError(c, err)
		return
	}

	all := []models.CourseRecord{}
	for _, kb := range bases {
		courses, err := s.knowledge.ListCourses(c.Request.Context(), kb.ID)
		if err != nil {
			respondKnowledgeError(c, err)
			return
		}
		all = append(all, courses...)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	c.JSON(http.StatusOK, gin.H{"courses": all})
}

func (s *APIServer) handleGetCourse(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	course, err := s.knowledge.GetCourse(c.Request.Context(), id)
	if err != nil {
		respondKnowledgeError(c, err)
		return
	}
	if _, ok := s.ownedKnowledgeBase(c, course.KnowledgeBaseID, userID); !ok {
		return
	}
	c.JSON(http.StatusOK, course)
}

func (s *APIServer) handleDeleteCourse(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	course, err := s.knowledge.GetCourse(c.Request.Context(), id)
	if err != nil {
		respondKnowledgeError(c, err)
		return
	}
	if _, ok := s.ownedKnowledgeBase(c, course.KnowledgeBaseID, userID); !ok {
		return
	}
	if err := s.knowledge.DeleteCourse(c.Request.Context(), id); err != nil {
		respondKnowledgeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Course deleted"})
}
