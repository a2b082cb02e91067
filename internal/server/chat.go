package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apierrors "github.com/tutorlink/backend/internal/errors"
	"github.com/tutorlink/backend/internal/llm"
	"github.com/tutorlink/backend/internal/models"
)

type chatRequest struct {
	KnowledgeBaseID string `json:"kb_id,omitempty"`
	CourseID        string `json:"course_id,omitempty"`
	Message         string `json:"message" binding:"required,max=4000"`
}

// groundingLimit caps the total grounding text sent to the model when
// a whole knowledge base is referenced.
const groundingLimit = 24000

// handleChat answers a question, grounded in extracted course content
// when a course or knowledge-base id is given.
func (s *APIServer) handleChat(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	var courseContext string
	switch {
	case req.CourseID != "":
		courseID, err := uuid.Parse(req.CourseID)
		if err != nil {
			respondError(c, apierrors.NewValidationError("invalid course id"))
			return
		}
		course, err := s.knowledge.GetCourse(c.Request.Context(), courseID)
		if err != nil {
			respondKnowledgeError(c, err)
			return
		}
		if _, ok := s.ownedKnowledgeBase(c, course.KnowledgeBaseID, userID); !ok {
			return
		}
		courseContext = s.courseContext(c, course, userID)
	case req.KnowledgeBaseID != "":
		kbID, err := uuid.Parse(req.KnowledgeBaseID)
		if err != nil {
			respondError(c, apierrors.NewValidationError("invalid knowledge base id"))
			return
		}
		if _, ok := s.ownedKnowledgeBase(c, kbID, userID); !ok {
			return
		}
		courses, err := s.knowledge.ListCourses(c.Request.Context(), kbID)
		if err != nil {
			respondKnowledgeError(c, err)
			return
		}
		var parts []string
		total := 0
		for i := range courses {
			part := s.courseContext(c, &courses[i], userID)
			if total+len(part) > groundingLimit {
				break
			}
			parts = append(parts, part)
			total += len(part)
		}
		courseContext = strings.Join(parts, "\n\n---\n\n")
	}

	reply, err := s.llm.Respond(c.Request.Context(), courseContext, req.Message)
	if err != nil {
		if errors.Is(err, llm.ErrUnavailable) {
			respondError(c, apierrors.ErrModelUnavailableError)
			return
		}
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

// courseContext loads the course's extracted-content artifact and
// renders it as grounding text. Missing or unreadable artifacts
// degrade to title-only context rather than failing the chat.
func (s *APIServer) courseContext(c *gin.Context, course *models.CourseRecord, userID uuid.UUID) string {
	fallback := "Course: " + course.Title + " (" + course.CourseURL + ")"

	for _, fileID := range course.FileIDs {
		file, err := s.uploads.Get(c.Request.Context(), userID.String(), fileID)
		if err != nil || file.ContentType != "application/json" {
			continue
		}
		data, err := os.ReadFile(file.FilePath)
		if err != nil {
			continue
		}
		var content models.ExtractedContent
		if err := json.Unmarshal(data, &content); err != nil {
			continue
		}

		var b strings.Builder
		b.WriteString("Course: " + content.Title + " (" + content.URL + ")\n")
		for _, section := range content.Sections {
			b.WriteString("- " + section.Title + "\n")
		}
		b.WriteString("\n" + content.RawText)
		return b.String()
	}
	return fallback
}
