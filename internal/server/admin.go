package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apierrors "github.com/tutorlink/backend/internal/errors"
)

type reclaimRequest struct {
	// Execute opts into deletion; the default is a dry run that only
	// reports candidates.
	Execute bool `json:"execute"`
}

// handleReclaim runs one mark-and-sweep pass over upload storage.
func (s *APIServer) handleReclaim(c *gin.Context) {
	var req reclaimRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apierrors.NewValidationError(err.Error()))
			return
		}
	}

	report, err := s.reclaimer.Run(c.Request.Context(), req.Execute)
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	c.JSON(http.StatusOK, report)
}
