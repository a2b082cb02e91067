package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apierrors "github.com/tutorlink/backend/internal/errors"
	"github.com/tutorlink/backend/internal/registry"
	"github.com/tutorlink/backend/internal/upload"
)

func respondFileError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		respondError(c, apierrors.ErrFileNotFoundError)
	case errors.Is(err, registry.ErrDuplicateID):
		respondError(c, apierrors.ErrDuplicateFileIDError)
	case errors.Is(err, registry.ErrInvalidStatusTransition):
		respondError(c, apierrors.ErrInvalidStatusTransitionError)
	case errors.Is(err, upload.ErrFileTooLarge):
		respondError(c, apierrors.ErrFileTooLargeError)
	case errors.Is(err, upload.ErrQuotaExceeded):
		respondError(c, apierrors.ErrStorageQuotaExceedError)
	default:
		respondError(c, apierrors.ErrInternalServerError)
	}
}

// handleUploadFile accepts a multipart upload under the "file" field.
func (s *APIServer) handleUploadFile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		respondError(c, apierrors.NewValidationError("missing file field"))
		return
	}
	if header.Size > s.config.Upload.MaxFileSize {
		respondError(c, apierrors.ErrFileTooLargeError)
		return
	}

	f, err := header.Open()
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	defer f.Close()

	file, err := s.uploads.Store(c.Request.Context(), userID.String(),
		header.Filename, header.Header.Get("Content-Type"), header.Size, f)
	if err != nil {
		respondFileError(c, err)
		return
	}
	c.JSON(http.StatusCreated, file)
}

func (s *APIServer) handleListFiles(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	files, err := s.uploads.List(c.Request.Context(), userID.String())
	if err != nil {
		respondFileError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

func (s *APIServer) handleGetFile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	file, err := s.uploads.Get(c.Request.Context(), userID.String(), c.Param("id"))
	if err != nil {
		respondFileError(c, err)
		return
	}
	c.JSON(http.StatusOK, file)
}

func (s *APIServer) handleDeleteFile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := s.uploads.Delete(c.Request.Context(), userID.String(), c.Param("id")); err != nil {
		respondFileError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "File deleted"})
}
