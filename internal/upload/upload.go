// Package upload stores user files under the upload root and tracks
// them in the file registry.
package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tutorlink/backend/internal/config"
	"github.com/tutorlink/backend/internal/logging"
	"github.com/tutorlink/backend/internal/models"
	"github.com/tutorlink/backend/internal/monitoring"
	"github.com/tutorlink/backend/internal/registry"
)

var (
	// ErrFileTooLarge is returned when a single file exceeds the
	// per-file limit.
	ErrFileTooLarge = errors.New("file exceeds maximum size")

	// ErrQuotaExceeded is returned when the upload would push the
	// user's total stored bytes past their quota.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// Service stores and removes uploaded files. Files land under
// <dir>/<category>/ with a timestamped name; the original filename is
// only kept as registry metadata.
type Service struct {
	log      zerolog.Logger
	registry registry.Store
	config   *config.UploadConfig
}

// NewService wires a Service.
func NewService(reg registry.Store, cfg *config.UploadConfig) *Service {
	return &Service{
		log:      logging.NewLogger("upload"),
		registry: reg,
		config:   cfg,
	}
}

// Store validates limits, writes the file, and registers it. The
// registry entry moves pending -> uploading -> completed; a failed
// write leaves it in error with the reason recorded.
func (s *Service) Store(ctx context.Context, userID, originalName, contentType string, size int64, r io.Reader) (*models.UploadedFile, error) {
	if size > s.config.MaxFileSize {
		return nil, ErrFileTooLarge
	}
	used, err := s.registry.TotalSizeByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check storage quota: %w", err)
	}
	if used+size > s.config.MaxTotalSize {
		return nil, ErrQuotaExceeded
	}

	category := Categorize(contentType, originalName)
	id := uuid.New().String()
	filename := fmt.Sprintf("%s_%s%s",
		time.Now().Format("20060102_150405"), id[:8],
		strings.ToLower(filepath.Ext(originalName)))
	dir := filepath.Join(s.config.Dir, string(category))
	path := filepath.Join(dir, filename)

	file := &models.UploadedFile{
		ID:               id,
		Filename:         filename,
		OriginalFilename: filepath.Base(originalName),
		FileSize:         size,
		ContentType:      contentType,
		Category:         category,
		Status:           models.FileStatusPending,
		FilePath:         path,
		UserID:           userID,
	}
	if err := s.registry.Register(ctx, file); err != nil {
		return nil, err
	}
	if err := s.registry.UpdateStatus(ctx, id, models.FileStatusUploading, nil); err != nil {
		return nil, err
	}

	hash, written, err := s.write(path, r)
	if err != nil {
		msg := err.Error()
		if serr := s.registry.UpdateStatus(ctx, id, models.FileStatusError, &msg); serr != nil {
			s.log.Error().Err(serr).Str("file_id", id).Msg("Failed to mark upload errored")
		}
		return nil, err
	}

	file.FileHash = hash
	file.FileSize = written
	file.Status = models.FileStatusCompleted
	if err := s.registry.UpdateStatus(ctx, id, models.FileStatusCompleted, nil); err != nil {
		return nil, err
	}

	monitoring.RecordFileUploaded(string(category), written)
	logging.LogUpload(id, userID, string(category), written, string(models.FileStatusCompleted))

	stored, err := s.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	stored.FileHash = hash
	return stored, nil
}

// write streams the upload to disk while hashing it.
func (s *Service) write(path string, r io.Reader) (string, int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create upload dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create upload file: %w", err)
	}
	defer f.Close()

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(f, hasher), r)
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("failed to write upload: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), written, nil
}

// Get returns one of the user's files.
func (s *Service) Get(ctx context.Context, userID, id string) (*models.UploadedFile, error) {
	file, err := s.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if file.UserID != userID {
		return nil, registry.ErrNotFound
	}
	return file, nil
}

// List returns the user's files.
func (s *Service) List(ctx context.Context, userID string) ([]models.UploadedFile, error) {
	return s.registry.ListByUser(ctx, userID)
}

// Delete removes the file from disk and then its registry entry. A
// missing backing file is not an error; the entry still goes.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	file, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := os.Remove(file.FilePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return s.registry.Delete(ctx, id)
}

// Categorize maps a content type (falling back to the file extension)
// to the storage category that doubles as the on-disk directory.
func Categorize(contentType, filename string) models.FileCategory {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return models.FileCategoryImage
	case strings.HasPrefix(contentType, "video/"):
		return models.FileCategoryVideo
	case strings.HasPrefix(contentType, "audio/"):
		return models.FileCategoryAudio
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".zip", ".tar", ".gz", ".rar", ".7z":
		return models.FileCategoryArchive
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return models.FileCategoryImage
	case ".mp4", ".webm", ".mov", ".mkv":
		return models.FileCategoryVideo
	case ".mp3", ".wav", ".ogg", ".m4a":
		return models.FileCategoryAudio
	default:
		return models.FileCategoryDocument
	}
}
