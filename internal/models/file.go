package models

import (
	"time"
)

// FileCategory groups uploaded files by broad content type.
// Categories double as directory names under the upload root.
type FileCategory string

const (
	FileCategoryDocument FileCategory = "document"
	FileCategoryImage    FileCategory = "image"
	FileCategoryVideo    FileCategory = "video"
	FileCategoryAudio    FileCategory = "audio"
	FileCategoryArchive  FileCategory = "archive"
)

// FileStatus represents the processing state of a registered file.
// Statuses only move forward; any status may move to error.
type FileStatus string

const (
	FileStatusPending    FileStatus = "pending"
	FileStatusUploading  FileStatus = "uploading"
	FileStatusProcessing FileStatus = "processing"
	FileStatusCompleted  FileStatus = "completed"
	FileStatusError      FileStatus = "error"
)

// UploadedFile is a file registry entry. The registry is the
// authoritative record of every artifact the system stores on disk,
// whether uploaded by a user or produced by course extraction.
type UploadedFile struct {
	ID               string       `json:"id" db:"id"`
	Filename         string       `json:"filename" db:"filename"`
	OriginalFilename string       `json:"original_filename" db:"original_filename"`
	FileSize         int64        `json:"file_size" db:"file_size"`
	ContentType      string       `json:"content_type" db:"content_type"`
	Category         FileCategory `json:"category" db:"category"`
	Status           FileStatus   `json:"status" db:"status"`
	FilePath         string       `json:"file_path" db:"file_path"`
	FileHash         string       `json:"file_hash,omitempty" db:"file_hash"`
	UserID           string       `json:"user_id" db:"user_id"`
	ErrorMessage     *string      `json:"error_message,omitempty" db:"error_message"`
	CreatedAt        time.Time    `json:"created_at" db:"created_at"`
	ProcessedAt      *time.Time   `json:"processed_at,omitempty" db:"processed_at"`
}
