package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tutorlink/backend/internal/models"
)

// PostgresStore is the production registry store backed by pgx.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a registry store on the given pool
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const fileColumns = "id, filename, original_filename, file_size, content_type, category, status, file_path, file_hash, user_id, error_message, created_at, processed_at"

func scanFile(row pgx.Row) (*models.UploadedFile, error) {
	var f models.UploadedFile
	err := row.Scan(
		&f.ID, &f.Filename, &f.OriginalFilename, &f.FileSize, &f.ContentType,
		&f.Category, &f.Status, &f.FilePath, &f.FileHash, &f.UserID,
		&f.ErrorMessage, &f.CreatedAt, &f.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Register adds a new entry, rejecting duplicate ids.
func (s *PostgresStore) Register(ctx context.Context, file *models.UploadedFile) error {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO uploaded_files (id, filename, original_filename, file_size, content_type, category, status, file_path, file_hash, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`, file.ID, file.Filename, file.OriginalFilename, file.FileSize, file.ContentType,
		file.Category, file.Status, file.FilePath, file.FileHash, file.UserID, file.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to register file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateID
	}
	return nil
}

// Get returns the entry for id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*models.UploadedFile, error) {
	f, err := scanFile(s.db.QueryRow(ctx, `SELECT `+fileColumns+` FROM uploaded_files WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

// UpdateStatus moves an entry forward, validating the transition under
// a row lock so concurrent updates cannot interleave.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status models.FileStatus, errorMessage *string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var current models.FileStatus
	err = tx.QueryRow(ctx, `SELECT status FROM uploaded_files WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read file status: %w", err)
	}

	if !ValidStatusTransition(current, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, current, status)
	}

	var processedAt *time.Time
	if status == models.FileStatusCompleted || status == models.FileStatusError {
		now := time.Now()
		processedAt = &now
	}

	_, err = tx.Exec(ctx, `
		UPDATE uploaded_files
		SET status = $2, error_message = $3, processed_at = COALESCE($4, processed_at)
		WHERE id = $1
	`, id, status, errorMessage, processedAt)
	if err != nil {
		return fmt.Errorf("failed to update file status: %w", err)
	}

	return tx.Commit(ctx)
}

// Delete removes an entry.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM uploaded_files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all entries ordered by creation time.
func (s *PostgresStore) List(ctx context.Context) ([]models.UploadedFile, error) {
	return s.list(ctx, `SELECT `+fileColumns+` FROM uploaded_files ORDER BY created_at`)
}

// ListByUser returns one user's entries ordered by creation time.
func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]models.UploadedFile, error) {
	return s.list(ctx, `SELECT `+fileColumns+` FROM uploaded_files WHERE user_id = $1 ORDER BY created_at`, userID)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]models.UploadedFile, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var files []models.UploadedFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, *f)
	}
	return files, rows.Err()
}

// TotalSizeByUser returns the total registered bytes for a user.
func (s *PostgresStore) TotalSizeByUser(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(file_size), 0) FROM uploaded_files
		WHERE user_id = $1 AND status != $2
	`, userID, models.FileStatusError).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum file sizes: %w", err)
	}
	return total, nil
}
