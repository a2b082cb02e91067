package knowledge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tutorlink/backend/internal/models"
)

// PostgresIndex is the pgx-backed Index implementation.
type PostgresIndex struct {
	db *pgxpool.Pool
}

// NewPostgresIndex creates a PostgresIndex on the given pool.
func NewPostgresIndex(db *pgxpool.Pool) *PostgresIndex {
	return &PostgresIndex{db: db}
}

const kbColumns = "id, user_id, name, description, created_at, updated_at"

const courseColumns = "id, knowledge_base_id, title, course_url, file_ids, section_count, created_at"

func scanKnowledgeBase(row pgx.Row) (*models.KnowledgeBase, error) {
	var kb models.KnowledgeBase
	err := row.Scan(&kb.ID, &kb.UserID, &kb.Name, &kb.Description, &kb.CreatedAt, &kb.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &kb, nil
}

func scanCourse(row pgx.Row) (*models.CourseRecord, error) {
	var c models.CourseRecord
	err := row.Scan(&c.ID, &c.KnowledgeBaseID, &c.Title, &c.CourseURL, &c.FileIDs, &c.SectionCount, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if c.FileIDs == nil {
		c.FileIDs = []string{}
	}
	return &c, nil
}

func (s *PostgresIndex) CreateKnowledgeBase(ctx context.Context, kb *models.KnowledgeBase) error {
	now := time.Now()
	kb.CreatedAt = now
	kb.UpdatedAt = now

	_, err := s.db.Exec(ctx, `
		INSERT INTO knowledge_bases (id, user_id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, kb.ID, kb.UserID, kb.Name, kb.Description, kb.CreatedAt, kb.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create knowledge base: %w", err)
	}
	return nil
}

func (s *PostgresIndex) Get(ctx context.Context, id uuid.UUID) (*models.KnowledgeBase, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+kbColumns+" FROM knowledge_bases WHERE id = $1", id)

	kb, err := scanKnowledgeBase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get knowledge base: %w", err)
	}
	return kb, nil
}

func (s *PostgresIndex) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.KnowledgeBase, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+kbColumns+" FROM knowledge_bases WHERE user_id = $1 ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge bases: %w", err)
	}
	defer rows.Close()

	var bases []models.KnowledgeBase
	for rows.Next() {
		kb, err := scanKnowledgeBase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan knowledge base: %w", err)
		}
		bases = append(bases, *kb)
	}
	return bases, rows.Err()
}

func (s *PostgresIndex) Update(ctx context.Context, kb *models.KnowledgeBase) error {
	kb.UpdatedAt = time.Now()

	tag, err := s.db.Exec(ctx, `
		UPDATE knowledge_bases SET name = $2, description = $3, updated_at = $4
		WHERE id = $1
	`, kb.ID, kb.Name, kb.Description, kb.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update knowledge base: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresIndex) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		"DELETE FROM course_records WHERE knowledge_base_id = $1", id); err != nil {
		return fmt.Errorf("failed to delete course records: %w", err)
	}

	tag, err := tx.Exec(ctx, "DELETE FROM knowledge_bases WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete knowledge base: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return tx.Commit(ctx)
}

func (s *PostgresIndex) AddCourse(ctx context.Context, course *models.CourseRecord) error {
	course.CreatedAt = time.Now()

	_, err := s.db.Exec(ctx, `
		INSERT INTO course_records (id, knowledge_base_id, title, course_url, file_ids, section_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, course.ID, course.KnowledgeBaseID, course.Title, course.CourseURL,
		course.FileIDs, course.SectionCount, course.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add course record: %w", err)
	}
	return nil
}

func (s *PostgresIndex) GetCourse(ctx context.Context, id uuid.UUID) (*models.CourseRecord, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+courseColumns+" FROM course_records WHERE id = $1", id)

	course, err := scanCourse(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to get course record: %w", err)
	}
	return course, nil
}

func (s *PostgresIndex) ListCourses(ctx context.Context, knowledgeBaseID uuid.UUID) ([]models.CourseRecord, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+courseColumns+" FROM course_records WHERE knowledge_base_id = $1 ORDER BY created_at DESC",
		knowledgeBaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list course records: %w", err)
	}
	defer rows.Close()

	var courses []models.CourseRecord
	for rows.Next() {
		course, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan course record: %w", err)
		}
		courses = append(courses, *course)
	}
	return courses, rows.Err()
}

func (s *PostgresIndex) DeleteCourse(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM course_records WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete course record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCourseNotFound
	}
	return nil
}

func (s *PostgresIndex) ReachableFileIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.Query(ctx,
		"SELECT DISTINCT unnest(file_ids) FROM course_records")
	if err != nil {
		return nil, fmt.Errorf("failed to collect reachable file ids: %w", err)
	}
	defer rows.Close()

	reachable := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan file id: %w", err)
		}
		reachable[id] = struct{}{}
	}
	return reachable, rows.Err()
}
