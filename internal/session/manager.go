package session

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/tutorlink/backend/internal/browser"
	"github.com/tutorlink/backend/internal/extractor"
	"github.com/tutorlink/backend/internal/knowledge"
	"github.com/tutorlink/backend/internal/logging"
	"github.com/tutorlink/backend/internal/models"
	"github.com/tutorlink/backend/internal/monitoring"
	"github.com/tutorlink/backend/internal/registry"
)

// Manager drives sessions through their lifecycle. Persisted state
// lives in the Store; live browser handles live only in this process,
// keyed by session id. A session whose handle is gone (restart,
// provider timeout) can still be read and closed, but not extracted.
type Manager struct {
	log       zerolog.Logger
	store     Store
	provider  browser.Provider
	extractor *extractor.Extractor
	registry  registry.Store
	knowledge knowledge.Index
	uploadDir string

	// Handles have no in-process expiry: idle cleanup is the
	// provider's job, and an evicted handle here would leak the
	// provider-side browser.
	handles *gocache.Cache
	locks   sync.Map
}

// NewManager wires a Manager.
func NewManager(store Store, provider browser.Provider, ex *extractor.Extractor, reg registry.Store, idx knowledge.Index, uploadDir string) *Manager {
	return &Manager{
		log:       logging.NewLogger("session"),
		store:     store,
		provider:  provider,
		extractor: ex,
		registry:  reg,
		knowledge: idx,
		uploadDir: uploadDir,
		handles:   gocache.New(gocache.NoExpiration, 0),
	}
}

func (m *Manager) lock(id uuid.UUID) *sync.Mutex {
	mu, _ := m.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Open creates a session, opens a browser at the provider, navigates to
// the course URL, and parks the session in awaiting_login for the user
// to complete any login through the live view.
func (m *Manager) Open(ctx context.Context, userID, knowledgeBaseID uuid.UUID, courseURL string) (*Record, error) {
	kb, err := m.knowledge.Get(ctx, knowledgeBaseID)
	if err != nil {
		return nil, err
	}
	if kb.UserID != userID {
		return nil, knowledge.ErrNotFound
	}

	record := &Record{
		ID:              uuid.New(),
		UserID:          userID,
		KnowledgeBaseID: knowledgeBaseID,
		CourseURL:       courseURL,
		Status:          StatusCreated,
		CreatedAt:       time.Now(),
	}
	if err := m.store.Save(ctx, record); err != nil {
		return nil, err
	}
	monitoring.RecordSessionOpened()
	logging.LogSessionEvent(record.ID.String(), userID.String(), string(record.Status), "open")

	handle, err := m.provider.Open(ctx)
	if err != nil {
		m.fail(ctx, record, fmt.Sprintf("failed to open browser: %v", err))
		return nil, err
	}
	m.handles.Set(record.ID.String(), handle, gocache.NoExpiration)
	record.LiveViewURL = handle.LiveViewURL()

	if err := handle.Navigate(ctx, courseURL); err != nil {
		m.fail(ctx, record, fmt.Sprintf("failed to navigate to %s: %v", courseURL, err))
		m.closeHandle(ctx, record.ID)
		return nil, err
	}
	if err := m.transition(ctx, record, StatusNavigated); err != nil {
		return nil, err
	}

	if title, err := handle.Title(ctx); err == nil {
		record.PageTitle = title
	}

	if err := m.transition(ctx, record, StatusAwaitingLogin); err != nil {
		return nil, err
	}
	return record, nil
}

// Continue acknowledges that the user finished logging in through the
// live view. Only legal from awaiting_login.
func (m *Manager) Continue(ctx context.Context, id, userID uuid.UUID) (*Record, error) {
	mu := m.lock(id)
	mu.Lock()
	defer mu.Unlock()

	record, err := m.get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if record.Status != StatusAwaitingLogin {
		return nil, ErrInvalidTransition
	}
	if err := m.transition(ctx, record, StatusAuthenticated); err != nil {
		return nil, err
	}
	logging.LogSessionEvent(id.String(), userID.String(), string(record.Status), "continue")
	return record, nil
}

// Extract pulls the course page content, persists it as registered
// artifacts under the upload root, and appends a course record to the
// session's knowledge base. Only legal from authenticated. On failure
// the session moves to error and nothing is added to the index.
func (m *Manager) Extract(ctx context.Context, id, userID uuid.UUID) (*Record, error) {
	mu := m.lock(id)
	mu.Lock()
	defer mu.Unlock()

	record, err := m.get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if record.Status != StatusAuthenticated {
		return nil, ErrInvalidTransition
	}

	handle, ok := m.handle(id)
	if !ok {
		m.fail(ctx, record, "browser handle lost")
		return nil, browser.ErrUnavailable
	}

	if err := m.transition(ctx, record, StatusScraping); err != nil {
		return nil, err
	}

	start := time.Now()
	content, err := m.extractor.Extract(ctx, handle, record.CourseURL)
	logging.LogExtraction(id.String(), record.CourseURL, sectionCount(content), textLen(content), time.Since(start), err)
	if err != nil {
		monitoring.RecordExtraction("error", time.Since(start))
		m.fail(ctx, record, fmt.Sprintf("extraction failed: %v", err))
		return nil, err
	}
	monitoring.RecordExtraction("success", time.Since(start))

	fileIDs, err := m.persistArtifacts(ctx, record, content)
	if err != nil {
		m.fail(ctx, record, fmt.Sprintf("failed to persist artifacts: %v", err))
		return nil, err
	}

	course := &models.CourseRecord{
		ID:              uuid.New(),
		KnowledgeBaseID: record.KnowledgeBaseID,
		Title:           content.Title,
		CourseURL:       record.CourseURL,
		FileIDs:         fileIDs,
		SectionCount:    len(content.Sections),
	}
	if err := m.knowledge.AddCourse(ctx, course); err != nil {
		m.fail(ctx, record, fmt.Sprintf("failed to index course: %v", err))
		return nil, err
	}

	record.CourseID = &course.ID
	record.PageTitle = content.Title
	if err := m.transition(ctx, record, StatusCompleted); err != nil {
		return nil, err
	}
	return record, nil
}

// Close releases the session's browser and marks the record closed.
// Legal from every state and idempotent.
func (m *Manager) Close(ctx context.Context, id, userID uuid.UUID) error {
	mu := m.lock(id)
	mu.Lock()
	defer mu.Unlock()

	record, err := m.get(ctx, id, userID)
	if err != nil {
		return err
	}
	m.closeHandle(ctx, id)

	if record.Status == StatusClosed {
		return nil
	}
	record.Status = StatusClosed
	if err := m.store.Save(ctx, record); err != nil {
		return err
	}
	monitoring.RecordSessionClosed()
	logging.LogSessionEvent(id.String(), userID.String(), string(StatusClosed), "close")
	return nil
}

// Status returns the persisted record for a session the user owns.
func (m *Manager) Status(ctx context.Context, id, userID uuid.UUID) (*Record, error) {
	return m.get(ctx, id, userID)
}

// ListByUser returns the user's session records, newest first.
func (m *Manager) ListByUser(ctx context.Context, userID uuid.UUID) ([]Record, error) {
	return m.store.ListByUser(ctx, userID)
}

func (m *Manager) get(ctx context.Context, id, userID uuid.UUID) (*Record, error) {
	record, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.UserID != userID {
		return nil, ErrNotFound
	}
	return record, nil
}

func (m *Manager) handle(id uuid.UUID) (browser.Handle, bool) {
	v, ok := m.handles.Get(id.String())
	if !ok {
		return nil, false
	}
	return v.(browser.Handle), true
}

func (m *Manager) closeHandle(ctx context.Context, id uuid.UUID) {
	handle, ok := m.handle(id)
	if !ok {
		return
	}
	if err := handle.Close(ctx); err != nil {
		m.log.Warn().Err(err).Str("session_id", id.String()).Msg("Failed to close browser handle")
	}
	m.handles.Delete(id.String())
}

func (m *Manager) transition(ctx context.Context, record *Record, to Status) error {
	if !CanTransition(record.Status, to) {
		return ErrInvalidTransition
	}
	monitoring.RecordSessionTransition(string(record.Status), string(to))
	record.Status = to
	return m.store.Save(ctx, record)
}

// fail moves the record to error without clobbering terminal states.
func (m *Manager) fail(ctx context.Context, record *Record, message string) {
	if !CanTransition(record.Status, StatusError) {
		return
	}
	monitoring.RecordSessionTransition(string(record.Status), string(StatusError))
	record.Status = StatusError
	record.ErrorMessage = message
	if err := m.store.Save(ctx, record); err != nil {
		m.log.Error().Err(err).Str("session_id", record.ID.String()).Msg("Failed to persist error state")
	}
}

// persistArtifacts writes the extracted content JSON and, when present,
// the page screenshot under the upload root and registers both.
func (m *Manager) persistArtifacts(ctx context.Context, record *Record, content *models.ExtractedContent) ([]string, error) {
	var fileIDs []string

	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode content: %w", err)
	}
	contentID, err := m.writeArtifact(ctx, record, models.FileCategoryDocument,
		"content.json", "application/json", data)
	if err != nil {
		return nil, err
	}
	fileIDs = append(fileIDs, contentID)

	if content.Screenshot != "" {
		png, err := base64.StdEncoding.DecodeString(content.Screenshot)
		if err != nil {
			m.log.Warn().Err(err).Str("session_id", record.ID.String()).Msg("Discarding undecodable screenshot")
			return fileIDs, nil
		}
		shotID, err := m.writeArtifact(ctx, record, models.FileCategoryImage,
			"screenshot.png", "image/png", png)
		if err != nil {
			return nil, err
		}
		fileIDs = append(fileIDs, shotID)
	}
	return fileIDs, nil
}

func (m *Manager) writeArtifact(ctx context.Context, record *Record, category models.FileCategory, originalName, contentType string, data []byte) (string, error) {
	id := uuid.New().String()
	filename := fmt.Sprintf("%s_%s%s",
		time.Now().Format("20060102_150405"), id[:8], filepath.Ext(originalName))
	dir := filepath.Join(m.uploadDir, string(category))
	path := filepath.Join(dir, filename)

	hash := sha256.Sum256(data)
	file := &models.UploadedFile{
		ID:               id,
		Filename:         filename,
		OriginalFilename: originalName,
		FileSize:         int64(len(data)),
		ContentType:      contentType,
		Category:         category,
		Status:           models.FileStatusPending,
		FilePath:         path,
		FileHash:         hex.EncodeToString(hash[:]),
		UserID:           record.UserID.String(),
	}
	if err := m.registry.Register(ctx, file); err != nil {
		return "", err
	}
	if err := m.registry.UpdateStatus(ctx, id, models.FileStatusProcessing, nil); err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", m.failArtifact(ctx, id, fmt.Errorf("failed to create artifact dir: %w", err))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", m.failArtifact(ctx, id, fmt.Errorf("failed to write artifact: %w", err))
	}

	if err := m.registry.UpdateStatus(ctx, id, models.FileStatusCompleted, nil); err != nil {
		return "", err
	}
	return id, nil
}

func (m *Manager) failArtifact(ctx context.Context, id string, cause error) error {
	msg := cause.Error()
	if err := m.registry.UpdateStatus(ctx, id, models.FileStatusError, &msg); err != nil {
		m.log.Error().Err(err).Str("file_id", id).Msg("Failed to mark artifact errored")
	}
	return cause
}

func sectionCount(content *models.ExtractedContent) int {
	if content == nil {
		return 0
	}
	return len(content.Sections)
}

func textLen(content *models.ExtractedContent) int {
	if content == nil {
		return 0
	}
	return len(content.RawText)
}
