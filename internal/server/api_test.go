package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorlink/backend/internal/browser"
	"github.com/tutorlink/backend/internal/config"
	"github.com/tutorlink/backend/internal/extractor"
	"github.com/tutorlink/backend/internal/knowledge"
	"github.com/tutorlink/backend/internal/middleware"
	"github.com/tutorlink/backend/internal/models"
	"github.com/tutorlink/backend/internal/reclaimer"
	"github.com/tutorlink/backend/internal/registry"
	"github.com/tutorlink/backend/internal/server"
	"github.com/tutorlink/backend/internal/session"
	"github.com/tutorlink/backend/internal/upload"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "test-secret-key-for-jwt-testing-32chars"

const testPage = `<html><head><title>Algebra</title></head><body>
<main><h1>Algebra</h1><h2>Groups</h2><p>Group theory basics.</p></main>
</body></html>`

type stubHandle struct {
	contentErr error
}

func (stubHandle) ID() string                             { return "browser-1" }
func (stubHandle) Navigate(context.Context, string) error { return nil }
func (stubHandle) Title(context.Context) (string, error)  { return "Algebra", nil }
func (h stubHandle) Content(context.Context) (string, error) {
	if h.contentErr != nil {
		return "", h.contentErr
	}
	return testPage, nil
}
func (stubHandle) Screenshot(context.Context) (string, error) { return "", nil }
func (stubHandle) LiveViewURL() string                        { return "https://live.example.com/browser-1" }
func (stubHandle) Close(context.Context) error                { return nil }

type stubProvider struct {
	handle stubHandle
}

func (p stubProvider) Open(context.Context) (browser.Handle, error) { return p.handle, nil }

type harness struct {
	server    *server.APIServer
	index     *knowledge.MemoryIndex
	registry  *registry.MemoryStore
	userID    uuid.UUID
	userToken string
}

func mintToken(userID uuid.UUID, userType string) string {
	now := time.Now()
	claims := &middleware.Claims{
		UserID:   userID.String(),
		UserType: userType,
		Email:    "student@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "access",
			Issuer:    "tutorlink",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)),
		},
	}
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	return token
}

func newHarness(t *testing.T) *harness {
	return newHarnessWith(t, stubProvider{})
}

func newHarnessWith(t *testing.T, provider browser.Provider) *harness {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.Env = "test"
	cfg.JWT = config.JWTConfig{
		Secret:             testSecret,
		Issuer:             "tutorlink",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 7 * 24 * time.Hour,
	}
	cfg.CORS.AllowedOrigins = []string{"*"}
	cfg.Upload = config.UploadConfig{
		Dir:          t.TempDir(),
		MaxFileSize:  1 << 20,
		MaxTotalSize: 10 << 20,
	}

	reg := registry.NewMemoryStore()
	idx := knowledge.NewMemoryIndex()
	sessions := session.NewManager(session.NewMemoryStore(), provider,
		extractor.New(), reg, idx, cfg.Upload.Dir)

	userID := uuid.New()
	srv := server.NewAPIServer(cfg, server.Deps{
		Sessions:  sessions,
		Uploads:   upload.NewService(reg, &cfg.Upload),
		Knowledge: idx,
		Reclaimer: reclaimer.New(reg, idx, cfg.Upload.Dir),
	})

	return &harness{
		server:    srv,
		index:     idx,
		registry:  reg,
		userID:    userID,
		userToken: mintToken(userID, string(models.UserTypeStudent)),
	}
}

func (h *harness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	h.server.Router().ServeHTTP(w, req)
	return w
}

func (h *harness) createKnowledgeBase(t *testing.T) uuid.UUID {
	t.Helper()
	w := h.do(t, http.MethodPost, "/api/v1/knowledge-bases/", h.userToken,
		gin.H{"name": "Math"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var kb models.KnowledgeBase
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &kb))
	return kb.ID
}

func TestHealthCheck(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProtectedRoutesRejectMissingToken(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{
		"/api/v1/auth/me",
		"/api/v1/sessions/",
		"/api/v1/files/",
		"/api/v1/knowledge-bases/",
		"/api/v1/courses/",
	} {
		w := h.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t)
	kbID := h.createKnowledgeBase(t)

	// Open
	w := h.do(t, http.MethodPost, "/api/v1/sessions/", h.userToken, gin.H{
		"knowledge_base_id": kbID.String(),
		"course_url":        "https://ocw.example.com/algebra",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var record session.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
	assert.Equal(t, session.StatusAwaitingLogin, record.Status)
	assert.NotEmpty(t, record.LiveViewURL)

	sessPath := "/api/v1/sessions/" + record.ID.String()

	// Extract before continue is a conflict, state unchanged
	w = h.do(t, http.MethodPost, sessPath+"/extract", h.userToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(t, http.MethodGet, sessPath, h.userToken, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
	assert.Equal(t, session.StatusAwaitingLogin, record.Status)

	// Continue drives authenticated -> scraping -> completed in one call
	w = h.do(t, http.MethodPost, sessPath+"/continue", h.userToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
	assert.Equal(t, session.StatusCompleted, record.Status)
	assert.Equal(t, "Algebra", record.PageTitle)
	require.NotNil(t, record.CourseID)

	// The course landed in the knowledge base
	w = h.do(t, http.MethodGet, "/api/v1/knowledge-bases/"+kbID.String()+"/courses", h.userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Courses []models.CourseRecord `json:"courses"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Courses, 1)
	assert.Equal(t, "Algebra", list.Courses[0].Title)

	// And in the cross-base course listing
	w = h.do(t, http.MethodGet, "/api/v1/courses/", h.userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Courses, 1)

	// Close twice, both fine
	w = h.do(t, http.MethodDelete, sessPath, h.userToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = h.do(t, http.MethodDelete, sessPath, h.userToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestContinueReturnsErrorRecordWhenExtractionFails(t *testing.T) {
	h := newHarnessWith(t, stubProvider{handle: stubHandle{contentErr: errors.New("page render failed")}})
	kbID := h.createKnowledgeBase(t)

	w := h.do(t, http.MethodPost, "/api/v1/sessions/", h.userToken, gin.H{
		"knowledge_base_id": kbID.String(),
		"course_url":        "https://ocw.example.com/algebra",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var record session.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))

	w = h.do(t, http.MethodPost, "/api/v1/sessions/"+record.ID.String()+"/continue", h.userToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
	assert.Equal(t, session.StatusError, record.Status)
	assert.NotEmpty(t, record.ErrorMessage)

	// Nothing was indexed
	w = h.do(t, http.MethodGet, "/api/v1/knowledge-bases/"+kbID.String()+"/courses", h.userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Courses []models.CourseRecord `json:"courses"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Empty(t, list.Courses)
}

func TestSessionOwnershipIsOpaque(t *testing.T) {
	h := newHarness(t)
	kbID := h.createKnowledgeBase(t)

	w := h.do(t, http.MethodPost, "/api/v1/sessions/", h.userToken, gin.H{
		"knowledge_base_id": kbID.String(),
		"course_url":        "https://ocw.example.com/algebra",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var record session.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))

	otherToken := mintToken(uuid.New(), string(models.UserTypeStudent))
	w = h.do(t, http.MethodGet, "/api/v1/sessions/"+record.ID.String(), otherToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFileUploadOverHTTP(t *testing.T) {
	h := newHarness(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("chapter one notes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/files/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+h.userToken)
	w := httptest.NewRecorder()
	h.server.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var file models.UploadedFile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &file))
	assert.Equal(t, models.FileStatusCompleted, file.Status)
	assert.Equal(t, "notes.txt", file.OriginalFilename)

	// Visible in the listing, then deletable
	w = h.do(t, http.MethodGet, "/api/v1/files/", h.userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodDelete, "/api/v1/files/"+file.ID, h.userToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = h.do(t, http.MethodGet, "/api/v1/files/"+file.ID, h.userToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestKnowledgeBaseCRUD(t *testing.T) {
	h := newHarness(t)
	kbID := h.createKnowledgeBase(t)
	path := "/api/v1/knowledge-bases/" + kbID.String()

	w := h.do(t, http.MethodPut, path, h.userToken,
		gin.H{"name": "Mathematics", "description": "Undergrad math"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.do(t, http.MethodGet, path, h.userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var kb models.KnowledgeBase
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &kb))
	assert.Equal(t, "Mathematics", kb.Name)

	w = h.do(t, http.MethodDelete, path, h.userToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = h.do(t, http.MethodGet, path, h.userToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminReclaimRequiresAdminRole(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/v1/admin/reclaim", h.userToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	adminToken := mintToken(uuid.New(), string(models.UserTypeAdmin))
	w = h.do(t, http.MethodPost, "/api/v1/admin/reclaim", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var report reclaimer.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.True(t, report.DryRun)
}

func TestAdminReclaimExecute(t *testing.T) {
	h := newHarness(t)
	kbID := h.createKnowledgeBase(t)

	// Produce a completed session so the registry has reachable files
	w := h.do(t, http.MethodPost, "/api/v1/sessions/", h.userToken, gin.H{
		"knowledge_base_id": kbID.String(),
		"course_url":        "https://ocw.example.com/algebra",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var record session.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
	sessPath := "/api/v1/sessions/" + record.ID.String()
	w = h.do(t, http.MethodPost, sessPath+"/continue", h.userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
	require.Equal(t, session.StatusCompleted, record.Status)

	adminToken := mintToken(uuid.New(), string(models.UserTypeAdmin))
	w = h.do(t, http.MethodPost, "/api/v1/admin/reclaim", adminToken, gin.H{"execute": true})
	require.Equal(t, http.StatusOK, w.Code)

	var report reclaimer.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.False(t, report.DryRun)
	assert.Empty(t, report.RegistryOrphans, "referenced artifacts are not orphans")
}
