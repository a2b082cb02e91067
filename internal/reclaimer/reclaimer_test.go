package reclaimer_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorlink/backend/internal/knowledge"
	"github.com/tutorlink/backend/internal/models"
	"github.com/tutorlink/backend/internal/reclaimer"
	"github.com/tutorlink/backend/internal/registry"
)

type world struct {
	registry  *registry.MemoryStore
	index     *knowledge.MemoryIndex
	uploadDir string
	kbID      uuid.UUID
}

func newWorld(t *testing.T) *world {
	t.Helper()

	idx := knowledge.NewMemoryIndex()
	kb := &models.KnowledgeBase{ID: uuid.New(), UserID: uuid.New(), Name: "Physics"}
	require.NoError(t, idx.CreateKnowledgeBase(context.Background(), kb))

	return &world{
		registry:  registry.NewMemoryStore(),
		index:     idx,
		uploadDir: t.TempDir(),
		kbID:      kb.ID,
	}
}

// addFile registers an entry and writes its backing file.
func (w *world) addFile(t *testing.T, id string, size int) string {
	t.Helper()

	dir := filepath.Join(w.uploadDir, "document")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, id+".json")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))

	file := &models.UploadedFile{
		ID:               id,
		Filename:         id + ".json",
		OriginalFilename: "content.json",
		FileSize:         int64(size),
		ContentType:      "application/json",
		Category:         models.FileCategoryDocument,
		Status:           models.FileStatusPending,
		FilePath:         path,
		UserID:           "user-1",
	}
	require.NoError(t, w.registry.Register(context.Background(), file))
	return path
}

// reference attaches the given file ids to a course record, making
// them reachable.
func (w *world) reference(t *testing.T, fileIDs ...string) {
	t.Helper()
	course := &models.CourseRecord{
		ID:              uuid.New(),
		KnowledgeBaseID: w.kbID,
		Title:           "Mechanics",
		CourseURL:       "https://ocw.example.com/mechanics",
		FileIDs:         fileIDs,
	}
	require.NoError(t, w.index.AddCourse(context.Background(), course))
}

func TestRun_DryRunReportsWithoutDeleting(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	w.addFile(t, "kept", 100)
	orphanPath := w.addFile(t, "orphan", 200)
	w.reference(t, "kept")

	strayPath := filepath.Join(w.uploadDir, "document", "stray.bin")
	require.NoError(t, os.WriteFile(strayPath, []byte("leftover"), 0o644))

	r := reclaimer.New(w.registry, w.index, w.uploadDir)
	report, err := r.Run(ctx, false)
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	require.Len(t, report.RegistryOrphans, 1)
	assert.Equal(t, "orphan", report.RegistryOrphans[0].FileID)
	require.Len(t, report.DiskOrphans, 1)
	assert.Equal(t, strayPath, report.DiskOrphans[0].Path)
	assert.Zero(t, report.ReclaimedBytes)

	// Nothing was touched
	_, err = os.Stat(orphanPath)
	assert.NoError(t, err)
	_, err = os.Stat(strayPath)
	assert.NoError(t, err)
	_, err = w.registry.Get(ctx, "orphan")
	assert.NoError(t, err)
}

func TestRun_ExecuteReclaimsOrphansOnly(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	keptPath := w.addFile(t, "kept", 100)
	orphanPath := w.addFile(t, "orphan", 200)
	w.reference(t, "kept")

	strayPath := filepath.Join(w.uploadDir, "image", "stray.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(strayPath), 0o755))
	require.NoError(t, os.WriteFile(strayPath, make([]byte, 50), 0o644))

	r := reclaimer.New(w.registry, w.index, w.uploadDir)
	report, err := r.Run(ctx, true)
	require.NoError(t, err)

	assert.False(t, report.DryRun)
	assert.Empty(t, report.Failures)
	assert.Equal(t, int64(250), report.ReclaimedBytes)

	// Referenced file survives; orphans are gone, registry entry too
	_, err = os.Stat(keptPath)
	assert.NoError(t, err)
	_, err = os.Stat(orphanPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(strayPath)
	assert.True(t, os.IsNotExist(err))
	_, err = w.registry.Get(ctx, "orphan")
	assert.ErrorIs(t, err, registry.ErrNotFound)
	_, err = w.registry.Get(ctx, "kept")
	assert.NoError(t, err)
}

func TestRun_SecondRunFindsNothing(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	w.addFile(t, "kept", 100)
	w.addFile(t, "orphan", 200)
	w.reference(t, "kept")

	r := reclaimer.New(w.registry, w.index, w.uploadDir)
	_, err := r.Run(ctx, true)
	require.NoError(t, err)

	report, err := r.Run(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, report.RegistryOrphans)
	assert.Empty(t, report.DiskOrphans)
	assert.Empty(t, report.Failures)
	assert.Zero(t, report.ReclaimedBytes)
}

func TestRun_MissingBackingFileStillRemovesEntry(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	path := w.addFile(t, "orphan", 200)
	require.NoError(t, os.Remove(path))

	r := reclaimer.New(w.registry, w.index, w.uploadDir)
	report, err := r.Run(ctx, true)
	require.NoError(t, err)

	assert.Empty(t, report.Failures)
	_, err = w.registry.Get(ctx, "orphan")
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestRun_FailureAccumulatesAndContinues(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission-based failures require a non-root test user")
	}
	ctx := context.Background()
	w := newWorld(t)

	lockedPath := w.addFile(t, "locked", 100)
	w.addFile(t, "orphan", 200)

	// Make the parent directory read-only so the first removal fails
	dir := filepath.Dir(lockedPath)
	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	r := reclaimer.New(w.registry, w.index, w.uploadDir)
	report, err := r.Run(ctx, true)
	require.NoError(t, err)

	// Both removals fail, both are reported, the run still completes
	assert.Len(t, report.Failures, 2)
	_, err = w.registry.Get(ctx, "locked")
	assert.NoError(t, err)
}

func TestRun_MissingUploadRoot(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	r := reclaimer.New(w.registry, w.index, filepath.Join(w.uploadDir, "never-created"))
	report, err := r.Run(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, report.DiskOrphans)
}
