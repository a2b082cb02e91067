package upload_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorlink/backend/internal/config"
	"github.com/tutorlink/backend/internal/models"
	"github.com/tutorlink/backend/internal/registry"
	"github.com/tutorlink/backend/internal/upload"
)

func newService(t *testing.T, maxFile, maxTotal int64) (*upload.Service, *registry.MemoryStore) {
	t.Helper()
	reg := registry.NewMemoryStore()
	svc := upload.NewService(reg, &config.UploadConfig{
		Dir:          t.TempDir(),
		MaxFileSize:  maxFile,
		MaxTotalSize: maxTotal,
	})
	return svc, reg
}

func TestStore_WritesCategorizesAndHashes(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, 1<<20, 10<<20)

	body := "lecture notes for week one"
	file, err := svc.Store(ctx, "user-1", "Notes.PDF", "application/pdf",
		int64(len(body)), strings.NewReader(body))
	require.NoError(t, err)

	assert.Equal(t, models.FileCategoryDocument, file.Category)
	assert.Equal(t, models.FileStatusCompleted, file.Status)
	assert.Equal(t, "Notes.PDF", file.OriginalFilename)
	assert.True(t, strings.HasSuffix(file.Filename, ".pdf"), "extension lowered: %s", file.Filename)

	sum := sha256.Sum256([]byte(body))
	assert.Equal(t, hex.EncodeToString(sum[:]), file.FileHash)

	data, err := os.ReadFile(file.FilePath)
	require.NoError(t, err)
	assert.Equal(t, body, string(data))
}

func TestStore_PerFileLimit(t *testing.T) {
	ctx := context.Background()
	svc, reg := newService(t, 10, 1000)

	_, err := svc.Store(ctx, "user-1", "big.bin", "application/octet-stream",
		11, strings.NewReader(strings.Repeat("x", 11)))
	assert.ErrorIs(t, err, upload.ErrFileTooLarge)

	files, err := reg.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, files, "rejected upload must not register an entry")
}

func TestStore_UserQuota(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, 100, 150)

	first := strings.Repeat("a", 100)
	_, err := svc.Store(ctx, "user-1", "a.txt", "text/plain",
		int64(len(first)), strings.NewReader(first))
	require.NoError(t, err)

	second := strings.Repeat("b", 100)
	_, err = svc.Store(ctx, "user-1", "b.txt", "text/plain",
		int64(len(second)), strings.NewReader(second))
	assert.ErrorIs(t, err, upload.ErrQuotaExceeded)

	// Another user has an untouched quota
	_, err = svc.Store(ctx, "user-2", "c.txt", "text/plain",
		int64(len(second)), strings.NewReader(second))
	assert.NoError(t, err)
}

func TestDelete_RemovesFileAndEntry(t *testing.T) {
	ctx := context.Background()
	svc, reg := newService(t, 1<<20, 10<<20)

	file, err := svc.Store(ctx, "user-1", "pic.png", "image/png",
		4, strings.NewReader("fake"))
	require.NoError(t, err)
	assert.Equal(t, models.FileCategoryImage, file.Category)

	require.NoError(t, svc.Delete(ctx, "user-1", file.ID))

	_, err = os.Stat(file.FilePath)
	assert.True(t, os.IsNotExist(err))
	_, err = reg.Get(ctx, file.ID)
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestDelete_OwnershipEnforced(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, 1<<20, 10<<20)

	file, err := svc.Store(ctx, "user-1", "pic.png", "image/png",
		4, strings.NewReader("fake"))
	require.NoError(t, err)

	err = svc.Delete(ctx, "user-2", file.ID)
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestCategorize(t *testing.T) {
	cases := []struct {
		contentType string
		filename    string
		want        models.FileCategory
	}{
		{"image/png", "shot.png", models.FileCategoryImage},
		{"video/mp4", "lecture.mp4", models.FileCategoryVideo},
		{"audio/mpeg", "podcast.mp3", models.FileCategoryAudio},
		{"application/pdf", "notes.pdf", models.FileCategoryDocument},
		{"application/octet-stream", "bundle.ZIP", models.FileCategoryArchive},
		{"application/octet-stream", "clip.mov", models.FileCategoryVideo},
		{"", "mystery", models.FileCategoryDocument},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, upload.Categorize(tc.contentType, tc.filename),
			"categorize(%q, %q)", tc.contentType, tc.filename)
	}
}
