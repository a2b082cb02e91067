package registry_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"pgregory.net/rapid"

	"github.com/tutorlink/backend/internal/models"
	"github.com/tutorlink/backend/internal/registry"
)

var allStatuses = []models.FileStatus{
	models.FileStatusPending,
	models.FileStatusUploading,
	models.FileStatusProcessing,
	models.FileStatusCompleted,
	models.FileStatusError,
}

func newTestFile(userID string) *models.UploadedFile {
	id := uuid.New().String()
	return &models.UploadedFile{
		ID:               id,
		Filename:         "20250301_101500_" + id[:8] + ".pdf",
		OriginalFilename: "syllabus.pdf",
		FileSize:         2048,
		ContentType:      "application/pdf",
		Category:         models.FileCategoryDocument,
		Status:           models.FileStatusPending,
		FilePath:         "uploads/document/" + id + ".pdf",
		UserID:           userID,
		CreatedAt:        time.Now(),
	}
}

// TestProperty_StatusTransitions_ForwardOnly tests the full transition
// table: forward moves and any->error are legal, everything else is not.
func TestProperty_StatusTransitions_ForwardOnly(t *testing.T) {
	rank := map[models.FileStatus]int{
		models.FileStatusPending:    0,
		models.FileStatusUploading:  1,
		models.FileStatusProcessing: 2,
		models.FileStatusCompleted:  3,
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			got := registry.ValidStatusTransition(from, to)

			var want bool
			switch {
			case from == to:
				want = false
			case from == models.FileStatusError:
				want = false
			case to == models.FileStatusError:
				want = true
			default:
				want = rank[from] < rank[to]
			}

			if got != want {
				t.Fatalf("PROPERTY VIOLATION: transition %s -> %s = %v, want %v", from, to, got, want)
			}
		}
	}
}

// TestProperty_Register_DuplicateRejected tests that a second
// registration of the same id fails and leaves the first entry intact.
func TestProperty_Register_DuplicateRejected(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		store := registry.NewMemoryStore()

		file := newTestFile(uuid.New().String())
		if err := store.Register(ctx, file); err != nil {
			t.Fatalf("first registration failed: %v", err)
		}

		dupe := newTestFile(file.UserID)
		dupe.ID = file.ID
		dupe.OriginalFilename = rapid.StringMatching(`[a-z]{4,12}\.pdf`).Draw(rt, "filename")

		if err := store.Register(ctx, dupe); err != registry.ErrDuplicateID {
			t.Fatalf("PROPERTY VIOLATION: duplicate id accepted, err = %v", err)
		}

		got, err := store.Get(ctx, file.ID)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got.OriginalFilename != file.OriginalFilename {
			t.Fatal("PROPERTY VIOLATION: failed registration mutated the existing entry")
		}
	})
}

// TestProperty_UpdateStatus_RejectionLeavesEntryUnchanged tests that a
// rejected status update does not touch the entry.
func TestProperty_UpdateStatus_RejectionLeavesEntryUnchanged(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		store := registry.NewMemoryStore()

		file := newTestFile(uuid.New().String())
		if err := store.Register(ctx, file); err != nil {
			t.Fatalf("registration failed: %v", err)
		}

		// Walk a random prefix of the legal chain
		chain := []models.FileStatus{
			models.FileStatusUploading,
			models.FileStatusProcessing,
			models.FileStatusCompleted,
		}
		steps := rapid.IntRange(0, len(chain)).Draw(rt, "steps")
		for _, status := range chain[:steps] {
			if err := store.UpdateStatus(ctx, file.ID, status, nil); err != nil {
				t.Fatalf("legal transition rejected: %v", err)
			}
		}

		before, _ := store.Get(ctx, file.ID)

		// Try a regression or repeat
		target := rapid.SampledFrom(allStatuses).Draw(rt, "target")
		if registry.ValidStatusTransition(before.Status, target) {
			return
		}

		err := store.UpdateStatus(ctx, file.ID, target, nil)
		if err == nil {
			t.Fatalf("PROPERTY VIOLATION: illegal transition %s -> %s accepted", before.Status, target)
		}

		after, _ := store.Get(ctx, file.ID)
		if after.Status != before.Status {
			t.Fatal("PROPERTY VIOLATION: rejected update changed the status")
		}
	})
}

// TestProperty_ErrorReachableFromAnyActiveStatus tests that any
// non-error entry can be marked failed, and error is terminal.
func TestProperty_ErrorReachableFromAnyActiveStatus(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		store := registry.NewMemoryStore()

		file := newTestFile(uuid.New().String())
		if err := store.Register(ctx, file); err != nil {
			t.Fatalf("registration failed: %v", err)
		}

		chain := []models.FileStatus{
			models.FileStatusUploading,
			models.FileStatusProcessing,
			models.FileStatusCompleted,
		}
		steps := rapid.IntRange(0, len(chain)).Draw(rt, "steps")
		for _, status := range chain[:steps] {
			if err := store.UpdateStatus(ctx, file.ID, status, nil); err != nil {
				t.Fatalf("legal transition rejected: %v", err)
			}
		}

		msg := "processing failed"
		if err := store.UpdateStatus(ctx, file.ID, models.FileStatusError, &msg); err != nil {
			t.Fatalf("PROPERTY VIOLATION: error not reachable: %v", err)
		}

		got, _ := store.Get(ctx, file.ID)
		if got.ErrorMessage == nil || *got.ErrorMessage != msg {
			t.Fatal("error message not recorded")
		}
		if got.ProcessedAt == nil {
			t.Fatal("processed_at not set on terminal status")
		}

		// Error is terminal
		for _, status := range allStatuses {
			if err := store.UpdateStatus(ctx, file.ID, status, nil); err == nil {
				t.Fatalf("PROPERTY VIOLATION: left error status for %s", status)
			}
		}
	})
}

// TestList_SnapshotOrdering tests that enumeration is a stable snapshot
// ordered by creation time.
func TestList_SnapshotOrdering(t *testing.T) {
	ctx := context.Background()
	store := registry.NewMemoryStore()

	base := time.Now()
	for i := 0; i < 5; i++ {
		f := newTestFile("user-1")
		f.ID = fmt.Sprintf("file-%d", i)
		f.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := store.Register(ctx, f); err != nil {
			t.Fatalf("registration failed: %v", err)
		}
	}

	files, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(files) != 5 {
		t.Fatalf("got %d files, want 5", len(files))
	}
	for i, f := range files {
		if f.ID != fmt.Sprintf("file-%d", i) {
			t.Fatalf("position %d holds %s", i, f.ID)
		}
	}

	// Mutating the snapshot does not touch the store
	files[0].Status = models.FileStatusCompleted
	got, _ := store.Get(ctx, "file-0")
	if got.Status != models.FileStatusPending {
		t.Fatal("snapshot mutation leaked into the store")
	}
}
