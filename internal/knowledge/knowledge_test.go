package knowledge_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorlink/backend/internal/knowledge"
	"github.com/tutorlink/backend/internal/models"
)

func newBase(t *testing.T, idx knowledge.Index, userID uuid.UUID) *models.KnowledgeBase {
	t.Helper()
	kb := &models.KnowledgeBase{
		ID:          uuid.New(),
		UserID:      userID,
		Name:        "Linear Algebra",
		Description: "MIT OCW 18.06",
	}
	require.NoError(t, idx.CreateKnowledgeBase(context.Background(), kb))
	return kb
}

func addCourse(t *testing.T, idx knowledge.Index, kbID uuid.UUID, fileIDs ...string) *models.CourseRecord {
	t.Helper()
	course := &models.CourseRecord{
		ID:              uuid.New(),
		KnowledgeBaseID: kbID,
		Title:           "Lecture 1",
		CourseURL:       "https://ocw.example.com/18-06/lecture-1",
		FileIDs:         fileIDs,
		SectionCount:    len(fileIDs),
	}
	require.NoError(t, idx.AddCourse(context.Background(), course))
	return course
}

func TestReachableFileIDs_UnionAcrossBases(t *testing.T) {
	ctx := context.Background()
	idx := knowledge.NewMemoryIndex()

	userA := uuid.New()
	userB := uuid.New()
	kbA := newBase(t, idx, userA)
	kbB := newBase(t, idx, userB)

	addCourse(t, idx, kbA.ID, "file-1", "file-2")
	addCourse(t, idx, kbA.ID, "file-2", "file-3")
	addCourse(t, idx, kbB.ID, "file-4")

	reachable, err := idx.ReachableFileIDs(ctx)
	require.NoError(t, err)

	assert.Len(t, reachable, 4)
	for _, id := range []string{"file-1", "file-2", "file-3", "file-4"} {
		assert.Contains(t, reachable, id)
	}
}

func TestAddCourse_RejectsUnknownBase(t *testing.T) {
	ctx := context.Background()
	idx := knowledge.NewMemoryIndex()

	course := &models.CourseRecord{
		ID:              uuid.New(),
		KnowledgeBaseID: uuid.New(),
		Title:           "Orphaned",
		CourseURL:       "https://ocw.example.com/nowhere",
	}
	err := idx.AddCourse(ctx, course)
	assert.ErrorIs(t, err, knowledge.ErrNotFound)

	reachable, err := idx.ReachableFileIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, reachable)
}

func TestDelete_RemovesCoursesAndShrinksReachableSet(t *testing.T) {
	ctx := context.Background()
	idx := knowledge.NewMemoryIndex()

	userID := uuid.New()
	kept := newBase(t, idx, userID)
	doomed := newBase(t, idx, userID)

	addCourse(t, idx, kept.ID, "file-1")
	course := addCourse(t, idx, doomed.ID, "file-2", "file-3")

	require.NoError(t, idx.Delete(ctx, doomed.ID))

	_, err := idx.Get(ctx, doomed.ID)
	assert.ErrorIs(t, err, knowledge.ErrNotFound)
	_, err = idx.GetCourse(ctx, course.ID)
	assert.ErrorIs(t, err, knowledge.ErrCourseNotFound)

	reachable, err := idx.ReachableFileIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, reachable, 1)
	assert.Contains(t, reachable, "file-1")
}

func TestListByUser_OnlyOwnBases(t *testing.T) {
	ctx := context.Background()
	idx := knowledge.NewMemoryIndex()

	userA := uuid.New()
	userB := uuid.New()
	newBase(t, idx, userA)
	newBase(t, idx, userA)
	newBase(t, idx, userB)

	bases, err := idx.ListByUser(ctx, userA)
	require.NoError(t, err)
	assert.Len(t, bases, 2)
	for _, kb := range bases {
		assert.Equal(t, userA, kb.UserID)
	}
}

func TestGetCourse_ReturnsIsolatedCopy(t *testing.T) {
	ctx := context.Background()
	idx := knowledge.NewMemoryIndex()

	kb := newBase(t, idx, uuid.New())
	course := addCourse(t, idx, kb.ID, "file-1", "file-2")

	got, err := idx.GetCourse(ctx, course.ID)
	require.NoError(t, err)
	got.FileIDs[0] = "mutated"

	again, err := idx.GetCourse(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"file-1", "file-2"}, again.FileIDs)
}
