package housekeeping

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"postline-bot/internal/cache"
	"postline-bot/internal/database/mocks"
	"postline-bot/internal/database/models"
)

func newSweepFixture(t *testing.T) (*Sweep, *mocks.PostRepository, *mocks.AttachmentRepository, string) {
	t.Helper()
	posts := &mocks.PostRepository{}
	attachments := &mocks.AttachmentRepository{}
	root := t.TempDir()
	store := cache.NewStore(root, 7*24*time.Hour, time.Second)
	sweep := NewSweep(posts, attachments, store, 7*24*time.Hour, 3*time.Hour)
	return sweep, posts, attachments, root
}

func TestRunDeletesExpiredAndPrunesPublished(t *testing.T) {
	sweep, posts, attachments, _ := newSweepFixture(t)
	now := time.Now()

	posts.On("DeleteExpiredDrafts", mock.Anything, now).Return(int64(2), nil)
	posts.On("DeletePublishedBefore", mock.Anything, now.Add(-7*24*time.Hour)).Return(int64(3), nil)
	posts.On("StaleScheduled", mock.Anything, now.Add(-3*time.Hour)).Return(nil, nil)
	attachments.On("ExpiredCached", mock.Anything, now).Return(nil, nil)

	sweep.Run(context.Background(), now)
	posts.AssertExpectations(t)
}

func TestRunPurgesExpiredCacheFiles(t *testing.T) {
	sweep, posts, attachments, root := newSweepFixture(t)
	now := time.Now()

	cached := filepath.Join(root, "cache", "expired.jpg")
	require.NoError(t, os.MkdirAll(filepath.Dir(cached), 0o755))
	require.NoError(t, os.WriteFile(cached, []byte("stale"), 0o644))

	expiredAt := now.Add(-time.Hour)
	att := models.MediaAttachment{
		ID:        primitive.NewObjectID(),
		CachePath: cached,
		ExpiresAt: &expiredAt,
	}
	posts.On("DeleteExpiredDrafts", mock.Anything, mock.Anything).Return(int64(0), nil)
	posts.On("DeletePublishedBefore", mock.Anything, mock.Anything).Return(int64(0), nil)
	posts.On("StaleScheduled", mock.Anything, mock.Anything).Return(nil, nil)
	attachments.On("ExpiredCached", mock.Anything, now).Return([]models.MediaAttachment{att}, nil)
	attachments.On("SaveAttachment", mock.Anything, mock.Anything).Return(nil)

	sweep.Run(context.Background(), now)

	_, err := os.Stat(cached)
	assert.True(t, os.IsNotExist(err))

	saved := attachments.Calls[1].Arguments.Get(1).(*models.MediaAttachment)
	assert.Empty(t, saved.CachePath)
	assert.Nil(t, saved.ExpiresAt)
}

func TestRunRevertsStaleSchedules(t *testing.T) {
	sweep, posts, attachments, _ := newSweepFixture(t)
	now := time.Now()

	staleSlot := now.Add(-5 * time.Hour)
	stuck := models.Post{
		ID:          primitive.NewObjectID(),
		Status:      models.StatusPublishing,
		ScheduledAt: &staleSlot,
	}
	posts.On("DeleteExpiredDrafts", mock.Anything, mock.Anything).Return(int64(0), nil)
	posts.On("DeletePublishedBefore", mock.Anything, mock.Anything).Return(int64(0), nil)
	posts.On("StaleScheduled", mock.Anything, now.Add(-3*time.Hour)).Return([]models.Post{stuck}, nil)
	posts.On("SavePost", mock.Anything, mock.Anything).Return(nil)
	attachments.On("ExpiredCached", mock.Anything, mock.Anything).Return(nil, nil)

	sweep.Run(context.Background(), now)

	var reverted *models.Post
	for _, call := range posts.Calls {
		if call.Method == "SavePost" {
			reverted = call.Arguments.Get(1).(*models.Post)
		}
	}
	require.NotNil(t, reverted)
	assert.Equal(t, models.StatusDraft, reverted.Status)
	assert.Nil(t, reverted.ScheduledAt)
	require.NotNil(t, reverted.Metadata.StaleSchedule)
	assert.Equal(t, string(models.StatusPublishing), reverted.Metadata.StaleSchedule.PreviousStatus)
	assert.Equal(t, staleSlot.UTC().Format(time.RFC3339), reverted.Metadata.StaleSchedule.ScheduledAt)
}

func TestRunStepsAreIndependent(t *testing.T) {
	sweep, posts, attachments, _ := newSweepFixture(t)
	now := time.Now()

	posts.On("DeleteExpiredDrafts", mock.Anything, mock.Anything).Return(int64(0), assert.AnError)
	posts.On("DeletePublishedBefore", mock.Anything, mock.Anything).Return(int64(0), nil)
	posts.On("StaleScheduled", mock.Anything, mock.Anything).Return(nil, nil)
	attachments.On("ExpiredCached", mock.Anything, mock.Anything).Return(nil, nil)

	sweep.Run(context.Background(), now)

	// The failing draft cleanup did not stop the later steps.
	posts.AssertCalled(t, "DeletePublishedBefore", mock.Anything, mock.Anything)
	posts.AssertCalled(t, "StaleScheduled", mock.Anything, mock.Anything)
}
