package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"postline-bot/internal/database/models"
)

func claimedDoc(id primitive.ObjectID) bson.D {
	return bson.D{
		{Key: "ok", Value: 1},
		{Key: "value", Value: bson.D{
			{Key: "_id", Value: id},
			{Key: "status", Value: models.StatusPublishing},
		}},
	}
}

func noMoreClaims() bson.D {
	return bson.D{{Key: "ok", Value: 1}, {Key: "value", Value: nil}}
}

func TestClaimDuePostsClaimsUntilNothingMatches(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("drains the due set", func(mt *mtest.T) {
		repo := &MongoPostRepository{collection: mt.Coll}
		first := primitive.NewObjectID()
		second := primitive.NewObjectID()
		mt.AddMockResponses(claimedDoc(first), claimedDoc(second), noMoreClaims())

		claimed, err := repo.ClaimDuePosts(context.Background(), time.Now(), 16)
		require.NoError(mt, err)
		require.Len(mt, claimed, 2)
		assert.Equal(mt, first, claimed[0].ID)
		assert.Equal(mt, second, claimed[1].ID)
		for _, post := range claimed {
			assert.Equal(mt, models.StatusPublishing, post.Status)
		}
	})

	mt.Run("stops at the limit", func(mt *mtest.T) {
		repo := &MongoPostRepository{collection: mt.Coll}
		mt.AddMockResponses(claimedDoc(primitive.NewObjectID()), claimedDoc(primitive.NewObjectID()))

		claimed, err := repo.ClaimDuePosts(context.Background(), time.Now(), 2)
		require.NoError(mt, err)
		assert.Len(mt, claimed, 2)
	})
}

// memoryPostStore reproduces the claim's atomicity unit: the due-filter match
// and the flip to PUBLISHING happen under one lock, exactly like a single
// findOneAndUpdate against one document.
type memoryPostStore struct {
	mu    sync.Mutex
	posts []*models.Post
}

func (s *memoryPostStore) claimDue(now time.Time, limit int) []models.Post {
	var claimed []models.Post
	for limit <= 0 || len(claimed) < limit {
		s.mu.Lock()
		var next *models.Post
		for _, post := range s.posts {
			if post.Status != models.StatusApproved && post.Status != models.StatusScheduled {
				continue
			}
			if post.ScheduledAt == nil || post.ScheduledAt.After(now) {
				continue
			}
			if next == nil || post.ScheduledAt.Before(*next.ScheduledAt) {
				next = post
			}
		}
		if next == nil {
			s.mu.Unlock()
			return claimed
		}
		next.Status = models.StatusPublishing
		claimed = append(claimed, *next)
		s.mu.Unlock()
	}
	return claimed
}

func TestConcurrentClaimHandsEachPostToOneWorker(t *testing.T) {
	now := time.Now()
	store := &memoryPostStore{}
	for i := 0; i < 40; i++ {
		due := now.Add(-time.Duration(i+1) * time.Minute)
		store.posts = append(store.posts, &models.Post{
			ID:          primitive.NewObjectID(),
			Status:      models.StatusScheduled,
			ScheduledAt: &due,
		})
	}

	var wg sync.WaitGroup
	results := make([][]models.Post, 2)
	for worker := range results {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			results[worker] = store.claimDue(now, 0)
		}(worker)
	}
	wg.Wait()

	seen := make(map[primitive.ObjectID]int)
	total := 0
	for _, claimed := range results {
		total += len(claimed)
		for _, post := range claimed {
			seen[post.ID]++
			assert.Equal(t, models.StatusPublishing, post.Status)
		}
	}
	assert.Equal(t, len(store.posts), total)
	for id, count := range seen {
		assert.Equalf(t, 1, count, "post %s claimed %d times", id.Hex(), count)
	}
	for _, post := range store.posts {
		assert.Equal(t, models.StatusPublishing, post.Status)
	}
}
