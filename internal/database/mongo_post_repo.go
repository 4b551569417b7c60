package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"postline-bot/internal/database/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const postCollectionName = "posts"

// ErrPostNotFound is returned when a post lookup matches nothing.
var ErrPostNotFound = errors.New("post not found")

// MongoPostRepository implements PostRepository for MongoDB.
type MongoPostRepository struct {
	collection *mongo.Collection
}

// NewMongoPostRepository creates a new MongoDB post repository.
func NewMongoPostRepository(db *mongo.Database) *MongoPostRepository {
	return &MongoPostRepository{
		collection: db.Collection(postCollectionName),
	}
}

// CreatePost inserts a new post.
func (r *MongoPostRepository) CreatePost(ctx context.Context, post *models.Post) error {
	if post.ID.IsZero() {
		post.ID = primitive.NewObjectID()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}
	applyScheduleInvariant(post)

	if _, err := r.collection.InsertOne(ctx, post); err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

// GetPost retrieves a single post by its ObjectID.
func (r *MongoPostRepository) GetPost(ctx context.Context, id primitive.ObjectID) (*models.Post, error) {
	var post models.Post
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&post)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("failed to find post %s: %w", id.Hex(), err)
	}
	return &post, nil
}

// SavePost replaces the stored post. The schedule invariant is applied at
// every persist boundary, not only on explicit approval.
func (r *MongoPostRepository) SavePost(ctx context.Context, post *models.Post) error {
	applyScheduleInvariant(post)

	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": post.ID}, post)
	if err != nil {
		return fmt.Errorf("failed to save post %s: %w", post.ID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return ErrPostNotFound
	}
	return nil
}

// applyScheduleInvariant enforces the status/schedule consistency rule:
// an APPROVED post with a scheduled time is SCHEDULED.
func applyScheduleInvariant(post *models.Post) {
	if post.Status == models.StatusApproved && post.ScheduledAt != nil {
		post.Status = models.StatusScheduled
	}
}

// ClaimDuePosts flips due APPROVED/SCHEDULED posts to PUBLISHING one at a
// time with FindOneAndUpdate. The filter and the status flip run as a single
// atomic operation, so when several workers poll concurrently each due post is
// handed to exactly one of them; the others simply stop matching.
func (r *MongoPostRepository) ClaimDuePosts(ctx context.Context, now time.Time, limit int) ([]models.Post, error) {
	filter := bson.M{
		"status":       bson.M{"$in": bson.A{models.StatusApproved, models.StatusScheduled}},
		"scheduled_at": bson.M{"$lte": now},
	}
	update := bson.M{"$set": bson.M{"status": models.StatusPublishing}}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetSort(bson.D{{Key: "scheduled_at", Value: 1}})

	var claimed []models.Post
	for limit <= 0 || len(claimed) < limit {
		var post models.Post
		err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&post)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				break // nothing left to claim
			}
			return claimed, fmt.Errorf("failed to claim due post: %w", err)
		}
		claimed = append(claimed, post)
	}
	return claimed, nil
}

// ClaimedSlots returns every scheduled timestamp currently held by an
// APPROVED or SCHEDULED post of the channel.
func (r *MongoPostRepository) ClaimedSlots(ctx context.Context, channelID primitive.ObjectID) ([]time.Time, error) {
	filter := bson.M{
		"channel_id":   channelID,
		"status":       bson.M{"$in": bson.A{models.StatusApproved, models.StatusScheduled}},
		"scheduled_at": bson.M{"$ne": nil},
	}
	opts := options.Find().SetProjection(bson.M{"scheduled_at": 1})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query claimed slots: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ScheduledAt *time.Time `bson:"scheduled_at"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode claimed slots: %w", err)
	}

	slots := make([]time.Time, 0, len(rows))
	for _, row := range rows {
		if row.ScheduledAt != nil {
			slots = append(slots, *row.ScheduledAt)
		}
	}
	return slots, nil
}

// RecentPublishedTexts returns up to limit texts of the most recently
// published posts across all channels, newest first.
func (r *MongoPostRepository) RecentPublishedTexts(ctx context.Context, limit int) ([]string, error) {
	filter := bson.M{"status": models.StatusPublished}
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"text": 1})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query published texts: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Text string `bson:"text"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode published texts: %w", err)
	}

	texts := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.Text != "" {
			texts = append(texts, row.Text)
		}
	}
	return texts, nil
}

// CountDrafts counts the channel's current drafts.
func (r *MongoPostRepository) CountDrafts(ctx context.Context, channelID primitive.ObjectID) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{
		"channel_id": channelID,
		"status":     models.StatusDraft,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count drafts: %w", err)
	}
	return count, nil
}

// DeleteExpiredDrafts removes drafts whose TTL has passed.
func (r *MongoPostRepository) DeleteExpiredDrafts(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.collection.DeleteMany(ctx, bson.M{
		"status":     models.StatusDraft,
		"expires_at": bson.M{"$lt": now},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired drafts: %w", err)
	}
	return res.DeletedCount, nil
}

// DeletePublishedBefore removes published posts older than the retention cutoff.
func (r *MongoPostRepository) DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.collection.DeleteMany(ctx, bson.M{
		"status":       models.StatusPublished,
		"published_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete retained published posts: %w", err)
	}
	return res.DeletedCount, nil
}

// StaleScheduled returns posts stuck in SCHEDULED or PUBLISHING whose
// scheduled time is older than the cutoff.
func (r *MongoPostRepository) StaleScheduled(ctx context.Context, cutoff time.Time) ([]models.Post, error) {
	filter := bson.M{
		"status":       bson.M{"$in": bson.A{models.StatusScheduled, models.StatusPublishing}},
		"scheduled_at": bson.M{"$lt": cutoff},
	}
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale scheduled posts: %w", err)
	}
	defer cursor.Close(ctx)

	var posts []models.Post
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, fmt.Errorf("failed to decode stale scheduled posts: %w", err)
	}
	return posts, nil
}
