package database

import (
	"context"
	"fmt"
	"time"

	"postline-bot/internal/database/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const attachmentCollectionName = "post_media"

// MongoAttachmentRepository implements AttachmentRepository for MongoDB.
type MongoAttachmentRepository struct {
	collection *mongo.Collection
}

// NewMongoAttachmentRepository creates a new MongoDB attachment repository.
func NewMongoAttachmentRepository(db *mongo.Database) *MongoAttachmentRepository {
	return &MongoAttachmentRepository{
		collection: db.Collection(attachmentCollectionName),
	}
}

// CreateAttachment inserts a new media attachment.
func (r *MongoAttachmentRepository) CreateAttachment(ctx context.Context, att *models.MediaAttachment) error {
	if att.ID.IsZero() {
		att.ID = primitive.NewObjectID()
	}
	if att.CreatedAt.IsZero() {
		att.CreatedAt = time.Now().UTC()
	}
	if _, err := r.collection.InsertOne(ctx, att); err != nil {
		return fmt.Errorf("failed to insert attachment: %w", err)
	}
	return nil
}

// SaveAttachment replaces the stored attachment.
func (r *MongoAttachmentRepository) SaveAttachment(ctx context.Context, att *models.MediaAttachment) error {
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": att.ID}, att); err != nil {
		return fmt.Errorf("failed to save attachment %s: %w", att.ID.Hex(), err)
	}
	return nil
}

// DeleteAttachment removes a single attachment.
func (r *MongoAttachmentRepository) DeleteAttachment(ctx context.Context, id primitive.ObjectID) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete attachment %s: %w", id.Hex(), err)
	}
	return nil
}

// DeleteForPost removes all attachments belonging to the post.
func (r *MongoAttachmentRepository) DeleteForPost(ctx context.Context, postID primitive.ObjectID) error {
	if _, err := r.collection.DeleteMany(ctx, bson.M{"post_id": postID}); err != nil {
		return fmt.Errorf("failed to delete attachments of post %s: %w", postID.Hex(), err)
	}
	return nil
}

// ListForPost returns the post's attachments in dispatch order, ties broken
// by creation order.
func (r *MongoAttachmentRepository) ListForPost(ctx context.Context, postID primitive.ObjectID) ([]models.MediaAttachment, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "order", Value: 1},
		{Key: "_id", Value: 1},
	})
	cursor, err := r.collection.Find(ctx, bson.M{"post_id": postID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments of post %s: %w", postID.Hex(), err)
	}
	defer cursor.Close(ctx)

	var attachments []models.MediaAttachment
	if err := cursor.All(ctx, &attachments); err != nil {
		return nil, fmt.Errorf("failed to decode attachments: %w", err)
	}
	return attachments, nil
}

// ExpiredCached returns attachments whose cached file has passed its expiry.
func (r *MongoAttachmentRepository) ExpiredCached(ctx context.Context, now time.Time) ([]models.MediaAttachment, error) {
	filter := bson.M{
		"expires_at": bson.M{"$lt": now},
		"cache_path": bson.M{"$ne": ""},
	}
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired attachments: %w", err)
	}
	defer cursor.Close(ctx)

	var attachments []models.MediaAttachment
	if err := cursor.All(ctx, &attachments); err != nil {
		return nil, fmt.Errorf("failed to decode expired attachments: %w", err)
	}
	return attachments, nil
}
