package database

import (
	"context"
	"errors"
	"fmt"

	"postline-bot/internal/database/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const channelCollectionName = "channels"

// ErrChannelNotFound is returned when a channel lookup matches nothing.
var ErrChannelNotFound = errors.New("channel not found")

// MongoChannelRepository implements ChannelRepository for MongoDB.
type MongoChannelRepository struct {
	collection *mongo.Collection
}

// NewMongoChannelRepository creates a new MongoDB channel repository.
func NewMongoChannelRepository(db *mongo.Database) *MongoChannelRepository {
	return &MongoChannelRepository{
		collection: db.Collection(channelCollectionName),
	}
}

// GetChannel retrieves a single channel by its ObjectID.
func (r *MongoChannelRepository) GetChannel(ctx context.Context, id primitive.ObjectID) (*models.Channel, error) {
	var channel models.Channel
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&channel)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrChannelNotFound
		}
		return nil, fmt.Errorf("failed to find channel %s: %w", id.Hex(), err)
	}
	return &channel, nil
}

// ListChannels retrieves all configured channels.
func (r *MongoChannelRepository) ListChannels(ctx context.Context) ([]models.Channel, error) {
	cursor, err := r.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer cursor.Close(ctx)

	var channels []models.Channel
	if err := cursor.All(ctx, &channels); err != nil {
		return nil, fmt.Errorf("failed to decode channels: %w", err)
	}
	return channels, nil
}
