package database

import (
	"context"
	"time"

	"postline-bot/internal/database/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChannelRepository defines read access to publication channels.
// Channels are managed by an operator surface outside this service.
type ChannelRepository interface {
	GetChannel(ctx context.Context, id primitive.ObjectID) (*models.Channel, error)
	ListChannels(ctx context.Context) ([]models.Channel, error)
}

// PostRepository defines persistence for posts and their lifecycle queries.
type PostRepository interface {
	CreatePost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, id primitive.ObjectID) (*models.Post, error)
	// SavePost persists the post after applying the schedule invariant
	// (APPROVED with a scheduled time auto-advances to SCHEDULED).
	SavePost(ctx context.Context, post *models.Post) error

	// ClaimDuePosts atomically flips due APPROVED/SCHEDULED posts to
	// PUBLISHING and returns the claimed posts. Each post is returned to
	// exactly one caller even under concurrent workers.
	ClaimDuePosts(ctx context.Context, now time.Time, limit int) ([]models.Post, error)

	// ClaimedSlots returns the scheduled timestamps currently held by
	// APPROVED or SCHEDULED posts of the channel.
	ClaimedSlots(ctx context.Context, channelID primitive.ObjectID) ([]time.Time, error)

	// RecentPublishedTexts returns up to limit texts of the most recently
	// published posts, newest first.
	RecentPublishedTexts(ctx context.Context, limit int) ([]string, error)

	CountDrafts(ctx context.Context, channelID primitive.ObjectID) (int64, error)
	DeleteExpiredDrafts(ctx context.Context, now time.Time) (int64, error)
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// StaleScheduled returns posts stuck in SCHEDULED or PUBLISHING whose
	// scheduled time is older than the cutoff.
	StaleScheduled(ctx context.Context, cutoff time.Time) ([]models.Post, error)
}

// AttachmentRepository defines persistence for post media attachments.
type AttachmentRepository interface {
	CreateAttachment(ctx context.Context, att *models.MediaAttachment) error
	SaveAttachment(ctx context.Context, att *models.MediaAttachment) error
	DeleteAttachment(ctx context.Context, id primitive.ObjectID) error
	DeleteForPost(ctx context.Context, postID primitive.ObjectID) error
	// ListForPost returns the post's attachments ordered by dispatch order,
	// ties broken by creation order.
	ListForPost(ctx context.Context, postID primitive.ObjectID) ([]models.MediaAttachment, error)
	// ExpiredCached returns attachments whose cached file has passed its expiry.
	ExpiredCached(ctx context.Context, now time.Time) ([]models.MediaAttachment, error)
}
