package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PostStatus is the publication lifecycle state of a post.
type PostStatus string

const (
	StatusDraft      PostStatus = "DRAFT"
	StatusApproved   PostStatus = "APPROVED"
	StatusScheduled  PostStatus = "SCHEDULED"
	StatusPublishing PostStatus = "PUBLISHING"
	StatusPublished  PostStatus = "PUBLISHED"
	StatusRejected   PostStatus = "REJECTED"
)

// Schedule modes.
const (
	ScheduleAuto   = "AUTO"
	ScheduleManual = "MANUAL"
)

// Post is a single content item moving through the pipeline:
// draft -> approved -> scheduled -> publishing -> published,
// with REJECTED as an alternate terminal and rollback edges from PUBLISHING.
type Post struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	ChannelID    primitive.ObjectID `bson:"channel_id"`
	Text         string             `bson:"text"`
	Status       PostStatus         `bson:"status"`
	ScheduleMode string             `bson:"schedule_mode"`
	ScheduledAt  *time.Time         `bson:"scheduled_at,omitempty"`
	ExpiresAt    *time.Time         `bson:"expires_at,omitempty"`
	PublishedAt  *time.Time         `bson:"published_at,omitempty"`
	DupeScore    *float64           `bson:"dupe_score,omitempty"`
	Origin       string             `bson:"origin,omitempty"`
	SourceURL    string             `bson:"source_url,omitempty"`
	// TextMessageID is the Telegram message ID of the standalone text message,
	// zero when the text went out as a media caption.
	TextMessageID int64     `bson:"message_id,omitempty"`
	Metadata      Metadata  `bson:"source_metadata,omitempty"`
	CreatedAt     time.Time `bson:"created_at"`
}

// MediaType classifies an attachment for dispatch.
type MediaType string

const (
	MediaPhoto MediaType = "photo"
	MediaVideo MediaType = "video"
	MediaDoc   MediaType = "doc"
)

// MediaAttachment is one resolved (or attempted) media unit belonging to a
// post. Attachments are replaced wholesale whenever the post's media list is
// regenerated; PlatformFileID allows re-dispatch without re-uploading.
type MediaAttachment struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	PostID         primitive.ObjectID `bson:"post_id"`
	Type           MediaType          `bson:"type"`
	Order          int                `bson:"order"`
	Resolver       string             `bson:"resolver,omitempty"`
	Reference      map[string]string  `bson:"reference,omitempty"`
	SourceURL      string             `bson:"source_url,omitempty"`
	CachePath      string             `bson:"cache_path,omitempty"`
	HasSpoiler     bool               `bson:"has_spoiler"`
	PlatformFileID string             `bson:"platform_file_id,omitempty"`
	ExpiresAt      *time.Time         `bson:"expires_at,omitempty"`
	CreatedAt      time.Time          `bson:"created_at"`
}
