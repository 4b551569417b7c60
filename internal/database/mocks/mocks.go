// Package mocks provides testify mocks for the repository interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"postline-bot/internal/database/models"
)

type ChannelRepository struct {
	mock.Mock
}

func (m *ChannelRepository) GetChannel(ctx context.Context, id primitive.ObjectID) (*models.Channel, error) {
	args := m.Called(ctx, id)
	channel, _ := args.Get(0).(*models.Channel)
	return channel, args.Error(1)
}

func (m *ChannelRepository) ListChannels(ctx context.Context) ([]models.Channel, error) {
	args := m.Called(ctx)
	channels, _ := args.Get(0).([]models.Channel)
	return channels, args.Error(1)
}

type PostRepository struct {
	mock.Mock
}

func (m *PostRepository) CreatePost(ctx context.Context, post *models.Post) error {
	args := m.Called(ctx, post)
	return args.Error(0)
}

func (m *PostRepository) GetPost(ctx context.Context, id primitive.ObjectID) (*models.Post, error) {
	args := m.Called(ctx, id)
	post, _ := args.Get(0).(*models.Post)
	return post, args.Error(1)
}

func (m *PostRepository) SavePost(ctx context.Context, post *models.Post) error {
	args := m.Called(ctx, post)
	return args.Error(0)
}

func (m *PostRepository) ClaimDuePosts(ctx context.Context, now time.Time, limit int) ([]models.Post, error) {
	args := m.Called(ctx, now, limit)
	posts, _ := args.Get(0).([]models.Post)
	return posts, args.Error(1)
}

func (m *PostRepository) ClaimedSlots(ctx context.Context, channelID primitive.ObjectID) ([]time.Time, error) {
	args := m.Called(ctx, channelID)
	slots, _ := args.Get(0).([]time.Time)
	return slots, args.Error(1)
}

func (m *PostRepository) RecentPublishedTexts(ctx context.Context, limit int) ([]string, error) {
	args := m.Called(ctx, limit)
	texts, _ := args.Get(0).([]string)
	return texts, args.Error(1)
}

func (m *PostRepository) CountDrafts(ctx context.Context, channelID primitive.ObjectID) (int64, error) {
	args := m.Called(ctx, channelID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *PostRepository) DeleteExpiredDrafts(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *PostRepository) DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *PostRepository) StaleScheduled(ctx context.Context, cutoff time.Time) ([]models.Post, error) {
	args := m.Called(ctx, cutoff)
	posts, _ := args.Get(0).([]models.Post)
	return posts, args.Error(1)
}

type AttachmentRepository struct {
	mock.Mock
}

func (m *AttachmentRepository) CreateAttachment(ctx context.Context, att *models.MediaAttachment) error {
	args := m.Called(ctx, att)
	if att.ID.IsZero() {
		att.ID = primitive.NewObjectID()
	}
	return args.Error(0)
}

func (m *AttachmentRepository) SaveAttachment(ctx context.Context, att *models.MediaAttachment) error {
	args := m.Called(ctx, att)
	return args.Error(0)
}

func (m *AttachmentRepository) DeleteAttachment(ctx context.Context, id primitive.ObjectID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *AttachmentRepository) DeleteForPost(ctx context.Context, postID primitive.ObjectID) error {
	args := m.Called(ctx, postID)
	return args.Error(0)
}

func (m *AttachmentRepository) ListForPost(ctx context.Context, postID primitive.ObjectID) ([]models.MediaAttachment, error) {
	args := m.Called(ctx, postID)
	attachments, _ := args.Get(0).([]models.MediaAttachment)
	return attachments, args.Error(1)
}

func (m *AttachmentRepository) ExpiredCached(ctx context.Context, now time.Time) ([]models.MediaAttachment, error) {
	args := m.Called(ctx, now)
	attachments, _ := args.Get(0).([]models.MediaAttachment)
	return attachments, args.Error(1)
}
