// Package posting drives a post through its lifecycle: approval with slot
// allocation and dupe scoring, dispatch to the channel, and the polling
// worker that publishes due posts.
package posting

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"postline-bot/internal/database"
	"postline-bot/internal/database/models"
	"postline-bot/internal/dedupe"
	"postline-bot/internal/scheduler"
)

// Service implements the editorial lifecycle operations on posts.
type Service struct {
	posts    database.PostRepository
	channels database.ChannelRepository
	scorer   *dedupe.Scorer
}

func NewService(posts database.PostRepository, channels database.ChannelRepository, scorer *dedupe.Scorer) *Service {
	return &Service{posts: posts, channels: channels, scorer: scorer}
}

// Approve moves a draft to APPROVED: an automatic slot is allocated unless
// the post is scheduled manually, the dupe score is computed, and the draft
// expiry is cleared. A post that already carries a scheduled time lands in
// SCHEDULED directly through the save invariant.
func (s *Service) Approve(ctx context.Context, postID primitive.ObjectID) (*models.Post, error) {
	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Status != models.StatusDraft {
		return nil, fmt.Errorf("cannot approve post %s in status %s", postID.Hex(), post.Status)
	}

	if err := s.AssignAutoSlot(ctx, post); err != nil {
		return nil, err
	}

	if score, err := s.scorer.Compute(ctx, post.Text); err != nil {
		// Scoring is advisory; approval proceeds without it.
		log.Printf("[Posting] Dupe scoring failed for post %s: %v", postID.Hex(), err)
		sentry.CaptureException(err)
	} else {
		post.DupeScore = &score
	}

	post.Status = models.StatusApproved
	post.ExpiresAt = nil
	if err := s.posts.SavePost(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// AssignAutoSlot fills in the next conflict-free slot of the post's channel.
// Manually scheduled posts and posts that already hold a slot are left alone.
func (s *Service) AssignAutoSlot(ctx context.Context, post *models.Post) error {
	if post.ScheduleMode == models.ScheduleManual || post.ScheduledAt != nil {
		return nil
	}
	channel, err := s.channels.GetChannel(ctx, post.ChannelID)
	if err != nil {
		return fmt.Errorf("loading channel for slot allocation: %w", err)
	}
	claimed, err := s.posts.ClaimedSlots(ctx, post.ChannelID)
	if err != nil {
		return fmt.Errorf("loading claimed slots: %w", err)
	}
	slot := scheduler.NextAutoSlot(channel, time.Now(), claimed)
	post.ScheduledAt = &slot
	return nil
}

// Reject marks the post rejected and releases its slot.
func (s *Service) Reject(ctx context.Context, postID primitive.ObjectID) error {
	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	post.Status = models.StatusRejected
	post.ScheduledAt = nil
	return s.posts.SavePost(ctx, post)
}

// RequestRewrite records a rewrite request in the post metadata.
func (s *Service) RequestRewrite(ctx context.Context, postID primitive.ObjectID, prompt string) error {
	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	MarkRewriteRequested(post, prompt, time.Now())
	return s.posts.SavePost(ctx, post)
}

// CompleteRewrite replaces the post text and closes the rewrite round-trip.
func (s *Service) CompleteRewrite(ctx context.Context, postID primitive.ObjectID, newText string) error {
	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	post.Text = newText
	MarkRewriteCompleted(post, time.Now())
	return s.posts.SavePost(ctx, post)
}
