// Package housekeeping clears expired drafts, prunes old published posts,
// purges the media cache and recovers posts stuck in the schedule.
package housekeeping

import (
	"context"
	"log"
	"time"

	"github.com/getsentry/sentry-go"

	"postline-bot/internal/cache"
	"postline-bot/internal/database"
	"postline-bot/internal/database/models"
)

// Sweep is the periodic maintenance pass. It runs before every publish poll.
type Sweep struct {
	posts       database.PostRepository
	attachments database.AttachmentRepository
	store       *cache.Store

	publishedRetention time.Duration
	staleGrace         time.Duration
}

func NewSweep(posts database.PostRepository, attachments database.AttachmentRepository,
	store *cache.Store, publishedRetention, staleGrace time.Duration) *Sweep {
	return &Sweep{
		posts:              posts,
		attachments:        attachments,
		store:              store,
		publishedRetention: publishedRetention,
		staleGrace:         staleGrace,
	}
}

// Run executes one sweep. Each step is independent; a failing step is logged
// and the rest still run.
func (s *Sweep) Run(ctx context.Context, now time.Time) {
	if deleted, err := s.posts.DeleteExpiredDrafts(ctx, now); err != nil {
		log.Printf("[Housekeeping] Deleting expired drafts failed: %v", err)
		sentry.CaptureException(err)
	} else if deleted > 0 {
		log.Printf("[Housekeeping] Deleted %d expired draft(s)", deleted)
	}

	cutoff := now.Add(-s.publishedRetention)
	if deleted, err := s.posts.DeletePublishedBefore(ctx, cutoff); err != nil {
		log.Printf("[Housekeeping] Pruning published posts failed: %v", err)
		sentry.CaptureException(err)
	} else if deleted > 0 {
		log.Printf("[Housekeeping] Pruned %d published post(s) older than %s", deleted, cutoff.Format(time.RFC3339))
	}

	s.purgeExpiredCache(ctx, now)
	s.revertStaleSchedules(ctx, now)
}

// purgeExpiredCache removes cached files past their TTL and clears the cache
// path so the next dispatch re-downloads.
func (s *Sweep) purgeExpiredCache(ctx context.Context, now time.Time) {
	expired, err := s.attachments.ExpiredCached(ctx, now)
	if err != nil {
		log.Printf("[Housekeeping] Listing expired cache entries failed: %v", err)
		sentry.CaptureException(err)
		return
	}
	for i := range expired {
		att := &expired[i]
		if err := s.store.Remove(att.CachePath); err != nil {
			log.Printf("[Housekeeping] Cannot remove cached file %s: %v", att.CachePath, err)
			continue
		}
		att.CachePath = ""
		att.ExpiresAt = nil
		if err := s.attachments.SaveAttachment(ctx, att); err != nil {
			log.Printf("[Housekeeping] Cannot clear cache path for attachment %s: %v", att.ID.Hex(), err)
			sentry.CaptureException(err)
		}
	}
	if len(expired) > 0 {
		log.Printf("[Housekeeping] Purged %d expired cache entr(ies)", len(expired))
	}
}

// revertStaleSchedules returns posts stuck past the grace window to draft so
// an editor can look at them; repeated publish failures land here too.
func (s *Sweep) revertStaleSchedules(ctx context.Context, now time.Time) {
	stale, err := s.posts.StaleScheduled(ctx, now.Add(-s.staleGrace))
	if err != nil {
		log.Printf("[Housekeeping] Listing stale schedules failed: %v", err)
		sentry.CaptureException(err)
		return
	}
	for i := range stale {
		post := &stale[i]
		meta := &models.StaleScheduleMeta{
			RevertedAt:     now.UTC().Format(time.RFC3339),
			PreviousStatus: string(post.Status),
		}
		if post.ScheduledAt != nil {
			meta.ScheduledAt = post.ScheduledAt.UTC().Format(time.RFC3339)
		}
		post.Metadata.StaleSchedule = meta
		post.Status = models.StatusDraft
		post.ScheduledAt = nil

		if err := s.posts.SavePost(ctx, post); err != nil {
			log.Printf("[Housekeeping] Cannot revert stale post %s: %v", post.ID.Hex(), err)
			sentry.CaptureException(err)
			continue
		}
		log.Printf("[Housekeeping] Reverted stale post %s (%s) to draft", post.ID.Hex(), meta.PreviousStatus)
	}
}
