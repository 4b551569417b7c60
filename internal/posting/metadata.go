package posting

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"postline-bot/internal/database/models"
)

// Publication and rewrite outcome states recorded in post metadata.
const (
	OutcomeRequested = "requested"
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

func markPublicationRequested(post *models.Post, now time.Time) {
	post.Metadata.Publication = &models.PublicationMeta{
		Status:      OutcomeRequested,
		RequestedAt: now.UTC().Format(time.RFC3339),
	}
}

func markPublicationCompleted(post *models.Post, now time.Time, groupMessageIDs []int64, textMessageID int64) {
	meta := post.Metadata.Publication
	if meta == nil {
		meta = &models.PublicationMeta{}
		post.Metadata.Publication = meta
	}
	meta.Status = OutcomeCompleted
	meta.CompletedAt = now.UTC().Format(time.RFC3339)
	meta.GroupMessageIDs = groupMessageIDs
	meta.TextMessageID = textMessageID
	meta.FailureReason = ""
}

func markPublicationFailed(post *models.Post, now time.Time, reason string) {
	meta := post.Metadata.Publication
	if meta == nil {
		meta = &models.PublicationMeta{}
		post.Metadata.Publication = meta
	}
	meta.Status = OutcomeFailed
	meta.CompletedAt = now.UTC().Format(time.RFC3339)
	meta.FailureReason = reason
}

// MarkRewriteRequested records that an editor asked for a text rewrite.
func MarkRewriteRequested(post *models.Post, prompt string, now time.Time) {
	post.Metadata.Rewrite = &models.RewriteMeta{
		Status:      OutcomeRequested,
		Prompt:      prompt,
		RequestedAt: now.UTC().Format(time.RFC3339),
	}
}

// MarkRewriteCompleted records the rewritten text's checksum so a stale
// completion for an older text can be told apart.
func MarkRewriteCompleted(post *models.Post, now time.Time) {
	meta := post.Metadata.Rewrite
	if meta == nil {
		meta = &models.RewriteMeta{}
		post.Metadata.Rewrite = meta
	}
	sum := sha256.Sum256([]byte(post.Text))
	meta.Status = OutcomeCompleted
	meta.CompletedAt = now.UTC().Format(time.RFC3339)
	meta.TextChecksum = hex.EncodeToString(sum[:])
}
