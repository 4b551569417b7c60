package posting

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"postline-bot/internal/cache"
	"postline-bot/internal/database"
	"postline-bot/internal/database/models"
	"postline-bot/internal/dedupe"
	"postline-bot/internal/telegram"
)

// captionLimit is Telegram's maximum media caption length.
const captionLimit = 1024

// MessageSender is the outbound surface the publisher needs.
type MessageSender interface {
	SendMessage(ctx context.Context, token, chat, text string) (*telego.Message, error)
	SendMediaGroup(ctx context.Context, token, chat string, media []telego.InputMedia) ([]telego.Message, error)
}

// Publisher dispatches claimed posts to their channel.
type Publisher struct {
	posts       database.PostRepository
	channels    database.ChannelRepository
	attachments database.AttachmentRepository
	store       *cache.Store
	sender      MessageSender
	scorer      *dedupe.Scorer
}

func NewPublisher(posts database.PostRepository, channels database.ChannelRepository,
	attachments database.AttachmentRepository, store *cache.Store,
	sender MessageSender, scorer *dedupe.Scorer) *Publisher {
	return &Publisher{
		posts:       posts,
		channels:    channels,
		attachments: attachments,
		store:       store,
		sender:      sender,
		scorer:      scorer,
	}
}

// Dispatch publishes one post. Posts already published are a no-op, so a
// duplicate claim delivery is harmless. Recoverable failures (no bot token,
// revoked channel access) roll the post back to its pre-claim status.
func (p *Publisher) Dispatch(ctx context.Context, postID primitive.ObjectID) error {
	post, err := p.posts.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	if post.Status == models.StatusPublished {
		log.Printf("[Publisher] Post %s already published, skipping", postID.Hex())
		return nil
	}

	channel, err := p.channels.GetChannel(ctx, post.ChannelID)
	if err != nil {
		return err
	}
	if channel.BotToken == "" {
		return p.rollback(ctx, post, "bot_not_configured",
			fmt.Errorf("%w (channel %s)", telegram.ErrNotConfigured, channel.ID.Hex()))
	}

	now := time.Now()
	markPublicationRequested(post, now)

	attachments, err := p.attachments.ListForPost(ctx, postID)
	if err != nil {
		return err
	}

	media, closers, err := p.buildMediaGroup(ctx, attachments, post.Text)
	defer closeAll(closers)
	if err != nil {
		return p.rollback(ctx, post, "media_unavailable", err)
	}

	var (
		groupMessageIDs []int64
		textMessageID   int64
	)

	if len(media) == 0 {
		if post.Text == "" {
			return p.rollback(ctx, post, "nothing_to_send",
				fmt.Errorf("post %s has neither text nor media", postID.Hex()))
		}
		sent, err := p.sender.SendMessage(ctx, channel.BotToken, channel.TGChannelID, post.Text)
		if err != nil {
			return p.sendFailure(ctx, post, err)
		}
		textMessageID = int64(sent.MessageID)
	} else {
		sent, err := p.sender.SendMediaGroup(ctx, channel.BotToken, channel.TGChannelID, media)
		if err != nil {
			return p.sendFailure(ctx, post, err)
		}
		for i, msg := range sent {
			groupMessageIDs = append(groupMessageIDs, int64(msg.MessageID))
			if i < len(attachments) {
				if fileID := issuedFileID(msg); fileID != "" {
					attachments[i].PlatformFileID = fileID
					if err := p.attachments.SaveAttachment(ctx, &attachments[i]); err != nil {
						log.Printf("[Publisher] Cannot save file ID for attachment %s: %v",
							attachments[i].ID.Hex(), err)
					}
				}
			}
		}
		if post.Text != "" && utf8.RuneCountInString(post.Text) > captionLimit {
			// The text did not fit as a caption; send it as its own message.
			textMsg, err := p.sender.SendMessage(ctx, channel.BotToken, channel.TGChannelID, post.Text)
			if err != nil {
				log.Printf("[Publisher] Media published but text message failed for post %s: %v",
					postID.Hex(), err)
				sentry.CaptureException(err)
			} else {
				textMessageID = int64(textMsg.MessageID)
			}
		}
	}

	completedAt := time.Now()
	post.Status = models.StatusPublished
	post.PublishedAt = &completedAt
	post.TextMessageID = textMessageID
	markPublicationCompleted(post, completedAt, groupMessageIDs, textMessageID)

	if score, err := p.scorer.Compute(ctx, post.Text); err != nil {
		log.Printf("[Publisher] Dupe rescoring failed for post %s: %v", postID.Hex(), err)
	} else {
		post.DupeScore = &score
	}

	if err := p.posts.SavePost(ctx, post); err != nil {
		return fmt.Errorf("saving published post %s: %w", postID.Hex(), err)
	}
	log.Printf("[Publisher] Post %s published to channel %s (%d media)",
		postID.Hex(), channel.TGChannelID, len(media))
	return nil
}

// sendFailure decides between a recoverable rollback (revoked access) and a
// hard failure that leaves the post for the stale sweep.
func (p *Publisher) sendFailure(ctx context.Context, post *models.Post, err error) error {
	reason := "send_failed"
	if telegram.IsForbidden(err) {
		reason = "bot_forbidden"
	}
	return p.rollback(ctx, post, reason, err)
}

// rollback returns a claimed post to the queue: SCHEDULED when it still holds
// a slot, APPROVED otherwise, with the failure recorded in the metadata.
func (p *Publisher) rollback(ctx context.Context, post *models.Post, reason string, cause error) error {
	if post.ScheduledAt != nil {
		post.Status = models.StatusScheduled
	} else {
		post.Status = models.StatusApproved
	}
	markPublicationFailed(post, time.Now(), reason)

	if err := p.posts.SavePost(ctx, post); err != nil {
		log.Printf("[Publisher] Rollback save failed for post %s: %v", post.ID.Hex(), err)
		sentry.CaptureException(err)
	}
	sentry.CaptureException(cause)
	return fmt.Errorf("post %s rolled back (%s): %w", post.ID.Hex(), reason, cause)
}

// buildMediaGroup assembles the input media list, reusing platform file IDs
// and uploading cached files otherwise. The caption rides on the first item
// when the text fits the caption limit.
func (p *Publisher) buildMediaGroup(ctx context.Context, attachments []models.MediaAttachment, text string) ([]telego.InputMedia, []*os.File, error) {
	var (
		media   []telego.InputMedia
		closers []*os.File
	)
	caption := ""
	if utf8.RuneCountInString(text) <= captionLimit {
		caption = text
	}

	for i := range attachments {
		att := &attachments[i]

		var input telego.InputFile
		if att.PlatformFileID != "" {
			input = telego.InputFile{FileID: att.PlatformFileID}
		} else {
			path := p.store.EnsureCached(ctx, att)
			if path == "" {
				return media, closers, fmt.Errorf("attachment %s has no cached media", att.ID.Hex())
			}
			file, err := os.Open(path)
			if err != nil {
				return media, closers, fmt.Errorf("opening cached media %s: %w", path, err)
			}
			closers = append(closers, file)
			input = tu.File(tu.NameReader(file, filepath.Base(path)))
		}

		itemCaption := ""
		if len(media) == 0 {
			itemCaption = caption
		}
		switch att.Type {
		case models.MediaVideo:
			media = append(media, &telego.InputMediaVideo{
				Type:       telego.MediaTypeVideo,
				Media:      input,
				Caption:    itemCaption,
				HasSpoiler: att.HasSpoiler,
			})
		case models.MediaDoc:
			media = append(media, &telego.InputMediaDocument{
				Type:    telego.MediaTypeDocument,
				Media:   input,
				Caption: itemCaption,
			})
		default:
			media = append(media, &telego.InputMediaPhoto{
				Type:       telego.MediaTypePhoto,
				Media:      input,
				Caption:    itemCaption,
				HasSpoiler: att.HasSpoiler,
			})
		}
	}
	return media, closers, nil
}

func closeAll(files []*os.File) {
	for _, file := range files {
		file.Close()
	}
}

// issuedFileID extracts the platform file ID Telegram assigned to the sent
// media, enabling upload-free re-dispatch.
func issuedFileID(msg telego.Message) string {
	switch {
	case len(msg.Photo) > 0:
		return msg.Photo[len(msg.Photo)-1].FileID
	case msg.Video != nil:
		return msg.Video.FileID
	case msg.Document != nil:
		return msg.Document.FileID
	case msg.Animation != nil:
		return msg.Animation.FileID
	}
	return ""
}
