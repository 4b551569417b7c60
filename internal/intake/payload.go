// Package intake is the boundary to the external generation service: it
// parses generated payloads and turns them into drafts with attached media.
package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"postline-bot/internal/database"
	"postline-bot/internal/database/models"
	"postline-bot/internal/media"
)

// Payload is one parsed generation result.
type Payload struct {
	Text    string
	Media   any
	Sources []models.ArticleSource
}

// ParsePayload decodes a generation service response. The service sometimes
// wraps the JSON in a markdown code fence; that wrapper is stripped first.
func ParsePayload(raw string) (*Payload, error) {
	stripped := stripCodeFence(raw)
	if stripped == "" {
		return nil, fmt.Errorf("empty payload")
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(stripped), &decoded); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}

	payload := &Payload{}

	// "post" is an object carrying the text and optionally its sources; a
	// bare string and the legacy top-level keys are accepted too.
	var postEntry map[string]any
	switch v := decoded["post"].(type) {
	case map[string]any:
		postEntry = v
		if text, ok := v["text"].(string); ok {
			payload.Text = strings.TrimSpace(text)
		}
	case string:
		payload.Text = strings.TrimSpace(v)
	}
	if payload.Text == "" {
		for _, key := range []string{"post_text", "text", "content"} {
			if text, ok := decoded[key].(string); ok && strings.TrimSpace(text) != "" {
				payload.Text = strings.TrimSpace(text)
				break
			}
		}
	}

	payload.Sources = parseSources(decoded, postEntry)

	for _, key := range []string{"media", "attachments"} {
		if rawMedia, ok := decoded[key]; ok && rawMedia != nil {
			payload.Media = rawMedia
			break
		}
	}

	if payload.Text == "" && payload.Media == nil {
		return nil, fmt.Errorf("payload carries neither text nor media")
	}
	return payload, nil
}

// stripCodeFence removes a surrounding markdown fence (```json ... ```).
func stripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		// Drop the language tag line.
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// parseSources normalizes the article source list: bare URL strings or
// {url, label} objects, deduplicated by URL. Sources live at the top level
// or inside the post object; a single entry is accepted without a list.
func parseSources(decoded, post map[string]any) []models.ArticleSource {
	var rawSources any
	for _, scope := range []map[string]any{decoded, post} {
		if scope == nil {
			continue
		}
		for _, key := range []string{"source", "sources", "articles", "source_articles"} {
			if value, ok := scope[key]; ok && value != nil {
				rawSources = value
				break
			}
		}
		if rawSources != nil {
			break
		}
	}
	if rawSources == nil {
		return nil
	}
	items, ok := rawSources.([]any)
	if !ok {
		items = []any{rawSources}
	}

	seen := make(map[string]struct{}, len(items))
	sources := make([]models.ArticleSource, 0, len(items))
	for _, item := range items {
		var source models.ArticleSource
		switch v := item.(type) {
		case string:
			source.URL = strings.TrimSpace(v)
		case map[string]any:
			for _, urlKey := range []string{"url", "link", "source", "href"} {
				if u, ok := v[urlKey].(string); ok && strings.TrimSpace(u) != "" {
					source.URL = strings.TrimSpace(u)
					break
				}
			}
			for _, labelKey := range []string{"label", "title", "name"} {
				if label, ok := v[labelKey].(string); ok && strings.TrimSpace(label) != "" {
					source.Label = strings.TrimSpace(label)
					break
				}
			}
		}
		if !strings.HasPrefix(source.URL, "http://") && !strings.HasPrefix(source.URL, "https://") {
			continue
		}
		if _, dup := seen[source.URL]; dup {
			continue
		}
		seen[source.URL] = struct{}{}
		sources = append(sources, source)
	}
	return sources
}

// Intake creates drafts from parsed payloads.
type Intake struct {
	posts    database.PostRepository
	channels database.ChannelRepository
	pipeline *media.Pipeline
}

func NewIntake(posts database.PostRepository, channels database.ChannelRepository, pipeline *media.Pipeline) *Intake {
	return &Intake{posts: posts, channels: channels, pipeline: pipeline}
}

// CreateDraft stores a new draft with the channel's TTL and runs the media
// pipeline over the payload's descriptors. A failing media attach does not
// discard the draft; the audit records what happened.
func (i *Intake) CreateDraft(ctx context.Context, channelID primitive.ObjectID, payload *Payload) (*models.Post, error) {
	channel, err := i.channels.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	expires := now.Add(channel.DraftTTL())
	post := &models.Post{
		ChannelID:    channelID,
		Text:         payload.Text,
		Status:       models.StatusDraft,
		ScheduleMode: models.ScheduleAuto,
		Origin:       "generated",
		ExpiresAt:    &expires,
		CreatedAt:    now,
	}
	if len(payload.Sources) > 0 {
		post.Metadata.Article = &models.ArticleMeta{Sources: payload.Sources}
	}

	if err := i.posts.CreatePost(ctx, post); err != nil {
		return nil, fmt.Errorf("creating draft: %w", err)
	}

	if payload.Media != nil {
		if err := i.pipeline.Attach(ctx, post, channel, payload.Media); err != nil {
			log.Printf("[Intake] Media attach failed for draft %s: %v", post.ID.Hex(), err)
		}
	}
	return post, nil
}

// MissingDraftCounts reports how many drafts each channel still needs to
// reach its target, keyed by channel ID. Channels at or above target are
// omitted.
func (i *Intake) MissingDraftCounts(ctx context.Context) (map[primitive.ObjectID]int, error) {
	channels, err := i.channels.ListChannels(ctx)
	if err != nil {
		return nil, err
	}
	missing := make(map[primitive.ObjectID]int)
	for _, channel := range channels {
		if channel.DraftTargetCount <= 0 {
			continue
		}
		count, err := i.posts.CountDrafts(ctx, channel.ID)
		if err != nil {
			return nil, fmt.Errorf("counting drafts for channel %s: %w", channel.ID.Hex(), err)
		}
		if deficit := channel.DraftTargetCount - int(count); deficit > 0 {
			missing[channel.ID] = deficit
		}
	}
	return missing, nil
}
