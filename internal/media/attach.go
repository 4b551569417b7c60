package media

import (
	"context"
	"fmt"
	"log"
	"time"

	"postline-bot/internal/cache"
	"postline-bot/internal/database"
	"postline-bot/internal/database/models"
)

// Pipeline attaches resolved, cached media to posts. Attach replaces the
// post's attachment set wholesale, so re-running it after a payload update is
// safe.
type Pipeline struct {
	chain       *Chain
	store       *cache.Store
	posts       database.PostRepository
	attachments database.AttachmentRepository
}

func NewPipeline(chain *Chain, store *cache.Store, posts database.PostRepository, attachments database.AttachmentRepository) *Pipeline {
	return &Pipeline{
		chain:       chain,
		store:       store,
		posts:       posts,
		attachments: attachments,
	}
}

// Attach resolves the raw media payload, caches every asset and persists the
// resulting attachments in descriptor order. Failures are recorded in the
// post's media audit and never abort the rest of the list. The post's
// metadata is saved before returning.
func (p *Pipeline) Attach(ctx context.Context, post *models.Post, channel *models.Channel, rawMedia any) error {
	descriptors := ParseDescriptors(rawMedia)

	if err := p.attachments.DeleteForPost(ctx, post.ID); err != nil {
		return fmt.Errorf("clearing previous attachments: %w", err)
	}

	// A telegram post referenced by a single descriptor stands for the whole
	// album; the same permalink listed several times means the author already
	// enumerated the members.
	permalinkCounts := map[string]int{}
	for _, d := range descriptors {
		if d.Resolver == "telegram" && d.Reference["tg_post_url"] != "" {
			permalinkCounts[d.Reference["tg_post_url"]]++
		}
	}

	audits := make([]models.MediaAudit, 0, len(descriptors))
	order := 0

	for _, d := range descriptors {
		audit := models.MediaAudit{
			Type:      string(d.Type),
			Resolver:  d.Resolver,
			Caption:   d.Caption,
			PostedAt:  d.PostedAt,
			Source:    d.SourceLabel,
			Reference: d.Reference,
			Status:    models.AuditPending,
		}

		resolution, err := p.resolve(ctx, d)
		if err != nil {
			audit.Status = models.AuditUnresolved
			audit.Error = err.Error()
			audits = append(audits, audit)
			log.Printf("[Media] Post %s: descriptor %d unresolved: %v", post.ID.Hex(), order, err)
			continue
		}

		att, err := p.storeResolution(ctx, post, channel, d, *resolution, order)
		if err != nil {
			audit.Status = models.AuditError
			audit.Error = err.Error()
			audits = append(audits, audit)
			log.Printf("[Media] Post %s: descriptor %d not cached: %v", post.ID.Hex(), order, err)
			continue
		}

		audit.Type = string(att.Type)
		audit.Status = models.AuditCached
		audits = append(audits, audit)
		order++

		if d.Resolver == "telegram" && permalinkCounts[d.Reference["tg_post_url"]] == 1 {
			order = p.expandAlbum(ctx, post, channel, d, order, &audits)
		}
	}

	post.Metadata.Media = audits
	if err := p.posts.SavePost(ctx, post); err != nil {
		return fmt.Errorf("saving media audit: %w", err)
	}
	return nil
}

// resolve uses a descriptor that already names a direct source URL verbatim;
// everything else goes through the strategy chain.
func (p *Pipeline) resolve(ctx context.Context, d Descriptor) (*Resolution, error) {
	if d.SourceURL != "" {
		return &Resolution{DownloadURL: d.SourceURL, Type: d.Type, Strategy: "direct"}, nil
	}
	return p.chain.Resolve(ctx, d)
}

// expandAlbum attaches the remaining members of a telegram album, up to the
// attachment cap, and returns the next order index.
func (p *Pipeline) expandAlbum(ctx context.Context, post *models.Post, channel *models.Channel, d Descriptor, order int, audits *[]models.MediaAudit) int {
	for _, member := range p.chain.ConsumeAlbum(d.Reference["tg_post_url"]) {
		if order >= MaxAttachments {
			log.Printf("[Media] Post %s: album %s truncated at the attachment cap",
				post.ID.Hex(), d.Reference["tg_post_url"])
			break
		}
		sibling := d
		sibling.Type = member.Type

		audit := models.MediaAudit{
			Type:      string(member.Type),
			Resolver:  d.Resolver,
			Reference: d.Reference,
			Status:    models.AuditPending,
			AutoAlbum: true,
		}
		att, err := p.storeResolution(ctx, post, channel, sibling, member, order)
		if err != nil {
			audit.Status = models.AuditError
			audit.Error = err.Error()
			*audits = append(*audits, audit)
			continue
		}
		audit.Type = string(att.Type)
		audit.Status = models.AuditCached
		*audits = append(*audits, audit)
		order++
	}
	return order
}

// storeResolution persists one attachment and makes sure its bytes are on
// disk. The attachment row is removed again when caching fails, so only
// dispatchable attachments survive.
func (p *Pipeline) storeResolution(ctx context.Context, post *models.Post, channel *models.Channel, d Descriptor, resolution Resolution, order int) (*models.MediaAttachment, error) {
	att := &models.MediaAttachment{
		PostID:     post.ID,
		Type:       resolution.Type,
		Order:      order,
		Resolver:   d.Resolver,
		Reference:  d.Reference,
		SourceURL:  resolution.DownloadURL,
		HasSpoiler: spoilerFor(d, channel, resolution.Type),
		CreatedAt:  time.Now().UTC(),
	}
	if err := p.attachments.CreateAttachment(ctx, att); err != nil {
		return nil, fmt.Errorf("creating attachment: %w", err)
	}

	if len(resolution.Content) > 0 {
		path := p.store.PersistResolved(resolution.Content, resolution.Type, resolution.ContentType)
		if path == "" {
			p.discard(ctx, att)
			return nil, fmt.Errorf("persisting resolver content failed")
		}
		att.CachePath = path
		expires := time.Now().UTC().Add(p.store.TTL())
		att.ExpiresAt = &expires
	} else if p.store.EnsureCached(ctx, att) == "" {
		p.discard(ctx, att)
		return nil, fmt.Errorf("caching %s failed", att.SourceURL)
	}

	if err := p.attachments.SaveAttachment(ctx, att); err != nil {
		p.discard(ctx, att)
		return nil, fmt.Errorf("saving attachment: %w", err)
	}
	return att, nil
}

func (p *Pipeline) discard(ctx context.Context, att *models.MediaAttachment) {
	if err := p.attachments.DeleteAttachment(ctx, att.ID); err != nil {
		log.Printf("[Media] Cannot delete failed attachment %s: %v", att.ID.Hex(), err)
	}
}

// spoilerFor applies the descriptor's explicit flag, falling back to the
// channel default for photos.
func spoilerFor(d Descriptor, channel *models.Channel, mediaType models.MediaType) bool {
	if d.HasSpoiler != nil {
		return *d.HasSpoiler
	}
	return channel != nil && channel.AutoSpoilerDefault && mediaType == models.MediaPhoto
}
