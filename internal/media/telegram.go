package media

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"postline-bot/internal/database/models"
)

var backgroundImagePattern = regexp.MustCompile(`background-image:\s*url\('([^']+)'\)`)

// telegramStrategy resolves t.me permalinks through the public embed page,
// which exposes direct CDN URLs for every media unit of the post. When the
// post is an album, the members beyond the requested one are remembered on
// the chain for later expansion.
type telegramStrategy struct {
	pages  *fetcher
	albums *Chain
}

func (*telegramStrategy) Name() string { return "telegram" }

func (s *telegramStrategy) Resolve(ctx context.Context, d Descriptor) (*Resolution, error) {
	permalink := d.Reference["tg_post_url"]
	if d.Resolver != "telegram" || permalink == "" {
		return nil, nil
	}
	if !strings.Contains(permalink, "t.me/") {
		return nil, fmt.Errorf("unsupported telegram permalink %q", permalink)
	}

	doc, err := s.pages.document(ctx, embedURL(permalink))
	if err != nil {
		return nil, err
	}

	members := embedMedia(doc)
	if len(members) == 0 {
		return nil, fmt.Errorf("no media on embed page for %s", permalink)
	}

	picked := pickByType(members, d.Type)
	rest := make([]Resolution, 0, len(members)-1)
	for i := range members {
		if &members[i] != picked {
			rest = append(rest, members[i])
		}
	}
	s.albums.rememberAlbum(permalink, rest)

	return picked, nil
}

func embedURL(permalink string) string {
	separator := "?"
	if strings.Contains(permalink, "?") {
		separator = "&"
	}
	return permalink + separator + "embed=1&mode=tme"
}

// embedMedia collects every photo and video of the embedded post in display
// order.
func embedMedia(doc *goquery.Document) []Resolution {
	var members []Resolution

	doc.Find("a.tgme_widget_message_photo_wrap").Each(func(_ int, sel *goquery.Selection) {
		style, _ := sel.Attr("style")
		if match := backgroundImagePattern.FindStringSubmatch(style); match != nil {
			members = append(members, Resolution{
				DownloadURL: match[1],
				Type:        models.MediaPhoto,
			})
		}
	})
	doc.Find("video.tgme_widget_message_video").Each(func(_ int, sel *goquery.Selection) {
		if src, ok := sel.Attr("src"); ok && strings.TrimSpace(src) != "" {
			members = append(members, Resolution{
				DownloadURL: strings.TrimSpace(src),
				Type:        models.MediaVideo,
			})
		}
	})
	return members
}

// pickByType returns the first member matching the wanted type, falling back
// to the first member of the post.
func pickByType(members []Resolution, wanted models.MediaType) *Resolution {
	for i := range members {
		if members[i].Type == wanted {
			return &members[i]
		}
	}
	return &members[0]
}
