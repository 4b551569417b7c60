package media

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"postline-bot/internal/database/models"
)

// ErrUnresolved means no strategy in the chain produced an asset.
var ErrUnresolved = errors.New("media: no strategy resolved the descriptor")

// albumCacheLimit bounds how many resolved albums the chain remembers.
const albumCacheLimit = 128

// Resolution is a fetchable asset produced by a resolver strategy. Either
// DownloadURL or Content is set, never both.
type Resolution struct {
	DownloadURL string
	Content     []byte
	ContentType string
	Type        models.MediaType
	Strategy    string
}

// Strategy attempts to turn a descriptor into a resolution. Returning a nil
// resolution without an error means the strategy does not apply.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, d Descriptor) (*Resolution, error)
}

// Chain runs resolver strategies in order and returns the first asset
// produced. Telegram posts carrying several media units are resolved once;
// the remaining members are kept in a bounded album cache for the pipeline
// to expand.
type Chain struct {
	strategies []Strategy

	mu         sync.Mutex
	albums     map[string][]Resolution
	albumOrder []string
}

// ChainOptions configures the default strategy set.
type ChainOptions struct {
	ServiceURL     string
	ServiceTimeout time.Duration
	FetchTimeout   time.Duration
	UserAgent      string
}

// NewChain builds the standard strategy order: the built-in per-resolver
// strategies, then the resolver service when one is configured, then the
// generic URL fallbacks.
func NewChain(opts ChainOptions) *Chain {
	pages := &fetcher{
		client:    &http.Client{Timeout: opts.FetchTimeout},
		userAgent: opts.UserAgent,
	}
	chain := &Chain{albums: make(map[string][]Resolution)}

	chain.strategies = append(chain.strategies,
		&telegramStrategy{pages: pages, albums: chain},
		&twitterStrategy{pages: pages},
	)
	if opts.ServiceURL != "" {
		chain.strategies = append(chain.strategies, &serviceStrategy{
			baseURL: opts.ServiceURL,
			client:  &http.Client{Timeout: opts.ServiceTimeout},
		})
	}
	chain.strategies = append(chain.strategies,
		directAssetStrategy{},
		&htmlMetaStrategy{pages: pages},
	)
	return chain
}

// Resolve walks the chain and returns the first resolution. Strategies that
// do not apply are skipped silently; strategies that fail are logged and the
// chain moves on.
func (c *Chain) Resolve(ctx context.Context, d Descriptor) (*Resolution, error) {
	for _, strategy := range c.strategies {
		resolution, err := strategy.Resolve(ctx, d)
		if err != nil {
			log.Printf("[Media] Strategy %s failed for resolver=%q url=%q: %v",
				strategy.Name(), d.Resolver, d.SourceURL, err)
			continue
		}
		if resolution == nil {
			continue
		}
		resolution.Strategy = strategy.Name()
		if resolution.Type == "" {
			resolution.Type = d.Type
		}
		return resolution, nil
	}
	return nil, fmt.Errorf("%w (resolver=%q)", ErrUnresolved, d.Resolver)
}

// rememberAlbum stores the remaining members of a multi-media post under its
// permalink, evicting the oldest album once the cache is full.
func (c *Chain) rememberAlbum(key string, members []Resolution) {
	if key == "" || len(members) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.albums[key]; !exists {
		if len(c.albumOrder) >= albumCacheLimit {
			oldest := c.albumOrder[0]
			c.albumOrder = c.albumOrder[1:]
			delete(c.albums, oldest)
		}
		c.albumOrder = append(c.albumOrder, key)
	}
	c.albums[key] = members
}

// ConsumeAlbum removes and returns the cached remaining album members for a
// permalink, if any.
func (c *Chain) ConsumeAlbum(key string) []Resolution {
	c.mu.Lock()
	defer c.mu.Unlock()
	members, ok := c.albums[key]
	if !ok {
		return nil
	}
	delete(c.albums, key)
	for i, cached := range c.albumOrder {
		if cached == key {
			c.albumOrder = append(c.albumOrder[:i], c.albumOrder[i+1:]...)
			break
		}
	}
	return members
}

// directAssetStrategy accepts URLs that already point at a media file, from
// the descriptor itself or from a URL-shaped reference entry.
type directAssetStrategy struct{}

func (directAssetStrategy) Name() string { return "direct" }

func (directAssetStrategy) Resolve(_ context.Context, d Descriptor) (*Resolution, error) {
	asset := d.fallbackURL()
	if asset == "" || !looksLikeAsset(asset) {
		return nil, nil
	}
	return &Resolution{DownloadURL: asset}, nil
}

// htmlMetaStrategy fetches the source page and pulls the asset out of its
// Open Graph meta tags. Last resort for URLs that are plain web pages.
type htmlMetaStrategy struct {
	pages *fetcher
}

func (*htmlMetaStrategy) Name() string { return "html-meta" }

func (s *htmlMetaStrategy) Resolve(ctx context.Context, d Descriptor) (*Resolution, error) {
	pageURL := d.fallbackURL()
	if pageURL == "" {
		return nil, nil
	}
	doc, err := s.pages.document(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	asset := metaAssetURL(doc, d.Type)
	if asset == "" {
		return nil, fmt.Errorf("no usable meta asset on %s", pageURL)
	}
	mediaType := d.Type
	if mediaType == models.MediaVideo && !looksLikeVideoURL(asset) {
		// The page only exposed a still image; treat it as a photo.
		mediaType = models.MediaPhoto
	}
	return &Resolution{DownloadURL: asset, Type: mediaType}, nil
}

// twitterStrategy resolves tweets without an API key: the permalink page's
// Open Graph tags first, then the twstalker mirror ranked by twimg CDN URL.
type twitterStrategy struct {
	pages *fetcher
}

func (*twitterStrategy) Name() string { return "twitter" }

func (s *twitterStrategy) Resolve(ctx context.Context, d Descriptor) (*Resolution, error) {
	if d.Resolver != "twitter" {
		return nil, nil
	}

	permalink := d.fallbackURL()
	if permalink != "" && isTwitterPage(permalink) {
		if doc, err := s.pages.document(ctx, permalink); err == nil {
			if asset := metaAssetURL(doc, d.Type); asset != "" {
				mediaType := d.Type
				if mediaType == models.MediaVideo && !looksLikeVideoURL(asset) {
					mediaType = models.MediaPhoto
				}
				return &Resolution{DownloadURL: asset, Type: mediaType}, nil
			}
		} else {
			log.Printf("[Media] Tweet page fetch failed for %s: %v", permalink, err)
		}
	}

	username, tweetID := tweetCoordinates(d, permalink)
	if username == "" || tweetID == "" {
		return nil, nil
	}
	mirror := fmt.Sprintf("https://www.twstalker.com/%s/status/%s", username, tweetID)
	body, err := s.pages.text(ctx, mirror)
	if err != nil {
		return nil, err
	}
	asset := bestTwimgAsset(body, d.Type)
	if asset == "" && d.Type == models.MediaVideo {
		// Some tweets labelled video only carry stills on the mirror.
		asset = bestTwimgAsset(body, models.MediaPhoto)
		if asset != "" {
			return &Resolution{DownloadURL: asset, Type: models.MediaPhoto}, nil
		}
	}
	if asset == "" {
		return nil, fmt.Errorf("no twimg asset for tweet %s", tweetID)
	}
	return &Resolution{DownloadURL: asset}, nil
}

// isTwitterPage reports whether the URL points at twitter.com or x.com.
func isTwitterPage(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	return host == "twitter.com" || strings.HasSuffix(host, ".twitter.com") ||
		host == "x.com" || strings.HasSuffix(host, ".x.com")
}

// tweetCoordinates derives the author and tweet ID from the reference, then
// from the permalink path ("/{username}/status/{id}").
func tweetCoordinates(d Descriptor, permalink string) (username, tweetID string) {
	for _, key := range []string{"author_username", "user_screen_name", "username", "screen_name"} {
		if value := strings.TrimSpace(d.Reference[key]); value != "" {
			username = value
			break
		}
	}
	for _, key := range []string{"tweet_id", "id", "status_id"} {
		if value := strings.TrimSpace(d.Reference[key]); value != "" {
			tweetID = value
			break
		}
	}
	if permalink != "" && (username == "" || tweetID == "") {
		if parsed, err := url.Parse(permalink); err == nil {
			segments := strings.FieldsFunc(parsed.Path, func(r rune) bool { return r == '/' })
			if username == "" && len(segments) >= 2 {
				username = segments[0]
			}
			if tweetID == "" && len(segments) > 0 {
				tweetID = segments[len(segments)-1]
			}
		}
	}
	return username, tweetID
}

func looksLikeVideoURL(rawURL string) bool {
	trimmed := rawURL
	if idx := strings.IndexByte(trimmed, '?'); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	trimmed = strings.ToLower(trimmed)
	for _, ext := range []string{".mp4", ".mov", ".webm", ".mkv", ".avi", ".m3u8"} {
		if strings.HasSuffix(trimmed, ext) {
			return true
		}
	}
	return false
}
