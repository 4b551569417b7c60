package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postline-bot/internal/database/models"
)

func testFetcher(timeout time.Duration) *fetcher {
	return &fetcher{client: &http.Client{Timeout: timeout}, userAgent: "test-agent"}
}

func TestLooksLikeAsset(t *testing.T) {
	assert.True(t, looksLikeAsset("https://cdn.example.com/a.jpg"))
	assert.True(t, looksLikeAsset("https://cdn.example.com/v.MP4?tag=1"))
	assert.False(t, looksLikeAsset("https://example.com/article"))
	assert.False(t, looksLikeAsset("https://example.com/page.html"))
}

func TestDirectAssetStrategy(t *testing.T) {
	strategy := directAssetStrategy{}

	resolution, err := strategy.Resolve(context.Background(), Descriptor{
		SourceURL: "https://cdn.example.com/a.png",
	})
	require.NoError(t, err)
	require.NotNil(t, resolution)
	assert.Equal(t, "https://cdn.example.com/a.png", resolution.DownloadURL)

	resolution, err = strategy.Resolve(context.Background(), Descriptor{
		SourceURL: "https://example.com/story",
	})
	require.NoError(t, err)
	assert.Nil(t, resolution)
}

func TestServiceStrategyDownloadURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/resolve/twitter", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"download_url": "https://cdn.example.com/t.jpg"}`)
	}))
	defer server.Close()

	strategy := &serviceStrategy{baseURL: server.URL, client: server.Client()}
	resolution, err := strategy.Resolve(context.Background(), Descriptor{
		Type:      models.MediaPhoto,
		Resolver:  "twitter",
		Reference: map[string]string{"tweet_id": "42"},
	})
	require.NoError(t, err)
	require.NotNil(t, resolution)
	assert.Equal(t, "https://cdn.example.com/t.jpg", resolution.DownloadURL)
}

func TestServiceStrategyInlineContent(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("inline-bytes"))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"content_base64": %q, "content_type": "image/jpeg"}`, encoded)
	}))
	defer server.Close()

	strategy := &serviceStrategy{baseURL: server.URL, client: server.Client()}
	resolution, err := strategy.Resolve(context.Background(), Descriptor{Resolver: "instagram"})
	require.NoError(t, err)
	require.NotNil(t, resolution)
	assert.Equal(t, []byte("inline-bytes"), resolution.Content)
	assert.Equal(t, "image/jpeg", resolution.ContentType)
}

func TestServiceStrategyRawBinary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("raw-binary"))
	}))
	defer server.Close()

	strategy := &serviceStrategy{baseURL: server.URL, client: server.Client()}
	resolution, err := strategy.Resolve(context.Background(), Descriptor{Resolver: "instagram"})
	require.NoError(t, err)
	require.NotNil(t, resolution)
	assert.Equal(t, []byte("raw-binary"), resolution.Content)
}

func TestServiceStrategyReportedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"error": "no such tweet"}`)
	}))
	defer server.Close()

	strategy := &serviceStrategy{baseURL: server.URL, client: server.Client()}
	_, err := strategy.Resolve(context.Background(), Descriptor{Resolver: "twitter"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such tweet")
}

func TestServiceStrategySkipsWithoutResolver(t *testing.T) {
	strategy := &serviceStrategy{baseURL: "http://unused", client: http.DefaultClient}
	resolution, err := strategy.Resolve(context.Background(), Descriptor{
		SourceURL: "https://example.com/a.jpg",
	})
	require.NoError(t, err)
	assert.Nil(t, resolution)
}

// A failing resolver service must not block resolution: the chain falls
// through to the direct asset URL.
func TestChainFallsBackWhenServiceFails(t *testing.T) {
	service := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer service.Close()

	chain := NewChain(ChainOptions{
		ServiceURL:     service.URL,
		ServiceTimeout: time.Second,
		FetchTimeout:   time.Second,
	})
	resolution, err := chain.Resolve(context.Background(), Descriptor{
		Type:      models.MediaPhoto,
		Resolver:  "instagram",
		SourceURL: "https://cdn.example.com/fallback.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/fallback.jpg", resolution.DownloadURL)
	assert.Equal(t, "direct", resolution.Strategy)
}

// A reference-borne page URL feeds the generic fallbacks: without a resolver
// service, the permalink's Open Graph image resolves the entry.
func TestChainResolvesReferencePermalink(t *testing.T) {
	page := `<html><head>
		<meta property="og:image" content="https://cdn.example.com/social.jpg"/>
	</head></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, page)
	}))
	defer server.Close()

	chain := NewChain(ChainOptions{FetchTimeout: time.Second})
	resolution, err := chain.Resolve(context.Background(), Descriptor{
		Type:      models.MediaPhoto,
		Resolver:  "social",
		Reference: map[string]string{"permalink": server.URL + "/post/1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/social.jpg", resolution.DownloadURL)
	assert.Equal(t, "html-meta", resolution.Strategy)
}

func TestDirectAssetStrategyReferenceURL(t *testing.T) {
	resolution, err := directAssetStrategy{}.Resolve(context.Background(), Descriptor{
		Reference: map[string]string{"download_url": "https://cdn.example.com/clip.mp4"},
	})
	require.NoError(t, err)
	require.NotNil(t, resolution)
	assert.Equal(t, "https://cdn.example.com/clip.mp4", resolution.DownloadURL)
}

// With a resolver service configured, t.me permalinks still go through the
// built-in embed scraper; the service only sees what no built-in handles.
func TestChainTriesBuiltinsBeforeService(t *testing.T) {
	serviceHits := 0
	service := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		serviceHits++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"download_url": "https://cdn.example.com/service.jpg"}`)
	}))
	defer service.Close()
	embed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, embedAlbumPage)
	}))
	defer embed.Close()

	chain := NewChain(ChainOptions{
		ServiceURL:     service.URL,
		ServiceTimeout: time.Second,
		FetchTimeout:   time.Second,
	})
	resolution, err := chain.Resolve(context.Background(), Descriptor{
		Type:      models.MediaPhoto,
		Resolver:  "telegram",
		Reference: map[string]string{"tg_post_url": embed.URL + "/t.me/feedchan/3"},
	})
	require.NoError(t, err)
	assert.Equal(t, "telegram", resolution.Strategy)
	assert.Equal(t, "https://cdn.telegram.example/file/one.jpg", resolution.DownloadURL)
	assert.Zero(t, serviceHits)
}

func TestIsTwitterPage(t *testing.T) {
	assert.True(t, isTwitterPage("https://twitter.com/someuser/status/42"))
	assert.True(t, isTwitterPage("https://mobile.twitter.com/someuser/status/42"))
	assert.True(t, isTwitterPage("https://x.com/someuser/status/42"))
	assert.False(t, isTwitterPage("https://example.com/someuser/status/42"))
}

func TestTweetCoordinatesFromReference(t *testing.T) {
	username, tweetID := tweetCoordinates(Descriptor{Reference: map[string]string{
		"author_username": "someuser",
		"tweet_id":        "42",
	}}, "")
	assert.Equal(t, "someuser", username)
	assert.Equal(t, "42", tweetID)
}

func TestTweetCoordinatesFromPermalinkPath(t *testing.T) {
	username, tweetID := tweetCoordinates(Descriptor{},
		"https://x.com/someuser/status/42?s=20")
	assert.Equal(t, "someuser", username)
	assert.Equal(t, "42", tweetID)
}

// The mirror URL carries the author segment; without one and without a
// permalink to derive it from, the strategy does not apply.
func TestTwitterStrategyNeedsAuthorForMirror(t *testing.T) {
	strategy := &twitterStrategy{pages: testFetcher(time.Second)}
	resolution, err := strategy.Resolve(context.Background(), Descriptor{
		Type:      models.MediaPhoto,
		Resolver:  "twitter",
		Reference: map[string]string{"tweet_id": "42"},
	})
	require.NoError(t, err)
	assert.Nil(t, resolution)
}

func TestChainExhaustedReturnsUnresolved(t *testing.T) {
	chain := NewChain(ChainOptions{FetchTimeout: time.Second})
	_, err := chain.Resolve(context.Background(), Descriptor{
		Type:      models.MediaPhoto,
		Reference: map[string]string{"record_id": "9"},
	})
	assert.ErrorIs(t, err, ErrUnresolved)
}

func TestHTMLMetaStrategy(t *testing.T) {
	page := `<html><head>
		<meta property="og:image" content="https://cdn.example.com/og.jpg"/>
	</head><body></body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		fmt.Fprint(w, page)
	}))
	defer server.Close()

	strategy := &htmlMetaStrategy{pages: testFetcher(time.Second)}
	resolution, err := strategy.Resolve(context.Background(), Descriptor{
		Type:      models.MediaPhoto,
		SourceURL: server.URL + "/article",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/og.jpg", resolution.DownloadURL)
}

// A video descriptor pointing at a page that only exposes a still image is
// downgraded to a photo instead of failing.
func TestHTMLMetaStrategyVideoFallsBackToImage(t *testing.T) {
	page := `<html><head>
		<meta property="og:image" content="https://cdn.example.com/still.jpg"/>
	</head></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, page)
	}))
	defer server.Close()

	strategy := &htmlMetaStrategy{pages: testFetcher(time.Second)}
	resolution, err := strategy.Resolve(context.Background(), Descriptor{
		Type:      models.MediaVideo,
		SourceURL: server.URL + "/clip",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/still.jpg", resolution.DownloadURL)
	assert.Equal(t, models.MediaPhoto, resolution.Type)
}

func TestBestTwimgPhotoRanking(t *testing.T) {
	body := `
		https://pbs.twimg.com/profile_images/1/avatar.jpg?name=orig
		https://pbs.twimg.com/media/abc.jpg?name=small
		https://pbs.twimg.com/media/abc.jpg?name=orig
		https://pbs.twimg.com/media/abc.jpg?name=large
	`
	assert.Equal(t, "https://pbs.twimg.com/media/abc.jpg?name=orig",
		bestTwimgAsset(body, models.MediaPhoto))
}

func TestBestTwimgVideoRanking(t *testing.T) {
	body := `
		https://video.twimg.com/ext_tw_video_thumb/1/img/t.jpg
		https://video.twimg.com/ext_tw_video/1/pu/vid/480x852/low.mp4
		https://video.twimg.com/ext_tw_video/1/pu/vid/720x1280/high.mp4
	`
	assert.Equal(t, "https://video.twimg.com/ext_tw_video/1/pu/vid/720x1280/high.mp4",
		bestTwimgAsset(body, models.MediaVideo))
}

func TestBestTwimgAssetEmptyBody(t *testing.T) {
	assert.Empty(t, bestTwimgAsset("no cdn links here", models.MediaPhoto))
}

func TestAlbumCacheConsumeOnce(t *testing.T) {
	chain := &Chain{albums: make(map[string][]Resolution)}
	chain.rememberAlbum("https://t.me/chan/1", []Resolution{
		{DownloadURL: "https://cdn.example.com/1.jpg", Type: models.MediaPhoto},
		{DownloadURL: "https://cdn.example.com/2.jpg", Type: models.MediaPhoto},
	})

	members := chain.ConsumeAlbum("https://t.me/chan/1")
	assert.Len(t, members, 2)
	assert.Empty(t, chain.ConsumeAlbum("https://t.me/chan/1"))
}

func TestAlbumCacheEvictsOldest(t *testing.T) {
	chain := &Chain{albums: make(map[string][]Resolution)}
	for i := 0; i < albumCacheLimit+10; i++ {
		key := fmt.Sprintf("https://t.me/chan/%d", i)
		chain.rememberAlbum(key, []Resolution{{DownloadURL: key}})
	}

	assert.Len(t, chain.albums, albumCacheLimit)
	assert.Empty(t, chain.ConsumeAlbum("https://t.me/chan/0"))
	assert.NotEmpty(t, chain.ConsumeAlbum(fmt.Sprintf("https://t.me/chan/%d", albumCacheLimit+9)))
}
