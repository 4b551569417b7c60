package media

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postline-bot/internal/database/models"
)

const embedAlbumPage = `<html><body>
	<div class="tgme_widget_message">
		<a class="tgme_widget_message_photo_wrap" style="width:480px;background-image:url('https://cdn.telegram.example/file/one.jpg')"></a>
		<a class="tgme_widget_message_photo_wrap" style="background-image:url('https://cdn.telegram.example/file/two.jpg')"></a>
		<video class="tgme_widget_message_video" src="https://cdn.telegram.example/file/clip.mp4"></video>
	</div>
</body></html>`

func TestTelegramStrategyResolvesEmbedMedia(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("embed"))
		assert.Equal(t, "tme", r.URL.Query().Get("mode"))
		fmt.Fprint(w, embedAlbumPage)
	}))
	defer server.Close()

	chain := &Chain{albums: make(map[string][]Resolution)}
	strategy := &telegramStrategy{pages: testFetcher(time.Second), albums: chain}
	permalink := server.URL + "/t.me/feedchan/12"

	resolution, err := strategy.Resolve(context.Background(), Descriptor{
		Type:      models.MediaPhoto,
		Resolver:  "telegram",
		Reference: map[string]string{"tg_post_url": permalink},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.telegram.example/file/one.jpg", resolution.DownloadURL)
	assert.Equal(t, models.MediaPhoto, resolution.Type)

	rest := chain.ConsumeAlbum(permalink)
	require.Len(t, rest, 2)
	assert.Equal(t, "https://cdn.telegram.example/file/two.jpg", rest[0].DownloadURL)
	assert.Equal(t, models.MediaVideo, rest[1].Type)
}

func TestTelegramStrategyPicksRequestedType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, embedAlbumPage)
	}))
	defer server.Close()

	chain := &Chain{albums: make(map[string][]Resolution)}
	strategy := &telegramStrategy{pages: testFetcher(time.Second), albums: chain}
	permalink := server.URL + "/t.me/feedchan/13"

	resolution, err := strategy.Resolve(context.Background(), Descriptor{
		Type:      models.MediaVideo,
		Resolver:  "telegram",
		Reference: map[string]string{"tg_post_url": permalink},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.telegram.example/file/clip.mp4", resolution.DownloadURL)

	rest := chain.ConsumeAlbum(permalink)
	require.Len(t, rest, 2)
	for _, member := range rest {
		assert.Equal(t, models.MediaPhoto, member.Type)
	}
}

func TestTelegramStrategyEmptyEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html><body>Post not found</body></html>")
	}))
	defer server.Close()

	chain := &Chain{albums: make(map[string][]Resolution)}
	strategy := &telegramStrategy{pages: testFetcher(time.Second), albums: chain}

	_, err := strategy.Resolve(context.Background(), Descriptor{
		Type:      models.MediaPhoto,
		Resolver:  "telegram",
		Reference: map[string]string{"tg_post_url": server.URL + "/t.me/feedchan/404"},
	})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no media"))
}

func TestTelegramStrategySkipsOtherResolvers(t *testing.T) {
	strategy := &telegramStrategy{pages: testFetcher(time.Second), albums: &Chain{albums: map[string][]Resolution{}}}
	resolution, err := strategy.Resolve(context.Background(), Descriptor{
		Resolver:  "twitter",
		Reference: map[string]string{"tweet_id": "1"},
	})
	require.NoError(t, err)
	assert.Nil(t, resolution)
}
