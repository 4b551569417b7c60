package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"postline-bot/internal/database/models"
)

// assetExtensions are file extensions that mark a URL as a directly
// downloadable asset rather than an HTML page.
var assetExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {},
	".mp4": {}, ".mov": {}, ".webm": {}, ".pdf": {},
	".mkv": {}, ".avi": {},
}

var twimgPattern = regexp.MustCompile(`https://[\w.-]*twimg\.com/[^\s"'<>\\]+`)

var videoDimsPattern = regexp.MustCompile(`/(\d+)x(\d+)/`)

// looksLikeAsset reports whether the URL path ends in a known media extension.
func looksLikeAsset(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(parsed.Path))
	_, ok := assetExtensions[ext]
	return ok
}

// fetcher retrieves HTML pages with a browser-like user agent. Some hosts
// serve empty embeds to unknown clients.
type fetcher struct {
	client    *http.Client
	userAgent string
}

func (f *fetcher) document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected HTTP status %d for %s", resp.StatusCode, pageURL)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

func (f *fetcher) text(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected HTTP status %d for %s", resp.StatusCode, pageURL)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// metaAssetURL extracts the best Open Graph asset URL for the wanted media
// type from a page's meta tags. Video tags are consulted first for video
// descriptors; both types fall back to og:image.
func metaAssetURL(doc *goquery.Document, mediaType models.MediaType) string {
	videoProps := []string{"og:video:url", "og:video:secure_url", "og:video", "twitter:player:stream"}
	imageProps := []string{"og:image", "og:image:url", "og:image:secure_url", "twitter:image"}

	lookup := func(props []string) string {
		for _, prop := range props {
			selector := fmt.Sprintf(`meta[property=%q], meta[name=%q]`, prop, prop)
			if content, ok := doc.Find(selector).First().Attr("content"); ok {
				if trimmed := strings.TrimSpace(content); trimmed != "" {
					return trimmed
				}
			}
		}
		return ""
	}

	if mediaType == models.MediaVideo {
		if found := lookup(videoProps); found != "" {
			return found
		}
	}
	return lookup(imageProps)
}

// bestTwimgAsset scans a page body for twimg.com URLs and returns the highest
// ranked one for the wanted media type, or "" when none qualify.
func bestTwimgAsset(body string, mediaType models.MediaType) string {
	candidates := twimgPattern.FindAllString(body, -1)
	if len(candidates) == 0 {
		return ""
	}
	if mediaType == models.MediaVideo {
		return bestTwimgVideo(candidates)
	}
	return bestTwimgPhoto(candidates)
}

// bestTwimgPhoto prefers larger size variants, identified by the name query
// parameter. Avatar and UI imagery is excluded.
func bestTwimgPhoto(candidates []string) string {
	sizeRank := map[string]int{"orig": 5, "large": 4, "medium": 3, "small": 2, "thumb": 1}
	best, bestRank := "", 0
	for _, candidate := range candidates {
		if strings.Contains(candidate, "profile_images") || strings.Contains(candidate, "semantic_core_img") {
			continue
		}
		parsed, err := url.Parse(candidate)
		if err != nil {
			continue
		}
		rank := 2
		if named := parsed.Query().Get("name"); named != "" {
			if r, ok := sizeRank[named]; ok {
				rank = r
			}
		}
		if rank > bestRank {
			best, bestRank = candidate, rank
		}
	}
	return best
}

// bestTwimgVideo ranks video variants by pixel area parsed from the WxH path
// segment, skipping thumbnail imagery.
func bestTwimgVideo(candidates []string) string {
	best, bestArea := "", -1
	for _, candidate := range candidates {
		if strings.Contains(candidate, "thumb") || strings.Contains(candidate, "/img/") {
			continue
		}
		area := 0
		if dims := videoDimsPattern.FindStringSubmatch(candidate); dims != nil {
			w, _ := strconv.Atoi(dims[1])
			h, _ := strconv.Atoi(dims[2])
			area = w * h
		}
		if area > bestArea {
			best, bestArea = candidate, area
		}
	}
	return best
}
