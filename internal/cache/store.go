// Package cache persists media bytes under a local storage root with a TTL,
// correcting the attachment's declared type when the downloaded content
// disagrees with it.
package cache

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"postline-bot/internal/database/models"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Store is the local media cache. Cached files are keyed by attachment ID,
// resolver-provided bytes by a generated name, so concurrent writers never
// collide on a path.
type Store struct {
	root   string
	ttl    time.Duration
	client *http.Client
}

// NewStore creates a cache store rooted at the given directory.
func NewStore(root string, ttl, downloadTimeout time.Duration) *Store {
	return &Store{
		root: root,
		ttl:  ttl,
		client: &http.Client{
			Timeout: downloadTimeout,
		},
	}
}

// TTL returns how long cached files stay valid.
func (s *Store) TTL() time.Duration { return s.ttl }

// EnsureCached makes sure the attachment's media bytes are on local disk and
// returns the cache path. On any failure it returns the previous cache path
// unchanged (empty if none) — callers treat empty as failure. The attachment's
// CachePath, ExpiresAt and, when the downloaded content disagrees with the
// declared type, Type and reference audit are updated in place; persisting
// those fields is the caller's job.
func (s *Store) EnsureCached(ctx context.Context, att *models.MediaAttachment) string {
	if att.CachePath != "" {
		if _, err := os.Stat(att.CachePath); err == nil {
			return att.CachePath
		}
	}

	rawURL := strings.TrimSpace(att.SourceURL)
	if rawURL == "" {
		return att.CachePath
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		log.Printf("[Cache] Unparseable source URL %q for attachment %s: %v", rawURL, att.ID.Hex(), err)
		return att.CachePath
	}

	var (
		content     []byte
		contentType string
		ext         string
	)

	if parsed.Scheme == "http" || parsed.Scheme == "https" {
		content, contentType, err = s.fetch(ctx, rawURL)
		if err != nil {
			log.Printf("[Cache] Download failed for attachment %s (%s): %v", att.ID.Hex(), rawURL, err)
			return att.CachePath
		}
		ext = strings.ToLower(filepath.Ext(parsed.Path))
		if ext == "" {
			ext = extensionForContentType(contentType)
		}
	} else {
		src := rawURL
		if parsed.Scheme == "file" {
			if src, err = url.PathUnescape(parsed.Path); err != nil {
				src = parsed.Path
			}
		}
		if !filepath.IsAbs(src) {
			candidate := filepath.Join(s.root, src)
			if _, statErr := os.Stat(candidate); statErr == nil {
				src = candidate
			}
		}
		content, err = os.ReadFile(src)
		if err != nil {
			log.Printf("[Cache] Unreadable local file %q for attachment %s: %v", src, att.ID.Hex(), err)
			return att.CachePath
		}
		ext = strings.ToLower(filepath.Ext(src))
	}

	if len(content) == 0 {
		log.Printf("[Cache] Empty body for attachment %s (%s)", att.ID.Hex(), rawURL)
		return att.CachePath
	}
	if ext == "" {
		ext = mimetype.Detect(content).Extension()
	}
	if ext == "" {
		ext = ".bin"
	}

	dir := filepath.Join(s.root, "cache")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("[Cache] Cannot create cache dir %s: %v", dir, err)
		return att.CachePath
	}
	path := filepath.Join(dir, att.ID.Hex()+ext)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		log.Printf("[Cache] Cannot write cache file %s: %v", path, err)
		return att.CachePath
	}

	att.CachePath = path
	expires := time.Now().UTC().Add(s.ttl)
	att.ExpiresAt = &expires

	if detected := DetectMediaType(ext, contentType, content); detected != "" && detected != att.Type {
		att.Type = detected
		if att.Reference == nil {
			att.Reference = map[string]string{}
		}
		att.Reference["detected_type"] = string(detected)
	}

	return att.CachePath
}

// PersistResolved writes bytes returned directly by a resolver under the
// storage root and returns the file path, or empty on failure.
func (s *Store) PersistResolved(content []byte, mediaType models.MediaType, contentType string) string {
	if len(content) == 0 {
		return ""
	}
	dir := filepath.Join(s.root, "resolved")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("[Cache] Cannot create resolved dir %s: %v", dir, err)
		return ""
	}

	ext := extensionForContentType(contentType)
	if ext == "" {
		ext = mimetype.Detect(content).Extension()
	}
	if ext == "" {
		ext = defaultExtension(mediaType)
	}

	path := filepath.Join(dir, uuid.NewString()+ext)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		log.Printf("[Cache] Cannot write resolved file %s: %v", path, err)
		return ""
	}
	return path
}

// Remove deletes a cached file. Missing files are not an error.
func (s *Store) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return content, resp.Header.Get("Content-Type"), nil
}

// preferredExtensions pins the common media types to conventional extensions;
// mime.ExtensionsByType orders alternatives alphabetically (".jpe" before ".jpg").
var preferredExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"video/quicktime": ".mov",
	"application/pdf": ".pdf",
}

func extensionForContentType(contentType string) string {
	media := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if media == "" {
		return ""
	}
	if ext, ok := preferredExtensions[media]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(media); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

func defaultExtension(mediaType models.MediaType) string {
	switch mediaType {
	case models.MediaPhoto:
		return ".jpg"
	case models.MediaVideo:
		return ".mp4"
	default:
		return ".bin"
	}
}

var docMIMETypes = map[string]struct{}{
	"application/pdf":              {},
	"application/zip":              {},
	"application/x-zip-compressed": {},
	"application/x-rar-compressed": {},
	"application/msword":           {},
	"application/vnd.ms-powerpoint": {},
	"application/vnd.ms-excel":      {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         {},
}

var photoExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".webp": {}, ".bmp": {},
}

var videoExtensions = map[string]struct{}{
	".mp4": {}, ".mov": {}, ".webm": {}, ".mkv": {}, ".avi": {}, ".m4v": {},
}

var docExtensions = map[string]struct{}{
	".gif": {}, ".pdf": {}, ".zip": {}, ".rar": {}, ".7z": {},
	".doc": {}, ".docx": {}, ".ppt": {}, ".pptx": {}, ".xls": {}, ".xlsx": {},
}

// DetectMediaType classifies downloaded content, preferring the response
// content type, then the extension, then sniffing the bytes. Animated
// GIFs dispatch as documents on Telegram, so image/gif maps to doc. Returns
// empty when nothing conclusive is found.
func DetectMediaType(ext, contentType string, content []byte) models.MediaType {
	media := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if media == "" && len(content) > 0 {
		media = mimetype.Detect(content).String()
		media = strings.ToLower(strings.TrimSpace(strings.SplitN(media, ";", 2)[0]))
	}

	switch {
	case media == "image/gif":
		return models.MediaDoc
	case strings.HasPrefix(media, "image/"):
		return models.MediaPhoto
	case strings.HasPrefix(media, "video/"):
		return models.MediaVideo
	}
	if _, ok := docMIMETypes[media]; ok {
		return models.MediaDoc
	}

	ext = strings.ToLower(ext)
	if _, ok := docExtensions[ext]; ok {
		return models.MediaDoc
	}
	if _, ok := photoExtensions[ext]; ok {
		return models.MediaPhoto
	}
	if _, ok := videoExtensions[ext]; ok {
		return models.MediaVideo
	}
	return ""
}
